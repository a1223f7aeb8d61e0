package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"stealthpay/core/types"
	"stealthpay/native/payroll"
)

type storedPayrollRecord struct {
	Employer    [20]byte
	Token       [20]byte
	TotalAmount *big.Int
}

// PayrollPut stores the record registered under root, replacing any prior
// record at that key.
func (m *Manager) PayrollPut(root [32]byte, rec *payroll.Record) error {
	if rec == nil {
		return fmt.Errorf("state: nil payroll record")
	}
	amount := big.NewInt(0)
	if rec.TotalAmount != nil {
		amount = new(big.Int).Set(rec.TotalAmount)
	}
	stored := storedPayrollRecord{
		Employer:    rec.Employer,
		Token:       [20]byte(rec.Token),
		TotalAmount: amount,
	}
	raw, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return fmt.Errorf("state: encode payroll record: %w", err)
	}
	return m.db.Put(storageKey(payrollRecordPrefix, root[:]), raw)
}

// PayrollGet loads the record registered under root.
func (m *Manager) PayrollGet(root [32]byte) (*payroll.Record, bool, error) {
	key := storageKey(payrollRecordPrefix, root[:])
	ok, err := m.db.Has(key)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	raw, err := m.db.Get(key)
	if err != nil {
		return nil, false, err
	}
	var stored storedPayrollRecord
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, false, fmt.Errorf("state: decode payroll record: %w", err)
	}
	rec := &payroll.Record{
		Employer:    stored.Employer,
		Token:       types.Token(stored.Token),
		TotalAmount: big.NewInt(0),
	}
	if stored.TotalAmount != nil {
		rec.TotalAmount = new(big.Int).Set(stored.TotalAmount)
	}
	return rec, true, nil
}

// Claimed reports whether the stealth address has been paid out.
func (m *Manager) Claimed(addr [20]byte) (bool, error) {
	return m.db.Has(storageKey(payrollClaimPrefix, addr[:]))
}

// SetClaimed records or clears the claim flag for a stealth address. Clearing
// only happens as the compensating rollback of a failed disbursement; there is
// no user-facing unset operation.
func (m *Manager) SetClaimed(addr [20]byte, claimed bool) error {
	key := storageKey(payrollClaimPrefix, addr[:])
	if claimed {
		return m.db.Put(key, []byte{1})
	}
	return m.db.Delete(key)
}
