// Package state persists ledger state — payroll records, claim flags and
// account balances — in a key-value store behind a single Manager. Values are
// RLP encoded; keys are keccak hashes of a prefix plus the record identity.
package state

import (
	"fmt"
	"math/big"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"stealthpay/core/types"
	"stealthpay/storage"
)

var (
	accountPrefix       = []byte("spay/account/")
	payrollRecordPrefix = []byte("spay/payroll/record/")
	payrollClaimPrefix  = []byte("spay/payroll/claimed/")
)

// Manager mediates all reads and writes of ledger state. Every mutation is one
// Put against the underlying store; the payroll engine provides the
// serialisation discipline on top.
type Manager struct {
	db storage.Database
}

// NewManager wraps the given database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func storageKey(prefix, suffix []byte) []byte {
	buf := make([]byte, len(prefix)+len(suffix))
	copy(buf, prefix)
	copy(buf[len(prefix):], suffix)
	return ethcrypto.Keccak256(buf)
}

type balanceEntry struct {
	Token  [20]byte
	Amount *big.Int
}

type storedAccount struct {
	Nonce    uint64
	Balances []balanceEntry
}

// GetAccount loads the account stored for addr, returning a fresh empty
// account when none exists yet.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	key := storageKey(accountPrefix, addr)
	ok, err := m.db.Has(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return types.NewAccount(), nil
	}
	raw, err := m.db.Get(key)
	if err != nil {
		return nil, err
	}
	var stored storedAccount
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, fmt.Errorf("state: decode account: %w", err)
	}
	acc := types.NewAccount()
	acc.Nonce = stored.Nonce
	for _, entry := range stored.Balances {
		acc.SetBalance(types.Token(entry.Token), entry.Amount)
	}
	return acc, nil
}

// PutAccount stores the account for addr. Balances are sorted by token so the
// encoding is deterministic.
func (m *Manager) PutAccount(addr []byte, acc *types.Account) error {
	if acc == nil {
		acc = types.NewAccount()
	}
	stored := storedAccount{Nonce: acc.Nonce}
	for token := range acc.Balances {
		bal := acc.Balance(token)
		if bal.Sign() == 0 {
			continue
		}
		stored.Balances = append(stored.Balances, balanceEntry{Token: token, Amount: bal})
	}
	sort.Slice(stored.Balances, func(i, j int) bool {
		return string(stored.Balances[i].Token[:]) < string(stored.Balances[j].Token[:])
	})
	raw, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return fmt.Errorf("state: encode account: %w", err)
	}
	return m.db.Put(storageKey(accountPrefix, addr), raw)
}
