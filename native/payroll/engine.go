package payroll

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"stealthpay/core/events"
	"stealthpay/core/types"
	"stealthpay/merkle"
	"stealthpay/observability/metrics"
)

// engineState is the persistence surface the engine requires. Implementations
// must apply each call durably before returning.
type engineState interface {
	PayrollPut(root [32]byte, rec *Record) error
	PayrollGet(root [32]byte) (*Record, bool, error)
	Claimed(addr [20]byte) (bool, error)
	SetClaimed(addr [20]byte, claimed bool) error
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, acc *types.Account) error
}

// Engine is the payroll claim ledger. Deposits register a commitment root and
// pull the payout total into ledger custody; claims validate a payee-signed
// request against the root and disburse exactly once per stealth address.
//
// All mutations run under a single mutex so no two claims can both observe an
// address as unclaimed. The host that originally carried this logic provided
// that serialisation for free; here it is explicit.
type Engine struct {
	mu      sync.Mutex
	state   engineState
	emitter events.Emitter
	domain  Domain
	vault   [20]byte
	nowFn   func() int64
}

// NewEngine creates a payroll engine with a no-op emitter and the default
// custody vault address. Callers wire state, domain and emitter before use.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		vault:   defaultVault(),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

func defaultVault() [20]byte {
	var vault [20]byte
	copy(vault[:], ethcrypto.Keccak256([]byte("stealthpay/payroll/vault"))[12:])
	return vault
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetDomain configures the signature domain claims are verified against.
func (e *Engine) SetDomain(d Domain) { e.domain = d }

// SetVault overrides the custody address holding deposited funds.
func (e *Engine) SetVault(addr [20]byte) { e.vault = addr }

// Vault returns the custody address holding deposited funds.
func (e *Engine) Vault() [20]byte { return e.vault }

// SetNowFunc overrides the time source used for deadline checks. Primarily
// intended for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter. Passing nil resets the emitter to
// a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func validAmount(v *big.Int) bool {
	return v != nil && v.Sign() >= 0
}

// transferLeg is one balance movement inside an atomic batch.
type transferLeg struct {
	from   [20]byte
	to     [20]byte
	amount *big.Int
}

// applyTransfers moves every leg of a batch or nothing. All touched accounts
// are loaded once (so a recipient doubling as the fee caller aliases to one
// account object), mutated in memory, and written back last; a failed write
// restores the snapshots of accounts already written.
func (e *Engine) applyTransfers(token types.Token, legs []transferLeg) error {
	accounts := make(map[[20]byte]*types.Account)
	snapshots := make(map[[20]byte]*types.Account)
	load := func(addr [20]byte) (*types.Account, error) {
		if acc, ok := accounts[addr]; ok {
			return acc, nil
		}
		acc, err := e.state.GetAccount(addr[:])
		if err != nil {
			return nil, err
		}
		accounts[addr] = acc
		snapshots[addr] = acc.Clone()
		return acc, nil
	}
	for _, leg := range legs {
		if leg.amount == nil || leg.amount.Sign() == 0 {
			continue
		}
		if leg.amount.Sign() < 0 {
			return fmt.Errorf("%w: negative transfer", ErrInvalidAmount)
		}
		fromAcc, err := load(leg.from)
		if err != nil {
			return err
		}
		if fromAcc.Balance(token).Cmp(leg.amount) < 0 {
			return fmt.Errorf("payroll: insufficient %s balance", token)
		}
		toAcc, err := load(leg.to)
		if err != nil {
			return err
		}
		fromAcc.SetBalance(token, new(big.Int).Sub(fromAcc.Balance(token), leg.amount))
		toAcc.SetBalance(token, new(big.Int).Add(toAcc.Balance(token), leg.amount))
	}
	written := make([][20]byte, 0, len(accounts))
	for addr, acc := range accounts {
		if err := e.state.PutAccount(addr[:], acc); err != nil {
			var rollbackErrs []error
			for _, prev := range written {
				if rbErr := e.state.PutAccount(prev[:], snapshots[prev]); rbErr != nil {
					rollbackErrs = append(rollbackErrs, fmt.Errorf("payroll: restore account %x: %w", prev, rbErr))
				}
			}
			if len(rollbackErrs) > 0 {
				return errors.Join(append([]error{err}, rollbackErrs...)...)
			}
			return err
		}
		written = append(written, addr)
	}
	return nil
}

// Deposit registers a commitment root and takes totalAmount of token from the
// caller into ledger custody. Registration is permissionless. A deposit to an
// already-registered root overwrites the prior record: the root owner can
// re-fund or re-bind it, and claims always validate against the latest
// record.
//
// For the native token the attached value must equal totalAmount exactly; for
// fungible tokens no value may be attached.
func (e *Engine) Deposit(caller [20]byte, root [32]byte, token types.Token, totalAmount, attachedValue *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !validAmount(totalAmount) || totalAmount.Sign() == 0 {
		return fmt.Errorf("%w: deposit total must be positive", ErrInvalidAmount)
	}
	if token.IsNative() {
		if attachedValue == nil || attachedValue.Cmp(totalAmount) != 0 {
			return ErrEthAmountMismatch
		}
	} else if attachedValue != nil && attachedValue.Sign() != 0 {
		return ErrEthAmountMismatch
	}
	if err := e.applyTransfers(token, []transferLeg{{from: caller, to: e.vault, amount: totalAmount}}); err != nil {
		return err
	}
	rec := &Record{Employer: caller, Token: token, TotalAmount: new(big.Int).Set(totalAmount)}
	if err := e.state.PayrollPut(root, rec); err != nil {
		return err
	}
	metrics.Payroll().ObserveDeposit(token.String())
	e.emit(Deposited{Root: root, Employer: caller, Token: token, TotalAmount: rec.TotalAmount, DepositedAt: e.now()})
	return nil
}

// Claim validates a payee-signed request against a registered root and, on
// success, marks the stealth address claimed and disburses amount-fee to the
// recipient and fee to the submitting caller.
//
// Checks run in a fixed order and short-circuit on the first failure: the
// cheap guards first, then the Merkle binding, then signature recovery. The
// proof check precedes recovery so a tampered amount or token surfaces as a
// commitment mismatch rather than a misleading signature failure. The claim
// flag commits before any transfer; a failed transfer rolls it back.
func (e *Engine) Claim(caller [20]byte, req *ClaimRequest, sig []byte, proof [][32]byte, root [32]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if req == nil {
		return fmt.Errorf("%w: nil request", ErrInvalidAmount)
	}
	req = req.Clone()
	if !validAmount(req.Amount) || !validAmount(req.FeeAmount) {
		return ErrInvalidAmount
	}

	if e.now() > req.Deadline {
		return e.reject(ErrExpiredRequest)
	}
	claimed, err := e.state.Claimed(req.StealthAddress)
	if err != nil {
		return err
	}
	if claimed {
		return e.reject(ErrAlreadyClaimed)
	}
	if req.FeeAmount.Cmp(req.Amount) > 0 {
		return e.reject(ErrFeeExceedsAmount)
	}
	rec, ok, err := e.state.PayrollGet(root)
	if err != nil {
		return err
	}
	if !ok || rec == nil || rec.Employer == ([20]byte{}) {
		return e.reject(ErrUnknownRoot)
	}
	// Tenant isolation: without this check a proof valid for one
	// employer's root could be replayed with another token to drain an
	// unrelated balance.
	if req.Token != rec.Token {
		return e.reject(ErrTokenMismatch)
	}
	leaf, err := merkle.Leaf(req.StealthAddress, [20]byte(req.Token), req.Amount)
	if err != nil {
		return e.reject(fmt.Errorf("%w: %v", ErrInvalidProof, err))
	}
	if !merkle.VerifyProof(leaf, proof, root) {
		return e.reject(ErrInvalidProof)
	}
	signer, err := RecoverClaimSigner(e.domain, req, sig)
	if err != nil {
		return e.reject(err)
	}
	if signer != req.StealthAddress {
		return e.reject(ErrInvalidSignature)
	}

	// State effect commits before any transfer so a reentrant claim can
	// never observe the address as unclaimed again.
	if err := e.state.SetClaimed(req.StealthAddress, true); err != nil {
		return err
	}
	net := new(big.Int).Sub(req.Amount, req.FeeAmount)
	if err := e.disburse(req, caller, net); err != nil {
		if rbErr := e.state.SetClaimed(req.StealthAddress, false); rbErr != nil {
			return errors.Join(fmt.Errorf("%w: %v", ErrTransferFailed, err), fmt.Errorf("payroll: claim flag rollback failed: %w", rbErr))
		}
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	metrics.Payroll().ObserveClaim(req.Token.String())
	e.emit(Claimed{
		Root:           root,
		Employer:       rec.Employer,
		StealthAddress: req.StealthAddress,
		Token:          req.Token,
		Amount:         new(big.Int).Set(req.Amount),
		NetPaid:        net,
		Fee:            new(big.Int).Set(req.FeeAmount),
		Recipient:      req.Recipient,
		Caller:         caller,
		ClaimedAt:      e.now(),
	})
	return nil
}

// disburse pays amount-fee to the recipient and the fee to the submitting
// caller as one atomic batch.
func (e *Engine) disburse(req *ClaimRequest, caller [20]byte, net *big.Int) error {
	return e.applyTransfers(req.Token, []transferLeg{
		{from: e.vault, to: req.Recipient, amount: net},
		{from: e.vault, to: caller, amount: req.FeeAmount},
	})
}

func (e *Engine) reject(err error) error {
	metrics.Payroll().ObserveClaimRejected(rejectReason(err))
	return err
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrExpiredRequest):
		return "expired"
	case errors.Is(err, ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, ErrFeeExceedsAmount):
		return "fee_exceeds_amount"
	case errors.Is(err, ErrUnknownRoot):
		return "unknown_root"
	case errors.Is(err, ErrTokenMismatch):
		return "token_mismatch"
	case errors.Is(err, ErrInvalidProof):
		return "invalid_proof"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	default:
		return "other"
	}
}

// Record returns the payroll record registered under root, if any.
func (e *Engine) Record(root [32]byte) (*Record, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok, err := e.state.PayrollGet(root)
	if err != nil || !ok {
		return nil, ok, err
	}
	return rec.Clone(), true, nil
}

// IsClaimed reports whether the stealth address has already been paid out.
func (e *Engine) IsClaimed(addr [20]byte) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Claimed(addr)
}
