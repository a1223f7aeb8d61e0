package types

import "math/big"

// Account holds the per-address balances tracked by the ledger, keyed by
// token identifier. Balances are never nil once read through the accessors.
type Account struct {
	Nonce    uint64
	Balances map[Token]*big.Int
}

// NewAccount returns an empty account with an initialised balance map.
func NewAccount() *Account {
	return &Account{Balances: make(map[Token]*big.Int)}
}

// Balance returns the balance held for the given token, zero if absent. The
// returned value is a copy; mutating it does not change the account.
func (a *Account) Balance(t Token) *big.Int {
	if a == nil || a.Balances == nil {
		return big.NewInt(0)
	}
	bal, ok := a.Balances[t]
	if !ok || bal == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(bal)
}

// SetBalance stores the balance for the given token, dropping zero entries so
// accounts do not accumulate dust keys.
func (a *Account) SetBalance(t Token, amount *big.Int) {
	if a.Balances == nil {
		a.Balances = make(map[Token]*big.Int)
	}
	if amount == nil || amount.Sign() == 0 {
		delete(a.Balances, t)
		return
	}
	a.Balances[t] = new(big.Int).Set(amount)
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return NewAccount()
	}
	out := &Account{Nonce: a.Nonce, Balances: make(map[Token]*big.Int, len(a.Balances))}
	for token, bal := range a.Balances {
		if bal != nil {
			out.Balances[token] = new(big.Int).Set(bal)
		}
	}
	return out
}
