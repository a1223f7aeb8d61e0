package payroll

import (
	"math/big"

	"stealthpay/core/types"
)

// Record captures the deposit registered under a commitment root: who funded
// it, which token it pays out in, and how much the ledger took into custody.
type Record struct {
	Employer    [20]byte
	Token       types.Token
	TotalAmount *big.Int
}

// Clone returns a deep copy so callers can mutate the result without
// affecting the stored record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.TotalAmount != nil {
		out.TotalAmount = new(big.Int).Set(r.TotalAmount)
	} else {
		out.TotalAmount = big.NewInt(0)
	}
	return &out
}

// ClaimRequest is the payee-authorised instruction a relayer submits. It is
// validated against a registered commitment root and a signature from the
// stealth address itself; it is never persisted beyond its effects.
type ClaimRequest struct {
	StealthAddress [20]byte
	Token          types.Token
	Amount         *big.Int
	Recipient      [20]byte
	FeeAmount      *big.Int
	Deadline       int64
}

// Clone returns a deep copy of the request.
func (r *ClaimRequest) Clone() *ClaimRequest {
	if r == nil {
		return nil
	}
	out := *r
	if r.Amount != nil {
		out.Amount = new(big.Int).Set(r.Amount)
	} else {
		out.Amount = big.NewInt(0)
	}
	if r.FeeAmount != nil {
		out.FeeAmount = new(big.Int).Set(r.FeeAmount)
	} else {
		out.FeeAmount = big.NewInt(0)
	}
	return &out
}
