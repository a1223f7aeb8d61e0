package payroll

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"stealthpay/core/types"
	"stealthpay/crypto"
)

const (
	EventTypeDeposited = "payroll.deposited"
	EventTypeClaimed   = "payroll.claimed"
)

// Deposited is emitted when a commitment root is registered and funded. The
// attributes carry everything an indexer needs to track the commitment
// without access to any private key.
type Deposited struct {
	Root        [32]byte
	Employer    [20]byte
	Token       types.Token
	TotalAmount *big.Int
	DepositedAt int64
}

func (Deposited) EventType() string { return EventTypeDeposited }

func (e Deposited) Event() *types.Event {
	return &types.Event{
		Type: EventTypeDeposited,
		Attributes: map[string]string{
			"root":        hex.EncodeToString(e.Root[:]),
			"employer":    crypto.NewAddress(crypto.SpayPrefix, e.Employer[:]).String(),
			"token":       e.Token.String(),
			"totalAmount": formatAmount(e.TotalAmount),
			"depositedAt": strconv.FormatInt(e.DepositedAt, 10),
		},
	}
}

// Claimed is emitted on a successful payout. Together with Deposited it lets
// an indexer reconstruct full payout history: which root paid which stealth
// address, how much went to the recipient and how much to the relayer.
type Claimed struct {
	Root           [32]byte
	Employer       [20]byte
	StealthAddress [20]byte
	Token          types.Token
	Amount         *big.Int
	NetPaid        *big.Int
	Fee            *big.Int
	Recipient      [20]byte
	Caller         [20]byte
	ClaimedAt      int64
}

func (Claimed) EventType() string { return EventTypeClaimed }

func (e Claimed) Event() *types.Event {
	return &types.Event{
		Type: EventTypeClaimed,
		Attributes: map[string]string{
			"root":           hex.EncodeToString(e.Root[:]),
			"employer":       crypto.NewAddress(crypto.SpayPrefix, e.Employer[:]).String(),
			"stealthAddress": crypto.NewAddress(crypto.SpayPrefix, e.StealthAddress[:]).String(),
			"token":          e.Token.String(),
			"amount":         formatAmount(e.Amount),
			"netPaid":        formatAmount(e.NetPaid),
			"fee":            formatAmount(e.Fee),
			"recipient":      crypto.NewAddress(crypto.SpayPrefix, e.Recipient[:]).String(),
			"caller":         crypto.NewAddress(crypto.SpayPrefix, e.Caller[:]).String(),
			"claimedAt":      strconv.FormatInt(e.ClaimedAt, 10),
		},
	}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
