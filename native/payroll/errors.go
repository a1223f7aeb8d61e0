package payroll

import "errors"

// Claim and deposit failures are sentinel errors so callers (in particular a
// relayer deciding between retry and drop) can branch with errors.Is instead
// of matching strings.
var (
	ErrEthAmountMismatch = errors.New("payroll: attached value does not match total amount")
	ErrExpiredRequest    = errors.New("payroll: claim deadline has passed")
	ErrAlreadyClaimed    = errors.New("payroll: stealth address already claimed")
	ErrFeeExceedsAmount  = errors.New("payroll: fee exceeds claim amount")
	ErrUnknownRoot       = errors.New("payroll: no record registered for root")
	ErrTokenMismatch     = errors.New("payroll: claim token does not match record token")
	ErrInvalidProof      = errors.New("payroll: merkle proof does not bind claim to root")
	ErrInvalidSignature  = errors.New("payroll: signature invalid or not from stealth address")
	ErrTransferFailed    = errors.New("payroll: disbursement transfer failed")

	// ErrInvalidAmount rejects amounts that are nil or negative; the wire
	// format carries unsigned integers, so these never come from a
	// well-formed submission.
	ErrInvalidAmount = errors.New("payroll: invalid amount")

	errNilState = errors.New("payroll: state not configured")
)
