// Package claimfile defines the JSON artifacts the tooling passes between the
// payer, payee and relayer sides: commitment batches with per-leaf proofs, and
// signed claim bundles ready for submission.
package claimfile

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"

	"stealthpay/core/types"
	"stealthpay/merkle"
	"stealthpay/native/payroll"
)

// BatchLeaf is one payout entry in a commitment batch.
type BatchLeaf struct {
	StealthAddress string `json:"stealthAddress"`
	Token          string `json:"token"`
	Amount         string `json:"amount"`
}

// Batch is the payer-side input to commitment building.
type Batch struct {
	Leaves []BatchLeaf `json:"leaves"`
}

// CommitmentLeaf is one entry of a built commitment, proof included.
type CommitmentLeaf struct {
	BatchLeaf
	Leaf  string   `json:"leaf"`
	Proof []string `json:"proof"`
}

// Commitment is the payer-side output: the root to deposit under and the
// proof each payee needs to claim.
type Commitment struct {
	BatchID     string           `json:"batchId"`
	Root        string           `json:"root"`
	Token       string           `json:"token"`
	TotalAmount string           `json:"totalAmount"`
	Leaves      []CommitmentLeaf `json:"leaves"`
}

// Claim bundles a request with its signature, proof and root, ready for a
// relayer to submit.
type Claim struct {
	StealthAddress string   `json:"stealthAddress"`
	Token          string   `json:"token"`
	Amount         string   `json:"amount"`
	Recipient      string   `json:"recipient"`
	FeeAmount      string   `json:"feeAmount"`
	Deadline       int64    `json:"deadline"`
	Signature      string   `json:"signature"`
	Proof          []string `json:"proof"`
	Root           string   `json:"root"`
}

// ReadBatch parses a payout batch file.
func ReadBatch(path string) (*Batch, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	batch := &Batch{}
	if err := json.Unmarshal(raw, batch); err != nil {
		return nil, fmt.Errorf("parse batch %s: %w", path, err)
	}
	if len(batch.Leaves) == 0 {
		return nil, fmt.Errorf("batch %s has no leaves", path)
	}
	return batch, nil
}

// ReadClaim parses a signed claim bundle.
func ReadClaim(path string) (*Claim, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	claim := &Claim{}
	if err := json.Unmarshal(raw, claim); err != nil {
		return nil, fmt.Errorf("parse claim %s: %w", path, err)
	}
	return claim, nil
}

// WriteJSON writes any artifact as indented JSON.
func WriteJSON(path string, v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(raw, '\n'), 0o644)
}

// Request converts the claim bundle into the engine's request type.
func (c *Claim) Request() (*payroll.ClaimRequest, error) {
	stealth, err := DecodeAddr20(c.StealthAddress)
	if err != nil {
		return nil, fmt.Errorf("stealthAddress: %w", err)
	}
	recipient, err := DecodeAddr20(c.Recipient)
	if err != nil {
		return nil, fmt.Errorf("recipient: %w", err)
	}
	token, err := DecodeToken(c.Token)
	if err != nil {
		return nil, err
	}
	amount, err := DecodeAmount(c.Amount)
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}
	fee, err := DecodeAmount(c.FeeAmount)
	if err != nil {
		return nil, fmt.Errorf("feeAmount: %w", err)
	}
	return &payroll.ClaimRequest{
		StealthAddress: stealth,
		Token:          token,
		Amount:         amount,
		Recipient:      recipient,
		FeeAmount:      fee,
		Deadline:       c.Deadline,
	}, nil
}

// DecodeProof converts the hex proof elements into sibling hashes,
// surfacing merkle.ErrInvalidProofShape on malformed input.
func (c *Claim) DecodeProof() ([][32]byte, error) {
	items := make([][]byte, len(c.Proof))
	for i, el := range c.Proof {
		raw, err := DecodeHex(el)
		if err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", merkle.ErrInvalidProofShape, i, err)
		}
		items[i] = raw
	}
	return merkle.DecodeProof(items)
}

// DecodeRoot parses the commitment root.
func (c *Claim) DecodeRoot() ([32]byte, error) {
	return DecodeHash32(c.Root)
}

// DecodeSignature parses the 65-byte signature.
func (c *Claim) DecodeSignature() ([]byte, error) {
	return DecodeHex(c.Signature)
}

// DecodeHex strips an optional 0x prefix and decodes.
func DecodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
}

// DecodeAddr20 parses a 20-byte hex address.
func DecodeAddr20(s string) ([20]byte, error) {
	var out [20]byte
	raw, err := DecodeHex(s)
	if err != nil {
		return out, err
	}
	if len(raw) != 20 {
		return out, fmt.Errorf("expected 20 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

// DecodeHash32 parses a 32-byte hex hash.
func DecodeHash32(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := DecodeHex(s)
	if err != nil {
		return out, err
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

// DecodeToken parses a token field: "native" (or empty) maps to the
// native-asset marker, anything else must be a 20-byte hex identifier.
func DecodeToken(s string) (types.Token, error) {
	trimmed := strings.TrimSpace(strings.ToLower(s))
	if trimmed == "" || trimmed == "native" {
		return types.NativeToken, nil
	}
	raw, err := DecodeAddr20(trimmed)
	if err != nil {
		return types.Token{}, fmt.Errorf("token: %w", err)
	}
	return types.Token(raw), nil
}

// DecodeAmount parses a non-negative base-10 amount.
func DecodeAmount(s string) (*big.Int, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}
