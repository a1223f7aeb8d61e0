package payroll

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Claim authorisations are signed over a structurally typed, domain-bound
// digest. The domain binds the protocol name and version plus the chain
// identity and the ledger instance's own address, so a signature produced for
// one deployment can never be replayed against another.

const (
	// DomainName identifies the protocol in every claim digest.
	DomainName = "StealthPay"
	// DomainVersion is bumped on any change to the digest layout.
	DomainVersion = "1"

	signatureLen = 65
)

var (
	domainTypeHash = ethcrypto.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	claimTypeHash  = ethcrypto.Keccak256([]byte("Claim(address stealthAddress,address token,uint256 amount,address recipient,uint256 feeAmount,uint256 deadline)"))
)

// Domain pins a claim signature to one deployment: the chain the ledger runs
// on and the address of the ledger instance itself.
type Domain struct {
	ChainID *big.Int
	Ledger  [20]byte
}

// Separator returns the 32-byte domain separator hash.
func (d Domain) Separator() [32]byte {
	chainID := d.ChainID
	if chainID == nil {
		chainID = new(big.Int)
	}
	enc := make([]byte, 0, 5*32)
	enc = append(enc, domainTypeHash...)
	enc = append(enc, ethcrypto.Keccak256([]byte(DomainName))...)
	enc = append(enc, ethcrypto.Keccak256([]byte(DomainVersion))...)
	enc = append(enc, abiWord(chainID.Bytes())...)
	enc = append(enc, abiWord(d.Ledger[:])...)
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(enc))
	return out
}

func abiWord(b []byte) []byte {
	word := make([]byte, 32)
	copy(word[32-len(b):], b)
	return word
}

func structHash(req *ClaimRequest) [32]byte {
	amount := req.Amount
	if amount == nil {
		amount = new(big.Int)
	}
	fee := req.FeeAmount
	if fee == nil {
		fee = new(big.Int)
	}
	enc := make([]byte, 0, 7*32)
	enc = append(enc, claimTypeHash...)
	enc = append(enc, abiWord(req.StealthAddress[:])...)
	enc = append(enc, abiWord(req.Token[:])...)
	enc = append(enc, abiWord(amount.Bytes())...)
	enc = append(enc, abiWord(req.Recipient[:])...)
	enc = append(enc, abiWord(fee.Bytes())...)
	enc = append(enc, abiWord(new(big.Int).SetInt64(req.Deadline).Bytes())...)
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(enc))
	return out
}

// ClaimDigest returns the signing digest for a claim request under the given
// domain: keccak256(0x19 || 0x01 || domainSeparator || structHash(req)).
func ClaimDigest(d Domain, req *ClaimRequest) ([32]byte, error) {
	if req == nil {
		return [32]byte{}, fmt.Errorf("payroll: nil claim request")
	}
	sep := d.Separator()
	sh := structHash(req)
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256([]byte{0x19, 0x01}, sep[:], sh[:]))
	return out, nil
}

// SignClaim produces the 65-byte [R || S || V] authorisation for a request.
// Intended for payee-side tooling holding the recovered stealth private key.
func SignClaim(d Domain, req *ClaimRequest, priv *ecdsa.PrivateKey) ([]byte, error) {
	digest, err := ClaimDigest(d, req)
	if err != nil {
		return nil, err
	}
	return ethcrypto.Sign(digest[:], priv)
}

// RecoverClaimSigner validates the signature encoding and recovers the signer
// address. Signatures not in canonical low-S form are rejected outright:
// accepting the malleated twin would let the same authorisation circulate
// under two distinct encodings.
func RecoverClaimSigner(d Domain, req *ClaimRequest, sig []byte) ([20]byte, error) {
	if len(sig) != signatureLen {
		return [20]byte{}, fmt.Errorf("%w: signature must be %d bytes, got %d", ErrInvalidSignature, signatureLen, len(sig))
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	v := sig[64]
	if v == 27 || v == 28 {
		v -= 27
	}
	if !ethcrypto.ValidateSignatureValues(v, r, s, true) {
		return [20]byte{}, fmt.Errorf("%w: non-canonical signature values", ErrInvalidSignature)
	}
	digest, err := ClaimDigest(d, req)
	if err != nil {
		return [20]byte{}, err
	}
	normalized := make([]byte, signatureLen)
	copy(normalized, sig[:64])
	normalized[64] = v
	pub, err := ethcrypto.SigToPub(digest[:], normalized)
	if err != nil {
		return [20]byte{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	var signer [20]byte
	copy(signer[:], ethcrypto.PubkeyToAddress(*pub).Bytes())
	return signer, nil
}
