// Package stealth implements the off-chain half of the stealth payroll
// protocol: deterministic one-time address derivation over secp256k1.
//
// A payee publishes the public half of a long-lived meta keypair. For each
// payout round the payer draws a fresh ephemeral keypair, computes the ECDH
// shared point against the payee's meta public key, hashes its compressed
// encoding into a tweak scalar h, and derives the one-time public key
// metaPub + h*G. The payee, holding the meta private key and the published
// ephemeral public key, arrives at the same shared point and recovers the
// matching private key (metaPriv + h) mod n. Both sides land on the same
// 20-byte address without ever exchanging it.
package stealth

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrInvalidScalar reports a private scalar that is zero, too long, or
	// not below the curve order.
	ErrInvalidScalar = errors.New("stealth: invalid private scalar")
	// ErrInvalidPointEncoding reports bytes that do not decode to a point
	// on the curve.
	ErrInvalidPointEncoding = errors.New("stealth: invalid point encoding")
)

const (
	// ScalarLen is the byte length of a secp256k1 private scalar.
	ScalarLen = 32
	// PubKeyLen is the byte length of an uncompressed public key, 0x04
	// prefix included.
	PubKeyLen = 65
	// AddressLen is the byte length of a derived address.
	AddressLen = 20
)

func parseScalar(b []byte) (*big.Int, error) {
	if len(b) != ScalarLen {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidScalar, ScalarLen, len(b))
	}
	s := new(big.Int).SetBytes(b)
	if s.Sign() == 0 || s.Cmp(ethcrypto.S256().Params().N) >= 0 {
		return nil, ErrInvalidScalar
	}
	return s, nil
}

func parsePoint(b []byte) (*ecdsa.PublicKey, error) {
	switch len(b) {
	case PubKeyLen:
		pub, err := ethcrypto.UnmarshalPubkey(b)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPointEncoding, err)
		}
		return pub, nil
	case 33:
		pub, err := ethcrypto.DecompressPubkey(b)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPointEncoding, err)
		}
		return pub, nil
	default:
		return nil, fmt.Errorf("%w: unexpected length %d", ErrInvalidPointEncoding, len(b))
	}
}

func scalarBytes(s *big.Int) []byte {
	out := make([]byte, ScalarLen)
	return s.FillBytes(out)
}

// DeriveMetaPublicKey returns the uncompressed 65-byte public point for the
// given 32-byte meta private scalar.
func DeriveMetaPublicKey(metaPriv []byte) ([]byte, error) {
	s, err := parseScalar(metaPriv)
	if err != nil {
		return nil, err
	}
	curve := ethcrypto.S256()
	x, y := curve.ScalarBaseMult(scalarBytes(s))
	return ethcrypto.FromECDSAPub(&ecdsa.PublicKey{Curve: curve, X: x, Y: y}), nil
}

// sharedTweak computes the hash-to-scalar tweak h from the ECDH shared point
// shared = priv * pub. Both sides of the protocol call this with the same
// point thanks to ECDH commutativity.
func sharedTweak(pub *ecdsa.PublicKey, priv *big.Int) *big.Int {
	curve := ethcrypto.S256()
	sx, sy := curve.ScalarMult(pub.X, pub.Y, scalarBytes(priv))
	compressed := ethcrypto.CompressPubkey(&ecdsa.PublicKey{Curve: curve, X: sx, Y: sy})
	h := new(big.Int).SetBytes(ethcrypto.Keccak256(compressed))
	// h == 0 would collapse the stealth key onto the meta key. The chance is
	// ~2^-256; the formula is applied as-is rather than special-cased.
	return h.Mod(h, curve.Params().N)
}

// ComputeStealthAddress derives the one-time address and public key for a
// payout: stealthPub = metaPub + h*G where h hashes the ECDH shared point
// ephemeralPriv * metaPub. Only public payee information is required.
func ComputeStealthAddress(metaPub []byte, ephemeralPriv []byte) (addr [AddressLen]byte, stealthPub []byte, err error) {
	pub, err := parsePoint(metaPub)
	if err != nil {
		return [AddressLen]byte{}, nil, err
	}
	priv, err := parseScalar(ephemeralPriv)
	if err != nil {
		return [AddressLen]byte{}, nil, err
	}
	curve := ethcrypto.S256()
	h := sharedTweak(pub, priv)
	hx, hy := curve.ScalarBaseMult(scalarBytes(h))
	px, py := curve.Add(pub.X, pub.Y, hx, hy)
	stealth := &ecdsa.PublicKey{Curve: curve, X: px, Y: py}
	copy(addr[:], ethcrypto.PubkeyToAddress(*stealth).Bytes())
	return addr, ethcrypto.FromECDSAPub(stealth), nil
}

// RecoverStealthPrivateKey derives the private scalar controlling the stealth
// address published for this payee: (metaPriv + h) mod n, with h hashing the
// ECDH shared point metaPriv * ephemeralPub.
func RecoverStealthPrivateKey(metaPriv []byte, ephemeralPub []byte) ([]byte, error) {
	s, err := parseScalar(metaPriv)
	if err != nil {
		return nil, err
	}
	pub, err := parsePoint(ephemeralPub)
	if err != nil {
		return nil, err
	}
	h := sharedTweak(pub, s)
	p := new(big.Int).Add(s, h)
	p.Mod(p, ethcrypto.S256().Params().N)
	return scalarBytes(p), nil
}

// AddressFromPrivateKey returns the address controlled by the given scalar.
// Used by payee tooling to confirm a recovered stealth key matches the
// address the payer committed to.
func AddressFromPrivateKey(priv []byte) ([AddressLen]byte, error) {
	s, err := parseScalar(priv)
	if err != nil {
		return [AddressLen]byte{}, err
	}
	curve := ethcrypto.S256()
	x, y := curve.ScalarBaseMult(scalarBytes(s))
	var addr [AddressLen]byte
	copy(addr[:], ethcrypto.PubkeyToAddress(ecdsa.PublicKey{Curve: curve, X: x, Y: y}).Bytes())
	return addr, nil
}
