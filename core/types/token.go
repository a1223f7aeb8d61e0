package types

import "encoding/hex"

// Token identifies a fungible asset handled by the ledger. The zero value is
// the native-asset marker.
type Token [20]byte

// NativeToken is the reserved identifier for the chain's native asset.
var NativeToken = Token{}

// TokenFromBytes copies a 20-byte identifier into a Token. Shorter or longer
// input is rejected by returning false.
func TokenFromBytes(b []byte) (Token, bool) {
	var t Token
	if len(b) != len(t) {
		return Token{}, false
	}
	copy(t[:], b)
	return t, true
}

// IsNative reports whether the token is the native-asset marker.
func (t Token) IsNative() bool {
	return t == NativeToken
}

func (t Token) String() string {
	if t.IsNative() {
		return "native"
	}
	return "0x" + hex.EncodeToString(t[:])
}
