package crypto

import (
	"bytes"
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address()
	encoded := addr.String()
	if !strings.HasPrefix(encoded, string(SpayPrefix)) {
		t.Fatalf("encoded address %q missing prefix %q", encoded, SpayPrefix)
	}

	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode address: %v", err)
	}
	if decoded.Prefix() != SpayPrefix {
		t.Fatalf("unexpected prefix %q", decoded.Prefix())
	}
	if !bytes.Equal(decoded.Bytes(), addr.Bytes()) {
		t.Fatalf("address bytes mismatch: %x vs %x", decoded.Bytes(), addr.Bytes())
	}
}

func TestTokenPrefixRoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte{0x5A}, 20)
	addr := NewAddress(TokenPrefix, raw)
	decoded, err := DecodeAddress(addr.String())
	if err != nil {
		t.Fatalf("decode token address: %v", err)
	}
	if decoded.Prefix() != TokenPrefix {
		t.Fatalf("unexpected prefix %q", decoded.Prefix())
	}
	if !bytes.Equal(decoded.Bytes(), raw) {
		t.Fatalf("token bytes mismatch")
	}
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	cases := []string{
		"",
		"not-bech32",
		"spay1qqqqqqqq", // too short for 20 bytes
	}
	for _, c := range cases {
		if _, err := DecodeAddress(c); err == nil {
			t.Fatalf("expected error decoding %q", c)
		}
	}
}

func TestPrivateKeyBytesRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	restored, err := PrivateKeyFromBytes(key.Bytes())
	if err != nil {
		t.Fatalf("restore key: %v", err)
	}
	if restored.D.Cmp(key.D) != 0 {
		t.Fatal("restored scalar differs")
	}
	if !bytes.Equal(restored.PubKey().Bytes(), key.PubKey().Bytes()) {
		t.Fatal("restored public key differs")
	}
}
