package crypto

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestSHA256MatchesStdLib(t *testing.T) {
	inputs := [][]byte{
		{},
		[]byte("test"),
		[]byte("another test"),
		[]byte{0x01, 0x02, 0x03},
		make([]byte, 1000), // large input
	}

	for _, input := range inputs {
		got := SHA256(input)
		want := sha256.Sum256(input)

		if !bytes.Equal(got, want[:]) {
			t.Errorf("SHA256(%x) doesn't match stdlib", input)
		}
		if len(got) != 32 {
			t.Errorf("SHA256 output length = %d, want 32", len(got))
		}
	}
}

func TestBase64URLRoundTrip(t *testing.T) {
	inputs := [][]byte{
		{},
		{0x00},
		{0x00, 0x01},
		{0x00, 0x01, 0x02},
		{0xff, 0xfe, 0xfd, 0xfc}, // high bytes, would need padding in standard base64
		[]byte("hello world"),
		[]byte(`{"kty":"EC","crv":"secp256k1","x":"abc","y":"def"}`),
	}

	for i, input := range inputs {
		encoded := Base64URLEncode(input)
		if len(encoded) > 0 && encoded[len(encoded)-1] == '=' {
			t.Errorf("case %d: Base64URLEncode should not include padding, got %q", i, encoded)
		}
		decoded, err := Base64URLDecode(encoded)
		if err != nil {
			t.Errorf("case %d: decode error: %v", i, err)
			continue
		}
		if !bytes.Equal(input, decoded) {
			t.Errorf("case %d: round-trip failed: %x -> %q -> %x", i, input, encoded, decoded)
		}
	}
}

func TestBase64URLDecodeRejectsInvalidInput(t *testing.T) {
	if _, err := Base64URLDecode("!!!"); err == nil {
		t.Error("expected error decoding invalid base64url input")
	}
}

// TestCanonicalizeThenHashMatchesOperationSigning exercises the same
// Canonicalize-then-HashMessage composition did.SignOperation and
// credential.Engine.AddSignature inline at their call sites: two
// operations that differ only in field order must canonicalize and hash
// identically, and a changed field must change the hash.
func TestCanonicalizeThenHashMatchesOperationSigning(t *testing.T) {
	op := map[string]interface{}{
		"type":      "create",
		"publicKey": map[string]interface{}{"kty": "EC", "crv": "secp256k1", "x": "abc", "y": "def"},
		"recovery":  "did:key:recovery",
	}
	reordered := map[string]interface{}{
		"recovery":  "did:key:recovery",
		"publicKey": map[string]interface{}{"y": "def", "x": "abc", "crv": "secp256k1", "kty": "EC"},
		"type":      "create",
	}

	canonicalOp, err := Canonicalize(op)
	if err != nil {
		t.Fatalf("Canonicalize(op): %v", err)
	}
	canonicalReordered, err := Canonicalize(reordered)
	if err != nil {
		t.Fatalf("Canonicalize(reordered): %v", err)
	}
	if HashMessage(canonicalOp) != HashMessage(canonicalReordered) {
		t.Fatal("field-order variants of the same operation hashed differently")
	}

	tampered := map[string]interface{}{
		"type":      "create",
		"publicKey": map[string]interface{}{"kty": "EC", "crv": "secp256k1", "x": "abc", "y": "def"},
		"recovery":  "did:key:someone-else",
	}
	canonicalTampered, err := Canonicalize(tampered)
	if err != nil {
		t.Fatalf("Canonicalize(tampered): %v", err)
	}
	if HashMessage(canonicalOp) == HashMessage(canonicalTampered) {
		t.Fatal("changing a field did not change the operation hash")
	}
}

func mustHexDecode(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("hex.DecodeString(%q): %v", s, err)
	}
	return b
}

func TestSHA256KnownVector(t *testing.T) {
	got := SHA256([]byte("hello world"))
	want := mustHexDecode(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9")
	if !bytes.Equal(got, want) {
		t.Errorf("SHA256(%q) = %x, want %x", "hello world", got, want)
	}
}
