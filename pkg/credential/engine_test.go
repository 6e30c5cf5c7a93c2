package credential

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/openmdip/keymaster/pkg/did"
	"github.com/openmdip/keymaster/pkg/walleterr"
)

func TestEncryptDecryptRoundTripBothDirections(t *testing.T) {
	_, parties := newTestPeers(t, "alice", "bob")
	alice, bob := parties["alice"], parties["bob"]
	ctx := context.Background()

	envelopeDID, err := alice.Engine.Encrypt(ctx, []byte("Hi Bob!"), bob.DID)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	senderPlaintext, err := alice.Engine.Decrypt(ctx, envelopeDID)
	if err != nil {
		t.Fatalf("sender Decrypt: %v", err)
	}
	if string(senderPlaintext) != "Hi Bob!" {
		t.Errorf("sender plaintext = %q, want %q", senderPlaintext, "Hi Bob!")
	}

	receiverPlaintext, err := bob.Engine.Decrypt(ctx, envelopeDID)
	if err != nil {
		t.Fatalf("receiver Decrypt: %v", err)
	}
	if string(receiverPlaintext) != "Hi Bob!" {
		t.Errorf("receiver plaintext = %q, want %q", receiverPlaintext, "Hi Bob!")
	}
}

func TestDecryptSurvivesKeyRotationByBothParties(t *testing.T) {
	_, parties := newTestPeers(t, "alice", "bob")
	alice, bob := parties["alice"], parties["bob"]
	ctx := context.Background()

	envelopeDID, err := alice.Engine.Encrypt(ctx, []byte("Hi Bob!"), bob.DID)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := alice.Manager.RotateKeys(ctx); err != nil {
			t.Fatalf("alice RotateKeys[%d]: %v", i, err)
		}
		if err := bob.Manager.RotateKeys(ctx); err != nil {
			t.Fatalf("bob RotateKeys[%d]: %v", i, err)
		}
	}

	plaintext, err := bob.Engine.Decrypt(ctx, envelopeDID)
	if err != nil {
		t.Fatalf("Decrypt after rotation: %v", err)
	}
	if string(plaintext) != "Hi Bob!" {
		t.Errorf("plaintext = %q, want %q", plaintext, "Hi Bob!")
	}
}

func TestDecryptTamperedEnvelopeFails(t *testing.T) {
	_, parties := newTestPeers(t, "alice", "bob")
	alice, bob := parties["alice"], parties["bob"]
	ctx := context.Background()

	envelopeDID, err := alice.Engine.Encrypt(ctx, []byte("Hi Bob!"), bob.DID)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	resolved, err := alice.Manager.Registry.ResolveDid(ctx, envelopeDID)
	if err != nil {
		t.Fatalf("ResolveDid: %v", err)
	}
	var envelope Envelope
	if err := decodeInto(resolved.DidDocumentMetadata.Data, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	envelope.CipherHash = "0000000000000000000000000000000000000000000000000000000000000000"

	priv, err := alice.Manager.DeriveKeyAt(alice.Manager.Wallet.Ids["alice"], alice.Manager.Wallet.Ids["alice"].Index)
	if err != nil {
		t.Fatalf("DeriveKeyAt: %v", err)
	}
	prev, err := alice.Manager.Registry.LastOperationHash(ctx, envelopeDID)
	if err != nil {
		t.Fatalf("LastOperationHash: %v", err)
	}
	op := did.NewUpdateDataOperation(envelopeDID, envelope, prev, alice.Manager.Registry.RegistryName())
	signed, err := did.SignOperation(op, priv, alice.DID)
	if err != nil {
		t.Fatalf("SignOperation: %v", err)
	}
	if err := alice.Manager.Registry.UpdateDid(ctx, signed); err != nil {
		t.Fatalf("UpdateDid: %v", err)
	}

	if _, err := bob.Engine.Decrypt(ctx, envelopeDID); !errors.Is(err, walleterr.ErrTamperedCiphertext) {
		t.Fatalf("Decrypt with a rewritten cipher_hash: got %v, want ErrTamperedCiphertext", err)
	}
}

func TestAddSignatureVerifySignatureRoundTrip(t *testing.T) {
	_, parties := newTestPeers(t, "alice")
	alice := parties["alice"]
	ctx := context.Background()

	type record struct {
		Value     string         `json:"value"`
		Signature *signatureView `json:"signature,omitempty"`
	}

	signed, err := alice.Engine.AddSignature(record{Value: "hello"})
	if err != nil {
		t.Fatalf("AddSignature: %v", err)
	}

	var out record
	if err := json.Unmarshal(signed, &out); err != nil {
		t.Fatalf("unmarshal signed record: %v", err)
	}
	if !alice.Engine.VerifySignature(ctx, out) {
		t.Fatal("expected freshly signed record to verify")
	}

	out.Value = "tampered"
	if alice.Engine.VerifySignature(ctx, out) {
		t.Fatal("expected verification to fail after mutating the signed payload")
	}
}

func TestVerifySignatureRejectsNilAndMissingSignature(t *testing.T) {
	_, parties := newTestPeers(t, "alice")
	alice := parties["alice"]
	ctx := context.Background()

	if alice.Engine.VerifySignature(ctx, nil) {
		t.Fatal("expected VerifySignature(nil) to return false")
	}
	if alice.Engine.VerifySignature(ctx, map[string]interface{}{"value": "hello"}) {
		t.Fatal("expected VerifySignature without a signature field to return false")
	}
}

type signatureView struct {
	Signer string `json:"signer"`
	Signed string `json:"signed"`
	Hash   string `json:"hash"`
	Value  string `json:"value"`
}
