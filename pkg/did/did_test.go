package did

import (
	"testing"

	"github.com/openmdip/keymaster/pkg/crypto"
	"github.com/openmdip/keymaster/pkg/keys"
)

func TestFormatAndParseDID(t *testing.T) {
	tests := []struct {
		name    string
		suffix  string
		wantErr bool
	}{
		{name: "valid suffix", suffix: "5DfhGyQ", wantErr: false},
		{name: "empty suffix", suffix: "", wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			full := FormatDID(tt.suffix)
			got, err := ParseDID(full)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDID(%q) error = %v, wantErr %v", full, err, tt.wantErr)
			}
			if err == nil && got != tt.suffix {
				t.Errorf("ParseDID(%q) = %q, want %q", full, got, tt.suffix)
			}
		})
	}
}

func TestParseDIDRejectsWrongMethod(t *testing.T) {
	if _, err := ParseDID("did:char:abc123"); err == nil {
		t.Fatal("expected error for a did:char DID")
	}
}

func TestSuffixFromCreateOperationIsDeterministic(t *testing.T) {
	priv, err := crypto.GenerateSecp256k1Key()
	if err != nil {
		t.Fatalf("GenerateSecp256k1Key: %v", err)
	}
	jwk := keys.PublicKeyToJWK(&priv.PublicKey, "")

	op := NewCreateOperation(jwk, "peerbit")
	signed, err := SignOperation(op, priv, "")
	if err != nil {
		t.Fatalf("SignOperation: %v", err)
	}

	suffix1, err := SuffixFromCreateOperation(signed)
	if err != nil {
		t.Fatalf("SuffixFromCreateOperation: %v", err)
	}
	suffix2, err := SuffixFromCreateOperation(signed)
	if err != nil {
		t.Fatalf("SuffixFromCreateOperation: %v", err)
	}
	if suffix1 != suffix2 {
		t.Errorf("suffix not deterministic: %s vs %s", suffix1, suffix2)
	}
	if !IsDID(FormatDID(suffix1)) {
		t.Errorf("FormatDID(%q) does not look like a DID", suffix1)
	}
}

func TestSignAndVerifyOperation(t *testing.T) {
	priv, err := crypto.GenerateSecp256k1Key()
	if err != nil {
		t.Fatalf("GenerateSecp256k1Key: %v", err)
	}
	jwk := keys.PublicKeyToJWK(&priv.PublicKey, "")

	op := NewCreateOperation(jwk, "peerbit")
	signed, err := SignOperation(op, priv, "did:mdip:self")
	if err != nil {
		t.Fatalf("SignOperation: %v", err)
	}

	if !VerifyOperation(signed, &priv.PublicKey) {
		t.Fatal("VerifyOperation rejected a validly signed operation")
	}

	tampered := signed
	tampered.MDIP.Registry = "BTC"
	if VerifyOperation(tampered, &priv.PublicKey) {
		t.Fatal("VerifyOperation accepted a tampered operation")
	}

	other, err := crypto.GenerateSecp256k1Key()
	if err != nil {
		t.Fatalf("GenerateSecp256k1Key: %v", err)
	}
	if VerifyOperation(signed, &other.PublicKey) {
		t.Fatal("VerifyOperation accepted a signature under the wrong key")
	}
}

func TestOperationValidate(t *testing.T) {
	tests := []struct {
		name    string
		op      Operation
		wantErr bool
	}{
		{
			name:    "create without payload",
			op:      Operation{Op: OperationTypeCreate},
			wantErr: true,
		},
		{
			name:    "update without did",
			op:      Operation{Op: OperationTypeUpdate, Doc: &Document{}},
			wantErr: true,
		},
		{
			name:    "deactivate without did",
			op:      Operation{Op: OperationTypeDeactivate},
			wantErr: true,
		},
		{
			name:    "unknown op",
			op:      Operation{Op: "bogus"},
			wantErr: true,
		},
		{
			name:    "valid deactivate",
			op:      Operation{Op: OperationTypeDeactivate, DID: "did:mdip:x"},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDocumentPublicKeyAndServiceManagement(t *testing.T) {
	docDid := FormatDID("abc")
	doc := NewDocument(docDid)

	doc.AddPublicKey(PublicKey{ID: docDid + "#key-0", Type: "EcdsaSecp256k1VerificationKey2019"})
	doc.AddAuthentication(docDid + "#key-0")
	doc.AddService(Service{ID: docDid + "#vault", Type: "Vault", ServiceEndpoint: "did:mdip:vault"})

	if len(doc.PublicKeys) != 1 || len(doc.Authentication) != 1 || len(doc.Services) != 1 {
		t.Fatalf("expected one of each, got %d/%d/%d", len(doc.PublicKeys), len(doc.Authentication), len(doc.Services))
	}

	doc.RemovePublicKey(docDid + "#key-0")
	if len(doc.PublicKeys) != 0 || len(doc.Authentication) != 0 {
		t.Errorf("expected public key and authentication entry removed together")
	}

	doc.RemoveService(docDid + "#vault")
	if len(doc.Services) != 0 {
		t.Errorf("expected service removed")
	}
}
