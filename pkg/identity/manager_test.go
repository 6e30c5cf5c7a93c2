package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/openmdip/keymaster/pkg/did"
	"github.com/openmdip/keymaster/pkg/registry"
	"github.com/openmdip/keymaster/pkg/wallet"
)

// fakeGatekeeper is a minimal in-memory registry server, good enough to
// exercise create/resolve/update round trips without a real gatekeeper.
type fakeGatekeeper struct {
	mu   sync.Mutex
	docs map[string]*registry.ResolvedDocument
}

func newFakeGatekeeper() *fakeGatekeeper {
	return &fakeGatekeeper{docs: map[string]*registry.ResolvedDocument{}}
}

func (g *fakeGatekeeper) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		defer g.mu.Unlock()

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/did":
			var op did.Operation
			if err := json.NewDecoder(r.Body).Decode(&op); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			g.apply(w, op)
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/did/"):
			target := strings.TrimPrefix(r.URL.Path, "/did/")
			doc, ok := g.docs[target]
			if !ok {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(doc)
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}
}

func (g *fakeGatekeeper) apply(w http.ResponseWriter, op did.Operation) {
	if op.Signature == nil {
		http.Error(w, "unsigned operation", http.StatusBadRequest)
		return
	}

	switch op.Op {
	case did.OperationTypeCreate:
		suffix, err := did.SuffixFromCreateOperation(op)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		newDID := did.FormatDID(suffix)

		doc := op.Doc
		if doc == nil {
			doc = did.NewDocument(newDID)
		}
		doc.ID = newDID

		g.docs[newDID] = &registry.ResolvedDocument{
			DidDocument: doc,
			DidDocumentMetadata: registry.DidDocumentMetadata{
				Data:              op.Data,
				LastOperationHash: op.Signature.Hash,
			},
		}
		json.NewEncoder(w).Encode(map[string]string{"did": newDID})

	case did.OperationTypeUpdate:
		existing, ok := g.docs[op.DID]
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if op.Doc != nil {
			op.Doc.ID = op.DID
			existing.DidDocument = op.Doc
		}
		if op.Data != nil {
			existing.DidDocumentMetadata.Data = op.Data
		}
		existing.DidDocumentMetadata.LastOperationHash = op.Signature.Hash
		json.NewEncoder(w).Encode(map[string]string{"did": op.DID})

	default:
		http.Error(w, "unsupported op", http.StatusBadRequest)
	}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	gk := newFakeGatekeeper()
	server := httptest.NewServer(gk.handler())
	t.Cleanup(server.Close)

	client, err := registry.NewClient(registry.Config{URL: server.URL, Name: "peerbit", TimeoutSeconds: 5})
	if err != nil {
		t.Fatalf("registry.NewClient: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	w, err := wallet.New(filepath.Join(t.TempDir(), "wallet.json"), "")
	if err != nil {
		t.Fatalf("wallet.New: %v", err)
	}

	return New(w, client)
}

func TestCreateIdAssignsSequentialAccounts(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	aliceDID, err := m.CreateId(ctx, "alice", "peerbit")
	if err != nil {
		t.Fatalf("CreateId(alice): %v", err)
	}
	if m.Wallet.Counter != 1 {
		t.Errorf("Counter = %d, want 1", m.Wallet.Counter)
	}
	if m.Wallet.Current != "alice" {
		t.Errorf("Current = %q, want alice", m.Wallet.Current)
	}

	bobDID, err := m.CreateId(ctx, "bob", "peerbit")
	if err != nil {
		t.Fatalf("CreateId(bob): %v", err)
	}
	if aliceDID == bobDID {
		t.Error("expected distinct DIDs for distinct identities")
	}
	if m.Wallet.Ids["alice"].Account == m.Wallet.Ids["bob"].Account {
		t.Error("expected distinct accounts for distinct identities")
	}
}

func TestCreateIdRejectsDuplicateName(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if _, err := m.CreateId(ctx, "alice", "peerbit"); err != nil {
		t.Fatalf("first CreateId: %v", err)
	}
	if _, err := m.CreateId(ctx, "alice", "peerbit"); err == nil {
		t.Fatal("expected NameTaken on duplicate createId")
	}
}

func TestUseIdListIdsRemoveId(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if _, err := m.CreateId(ctx, "alice", "peerbit"); err != nil {
		t.Fatalf("CreateId(alice): %v", err)
	}
	if _, err := m.CreateId(ctx, "bob", "peerbit"); err != nil {
		t.Fatalf("CreateId(bob): %v", err)
	}
	if m.Wallet.Current != "bob" {
		t.Fatalf("Current = %q, want bob", m.Wallet.Current)
	}

	if err := m.UseId("alice"); err != nil {
		t.Fatalf("UseId(alice): %v", err)
	}
	if m.Wallet.Current != "alice" {
		t.Errorf("Current = %q, want alice", m.Wallet.Current)
	}
	if err := m.UseId("carol"); err == nil {
		t.Fatal("expected NoSuchId for an unknown identity")
	}

	entries := m.ListIds()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	if err := m.RemoveId("bob"); err != nil {
		t.Fatalf("RemoveId(bob): %v", err)
	}
	if _, ok := m.Wallet.Ids["bob"]; ok {
		t.Error("expected bob to be removed from local state")
	}
	if err := m.RemoveId("bob"); err == nil {
		t.Fatal("expected NoSuchId removing an already-removed identity")
	}
}

func TestRotateKeysAdvancesIndex(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	subjectDID, err := m.CreateId(ctx, "alice", "peerbit")
	if err != nil {
		t.Fatalf("CreateId: %v", err)
	}

	if err := m.RotateKeys(ctx); err != nil {
		t.Fatalf("RotateKeys: %v", err)
	}
	if m.Wallet.Ids["alice"].Index != 1 {
		t.Errorf("Index = %d, want 1", m.Wallet.Ids["alice"].Index)
	}
	if m.Wallet.Ids["alice"].DID != subjectDID {
		t.Error("rotation must not change the identity's DID")
	}

	resolved, err := m.Registry.ResolveDid(ctx, subjectDID)
	if err != nil {
		t.Fatalf("ResolveDid: %v", err)
	}
	if len(resolved.DidDocument.PublicKeys) != 1 {
		t.Fatalf("got %d public keys after rotation, want 1", len(resolved.DidDocument.PublicKeys))
	}
}

func TestRotateKeysRequiresCurrent(t *testing.T) {
	m := newTestManager(t)
	if err := m.RotateKeys(context.Background()); err == nil {
		t.Fatal("expected NoCurrentId with no identity selected")
	}
}

func TestBackupWalletRoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if _, err := m.CreateId(ctx, "alice", "peerbit"); err != nil {
		t.Fatalf("CreateId: %v", err)
	}
	if _, err := m.CreateId(ctx, "bob", "peerbit"); err != nil {
		t.Fatalf("CreateId: %v", err)
	}

	backupDID, err := m.BackupWallet(ctx)
	if err != nil {
		t.Fatalf("BackupWallet: %v", err)
	}

	// Simulate a fresh wallet from the same mnemonic recovering state.
	mnemonic, err := m.Wallet.DecryptMnemonic()
	if err != nil {
		t.Fatalf("DecryptMnemonic: %v", err)
	}
	fresh, err := wallet.New(filepath.Join(t.TempDir(), "recovered.json"), mnemonic)
	if err != nil {
		t.Fatalf("wallet.New: %v", err)
	}
	recoverer := New(fresh, m.Registry)

	if err := recoverer.RecoverWallet(ctx, backupDID); err != nil {
		t.Fatalf("RecoverWallet: %v", err)
	}
	if recoverer.Wallet.Counter != m.Wallet.Counter {
		t.Errorf("Counter = %d, want %d", recoverer.Wallet.Counter, m.Wallet.Counter)
	}
	if len(recoverer.Wallet.Ids) != 2 {
		t.Errorf("got %d recovered identities, want 2", len(recoverer.Wallet.Ids))
	}
}

func TestRecoverWalletFailsWithDifferentSeed(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	if _, err := m.CreateId(ctx, "alice", "peerbit"); err != nil {
		t.Fatalf("CreateId: %v", err)
	}
	backupDID, err := m.BackupWallet(ctx)
	if err != nil {
		t.Fatalf("BackupWallet: %v", err)
	}

	other, err := wallet.New(filepath.Join(t.TempDir(), "other.json"), "")
	if err != nil {
		t.Fatalf("wallet.New: %v", err)
	}
	recoverer := New(other, m.Registry)
	if err := recoverer.RecoverWallet(ctx, backupDID); err == nil {
		t.Fatal("expected CannotRecoverId with an unrelated mnemonic")
	}
}

func TestBackupIdAndRecoverId(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	controllerDID, err := m.CreateId(ctx, "alice", "peerbit")
	if err != nil {
		t.Fatalf("CreateId: %v", err)
	}
	m.Wallet.Ids["alice"].Owned = append(m.Wallet.Ids["alice"].Owned, "did:mdip:sometoken")

	if _, err := m.BackupId(ctx); err != nil {
		t.Fatalf("BackupId: %v", err)
	}

	mnemonic, err := m.Wallet.DecryptMnemonic()
	if err != nil {
		t.Fatalf("DecryptMnemonic: %v", err)
	}
	fresh, err := wallet.New(filepath.Join(t.TempDir(), "recovered.json"), mnemonic)
	if err != nil {
		t.Fatalf("wallet.New: %v", err)
	}
	recoverer := New(fresh, m.Registry)

	name, err := recoverer.RecoverId(ctx, controllerDID)
	if err != nil {
		t.Fatalf("RecoverId: %v", err)
	}
	if name != "alice" {
		t.Errorf("recovered name = %q, want alice", name)
	}
	recovered, ok := recoverer.Wallet.Ids["alice"]
	if !ok {
		t.Fatal("expected alice to be present after recovery")
	}
	if len(recovered.Owned) != 1 || recovered.Owned[0] != "did:mdip:sometoken" {
		t.Errorf("owned set did not survive backup/recover: %v", recovered.Owned)
	}
}
