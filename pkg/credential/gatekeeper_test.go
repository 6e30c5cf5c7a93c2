package credential

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
	"github.com/openmdip/keymaster/pkg/identity"
	"github.com/openmdip/keymaster/pkg/registry"
	"github.com/openmdip/keymaster/pkg/wallet"
)

// fakeGatekeeper is an in-memory registry server exercising the same
// create/resolve/update/deactivate surface as pkg/identity's, extended to
// carry a manifest-only update (op.Manifest, no op.Doc/op.Data) and to
// record every historical key a DID has carried.
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
			if existing.DidDocument != nil {
				for _, pk := range existing.DidDocument.PublicKeys {
					if pk.PublicKeyJwk == nil {
						continue
					}
					var jwkMap map[string]interface{}
					raw, err := json.Marshal(pk.PublicKeyJwk)
					if err == nil && json.Unmarshal(raw, &jwkMap) == nil {
						existing.DidDocumentMetadata.PublicKeyHistory = append(
							[]interface{}{jwkMap}, existing.DidDocumentMetadata.PublicKeyHistory...)
					}
				}
			}
			op.Doc.ID = op.DID
			existing.DidDocument = op.Doc
		}
		if op.Data != nil {
			existing.DidDocumentMetadata.Data = op.Data
		}
		if op.Manifest != nil {
			var manifest map[string]interface{}
			raw, _ := json.Marshal(op.Manifest)
			json.Unmarshal(raw, &manifest)
			existing.DidDocumentMetadata.Manifest = manifest
		}
		existing.DidDocumentMetadata.LastOperationHash = op.Signature.Hash
		json.NewEncoder(w).Encode(map[string]string{"did": op.DID})

	case did.OperationTypeDeactivate:
		existing, ok := g.docs[op.DID]
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		existing.DidDocumentMetadata.Deactivated = true
		existing.DidDocumentMetadata.LastOperationHash = op.Signature.Hash
		json.NewEncoder(w).Encode(map[string]string{"did": op.DID})

	default:
		http.Error(w, "unsupported op", http.StatusBadRequest)
	}
}

// testParty bundles an identity manager and credential engine sharing one
// wallet and gatekeeper connection, along with the identity's name and DID.
type testParty struct {
	Manager *identity.Manager
	Engine  *Engine
	Name    string
	DID     string
}

func newTestPeers(t *testing.T, names ...string) (*fakeGatekeeper, map[string]*testParty) {
	t.Helper()
	ctx := context.Background()
	gk := newFakeGatekeeper()
	server := httptest.NewServer(gk.handler())
	t.Cleanup(server.Close)

	parties := make(map[string]*testParty, len(names))
	for _, name := range names {
		client, err := registry.NewClient(registry.Config{URL: server.URL, Name: "peerbit", TimeoutSeconds: 5})
		if err != nil {
			t.Fatalf("registry.NewClient: %v", err)
		}
		t.Cleanup(func() { client.Close() })

		w, err := wallet.New(filepath.Join(t.TempDir(), name+".json"), "")
		if err != nil {
			t.Fatalf("wallet.New: %v", err)
		}

		mgr := identity.New(w, client)
		subjectDID, err := mgr.CreateId(ctx, name, "peerbit")
		if err != nil {
			t.Fatalf("CreateId(%s): %v", name, err)
		}
		parties[name] = &testParty{Manager: mgr, Engine: New(mgr, client), Name: name, DID: subjectDID}
	}
	return gk, parties
}
