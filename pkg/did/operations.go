package did

import (
	"fmt"

	"github.com/openmdip/keymaster/pkg/keys"
)

// Operation type constants for the registry's linear per-DID history.
const (
	OperationTypeCreate     = "create"
	OperationTypeUpdate     = "update"
	OperationTypeDeactivate = "deactivate"
)

// ProtocolVersion is the mdip.version carried by every operation this
// module submits.
const ProtocolVersion = 1

// MDIP carries the protocol metadata every operation is tagged with.
type MDIP struct {
	Version  int    `json:"version"`
	Type     string `json:"type"`
	Registry string `json:"registry"`
}

// Signature binds a canonicalized, hashed object to the key that signed
// it. It is the same shape used for verifiable credentials, challenges
// and presentations (spec §3, §4.E addSignature).
type Signature struct {
	Signer string `json:"signer"`
	Signed string `json:"signed"`
	Hash   string `json:"hash"`
	Value  string `json:"value"`
}

// Operation is the flat request submitted to the registry for every
// create/update/deactivate call: {op, did?, mdip, publicJwk?|doc?|data?,
// prev?, signature}. An "agent" operation carries PublicJwk (create) or
// Doc (update); an "asset" operation (a data-DID: credential, envelope,
// challenge, presentation) carries Data, an arbitrary JSON payload
// recorded in the resolved document's didDocumentMetadata.data.
type Operation struct {
	Op        string      `json:"op"`
	DID       string      `json:"did,omitempty"`
	MDIP      MDIP        `json:"mdip"`
	PublicJwk *keys.JWK   `json:"publicJwk,omitempty"`
	Doc       *Document   `json:"doc,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Manifest  interface{} `json:"manifest,omitempty"`
	Prev      string      `json:"prev,omitempty"`
	Signature *Signature  `json:"signature,omitempty"`
}

// unsigned returns a shallow copy of the operation with its signature
// stripped, the form that gets canonicalized and hashed before signing.
func (o Operation) unsigned() Operation {
	o.Signature = nil
	return o
}

// NewCreateOperation builds an unsigned create-agent operation anchoring
// a fresh public key as a DID's initial controller key.
func NewCreateOperation(publicJwk *keys.JWK, registry string) Operation {
	return Operation{
		Op:        OperationTypeCreate,
		MDIP:      MDIP{Version: ProtocolVersion, Type: "agent", Registry: registry},
		PublicJwk: publicJwk,
	}
}

// NewCreateDataOperation builds an unsigned create operation anchoring a
// data-DID (credential, envelope, challenge, presentation) carrying an
// arbitrary JSON payload.
func NewCreateDataOperation(payload interface{}, registry string) Operation {
	return Operation{
		Op:   OperationTypeCreate,
		MDIP: MDIP{Version: ProtocolVersion, Type: "asset", Registry: registry},
		Data: payload,
	}
}

// NewCreateAgentOperation builds an unsigned create-agent operation
// anchoring a full DID document, used when an identity carries more than
// one verification method (e.g. a secondary attestation key) and a bare
// publicJwk create can't express that.
func NewCreateAgentOperation(doc *Document, registry string) Operation {
	return Operation{
		Op:   OperationTypeCreate,
		MDIP: MDIP{Version: ProtocolVersion, Type: "agent", Registry: registry},
		Doc:  doc,
	}
}

// NewUpdateOperation builds an unsigned update operation: a full document
// replacement, chained onto prev, matching spec §4.C's linear-history
// requirement.
func NewUpdateOperation(did string, doc *Document, prev, registry string) Operation {
	return Operation{
		Op:   OperationTypeUpdate,
		DID:  did,
		MDIP: MDIP{Version: ProtocolVersion, Type: "agent", Registry: registry},
		Doc:  doc,
		Prev: prev,
	}
}

// NewUpdateDataOperation builds an unsigned update operation replacing a
// data-DID's payload, used by identity.Manager.BackupWallet to update an
// already-anchored wallet backup in place rather than anchoring a fresh
// one on every call.
func NewUpdateDataOperation(did string, payload interface{}, prev, registry string) Operation {
	return Operation{
		Op:   OperationTypeUpdate,
		DID:  did,
		MDIP: MDIP{Version: ProtocolVersion, Type: "asset", Registry: registry},
		Data: payload,
		Prev: prev,
	}
}

// NewUpdateManifestOperation builds an unsigned update operation that only
// replaces an identity's published-credential manifest
// (didDocumentMetadata.manifest), leaving its document untouched. Passing
// an empty map clears the manifest, which is what unpublishCredential
// sends when the last published credential is removed; a nil manifest is
// omitted from the operation altogether.
func NewUpdateManifestOperation(did string, manifest interface{}, prev, registry string) Operation {
	return Operation{
		Op:       OperationTypeUpdate,
		DID:      did,
		MDIP:     MDIP{Version: ProtocolVersion, Type: "agent", Registry: registry},
		Manifest: manifest,
		Prev:     prev,
	}
}

// NewDeactivateOperation builds an unsigned deactivate operation.
func NewDeactivateOperation(did, prev, registry string) Operation {
	return Operation{
		Op:   OperationTypeDeactivate,
		DID:  did,
		MDIP: MDIP{Version: ProtocolVersion, Type: "agent", Registry: registry},
		Prev: prev,
	}
}

// Validate performs the structural checks the registry itself would
// reject an operation for, ahead of a network round trip.
func (o Operation) Validate() error {
	switch o.Op {
	case OperationTypeCreate:
		if o.PublicJwk == nil && o.Doc == nil && o.Data == nil {
			return fmt.Errorf("create operation requires publicJwk, doc, or data")
		}
	case OperationTypeUpdate:
		if o.DID == "" {
			return fmt.Errorf("update operation requires did")
		}
	case OperationTypeDeactivate:
		if o.DID == "" {
			return fmt.Errorf("deactivate operation requires did")
		}
	default:
		return fmt.Errorf("unsupported operation type: %s", o.Op)
	}
	return nil
}
