// Package credential implements the credential and messaging engine:
// encrypted envelopes, signed verifiable credentials, and the
// challenge/response presentation protocol, all anchored as data-DIDs.
package credential

import "github.com/openmdip/keymaster/pkg/did"

// Envelope is the payload anchored by encrypt: the same plaintext sealed
// twice, once decryptable by the sender and once by the receiver, plus a
// hash either side can check the recovered plaintext against.
type Envelope struct {
	Sender         string `json:"sender"`
	CipherHash     string `json:"cipher_hash"`
	CipherSender   string `json:"cipher_sender"`
	CipherReceiver string `json:"cipher_receiver"`
}

// Subject identifies a verifiable credential's holder.
type Subject struct {
	ID string `json:"id"`
}

// Credential is a verifiable credential, signed once attestCredential runs.
type Credential struct {
	Context           []string       `json:"@context,omitempty"`
	Type              []string       `json:"type,omitempty"`
	Issuer            string         `json:"issuer"`
	CredentialSubject Subject        `json:"credentialSubject"`
	Credential        interface{}    `json:"credential"`
	CredentialSchema  string         `json:"credentialSchema,omitempty"`
	ValidFrom         string         `json:"validFrom"`
	ValidUntil        string         `json:"validUntil,omitempty"`
	Signature         *did.Signature `json:"signature,omitempty"`
}

// CredentialRequirement is one clause of a Challenge: a schema DID and the
// set of issuer DIDs a satisfying credential must carry.
type CredentialRequirement struct {
	Schema    string   `json:"schema"`
	Attestors []string `json:"attestors"`
}

// Challenge lists what a verifier will accept, before it's bound to a
// specific subject.
type Challenge struct {
	Credentials []CredentialRequirement `json:"credentials"`
}

// BoundChallenge addresses a Challenge to a subject with a validity window.
type BoundChallenge struct {
	Challenge  Challenge      `json:"challenge"`
	From       string         `json:"from"`
	To         string         `json:"to"`
	ValidFrom  string         `json:"validFrom"`
	ValidUntil string         `json:"validUntil"`
	Signature  *did.Signature `json:"signature,omitempty"`
}

// PresentationItem pairs an attestation DID with a per-verifier
// re-encrypted copy of it.
type PresentationItem struct {
	VC string `json:"vc"`
	VP string `json:"vp"`
}

// Presentation is a subject's response to a bound challenge.
type Presentation struct {
	Challenge   string             `json:"challenge"`
	Credentials []PresentationItem `json:"credentials"`
}
