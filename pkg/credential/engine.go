package credential

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openmdip/keymaster/pkg/crypto"
	"github.com/openmdip/keymaster/pkg/did"
	"github.com/openmdip/keymaster/pkg/identity"
	"github.com/openmdip/keymaster/pkg/keys"
	"github.com/openmdip/keymaster/pkg/registry"
	"github.com/openmdip/keymaster/pkg/signing"
	"github.com/openmdip/keymaster/pkg/wallet"
	"github.com/openmdip/keymaster/pkg/walleterr"
)

// Engine implements the credential and messaging pipeline over an identity
// manager and a registry client.
type Engine struct {
	Identity *identity.Manager
	Registry *registry.Client
}

// New builds an Engine over an already-constructed identity manager and
// registry client.
func New(idm *identity.Manager, r *registry.Client) *Engine {
	return &Engine{Identity: idm, Registry: r}
}

func decodeInto(data interface{}, target interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to remarshal payload: %w", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}

func publicKeyFromDocument(doc *did.Document) (*ecdsa.PublicKey, error) {
	if doc == nil {
		return nil, fmt.Errorf("document has been deactivated or does not exist")
	}
	for _, pk := range doc.PublicKeys {
		if pk.PublicKeyJwk != nil && pk.PublicKeyJwk.Kty == "EC" && pk.PublicKeyJwk.Crv == "secp256k1" {
			return keys.JWKToPublicKey(pk.PublicKeyJwk)
		}
	}
	return nil, fmt.Errorf("document has no secp256k1 verification key")
}

// resolvePublicKey resolves target's current primary signing/encryption
// public key.
func (e *Engine) resolvePublicKey(ctx context.Context, target string) (*ecdsa.PublicKey, error) {
	resolved, err := e.Registry.ResolveDid(ctx, target)
	if err != nil {
		return nil, err
	}
	return publicKeyFromDocument(resolved.DidDocument)
}

// candidatePublicKeys returns target's current public key followed by its
// historical ones (newest first), for the verify/decrypt historical
// fallback described in spec.md §4.E and §4.H. History comes from two
// sources: the gatekeeper's own resolve response, when it chooses to
// expose one, and this client's local operation journal, which only ever
// has entries for DIDs this process itself has submitted operations for.
func (e *Engine) candidatePublicKeys(ctx context.Context, target string) ([]*ecdsa.PublicKey, error) {
	resolved, err := e.Registry.ResolveDid(ctx, target)
	if err != nil {
		return nil, err
	}
	current, err := publicKeyFromDocument(resolved.DidDocument)
	if err != nil {
		return nil, err
	}
	pubs := []*ecdsa.PublicKey{current}

	appendHistorical := func(jwkRaws []interface{}) {
		for _, jwkRaw := range jwkRaws {
			var jwk keys.JWK
			if err := decodeInto(jwkRaw, &jwk); err != nil {
				continue
			}
			if jwk.Kty != "EC" || jwk.Crv != "secp256k1" {
				continue
			}
			pub, err := keys.JWKToPublicKey(&jwk)
			if err != nil {
				continue
			}
			pubs = append(pubs, pub)
		}
	}
	appendHistorical(resolved.DidDocumentMetadata.PublicKeyHistory)
	appendHistorical(e.Registry.HistoricalPublicKeys(target))
	return pubs, nil
}

// Encrypt seals plaintext for receiverDID: a copy the sender can decrypt
// (self-ECDH) and a copy the receiver can decrypt, plus a plaintext hash
// both sides check on decryption. Returns the resulting envelope's DID.
func (e *Engine) Encrypt(ctx context.Context, plaintext []byte, receiverDID string) (string, error) {
	name, id, err := e.Identity.CurrentIdentity()
	if err != nil {
		return "", err
	}
	senderPriv, err := e.Identity.DeriveKeyAt(id, id.Index)
	if err != nil {
		return "", err
	}
	receiverPub, err := e.resolvePublicKey(ctx, receiverDID)
	if err != nil {
		return "", err
	}

	cipherReceiver, err := crypto.EncryptMessage(receiverPub, senderPriv, plaintext)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt receiver copy: %w", err)
	}
	cipherSender, err := crypto.EncryptMessage(&senderPriv.PublicKey, senderPriv, plaintext)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt sender copy: %w", err)
	}

	envelope := Envelope{
		Sender:         id.DID,
		CipherHash:     crypto.HashMessage(string(plaintext)),
		CipherSender:   cipherSender,
		CipherReceiver: cipherReceiver,
	}

	op := did.NewCreateDataOperation(envelope, e.Registry.RegistryName())
	signed, err := did.SignOperation(op, senderPriv, id.DID)
	if err != nil {
		return "", fmt.Errorf("failed to sign envelope operation: %w", err)
	}
	envelopeDID, err := e.Registry.CreateDid(ctx, signed)
	if err != nil {
		return "", err
	}

	id.Owned = append(id.Owned, envelopeDID)
	e.Identity.Wallet.Ids[name] = id
	if err := e.Identity.Wallet.Save(); err != nil {
		return "", err
	}
	return envelopeDID, nil
}

// Decrypt resolves an envelope DID, determines whether current is the
// envelope's sender or its receiver, and walks key history until a copy
// decrypts, verifying the recovered plaintext against the envelope's hash.
func (e *Engine) Decrypt(ctx context.Context, envelopeDID string) ([]byte, error) {
	_, id, err := e.Identity.CurrentIdentity()
	if err != nil {
		return nil, err
	}

	resolved, err := e.Registry.ResolveDid(ctx, envelopeDID)
	if err != nil {
		return nil, err
	}
	var envelope Envelope
	if err := decodeInto(resolved.DidDocumentMetadata.Data, &envelope); err != nil {
		return nil, fmt.Errorf("data-DID is not an envelope: %w", err)
	}

	plaintext, err := e.decryptEnvelope(ctx, id, envelope)
	if err != nil {
		return nil, err
	}
	if crypto.HashMessage(string(plaintext)) != envelope.CipherHash {
		return nil, walleterr.TamperedCiphertext()
	}
	return plaintext, nil
}

// decryptEnvelope picks the sender-side or receiver-side ciphertext by
// matching envelope.Sender against current's DID, then walks the relevant
// key history to recover it.
func (e *Engine) decryptEnvelope(ctx context.Context, id *wallet.Identity, envelope Envelope) ([]byte, error) {
	if envelope.Sender == id.DID {
		// Self-ECDH: the same identity's own keypair at a matching
		// historical index reproduces the shared secret regardless of
		// what the counterparty has done since.
		for idx := int64(id.Index); idx >= 0; idx-- {
			priv, err := e.Identity.DeriveKeyAt(id, uint32(idx))
			if err != nil {
				continue
			}
			plaintext, err := crypto.DecryptMessage(&priv.PublicKey, priv, envelope.CipherSender)
			if err == nil {
				return plaintext, nil
			}
		}
		return nil, walleterr.DecryptionFailed(fmt.Errorf("exhausted key history for account %d", id.Account))
	}

	counterpartyPubs, err := e.candidatePublicKeys(ctx, envelope.Sender)
	if err != nil {
		return nil, err
	}
	for _, pub := range counterpartyPubs {
		if plaintext, err := e.Identity.DecryptHistorical(id, pub, envelope.CipherReceiver); err == nil {
			return plaintext, nil
		}
	}
	return nil, walleterr.DecryptionFailed(fmt.Errorf("exhausted key history for account %d", id.Account))
}

// EncryptJSON canonicalizes v before sealing it as an envelope.
func (e *Engine) EncryptJSON(ctx context.Context, v interface{}, receiverDID string) (string, error) {
	canonical, err := crypto.Canonicalize(v)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize payload: %w", err)
	}
	return e.Encrypt(ctx, []byte(canonical), receiverDID)
}

// DecryptJSON decrypts an envelope and unmarshals its plaintext into out.
func (e *Engine) DecryptJSON(ctx context.Context, envelopeDID string, out interface{}) error {
	plaintext, err := e.Decrypt(ctx, envelopeDID)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plaintext, out); err != nil {
		return fmt.Errorf("failed to parse decrypted payload: %w", err)
	}
	return nil
}

// AddSignature strips any existing signature from obj, canonicalizes and
// hashes the residue, signs it with current's key, and returns obj
// remarshaled with the new signature attached.
func (e *Engine) AddSignature(obj interface{}) (json.RawMessage, error) {
	if obj == nil {
		return nil, walleterr.InvalidInput()
	}
	_, id, err := e.Identity.CurrentIdentity()
	if err != nil {
		return nil, err
	}

	fields, err := toFieldMap(obj)
	if err != nil {
		return nil, err
	}
	delete(fields, "signature")

	canonical, err := crypto.Canonicalize(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize object: %w", err)
	}
	priv, err := e.Identity.DeriveKeyAt(id, id.Index)
	if err != nil {
		return nil, err
	}
	signer, err := signing.NewSigner(signing.AlgES256K, priv)
	if err != nil {
		return nil, fmt.Errorf("failed to build signer: %w", err)
	}
	sigHex, err := signer.Sign([]byte(canonical))
	if err != nil {
		return nil, fmt.Errorf("failed to sign object: %w", err)
	}

	fields["signature"] = did.Signature{
		Signer: id.DID,
		Signed: time.Now().UTC().Format(time.RFC3339),
		Hash:   crypto.HashMessage(canonical),
		Value:  sigHex,
	}
	return json.Marshal(fields)
}

// VerifySignature reports whether obj carries a valid signature: the
// detached hash matches the residue's canonical form, and the signature
// verifies against the signer's current or, failing that, a historical
// public key.
func (e *Engine) VerifySignature(ctx context.Context, obj interface{}) bool {
	if obj == nil {
		return false
	}
	fields, err := toFieldMap(obj)
	if err != nil {
		return false
	}
	sigRaw, ok := fields["signature"]
	if !ok || sigRaw == nil {
		return false
	}
	var sig did.Signature
	if err := decodeInto(sigRaw, &sig); err != nil || sig.Signer == "" {
		return false
	}
	delete(fields, "signature")

	canonical, err := crypto.Canonicalize(fields)
	if err != nil || crypto.HashMessage(canonical) != sig.Hash {
		return false
	}

	pubs, err := e.candidatePublicKeys(ctx, sig.Signer)
	if err != nil {
		return false
	}
	for _, pub := range pubs {
		verifier, err := signing.NewVerifier(signing.AlgES256K, pub)
		if err != nil {
			continue
		}
		if verifier.Verify(sig.Value, []byte(canonical)) == nil {
			return true
		}
	}
	return false
}

// toFieldMap round-trips obj through JSON into a generic field map, the
// shape addSignature/verifySignature canonicalize and hash.
func toFieldMap(obj interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal object: %w", err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode object: %w", err)
	}
	return fields, nil
}
