package credential

import (
	"context"
	"encoding/hex"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/openmdip/keymaster/pkg/crypto"
	"github.com/openmdip/keymaster/pkg/did"
	"github.com/openmdip/keymaster/pkg/keys"
	"github.com/openmdip/keymaster/pkg/schema"
	"github.com/openmdip/keymaster/pkg/signing"
	"github.com/openmdip/keymaster/pkg/wallet"
	"github.com/openmdip/keymaster/pkg/walleterr"
)

const credentialContext = "https://www.w3.org/2018/credentials/v1"

// CreateCredential anchors a JSON Schema as a data-DID owned by the
// current identity, returning the schema's DID.
func (e *Engine) CreateCredential(ctx context.Context, jsonSchema map[string]interface{}) (string, error) {
	name, id, err := e.Identity.CurrentIdentity()
	if err != nil {
		return "", err
	}
	priv, err := e.Identity.DeriveKeyAt(id, id.Index)
	if err != nil {
		return "", err
	}

	op := did.NewCreateDataOperation(jsonSchema, e.Registry.RegistryName())
	signed, err := did.SignOperation(op, priv, id.DID)
	if err != nil {
		return "", fmt.Errorf("failed to sign schema operation: %w", err)
	}
	schemaDID, err := e.Registry.CreateDid(ctx, signed)
	if err != nil {
		return "", err
	}

	id.Owned = append(id.Owned, schemaDID)
	e.Identity.Wallet.Ids[name] = id
	if err := e.Identity.Wallet.Save(); err != nil {
		return "", err
	}
	return schemaDID, nil
}

// BindCredential resolves a schema DID, synthesizes the simplest instance
// conforming to it, and returns an unsigned credential shaped for
// subjectDID.
func (e *Engine) BindCredential(ctx context.Context, schemaDID, subjectDID string) (*Credential, error) {
	_, id, err := e.Identity.CurrentIdentity()
	if err != nil {
		return nil, err
	}

	resolved, err := e.Registry.ResolveDid(ctx, schemaDID)
	if err != nil {
		return nil, err
	}
	var jsonSchema map[string]interface{}
	if err := decodeInto(resolved.DidDocumentMetadata.Data, &jsonSchema); err != nil {
		return nil, fmt.Errorf("data-DID is not a JSON schema: %w", err)
	}

	sample, err := schema.Sample(jsonSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize sample credential data: %w", err)
	}

	return &Credential{
		Context:           []string{credentialContext},
		Type:              []string{"VerifiableCredential"},
		Issuer:            id.DID,
		CredentialSubject: Subject{ID: subjectDID},
		Credential:        sample,
		CredentialSchema:  schemaDID,
		ValidFrom:         time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// AttestCredential signs a bound credential, encrypts it to its subject,
// records the resulting envelope DID in current's owned set, and returns
// that DID.
func (e *Engine) AttestCredential(ctx context.Context, vc *Credential) (string, error) {
	name, id, err := e.Identity.CurrentIdentity()
	if err != nil {
		return "", err
	}
	if vc.Issuer != id.DID {
		return "", walleterr.InvalidVC()
	}

	signed, err := e.AddSignature(vc)
	if err != nil {
		return "", err
	}

	envelopeDID, err := e.EncryptJSON(ctx, signed, vc.CredentialSubject.ID)
	if err != nil {
		return "", err
	}

	// EncryptJSON may already have recorded the envelope on this same
	// identity record; keep owned free of duplicates.
	if !slices.Contains(id.Owned, envelopeDID) {
		id.Owned = append(id.Owned, envelopeDID)
	}
	e.Identity.Wallet.Ids[name] = id
	if err := e.Identity.Wallet.Save(); err != nil {
		return "", err
	}
	return envelopeDID, nil
}

// AcceptCredential decrypts an attestation envelope, verifies its
// signature, and, if it is addressed to current, records it in current's
// held set.
func (e *Engine) AcceptCredential(ctx context.Context, vcDID string) (bool, error) {
	name, id, err := e.Identity.CurrentIdentity()
	if err != nil {
		return false, err
	}

	var vc Credential
	if err := e.DecryptJSON(ctx, vcDID, &vc); err != nil {
		return false, err
	}
	if !e.VerifySignature(ctx, vc) {
		return false, nil
	}
	if vc.CredentialSubject.ID != id.DID {
		return false, nil
	}

	id.Held = append(id.Held, vcDID)
	e.Identity.Wallet.Ids[name] = id
	if err := e.Identity.Wallet.Save(); err != nil {
		return false, err
	}
	return true, nil
}

// RevokeCredential deactivates an attestation envelope the current
// identity issued. Returns false without error if it is already
// deactivated or current is not its issuer.
func (e *Engine) RevokeCredential(ctx context.Context, vcDID string) (bool, error) {
	_, id, err := e.Identity.CurrentIdentity()
	if err != nil {
		return false, err
	}

	var vc Credential
	if err := e.DecryptJSON(ctx, vcDID, &vc); err != nil {
		return false, err
	}
	if vc.Issuer != id.DID {
		return false, nil
	}

	resolved, err := e.Registry.ResolveDid(ctx, vcDID)
	if err != nil {
		return false, err
	}
	if resolved.DidDocumentMetadata.Deactivated {
		return false, nil
	}

	priv, err := e.Identity.DeriveKeyAt(id, id.Index)
	if err != nil {
		return false, err
	}
	prev, err := e.Registry.LastOperationHash(ctx, vcDID)
	if err != nil {
		return false, err
	}
	op := did.NewDeactivateOperation(vcDID, prev, e.Registry.RegistryName())
	signed, err := did.SignOperation(op, priv, id.DID)
	if err != nil {
		return false, fmt.Errorf("failed to sign deactivate operation: %w", err)
	}
	if err := e.Registry.DeleteDid(ctx, signed); err != nil {
		return false, err
	}
	return true, nil
}

// PublishCredential decrypts an attestation envelope the current identity
// holds and writes the (optionally redacted) credential into its own
// DID-document manifest, recomputing the manifest's BLS aggregate proof.
func (e *Engine) PublishCredential(ctx context.Context, vcDID string, reveal bool) error {
	_, id, err := e.Identity.CurrentIdentity()
	if err != nil {
		return err
	}

	var vc Credential
	if err := e.DecryptJSON(ctx, vcDID, &vc); err != nil {
		return err
	}
	if !reveal {
		vc.Credential = nil
	}

	resolved, err := e.Registry.ResolveDid(ctx, id.DID)
	if err != nil {
		return err
	}
	manifest := manifestMapFrom(resolved.DidDocumentMetadata.Manifest)
	manifest[vcDID] = vc

	if err := e.rebuildManifestProof(id, manifest); err != nil {
		return err
	}
	return e.submitManifestUpdate(ctx, id, manifest)
}

// UnpublishCredential removes vcDID from current's manifest and
// recomputes the aggregate proof over what remains.
func (e *Engine) UnpublishCredential(ctx context.Context, vcDID string) error {
	_, id, err := e.Identity.CurrentIdentity()
	if err != nil {
		return err
	}

	resolved, err := e.Registry.ResolveDid(ctx, id.DID)
	if err != nil {
		return err
	}
	manifest := manifestMapFrom(resolved.DidDocumentMetadata.Manifest)
	delete(manifest, vcDID)
	delete(manifest, "proof")

	if len(manifest) > 0 {
		if err := e.rebuildManifestProof(id, manifest); err != nil {
			return err
		}
	}
	return e.submitManifestUpdate(ctx, id, manifest)
}

// VerifyManifestProof recomputes the canonical-hash message for every
// published credential in manifest and checks the stored BLS aggregate
// proof against ownerDID's current attestation key, giving a third party
// a single aggregate-verify call in place of one signature check per
// published credential.
func (e *Engine) VerifyManifestProof(ctx context.Context, ownerDID string, manifest map[string]interface{}) (bool, error) {
	proofHex, _ := manifest["proof"].(string)
	if proofHex == "" {
		return false, nil
	}
	proof, err := hex.DecodeString(proofHex)
	if err != nil {
		return false, fmt.Errorf("invalid manifest proof encoding: %w", err)
	}

	entries := make([]string, 0, len(manifest))
	for k := range manifest {
		if k == "proof" {
			continue
		}
		entries = append(entries, k)
	}
	sort.Strings(entries)
	if len(entries) == 0 {
		return false, nil
	}

	resolved, err := e.Registry.ResolveDid(ctx, ownerDID)
	if err != nil {
		return false, err
	}
	attestationJWK, err := attestationJWKFromDocument(resolved.DidDocument)
	if err != nil {
		return false, err
	}
	verifier, err := signing.NewVerifierFromJWK(attestationJWK)
	if err != nil {
		return false, err
	}
	blsVerifier, ok := verifier.(*signing.BLSVerifier)
	if !ok {
		return false, fmt.Errorf("owner's attestation key is not a BLS key")
	}

	messages := make([][]byte, 0, len(entries))
	for _, k := range entries {
		canonical, err := crypto.Canonicalize(manifest[k])
		if err != nil {
			return false, fmt.Errorf("failed to canonicalize manifest entry %q: %w", k, err)
		}
		messages = append(messages, crypto.SHA256([]byte(canonical)))
	}

	return blsVerifier.VerifyAggregate(messages, proof) == nil, nil
}

// attestationJWKFromDocument finds a document's BLS12-381 attestation key,
// round-trips it through keys.JWKToBLSPublicKey/BLSPublicKeyToJWK to
// validate it actually decodes to a BLS point rather than trusting the
// document's raw fields, and returns it in the generic JWK-map shape
// pkg/signing expects.
func attestationJWKFromDocument(doc *did.Document) (map[string]interface{}, error) {
	if doc == nil {
		return nil, fmt.Errorf("document has been deactivated or does not exist")
	}
	for _, pk := range doc.PublicKeys {
		if pk.PublicKeyJwk == nil || pk.PublicKeyJwk.Kty != "OKP" || pk.PublicKeyJwk.Crv != "BLS12-381-G1" {
			continue
		}
		pub, err := keys.JWKToBLSPublicKey(pk.PublicKeyJwk)
		if err != nil {
			return nil, fmt.Errorf("invalid attestation key: %w", err)
		}
		jwk := keys.BLSPublicKeyToJWK(pub, pk.PublicKeyJwk.ID)
		return map[string]interface{}{
			"kty": jwk.Kty,
			"crv": jwk.Crv,
			"x":   jwk.X,
		}, nil
	}
	return nil, fmt.Errorf("document has no BLS attestation key")
}

func manifestMapFrom(raw map[string]interface{}) map[string]interface{} {
	if raw == nil {
		return map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	return out
}

// rebuildManifestProof recomputes the BLS aggregate signature over the
// canonical-form SHA-256 hash of every published credential (in
// deterministic DID order) and stores it under manifest["proof"].
func (e *Engine) rebuildManifestProof(id *wallet.Identity, manifest map[string]interface{}) error {
	entries := make([]string, 0, len(manifest))
	for k := range manifest {
		if k == "proof" {
			continue
		}
		entries = append(entries, k)
	}
	sort.Strings(entries)
	if len(entries) == 0 {
		delete(manifest, "proof")
		return nil
	}

	blsPriv, err := e.Identity.AttestationKey(id)
	if err != nil {
		return fmt.Errorf("failed to derive attestation key: %w", err)
	}
	blsPub := blsPriv.PublicKey()

	signatures := make([][]byte, 0, len(entries))
	for _, k := range entries {
		canonical, err := crypto.Canonicalize(manifest[k])
		if err != nil {
			return fmt.Errorf("failed to canonicalize manifest entry %q: %w", k, err)
		}
		hash := crypto.SHA256([]byte(canonical))
		sig := signing.SignForAggregation(blsPriv, hash)
		if !signing.VerifyBeforeAggregation(blsPub, hash, sig) {
			return fmt.Errorf("manifest entry %q produced a signature that fails its own verification", k)
		}
		signatures = append(signatures, sig)
	}

	aggregate, err := signing.AggregateSignatures(signatures)
	if err != nil {
		return fmt.Errorf("failed to aggregate manifest proof: %w", err)
	}
	manifest["proof"] = hex.EncodeToString(aggregate)
	return nil
}

// submitManifestUpdate anchors manifest as current's DID-document
// manifest via an update operation signed with current's signing key.
func (e *Engine) submitManifestUpdate(ctx context.Context, id *wallet.Identity, manifest map[string]interface{}) error {
	priv, err := e.Identity.DeriveKeyAt(id, id.Index)
	if err != nil {
		return err
	}
	prev, err := e.Registry.LastOperationHash(ctx, id.DID)
	if err != nil {
		return err
	}

	op := did.NewUpdateManifestOperation(id.DID, manifest, prev, e.Registry.RegistryName())
	signed, err := did.SignOperation(op, priv, id.DID)
	if err != nil {
		return fmt.Errorf("failed to sign manifest update: %w", err)
	}
	return e.Registry.UpdateDid(ctx, signed)
}
