package did

import (
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/openmdip/keymaster/pkg/crypto"
	"github.com/openmdip/keymaster/pkg/signing"
)

// SignOperation canonicalizes op's unsigned form and signs it with priv
// through the ES256K signer, attaching the resulting signature.
// signerDID identifies the key's owner (the new DID itself for a
// create-agent operation, the controller's current DID for
// update/deactivate).
func SignOperation(op Operation, priv *ecdsa.PrivateKey, signerDID string) (Operation, error) {
	canonical, err := crypto.Canonicalize(op.unsigned())
	if err != nil {
		return Operation{}, fmt.Errorf("failed to canonicalize operation: %w", err)
	}

	signer, err := signing.NewSigner(signing.AlgES256K, priv)
	if err != nil {
		return Operation{}, fmt.Errorf("failed to build signer: %w", err)
	}
	sigHex, err := signer.Sign([]byte(canonical))
	if err != nil {
		return Operation{}, fmt.Errorf("failed to sign operation: %w", err)
	}

	op.Signature = &Signature{
		Signer: signerDID,
		Signed: time.Now().UTC().Format(time.RFC3339),
		Hash:   crypto.HashMessage(canonical),
		Value:  sigHex,
	}
	return op, nil
}

// VerifyOperation verifies op's signature against pub, using the same
// canonicalize-then-hash procedure SignOperation used to produce it.
func VerifyOperation(op Operation, pub *ecdsa.PublicKey) bool {
	if op.Signature == nil {
		return false
	}

	canonical, err := crypto.Canonicalize(op.unsigned())
	if err != nil {
		return false
	}
	if crypto.HashMessage(canonical) != op.Signature.Hash {
		return false
	}

	verifier, err := signing.NewVerifier(signing.AlgES256K, pub)
	if err != nil {
		return false
	}
	return verifier.Verify(op.Signature.Value, []byte(canonical)) == nil
}
