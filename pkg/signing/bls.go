package signing

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudflare/circl/sign/bls"
)

// BLS uses KeyG1SigG2 scheme: public keys in G1, signatures in G2.
// This module only ever verifies BLS signatures (the manifest aggregate
// proof, see pkg/credential/vc.go); signing happens directly against the
// raw circl key via SignForAggregation in aggregate.go, since an
// aggregate proof is built from per-entry raw signatures rather than a
// single self-contained JWS.

// BLSVerifier implements Verifier for BLS12-381
type BLSVerifier struct {
	publicKey *bls.PublicKey[bls.KeyG1SigG2]
}

// NewBLSVerifier creates a new BLS verifier from a BLS public key
func NewBLSVerifier(key interface{}) (*BLSVerifier, error) {
	publicKey, ok := key.(*bls.PublicKey[bls.KeyG1SigG2])
	if !ok {
		return nil, fmt.Errorf("expected *bls.PublicKey[bls.KeyG1SigG2], got %T", key)
	}

	return &BLSVerifier{
		publicKey: publicKey,
	}, nil
}

// NewBLSVerifierFromJWK creates a BLS verifier from a JWK map
func NewBLSVerifierFromJWK(jwk map[string]interface{}) (*BLSVerifier, error) {
	kty, _ := jwk["kty"].(string)
	crv, _ := jwk["crv"].(string)

	if kty != "OKP" || crv != "BLS12-381-G1" {
		return nil, fmt.Errorf("invalid key type for BLS: kty=%s, crv=%s", kty, crv)
	}

	xStr, _ := jwk["x"].(string)
	xBytes, err := base64URLDecode(xStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode x: %w", err)
	}

	publicKey := new(bls.PublicKey[bls.KeyG1SigG2])
	if err := publicKey.UnmarshalBinary(xBytes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal BLS public key: %w", err)
	}

	return &BLSVerifier{
		publicKey: publicKey,
	}, nil
}

// Verify verifies a JWS-like compact serialization
func (v *BLSVerifier) Verify(compact string, expectedPayload []byte) error {
	parts := strings.Split(compact, ".")
	if len(parts) != 3 {
		return fmt.Errorf("invalid BLS JWS format: expected 3 parts, got %d", len(parts))
	}

	// Decode header and verify algorithm
	headerJSON, err := base64URLDecode(parts[0])
	if err != nil {
		return fmt.Errorf("failed to decode header: %w", err)
	}

	var header map[string]interface{}
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return fmt.Errorf("failed to parse header: %w", err)
	}

	alg, _ := header["alg"].(string)
	if alg != "BLS" {
		return fmt.Errorf("invalid algorithm in header: %s", alg)
	}

	// Decode payload
	payload, err := base64URLDecode(parts[1])
	if err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}

	// Decode signature
	signature, err := base64URLDecode(parts[2])
	if err != nil {
		return fmt.Errorf("failed to decode signature: %w", err)
	}

	// Verify signature
	if !bls.Verify(v.publicKey, payload, signature) {
		return fmt.Errorf("BLS signature verification failed")
	}

	// Optionally verify payload matches expected
	if expectedPayload != nil && string(payload) != string(expectedPayload) {
		return fmt.Errorf("payload mismatch")
	}

	return nil
}

// Algorithm returns the signature algorithm
func (v *BLSVerifier) Algorithm() SignatureAlgorithm {
	return AlgBLS
}

// VerifyAggregate checks an aggregate BLS signature over messages that are
// all claimed to be signed by v's public key: the manifest integrity
// proof's single-signer aggregate case (see rebuildManifestProof in
// pkg/credential/vc.go, which builds aggSig with SignForAggregation over
// each published credential's canonical hash).
func (v *BLSVerifier) VerifyAggregate(messages [][]byte, aggSig []byte) error {
	pubKeys := make([]*bls.PublicKey[bls.KeyG1SigG2], len(messages))
	for i := range pubKeys {
		pubKeys[i] = v.publicKey
	}
	return VerifyAggregateSignature(pubKeys, messages, aggSig)
}
