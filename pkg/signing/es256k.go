package signing

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/openmdip/keymaster/pkg/crypto"
)

// ES256KSigner implements Signer over secp256k1 using the wallet's raw
// hex-encoded signature format rather than a JWS compact serialization:
// Sign's return value is hex(r) || hex(s), not a three-part JWS.
type ES256KSigner struct {
	privateKey *ecdsa.PrivateKey
}

// NewES256KSigner creates a new ES256K signer from a secp256k1 private key.
func NewES256KSigner(key interface{}) (*ES256KSigner, error) {
	privateKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("expected *ecdsa.PrivateKey, got %T", key)
	}
	return &ES256KSigner{privateKey: privateKey}, nil
}

// Sign hashes payload with SHA-256 and returns a hex-encoded secp256k1
// signature over the digest.
func (s *ES256KSigner) Sign(payload []byte) (string, error) {
	hash := crypto.HashMessage(string(payload))
	return crypto.SignHash(hash, s.privateKey)
}

// Algorithm returns the signature algorithm.
func (s *ES256KSigner) Algorithm() SignatureAlgorithm {
	return AlgES256K
}

// PublicKeyJWK returns the public key as a JWK map.
func (s *ES256KSigner) PublicKeyJWK() map[string]interface{} {
	pub := &s.privateKey.PublicKey
	return map[string]interface{}{
		"kty": "EC",
		"crv": "secp256k1",
		"x":   crypto.Base64URLEncode(pub.X.Bytes()),
		"y":   crypto.Base64URLEncode(pub.Y.Bytes()),
	}
}

// ES256KVerifier implements Verifier over secp256k1.
type ES256KVerifier struct {
	publicKey *ecdsa.PublicKey
}

// NewES256KVerifier creates a new ES256K verifier from a secp256k1 public key.
func NewES256KVerifier(key interface{}) (*ES256KVerifier, error) {
	publicKey, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("expected *ecdsa.PublicKey, got %T", key)
	}
	return &ES256KVerifier{publicKey: publicKey}, nil
}

// NewES256KVerifierFromJWK creates an ES256K verifier from a JWK map.
func NewES256KVerifierFromJWK(jwk map[string]interface{}) (*ES256KVerifier, error) {
	kty, _ := jwk["kty"].(string)
	crv, _ := jwk["crv"].(string)
	if kty != "EC" || crv != "secp256k1" {
		return nil, fmt.Errorf("invalid key type for ES256K: kty=%s, crv=%s", kty, crv)
	}

	xStr, _ := jwk["x"].(string)
	yStr, _ := jwk["y"].(string)
	xBytes, err := crypto.Base64URLDecode(xStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode x: %w", err)
	}
	yBytes, err := crypto.Base64URLDecode(yStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode y: %w", err)
	}

	pub, err := crypto.PublicKeyFromCoords(xBytes, yBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct public key: %w", err)
	}

	return &ES256KVerifier{publicKey: pub}, nil
}

// Verify checks a hex-encoded secp256k1 signature (as produced by Sign)
// against payload's SHA-256 digest. Unlike BLSVerifier.Verify, the
// signature argument is a plain hex signature, not a compact JWS.
func (v *ES256KVerifier) Verify(sigHex string, payload []byte) error {
	hash := crypto.HashMessage(string(payload))
	if !crypto.VerifySig(hash, sigHex, v.publicKey) {
		return fmt.Errorf("ES256K signature verification failed")
	}
	return nil
}

// Algorithm returns the signature algorithm expected.
func (v *ES256KVerifier) Algorithm() SignatureAlgorithm {
	return AlgES256K
}
