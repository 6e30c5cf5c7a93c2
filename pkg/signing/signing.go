package signing

import (
	"fmt"
)

// SignatureAlgorithm represents a supported signature scheme.
type SignatureAlgorithm string

const (
	// AlgES256K is ECDSA over secp256k1, expressed as a raw hex signature
	// rather than a JWS compact serialization. This is the wallet's
	// algorithm for DID operations and credential/challenge signatures.
	AlgES256K SignatureAlgorithm = "ES256K"
	// AlgBLS is the BLS12-381 signature scheme, used for aggregate
	// manifest integrity proofs.
	AlgBLS SignatureAlgorithm = "BLS"
)

// Signer creates signatures over a payload.
type Signer interface {
	Sign(payload []byte) (string, error)
	Algorithm() SignatureAlgorithm
	PublicKeyJWK() map[string]interface{}
}

// Verifier verifies signatures over a payload.
type Verifier interface {
	Verify(signature string, expectedPayload []byte) error
	Algorithm() SignatureAlgorithm
}

// NewSigner creates a new signer for the given algorithm and private key.
func NewSigner(alg SignatureAlgorithm, privateKey interface{}) (Signer, error) {
	switch alg {
	case AlgES256K:
		return NewES256KSigner(privateKey)
	default:
		return nil, fmt.Errorf("unsupported algorithm: %s", alg)
	}
}

// NewVerifier creates a new verifier for the given algorithm and public key.
func NewVerifier(alg SignatureAlgorithm, publicKey interface{}) (Verifier, error) {
	switch alg {
	case AlgES256K:
		return NewES256KVerifier(publicKey)
	case AlgBLS:
		return NewBLSVerifier(publicKey)
	default:
		return nil, fmt.Errorf("unsupported algorithm: %s", alg)
	}
}

// NewVerifierFromJWK creates a verifier from a JWK map, auto-detecting the
// algorithm from its kty/crv members.
func NewVerifierFromJWK(jwk map[string]interface{}) (Verifier, error) {
	kty, _ := jwk["kty"].(string)
	crv, _ := jwk["crv"].(string)

	switch {
	case kty == "EC" && crv == "secp256k1":
		return NewES256KVerifierFromJWK(jwk)
	case kty == "OKP" && crv == "BLS12-381-G1":
		return NewBLSVerifierFromJWK(jwk)
	default:
		return nil, fmt.Errorf("unsupported key type: kty=%s, crv=%s", kty, crv)
	}
}
