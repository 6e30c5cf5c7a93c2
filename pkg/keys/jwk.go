package keys

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/openmdip/keymaster/pkg/crypto"
)

// JWK represents a JSON Web Key. Only the members a given key type needs
// are populated: EC/secp256k1 keys carry X/Y, BLS keys carry only X (and
// D for the private half).
type JWK struct {
	ID  string `json:"id,omitempty"`
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	Alg string `json:"alg,omitempty"`
	X   string `json:"x"`
	Y   string `json:"y,omitempty"`
	D   string `json:"d,omitempty"`
}

// PublicKeyToJWK converts a secp256k1 ECDSA public key to a JWK.
func PublicKeyToJWK(key *ecdsa.PublicKey, keyID string) *JWK {
	return &JWK{
		ID:  keyID,
		Kty: "EC",
		Crv: "secp256k1",
		X:   crypto.Base64URLEncode(key.X.Bytes()),
		Y:   crypto.Base64URLEncode(key.Y.Bytes()),
	}
}

// JWKToPublicKey converts a secp256k1 JWK to an ECDSA public key.
func JWKToPublicKey(jwk *JWK) (*ecdsa.PublicKey, error) {
	if jwk.Kty != "EC" || jwk.Crv != "secp256k1" {
		return nil, fmt.Errorf("JWK is not a secp256k1 key: kty=%s, crv=%s", jwk.Kty, jwk.Crv)
	}

	xBytes, err := crypto.Base64URLDecode(jwk.X)
	if err != nil {
		return nil, fmt.Errorf("failed to decode X: %w", err)
	}
	yBytes, err := crypto.Base64URLDecode(jwk.Y)
	if err != nil {
		return nil, fmt.Errorf("failed to decode Y: %w", err)
	}

	return crypto.PublicKeyFromCoords(xBytes, yBytes)
}
