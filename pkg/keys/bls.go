package keys

import (
	"fmt"

	"github.com/cloudflare/circl/sign/bls"
	"github.com/openmdip/keymaster/pkg/crypto"
)

// BLS uses KeyG1SigG2 scheme: public keys in G1, signatures in G2
// This is efficient for signature aggregation

// DeriveBLSKey generates a BLS key pair deterministically from 32 bytes of
// key material, used to bind an identity's attestation key to its
// secp256k1 signing key without storing a second secret independently.
func DeriveBLSKey(ikm []byte) (*bls.PrivateKey[bls.KeyG1SigG2], error) {
	salt := []byte{}
	keyInfo := []byte{}

	privateKey, err := bls.KeyGen[bls.KeyG1SigG2](ikm, salt, keyInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to generate BLS key: %w", err)
	}

	return privateKey, nil
}

// BLSPublicKeyToJWK converts a BLS public key to JWK
func BLSPublicKeyToJWK(key *bls.PublicKey[bls.KeyG1SigG2], keyID string) *JWK {
	pubBytes, _ := key.MarshalBinary()

	return &JWK{
		ID:  keyID,
		Kty: "OKP",
		Crv: "BLS12-381-G1",
		Alg: "BLS",
		X:   crypto.Base64URLEncode(pubBytes),
	}
}

// JWKToBLSPublicKey converts a JWK to a BLS public key
func JWKToBLSPublicKey(jwk *JWK) (*bls.PublicKey[bls.KeyG1SigG2], error) {
	if jwk.Kty != "OKP" || jwk.Crv != "BLS12-381-G1" {
		return nil, fmt.Errorf("JWK is not a BLS key: kty=%s, crv=%s", jwk.Kty, jwk.Crv)
	}

	xBytes, err := crypto.Base64URLDecode(jwk.X)
	if err != nil {
		return nil, fmt.Errorf("failed to decode X: %w", err)
	}

	publicKey := new(bls.PublicKey[bls.KeyG1SigG2])
	if err := publicKey.UnmarshalBinary(xBytes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal BLS public key: %w", err)
	}

	return publicKey, nil
}
