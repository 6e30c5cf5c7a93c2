package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
)

// signatureComponentLen is the fixed byte width of r and s when a
// secp256k1 signature is serialized as hex(r) || hex(s).
const signatureComponentLen = 32

// HashMessage returns the hex-encoded SHA-256 digest of a UTF-8 string.
func HashMessage(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// SignHash produces a hex-encoded secp256k1 ECDSA signature (r || s, fixed
// width, big-endian) over a hex-encoded digest.
func SignHash(hashHex string, priv *ecdsa.PrivateKey) (string, error) {
	digest, err := hex.DecodeString(hashHex)
	if err != nil {
		return "", fmt.Errorf("invalid hash: %w", err)
	}

	r, s, err := ecdsa.Sign(rand.Reader, priv, digest)
	if err != nil {
		return "", fmt.Errorf("failed to sign: %w", err)
	}

	sig := make([]byte, 2*signatureComponentLen)
	r.FillBytes(sig[:signatureComponentLen])
	s.FillBytes(sig[signatureComponentLen:])

	return hex.EncodeToString(sig), nil
}

// VerifySig verifies a hex-encoded secp256k1 signature over a hex-encoded
// digest. Malformed input reports false rather than an error, matching
// spec policy that verification failures on well-formed objects are not
// exceptional.
func VerifySig(hashHex, sigHex string, pub *ecdsa.PublicKey) bool {
	digest, err := hex.DecodeString(hashHex)
	if err != nil {
		return false
	}

	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != 2*signatureComponentLen {
		return false
	}

	r := new(big.Int).SetBytes(sig[:signatureComponentLen])
	s := new(big.Int).SetBytes(sig[signatureComponentLen:])

	return ecdsa.Verify(pub, digest, r, s)
}

// GenerateSecp256k1Key generates a fresh secp256k1 private key, independent
// of any HD derivation path.
func GenerateSecp256k1Key() (*ecdsa.PrivateKey, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return priv.ToECDSA(), nil
}

// PublicKeyFromCoords reconstructs a secp256k1 public key from its raw X
// and Y coordinates, as decoded from a JWK's x/y members.
func PublicKeyFromCoords(xBytes, yBytes []byte) (*ecdsa.PublicKey, error) {
	x := new(big.Int).SetBytes(xBytes)
	y := new(big.Int).SetBytes(yBytes)
	pub := &ecdsa.PublicKey{
		Curve: btcec.S256(),
		X:     x,
		Y:     y,
	}
	if !pub.Curve.IsOnCurve(x, y) {
		return nil, fmt.Errorf("point is not on secp256k1")
	}
	return pub, nil
}
