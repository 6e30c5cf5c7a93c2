package crypto

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"errors"
	"fmt"

	josepkg "github.com/go-jose/go-jose/v4"
	"golang.org/x/crypto/hkdf"
)

// ErrDecryptionFailed reports an AEAD authentication failure: wrong key,
// truncated ciphertext, or a tampered envelope.
var ErrDecryptionFailed = errors.New("decryption failed")

const envelopeHKDFInfo = "keymaster/envelope/v1"

// ExpandKey derives length bytes of key material from secret via
// HKDF-SHA256 under the given domain-separation info string. Used to bind
// an identity's attestation key to its secp256k1 signing scalar without
// storing a second independent secret.
func ExpandKey(secret []byte, info string, length int) ([]byte, error) {
	reader := hkdf.New(sha256.New, secret, nil, []byte(info))
	key := make([]byte, length)
	if _, err := reader.Read(key); err != nil {
		return nil, fmt.Errorf("failed to expand key: %w", err)
	}
	return key, nil
}

// sharedSecretKey derives the symmetric content-encryption key for the
// channel between priv and pub via ECDH over secp256k1, expanded with
// HKDF-SHA256. Calling this with (senderPriv, receiverPub) and with
// (receiverPriv, senderPub) from either side of a channel yields the same
// key, which is what lets the receiver decrypt its copy of a message
// envelope; the sender's own copy uses (senderPriv, senderPub).
func sharedSecretKey(priv *ecdsa.PrivateKey, pub *ecdsa.PublicKey) ([]byte, error) {
	if priv.Curve != pub.Curve {
		return nil, fmt.Errorf("mismatched curves in ECDH")
	}

	sx, _ := priv.Curve.ScalarMult(pub.X, pub.Y, priv.D.Bytes())
	if sx == nil || sx.Sign() == 0 {
		return nil, fmt.Errorf("ECDH produced a degenerate shared point")
	}

	reader := hkdf.New(sha256.New, sx.Bytes(), nil, []byte(envelopeHKDFInfo))
	key := make([]byte, 32)
	if _, err := reader.Read(key); err != nil {
		return nil, fmt.Errorf("failed to expand shared secret: %w", err)
	}
	return key, nil
}

// EncryptMessage seals plaintext for the channel between a sender private
// key and a receiver public key, returning a compact JWE (alg: dir,
// enc: A256GCM). The JWE's own nonce stands in for the "fresh random
// nonce" the spec describes prepending to the ciphertext.
func EncryptMessage(receiverPub *ecdsa.PublicKey, senderPriv *ecdsa.PrivateKey, plaintext []byte) (string, error) {
	key, err := sharedSecretKey(senderPriv, receiverPub)
	if err != nil {
		return "", fmt.Errorf("failed to derive shared key: %w", err)
	}

	encrypter, err := josepkg.NewEncrypter(josepkg.A256GCM, josepkg.Recipient{
		Algorithm: josepkg.DIRECT,
		Key:       key,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build encrypter: %w", err)
	}

	obj, err := encrypter.Encrypt(plaintext)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt: %w", err)
	}

	compact, err := obj.CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("failed to serialize ciphertext: %w", err)
	}

	return compact, nil
}

// DecryptMessage opens a ciphertext produced by EncryptMessage. otherPub is
// the counterparty's public key: the sender's, if self is the receiver, or
// the sender's own key, if self is decrypting its own sender-side copy.
func DecryptMessage(otherPub *ecdsa.PublicKey, selfPriv *ecdsa.PrivateKey, ciphertext string) ([]byte, error) {
	key, err := sharedSecretKey(selfPriv, otherPub)
	if err != nil {
		return nil, fmt.Errorf("failed to derive shared key: %w", err)
	}

	obj, err := josepkg.ParseEncrypted(
		ciphertext,
		[]josepkg.KeyAlgorithm{josepkg.DIRECT},
		[]josepkg.ContentEncryption{josepkg.A256GCM},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed envelope: %v", ErrDecryptionFailed, err)
	}

	plaintext, err := obj.Decrypt(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	return plaintext, nil
}
