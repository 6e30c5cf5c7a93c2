package crypto

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

// hardenedOffset marks a BIP-32 path segment as hardened.
const hardenedOffset = uint32(0x80000000)

// HDKey is a BIP-32 extended key derived from a wallet's seed.
type HDKey struct {
	extended *hdkeychain.ExtendedKey
}

// HDKeyFromMnemonic derives the master extended key from a BIP-39 mnemonic.
func HDKeyFromMnemonic(mnemonic string) (*HDKey, error) {
	seed, err := SeedFromMnemonic(mnemonic)
	if err != nil {
		return nil, err
	}

	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("failed to derive master key: %w", err)
	}

	return &HDKey{extended: master}, nil
}

// String returns the BIP-32 serialized extended key (xpriv or xpub,
// depending on whether the underlying key carries a private component).
func (k *HDKey) String() string {
	return k.extended.String()
}

// IsPrivate reports whether this extended key can derive private children.
func (k *HDKey) IsPrivate() bool {
	return k.extended.IsPrivate()
}

// HDKeyFromString parses a serialized BIP-32 extended key.
func HDKeyFromString(s string) (*HDKey, error) {
	extended, err := hdkeychain.NewKeyFromString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to parse extended key: %w", err)
	}
	return &HDKey{extended: extended}, nil
}

// DeriveKeypair derives the secp256k1 keypair at m/44'/0'/account'/0/index,
// with the account component hardened per spec.
func (k *HDKey) DeriveKeypair(account, index uint32) (*ecdsa.PrivateKey, error) {
	path := []uint32{
		44 + hardenedOffset,
		0 + hardenedOffset,
		account + hardenedOffset,
		0,
		index,
	}

	cur := k.extended
	for _, segment := range path {
		var err error
		cur, err = cur.Derive(segment)
		if err != nil {
			return nil, fmt.Errorf("failed to derive child key: %w", err)
		}
	}

	privKey, err := cur.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("failed to extract private key: %w", err)
	}

	return privKey.ToECDSA(), nil
}
