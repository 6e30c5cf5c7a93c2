package crypto

import (
	"fmt"

	"github.com/tyler-smith/go-bip39"
)

// mnemonicEntropyBits is the entropy size for a 12-word BIP-39 phrase.
const mnemonicEntropyBits = 128

// GenerateMnemonic returns a fresh 12-word BIP-39 recovery phrase.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(mnemonicEntropyBits)
	if err != nil {
		return "", fmt.Errorf("failed to generate entropy: %w", err)
	}

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("failed to generate mnemonic: %w", err)
	}

	return mnemonic, nil
}

// ValidateMnemonic reports whether m is a well-formed BIP-39 phrase.
func ValidateMnemonic(m string) bool {
	return bip39.IsMnemonicValid(m)
}

// SeedFromMnemonic derives the 64-byte BIP-39 seed from a mnemonic phrase.
// No passphrase is used; the mnemonic alone is the seed material.
func SeedFromMnemonic(m string) ([]byte, error) {
	if !bip39.IsMnemonicValid(m) {
		return nil, fmt.Errorf("invalid mnemonic")
	}
	return bip39.NewSeed(m, ""), nil
}
