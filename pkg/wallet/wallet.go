// Package wallet persists the wallet's process-wide state: the master
// seed, per-identity derivation records, and name aliases, as a single
// JSON file written atomically.
package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	walletcrypto "github.com/openmdip/keymaster/pkg/crypto"
)

// Identity is a wallet-owned record of one DID the wallet controls.
type Identity struct {
	DID     string   `json:"did"`
	Account uint32   `json:"account"`
	Index   uint32   `json:"index"`
	Owned   []string `json:"owned"`
	Held    []string `json:"held"`
	// BackupDID is the data-DID BackupWallet anchors this identity's wallet
	// backup ciphertext under. Once set, later backups update it in place
	// instead of anchoring a fresh, orphaned copy on every call.
	BackupDID string `json:"backupDid,omitempty"`
}

// Seed carries the mnemonic (encrypted at rest) and the serialized HD
// extended key derived from it.
type Seed struct {
	Mnemonic string `json:"mnemonic"` // hex(nonce || ciphertext), AES-GCM under a key derived from the mnemonic itself
	HDKey    string `json:"hdkey"`    // BIP-32 serialized extended key (xpriv)
}

// Wallet is the full persistent state of one local wallet.
type Wallet struct {
	Seed    Seed                 `json:"seed"`
	Counter uint32               `json:"counter"`
	Current string               `json:"current"`
	Ids     map[string]*Identity `json:"ids"`
	Names   map[string]string    `json:"names"`

	path     string
	mnemonic string // plaintext cache; never serialized, populated by New/Unlock
}

const walletFilePerm = 0o600

// mnemonicEncryptionInfo is the domain-separation label hashed (SHA-256)
// together with the mnemonic, separating the wallet's self-encryption key
// from any other key derived from the same mnemonic.
const mnemonicEncryptionInfo = "keymaster/wallet-seed/v1"

func mnemonicKey(mnemonic string) []byte {
	sum := sha256.Sum256([]byte(mnemonicEncryptionInfo + ":" + mnemonic))
	return sum[:]
}

func encryptMnemonic(mnemonic string) (string, error) {
	key := mnemonicKey(mnemonic)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to build cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to build AEAD: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(mnemonic), nil)
	return hex.EncodeToString(sealed), nil
}

func decryptMnemonicWith(candidateMnemonic, encrypted string) (string, error) {
	raw, err := hex.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("malformed encrypted mnemonic: %w", err)
	}
	key := mnemonicKey(candidateMnemonic)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to build cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to build AEAD: %w", err)
	}
	if len(raw) < gcm.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}
	return string(plaintext), nil
}

// New builds a fresh wallet in memory from mnemonic (generating one if
// empty), without touching disk. Call Save to persist it.
func New(path, mnemonic string) (*Wallet, error) {
	if mnemonic == "" {
		generated, err := walletcrypto.GenerateMnemonic()
		if err != nil {
			return nil, fmt.Errorf("failed to generate mnemonic: %w", err)
		}
		mnemonic = generated
	} else if !walletcrypto.ValidateMnemonic(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}

	hdkey, err := walletcrypto.HDKeyFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("failed to derive HD key: %w", err)
	}

	encrypted, err := encryptMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt mnemonic: %w", err)
	}

	return &Wallet{
		Seed: Seed{
			Mnemonic: encrypted,
			HDKey:    hdkey.String(),
		},
		Counter:  0,
		Current:  "",
		Ids:      map[string]*Identity{},
		Names:    map[string]string{},
		path:     path,
		mnemonic: mnemonic,
	}, nil
}

// NewWallet builds a wallet from mnemonic (generating one if empty) and
// persists it immediately, unconditionally overwriting any existing
// wallet file at path.
func NewWallet(path, mnemonic string) (*Wallet, error) {
	w, err := New(path, mnemonic)
	if err != nil {
		return nil, err
	}
	if err := w.Save(); err != nil {
		return nil, err
	}
	return w, nil
}

// Load reads the wallet file at path, initializing a fresh wallet on the
// first call (file does not exist yet).
func Load(path string) (*Wallet, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		w, err := New(path, "")
		if err != nil {
			return nil, err
		}
		if err := w.Save(); err != nil {
			return nil, err
		}
		return w, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read wallet file: %w", err)
	}

	var w Wallet
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to parse wallet file: %w", err)
	}
	if w.Ids == nil {
		w.Ids = map[string]*Identity{}
	}
	if w.Names == nil {
		w.Names = map[string]string{}
	}
	w.path = path
	return &w, nil
}

// Save writes the wallet atomically: serialize to a temp file in the same
// directory, then rename over the target path.
func (w *Wallet) Save() error {
	if w.path == "" {
		return fmt.Errorf("wallet has no backing path")
	}

	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal wallet: %w", err)
	}

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create wallet directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".wallet-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Chmod(walletFilePerm); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set wallet file permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, w.path); err != nil {
		return fmt.Errorf("failed to replace wallet file: %w", err)
	}
	return nil
}

// DecryptMnemonic returns the plaintext mnemonic, the round-trip test the
// backup flow relies on. It requires the wallet to be unlocked: New
// unlocks implicitly; a wallet loaded from disk needs Unlock(mnemonic)
// first, since the mnemonic encrypts itself and cannot be recovered
// without already being known.
func (w *Wallet) DecryptMnemonic() (string, error) {
	if w.mnemonic == "" {
		return "", fmt.Errorf("wallet is locked: call Unlock with the mnemonic first")
	}
	return w.mnemonic, nil
}

// Unlock decrypts the stored mnemonic ciphertext using candidate as key
// material. It succeeds only if candidate is itself the wallet's
// mnemonic, in which case it caches the plaintext for DecryptMnemonic and
// for re-deriving historical keys.
func (w *Wallet) Unlock(candidate string) error {
	plaintext, err := decryptMnemonicWith(candidate, w.Seed.Mnemonic)
	if err != nil {
		return fmt.Errorf("failed to unlock wallet: %w", err)
	}
	if plaintext != candidate {
		return fmt.Errorf("mnemonic does not match this wallet")
	}
	w.mnemonic = plaintext
	return nil
}

// IsLocked reports whether the wallet's plaintext mnemonic is not yet
// cached in memory.
func (w *Wallet) IsLocked() bool {
	return w.mnemonic == ""
}

// HDKey parses the wallet's serialized extended key.
func (w *Wallet) HDKey() (*walletcrypto.HDKey, error) {
	return walletcrypto.HDKeyFromString(w.Seed.HDKey)
}

// NameInUse reports whether name is already used by an identity or an
// alias.
func (w *Wallet) NameInUse(name string) bool {
	if _, ok := w.Ids[name]; ok {
		return true
	}
	_, ok := w.Names[name]
	return ok
}
