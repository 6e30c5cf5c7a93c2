// Package identity implements the identity lifecycle state machine:
// create/rotate/backup/recover identities and manage "current" identity
// selection over a wallet store and a registry client.
package identity

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"

	"github.com/cloudflare/circl/sign/bls"

	"github.com/openmdip/keymaster/pkg/crypto"
	"github.com/openmdip/keymaster/pkg/did"
	"github.com/openmdip/keymaster/pkg/keys"
	"github.com/openmdip/keymaster/pkg/registry"
	"github.com/openmdip/keymaster/pkg/wallet"
	"github.com/openmdip/keymaster/pkg/walleterr"
)

const (
	primaryKeyID     = "#keys-1"
	attestationKeyID = "#attest-1"
	vaultServiceID   = "#vault"
	vaultServiceType = "IdentityVault"

	attestationHKDFInfo = "keymaster/attestation/v1"
	walletBackupLabel   = "keymaster/wallet-backup/v1"
	identityVaultLabel  = "keymaster/identity-vault/v1"
)

// Manager orchestrates identity lifecycle operations over a wallet and a
// registry client. It is not safe for concurrent use; callers serialize
// access to a single Manager, matching the single-logical-task model.
type Manager struct {
	Wallet   *wallet.Wallet
	Registry *registry.Client
}

// New builds a Manager over an already-loaded wallet and registry client.
func New(w *wallet.Wallet, r *registry.Client) *Manager {
	return &Manager{Wallet: w, Registry: r}
}

// Entry is one enumerated identity, as returned by ListIds.
type Entry struct {
	Name      string
	Identity  *wallet.Identity
	IsCurrent bool
}

// CurrentIdentity returns the active identity's name and record, failing
// NoCurrentId if none is selected.
func (m *Manager) CurrentIdentity() (string, *wallet.Identity, error) {
	if m.Wallet.Current == "" {
		return "", nil, walleterr.NoCurrentId()
	}
	id, ok := m.Wallet.Ids[m.Wallet.Current]
	if !ok {
		return "", nil, walleterr.NoSuchId(m.Wallet.Current)
	}
	return m.Wallet.Current, id, nil
}

// hdKey loads the wallet's parsed HD extended key.
func (m *Manager) hdKey() (*crypto.HDKey, error) {
	return m.Wallet.HDKey()
}

// deriveKeypair derives an identity's keypair at (account, index).
func (m *Manager) deriveKeypair(account, index uint32) (*ecdsa.PrivateKey, error) {
	hdkey, err := m.hdKey()
	if err != nil {
		return nil, fmt.Errorf("failed to load HD key: %w", err)
	}
	priv, err := hdkey.DeriveKeypair(account, index)
	if err != nil {
		return nil, fmt.Errorf("failed to derive keypair: %w", err)
	}
	return priv, nil
}

// DeriveKeyAt derives the private key an identity used at a specific
// rotation index, not necessarily its current one. Used for historical
// decryption and signature verification against prior keys.
func (m *Manager) DeriveKeyAt(id *wallet.Identity, index uint32) (*ecdsa.PrivateKey, error) {
	return m.deriveKeypair(id.Account, index)
}

// attestationKey derives an identity's BLS attestation keypair
// deterministically from its primary (index 0) secp256k1 scalar, so it
// never needs independent backup: it is reconstructed from the seed and
// the identity's account exactly like the signing key is.
func (m *Manager) attestationKey(account uint32) (*bls.PrivateKey[bls.KeyG1SigG2], error) {
	primary, err := m.deriveKeypair(account, 0)
	if err != nil {
		return nil, err
	}
	ikm, err := crypto.ExpandKey(primary.D.Bytes(), attestationHKDFInfo, 32)
	if err != nil {
		return nil, fmt.Errorf("failed to derive attestation seed: %w", err)
	}
	return keys.DeriveBLSKey(ikm)
}

// AttestationKey derives an identity's BLS attestation keypair, exported
// for pkg/credential's manifest aggregate proof.
func (m *Manager) AttestationKey(id *wallet.Identity) (*bls.PrivateKey[bls.KeyG1SigG2], error) {
	return m.attestationKey(id.Account)
}

// CreateId allocates a fresh account, derives its signing and attestation
// keypairs, submits a create-agent operation, and stores the resulting
// identity as name, selecting it as current.
func (m *Manager) CreateId(ctx context.Context, name, registryName string) (string, error) {
	if name == "" {
		return "", walleterr.InvalidInput()
	}
	if m.Wallet.NameInUse(name) {
		return "", walleterr.NameTaken(name)
	}

	account := m.Wallet.Counter
	priv, err := m.deriveKeypair(account, 0)
	if err != nil {
		return "", err
	}
	blsPriv, err := m.attestationKey(account)
	if err != nil {
		return "", err
	}

	doc := did.NewDocument("")
	doc.AddPublicKey(did.PublicKey{
		ID:           primaryKeyID,
		Type:         "EcdsaSecp256k1VerificationKey2019",
		PublicKeyJwk: keys.PublicKeyToJWK(&priv.PublicKey, primaryKeyID),
	})
	doc.AddAuthentication(primaryKeyID)
	blsPub := blsPriv.PublicKey()
	doc.AddPublicKey(did.PublicKey{
		ID:           attestationKeyID,
		Type:         "Bls12381G1Key2020",
		PublicKeyJwk: keys.BLSPublicKeyToJWK(blsPub, attestationKeyID),
	})

	op := did.NewCreateAgentOperation(doc, registryName)
	signed, err := did.SignOperation(op, priv, "")
	if err != nil {
		return "", fmt.Errorf("failed to sign create operation: %w", err)
	}

	newDID, err := m.Registry.CreateDid(ctx, signed)
	if err != nil {
		return "", err
	}

	m.Wallet.Ids[name] = &wallet.Identity{
		DID:     newDID,
		Account: account,
		Index:   0,
		Owned:   []string{},
		Held:    []string{},
	}
	m.Wallet.Current = name
	m.Wallet.Counter++
	if err := m.Wallet.Save(); err != nil {
		return "", err
	}
	return newDID, nil
}

// UseId selects name as the current identity.
func (m *Manager) UseId(name string) error {
	if _, ok := m.Wallet.Ids[name]; !ok {
		return walleterr.NoSuchId(name)
	}
	m.Wallet.Current = name
	return m.Wallet.Save()
}

// ListIds enumerates every identity the wallet controls, marking the
// current one.
func (m *Manager) ListIds() []Entry {
	entries := make([]Entry, 0, len(m.Wallet.Ids))
	for name, id := range m.Wallet.Ids {
		entries = append(entries, Entry{Name: name, Identity: id, IsCurrent: name == m.Wallet.Current})
	}
	return entries
}

// RemoveId deletes name from local wallet state. The DID itself remains
// in the registry; only the local reference is forgotten.
func (m *Manager) RemoveId(name string) error {
	if _, ok := m.Wallet.Ids[name]; !ok {
		return walleterr.NoSuchId(name)
	}
	delete(m.Wallet.Ids, name)
	if m.Wallet.Current == name {
		m.Wallet.Current = ""
	}
	return m.Wallet.Save()
}

// RotateKeys derives the current identity's next keypair, submits an
// update operation signed with the OLD key, and only advances local state
// once the registry accepts it.
func (m *Manager) RotateKeys(ctx context.Context) error {
	name, id, err := m.CurrentIdentity()
	if err != nil {
		return err
	}

	oldPriv, err := m.deriveKeypair(id.Account, id.Index)
	if err != nil {
		return err
	}
	newPriv, err := m.deriveKeypair(id.Account, id.Index+1)
	if err != nil {
		return err
	}

	prev, err := m.Registry.LastOperationHash(ctx, id.DID)
	if err != nil {
		return err
	}

	doc := did.NewDocument(id.DID)
	doc.AddPublicKey(did.PublicKey{
		ID:           primaryKeyID,
		Type:         "EcdsaSecp256k1VerificationKey2019",
		PublicKeyJwk: keys.PublicKeyToJWK(&newPriv.PublicKey, primaryKeyID),
	})
	doc.AddAuthentication(primaryKeyID)

	op := did.NewUpdateOperation(id.DID, doc, prev, m.Registry.RegistryName())
	signed, err := did.SignOperation(op, oldPriv, id.DID)
	if err != nil {
		return fmt.Errorf("failed to sign update operation: %w", err)
	}

	if err := m.Registry.UpdateDid(ctx, signed); err != nil {
		return err
	}

	id.Index++
	m.Wallet.Ids[name] = id
	return m.Wallet.Save()
}

// walletBackup is the payload anchored by BackupWallet: enough of the
// wallet's state to reconstruct it, re-encrypted at rest under a key tied
// to the mnemonic rather than the wallet file's own self-encryption key.
type walletBackup struct {
	Counter uint32                      `json:"counter"`
	Current string                      `json:"current"`
	Ids     map[string]*wallet.Identity `json:"ids"`
	Names   map[string]string           `json:"names"`
}

// BackupWallet encrypts the wallet's identity/name state under a key
// derived from the mnemonic and anchors the ciphertext as a data-DID owned
// by the current identity. If a prior call already anchored a backup for
// this identity, this updates that same data-DID in place instead of
// anchoring a new one, so repeated backups don't accumulate orphans.
func (m *Manager) BackupWallet(ctx context.Context) (string, error) {
	name, id, err := m.CurrentIdentity()
	if err != nil {
		return "", err
	}

	mnemonic, err := m.Wallet.DecryptMnemonic()
	if err != nil {
		return "", err
	}

	payload := walletBackup{
		Counter: m.Wallet.Counter,
		Current: m.Wallet.Current,
		Ids:     m.Wallet.Ids,
		Names:   m.Wallet.Names,
	}
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal wallet backup: %w", err)
	}

	key := crypto.SymmetricKeyFromPassphrase(walletBackupLabel, mnemonic)
	ciphertext, err := crypto.SealWithKey(key, plaintext)
	if err != nil {
		return "", fmt.Errorf("failed to seal wallet backup: %w", err)
	}

	priv, err := m.deriveKeypair(id.Account, id.Index)
	if err != nil {
		return "", err
	}
	data := map[string]string{"ciphertext": ciphertext}

	if id.BackupDID != "" {
		prev, err := m.Registry.LastOperationHash(ctx, id.BackupDID)
		if err != nil {
			return "", err
		}
		op := did.NewUpdateDataOperation(id.BackupDID, data, prev, m.Registry.RegistryName())
		signed, err := did.SignOperation(op, priv, id.DID)
		if err != nil {
			return "", fmt.Errorf("failed to sign backup update operation: %w", err)
		}
		if err := m.Registry.UpdateDid(ctx, signed); err != nil {
			return "", err
		}
		return id.BackupDID, nil
	}

	op := did.NewCreateDataOperation(data, m.Registry.RegistryName())
	signed, err := did.SignOperation(op, priv, id.DID)
	if err != nil {
		return "", fmt.Errorf("failed to sign backup operation: %w", err)
	}

	backupDID, err := m.Registry.CreateDid(ctx, signed)
	if err != nil {
		return "", err
	}

	id.Owned = append(id.Owned, backupDID)
	id.BackupDID = backupDID
	m.Wallet.Ids[name] = id
	if err := m.Wallet.Save(); err != nil {
		return "", err
	}
	return backupDID, nil
}

// RecoverWallet fetches a wallet backup by DID, decrypts it with the
// current mnemonic, and replaces the in-memory wallet's identity and name
// state on success.
func (m *Manager) RecoverWallet(ctx context.Context, backupDID string) error {
	mnemonic, err := m.Wallet.DecryptMnemonic()
	if err != nil {
		return err
	}

	resolved, err := m.Registry.ResolveDid(ctx, backupDID)
	if err != nil {
		return err
	}
	ciphertext, err := ciphertextFromData(resolved.DidDocumentMetadata.Data)
	if err != nil {
		return walleterr.CannotRecoverId()
	}

	key := crypto.SymmetricKeyFromPassphrase(walletBackupLabel, mnemonic)
	plaintext, err := crypto.OpenWithKey(key, ciphertext)
	if err != nil {
		return walleterr.CannotRecoverId()
	}

	var payload walletBackup
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return walleterr.CannotRecoverId()
	}

	m.Wallet.Counter = payload.Counter
	m.Wallet.Current = payload.Current
	m.Wallet.Ids = payload.Ids
	m.Wallet.Names = payload.Names
	return m.Wallet.Save()
}

// identityVault is the payload behind an identity's vault DID: enough to
// reconstruct one Identity record, including owned/held sets, tagged with
// the name it was stored under.
type identityVault struct {
	Name     string           `json:"name"`
	Identity *wallet.Identity `json:"identity"`
}

// BackupId encrypts the current identity's record (owned/held sets
// included) under a key derived from the mnemonic, anchors it as a vault
// data-DID, and records the vault's reference in the identity's own DID
// document as a service endpoint.
func (m *Manager) BackupId(ctx context.Context) (string, error) {
	name, id, err := m.CurrentIdentity()
	if err != nil {
		return "", err
	}

	mnemonic, err := m.Wallet.DecryptMnemonic()
	if err != nil {
		return "", err
	}

	plaintext, err := json.Marshal(identityVault{Name: name, Identity: id})
	if err != nil {
		return "", fmt.Errorf("failed to marshal identity vault: %w", err)
	}

	key := crypto.SymmetricKeyFromPassphrase(identityVaultLabel, mnemonic)
	ciphertext, err := crypto.SealWithKey(key, plaintext)
	if err != nil {
		return "", fmt.Errorf("failed to seal identity vault: %w", err)
	}

	priv, err := m.deriveKeypair(id.Account, id.Index)
	if err != nil {
		return "", err
	}

	vaultOp := did.NewCreateDataOperation(map[string]string{"ciphertext": ciphertext}, m.Registry.RegistryName())
	signedVault, err := did.SignOperation(vaultOp, priv, id.DID)
	if err != nil {
		return "", fmt.Errorf("failed to sign vault operation: %w", err)
	}
	vaultDID, err := m.Registry.CreateDid(ctx, signedVault)
	if err != nil {
		return "", err
	}

	prev, err := m.Registry.LastOperationHash(ctx, id.DID)
	if err != nil {
		return "", err
	}
	doc := did.NewDocument(id.DID)
	doc.AddPublicKey(did.PublicKey{
		ID:           primaryKeyID,
		Type:         "EcdsaSecp256k1VerificationKey2019",
		PublicKeyJwk: keys.PublicKeyToJWK(&priv.PublicKey, primaryKeyID),
	})
	doc.AddAuthentication(primaryKeyID)
	doc.AddService(did.Service{ID: vaultServiceID, Type: vaultServiceType, ServiceEndpoint: vaultDID})

	updateOp := did.NewUpdateOperation(id.DID, doc, prev, m.Registry.RegistryName())
	signedUpdate, err := did.SignOperation(updateOp, priv, id.DID)
	if err != nil {
		return "", fmt.Errorf("failed to sign vault-reference update: %w", err)
	}
	if err := m.Registry.UpdateDid(ctx, signedUpdate); err != nil {
		return "", err
	}

	return vaultDID, nil
}

// RecoverId resolves controllerDID, follows its vault service reference,
// decrypts the vault with the wallet's current mnemonic, and installs the
// recovered identity under its original name.
func (m *Manager) RecoverId(ctx context.Context, controllerDID string) (string, error) {
	mnemonic, err := m.Wallet.DecryptMnemonic()
	if err != nil {
		return "", err
	}

	resolved, err := m.Registry.ResolveDid(ctx, controllerDID)
	if err != nil {
		return "", err
	}
	if resolved.DidDocument == nil {
		return "", walleterr.CannotRecoverId()
	}

	var vaultDID string
	for _, svc := range resolved.DidDocument.Services {
		if svc.Type == vaultServiceType {
			vaultDID = svc.ServiceEndpoint
			break
		}
	}
	if vaultDID == "" {
		return "", walleterr.CannotRecoverId()
	}

	vaultResolved, err := m.Registry.ResolveDid(ctx, vaultDID)
	if err != nil {
		return "", err
	}
	ciphertext, err := ciphertextFromData(vaultResolved.DidDocumentMetadata.Data)
	if err != nil {
		return "", walleterr.CannotRecoverId()
	}

	key := crypto.SymmetricKeyFromPassphrase(identityVaultLabel, mnemonic)
	plaintext, err := crypto.OpenWithKey(key, ciphertext)
	if err != nil {
		return "", walleterr.CannotRecoverId()
	}

	var vault identityVault
	if err := json.Unmarshal(plaintext, &vault); err != nil {
		return "", walleterr.CannotRecoverId()
	}

	m.Wallet.Ids[vault.Name] = vault.Identity
	if m.Wallet.Counter <= vault.Identity.Account {
		m.Wallet.Counter = vault.Identity.Account + 1
	}
	if err := m.Wallet.Save(); err != nil {
		return "", err
	}
	return vault.Name, nil
}

// DecryptHistorical tries an identity's current key first, then walks
// backward through prior rotation indices until one succeeds or the index
// space is exhausted, per the historical-decryptability invariant.
func (m *Manager) DecryptHistorical(id *wallet.Identity, otherPub *ecdsa.PublicKey, ciphertext string) ([]byte, error) {
	for idx := int64(id.Index); idx >= 0; idx-- {
		priv, err := m.DeriveKeyAt(id, uint32(idx))
		if err != nil {
			continue
		}
		plaintext, err := crypto.DecryptMessage(otherPub, priv, ciphertext)
		if err == nil {
			return plaintext, nil
		}
	}
	return nil, walleterr.DecryptionFailed(fmt.Errorf("exhausted key history for account %d", id.Account))
}

// ciphertextFromData extracts the "ciphertext" field this package writes
// into a data-DID's metadata, as decoded from the registry's JSON response.
func ciphertextFromData(data interface{}) (string, error) {
	fields, ok := data.(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("data-DID metadata is not a ciphertext envelope")
	}
	s, ok := fields["ciphertext"].(string)
	if !ok {
		return "", fmt.Errorf("data-DID metadata has no ciphertext field")
	}
	return s, nil
}
