package did

import (
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/openmdip/keymaster/pkg/crypto"
)

// DIDPrefix is the prefix for every DID this module mints.
const DIDPrefix = "did:mdip:"

// DIDMethod is the DID method name, the segment between "did:" and the
// suffix.
const DIDMethod = "mdip"

// SuffixFromCreateOperation derives a DID suffix from a signed create
// operation: base58 of the SHA-256 digest of the operation's canonical
// JSON form. The operation must already carry its signature, so the
// suffix commits to exactly what was submitted to the registry.
func SuffixFromCreateOperation(op interface{}) (string, error) {
	canonical, err := crypto.Canonicalize(op)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize create operation: %w", err)
	}

	hash := crypto.SHA256([]byte(canonical))
	return base58.Encode(hash), nil
}

// FormatDID formats a suffix as a full did:mdip URI.
func FormatDID(suffix string) string {
	return DIDPrefix + suffix
}

// ParseDID extracts the suffix from a did:mdip URI.
func ParseDID(did string) (string, error) {
	if !strings.HasPrefix(did, DIDPrefix) {
		return "", fmt.Errorf("invalid DID format: %s", did)
	}
	suffix := strings.TrimPrefix(did, DIDPrefix)
	if suffix == "" {
		return "", fmt.Errorf("invalid DID format: %s", did)
	}
	return suffix, nil
}

// IsDID reports whether s looks like a did:mdip URI.
func IsDID(s string) bool {
	return strings.HasPrefix(s, DIDPrefix) && len(s) > len(DIDPrefix)
}
