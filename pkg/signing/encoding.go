package signing

import "github.com/openmdip/keymaster/pkg/crypto"

// base64URLDecode backs the compact serialization decoding BLSVerifier
// does by hand (BLS has no native JWS support in go-jose).
func base64URLDecode(s string) ([]byte, error) {
	return crypto.Base64URLDecode(s)
}
