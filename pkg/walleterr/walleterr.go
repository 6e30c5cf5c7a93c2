// Package walleterr defines the wallet's error taxonomy: a small set of
// sentinel errors identifying the failure kind, wrapped in an
// OperationError that carries the exact user-visible message the CLI is
// expected to print.
package walleterr

import (
	"errors"
	"fmt"
)

// Sentinel errors identifying a failure kind, for errors.Is checks.
var (
	ErrNoCurrentId         = errors.New("no current id")
	ErrNameTaken           = errors.New("name taken")
	ErrNoSuchId            = errors.New("no such id")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidVC           = errors.New("invalid vc")
	ErrCannotRecoverId     = errors.New("cannot recover id")
	ErrDecryptionFailed    = errors.New("decryption failed")
	ErrTamperedCiphertext  = errors.New("tampered ciphertext")
	ErrRegistryUnavailable = errors.New("registry unavailable")
)

// OperationError wraps a sentinel kind with the exact message the CLI
// surfaces and, where relevant, the underlying cause.
type OperationError struct {
	Kind    error
	Message string
	Cause   error
}

func (e *OperationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *OperationError) Unwrap() error {
	return e.Kind
}

// New builds an OperationError with no wrapped cause.
func New(kind error, message string) *OperationError {
	return &OperationError{Kind: kind, Message: message}
}

// Wrap builds an OperationError carrying an underlying cause.
func Wrap(kind error, message string, cause error) *OperationError {
	return &OperationError{Kind: kind, Message: message, Cause: cause}
}

// NoCurrentId is the exact §7 message for a missing current identity.
func NoCurrentId() *OperationError {
	return New(ErrNoCurrentId, "No current ID")
}

// NameTaken is the exact §7 message for a name collision when creating an
// identity. An empty name reports the generic alias-collision wording
// used by name registration outside identity creation.
func NameTaken(name string) *OperationError {
	if name == "" {
		return New(ErrNameTaken, "Name already in use")
	}
	return New(ErrNameTaken, fmt.Sprintf("Already have an ID named %s", name))
}

// NoSuchId is the exact §7 message for an identity lookup miss.
func NoSuchId(name string) *OperationError {
	return New(ErrNoSuchId, fmt.Sprintf("No ID named %s", name))
}

// InvalidInput is the exact §7 message for a null/empty anchor or signable
// object.
func InvalidInput() *OperationError {
	return New(ErrInvalidInput, "Invalid input")
}

// InvalidVC is the exact §7 message for a credential failing an issuer or
// shape check.
func InvalidVC() *OperationError {
	return New(ErrInvalidVC, "Invalid VC")
}

// CannotRecoverId is the exact §7 message for a vault that a wallet's seed
// cannot decrypt.
func CannotRecoverId() *OperationError {
	return New(ErrCannotRecoverId, "Cannot recover ID")
}

// DecryptionFailed wraps an AEAD authentication failure with its cause.
func DecryptionFailed(cause error) *OperationError {
	return Wrap(ErrDecryptionFailed, "Decryption failed", cause)
}

// TamperedCiphertext reports a plaintext whose hash no longer matches the
// envelope's recorded cipher_hash.
func TamperedCiphertext() *OperationError {
	return New(ErrTamperedCiphertext, "Tampered ciphertext")
}

// RegistryUnavailable wraps a transport error or 5xx response from the
// gatekeeper.
func RegistryUnavailable(cause error) *OperationError {
	return Wrap(ErrRegistryUnavailable, "Registry unavailable", cause)
}
