package credstore

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for credential store operations.
var (
	// ErrCredentialNotFound indicates the credential id is unknown.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrCredentialExists indicates a credential with the id already exists.
	ErrCredentialExists = errors.New("credential already exists")

	// ErrEmptyPayload indicates an empty credential payload.
	ErrEmptyPayload = errors.New("credential payload is empty")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("credential store is closed")
)

// IntegrityError indicates the stored credential failed its checksum
// verification after decryption. This is treated as a security
// incident and is never silently recovered.
type IntegrityError struct {
	CredentialID string
}

// Error implements the error interface.
func (e *IntegrityError) Error() string {
	return fmt.Sprintf("credential %s failed integrity verification", e.CredentialID)
}

// NewIntegrityError creates a new IntegrityError.
func NewIntegrityError(credentialID string) *IntegrityError {
	return &IntegrityError{CredentialID: credentialID}
}

// IsIntegrityError checks if an error is an IntegrityError.
func IsIntegrityError(err error) bool {
	var integrityErr *IntegrityError
	return errors.As(err, &integrityErr)
}

// LockoutError indicates too many failed access attempts within the
// lockout window. The caller must wait until the window elapses.
type LockoutError struct {
	CredentialID string
	Until        time.Time
}

// Error implements the error interface.
func (e *LockoutError) Error() string {
	return fmt.Sprintf("credential %s is locked out until %s",
		e.CredentialID, e.Until.Format(time.RFC3339))
}

// NewLockoutError creates a new LockoutError.
func NewLockoutError(credentialID string, until time.Time) *LockoutError {
	return &LockoutError{CredentialID: credentialID, Until: until}
}

// IsLockoutError checks if an error is a LockoutError.
func IsLockoutError(err error) bool {
	var lockoutErr *LockoutError
	return errors.As(err, &lockoutErr)
}
