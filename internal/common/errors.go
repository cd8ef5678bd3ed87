// Package common defines shared constants and sentinel errors used across
// the server layers of tornproxy. Callers should use errors.Is to match these
// values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")

	// Vault errors: missing/invalid key material or a corrupt record.
	ErrVault = errors.New("vault error")

	// ErrSession covers every reason a session token is not accepted.
	// Missing, malformed, expired and badly signed tokens are not distinguished.
	ErrSession = errors.New("unauthenticated")

	// Gateway errors.
	ErrCredentialNotFound = errors.New("credential not found")
	ErrCredentialRevoked  = errors.New("credential revoked")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrUpstreamForward    = errors.New("upstream forward failed")
)

// UpstreamAuthError is returned when the upstream identity check rejects a
// real secret. Payload is the upstream's own error object, echoed verbatim.
type UpstreamAuthError struct {
	Payload []byte
}

func (e *UpstreamAuthError) Error() string {
	return fmt.Sprintf("upstream rejected secret: %s", e.Payload)
}
