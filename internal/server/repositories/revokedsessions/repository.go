// Package revokedsessions declares the server-side store of owner sessions
// that were locked before their natural expiry.
package revokedsessions

import (
	"context"
	"time"
)

// Repository records revoked session ids until they would have expired anyway.
type Repository interface {
	// Create records jti as revoked until expiresAt. Recording the same jti
	// twice is not an error.
	Create(ctx context.Context, jti string, expiresAt time.Time) error

	// Exists reports whether jti is revoked and not yet expired.
	Exists(ctx context.Context, jti string) (bool, error)

	// DeleteExpired purges rows past their expiry and returns how many.
	DeleteExpired(ctx context.Context) (int64, error)
}
