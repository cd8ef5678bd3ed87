// Package credentials declares and implements persistence of proxy
// credentials.
package credentials

import (
	"context"

	"github.com/dmitrijs2005/tornproxy/internal/server/models"
)

// Repository stores proxy credentials.
type Repository interface {
	// ListByOwner returns the owner's credentials, oldest first.
	ListByOwner(ctx context.Context, ownerID int64) ([]*models.ProxyCredential, error)

	// Create inserts a credential and fills in its CreatedAt.
	Create(ctx context.Context, c *models.ProxyCredential) error

	// Update applies the non-nil slots of upd to the credential identified
	// by token, but only if it belongs to ownerID. Ownership is part of the
	// same statement. It returns the number of affected rows.
	Update(ctx context.Context, token string, ownerID int64, upd models.CredentialUpdate) (int64, error)

	// Resolve loads a credential together with its owner by token. It
	// returns common.ErrorNotFound when the token is unknown.
	Resolve(ctx context.Context, token string) (*models.User, *models.ProxyCredential, error)
}
