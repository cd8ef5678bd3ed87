// Package users declares and implements persistence of proxy owners.
package users

import (
	"context"

	"github.com/dmitrijs2005/tornproxy/internal/server/models"
)

// Repository stores users keyed by their upstream id.
type Repository interface {
	// Upsert inserts the user or, when the id exists, replaces name and the
	// encrypted secret.
	Upsert(ctx context.Context, user *models.User) error
	// GetByID returns common.ErrorNotFound when no user has the id.
	GetByID(ctx context.Context, id int64) (*models.User, error)
}
