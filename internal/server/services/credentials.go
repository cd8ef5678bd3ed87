package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tornproxy/internal/common"
	"github.com/dmitrijs2005/tornproxy/internal/cryptox"
	"github.com/dmitrijs2005/tornproxy/internal/dbx"
	"github.com/dmitrijs2005/tornproxy/internal/logging"
	"github.com/dmitrijs2005/tornproxy/internal/server/models"
	"github.com/dmitrijs2005/tornproxy/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// CredentialService manages an owner's proxy credentials and resolves them
// for the gateway.
type CredentialService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	vault       *cryptox.Vault
	logger      logging.Logger
}

func NewCredentialService(db *sql.DB, m repomanager.RepositoryManager, vault *cryptox.Vault, logger logging.Logger) *CredentialService {
	return &CredentialService{
		db:          db,
		repomanager: m,
		vault:       vault,
		logger:      logger.With("module", "credentials"),
	}
}

// List returns the owner's credentials, oldest first.
func (s *CredentialService) List(ctx context.Context, ownerID int64) ([]*models.ProxyCredential, error) {
	list, err := s.repomanager.Credentials(s.db).ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("error listing credentials: %w", err)
	}
	return list, nil
}

// Create mints a Public credential with a random token and returns the
// owner's full list.
func (s *CredentialService) Create(ctx context.Context, ownerID int64, description string) ([]*models.ProxyCredential, error) {
	c := &models.ProxyCredential{
		Token:       uuid.NewString(),
		UserID:      ownerID,
		Description: description,
		Permissions: models.PermissionPublic,
	}

	list, err := dbx.InTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) ([]*models.ProxyCredential, error) {
		repo := s.repomanager.Credentials(tx)
		if err := repo.Create(ctx, c); err != nil {
			return nil, err
		}
		return repo.ListByOwner(ctx, ownerID)
	})
	if err != nil {
		return nil, fmt.Errorf("error creating credential: %w", err)
	}

	s.logger.Info(ctx, "credential created", "user_id", ownerID)
	return list, nil
}

// Update applies upd to the owner's credential and returns the owner's full
// list. A token the owner does not hold is left alone; the list is still
// returned.
func (s *CredentialService) Update(ctx context.Context, token string, ownerID int64, upd models.CredentialUpdate) ([]*models.ProxyCredential, error) {
	list, err := dbx.InTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) ([]*models.ProxyCredential, error) {
		repo := s.repomanager.Credentials(tx)
		n, err := repo.Update(ctx, token, ownerID, upd)
		if err != nil {
			return nil, err
		}
		if n == 0 && !upd.IsEmpty() {
			s.logger.Debug(ctx, "update matched no credential", "user_id", ownerID)
		}
		return repo.ListByOwner(ctx, ownerID)
	})
	if err != nil {
		return nil, fmt.Errorf("error updating credential: %w", err)
	}

	return list, nil
}

// ResolveOwner loads a credential with its owner and the decrypted real
// secret. Unknown tokens are common.ErrCredentialNotFound; a secret that
// does not decrypt is common.ErrVault.
func (s *CredentialService) ResolveOwner(ctx context.Context, token string) (*models.User, *models.ProxyCredential, string, error) {
	user, cred, err := s.repomanager.Credentials(s.db).Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, "", common.ErrCredentialNotFound
		}
		return nil, nil, "", fmt.Errorf("error resolving credential: %w", err)
	}

	secret, err := s.vault.Decrypt(user.IV, user.EncryptedSecret)
	if err != nil {
		return nil, nil, "", err
	}

	return user, cred, secret, nil
}

// Resolve is ResolveOwner without the owner.
func (s *CredentialService) Resolve(ctx context.Context, token string) (*models.ProxyCredential, string, error) {
	_, cred, secret, err := s.ResolveOwner(ctx, token)
	return cred, secret, err
}
