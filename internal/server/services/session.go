// Package services contains server-side business logic. This file implements
// SessionService, which authenticates owners against the upstream identity
// endpoint, stores their encrypted secret and issues session JWTs.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tornproxy/internal/common"
	"github.com/dmitrijs2005/tornproxy/internal/cryptox"
	"github.com/dmitrijs2005/tornproxy/internal/logging"
	"github.com/dmitrijs2005/tornproxy/internal/server/auth"
	"github.com/dmitrijs2005/tornproxy/internal/server/config"
	"github.com/dmitrijs2005/tornproxy/internal/server/denylist"
	"github.com/dmitrijs2005/tornproxy/internal/server/models"
	"github.com/dmitrijs2005/tornproxy/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tornproxy/internal/server/upstream"
)

// Identifier checks a real secret upstream.
type Identifier interface {
	Identify(ctx context.Context, secret string) (*upstream.Identity, error)
}

// Session is a signed owner session.
type Session struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

type SessionService struct {
	db               *sql.DB
	repomanager      repomanager.RepositoryManager
	vault            *cryptox.Vault
	identifier       Identifier
	denylist         denylist.Store
	jwtSecret        []byte
	validityDuration time.Duration
	logger           logging.Logger
}

func NewSessionService(db *sql.DB, m repomanager.RepositoryManager, vault *cryptox.Vault, identifier Identifier,
	deny denylist.Store, cfg *config.Config, logger logging.Logger) *SessionService {
	if deny == nil {
		deny = denylist.Nop()
	}
	return &SessionService{
		db:               db,
		repomanager:      m,
		vault:            vault,
		identifier:       identifier,
		denylist:         deny,
		jwtSecret:        []byte(cfg.SecretKey),
		validityDuration: cfg.SessionValidityDuration,
		logger:           logger.With("module", "sessions"),
	}
}

// Authenticate verifies rawSecret upstream, stores it freshly encrypted for
// the upstream user and issues a session. Upstream rejections are returned
// as *common.UpstreamAuthError.
func (s *SessionService) Authenticate(ctx context.Context, rawSecret string) (*models.User, *Session, error) {
	identity, err := s.identifier.Identify(ctx, rawSecret)
	if err != nil {
		var authErr *common.UpstreamAuthError
		if !errors.As(err, &authErr) {
			s.logger.Error(ctx, "identity check failed", "error", err)
		}
		return nil, nil, err
	}

	iv, ciphertext, err := s.vault.Encrypt(rawSecret)
	if err != nil {
		return nil, nil, fmt.Errorf("error encrypting secret: %w", err)
	}

	user := &models.User{
		ID:              identity.PlayerID,
		Name:            identity.Name,
		IV:              iv,
		EncryptedSecret: ciphertext,
	}

	if err := s.repomanager.Users(s.db).Upsert(ctx, user); err != nil {
		return nil, nil, fmt.Errorf("error saving user: %w", err)
	}

	token, claims, err := auth.GenerateToken(user.ID, s.jwtSecret, s.validityDuration)
	if err != nil {
		return nil, nil, common.ErrorInternal
	}

	s.logger.Info(ctx, "owner authenticated", "user_id", user.ID)

	return user, &Session{Token: token, ID: claims.ID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Validate returns the user id of a live session. Every token problem is
// common.ErrSession.
func (s *SessionService) Validate(ctx context.Context, token string) (int64, error) {
	claims, err := auth.ParseToken(token, s.jwtSecret)
	if err != nil {
		return 0, common.ErrSession
	}

	userID, err := claims.UserID()
	if err != nil {
		return 0, common.ErrSession
	}

	denied, err := s.denylist.Contains(ctx, claims.ID)
	if err != nil {
		s.logger.Error(ctx, "deny list lookup failed", "error", err)
		return 0, common.ErrorInternal
	}
	if denied {
		return 0, common.ErrSession
	}

	return userID, nil
}

// Revoke records a still valid session in the deny list. Invalid tokens
// need nothing; the caller clears the cookie either way.
func (s *SessionService) Revoke(ctx context.Context, token string) error {
	claims, err := auth.ParseToken(token, s.jwtSecret)
	if err != nil {
		return nil
	}

	if err := s.denylist.Add(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("error revoking session: %w", err)
	}

	return nil
}

// Me loads the session owner. A vanished user is common.ErrSession.
func (s *SessionService) Me(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrSession
		}
		return nil, common.ErrorInternal
	}
	return user, nil
}
