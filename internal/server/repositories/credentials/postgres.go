package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/tornproxy/internal/common"
	"github.com/dmitrijs2005/tornproxy/internal/dbx"
	"github.com/dmitrijs2005/tornproxy/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*models.ProxyCredential, error) {
	query :=
		`SELECT token, user_id, description, permissions, created_at, revoked_at
		 FROM proxy_credentials
		 WHERE user_id = $1
		 ORDER BY created_at ASC, token ASC`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]*models.ProxyCredential, 0)
	for rows.Next() {
		c := &models.ProxyCredential{}
		var revokedAt sql.NullTime
		if err := rows.Scan(&c.Token, &c.UserID, &c.Description, &c.Permissions, &c.CreatedAt, &revokedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		c.RevokedAt = timePtr(revokedAt)
		result = append(result, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

func (r *PostgresRepository) Create(ctx context.Context, c *models.ProxyCredential) error {
	query :=
		`INSERT INTO proxy_credentials (token, user_id, description, permissions)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query, c.Token, c.UserID, c.Description, string(c.Permissions)).Scan(&c.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, token string, ownerID int64, upd models.CredentialUpdate) (int64, error) {
	if upd.IsEmpty() {
		return 0, nil
	}

	var sets []string
	var args []any

	if upd.RevokedAt != nil {
		args = append(args, nullTimeArg(*upd.RevokedAt))
		sets = append(sets, fmt.Sprintf("revoked_at = $%d", len(args)))
	}
	if upd.Permissions != nil {
		args = append(args, string(*upd.Permissions))
		sets = append(sets, fmt.Sprintf("permissions = $%d", len(args)))
	}

	args = append(args, token, ownerID)
	query := fmt.Sprintf(
		`UPDATE proxy_credentials SET %s WHERE token = $%d AND user_id = $%d`,
		strings.Join(sets, ", "), len(args)-1, len(args),
	)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return n, nil
}

func (r *PostgresRepository) Resolve(ctx context.Context, token string) (*models.User, *models.ProxyCredential, error) {
	query :=
		`SELECT c.token, c.user_id, c.description, c.permissions, c.created_at, c.revoked_at,
		        u.id, u.name, u.iv, u.encrypted_secret, u.updated_at
		 FROM proxy_credentials c
		 JOIN users u ON u.id = c.user_id
		 WHERE c.token = $1`

	c := &models.ProxyCredential{}
	u := &models.User{}
	var revokedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&c.Token, &c.UserID, &c.Description, &c.Permissions, &c.CreatedAt, &revokedAt,
		&u.ID, &u.Name, &u.IV, &u.EncryptedSecret, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, common.ErrorNotFound
		}
		return nil, nil, fmt.Errorf("db error: %w", err)
	}
	c.RevokedAt = timePtr(revokedAt)

	return u, c, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTimeArg(t sql.NullTime) any {
	if !t.Valid {
		return nil
	}
	return t.Time
}
