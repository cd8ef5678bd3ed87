package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/tornproxy/internal/common"
	"github.com/dmitrijs2005/tornproxy/internal/cryptox"
	"github.com/dmitrijs2005/tornproxy/internal/dbx"
	"github.com/dmitrijs2005/tornproxy/internal/server/models"
	credentialsrepo "github.com/dmitrijs2005/tornproxy/internal/server/repositories/credentials"
	"github.com/dmitrijs2005/tornproxy/internal/server/repositories/revokedsessions"
	usersrepo "github.com/dmitrijs2005/tornproxy/internal/server/repositories/users"
)

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func newTestVault(t *testing.T) *cryptox.Vault {
	t.Helper()
	key, err := common.GenerateRandByteArray(cryptox.KeySize)
	if err != nil {
		t.Fatalf("GenerateRandByteArray: %v", err)
	}
	v, err := cryptox.NewVault(key)
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}
	return v
}

type fakeUsersRepo struct {
	users     map[int64]*models.User
	upsertErr error
	getErr    error
}

func (f *fakeUsersRepo) Upsert(_ context.Context, u *models.User) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	u.UpdatedAt = time.Now()
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeUsersRepo) GetByID(_ context.Context, id int64) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

// fakeCredentialsRepo keeps credentials in insertion order and applies the
// same ownership rule as the SQL statement.
type fakeCredentialsRepo struct {
	users   *fakeUsersRepo
	creds   []*models.ProxyCredential
	updates int
	err     error
}

func (f *fakeCredentialsRepo) ListByOwner(_ context.Context, ownerID int64) ([]*models.ProxyCredential, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*models.ProxyCredential, 0)
	for _, c := range f.creds {
		if c.UserID == ownerID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeCredentialsRepo) Create(_ context.Context, c *models.ProxyCredential) error {
	if f.err != nil {
		return f.err
	}
	c.CreatedAt = time.Now()
	cp := *c
	f.creds = append(f.creds, &cp)
	return nil
}

func (f *fakeCredentialsRepo) Update(_ context.Context, token string, ownerID int64, upd models.CredentialUpdate) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if upd.IsEmpty() {
		return 0, nil
	}
	f.updates++
	for _, c := range f.creds {
		if c.Token != token || c.UserID != ownerID {
			continue
		}
		if upd.RevokedAt != nil {
			if upd.RevokedAt.Valid {
				t := upd.RevokedAt.Time
				c.RevokedAt = &t
			} else {
				c.RevokedAt = nil
			}
		}
		if upd.Permissions != nil {
			c.Permissions = *upd.Permissions
		}
		return 1, nil
	}
	return 0, nil
}

func (f *fakeCredentialsRepo) Resolve(_ context.Context, token string) (*models.User, *models.ProxyCredential, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	for _, c := range f.creds {
		if c.Token == token {
			u, ok := f.users.users[c.UserID]
			if !ok {
				return nil, nil, common.ErrorNotFound
			}
			cp := *c
			return u, &cp, nil
		}
	}
	return nil, nil, common.ErrorNotFound
}

type fakeRepoManager struct {
	u *fakeUsersRepo
	c *fakeCredentialsRepo
}

func newFakeRepoManager() *fakeRepoManager {
	u := &fakeUsersRepo{users: map[int64]*models.User{}}
	return &fakeRepoManager{u: u, c: &fakeCredentialsRepo{users: u}}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error          { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository                { return m.u }
func (m *fakeRepoManager) Credentials(db dbx.DBTX) credentialsrepo.Repository    { return m.c }
func (m *fakeRepoManager) RevokedSessions(db dbx.DBTX) revokedsessions.Repository { return nil }
