// Package denylist remembers owner sessions that were locked before they
// expired. It is optional; the default store remembers nothing.
package denylist

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tornproxy/internal/server/repositories/repomanager"
	"github.com/redis/go-redis/v9"
)

// Store records revoked session ids until their expiry.
type Store interface {
	Add(ctx context.Context, jti string, expiresAt time.Time) error
	Contains(ctx context.Context, jti string) (bool, error)
}

type nopStore struct{}

func (nopStore) Add(context.Context, string, time.Time) error     { return nil }
func (nopStore) Contains(context.Context, string) (bool, error) { return false, nil }

// Nop returns a Store that never denies.
func Nop() Store { return nopStore{} }

// PostgresStore keeps revoked sessions in the revoked_sessions table.
type PostgresStore struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewPostgresStore(db *sql.DB, m repomanager.RepositoryManager) *PostgresStore {
	return &PostgresStore{db: db, repomanager: m}
}

func (s *PostgresStore) Add(ctx context.Context, jti string, expiresAt time.Time) error {
	return s.repomanager.RevokedSessions(s.db).Create(ctx, jti, expiresAt)
}

func (s *PostgresStore) Contains(ctx context.Context, jti string) (bool, error) {
	return s.repomanager.RevokedSessions(s.db).Exists(ctx, jti)
}

// Purge deletes expired rows.
func (s *PostgresStore) Purge(ctx context.Context) (int64, error) {
	return s.repomanager.RevokedSessions(s.db).DeleteExpired(ctx)
}

// RedisCmdable is the part of the go-redis client the store uses.
type RedisCmdable interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

const redisKeyPrefix = "tornproxy:revoked:"

// RedisStore keeps revoked sessions as keys with a TTL, so expiry is
// handled by redis.
type RedisStore struct {
	client RedisCmdable
}

func NewRedisStore(client RedisCmdable) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Add(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, redisKeyPrefix+jti, 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

func (s *RedisStore) Contains(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, redisKeyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}
	return n > 0, nil
}

// OpenRedis connects to addr and pings it.
func OpenRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
