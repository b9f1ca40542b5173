package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/grimoire-rpg/grimoire/internal/auth"
)

// User summaries are written by the account sync flow of the companion bot;
// this service only reads them to resolve token subjects, plus SaveUser for
// provisioning and tests. RedisStore and PostgresStore both satisfy
// auth.UserDirectory.

var _ auth.UserDirectory = (*RedisStore)(nil)
var _ auth.UserDirectory = (*PostgresStore)(nil)

// UserByID retrieves a user summary. Returns auth.ErrUserNotFound when the
// user does not exist, matching the authenticator's taxonomy.
func (s *RedisStore) UserByID(ctx context.Context, id int64) (*auth.User, error) {
	data, err := s.rdb.Get(ctx, UserKey(s.instance, id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, auth.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user from Redis: %w", err)
	}
	var user auth.User
	if err := json.Unmarshal([]byte(data), &user); err != nil {
		return nil, fmt.Errorf("failed to deserialize user %d: %w", id, err)
	}
	return &user, nil
}

// SaveUser writes a user summary blob.
func (s *RedisStore) SaveUser(ctx context.Context, user *auth.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to serialize user: %w", err)
	}
	if err := s.rdb.Set(ctx, UserKey(s.instance, user.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write user to Redis: %w", err)
	}
	return nil
}

// UserByID retrieves a user summary from the users table.
func (s *PostgresStore) UserByID(ctx context.Context, id int64) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, avatar_url, is_beta, is_premium FROM users WHERE id = $1`, id)

	var user auth.User
	err := row.Scan(&user.ID, &user.Username, &user.AvatarURL, &user.IsBeta, &user.IsPremium)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user: %w", err)
	}
	return &user, nil
}

// SaveUser upserts a user summary row.
func (s *PostgresStore) SaveUser(ctx context.Context, user *auth.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, avatar_url, is_beta, is_premium)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
		   username = EXCLUDED.username,
		   avatar_url = EXCLUDED.avatar_url,
		   is_beta = EXCLUDED.is_beta,
		   is_premium = EXCLUDED.is_premium`,
		user.ID, user.Username, user.AvatarURL, user.IsBeta, user.IsPremium)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}
