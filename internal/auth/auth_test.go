package auth

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDirectory resolves a fixed set of users.
type fakeDirectory struct {
	users map[int64]*User
}

func (d *fakeDirectory) UserByID(_ context.Context, id int64) (*User, error) {
	return d.users[id], nil
}

func setupAuthenticator(t *testing.T) *TokenAuthenticator {
	dir := &fakeDirectory{users: map[int64]*User{
		7: {ID: 7, Username: "aldric", IsBeta: true},
	}}
	a, err := NewTokenAuthenticator("test-secret", "service-token-123", dir)
	require.NoError(t, err)
	return a
}

func TestNewTokenAuthenticator(t *testing.T) {
	t.Run("rejects empty secret", func(t *testing.T) {
		_, err := NewTokenAuthenticator("", "svc", &fakeDirectory{})
		assert.Error(t, err)
	})

	t.Run("rejects nil directory", func(t *testing.T) {
		_, err := NewTokenAuthenticator("secret", "svc", nil)
		assert.Error(t, err)
	})
}

func TestVerify(t *testing.T) {
	a := setupAuthenticator(t)
	ctx := context.Background()

	t.Run("round trips an issued token", func(t *testing.T) {
		token, err := a.Issue(7)
		require.NoError(t, err)

		identity, err := a.Verify(ctx, token)
		require.NoError(t, err)
		assert.False(t, identity.Service)
		require.NotNil(t, identity.User)
		assert.Equal(t, int64(7), identity.User.ID)
		assert.Equal(t, "aldric", identity.User.Username)
	})

	t.Run("strips bearer prefix", func(t *testing.T) {
		token, err := a.Issue(7)
		require.NoError(t, err)

		identity, err := a.Verify(ctx, "Bearer "+token)
		require.NoError(t, err)
		assert.Equal(t, int64(7), identity.User.ID)
	})

	t.Run("service token gets a service identity", func(t *testing.T) {
		identity, err := a.Verify(ctx, "service-token-123")
		require.NoError(t, err)
		assert.True(t, identity.Service)
		assert.Nil(t, identity.User)
	})

	t.Run("empty credential is missing", func(t *testing.T) {
		_, err := a.Verify(ctx, "")
		assert.ErrorIs(t, err, ErrMissingToken)
	})

	t.Run("garbage is invalid", func(t *testing.T) {
		_, err := a.Verify(ctx, "not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired token is invalid", func(t *testing.T) {
		claims := jwt.RegisteredClaims{
			Subject:   "7",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-8 * 24 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-24 * time.Hour)),
		}
		expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		require.NoError(t, err)

		_, err = a.Verify(ctx, expired)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("token signed with another secret is invalid", func(t *testing.T) {
		claims := jwt.RegisteredClaims{
			Subject:   "7",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}
		forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-secret"))
		require.NoError(t, err)

		_, err = a.Verify(ctx, forged)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("valid token for a deleted user", func(t *testing.T) {
		token, err := a.Issue(404)
		require.NoError(t, err)

		_, err = a.Verify(ctx, token)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestRefresh(t *testing.T) {
	a := setupAuthenticator(t)

	token, err := a.Issue(7)
	require.NoError(t, err)

	refreshed, err := a.Refresh(token)
	require.NoError(t, err)

	identity, err := a.Verify(context.Background(), refreshed)
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatInt(identity.User.ID, 10), "7")

	_, err = a.Refresh("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
