// Package auth turns bearer credentials into user identities. Two trust
// tiers exist: a single static service token grants full access with no user
// attached, and everything else is treated as a signed user token with a
// seven-day lifetime. Password hashing and credential issuance flows live
// outside this service; only verification is needed here.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenLifetime is how long an issued user token stays valid.
const TokenLifetime = 7 * 24 * time.Hour

var (
	// ErrMissingToken is returned when no credential is present at all.
	ErrMissingToken = errors.New("token not found")
	// ErrInvalidToken is returned when a credential fails signature or
	// expiry checks.
	ErrInvalidToken = errors.New("invalid token")
	// ErrUserNotFound is returned when a valid token names a user that no
	// longer exists.
	ErrUserNotFound = errors.New("user not found")
)

// User is the summary attached to authenticated requests and connections.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
	IsBeta    bool   `json:"is_beta"`
	IsPremium bool   `json:"is_premium"`
}

// Identity is the outcome of a successful verification. Service identities
// bypass user-level checks entirely and carry no user.
type Identity struct {
	Service bool
	User    *User
}

// UserDirectory resolves a token subject to a user summary. Backed by the
// external user storage; consumed here through this narrow interface only.
type UserDirectory interface {
	UserByID(ctx context.Context, id int64) (*User, error)
}

// Authenticator verifies bearer credentials.
type Authenticator interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// TokenAuthenticator is the production Authenticator: HMAC-signed user
// tokens plus the static service-to-service token.
type TokenAuthenticator struct {
	secret       []byte
	serviceToken string
	users        UserDirectory
}

var _ Authenticator = (*TokenAuthenticator)(nil)

// NewTokenAuthenticator creates an authenticator. secret signs user tokens;
// serviceToken may be empty to disable the service tier.
func NewTokenAuthenticator(secret, serviceToken string, users UserDirectory) (*TokenAuthenticator, error) {
	if secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	if users == nil {
		return nil, fmt.Errorf("user directory cannot be nil")
	}
	return &TokenAuthenticator{
		secret:       []byte(secret),
		serviceToken: serviceToken,
		users:        users,
	}, nil
}

// Verify checks a bearer credential and returns the attached identity.
// A "Bearer " prefix is tolerated and stripped.
func (a *TokenAuthenticator) Verify(ctx context.Context, token string) (*Identity, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, ErrMissingToken
	}

	if a.serviceToken != "" && token == a.serviceToken {
		return &Identity{Service: true}, nil
	}

	userID, err := a.parseUserToken(token)
	if err != nil {
		return nil, err
	}

	user, err := a.users.UserByID(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve token subject: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	return &Identity{User: user}, nil
}

// Issue signs a fresh user token valid for TokenLifetime.
func (a *TokenAuthenticator) Issue(userID int64) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(TokenLifetime)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Refresh re-issues a token for the same subject with a fresh lifetime.
// The incoming token must still verify.
func (a *TokenAuthenticator) Refresh(token string) (string, error) {
	userID, err := a.parseUserToken(strings.TrimSpace(strings.TrimPrefix(token, "Bearer ")))
	if err != nil {
		return "", err
	}
	return a.Issue(userID)
}

func (a *TokenAuthenticator) parseUserToken(token string) (int64, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !parsed.Valid {
		return 0, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return 0, ErrInvalidToken
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return userID, nil
}
