// Package service implements the write and read paths for Grimoire
// documents: ownership and visibility checks, full-payload validation, and
// the publish-on-success contract with the realtime layer. A mutation that
// fails validation or authorization never reaches the store and never
// produces an event.
package service

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/grimoire-rpg/grimoire/internal/auth"
	"github.com/grimoire-rpg/grimoire/pkg/document"
)

var (
	// ErrForbidden is returned when the actor is authenticated but not
	// allowed to touch the document.
	ErrForbidden = errors.New("not allowed")
	// ErrUnauthorized is returned when an operation requires a user identity
	// and none is attached.
	ErrUnauthorized = errors.New("authentication required")
)

// ValidationError carries the complete list of rule violations for a
// rejected payload. Handlers render it as a 400 with the list attached.
type ValidationError struct {
	Errors []document.FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation failed: %s: %s", e.Errors[0].Field, e.Errors[0].Message)
	}
	return fmt.Sprintf("validation failed with %d errors", len(e.Errors))
}

// AsValidation unwraps err as a ValidationError, if it is one.
func AsValidation(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}

const (
	sheetPasswordLen      = 10
	sheetPasswordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// newSheetPassword generates the short shared secret handed to players who
// should see a private sheet.
func newSheetPassword() (string, error) {
	var b strings.Builder
	b.Grow(sheetPasswordLen)
	for i := 0; i < sheetPasswordLen; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(sheetPasswordAlphabet))))
		if err != nil {
			return "", fmt.Errorf("failed to generate sheet password: %w", err)
		}
		b.WriteByte(sheetPasswordAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// actorUserID resolves the acting user id, or ErrUnauthorized for identities
// without a user (the service tier acts on behalf of an explicit owner).
func actorUserID(actor *auth.Identity) (int64, error) {
	if actor == nil || actor.User == nil {
		return 0, ErrUnauthorized
	}
	return actor.User.ID, nil
}

// canTouch reports whether actor may mutate a document owned by ownerID.
// The service tier may touch anything.
func canTouch(actor *auth.Identity, ownerID int64) bool {
	if actor == nil {
		return false
	}
	if actor.Service {
		return true
	}
	return actor.User != nil && actor.User.ID == ownerID
}

// touch stamps the document's last-use time.
func touch(now func() time.Time) time.Time {
	if now != nil {
		return now().UTC()
	}
	return time.Now().UTC()
}
