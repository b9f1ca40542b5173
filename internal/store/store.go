// Package store persists Grimoire documents. The Store interface is the
// narrow gateway the rest of the service talks to; adapters exist for Redis
// (primary) and Postgres. All operations are atomic at single-document
// granularity - there is no cross-document transaction and no lock around
// "check name, then write", so two concurrent creates with the same name are
// arbitrated by whatever uniqueness the backing store enforces.
package store

import (
	"context"
	"errors"

	"github.com/grimoire-rpg/grimoire/pkg/document"
)

// ErrNotFound is returned when a document id or owner+name pair has no
// backing row.
var ErrNotFound = errors.New("document not found")

// IsNotFound returns true if the error is a "document not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Store exposes create/read/update/delete for both document kinds.
// Update replaces the whole persisted payload; Delete returns the document
// as it was at deletion time so callers can broadcast its final state.
type Store interface {
	SheetByID(ctx context.Context, id int64) (*document.Sheet, error)
	SheetByOwnerAndName(ctx context.Context, userID int64, name string) (*document.Sheet, error)
	SheetHeadsByOwner(ctx context.Context, userID int64) ([]document.SheetHead, error)
	CreateSheet(ctx context.Context, sheet *document.Sheet) (*document.Sheet, error)
	UpdateSheet(ctx context.Context, sheet *document.Sheet) (*document.Sheet, error)
	DeleteSheet(ctx context.Context, id int64) (*document.Sheet, error)

	MacroByID(ctx context.Context, id int64) (*document.Macro, error)
	MacroByOwnerAndName(ctx context.Context, userID int64, name string) (*document.Macro, error)
	MacroHeadsByOwner(ctx context.Context, userID int64) ([]document.MacroHead, error)
	CreateMacro(ctx context.Context, macro *document.Macro) (*document.Macro, error)
	UpdateMacro(ctx context.Context, macro *document.Macro) (*document.Macro, error)
	DeleteMacro(ctx context.Context, id int64) (*document.Macro, error)
}
