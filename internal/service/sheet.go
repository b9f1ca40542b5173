package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/grimoire-rpg/grimoire/internal/auth"
	"github.com/grimoire-rpg/grimoire/internal/realtime"
	"github.com/grimoire-rpg/grimoire/internal/store"
	"github.com/grimoire-rpg/grimoire/pkg/document"
)

// DefaultSheetSection is the section every fresh sheet starts with.
const DefaultSheetSection = "Info"

// SheetService owns the sheet document lifecycle.
type SheetService struct {
	store store.Store
	bus   *realtime.Bus
	log   zerolog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewSheetService creates the sheet service. bus may be nil in contexts that
// do not broadcast (one-shot tooling).
func NewSheetService(st store.Store, bus *realtime.Bus, log zerolog.Logger) *SheetService {
	return &SheetService{
		store: st,
		bus:   bus,
		log:   log.With().Str("component", "sheet-service").Logger(),
		now:   time.Now,
	}
}

// Create makes a fresh sheet for the acting user: server-generated password,
// one default section, legacy always false. Creation does not broadcast -
// nobody can be watching a document that does not exist yet.
func (s *SheetService) Create(ctx context.Context, actor *auth.Identity, name string, isPublic bool) (*document.Sheet, error) {
	userID, err := actorUserID(actor)
	if err != nil {
		return nil, err
	}

	if errs := s.checkName(ctx, userID, name, 0); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	password, err := newSheetPassword()
	if err != nil {
		return nil, err
	}

	sheet := &document.Sheet{
		UserID:        userID,
		SheetName:     name,
		SheetPassword: password,
		IsPublic:      isPublic,
		Legacy:        false,
		Attributes: document.SheetBody{
			Sections: []document.SheetSection{{Name: DefaultSheetSection, Position: 0}},
		},
		LastUse: touch(s.now),
	}

	created, err := s.store.CreateSheet(ctx, sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	s.log.Info().Int64("sheet_id", created.ID).Int64("user_id", userID).Msg("sheet created")
	return created, nil
}

// Get returns a sheet subject to visibility: the owner and the service tier
// see everything, anyone else sees public sheets with the password stripped.
// Private sheets are ErrForbidden to outsiders.
func (s *SheetService) Get(ctx context.Context, actor *auth.Identity, id int64) (*document.Sheet, error) {
	sheet, err := s.store.SheetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.shareSheet(actor, sheet)
}

// GetByOwnerAndName resolves a sheet by its owner id and name, with the same
// visibility rules as Get.
func (s *SheetService) GetByOwnerAndName(ctx context.Context, actor *auth.Identity, userID int64, name string) (*document.Sheet, error) {
	sheet, err := s.store.SheetByOwnerAndName(ctx, userID, name)
	if err != nil {
		return nil, err
	}
	return s.shareSheet(actor, sheet)
}

func (s *SheetService) shareSheet(actor *auth.Identity, sheet *document.Sheet) (*document.Sheet, error) {
	if canTouch(actor, sheet.UserID) {
		return sheet, nil
	}
	if !sheet.IsPublic {
		return nil, ErrForbidden
	}

	shared := *sheet
	shared.SheetPassword = ""
	return &shared, nil
}

// List returns the sheet heads owned by userID. Only the owner and the
// service tier may list.
func (s *SheetService) List(ctx context.Context, actor *auth.Identity, userID int64) ([]document.SheetHead, error) {
	if !canTouch(actor, userID) {
		return nil, ErrForbidden
	}
	heads, err := s.store.SheetHeadsByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sheets: %w", err)
	}
	return heads, nil
}

// Update replaces the whole sheet payload and, on success, publishes
// sheet-updated to the sheet's room with the caller's origin token echoed.
// Owner, id and password are never editable through this path; legacy is
// forced false on every accepted write.
func (s *SheetService) Update(ctx context.Context, actor *auth.Identity, candidate *document.Sheet, origin string) (*document.Sheet, error) {
	existing, err := s.store.SheetByID(ctx, candidate.ID)
	if err != nil {
		return nil, err
	}
	if !canTouch(actor, existing.UserID) {
		return nil, ErrForbidden
	}

	var errs []document.FieldError
	errs = append(errs, s.checkName(ctx, existing.UserID, candidate.SheetName, existing.ID)...)
	errs = append(errs, document.ValidateSheetSections(candidate.Attributes)...)
	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	next := *candidate
	next.UserID = existing.UserID
	next.SheetPassword = existing.SheetPassword
	next.Legacy = false
	next.LastUse = touch(s.now)

	updated, err := s.store.UpdateSheet(ctx, &next)
	if err != nil {
		return nil, fmt.Errorf("failed to update sheet: %w", err)
	}

	if s.bus != nil {
		s.bus.Publish(realtime.SheetUpdated(updated, origin))
	}
	s.log.Info().Int64("sheet_id", updated.ID).Msg("sheet updated")
	return updated, nil
}

// Delete removes a sheet after an ownership check and publishes the single
// final sheet-deleted event to its room. The sheet's final state is returned
// so callers can hand it back to the deleting client.
func (s *SheetService) Delete(ctx context.Context, actor *auth.Identity, id int64) (*document.Sheet, error) {
	existing, err := s.store.SheetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canTouch(actor, existing.UserID) {
		return nil, ErrForbidden
	}

	deleted, err := s.store.DeleteSheet(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete sheet: %w", err)
	}

	if s.bus != nil {
		s.bus.Publish(realtime.SheetDeleted(id))
	}
	s.log.Info().Int64("sheet_id", id).Msg("sheet deleted")
	return deleted, nil
}

// checkName enforces the document-name rules plus per-owner uniqueness.
// selfID exempts the document's own current name on update.
func (s *SheetService) checkName(ctx context.Context, userID int64, name string, selfID int64) []document.FieldError {
	if !document.ValidDocumentName(name) {
		return []document.FieldError{{Field: "sheet_name", Message: "sheet name must have at most 32 characters and no ' $ %"}}
	}

	other, err := s.store.SheetByOwnerAndName(ctx, userID, name)
	if err != nil {
		if store.IsNotFound(err) {
			return nil
		}
		s.log.Error().Err(err).Msg("sheet name lookup failed")
		return []document.FieldError{{Field: "sheet_name", Message: "could not verify sheet name"}}
	}
	if other.ID != selfID {
		return []document.FieldError{{Field: "sheet_name", Message: "sheet name already in use"}}
	}
	return nil
}
