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
	"github.com/grimoire-rpg/grimoire/pkg/dice"
)

// DefaultMacroSection is the section every fresh macro document starts with.
const DefaultMacroSection = "Macros"

// MacroService owns the macro document lifecycle. It mirrors SheetService
// with the dice grammar plugged into validation and no password handling:
// macro documents carry no shared secret.
type MacroService struct {
	store     store.Store
	bus       *realtime.Bus
	checkDice document.DiceChecker
	log       zerolog.Logger

	now func() time.Time
}

// NewMacroService creates the macro service with the standard dice grammar.
func NewMacroService(st store.Store, bus *realtime.Bus, log zerolog.Logger) *MacroService {
	return &MacroService{
		store:     st,
		bus:       bus,
		checkDice: dice.Validate,
		log:       log.With().Str("component", "macro-service").Logger(),
		now:       time.Now,
	}
}

// Create makes a fresh macro document for the acting user.
func (s *MacroService) Create(ctx context.Context, actor *auth.Identity, name string, isPublic bool) (*document.Macro, error) {
	userID, err := actorUserID(actor)
	if err != nil {
		return nil, err
	}

	if errs := s.checkName(ctx, userID, name, 0); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	macro := &document.Macro{
		UserID:    userID,
		MacroName: name,
		IsPublic:  isPublic,
		Legacy:    false,
		Macros: document.MacroBody{
			Sections: []document.MacroSection{{Name: DefaultMacroSection, Position: 0}},
		},
		LastUse: touch(s.now),
	}

	created, err := s.store.CreateMacro(ctx, macro)
	if err != nil {
		return nil, fmt.Errorf("failed to create macro document: %w", err)
	}
	s.log.Info().Int64("macro_id", created.ID).Int64("user_id", userID).Msg("macro document created")
	return created, nil
}

// Get returns a macro document subject to visibility: owner and service tier
// always, everyone else only when it is public.
func (s *MacroService) Get(ctx context.Context, actor *auth.Identity, id int64) (*document.Macro, error) {
	macro, err := s.store.MacroByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if canTouch(actor, macro.UserID) || macro.IsPublic {
		return macro, nil
	}
	return nil, ErrForbidden
}

// List returns the macro heads owned by userID.
func (s *MacroService) List(ctx context.Context, actor *auth.Identity, userID int64) ([]document.MacroHead, error) {
	if !canTouch(actor, userID) {
		return nil, ErrForbidden
	}
	heads, err := s.store.MacroHeadsByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list macro documents: %w", err)
	}
	return heads, nil
}

// Update replaces the whole macro payload and, on success, publishes
// macro-updated to the document's room with the origin token echoed.
func (s *MacroService) Update(ctx context.Context, actor *auth.Identity, candidate *document.Macro, origin string) (*document.Macro, error) {
	existing, err := s.store.MacroByID(ctx, candidate.ID)
	if err != nil {
		return nil, err
	}
	if !canTouch(actor, existing.UserID) {
		return nil, ErrForbidden
	}

	var errs []document.FieldError
	errs = append(errs, s.checkName(ctx, existing.UserID, candidate.MacroName, existing.ID)...)
	errs = append(errs, document.ValidateMacroSections(candidate.Macros, s.checkDice)...)
	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	next := *candidate
	next.UserID = existing.UserID
	next.Legacy = false
	next.LastUse = touch(s.now)

	updated, err := s.store.UpdateMacro(ctx, &next)
	if err != nil {
		return nil, fmt.Errorf("failed to update macro document: %w", err)
	}

	if s.bus != nil {
		s.bus.Publish(realtime.MacroUpdated(updated, origin))
	}
	s.log.Info().Int64("macro_id", updated.ID).Msg("macro document updated")
	return updated, nil
}

// Delete removes a macro document and publishes the final macro-deleted
// event to its room. The document's final state is returned.
func (s *MacroService) Delete(ctx context.Context, actor *auth.Identity, id int64) (*document.Macro, error) {
	existing, err := s.store.MacroByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canTouch(actor, existing.UserID) {
		return nil, ErrForbidden
	}

	deleted, err := s.store.DeleteMacro(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete macro document: %w", err)
	}

	if s.bus != nil {
		s.bus.Publish(realtime.MacroDeleted(id))
	}
	s.log.Info().Int64("macro_id", id).Msg("macro document deleted")
	return deleted, nil
}

func (s *MacroService) checkName(ctx context.Context, userID int64, name string, selfID int64) []document.FieldError {
	if !document.ValidDocumentName(name) {
		return []document.FieldError{{Field: "macro_name", Message: "macro name must have at most 32 characters and no ' $ %"}}
	}

	other, err := s.store.MacroByOwnerAndName(ctx, userID, name)
	if err != nil {
		if store.IsNotFound(err) {
			return nil
		}
		s.log.Error().Err(err).Msg("macro name lookup failed")
		return []document.FieldError{{Field: "macro_name", Message: "could not verify macro name"}}
	}
	if other.ID != selfID {
		return []document.FieldError{{Field: "macro_name", Message: "macro name already in use"}}
	}
	return nil
}
