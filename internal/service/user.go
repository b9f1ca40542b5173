package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/grimoire-rpg/grimoire/internal/auth"
	"github.com/grimoire-rpg/grimoire/internal/realtime"
	"github.com/grimoire-rpg/grimoire/pkg/document"
)

// MaxUsernameLen bounds the visible user name.
const MaxUsernameLen = 32

// UserStore is the narrow user persistence surface the user service needs.
// Account creation and credential handling live in the external account
// system; this service only maintains the summary used for display.
type UserStore interface {
	auth.UserDirectory
	SaveUser(ctx context.Context, user *auth.User) error
}

// ProfileUpdate carries the editable profile fields. Nil means "keep".
type ProfileUpdate struct {
	Username  *string
	AvatarURL *string
}

// UserService maintains user summaries and their account events.
type UserService struct {
	store UserStore
	bus   *realtime.Bus
	log   zerolog.Logger
}

// NewUserService creates the user service.
func NewUserService(st UserStore, bus *realtime.Bus, log zerolog.Logger) *UserService {
	return &UserService{
		store: st,
		bus:   bus,
		log:   log.With().Str("component", "user-service").Logger(),
	}
}

// UpdateProfile applies the editable fields to the acting user's summary and
// publishes user-changed to their room. Tier flags (beta, premium) are not
// editable here.
func (s *UserService) UpdateProfile(ctx context.Context, actor *auth.Identity, update ProfileUpdate) (*auth.User, error) {
	userID, err := actorUserID(actor)
	if err != nil {
		return nil, err
	}

	if errs := validateProfile(update); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	next := *user
	if update.Username != nil {
		next.Username = *update.Username
	}
	if update.AvatarURL != nil {
		next.AvatarURL = *update.AvatarURL
	}

	if err := s.store.SaveUser(ctx, &next); err != nil {
		return nil, fmt.Errorf("failed to save user profile: %w", err)
	}

	if s.bus != nil {
		s.bus.Publish(realtime.UserChanged(&next))
	}
	s.log.Info().Int64("user_id", next.ID).Msg("user profile updated")
	return &next, nil
}

// NotifyPasswordChanged publishes user-password-changed to the user's room.
// The credential update itself happens in the external account system, which
// calls this through the service tier; a user may also trigger it for their
// own account.
func (s *UserService) NotifyPasswordChanged(ctx context.Context, actor *auth.Identity, userID int64) error {
	if actor == nil {
		return ErrUnauthorized
	}
	if !canTouch(actor, userID) {
		return ErrForbidden
	}

	if s.bus != nil {
		s.bus.Publish(realtime.UserPasswordChanged(userID))
	}
	s.log.Info().Int64("user_id", userID).Msg("password change broadcast")
	return nil
}

func validateProfile(update ProfileUpdate) []document.FieldError {
	var errs []document.FieldError
	if update.Username != nil {
		name := *update.Username
		if name == "" {
			errs = append(errs, document.FieldError{Field: "username", Message: "username cannot be empty"})
		}
		if len([]rune(name)) > MaxUsernameLen {
			errs = append(errs, document.FieldError{Field: "username", Message: "username must have at most 32 characters"})
		}
		if name != "" && !document.IsRestrictedText(name) {
			errs = append(errs, document.FieldError{Field: "username", Message: "username contains invalid characters"})
		}
	}
	if update.AvatarURL != nil && *update.AvatarURL != "" && !document.IsImageURL(*update.AvatarURL) {
		errs = append(errs, document.FieldError{Field: "avatar_url", Message: "avatar must be a valid image URL"})
	}
	return errs
}
