// Package realtime propagates accepted document mutations to every client
// currently viewing the same document. It is built from four pieces: an
// in-process event Bus owned by the composition root, a room membership
// Registry, a Hub that fans bus events out to room members, and a websocket
// Gateway that authenticates connections and feeds their room commands into
// the registry.
//
// Echo handling is recognition, not suppression: every member of a room -
// including the editor - receives the same message, and a client compares
// the attached origin token against the token it sent with its own mutation
// to decide whether the message is an echo.
package realtime

import (
	"fmt"
	"sync"

	"github.com/grimoire-rpg/grimoire/internal/auth"
	"github.com/grimoire-rpg/grimoire/pkg/document"
)

// Logical event names delivered to clients.
const (
	EventSheetUpdated        = "sheet-updated"
	EventSheetDeleted        = "sheet-deleted"
	EventMacroUpdated        = "macro-updated"
	EventMacroDeleted        = "macro-deleted"
	EventUserChanged         = "user-changed"
	EventUserPasswordChanged = "user-password-changed"
)

// SheetRoom returns the room identifier for a sheet. A sheet and a macro
// with the same numeric id are different rooms.
func SheetRoom(id int64) string {
	return fmt.Sprintf("sheet-%d", id)
}

// MacroRoom returns the room identifier for a macro document.
func MacroRoom(id int64) string {
	return fmt.Sprintf("macro-%d", id)
}

// UserRoom returns the per-user room every authenticated connection joins on
// connect; user account events are delivered there.
func UserRoom(userID int64) string {
	return fmt.Sprintf("user-%d", userID)
}

// Event is one mutation-success notification flowing from the write path to
// the broadcaster. Origin is the opaque correlation token the editing client
// attached to its request; it is echoed verbatim to every room member.
type Event struct {
	Room    string
	Name    string
	Payload any
	Origin  string
}

// SheetUpdated builds the event published after a successful sheet update.
func SheetUpdated(sheet *document.Sheet, origin string) Event {
	return Event{Room: SheetRoom(sheet.ID), Name: EventSheetUpdated, Payload: sheet, Origin: origin}
}

// SheetDeleted builds the final event delivered to a sheet room. Members
// are expected to leave the room themselves after receiving it.
func SheetDeleted(id int64) Event {
	return Event{Room: SheetRoom(id), Name: EventSheetDeleted, Payload: id}
}

// MacroUpdated builds the event published after a successful macro update.
func MacroUpdated(macro *document.Macro, origin string) Event {
	return Event{Room: MacroRoom(macro.ID), Name: EventMacroUpdated, Payload: macro, Origin: origin}
}

// MacroDeleted builds the final event delivered to a macro room.
func MacroDeleted(id int64) Event {
	return Event{Room: MacroRoom(id), Name: EventMacroDeleted, Payload: id}
}

// UserChanged builds the event delivered to a user's own room when their
// account summary changes.
func UserChanged(user *auth.User) Event {
	return Event{Room: UserRoom(user.ID), Name: EventUserChanged, Payload: user}
}

// UserPasswordChanged builds the event delivered to a user's own room when
// their account password changes, so other sessions can re-authenticate.
func UserPasswordChanged(userID int64) Event {
	return Event{Room: UserRoom(userID), Name: EventUserPasswordChanged}
}

// subscriptionBuffer is the event backlog a single subscriber may accumulate
// before further events are dropped for it.
const subscriptionBuffer = 256

// Bus is the in-process publish/subscribe pipe between the write path and
// the broadcaster. It is constructed once by the composition root and passed
// by reference; there is no ambient global emitter.
type Bus struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Publish delivers ev to every live subscription in call order. Publish
// calls are serialized, so each subscriber observes events in FIFO order. A
// subscriber that falls more than subscriptionBuffer events behind loses the
// overflow (at-most-once, matching interactive editing load).
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		select {
		case sub.events <- ev:
		default:
		}
	}
}

// Subscribe registers a new subscription. Caller must Close() it when done.
func (b *Bus) Subscribe() *Subscription {
	sub := &Subscription{
		bus:    b,
		events: make(chan Event, subscriptionBuffer),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.events)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Close shuts the bus down and closes every subscription channel.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.events)
		delete(b.subs, sub)
	}
	return nil
}

// Subscription is one live attachment to the bus.
// Caller must call Close() when done to release resources.
type Subscription struct {
	bus    *Bus
	events chan Event
	once   sync.Once
}

// Events returns the channel of published events. It is closed when either
// the subscription or the bus is closed.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close detaches the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		if _, ok := s.bus.subs[s]; ok {
			delete(s.bus.subs, s)
			close(s.events)
		}
	})
	return nil
}
