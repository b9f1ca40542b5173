package realtime

import "sync"

// OutboundMessage is the envelope delivered to clients. Origin carries the
// correlation token of the mutation that produced the event, when there was
// one.
type OutboundMessage struct {
	Event  string `json:"event"`
	Data   any    `json:"data,omitempty"`
	Origin string `json:"origin,omitempty"`
}

// Member is one deliverable room participant. Deliver must not block: slow
// consumers are the member's own problem, never the broadcaster's.
type Member interface {
	Deliver(msg OutboundMessage)
}

// Registry tracks which members are watching which room. All operations are
// idempotent - joining a room twice or leaving one never joined is not an
// error - and safe for concurrent use from many connections.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[Member]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]map[Member]struct{})}
}

// Join adds m to room.
func (r *Registry) Join(m Member, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[Member]struct{})
		r.rooms[room] = members
	}
	members[m] = struct{}{}
}

// Leave removes m from room. Empty rooms are forgotten.
func (r *Registry) Leave(m Member, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, m)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// DropAll removes m from every room it joined. Called on disconnect.
func (r *Registry) DropAll(m Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for room, members := range r.rooms {
		delete(members, m)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
}

// Members returns a snapshot of the current membership of room.
func (r *Registry) Members(room string) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := make([]Member, 0, len(r.rooms[room]))
	for m := range r.rooms[room] {
		members = append(members, m)
	}
	return members
}

// Count returns how many members are watching room.
func (r *Registry) Count(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}
