package realtime

import (
	"context"

	"github.com/rs/zerolog"
)

// Hub is the room broadcaster: it consumes the bus on a single goroutine and
// fans each event out to every member of the matching room, including the
// originator. Single consumption keeps delivery FIFO per room; ordering
// across different rooms is not guaranteed and not needed.
type Hub struct {
	bus      *Bus
	registry *Registry
	log      zerolog.Logger
}

// NewHub creates a broadcaster over the given bus and registry.
func NewHub(bus *Bus, registry *Registry, log zerolog.Logger) *Hub {
	return &Hub{
		bus:      bus,
		registry: registry,
		log:      log.With().Str("component", "hub").Logger(),
	}
}

// Run consumes the bus until ctx is cancelled or the bus closes.
func (h *Hub) Run(ctx context.Context) {
	sub := h.bus.Subscribe()
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			h.broadcast(ev)
		}
	}
}

func (h *Hub) broadcast(ev Event) {
	members := h.registry.Members(ev.Room)
	if len(members) == 0 {
		return
	}

	msg := OutboundMessage{Event: ev.Name, Data: ev.Payload, Origin: ev.Origin}
	for _, m := range members {
		m.Deliver(msg)
	}

	h.log.Debug().
		Str("room", ev.Room).
		Str("event", ev.Name).
		Int("members", len(members)).
		Msg("event broadcast")
}
