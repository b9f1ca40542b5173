package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grimoire-rpg/grimoire/pkg/document"
)

func TestRoomNames(t *testing.T) {
	assert.Equal(t, "sheet-12", SheetRoom(12))
	assert.Equal(t, "macro-12", MacroRoom(12))
	assert.Equal(t, "user-7", UserRoom(7))
	assert.NotEqual(t, SheetRoom(5), MacroRoom(5), "sheet and macro rooms with the same id must not collide")
}

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	sub := bus.Subscribe()
	defer sub.Close()

	sheet := &document.Sheet{ID: 3, SheetName: "Vera"}
	bus.Publish(SheetUpdated(sheet, "tok-1"))
	bus.Publish(SheetDeleted(3))

	ev := <-sub.Events()
	assert.Equal(t, EventSheetUpdated, ev.Name)
	assert.Equal(t, "sheet-3", ev.Room)
	assert.Equal(t, "tok-1", ev.Origin)
	assert.Same(t, sheet, ev.Payload)

	ev = <-sub.Events()
	assert.Equal(t, EventSheetDeleted, ev.Name)
	assert.Equal(t, int64(3), ev.Payload)
}

func TestBusFanOut(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	first := bus.Subscribe()
	second := bus.Subscribe()
	defer first.Close()
	defer second.Close()

	bus.Publish(MacroDeleted(9))

	for _, sub := range []*Subscription{first, second} {
		select {
		case ev := <-sub.Events():
			assert.Equal(t, EventMacroDeleted, ev.Name)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the event")
		}
	}
}

func TestSubscriptionCloseDetaches(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	sub := bus.Subscribe()
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close(), "close must be idempotent")

	// Publishing after detach must not panic on the closed channel.
	bus.Publish(SheetDeleted(1))

	_, open := <-sub.Events()
	assert.False(t, open)
}

func TestBusCloseClosesSubscribers(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe()

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close(), "close must be idempotent")

	_, open := <-sub.Events()
	assert.False(t, open)

	late := bus.Subscribe()
	_, open = <-late.Events()
	assert.False(t, open, "subscribing to a closed bus yields a closed subscription")
}
