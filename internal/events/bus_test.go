package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBusDeliversInOrder(t *testing.T) {
	bus := NewLocalBus()
	var got []string

	bus.Subscribe(ProgressUpdated, func(e Event) { got = append(got, "first:"+e.UserID) })
	bus.Subscribe(ProgressUpdated, func(e Event) { got = append(got, "second:"+e.UserID) })
	bus.Subscribe("other", func(e Event) { got = append(got, "other") })

	e := NewEvent(ProgressUpdated)
	e.UserID = "u1"
	require.NoError(t, bus.Publish(context.Background(), e))

	assert.Equal(t, []string{"first:u1", "second:u1"}, got)
}

func TestLocalBusUnsubscribe(t *testing.T) {
	bus := NewLocalBus()
	calls := 0

	unsubscribe := bus.Subscribe(ProgressUpdated, func(Event) { calls++ })
	assert.Equal(t, 1, bus.HandlerCount(ProgressUpdated))

	require.NoError(t, bus.Publish(context.Background(), Event{Name: ProgressUpdated}))
	unsubscribe()
	unsubscribe() // idempotent
	require.NoError(t, bus.Publish(context.Background(), Event{Name: ProgressUpdated}))

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, bus.HandlerCount(ProgressUpdated))
}

func TestLocalBusRecoversHandlerPanic(t *testing.T) {
	bus := NewLocalBus()
	reached := false

	bus.Subscribe(ProgressUpdated, func(Event) { panic("boom") })
	bus.Subscribe(ProgressUpdated, func(Event) { reached = true })

	assert.NotPanics(t, func() {
		_ = bus.Publish(context.Background(), Event{Name: ProgressUpdated})
	})
	assert.True(t, reached)
}

func TestLocalBusStampsEvents(t *testing.T) {
	bus := NewLocalBus()
	var got Event
	bus.Subscribe(ProgressUpdated, func(e Event) { got = e })

	require.NoError(t, bus.Publish(context.Background(), Event{Name: ProgressUpdated}))
	assert.NotEmpty(t, got.ID)
	assert.False(t, got.At.IsZero())
}

func TestEventCodec(t *testing.T) {
	e := NewEvent(ProgressUpdated)
	e.UserID = "u1"
	e.ToolID = "seo"
	e.StepID = "s1"
	e.Completed = true

	raw, err := encodeEvent(e)
	require.NoError(t, err)

	decoded, err := decodeEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, e.ID, decoded.ID)
	assert.Equal(t, e.UserID, decoded.UserID)
	assert.True(t, decoded.Completed)
	assert.True(t, e.At.Equal(decoded.At))

	_, err = encodeEvent(Event{})
	assert.Error(t, err)

	_, err = decodeEvent([]byte(`{"user_id":"u1"}`))
	assert.Error(t, err)

	_, err = decodeEvent([]byte(`not json`))
	assert.Error(t, err)
}
