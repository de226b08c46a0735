package events

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lymanepp/ha-calibration/internal/models"
)

func event(entityID string) *models.StateChangedEvent {
	return &models.StateChangedEvent{
		EntityID: entityID,
		NewState: &models.State{EntityID: entityID, State: "1"},
	}
}

func TestDispatchRoutesByEntity(t *testing.T) {
	d := NewDispatcher()

	var got []string
	d.Subscribe("sensor.a", func(e *models.StateChangedEvent) { got = append(got, "a1:"+e.EntityID) })
	d.Subscribe("sensor.a", func(e *models.StateChangedEvent) { got = append(got, "a2:"+e.EntityID) })
	d.Subscribe("sensor.b", func(e *models.StateChangedEvent) { got = append(got, "b:"+e.EntityID) })

	assert.Equal(t, 2, d.Dispatch(event("sensor.a")))
	assert.Equal(t, 0, d.Dispatch(event("sensor.c")))
	assert.Equal(t, 0, d.Dispatch(nil))

	assert.Equal(t, []string{"a1:sensor.a", "a2:sensor.a"}, got)
}

func TestReleaseIsIdempotent(t *testing.T) {
	d := NewDispatcher()

	calls := 0
	release := d.Subscribe("sensor.a", func(*models.StateChangedEvent) { calls++ })
	keep := d.Subscribe("sensor.a", func(*models.StateChangedEvent) {})
	assert.Equal(t, 2, d.Subscribers("sensor.a"))

	release()
	release()
	assert.Equal(t, 1, d.Subscribers("sensor.a"))

	d.Dispatch(event("sensor.a"))
	assert.Equal(t, 0, calls)

	keep()
	assert.Equal(t, 0, d.Subscribers("sensor.a"))
}

func TestHandlerMayReleaseItself(t *testing.T) {
	d := NewDispatcher()

	calls := 0
	var release func()
	release = d.Subscribe("sensor.a", func(*models.StateChangedEvent) {
		calls++
		release()
	})

	assert.NotPanics(t, func() {
		d.Dispatch(event("sensor.a"))
		d.Dispatch(event("sensor.a"))
	})
	assert.Equal(t, 1, calls)
}
