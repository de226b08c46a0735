package state

import (
	"github.com/lymanepp/ha-calibration/internal/calibration"
	"github.com/lymanepp/ha-calibration/internal/models"
)

// Deleter is implemented by sinks that can forget a removed sensor
type Deleter interface {
	DeleteState(uniqueID string)
}

// Fanout forwards every published state to each of its writers in order
type Fanout []calibration.StateWriter

func (f Fanout) WriteState(state *models.EntityState) {
	for _, w := range f {
		w.WriteState(state)
	}
}

// DeleteState forwards to every writer that implements Deleter
func (f Fanout) DeleteState(uniqueID string) {
	for _, w := range f {
		if d, ok := w.(Deleter); ok {
			d.DeleteState(uniqueID)
		}
	}
}
