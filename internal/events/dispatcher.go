package events

import (
	"sort"
	"sync"

	"github.com/lymanepp/ha-calibration/internal/models"
)

// Handler receives state changes for the entity it subscribed to
type Handler func(event *models.StateChangedEvent)

// Dispatcher routes state-changed events to the handlers subscribed to the event's entity id.
//
// Dispatch calls handlers synchronously on the caller's goroutine, in subscription
// order. Callers that need serialized delivery must dispatch from a single goroutine.
type Dispatcher struct {
	mu   sync.RWMutex
	next uint64
	subs map[string]map[uint64]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{subs: make(map[string]map[uint64]Handler)}
}

// Subscribe registers handler for entityID. The returned release function removes
// the subscription; it is safe to call more than once.
func (d *Dispatcher) Subscribe(entityID string, handler Handler) (release func()) {
	d.mu.Lock()
	d.next++
	id := d.next
	if d.subs[entityID] == nil {
		d.subs[entityID] = make(map[uint64]Handler)
	}
	d.subs[entityID][id] = handler
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			delete(d.subs[entityID], id)
			if len(d.subs[entityID]) == 0 {
				delete(d.subs, entityID)
			}
		})
	}
}

// Dispatch delivers event to every handler subscribed to its entity id and
// returns how many handlers were called
func (d *Dispatcher) Dispatch(event *models.StateChangedEvent) int {
	if event == nil {
		return 0
	}

	d.mu.RLock()
	subs := d.subs[event.EntityID]
	ids := make([]uint64, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, subs[id])
	}
	d.mu.RUnlock()

	// handlers run outside the lock so they may release their own subscription
	for _, h := range handlers {
		h(event)
	}
	return len(handlers)
}

// Subscribers returns the number of handlers subscribed to entityID
func (d *Dispatcher) Subscribers(entityID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs[entityID])
}
