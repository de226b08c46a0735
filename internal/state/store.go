package state

import (
	"sort"
	"sync"

	"github.com/lymanepp/ha-calibration/internal/models"
)

// Store keeps the latest published state of every calibrated sensor
type Store struct {
	mu     sync.RWMutex
	states map[string]*models.EntityState
}

func NewStore() *Store {
	return &Store{states: make(map[string]*models.EntityState)}
}

// WriteState records state as the latest for its unique id
func (s *Store) WriteState(state *models.EntityState) {
	if state == nil {
		return
	}
	s.mu.Lock()
	s.states[state.UniqueID] = state
	s.mu.Unlock()
}

// DeleteState forgets the state of a removed sensor
func (s *Store) DeleteState(uniqueID string) {
	s.mu.Lock()
	delete(s.states, uniqueID)
	s.mu.Unlock()
}

// Get returns the latest state for uniqueID
func (s *Store) Get(uniqueID string) (*models.EntityState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[uniqueID]
	return st, ok
}

// List returns all latest states ordered by unique id
func (s *Store) List() []*models.EntityState {
	s.mu.RLock()
	states := make([]*models.EntityState, 0, len(s.states))
	for _, st := range s.states {
		states = append(states, st)
	}
	s.mu.RUnlock()

	sort.Slice(states, func(i, j int) bool { return states[i].UniqueID < states[j].UniqueID })
	return states
}
