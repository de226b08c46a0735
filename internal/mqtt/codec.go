package mqtt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lymanepp/ha-calibration/internal/models"
)

// stateChangedPayload is the upstream wire form; RawMessage distinguishes an absent
// new_state from an explicit null
type stateChangedPayload struct {
	EntityID string          `json:"entity_id"`
	NewState json.RawMessage `json:"new_state"`
	OldState *models.State   `json:"old_state"`
	State    *string         `json:"state"`

	Attributes map[string]interface{} `json:"attributes"`
}

// DecodeStateChanged turns an upstream message for entityID into an event.
//
// Accepted payloads:
//   - empty or null: event without a new state
//   - {"entity_id":..,"new_state":{..}|null,"old_state":..}: full state-changed form
//   - {"state":"..","attributes":{..}}: bare state object
//   - "12.3": a JSON string holding the primary value
//   - anything else: the primary value as plain text, no attributes
func DecodeStateChanged(entityID string, payload []byte) (*models.StateChangedEvent, error) {
	event := &models.StateChangedEvent{
		EntityID:   entityID,
		ReceivedAt: time.Now(),
	}

	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return event, nil
	}

	switch trimmed[0] {
	case '{':
	case '"':
		var value string
		if err := json.Unmarshal(trimmed, &value); err != nil {
			return nil, fmt.Errorf("failed to unmarshal state for %s: %w", entityID, err)
		}
		event.NewState = &models.State{EntityID: entityID, State: strings.TrimSpace(value)}
		return event, nil
	default:
		event.NewState = &models.State{
			EntityID: entityID,
			State:    strings.TrimSpace(string(trimmed)),
		}
		return event, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var msg stateChangedPayload
	if err := decoder.Decode(&msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state change for %s: %w", entityID, err)
	}
	if msg.EntityID != "" && msg.EntityID != entityID {
		return nil, fmt.Errorf("state change for %s delivered on topic of %s", msg.EntityID, entityID)
	}
	event.OldState = msg.OldState

	switch {
	case msg.NewState != nil:
		if string(msg.NewState) == "null" {
			return event, nil
		}
		newState, err := decodeState(msg.NewState)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal new_state for %s: %w", entityID, err)
		}
		newState.EntityID = entityID
		event.NewState = newState
	case msg.State != nil:
		event.NewState = &models.State{
			EntityID:   entityID,
			State:      *msg.State,
			Attributes: msg.Attributes,
		}
	}

	return event, nil
}

func decodeState(raw json.RawMessage) (*models.State, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var state models.State
	if err := decoder.Decode(&state); err != nil {
		return nil, err
	}
	return &state, nil
}
