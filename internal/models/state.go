package models

import "time"

// UnknownState is the primary value an entity reports when it has no current reading
const UnknownState = "unknown"

// Attribute keys carrying an entity's metadata
const (
	AttrUnitOfMeasurement = "unit_of_measurement"
	AttrDeviceClass       = "device_class"
)

// State represents an upstream entity state as reported by the home-automation host
type State struct {
	EntityID    string                 `json:"entity_id,omitempty"`
	State       string                 `json:"state"`
	Attributes  map[string]interface{} `json:"attributes,omitempty"`
	LastChanged time.Time              `json:"last_changed,omitempty"`
}

// Unit returns the unit_of_measurement attribute, or "" when absent
func (s *State) Unit() string {
	return s.stringAttribute(AttrUnitOfMeasurement)
}

// DeviceClass returns the device_class attribute, or "" when absent
func (s *State) DeviceClass() string {
	return s.stringAttribute(AttrDeviceClass)
}

func (s *State) stringAttribute(key string) string {
	if s == nil || s.Attributes == nil {
		return ""
	}
	v, _ := s.Attributes[key].(string)
	return v
}

// StateChangedEvent represents a state change notification for one upstream entity.
// NewState is nil when the entity was removed or the message carried no state.
type StateChangedEvent struct {
	EntityID   string    `json:"entity_id"`
	NewState   *State    `json:"new_state"`
	OldState   *State    `json:"old_state,omitempty"`
	ReceivedAt time.Time `json:"-"`
}

// EntityState represents the state a calibrated sensor publishes
type EntityState struct {
	UniqueID    string                 `json:"unique_id"`
	Name        string                 `json:"name"`
	State       *float64               `json:"state"` // nil when no valid reading
	Unit        string                 `json:"unit_of_measurement,omitempty"`
	DeviceClass string                 `json:"device_class,omitempty"`
	Attributes  map[string]interface{} `json:"attributes"`
	UpdatedAt   time.Time              `json:"updated_at"`
}
