package calibration

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lymanepp/ha-calibration/internal/models"
)

// Diagnostic attribute keys published with every calibrated state
const (
	AttrCoefficients    = "coefficients"
	AttrSource          = "source"
	AttrSourceAttribute = "source_attribute"
	AttrSourceValue     = "source_value"
)

// Phase is the recompute state of a sensor
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseCalibrated    Phase = "calibrated"
	PhaseInvalid       Phase = "invalid"
)

// StateWriter receives every state a sensor publishes. Implementations must not block.
type StateWriter interface {
	WriteState(state *models.EntityState)
}

// Entity is the publishable capability a host needs to register a sensor
type Entity interface {
	UniqueID() string
	Name() string
	Value() *float64
	Unit() string
	DeviceClass() string
	Attributes() map[string]interface{}
}

var _ Entity = (*Sensor)(nil)

// SensorConfig holds the per-instance configuration of a calibrated sensor
type SensorConfig struct {
	UniqueID    string
	Name        string
	Source      string
	Attribute   string // empty: use the primary state
	Precision   int
	Polynomial  *Polynomial
	Unit        string // empty: inferred from the first source update
	DeviceClass string // empty: inferred from the first source update
}

// Sensor republishes one upstream value through a fitted polynomial.
//
// A sensor is driven by HandleEvent only and is not safe for concurrent use;
// the dispatcher delivering its events must serialize them.
type Sensor struct {
	uniqueID  string
	name      string
	source    string
	attribute string
	precision int
	poly      *Polynomial

	unit        string
	deviceClass string

	phase       Phase
	value       *float64
	sourceValue *float64
	lastErr     error

	writer StateWriter
	logger logrus.FieldLogger
	now    func() time.Time
}

// NewSensor creates a sensor publishing to writer
func NewSensor(config SensorConfig, writer StateWriter, logger logrus.FieldLogger) *Sensor {
	return &Sensor{
		uniqueID:    config.UniqueID,
		name:        config.Name,
		source:      config.Source,
		attribute:   config.Attribute,
		precision:   config.Precision,
		poly:        config.Polynomial,
		unit:        config.Unit,
		deviceClass: config.DeviceClass,
		phase:       PhaseUninitialized,
		writer:      writer,
		logger: logger.WithFields(logrus.Fields{
			"unique_id": config.UniqueID,
			"source":    config.Source,
		}),
		now: time.Now,
	}
}

// NewSensorFromCalibration creates the sensor backing a fitted calibration
func NewSensorFromCalibration(cal *Calibration, writer StateWriter, logger logrus.FieldLogger) *Sensor {
	return NewSensor(SensorConfig{
		UniqueID:    cal.UniqueID(),
		Name:        cal.DisplayName(),
		Source:      cal.Spec.Source,
		Attribute:   cal.Spec.Attribute,
		Precision:   cal.Spec.Precision,
		Polynomial:  cal.Polynomial,
		Unit:        cal.Spec.Unit,
		DeviceClass: cal.Spec.DeviceClass,
	}, writer, logger)
}

// HandleEvent recomputes the calibrated value from a source state change and publishes it.
// Events without a new state are ignored.
func (s *Sensor) HandleEvent(event *models.StateChangedEvent) {
	if event == nil || event.NewState == nil {
		return
	}
	newState := event.NewState

	if s.attribute == "" {
		if s.deviceClass == "" {
			s.deviceClass = newState.DeviceClass()
		}
		if s.unit == "" {
			s.unit = newState.Unit()
		}
	}

	input, err := s.extract(newState)
	if err == nil {
		output := s.poly.Eval(input)
		if isFinite(output) {
			rounded := Round(output, s.precision)
			s.value = &rounded
			s.sourceValue = &input
			s.phase = PhaseCalibrated
			s.lastErr = nil
		} else {
			err = s.conversionError(fmt.Errorf("calibrated value %v is not finite", output))
		}
	}
	if err != nil {
		s.value = nil
		s.phase = PhaseInvalid
		s.lastErr = err
		if s.attribute != "" {
			s.logger.WithField("attribute", s.attribute).WithError(err).
				Warnf("%s attribute %s is not a number", s.source, s.attribute)
		} else {
			s.logger.WithError(err).Warnf("%s state is not a number", s.source)
		}
	}

	if s.writer != nil {
		s.writer.WriteState(s.State())
	}
}

// extract reads the numeric input from the configured attribute or the primary state
func (s *Sensor) extract(state *models.State) (float64, error) {
	if s.attribute != "" {
		raw, ok := state.Attributes[s.attribute]
		if !ok {
			return 0, s.conversionError(ErrMissingAttribute)
		}
		v, err := toFloat(raw)
		if err != nil {
			return 0, s.conversionError(err)
		}
		return v, nil
	}

	if state.State == models.UnknownState {
		return 0, s.conversionError(ErrUnknownState)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(state.State), 64)
	if err != nil {
		return 0, s.conversionError(err)
	}
	return v, nil
}

func (s *Sensor) conversionError(err error) *ConversionError {
	return &ConversionError{Source: s.source, Attribute: s.attribute, Err: err}
}

// toFloat converts an attribute value to float64, accepting numbers and numeric strings
func toFloat(raw interface{}) (float64, error) {
	switch v := raw.(type) {
	case nil:
		return 0, fmt.Errorf("value is null")
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, fmt.Errorf("unsupported value type %T", raw)
	}
}

// State returns a snapshot of the publishable state
func (s *Sensor) State() *models.EntityState {
	return &models.EntityState{
		UniqueID:    s.uniqueID,
		Name:        s.name,
		State:       s.Value(),
		Unit:        s.unit,
		DeviceClass: s.deviceClass,
		Attributes:  s.Attributes(),
		UpdatedAt:   s.now(),
	}
}

func (s *Sensor) UniqueID() string        { return s.uniqueID }
func (s *Sensor) Name() string            { return s.name }
func (s *Sensor) Unit() string            { return s.unit }
func (s *Sensor) DeviceClass() string     { return s.deviceClass }
func (s *Sensor) Source() string          { return s.source }
func (s *Sensor) SourceAttribute() string { return s.attribute }
func (s *Sensor) Precision() int          { return s.precision }
func (s *Sensor) Polynomial() *Polynomial { return s.poly }
func (s *Sensor) Phase() Phase            { return s.phase }

// LastError returns the conversion error of the latest event, or nil
func (s *Sensor) LastError() error { return s.lastErr }

// Value returns a copy of the published output, nil when unset
func (s *Sensor) Value() *float64 {
	if s.value == nil {
		return nil
	}
	v := *s.value
	return &v
}

// Attributes returns the diagnostic attributes
func (s *Sensor) Attributes() map[string]interface{} {
	attrs := map[string]interface{}{
		AttrCoefficients: s.poly.Coefficients(),
		AttrSource:       s.source,
		AttrSourceValue:  nil,
	}
	if s.sourceValue != nil {
		attrs[AttrSourceValue] = *s.sourceValue
	}
	if s.attribute != "" {
		attrs[AttrSourceAttribute] = s.attribute
	}
	return attrs
}
