package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/lymanepp/ha-calibration/internal/calibration"
	"github.com/lymanepp/ha-calibration/internal/events"
	"github.com/lymanepp/ha-calibration/internal/models"
)

var (
	// ErrSensorExists is returned when a sensor with the same unique id is already tracked
	ErrSensorExists = errors.New("sensor already exists")

	// ErrSensorNotFound is returned when removing an unknown sensor
	ErrSensorNotFound = errors.New("sensor not found")
)

// SourceSubscriber subscribes the upstream transport to an entity's state changes
type SourceSubscriber interface {
	Subscribe(entityID string) error
	Unsubscribe(entityID string) error
}

// EntityAnnouncer registers and deregisters calibrated sensors with the host
type EntityAnnouncer interface {
	Announce(state *models.EntityState) error
	Retract(uniqueID string) error
}

// CalibrationServiceConfig holds configuration for the calibration service
type CalibrationServiceConfig struct {
	EventChannelSize int
}

// DefaultCalibrationServiceConfig returns default configuration
func DefaultCalibrationServiceConfig() CalibrationServiceConfig {
	return CalibrationServiceConfig{
		EventChannelSize: 100,
	}
}

// CalibrationService owns the calibrated sensors and feeds them upstream state changes.
//
// Events are handled one at a time under the service lock, so a sensor never sees
// overlapping events and is never removed while handling one. Broker calls made while
// adding or removing sensors happen outside that lock.
type CalibrationService struct {
	dispatcher *events.Dispatcher
	sources    SourceSubscriber // optional
	announcer  EntityAnnouncer  // optional
	writer     calibration.StateWriter
	logger     logrus.FieldLogger

	// Input channel from the MQTT subscriber
	EventChan chan *models.StateChangedEvent

	// ioMu serializes sensor changes and guards sourceRefs
	ioMu       sync.Mutex
	sourceRefs map[string]int

	mu      sync.Mutex
	sensors map[string]*trackedSensor
	closed  bool
}

type trackedSensor struct {
	sensor  *calibration.Sensor
	release func()
}

// NewCalibrationService creates a new calibration service.
// sources and announcer may be nil.
func NewCalibrationService(
	dispatcher *events.Dispatcher,
	sources SourceSubscriber,
	announcer EntityAnnouncer,
	writer calibration.StateWriter,
	logger logrus.FieldLogger,
	config CalibrationServiceConfig,
) *CalibrationService {
	return &CalibrationService{
		dispatcher: dispatcher,
		sources:    sources,
		announcer:  announcer,
		writer:     writer,
		logger:     logger,
		EventChan:  make(chan *models.StateChangedEvent, config.EventChannelSize),
		sensors:    make(map[string]*trackedSensor),
		sourceRefs: make(map[string]int),
	}
}

// Writer returns the state writer new sensors should publish to
func (cs *CalibrationService) Writer() calibration.StateWriter {
	return cs.writer
}

// LoadCalibrations creates and tracks a sensor for every fitted calibration.
// A sensor that cannot be tracked is logged and skipped.
func (cs *CalibrationService) LoadCalibrations(calibrations map[string]*calibration.Calibration) int {
	names := make([]string, 0, len(calibrations))
	for name := range calibrations {
		names = append(names, name)
	}
	sort.Strings(names)

	added := 0
	for _, name := range names {
		sensor := calibration.NewSensorFromCalibration(calibrations[name], cs.writer, cs.logger)
		if err := cs.AddSensor(sensor); err != nil {
			cs.logger.WithField("calibration", name).WithError(err).Error("CalibrationService: Failed to add sensor")
			continue
		}
		added++
	}
	return added
}

// AddSensor subscribes sensor to its source and starts tracking it
func (cs *CalibrationService) AddSensor(sensor *calibration.Sensor) error {
	cs.ioMu.Lock()
	defer cs.ioMu.Unlock()

	cs.mu.Lock()
	closed := cs.closed
	_, exists := cs.sensors[sensor.UniqueID()]
	cs.mu.Unlock()

	if closed {
		return fmt.Errorf("failed to add sensor %s: service is closed", sensor.UniqueID())
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrSensorExists, sensor.UniqueID())
	}

	source := sensor.Source()
	if cs.sourceRefs[source] == 0 && cs.sources != nil {
		if err := cs.sources.Subscribe(source); err != nil {
			return fmt.Errorf("failed to subscribe to source %s: %w", source, err)
		}
	}
	cs.sourceRefs[source]++

	cs.mu.Lock()
	release := cs.dispatcher.Subscribe(source, sensor.HandleEvent)
	cs.sensors[sensor.UniqueID()] = &trackedSensor{sensor: sensor, release: release}
	cs.mu.Unlock()

	log := cs.logger.WithFields(logrus.Fields{"unique_id": sensor.UniqueID(), "source": source})
	if cs.announcer != nil {
		if err := cs.announcer.Announce(sensor.State()); err != nil {
			log.WithError(err).Warn("CalibrationService: Failed to announce sensor")
		}
	}
	log.Info("CalibrationService: Now tracking sensor")
	return nil
}

// RemoveSensor stops tracking a sensor and releases its subscription.
// The sensor stops receiving events before the broker is told about the removal.
func (cs *CalibrationService) RemoveSensor(uniqueID string) error {
	cs.ioMu.Lock()
	defer cs.ioMu.Unlock()

	cs.mu.Lock()
	tracked, ok := cs.sensors[uniqueID]
	if ok {
		tracked.release()
		delete(cs.sensors, uniqueID)
	}
	cs.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSensorNotFound, uniqueID)
	}

	source := tracked.sensor.Source()
	log := cs.logger.WithFields(logrus.Fields{"unique_id": uniqueID, "source": source})

	cs.sourceRefs[source]--
	if cs.sourceRefs[source] <= 0 {
		delete(cs.sourceRefs, source)
		if cs.sources != nil {
			if err := cs.sources.Unsubscribe(source); err != nil {
				log.WithError(err).Warn("CalibrationService: Failed to unsubscribe from source")
			}
		}
	}

	if cs.announcer != nil {
		if err := cs.announcer.Retract(uniqueID); err != nil {
			log.WithError(err).Warn("CalibrationService: Failed to retract sensor")
		}
	}
	if d, ok := cs.writer.(interface{ DeleteState(string) }); ok {
		d.DeleteState(uniqueID)
	}

	log.Info("CalibrationService: Stopped tracking sensor")
	return nil
}

// HandleEvent delivers one upstream state change to the sensors watching its entity
func (cs *CalibrationService) HandleEvent(event *models.StateChangedEvent) int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.dispatcher.Dispatch(event)
}

// Sensor returns the tracked sensor with uniqueID
func (cs *CalibrationService) Sensor(uniqueID string) (*calibration.Sensor, bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	tracked, ok := cs.sensors[uniqueID]
	if !ok {
		return nil, false
	}
	return tracked.sensor, true
}

// Sensors returns all tracked sensors ordered by unique id
func (cs *CalibrationService) Sensors() []*calibration.Sensor {
	cs.mu.Lock()
	sensors := make([]*calibration.Sensor, 0, len(cs.sensors))
	for _, tracked := range cs.sensors {
		sensors = append(sensors, tracked.sensor)
	}
	cs.mu.Unlock()

	sort.Slice(sensors, func(i, j int) bool { return sensors[i].UniqueID() < sensors[j].UniqueID() })
	return sensors
}

// Start processes upstream events until the context is cancelled or the channel
// is closed, then releases every sensor subscription
func (cs *CalibrationService) Start(ctx context.Context) {
	cs.logger.Info("CalibrationService: Starting...")
	defer cs.Close()

	for {
		select {
		case <-ctx.Done():
			cs.logger.Info("CalibrationService: Shutting down...")
			return
		case event, ok := <-cs.EventChan:
			if !ok {
				cs.logger.Info("CalibrationService: Event channel closed, shutting down...")
				return
			}
			if cs.HandleEvent(event) == 0 {
				cs.logger.WithField("entity_id", event.EntityID).Debug("CalibrationService: No sensor watches entity")
			}
		}
	}
}

// Close releases every sensor subscription. Sensors stay announced so the host keeps
// their last state across restarts. Close is idempotent.
func (cs *CalibrationService) Close() {
	cs.ioMu.Lock()
	defer cs.ioMu.Unlock()

	cs.mu.Lock()
	if cs.closed {
		cs.mu.Unlock()
		return
	}
	cs.closed = true
	for uniqueID, tracked := range cs.sensors {
		tracked.release()
		delete(cs.sensors, uniqueID)
	}
	cs.mu.Unlock()

	if cs.sources != nil {
		for source := range cs.sourceRefs {
			if err := cs.sources.Unsubscribe(source); err != nil {
				cs.logger.WithField("source", source).WithError(err).Warn("CalibrationService: Failed to unsubscribe from source")
			}
		}
	}
	cs.sourceRefs = make(map[string]int)

	cs.logger.Info("CalibrationService: Shutdown complete")
}
