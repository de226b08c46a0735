package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/lymanepp/ha-calibration/internal/models"
)

// UniqueIDPlaceholder is replaced by a sensor's unique id in published topic patterns
const UniqueIDPlaceholder = "{unique_id}"

const (
	valueTemplate          = "{{ value_json.state }}"
	jsonAttributesTemplate = "{{ value_json.attributes | tojson }}"
	stateClassMeasurement  = "measurement"
)

// Publisher handles MQTT publishing of calibrated states and discovery configs
type Publisher struct {
	client mqtt.Client
	logger logrus.FieldLogger

	// Input channel (read by publisher, written by calibrated sensors)
	StateChan chan *models.EntityState

	stateTopic        string // e.g., "calibration/{unique_id}/state"
	discoveryPrefix   string
	discoveryEnabled  bool
	availabilityTopic string
	device            models.DiscoveryDevice
	retain            bool
	qos               byte

	// publishMu orders state publishes against Retract clearing the retained state
	publishMu sync.Mutex

	mu        sync.Mutex
	announced map[string]models.DiscoveryConfig
	retracted map[string]struct{}
}

// PublisherConfig holds configuration for MQTT publisher
type PublisherConfig struct {
	StateTopic        string // must contain {unique_id}
	DiscoveryPrefix   string // e.g., "homeassistant"
	DiscoveryEnabled  bool
	AvailabilityTopic string
	DeviceName        string
	Retain            bool
	QoS               byte
	ChannelSize       int
}

// NewPublisher creates a new MQTT publisher with its state channel
func NewPublisher(client mqtt.Client, config PublisherConfig, logger logrus.FieldLogger) *Publisher {
	if config.ChannelSize <= 0 {
		config.ChannelSize = 100
	}
	if config.DeviceName == "" {
		config.DeviceName = "Calibration"
	}
	return &Publisher{
		client:            client,
		logger:            logger,
		StateChan:         make(chan *models.EntityState, config.ChannelSize),
		stateTopic:        config.StateTopic,
		discoveryPrefix:   config.DiscoveryPrefix,
		discoveryEnabled:  config.DiscoveryEnabled,
		availabilityTopic: config.AvailabilityTopic,
		device: models.DiscoveryDevice{
			Identifiers:  []string{"ha-calibration"},
			Name:         config.DeviceName,
			Manufacturer: "ha-calibration",
			Model:        "Polynomial calibration",
		},
		retain:    config.Retain,
		qos:       config.QoS,
		announced: make(map[string]models.DiscoveryConfig),
		retracted: make(map[string]struct{}),
	}
}

// WriteState queues state for publishing; it never blocks the caller
func (p *Publisher) WriteState(state *models.EntityState) {
	if state == nil {
		return
	}
	select {
	case p.StateChan <- state:
	default:
		p.logger.WithField("unique_id", state.UniqueID).Warn("MQTT Publisher: State channel full, dropping state")
	}
}

// Start begins publishing states from the channel
// Runs until context is cancelled or channel is closed
func (p *Publisher) Start(ctx context.Context) {
	p.logger.Info("MQTT Publisher: Starting...")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("MQTT Publisher: Context cancelled, shutting down...")
			return

		case state, ok := <-p.StateChan:
			if !ok {
				p.logger.Info("MQTT Publisher: State channel closed, shutting down...")
				return
			}

			p.handleState(state)
		}
	}
}

func (p *Publisher) handleState(state *models.EntityState) {
	p.publishMu.Lock()
	defer p.publishMu.Unlock()

	if p.isRetracted(state.UniqueID) {
		// queued before its sensor was removed
		return
	}
	if err := p.refreshDiscovery(state); err != nil {
		p.logger.WithField("unique_id", state.UniqueID).WithError(err).Warn("Error refreshing discovery config")
	}
	if err := p.publishState(state); err != nil {
		p.logger.WithField("unique_id", state.UniqueID).WithError(err).Error("Error publishing state")
	}
}

func (p *Publisher) isRetracted(uniqueID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.retracted[uniqueID]
	return ok
}

// publishState publishes one calibrated state to its state topic
func (p *Publisher) publishState(state *models.EntityState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	topic := p.StateTopic(state.UniqueID)

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish state: %w", token.Error())
	}

	p.logger.WithFields(logrus.Fields{"unique_id": state.UniqueID, "topic": topic}).Debug("Published calibrated state")
	return nil
}

// StateTopic returns the topic a sensor's state is published on
func (p *Publisher) StateTopic(uniqueID string) string {
	return formatTopic(p.stateTopic, UniqueIDPlaceholder, uniqueID)
}

// DiscoveryTopic returns the discovery config topic of a sensor
func (p *Publisher) DiscoveryTopic(uniqueID string) string {
	return fmt.Sprintf("%s/sensor/%s/config", p.discoveryPrefix, uniqueID)
}

// DiscoveryConfig builds the discovery payload announcing state's sensor
func (p *Publisher) DiscoveryConfig(state *models.EntityState) models.DiscoveryConfig {
	stateTopic := p.StateTopic(state.UniqueID)
	return models.DiscoveryConfig{
		UniqueID:               state.UniqueID,
		Name:                   state.Name,
		StateTopic:             stateTopic,
		ValueTemplate:          valueTemplate,
		JSONAttributesTopic:    stateTopic,
		JSONAttributesTemplate: jsonAttributesTemplate,
		UnitOfMeasurement:      state.Unit,
		DeviceClass:            state.DeviceClass,
		StateClass:             stateClassMeasurement,
		AvailabilityTopic:      p.availabilityTopic,
		Device:                 p.device,
	}
}

// Announce publishes the discovery config of state's sensor. A no-op when discovery is disabled.
func (p *Publisher) Announce(state *models.EntityState) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.retracted, state.UniqueID)
	if !p.discoveryEnabled {
		return nil
	}
	return p.announceLocked(p.DiscoveryConfig(state))
}

// refreshDiscovery re-announces a sensor whose unit or device class changed since it was announced
func (p *Publisher) refreshDiscovery(state *models.EntityState) error {
	if !p.discoveryEnabled {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	prev, ok := p.announced[state.UniqueID]
	if !ok {
		// retracted or never announced
		return nil
	}
	if prev.UnitOfMeasurement == state.Unit && prev.DeviceClass == state.DeviceClass && prev.Name == state.Name {
		return nil
	}
	return p.announceLocked(p.DiscoveryConfig(state))
}

func (p *Publisher) announceLocked(config models.DiscoveryConfig) error {
	payload, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal discovery config: %w", err)
	}

	topic := p.DiscoveryTopic(config.UniqueID)
	token := p.client.Publish(topic, p.qos, true, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish discovery config: %w", token.Error())
	}
	p.announced[config.UniqueID] = config

	p.logger.WithFields(logrus.Fields{"unique_id": config.UniqueID, "topic": topic}).Info("Announced calibrated sensor")
	return nil
}

// Retract removes a sensor's discovery config and its retained state
func (p *Publisher) Retract(uniqueID string) error {
	p.publishMu.Lock()
	defer p.publishMu.Unlock()

	p.mu.Lock()
	delete(p.announced, uniqueID)
	p.retracted[uniqueID] = struct{}{}
	p.mu.Unlock()

	if p.discoveryEnabled {
		token := p.client.Publish(p.DiscoveryTopic(uniqueID), p.qos, true, []byte{})
		if token.Wait() && token.Error() != nil {
			return fmt.Errorf("failed to clear discovery config: %w", token.Error())
		}
	}
	if p.retain {
		token := p.client.Publish(p.StateTopic(uniqueID), p.qos, true, []byte{})
		if token.Wait() && token.Error() != nil {
			return fmt.Errorf("failed to clear retained state: %w", token.Error())
		}
	}

	p.logger.WithField("unique_id", uniqueID).Info("Retracted calibrated sensor")
	return nil
}
