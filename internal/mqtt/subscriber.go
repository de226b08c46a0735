package mqtt

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/lymanepp/ha-calibration/internal/models"
)

// EntityPlaceholder is replaced by an entity id in upstream topic patterns
const EntityPlaceholder = "{entity_id}"

// Subscriber handles per-entity MQTT subscriptions and writes state changes to a channel
type Subscriber struct {
	client mqtt.Client
	logger logrus.FieldLogger

	// Output channel (written by subscriber, read by the calibration service)
	EventChan chan *models.StateChangedEvent

	stateTopic  string // e.g., "homeassistant/state/{entity_id}"
	qos         byte
	sendTimeout time.Duration

	mu     sync.Mutex
	topics map[string]string // topic -> entity id
}

// SubscriberConfig holds configuration for MQTT subscriber
type SubscriberConfig struct {
	StateTopic  string // must contain {entity_id}
	QoS         byte
	SendTimeout time.Duration
}

// NewSubscriber creates a new MQTT subscriber writing to eventChan
func NewSubscriber(
	client mqtt.Client,
	config SubscriberConfig,
	eventChan chan *models.StateChangedEvent,
	logger logrus.FieldLogger,
) *Subscriber {
	if config.SendTimeout <= 0 {
		config.SendTimeout = time.Second
	}
	return &Subscriber{
		client:      client,
		logger:      logger,
		EventChan:   eventChan,
		stateTopic:  config.StateTopic,
		qos:         config.QoS,
		sendTimeout: config.SendTimeout,
		topics:      make(map[string]string),
	}
}

// Subscribe starts receiving state changes for entityID
func (s *Subscriber) Subscribe(entityID string) error {
	topic := formatTopic(s.stateTopic, EntityPlaceholder, entityID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.topics[topic]; ok {
		return nil
	}
	if err := s.subscribeToTopic(topic, entityID); err != nil {
		return fmt.Errorf("failed to subscribe to state topic %s: %w", topic, err)
	}
	s.topics[topic] = entityID

	s.logger.WithFields(logrus.Fields{"topic": topic, "source": entityID}).Info("Subscribed to state topic")
	return nil
}

// Unsubscribe stops receiving state changes for entityID
func (s *Subscriber) Unsubscribe(entityID string) error {
	topic := formatTopic(s.stateTopic, EntityPlaceholder, entityID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.topics[topic]; !ok {
		return nil
	}
	delete(s.topics, topic)

	token := s.client.Unsubscribe(topic)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to unsubscribe from state topic %s: %w", topic, token.Error())
	}

	s.logger.WithFields(logrus.Fields{"topic": topic, "source": entityID}).Info("Unsubscribed from state topic")
	return nil
}

// Resubscribe restores every subscription after a reconnect
func (s *Subscriber) Resubscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, topic := range s.sortedTopicsLocked() {
		if err := s.subscribeToTopic(topic, s.topics[topic]); err != nil {
			s.logger.WithField("topic", topic).WithError(err).Error("Failed to restore subscription")
		}
	}
}

// Topics returns the subscribed topics in order
func (s *Subscriber) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedTopicsLocked()
}

func (s *Subscriber) sortedTopicsLocked() []string {
	topics := make([]string, 0, len(s.topics))
	for topic := range s.topics {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// subscribeToTopic is a helper function to subscribe to a topic with a handler bound to entityID
func (s *Subscriber) subscribeToTopic(topic, entityID string) error {
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		s.handleState(entityID, msg)
	}
	token := s.client.Subscribe(topic, s.qos, handler)
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

// handleState decodes an upstream state message and writes it to the channel
func (s *Subscriber) handleState(entityID string, msg mqtt.Message) {
	log := s.logger.WithFields(logrus.Fields{"topic": msg.Topic(), "source": entityID})

	event, err := DecodeStateChanged(entityID, msg.Payload())
	if err != nil {
		log.WithError(err).Warn("Error decoding state change")
		return
	}

	if event.NewState != nil {
		log.WithField("state", event.NewState.State).Debug("Received state change")
	} else {
		log.Debug("Received state change without new state")
	}

	// Write to channel (non-blocking with timeout)
	select {
	case s.EventChan <- event:
	case <-time.After(s.sendTimeout):
		log.Warn("Event channel full, dropping state change")
	}
}

// formatTopic replaces placeholder with value
func formatTopic(topicPattern, placeholder, value string) string {
	return strings.ReplaceAll(topicPattern, placeholder, value)
}
