package mqtt

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// Client manages the MQTT connection (low-level connection management only)
// For subscribing and publishing, use Subscriber and Publisher respectively
type Client struct {
	client mqtt.Client
	config ClientConfig
	logger logrus.FieldLogger

	mu        sync.Mutex
	onConnect []func()
}

// ClientConfig holds MQTT client configuration
type ClientConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string

	// Availability topic; "online" is published on connect and "offline" is the will
	AvailabilityTopic string
}

const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// NewClient creates a new MQTT client connection
func NewClient(config ClientConfig, logger logrus.FieldLogger) (*Client, error) {
	log := logger.WithField("broker", config.Broker)
	c := &Client{
		config: config,
		logger: logger,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
		log.WithField("topic", msg.Topic()).Debug("MQTT: Received unrouted message")
	})
	opts.SetOnConnectHandler(func(native mqtt.Client) {
		log.Info("MQTT: Connection established")
		if config.AvailabilityTopic != "" {
			native.Publish(config.AvailabilityTopic, 1, true, PayloadOnline)
		}
		c.runConnectHandlers()
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.WithError(err).Warn("MQTT: Connection lost")
	})
	if config.AvailabilityTopic != "" {
		opts.SetWill(config.AvailabilityTopic, PayloadOffline, 1, true)
	}
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	c.client = mqtt.NewClient(opts)

	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	log.WithField("client_id", config.ClientID).Info("MQTT Client: Connected to broker")
	return c, nil
}

// OnConnect registers fn to run after every reconnect, e.g. to restore subscriptions
func (c *Client) OnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = append(c.onConnect, fn)
	c.mu.Unlock()
}

func (c *Client) runConnectHandlers() {
	c.mu.Lock()
	handlers := append([]func(){}, c.onConnect...)
	c.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
}

// GetNativeClient returns the underlying paho MQTT client
// This is used by Subscriber and Publisher
func (c *Client) GetNativeClient() mqtt.Client {
	return c.client
}

// IsConnected returns whether the client is currently connected
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Close marks the service offline and closes the MQTT client connection
func (c *Client) Close() {
	if c.config.AvailabilityTopic != "" && c.client.IsConnected() {
		token := c.client.Publish(c.config.AvailabilityTopic, 1, true, PayloadOffline)
		token.WaitTimeout(time.Second)
	}
	c.client.Disconnect(250)
	c.logger.Info("MQTT Client: Disconnected")
}
