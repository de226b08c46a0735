package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	// MQTT Configuration
	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string
	MQTTQoS      int

	// Topic patterns
	MQTTTopicState        string // upstream, contains {entity_id}
	MQTTTopicCalibrated   string // published, contains {unique_id}
	MQTTTopicAvailability string
	MQTTRetain            bool

	// Discovery
	DiscoveryEnabled bool
	DiscoveryPrefix  string
	DeviceName       string

	// ClickHouse Configuration
	ClickHouseEnabled bool
	ClickHouseAddr    string
	ClickHouseDB      string
	ClickHouseUser    string
	ClickHousePass    string

	// HTTP API
	HTTPEnabled bool
	HTTPAddr    string

	CalibrationFile string
	LogLevel        string
}

// Load reads the configuration from the environment, seeded by envFiles (or .env) when present
func Load(envFiles ...string) *Config {
	// Missing .env files are not an error
	_ = godotenv.Load(envFiles...)

	return &Config{
		// MQTT Configuration
		MQTTBroker:   getEnv("MQTT_BROKER", "tcp://localhost:1883"),
		MQTTClientID: getEnv("MQTT_CLIENT_ID", defaultClientID()),
		MQTTUsername: getEnv("MQTT_USERNAME", ""),
		MQTTPassword: getEnv("MQTT_PASSWORD", ""),
		MQTTQoS:      getEnvInt("MQTT_QOS", 1),

		// Topic patterns
		MQTTTopicState:        getEnv("MQTT_TOPIC_STATE", "homeassistant/state/{entity_id}"),
		MQTTTopicCalibrated:   getEnv("MQTT_TOPIC_CALIBRATED", "calibration/{unique_id}/state"),
		MQTTTopicAvailability: getEnv("MQTT_TOPIC_AVAILABILITY", "calibration/status"),
		MQTTRetain:            getEnvBool("MQTT_RETAIN", true),

		// Discovery
		DiscoveryEnabled: getEnvBool("DISCOVERY_ENABLED", true),
		DiscoveryPrefix:  getEnv("DISCOVERY_PREFIX", "homeassistant"),
		DeviceName:       getEnv("DEVICE_NAME", "Calibration"),

		// ClickHouse Configuration
		ClickHouseEnabled: getEnvBool("CLICKHOUSE_ENABLED", false),
		ClickHouseAddr:    getEnv("CLICKHOUSE_ADDR", "localhost:9000"),
		ClickHouseDB:      getEnv("CLICKHOUSE_DB", "calibration"),
		ClickHouseUser:    getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePass:    getEnv("CLICKHOUSE_PASS", ""),

		// HTTP API
		HTTPEnabled: getEnvBool("HTTP_ENABLED", true),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),

		CalibrationFile: getEnv("CALIBRATION_FILE", "calibrations.yaml"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}
}

// Validate reports every setting the service cannot start with
func (c *Config) Validate() error {
	var problems []error

	if c.MQTTBroker == "" {
		problems = append(problems, errors.New("MQTT_BROKER is required"))
	}
	if c.MQTTQoS < 0 || c.MQTTQoS > 2 {
		problems = append(problems, fmt.Errorf("MQTT_QOS must be 0, 1 or 2, got %d", c.MQTTQoS))
	}
	if !strings.Contains(c.MQTTTopicState, "{entity_id}") {
		problems = append(problems, fmt.Errorf("MQTT_TOPIC_STATE %q must contain {entity_id}", c.MQTTTopicState))
	}
	if !strings.Contains(c.MQTTTopicCalibrated, "{unique_id}") {
		problems = append(problems, fmt.Errorf("MQTT_TOPIC_CALIBRATED %q must contain {unique_id}", c.MQTTTopicCalibrated))
	}
	if c.DiscoveryEnabled && c.DiscoveryPrefix == "" {
		problems = append(problems, errors.New("DISCOVERY_PREFIX is required when discovery is enabled"))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	return errors.Join(problems...)
}

func defaultClientID() string {
	return "ha-calibration-" + uuid.NewString()[:8]
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		logrus.WithField("key", key).WithError(err).Warn("Failed to parse int, using default")
		return defaultValue
	}
	return intValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		logrus.WithField("key", key).WithError(err).Warn("Failed to parse bool, using default")
		return defaultValue
	}
	return boolValue
}
