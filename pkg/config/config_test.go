package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MQTT_CLIENT_ID", "")
	t.Setenv("MQTT_TOPIC_STATE", "")

	cfg := Load(filepath.Join(t.TempDir(), "absent.env"))

	assert.Equal(t, "tcp://localhost:1883", cfg.MQTTBroker)
	assert.True(t, strings.HasPrefix(cfg.MQTTClientID, "ha-calibration-"))
	assert.Len(t, cfg.MQTTClientID, len("ha-calibration-")+8)
	assert.Equal(t, "homeassistant/state/{entity_id}", cfg.MQTTTopicState)
	assert.Equal(t, "calibration/{unique_id}/state", cfg.MQTTTopicCalibrated)
	assert.True(t, cfg.DiscoveryEnabled)
	assert.False(t, cfg.ClickHouseEnabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnvFile(t *testing.T) {
	t.Setenv("MQTT_QOS", "")
	t.Setenv("CLICKHOUSE_ENABLED", "")
	t.Setenv("HTTP_ADDR", "")

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("MQTT_QOS=2\nCLICKHOUSE_ENABLED=true\nHTTP_ADDR=:9090\n"), 0o600))

	// godotenv does not override variables that are already set
	require.NoError(t, os.Unsetenv("MQTT_QOS"))
	require.NoError(t, os.Unsetenv("CLICKHOUSE_ENABLED"))
	require.NoError(t, os.Unsetenv("HTTP_ADDR"))

	cfg := Load(path)
	assert.Equal(t, 2, cfg.MQTTQoS)
	assert.True(t, cfg.ClickHouseEnabled)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
}

func TestLoadIgnoresUnparsableValues(t *testing.T) {
	t.Setenv("MQTT_QOS", "high")
	t.Setenv("MQTT_RETAIN", "sometimes")

	cfg := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.Equal(t, 1, cfg.MQTTQoS)
	assert.True(t, cfg.MQTTRetain)
}

func TestValidate(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "absent.env"))
	cfg.MQTTQoS = 3
	cfg.MQTTTopicState = "homeassistant/state"
	cfg.MQTTTopicCalibrated = "calibration/state"
	cfg.LogLevel = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MQTT_QOS must be 0, 1 or 2")
	assert.Contains(t, err.Error(), "must contain {entity_id}")
	assert.Contains(t, err.Error(), "must contain {unique_id}")
	assert.Contains(t, err.Error(), "LOG_LEVEL")
}

func TestIsSensorDeviceClass(t *testing.T) {
	assert.True(t, IsSensorDeviceClass("temperature"))
	assert.True(t, IsSensorDeviceClass("voltage"))
	assert.False(t, IsSensorDeviceClass("Temperature"))
	assert.False(t, IsSensorDeviceClass(""))
}
