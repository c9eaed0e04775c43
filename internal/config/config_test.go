package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTTBroker)
	assert.Equal(t, "skywatch/alerts", cfg.MQTTTopic)
	assert.Equal(t, "data/skywatch.db", cfg.DatabasePath)
	assert.Equal(t, "@every 5m", cfg.PollSchedule)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.AllowOrigins)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SKYWATCH_HTTP_PORT", "9000")
	t.Setenv("SKYWATCH_MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("SKYWATCH_MQTT_TOPIC", "ops/sos")
	t.Setenv("SKYWATCH_ALLOW_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.HTTPPort)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTTBroker)
	assert.Equal(t, "ops/sos", cfg.MQTTTopic)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowOrigins)
}

func TestLoadInvalidPort(t *testing.T) {
	t.Setenv("SKYWATCH_HTTP_PORT", "not-a-port")

	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "SKYWATCH_HTTP_PORT")
}
