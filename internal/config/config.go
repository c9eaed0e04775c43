package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config lists the tunable parameters for the Skywatch alert server.
type Config struct {
	HTTPPort     int
	MQTTBroker   string
	MQTTTopic    string
	DatabasePath string
	FirmsURL     string
	PollSchedule string
	AllowOrigins []string
	LogLevel     string
}

const (
	defaultHTTPPort     = 8080
	defaultMQTTBroker   = "tcp://localhost:1883"
	defaultMQTTTopic    = "skywatch/alerts"
	defaultDatabasePath = "data/skywatch.db"
	defaultFirmsURL     = "https://firms.modaps.eosdis.nasa.gov/api/area/csv/active/VIIRS_SNPP_NRT/world/24h"
	defaultPollSchedule = "@every 5m"
	defaultAllowOrigins = "http://localhost:5173"
	defaultLogLevel     = "info"
)

// Load derives configuration values from environment variables, falling back to defaults.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:     defaultHTTPPort,
		MQTTBroker:   defaultMQTTBroker,
		MQTTTopic:    defaultMQTTTopic,
		DatabasePath: defaultDatabasePath,
		FirmsURL:     defaultFirmsURL,
		PollSchedule: defaultPollSchedule,
		AllowOrigins: splitOrigins(defaultAllowOrigins),
		LogLevel:     defaultLogLevel,
	}

	if v := os.Getenv("SKYWATCH_HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SKYWATCH_HTTP_PORT: %w", err)
		}
		cfg.HTTPPort = port
	}

	if v := os.Getenv("SKYWATCH_MQTT_BROKER"); v != "" {
		cfg.MQTTBroker = v
	}

	if v := os.Getenv("SKYWATCH_MQTT_TOPIC"); v != "" {
		cfg.MQTTTopic = v
	}

	if v := os.Getenv("SKYWATCH_DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}

	if v := os.Getenv("SKYWATCH_FIRMS_URL"); v != "" {
		cfg.FirmsURL = v
	}

	if v := os.Getenv("SKYWATCH_POLL_SCHEDULE"); v != "" {
		cfg.PollSchedule = v
	}

	if v := os.Getenv("SKYWATCH_ALLOW_ORIGINS"); v != "" {
		cfg.AllowOrigins = splitOrigins(v)
	}

	if v := os.Getenv("SKYWATCH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg, nil
}

func splitOrigins(v string) []string {
	parts := strings.Split(v, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}
