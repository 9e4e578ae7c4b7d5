// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultPath is the config file the binaries look for when -config is not given.
const DefaultPath = "gridwatch_config.txt"

// Config holds all application configuration values.
type Config struct {
	// Device
	DevicePort                string `mapstructure:"device_port"` // serial device, or "-" for stdin
	DeviceBaudRate            int    `mapstructure:"device_baud_rate"`
	DeviceReconnectIntervalMS int    `mapstructure:"device_reconnect_interval_ms"` // 0 = do not reopen
	DeviceMaxLineBytes        int    `mapstructure:"device_max_line_bytes"`

	// Matching
	MatchThresholdM float64 `mapstructure:"match_threshold_m"`

	// Registry
	RegistryBackend  string `mapstructure:"registry_backend"` // memory or redis
	AssetsFile       string `mapstructure:"assets_file"`
	RedisAddr        string `mapstructure:"redis_addr"`
	RedisDB          int    `mapstructure:"redis_db"`
	RedisAssetsKey   string `mapstructure:"redis_assets_key"`
	StorageTimeoutMS int    `mapstructure:"storage_timeout_ms"`

	// Web Server
	WebServerPort            int    `mapstructure:"web_server_port"`
	AllowedOrigins           string `mapstructure:"allowed_origins"` // comma separated, "*" allows all
	SubscriberQueueSize      int    `mapstructure:"subscriber_queue_size"`
	SubscriberWriteTimeoutMS int    `mapstructure:"subscriber_write_timeout_ms"`

	// MQTT
	MQTTBroker          string `mapstructure:"mqtt_broker"` // empty disables the bridge
	MQTTClientID        string `mapstructure:"mqtt_client_id"`
	MQTTClientIDConsole string `mapstructure:"mqtt_client_id_console"`

	// Topics
	TopicRawTelemetry string `mapstructure:"topic_raw_telemetry"`
	TopicAssetUpdated string `mapstructure:"topic_asset_updated"`

	// Observability
	MetricsPort    int    `mapstructure:"metrics_port"`
	GRPCHealthPort int    `mapstructure:"grpc_health_port"`
	LogLevel       string `mapstructure:"log_level"`
	LogFormat      string `mapstructure:"log_format"`
	LogFile        string `mapstructure:"log_file"`
}

var defaults = map[string]any{
	"device_port":                  "/dev/ttyUSB0",
	"device_baud_rate":             115200,
	"device_reconnect_interval_ms": 5000,
	"device_max_line_bytes":        65536,
	"match_threshold_m":            50.0,
	"registry_backend":             "memory",
	"assets_file":                  "",
	"redis_addr":                   "localhost:6379",
	"redis_db":                     0,
	"redis_assets_key":             "gridwatch:assets",
	"storage_timeout_ms":           5000,
	"web_server_port":              5000,
	"allowed_origins":              "http://localhost:5173",
	"subscriber_queue_size":        64,
	"subscriber_write_timeout_ms":  2000,
	"mqtt_broker":                  "",
	"mqtt_client_id":               "gridwatch-bridge",
	"mqtt_client_id_console":       "gridwatch-console",
	"topic_raw_telemetry":          "gridwatch/telemetry",
	"topic_asset_updated":          "gridwatch/assets",
	"metrics_port":                 9000,
	"grpc_health_port":             50051,
	"log_level":                    "info",
	"log_format":                   "json",
	"log_file":                     "",
}

// Load reads a KEY=VALUE config file and returns a Config struct.
// Environment variables with the same upper-case names override the file.
// An empty path skips the file and uses defaults plus environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		for _, key := range v.AllKeys() {
			if _, known := defaults[key]; !known {
				return nil, fmt.Errorf("unknown config key: %q", strings.ToUpper(key))
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Find returns path when the file exists and "" when it does not, so a
// missing default file falls back to defaults plus environment.
func Find(path string) string {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return ""
	}
	return path
}

// validate checks ranges and enumerations.
func (c *Config) validate() error {
	if c.DevicePort == "" {
		return fmt.Errorf("DEVICE_PORT is required")
	}
	if c.DeviceBaudRate <= 0 {
		return fmt.Errorf("DEVICE_BAUD_RATE must be positive, got %d", c.DeviceBaudRate)
	}
	if c.DeviceReconnectIntervalMS < 0 {
		return fmt.Errorf("DEVICE_RECONNECT_INTERVAL_MS must not be negative, got %d", c.DeviceReconnectIntervalMS)
	}
	if c.DeviceMaxLineBytes <= 0 {
		return fmt.Errorf("DEVICE_MAX_LINE_BYTES must be positive, got %d", c.DeviceMaxLineBytes)
	}
	if c.MatchThresholdM <= 0 {
		return fmt.Errorf("MATCH_THRESHOLD_M must be positive, got %v", c.MatchThresholdM)
	}
	switch c.RegistryBackend {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis registry")
		}
	default:
		return fmt.Errorf("REGISTRY_BACKEND must be memory or redis, got %q", c.RegistryBackend)
	}
	if c.StorageTimeoutMS <= 0 {
		return fmt.Errorf("STORAGE_TIMEOUT_MS must be positive, got %d", c.StorageTimeoutMS)
	}
	if c.SubscriberQueueSize <= 0 {
		return fmt.Errorf("SUBSCRIBER_QUEUE_SIZE must be positive, got %d", c.SubscriberQueueSize)
	}
	if c.SubscriberWriteTimeoutMS <= 0 {
		return fmt.Errorf("SUBSCRIBER_WRITE_TIMEOUT_MS must be positive, got %d", c.SubscriberWriteTimeoutMS)
	}
	for name, port := range map[string]int{
		"WEB_SERVER_PORT":  c.WebServerPort,
		"METRICS_PORT":     c.MetricsPort,
		"GRPC_HEALTH_PORT": c.GRPCHealthPort,
	} {
		if port < 0 || port > 65535 {
			return fmt.Errorf("%s out of range: %d", name, port)
		}
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat)
	}
	return nil
}

// AllowedOriginList splits ALLOWED_ORIGINS.
func (c *Config) AllowedOriginList() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (c *Config) ReconnectInterval() time.Duration {
	return time.Duration(c.DeviceReconnectIntervalMS) * time.Millisecond
}

func (c *Config) StorageTimeout() time.Duration {
	return time.Duration(c.StorageTimeoutMS) * time.Millisecond
}

func (c *Config) SubscriberWriteTimeout() time.Duration {
	return time.Duration(c.SubscriberWriteTimeoutMS) * time.Millisecond
}
