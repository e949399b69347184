// Package config loads the edge agent's runtime configuration from a YAML
// file layered with environment-variable overrides.
package config

import (
	"fmt"
	"time"
)

// Config is the agent's full runtime configuration.
type Config struct {
	DatabasePath            string        `yaml:"database_path"`
	MQTTConfigPath          string        `yaml:"mqtt_config_path"`
	TLSCAPath               string        `yaml:"tls_ca_path"`
	LogLevel                string        `yaml:"log_level"`
	PollInterval            time.Duration `yaml:"poll_interval"`
	UploadInterval          time.Duration `yaml:"upload_interval"`
	CleanupInterval         time.Duration `yaml:"cleanup_interval"`
	HeartbeatInterval       time.Duration `yaml:"heartbeat_interval"`
	MailboxCapacity         int           `yaml:"mailbox_capacity"`
	ReaderPoolMaxConcurrent int           `yaml:"reader_pool_max_concurrent"`
	MetricsPort             int           `yaml:"metrics_port"`

	MQTT MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig describes how to reach the cloud broker. It is normally loaded
// from the separate file at MQTTConfigPath rather than inline, matching the
// original's split between deployment config and broker config.
type MQTTConfig struct {
	BrokerURL    string `yaml:"broker_url"`
	ClientID     string `yaml:"client_id"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	UseTLS       bool   `yaml:"use_tls"`
	CleanSession bool   `yaml:"clean_session"`
}

// Default returns the configuration used when no file or environment
// override is present.
func Default() *Config {
	return &Config{
		DatabasePath:            "/var/lib/bms-edge-agent/agent.db",
		MQTTConfigPath:          "/etc/bms-edge-agent/mqtt.yaml",
		TLSCAPath:               "",
		LogLevel:                "info",
		PollInterval:            10 * time.Second,
		UploadInterval:          2 * time.Second,
		CleanupInterval:         10 * time.Second,
		HeartbeatInterval:       30 * time.Second,
		MailboxCapacity:         64,
		ReaderPoolMaxConcurrent: 5,
		MetricsPort:             9090,
		MQTT: MQTTConfig{
			CleanSession: false,
			UseTLS:       true,
		},
	}
}

// Validate rejects configurations that would leave the agent unable to
// start (kind-5 configuration errors per the error taxonomy).
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path must not be empty")
	}
	if c.MailboxCapacity <= 0 {
		return fmt.Errorf("mailbox_capacity must be positive, got %d", c.MailboxCapacity)
	}
	if c.ReaderPoolMaxConcurrent <= 0 {
		return fmt.Errorf("reader_pool_max_concurrent must be positive, got %d", c.ReaderPoolMaxConcurrent)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	return nil
}
