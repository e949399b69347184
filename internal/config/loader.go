package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load builds a Config by starting from defaults, overlaying the YAML file
// at path if it exists, then overlaying environment variables. Environment
// variables always win, matching the teacher's source-priority merge
// pattern (default < file < env).
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("BMS_DB_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("BMS_MQTT_CONFIG"); v != "" {
		cfg.MQTTConfigPath = v
	}
	if v := os.Getenv("BMS_TLS_CA"); v != "" {
		cfg.TLSCAPath = v
	}
	if v := os.Getenv("BMS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("BMS_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PollInterval = d
		}
	}
	if v := os.Getenv("BMS_MAILBOX_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MailboxCapacity = n
		}
	}
	if v := os.Getenv("BMS_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MetricsPort = n
		}
	}
}

// LoadMQTT loads the broker-specific config file referenced by
// Config.MQTTConfigPath. Kept separate from the main config file since
// broker credentials rotate independently of agent tuning parameters.
func LoadMQTT(path string) (*MQTTConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mqtt config %s: %w", path, err)
	}
	var mqtt MQTTConfig
	if err := yaml.Unmarshal(data, &mqtt); err != nil {
		return nil, fmt.Errorf("parsing mqtt config %s: %w", path, err)
	}
	if mqtt.BrokerURL == "" {
		return nil, fmt.Errorf("mqtt config %s missing broker_url", path)
	}
	return &mqtt, nil
}
