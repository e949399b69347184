package database

import "time"

// Config holds connection parameters for the staging store.
type Config struct {
	DatabasePath string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// NewConfig returns sane defaults for an embedded single-file store shared
// by a handful of concurrent actors (BACnet monitoring, uploader, cleaner,
// heartbeat, MQTT) — not the dozens of connections a networked service
// would need.
func NewConfig(path string) *Config {
	return &Config{
		DatabasePath: path,
		MaxOpenConns: 4,
		MaxIdleConns: 4,
		MaxLifetime:  time.Hour,
	}
}
