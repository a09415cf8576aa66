package app

import (
	"errors"
	"time"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	FlowPath  string // hcl flow files
	ServerURL string // OAuth2 authorization server base URL

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	RequestTimeout  time.Duration
	NonInteractive  bool
}

// NewConfig validates a Config and returns it.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.FlowPath == "" {
		return nil, errors.New("FlowPath is a required configuration field and cannot be empty")
	}
	if cfg.ServerURL == "" {
		return nil, errors.New("ServerURL is a required configuration field and cannot be empty")
	}
	return &cfg, nil
}
