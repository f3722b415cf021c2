package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// WorkflowsPath points at a single .hcl file or a directory of them.
	WorkflowsPath string

	// EventPath is an optional JSON payload file describing the event a
	// one-shot invocation runs against. EventType names its kind.
	EventPath string
	EventType string

	// Force runs every loaded workflow regardless of trigger matching.
	Force bool

	// Serve starts the webhook server instead of a one-shot run.
	Serve bool

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	WorkerCount     int
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.WorkflowsPath == "" {
		return nil, errors.New("WorkflowsPath is a required configuration field and cannot be empty")
	}
	if cfg.EventPath != "" && cfg.EventType == "" {
		return nil, errors.New("EventType is required when EventPath is set")
	}

	return &cfg, nil
}
