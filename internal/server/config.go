package server

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the webhook server's environment-driven configuration. All
// variables carry the COVFLOW_ prefix.
type Config struct {
	// Listen is the address the HTTP server binds to.
	Listen string `default:":8080"`
	// WebhookSecret, when set, requires every event delivery to carry a
	// valid X-Hub-Signature-256 header.
	WebhookSecret string `split_words:"true"`
	// GitHubToken enables commit status reporting when set.
	GitHubToken string `envconfig:"GITHUB_TOKEN"`
	// ShutdownGrace bounds how long in-flight runs may finish after a
	// shutdown signal.
	ShutdownGrace time.Duration `split_words:"true" default:"30s"`
	// MaxConcurrentRuns caps the number of runs executing at once;
	// further matching events wait for a slot.
	MaxConcurrentRuns int `split_words:"true" default:"4"`
}

// ConfigFromEnv reads the server configuration from the environment.
func ConfigFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("covflow", &cfg); err != nil {
		return nil, fmt.Errorf("reading server configuration: %w", err)
	}
	if cfg.MaxConcurrentRuns < 1 {
		return nil, fmt.Errorf("COVFLOW_MAX_CONCURRENT_RUNS must be at least 1, got %d", cfg.MaxConcurrentRuns)
	}
	return &cfg, nil
}
