package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds the global application configuration
type AppConfig struct {
	// Concurrency is the number of record pipelines allowed in flight at once (1-50)
	Concurrency int `yaml:"concurrency"`

	// MaxAttempts is the total fetch attempt budget per record (initial + retries)
	MaxAttempts int           `yaml:"max_attempts,omitempty"`
	RetryDelay  time.Duration `yaml:"retry_delay,omitempty"` // Fixed pause between attempts (not exponential)

	ResolveTimeout time.Duration `yaml:"resolve_timeout,omitempty"` // Short-link redirect resolution
	FetchTimeout   time.Duration `yaml:"fetch_timeout,omitempty"`   // Metadata page fetch

	// PhotoEndpoint is the mobile metadata endpoint template; %s receives the identifier
	PhotoEndpoint string `yaml:"photo_endpoint,omitempty"`
	// LongFormURL is the template for the reconstructed long-form URL output column
	LongFormURL string `yaml:"long_form_url,omitempty"`

	// MinNumericIDLen is the minimum digit count for a string to qualify as a
	// canonical numeric identifier during recovery
	MinNumericIDLen int `yaml:"min_numeric_id_len,omitempty"`

	// UserAgents is the pool rotated per attempt; empty means the built-in mobile pool
	UserAgents []string `yaml:"user_agents,omitempty"`

	// DelayPerHost adds a politeness delay between requests to the same host (0 = off)
	DelayPerHost time.Duration `yaml:"delay_per_host,omitempty"`

	// StateDir is where the badger result store lives (resume support)
	StateDir string `yaml:"state_dir,omitempty"`

	HTTPClientSettings HTTPClientConfig `yaml:"http_client_settings,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns,omitempty"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host,omitempty"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout,omitempty"`
	TLSHandshakeTimeout time.Duration `yaml:"tls_handshake_timeout,omitempty"`
	DialerTimeout       time.Duration `yaml:"dialer_timeout,omitempty"`
	DialerKeepAlive     time.Duration `yaml:"dialer_keep_alive,omitempty"`
	ForceAttemptHTTP2   *bool         `yaml:"force_attempt_http2,omitempty"` // nil=default, true=force, false=disable
	// InsecureSkipVerify disables TLS certificate validation. The endpoint's
	// certificate posture is not under our control; defaults to true.
	InsecureSkipVerify *bool `yaml:"insecure_skip_verify,omitempty"`
}

// Load reads and parses the YAML config file at path
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// Default returns an AppConfig with all defaults applied and no warnings consumed
func Default() *AppConfig {
	cfg := &AppConfig{}
	cfg.Validate()
	return cfg
}
