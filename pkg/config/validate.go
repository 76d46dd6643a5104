package config

import (
	"fmt"
	"time"
)

// Built-in mobile browser signatures, rotated per fetch attempt
var defaultUserAgents = []string{
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 13; SM-G991B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Mobile Safari/537.36",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 12; Pixel 6) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Mobile Safari/537.36",
}

const (
	defaultPhotoEndpoint = "https://m.gifshow.com/fw/photo/%s"
	defaultLongFormURL   = "https://m.gifshow.com/fw/photo/%s"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// Concurrency
	if c.Concurrency <= 0 {
		warnings = append(warnings, "concurrency should be > 0, defaulting to 5")
		c.Concurrency = 5
	}
	if c.Concurrency > 50 {
		warnings = append(warnings, fmt.Sprintf("concurrency %d exceeds the supported maximum, clamping to 50", c.Concurrency))
		c.Concurrency = 50
	}

	// MaxAttempts
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}

	// RetryDelay
	if c.RetryDelay < 0 {
		warnings = append(warnings, "retry_delay cannot be negative, using default 500ms")
		c.RetryDelay = 0
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 500 * time.Millisecond
	}

	// Timeouts
	if c.ResolveTimeout <= 0 {
		c.ResolveTimeout = 10 * time.Second
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 15 * time.Second
	}

	// Endpoint templates
	if c.PhotoEndpoint == "" {
		c.PhotoEndpoint = defaultPhotoEndpoint
	}
	if c.LongFormURL == "" {
		c.LongFormURL = defaultLongFormURL
	}

	// MinNumericIDLen
	if c.MinNumericIDLen <= 0 {
		c.MinNumericIDLen = 15
	}

	// UserAgents
	if len(c.UserAgents) == 0 {
		c.UserAgents = defaultUserAgents
	}

	// DelayPerHost
	if c.DelayPerHost < 0 {
		warnings = append(warnings, "delay_per_host cannot be negative, disabling politeness delay")
		c.DelayPerHost = 0
	}

	// StateDir
	if c.StateDir == "" {
		c.StateDir = "./ksmeta_state"
	}

	c.validateHTTPClientSettings()

	return warnings, nil // AppConfig validation never fails fatally
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 10
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
	if h.InsecureSkipVerify == nil {
		skip := true
		h.InsecureSkipVerify = &skip
	}
}
