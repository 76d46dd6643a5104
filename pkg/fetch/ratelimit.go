package fetch

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RateLimiter spaces out request attempts per host. The concurrency bound is
// the primary throttle; this politeness delay is optional and off by default.
type RateLimiter struct {
	hostLastRequest map[string]time.Time
	mu              sync.Mutex
	delay           time.Duration
	log             *logrus.Entry
}

// NewRateLimiter creates a RateLimiter with the given minimum spacing per
// host. A zero or negative delay disables it.
func NewRateLimiter(delay time.Duration, log *logrus.Entry) *RateLimiter {
	return &RateLimiter{
		hostLastRequest: make(map[string]time.Time),
		delay:           delay,
		log:             log,
	}
}

// ApplyDelay sleeps if the time since the last attempt against host is
// shorter than the configured spacing.
func (rl *RateLimiter) ApplyDelay(host string) {
	if rl.delay <= 0 {
		return
	}

	rl.mu.Lock()
	lastReqTime, exists := rl.hostLastRequest[host]
	rl.mu.Unlock() // Unlock before potentially sleeping

	if !exists {
		return
	}
	elapsed := time.Since(lastReqTime)
	if elapsed >= rl.delay {
		return
	}

	sleep := rl.delay - elapsed
	rl.log.WithFields(logrus.Fields{"host": host, "sleep": sleep}).Debug("Politeness delay before request")
	time.Sleep(sleep)
}

// UpdateLastRequestTime records the current time as the last attempt time for
// host. Call after each HTTP request attempt.
func (rl *RateLimiter) UpdateLastRequestTime(host string) {
	if rl.delay <= 0 {
		return
	}
	rl.mu.Lock()
	rl.hostLastRequest[host] = time.Now()
	rl.mu.Unlock()
}
