package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"ksmeta/pkg/config"
	"ksmeta/pkg/utils"
)

// OutcomeKind discriminates the result of a single fetch attempt
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeHTTPError
	OutcomeTimeout
	OutcomeTransportError
)

// String implements fmt.Stringer for logging
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeHTTPError:
		return "http_error"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeTransportError:
		return "transport_error"
	}
	return "unknown"
}

// FetchOutcome is the result of one attempt. Produced once per attempt and
// consumed immediately by the retry loop, which decides retry/terminate.
type FetchOutcome struct {
	Kind       OutcomeKind
	Body       string // Set when Kind == OutcomeSuccess
	StatusCode int    // Set when Kind == OutcomeHTTPError
	Err        error  // Cause for Timeout/TransportError
}

// Fetcher issues metadata page requests with per-attempt user-agent rotation
// and a fixed-delay retry budget. Any non-200 status exhausts retries the
// same way a timeout does; the endpoint's status codes are not reliable
// signals of the underlying cause.
type Fetcher struct {
	client  *http.Client
	cfg     *config.AppConfig
	agents  *AgentPool
	limiter *RateLimiter
	log     *logrus.Entry
}

// NewFetcher creates a new Fetcher instance
func NewFetcher(client *http.Client, cfg *config.AppConfig, agents *AgentPool, limiter *RateLimiter, log *logrus.Entry) *Fetcher {
	return &Fetcher{
		client:  client,
		cfg:     cfg,
		agents:  agents,
		limiter: limiter,
		log:     log,
	}
}

// PhotoURL builds the mobile metadata endpoint URL for an identifier
func (f *Fetcher) PhotoURL(videoID string) string {
	return fmt.Sprintf(f.cfg.PhotoEndpoint, videoID)
}

// FetchPhoto fetches the metadata page for a resolved identifier
func (f *Fetcher) FetchPhoto(ctx context.Context, videoID string) (string, error) {
	return f.FetchBody(ctx, f.PhotoURL(videoID))
}

// FetchBody fetches rawURL with the configured attempt budget. On success the
// HTML body is returned. After the final failed attempt the last underlying
// cause is wrapped with ErrRetryFailed.
func (f *Fetcher) FetchBody(ctx context.Context, rawURL string) (string, error) {
	reqLog := f.log.WithField("url", rawURL)

	var lastErr error
	for attempt := 1; attempt <= f.cfg.MaxAttempts; attempt++ {
		// Stop both fresh attempts and further retries once cancelled
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return "", fmt.Errorf("cancelled (%w) after attempt error: %w", ctx.Err(), lastErr)
			}
			return "", ctx.Err()
		default:
		}

		outcome := f.attempt(ctx, rawURL)
		switch outcome.Kind {
		case OutcomeSuccess:
			return outcome.Body, nil
		case OutcomeHTTPError:
			lastErr = fmt.Errorf("%w: status %d", utils.ErrHTTPStatus, outcome.StatusCode)
		case OutcomeTimeout, OutcomeTransportError:
			if errors.Is(outcome.Err, context.Canceled) {
				return "", outcome.Err
			}
			lastErr = outcome.Err
		}

		reqLog.WithFields(logrus.Fields{
			"attempt":  attempt,
			"budget":   f.cfg.MaxAttempts,
			"outcome":  outcome.Kind.String(),
			"category": utils.CategorizeError(lastErr),
		}).Warn("Fetch attempt failed")

		// Fixed short pause between attempts; retries for one record are
		// strictly sequential and never parallelized
		if attempt < f.cfg.MaxAttempts {
			select {
			case <-time.After(f.cfg.RetryDelay):
			case <-ctx.Done():
				return "", fmt.Errorf("cancelled (%w) during retry pause after: %w", ctx.Err(), lastErr)
			}
		}
	}

	reqLog.Errorf("All %d fetch attempts failed. Last error: %v", f.cfg.MaxAttempts, lastErr)
	if lastErr == nil {
		return "", utils.ErrRetryFailed
	}
	return "", fmt.Errorf("%w: %w", utils.ErrRetryFailed, lastErr)
}

// attempt performs one GET and classifies the result as a FetchOutcome
func (f *Fetcher) attempt(ctx context.Context, rawURL string) FetchOutcome {
	attemptCtx, cancel := context.WithTimeout(ctx, f.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return FetchOutcome{Kind: OutcomeTransportError, Err: fmt.Errorf("%w: %w", utils.ErrRequestCreation, err)}
	}
	f.agents.ApplyMobileHeaders(req)

	if host := req.URL.Hostname(); host != "" {
		f.limiter.ApplyDelay(host)
		defer f.limiter.UpdateLastRequestTime(host)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return classifyTransportError(ctx, err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return FetchOutcome{Kind: OutcomeHTTPError, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return FetchOutcome{Kind: OutcomeTransportError, Err: fmt.Errorf("%w: %w", utils.ErrBodyRead, err)}
	}
	return FetchOutcome{Kind: OutcomeSuccess, Body: string(body)}
}

// classifyTransportError separates timeouts from other network-level failures.
// Cancellation of the parent context is passed through as-is.
func classifyTransportError(parent context.Context, err error) FetchOutcome {
	if parent.Err() != nil {
		return FetchOutcome{Kind: OutcomeTransportError, Err: parent.Err()}
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return FetchOutcome{Kind: OutcomeTimeout, Err: err}
	}
	return FetchOutcome{Kind: OutcomeTransportError, Err: err}
}
