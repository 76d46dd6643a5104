package resolve

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"ksmeta/pkg/config"
	"ksmeta/pkg/fetch"
	"ksmeta/pkg/utils"
)

var (
	shortVideoPathRe = regexp.MustCompile(`/short-video/([a-zA-Z0-9_-]+)`)
	photoPathRe      = regexp.MustCompile(`/photo/([a-zA-Z0-9_-]+)`)
)

// Resolver turns one raw source URL into a stable video identifier.
// Canonical-path URLs are resolved without a network call; short links are
// followed through their redirect and the identifier is recovered from the
// final URL.
type Resolver struct {
	client *http.Client
	cfg    *config.AppConfig
	agents *fetch.AgentPool
	log    *logrus.Entry
}

// NewResolver creates a new Resolver instance
func NewResolver(client *http.Client, cfg *config.AppConfig, agents *fetch.AgentPool, log *logrus.Entry) *Resolver {
	return &Resolver{
		client: client,
		cfg:    cfg,
		agents: agents,
		log:    log,
	}
}

// Resolve returns the video identifier for rawURL. All failure modes
// (transport error, timeout, no recognizable identifier) surface as
// ErrResolveFailed; no partial identifiers are returned.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", fmt.Errorf("%w: empty URL", utils.ErrResolveFailed)
	}

	// Fast path: canonical path carries the identifier directly
	if strings.Contains(rawURL, "/short-video/") {
		if m := shortVideoPathRe.FindStringSubmatch(rawURL); m != nil {
			return m[1], nil
		}
		return "", fmt.Errorf("%w: malformed canonical path: %s", utils.ErrResolveFailed, rawURL)
	}

	// Short-link form: follow the redirect and read the final URL
	if strings.Contains(rawURL, "kuaishou.com") {
		return r.resolveShortLink(ctx, rawURL)
	}

	return "", fmt.Errorf("%w: unrecognized URL shape: %s", utils.ErrResolveFailed, rawURL)
}

// resolveShortLink issues a redirect-following GET and extracts the
// identifier from the resolved URL.
func (r *Resolver) resolveShortLink(ctx context.Context, rawURL string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, r.cfg.ResolveTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", utils.ErrResolveFailed, err)
	}
	r.agents.ApplyMobileHeaders(req)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: redirect fetch: %v", utils.ErrResolveFailed, err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	finalURL := resp.Request.URL
	r.log.WithFields(logrus.Fields{"url": rawURL, "resolved": finalURL.String()}).Debug("Short link resolved")

	params := finalURL.Query()

	// Slug-form photoId beats everything: the share redirect usually carries
	// the legacy alphanumeric identifier there
	if id := params.Get("photoId"); id != "" && !isDigits(id) && len(id) > 5 {
		return id, nil
	}

	// Path forms on the resolved URL
	if m := photoPathRe.FindStringSubmatch(finalURL.Path); m != nil && !isDigits(m[1]) {
		return m[1], nil
	}
	if m := shortVideoPathRe.FindStringSubmatch(finalURL.Path); m != nil {
		return m[1], nil
	}

	// Numeric fallbacks
	if id := params.Get("photoId"); id != "" && isDigits(id) {
		return id, nil
	}
	if id := params.Get("shareObjectId"); id != "" && isDigits(id) {
		return id, nil
	}

	return "", fmt.Errorf("%w: no identifier in resolved URL: %s", utils.ErrResolveFailed, finalURL)
}

// isDigits reports whether s is non-empty and all ASCII digits
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
