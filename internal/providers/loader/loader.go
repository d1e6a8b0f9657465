package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/sandveil/sandveil/internal/infrastructure/config"
	"github.com/sandveil/sandveil/internal/infrastructure/logging"
)

// ErrScriptTooLarge is returned when a fetched script exceeds the
// configured size cap.
var ErrScriptTooLarge = errors.New("application script exceeds size limit")

// Loader fetches application scripts from their URLs with retries. Each
// origin host gets its own circuit breaker.
type Loader struct {
	client   *retryablehttp.Client
	maxBytes int64
	logger   *logging.Logger

	mu       sync.Mutex
	breakers map[string]*breaker
}

// New creates a loader from configuration.
func New(cfg config.LoaderConfig, logger *logging.Logger) *Loader {
	if logger == nil {
		logger = logging.NewDefault()
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.HTTPClient.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	client.Logger = nil

	maxBytes := cfg.MaxScriptBytes
	if maxBytes <= 0 {
		maxBytes = 5 * 1024 * 1024
	}

	return &Loader{
		client:   client,
		maxBytes: maxBytes,
		logger:   logger,
		breakers: make(map[string]*breaker),
	}
}

// breakerFor returns the circuit breaker guarding one origin host.
func (l *Loader) breakerFor(host string) *breaker {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.breakers[host]
	if !ok {
		b = newBreaker(3, 30*time.Second)
		l.breakers[host] = b
	}
	return b
}

// Fetch downloads the script at rawURL, capped at the configured size.
func (l *Loader) Fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid script URL %q: %w", rawURL, err)
	}

	cb := l.breakerFor(req.URL.Host)
	if err := cb.allow(); err != nil {
		return "", fmt.Errorf("%w: %s", err, req.URL.Host)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		cb.record(false)
		return "", fmt.Errorf("failed to fetch script from %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		cb.record(false)
		return "", fmt.Errorf("script fetch from %s returned status %d", rawURL, resp.StatusCode)
	}
	cb.record(true)

	// Read one byte past the cap to distinguish at-limit from over-limit.
	body, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read script body: %w", err)
	}
	if int64(len(body)) > l.maxBytes {
		return "", fmt.Errorf("%w: %s", ErrScriptTooLarge, rawURL)
	}

	l.logger.Debug("script fetched",
		zap.String("url", rawURL),
		zap.Int("bytes", len(body)),
	)
	return string(body), nil
}
