package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/shoplens/backend/internal/domain"
)

// Config holds page fetcher settings
type Config struct {
	Timeout      time.Duration
	MaxBodyBytes int64
}

// Fetcher retrieves page HTML for resolution verification. Any failure is
// reported as ErrFetchFailure; callers treat it as "no verified page".
type Fetcher struct {
	httpClient   *http.Client
	rateLimiter  *rate.Limiter
	maxBodyBytes int64
}

// NewFetcher creates a page fetcher
func NewFetcher(cfg Config) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 512 * 1024
	}

	return &Fetcher{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		rateLimiter:  rate.NewLimiter(rate.Limit(4), 8),
		maxBodyBytes: maxBody,
	}
}

// Fetch downloads a page and returns its HTML, truncated to the configured cap
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	if err := f.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrFetchFailure, err)
	}
	req.Header.Set("User-Agent", "ShopLens/1.0")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrFetchFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", domain.ErrFetchFailure, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", domain.ErrFetchFailure, err)
	}

	return string(body), nil
}
