package research

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/shoplens/backend/internal/domain"
)

// Config holds research provider settings
type Config struct {
	APIKey            string
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// Client handles communication with the product research provider
type Client struct {
	httpClient  *http.Client
	apiKey      string
	baseURL     string
	rateLimiter *rate.Limiter
	logger      *zap.Logger
}

// NewClient creates a new research provider client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2.0
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		apiKey:      cfg.APIKey,
		baseURL:     cfg.BaseURL,
		rateLimiter: rate.NewLimiter(rate.Limit(rps), 5),
		logger:      logger,
	}
}

// searchResponse is the provider's wire format
type searchResponse struct {
	Context string `json:"context"`
	Sources []struct {
		Title string `json:"title"`
		URL   string `json:"url"`
		Type  string `json:"type,omitempty"`
	} `json:"sources"`
}

// Search runs one research query. onProgress, when non-nil, receives a
// source_found event per discovered source.
func (c *Client) Search(ctx context.Context, query string, onProgress domain.ProgressFunc) (*domain.ResearchResult, error) {
	if query == "" {
		return nil, domain.ErrInvalidRequest
	}

	endpoint := fmt.Sprintf("%s/v1/research", c.baseURL)
	params := url.Values{}
	params.Add("query", query)
	reqURL := fmt.Sprintf("%s?%s", endpoint, params.Encode())

	// Retry up to 3 times for transient failures
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter error: %w", err)
		}

		body, err := c.doRequest(ctx, reqURL)
		if err != nil {
			c.logger.Warn("research request failed",
				zap.Int("attempt", attempt),
				zap.String("query", query),
				zap.Error(err))
			lastErr = err
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt*500) * time.Millisecond):
			}
			continue
		}

		var resp searchResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("%w: decode: %v", domain.ErrResearchFailure, err)
		}

		result := &domain.ResearchResult{Context: resp.Context}
		for _, s := range resp.Sources {
			result.Sources = append(result.Sources, domain.ResearchSource{Title: s.Title, URL: s.URL})
			if onProgress != nil {
				onProgress(domain.NewProgressEvent(domain.EventSourceFound, s.Title, map[string]interface{}{
					"url":  s.URL,
					"type": s.Type,
				}))
			}
		}

		return result, nil
	}

	return nil, fmt.Errorf("%w: %v", domain.ErrResearchFailure, lastErr)
}

// doRequest executes a GET with auth headers and returns the response body
func (c *Client) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "ShopLens/1.0")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrResearchFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrResearchFailure, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrResearchFailure, resp.StatusCode, string(body))
	}

	return body, nil
}
