package domain

import "context"

// Message is one turn of conversation passed to the text generator
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// CompletionRequest is the normalized input to the generative-text capability
type CompletionRequest struct {
	System      string    `json:"system"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"maxTokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// TextGenerator is the black-box generative-text capability: prompt in,
// text out. Used for classification, extraction, enrichment, price
// estimation, and comparison summarization.
type TextGenerator interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// ResearchSource is one source the research provider consulted
type ResearchSource struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// ResearchResult is the aggregate output of one research call
type ResearchResult struct {
	Context string           `json:"context"`
	Sources []ResearchSource `json:"sources"`
}

// Researcher is the black-box research/search capability. onProgress may be
// nil; when set it receives typed events as sources are discovered.
type Researcher interface {
	Search(ctx context.Context, query string, onProgress ProgressFunc) (*ResearchResult, error)
}

// PageFetcher retrieves raw HTML for the resolution stage's verification
// step. Failures are treated as "no verified page", never surfaced.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// ProductStore is the persistent record store backing the product cache.
// UpdateProduct performs a read-modify-write against the single logical
// record for key: fn receives the existing record (nil when absent) and
// returns the record to write. Implementations must make this atomic so
// concurrent extractions of the same product cannot lose updates.
type ProductStore interface {
	GetProduct(ctx context.Context, key string) (*CachedProduct, error)
	UpdateProduct(ctx context.Context, key string, fn func(existing *CachedProduct) *CachedProduct) error
	SearchProducts(ctx context.Context, keywords []string) ([]CachedProduct, error)
	PurgeProducts(ctx context.Context) error
}

// PreferenceStore persists learned preference records, one per user.
// SavePreferences replaces the whole record atomically.
type PreferenceStore interface {
	GetPreferences(ctx context.Context, userID string) (*UserPreferences, error)
	SavePreferences(ctx context.Context, prefs *UserPreferences) error
}
