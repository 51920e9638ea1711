package domain

import "time"

// Mode classifies what a chat query is asking for
type Mode string

const (
	ModeAsk         Mode = "ask"
	ModeSearch      Mode = "search"
	ModeComparison  Mode = "comparison"
	ModeGeneralChat Mode = "general_chat"
)

// EndorsementStrength grades how strongly research evidence backs a product
type EndorsementStrength string

const (
	EndorsementStrong   EndorsementStrength = "strong"
	EndorsementModerate EndorsementStrength = "moderate"
	EndorsementWeak     EndorsementStrength = "weak"
)

// ProductRef identifies a product by brand and name
type ProductRef struct {
	Name  string `json:"name"`
	Brand string `json:"brand,omitempty"`
}

// CandidateProduct is a per-request product inferred from research evidence.
// Confidence measures evidence quality (0-100); MatchScore measures relevance
// to the current query (0-100) and is never persisted as-is.
type CandidateProduct struct {
	Name                string              `json:"name"`
	Brand               string              `json:"brand,omitempty"`
	Category            string              `json:"category,omitempty"`
	Description         string              `json:"description,omitempty"`
	EstimatedPrice      string              `json:"estimatedPrice,omitempty"` // may be a range like "150-200"
	Pros                []string            `json:"pros,omitempty"`
	Cons                []string            `json:"cons,omitempty"`
	EndorsementStrength EndorsementStrength `json:"endorsementStrength,omitempty"`
	EndorsementQuotes   []string            `json:"endorsementQuotes,omitempty"`
	SourceTypes         []string            `json:"sourceTypes,omitempty"`
	SourcesCount        int                 `json:"sourcesCount,omitempty"`
	ImageURL            string              `json:"imageUrl,omitempty"`
	Confidence          float64             `json:"confidence"`
	MatchScore          float64             `json:"matchScore"`
}

// Ref returns the brand/name identity of the candidate
func (p CandidateProduct) Ref() ProductRef {
	return ProductRef{Name: p.Name, Brand: p.Brand}
}

// CachedProduct is the durable form of a product, keyed by a normalized
// brand-name slug and merged across extractions. QualityScore and
// SearchesFoundIn only ever grow.
type CachedProduct struct {
	Key                 string              `json:"key"`
	Name                string              `json:"name"`
	Brand               string              `json:"brand,omitempty"`
	Category            string              `json:"category,omitempty"`
	Description         string              `json:"description,omitempty"`
	EstimatedPrice      string              `json:"estimatedPrice,omitempty"`
	Pros                []string            `json:"pros,omitempty"`
	Cons                []string            `json:"cons,omitempty"`
	EndorsementStrength EndorsementStrength `json:"endorsementStrength,omitempty"`
	EndorsementQuotes   []string            `json:"endorsementQuotes,omitempty"`
	SourceTypes         []string            `json:"sourceTypes,omitempty"`
	SourcesCount        int                 `json:"sourcesCount"`
	ImageURL            string              `json:"imageUrl,omitempty"`
	SearchesFoundIn     int                 `json:"searchesFoundIn"`
	QualityScore        float64             `json:"qualityScore"`
	LastSeenAt          time.Time           `json:"lastSeenAt"`
}

// CacheMatch pairs a cached product with its relevance to the current query.
// MatchScore is query-specific and never written back to the store.
type CacheMatch struct {
	Product         CachedProduct `json:"product"`
	MatchScore      float64       `json:"matchScore"`
	MatchedKeywords int           `json:"matchedKeywords"`
}

// ResolvedProduct is a candidate with a verified purchase page attached.
// Price is nil when unknown; zero means genuinely free, not unknown.
type ResolvedProduct struct {
	CandidateProduct
	URL            string   `json:"url"`
	Retailer       string   `json:"retailer,omitempty"`
	Price          *float64 `json:"price,omitempty"`
	PriceEstimated bool     `json:"priceEstimated,omitempty"`
	Images         []string `json:"images,omitempty"`
}
