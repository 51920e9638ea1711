package usecase

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shoplens/backend/internal/domain"
)

// Evidence caps applied at merge time
const (
	maxPros              = 8
	maxCons              = 6
	maxEndorsementQuotes = 6
)

// Keyword-search scoring: score = min(95, 50 + matchRatio*45)
const (
	searchScoreBase  = 50.0
	searchScoreSpan  = 45.0
	searchScoreCeil  = 95.0
	minKeywordLength = 3
)

var nonAlphanumericRegex = regexp.MustCompile(`[^a-z0-9]+`)

// ProductCache is the cross-query product memory: a normalized-key store
// with merge-on-write semantics and keyword search.
type ProductCache struct {
	store  domain.ProductStore
	logger *zap.Logger
}

// NewProductCache creates a product cache over the given store
func NewProductCache(store domain.ProductStore, logger *zap.Logger) *ProductCache {
	return &ProductCache{store: store, logger: logger}
}

// NormalizeKey derives the canonical identity slug for a product. Two
// extractions that normalize to the same key are the same entity:
// NormalizeKey("Sony", "WH-1000XM5") == NormalizeKey("sony", "wh 1000 xm5").
func NormalizeKey(brand, name string) string {
	b := normalizeSlug(brand)
	n := normalizeSlug(name)
	if b == "" {
		return n
	}
	return b + "-" + n
}

func normalizeSlug(s string) string {
	return nonAlphanumericRegex.ReplaceAllString(strings.ToLower(s), "")
}

// LookupByKeys fetches cached products for the given brand/name pairs,
// keyed by normalized key. Missing entries are simply absent from the map.
func (c *ProductCache) LookupByKeys(ctx context.Context, refs []domain.ProductRef) (map[string]domain.CachedProduct, error) {
	results := make(map[string]domain.CachedProduct, len(refs))
	for _, ref := range refs {
		key := NormalizeKey(ref.Brand, ref.Name)
		if key == "" {
			continue
		}
		product, err := c.store.GetProduct(ctx, key)
		if err != nil {
			if err == domain.ErrProductNotFound {
				continue
			}
			return nil, err
		}
		results[key] = *product
	}
	return results, nil
}

// Search splits the query into keywords and ranks cached products by how
// many keywords they match, breaking ties on quality score.
func (c *ProductCache) Search(ctx context.Context, query string, limit int) ([]domain.CacheMatch, error) {
	keywords := splitKeywords(query)
	if len(keywords) == 0 {
		return nil, nil
	}

	products, err := c.store.SearchProducts(ctx, keywords)
	if err != nil {
		return nil, err
	}

	var matches []domain.CacheMatch
	for _, product := range products {
		matched := countMatchedKeywords(product, keywords)
		if matched == 0 {
			continue
		}
		ratio := float64(matched) / float64(len(keywords))
		score := searchScoreBase + ratio*searchScoreSpan
		if score > searchScoreCeil {
			score = searchScoreCeil
		}
		matches = append(matches, domain.CacheMatch{
			Product:         product,
			MatchScore:      score,
			MatchedKeywords: matched,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].MatchedKeywords != matches[j].MatchedKeywords {
			return matches[i].MatchedKeywords > matches[j].MatchedKeywords
		}
		return matches[i].Product.QualityScore > matches[j].Product.QualityScore
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	return matches, nil
}

// Upsert merges a candidate into the cache under its normalized key.
// First sighting inserts fresh; later sightings accumulate evidence without
// ever regressing quality or occurrence counters.
func (c *ProductCache) Upsert(ctx context.Context, candidate domain.CandidateProduct) error {
	key := NormalizeKey(candidate.Brand, candidate.Name)
	if key == "" {
		return domain.ErrInvalidRequest
	}

	now := time.Now()
	return c.store.UpdateProduct(ctx, key, func(existing *domain.CachedProduct) *domain.CachedProduct {
		if existing == nil {
			fresh := newCachedProduct(key, candidate, now)
			return &fresh
		}
		merged := mergeCandidate(*existing, candidate, now)
		return &merged
	})
}

// UpsertAll writes a batch best-effort: one candidate's failure never
// aborts the others.
func (c *ProductCache) UpsertAll(ctx context.Context, candidates []domain.CandidateProduct) {
	for _, candidate := range candidates {
		if err := c.Upsert(ctx, candidate); err != nil {
			c.logger.Warn("cache upsert failed",
				zap.String("name", candidate.Name),
				zap.String("brand", candidate.Brand),
				zap.Error(err))
		}
	}
}

// Purge removes all cached products (administrative operation)
func (c *ProductCache) Purge(ctx context.Context) error {
	return c.store.PurgeProducts(ctx)
}

func newCachedProduct(key string, candidate domain.CandidateProduct, now time.Time) domain.CachedProduct {
	return domain.CachedProduct{
		Key:                 key,
		Name:                candidate.Name,
		Brand:               candidate.Brand,
		Category:            candidate.Category,
		Description:         candidate.Description,
		EstimatedPrice:      candidate.EstimatedPrice,
		Pros:                truncateList(dedupeStrings(candidate.Pros), maxPros),
		Cons:                truncateList(dedupeStrings(candidate.Cons), maxCons),
		EndorsementStrength: candidate.EndorsementStrength,
		EndorsementQuotes:   truncateList(dedupeStrings(candidate.EndorsementQuotes), maxEndorsementQuotes),
		SourceTypes:         dedupeStrings(candidate.SourceTypes),
		SourcesCount:        candidate.SourcesCount,
		ImageURL:            candidate.ImageURL,
		SearchesFoundIn:     1,
		QualityScore:        candidate.Confidence,
		LastSeenAt:          now,
	}
}

// mergeCandidate folds fresh evidence into an existing record. Quality and
// occurrence counters never regress; evidence unions are deduplicated and
// capped; the longer description wins; image/price fill only when absent.
func mergeCandidate(existing domain.CachedProduct, incoming domain.CandidateProduct, now time.Time) domain.CachedProduct {
	existing.Pros = truncateList(dedupeStrings(append(existing.Pros, incoming.Pros...)), maxPros)
	existing.Cons = truncateList(dedupeStrings(append(existing.Cons, incoming.Cons...)), maxCons)
	existing.EndorsementQuotes = truncateList(dedupeStrings(append(existing.EndorsementQuotes, incoming.EndorsementQuotes...)), maxEndorsementQuotes)
	existing.SourceTypes = dedupeStrings(append(existing.SourceTypes, incoming.SourceTypes...))

	if incoming.Confidence > existing.QualityScore {
		existing.QualityScore = incoming.Confidence
	}
	if incoming.SourcesCount > existing.SourcesCount {
		existing.SourcesCount = incoming.SourcesCount
	}
	if len(incoming.Description) > len(existing.Description) {
		existing.Description = incoming.Description
	}
	if existing.ImageURL == "" && incoming.ImageURL != "" {
		existing.ImageURL = incoming.ImageURL
	}
	if existing.EstimatedPrice == "" && incoming.EstimatedPrice != "" {
		existing.EstimatedPrice = incoming.EstimatedPrice
	}
	if incoming.EndorsementStrength != "" {
		existing.EndorsementStrength = incoming.EndorsementStrength
	}

	existing.SearchesFoundIn++
	existing.LastSeenAt = now

	return existing
}

// splitKeywords extracts search keywords from a query (length > 2, lowercased)
func splitKeywords(query string) []string {
	var keywords []string
	for _, word := range strings.Fields(strings.ToLower(query)) {
		word = strings.Trim(word, ",.!?;:'\"$")
		if len(word) >= minKeywordLength {
			keywords = append(keywords, word)
		}
	}
	return keywords
}

func countMatchedKeywords(product domain.CachedProduct, keywords []string) int {
	haystack := strings.ToLower(product.Name + " " + product.Brand + " " + product.Category + " " + product.Description)
	matched := 0
	for _, kw := range keywords {
		if strings.Contains(haystack, kw) {
			matched++
		}
	}
	return matched
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	var result []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		lower := strings.ToLower(v)
		if seen[lower] {
			continue
		}
		seen[lower] = true
		result = append(result, v)
	}
	return result
}

func truncateList(values []string, limit int) []string {
	if len(values) > limit {
		return values[:limit]
	}
	return values
}
