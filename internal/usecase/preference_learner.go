package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shoplens/backend/internal/domain"
)

// Contribution scaling: a first sighting establishes interest faster than
// repeated confirmation reinforces it
const (
	firstSightingScale = 30.0
	reinforcementScale = 15.0
	maxWeight          = 100.0
)

// LearnerConfig tunes the preference learner
type LearnerConfig struct {
	DecayFactor       float64
	WeightFloor       float64
	MaxCategories     int
	MaxBrands         int
	MaxRecentSearches int
}

// PreferenceLearner maintains per-user decayed affinity weights for
// categories and brands from search outcomes. It runs as a background task:
// failures are logged and swallowed, never surfaced to the request.
type PreferenceLearner struct {
	store             domain.PreferenceStore
	decayFactor       float64
	weightFloor       float64
	maxCategories     int
	maxBrands         int
	maxRecentSearches int
	logger            *zap.Logger

	// now is swappable for deterministic decay tests
	now func() time.Time
}

// NewPreferenceLearner creates a preference learner with the given configuration
func NewPreferenceLearner(store domain.PreferenceStore, config LearnerConfig, logger *zap.Logger) *PreferenceLearner {
	decay := config.DecayFactor
	if decay <= 0 || decay >= 1 {
		decay = 0.95
	}

	floor := config.WeightFloor
	if floor <= 0 {
		floor = 5.0
	}

	maxCategories := config.MaxCategories
	if maxCategories <= 0 {
		maxCategories = 15
	}

	maxBrands := config.MaxBrands
	if maxBrands <= 0 {
		maxBrands = 20
	}

	maxRecent := config.MaxRecentSearches
	if maxRecent <= 0 {
		maxRecent = 20
	}

	return &PreferenceLearner{
		store:             store,
		decayFactor:       decay,
		weightFloor:       floor,
		maxCategories:     maxCategories,
		maxBrands:         maxBrands,
		maxRecentSearches: maxRecent,
		logger:            logger,
		now:               time.Now,
	}
}

// LearnFromSearch folds one search outcome into the user's preference
// record: decay existing weights, accumulate match-weighted contributions
// from the returned products, merge, sort, truncate, and persist the whole
// record atomically.
func (l *PreferenceLearner) LearnFromSearch(ctx context.Context, userID, query string, products []domain.ResolvedProduct) error {
	if userID == "" {
		return domain.ErrInvalidRequest
	}

	prefs, err := l.store.GetPreferences(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrPreferencesNotFound) {
			return fmt.Errorf("load preferences: %w", err)
		}
		prefs = &domain.UserPreferences{UserID: userID}
	}

	now := l.now()

	prefs.Categories = l.decayEntries(prefs.Categories, now)
	prefs.Brands = l.decayEntries(prefs.Brands, now)

	categoryContrib, brandContrib := accumulateContributions(products)

	prefs.Categories = l.mergeContributions(prefs.Categories, categoryContrib, now)
	prefs.Brands = l.mergeContributions(prefs.Brands, brandContrib, now)

	sortByWeight(prefs.Categories)
	sortByWeight(prefs.Brands)
	prefs.Categories = truncateEntries(prefs.Categories, l.maxCategories)
	prefs.Brands = truncateEntries(prefs.Brands, l.maxBrands)

	prefs.RecentSearches = prependSearch(prefs.RecentSearches, query, l.maxRecentSearches)
	prefs.UpdatedAt = now

	if err := l.store.SavePreferences(ctx, prefs); err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}

	return nil
}

// DecayedWeight applies the per-day attenuation: weight * factor^days
func (l *PreferenceLearner) DecayedWeight(weight float64, lastSeen, now time.Time) float64 {
	days := now.Sub(lastSeen).Hours() / 24
	if days <= 0 {
		return weight
	}
	return weight * math.Pow(l.decayFactor, days)
}

// decayEntries attenuates every entry and drops those below the floor
func (l *PreferenceLearner) decayEntries(entries []domain.PreferenceEntry, now time.Time) []domain.PreferenceEntry {
	var kept []domain.PreferenceEntry
	for _, entry := range entries {
		entry.Weight = l.DecayedWeight(entry.Weight, entry.LastSeen, now)
		if entry.Weight < l.weightFloor {
			continue
		}
		kept = append(kept, entry)
	}
	return kept
}

// accumulateContributions sums per-category and per-brand contributions
// weighted by each product's query relevance
func accumulateContributions(products []domain.ResolvedProduct) (map[string]float64, map[string]float64) {
	categories := make(map[string]float64)
	brands := make(map[string]float64)

	for _, product := range products {
		weight := product.MatchScore / 100
		if weight <= 0 {
			continue
		}
		if category := strings.TrimSpace(strings.ToLower(product.Category)); category != "" {
			categories[category] += weight
		}
		if brand := strings.TrimSpace(strings.ToLower(product.Brand)); brand != "" {
			brands[brand] += weight
		}
	}

	return categories, brands
}

// mergeContributions boosts existing entries and inserts unseen ones with a
// higher first-sighting scale. Weights stay clamped to [floor, 100].
func (l *PreferenceLearner) mergeContributions(entries []domain.PreferenceEntry, contributions map[string]float64, now time.Time) []domain.PreferenceEntry {
	byName := make(map[string]int, len(entries))
	for i, entry := range entries {
		byName[strings.ToLower(entry.Name)] = i
	}

	for name, contribution := range contributions {
		if idx, exists := byName[name]; exists {
			entries[idx].Weight = l.clampWeight(entries[idx].Weight + contribution*reinforcementScale)
			entries[idx].LastSeen = now
			entries[idx].SearchCount++
		} else {
			entries = append(entries, domain.PreferenceEntry{
				Name:        name,
				Weight:      l.clampWeight(contribution * firstSightingScale),
				LastSeen:    now,
				SearchCount: 1,
			})
		}
	}

	return entries
}

func (l *PreferenceLearner) clampWeight(weight float64) float64 {
	if weight < l.weightFloor {
		return l.weightFloor
	}
	if weight > maxWeight {
		return maxWeight
	}
	return weight
}

func sortByWeight(entries []domain.PreferenceEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Weight > entries[j].Weight
	})
}

func truncateEntries(entries []domain.PreferenceEntry, limit int) []domain.PreferenceEntry {
	if len(entries) > limit {
		return entries[:limit]
	}
	return entries
}

// prependSearch puts the query at the front of the ring buffer, removing
// any earlier duplicate before truncating
func prependSearch(searches []string, query string, limit int) []string {
	query = strings.TrimSpace(query)
	if query == "" {
		return searches
	}

	result := []string{query}
	for _, s := range searches {
		if strings.EqualFold(s, query) {
			continue
		}
		result = append(result, s)
	}

	if len(result) > limit {
		result = result[:limit]
	}

	return result
}
