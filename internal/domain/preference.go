package domain

import "time"

// PreferenceEntry is a single learned affinity for a category or brand.
// Weight stays within [floor, 100] and decays daily until refreshed.
type PreferenceEntry struct {
	Name        string    `json:"name"`
	Weight      float64   `json:"weight"`
	LastSeen    time.Time `json:"lastSeen"`
	SearchCount int       `json:"searchCount"`
}

// UserPreferences holds everything the preference learner maintains for one
// user. Categories and Brands are kept sorted descending by weight so
// consumers can take a prefix for top-N interests. Persisted atomically as a
// single record.
type UserPreferences struct {
	UserID         string            `json:"userId"`
	Categories     []PreferenceEntry `json:"categories"`
	Brands         []PreferenceEntry `json:"brands"`
	RecentSearches []string          `json:"recentSearches"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// TopCategories returns up to n categories by weight
func (p *UserPreferences) TopCategories(n int) []PreferenceEntry {
	if n > len(p.Categories) {
		n = len(p.Categories)
	}
	return p.Categories[:n]
}

// TopBrands returns up to n brands by weight
func (p *UserPreferences) TopBrands(n int) []PreferenceEntry {
	if n > len(p.Brands) {
		n = len(p.Brands)
	}
	return p.Brands[:n]
}
