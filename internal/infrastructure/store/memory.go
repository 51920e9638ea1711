package store

import (
	"context"
	"strings"
	"sync"

	"github.com/shoplens/backend/internal/domain"
)

// Memory is a thread-safe in-memory implementation of both
// domain.ProductStore and domain.PreferenceStore. It is the default store
// and the test double; the sqlite store provides durability.
type Memory struct {
	mu       sync.RWMutex
	products map[string]domain.CachedProduct
	prefs    map[string]domain.UserPreferences
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		products: make(map[string]domain.CachedProduct),
		prefs:    make(map[string]domain.UserPreferences),
	}
}

// GetProduct retrieves a cached product by normalized key
func (m *Memory) GetProduct(ctx context.Context, key string) (*domain.CachedProduct, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	product, exists := m.products[key]
	if !exists {
		return nil, domain.ErrProductNotFound
	}

	return &product, nil
}

// UpdateProduct performs a read-modify-write on the record for key. The
// write lock is held across the callback so concurrent upserts of the same
// product cannot lose updates.
func (m *Memory) UpdateProduct(ctx context.Context, key string, fn func(existing *domain.CachedProduct) *domain.CachedProduct) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var existing *domain.CachedProduct
	if current, ok := m.products[key]; ok {
		copied := current
		existing = &copied
	}

	updated := fn(existing)
	if updated == nil {
		return nil
	}

	updated.Key = key
	m.products[key] = *updated
	return nil
}

// SearchProducts returns products where any keyword appears in the name,
// brand, category, or description. Scoring is the cache layer's job.
func (m *Memory) SearchProducts(ctx context.Context, keywords []string) ([]domain.CachedProduct, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []domain.CachedProduct
	for _, product := range m.products {
		haystack := strings.ToLower(product.Name + " " + product.Brand + " " + product.Category + " " + product.Description)
		for _, kw := range keywords {
			if strings.Contains(haystack, strings.ToLower(kw)) {
				results = append(results, product)
				break
			}
		}
	}

	return results, nil
}

// PurgeProducts removes all cached products (administrative operation)
func (m *Memory) PurgeProducts(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.products = make(map[string]domain.CachedProduct)
	return nil
}

// GetPreferences retrieves a user's preference record
func (m *Memory) GetPreferences(ctx context.Context, userID string) (*domain.UserPreferences, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefs, exists := m.prefs[userID]
	if !exists {
		return nil, domain.ErrPreferencesNotFound
	}

	return &prefs, nil
}

// SavePreferences replaces a user's preference record atomically
func (m *Memory) SavePreferences(ctx context.Context, prefs *domain.UserPreferences) error {
	if prefs == nil || prefs.UserID == "" {
		return domain.ErrInvalidRequest
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.prefs[prefs.UserID] = *prefs
	return nil
}

// ProductCount returns the number of cached products (for debugging/monitoring)
func (m *Memory) ProductCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.products)
}
