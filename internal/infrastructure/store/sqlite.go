package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/shoplens/backend/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	key                  TEXT PRIMARY KEY,
	name                 TEXT NOT NULL,
	brand                TEXT NOT NULL DEFAULT '',
	category             TEXT NOT NULL DEFAULT '',
	description          TEXT NOT NULL DEFAULT '',
	estimated_price      TEXT NOT NULL DEFAULT '',
	image_url            TEXT NOT NULL DEFAULT '',
	endorsement_strength TEXT NOT NULL DEFAULT '',
	pros                 TEXT NOT NULL DEFAULT '[]',
	cons                 TEXT NOT NULL DEFAULT '[]',
	endorsement_quotes   TEXT NOT NULL DEFAULT '[]',
	source_types         TEXT NOT NULL DEFAULT '[]',
	sources_count        INTEGER NOT NULL DEFAULT 0,
	searches_found_in    INTEGER NOT NULL DEFAULT 0,
	quality_score        REAL NOT NULL DEFAULT 0,
	last_seen_at         TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS preferences (
	user_id    TEXT PRIMARY KEY,
	record     TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// SQLite is a durable implementation of domain.ProductStore and
// domain.PreferenceStore backed by a single sqlite file.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (and creates if needed) the sqlite store at path
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %v", domain.ErrStoreUnavailable, err)
	}

	// Single writer connection keeps read-modify-write transactions serialized
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: schema: %v", domain.ErrStoreUnavailable, err)
	}

	return &SQLite{db: db}, nil
}

// Close releases the underlying database handle
func (s *SQLite) Close() error {
	return s.db.Close()
}

// GetProduct retrieves a cached product by normalized key
func (s *SQLite) GetProduct(ctx context.Context, key string) (*domain.CachedProduct, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT key, name, brand, category, description, estimated_price, image_url,
		       endorsement_strength, pros, cons, endorsement_quotes, source_types,
		       sources_count, searches_found_in, quality_score, last_seen_at
		FROM products WHERE key = ?`, key)

	product, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	return product, nil
}

// UpdateProduct runs a read-modify-write inside one transaction so
// concurrent upserts of the same key cannot lose updates
func (s *SQLite) UpdateProduct(ctx context.Context, key string, fn func(existing *domain.CachedProduct) *domain.CachedProduct) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", domain.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT key, name, brand, category, description, estimated_price, image_url,
		       endorsement_strength, pros, cons, endorsement_quotes, source_types,
		       sources_count, searches_found_in, quality_score, last_seen_at
		FROM products WHERE key = ?`, key)

	existing, err := scanProduct(row)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	updated := fn(existing)
	if updated == nil {
		return tx.Commit()
	}
	updated.Key = key

	pros, _ := json.Marshal(emptyIfNil(updated.Pros))
	cons, _ := json.Marshal(emptyIfNil(updated.Cons))
	quotes, _ := json.Marshal(emptyIfNil(updated.EndorsementQuotes))
	sourceTypes, _ := json.Marshal(emptyIfNil(updated.SourceTypes))

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (key, name, brand, category, description, estimated_price,
			image_url, endorsement_strength, pros, cons, endorsement_quotes, source_types,
			sources_count, searches_found_in, quality_score, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			name = excluded.name,
			brand = excluded.brand,
			category = excluded.category,
			description = excluded.description,
			estimated_price = excluded.estimated_price,
			image_url = excluded.image_url,
			endorsement_strength = excluded.endorsement_strength,
			pros = excluded.pros,
			cons = excluded.cons,
			endorsement_quotes = excluded.endorsement_quotes,
			source_types = excluded.source_types,
			sources_count = excluded.sources_count,
			searches_found_in = excluded.searches_found_in,
			quality_score = excluded.quality_score,
			last_seen_at = excluded.last_seen_at`,
		updated.Key, updated.Name, updated.Brand, updated.Category, updated.Description,
		updated.EstimatedPrice, updated.ImageURL, string(updated.EndorsementStrength),
		string(pros), string(cons), string(quotes), string(sourceTypes),
		updated.SourcesCount, updated.SearchesFoundIn, updated.QualityScore,
		updated.LastSeenAt.UTC())
	if err != nil {
		return fmt.Errorf("%w: upsert: %v", domain.ErrStoreUnavailable, err)
	}

	return tx.Commit()
}

// SearchProducts returns products where any keyword appears in the name,
// brand, category, or description
func (s *SQLite) SearchProducts(ctx context.Context, keywords []string) ([]domain.CachedProduct, error) {
	if len(keywords) == 0 {
		return nil, nil
	}

	var clauses []string
	var args []interface{}
	for _, kw := range keywords {
		pattern := "%" + strings.ToLower(kw) + "%"
		clauses = append(clauses,
			"(lower(name) LIKE ? OR lower(brand) LIKE ? OR lower(category) LIKE ? OR lower(description) LIKE ?)")
		args = append(args, pattern, pattern, pattern, pattern)
	}

	query := `
		SELECT key, name, brand, category, description, estimated_price, image_url,
		       endorsement_strength, pros, cons, endorsement_quotes, source_types,
		       sources_count, searches_found_in, quality_score, last_seen_at
		FROM products WHERE ` + strings.Join(clauses, " OR ")

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var results []domain.CachedProduct
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan: %v", domain.ErrStoreUnavailable, err)
		}
		results = append(results, *product)
	}

	return results, rows.Err()
}

// PurgeProducts removes all cached products (administrative operation)
func (s *SQLite) PurgeProducts(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM products`); err != nil {
		return fmt.Errorf("%w: purge: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// GetPreferences retrieves a user's preference record
func (s *SQLite) GetPreferences(ctx context.Context, userID string) (*domain.UserPreferences, error) {
	var record string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM preferences WHERE user_id = ?`, userID).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPreferencesNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	var prefs domain.UserPreferences
	if err := json.Unmarshal([]byte(record), &prefs); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", domain.ErrStoreUnavailable, err)
	}

	return &prefs, nil
}

// SavePreferences replaces a user's whole preference record in one statement
func (s *SQLite) SavePreferences(ctx context.Context, prefs *domain.UserPreferences) error {
	if prefs == nil || prefs.UserID == "" {
		return domain.ErrInvalidRequest
	}

	record, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", domain.ErrStoreUnavailable, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO preferences (user_id, record, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at`,
		prefs.UserID, string(record), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: save: %v", domain.ErrStoreUnavailable, err)
	}

	return nil
}

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProduct(row rowScanner) (*domain.CachedProduct, error) {
	var p domain.CachedProduct
	var strength string
	var pros, cons, quotes, sourceTypes string

	err := row.Scan(&p.Key, &p.Name, &p.Brand, &p.Category, &p.Description,
		&p.EstimatedPrice, &p.ImageURL, &strength, &pros, &cons, &quotes,
		&sourceTypes, &p.SourcesCount, &p.SearchesFoundIn, &p.QualityScore,
		&p.LastSeenAt)
	if err != nil {
		return nil, err
	}

	p.EndorsementStrength = domain.EndorsementStrength(strength)
	json.Unmarshal([]byte(pros), &p.Pros)
	json.Unmarshal([]byte(cons), &p.Cons)
	json.Unmarshal([]byte(quotes), &p.EndorsementQuotes)
	json.Unmarshal([]byte(sourceTypes), &p.SourceTypes)

	return &p, nil
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
