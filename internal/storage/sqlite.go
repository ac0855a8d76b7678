package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding search history, price observations,
// and tracked cart items.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "dealscout.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies embedded SQL migration files that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Search history ---

// SaveSearchHistory inserts a history record and prunes the user's oldest
// entries beyond the retention cap. The insert and the prune run in one
// transaction so the new record is always among the survivors.
func (s *Store) SaveSearchHistory(ctx context.Context, h SearchHistory) error {
	createdAt := h.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning history transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO search_history (id, search_id, user_id, search_type, input, query_json, results_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.SearchID, h.UserID, h.SearchType, h.Input, h.QueryJSON, h.ResultsJSON,
		createdAt.Format(time.RFC3339Nano),
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("inserting history record: %w", err)
	}
	// The new record is exempt from pruning even when it carries an old
	// timestamp, so it is always among the survivors.
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM search_history
		WHERE user_id = ? AND id != ? AND id NOT IN (
			SELECT id FROM search_history
			WHERE user_id = ? AND id != ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		)`, h.UserID, h.ID, h.UserID, h.ID, historyCap-1,
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("pruning history: %w", err)
	}
	return tx.Commit()
}

// ListSearchHistory returns a user's history, newest first.
func (s *Store) ListSearchHistory(ctx context.Context, userID string, limit int) ([]SearchHistory, error) {
	if limit <= 0 || limit > historyCap {
		limit = historyCap
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, search_id, user_id, search_type, input, query_json, results_json, created_at
		FROM search_history WHERE user_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var out []SearchHistory
	for rows.Next() {
		var h SearchHistory
		var createdAt string
		if err := rows.Scan(&h.ID, &h.SearchID, &h.UserID, &h.SearchType, &h.Input, &h.QueryJSON, &h.ResultsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		h.CreatedAt = t
		out = append(out, h)
	}
	return out, rows.Err()
}

// --- Price history ---

// AddPricePoint records one observed price for a canonical product URL.
func (s *Store) AddPricePoint(ctx context.Context, p PricePoint) error {
	observedAt := p.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO price_points (id, platform, canonical_url, title, price, shipping_cost, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Platform, p.CanonicalURL, p.Title, p.Price, p.ShippingCost,
		observedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting price point: %w", err)
	}
	return nil
}

// PriceHistory returns observations for a canonical URL since the given
// time, oldest first.
func (s *Store) PriceHistory(ctx context.Context, canonicalURL string, since time.Time) ([]PricePoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, platform, canonical_url, title, price, shipping_cost, observed_at
		FROM price_points
		WHERE canonical_url = ? AND observed_at >= ?
		ORDER BY observed_at ASC`, canonicalURL, since.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("querying price history: %w", err)
	}
	defer rows.Close()

	var out []PricePoint
	for rows.Next() {
		var p PricePoint
		var observedAt string
		if err := rows.Scan(&p.ID, &p.Platform, &p.CanonicalURL, &p.Title, &p.Price, &p.ShippingCost, &observedAt); err != nil {
			return nil, fmt.Errorf("scanning price point: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, observedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing observed_at: %w", err)
		}
		p.ObservedAt = t
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- Cart ---

// AddCartItem stores a tracked listing. Re-adding the same canonical URL
// for a user refreshes the stored title and price instead of duplicating.
func (s *Store) AddCartItem(ctx context.Context, item CartItem) error {
	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cart_items (id, user_id, platform, product_id, canonical_url, title, last_price, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, canonical_url) DO UPDATE SET
			title = excluded.title,
			last_price = excluded.last_price`,
		item.ID, item.UserID, item.Platform, item.ProductID, item.CanonicalURL,
		item.Title, item.LastPrice, createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting cart item: %w", err)
	}
	return nil
}

// ListCartItems returns a user's tracked listings, newest first.
func (s *Store) ListCartItems(ctx context.Context, userID string) ([]CartItem, error) {
	return s.queryCartItems(ctx, `WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
}

// AllCartItems returns every tracked listing across users, used by the
// price refresh worker.
func (s *Store) AllCartItems(ctx context.Context) ([]CartItem, error) {
	return s.queryCartItems(ctx, `ORDER BY created_at DESC, id DESC`)
}

func (s *Store) queryCartItems(ctx context.Context, tail string, args ...any) ([]CartItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, platform, product_id, canonical_url, title, last_price, created_at
		FROM cart_items `+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("querying cart items: %w", err)
	}
	defer rows.Close()

	var out []CartItem
	for rows.Next() {
		var item CartItem
		var createdAt string
		if err := rows.Scan(&item.ID, &item.UserID, &item.Platform, &item.ProductID, &item.CanonicalURL, &item.Title, &item.LastPrice, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning cart item: %w", err)
		}
		item.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, item)
	}
	return out, rows.Err()
}

// RemoveCartItem deletes one tracked listing owned by the user.
func (s *Store) RemoveCartItem(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("deleting cart item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateCartItemPrice records a freshly observed price on the cart row.
func (s *Store) UpdateCartItemPrice(ctx context.Context, id string, price float64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE cart_items SET last_price = ? WHERE id = ?`, price, id)
	if err != nil {
		return fmt.Errorf("updating cart item price: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
