// Package facts provides durable long-term memory: short text notes scoped
// globally, per user, or per channel, stored in SQLite.
package facts

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/seneschal/seneschal/internal/schema"
)

// Store manages fact persistence.
type Store struct {
	db *sql.DB
}

// Open creates a fact store backed by the SQLite database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// NewStore creates a fact store on an existing database connection.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS facts (
			id TEXT PRIMARY KEY,
			scope TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE(scope, text)
		);

		CREATE INDEX IF NOT EXISTS idx_facts_scope ON facts(scope);
		CREATE INDEX IF NOT EXISTS idx_facts_created ON facts(created_at DESC);
	`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add stores a fact. Storing the exact same text in the same scope is a
// no-op that returns the existing fact; the second return reports whether a
// new row was created.
func (s *Store) Add(scope, text string) (*schema.Fact, bool, error) {
	var existing schema.Fact
	var createdStr string
	err := s.db.QueryRow(`SELECT id, created_at FROM facts WHERE scope = ? AND text = ?`, scope, text).
		Scan(&existing.ID, &createdStr)
	if err == nil {
		existing.Scope = scope
		existing.Text = text
		existing.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		return &existing, false, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("check existing: %w", err)
	}

	now := time.Now().UTC()
	fact := &schema.Fact{
		ID:        uuid.NewString(),
		Scope:     scope,
		Text:      text,
		CreatedAt: now,
	}
	_, err = s.db.Exec(`
		INSERT INTO facts (id, scope, text, created_at)
		VALUES (?, ?, ?, ?)
	`, fact.ID, scope, text, now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, false, fmt.Errorf("insert: %w", err)
	}
	return fact, true, nil
}

// Recent returns up to limit facts in a scope, newest first.
func (s *Store) Recent(scope string, limit int) ([]*schema.Fact, error) {
	rows, err := s.db.Query(`
		SELECT id, scope, text, created_at
		FROM facts WHERE scope = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, scope, limit)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// Search finds facts in a scope whose text contains query, newest first.
func (s *Store) Search(scope, query string, limit int) ([]*schema.Fact, error) {
	rows, err := s.db.Query(`
		SELECT id, scope, text, created_at
		FROM facts
		WHERE scope = ? AND text LIKE ?
		ORDER BY created_at DESC
		LIMIT ?
	`, scope, "%"+query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// Count returns the number of facts in a scope.
func (s *Store) Count(scope string) (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM facts WHERE scope = ?`, scope).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// Delete removes a fact by id.
func (s *Store) Delete(id string) error {
	result, err := s.db.Exec(`DELETE FROM facts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("fact not found: %s", id)
	}
	return nil
}

func scanFacts(rows *sql.Rows) ([]*schema.Fact, error) {
	var facts []*schema.Fact
	for rows.Next() {
		var f schema.Fact
		var createdStr string
		if err := rows.Scan(&f.ID, &f.Scope, &f.Text, &createdStr); err != nil {
			return nil, err
		}
		f.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		facts = append(facts, &f)
	}
	return facts, rows.Err()
}
