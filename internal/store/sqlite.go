package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements DocumentStore on a single documents table.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	// Merges are read-modify-write; one writer keeps them atomic without retries on SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS documents (
        collection TEXT NOT NULL,
        key TEXT NOT NULL,
        body TEXT NOT NULL, -- JSON object
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        PRIMARY KEY (collection, key)
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, collection, key string) (map[string]any, error) {
	doc, err := getDocument(ctx, s.db, collection, key)
	if err != nil || doc == nil {
		return nil, err
	}
	return doc.Body, nil
}

func (s *SQLiteStore) Set(ctx context.Context, collection, key string, body map[string]any, merge bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin document write: %w", err)
	}
	defer tx.Rollback()

	final := body
	if merge {
		existing, err := getDocument(ctx, tx, collection, key)
		if err != nil {
			return err
		}
		if existing != nil {
			for k, v := range body {
				existing.Body[k] = v
			}
			final = existing.Body
		}
	}

	encoded, err := json.Marshal(final)
	if err != nil {
		return fmt.Errorf("failed to marshal document %s/%s: %w", collection, key, err)
	}

	_, err = tx.ExecContext(ctx, `
        INSERT INTO documents (collection, key, body, updated_at) VALUES (?, ?, ?, ?)
        ON CONFLICT (collection, key) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		collection, key, string(encoded), time.Now())
	if err != nil {
		return fmt.Errorf("failed to write document %s/%s: %w", collection, key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit document %s/%s: %w", collection, key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, collection, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE collection = ? AND key = ?", collection, key)
	if err != nil {
		return fmt.Errorf("failed to delete document %s/%s: %w", collection, key, err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getDocument(ctx context.Context, q queryRower, collection, key string) (*document, error) {
	var doc document
	var raw string
	err := q.QueryRowContext(ctx, "SELECT collection, key, body, updated_at FROM documents WHERE collection = ? AND key = ?", collection, key).
		Scan(&doc.Collection, &doc.Key, &raw, &doc.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to query document %s/%s: %w", collection, key, err)
	}
	if err := json.Unmarshal([]byte(raw), &doc.Body); err != nil {
		return nil, fmt.Errorf("failed to decode document %s/%s: %w", collection, key, err)
	}
	if doc.Body == nil {
		doc.Body = map[string]any{}
	}
	return &doc, nil
}
