package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/rkm/stac-catalog/internal/catalog"
)

// itemsSchema is executed on every open.
const itemsSchema = `
CREATE TABLE IF NOT EXISTS items (
    collection TEXT NOT NULL,
    id         TEXT NOT NULL,
    doc        TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (collection, id)
);
`

// getItemsChunk bounds the number of keys bound into one statement.
const getItemsChunk = 200

// SQLite stores items as Feature documents in a local database in WAL mode.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	// one writer; pooled connections would each need their own PRAGMAs
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, itemsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) GetItems(ctx context.Context, keys []catalog.Key) (map[catalog.Key]*catalog.Item, error) {
	out := make(map[catalog.Key]*catalog.Item, len(keys))
	for start := 0; start < len(keys); start += getItemsChunk {
		chunk := keys[start:min(start+getItemsChunk, len(keys))]

		tuples := strings.TrimSuffix(strings.Repeat("(?, ?),", len(chunk)), ",")
		args := make([]any, 0, 2*len(chunk))
		for _, k := range chunk {
			args = append(args, k.Collection, k.ID)
		}
		q := "SELECT doc FROM items WHERE (collection, id) IN (VALUES " + tuples + ")"

		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, fmt.Errorf("store: get items: %w", err)
		}
		err = scanDocs(rows, func(it *catalog.Item) error {
			out[it.Key()] = it
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLite) GetItem(ctx context.Context, key catalog.Key) (*catalog.Item, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		"SELECT doc FROM items WHERE collection = ? AND id = ?", key.Collection, key.ID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", catalog.ErrItemNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get item %s: %w", key, err)
	}
	it, err := catalog.DecodeFeature([]byte(doc))
	if err != nil {
		return nil, fmt.Errorf("store: decode item %s: %w", key, err)
	}
	return it, nil
}

func (s *SQLite) Scan(ctx context.Context, fn func(*catalog.Item) error) error {
	rows, err := s.db.QueryContext(ctx, "SELECT doc FROM items ORDER BY collection, id")
	if err != nil {
		return fmt.Errorf("store: scan: %w", err)
	}
	// Buffer the rows first: with a single connection fn must not run while
	// the cursor holds it.
	var items []*catalog.Item
	if err := scanDocs(rows, func(it *catalog.Item) error {
		items = append(items, it)
		return nil
	}); err != nil {
		return err
	}
	for _, it := range items {
		if err := fn(it); err != nil {
			return err
		}
	}
	return nil
}

func scanDocs(rows *sql.Rows, fn func(*catalog.Item) error) error {
	defer rows.Close()
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return fmt.Errorf("store: scan row: %w", err)
		}
		it, err := catalog.DecodeFeature([]byte(doc))
		if err != nil {
			return fmt.Errorf("store: decode item: %w", err)
		}
		if err := fn(it); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("store: iterate rows: %w", err)
	}
	return nil
}

func (s *SQLite) Upsert(ctx context.Context, items ...*catalog.Item) error {
	const q = `
		INSERT INTO items (collection, id, doc, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(collection, id) DO UPDATE SET doc = excluded.doc, updated_at = CURRENT_TIMESTAMP`

	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, it := range items {
			doc, err := json.Marshal(it)
			if err != nil {
				return fmt.Errorf("store: encode item %s: %w", it.Key(), err)
			}
			if _, err := tx.ExecContext(ctx, q, it.Collection, it.ID, string(doc)); err != nil {
				return fmt.Errorf("store: upsert item %s: %w", it.Key(), err)
			}
		}
		return nil
	})
}

func (s *SQLite) Delete(ctx context.Context, keys ...catalog.Key) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx, "DELETE FROM items WHERE collection = ? AND id = ?", k.Collection, k.ID); err != nil {
				return fmt.Errorf("store: delete item %s: %w", k, err)
			}
		}
		return nil
	})
}

func (s *SQLite) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
