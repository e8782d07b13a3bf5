// Package audit persists one record per HTTP request to a sqlite table.
// Records are written by a background goroutine; when it falls behind,
// new records are dropped and counted rather than slowing requests down.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/rkm/stac-catalog/internal/metrics"
)

const schema = `
CREATE TABLE IF NOT EXISTS request_log (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    ts          TEXT NOT NULL,
    request_id  TEXT NOT NULL DEFAULT '',
    method      TEXT NOT NULL,
    path        TEXT NOT NULL,
    status      INTEGER NOT NULL,
    duration_ms REAL NOT NULL,
    identity    TEXT NOT NULL DEFAULT '',
    remote_addr TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_request_log_ts ON request_log(ts);
`

// Entry is one request.
type Entry struct {
	Time       time.Time
	RequestID  string
	Method     string
	Path       string
	Status     int
	Duration   time.Duration
	Identity   string
	RemoteAddr string
}

// Log is the asynchronous audit writer.
type Log struct {
	db     *sql.DB
	ch     chan Entry
	logger *slog.Logger

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
}

// Open opens the database at path and starts the writer. buffer bounds the
// number of records waiting to be written.
func Open(ctx context.Context, path string, buffer int, logger *slog.Logger) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", schema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("audit: init database: %w", err)
		}
	}

	l := &Log{
		db:     db,
		ch:     make(chan Entry, max(1, buffer)),
		logger: logger,
		done:   make(chan struct{}),
	}
	go l.run()
	return l, nil
}

// Record queues e. It never blocks.
func (l *Log) Record(e Entry) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		metrics.AuditDropped.Inc()
		return
	}
	select {
	case l.ch <- e:
	default:
		metrics.AuditDropped.Inc()
	}
}

func (l *Log) run() {
	defer close(l.done)
	for e := range l.ch {
		if err := l.insert(e); err != nil {
			l.logger.Warn("failed to write audit record",
				slog.String("path", e.Path),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (l *Log) insert(e Entry) error {
	_, err := l.db.Exec(
		`INSERT INTO request_log (ts, request_id, method, path, status, duration_ms, identity, remote_addr)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Time.UTC().Format(time.RFC3339Nano), e.RequestID, e.Method, e.Path, e.Status,
		float64(e.Duration)/float64(time.Millisecond), e.Identity, e.RemoteAddr,
	)
	return err
}

// Recent returns up to n records, newest first.
func (l *Log) Recent(ctx context.Context, n int) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT ts, request_id, method, path, status, duration_ms, identity, remote_addr
         FROM request_log ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e  Entry
			ts string
			ms float64
		)
		if err := rows.Scan(&ts, &e.RequestID, &e.Method, &e.Path, &e.Status, &ms, &e.Identity, &e.RemoteAddr); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		e.Time, _ = time.Parse(time.RFC3339Nano, ts)
		e.Duration = time.Duration(ms * float64(time.Millisecond))
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close stops accepting records, flushes the queue and closes the database.
func (l *Log) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.ch)
		l.mu.Unlock()
		<-l.done
		err = l.db.Close()
	})
	return err
}
