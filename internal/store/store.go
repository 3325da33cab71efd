package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Entry is one cached stage result.
type Entry struct {
	Key       Key
	Payload   []byte
	CreatedAt time.Time
}

// Store is the durable content cache and run log, backed by SQLite.
//
// Cache reads and writes never return errors: a failing disk degrades the
// cache to a miss and is only logged.
type Store struct {
	db        *sql.DB
	logger    *slog.Logger
	anomalies atomic.Int64
}

func New(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes writers; SQLite would otherwise return
	// SQLITE_BUSY under concurrent workers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	PRAGMA busy_timeout = 5000;

	CREATE TABLE IF NOT EXISTS cache_entries (
		stage TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		target_lang TEXT NOT NULL,
		payload BLOB NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (stage, content_hash, target_lang)
	);

	-- runs stores one row per processed batch
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		target_lang TEXT NOT NULL,
		total INTEGER NOT NULL,
		succeeded INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		band_miss INTEGER NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL
	);

	-- run_articles stores the per-article outcome of a run
	CREATE TABLE IF NOT EXISTS run_articles (
		run_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		url TEXT NOT NULL,
		status TEXT NOT NULL,
		stage TEXT,
		error_class TEXT,
		message TEXT,
		payload BLOB,
		PRIMARY KEY (run_id, position),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_cache_stage ON cache_entries(stage);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Get returns the cached payload for key. Storage errors are logged and
// reported as a miss.
func (s *Store) Get(ctx context.Context, key Key) ([]byte, bool) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM cache_entries WHERE stage = ? AND content_hash = ? AND target_lang = ?`,
		key.Stage, key.Hash, key.Lang).Scan(&payload)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		s.logger.Warn("cache read failed, treating as miss", "key", key.String(), "error", err)
		return nil, false
	}
	return payload, true
}

// Put stores payload under key. Re-putting an equal payload is a no-op; a
// different payload overwrites the entry and is counted as an anomaly.
// Storage errors are logged and dropped.
func (s *Store) Put(ctx context.Context, key Key, payload []byte) {
	overwrote, err := s.put(ctx, key, payload)
	if err != nil {
		s.logger.Warn("cache write failed, result not cached", "key", key.String(), "error", err)
		return
	}
	if overwrote {
		s.anomalies.Add(1)
		s.logger.Warn("cache overwrite with differing payload", "key", key.String())
	}
}

func (s *Store) put(ctx context.Context, key Key, payload []byte) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var existing []byte
	err = tx.QueryRowContext(ctx,
		`SELECT payload FROM cache_entries WHERE stage = ? AND content_hash = ? AND target_lang = ?`,
		key.Stage, key.Hash, key.Lang).Scan(&existing)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx,
			`INSERT INTO cache_entries (stage, content_hash, target_lang, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
			key.Stage, key.Hash, key.Lang, payload, time.Now())
		if err != nil {
			return false, err
		}
		return false, tx.Commit()
	case err != nil:
		return false, err
	case bytes.Equal(existing, payload):
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE cache_entries SET payload = ?, created_at = ? WHERE stage = ? AND content_hash = ? AND target_lang = ?`,
		payload, time.Now(), key.Stage, key.Hash, key.Lang)
	if err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// Anomalies counts overwrites of an existing key with a different payload.
func (s *Store) Anomalies() int64 {
	return s.anomalies.Load()
}

// CacheStats summarises the content cache.
type CacheStats struct {
	TotalEntries int
	TotalBytes   int64
	ByStage      map[string]int
}

// Stats returns entry counts per stage and the total payload size.
func (s *Store) Stats(ctx context.Context) (*CacheStats, error) {
	stats := &CacheStats{ByStage: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, COUNT(*), COALESCE(SUM(LENGTH(payload)), 0) FROM cache_entries GROUP BY stage ORDER BY stage`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var stage string
		var n int
		var size int64
		if err := rows.Scan(&stage, &n, &size); err != nil {
			return nil, err
		}
		stats.ByStage[stage] = n
		stats.TotalEntries += n
		stats.TotalBytes += size
	}
	return stats, rows.Err()
}

// List returns up to limit entries, newest first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT stage, content_hash, target_lang, payload, created_at FROM cache_entries ORDER BY created_at DESC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key.Stage, &e.Key.Hash, &e.Key.Lang, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Clear removes every cache entry, optionally restricted to one stage. A
// stage also matches its qualified variants, so "normalize" clears
// "normalize:400-500".
func (s *Store) Clear(ctx context.Context, stage string) (int64, error) {
	var res sql.Result
	var err error
	if stage == "" {
		res, err = s.db.ExecContext(ctx, `DELETE FROM cache_entries`)
	} else {
		res, err = s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE stage = ? OR stage LIKE ?`, stage, stage+":%")
	}
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RunRecord summarises one processed batch.
type RunRecord struct {
	ID         string
	TargetLang string
	Total      int
	Succeeded  int
	Failed     int
	BandMiss   int
	StartedAt  time.Time
	FinishedAt time.Time
	Articles   []RunArticle
}

// RunArticle is the outcome of a single article within a run. Payload holds
// the serialized processed article for successes.
type RunArticle struct {
	URL     string
	Status  string
	Stage   string
	Class   string
	Message string
	Payload []byte
}

// SaveRun persists a run and its articles in one transaction and returns the
// run ID, generating one when rec.ID is empty.
func (s *Store) SaveRun(ctx context.Context, rec RunRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, target_lang, total, succeeded, failed, band_miss, started_at, finished_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TargetLang, rec.Total, rec.Succeeded, rec.Failed, rec.BandMiss, rec.StartedAt, rec.FinishedAt)
	if err != nil {
		return "", fmt.Errorf("failed to save run: %w", err)
	}

	for i, a := range rec.Articles {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_articles (run_id, position, url, status, stage, error_class, message, payload) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, i, a.URL, a.Status, a.Stage, a.Class, a.Message, a.Payload)
		if err != nil {
			return "", fmt.Errorf("failed to save run article %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// ListRuns returns the most recent runs without their articles.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, target_lang, total, succeeded, failed, band_miss, started_at, finished_at FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.TargetLang, &r.Total, &r.Succeeded, &r.Failed, &r.BandMiss, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunArticles returns the articles of one run in their original order.
func (s *Store) RunArticles(ctx context.Context, runID string) ([]RunArticle, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url, status, COALESCE(stage, ''), COALESCE(error_class, ''), COALESCE(message, ''), payload FROM run_articles WHERE run_id = ? ORDER BY position`,
		runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []RunArticle
	for rows.Next() {
		var a RunArticle
		if err := rows.Scan(&a.URL, &a.Status, &a.Stage, &a.Class, &a.Message, &a.Payload); err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
