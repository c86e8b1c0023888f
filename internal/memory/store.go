// Package memory implements C4: a durable keyed map with a write-through
// cache, optional per-key expiry, and a substring search over key and
// data. It deliberately has no vector/embedding backend — textual LIKE
// search is the entire search surface, per the engine's scope.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/crewkit/engine/internal/storage"
	"github.com/crewkit/engine/pkg/models"
)

// Store is a durable memory.Store with an in-process write-through cache.
// Reads are served from cache when present and unexpired; all writes go
// to the database first, then the cache, so a crash between the two
// never leaves the cache ahead of durable state.
type Store struct {
	db     *sql.DB
	driver storage.Driver
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]*models.MemoryRecord
}

// New constructs a Store bound to db. logger may be nil, in which case
// slog.Default() is used.
func New(db *sql.DB, driver storage.Driver, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, driver: driver, logger: logger, cache: make(map[string]*models.MemoryRecord)}
}

func (s *Store) q(query string) string { return storage.Rebind(s.driver, query) }

// Store upserts data (and optional metadata) under key. expiresAt may be
// nil for "never expires".
func (s *Store) Store(ctx context.Context, key, data string, metadata map[string]string, expiresAt *time.Time) error {
	meta, err := encodeMetadata(metadata)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	rec, err := s.fetchFromDB(ctx, key)
	if err == nil && rec != nil {
		_, err = s.db.ExecContext(ctx, s.q(`UPDATE memory SET data = ?, metadata = ?, expires_at = ?, updated_at = ? WHERE key = ?`),
			data, meta, expiresAt, now, key)
	} else {
		_, err = s.db.ExecContext(ctx, s.q(`INSERT INTO memory (key, data, metadata, expires_at, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`),
			key, data, meta, expiresAt, now, now)
	}
	if err != nil {
		return fmt.Errorf("memory: store %q: %w", key, err)
	}

	s.mu.Lock()
	s.cache[key] = &models.MemoryRecord{
		Key: key, Data: data, Metadata: metadata, ExpiresAt: expiresAt, CreatedAt: now, UpdatedAt: now,
	}
	s.mu.Unlock()
	return nil
}

// Recall returns the data stored under key, or ("", false) if absent or
// expired.
func (s *Store) Recall(ctx context.Context, key string) (string, bool, error) {
	now := time.Now().UTC()

	s.mu.RLock()
	cached, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		if cached.Expired(now) {
			return "", false, nil
		}
		return cached.Data, true, nil
	}

	rec, err := s.fetchFromDB(ctx, key)
	if err != nil {
		return "", false, err
	}
	if rec == nil {
		return "", false, nil
	}
	if rec.Expired(now) {
		return "", false, nil
	}

	s.mu.Lock()
	s.cache[key] = rec
	s.mu.Unlock()
	return rec.Data, true, nil
}

// Has reports whether key has a live (unexpired) record.
func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Recall(ctx, key)
	return ok, err
}

// Forget deletes key from both durable storage and the cache.
func (s *Store) Forget(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.q(`DELETE FROM memory WHERE key = ?`), key); err != nil {
		return fmt.Errorf("memory: forget %q: %w", key, err)
	}
	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()
	return nil
}

// batchSize bounds the number of cache keys purged per iteration of
// Clear, per the engine's no-group-invalidation fallback.
const batchSize = 1000

// Clear deletes every record from durable storage and the cache. Because
// the SQL backend has no tag-based invalidation, the cache is purged in
// bounded batches so a very large cache never blocks for long under the
// lock.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memory`); err != nil {
		return fmt.Errorf("memory: clear: %w", err)
	}
	for {
		s.mu.Lock()
		if len(s.cache) == 0 {
			s.mu.Unlock()
			break
		}
		n := 0
		for k := range s.cache {
			delete(s.cache, k)
			n++
			if n >= batchSize {
				break
			}
		}
		s.mu.Unlock()
	}
	return nil
}

// SearchResult is one match returned by Search.
type SearchResult struct {
	Key       string
	Data      string
	Metadata  map[string]string
	CreatedAt time.Time
}

// Search substring-matches query against both key and data, excluding
// expired records, most recent first, capped at limit.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	now := time.Now().UTC()
	like := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT key, data, metadata, created_at, expires_at FROM memory
		WHERE (key LIKE ? OR data LIKE ?) ORDER BY created_at DESC`), like, like)
	if err != nil {
		return nil, fmt.Errorf("memory: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var (
			key, data string
			meta      sql.NullString
			createdAt time.Time
			expiresAt sql.NullTime
		)
		if err := rows.Scan(&key, &data, &meta, &createdAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("memory: search scan: %w", err)
		}
		if expiresAt.Valid && expiresAt.Time.Before(now) {
			continue
		}
		out = append(out, SearchResult{
			Key: key, Data: data, Metadata: decodeMetadata(meta.String), CreatedAt: createdAt,
		})
		if len(out) >= limit {
			break
		}
	}
	return out, rows.Err()
}

// GetStats summarizes the durable store's contents.
func (s *Store) GetStats(ctx context.Context) (models.MemoryStats, error) {
	var stats models.MemoryStats
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory`)
	if err := row.Scan(&stats.TotalRecords); err != nil {
		return stats, fmt.Errorf("memory: stats total: %w", err)
	}
	row = s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM memory WHERE expires_at IS NOT NULL AND expires_at < ?`), time.Now().UTC())
	if err := row.Scan(&stats.ExpiredRecords); err != nil {
		return stats, fmt.Errorf("memory: stats expired: %w", err)
	}
	return stats, nil
}

// Cleanup deletes expired records and returns the number removed. This is
// the authoritative int return the specification's Open Question settles
// on; CLI formatting happens above this layer.
func (s *Store) Cleanup(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM memory WHERE expires_at IS NOT NULL AND expires_at < ?`), time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("memory: cleanup: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("memory: cleanup rows affected: %w", err)
	}

	s.mu.Lock()
	now := time.Now().UTC()
	for k, v := range s.cache {
		if v.Expired(now) {
			delete(s.cache, k)
		}
	}
	s.mu.Unlock()
	return int(n), nil
}

func (s *Store) fetchFromDB(ctx context.Context, key string) (*models.MemoryRecord, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT data, metadata, expires_at, created_at, updated_at FROM memory WHERE key = ?`), key)
	var (
		data      string
		meta      sql.NullString
		expiresAt sql.NullTime
		createdAt time.Time
		updatedAt time.Time
	)
	err := row.Scan(&data, &meta, &expiresAt, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memory: fetch %q: %w", key, err)
	}
	rec := &models.MemoryRecord{
		Key: key, Data: data, Metadata: decodeMetadata(meta.String), CreatedAt: createdAt, UpdatedAt: updatedAt,
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		rec.ExpiresAt = &t
	}
	return rec, nil
}

func encodeMetadata(m map[string]string) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("memory: encode metadata: %w", err)
	}
	return string(b), nil
}

func decodeMetadata(s string) map[string]string {
	if s == "" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}

// serialize renders any value in the supported algebra (maps, lists,
// numbers, strings, booleans, null) to its durable string form. JSON
// already round-trips this algebra faithfully, which is what the
// specification's serialization invariant requires.
func serialize(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("memory: serialize: %w", err)
	}
	return string(b), nil
}

func deserialize(s string, out any) error {
	if err := json.Unmarshal([]byte(s), out); err != nil {
		return fmt.Errorf("memory: deserialize: %w", err)
	}
	return nil
}

// StoreValue is a convenience wrapper around Store that serializes v
// through the self-describing value algebra before persisting.
func (s *Store) StoreValue(ctx context.Context, key string, v any, metadata map[string]string, expiresAt *time.Time) error {
	data, err := serialize(v)
	if err != nil {
		return err
	}
	return s.Store(ctx, key, data, metadata, expiresAt)
}

// RecallValue is the StoreValue counterpart of Recall: it unmarshals the
// stored JSON into out and reports whether a live record existed.
func (s *Store) RecallValue(ctx context.Context, key string, out any) (bool, error) {
	data, ok, err := s.Recall(ctx, key)
	if err != nil || !ok {
		return ok, err
	}
	return true, deserialize(data, out)
}

// KeyPrefix builds a generated memory key for an agent/task/crew/flow
// write, e.g. "agent_memory_<role>_<unix-nanos>".
func KeyPrefix(kind, scope string, t time.Time) string {
	return strings.Join([]string{kind, scope, fmt.Sprintf("%d", t.UnixNano())}, "_")
}
