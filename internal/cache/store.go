// Package cache implements the local cache store: a durable, queryable
// mirror of a subset of remote issue-tracker state, usable when the remote
// is unreachable. It is backed by SQLite and owns its connection and the
// periodic sync timer for the process lifetime.
package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	_ "modernc.org/sqlite"

	"github.com/danielolaszy/tether/pkg/models"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// Config holds cache store configuration.
type Config struct {
	// Path is the SQLite database file; its directory is created if needed.
	Path string

	// Expiry is how long cached records stay visible to reads.
	Expiry time.Duration

	// SyncInterval is the period of the background sync task.
	SyncInterval time.Duration
}

// Store is the local cache engine. One instance owns the database
// connection and the periodic sync timer; stop the timer before Close.
type Store struct {
	db  *sql.DB
	cfg Config

	// mu serializes store access; callers interleave only across whole
	// operations, never mid-statement.
	mu sync.Mutex

	// now allows tests to control expiry arithmetic.
	now func() time.Time

	syncMu     sync.Mutex
	syncCancel chan struct{}
	syncDone   chan struct{}
}

// New opens (creating if necessary) the cache database and runs migrations.
func New(cfg Config) (*Store, error) {
	if cfg.Expiry <= 0 {
		cfg.Expiry = 24 * time.Hour
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = 5 * time.Minute
	}

	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("cache: create data dir: %w", err)
		}
	}

	db, err := openDB("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("cache: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("cache: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, cfg: cfg, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("cache: migration: %w", err)
	}

	return s, nil
}

// Close stops the periodic sync if running, then closes the database.
func (s *Store) Close() error {
	s.StopPeriodicSync()
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS issues (
			key        TEXT PRIMARY KEY,
			data       TEXT    NOT NULL,
			cached_at  INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_issues_expires ON issues(expires_at);

		CREATE TABLE IF NOT EXISTS search_cache (
			jql_hash   TEXT PRIMARY KEY,
			jql        TEXT    NOT NULL,
			result     TEXT    NOT NULL,
			cached_at  INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_search_expires ON search_cache(expires_at);

		CREATE TABLE IF NOT EXISTS sync_state (
			id               INTEGER PRIMARY KEY CHECK (id = 1),
			last_sync_at     INTEGER,
			last_sync_status TEXT,
			pending_changes  TEXT NOT NULL DEFAULT '[]'
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	_, err := s.db.Exec(`INSERT OR IGNORE INTO sync_state (id, pending_changes) VALUES (1, '[]')`)
	return err
}

// ─── Issues ──────────────────────────────────────────────────────────────────

// CacheIssue upserts a full-projection issue, stamping the current time and
// computed expiry. Re-caching replaces the record outright.
func (s *Store) CacheIssue(issue models.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cacheIssueLocked(s.db, issue)
}

// CacheIssues upserts a batch of issues in one transaction.
func (s *Store) CacheIssues(issues []models.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("cache: begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, issue := range issues {
		if err := s.cacheIssueLocked(tx, issue); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func (s *Store) cacheIssueLocked(db execer, issue models.Issue) error {
	data, err := json.Marshal(issue)
	if err != nil {
		return fmt.Errorf("cache: marshal issue %s: %w", issue.Key, err)
	}

	now := s.now()
	_, err = db.Exec(
		`INSERT OR REPLACE INTO issues (key, data, cached_at, expires_at) VALUES (?, ?, ?, ?)`,
		issue.Key, string(data), now.UnixNano(), now.Add(s.cfg.Expiry).UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("cache: store issue %s: %w", issue.Key, err)
	}
	return nil
}

// GetCachedIssue returns the stored issue projected down to the requested
// mode, or nil if absent or expired. Expired records are invisible to
// reads even before a sweep physically removes them.
func (s *Store) GetCachedIssue(key string, mode models.FetchMode) (*models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data string
	err := s.db.QueryRow(
		`SELECT data FROM issues WHERE key = ? AND expires_at > ?`,
		key, s.now().UnixNano(),
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: read issue %s: %w", key, err)
	}

	var issue models.Issue
	if err := json.Unmarshal([]byte(data), &issue); err != nil {
		return nil, fmt.Errorf("cache: unmarshal issue %s: %w", key, err)
	}

	projected := issue.Projected(mode)
	return &projected, nil
}

// ─── Search results ──────────────────────────────────────────────────────────

// NormalizeJQL lowercases a query and collapses runs of whitespace so that
// textually different but semantically identical queries share a cache key.
func NormalizeJQL(jql string) string {
	return strings.ToLower(strings.Join(strings.Fields(jql), " "))
}

// HashJQL returns the deterministic cache key for a query.
func HashJQL(jql string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(NormalizeJQL(jql)))
}

// CacheSearchResult stores a search result set keyed by the normalized
// query hash.
func (s *Store) CacheSearchResult(jql string, result *models.SearchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("cache: marshal search result: %w", err)
	}

	now := s.now()
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO search_cache (jql_hash, jql, result, cached_at, expires_at) VALUES (?, ?, ?, ?, ?)`,
		HashJQL(jql), NormalizeJQL(jql), string(data), now.UnixNano(), now.Add(s.cfg.Expiry).UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("cache: store search result: %w", err)
	}
	return nil
}

// GetCachedSearchResult returns the cached result for a query, or nil if
// absent or expired.
func (s *Store) GetCachedSearchResult(jql string) (*models.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data string
	err := s.db.QueryRow(
		`SELECT result FROM search_cache WHERE jql_hash = ? AND expires_at > ?`,
		HashJQL(jql), s.now().UnixNano(),
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: read search result: %w", err)
	}

	var result models.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, fmt.Errorf("cache: unmarshal search result: %w", err)
	}
	return &result, nil
}

// ─── Maintenance ─────────────────────────────────────────────────────────────

// CleanExpiredCache removes all expired issue and search records and
// returns the count removed.
func (s *Store) CleanExpiredCache() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UnixNano()
	removed := 0

	for _, table := range []string{"issues", "search_cache"} {
		res, err := s.db.Exec(`DELETE FROM `+table+` WHERE expires_at <= ?`, now)
		if err != nil {
			return removed, fmt.Errorf("cache: sweep %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		removed += int(n)
	}

	return removed, nil
}

// CachedIssueKeys lists the keys of all unexpired cached issues, oldest
// first. The sync routine uses this to decide what to refresh.
func (s *Store) CachedIssueKeys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT key FROM issues WHERE expires_at > ? ORDER BY cached_at ASC`,
		s.now().UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("cache: list issue keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// GetCacheStats returns diagnostic counters for the cache.
func (s *Store) GetCacheStats() (*models.CacheStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &models.CacheStats{}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM issues`).Scan(&stats.IssueCount); err != nil {
		return nil, fmt.Errorf("cache: count issues: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM search_cache`).Scan(&stats.SearchCount); err != nil {
		return nil, fmt.Errorf("cache: count search results: %w", err)
	}

	var oldest, newest sql.NullInt64
	err := s.db.QueryRow(`
		SELECT MIN(cached_at), MAX(cached_at) FROM (
			SELECT cached_at FROM issues
			UNION ALL
			SELECT cached_at FROM search_cache
		)`,
	).Scan(&oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("cache: cache age bounds: %w", err)
	}
	if oldest.Valid {
		stats.OldestCachedAt = time.Unix(0, oldest.Int64)
	}
	if newest.Valid {
		stats.NewestCachedAt = time.Unix(0, newest.Int64)
	}

	return stats, nil
}

// ─── Pending changes & sync state ────────────────────────────────────────────

// RecordPendingChange appends a mutation attempted while offline to the
// ordered queue. The queue is cleared only by ClearPendingChanges.
func (s *Store) RecordPendingChange(change models.PendingChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	changes, err := s.pendingChangesLocked()
	if err != nil {
		return err
	}
	changes = append(changes, change)

	data, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("cache: marshal pending changes: %w", err)
	}

	_, err = s.db.Exec(`UPDATE sync_state SET pending_changes = ? WHERE id = 1`, string(data))
	if err != nil {
		return fmt.Errorf("cache: record pending change: %w", err)
	}
	return nil
}

// GetPendingChanges returns the pending-change queue in append order.
func (s *Store) GetPendingChanges() ([]models.PendingChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingChangesLocked()
}

// ClearPendingChanges empties the queue. This is the explicit
// acknowledgement step; nothing clears the queue implicitly.
func (s *Store) ClearPendingChanges() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE sync_state SET pending_changes = '[]' WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("cache: clear pending changes: %w", err)
	}
	return nil
}

func (s *Store) pendingChangesLocked() ([]models.PendingChange, error) {
	var data string
	if err := s.db.QueryRow(`SELECT pending_changes FROM sync_state WHERE id = 1`).Scan(&data); err != nil {
		return nil, fmt.Errorf("cache: read pending changes: %w", err)
	}

	var changes []models.PendingChange
	if err := json.Unmarshal([]byte(data), &changes); err != nil {
		return nil, fmt.Errorf("cache: unmarshal pending changes: %w", err)
	}
	return changes, nil
}

// GetSyncState returns the singleton sync record.
func (s *Store) GetSyncState() (*models.SyncState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lastSyncAt sql.NullInt64
	var lastSyncStatus sql.NullString
	var pending string
	err := s.db.QueryRow(
		`SELECT last_sync_at, last_sync_status, pending_changes FROM sync_state WHERE id = 1`,
	).Scan(&lastSyncAt, &lastSyncStatus, &pending)
	if err != nil {
		return nil, fmt.Errorf("cache: read sync state: %w", err)
	}

	state := &models.SyncState{LastSyncStatus: lastSyncStatus.String}
	if lastSyncAt.Valid {
		state.LastSyncAt = time.Unix(0, lastSyncAt.Int64)
	}
	if err := json.Unmarshal([]byte(pending), &state.PendingChanges); err != nil {
		return nil, fmt.Errorf("cache: unmarshal pending changes: %w", err)
	}
	return state, nil
}

// recordSyncOutcome stamps the sync state after a periodic sync run.
func (s *Store) recordSyncOutcome(at time.Time, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`UPDATE sync_state SET last_sync_at = ?, last_sync_status = ? WHERE id = 1`,
		at.UnixNano(), status,
	)
	if err != nil {
		return fmt.Errorf("cache: record sync outcome: %w", err)
	}
	return nil
}
