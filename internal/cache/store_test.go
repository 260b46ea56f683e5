package cache

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielolaszy/tether/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(Config{
		Path:         filepath.Join(t.TempDir(), "cache.db"),
		Expiry:       time.Hour,
		SyncInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func fullIssue(key string) models.Issue {
	return models.Issue{
		Key:         key,
		ID:          "10001",
		Title:       "A cached issue",
		Status:      "In Progress",
		Type:        "Story",
		Mode:        models.ModeFull,
		Description: "body text",
		Priority:    "High",
		Labels:      []string{"backend"},
		ProjectKey:  "ABC",
		Components:  []string{"api"},
		Transitions: []models.Transition{{ID: "41", Name: "Done"}},
	}
}

func TestCacheIssueRoundTrip(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.CacheIssue(fullIssue("ABC-1")))

	got, err := s.GetCachedIssue("ABC-1", models.ModeFull)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "A cached issue", got.Title)
	assert.Equal(t, []string{"api"}, got.Components)
	assert.Len(t, got.Transitions, 1)
}

func TestGetCachedIssueProjectsDown(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CacheIssue(fullIssue("ABC-1")))

	got, err := s.GetCachedIssue("ABC-1", models.ModeSummary)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "ABC-1", got.Key)
	assert.Equal(t, "10001", got.ID)
	assert.Equal(t, "A cached issue", got.Title)
	assert.Equal(t, "In Progress", got.Status)
	assert.Equal(t, models.ModeSummary, got.Mode)

	// Everything beyond the summary layer must be zeroed.
	assert.Empty(t, got.Description)
	assert.Empty(t, got.Labels)
	assert.Empty(t, got.Components)
	assert.Empty(t, got.Transitions)
}

func TestGetCachedIssueMissing(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetCachedIssue("NOPE-1", models.ModeFull)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestCacheIssueReplacesOnRecache(t *testing.T) {
	s := newTestStore(t)

	first := fullIssue("ABC-1")
	require.NoError(t, s.CacheIssue(first))

	second := fullIssue("ABC-1")
	second.Title = "Renamed"
	second.Labels = nil
	require.NoError(t, s.CacheIssue(second))

	got, err := s.GetCachedIssue("ABC-1", models.ModeFull)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Empty(t, got.Labels, "replace, not merge")

	stats, err := s.GetCacheStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.IssueCount)
}

func TestExpiredIssueInvisibleBeforeSweep(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CacheIssue(fullIssue("ABC-1")))

	// Move the clock past the expiry without sweeping.
	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	got, err := s.GetCachedIssue("ABC-1", models.ModeFull)
	assert.NoError(t, err)
	assert.Nil(t, got, "expired record must be invisible to reads")

	stats, err := s.GetCacheStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.IssueCount, "record still physically present until a sweep")
}

func TestCleanExpiredCache(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.CacheIssue(fullIssue("ABC-1")))
	require.NoError(t, s.CacheIssue(fullIssue("ABC-2")))
	require.NoError(t, s.CacheSearchResult("project = ABC", &models.SearchResult{Total: 2}))

	// Expire ABC-1 and the search entry; ABC-2 stays fresh.
	past := time.Now().Add(-time.Minute).UnixNano()
	_, err := s.db.Exec(`UPDATE issues SET expires_at = ? WHERE key = 'ABC-1'`, past)
	require.NoError(t, err)
	_, err = s.db.Exec(`UPDATE search_cache SET expires_at = ?`, past)
	require.NoError(t, err)

	removed, err := s.CleanExpiredCache()
	require.NoError(t, err)
	assert.Equal(t, 2, removed, "exactly the expired records")

	removed, err = s.CleanExpiredCache()
	require.NoError(t, err)
	assert.Equal(t, 0, removed, "second sweep has nothing left")

	got, err := s.GetCachedIssue("ABC-2", models.ModeSummary)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestJQLHashNormalization(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		same bool
	}{
		{"identical", "project = ABC", "project = ABC", true},
		{"leading and trailing whitespace", "  project = ABC  ", "project = ABC", true},
		{"inner whitespace collapsed", "project   =   ABC", "project = ABC", true},
		{"case insensitive", "PROJECT = abc", "project = ABC", true},
		{"different queries differ", "project = ABC", "project = XYZ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.same {
				assert.Equal(t, HashJQL(tt.a), HashJQL(tt.b))
			} else {
				assert.NotEqual(t, HashJQL(tt.a), HashJQL(tt.b))
			}
		})
	}
}

func TestCacheSearchResultRoundTrip(t *testing.T) {
	s := newTestStore(t)

	result := &models.SearchResult{
		Issues:     []models.Issue{{Key: "ABC-1", Title: "one", Mode: models.ModeSummary}},
		Total:      1,
		MaxResults: 50,
	}
	require.NoError(t, s.CacheSearchResult("project = ABC", result))

	// A differently-spelled but semantically identical query hits the
	// same entry.
	got, err := s.GetCachedSearchResult("  PROJECT   =  abc ")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.Total)
	require.Len(t, got.Issues, 1)
	assert.Equal(t, "ABC-1", got.Issues[0].Key)

	miss, err := s.GetCachedSearchResult("project = XYZ")
	require.NoError(t, err)
	assert.Nil(t, miss)
}

func TestCacheIssuesBatch(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.CacheIssues([]models.Issue{
		fullIssue("ABC-1"), fullIssue("ABC-2"), fullIssue("ABC-3"),
	}))

	keys, err := s.CachedIssueKeys()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ABC-1", "ABC-2", "ABC-3"}, keys)
}

func TestPendingChangeQueue(t *testing.T) {
	s := newTestStore(t)

	payload, _ := json.Marshal(map[string]string{"title": "New thing"})
	first := models.PendingChange{
		Kind:      models.ChangeCreate,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	second := models.PendingChange{
		Kind:      models.ChangeComment,
		Key:       "ABC-1",
		Payload:   json.RawMessage(`{"body":"hi"}`),
		Timestamp: time.Now().UTC(),
	}

	require.NoError(t, s.RecordPendingChange(first))
	require.NoError(t, s.RecordPendingChange(second))

	changes, err := s.GetPendingChanges()
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, models.ChangeCreate, changes[0].Kind, "append order preserved")
	assert.Equal(t, "ABC-1", changes[1].Key)

	require.NoError(t, s.ClearPendingChanges())
	changes, err = s.GetPendingChanges()
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestSyncStateInitial(t *testing.T) {
	s := newTestStore(t)

	state, err := s.GetSyncState()
	require.NoError(t, err)
	assert.True(t, state.LastSyncAt.IsZero())
	assert.Empty(t, state.LastSyncStatus)
	assert.Empty(t, state.PendingChanges)
}

func TestPeriodicSyncRecordsOutcome(t *testing.T) {
	s := newTestStore(t)

	var runs atomic.Int32
	s.StartPeriodicSync(func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	require.Eventually(t, func() bool { return runs.Load() >= 1 },
		time.Second, 5*time.Millisecond)
	s.StopPeriodicSync()

	state, err := s.GetSyncState()
	require.NoError(t, err)
	assert.False(t, state.LastSyncAt.IsZero())
	assert.Equal(t, "ok", state.LastSyncStatus)
}

func TestPeriodicSyncRecordsFailure(t *testing.T) {
	s := newTestStore(t)

	var runs atomic.Int32
	s.StartPeriodicSync(func(ctx context.Context) error {
		runs.Add(1)
		return assert.AnError
	})

	require.Eventually(t, func() bool { return runs.Load() >= 1 },
		time.Second, 5*time.Millisecond)
	s.StopPeriodicSync()

	state, err := s.GetSyncState()
	require.NoError(t, err)
	assert.Contains(t, state.LastSyncStatus, "error:")
}

func TestStopPeriodicSyncIdempotent(t *testing.T) {
	s := newTestStore(t)

	s.StartPeriodicSync(func(ctx context.Context) error { return nil })
	s.StopPeriodicSync()
	s.StopPeriodicSync() // must not panic or block

	// Stopping without starting is fine too.
	s2 := newTestStore(t)
	s2.StopPeriodicSync()
}

func TestGetCacheStats(t *testing.T) {
	s := newTestStore(t)

	stats, err := s.GetCacheStats()
	require.NoError(t, err)
	assert.Zero(t, stats.IssueCount)
	assert.Zero(t, stats.SearchCount)
	assert.True(t, stats.OldestCachedAt.IsZero())

	require.NoError(t, s.CacheIssue(fullIssue("ABC-1")))
	require.NoError(t, s.CacheSearchResult("project = ABC", &models.SearchResult{}))

	stats, err = s.GetCacheStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.IssueCount)
	assert.Equal(t, 1, stats.SearchCount)
	assert.False(t, stats.OldestCachedAt.IsZero())
	assert.False(t, stats.NewestCachedAt.After(time.Now().Add(time.Minute)))
}
