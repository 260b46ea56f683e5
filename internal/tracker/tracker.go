// Package tracker is the caching facade over the remote issue tracker.
// It serves reads from the remote while reachable, falls back to the
// local cache when it is not, and records mutations attempted offline
// as pending changes instead of failing them.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/danielolaszy/tether/internal/cache"
	"github.com/danielolaszy/tether/internal/jira"
	"github.com/danielolaszy/tether/internal/logging"
	"github.com/danielolaszy/tether/pkg/models"
)

// remote is the subset of the REST client the facade depends on.
type remote interface {
	TestConnection(ctx context.Context) (*models.User, error)
	GetIssue(ctx context.Context, key string, mode models.FetchMode) (*models.Issue, error)
	Search(ctx context.Context, jql string, opts models.SearchOptions) (*models.SearchResult, error)
	CreateIssue(ctx context.Context, input models.CreateIssueInput) (*models.Issue, error)
	UpdateIssue(ctx context.Context, key string, input models.UpdateIssueInput) error
	TransitionIssue(ctx context.Context, key, idOrName string) error
	AddComment(ctx context.Context, key, body string) error
}

var _ remote = (*jira.Client)(nil)

// Client combines the remote REST client with the local cache store.
// It starts in the online state and flips offline when a remote call
// fails for a reachability reason; offline reads are served from the
// cache until CheckConnectivity succeeds again.
type Client struct {
	remote remote
	store  *cache.Store

	mu      sync.Mutex
	offline bool
}

// New builds a facade over the given remote client and cache store.
func New(remote remote, store *cache.Store) *Client {
	return &Client{remote: remote, store: store}
}

// Offline reports whether the facade is currently in the offline state.
func (c *Client) Offline() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offline
}

func (c *Client) setOffline(offline bool) {
	c.mu.Lock()
	was := c.offline
	c.offline = offline
	c.mu.Unlock()

	if was != offline {
		if offline {
			logging.Warn("remote unreachable, switching to offline mode")
		} else {
			logging.Info("remote reachable, back online")
		}
	}
}

// reachabilityFailure distinguishes failures of the remote or the path to
// it (worth a cache fallback) from caller errors like a bad request or an
// unknown transition, which the cache cannot answer any better.
func reachabilityFailure(err error) bool {
	if jira.IsRetryable(err) {
		return true
	}
	var apiErr *jira.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// CheckConnectivity probes the remote and updates the online/offline
// state accordingly. A successful probe restores online mode.
func (c *Client) CheckConnectivity(ctx context.Context) error {
	if _, err := c.remote.TestConnection(ctx); err != nil {
		c.setOffline(true)
		return err
	}
	c.setOffline(false)
	return nil
}

// GetIssue returns an issue in the requested projection. Online, the
// full issue is fetched and cached so later narrower requests can be
// served locally; offline, the cache is the only source. A remote
// failure due to unreachability flips the facade offline and falls
// back to the cache rather than surfacing the error.
func (c *Client) GetIssue(ctx context.Context, key string, mode models.FetchMode) (*models.Issue, error) {
	if !c.Offline() {
		issue, err := c.remote.GetIssue(ctx, key, models.ModeFull)
		if err == nil {
			if issue == nil {
				return nil, nil
			}
			if cerr := c.store.CacheIssue(*issue); cerr != nil {
				logging.Warn("failed to cache issue", "key", key, "error", cerr)
			}
			projected := issue.Projected(mode)
			return &projected, nil
		}
		if !reachabilityFailure(err) {
			return nil, err
		}
		c.setOffline(true)
	}

	issue, err := c.store.GetCachedIssue(key, mode)
	if err != nil {
		return nil, err
	}
	if issue == nil {
		return nil, fmt.Errorf("tracker: issue %s unavailable offline and not cached", key)
	}
	return issue, nil
}

// Search runs a JQL query. Results are written through to the search
// cache on success; on an unreachable remote the cached result for an
// equivalent query is returned instead. Offline with no cached result,
// an empty but well-formed result is returned rather than an error.
func (c *Client) Search(ctx context.Context, jql string, opts models.SearchOptions) (*models.SearchResult, error) {
	if !c.Offline() {
		result, err := c.remote.Search(ctx, jql, opts)
		if err == nil {
			if cerr := c.store.CacheSearchResult(jql, result); cerr != nil {
				logging.Warn("failed to cache search result", "error", cerr)
			}
			return result, nil
		}
		if !reachabilityFailure(err) {
			return nil, err
		}
		c.setOffline(true)
	}

	cached, err := c.store.GetCachedSearchResult(jql)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return cached, nil
	}
	return &models.SearchResult{Issues: []models.Issue{}, MaxResults: opts.MaxResults}, nil
}

// CreateIssue creates an issue remotely. Offline, the request is
// recorded as a pending change and a nil issue is returned; the caller
// can inspect Offline to tell the two outcomes apart.
func (c *Client) CreateIssue(ctx context.Context, input models.CreateIssueInput) (*models.Issue, error) {
	if c.Offline() {
		return nil, c.recordChange(models.ChangeCreate, "", input)
	}

	issue, err := c.remote.CreateIssue(ctx, input)
	if err != nil {
		if !reachabilityFailure(err) {
			return nil, err
		}
		c.setOffline(true)
		return nil, c.recordChange(models.ChangeCreate, "", input)
	}

	if issue != nil {
		if cerr := c.store.CacheIssue(*issue); cerr != nil {
			logging.Warn("failed to cache created issue", "key", issue.Key, "error", cerr)
		}
	}
	return issue, nil
}

// UpdateIssue applies field changes to an issue, refreshing the cached
// copy on success. Offline, the change is recorded as pending.
func (c *Client) UpdateIssue(ctx context.Context, key string, input models.UpdateIssueInput) error {
	if c.Offline() {
		return c.recordChange(models.ChangeUpdate, key, input)
	}

	if err := c.remote.UpdateIssue(ctx, key, input); err != nil {
		if !reachabilityFailure(err) {
			return err
		}
		c.setOffline(true)
		return c.recordChange(models.ChangeUpdate, key, input)
	}

	c.refreshCached(ctx, key)
	return nil
}

// TransitionIssue moves an issue to another status by transition id or
// name. Offline, the change is recorded as pending.
func (c *Client) TransitionIssue(ctx context.Context, key, idOrName string) error {
	if c.Offline() {
		return c.recordChange(models.ChangeTransition, key, idOrName)
	}

	if err := c.remote.TransitionIssue(ctx, key, idOrName); err != nil {
		if !reachabilityFailure(err) {
			return err
		}
		c.setOffline(true)
		return c.recordChange(models.ChangeTransition, key, idOrName)
	}

	c.refreshCached(ctx, key)
	return nil
}

// AddComment posts a plain-text comment. Offline, the comment is
// recorded as a pending change.
func (c *Client) AddComment(ctx context.Context, key, body string) error {
	if c.Offline() {
		return c.recordChange(models.ChangeComment, key, body)
	}

	if err := c.remote.AddComment(ctx, key, body); err != nil {
		if !reachabilityFailure(err) {
			return err
		}
		c.setOffline(true)
		return c.recordChange(models.ChangeComment, key, body)
	}

	c.refreshCached(ctx, key)
	return nil
}

func (c *Client) recordChange(kind models.ChangeKind, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("tracker: marshal pending %s: %w", kind, err)
	}

	change := models.PendingChange{
		Kind:      kind,
		Key:       key,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}
	if err := c.store.RecordPendingChange(change); err != nil {
		return err
	}

	logging.Info("recorded pending change", "kind", string(kind), "key", key)
	return nil
}

// refreshCached re-fetches the full issue after a successful mutation
// so the cached copy does not go stale. Failures are logged, not
// surfaced; the mutation itself already succeeded.
func (c *Client) refreshCached(ctx context.Context, key string) {
	issue, err := c.remote.GetIssue(ctx, key, models.ModeFull)
	if err != nil || issue == nil {
		logging.Debug("skipping cache refresh after mutation", "key", key)
		return
	}
	if err := c.store.CacheIssue(*issue); err != nil {
		logging.Warn("failed to refresh cached issue", "key", key, "error", err)
	}
}

// Sync refreshes every unexpired cached issue from the remote. It is
// the body of the periodic sync task but can also be invoked directly.
// An unreachable remote aborts the pass and flips the facade offline.
func (c *Client) Sync(ctx context.Context) error {
	if c.Offline() {
		if err := c.CheckConnectivity(ctx); err != nil {
			return fmt.Errorf("tracker: remote still unreachable: %w", err)
		}
	}

	keys, err := c.store.CachedIssueKeys()
	if err != nil {
		return err
	}

	refreshed := 0
	for _, key := range keys {
		issue, err := c.remote.GetIssue(ctx, key, models.ModeFull)
		if err != nil {
			if reachabilityFailure(err) {
				c.setOffline(true)
				return fmt.Errorf("tracker: sync aborted at %s: %w", key, err)
			}
			logging.Warn("sync skipping issue", "key", key, "error", err)
			continue
		}
		if issue == nil {
			// Deleted remote-side; let the cached copy age out.
			continue
		}
		if err := c.store.CacheIssue(*issue); err != nil {
			return err
		}
		refreshed++
	}

	logging.Debug("sync pass complete", "refreshed", refreshed, "total", len(keys))
	return nil
}

// StartPeriodicSync begins the background refresh task using the
// store's configured interval.
func (c *Client) StartPeriodicSync() {
	c.store.StartPeriodicSync(c.Sync)
}

// StopPeriodicSync stops the background refresh task if running.
func (c *Client) StopPeriodicSync() {
	c.store.StopPeriodicSync()
}

// PendingChanges returns the queue of mutations recorded while offline.
func (c *Client) PendingChanges() ([]models.PendingChange, error) {
	return c.store.GetPendingChanges()
}

// ClearPendingChanges empties the pending-change queue.
func (c *Client) ClearPendingChanges() error {
	return c.store.ClearPendingChanges()
}

// CacheStats returns diagnostic counters for the local cache.
func (c *Client) CacheStats() (*models.CacheStats, error) {
	return c.store.GetCacheStats()
}

// CleanCache sweeps expired records and returns the count removed.
func (c *Client) CleanCache() (int, error) {
	return c.store.CleanExpiredCache()
}

// SyncState returns the singleton synchronization record.
func (c *Client) SyncState() (*models.SyncState, error) {
	return c.store.GetSyncState()
}

// Close stops the periodic sync and releases the cache store.
func (c *Client) Close() error {
	return c.store.Close()
}
