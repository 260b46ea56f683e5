package tracker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielolaszy/tether/internal/cache"
	"github.com/danielolaszy/tether/internal/jira"
	"github.com/danielolaszy/tether/pkg/models"
)

// fakeRemote implements the remote interface with overridable behavior.
type fakeRemote struct {
	testConnectionFn func(ctx context.Context) (*models.User, error)
	getIssueFn       func(ctx context.Context, key string, mode models.FetchMode) (*models.Issue, error)
	searchFn         func(ctx context.Context, jql string, opts models.SearchOptions) (*models.SearchResult, error)
	createIssueFn    func(ctx context.Context, input models.CreateIssueInput) (*models.Issue, error)
	updateIssueFn    func(ctx context.Context, key string, input models.UpdateIssueInput) error
	transitionFn     func(ctx context.Context, key, idOrName string) error
	addCommentFn     func(ctx context.Context, key, body string) error

	getCalls    int
	searchCalls int
}

func (f *fakeRemote) TestConnection(ctx context.Context) (*models.User, error) {
	if f.testConnectionFn != nil {
		return f.testConnectionFn(ctx)
	}
	return &models.User{AccountID: "u1"}, nil
}

func (f *fakeRemote) GetIssue(ctx context.Context, key string, mode models.FetchMode) (*models.Issue, error) {
	f.getCalls++
	if f.getIssueFn != nil {
		return f.getIssueFn(ctx, key, mode)
	}
	return remoteIssue(key), nil
}

func (f *fakeRemote) Search(ctx context.Context, jql string, opts models.SearchOptions) (*models.SearchResult, error) {
	f.searchCalls++
	if f.searchFn != nil {
		return f.searchFn(ctx, jql, opts)
	}
	return &models.SearchResult{Issues: []models.Issue{}, MaxResults: opts.MaxResults}, nil
}

func (f *fakeRemote) CreateIssue(ctx context.Context, input models.CreateIssueInput) (*models.Issue, error) {
	if f.createIssueFn != nil {
		return f.createIssueFn(ctx, input)
	}
	return remoteIssue("ABC-99"), nil
}

func (f *fakeRemote) UpdateIssue(ctx context.Context, key string, input models.UpdateIssueInput) error {
	if f.updateIssueFn != nil {
		return f.updateIssueFn(ctx, key, input)
	}
	return nil
}

func (f *fakeRemote) TransitionIssue(ctx context.Context, key, idOrName string) error {
	if f.transitionFn != nil {
		return f.transitionFn(ctx, key, idOrName)
	}
	return nil
}

func (f *fakeRemote) AddComment(ctx context.Context, key, body string) error {
	if f.addCommentFn != nil {
		return f.addCommentFn(ctx, key, body)
	}
	return nil
}

func remoteIssue(key string) *models.Issue {
	return &models.Issue{
		Key:         key,
		ID:          "10001",
		Title:       "Remote title",
		Status:      "To Do",
		Type:        "Task",
		Mode:        models.ModeFull,
		Description: "remote body",
		Labels:      []string{"remote"},
		Components:  []string{"api"},
	}
}

var unreachable = &jira.APIError{Message: "dial tcp: connection refused", Retryable: true}

func badRequest() *jira.APIError {
	return &jira.APIError{StatusCode: 400, Message: "bad jql"}
}

func newTestFacade(t *testing.T) (*Client, *fakeRemote, *cache.Store) {
	t.Helper()

	store, err := cache.New(cache.Config{
		Path:   filepath.Join(t.TempDir(), "cache.db"),
		Expiry: time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	remote := &fakeRemote{}
	return New(remote, store), remote, store
}

func TestGetIssueOnlineCachesFullProjectsDown(t *testing.T) {
	c, _, store := newTestFacade(t)

	got, err := c.GetIssue(context.Background(), "ABC-1", models.ModeSummary)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.ModeSummary, got.Mode)
	assert.Empty(t, got.Description, "summary projection")
	assert.False(t, c.Offline())

	// The full payload was cached even though summary was requested.
	cached, err := store.GetCachedIssue("ABC-1", models.ModeFull)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "remote body", cached.Description)
}

func TestGetIssueFallsBackToCacheWhenUnreachable(t *testing.T) {
	c, remote, _ := newTestFacade(t)

	// Warm the cache while online.
	_, err := c.GetIssue(context.Background(), "ABC-1", models.ModeFull)
	require.NoError(t, err)

	remote.getIssueFn = func(ctx context.Context, key string, mode models.FetchMode) (*models.Issue, error) {
		return nil, unreachable
	}

	got, err := c.GetIssue(context.Background(), "ABC-1", models.ModeDetails)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Remote title", got.Title)
	assert.Equal(t, models.ModeDetails, got.Mode)
	assert.True(t, c.Offline(), "unreachable remote flips the facade offline")
}

func TestGetIssueOfflineUncachedErrors(t *testing.T) {
	c, remote, _ := newTestFacade(t)
	remote.getIssueFn = func(ctx context.Context, key string, mode models.FetchMode) (*models.Issue, error) {
		return nil, unreachable
	}

	got, err := c.GetIssue(context.Background(), "NOPE-1", models.ModeSummary)
	assert.Nil(t, got)
	assert.Error(t, err)
	assert.True(t, c.Offline())
}

func TestGetIssueOfflineSkipsRemote(t *testing.T) {
	c, remote, store := newTestFacade(t)
	require.NoError(t, store.CacheIssue(*remoteIssue("ABC-1")))
	c.setOffline(true)

	got, err := c.GetIssue(context.Background(), "ABC-1", models.ModeSummary)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Zero(t, remote.getCalls, "offline reads never touch the remote")
}

func TestGetIssueServerFaultFallsBack(t *testing.T) {
	c, remote, store := newTestFacade(t)
	require.NoError(t, store.CacheIssue(*remoteIssue("ABC-1")))

	// Exhausted 5xx retries are no longer retryable but still indicate
	// a remote-side problem, so the cache answers.
	remote.getIssueFn = func(ctx context.Context, key string, mode models.FetchMode) (*models.Issue, error) {
		return nil, &jira.APIError{StatusCode: 503, Message: "service unavailable"}
	}

	got, err := c.GetIssue(context.Background(), "ABC-1", models.ModeSummary)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, c.Offline())
}

func TestGetIssueNonRetryableErrorStaysOnline(t *testing.T) {
	c, remote, _ := newTestFacade(t)
	remote.getIssueFn = func(ctx context.Context, key string, mode models.FetchMode) (*models.Issue, error) {
		return nil, badRequest()
	}

	_, err := c.GetIssue(context.Background(), "ABC-1", models.ModeSummary)
	assert.Error(t, err)
	assert.False(t, c.Offline(), "a client-side error is not a reachability failure")
}

func TestGetIssueMissingRemoteSide(t *testing.T) {
	c, remote, _ := newTestFacade(t)
	remote.getIssueFn = func(ctx context.Context, key string, mode models.FetchMode) (*models.Issue, error) {
		return nil, nil
	}

	got, err := c.GetIssue(context.Background(), "ABC-404", models.ModeSummary)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestSearchWritesThroughAndFallsBack(t *testing.T) {
	c, remote, _ := newTestFacade(t)

	online := &models.SearchResult{
		Issues: []models.Issue{{Key: "ABC-1", Title: "one", Mode: models.ModeSummary}},
		Total:  1,
	}
	remote.searchFn = func(ctx context.Context, jql string, opts models.SearchOptions) (*models.SearchResult, error) {
		return online, nil
	}

	got, err := c.Search(context.Background(), "project = ABC", models.SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, got.Total)

	remote.searchFn = func(ctx context.Context, jql string, opts models.SearchOptions) (*models.SearchResult, error) {
		return nil, unreachable
	}

	// Same query modulo case and spacing hits the cached entry.
	got, err = c.Search(context.Background(), "  PROJECT  =  abc ", models.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, got.Issues, 1)
	assert.Equal(t, "ABC-1", got.Issues[0].Key)
	assert.True(t, c.Offline())
}

func TestSearchOfflineUncachedReturnsEmptyResult(t *testing.T) {
	c, _, _ := newTestFacade(t)
	c.setOffline(true)

	got, err := c.Search(context.Background(), "project = XYZ", models.SearchOptions{MaxResults: 25})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.NotNil(t, got.Issues, "empty but well-formed")
	assert.Empty(t, got.Issues)
	assert.Zero(t, got.Total)
	assert.Equal(t, 25, got.MaxResults)
}

func TestCreateIssueOfflineRecordsPending(t *testing.T) {
	c, _, _ := newTestFacade(t)
	c.setOffline(true)

	input := models.CreateIssueInput{ProjectKey: "ABC", Type: "Task", Title: "queued"}
	issue, err := c.CreateIssue(context.Background(), input)
	require.NoError(t, err)
	assert.Nil(t, issue, "no remote issue exists yet")

	changes, err := c.PendingChanges()
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, models.ChangeCreate, changes[0].Kind)
	assert.Empty(t, changes[0].Key)
	assert.Contains(t, string(changes[0].Payload), `"queued"`)
}

func TestUpdateIssueUnreachableFlipsOfflineAndQueues(t *testing.T) {
	c, remote, _ := newTestFacade(t)
	remote.updateIssueFn = func(ctx context.Context, key string, input models.UpdateIssueInput) error {
		return unreachable
	}

	err := c.UpdateIssue(context.Background(), "ABC-1", models.UpdateIssueInput{Title: "new"})
	require.NoError(t, err, "recorded locally, not failed")
	assert.True(t, c.Offline())

	changes, err := c.PendingChanges()
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, models.ChangeUpdate, changes[0].Kind)
	assert.Equal(t, "ABC-1", changes[0].Key)
}

func TestUpdateIssueNonRetryableSurfaces(t *testing.T) {
	c, remote, _ := newTestFacade(t)
	remote.updateIssueFn = func(ctx context.Context, key string, input models.UpdateIssueInput) error {
		return badRequest()
	}

	err := c.UpdateIssue(context.Background(), "ABC-1", models.UpdateIssueInput{Title: "new"})
	assert.Error(t, err)
	assert.False(t, c.Offline())

	changes, err := c.PendingChanges()
	require.NoError(t, err)
	assert.Empty(t, changes, "rejected mutations are not queued")
}

func TestTransitionAndCommentOfflineQueue(t *testing.T) {
	c, _, _ := newTestFacade(t)
	c.setOffline(true)

	require.NoError(t, c.TransitionIssue(context.Background(), "ABC-1", "Done"))
	require.NoError(t, c.AddComment(context.Background(), "ABC-1", "still here"))

	changes, err := c.PendingChanges()
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, models.ChangeTransition, changes[0].Kind)
	assert.Equal(t, models.ChangeComment, changes[1].Kind)

	require.NoError(t, c.ClearPendingChanges())
	changes, err = c.PendingChanges()
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestMutationSuccessRefreshesCache(t *testing.T) {
	c, remote, store := newTestFacade(t)
	remote.getIssueFn = func(ctx context.Context, key string, mode models.FetchMode) (*models.Issue, error) {
		issue := remoteIssue(key)
		issue.Status = "Done"
		return issue, nil
	}

	require.NoError(t, c.TransitionIssue(context.Background(), "ABC-1", "Done"))

	cached, err := store.GetCachedIssue("ABC-1", models.ModeSummary)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "Done", cached.Status)
}

func TestCheckConnectivityRestoresOnline(t *testing.T) {
	c, remote, _ := newTestFacade(t)
	c.setOffline(true)

	remote.testConnectionFn = func(ctx context.Context) (*models.User, error) {
		return nil, unreachable
	}
	assert.Error(t, c.CheckConnectivity(context.Background()))
	assert.True(t, c.Offline())

	remote.testConnectionFn = nil
	require.NoError(t, c.CheckConnectivity(context.Background()))
	assert.False(t, c.Offline())
}

func TestSyncRefreshesCachedIssues(t *testing.T) {
	c, remote, store := newTestFacade(t)

	stale := remoteIssue("ABC-1")
	stale.Status = "To Do"
	require.NoError(t, store.CacheIssue(*stale))

	remote.getIssueFn = func(ctx context.Context, key string, mode models.FetchMode) (*models.Issue, error) {
		issue := remoteIssue(key)
		issue.Status = "In Progress"
		return issue, nil
	}

	require.NoError(t, c.Sync(context.Background()))

	cached, err := store.GetCachedIssue("ABC-1", models.ModeSummary)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "In Progress", cached.Status)
}

func TestSyncAbortsWhenUnreachable(t *testing.T) {
	c, remote, store := newTestFacade(t)
	require.NoError(t, store.CacheIssue(*remoteIssue("ABC-1")))

	remote.getIssueFn = func(ctx context.Context, key string, mode models.FetchMode) (*models.Issue, error) {
		return nil, unreachable
	}

	assert.Error(t, c.Sync(context.Background()))
	assert.True(t, c.Offline())
}
