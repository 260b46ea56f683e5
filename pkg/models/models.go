// Package models defines data structures shared across the application.
package models

import (
	"encoding/json"
	"time"
)

// FetchMode controls which issue fields are requested from the remote API
// and which fields are populated on the returned Issue. Each mode is a
// strict superset of the one before it.
type FetchMode string

const (
	// ModeSummary returns key, id, title, status and issue type only.
	ModeSummary FetchMode = "summary"

	// ModeDetails adds description, assignee, reporter, priority, labels,
	// timestamps and the owning project key.
	ModeDetails FetchMode = "details"

	// ModeFull adds components, fix versions, custom fields, comments and
	// the available status transitions.
	ModeFull FetchMode = "full"
)

// Valid reports whether m is one of the three known fetch modes.
func (m FetchMode) Valid() bool {
	switch m {
	case ModeSummary, ModeDetails, ModeFull:
		return true
	}
	return false
}

// User represents a JIRA user.
type User struct {
	AccountID    string `json:"accountId,omitempty"`
	EmailAddress string `json:"emailAddress,omitempty"`
	DisplayName  string `json:"displayName,omitempty"`
}

// Project represents a JIRA project.
type Project struct {
	ID   string `json:"id,omitempty"`
	Key  string `json:"key"`
	Name string `json:"name,omitempty"`
}

// Transition describes an available status transition for an issue.
type Transition struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	To   string `json:"to,omitempty"`
}

// Comment represents a single issue comment.
type Comment struct {
	ID      string    `json:"id,omitempty"`
	Author  User      `json:"author,omitempty"`
	Body    string    `json:"body"`
	Created time.Time `json:"created,omitempty"`
}

// Issue is the canonical representation of a JIRA issue. It always carries
// the full field set internally; narrower views are derived with Projected
// rather than fetched again.
type Issue struct {
	// Key is the human-readable issue identifier (e.g., "ABC-123").
	Key string `json:"key"`

	// ID is the remote's internal numeric identifier.
	ID string `json:"id"`

	// Title is the issue summary line.
	Title string `json:"title"`

	// Status is the current workflow status name.
	Status string `json:"status"`

	// Type is the issue type name (e.g., "Story", "Bug", "Task").
	Type string `json:"type"`

	// Mode records which projection this instance represents.
	Mode FetchMode `json:"mode"`

	// Details-mode fields.
	Description string    `json:"description,omitempty"`
	Assignee    *User     `json:"assignee,omitempty"`
	Reporter    *User     `json:"reporter,omitempty"`
	Priority    string    `json:"priority,omitempty"`
	Labels      []string  `json:"labels,omitempty"`
	Created     time.Time `json:"created,omitempty"`
	Updated     time.Time `json:"updated,omitempty"`
	ProjectKey  string    `json:"projectKey,omitempty"`

	// Full-mode fields.
	Components   []string                   `json:"components,omitempty"`
	FixVersions  []string                   `json:"fixVersions,omitempty"`
	CustomFields map[string]json.RawMessage `json:"customFields,omitempty"`
	Comments     []Comment                  `json:"comments,omitempty"`
	Transitions  []Transition               `json:"transitions,omitempty"`
}

// Projected returns a copy of the issue narrowed to the requested mode.
// Fields outside the mode are zeroed, so a full instance can serve any
// projection without another remote call.
func (i Issue) Projected(mode FetchMode) Issue {
	out := Issue{
		Key:    i.Key,
		ID:     i.ID,
		Title:  i.Title,
		Status: i.Status,
		Type:   i.Type,
		Mode:   mode,
	}
	if mode == ModeSummary {
		return out
	}

	out.Description = i.Description
	out.Assignee = i.Assignee
	out.Reporter = i.Reporter
	out.Priority = i.Priority
	out.Labels = i.Labels
	out.Created = i.Created
	out.Updated = i.Updated
	out.ProjectKey = i.ProjectKey
	if mode == ModeDetails {
		return out
	}

	out.Components = i.Components
	out.FixVersions = i.FixVersions
	out.CustomFields = i.CustomFields
	out.Comments = i.Comments
	out.Transitions = i.Transitions
	return out
}

// SearchOptions controls pagination for Search.
type SearchOptions struct {
	// MaxResults is the page size; the client default applies when zero.
	MaxResults int

	// StartAt is the zero-based offset of the first result.
	StartAt int

	// FetchAll pages through the entire result set, ignoring StartAt.
	FetchAll bool
}

// SearchResult is one page (or, with FetchAll, the aggregate) of a search.
type SearchResult struct {
	// Issues holds summary-mode projections of the matched issues.
	Issues []Issue `json:"issues"`

	// Total is the number of issues matching the query remote-side.
	Total int `json:"total"`

	// StartAt is the offset this page began at.
	StartAt int `json:"startAt"`

	// MaxResults is the page size used for the request.
	MaxResults int `json:"maxResults"`

	// HasMore indicates further pages exist beyond this one.
	HasMore bool `json:"hasMore"`
}

// CreateIssueInput is the structured payload for creating an issue.
type CreateIssueInput struct {
	ProjectKey   string                     `json:"projectKey"`
	Type         string                     `json:"type"`
	Title        string                     `json:"title"`
	Description  string                     `json:"description,omitempty"`
	Assignee     string                     `json:"assignee,omitempty"`
	Priority     string                     `json:"priority,omitempty"`
	Labels       []string                   `json:"labels,omitempty"`
	Components   []string                   `json:"components,omitempty"`
	CustomFields map[string]json.RawMessage `json:"customFields,omitempty"`
}

// UpdateIssueInput is the structured payload for updating an issue.
// Zero-valued fields are left untouched remote-side.
type UpdateIssueInput struct {
	Title        string                     `json:"title,omitempty"`
	Description  string                     `json:"description,omitempty"`
	Assignee     string                     `json:"assignee,omitempty"`
	Priority     string                     `json:"priority,omitempty"`
	Labels       []string                   `json:"labels,omitempty"`
	Components   []string                   `json:"components,omitempty"`
	CustomFields map[string]json.RawMessage `json:"customFields,omitempty"`
}

// RateLimitInfo carries the remote's rate-limit signals from a 429
// response. It is built per failed call and discarded once the retry
// decision has been made.
type RateLimitInfo struct {
	// Remaining is the quota left in the current window, -1 if unknown.
	Remaining int `json:"remaining"`

	// ResetAt is when the quota window resets; zero if unknown.
	ResetAt time.Time `json:"resetAt,omitempty"`

	// RetryAfter is how long the remote asked us to wait.
	RetryAfter time.Duration `json:"retryAfter"`
}

// ChangeKind identifies the type of a locally-recorded pending change.
type ChangeKind string

const (
	ChangeCreate     ChangeKind = "create"
	ChangeUpdate     ChangeKind = "update"
	ChangeTransition ChangeKind = "transition"
	ChangeComment    ChangeKind = "comment"
)

// PendingChange is a mutation attempted while the remote was unreachable.
// Changes are appended in order and cleared only by an explicit
// acknowledgement; they are never replayed automatically.
type PendingChange struct {
	// Kind is the mutation type.
	Kind ChangeKind `json:"kind"`

	// Key is the affected issue key; empty for creates.
	Key string `json:"key,omitempty"`

	// Payload is the JSON-encoded operation input.
	Payload json.RawMessage `json:"payload"`

	// Timestamp records when the change was captured locally.
	Timestamp time.Time `json:"timestamp"`
}

// SyncState is the singleton synchronization record kept in the cache.
type SyncState struct {
	// LastSyncAt is when the periodic sync last ran; zero if never.
	LastSyncAt time.Time `json:"lastSyncAt,omitempty"`

	// LastSyncStatus is "ok", "error: ..." or empty if sync never ran.
	LastSyncStatus string `json:"lastSyncStatus,omitempty"`

	// PendingChanges is the ordered queue of offline mutations.
	PendingChanges []PendingChange `json:"pendingChanges,omitempty"`
}

// CacheStats holds diagnostic counters for the local cache.
type CacheStats struct {
	// IssueCount is the number of cached issue records, expired or not.
	IssueCount int `json:"issueCount"`

	// SearchCount is the number of cached search results.
	SearchCount int `json:"searchCount"`

	// OldestCachedAt is the oldest cached_at across both tables.
	OldestCachedAt time.Time `json:"oldestCachedAt,omitempty"`

	// NewestCachedAt is the newest cached_at across both tables.
	NewestCachedAt time.Time `json:"newestCachedAt,omitempty"`
}
