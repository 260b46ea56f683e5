// Package jira implements a retrying REST API v3 client for the remote
// issue tracker. It owns retry, backoff, timeout and rate-limit handling;
// only terminal errors cross its boundary.
package jira

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/danielolaszy/tether/internal/adf"
	"github.com/danielolaszy/tether/internal/config"
	"github.com/danielolaszy/tether/internal/logging"
	"github.com/danielolaszy/tether/pkg/models"
)

// defaultPageSize is the search page size when the caller does not set one.
const defaultPageSize = 50

// Client is a JIRA REST API v3 client with built-in resilience.
type Client struct {
	baseURL    string
	authHeader string
	httpClient *http.Client
	timeout    time.Duration
	backoff    backoffPolicy

	// sleep is the backoff wait; a package-level style hook to allow test
	// injection without real sleeping.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a new JIRA client from the given config.
func NewClient(cfg config.JiraConfig) *Client {
	creds := base64.StdEncoding.EncodeToString([]byte(cfg.Email + ":" + cfg.Token))
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		authHeader: "Basic " + creds,
		httpClient: &http.Client{},
		timeout:    cfg.RequestTimeout,
		backoff: backoffPolicy{
			base:       cfg.BaseRetryDelay,
			max:        cfg.MaxRetryDelay,
			maxRetries: cfg.MaxRetries,
		},
		sleep: sleepContext,
	}
}

// sleepContext waits for d or until the context is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// TestConnection verifies credentials and returns the authenticated user.
func (c *Client) TestConnection(ctx context.Context) (*models.User, error) {
	var u wireUser
	if err := c.doRequest(ctx, http.MethodGet, "/rest/api/3/myself", nil, nil, &u); err != nil {
		return nil, fmt.Errorf("verifying credentials: %w", err)
	}
	return &models.User{
		AccountID:    u.AccountID,
		EmailAddress: u.EmailAddress,
		DisplayName:  u.DisplayName,
	}, nil
}

// GetIssue fetches a single issue projected to the requested mode. A
// missing key is a valid empty result: (nil, nil), never an error.
func (c *Client) GetIssue(ctx context.Context, key string, mode models.FetchMode) (*models.Issue, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("invalid fetch mode %q", mode)
	}

	query := url.Values{"fields": {fieldsForMode(mode)}}
	if mode == models.ModeFull {
		query.Set("expand", "transitions")
	}

	var w wireIssue
	err := c.doRequest(ctx, http.MethodGet, "/rest/api/3/issue/"+key, query, nil, &w)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching issue %s: %w", key, err)
	}

	issue := parseIssue(w, mode)
	return &issue, nil
}

// Search executes a JQL query and returns a page of summary results with
// pagination metadata. With opts.FetchAll it transparently pages through
// the full result set.
func (c *Client) Search(ctx context.Context, jql string, opts models.SearchOptions) (*models.SearchResult, error) {
	pageSize := opts.MaxResults
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	if !opts.FetchAll {
		return c.searchPage(ctx, jql, pageSize, opts.StartAt)
	}

	result := &models.SearchResult{MaxResults: pageSize}
	startAt := 0
	for {
		page, err := c.searchPage(ctx, jql, pageSize, startAt)
		if err != nil {
			return nil, err
		}
		result.Issues = append(result.Issues, page.Issues...)
		result.Total = page.Total
		if startAt+pageSize >= page.Total || len(page.Issues) == 0 {
			break
		}
		startAt += pageSize
	}
	result.HasMore = false
	return result, nil
}

// searchPage issues one POST /search call.
func (c *Client) searchPage(ctx context.Context, jql string, pageSize, startAt int) (*models.SearchResult, error) {
	body := map[string]any{
		"jql":        jql,
		"maxResults": pageSize,
		"startAt":    startAt,
		"fields":     summaryFields,
	}

	var w wireSearchResponse
	if err := c.doRequest(ctx, http.MethodPost, "/rest/api/3/search", nil, body, &w); err != nil {
		return nil, fmt.Errorf("searching %q: %w", jql, err)
	}

	result := &models.SearchResult{
		Total:      w.Total,
		StartAt:    w.StartAt,
		MaxResults: pageSize,
		HasMore:    w.StartAt+len(w.Issues) < w.Total,
	}
	for _, wi := range w.Issues {
		result.Issues = append(result.Issues, parseIssue(wi, models.ModeSummary))
	}
	return result, nil
}

// CreateIssue creates an issue from the structured payload and returns its
// key and id.
func (c *Client) CreateIssue(ctx context.Context, input models.CreateIssueInput) (*models.Issue, error) {
	body := map[string]any{"fields": buildCreateFields(input)}

	var w wireCreateResponse
	if err := c.doRequest(ctx, http.MethodPost, "/rest/api/3/issue", nil, body, &w); err != nil {
		return nil, fmt.Errorf("creating issue: %w", err)
	}

	logging.Info("created issue", "key", w.Key)
	return &models.Issue{
		Key:   w.Key,
		ID:    w.ID,
		Title: input.Title,
		Type:  input.Type,
		Mode:  models.ModeSummary,
	}, nil
}

// UpdateIssue applies the structured payload to an existing issue.
func (c *Client) UpdateIssue(ctx context.Context, key string, input models.UpdateIssueInput) error {
	body := map[string]any{"fields": buildUpdateFields(input)}

	if err := c.doRequest(ctx, http.MethodPut, "/rest/api/3/issue/"+key, nil, body, nil); err != nil {
		return fmt.Errorf("updating issue %s: %w", key, err)
	}
	return nil
}

// TransitionIssue moves an issue through the given transition. The
// argument may be a transition id or a human-readable name; names are
// resolved case-insensitively against the issue's available transitions.
func (c *Client) TransitionIssue(ctx context.Context, key, idOrName string) error {
	id := idOrName
	if _, err := strconv.Atoi(idOrName); err != nil {
		transitions, err := c.GetTransitions(ctx, key)
		if err != nil {
			return err
		}
		id = ""
		for _, t := range transitions {
			if strings.EqualFold(t.Name, idOrName) {
				id = t.ID
				break
			}
		}
		if id == "" {
			return &TransitionNotFoundError{Key: key, Name: idOrName, Available: transitions}
		}
	}

	body := map[string]any{"transition": map[string]string{"id": id}}
	if err := c.doRequest(ctx, http.MethodPost, "/rest/api/3/issue/"+key+"/transitions", nil, body, nil); err != nil {
		return fmt.Errorf("transitioning issue %s: %w", key, err)
	}
	return nil
}

// AddComment posts a plain-text comment, converting it to a rich-text
// document before transmission.
func (c *Client) AddComment(ctx context.Context, key, body string) error {
	return c.AddCommentDocument(ctx, key, adf.TextToDocument(body))
}

// AddCommentDocument posts a pre-built rich-text document as a comment.
func (c *Client) AddCommentDocument(ctx context.Context, key string, doc *adf.Node) error {
	payload := map[string]any{"body": doc}
	if err := c.doRequest(ctx, http.MethodPost, "/rest/api/3/issue/"+key+"/comment", nil, payload, nil); err != nil {
		return fmt.Errorf("commenting on issue %s: %w", key, err)
	}
	return nil
}

// GetProject fetches project metadata by key.
func (c *Client) GetProject(ctx context.Context, key string) (*models.Project, error) {
	var w wireProject
	err := c.doRequest(ctx, http.MethodGet, "/rest/api/3/project/"+key, nil, nil, &w)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching project %s: %w", key, err)
	}
	return &models.Project{ID: w.ID, Key: w.Key, Name: w.Name}, nil
}

// GetTransitions lists the transitions currently available on an issue.
func (c *Client) GetTransitions(ctx context.Context, key string) ([]models.Transition, error) {
	var w wireTransitionsResponse
	if err := c.doRequest(ctx, http.MethodGet, "/rest/api/3/issue/"+key+"/transitions", nil, nil, &w); err != nil {
		return nil, fmt.Errorf("listing transitions for %s: %w", key, err)
	}

	transitions := make([]models.Transition, 0, len(w.Transitions))
	for _, t := range w.Transitions {
		transitions = append(transitions, models.Transition{ID: t.ID, Name: t.Name, To: t.To.Name})
	}
	return transitions, nil
}

// doRequest issues one authenticated call with the shared retry schedule:
// 429 waits out the remote's Retry-After, 5xx and network failures back
// off exponentially, 404 short-circuits to errNotFound and any other 4xx
// fails immediately.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshalling payload: %w", err)
		}
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.backoff.maxRetries; attempt++ {
		retryable, err := c.attempt(ctx, method, endpoint, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable || attempt == c.backoff.maxRetries {
			break
		}

		delay := c.retryDelay(err, attempt)
		logging.Debug("retrying request",
			"method", method, "path", path,
			"attempt", attempt+1, "delay", delay, "error", err)
		if serr := c.sleep(ctx, delay); serr != nil {
			return &APIError{Message: serr.Error(), Retryable: true}
		}
	}

	return lastErr
}

// retryDelay picks the wait before the next attempt: rate-limited calls
// honor the remote's hint, everything else follows the backoff curve.
func (c *Client) retryDelay(err error, attempt int) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return c.backoff.rateLimitDelay(apiErr.RateLimit)
	}
	return c.backoff.delay(attempt)
}

// attempt performs a single request. The bool reports whether the failure
// may be retried within the budget; the terminal Retryable tag on the
// returned error is a separate signal for callers.
func (c *Client) attempt(ctx context.Context, method, endpoint string, payload []byte, out any) (bool, error) {
	attemptCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, endpoint, reader)
	if err != nil {
		return false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and network failures stay retryable even once the
		// budget is spent, signalling that a cache fallback is reasonable.
		return true, &APIError{Message: err.Error(), Retryable: true}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out != nil && resp.StatusCode != http.StatusNoContent {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return false, &APIError{StatusCode: resp.StatusCode, Message: "decoding response: " + err.Error()}
			}
		}
		return false, nil

	case resp.StatusCode == http.StatusNotFound:
		return false, errNotFound

	case resp.StatusCode == http.StatusTooManyRequests:
		info := parseRateLimit(resp.Header)
		io.Copy(io.Discard, resp.Body)
		return true, &APIError{
			StatusCode: resp.StatusCode,
			Message:    "rate limited",
			RateLimit:  info,
		}

	case resp.StatusCode >= 500:
		respBody, _ := io.ReadAll(resp.Body)
		return true, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}

	default:
		respBody, _ := io.ReadAll(resp.Body)
		return false, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}
}
