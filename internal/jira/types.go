package jira

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/danielolaszy/tether/internal/adf"
	"github.com/danielolaszy/tether/pkg/models"
)

// jiraTimeFormat is the timestamp layout used by the REST API v3.
const jiraTimeFormat = "2006-01-02T15:04:05.000-0700"

// wireIssue is the loosely-typed issue shape returned by the remote. The
// field bag is decoded progressively: known fields are extracted by name,
// customfield_* entries are kept raw.
type wireIssue struct {
	ID          string                     `json:"id"`
	Key         string                     `json:"key"`
	Fields      map[string]json.RawMessage `json:"fields"`
	Transitions []wireTransition           `json:"transitions,omitempty"`
}

type wireNamed struct {
	Name string `json:"name"`
}

type wireUser struct {
	AccountID    string `json:"accountId"`
	EmailAddress string `json:"emailAddress"`
	DisplayName  string `json:"displayName"`
}

type wireProject struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

type wireComment struct {
	ID      string    `json:"id"`
	Author  wireUser  `json:"author"`
	Body    *adf.Node `json:"body"`
	Created string    `json:"created"`
}

type wireComments struct {
	Comments []wireComment `json:"comments"`
}

type wireTransition struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	To   wireNamed `json:"to"`
}

type wireTransitionsResponse struct {
	Transitions []wireTransition `json:"transitions"`
}

type wireSearchResponse struct {
	Issues     []wireIssue `json:"issues"`
	Total      int         `json:"total"`
	StartAt    int         `json:"startAt"`
	MaxResults int         `json:"maxResults"`
}

type wireCreateResponse struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// summaryFields is the wire field list for ModeSummary; detailFields adds
// the ModeDetails layer. ModeFull requests "*all" so arbitrary custom
// fields come back too.
var (
	summaryFields = []string{"summary", "status", "issuetype"}
	detailFields  = append(summaryFields[:3:3],
		"description", "assignee", "reporter", "priority", "labels",
		"created", "updated", "project")
)

// fieldsForMode returns the fields query value for a fetch mode. Narrow
// modes keep request and response payloads small; callers should default
// to the narrowest mode they need.
func fieldsForMode(mode models.FetchMode) string {
	switch mode {
	case models.ModeSummary:
		return strings.Join(summaryFields, ",")
	case models.ModeDetails:
		return strings.Join(detailFields, ",")
	default:
		return "*all"
	}
}

// parseIssue extracts a models.Issue from the wire shape, populating only
// the layers the mode asks for. Extraction is progressive: the full mode
// reuses the details extraction which reuses the summary extraction.
func parseIssue(w wireIssue, mode models.FetchMode) models.Issue {
	issue := models.Issue{
		Key:  w.Key,
		ID:   w.ID,
		Mode: mode,
	}

	issue.Title = fieldString(w.Fields, "summary")
	issue.Status = fieldNamed(w.Fields, "status")
	issue.Type = fieldNamed(w.Fields, "issuetype")
	if mode == models.ModeSummary {
		return issue
	}

	if raw, ok := w.Fields["description"]; ok {
		var doc adf.Node
		if err := json.Unmarshal(raw, &doc); err == nil {
			issue.Description = adf.DocumentToText(&doc)
		}
	}
	issue.Assignee = fieldUser(w.Fields, "assignee")
	issue.Reporter = fieldUser(w.Fields, "reporter")
	issue.Priority = fieldNamed(w.Fields, "priority")
	if raw, ok := w.Fields["labels"]; ok {
		_ = json.Unmarshal(raw, &issue.Labels)
	}
	issue.Created = fieldTime(w.Fields, "created")
	issue.Updated = fieldTime(w.Fields, "updated")
	if raw, ok := w.Fields["project"]; ok {
		var p wireProject
		if err := json.Unmarshal(raw, &p); err == nil {
			issue.ProjectKey = p.Key
		}
	}
	if mode == models.ModeDetails {
		return issue
	}

	issue.Components = fieldNamedList(w.Fields, "components")
	issue.FixVersions = fieldNamedList(w.Fields, "fixVersions")
	for key, raw := range w.Fields {
		if !strings.HasPrefix(key, "customfield_") || string(raw) == "null" {
			continue
		}
		if issue.CustomFields == nil {
			issue.CustomFields = make(map[string]json.RawMessage)
		}
		issue.CustomFields[key] = raw
	}
	if raw, ok := w.Fields["comment"]; ok {
		var wc wireComments
		if err := json.Unmarshal(raw, &wc); err == nil {
			for _, c := range wc.Comments {
				issue.Comments = append(issue.Comments, models.Comment{
					ID:      c.ID,
					Author:  models.User(c.Author),
					Body:    adf.DocumentToText(c.Body),
					Created: parseJiraTime(c.Created),
				})
			}
		}
	}
	for _, t := range w.Transitions {
		issue.Transitions = append(issue.Transitions, models.Transition{
			ID:   t.ID,
			Name: t.Name,
			To:   t.To.Name,
		})
	}

	return issue
}

func fieldString(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	_ = json.Unmarshal(raw, &s)
	return s
}

func fieldNamed(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var n wireNamed
	_ = json.Unmarshal(raw, &n)
	return n.Name
}

func fieldNamedList(fields map[string]json.RawMessage, key string) []string {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	var list []wireNamed
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}
	var names []string
	for _, n := range list {
		names = append(names, n.Name)
	}
	return names
}

func fieldUser(fields map[string]json.RawMessage, key string) *models.User {
	raw, ok := fields[key]
	if !ok || string(raw) == "null" {
		return nil
	}
	var u wireUser
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil
	}
	return &models.User{
		AccountID:    u.AccountID,
		EmailAddress: u.EmailAddress,
		DisplayName:  u.DisplayName,
	}
}

func fieldTime(fields map[string]json.RawMessage, key string) time.Time {
	return parseJiraTime(fieldString(fields, key))
}

func parseJiraTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if at, err := time.Parse(jiraTimeFormat, s); err == nil {
		return at
	}
	if at, err := time.Parse(time.RFC3339, s); err == nil {
		return at
	}
	return time.Time{}
}

// buildCreateFields maps a structured create payload onto the remote's
// field representation. Plain-text descriptions go through the document
// converter.
func buildCreateFields(input models.CreateIssueInput) map[string]any {
	fields := map[string]any{
		"project":   map[string]string{"key": input.ProjectKey},
		"issuetype": map[string]string{"name": input.Type},
		"summary":   input.Title,
	}
	addOptionalFields(fields, input.Description, input.Assignee, input.Priority,
		input.Labels, input.Components, input.CustomFields)
	return fields
}

// buildUpdateFields maps a structured update payload; zero-valued fields
// are omitted so the remote leaves them untouched.
func buildUpdateFields(input models.UpdateIssueInput) map[string]any {
	fields := map[string]any{}
	if input.Title != "" {
		fields["summary"] = input.Title
	}
	addOptionalFields(fields, input.Description, input.Assignee, input.Priority,
		input.Labels, input.Components, input.CustomFields)
	return fields
}

func addOptionalFields(fields map[string]any, description, assignee, priority string,
	labels, components []string, custom map[string]json.RawMessage) {
	if description != "" {
		fields["description"] = adf.TextToDocument(description)
	}
	if assignee != "" {
		fields["assignee"] = map[string]string{"accountId": assignee}
	}
	if priority != "" {
		fields["priority"] = map[string]string{"name": priority}
	}
	if len(labels) > 0 {
		fields["labels"] = labels
	}
	if len(components) > 0 {
		named := make([]map[string]string, 0, len(components))
		for _, c := range components {
			named = append(named, map[string]string{"name": c})
		}
		fields["components"] = named
	}
	for key, raw := range custom {
		fields[key] = raw
	}
}
