package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// Action is the kind of change a webhook reports.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionRemove Action = "remove"
)

// EntityKind is the type of Linear object a webhook is about.
type EntityKind string

const (
	EntityIssue   EntityKind = "Issue"
	EntityComment EntityKind = "Comment"
	EntityCycle   EntityKind = "Cycle"
)

// Fields of an issue that can appear in a webhook's updatedFrom.
const (
	FieldLabelIDs    = "labelIds"
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldCycleID     = "cycleId"
	FieldStateID     = "stateId"
	FieldAssigneeID  = "assigneeId"
	FieldPriority    = "priority"
	FieldEstimate    = "estimate"
)

// Linear workflow state types that close the GitHub issue.
const (
	StateTypeCompleted = "completed"
	StateTypeCanceled  = "canceled"
)

// Event is one inbound change notification. It is never persisted.
type Event struct {
	Action  Action
	Entity  EntityKind
	ActorID string
	// ScopeID is the Linear team. Comment payloads carry none.
	ScopeID string
	URL     string

	Issue   *IssueData
	Comment *CommentData
	Cycle   *CycleData

	// UpdatedFrom holds the prior value of every field that changed. Only
	// fields present here are reconciled.
	UpdatedFrom Delta
}

// LabelRef is a label as embedded in an issue payload.
type LabelRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// StateRef is the workflow state embedded in an issue payload.
type StateRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// UserRef is a Linear user embedded in a payload.
type UserRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// IssueData is the current state of a Linear ticket.
type IssueData struct {
	ID          string     `json:"id"`
	Identifier  string     `json:"identifier"`
	Number      int        `json:"number"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	TeamID      string     `json:"teamId"`
	LabelIDs    []string   `json:"labelIds"`
	Labels      []LabelRef `json:"labels,omitempty"`
	CycleID     string     `json:"cycleId,omitempty"`
	StateID     string     `json:"stateId,omitempty"`
	State       *StateRef  `json:"state,omitempty"`
	AssigneeID  string     `json:"assigneeId,omitempty"`
	CreatorID   string     `json:"creatorId,omitempty"`
	Priority    int        `json:"priority"`
	Estimate    *int       `json:"estimate,omitempty"`
	URL         string     `json:"url,omitempty"`
}

// HasLabel reports whether id is among the ticket's labels.
func (d *IssueData) HasLabel(id string) bool {
	return containsString(d.LabelIDs, id)
}

// LabelName returns the embedded name of a label, if the payload carried it.
func (d *IssueData) LabelName(id string) (string, bool) {
	for _, l := range d.Labels {
		if l.ID == id && l.Name != "" {
			return l.Name, true
		}
	}
	return "", false
}

// StateType returns the workflow state type, or "" when unknown.
func (d *IssueData) StateType() string {
	if d.State == nil {
		return ""
	}
	return d.State.Type
}

// CommentData is a Linear comment.
type CommentData struct {
	ID        string    `json:"id"`
	Body      string    `json:"body"`
	IssueID   string    `json:"issueId"`
	UserID    string    `json:"userId,omitempty"`
	User      *UserRef  `json:"user,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// CycleData is a Linear cycle.
type CycleData struct {
	ID          string     `json:"id"`
	Number      int        `json:"number"`
	Name        string     `json:"name,omitempty"`
	Description string     `json:"description,omitempty"`
	TeamID      string     `json:"teamId,omitempty"`
	StartsAt    *time.Time `json:"startsAt,omitempty"`
	EndsAt      *time.Time `json:"endsAt,omitempty"`
}

// Delta maps a changed field name to its prior JSON value. A field that was
// previously unset is present with a JSON null.
type Delta map[string]json.RawMessage

// Has reports whether field changed.
func (d Delta) Has(field string) bool {
	_, ok := d[field]
	return ok
}

// String returns the prior string value. ok is false when the field is
// absent or was null.
func (d Delta) String(field string) (string, bool) {
	raw, present := d[field]
	if !present || isNull(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Strings returns the prior value of a list field.
func (d Delta) Strings(field string) []string {
	raw, present := d[field]
	if !present || isNull(raw) {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// Int returns the prior integer value. ok is false when the field is absent
// or was null.
func (d Delta) Int(field string) (int, bool) {
	raw, present := d[field]
	if !present || isNull(raw) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	return int(f), true
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
