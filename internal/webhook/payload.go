package webhook

import (
	"encoding/json"
	"errors"
	"fmt"

	"ticketsync/internal/models"
)

// ErrUnsupported marks payloads that are valid but not synced, such as
// reactions or project updates.
var ErrUnsupported = errors.New("unsupported webhook type")

type payload struct {
	Action      string          `json:"action"`
	Type        string          `json:"type"`
	URL         string          `json:"url"`
	Data        json.RawMessage `json:"data"`
	UpdatedFrom models.Delta    `json:"updatedFrom"`
	Actor       *struct {
		ID string `json:"id"`
	} `json:"actor"`
}

// ParseEvent decodes a Linear webhook body into an event. The actor is the
// ticket's creator (falling back to its assignee) for issues, the author for
// comments, and the sender of the webhook otherwise.
func ParseEvent(body []byte) (*models.Event, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decoding webhook: %w", err)
	}
	if len(p.Data) == 0 {
		return nil, errors.New("decoding webhook: no data")
	}

	ev := &models.Event{
		Action:      models.Action(p.Action),
		Entity:      models.EntityKind(p.Type),
		URL:         p.URL,
		UpdatedFrom: p.UpdatedFrom,
	}
	switch ev.Action {
	case models.ActionCreate, models.ActionUpdate, models.ActionRemove:
	default:
		return nil, fmt.Errorf("%w: action %q", ErrUnsupported, p.Action)
	}
	sender := ""
	if p.Actor != nil {
		sender = p.Actor.ID
	}

	switch ev.Entity {
	case models.EntityIssue:
		var issue models.IssueData
		if err := json.Unmarshal(p.Data, &issue); err != nil {
			return nil, fmt.Errorf("decoding issue: %w", err)
		}
		if issue.URL == "" {
			issue.URL = p.URL
		}
		ev.Issue = &issue
		ev.ScopeID = issue.TeamID
		ev.ActorID = firstNonEmpty(issue.CreatorID, issue.AssigneeID, sender)

	case models.EntityComment:
		var comment models.CommentData
		if err := json.Unmarshal(p.Data, &comment); err != nil {
			return nil, fmt.Errorf("decoding comment: %w", err)
		}
		if comment.UserID == "" && comment.User != nil {
			comment.UserID = comment.User.ID
		}
		ev.Comment = &comment
		ev.ActorID = firstNonEmpty(comment.UserID, sender)

	case models.EntityCycle:
		var cycle models.CycleData
		if err := json.Unmarshal(p.Data, &cycle); err != nil {
			return nil, fmt.Errorf("decoding cycle: %w", err)
		}
		ev.Cycle = &cycle
		ev.ScopeID = cycle.TeamID
		ev.ActorID = sender

	default:
		return nil, fmt.Errorf("%w: type %q", ErrUnsupported, p.Type)
	}
	return ev, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
