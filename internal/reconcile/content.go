package reconcile

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"ticketsync/internal/db"
	"ticketsync/internal/models"
)

// SyncFooterMarker is embedded in everything the bot writes so that its own
// writes can be recognised when they are observed again.
const SyncFooterMarker = "<!-- ticketsync -->"

// Transformer rewrites Markdown before it is posted to GitHub.
type Transformer interface {
	Transform(ctx context.Context, body string) (string, error)
}

var mentionPattern = regexp.MustCompile(`(^|[\s(])@([A-Za-z0-9][A-Za-z0-9._-]*)`)

// MentionRewriter replaces @linear-name mentions with the mapped GitHub
// login. Unmapped mentions are left as they are.
type MentionRewriter struct {
	store Store
}

// NewMentionRewriter creates a rewriter backed by the identity mappings in store.
func NewMentionRewriter(store Store) *MentionRewriter {
	return &MentionRewriter{store: store}
}

// Transform implements Transformer.
func (m *MentionRewriter) Transform(ctx context.Context, body string) (string, error) {
	var firstErr error
	cache := map[string]string{}
	out := mentionPattern.ReplaceAllStringFunc(body, func(match string) string {
		sub := mentionPattern.FindStringSubmatch(match)
		lead, name := sub[1], sub[2]
		login, seen := cache[name]
		if !seen {
			mapping, err := m.store.FindIdentityByLinearUsername(ctx, name)
			switch {
			case err == nil:
				login = mapping.GitHubUsername
			case !errors.Is(err, db.ErrNotFound) && firstErr == nil:
				firstErr = err
			}
			cache[name] = login
		}
		if login == "" {
			return match
		}
		return lead + "@" + login
	})
	return out, firstErr
}

func (e *Engine) issueTitle(issue *models.IssueData) string {
	if !e.opts.TitleTicketID || issue.Identifier == "" {
		return issue.Title
	}
	return fmt.Sprintf("[%s] %s", issue.Identifier, issue.Title)
}

func (e *Engine) issueBody(ctx context.Context, r *run, issue *models.IssueData) string {
	body := r.transform(ctx, issue.Description)
	if !e.opts.BodyFooter {
		return body
	}
	ref := issue.Identifier
	if ref == "" {
		ref = "Linear"
	}
	if issue.URL != "" {
		ref = fmt.Sprintf("[%s](%s)", ref, issue.URL)
	}
	footer := fmt.Sprintf("<sub>%s · synced from Linear</sub> %s", ref, SyncFooterMarker)
	if strings.TrimSpace(body) == "" {
		return footer
	}
	return body + "\n\n" + footer
}

func commentFooter(c *models.CommentData) string {
	author := "someone"
	if c.User != nil && c.User.Name != "" {
		author = c.User.Name
		if c.User.URL != "" {
			author = fmt.Sprintf("[%s](%s)", c.User.Name, c.User.URL)
		}
	}
	return fmt.Sprintf("<sub>%s on Linear</sub> %s", author, SyncFooterMarker)
}

func (e *Engine) isSynthetic(commentID string) bool {
	marker := strings.ToLower(e.opts.SyntheticIDMarker)
	return marker != "" && strings.HasSuffix(strings.ToLower(commentID), marker)
}

func (e *Engine) isInternal(body string) bool {
	prefix := strings.ToLower(e.opts.InternalMarkerPrefix)
	return prefix != "" && strings.HasPrefix(strings.ToLower(strings.TrimSpace(body)), prefix)
}

// allowed reports whether a label name is on the allow list, ignoring case.
func (e *Engine) allowed(name string) bool {
	for _, a := range e.opts.LabelAllowList {
		if strings.EqualFold(strings.TrimSpace(a), name) {
			return true
		}
	}
	return false
}

// milestoneTitle derives the GitHub milestone title of a cycle.
func milestoneTitle(c *models.CycleData) string {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return fmt.Sprintf("v.%d", c.Number)
	}
	if _, err := strconv.ParseFloat(name, 64); err == nil {
		return "v." + name
	}
	return name
}

// milestoneState is closed once the cycle has ended.
func milestoneState(c *models.CycleData, now time.Time) string {
	if c.EndsAt != nil && c.EndsAt.Before(now) {
		return "closed"
	}
	return "open"
}

func milestoneDescription(c *models.CycleData) string {
	desc := strings.TrimSpace(c.Description)
	if desc == "" {
		return SyncFooterMarker
	}
	return desc + "\n\n" + SyncFooterMarker
}

var priorityLabels = map[int]Label{
	1: {Name: "Urgent", Color: "f7c8c1", Description: "Synced from Linear"},
	2: {Name: "High priority", Color: "fce4ce", Description: "Synced from Linear"},
	3: {Name: "Medium priority", Color: "fef2c0", Description: "Synced from Linear"},
	4: {Name: "Low priority", Color: "e6e6e6", Description: "Synced from Linear"},
}

func estimateLabel(points int) Label {
	return Label{Name: fmt.Sprintf("%d points", points), Color: "666666", Description: "Synced from Linear"}
}

func stripHash(color string) string {
	return strings.TrimPrefix(color, "#")
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// difference returns the items of a that are not in b, in a's order.
func difference(a, b []string) []string {
	seen := make(map[string]bool, len(b))
	for _, v := range b {
		seen[v] = true
	}
	var out []string
	for _, v := range a {
		if !seen[v] {
			out = append(out, v)
		}
	}
	return out
}
