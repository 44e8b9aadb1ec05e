package reconcile

import (
	"context"
	"fmt"

	"ticketsync/internal/models"
)

// reconcileAssignee moves the GitHub assignment to the ticket's new assignee.
// Current assignees are always removed before the new one is added, so that
// GitHub reports an unassign followed by an assign rather than a reassignment.
func reconcileAssignee(ctx context.Context, r *run) (Outcome, error) {
	link, out, err := r.linkedIssue(ctx)
	if out != nil {
		return *out, err
	}

	assignee := r.ev.Issue.AssigneeID
	var login string
	if assignee != "" {
		var ok bool
		login, ok, err = githubLogin(ctx, r.e.store, r.link, assignee)
		if err != nil {
			return failed("identity lookup failed"), fmt.Errorf("resolving assignee: %w", err)
		}
		if !ok {
			return skipped(Skipped, "no GitHub identity mapped for assignee %s", assignee), nil
		}
	}

	var current *RemoteIssue
	if err := r.do(ctx, models.FieldAssigneeID, "get issue", link.GitHubIssueNumber, func(ctx context.Context) error {
		var err error
		current, err = r.gh.GetIssue(ctx, link.GitHubIssueNumber)
		return err
	}); err != nil {
		return failed("reading %s#%d failed", link.Repository, link.GitHubIssueNumber), nil
	}

	if login != "" && containsFold(current.Assignees, login) {
		return skipped(SkippedAlreadySynced, "%s is already assigned", login), nil
	}

	if len(current.Assignees) > 0 {
		if err := r.do(ctx, models.FieldAssigneeID, "remove assignees", current.Assignees, func(ctx context.Context) error {
			return r.gh.RemoveAssignees(ctx, link.GitHubIssueNumber, current.Assignees)
		}); err != nil {
			return failed("unassigning %s#%d failed", link.Repository, link.GitHubIssueNumber), nil
		}
	}
	if login == "" {
		r.touch(ctx, link)
		if len(current.Assignees) == 0 {
			return skipped(SkippedAlreadySynced, "issue is already unassigned"), nil
		}
		return applied("unassigned %d user(s)", len(current.Assignees)), nil
	}

	if err := r.do(ctx, models.FieldAssigneeID, "add assignees", login, func(ctx context.Context) error {
		return r.gh.AddAssignees(ctx, link.GitHubIssueNumber, []string{login})
	}); err != nil {
		return failed("assigning %s failed", login), nil
	}
	r.touch(ctx, link)
	return applied("assigned %s", login), nil
}
