package reconcile

import (
	"context"
	"errors"
	"fmt"

	"ticketsync/internal/db"
)

// reconcileComment posts a new Linear comment on the linked GitHub issue.
func reconcileComment(ctx context.Context, r *run) (Outcome, error) {
	c := r.ev.Comment
	if r.e.isSynthetic(c.ID) {
		return skipped(Skipped, "comment %s was created by the sync", c.ID), nil
	}
	if r.e.isInternal(c.Body) {
		return skipped(Skipped, "comment %s is internal", c.ID), nil
	}

	link, err := r.e.store.FindIssueLinkByTicket(ctx, c.IssueID)
	if errors.Is(err, db.ErrNotFound) {
		return skipped(SkippedNoLink, "ticket %s is not synced", c.IssueID), nil
	}
	if err != nil {
		return failed("issue link lookup failed"), fmt.Errorf("looking up issue link: %w", err)
	}
	if err := r.rebind(ctx, link); err != nil {
		return failed("sync link lookup failed"), err
	}

	body := r.transform(ctx, c.Body) + "\n\n" + commentFooter(c)
	if err := r.create(ctx, stepComment, "create comment", c.ID, func(ctx context.Context) error {
		return r.gh.CreateComment(ctx, link.GitHubIssueNumber, body)
	}); err != nil {
		return failed("commenting on %s#%d failed", link.Repository, link.GitHubIssueNumber), nil
	}
	r.touch(ctx, link)
	return applied("comment posted on %s#%d", link.Repository, link.GitHubIssueNumber), nil
}
