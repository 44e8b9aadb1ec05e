package reconcile

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"ticketsync/internal/models"
)

// reconcileCreate handles a newly created ticket. Only public tickets get a
// GitHub issue.
func reconcileCreate(ctx context.Context, r *run) (Outcome, error) {
	if !r.ev.Issue.HasLabel(r.link.PublicLabelID) {
		return skipped(SkippedNotPublic, "ticket %s is not public", r.ev.Issue.Identifier), nil
	}
	return createCounterpart(ctx, r)
}

// reconcileRemove detaches a deleted ticket from its issue.
func reconcileRemove(ctx context.Context, r *run) (Outcome, error) {
	return detach(ctx, r, "ticket deleted")
}

// createCounterpart creates the GitHub issue for a ticket that just became
// public, links it, and replays labels and comments onto it. A ticket that is
// already linked is left alone.
func createCounterpart(ctx context.Context, r *run) (Outcome, error) {
	issue := r.ev.Issue

	existing, err := r.findIssueLink(ctx, issue.ID)
	if err != nil {
		return failed("issue link lookup failed"), err
	}
	if existing != nil {
		return skipped(SkippedAlreadySynced, "already synced to %s#%d", existing.Repository, existing.GitHubIssueNumber), nil
	}

	unlock := r.e.locks.Lock(issue.ID)
	defer unlock()

	// Another event for the same ticket may have finished while we waited.
	r.issueLink = nil
	existing, err = r.findIssueLink(ctx, issue.ID)
	if err != nil {
		return failed("issue link lookup failed"), err
	}
	if existing != nil {
		return skipped(SkippedAlreadySynced, "already synced to %s#%d", existing.Repository, existing.GitHubIssueNumber), nil
	}

	title := r.e.issueTitle(issue)
	body := r.e.issueBody(ctx, r, issue)
	req := IssueRequest{Title: &title, Body: &body}
	if issue.AssigneeID != "" {
		login, ok, err := githubLogin(ctx, r.e.store, r.link, issue.AssigneeID)
		switch {
		case err != nil:
			r.logger.Warn("assignee lookup failed", "assignee_id", issue.AssigneeID, "error", err)
		case ok:
			req.Assignees = []string{login}
		}
	}

	var created *RemoteIssue
	err = r.create(ctx, stepVisibility, "create issue", title, func(ctx context.Context) error {
		var err error
		created, err = r.gh.CreateIssue(ctx, req)
		return err
	})
	if err != nil {
		return failed("creating issue for %s failed", issue.Identifier), fatal(stepVisibility, err)
	}

	link := &models.IssueLink{
		LinearIssueID:     issue.ID,
		LinearTeamID:      r.teamID(),
		LinearIssueNumber: issue.Number,
		LinearIdentifier:  issue.Identifier,
		GitHubIssueID:     created.ID,
		GitHubIssueNumber: created.Number,
		GitHubRepoID:      r.link.GitHubRepoID,
		Repository:        r.link.Repository,
		IssueURL:          created.URL,
		SyncLinkID:        r.link.ID,
		LastSyncedAt:      time.Now(),
	}

	// Persisting the link and attaching the back-reference are independent:
	// a failure of one must not cancel the other. Only the link is required
	// for the steps that follow.
	var g errgroup.Group
	g.Go(func() error {
		if err := r.e.store.CreateIssueLink(ctx, link); err != nil {
			return fmt.Errorf("persisting issue link for %s#%d: %w", r.link.Repository, created.Number, err)
		}
		return nil
	})
	g.Go(func() error {
		att := Attachment{
			Title:    r.e.opts.AttachmentTitle,
			Subtitle: fmt.Sprintf("%s#%d", r.link.Repository, created.Number),
			URL:      created.URL,
		}
		if err := r.create(ctx, stepVisibility, "create attachment", created.URL, func(ctx context.Context) error {
			return r.src.CreateAttachment(ctx, issue.ID, att)
		}); err != nil {
			r.logger.Warn("back-reference attachment not created", "error", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		r.logger.Error("created issue is not linked", "issue_number", created.Number, "error", err)
		return failed("created %s#%d but could not link it", r.link.Repository, created.Number), fatal(stepVisibility, err)
	}
	r.issueLink = link
	r.created = true

	labels := replayLabels(ctx, r, created.Number)
	comments := replayComments(ctx, r, created.Number)
	out := applied("created %s#%d (%d labels, %d comments replayed)", r.link.Repository, created.Number, labels, comments)

	if issue.CycleID != "" {
		cycleOut, err := applyCycle(ctx, r, link, issue.CycleID)
		out.Message += "; milestone: " + cycleOut.Message
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// replayLabels applies the ticket's allow-listed labels in source order.
// Individual failures are logged and skipped.
func replayLabels(ctx context.Context, r *run, number int) int {
	count := 0
	for _, id := range r.ev.Issue.LabelIDs {
		if id == r.link.PublicLabelID {
			continue
		}
		name, err := r.labelName(ctx, stepVisibility, id)
		if err != nil {
			continue
		}
		if !r.e.allowed(name) {
			r.logger.Debug("label not mirrored", "label", name)
			continue
		}
		if err := r.addLabel(ctx, stepVisibility, number, Label{Name: name, Color: r.labelColor(id)}); err != nil {
			continue
		}
		count++
	}
	return count
}

// replayComments posts the ticket's existing comments in source order.
func replayComments(ctx context.Context, r *run, number int) int {
	var comments []models.CommentData
	err := r.do(ctx, stepVisibility, "list comments", r.ev.Issue.ID, func(ctx context.Context) error {
		var err error
		comments, err = r.src.IssueComments(ctx, r.ev.Issue.ID)
		return err
	})
	if err != nil {
		return 0
	}

	count := 0
	for i := range comments {
		c := &comments[i]
		if r.e.isSynthetic(c.ID) || r.e.isInternal(c.Body) {
			continue
		}
		body := r.transform(ctx, c.Body) + "\n\n" + commentFooter(c)
		if err := r.create(ctx, stepVisibility, "create comment", c.ID, func(ctx context.Context) error {
			return r.gh.CreateComment(ctx, number, body)
		}); err != nil {
			continue
		}
		count++
	}
	return count
}

// detach deletes the ticket's issue link. The GitHub issue itself stays.
func detach(ctx context.Context, r *run, reason string) (Outcome, error) {
	link, err := r.findIssueLink(ctx, r.ev.Issue.ID)
	if err != nil {
		return failed("issue link lookup failed"), err
	}
	if link == nil {
		return skipped(SkippedNoLink, "ticket %s is not synced", r.ev.Issue.Identifier), nil
	}
	if err := r.e.store.DeleteIssueLink(ctx, link.ID); err != nil {
		return failed("unlinking %s#%d failed", link.Repository, link.GitHubIssueNumber), fmt.Errorf("deleting issue link: %w", err)
	}
	r.issueLink = nil
	return applied("unlinked %s#%d (%s)", link.Repository, link.GitHubIssueNumber, reason), nil
}
