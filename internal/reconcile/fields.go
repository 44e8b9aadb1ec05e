package reconcile

import (
	"context"

	"ticketsync/internal/models"
)

func reconcileTitle(ctx context.Context, r *run) (Outcome, error) {
	link, out, err := r.linkedIssue(ctx)
	if out != nil {
		return *out, err
	}
	title := r.e.issueTitle(r.ev.Issue)
	return patchIssue(ctx, r, link, models.FieldTitle, title, IssueRequest{Title: &title}, "title updated")
}

func reconcileDescription(ctx context.Context, r *run) (Outcome, error) {
	link, out, err := r.linkedIssue(ctx)
	if out != nil {
		return *out, err
	}
	body := r.e.issueBody(ctx, r, r.ev.Issue)
	return patchIssue(ctx, r, link, models.FieldDescription, len(body), IssueRequest{Body: &body}, "description updated")
}

// reconcileState maps the Linear workflow state onto open or closed. Done and
// canceled close the issue with different reasons.
func reconcileState(ctx context.Context, r *run) (Outcome, error) {
	link, out, err := r.linkedIssue(ctx)
	if out != nil {
		return *out, err
	}

	stateType := r.ev.Issue.StateType()
	if stateType == "" {
		return skipped(Skipped, "payload carries no state type"), nil
	}
	state, reason := githubState(stateType)
	req := IssueRequest{State: &state}
	if reason != "" {
		req.StateReason = &reason
	}
	msg := "issue " + state
	if reason != "" {
		msg += " as " + reason
	}
	return patchIssue(ctx, r, link, models.FieldStateID, stateType, req, msg)
}

// githubState returns the issue state and state reason for a Linear state type.
func githubState(stateType string) (state, reason string) {
	switch stateType {
	case models.StateTypeCompleted:
		return "closed", "completed"
	case models.StateTypeCanceled:
		return "closed", "not_planned"
	default:
		return "open", ""
	}
}

func patchIssue(ctx context.Context, r *run, link *models.IssueLink, field string, value any, req IssueRequest, msg string) (Outcome, error) {
	err := r.do(ctx, field, "patch issue", value, func(ctx context.Context) error {
		return r.gh.PatchIssue(ctx, link.GitHubIssueNumber, req)
	})
	if err != nil {
		return failed("updating %s#%d failed", link.Repository, link.GitHubIssueNumber), nil
	}
	r.touch(ctx, link)
	return applied("%s", msg), nil
}
