package reconcile

import (
	"context"
	"fmt"

	"ticketsync/internal/models"
)

// reconcilePriority swaps the priority label. Zero means no priority.
func reconcilePriority(ctx context.Context, r *run) (Outcome, error) {
	var old, cur *Label
	if n, ok := r.ev.UpdatedFrom.Int(models.FieldPriority); ok {
		if l, ok := priorityLabels[n]; ok {
			old = &l
		}
	}
	if l, ok := priorityLabels[r.ev.Issue.Priority]; ok {
		cur = &l
	}
	return swapLabel(ctx, r, models.FieldPriority, old, cur)
}

// reconcileEstimate swaps the "<n> points" label. A missing or zero estimate
// means none.
func reconcileEstimate(ctx context.Context, r *run) (Outcome, error) {
	var old, cur *Label
	if n, ok := r.ev.UpdatedFrom.Int(models.FieldEstimate); ok && n > 0 {
		l := estimateLabel(n)
		old = &l
	}
	if e := r.ev.Issue.Estimate; e != nil && *e > 0 {
		l := estimateLabel(*e)
		cur = &l
	}
	return swapLabel(ctx, r, models.FieldEstimate, old, cur)
}

// swapLabel removes the label of the old value, then applies the label of
// the new one. Removal is best effort.
func swapLabel(ctx context.Context, r *run, field string, old, cur *Label) (Outcome, error) {
	link, out, err := r.linkedIssue(ctx)
	if out != nil {
		return *out, err
	}
	if old != nil && cur != nil && old.Name == cur.Name {
		return skipped(SkippedAlreadySynced, "label %q unchanged", cur.Name), nil
	}

	msg := ""
	if old != nil {
		if err := r.do(ctx, field, "delete label", old.Name, func(ctx context.Context) error {
			return r.gh.DeleteLabel(ctx, link.GitHubIssueNumber, old.Name)
		}); err == nil {
			msg = fmt.Sprintf("-%s", old.Name)
		}
	}
	if cur == nil {
		r.touch(ctx, link)
		if msg == "" {
			return skipped(Skipped, "no %s label to apply", field), nil
		}
		return applied("label %s", msg), nil
	}

	if err := r.addLabel(ctx, field, link.GitHubIssueNumber, *cur); err != nil {
		return failed("applying %q failed", cur.Name), nil
	}
	r.touch(ctx, link)
	if msg != "" {
		msg += " "
	}
	return applied("label %s+%s", msg, cur.Name), nil
}
