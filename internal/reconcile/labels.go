package reconcile

import (
	"context"
	"fmt"
	"strings"

	"ticketsync/internal/models"
)

// reconcileLabels handles a change of the ticket's label set. Gaining or
// losing the public label creates or detaches the GitHub issue; any other
// change is mirrored label by label.
func reconcileLabels(ctx context.Context, r *run) (Outcome, error) {
	issue := r.ev.Issue
	public := r.link.PublicLabelID
	prev := r.ev.UpdatedFrom.Strings(models.FieldLabelIDs)

	wasPublic := containsString(prev, public)
	isPublic := issue.HasLabel(public)
	switch {
	case !wasPublic && isPublic:
		return createCounterpart(ctx, r)
	case wasPublic && !isPublic:
		return detach(ctx, r, "public label removed")
	case !isPublic:
		return skipped(SkippedNotPublic, "ticket %s is not public", issue.Identifier), nil
	}

	removed := difference(prev, issue.LabelIDs)
	added := difference(issue.LabelIDs, prev)
	if len(removed) == 0 && len(added) == 0 {
		return skipped(Skipped, "label set unchanged"), nil
	}

	link, out, err := r.linkedIssue(ctx)
	if out != nil {
		return *out, err
	}

	var done, notes []string
	failures := 0
	for _, id := range removed {
		name, err := r.labelName(ctx, models.FieldLabelIDs, id)
		if err != nil {
			notes = append(notes, fmt.Sprintf("could not resolve removed label %s", id))
			failures++
			continue
		}
		if err := r.do(ctx, models.FieldLabelIDs, "delete label", name, func(ctx context.Context) error {
			return r.gh.DeleteLabel(ctx, link.GitHubIssueNumber, name)
		}); err != nil {
			notes = append(notes, fmt.Sprintf("removing %q failed", name))
			failures++
			continue
		}
		done = append(done, "-"+name)
	}
	for _, id := range added {
		name, err := r.labelName(ctx, models.FieldLabelIDs, id)
		if err != nil {
			notes = append(notes, fmt.Sprintf("could not resolve added label %s", id))
			failures++
			continue
		}
		if !r.e.allowed(name) {
			notes = append(notes, fmt.Sprintf("label %q is not on the allow list", name))
			continue
		}
		if err := r.addLabel(ctx, models.FieldLabelIDs, link.GitHubIssueNumber, Label{Name: name, Color: r.labelColor(id)}); err != nil {
			notes = append(notes, fmt.Sprintf("adding %q failed", name))
			failures++
			continue
		}
		done = append(done, "+"+name)
	}

	if len(done) == 0 {
		kind := Skipped
		if failures > 0 {
			kind = Failed
		}
		return Outcome{Kind: kind, Message: strings.Join(notes, ", ")}, nil
	}
	r.touch(ctx, link)
	msg := "labels " + strings.Join(done, " ")
	if len(notes) > 0 {
		msg += " (" + strings.Join(notes, ", ") + ")"
	}
	return applied("%s", msg), nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
