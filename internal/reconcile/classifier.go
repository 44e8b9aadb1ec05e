package reconcile

import (
	"context"
	"fmt"

	"ticketsync/internal/models"
)

// reconcileFunc reconciles one dimension of an event. A non-nil error aborts
// only that reconciler.
type reconcileFunc func(ctx context.Context, r *run) (Outcome, error)

type step struct {
	field     string
	reconcile reconcileFunc
}

// issueFields maps the updatedFrom keys of an issue update to their
// reconcilers, in the order they run. Fields absent from the delta are never
// touched.
var issueFields = []step{
	{models.FieldLabelIDs, reconcileLabels},
	{models.FieldTitle, reconcileTitle},
	{models.FieldDescription, reconcileDescription},
	{models.FieldCycleID, reconcileCycle},
	{models.FieldStateID, reconcileState},
	{models.FieldAssigneeID, reconcileAssignee},
	{models.FieldPriority, reconcilePriority},
	{models.FieldEstimate, reconcileEstimate},
}

// Names of the non-field steps.
const (
	stepVisibility = "visibility"
	stepComment    = "comment"
	stepCycle      = "cycle"
)

// classify picks the reconcilers for an event. When nothing applies it
// returns no steps and the reason.
func classify(ev *models.Event) ([]step, string) {
	switch {
	case ev.Entity == models.EntityIssue && ev.Issue == nil,
		ev.Entity == models.EntityComment && ev.Comment == nil,
		ev.Entity == models.EntityCycle && ev.Cycle == nil:
		return nil, fmt.Sprintf("%s %s event has no data", ev.Action, ev.Entity)
	}

	switch {
	case ev.Action == models.ActionCreate && ev.Entity == models.EntityIssue:
		return []step{{stepVisibility, reconcileCreate}}, ""

	case ev.Action == models.ActionCreate && ev.Entity == models.EntityComment:
		return []step{{stepComment, reconcileComment}}, ""

	case ev.Action == models.ActionUpdate && ev.Entity == models.EntityIssue:
		var steps []step
		for _, s := range issueFields {
			if ev.UpdatedFrom.Has(s.field) {
				steps = append(steps, s)
			}
		}
		if len(steps) == 0 {
			return nil, "no synced field changed"
		}
		return steps, ""

	case ev.Action == models.ActionUpdate && ev.Entity == models.EntityCycle:
		return []step{{stepCycle, reconcileCycleUpdate}}, ""

	case ev.Action == models.ActionRemove && ev.Entity == models.EntityIssue:
		return []step{{stepVisibility, reconcileRemove}}, ""
	}
	return nil, fmt.Sprintf("%s %s events are not synced", ev.Action, ev.Entity)
}
