package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ticketsync/internal/db"
	"ticketsync/internal/models"
)

// reconcileCycle mirrors a change of the ticket's cycle onto the issue's
// milestone.
func reconcileCycle(ctx context.Context, r *run) (Outcome, error) {
	link, out, err := r.linkedIssue(ctx)
	if out != nil {
		return *out, err
	}

	if r.ev.Issue.CycleID == "" {
		// The milestone itself stays; only the association goes.
		err := r.do(ctx, models.FieldCycleID, "clear milestone", nil, func(ctx context.Context) error {
			return r.gh.SetIssueMilestone(ctx, link.GitHubIssueNumber, nil)
		})
		if err != nil {
			return failed("clearing milestone of %s#%d failed", link.Repository, link.GitHubIssueNumber), nil
		}
		r.touch(ctx, link)
		return applied("milestone cleared"), nil
	}
	return applyCycle(ctx, r, link, r.ev.Issue.CycleID)
}

// applyCycle puts the issue into the milestone of cycleID, creating the
// milestone on first use. Failing to create the milestone is fatal; failing
// to assign it is not.
func applyCycle(ctx context.Context, r *run, link *models.IssueLink, cycleID string) (Outcome, error) {
	ml, err := r.e.store.FindMilestoneLink(ctx, cycleID, r.link.GitHubRepoID, r.teamID())
	switch {
	case errors.Is(err, db.ErrNotFound):
		var out *Outcome
		ml, out, err = createMilestone(ctx, r, cycleID)
		if out != nil {
			return *out, err
		}
	case err != nil:
		return failed("milestone link lookup failed"), fmt.Errorf("looking up milestone link: %w", err)
	}

	number := ml.MilestoneNumber
	err = r.do(ctx, models.FieldCycleID, "set milestone", number, func(ctx context.Context) error {
		return r.gh.SetIssueMilestone(ctx, link.GitHubIssueNumber, &number)
	})
	if err != nil {
		return failed("setting milestone %d on %s#%d failed", number, link.Repository, link.GitHubIssueNumber), nil
	}
	r.touch(ctx, link)
	return applied("milestone %d set", number), nil
}

// createMilestone creates and links the milestone for a cycle. A non-nil
// outcome ends the reconciler.
func createMilestone(ctx context.Context, r *run, cycleID string) (*models.MilestoneLink, *Outcome, error) {
	var cycle *models.CycleData
	err := r.do(ctx, models.FieldCycleID, "fetch cycle", cycleID, func(ctx context.Context) error {
		var err error
		cycle, err = r.src.Cycle(ctx, cycleID)
		return err
	})
	if err != nil {
		out := failed("fetching cycle %s failed", cycleID)
		return nil, &out, fatal(models.FieldCycleID, err)
	}

	// A cycle the bot created from a milestone carries the footer; making a
	// milestone from it again would loop.
	if strings.Contains(cycle.Description, SyncFooterMarker) {
		out := skipped(Skipped, "cycle %s originated from a milestone", cycleID)
		return nil, &out, nil
	}

	req := MilestoneRequest{
		Title:       milestoneTitle(cycle),
		State:       milestoneState(cycle, r.e.opts.Now()),
		Description: milestoneDescription(cycle),
		DueOn:       cycle.EndsAt,
	}
	var created *RemoteMilestone
	err = r.create(ctx, models.FieldCycleID, "create milestone", req.Title, func(ctx context.Context) error {
		var err error
		created, err = r.gh.CreateMilestone(ctx, req)
		return err
	})
	if err != nil {
		out := failed("creating milestone %q failed", req.Title)
		return nil, &out, fatal(models.FieldCycleID, err)
	}

	ml := &models.MilestoneLink{
		CycleID:         cycleID,
		GitHubRepoID:    r.link.GitHubRepoID,
		LinearTeamID:    r.teamID(),
		Repository:      r.link.Repository,
		MilestoneID:     created.ID,
		MilestoneNumber: created.Number,
		EndsAt:          cycle.EndsAt,
	}
	if err := r.e.store.CreateMilestoneLink(ctx, ml); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			// A concurrent event linked the cycle first; use its milestone.
			existing, findErr := r.e.store.FindMilestoneLink(ctx, cycleID, r.link.GitHubRepoID, r.teamID())
			if findErr == nil {
				r.logger.Warn("duplicate milestone created", "milestone_number", created.Number, "kept", existing.MilestoneNumber)
				return existing, nil, nil
			}
		}
		out := failed("linking milestone %q failed", req.Title)
		return nil, &out, fatal(models.FieldCycleID, fmt.Errorf("persisting milestone link: %w", err))
	}
	return ml, nil, nil
}

// reconcileCycleUpdate mirrors a cycle's name, dates and completion onto the
// milestones already created for it in this link's repository.
func reconcileCycleUpdate(ctx context.Context, r *run) (Outcome, error) {
	cycle := r.ev.Cycle
	if strings.Contains(cycle.Description, SyncFooterMarker) {
		return skipped(Skipped, "cycle %s originated from a milestone", cycle.ID), nil
	}

	links, err := r.e.store.FindMilestoneLinksByCycle(ctx, cycle.ID)
	if err != nil {
		return failed("milestone link lookup failed"), fmt.Errorf("looking up milestone links: %w", err)
	}

	req := MilestoneRequest{
		Title:       milestoneTitle(cycle),
		State:       milestoneState(cycle, r.e.opts.Now()),
		Description: milestoneDescription(cycle),
		DueOn:       cycle.EndsAt,
	}
	updated := 0
	for _, ml := range links {
		if ml.GitHubRepoID != r.link.GitHubRepoID {
			continue
		}
		number := ml.MilestoneNumber
		if err := r.do(ctx, stepCycle, "update milestone", number, func(ctx context.Context) error {
			return r.gh.UpdateMilestone(ctx, number, req)
		}); err != nil {
			continue
		}
		updated++
	}
	if updated == 0 {
		return skipped(SkippedNoLink, "no milestone updated for cycle %s", cycle.ID), nil
	}
	return applied("%d milestone(s) updated as %q", updated, req.Title), nil
}
