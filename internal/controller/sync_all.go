package controller

import (
	"context"
	"fmt"
	"sort"

	"github.com/andywolf/milestonesync/internal/report"
	"github.com/andywolf/milestonesync/internal/tracker"
)

// MilestoneNotFoundError is returned by SyncAll when the requested milestone
// title is not among the repository's milestones.
type MilestoneNotFoundError struct {
	Repo  tracker.RepoRef
	Title string
	State string
}

func (e *MilestoneNotFoundError) Error() string {
	return fmt.Sprintf("milestone %q not found in %s (state: %s)", e.Title, e.Repo, e.State)
}

// SyncAll runs Sync for every milestone of repo in the given state, or only
// for the milestone titled only when it is set.
func (c *Controller) SyncAll(ctx context.Context, repo tracker.RepoRef, state, only string) error {
	c.printer.Printf("Repository: %s", repo)

	milestones, err := c.client.ListMilestones(ctx, repo, state)
	if err != nil {
		return fmt.Errorf("failed to list milestones of %s: %w", repo, err)
	}
	if only != "" {
		var matched []tracker.MilestoneRef
		for _, m := range milestones {
			if m.Title == only {
				matched = append(matched, m)
			}
		}
		if len(matched) == 0 {
			return &MilestoneNotFoundError{Repo: repo, Title: only, State: state}
		}
		milestones = matched
	}
	sort.Slice(milestones, func(i, j int) bool { return milestones[i].Number < milestones[j].Number })

	c.printer.Printf("Found %d milestone(s) (state: %s)", len(milestones), state)
	if c.dryRun {
		c.printer.DryRunBanner()
	}
	c.logInfo("run %s: syncing %d milestone(s) of %s", c.runID, len(milestones), repo)

	processed, failed := 0, 0
	for _, m := range milestones {
		if ctx.Err() != nil {
			break
		}
		c.printer.Printf("")
		c.printer.Header("Milestone: %s (#%d)", m.Title, m.Number)
		if _, err := c.syncMilestone(ctx, repo, m, Selection{}); err != nil {
			c.logError("%v", err)
			c.printer.Printf("%s %s", c.printer.Icon(report.IconFail), c.scrubber.Scrub(err.Error()))
			failed++
			continue
		}
		processed++
	}

	s := report.Summary{Title: "FINAL SUMMARY", Mode: report.ModeSync, Milestones: processed}
	if failed > 0 {
		s.Extra = append(s.Extra, report.Line{Label: "Milestones failed", Value: int64(failed)})
	}
	return c.summary(s, ctx.Err())
}
