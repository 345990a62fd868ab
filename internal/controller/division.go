package controller

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/andywolf/milestonesync/internal/ref"
	"github.com/andywolf/milestonesync/internal/report"
	"github.com/andywolf/milestonesync/internal/tracker"
)

// DefaultDivisionLabel selects the issues Division turns into milestones.
const DefaultDivisionLabel = "Division"

// Division creates, in the source repository, one milestone per issue of the
// source milestone that carries label.
func (c *Controller) Division(ctx context.Context, ms ref.Milestone, label string, due time.Time) error {
	if label == "" {
		label = DefaultDivisionLabel
	}
	c.printer.Printf("Source milestone: %s/milestone/%d", ms.Repo, ms.Number)

	source, err := c.client.GetMilestone(ctx, ms.Repo, ms.Number)
	if err != nil {
		return fmt.Errorf("failed to fetch milestone: %w", err)
	}
	c.printer.Printf("Milestone title: %s", source.Title)
	c.printer.Printf("Label filter: %s", label)
	if c.dryRun {
		c.printer.DryRunBanner()
	}
	c.logInfo("run %s: creating milestones from %q issues of %s milestone %q", c.runID, label, ms.Repo, source.Title)

	issues, err := c.client.ListMilestoneIssues(ctx, ms.Repo, source, tracker.IssueFilter{State: tracker.StateAll, Labels: []string{label}})
	if err != nil {
		return fmt.Errorf("failed to list issues of milestone %q: %w", source.Title, err)
	}
	if len(issues) == 0 {
		c.printer.Printf("No issues with label %q found in milestone.", label)
		return c.summary(report.Summary{Mode: report.ModeDivision}, ctx.Err())
	}
	sort.Slice(issues, func(i, j int) bool { return issues[i].Ref.Number > issues[j].Ref.Number })
	c.printer.Printf("Found %d issue(s) with label %q", len(issues), label)
	c.printer.Printf("")

	// Issues sharing a title share one milestone; the first (highest number) creates it.
	var keys []milestoneKey
	wanted := make(map[milestoneKey]tracker.NewMilestone)
	firstOf := make(map[string]int)
	for _, issue := range issues {
		k := milestoneKey{repo: ms.Repo, title: issue.Title}
		if _, ok := wanted[k]; ok {
			continue
		}
		d := due
		wanted[k] = tracker.NewMilestone{Title: issue.Title, Description: issue.Body, DueOn: &d}
		keys = append(keys, k)
		firstOf[issue.Title] = issue.Ref.Number
	}
	ensured := c.ensureAll(ctx, keys, wanted)

	lines := make([]string, 0, len(issues))
	for _, issue := range issues {
		subject := fmt.Sprintf("#%d: %s", issue.Ref.Number, tracker.Truncate(issue.Title, 50))
		r := ensured[milestoneKey{repo: ms.Repo, title: issue.Title}]
		switch {
		case firstOf[issue.Title] != issue.Ref.Number:
			lines = append(lines, fmt.Sprintf("%s %s (same title as #%d)", c.printer.Icon(report.IconExists), subject, firstOf[issue.Title]))
		case r.err != nil && errors.Is(r.err, context.Canceled):
			lines = append(lines, fmt.Sprintf("%s %s (not processed: interrupted)", c.printer.Icon(report.IconUnknown), subject))
		case r.status == statusCreated:
			lines = append(lines, fmt.Sprintf("%s %s (created milestone #%d)", c.printer.Icon(report.IconOK), subject, r.milestone.Number))
		case r.status == statusWouldCreate:
			lines = append(lines, fmt.Sprintf("%s %s (would create)", c.printer.Icon(report.IconChange), subject))
		case r.status == statusExists:
			lines = append(lines, fmt.Sprintf("%s %s (already exists: #%d)", c.printer.Icon(report.IconExists), subject, r.milestone.Number))
		default:
			lines = append(lines, fmt.Sprintf("%s %s (FAILED: %s)", c.printer.Icon(report.IconFail), subject, c.scrubber.Scrub(fmt.Sprint(r.err))))
		}
	}
	c.printer.Lines(lines)

	return c.summary(report.Summary{Mode: report.ModeDivision, Issues: len(issues)}, ctx.Err())
}
