package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/andywolf/milestonesync/internal/hierarchy"
	"github.com/andywolf/milestonesync/internal/ref"
	"github.com/andywolf/milestonesync/internal/report"
	"github.com/andywolf/milestonesync/internal/syncer"
	"github.com/andywolf/milestonesync/internal/tracker"
)

// Sync assigns the milestone's title to every sub-issue, at any depth, of
// the issues in the milestone.
func (c *Controller) Sync(ctx context.Context, ms ref.Milestone, sel Selection) error {
	c.printer.Printf("Source milestone: %s/milestone/%d", ms.Repo, ms.Number)

	m, err := c.client.GetMilestone(ctx, ms.Repo, ms.Number)
	if err != nil {
		return fmt.Errorf("failed to fetch milestone: %w", err)
	}
	c.printer.Printf("Milestone title: %s", m.Title)
	if c.dryRun {
		c.printer.DryRunBanner()
	}
	c.logInfo("run %s: syncing sub-issues of %s milestone %q", c.runID, ms.Repo, m.Title)

	roots, err := c.syncMilestone(ctx, ms.Repo, m, sel)
	if err != nil {
		return err
	}
	return c.summary(report.Summary{Mode: report.ModeSync, Issues: roots}, ctx.Err())
}

// syncMilestone collects the trees below the milestone's issues and converges
// them onto the milestone. It returns the number of roots processed.
func (c *Controller) syncMilestone(ctx context.Context, repo tracker.RepoRef, m tracker.MilestoneRef, sel Selection) (int, error) {
	issues, err := c.client.ListMilestoneIssues(ctx, repo, m, tracker.IssueFilter{State: tracker.StateAll})
	if err != nil {
		return 0, fmt.Errorf("failed to list issues of milestone %q: %w", m.Title, err)
	}
	if len(issues) == 0 {
		c.printer.Printf("No issues found in milestone.")
		return 0, nil
	}
	c.printer.Printf("Found %d root issues in milestone", len(issues))

	roots := sel.apply(issues)
	if len(roots) != len(issues) {
		c.printer.Printf("Limited to %d issue(s)", len(roots))
	}
	c.printer.Printf("")

	collected := c.collector.CollectAll(ctx, refs(roots))
	var tasks []syncer.Task
	owned := make(claims)
	for _, r := range collected {
		if r.Err == nil {
			tasks = append(tasks, owned.take(r.Forest, syncer.TasksFromForest(r.Forest, m.Title))...)
		}
	}

	results := c.executor(c.resolver).Run(ctx, tasks)
	c.recordResults(results)
	byRoot := make(map[tracker.IssueRef][]syncer.Result)
	for _, res := range results {
		byRoot[res.Task.Root] = append(byRoot[res.Task.Root], res)
	}

	for i, root := range roots {
		c.printRoot(root, collected[i], byRoot[root.Ref], nil)
	}
	return len(roots), nil
}

// printRoot writes the block of one root issue: extra lines first, then one
// line per sub-issue ordered by depth and descending number.
func (c *Controller) printRoot(root tracker.Issue, collected hierarchy.Result, results []syncer.Result, extra []string) {
	lines := []string{report.Rule, fmt.Sprintf("Processing #%d: %s", root.Ref.Number, root.Title), report.Rule}
	lines = append(lines, extra...)

	if collected.Err != nil && errors.Is(collected.Err, context.Canceled) {
		lines = append(lines, fmt.Sprintf("  %s not processed: interrupted", c.printer.Icon(report.IconUnknown)))
		c.printer.Lines(append(lines, ""))
		return
	}
	if collected.Err != nil {
		c.stats.CollectFailed.Add(1)
		c.logError("%v", collected.Err)
		lines = append(lines, fmt.Sprintf("  %s failed to collect sub-issues: %s", c.printer.Icon(report.IconFail), c.scrubber.Scrub(collected.Err.Error())))
		c.printer.Lines(append(lines, ""))
		return
	}

	f := collected.Forest
	c.stats.Anomalies.Add(int64(len(f.Anomalies)))
	c.stats.CollectFailed.Add(int64(len(f.Errors)))
	for _, a := range f.Anomalies {
		lines = append(lines, fmt.Sprintf("  %s %s", c.printer.Icon(report.IconWarn), a))
	}
	for _, fe := range f.Errors {
		lines = append(lines, fmt.Sprintf("  %s %s", c.printer.Icon(report.IconFail), c.scrubber.Scrub(fe.Error())))
	}

	if len(results) == 0 && f.Len() == 0 {
		lines = append(lines, "  (no sub-issues)")
	}

	tasks := make([]syncer.Task, len(results))
	byIssue := make(map[tracker.IssueRef]syncer.Result, len(results))
	for i, res := range results {
		tasks[i] = res.Task
		byIssue[res.Task.Issue] = res
	}
	syncer.SortForDisplay(tasks)
	for _, t := range tasks {
		lines = append(lines, c.resultLine(byIssue[t.Issue]))
	}
	c.printer.Lines(append(lines, ""))
}

func (c *Controller) resultLine(res syncer.Result) string {
	t := res.Task
	indent := strings.Repeat("  ", t.Depth+1)
	subject := issueLine(t.Issue, t.IssueTitle)
	current := "none"
	if t.CurrentMilestone != "" {
		current = fmt.Sprintf("'%s'", t.CurrentMilestone)
	}

	switch res.Outcome {
	case syncer.OutcomeSkipped:
		return fmt.Sprintf("%s%s %s (milestone already set)", indent, c.printer.Icon(report.IconOK), subject)
	case syncer.OutcomeUpdated:
		if c.dryRun {
			return fmt.Sprintf("%s%s %s (would change %s → '%s')", indent, c.printer.Icon(report.IconChange), subject, current, t.TargetMilestone)
		}
		return fmt.Sprintf("%s%s %s (changed %s → '%s')", indent, c.printer.Icon(report.IconOK), subject, current, t.TargetMilestone)
	case syncer.OutcomeMissingMilestone:
		return fmt.Sprintf("%s%s %s (milestone '%s' not found in repo)", indent, c.printer.Icon(report.IconWarn), subject, t.TargetMilestone)
	case syncer.OutcomeFailed:
		c.logError("%s: %v", t.Issue, res.Err)
		return fmt.Sprintf("%s%s %s (FAILED to update: %s)", indent, c.printer.Icon(report.IconFail), subject, c.scrubber.Scrub(fmt.Sprint(res.Err)))
	default:
		return fmt.Sprintf("%s%s %s (not processed: interrupted)", indent, c.printer.Icon(report.IconUnknown), subject)
	}
}
