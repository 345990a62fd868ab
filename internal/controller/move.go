package controller

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/andywolf/milestonesync/internal/journal"
	"github.com/andywolf/milestonesync/internal/report"
	"github.com/andywolf/milestonesync/internal/tracker"
)

// MoveSubIssues re-parents every direct sub-issue of src under dst and then
// adds labels to each moved issue.
func (c *Controller) MoveSubIssues(ctx context.Context, src, dst tracker.IssueRef, labels []string) error {
	if src == dst {
		return fmt.Errorf("source and target are the same issue: %s", src)
	}

	parent, err := c.client.GetIssue(ctx, src)
	if err != nil {
		return fmt.Errorf("failed to fetch source issue: %w", err)
	}
	target, err := c.client.GetIssue(ctx, dst)
	if err != nil {
		return fmt.Errorf("failed to fetch target issue: %w", err)
	}
	c.printer.Printf("Source: %s", issueLine(parent.Ref, parent.Title))
	c.printer.Printf("Target: %s", issueLine(target.Ref, target.Title))
	if len(labels) > 0 {
		c.printer.Printf("Labels: %s", strings.Join(labels, ", "))
	}
	if c.dryRun {
		c.printer.DryRunBanner()
	}

	children, err := c.client.GetSubIssues(ctx, src)
	if err != nil {
		return fmt.Errorf("failed to fetch sub-issues of %s: %w", src, err)
	}
	c.logInfo("run %s: moving %d sub-issue(s) from %s to %s", c.runID, len(children), src, dst)
	c.printer.Printf("Found %d sub-issue(s)", len(children))
	c.printer.Printf("")

	if c.dryRun {
		lines := make([]string, 0, len(children))
		for _, child := range children {
			c.stats.Checked.Add(1)
			c.stats.Updated.Add(1)
			c.record(journal.Entry{Action: journal.ActionMoveSubIssue, Issue: child.Ref.String(), From: src.String(), To: dst.String(), Outcome: "would move"})
			lines = append(lines, fmt.Sprintf("%s %s (would move to #%d)", c.printer.Icon(report.IconChange), issueLine(child.Ref, child.Title), dst.Number))
		}
		c.printer.Lines(lines)
		return c.summary(report.Summary{Mode: report.ModeMove}, ctx.Err())
	}

	lines := make([]string, len(children))
	var labelFailures atomic.Int64
	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, child := range children {
		i, child := i, child
		subject := issueLine(child.Ref, child.Title)
		if ctx.Err() != nil {
			lines[i] = fmt.Sprintf("%s %s (not processed: interrupted)", c.printer.Icon(report.IconUnknown), subject)
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				lines[i] = fmt.Sprintf("%s %s (not processed: interrupted)", c.printer.Icon(report.IconUnknown), subject)
				return nil
			}
			c.stats.Checked.Add(1)

			if err := c.client.RemoveSubIssue(ctx, parent, child); err != nil {
				c.stats.Failed.Add(1)
				c.logError("failed to remove %s from %s: %v", child.Ref, src, err)
				c.record(journal.Entry{Action: journal.ActionMoveSubIssue, Issue: child.Ref.String(), From: src.String(), To: dst.String(), Outcome: "failed", Error: err.Error()})
				lines[i] = fmt.Sprintf("%s %s (FAILED to remove: %s)", c.printer.Icon(report.IconFail), subject, c.scrubber.Scrub(err.Error()))
				return nil
			}
			if err := c.client.AddSubIssue(ctx, target, child); err != nil {
				c.stats.Failed.Add(1)
				c.logError("removed %s from %s but failed to add it to %s: %v", child.Ref, src, dst, err)
				c.record(journal.Entry{Action: journal.ActionMoveSubIssue, Issue: child.Ref.String(), From: src.String(), To: dst.String(), Outcome: "removed", Error: err.Error()})
				lines[i] = fmt.Sprintf("%s %s (removed from source, FAILED to add: %s)", c.printer.Icon(report.IconFail), subject, c.scrubber.Scrub(err.Error()))
				return nil
			}
			c.stats.Updated.Add(1)
			c.record(journal.Entry{Action: journal.ActionMoveSubIssue, Issue: child.Ref.String(), From: src.String(), To: dst.String(), Outcome: "moved"})

			var failed []string
			for _, label := range labels {
				if err := c.client.AddLabel(ctx, child.Ref, label); err != nil {
					labelFailures.Add(1)
					c.logWarning("failed to add label %q to %s: %v", label, child.Ref, err)
					c.record(journal.Entry{Action: journal.ActionAddLabel, Issue: child.Ref.String(), To: label, Outcome: "failed", Error: err.Error()})
					failed = append(failed, label)
					continue
				}
				c.record(journal.Entry{Action: journal.ActionAddLabel, Issue: child.Ref.String(), To: label, Outcome: "added"})
			}
			if len(failed) > 0 {
				lines[i] = fmt.Sprintf("%s %s (moved; label(s) not added: %s)", c.printer.Icon(report.IconWarn), subject, strings.Join(failed, ", "))
				return nil
			}
			lines[i] = fmt.Sprintf("%s %s (moved)", c.printer.Icon(report.IconOK), subject)
			return nil
		})
	}
	_ = g.Wait()
	c.printer.Lines(lines)

	s := report.Summary{Mode: report.ModeMove}
	if n := labelFailures.Load(); n > 0 {
		s.Extra = append(s.Extra, report.Line{Label: "Label failures", Value: n})
	}
	return c.summary(s, ctx.Err())
}
