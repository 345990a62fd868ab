package controller

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/andywolf/milestonesync/internal/journal"
	"github.com/andywolf/milestonesync/internal/ref"
	"github.com/andywolf/milestonesync/internal/report"
	"github.com/andywolf/milestonesync/internal/routing"
	"github.com/andywolf/milestonesync/internal/syncer"
	"github.com/andywolf/milestonesync/internal/tracker"
)

// ConvertOptions configures Convert.
type ConvertOptions struct {
	// Label restricts the source issues; empty means every issue of the milestone.
	Label string
	// DueDate is stamped on created milestones.
	DueDate time.Time
	// Router places milestones for issues without sub-issues.
	Router *routing.Router
	// Recursive re-points the whole descendant forest instead of the direct sub-issues.
	Recursive bool
	Selection Selection
}

type milestoneKey struct {
	repo  tracker.RepoRef
	title string
}

type ensureResult struct {
	milestone tracker.MilestoneRef
	status    string
	err       error
}

const (
	statusCreated     = "created"
	statusWouldCreate = "would create"
	statusExists      = "exists"
	statusFailed      = "failed"
)

// Convert turns each issue of the source milestone into a milestone of the same
// title in every repository hosting its sub-issues, then assigns the
// sub-issues to it. Issues without sub-issues are placed by the router.
func (c *Controller) Convert(ctx context.Context, ms ref.Milestone, opts ConvertOptions) error {
	c.printer.Printf("Source milestone: %s/milestone/%d", ms.Repo, ms.Number)

	source, err := c.client.GetMilestone(ctx, ms.Repo, ms.Number)
	if err != nil {
		return fmt.Errorf("failed to fetch milestone: %w", err)
	}
	c.printer.Printf("Milestone title: %s", source.Title)
	if opts.Router.IsConfigured() {
		c.printer.Printf("Routes: %s", opts.Router.Table())
	}
	if c.dryRun {
		c.printer.DryRunBanner()
	}
	c.logInfo("run %s: converting issues of %s milestone %q", c.runID, ms.Repo, source.Title)

	filter := tracker.IssueFilter{State: tracker.StateAll}
	if opts.Label != "" {
		filter.Labels = []string{opts.Label}
	}
	issues, err := c.client.ListMilestoneIssues(ctx, ms.Repo, source, filter)
	if err != nil {
		return fmt.Errorf("failed to list issues of milestone %q: %w", source.Title, err)
	}
	roots := opts.Selection.apply(issues)
	c.printer.Printf("Found %d issue(s) to convert", len(roots))
	c.printer.Printf("")

	collector := c.collector
	if !opts.Recursive {
		collector = collector.DirectOnly()
	}
	collected := collector.CollectAll(ctx, refs(roots))

	// Decide target repositories per root and the distinct milestones to ensure.
	targets := make([][]tracker.RepoRef, len(roots))
	decisions := make([]routing.Decision, len(roots))
	var keys []milestoneKey
	wanted := make(map[milestoneKey]tracker.NewMilestone)
	for i, root := range roots {
		if collected[i].Err != nil {
			continue
		}
		repos := collected[i].Forest.Repositories()
		if len(repos) == 0 {
			decisions[i] = opts.Router.Resolve(root.Title)
			if !decisions[i].Resolved() {
				c.stats.Unrouted.Add(1)
				c.logWarning("no route for %s %q; skipped", root.Ref, root.Title)
				continue
			}
			repos = decisions[i].Targets
		}
		targets[i] = repos
		for _, repo := range repos {
			k := milestoneKey{repo: repo, title: root.Title}
			if _, ok := wanted[k]; ok {
				continue
			}
			due := opts.DueDate
			wanted[k] = tracker.NewMilestone{Title: root.Title, Description: root.Body, DueOn: &due}
			keys = append(keys, k)
		}
	}

	ensured := c.ensureAll(ctx, keys, wanted)
	preset := syncer.NewPresetIndex()
	for _, r := range ensured {
		if r.err == nil {
			preset.Add(r.milestone)
		}
	}

	// Tasks whose milestone could not be ensured fail without reaching the executor.
	var tasks []syncer.Task
	var blocked []syncer.Result
	owned := make(claims)
	for i, root := range roots {
		if collected[i].Err != nil || targets[i] == nil {
			continue
		}
		f := collected[i].Forest
		for _, t := range owned.take(f, syncer.TasksFromForest(f, root.Title)) {
			r, ok := ensured[milestoneKey{repo: t.Issue.Repository(), title: t.TargetMilestone}]
			if !ok || r.err != nil {
				c.stats.Checked.Add(1)
				c.stats.Failed.Add(1)
				blocked = append(blocked, syncer.Result{Task: t, Outcome: syncer.OutcomeFailed, Err: fmt.Errorf("milestone %q unavailable in %s", t.TargetMilestone, t.Issue.Repository())})
				continue
			}
			tasks = append(tasks, t)
		}
	}
	results := append(c.executor(preset).Run(ctx, tasks), blocked...)
	c.recordResults(results)

	byRoot := make(map[tracker.IssueRef][]syncer.Result)
	for _, res := range results {
		byRoot[res.Task.Root] = append(byRoot[res.Task.Root], res)
	}
	for i, root := range roots {
		var extra []string
		if collected[i].Err == nil {
			extra = c.convertLines(root, decisions[i], targets[i], ensured)
		}
		c.printRoot(root, collected[i], byRoot[root.Ref], extra)
	}

	return c.summary(report.Summary{Mode: report.ModeConvert, Issues: len(roots)}, ctx.Err())
}

// ensureAll creates (or, in dry run, looks up) each distinct milestone once.
func (c *Controller) ensureAll(ctx context.Context, keys []milestoneKey, wanted map[milestoneKey]tracker.NewMilestone) map[milestoneKey]ensureResult {
	results := make([]ensureResult, len(keys))

	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, k := range keys {
		i, k := i, k
		g.Go(func() error {
			results[i] = c.ensure(ctx, k.repo, wanted[k])
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[milestoneKey]ensureResult, len(keys))
	for i, k := range keys {
		out[k] = results[i]
	}
	return out
}

// ensure runs ensureMilestone and journals the outcome. Nothing is attempted
// or recorded once ctx is done.
func (c *Controller) ensure(ctx context.Context, repo tracker.RepoRef, nm tracker.NewMilestone) ensureResult {
	if err := ctx.Err(); err != nil {
		return ensureResult{status: statusFailed, err: err}
	}
	r := c.ensureMilestone(ctx, repo, nm)
	if r.status != statusExists {
		e := journal.Entry{Action: journal.ActionCreateMilestone, Repo: repo.String(), To: nm.Title, Outcome: r.status}
		if r.err != nil {
			e.Error = r.err.Error()
		}
		c.record(e)
	}
	return r
}

func (c *Controller) ensureMilestone(ctx context.Context, repo tracker.RepoRef, nm tracker.NewMilestone) ensureResult {
	if c.dryRun {
		m, ok, err := c.resolver.Lookup(ctx, repo, nm.Title)
		switch {
		case err != nil:
			c.stats.CreateFailed.Add(1)
			c.logError("%v", err)
			return ensureResult{status: statusFailed, err: err}
		case ok:
			c.stats.Existing.Add(1)
			return ensureResult{milestone: m, status: statusExists}
		}
		c.stats.Created.Add(1)
		return ensureResult{
			milestone: tracker.MilestoneRef{Owner: repo.Owner, Repo: repo.Name, Title: nm.Title, DueOn: nm.DueOn},
			status:    statusWouldCreate,
		}
	}

	m, created, err := c.resolver.Ensure(ctx, repo, nm)
	if err != nil {
		c.stats.CreateFailed.Add(1)
		c.logError("failed to create milestone %q in %s: %v", nm.Title, repo, err)
		return ensureResult{status: statusFailed, err: err}
	}
	if created {
		c.stats.Created.Add(1)
		c.logInfo("created milestone %q in %s (#%d)", m.Title, repo, m.Number)
		return ensureResult{milestone: m, status: statusCreated}
	}
	c.stats.Existing.Add(1)
	return ensureResult{milestone: m, status: statusExists}
}

// convertLines describes where the milestone of root was placed.
func (c *Controller) convertLines(root tracker.Issue, d routing.Decision, targets []tracker.RepoRef, ensured map[milestoneKey]ensureResult) []string {
	if targets == nil {
		return []string{fmt.Sprintf("  %s no sub-issues and no route matches %q; skipped", c.printer.Icon(report.IconWarn), tracker.Truncate(root.Title, 50))}
	}

	var lines []string
	switch d.Reason {
	case routing.ReasonRoute:
		lines = append(lines, fmt.Sprintf("  no sub-issues; routed by prefix %q", d.Prefix))
	case routing.ReasonFallback:
		lines = append(lines, "  no sub-issues; using target repositories")
	}
	for _, repo := range targets {
		r := ensured[milestoneKey{repo: repo, title: root.Title}]
		switch r.status {
		case statusCreated:
			lines = append(lines, fmt.Sprintf("  %s created milestone #%d in %s", c.printer.Icon(report.IconOK), r.milestone.Number, repo))
		case statusWouldCreate:
			lines = append(lines, fmt.Sprintf("  %s would create milestone in %s", c.printer.Icon(report.IconChange), repo))
		case statusExists:
			lines = append(lines, fmt.Sprintf("  %s milestone exists in %s (#%d)", c.printer.Icon(report.IconExists), repo, r.milestone.Number))
		default:
			lines = append(lines, fmt.Sprintf("  %s failed to create milestone in %s: %s", c.printer.Icon(report.IconFail), repo, c.scrubber.Scrub(fmt.Sprint(r.err))))
		}
	}
	return lines
}
