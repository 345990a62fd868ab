package syncer

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/andywolf/milestonesync/internal/report"
	"github.com/andywolf/milestonesync/internal/tracker"
)

// Outcome is the classification of one executed task.
type Outcome string

const (
	OutcomeSkipped          Outcome = "skipped"
	OutcomeUpdated          Outcome = "updated"
	OutcomeMissingMilestone Outcome = "missing_milestone"
	OutcomeFailed           Outcome = "failed"
	// OutcomeCancelled is given to tasks not started before the run was interrupted.
	OutcomeCancelled Outcome = "cancelled"
)

// Result records what happened to a task.
type Result struct {
	Task    Task
	Outcome Outcome
	Err     error
}

// DefaultWorkers is the pool size used when Workers is not set.
const DefaultWorkers = 10

// Executor applies tasks through Client. Milestones are looked up in Index, in
// the issue's own repository. Stats may be shared between executors.
type Executor struct {
	Client  tracker.Client
	Index   MilestoneIndex
	DryRun  bool
	Stats   *report.Stats
	Workers int
}

// Execute converges one task. It never returns an error: failures are
// reported on the Result and counted.
func (e *Executor) Execute(ctx context.Context, task Task) Result {
	if err := ctx.Err(); err != nil {
		return Result{Task: task, Outcome: OutcomeCancelled, Err: err}
	}
	e.Stats.Checked.Add(1)

	if task.CurrentMilestone == task.TargetMilestone {
		e.Stats.Skipped.Add(1)
		return Result{Task: task, Outcome: OutcomeSkipped}
	}

	m, ok, err := e.Index.Exists(ctx, task.Issue.Repository(), task.TargetMilestone)
	if err != nil {
		e.Stats.Failed.Add(1)
		return Result{Task: task, Outcome: OutcomeFailed, Err: err}
	}
	if !ok {
		e.Stats.MissingMilestone.Add(1)
		return Result{Task: task, Outcome: OutcomeMissingMilestone}
	}

	if !e.DryRun {
		if err := e.Client.SetIssueMilestone(ctx, task.Issue, m); err != nil {
			e.Stats.Failed.Add(1)
			return Result{Task: task, Outcome: OutcomeFailed, Err: fmt.Errorf("failed to set milestone on %s: %w", task.Issue, err)}
		}
	}
	e.Stats.Updated.Add(1)
	return Result{Task: task, Outcome: OutcomeUpdated}
}

// Run executes tasks on a bounded pool. Results are in task order. A failing
// task does not stop its siblings; once ctx is cancelled the remaining tasks
// are marked cancelled without any remote call.
func (e *Executor) Run(ctx context.Context, tasks []Task) []Result {
	workers := e.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	results := make([]Result, len(tasks))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, task := range tasks {
		i, task := i, task
		if err := ctx.Err(); err != nil {
			results[i] = Result{Task: task, Outcome: OutcomeCancelled, Err: err}
			continue
		}
		g.Go(func() error {
			results[i] = e.Execute(ctx, task)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Counts tallies results by outcome.
func Counts(results []Result) map[Outcome]int {
	out := make(map[Outcome]int)
	for _, r := range results {
		out[r.Outcome]++
	}
	return out
}
