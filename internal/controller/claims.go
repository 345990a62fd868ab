package controller

import (
	"github.com/andywolf/milestonesync/internal/hierarchy"
	"github.com/andywolf/milestonesync/internal/syncer"
	"github.com/andywolf/milestonesync/internal/tracker"
)

// claims gives each issue to the first root tree that reaches it, so a
// sub-issue shared by several roots is written at most once per run. Roots
// are visited in selection order, which keeps the winner stable across reruns.
type claims map[tracker.IssueRef]syncer.Task

// take returns the tasks of f that no earlier root claimed. Every dropped task
// becomes an anomaly on f: a duplicate when the earlier root wants the same
// milestone, a conflict when it wants another one.
func (cl claims) take(f *hierarchy.Forest, tasks []syncer.Task) []syncer.Task {
	kept := tasks[:0]
	for _, t := range tasks {
		prev, ok := cl[t.Issue]
		if !ok {
			cl[t.Issue] = t
			kept = append(kept, t)
			continue
		}

		a := hierarchy.Anomaly{Kind: hierarchy.AnomalyDuplicate, Child: t.Issue, Depth: t.Depth, Owner: prev.Root}
		if n, ok := f.Get(t.Issue); ok {
			a.Parent = n.Parent
		}
		if prev.TargetMilestone != t.TargetMilestone {
			a.Kind = hierarchy.AnomalyConflict
			a.Milestone = prev.TargetMilestone
		}
		f.Anomalies = append(f.Anomalies, a)
	}
	return kept
}
