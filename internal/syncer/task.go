// Package syncer converges issues onto a target milestone.
package syncer

import (
	"context"
	"sort"
	"sync"

	"github.com/andywolf/milestonesync/internal/hierarchy"
	"github.com/andywolf/milestonesync/internal/tracker"
)

// Task asks for one issue to be assigned to TargetMilestone. CurrentMilestone
// is empty when the issue has no milestone.
type Task struct {
	Issue            tracker.IssueRef
	IssueTitle       string
	CurrentMilestone string
	TargetMilestone  string
	Depth            int
	Root             tracker.IssueRef
}

// TasksFromForest creates one task per collected sub-issue of f.
func TasksFromForest(f *hierarchy.Forest, target string) []Task {
	nodes := f.Flatten()
	tasks := make([]Task, 0, len(nodes))
	for _, n := range nodes {
		tasks = append(tasks, Task{
			Issue:            n.Issue.Ref,
			IssueTitle:       n.Issue.Title,
			CurrentMilestone: n.Issue.MilestoneTitle(),
			TargetMilestone:  target,
			Depth:            n.Depth,
			Root:             f.Root,
		})
	}
	return tasks
}

// SortForDisplay orders tasks by depth, then by descending issue number.
func SortForDisplay(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Depth != tasks[j].Depth {
			return tasks[i].Depth < tasks[j].Depth
		}
		return tasks[i].Issue.Number > tasks[j].Issue.Number
	})
}

// MilestoneIndex answers whether a repository has a milestone with a title.
type MilestoneIndex interface {
	Exists(ctx context.Context, repo tracker.RepoRef, title string) (tracker.MilestoneRef, bool, error)
}

// PresetIndex is a MilestoneIndex holding milestones known to exist, such as
// the ones a conversion run has just ensured.
type PresetIndex struct {
	mu         sync.RWMutex
	milestones map[tracker.RepoRef]map[string]tracker.MilestoneRef
}

// NewPresetIndex returns an empty index.
func NewPresetIndex() *PresetIndex {
	return &PresetIndex{milestones: make(map[tracker.RepoRef]map[string]tracker.MilestoneRef)}
}

// Add declares m present in its repository.
func (p *PresetIndex) Add(m tracker.MilestoneRef) {
	p.mu.Lock()
	defer p.mu.Unlock()
	repo := m.Repository()
	if p.milestones[repo] == nil {
		p.milestones[repo] = make(map[string]tracker.MilestoneRef)
	}
	p.milestones[repo][m.Title] = m
}

func (p *PresetIndex) Exists(ctx context.Context, repo tracker.RepoRef, title string) (tracker.MilestoneRef, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.milestones[repo][title]
	return m, ok, nil
}
