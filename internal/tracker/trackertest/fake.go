// Package trackertest provides an in-memory tracker.Client for tests.
package trackertest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/andywolf/milestonesync/internal/tracker"
)

// Call records one invocation of a Fake method.
type Call struct {
	Op    string
	Issue tracker.IssueRef
	Repo  tracker.RepoRef
	Arg   string
}

// Fake is a concurrency-safe in-memory tracker. Milestone titles are unique per
// repository, mirroring the server's "already_exists" validation.
type Fake struct {
	mu         sync.Mutex
	milestones map[tracker.RepoRef][]tracker.MilestoneRef
	issues     map[tracker.IssueRef]*tracker.Issue
	children   map[tracker.IssueRef][]tracker.IssueRef
	failures   map[string]error
	calls      []Call
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		milestones: make(map[tracker.RepoRef][]tracker.MilestoneRef),
		issues:     make(map[tracker.IssueRef]*tracker.Issue),
		children:   make(map[tracker.IssueRef][]tracker.IssueRef),
		failures:   make(map[string]error),
	}
}

// Ref is shorthand for building an IssueRef.
func Ref(repo string, number int) tracker.IssueRef {
	owner, name, _ := strings.Cut(repo, "/")
	return tracker.IssueRef{Owner: owner, Repo: name, Number: number}
}

// Repo is shorthand for building a RepoRef.
func Repo(repo string) tracker.RepoRef {
	owner, name, _ := strings.Cut(repo, "/")
	return tracker.RepoRef{Owner: owner, Name: name}
}

// AddMilestone registers a milestone and returns it.
func (f *Fake) AddMilestone(repo, title string) tracker.MilestoneRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addMilestoneLocked(Repo(repo), tracker.NewMilestone{Title: title}, true)
}

// AddDuplicateMilestone registers a milestone even if the title is taken.
func (f *Fake) AddDuplicateMilestone(repo, title string) tracker.MilestoneRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addMilestoneLocked(Repo(repo), tracker.NewMilestone{Title: title}, false)
}

func (f *Fake) addMilestoneLocked(repo tracker.RepoRef, nm tracker.NewMilestone, unique bool) tracker.MilestoneRef {
	if unique {
		for _, m := range f.milestones[repo] {
			if m.Title == nm.Title {
				return m
			}
		}
	}
	m := tracker.MilestoneRef{
		Owner:       repo.Owner,
		Repo:        repo.Name,
		Number:      len(f.milestones[repo]) + 1,
		Title:       nm.Title,
		Description: nm.Description,
		DueOn:       nm.DueOn,
		State:       tracker.StateOpen,
		URL:         fmt.Sprintf("https://github.com/%s/milestone/%d", repo, len(f.milestones[repo])+1),
	}
	f.milestones[repo] = append(f.milestones[repo], m)
	return m
}

// AddIssue registers an issue, optionally assigned to a milestone title in its repository.
func (f *Fake) AddIssue(ref tracker.IssueRef, title, milestone string, labels ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue := &tracker.Issue{
		Ref:    ref,
		NodeID: fmt.Sprintf("I_%s_%s_%d", ref.Owner, ref.Repo, ref.Number),
		Title:  title,
		Body:   "body of " + title,
		Labels: labels,
	}
	if milestone != "" {
		m := f.addMilestoneLocked(ref.Repository(), tracker.NewMilestone{Title: milestone}, true)
		issue.Milestone = &m
	}
	f.issues[ref] = issue
}

// Link records child as a sub-issue of parent.
func (f *Fake) Link(parent, child tracker.IssueRef) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.children[parent] = append(f.children[parent], child)
}

// FailOn makes op fail for key. Keys are issue refs ("org/repo#3") or repositories
// ("org/repo"); op names match the Call.Op values.
func (f *Fake) FailOn(op, key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op+" "+key] = err
}

// Calls returns a copy of the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns how many times op was invoked.
func (f *Fake) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Milestones returns the milestones of repo sorted by number.
func (f *Fake) Milestones(repo string) []tracker.MilestoneRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]tracker.MilestoneRef(nil), f.milestones[Repo(repo)]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// MilestoneOf returns the milestone title currently assigned to ref.
func (f *Fake) MilestoneOf(ref tracker.IssueRef) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if issue, ok := f.issues[ref]; ok {
		return issue.MilestoneTitle()
	}
	return ""
}

// Children returns the sub-issues currently linked to parent.
func (f *Fake) Children(parent tracker.IssueRef) []tracker.IssueRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tracker.IssueRef(nil), f.children[parent]...)
}

// Labels returns the labels of ref.
func (f *Fake) Labels(ref tracker.IssueRef) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if issue, ok := f.issues[ref]; ok {
		return append([]string(nil), issue.Labels...)
	}
	return nil
}

func (f *Fake) record(op string, c Call, key string) error {
	c.Op = op
	f.calls = append(f.calls, c)
	if err, ok := f.failures[op+" "+key]; ok {
		return tracker.NewRemoteError(op, key, err)
	}
	return nil
}

func (f *Fake) GetMilestone(ctx context.Context, repo tracker.RepoRef, number int) (tracker.MilestoneRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("get-milestone", Call{Repo: repo}, repo.String()); err != nil {
		return tracker.MilestoneRef{}, err
	}
	for _, m := range f.milestones[repo] {
		if m.Number == number {
			return m, nil
		}
	}
	return tracker.MilestoneRef{}, tracker.NewRemoteError("get-milestone", fmt.Sprintf("%s milestone %d", repo, number), tracker.ErrNotFound)
}

func (f *Fake) ListMilestoneIssues(ctx context.Context, repo tracker.RepoRef, milestone tracker.MilestoneRef, filter tracker.IssueFilter) ([]tracker.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("list-issues", Call{Repo: repo, Arg: milestone.Title}, repo.String()); err != nil {
		return nil, err
	}
	var out []tracker.Issue
	for ref, issue := range f.issues {
		if ref.Repository() != repo || issue.MilestoneTitle() != milestone.Title {
			continue
		}
		matched := true
		for _, l := range filter.Labels {
			if !issue.HasLabel(l) {
				matched = false
			}
		}
		if matched {
			out = append(out, *issue)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref.Number > out[j].Ref.Number })
	return out, nil
}

func (f *Fake) ListMilestones(ctx context.Context, repo tracker.RepoRef, state string) ([]tracker.MilestoneRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("list-milestones", Call{Repo: repo, Arg: state}, repo.String()); err != nil {
		return nil, err
	}
	var out []tracker.MilestoneRef
	for _, m := range f.milestones[repo] {
		if state == tracker.StateAll || state == "" || m.State == state {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *Fake) GetSubIssues(ctx context.Context, issue tracker.IssueRef) ([]tracker.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("sub-issues", Call{Issue: issue}, issue.String()); err != nil {
		return nil, err
	}
	var out []tracker.Issue
	for _, child := range f.children[issue] {
		if c, ok := f.issues[child]; ok {
			out = append(out, *c)
		} else {
			out = append(out, tracker.Issue{Ref: child, Title: child.String()})
		}
	}
	return out, nil
}

func (f *Fake) CreateMilestone(ctx context.Context, repo tracker.RepoRef, nm tracker.NewMilestone) (tracker.MilestoneRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("create-milestone", Call{Repo: repo, Arg: nm.Title}, repo.String()); err != nil {
		return tracker.MilestoneRef{}, err
	}
	for _, m := range f.milestones[repo] {
		if m.Title == nm.Title {
			return tracker.MilestoneRef{}, tracker.NewRemoteError("create-milestone", repo.String(), tracker.ErrMilestoneExists)
		}
	}
	return f.addMilestoneLocked(repo, nm, false), nil
}

func (f *Fake) SetIssueMilestone(ctx context.Context, ref tracker.IssueRef, milestone tracker.MilestoneRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("set-milestone", Call{Issue: ref, Arg: milestone.Title}, ref.String()); err != nil {
		return err
	}
	issue, ok := f.issues[ref]
	if !ok {
		return tracker.NewRemoteError("set-milestone", ref.String(), tracker.ErrNotFound)
	}
	for _, m := range f.milestones[ref.Repository()] {
		if m.Title == milestone.Title {
			m := m
			issue.Milestone = &m
			return nil
		}
	}
	return tracker.NewRemoteError("set-milestone", "milestone "+milestone.Title, tracker.ErrNotFound)
}

func (f *Fake) GetIssue(ctx context.Context, ref tracker.IssueRef) (tracker.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("get-issue", Call{Issue: ref}, ref.String()); err != nil {
		return tracker.Issue{}, err
	}
	issue, ok := f.issues[ref]
	if !ok {
		return tracker.Issue{}, tracker.NewRemoteError("get-issue", ref.String(), tracker.ErrNotFound)
	}
	return *issue, nil
}

func (f *Fake) RemoveSubIssue(ctx context.Context, parent, child tracker.Issue) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("remove-sub-issue", Call{Issue: child.Ref, Arg: parent.Ref.String()}, child.Ref.String()); err != nil {
		return err
	}
	kids := f.children[parent.Ref]
	for i, k := range kids {
		if k == child.Ref {
			f.children[parent.Ref] = append(kids[:i:i], kids[i+1:]...)
			return nil
		}
	}
	return tracker.NewRemoteError("remove-sub-issue", child.Ref.String(), tracker.ErrNotFound)
}

func (f *Fake) AddSubIssue(ctx context.Context, parent, child tracker.Issue) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("add-sub-issue", Call{Issue: child.Ref, Arg: parent.Ref.String()}, child.Ref.String()); err != nil {
		return err
	}
	f.children[parent.Ref] = append(f.children[parent.Ref], child.Ref)
	return nil
}

func (f *Fake) AddLabel(ctx context.Context, ref tracker.IssueRef, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("add-label", Call{Issue: ref, Arg: label}, ref.String()); err != nil {
		return err
	}
	issue, ok := f.issues[ref]
	if !ok {
		return tracker.NewRemoteError("add-label", ref.String(), tracker.ErrNotFound)
	}
	if !issue.HasLabel(label) {
		issue.Labels = append(issue.Labels, label)
	}
	return nil
}

var _ tracker.Client = (*Fake)(nil)
