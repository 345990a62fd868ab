// Package hierarchy collects the sub-issue tree below a root issue into an
// explicit forest keyed by issue reference.
package hierarchy

import (
	"fmt"
	"sort"

	"github.com/andywolf/milestonesync/internal/tracker"
)

// AnomalyKind classifies a structural problem found while expanding a tree.
type AnomalyKind string

const (
	// AnomalyCycle is an edge pointing back at an ancestor (or the root).
	AnomalyCycle AnomalyKind = "cycle"
	// AnomalyDuplicate is an issue reached through a second, non-ancestral parent.
	AnomalyDuplicate AnomalyKind = "duplicate"
	// AnomalyDepth marks a node whose children lie beyond the depth bound.
	AnomalyDepth AnomalyKind = "depth"
	// AnomalyConflict is an issue shared with another root that wants a
	// different milestone for it.
	AnomalyConflict AnomalyKind = "conflict"
)

// Anomaly is reported instead of following an edge.
type Anomaly struct {
	Kind   AnomalyKind
	Parent tracker.IssueRef
	Child  tracker.IssueRef
	Depth  int

	// Owner and Milestone are set when Child was already claimed by the
	// tree of another root.
	Owner     tracker.IssueRef
	Milestone string
}

func (a Anomaly) String() string {
	switch a.Kind {
	case AnomalyDepth:
		return fmt.Sprintf("%s has sub-issues beyond depth %d", a.Parent, a.Depth)
	case AnomalyCycle:
		return fmt.Sprintf("cycle: %s lists ancestor %s as a sub-issue", a.Parent, a.Child)
	case AnomalyConflict:
		return fmt.Sprintf("conflict: %s is also under %s, which assigns '%s'; left to that root", a.Child, a.Owner, a.Milestone)
	}
	if a.Owner != (tracker.IssueRef{}) {
		return fmt.Sprintf("%s: %s already handled under %s", a.Kind, a.Child, a.Owner)
	}
	return fmt.Sprintf("%s: %s reached again from %s", a.Kind, a.Child, a.Parent)
}

// Edge is a parent -> child sub-issue link. The child may live in another repository.
type Edge struct {
	Parent tracker.IssueRef
	Child  tracker.IssueRef
}

// Node is one collected sub-issue. Depth 0 is a direct child of the root.
type Node struct {
	Issue  tracker.Issue
	Depth  int
	Parent tracker.IssueRef
}

// FetchError records a failed sub-issue fetch below the root.
type FetchError struct {
	Issue tracker.IssueRef
	Err   error
}

func (e FetchError) Error() string {
	return fmt.Sprintf("sub-issues of %s: %v", e.Issue, e.Err)
}

// Forest is the collected tree of one root issue.
type Forest struct {
	Root      tracker.IssueRef
	Edges     []Edge
	Anomalies []Anomaly
	Errors    []FetchError

	nodes map[tracker.IssueRef]*Node
	order []tracker.IssueRef
}

func newForest(root tracker.IssueRef) *Forest {
	return &Forest{Root: root, nodes: make(map[tracker.IssueRef]*Node)}
}

func (f *Forest) add(parent tracker.IssueRef, issue tracker.Issue, depth int) {
	f.nodes[issue.Ref] = &Node{Issue: issue, Depth: depth, Parent: parent}
	f.order = append(f.order, issue.Ref)
	f.Edges = append(f.Edges, Edge{Parent: parent, Child: issue.Ref})
}

// isAncestor reports whether ref is parent or one of parent's ancestors.
func (f *Forest) isAncestor(ref, parent tracker.IssueRef) bool {
	for cur := parent; ; {
		if cur == ref {
			return true
		}
		n, ok := f.nodes[cur]
		if !ok {
			return false
		}
		cur = n.Parent
	}
}

// Len returns the number of collected sub-issues (the root is not counted).
func (f *Forest) Len() int {
	return len(f.order)
}

// Get returns the node for ref.
func (f *Forest) Get(ref tracker.IssueRef) (Node, bool) {
	n, ok := f.nodes[ref]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Flatten returns every collected sub-issue in breadth-first order.
func (f *Forest) Flatten() []Node {
	out := make([]Node, 0, len(f.order))
	for _, ref := range f.order {
		out = append(out, *f.nodes[ref])
	}
	return out
}

// Direct returns the root's immediate sub-issues.
func (f *Forest) Direct() []Node {
	var out []Node
	for _, ref := range f.order {
		if n := f.nodes[ref]; n.Depth == 0 {
			out = append(out, *n)
		}
	}
	return out
}

// Repositories returns the sorted set of repositories hosting collected sub-issues.
func (f *Forest) Repositories() []tracker.RepoRef {
	seen := make(map[tracker.RepoRef]bool)
	var out []tracker.RepoRef
	for _, ref := range f.order {
		repo := ref.Repository()
		if !seen[repo] {
			seen[repo] = true
			out = append(out, repo)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Complete reports whether every node was expanded without error or anomaly.
func (f *Forest) Complete() bool {
	return len(f.Errors) == 0 && len(f.Anomalies) == 0
}
