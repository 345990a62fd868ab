package hierarchy

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/andywolf/milestonesync/internal/tracker"
)

// DefaultMaxDepth bounds the number of levels expanded below a root.
const DefaultMaxDepth = 32

// Collector expands sub-issue trees through a tracker.Client.
type Collector struct {
	client     tracker.Client
	maxDepth   int
	workers    int
	logger     *log.Logger
	directOnly bool
}

// NewCollector creates a Collector. Non-positive maxDepth and workers fall back
// to DefaultMaxDepth and a single worker.
func NewCollector(client tracker.Client, maxDepth, workers int, logger *log.Logger) *Collector {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if workers <= 0 {
		workers = 1
	}
	return &Collector{client: client, maxDepth: maxDepth, workers: workers, logger: logger}
}

// DirectOnly returns a copy of c that collects only the root's immediate
// sub-issues and never fetches below them.
func (c *Collector) DirectOnly() *Collector {
	cp := *c
	cp.directOnly = true
	return &cp
}

// Collect builds the forest below root breadth-first. A failure to fetch the
// root's own sub-issues is returned as an error; failures further down are
// recorded on the forest and the rest of the tree is still collected.
// When ctx is cancelled the partial forest is returned together with ctx.Err().
func (c *Collector) Collect(ctx context.Context, root tracker.IssueRef) (*Forest, error) {
	f := newForest(root)

	children, err := c.client.GetSubIssues(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sub-issues of %s: %w", root, err)
	}

	type pending struct {
		parent   tracker.IssueRef
		children []tracker.Issue
	}
	level := []pending{{parent: root, children: children}}

	for depth := 0; len(level) > 0; depth++ {
		var added []tracker.IssueRef
		for _, p := range level {
			for _, child := range p.children {
				if _, seen := f.nodes[child.Ref]; seen || child.Ref == root {
					kind := AnomalyDuplicate
					if f.isAncestor(child.Ref, p.parent) {
						kind = AnomalyCycle
					}
					c.anomaly(f, Anomaly{Kind: kind, Parent: p.parent, Child: child.Ref, Depth: depth})
					continue
				}
				f.add(p.parent, child, depth)
				added = append(added, child.Ref)
			}
		}
		if c.directOnly {
			break
		}

		var next []pending
		for _, ref := range added {
			if err := ctx.Err(); err != nil {
				return f, err
			}
			grand, err := c.client.GetSubIssues(ctx, ref)
			if err != nil {
				c.logf("Warning: failed to fetch sub-issues of %s: %v", ref, err)
				f.Errors = append(f.Errors, FetchError{Issue: ref, Err: err})
				continue
			}
			if len(grand) == 0 {
				continue
			}
			if depth+1 >= c.maxDepth {
				c.anomaly(f, Anomaly{Kind: AnomalyDepth, Parent: ref, Depth: c.maxDepth})
				continue
			}
			next = append(next, pending{parent: ref, children: grand})
		}
		level = next
	}
	return f, nil
}

// Result is the outcome of collecting one root.
type Result struct {
	Root   tracker.IssueRef
	Forest *Forest
	Err    error
}

// CollectAll collects every root on a bounded pool. Results are returned in the
// order of roots; a failing root does not stop the others.
func (c *Collector) CollectAll(ctx context.Context, roots []tracker.IssueRef) []Result {
	results := make([]Result, len(roots))
	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, root := range roots {
		i, root := i, root
		results[i].Root = root
		if ctx.Err() != nil {
			results[i].Err = ctx.Err()
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			f, err := c.Collect(ctx, root)
			results[i].Forest = f
			results[i].Err = err
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c *Collector) anomaly(f *Forest, a Anomaly) {
	c.logf("Warning: %s", a)
	f.Anomalies = append(f.Anomalies, a)
}

func (c *Collector) logf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}
