package routing

import (
	"sort"
	"strings"

	"github.com/andywolf/milestonesync/internal/tracker"
)

// Router decides which repositories host the milestone generated from an issue
// that has no sub-issues.
type Router struct {
	table    Table
	fallback []tracker.RepoRef
}

// NewRouter creates a router. An empty table and fallback yields a router that
// never resolves.
func NewRouter(table Table, fallback []tracker.RepoRef) *Router {
	return &Router{table: table, fallback: fallback}
}

// Resolve routes an issue title: the first route whose prefix starts the title
// wins; otherwise every fallback repository is used; otherwise the decision is
// unresolved.
func (r *Router) Resolve(title string) Decision {
	if r == nil {
		return Decision{Reason: ReasonUnresolved}
	}
	for _, route := range r.table {
		if strings.HasPrefix(title, route.Prefix) {
			return Decision{
				Targets: []tracker.RepoRef{route.Target},
				Reason:  ReasonRoute,
				Prefix:  route.Prefix,
			}
		}
	}
	if len(r.fallback) > 0 {
		return Decision{
			Targets: append([]tracker.RepoRef(nil), r.fallback...),
			Reason:  ReasonFallback,
		}
	}
	return Decision{Reason: ReasonUnresolved}
}

// IsConfigured returns true if the router has at least one route or fallback.
func (r *Router) IsConfigured() bool {
	return r != nil && (len(r.table) > 0 || len(r.fallback) > 0)
}

// Table returns the configured routes in order.
func (r *Router) Table() Table {
	if r == nil {
		return nil
	}
	return r.table
}

// Repositories returns every repository the router can target, sorted for
// deterministic output.
func (r *Router) Repositories() []tracker.RepoRef {
	if r == nil {
		return nil
	}
	seen := make(map[tracker.RepoRef]bool)
	var repos []tracker.RepoRef
	add := func(repo tracker.RepoRef) {
		if !seen[repo] {
			seen[repo] = true
			repos = append(repos, repo)
		}
	}
	for _, route := range r.table {
		add(route.Target)
	}
	for _, repo := range r.fallback {
		add(repo)
	}
	sort.Slice(repos, func(i, j int) bool { return repos[i].String() < repos[j].String() })
	return repos
}

// String renders the table as "prefix=owner/repo" pairs.
func (t Table) String() string {
	parts := make([]string, len(t))
	for i, route := range t {
		parts[i] = route.Prefix + "=" + route.Target.String()
	}
	return strings.Join(parts, ", ")
}
