// Package milestone resolves and creates milestones by title, caching each
// repository's milestone list for the duration of a run.
package milestone

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/andywolf/milestonesync/internal/tracker"
)

// repoEntry is the cached milestone list of one repository. mu serialises the
// lazy load and every read-check-insert on the entry.
type repoEntry struct {
	mu     sync.Mutex
	loaded bool
	byName map[string]tracker.MilestoneRef
	warned map[string]bool
}

// Resolver is owned by a single run. It is safe for concurrent use.
type Resolver struct {
	client tracker.Client
	logger *log.Logger

	mu    sync.Mutex
	repos map[tracker.RepoRef]*repoEntry
}

// NewResolver creates a resolver backed by client. A nil logger discards warnings.
func NewResolver(client tracker.Client, logger *log.Logger) *Resolver {
	return &Resolver{
		client: client,
		logger: logger,
		repos:  make(map[tracker.RepoRef]*repoEntry),
	}
}

func (r *Resolver) entry(repo tracker.RepoRef) *repoEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.repos[repo]
	if !ok {
		e = &repoEntry{byName: make(map[string]tracker.MilestoneRef), warned: make(map[string]bool)}
		r.repos[repo] = e
	}
	return e
}

// loadLocked fetches every milestone of repo. Caller holds e.mu.
func (r *Resolver) loadLocked(ctx context.Context, repo tracker.RepoRef, e *repoEntry) error {
	milestones, err := r.client.ListMilestones(ctx, repo, tracker.StateAll)
	if err != nil {
		return fmt.Errorf("failed to list milestones of %s: %w", repo, err)
	}

	// Titles are not unique on the server; the lowest number wins.
	sort.Slice(milestones, func(i, j int) bool { return milestones[i].Number < milestones[j].Number })
	byName := make(map[string]tracker.MilestoneRef, len(milestones))
	for _, m := range milestones {
		if prev, dup := byName[m.Title]; dup {
			if !e.warned[m.Title] {
				e.warned[m.Title] = true
				r.warnf("%s has duplicate milestones titled %q (#%d, #%d); using #%d", repo, m.Title, prev.Number, m.Number, prev.Number)
			}
			continue
		}
		byName[m.Title] = m
	}
	e.byName = byName
	e.loaded = true
	return nil
}

// Lookup returns the milestone titled title in repo. The repository listing is
// fetched on the first lookup and reused afterwards.
func (r *Resolver) Lookup(ctx context.Context, repo tracker.RepoRef, title string) (tracker.MilestoneRef, bool, error) {
	e := r.entry(repo)
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		if err := r.loadLocked(ctx, repo, e); err != nil {
			return tracker.MilestoneRef{}, false, err
		}
	}
	m, ok := e.byName[title]
	return m, ok, nil
}

// Exists reports whether repo has a milestone titled title.
func (r *Resolver) Exists(ctx context.Context, repo tracker.RepoRef, title string) (tracker.MilestoneRef, bool, error) {
	return r.Lookup(ctx, repo, title)
}

// Ensure creates the milestone, or returns the existing one when the server
// reports that the title is taken. created is true only when this call made it.
func (r *Resolver) Ensure(ctx context.Context, repo tracker.RepoRef, nm tracker.NewMilestone) (m tracker.MilestoneRef, created bool, err error) {
	e := r.entry(repo)

	e.mu.Lock()
	if cached, ok := e.byName[nm.Title]; ok {
		e.mu.Unlock()
		return cached, false, nil
	}
	e.mu.Unlock()

	// The create call runs outside the entry lock; a concurrent create of the
	// same title is settled by the server's already-exists answer.
	m, err = r.client.CreateMilestone(ctx, repo, nm)
	if err == nil {
		e.mu.Lock()
		if cached, ok := e.byName[m.Title]; ok && cached.Number < m.Number {
			r.warnf("%s: milestone %q was created concurrently (#%d, #%d)", repo, m.Title, cached.Number, m.Number)
		} else {
			e.byName[m.Title] = m
		}
		e.mu.Unlock()
		return m, true, nil
	}
	if !errors.Is(err, tracker.ErrMilestoneExists) {
		return tracker.MilestoneRef{}, false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if cached, ok := e.byName[nm.Title]; ok {
		return cached, false, nil
	}
	if err := r.loadLocked(ctx, repo, e); err != nil {
		return tracker.MilestoneRef{}, false, err
	}
	if existing, ok := e.byName[nm.Title]; ok {
		return existing, false, nil
	}
	return tracker.MilestoneRef{}, false, fmt.Errorf("milestone %q reported as existing in %s but not listed: %w", nm.Title, repo, err)
}

func (r *Resolver) warnf(format string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Printf("Warning: "+format, args...)
	}
}
