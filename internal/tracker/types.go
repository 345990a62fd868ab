// Package tracker defines the typed facade the sync engine uses to talk to the
// issue tracker. Transports live in the ghcli and ghapi subpackages.
package tracker

import (
	"fmt"
	"strings"
	"time"
)

// Milestone and issue states accepted by list operations.
const (
	StateOpen   = "open"
	StateClosed = "closed"
	StateAll    = "all"
)

// ValidState reports whether s is one of open, closed or all.
func ValidState(s string) bool {
	switch s {
	case StateOpen, StateClosed, StateAll:
		return true
	}
	return false
}

// RepoRef identifies a repository.
type RepoRef struct {
	Owner string
	Name  string
}

// String renders owner/name.
func (r RepoRef) String() string {
	return r.Owner + "/" + r.Name
}

// IsZero reports whether the reference is unset.
func (r RepoRef) IsZero() bool {
	return r.Owner == "" && r.Name == ""
}

// IssueRef is the immutable identity of an issue.
type IssueRef struct {
	Owner  string
	Repo   string
	Number int
}

// Repository returns the repository the issue lives in.
func (r IssueRef) Repository() RepoRef {
	return RepoRef{Owner: r.Owner, Name: r.Repo}
}

// String renders owner/repo#number.
func (r IssueRef) String() string {
	return fmt.Sprintf("%s/%s#%d", r.Owner, r.Repo, r.Number)
}

// MilestoneRef describes a milestone. A milestone belongs to exactly one repository.
type MilestoneRef struct {
	Owner       string
	Repo        string
	Number      int
	Title       string
	Description string
	State       string
	DueOn       *time.Time
	URL         string
}

// Repository returns the repository hosting the milestone.
func (m MilestoneRef) Repository() RepoRef {
	return RepoRef{Owner: m.Owner, Name: m.Repo}
}

// Issue is an issue as returned by list and sub-issue queries.
type Issue struct {
	Ref       IssueRef
	NodeID    string
	Title     string
	Body      string
	Labels    []string
	Milestone *MilestoneRef
}

// MilestoneTitle returns the title of the current milestone, or "" when none is set.
func (i Issue) MilestoneTitle() string {
	if i.Milestone == nil {
		return ""
	}
	return i.Milestone.Title
}

// HasLabel reports whether the issue carries the label (case-insensitive).
func (i Issue) HasLabel(name string) bool {
	for _, l := range i.Labels {
		if strings.EqualFold(l, name) {
			return true
		}
	}
	return false
}

// IssueFilter narrows ListMilestoneIssues.
type IssueFilter struct {
	State  string
	Labels []string
}

// NewMilestone is the payload for CreateMilestone.
type NewMilestone struct {
	Title       string
	Description string
	DueOn       *time.Time
}

// DueDate converts a YYYY-MM-DD date to the end-of-day UTC timestamp stamped on
// created milestones.
func DueDate(day string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", day)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid due date %q (want YYYY-MM-DD): %w", day, err)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, time.UTC), nil
}

// Truncate shortens s to at most n runes, appending "..." when cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// LabelColor is the colour given to labels created on demand.
const LabelColor = "0E8A16"

// LabelDescription is the description given to labels created on demand.
func LabelDescription(label string) string {
	if label == "" {
		return ""
	}
	return strings.ToUpper(label[:1]) + strings.ToLower(label[1:]) + "-related issues"
}
