// Package ref parses tracker references given on the command line: milestone and
// issue URLs, owner/repo strings and prefix routes.
package ref

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/andywolf/milestonesync/internal/tracker"
)

// InvalidReferenceError reports a malformed URL, repository or route argument.
// It is fatal for the invoking command.
type InvalidReferenceError struct {
	Kind   string
	Input  string
	Reason string
}

func (e *InvalidReferenceError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Kind, e.Input, e.Reason)
}

var (
	milestoneURLPattern = regexp.MustCompile(`^https?://[^/]+/([^/]+)/([^/]+)/milestone/(\d+)/?(?:[?#].*)?$`)
	issueURLPattern     = regexp.MustCompile(`^https?://[^/]+/([^/]+)/([^/]+)/issues/(\d+)/?(?:[?#].*)?$`)
	namePattern         = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
)

// Milestone is a milestone addressed by URL.
type Milestone struct {
	Repo   tracker.RepoRef
	Number int
}

// ParseMilestoneURL parses https://github.com/<owner>/<repo>/milestone/<n>.
func ParseMilestoneURL(s string) (Milestone, error) {
	owner, repo, n, err := parseNumbered(milestoneURLPattern, "milestone URL", s)
	if err != nil {
		return Milestone{}, err
	}
	return Milestone{Repo: tracker.RepoRef{Owner: owner, Name: repo}, Number: n}, nil
}

// ParseIssueURL parses https://github.com/<owner>/<repo>/issues/<n>.
func ParseIssueURL(s string) (tracker.IssueRef, error) {
	owner, repo, n, err := parseNumbered(issueURLPattern, "issue URL", s)
	if err != nil {
		return tracker.IssueRef{}, err
	}
	return tracker.IssueRef{Owner: owner, Repo: repo, Number: n}, nil
}

func parseNumbered(pattern *regexp.Regexp, kind, s string) (string, string, int, error) {
	m := pattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", "", 0, &InvalidReferenceError{Kind: kind, Input: s, Reason: "does not match .../<owner>/<repo>/" + pathWord(kind) + "/<number>"}
	}
	n, err := strconv.Atoi(m[3])
	if err != nil || n <= 0 {
		return "", "", 0, &InvalidReferenceError{Kind: kind, Input: s, Reason: "number must be a positive integer"}
	}
	return m[1], m[2], n, nil
}

func pathWord(kind string) string {
	if strings.HasPrefix(kind, "milestone") {
		return "milestone"
	}
	return "issues"
}

// ParseRepo extracts owner and name from a repository string.
// Supports formats: "owner/repo", "github.com/owner/repo", "https://github.com/owner/repo".
func ParseRepo(s string) (tracker.RepoRef, error) {
	repo := strings.TrimSpace(s)
	repo = strings.TrimPrefix(repo, "https://")
	repo = strings.TrimPrefix(repo, "http://")
	repo = strings.TrimPrefix(repo, "github.com/")
	repo = strings.TrimSuffix(repo, "/")
	repo = strings.TrimSuffix(repo, ".git")

	parts := strings.Split(repo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return tracker.RepoRef{}, &InvalidReferenceError{Kind: "repository", Input: s, Reason: "expected owner/repo"}
	}
	if !namePattern.MatchString(parts[0]) || !namePattern.MatchString(parts[1]) {
		return tracker.RepoRef{}, &InvalidReferenceError{Kind: "repository", Input: s, Reason: "owner and repo may only contain letters, digits, '.', '_' and '-'"}
	}
	return tracker.RepoRef{Owner: parts[0], Name: parts[1]}, nil
}

// ParseRoute splits "PREFIX=owner/repo" on the first '='.
func ParseRoute(s string) (string, tracker.RepoRef, error) {
	prefix, target, ok := strings.Cut(s, "=")
	if !ok {
		return "", tracker.RepoRef{}, &InvalidReferenceError{Kind: "route", Input: s, Reason: "expected 'prefix=owner/repo'"}
	}
	if prefix == "" {
		return "", tracker.RepoRef{}, &InvalidReferenceError{Kind: "route", Input: s, Reason: "prefix is empty"}
	}
	repo, err := ParseRepo(target)
	if err != nil {
		return "", tracker.RepoRef{}, &InvalidReferenceError{Kind: "route", Input: s, Reason: "target " + err.Error()}
	}
	return prefix, repo, nil
}
