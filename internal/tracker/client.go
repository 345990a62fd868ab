package tracker

import (
	"context"
	"errors"
	"fmt"
)

// Client is the remote access layer. Every method is a blocking call bounded by
// a per-call timeout owned by the transport. Implementations never retry.
type Client interface {
	GetMilestone(ctx context.Context, repo RepoRef, number int) (MilestoneRef, error)
	ListMilestoneIssues(ctx context.Context, repo RepoRef, milestone MilestoneRef, filter IssueFilter) ([]Issue, error)
	ListMilestones(ctx context.Context, repo RepoRef, state string) ([]MilestoneRef, error)
	GetSubIssues(ctx context.Context, issue IssueRef) ([]Issue, error)
	CreateMilestone(ctx context.Context, repo RepoRef, m NewMilestone) (MilestoneRef, error)
	SetIssueMilestone(ctx context.Context, issue IssueRef, milestone MilestoneRef) error

	GetIssue(ctx context.Context, issue IssueRef) (Issue, error)
	RemoveSubIssue(ctx context.Context, parent, child Issue) error
	AddSubIssue(ctx context.Context, parent, child Issue) error
	AddLabel(ctx context.Context, issue IssueRef, label string) error
}

var (
	// ErrMilestoneExists is reported by CreateMilestone when the repository
	// already has a milestone with the requested title.
	ErrMilestoneExists = errors.New("milestone already exists")

	// ErrNotFound is reported when the addressed object does not exist.
	ErrNotFound = errors.New("not found")
)

// RemoteError wraps any failure of a remote call: transport, auth, rate limit,
// timeout, not-found or a malformed response.
type RemoteError struct {
	Op     string
	Detail string
	Err    error
}

func (e *RemoteError) Error() string {
	switch {
	case e.Detail != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Detail, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Detail)
	}
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// NewRemoteError builds a RemoteError for op.
func NewRemoteError(op, detail string, err error) *RemoteError {
	return &RemoteError{Op: op, Detail: detail, Err: err}
}

// Malformed reports a response that lacks a required field.
func Malformed(op, format string, args ...interface{}) *RemoteError {
	return &RemoteError{Op: op, Detail: "malformed response: " + fmt.Sprintf(format, args...)}
}

// IsRemote reports whether err originated in the remote access layer.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}
