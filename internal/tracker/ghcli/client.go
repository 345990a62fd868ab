// Package ghcli implements tracker.Client by shelling out to the gh CLI.
package ghcli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/andywolf/milestonesync/internal/security"
	"github.com/andywolf/milestonesync/internal/tracker"
)

// DefaultCallTimeout bounds every gh invocation.
const DefaultCallTimeout = 30 * time.Second

// CommandRunner builds the command for one gh invocation. Tests replace it to
// run a helper process instead of gh.
type CommandRunner func(ctx context.Context, name string, args ...string) *exec.Cmd

// Client talks to GitHub through gh. When no token source is configured gh
// uses its own stored login.
type Client struct {
	binary   string
	run      CommandRunner
	timeout  time.Duration
	tokens   oauth2.TokenSource
	scrubber *security.Scrubber
	logger   *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithRunner replaces exec.CommandContext.
func WithRunner(run CommandRunner) Option {
	return func(c *Client) { c.run = run }
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithTokenSource injects GH_TOKEN from ts into every invocation.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithLogger enables debug logging of invocations.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithBinary overrides the gh executable name.
func WithBinary(path string) Option {
	return func(c *Client) { c.binary = path }
}

// New creates a gh-backed client.
func New(opts ...Option) *Client {
	c := &Client{
		binary:   "gh",
		run:      exec.CommandContext,
		timeout:  DefaultCallTimeout,
		scrubber: security.NewScrubber(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// gh runs one invocation and returns its stdout. Failures are classified into
// RemoteErrors; stderr is scrubbed before it is attached.
func (c *Client) gh(ctx context.Context, op string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := c.run(ctx, c.binary, args...)
	if c.tokens != nil {
		tok, err := c.tokens.Token()
		if err != nil {
			return nil, tracker.NewRemoteError(op, "failed to obtain GitHub token", err)
		}
		c.scrubber.AddSecret(tok.AccessToken)
		env := cmd.Env
		if env == nil {
			env = os.Environ()
		}
		cmd.Env = append(env, "GH_TOKEN="+tok.AccessToken)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if c.logger != nil {
		c.logger.Printf("gh %s", c.scrubber.Scrub(strings.Join(args, " ")))
	}

	if err := cmd.Run(); err != nil {
		detail := c.scrubber.Scrub(strings.TrimSpace(stderr.String()))
		switch ctxErr := ctx.Err(); {
		case errors.Is(ctxErr, context.DeadlineExceeded):
			return nil, tracker.NewRemoteError(op, fmt.Sprintf("timed out after %s", c.timeout), ctxErr)
		case ctxErr != nil:
			return nil, tracker.NewRemoteError(op, "interrupted", ctxErr)
		}
		return nil, classify(op, detail, err)
	}
	return stdout.Bytes(), nil
}

func classify(op, detail string, err error) error {
	switch {
	case op == "create-milestone" && isAlreadyExists(detail):
		return tracker.NewRemoteError(op, detail, tracker.ErrMilestoneExists)
	case isNotFound(detail):
		return tracker.NewRemoteError(op, detail, tracker.ErrNotFound)
	}
	return tracker.NewRemoteError(op, detail, err)
}

// isAlreadyExists matches the 422 error code for a taken name. Other
// validation failures (a bad due_on, say) are not conflicts.
func isAlreadyExists(stderr string) bool {
	return strings.Contains(stderr, "already_exists")
}

func alreadyExists(err error) bool {
	var re *tracker.RemoteError
	return errors.As(err, &re) && (isAlreadyExists(re.Detail) || strings.Contains(re.Detail, "already exists"))
}

func isNotFound(stderr string) bool {
	return strings.Contains(stderr, "HTTP 404") || strings.Contains(stderr, "Could not resolve to")
}

var _ tracker.Client = (*Client)(nil)
