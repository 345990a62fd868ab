// Package ghapi implements tracker.Client over the GitHub REST and GraphQL APIs.
package ghapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v72/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"github.com/andywolf/milestonesync/internal/tracker"
	"github.com/andywolf/milestonesync/internal/version"
)

// DefaultCallTimeout bounds every API call.
const DefaultCallTimeout = 30 * time.Second

// Options configures a Client.
type Options struct {
	// TokenSource authenticates every request. Required unless HTTPClient is set.
	TokenSource oauth2.TokenSource
	// HTTPClient overrides the oauth2 client built from TokenSource.
	HTTPClient *http.Client
	// APIURL is the REST base URL for GitHub Enterprise, e.g. https://ghe.example.com/api/v3/.
	APIURL string
	// GraphQLURL is the GraphQL endpoint, e.g. https://ghe.example.com/api/graphql.
	GraphQLURL string
	// Timeout bounds each call; DefaultCallTimeout when zero.
	Timeout time.Duration
}

// Client talks to GitHub with go-github for REST and githubv4 for sub-issues.
type Client struct {
	rest    *github.Client
	gql     *githubv4.Client
	timeout time.Duration
}

// New creates an API-backed client.
func New(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		if opts.TokenSource == nil {
			return nil, fmt.Errorf("api backend requires a GitHub token")
		}
		httpClient = oauth2.NewClient(context.Background(), opts.TokenSource)
	}

	rest := github.NewClient(httpClient)
	rest.UserAgent = version.UserAgent()
	if opts.APIURL != "" {
		var err error
		rest, err = rest.WithEnterpriseURLs(opts.APIURL, opts.APIURL)
		if err != nil {
			return nil, fmt.Errorf("invalid api_url %q: %w", opts.APIURL, err)
		}
	}

	gql := githubv4.NewClient(httpClient)
	if opts.GraphQLURL != "" {
		gql = githubv4.NewEnterpriseClient(opts.GraphQLURL, httpClient)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Client{rest: rest, gql: gql, timeout: timeout}, nil
}

func (c *Client) call(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// remoteErr converts a go-github or githubv4 error into a RemoteError.
func remoteErr(op, detail string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return tracker.NewRemoteError(op, detail+": timed out", err)
	}

	var ge *github.ErrorResponse
	if errors.As(err, &ge) {
		if op == "create-milestone" && isAlreadyExists(err) {
			return tracker.NewRemoteError(op, detail, tracker.ErrMilestoneExists)
		}
		if ge.Response != nil && ge.Response.StatusCode == http.StatusNotFound {
			return tracker.NewRemoteError(op, detail, tracker.ErrNotFound)
		}
	}

	if strings.Contains(err.Error(), "Could not resolve to") {
		return tracker.NewRemoteError(op, detail, tracker.ErrNotFound)
	}
	return tracker.NewRemoteError(op, detail, err)
}

var _ tracker.Client = (*Client)(nil)
