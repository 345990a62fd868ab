package ghcli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/andywolf/milestonesync/internal/tracker"
)

// subIssuesQuery fetches one page of direct sub-issues; 100 is the largest page
// the connection accepts.
const subIssuesQuery = `query($owner: String!, $repo: String!, $number: Int!, $after: String) {
  repository(owner: $owner, name: $repo) {
    issue(number: $number) {
      subIssues(first: 100, after: $after) {
        nodes {
          id
          number
          title
          body
          repository { name owner { login } }
          milestone { number title }
          labels(first: 50) { nodes { name } }
        }
        pageInfo { hasNextPage endCursor }
      }
    }
  }
}`

// graphQLError is one entry of a GraphQL "errors" array.
type graphQLError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type subIssueNode struct {
	ID         string `json:"id"`
	Number     int    `json:"number"`
	Title      string `json:"title"`
	Body       string `json:"body"`
	Repository struct {
		Name  string `json:"name"`
		Owner struct {
			Login string `json:"login"`
		} `json:"owner"`
	} `json:"repository"`
	Milestone *struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
	} `json:"milestone"`
	Labels struct {
		Nodes []struct {
			Name string `json:"name"`
		} `json:"nodes"`
	} `json:"labels"`
}

// subIssuesResponse is the GraphQL response for one page of sub-issues.
type subIssuesResponse struct {
	Data struct {
		Repository *struct {
			Issue *struct {
				SubIssues struct {
					Nodes    []subIssueNode `json:"nodes"`
					PageInfo struct {
						HasNextPage bool   `json:"hasNextPage"`
						EndCursor   string `json:"endCursor"`
					} `json:"pageInfo"`
				} `json:"subIssues"`
			} `json:"issue"`
		} `json:"repository"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

func (n subIssueNode) issue() tracker.Issue {
	owner, repo := n.Repository.Owner.Login, n.Repository.Name
	out := tracker.Issue{
		Ref:    tracker.IssueRef{Owner: owner, Repo: repo, Number: n.Number},
		NodeID: n.ID,
		Title:  n.Title,
		Body:   n.Body,
	}
	for _, l := range n.Labels.Nodes {
		out.Labels = append(out.Labels, l.Name)
	}
	if n.Milestone != nil {
		out.Milestone = &tracker.MilestoneRef{Owner: owner, Repo: repo, Number: n.Milestone.Number, Title: n.Milestone.Title}
	}
	return out
}

func (c *Client) GetSubIssues(ctx context.Context, ref tracker.IssueRef) ([]tracker.Issue, error) {
	const op = "sub-issues"
	var (
		issues []tracker.Issue
		after  string
	)
	for {
		args := []string{"api", "graphql",
			"-f", "query=" + subIssuesQuery,
			"-f", "owner=" + ref.Owner,
			"-f", "repo=" + ref.Repo,
			"-F", "number=" + strconv.Itoa(ref.Number),
		}
		if after != "" {
			args = append(args, "-f", "after="+after)
		}
		out, err := c.gh(ctx, op, args...)
		if err != nil {
			return nil, err
		}

		var resp subIssuesResponse
		if err := json.Unmarshal(out, &resp); err != nil {
			return nil, tracker.NewRemoteError(op, "failed to parse response", err)
		}
		if err := graphQLErr(op, ref, resp.Errors); err != nil {
			return nil, err
		}
		if resp.Data.Repository == nil || resp.Data.Repository.Issue == nil {
			return nil, tracker.NewRemoteError(op, ref.String(), tracker.ErrNotFound)
		}

		page := resp.Data.Repository.Issue.SubIssues
		for _, n := range page.Nodes {
			issue := n.issue()
			if err := tracker.ValidateIssue(op, issue); err != nil {
				return nil, err
			}
			issues = append(issues, issue)
		}
		if !page.PageInfo.HasNextPage || page.PageInfo.EndCursor == "" {
			break
		}
		after = page.PageInfo.EndCursor
	}
	return issues, nil
}

func graphQLErr(op string, ref tracker.IssueRef, errs []graphQLError) error {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	notFound := false
	for _, e := range errs {
		msgs = append(msgs, e.Message)
		if e.Type == "NOT_FOUND" {
			notFound = true
		}
	}
	detail := fmt.Sprintf("%s: %s", ref, strings.Join(msgs, "; "))
	if notFound {
		return tracker.NewRemoteError(op, detail, tracker.ErrNotFound)
	}
	return tracker.NewRemoteError(op, detail, nil)
}

// subIssueMutation adds or removes a parent/child link.
const subIssueMutation = `mutation($issueId: ID!, $subIssueId: ID!) {
  %s(input: {issueId: $issueId, subIssueId: $subIssueId}) {
    issue { id }
  }
}`

func (c *Client) mutateSubIssue(ctx context.Context, op, mutation string, parent, child tracker.Issue) error {
	if parent.NodeID == "" || child.NodeID == "" {
		return tracker.NewRemoteError(op, fmt.Sprintf("%s -> %s: missing node id", parent.Ref, child.Ref), nil)
	}
	out, err := c.gh(ctx, op, "api", "graphql",
		"-f", "query="+fmt.Sprintf(subIssueMutation, mutation),
		"-f", "issueId="+parent.NodeID,
		"-f", "subIssueId="+child.NodeID,
	)
	if err != nil {
		return err
	}
	var resp struct {
		Errors []graphQLError `json:"errors"`
	}
	if err := json.Unmarshal(out, &resp); err != nil {
		return tracker.NewRemoteError(op, "failed to parse response", err)
	}
	return graphQLErr(op, child.Ref, resp.Errors)
}

func (c *Client) RemoveSubIssue(ctx context.Context, parent, child tracker.Issue) error {
	return c.mutateSubIssue(ctx, "remove-sub-issue", "removeSubIssue", parent, child)
}

func (c *Client) AddSubIssue(ctx context.Context, parent, child tracker.Issue) error {
	return c.mutateSubIssue(ctx, "add-sub-issue", "addSubIssue", parent, child)
}
