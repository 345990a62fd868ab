package ghapi

import (
	"context"

	"github.com/shurcooL/githubv4"

	"github.com/andywolf/milestonesync/internal/tracker"
)

// AddSubIssueInput is the input of the addSubIssue mutation. The type name is
// sent as the GraphQL variable type.
type AddSubIssueInput struct {
	IssueID    githubv4.ID `json:"issueId"`
	SubIssueID githubv4.ID `json:"subIssueId"`
}

// RemoveSubIssueInput is the input of the removeSubIssue mutation.
type RemoveSubIssueInput struct {
	IssueID    githubv4.ID `json:"issueId"`
	SubIssueID githubv4.ID `json:"subIssueId"`
}

type subIssueNode struct {
	ID         githubv4.ID
	Number     int
	Title      string
	Body       string
	Repository struct {
		Name  string
		Owner struct {
			Login string
		}
	}
	Milestone *struct {
		Number int
		Title  string
	}
	Labels struct {
		Nodes []struct {
			Name string
		}
	} `graphql:"labels(first: 50)"`
}

func (n subIssueNode) issue() tracker.Issue {
	owner, repo := n.Repository.Owner.Login, n.Repository.Name
	out := tracker.Issue{
		Ref:    tracker.IssueRef{Owner: owner, Repo: repo, Number: n.Number},
		NodeID: nodeID(n.ID),
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

func nodeID(id githubv4.ID) string {
	if s, ok := id.(string); ok {
		return s
	}
	return ""
}

// subIssuesQuery fetches one page of direct sub-issues.
type subIssuesQuery struct {
	Repository struct {
		Issue *struct {
			SubIssues struct {
				Nodes    []subIssueNode
				PageInfo struct {
					HasNextPage bool
					EndCursor   githubv4.String
				}
			} `graphql:"subIssues(first: 100, after: $after)"`
		} `graphql:"issue(number: $number)"`
	} `graphql:"repository(owner: $owner, name: $repo)"`
}

func (c *Client) GetSubIssues(ctx context.Context, ref tracker.IssueRef) ([]tracker.Issue, error) {
	const op = "sub-issues"
	ctx, cancel := c.call(ctx)
	defer cancel()

	vars := map[string]interface{}{
		"owner":  githubv4.String(ref.Owner),
		"repo":   githubv4.String(ref.Repo),
		"number": githubv4.Int(ref.Number),
		"after":  (*githubv4.String)(nil),
	}
	var issues []tracker.Issue
	for {
		var q subIssuesQuery
		if err := c.gql.Query(ctx, &q, vars); err != nil {
			return nil, remoteErr(op, ref.String(), err)
		}
		if q.Repository.Issue == nil {
			return nil, tracker.NewRemoteError(op, ref.String(), tracker.ErrNotFound)
		}
		page := q.Repository.Issue.SubIssues
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
		vars["after"] = githubv4.NewString(page.PageInfo.EndCursor)
	}
	return issues, nil
}

func (c *Client) RemoveSubIssue(ctx context.Context, parent, child tracker.Issue) error {
	const op = "remove-sub-issue"
	if parent.NodeID == "" || child.NodeID == "" {
		return tracker.NewRemoteError(op, parent.Ref.String()+" -> "+child.Ref.String()+": missing node id", nil)
	}
	ctx, cancel := c.call(ctx)
	defer cancel()

	var m struct {
		RemoveSubIssue struct {
			Issue struct {
				ID githubv4.ID
			}
		} `graphql:"removeSubIssue(input: $input)"`
	}
	input := RemoveSubIssueInput{IssueID: githubv4.ID(parent.NodeID), SubIssueID: githubv4.ID(child.NodeID)}
	if err := c.gql.Mutate(ctx, &m, input, nil); err != nil {
		return remoteErr(op, child.Ref.String(), err)
	}
	return nil
}

func (c *Client) AddSubIssue(ctx context.Context, parent, child tracker.Issue) error {
	const op = "add-sub-issue"
	if parent.NodeID == "" || child.NodeID == "" {
		return tracker.NewRemoteError(op, parent.Ref.String()+" -> "+child.Ref.String()+": missing node id", nil)
	}
	ctx, cancel := c.call(ctx)
	defer cancel()

	var m struct {
		AddSubIssue struct {
			Issue struct {
				ID githubv4.ID
			}
		} `graphql:"addSubIssue(input: $input)"`
	}
	input := AddSubIssueInput{IssueID: githubv4.ID(parent.NodeID), SubIssueID: githubv4.ID(child.NodeID)}
	if err := c.gql.Mutate(ctx, &m, input, nil); err != nil {
		return remoteErr(op, child.Ref.String(), err)
	}
	return nil
}
