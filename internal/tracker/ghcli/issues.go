package ghcli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/andywolf/milestonesync/internal/tracker"
)

// issueListLimit caps gh issue list; milestones in practice stay well below it.
const issueListLimit = 1000

// cliIssue is the shape of gh issue list/view --json output.
type cliIssue struct {
	ID     string `json:"id"`
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
	Milestone *struct {
		Number      int    `json:"number"`
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"milestone"`
}

func (i cliIssue) issue(repo tracker.RepoRef) tracker.Issue {
	out := tracker.Issue{
		Ref:    tracker.IssueRef{Owner: repo.Owner, Repo: repo.Name, Number: i.Number},
		NodeID: i.ID,
		Title:  i.Title,
		Body:   i.Body,
	}
	for _, l := range i.Labels {
		out.Labels = append(out.Labels, l.Name)
	}
	if i.Milestone != nil && (i.Milestone.Title != "" || i.Milestone.Number != 0) {
		out.Milestone = &tracker.MilestoneRef{
			Owner:       repo.Owner,
			Repo:        repo.Name,
			Number:      i.Milestone.Number,
			Title:       i.Milestone.Title,
			Description: i.Milestone.Description,
		}
	}
	return out
}

const issueFields = "id,number,title,body,labels,milestone"

func (c *Client) ListMilestoneIssues(ctx context.Context, repo tracker.RepoRef, milestone tracker.MilestoneRef, filter tracker.IssueFilter) ([]tracker.Issue, error) {
	const op = "list-issues"
	state := filter.State
	if state == "" {
		state = tracker.StateAll
	}
	args := []string{"issue", "list",
		"--repo", repo.String(),
		"--milestone", milestone.Title,
		"--state", state,
		"--limit", strconv.Itoa(issueListLimit),
		"--json", issueFields,
	}
	for _, l := range filter.Labels {
		args = append(args, "--label", l)
	}

	out, err := c.gh(ctx, op, args...)
	if err != nil {
		return nil, err
	}
	var raw []cliIssue
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, tracker.NewRemoteError(op, "failed to parse response", err)
	}
	issues := make([]tracker.Issue, 0, len(raw))
	for _, r := range raw {
		issue := r.issue(repo)
		if err := tracker.ValidateIssue(op, issue); err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

func (c *Client) GetIssue(ctx context.Context, ref tracker.IssueRef) (tracker.Issue, error) {
	const op = "get-issue"
	out, err := c.gh(ctx, op, "issue", "view", strconv.Itoa(ref.Number),
		"--repo", ref.Repository().String(),
		"--json", issueFields,
	)
	if err != nil {
		return tracker.Issue{}, err
	}
	var raw cliIssue
	if err := json.Unmarshal(out, &raw); err != nil {
		return tracker.Issue{}, tracker.NewRemoteError(op, "failed to parse response", err)
	}
	issue := raw.issue(ref.Repository())
	if err := tracker.ValidateIssue(op, issue); err != nil {
		return tracker.Issue{}, err
	}
	if issue.NodeID == "" {
		return tracker.Issue{}, tracker.Malformed(op, "issue %s without node id", ref)
	}
	return issue, nil
}

func (c *Client) SetIssueMilestone(ctx context.Context, ref tracker.IssueRef, milestone tracker.MilestoneRef) error {
	_, err := c.gh(ctx, "set-milestone", "issue", "edit", strconv.Itoa(ref.Number),
		"--repo", ref.Repository().String(),
		"--milestone", milestone.Title,
	)
	return err
}

// AddLabel adds label to the issue, creating the label in the issue's
// repository when it does not exist yet.
func (c *Client) AddLabel(ctx context.Context, ref tracker.IssueRef, label string) error {
	const op = "add-label"
	edit := []string{"issue", "edit", strconv.Itoa(ref.Number),
		"--repo", ref.Repository().String(),
		"--add-label", label,
	}
	_, err := c.gh(ctx, op, edit...)
	if err == nil {
		return nil
	}
	if !isMissingLabel(err) {
		return err
	}

	if _, err := c.gh(ctx, "create-label", "label", "create", label,
		"--repo", ref.Repository().String(),
		"--description", tracker.LabelDescription(label),
		"--color", tracker.LabelColor,
	); err != nil && !alreadyExists(err) {
		return fmt.Errorf("failed to create label %q: %w", label, err)
	}
	_, err = c.gh(ctx, op, edit...)
	return err
}

func isMissingLabel(err error) bool {
	var re *tracker.RemoteError
	if !errors.As(err, &re) || errors.Is(err, tracker.ErrNotFound) {
		return false
	}
	return strings.Contains(strings.ToLower(re.Detail), "not found")
}
