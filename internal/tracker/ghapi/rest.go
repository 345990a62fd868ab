package ghapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/go-github/v72/github"

	"github.com/andywolf/milestonesync/internal/tracker"
)

const perPage = 100

func milestoneRef(repo tracker.RepoRef, m *github.Milestone) tracker.MilestoneRef {
	ref := tracker.MilestoneRef{
		Owner:       repo.Owner,
		Repo:        repo.Name,
		Number:      m.GetNumber(),
		Title:       m.GetTitle(),
		Description: m.GetDescription(),
		State:       m.GetState(),
		URL:         m.GetHTMLURL(),
	}
	if m.DueOn != nil {
		due := m.DueOn.Time
		ref.DueOn = &due
	}
	return ref
}

func issueRecord(repo tracker.RepoRef, i *github.Issue) tracker.Issue {
	out := tracker.Issue{
		Ref:    tracker.IssueRef{Owner: repo.Owner, Repo: repo.Name, Number: i.GetNumber()},
		NodeID: i.GetNodeID(),
		Title:  i.GetTitle(),
		Body:   i.GetBody(),
	}
	for _, l := range i.Labels {
		out.Labels = append(out.Labels, l.GetName())
	}
	if i.Milestone != nil {
		m := milestoneRef(repo, i.Milestone)
		out.Milestone = &m
	}
	return out
}

func (c *Client) GetMilestone(ctx context.Context, repo tracker.RepoRef, number int) (tracker.MilestoneRef, error) {
	const op = "get-milestone"
	ctx, cancel := c.call(ctx)
	defer cancel()

	m, _, err := c.rest.Issues.GetMilestone(ctx, repo.Owner, repo.Name, number)
	if err != nil {
		return tracker.MilestoneRef{}, remoteErr(op, repo.String()+" milestone "+strconv.Itoa(number), err)
	}
	ref := milestoneRef(repo, m)
	if err := tracker.ValidateMilestone(op, ref); err != nil {
		return tracker.MilestoneRef{}, err
	}
	return ref, nil
}

func (c *Client) ListMilestones(ctx context.Context, repo tracker.RepoRef, state string) ([]tracker.MilestoneRef, error) {
	const op = "list-milestones"
	if state == "" {
		state = tracker.StateAll
	}
	ctx, cancel := c.call(ctx)
	defer cancel()

	opts := &github.MilestoneListOptions{
		State:       state,
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	var out []tracker.MilestoneRef
	for {
		page, resp, err := c.rest.Issues.ListMilestones(ctx, repo.Owner, repo.Name, opts)
		if err != nil {
			return nil, remoteErr(op, repo.String(), err)
		}
		for _, m := range page {
			ref := milestoneRef(repo, m)
			if err := tracker.ValidateMilestone(op, ref); err != nil {
				return nil, err
			}
			out = append(out, ref)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

func (c *Client) ListMilestoneIssues(ctx context.Context, repo tracker.RepoRef, milestone tracker.MilestoneRef, filter tracker.IssueFilter) ([]tracker.Issue, error) {
	const op = "list-issues"
	if milestone.Number <= 0 {
		return nil, tracker.NewRemoteError(op, "milestone "+milestone.Title+" has no number", nil)
	}
	state := filter.State
	if state == "" {
		state = tracker.StateAll
	}
	ctx, cancel := c.call(ctx)
	defer cancel()

	opts := &github.IssueListByRepoOptions{
		Milestone:   strconv.Itoa(milestone.Number),
		State:       state,
		Labels:      filter.Labels,
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	var out []tracker.Issue
	for {
		page, resp, err := c.rest.Issues.ListByRepo(ctx, repo.Owner, repo.Name, opts)
		if err != nil {
			return nil, remoteErr(op, repo.String()+" milestone "+milestone.Title, err)
		}
		for _, i := range page {
			if i.IsPullRequest() {
				continue
			}
			issue := issueRecord(repo, i)
			if err := tracker.ValidateIssue(op, issue); err != nil {
				return nil, err
			}
			out = append(out, issue)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.ListOptions.Page = resp.NextPage
	}
	return out, nil
}

func (c *Client) GetIssue(ctx context.Context, ref tracker.IssueRef) (tracker.Issue, error) {
	const op = "get-issue"
	ctx, cancel := c.call(ctx)
	defer cancel()

	i, _, err := c.rest.Issues.Get(ctx, ref.Owner, ref.Repo, ref.Number)
	if err != nil {
		return tracker.Issue{}, remoteErr(op, ref.String(), err)
	}
	issue := issueRecord(ref.Repository(), i)
	if err := tracker.ValidateIssue(op, issue); err != nil {
		return tracker.Issue{}, err
	}
	if issue.NodeID == "" {
		return tracker.Issue{}, tracker.Malformed(op, "issue %s without node id", ref)
	}
	return issue, nil
}

func (c *Client) CreateMilestone(ctx context.Context, repo tracker.RepoRef, nm tracker.NewMilestone) (tracker.MilestoneRef, error) {
	const op = "create-milestone"
	ctx, cancel := c.call(ctx)
	defer cancel()

	req := &github.Milestone{
		Title:       github.Ptr(nm.Title),
		Description: github.Ptr(nm.Description),
		State:       github.Ptr(tracker.StateOpen),
	}
	if nm.DueOn != nil {
		req.DueOn = &github.Timestamp{Time: nm.DueOn.UTC()}
	}
	m, _, err := c.rest.Issues.CreateMilestone(ctx, repo.Owner, repo.Name, req)
	if err != nil {
		return tracker.MilestoneRef{}, remoteErr(op, repo.String()+" "+nm.Title, err)
	}
	ref := milestoneRef(repo, m)
	if err := tracker.ValidateMilestone(op, ref); err != nil {
		return tracker.MilestoneRef{}, err
	}
	return ref, nil
}

// SetIssueMilestone assigns the milestone by number. The milestone must live in
// the issue's repository.
func (c *Client) SetIssueMilestone(ctx context.Context, ref tracker.IssueRef, milestone tracker.MilestoneRef) error {
	const op = "set-milestone"
	if milestone.Number <= 0 {
		return tracker.NewRemoteError(op, ref.String()+": milestone "+milestone.Title+" has no number", nil)
	}
	if repo := milestone.Repository(); !repo.IsZero() && repo != ref.Repository() {
		return tracker.NewRemoteError(op, ref.String()+": milestone belongs to "+repo.String(), nil)
	}
	ctx, cancel := c.call(ctx)
	defer cancel()

	_, _, err := c.rest.Issues.Edit(ctx, ref.Owner, ref.Repo, ref.Number, &github.IssueRequest{
		Milestone: github.Ptr(milestone.Number),
	})
	if err != nil {
		return remoteErr(op, ref.String(), err)
	}
	return nil
}

// AddLabel adds label to the issue, creating it first when the repository
// does not have it.
func (c *Client) AddLabel(ctx context.Context, ref tracker.IssueRef, label string) error {
	const op = "add-label"
	ctx, cancel := c.call(ctx)
	defer cancel()

	if _, _, err := c.rest.Issues.GetLabel(ctx, ref.Owner, ref.Repo, label); err != nil {
		var ge *github.ErrorResponse
		if !errors.As(err, &ge) || ge.Response == nil || ge.Response.StatusCode != http.StatusNotFound {
			return remoteErr(op, ref.String()+" label "+label, err)
		}
		_, _, err = c.rest.Issues.CreateLabel(ctx, ref.Owner, ref.Repo, &github.Label{
			Name:        github.Ptr(label),
			Color:       github.Ptr(tracker.LabelColor),
			Description: github.Ptr(tracker.LabelDescription(label)),
		})
		if err != nil && !isAlreadyExists(err) {
			return remoteErr("create-label", ref.Repository().String()+" "+label, err)
		}
	}

	if _, _, err := c.rest.Issues.AddLabelsToIssue(ctx, ref.Owner, ref.Repo, ref.Number, []string{label}); err != nil {
		return remoteErr(op, ref.String(), err)
	}
	return nil
}

func isAlreadyExists(err error) bool {
	var ge *github.ErrorResponse
	if !errors.As(err, &ge) {
		return false
	}
	for _, e := range ge.Errors {
		if e.Code == "already_exists" {
			return true
		}
	}
	return false
}
