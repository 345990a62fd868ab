package ghcli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/andywolf/milestonesync/internal/tracker"
)

// restMilestone is the REST representation of a milestone.
type restMilestone struct {
	Number      int        `json:"number"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	State       string     `json:"state"`
	DueOn       *time.Time `json:"due_on"`
	HTMLURL     string     `json:"html_url"`
}

func (m restMilestone) ref(repo tracker.RepoRef) tracker.MilestoneRef {
	return tracker.MilestoneRef{
		Owner:       repo.Owner,
		Repo:        repo.Name,
		Number:      m.Number,
		Title:       m.Title,
		Description: m.Description,
		State:       m.State,
		DueOn:       m.DueOn,
		URL:         m.HTMLURL,
	}
}

func (c *Client) GetMilestone(ctx context.Context, repo tracker.RepoRef, number int) (tracker.MilestoneRef, error) {
	const op = "get-milestone"
	out, err := c.gh(ctx, op, "api", fmt.Sprintf("repos/%s/milestones/%d", repo, number))
	if err != nil {
		return tracker.MilestoneRef{}, err
	}
	var m restMilestone
	if err := json.Unmarshal(out, &m); err != nil {
		return tracker.MilestoneRef{}, tracker.NewRemoteError(op, "failed to parse response", err)
	}
	ref := m.ref(repo)
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
	out, err := c.gh(ctx, op, "api", "--paginate",
		fmt.Sprintf("repos/%s/milestones?state=%s&per_page=100", repo, state))
	if err != nil {
		return nil, err
	}

	// --paginate prints one JSON array per page back to back.
	var milestones []tracker.MilestoneRef
	dec := json.NewDecoder(bytes.NewReader(out))
	for {
		var page []restMilestone
		if err := dec.Decode(&page); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, tracker.NewRemoteError(op, "failed to parse response", err)
		}
		for _, m := range page {
			ref := m.ref(repo)
			if err := tracker.ValidateMilestone(op, ref); err != nil {
				return nil, err
			}
			milestones = append(milestones, ref)
		}
	}
	return milestones, nil
}

func (c *Client) CreateMilestone(ctx context.Context, repo tracker.RepoRef, nm tracker.NewMilestone) (tracker.MilestoneRef, error) {
	const op = "create-milestone"
	args := []string{"api", fmt.Sprintf("repos/%s/milestones", repo), "-X", "POST",
		"-f", "title=" + nm.Title,
		"-f", "state=open",
		"-f", "description=" + nm.Description,
	}
	if nm.DueOn != nil {
		args = append(args, "-f", "due_on="+nm.DueOn.UTC().Format(time.RFC3339))
	}
	out, err := c.gh(ctx, op, args...)
	if err != nil {
		return tracker.MilestoneRef{}, err
	}
	var m restMilestone
	if err := json.Unmarshal(out, &m); err != nil {
		return tracker.MilestoneRef{}, tracker.NewRemoteError(op, "failed to parse response", err)
	}
	ref := m.ref(repo)
	if err := tracker.ValidateMilestone(op, ref); err != nil {
		return tracker.MilestoneRef{}, err
	}
	return ref, nil
}
