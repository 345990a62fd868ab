package controller

import (
	"sort"

	"github.com/andywolf/milestonesync/internal/tracker"
)

// Selection narrows the root issues of a milestone. Roots are ordered by
// descending number before Numbers, Offset and Limit are applied.
type Selection struct {
	Numbers []int
	Offset  int
	Limit   int
}

func (s Selection) apply(issues []tracker.Issue) []tracker.Issue {
	out := append([]tracker.Issue(nil), issues...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Ref.Number > out[j].Ref.Number })

	if len(s.Numbers) > 0 {
		want := make(map[int]bool, len(s.Numbers))
		for _, n := range s.Numbers {
			want[n] = true
		}
		filtered := out[:0]
		for _, issue := range out {
			if want[issue.Ref.Number] {
				filtered = append(filtered, issue)
			}
		}
		out = filtered
	}

	if s.Offset > 0 {
		if s.Offset >= len(out) {
			return nil
		}
		out = out[s.Offset:]
	}
	if s.Limit > 0 && s.Limit < len(out) {
		out = out[:s.Limit]
	}
	return out
}

func refs(issues []tracker.Issue) []tracker.IssueRef {
	out := make([]tracker.IssueRef, len(issues))
	for i, issue := range issues {
		out[i] = issue.Ref
	}
	return out
}
