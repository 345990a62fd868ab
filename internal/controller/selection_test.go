package controller

import (
	"reflect"
	"testing"

	"github.com/andywolf/milestonesync/internal/tracker"
	"github.com/andywolf/milestonesync/internal/tracker/trackertest"
)

func TestSelectionApply(t *testing.T) {
	var issues []tracker.Issue
	for _, n := range []int{3, 7, 5, 1, 9} {
		issues = append(issues, tracker.Issue{Ref: trackertest.Ref("org/app", n)})
	}

	tests := []struct {
		name string
		sel  Selection
		want []int
	}{
		{name: "all, descending", sel: Selection{}, want: []int{9, 7, 5, 3, 1}},
		{name: "limit", sel: Selection{Limit: 2}, want: []int{9, 7}},
		{name: "offset", sel: Selection{Offset: 3}, want: []int{3, 1}},
		{name: "offset and limit", sel: Selection{Offset: 1, Limit: 2}, want: []int{7, 5}},
		{name: "offset past end", sel: Selection{Offset: 5}, want: nil},
		{name: "numbers", sel: Selection{Numbers: []int{1, 5, 42}}, want: []int{5, 1}},
		{name: "numbers then limit", sel: Selection{Numbers: []int{1, 5, 9}, Limit: 1}, want: []int{9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []int
			for _, issue := range tt.sel.apply(issues) {
				got = append(got, issue.Ref.Number)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("apply() = %v, want %v", got, tt.want)
			}
		})
	}

	if issues[0].Ref.Number != 3 {
		t.Error("apply() must not reorder its input")
	}
}
