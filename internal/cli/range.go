package cli

import (
	"fmt"
	"strconv"
	"strings"
)

// ExpandRanges expands --issues values into issue numbers. Each value may hold
// comma-separated numbers ("12") and inclusive ranges ("15-18"). Duplicates
// are dropped; the first occurrence keeps its position.
//
// Examples:
//   - ["1-3"] → [1 2 3]
//   - ["12,15-17", "12"] → [12 15 16 17]
func ExpandRanges(input []string) ([]int, error) {
	var result []int
	seen := make(map[int]bool)

	for _, item := range input {
		for _, segment := range strings.Split(item, ",") {
			segment = strings.TrimSpace(segment)
			if segment == "" {
				continue
			}

			expanded, err := expandSegment(segment)
			if err != nil {
				return nil, err
			}
			for _, n := range expanded {
				if !seen[n] {
					seen[n] = true
					result = append(result, n)
				}
			}
		}
	}

	return result, nil
}

// expandSegment handles a single number ("5") or range ("1-5")
func expandSegment(segment string) ([]int, error) {
	if idx := strings.Index(segment, "-"); idx > 0 && idx < len(segment)-1 {
		startStr := strings.TrimSpace(segment[:idx])
		endStr := strings.TrimSpace(segment[idx+1:])

		start, err := issueNumber(startStr)
		if err != nil {
			return nil, fmt.Errorf("invalid range %q: start value %q is not a valid issue number", segment, startStr)
		}
		end, err := issueNumber(endStr)
		if err != nil {
			return nil, fmt.Errorf("invalid range %q: end value %q is not a valid issue number", segment, endStr)
		}
		if start > end {
			return nil, fmt.Errorf("invalid range %q: start (%d) is greater than end (%d)", segment, start, end)
		}

		result := make([]int, 0, end-start+1)
		for i := start; i <= end; i++ {
			result = append(result, i)
		}
		return result, nil
	}

	n, err := issueNumber(segment)
	if err != nil {
		return nil, fmt.Errorf("invalid value %q: not a valid issue number", segment)
	}
	return []int{n}, nil
}

func issueNumber(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("issue numbers start at 1")
	}
	return n, nil
}
