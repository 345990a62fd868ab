package report

import "fmt"

// Mode selects which counters a summary shows.
type Mode int

const (
	ModeSync Mode = iota
	ModeConvert
	ModeDivision
	ModeMove
)

// Line is an extra labelled counter appended to a summary.
type Line struct {
	Label string
	Value int64
}

// Summary is the final block printed at the end of every run.
type Summary struct {
	Title      string
	Mode       Mode
	DryRun     bool
	RunID      string
	Milestones int
	Issues     int
	Stats      Snapshot
	Extra      []Line
	// Interrupted marks a run stopped by a signal before all work was issued.
	Interrupted bool
}

// Lines renders the summary as text lines (without the ruled header).
func (s Summary) Lines() []string {
	var out []string
	add := func(format string, args ...interface{}) {
		out = append(out, fmt.Sprintf(format, args...))
	}

	if s.Milestones > 0 {
		add("Milestones processed:     %d", s.Milestones)
	}

	switch s.Mode {
	case ModeSync:
		s.syncLines(add)
	case ModeConvert:
		add("Issues processed:         %d", s.Issues)
		if s.DryRun {
			add("  - Would create:         %d", s.Stats.Created)
		} else {
			add("  - Milestones created:   %d", s.Stats.Created)
		}
		add("  - Already existed:      %d", s.Stats.Existing)
		add("  - Create failed:        %d", s.Stats.CreateFailed)
		add("  - Unrouted (skipped):   %d", s.Stats.Unrouted)
		if s.Stats.Checked > 0 {
			s.syncLines(add)
		}
	case ModeDivision:
		add("Total issues processed: %d", s.Issues)
		if s.DryRun {
			add("  - Would create:       %d", s.Stats.Created)
		} else {
			add("  - Created:            %d", s.Stats.Created)
		}
		add("  - Already exist:      %d", s.Stats.Existing)
		add("  - Failed:             %d", s.Stats.CreateFailed)
	case ModeMove:
		add("Sub-issues:               %d", s.Stats.Checked)
		if s.DryRun {
			add("  - Would move:           %d", s.Stats.Updated)
		} else {
			add("  - Moved:                %d", s.Stats.Updated)
			add("  - Failed:               %d", s.Stats.Failed)
		}
	}

	for _, l := range s.Extra {
		add("%-26s%d", l.Label+":", l.Value)
	}
	if s.Stats.Anomalies > 0 {
		add("Tree anomalies:           %d", s.Stats.Anomalies)
	}
	if s.Stats.CollectFailed > 0 {
		add("Collection errors:        %d", s.Stats.CollectFailed)
	}
	if s.Interrupted {
		add("Run interrupted: remaining work was not issued")
	}
	if s.RunID != "" {
		add("Run ID: %s", s.RunID)
	}
	return out
}

func (s Summary) syncLines(add func(string, ...interface{})) {
	add("Total sub-issues checked: %d", s.Stats.Checked)
	add("  - Already correct:      %d", s.Stats.Skipped)
	if s.DryRun {
		add("  - Would update:         %d", s.Stats.Updated)
	} else {
		add("  - Updated:              %d", s.Stats.Updated)
	}
	add("  - Missing milestone:    %d", s.Stats.MissingMilestone)
	if !s.DryRun {
		add("  - Failed:               %d", s.Stats.Failed)
	}
}

// Summary prints the ruled summary block.
func (p *Printer) Summary(s Summary) {
	title := s.Title
	if title == "" {
		title = "SUMMARY"
	}
	p.Printf("")
	p.Header("%s", title)
	p.Lines(s.Lines())
}
