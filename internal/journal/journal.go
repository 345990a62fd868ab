// Package journal records every mutation a run makes, or would make in a dry
// run, as JSON lines so a run can be audited or reverted by hand.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Action names the kind of mutation.
type Action string

const (
	ActionSetMilestone    Action = "set_milestone"
	ActionCreateMilestone Action = "create_milestone"
	ActionMoveSubIssue    Action = "move_sub_issue"
	ActionAddLabel        Action = "add_label"
)

// Entry is one journal line. From and To hold the previous and new value:
// milestone titles for set_milestone, parent issues for move_sub_issue.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id"`
	Command   string    `json:"command"`
	Action    Action    `json:"action"`
	Issue     string    `json:"issue,omitempty"`
	Repo      string    `json:"repo,omitempty"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Outcome   string    `json:"outcome"`
	Error     string    `json:"error,omitempty"`
	DryRun    bool      `json:"dry_run,omitempty"`
}

// FileSink appends entries to a JSONL file.
// It is safe for concurrent use from multiple goroutines.
type FileSink struct {
	path   string
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

// NewFileSink opens path for appending, creating it if needed.
func NewFileSink(path string) (*FileSink, error) {
	// Entries name private repositories and issues.
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	return &FileSink{
		path:   path,
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

// Write appends entries and flushes them to the file.
func (s *FileSink) Write(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("journal %s is closed", s.path)
	}
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal journal entry: %w", err)
		}
		if _, err := s.writer.Write(data); err != nil {
			return fmt.Errorf("failed to write journal entry: %w", err)
		}
		if err := s.writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("failed to write newline: %w", err)
		}
	}

	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush journal: %w", err)
	}
	return nil
}

// Record appends a single entry.
func (s *FileSink) Record(e Entry) error {
	return s.Write([]Entry{e})
}

// Close flushes any remaining data and closes the file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}

	if err := s.writer.Flush(); err != nil {
		_ = s.file.Close()
		s.file = nil
		return fmt.Errorf("failed to flush before close: %w", err)
	}
	if err := s.file.Close(); err != nil {
		s.file = nil
		return fmt.Errorf("failed to close journal: %w", err)
	}
	s.file = nil
	return nil
}

// Path returns the journal file path.
func (s *FileSink) Path() string {
	return s.path
}

// ReadEntries reads every entry of a journal file.
func ReadEntries(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer func() { _ = file.Close() }()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	const maxLineSize = 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("failed to parse journal line %d: %w", lineNum, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	return entries, nil
}

// FilterByAction keeps the entries of the given actions; all when none given.
func FilterByAction(entries []Entry, actions ...Action) []Entry {
	if len(actions) == 0 {
		return entries
	}
	want := make(map[Action]bool, len(actions))
	for _, a := range actions {
		want[a] = true
	}

	var filtered []Entry
	for _, e := range entries {
		if want[e.Action] {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

// FilterByRun keeps the entries of one run.
func FilterByRun(entries []Entry, runID string) []Entry {
	var filtered []Entry
	for _, e := range entries {
		if e.RunID == runID {
			filtered = append(filtered, e)
		}
	}
	return filtered
}
