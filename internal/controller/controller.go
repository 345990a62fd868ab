// Package controller runs the msync commands: it wires the tracker client,
// the milestone resolver, the tree collector and the executor for one run and
// prints progress and the final summary.
package controller

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/logging"
	"github.com/google/uuid"

	"github.com/andywolf/milestonesync/internal/cloud/gcp"
	"github.com/andywolf/milestonesync/internal/hierarchy"
	"github.com/andywolf/milestonesync/internal/journal"
	"github.com/andywolf/milestonesync/internal/milestone"
	"github.com/andywolf/milestonesync/internal/report"
	"github.com/andywolf/milestonesync/internal/security"
	"github.com/andywolf/milestonesync/internal/syncer"
	"github.com/andywolf/milestonesync/internal/tracker"
)

// ErrInterrupted is returned when the run context was cancelled before all
// work was issued. Mutations already applied are kept.
var ErrInterrupted = errors.New("interrupted")

// Recorder receives one journal entry per mutation.
type Recorder interface {
	Record(e journal.Entry) error
}

// Options configures a Controller.
type Options struct {
	Client   tracker.Client
	Out      io.Writer
	Logger   *log.Logger
	Sink     gcp.Sink
	Scrubber *security.Scrubber
	Journal  Recorder
	Command  string
	RunID    string
	DryRun   bool
	Workers  int
	MaxDepth int
}

// Controller owns the per-run state: statistics, the milestone cache and the
// output printer.
type Controller struct {
	client   tracker.Client
	printer  *report.Printer
	logger   *log.Logger
	sink     gcp.Sink
	scrubber *security.Scrubber
	journal  Recorder

	command  string
	runID    string
	dryRun   bool
	workers  int
	maxDepth int

	stats     *report.Stats
	resolver  *milestone.Resolver
	collector *hierarchy.Collector
}

// New creates a Controller for one run.
func New(opts Options) *Controller {
	c := &Controller{
		client:   opts.Client,
		logger:   opts.Logger,
		sink:     opts.Sink,
		scrubber: opts.Scrubber,
		journal:  opts.Journal,
		command:  opts.Command,
		runID:    opts.RunID,
		dryRun:   opts.DryRun,
		workers:  opts.Workers,
		maxDepth: opts.MaxDepth,
		stats:    &report.Stats{},
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	c.printer = report.NewPrinter(opts.Out)
	if c.logger == nil {
		c.logger = log.New(os.Stderr, "[msync] ", log.LstdFlags)
	}
	if c.scrubber == nil {
		c.scrubber = security.NewScrubber()
	}
	if c.runID == "" {
		c.runID = uuid.New().String()
	}
	if c.workers <= 0 {
		c.workers = syncer.DefaultWorkers
	}
	if c.maxDepth <= 0 {
		c.maxDepth = hierarchy.DefaultMaxDepth
	}

	engine := log.New(engineWriter{c}, "", 0)
	c.resolver = milestone.NewResolver(c.client, engine)
	c.collector = hierarchy.NewCollector(c.client, c.maxDepth, c.workers, engine)
	return c
}

// RunID identifies this run in logs and the summary.
func (c *Controller) RunID() string {
	return c.runID
}

// Stats returns the counters of the run so far.
func (c *Controller) Stats() report.Snapshot {
	return c.stats.Snapshot()
}

// Close flushes the log sink.
func (c *Controller) Close() error {
	if c.sink == nil {
		return nil
	}
	return c.sink.Close()
}

func (c *Controller) executor(index syncer.MilestoneIndex) *syncer.Executor {
	return &syncer.Executor{
		Client:  c.client,
		Index:   index,
		DryRun:  c.dryRun,
		Stats:   c.stats,
		Workers: c.workers,
	}
}

// logInfo logs at INFO level to both local logger and cloud sink
func (c *Controller) logInfo(format string, args ...interface{}) {
	c.emit(logging.Info, "", fmt.Sprintf(format, args...))
}

// logWarning logs at WARNING level to both local logger and cloud sink
func (c *Controller) logWarning(format string, args ...interface{}) {
	c.emit(logging.Warning, "Warning: ", fmt.Sprintf(format, args...))
}

// logError logs at ERROR level to both local logger and cloud sink
func (c *Controller) logError(format string, args ...interface{}) {
	c.emit(logging.Error, "Error: ", fmt.Sprintf(format, args...))
}

func (c *Controller) emit(severity logging.Severity, prefix, msg string) {
	msg = c.scrubber.Scrub(msg)
	c.logger.Printf("%s%s", prefix, msg)
	if c.sink != nil {
		c.sink.Log(severity, msg)
	}
}

// engineWriter routes the resolver's and collector's log lines through the
// controller so they are scrubbed and mirrored like its own.
type engineWriter struct {
	c *Controller
}

func (w engineWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if msg, ok := strings.CutPrefix(line, "Warning: "); ok {
			w.c.logWarning("%s", msg)
		} else {
			w.c.logInfo("%s", line)
		}
	}
	return len(p), nil
}

// record stamps e with the run's identity and appends it to the journal.
func (c *Controller) record(e journal.Entry) {
	if c.journal == nil {
		return
	}
	e.Timestamp = time.Now().UTC()
	e.RunID = c.runID
	e.Command = c.command
	e.DryRun = c.dryRun
	e.Error = c.scrubber.Scrub(e.Error)
	if err := c.journal.Record(e); err != nil {
		c.logWarning("failed to write journal: %v", err)
	}
}

// recordResults journals the milestone assignments among results.
func (c *Controller) recordResults(results []syncer.Result) {
	for _, res := range results {
		if res.Outcome != syncer.OutcomeUpdated && res.Outcome != syncer.OutcomeFailed {
			continue
		}
		e := journal.Entry{
			Action:  journal.ActionSetMilestone,
			Issue:   res.Task.Issue.String(),
			From:    res.Task.CurrentMilestone,
			To:      res.Task.TargetMilestone,
			Outcome: string(res.Outcome),
		}
		if res.Err != nil {
			e.Error = res.Err.Error()
		}
		c.record(e)
	}
}

// summary prints the final block and reports ErrInterrupted when ctxErr is set.
func (c *Controller) summary(s report.Summary, ctxErr error) error {
	s.DryRun = c.dryRun
	s.RunID = c.runID
	s.Stats = c.stats.Snapshot()
	s.Interrupted = ctxErr != nil
	c.printer.Summary(s)

	snap := s.Stats
	c.logInfo("%s finished: checked=%d updated=%d skipped=%d failed=%d missing=%d created=%d existing=%d",
		c.command, snap.Checked, snap.Updated, snap.Skipped, snap.Failed, snap.MissingMilestone, snap.Created, snap.Existing)
	if ctxErr != nil {
		return ErrInterrupted
	}
	return nil
}

// issueLine renders the common "owner/repo#N: title" prefix of progress lines.
func issueLine(ref tracker.IssueRef, title string) string {
	return fmt.Sprintf("%s: %s", ref, tracker.Truncate(title, 50))
}
