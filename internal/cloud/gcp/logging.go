// Package gcp holds the optional Google Cloud collaborators: a log sink that
// mirrors run diagnostics to Cloud Logging and a Secret Manager reader for the
// GitHub App private key.
package gcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/logging"
	"google.golang.org/api/option"
)

// Sink receives diagnostics already scrubbed by the caller.
type Sink interface {
	Log(severity logging.Severity, message string)
	Flush() error
	Close() error
}

// entryLogger is the subset of *logging.Logger a CloudSink writes through.
type entryLogger interface {
	Log(e logging.Entry)
	Flush() error
}

// CloudSink writes entries to Cloud Logging through the client library.
type CloudSink struct {
	mu     sync.Mutex
	logger entryLogger
	close  func() error
	closed bool
}

// NewCloudSink opens a Cloud Logging client for project and writes to logID.
// labels are attached to every entry.
func NewCloudSink(ctx context.Context, project, logID string, labels map[string]string, opts ...option.ClientOption) (*CloudSink, error) {
	if project == "" {
		return nil, fmt.Errorf("cloud logging requires a project")
	}
	client, err := logging.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create cloud logging client: %w", err)
	}
	client.OnError = func(err error) {
		fmt.Fprintf(os.Stderr, "cloud logging: %v\n", err)
	}
	return &CloudSink{
		logger: client.Logger(logID, logging.CommonLabels(labels)),
		close:  client.Close,
	}, nil
}

func (s *CloudSink) Log(severity logging.Severity, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.logger.Log(logging.Entry{
		Timestamp: time.Now(),
		Severity:  severity,
		Payload:   message,
	})
}

func (s *CloudSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.logger.Flush()
}

// Close flushes buffered entries and releases the client.
func (s *CloudSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.logger.Flush(); err != nil {
		return err
	}
	if s.close != nil {
		return s.close()
	}
	return nil
}

// LogEntry is one line written by JSONSink, in the shape the Cloud Logging
// agent parses from stderr.
type LogEntry struct {
	Severity  string            `json:"severity"`
	Message   string            `json:"message"`
	Timestamp time.Time         `json:"timestamp"`
	Labels    map[string]string `json:"logging.googleapis.com/labels,omitempty"`
}

// JSONSink writes one structured JSON entry per line.
type JSONSink struct {
	mu     sync.Mutex
	writer io.Writer
	labels map[string]string
	now    func() time.Time
}

// NewJSONSink writes to w; stderr when w is nil.
func NewJSONSink(w io.Writer, labels map[string]string) *JSONSink {
	if w == nil {
		w = os.Stderr
	}
	return &JSONSink{writer: w, labels: labels, now: time.Now}
}

func (s *JSONSink) Log(severity logging.Severity, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(LogEntry{
		Severity:  strings.ToUpper(severity.String()),
		Message:   message,
		Timestamp: s.now().UTC(),
		Labels:    s.labels,
	})
	if err != nil {
		fmt.Fprintf(s.writer, `{"severity":"ERROR","message":"failed to marshal log entry: %v"}`+"\n", err)
		return
	}
	fmt.Fprintf(s.writer, "%s\n", data)
}

// Flush is a no-op; writes are synchronous.
func (s *JSONSink) Flush() error {
	return nil
}

func (s *JSONSink) Close() error {
	return nil
}

var (
	_ Sink = (*CloudSink)(nil)
	_ Sink = (*JSONSink)(nil)
)
