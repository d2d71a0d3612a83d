package trace

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipegate/internal/errcode"
	"github.com/fyrsmithlabs/pipegate/internal/logging"
	"github.com/fyrsmithlabs/pipegate/internal/pipeline"
	"github.com/fyrsmithlabs/pipegate/internal/store"
	"github.com/fyrsmithlabs/pipegate/pkg/secrets"
)

// Log appends to and reads one run's trace file.
type Log struct {
	path     string
	runID    string
	scrubber secrets.Scrubber
	now      func() time.Time

	mu sync.Mutex
}

// Option configures a Log.
type Option func(*Log)

// WithScrubber redacts secrets from event messages before they are written.
func WithScrubber(s secrets.Scrubber) Option {
	return func(l *Log) {
		if s != nil {
			l.scrubber = s
		}
	}
}

// WithClock overrides the clock used to stamp events.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		if now != nil {
			l.now = now
		}
	}
}

// Open prepares the run's directories and trace file.
func Open(ws *store.Workspace, runID string, opts ...Option) (*Log, error) {
	if _, err := ws.EnsureRunDirs(runID); err != nil {
		return nil, err
	}
	path, err := ws.TracePath(runID)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to create trace file: %w", err)
	}

	l := &Log{
		path:     path,
		runID:    runID,
		scrubber: secrets.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Path returns the trace file path.
func (l *Log) Path() string {
	return l.path
}

// RunID returns the run the log belongs to.
func (l *Log) RunID() string {
	return l.runID
}

// Append stamps and writes one event. Event and phase are required; ts and
// run_id are filled when empty.
func (l *Log) Append(ctx context.Context, e Event) (Event, error) {
	if e.Event == "" {
		return Event{}, errcode.BadInputf("trace payload requires event")
	}
	if e.Phase == "" {
		return Event{}, errcode.BadInputf("trace payload requires phase")
	}
	if e.TS == "" {
		e.TS = pipeline.Timestamp(l.now())
	}
	if e.RunID == "" {
		e.RunID = l.runID
	}
	if e.Message != "" {
		res := l.scrubber.Scrub(e.Message)
		if res.HasRedactions() {
			logging.FromContext(ctx).Warn(ctx, "redacted secrets from trace message",
				zap.String("run.id", l.runID),
				zap.String("phase", e.Phase),
				zap.Any("rules", res.RuleCounts()),
			)
		}
		e.Message = res.Content
	}
	e.raw = nil

	line, err := json.Marshal(e)
	if err != nil {
		return Event{}, fmt.Errorf("failed to encode trace event: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return Event{}, fmt.Errorf("failed to open trace file: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return Event{}, fmt.Errorf("failed to append trace event: %w", err)
	}
	if err := f.Close(); err != nil {
		return Event{}, fmt.Errorf("failed to append trace event: %w", err)
	}

	logging.FromContext(ctx).Trace(ctx, "trace event",
		zap.String("run.id", e.RunID),
		zap.String("event", string(e.Event)),
		zap.String("phase", e.Phase),
		zap.String("status", e.Status),
	)
	return e, nil
}

// Read returns every event in file order. A line that is not valid JSON is
// E_BAD_TRACE.
func (l *Log) Read() ([]Event, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Event{}, nil
		}
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	return Parse(data)
}

// Parse decodes JSONL trace content. Blank lines are skipped; line numbers
// in errors count only non-blank lines.
func Parse(data []byte) ([]Event, error) {
	events := []Event{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	n := 0
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		n++
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, errcode.New(errcode.BadTrace, "invalid trace JSONL at line %d: %v", n, err)
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, errcode.New(errcode.BadTrace, "invalid trace JSONL: %v", err)
	}
	return events, nil
}

// Has reports whether any event of the given kind was recorded.
func (l *Log) Has(kind Kind) (bool, error) {
	events, err := l.Read()
	if err != nil {
		return false, err
	}
	for _, e := range events {
		if e.Event == kind {
			return true, nil
		}
	}
	return false, nil
}

// Count returns how many events of kind were recorded for phase.
func (l *Log) Count(kind Kind, phase string) (int, error) {
	events, err := l.Read()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range events {
		if e.Event == kind && e.Phase == phase {
			n++
		}
	}
	return n, nil
}
