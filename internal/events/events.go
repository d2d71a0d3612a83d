// Package events publishes trace events to NATS so dashboards and other
// consumers can follow runs without reading the workspace.
//
// Each event is published as JSON on:
//
//	<prefix>.<run_id>.<event>
//
// for example pipegate.runs.run-1.gate_result. Subscribers use
// pipegate.runs.run-1.> for one run or pipegate.runs.*.gate_result for every
// gate verdict.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/fyrsmithlabs/pipegate/internal/trace"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "pipegate.runs"

const flushTimeout = 2 * time.Second

// Publisher sends trace events to an external bus.
type Publisher interface {
	Publish(ctx context.Context, e trace.Event) error
}

// Connect dials NATS the way long-lived clients should: retrying the first
// connect and reconnecting a bounded number of times.
func Connect(url string, opts ...nats.Option) (*nats.Conn, error) {
	opts = append([]nats.Option{
		nats.Name("pipegate"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	}, opts...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// NATSPublisher publishes events on a NATS connection it owns.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

var _ Publisher = (*NATSPublisher)(nil)

// NewNATSPublisher publishes on nc under prefix, or DefaultSubjectPrefix
// when prefix is empty.
func NewNATSPublisher(nc *nats.Conn, prefix string) *NATSPublisher {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{nc: nc, prefix: prefix}
}

// Subject returns the subject e is published on. Dots in the run id would
// split the token, so they become underscores.
func (p *NATSPublisher) Subject(e trace.Event) string {
	runID := strings.ReplaceAll(e.RunID, ".", "_")
	return fmt.Sprintf("%s.%s.%s", p.prefix, runID, e.Event)
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(ctx context.Context, e trace.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.nc.Publish(p.Subject(e), data); err != nil {
		return fmt.Errorf("publish %s event: %w", e.Event, err)
	}
	return nil
}

// Close flushes buffered events and closes the connection.
func (p *NATSPublisher) Close() error {
	err := p.nc.FlushTimeout(flushTimeout)
	p.nc.Close()
	if err != nil {
		return fmt.Errorf("flush events: %w", err)
	}
	return nil
}
