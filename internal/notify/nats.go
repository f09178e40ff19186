package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// publisher abstracts *nats.Conn for tests.
type publisher interface {
	Publish(subj string, data []byte) error
}

// NATSSink publishes events on <prefix>.<tenant>.<kind>.
type NATSSink struct {
	conn   publisher
	nc     *nats.Conn
	prefix string
}

// NewNATSSink connects to url.
func NewNATSSink(url, prefix string) (*NATSSink, error) {
	nc, err := nats.Connect(url, nats.Name("shopfloor"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("notify: connect nats %s: %w", url, err)
	}
	return &NATSSink{conn: nc, nc: nc, prefix: prefix}, nil
}

// Name implements Sink.
func (s *NATSSink) Name() string { return "nats" }

// Subject returns the subject evt is published on.
func (s *NATSSink) Subject(evt Event) string {
	return fmt.Sprintf("%s.%s.%s", s.prefix, evt.TenantID, evt.Kind)
}

// Deliver implements Sink.
func (s *NATSSink) Deliver(ctx context.Context, evt Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fields, err := evt.Payload.Fields()
	if err != nil {
		return Permanent(err)
	}
	data, err := json.Marshal(WebhookBody{
		ID:         evt.ID,
		Event:      evt.Kind,
		TenantID:   evt.TenantID,
		OccurredAt: Timestamp(evt.OccurredAt),
		Data:       fields,
	})
	if err != nil {
		return Permanent(err)
	}
	if err := s.conn.Publish(s.Subject(evt), data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Close drains the connection.
func (s *NATSSink) Close() error {
	if s.nc == nil {
		return nil
	}
	return s.nc.Drain()
}
