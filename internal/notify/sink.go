package notify

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrQueueFull is returned by Notify when the dispatcher cannot accept more events.
	ErrQueueFull = errors.New("notify: queue full")
	// ErrClosed is returned by Notify after Close.
	ErrClosed = errors.New("notify: dispatcher closed")
)

// Sink delivers one event to one destination.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, evt Event) error
}

// Fanout is implemented by sinks whose destinations depend on the event,
// such as per-tenant webhook subscriptions. Each endpoint is delivered and
// retried on its own.
type Fanout interface {
	Endpoints(ctx context.Context, evt Event) ([]Sink, error)
}

// Recorder observes dispatcher activity. internal/metrics implements it.
type Recorder interface {
	NotificationQueued(kind string)
	NotificationDropped(kind string)
	NotificationDelivered(kind, sink string, attempts int, err error)
}

// DeliveryError describes a notification that could not be delivered.
type DeliveryError struct {
	Sink     string
	EventID  string
	Kind     string
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("notify: deliver %s %s to %s after %d attempt(s): %v", e.Kind, e.EventID, e.Sink, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// StatusError is returned by HTTP sinks for non-2xx responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// PermanentError marks a failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so the dispatcher stops retrying it.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}
