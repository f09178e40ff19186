package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/shopfloor/internal/models"
)

// Options configures a Dispatcher.
type Options struct {
	Workers   int
	QueueSize int
	Retry     RetryConfig
	Timeout   time.Duration // per delivery attempt
	Logger    *slog.Logger
	OnError   func(error) // receives *DeliveryError
	Recorder  Recorder
	Log       DeliveryLog
}

// Dispatcher queues events and delivers them to sinks on worker goroutines.
type Dispatcher struct {
	sinks []Sink
	opts  Options
	queue chan Event

	mu     sync.RWMutex
	closed bool
	start  sync.Once
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher for sinks. Call Start before Notify
// and Close on shutdown.
func NewDispatcher(sinks []Sink, opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryConfig()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Dispatcher{
		sinks: sinks,
		opts:  opts,
		queue: make(chan Event, opts.QueueSize),
	}
}

// Sinks returns the configured sinks.
func (d *Dispatcher) Sinks() []Sink {
	return d.sinks
}

// Start launches the workers. ctx bounds delivery; it should outlive the
// requests that submit events.
func (d *Dispatcher) Start(ctx context.Context) {
	d.start.Do(func() {
		for i := 0; i < d.opts.Workers; i++ {
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				for evt := range d.queue {
					d.deliver(ctx, evt)
				}
			}()
		}
	})
}

// Notify enqueues evt without blocking.
func (d *Dispatcher) Notify(_ context.Context, evt Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- evt:
		if d.opts.Recorder != nil {
			d.opts.Recorder.NotificationQueued(evt.Kind)
		}
		return nil
	default:
		if d.opts.Recorder != nil {
			d.opts.Recorder.NotificationDropped(evt.Kind)
		}
		return ErrQueueFull
	}
}

// Close stops accepting events, drains the queue and waits for the workers.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, evt Event) {
	for _, sink := range d.sinks {
		targets := []Sink{sink}
		if f, ok := sink.(Fanout); ok {
			var err error
			targets, err = f.Endpoints(ctx, evt)
			if err != nil {
				d.fail(evt, sink.Name(), 0, err)
				continue
			}
		}
		for _, target := range targets {
			d.deliverOne(ctx, evt, target)
		}
	}
}

func (d *Dispatcher) deliverOne(ctx context.Context, evt Event, sink Sink) {
	attempts, err := retryWithBackoff(ctx, d.opts.Retry, func(ctx context.Context) error {
		actx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
		return sink.Deliver(actx, evt)
	})

	if d.opts.Recorder != nil {
		d.opts.Recorder.NotificationDelivered(evt.Kind, sink.Name(), attempts, err)
	}
	d.record(ctx, evt, sink, attempts, err)

	if err != nil {
		d.fail(evt, sink.Name(), attempts, err)
		return
	}
	d.opts.Logger.Debug("notification delivered",
		"event_id", evt.ID, "kind", evt.Kind, "tenant", evt.TenantID, "sink", sink.Name(), "attempts", attempts)
}

func (d *Dispatcher) fail(evt Event, sink string, attempts int, err error) {
	de := &DeliveryError{Sink: sink, EventID: evt.ID, Kind: evt.Kind, Attempts: attempts, Err: err}
	d.opts.Logger.Warn("notification delivery failed",
		"event_id", evt.ID, "kind", evt.Kind, "tenant", evt.TenantID, "sink", sink, "attempts", attempts, "error", err)
	if d.opts.OnError != nil {
		d.opts.OnError(de)
	}
}

func (d *Dispatcher) record(ctx context.Context, evt Event, sink Sink, attempts int, err error) {
	if d.opts.Log == nil {
		return
	}
	entry := models.WebhookLog{
		ID:        uuid.NewString(),
		TenantID:  evt.TenantID,
		EventID:   evt.ID,
		EventKind: evt.Kind,
		Sink:      sink.Name(),
		Attempts:  attempts,
	}
	if w, ok := sink.(interface{ WebhookID() string }); ok {
		id := w.WebhookID()
		entry.WebhookID = &id
	}
	if err != nil {
		entry.Error = err.Error()
		var se *StatusError
		if errors.As(err, &se) {
			entry.StatusCode = se.Code
		}
	} else {
		entry.StatusCode = 200
	}
	if lerr := d.opts.Log.Record(context.WithoutCancel(ctx), entry); lerr != nil {
		d.opts.Logger.Warn("record delivery log", "event_id", evt.ID, "error", lerr)
	}
}
