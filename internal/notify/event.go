// Package notify delivers cascade side-effect events to external sinks.
//
// Submission is non-blocking: Dispatcher.Notify enqueues and returns. Worker
// goroutines deliver to every configured sink with retries, and failures are
// handed to an error callback instead of the caller.
package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
)

// Event kinds emitted by the cascade.
const (
	KindWorkStarted   = "work.started"
	KindWorkCompleted = "work.completed"
)

// Payload is the denormalized record attached to an event.
type Payload struct {
	TaskID        string `mapstructure:"task_id"`
	TaskName      string `mapstructure:"task_name"`
	StageID       string `mapstructure:"stage_id,omitempty"`
	StageName     string `mapstructure:"stage_name,omitempty"`
	PartID        string `mapstructure:"part_id"`
	PartNumber    string `mapstructure:"part_number"`
	JobID         string `mapstructure:"job_id"`
	JobNumber     string `mapstructure:"job_number"`
	OperatorID    string `mapstructure:"operator_id,omitempty"`
	OperatorName  string `mapstructure:"operator_name,omitempty"`
	EmployeeID    string `mapstructure:"employee_id,omitempty"`
	StartedAt     string `mapstructure:"started_at,omitempty"`
	CompletedAt   string `mapstructure:"completed_at,omitempty"`
	ActualTime    *int   `mapstructure:"actual_time,omitempty"`
	EstimatedTime *int   `mapstructure:"estimated_time,omitempty"`
}

// Fields flattens the payload into the map sent on the wire.
func (p Payload) Fields() (map[string]interface{}, error) {
	out := make(map[string]interface{})
	if err := mapstructure.Decode(p, &out); err != nil {
		return nil, fmt.Errorf("notify: flatten payload: %w", err)
	}
	return out, nil
}

// Event is one notification.
type Event struct {
	ID         string
	Kind       string
	TenantID   string
	OccurredAt time.Time
	Payload    Payload
}

// NewEvent stamps a new event with a fresh id.
func NewEvent(kind, tenantID string, at time.Time, payload Payload) Event {
	return Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		TenantID:   tenantID,
		OccurredAt: at.UTC(),
		Payload:    payload,
	}
}

// Timestamp formats t the way payload timestamps are sent.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
