package notify

import (
	"fmt"
	"strings"
)

// Title returns a short headline for chat sinks.
func Title(evt Event) string {
	switch evt.Kind {
	case KindWorkStarted:
		return "Work started"
	case KindWorkCompleted:
		return "Work completed"
	}
	return evt.Kind
}

// Summary renders evt as one human-readable line.
func Summary(evt Event) string {
	p := evt.Payload
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", Title(evt), p.TaskName)
	if p.StageName != "" {
		fmt.Fprintf(&b, " [%s]", p.StageName)
	}
	fmt.Fprintf(&b, " on part %s of job %s", p.PartNumber, p.JobNumber)
	if p.OperatorName != "" {
		fmt.Fprintf(&b, " by %s", p.OperatorName)
	}
	if evt.Kind == KindWorkCompleted && p.ActualTime != nil {
		fmt.Fprintf(&b, " (%d min", *p.ActualTime)
		if p.EstimatedTime != nil && *p.EstimatedTime > 0 {
			fmt.Fprintf(&b, " of %d estimated", *p.EstimatedTime)
		}
		b.WriteString(")")
	}
	return b.String()
}
