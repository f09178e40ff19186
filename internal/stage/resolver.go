// Package stage resolves the earliest workflow stage among a set of tasks.
package stage

// Candidate is one task's position in the workflow.
type Candidate struct {
	TaskID   string
	StageID  string
	Sequence int
}

// ResolveEarliest returns the stage id with the lowest sequence, or nil when
// candidates is empty. Equal sequences are broken by the lower stage id and
// then the lower task id, so the result does not depend on input order.
func ResolveEarliest(candidates []Candidate) *string {
	if len(candidates) == 0 {
		return nil
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if less(c, best) {
			best = c
		}
	}
	id := best.StageID
	return &id
}

func less(a, b Candidate) bool {
	if a.Sequence != b.Sequence {
		return a.Sequence < b.Sequence
	}
	if a.StageID != b.StageID {
		return a.StageID < b.StageID
	}
	return a.TaskID < b.TaskID
}

// Equal reports whether two optional stage ids point at the same stage.
func Equal(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
