package course

import "fmt"

// Tracker holds the learner's position in the course. The index is always in
// [0, n). Tracker is not safe for concurrent use; the owning session guards it.
type Tracker struct {
	current int
	n       int
}

// NewTracker starts at objective 0 of a course with n objectives.
func NewTracker(n int) *Tracker {
	return &Tracker{n: n}
}

// Current returns the index of the current objective.
func (t *Tracker) Current() int { return t.current }

// Len returns the number of objectives tracked.
func (t *Tracker) Len() int { return t.n }

// IsLast reports whether the current objective is the final one.
func (t *Tracker) IsLast() bool { return t.current >= t.n-1 }

// Advance moves to the next objective and returns the previous index.
// At the last objective it fails without changing state.
func (t *Tracker) Advance() (int, error) {
	if t.IsLast() {
		return t.current, fmt.Errorf("%w: already at last objective %d", ErrObjectiveOutOfRange, t.current)
	}
	prev := t.current
	t.current++
	return prev, nil
}

// Set jumps to objective i.
func (t *Tracker) Set(i int) error {
	if i < 0 || i >= t.n {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrObjectiveOutOfRange, i, t.n)
	}
	t.current = i
	return nil
}
