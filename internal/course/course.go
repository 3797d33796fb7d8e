// Package course holds the fixed objective sequence a learner walks through
// and the prompts the tutor uses for each objective.
package course

import (
	"errors"
	"fmt"
)

// DefaultSentinel is appended by the model when it judges an objective complete.
const DefaultSentinel = "OBJECTIVE_COMPLETED"

// ErrObjectiveOutOfRange is returned when an objective index falls outside the course.
var ErrObjectiveOutOfRange = errors.New("objective index out of range")

// Objective is one step of the course. Instruction tells the model what to
// teach while the objective is current.
type Objective struct {
	Title       string `yaml:"title"`
	Instruction string `yaml:"instruction"`
}

// Course is an immutable ordered list of objectives.
type Course struct {
	Title      string
	Persona    string
	Objectives []Objective
	Sentinel   string
}

// Len returns the number of objectives.
func (c Course) Len() int { return len(c.Objectives) }

// Objective returns the objective at index i.
func (c Course) Objective(i int) (Objective, error) {
	if i < 0 || i >= len(c.Objectives) {
		return Objective{}, fmt.Errorf("%w: %d not in [0, %d)", ErrObjectiveOutOfRange, i, len(c.Objectives))
	}
	return c.Objectives[i], nil
}

// Titles lists every objective title in order.
func (c Course) Titles() []string {
	out := make([]string, len(c.Objectives))
	for i, o := range c.Objectives {
		out[i] = o.Title
	}
	return out
}

// Validate reports configuration errors that would break the tracker invariant.
func (c Course) Validate() error {
	if len(c.Objectives) == 0 {
		return errors.New("course has no objectives")
	}
	for i, o := range c.Objectives {
		if o.Title == "" {
			return fmt.Errorf("objective %d has no title", i)
		}
		if o.Instruction == "" {
			return fmt.Errorf("objective %d (%q) has no instruction", i, o.Title)
		}
	}
	return nil
}

// SentinelOrDefault returns the configured sentinel or DefaultSentinel.
func (c Course) SentinelOrDefault() string {
	if c.Sentinel == "" {
		return DefaultSentinel
	}
	return c.Sentinel
}
