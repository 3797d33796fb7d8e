// Package session holds the state of one learner's tutoring session: the
// objective pointer, the conversation log and the in-flight turn.
package session

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"tutor/internal/course"
	"tutor/internal/domain"
)

// Session is owned by exactly one learner. All methods are safe for
// concurrent use so a cancelled turn finishing late cannot corrupt state.
type Session struct {
	mu sync.Mutex

	id      string
	course  course.Course
	tracker *course.Tracker

	messages  []domain.Message
	completed bool

	// set by Advance, consumed once by the orchestrator
	justAdvanced bool
	prevTitle    string

	turnSeq uint64
	cancel  context.CancelFunc
}

// Snapshot is a consistent copy of the session for rendering.
type Snapshot struct {
	ID        string
	Objective int
	Completed bool
	IsLast    bool
	Messages  []domain.Message
}

// New starts a session at objective 0 with an empty conversation.
func New(c course.Course) *Session {
	return &Session{
		id:      uuid.NewString(),
		course:  c,
		tracker: course.NewTracker(c.Len()),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Course returns the course this session walks through.
func (s *Session) Course() course.Course { return s.course }

// Objective returns the current objective index.
func (s *Session) Objective() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Current()
}

// Completed reports whether the model signalled completion of the current objective.
func (s *Session) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

// Snapshot copies the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:        s.id,
		Objective: s.tracker.Current(),
		Completed: s.completed,
		IsLast:    s.tracker.IsLast(),
		Messages:  cloneAll(s.messages),
	}
}

// Messages returns a copy of the full conversation, hidden messages included.
func (s *Session) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.messages)
}

// Visible returns the messages that should be rendered.
func (s *Session) Visible() []domain.Message {
	return VisibleOf(s.Messages())
}

// VisibleOf filters hidden messages out of msgs.
func VisibleOf(msgs []domain.Message) []domain.Message {
	out := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if !m.Hidden {
			out = append(out, m)
		}
	}
	return out
}

// Window returns the last n messages, hidden ones included.
func (s *Session) Window(n int) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := len(s.messages) - n
	if start < 0 || n <= 0 {
		start = 0
	}
	return cloneAll(s.messages[start:])
}

// Reset empties the conversation and abandons any in-flight turn. The
// objective pointer is kept.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abandonTurnLocked()
	s.messages = nil
}

// Advance moves to the next objective, clears the conversation and arms the
// just-advanced flag. It returns the title of the objective just finished.
// At the last objective it fails without mutating anything.
func (s *Session) Advance() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, err := s.tracker.Advance()
	if err != nil {
		return "", err
	}
	s.abandonTurnLocked()
	s.messages = nil
	s.completed = false
	s.justAdvanced = true
	s.prevTitle = s.course.Objectives[prev].Title
	return s.prevTitle, nil
}

// SetObjective jumps to objective i and clears the conversation. No transition
// message is armed. Setting the current index is a no-op.
func (s *Session) SetObjective(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i == s.tracker.Current() {
		return nil
	}
	if err := s.tracker.Set(i); err != nil {
		return err
	}
	s.abandonTurnLocked()
	s.messages = nil
	s.completed = false
	s.justAdvanced = false
	return nil
}

// ConsumeJustAdvanced returns the title of the objective finished by the last
// Advance. It reports true at most once per Advance.
func (s *Session) ConsumeJustAdvanced() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.justAdvanced {
		return "", false
	}
	s.justAdvanced = false
	return s.prevTitle, true
}

// BeginTurn abandons any in-flight turn, records the user message and returns
// a sequence number identifying the new turn.
func (s *Session) BeginTurn(cancel context.CancelFunc, user domain.Message) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abandonTurnLocked()
	s.cancel = cancel
	s.messages = append(s.messages, user.Clone())
	return s.turnSeq
}

// IsCurrent reports whether seq still identifies the active turn.
func (s *Session) IsCurrent(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return seq == s.turnSeq
}

// CommitReply appends the assistant reply of turn seq. It returns false and
// leaves the conversation untouched if the turn was superseded.
func (s *Session) CommitReply(seq uint64, reply domain.Message, completed bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.turnSeq {
		return false
	}
	s.messages = append(s.messages, reply.Clone())
	if completed {
		s.completed = true
	}
	s.cancel = nil
	return true
}

// EndTurn releases the turn's cancel function without committing anything.
func (s *Session) EndTurn(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq == s.turnSeq {
		s.cancel = nil
	}
}

// CancelTurn abandons the in-flight turn, if any.
func (s *Session) CancelTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abandonTurnLocked()
}

func (s *Session) abandonTurnLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.turnSeq++
}

func cloneAll(msgs []domain.Message) []domain.Message {
	out := make([]domain.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
