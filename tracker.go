package txevents

import (
	"time"

	"github.com/google/uuid"
)

// TransactionFrame describes one active transaction in the stack.
type TransactionFrame struct {
	ID      uuid.UUID
	Level   int
	BeganAt time.Time
}

// Tracker follows the nesting depth of the host's open transactions.
// Levels are contiguous starting at 1 for the outermost transaction.
//
// A Tracker belongs to exactly one transaction stack and carries no
// internal locking: the host must confine it to the single execution
// context that drives that stack's lifecycle.
type Tracker struct {
	frames []TransactionFrame
}

// NewTracker creates an idle tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Begin pushes a new frame and returns its nesting level (1 = outermost).
func (tracker *Tracker) Begin() int {
	level := tracker.CurrentLevel() + 1

	tracker.frames = append(tracker.frames, TransactionFrame{
		ID:      uuid.New(),
		Level:   level,
		BeganAt: time.Now().UTC(),
	})

	return level
}

// Commit pops the top frame and returns its level. ok is false when no
// transaction is active; the stack is clamped at empty.
func (tracker *Tracker) Commit() (int, bool) {
	return tracker.pop()
}

// Rollback pops the top frame and returns its level. ok is false when no
// transaction is active; the stack is clamped at empty.
func (tracker *Tracker) Rollback() (int, bool) {
	return tracker.pop()
}

func (tracker *Tracker) pop() (int, bool) {
	if len(tracker.frames) == 0 {
		return 0, false
	}

	top := len(tracker.frames) - 1
	level := tracker.frames[top].Level
	tracker.frames[top] = TransactionFrame{}
	tracker.frames = tracker.frames[:top]

	return level, true
}

// CurrentLevel returns the level of the innermost active transaction, or 0
// when the tracker is idle.
func (tracker *Tracker) CurrentLevel() int {
	if len(tracker.frames) == 0 {
		return 0
	}

	return tracker.frames[len(tracker.frames)-1].Level
}

// Depth returns the number of active frames.
func (tracker *Tracker) Depth() int {
	return len(tracker.frames)
}

// InTransaction reports whether at least one transaction is active.
func (tracker *Tracker) InTransaction() bool {
	return len(tracker.frames) > 0
}

// Top returns the innermost active frame.
func (tracker *Tracker) Top() (TransactionFrame, bool) {
	if len(tracker.frames) == 0 {
		return TransactionFrame{}, false
	}

	return tracker.frames[len(tracker.frames)-1], true
}
