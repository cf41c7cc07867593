//go:build unit

package txevents

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_Idle(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()

	assert.Equal(t, 0, tracker.CurrentLevel())
	assert.Equal(t, 0, tracker.Depth())
	assert.False(t, tracker.InTransaction())

	_, ok := tracker.Top()
	assert.False(t, ok)
}

func TestTracker_BeginAssignsContiguousLevels(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()

	assert.Equal(t, 1, tracker.Begin())
	assert.Equal(t, 2, tracker.Begin())
	assert.Equal(t, 3, tracker.Begin())
	assert.Equal(t, 3, tracker.CurrentLevel())
	assert.Equal(t, 3, tracker.Depth())
	assert.True(t, tracker.InTransaction())

	frame, ok := tracker.Top()
	require.True(t, ok)
	assert.Equal(t, 3, frame.Level)
	assert.NotEqual(t, uuid.Nil, frame.ID)
	assert.Equal(t, time.UTC, frame.BeganAt.Location())
	assert.WithinDuration(t, time.Now().UTC(), frame.BeganAt, time.Minute)
}

func TestTracker_CommitPopsInLIFOOrder(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	tracker.Begin()
	tracker.Begin()
	tracker.Begin()

	level, ok := tracker.Commit()
	require.True(t, ok)
	assert.Equal(t, 3, level)

	level, ok = tracker.Commit()
	require.True(t, ok)
	assert.Equal(t, 2, level)

	level, ok = tracker.Rollback()
	require.True(t, ok)
	assert.Equal(t, 1, level)

	assert.False(t, tracker.InTransaction())
}

func TestTracker_PopClampsAtEmpty(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()

	level, ok := tracker.Commit()
	assert.False(t, ok)
	assert.Equal(t, 0, level)

	level, ok = tracker.Rollback()
	assert.False(t, ok)
	assert.Equal(t, 0, level)

	tracker.Begin()
	tracker.Rollback()

	_, ok = tracker.Commit()
	assert.False(t, ok)
	assert.Equal(t, 0, tracker.Depth())
}

func TestTracker_LevelsStayContiguousAfterPop(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	tracker.Begin()
	tracker.Begin()

	level, ok := tracker.Commit()
	require.True(t, ok)
	assert.Equal(t, 2, level)

	assert.Equal(t, 2, tracker.Begin())
	assert.Equal(t, 2, tracker.CurrentLevel())
}
