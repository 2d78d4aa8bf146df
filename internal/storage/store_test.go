package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"brokerCtl/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func outcome(id, state string) model.Outcome {
	return model.Outcome{
		ID: id,
		Descriptor: model.TaskDescriptor{
			ID:      id,
			Command: []string{"sh", "-c", "exit 1"},
			Env:     map[string]string{"K": "V"},
			Timeout: 1500 * time.Millisecond,
		},
		State:    state,
		Attempts: 2,
		ExitCode: 1,
		Duration: 250 * time.Millisecond,
		Message:  "boom",
	}
}

func TestRecordAndGetTask(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.RecordOutcome(outcome("a", model.StateFailed)))

	got, err := s.GetTask("a")
	require.NoError(t, err)
	assert.Equal(t, model.StateFailed, got.State)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, 1, got.ExitCode)
	assert.Equal(t, 250*time.Millisecond, got.Duration)
	assert.Equal(t, "boom", got.Message)
	assert.Equal(t, []string{"sh", "-c", "exit 1"}, got.Descriptor.Command)
	assert.Equal(t, "V", got.Descriptor.Env["K"])
	assert.Equal(t, 1500*time.Millisecond, got.Descriptor.Timeout)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestRecordOutcomeUpserts(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.RecordOutcome(outcome("a", model.StateFailed)))
	first, err := s.GetTask("a")
	require.NoError(t, err)

	next := outcome("a", model.StateCompleted)
	next.ExitCode = 0
	require.NoError(t, s.RecordOutcome(next))

	got, err := s.GetTask("a")
	require.NoError(t, err)
	assert.Equal(t, model.StateCompleted, got.State)
	assert.True(t, got.CreatedAt.Equal(first.CreatedAt))

	stats, err := s.GetStats()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{model.StateCompleted: 1}, stats)
}

func TestGetTaskNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetTask("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListByStateAndStats(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.RecordOutcome(outcome("a", model.StateFailed)))
	require.NoError(t, s.RecordOutcome(outcome("b", model.StateCompleted)))
	require.NoError(t, s.RecordOutcome(outcome("c", model.StateTimeout)))
	require.NoError(t, s.RecordOutcome(outcome("d", model.StateCanceled)))

	completed, err := s.ListByState(model.StateCompleted)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, "b", completed[0].ID)

	dead, err := s.ListDead()
	require.NoError(t, err)
	var ids []string
	for _, o := range dead {
		ids = append(ids, o.ID)
	}
	assert.ElementsMatch(t, []string{"a", "c"}, ids)

	stats, err := s.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats[model.StateFailed])
	assert.Equal(t, 1, stats[model.StateTimeout])
	assert.Equal(t, 1, stats[model.StateCanceled])
}

func TestRetryDeadTask(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.RecordOutcome(outcome("dead", model.StateTimeout)))
	require.NoError(t, s.RecordOutcome(outcome("fine", model.StateCompleted)))

	prev, err := s.RetryDeadTask("dead")
	require.NoError(t, err)
	assert.Equal(t, model.StateTimeout, prev.State)
	assert.Equal(t, "dead", prev.Descriptor.ID)
	assert.Equal(t, 1500*time.Millisecond, prev.Descriptor.Timeout)

	got, err := s.GetTask("dead")
	require.NoError(t, err)
	assert.Equal(t, model.StatePending, got.State)

	_, err = s.RetryDeadTask("fine")
	assert.Error(t, err)
	_, err = s.RetryDeadTask("dead")
	assert.Error(t, err, "a pending task is no longer dead")
}

func TestRetryDeadTaskCanBeRestored(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.RecordOutcome(outcome("dead", model.StateAborted)))

	prev, err := s.RetryDeadTask("dead")
	require.NoError(t, err)
	require.NoError(t, s.RecordOutcome(*prev))

	dead, err := s.ListDead()
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, model.StateAborted, dead[0].State)
}
