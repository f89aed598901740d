package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketcron/pocketcron/internal/model"
)

func entryAt(seq int, at time.Time) *dueEntry {
	return &dueEntry{job: &model.Job{ID: seq}, at: at, seq: seq}
}

func TestDueIndex(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("PeekSoonest", func(t *testing.T) {
		var ix dueIndex
		_, ok := ix.peekSoonest()
		assert.False(t, ok)

		ix.insert(entryAt(1, base.Add(3*time.Minute)))
		ix.insert(entryAt(2, base.Add(1*time.Minute)))
		ix.insert(entryAt(3, base.Add(2*time.Minute)))

		at, ok := ix.peekSoonest()
		require.True(t, ok)
		assert.Equal(t, base.Add(1*time.Minute), at)
		assert.Equal(t, 3, ix.len())
	})

	t.Run("PopAllDue", func(t *testing.T) {
		var ix dueIndex
		ix.insert(entryAt(1, base.Add(2*time.Minute)))
		ix.insert(entryAt(2, base.Add(1*time.Minute)))
		ix.insert(entryAt(3, base.Add(5*time.Minute)))

		due := ix.popAllDue(base.Add(2 * time.Minute))
		require.Len(t, due, 2)
		assert.Equal(t, 2, due[0].seq)
		assert.Equal(t, 1, due[1].seq)

		// Nothing left at or before the pop instant.
		at, ok := ix.peekSoonest()
		require.True(t, ok)
		assert.True(t, at.After(base.Add(2*time.Minute)))

		assert.Empty(t, ix.popAllDue(base.Add(2*time.Minute)))
	})

	t.Run("SimultaneousFiresInRegistrationOrder", func(t *testing.T) {
		var ix dueIndex
		at := base.Add(time.Minute)
		for _, seq := range []int{4, 1, 3, 2} {
			ix.insert(entryAt(seq, at))
		}

		due := ix.popAllDue(at)
		require.Len(t, due, 4)
		for i, e := range due {
			assert.Equal(t, i+1, e.seq)
		}
	})
}
