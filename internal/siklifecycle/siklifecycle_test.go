package siklifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdleToReconfigureOne(t *testing.T) {
	m := New(nil)
	m.FlagUpdateSik(1, []int{0, 1, 2})
	assert.Equal(t, StateReconfigureOne, m.State())
	assert.Equal(t, 1, m.ReconfigureIndex())
	assert.True(t, m.ReopenPending(1))
	assert.False(t, m.ReopenPending(0))
}

func TestReconfigureOneReturnsToIdleWhenAllReopened(t *testing.T) {
	m := New(nil)
	m.FlagUpdateSik(-1, []int{0, 1})
	m.MarkReopened(0)
	assert.Equal(t, StateReconfigureOne, m.State())
	m.MarkReopened(1)
	assert.Equal(t, StateIdle, m.State())
}

func TestReinitAllSupersedesReconfigureOne(t *testing.T) {
	m := New(nil)
	m.FlagUpdateSik(1, []int{0, 1, 2})
	m.FlagReinitSik(2, []int{0, 1, 2})

	assert.Equal(t, StateReinitAll, m.State())
	assert.Equal(t, 2, m.BrokenInterface())
}

func TestReinitAllWinsOverReconfigureRequest(t *testing.T) {
	// SiK state exclusivity (spec §8): once reinitAll is set, a stray
	// FlagUpdateSik must not re-introduce reconfigureIndex >= 0.
	m := New(nil)
	m.FlagReinitSik(0, []int{0, 1})
	m.FlagUpdateSik(1, []int{0, 1})

	assert.Equal(t, StateReinitAll, m.State())
	assert.Equal(t, -1, m.ReconfigureIndex())
}

func TestEscalationReconfigureToReinit(t *testing.T) {
	m := New(nil)
	m.FlagUpdateSik(3, []int{3})
	m.MarkOperationFailed(3, []int{3})
	assert.Equal(t, StateReconfigureOne, m.State(), "first failure does not escalate yet")
	m.MarkOperationFailed(3, []int{3})
	assert.Equal(t, StateReinitAll, m.State(), "second consecutive failure escalates")
}

func TestResetReturnsToIdleRegardlessOfPending(t *testing.T) {
	m := New(nil)
	m.FlagReinitSik(0, nil) // no SiK interfaces tracked, as when the broken interface was WiFi
	assert.Equal(t, StateReinitAll, m.State())

	m.Reset()

	assert.Equal(t, StateIdle, m.State())
	assert.False(t, m.ReopenPending(0))
}

func TestEscalationReinitToFullRadioReinit(t *testing.T) {
	var escalated int
	var gotBroken = -1
	m := New(func(broken int) {
		escalated++
		gotBroken = broken
	})
	m.FlagReinitSik(5, []int{5})
	m.MarkOperationFailed(5, []int{5})
	assert.Equal(t, 0, escalated)
	m.MarkOperationFailed(5, []int{5})
	require.Equal(t, 1, escalated)
	assert.Equal(t, 5, gotBroken)
}
