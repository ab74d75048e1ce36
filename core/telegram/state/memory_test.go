package state

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateDataMerges(t *testing.T) {
	m := NewMemoryManager()
	id := Identity{ChatID: 1, UserID: 1}

	m.SetFlow(id, "deposit", "selecting_bank")
	m.UpdateData(id, map[string]interface{}{"bank_id": "b1"})
	m.UpdateData(id, map[string]interface{}{"amount": 250.0})

	session := m.Get(id)
	assert.Equal(t, Flow("deposit"), session.Flow)
	assert.Equal(t, "b1", session.Data["bank_id"])
	assert.Equal(t, 250.0, session.Data["amount"])

	// Overwriting one key leaves the others intact.
	m.UpdateData(id, map[string]interface{}{"amount": 300.0})
	session = m.Get(id)
	assert.Equal(t, "b1", session.Data["bank_id"])
	assert.Equal(t, 300.0, session.Data["amount"])
}

func TestGetReturnsSnapshot(t *testing.T) {
	m := NewMemoryManager()
	id := Identity{ChatID: 2, UserID: 2}

	m.UpdateData(id, map[string]interface{}{"bank_id": "b1"})
	snapshot := m.Get(id)
	snapshot.Data["bank_id"] = "tampered"

	fresh := m.Get(id)
	assert.Equal(t, "b1", fresh.Data["bank_id"])
}

func TestClearPreservesListedKeys(t *testing.T) {
	m := NewMemoryManager()
	id := Identity{ChatID: 3, UserID: 3}

	m.SetFlow(id, "admin_review", "viewing_list")
	m.UpdateData(id, map[string]interface{}{
		"tx_cache": map[string]string{"42": "pending"},
		"scope":    "recent",
	})

	m.Clear(id, "tx_cache")

	session := m.Get(id)
	assert.Equal(t, FlowNone, session.Flow)
	assert.Equal(t, StepNone, session.Step)
	assert.Contains(t, session.Data, "tx_cache")
	assert.NotContains(t, session.Data, "scope")
	assert.False(t, m.InProgress(id))
}

func TestClearWithoutStateIsNoop(t *testing.T) {
	m := NewMemoryManager()
	id := Identity{ChatID: 4, UserID: 4}

	require.NotPanics(t, func() {
		m.Clear(id)
		m.Clear(id, "tx_cache")
	})
	assert.False(t, m.InProgress(id))
}

func TestInProgressRequiresFlow(t *testing.T) {
	m := NewMemoryManager()
	id := Identity{ChatID: 5, UserID: 5}

	// Data alone does not mark a conversation as active.
	m.UpdateData(id, map[string]interface{}{"lang": "en"})
	assert.False(t, m.InProgress(id))

	m.SetFlow(id, "withdraw", "selecting_bank")
	assert.True(t, m.InProgress(id))

	m.Clear(id)
	assert.False(t, m.InProgress(id))
}

func TestSetStepRequiresActiveFlow(t *testing.T) {
	m := NewMemoryManager()
	id := Identity{ChatID: 7, UserID: 7}

	m.SetStep(id, "confirming")
	session := m.Get(id)
	assert.Equal(t, FlowNone, session.Flow)
	assert.Equal(t, StepNone, session.Step)

	m.SetFlow(id, "deposit", "selecting_bank")
	m.SetStep(id, "confirming")
	assert.Equal(t, Step("confirming"), m.Get(id).Step)

	// A cleared conversation cannot pick up a step either.
	m.Clear(id)
	m.SetStep(id, "confirming")
	assert.Equal(t, StepNone, m.Get(id).Step)
}

func TestLockSerializesSameIdentity(t *testing.T) {
	m := NewMemoryManager()
	id := Identity{ChatID: 6, UserID: 6}

	var order []int
	var wg sync.WaitGroup
	release := m.Lock(id)

	wg.Add(1)
	go func() {
		defer wg.Done()
		unlock := m.Lock(id)
		order = append(order, 2)
		unlock()
	}()

	order = append(order, 1)
	release()
	wg.Wait()

	require.Equal(t, []int{1, 2}, order)
}
