package session

import (
	"context"
	"sync"

	"github.com/m3rciful/betbot/core/telegram/state"
)

// memoryStore keeps links and state in maps. Used when storage.mode=memory;
// everything is lost on restart.
type memoryStore struct {
	mu     sync.RWMutex
	links  map[int64]Link
	states map[state.Identity]StoredState
}

// NewMemoryStore builds a process-local Store.
func NewMemoryStore() Store {
	return &memoryStore{
		links:  make(map[int64]Link),
		states: make(map[state.Identity]StoredState),
	}
}

func (m *memoryStore) GetLink(ctx context.Context, id state.Identity) (Link, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	link, ok := m.links[id.ChatID]
	return link, ok, nil
}

func (m *memoryStore) UpsertLink(ctx context.Context, link Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[link.ChatID] = link
	return nil
}

func (m *memoryStore) SetLanguage(ctx context.Context, id state.Identity, lang string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	link := m.links[id.ChatID]
	link.ChatID = id.ChatID
	link.UserID = id.UserID
	link.Language = lang
	m.links[id.ChatID] = link
	return nil
}

func (m *memoryStore) ClearPrivileged(ctx context.Context, id state.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.links[id.ChatID]
	if !ok {
		return nil
	}
	link.AccessToken = ""
	link.Role = ""
	m.links[id.ChatID] = link
	return nil
}

func (m *memoryStore) FindByAccount(ctx context.Context, playerUUID string) (Link, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		best  Link
		found bool
	)
	for _, link := range m.links {
		if link.PlayerUUID != playerUUID {
			continue
		}
		if !found || link.UpdatedAt.After(best.UpdatedAt) {
			best = link
			found = true
		}
	}
	return best, found, nil
}

func (m *memoryStore) LoadState(ctx context.Context, id state.Identity) (StoredState, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[id]
	return st, ok, nil
}

func (m *memoryStore) SaveState(ctx context.Context, st StoredState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.Identity{ChatID: st.ChatID, UserID: st.UserID}] = st
	return nil
}

func (m *memoryStore) DeleteState(ctx context.Context, id state.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, id)
	return nil
}
