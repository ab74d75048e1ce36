package state

import (
	"sync"

	"github.com/m3rciful/betbot/core/logger"
	tghelpers "github.com/m3rciful/betbot/core/telegram/helpers"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

type memoryManager struct {
	mu       sync.RWMutex
	sessions map[Identity]*Session
	locksMu  sync.Mutex
	locks    map[Identity]*sync.Mutex
}

// NewMemoryManager constructs an in-memory Manager implementation.
// State does not survive process restart; use a store-backed manager for that.
func NewMemoryManager() Manager {
	return &memoryManager{
		sessions: make(map[Identity]*Session),
		locks:    make(map[Identity]*sync.Mutex),
	}
}

func copyData(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// Get returns a snapshot of the session, or an empty one when none exists.
func (m *memoryManager) Get(id Identity) Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if session, ok := m.sessions[id]; ok {
		return Session{Flow: session.Flow, Step: session.Step, Data: copyData(session.Data)}
	}
	return Session{Data: make(map[string]interface{})}
}

func (m *memoryManager) ensure(id Identity) *Session {
	session, ok := m.sessions[id]
	if !ok {
		session = &Session{Data: make(map[string]interface{})}
		m.sessions[id] = session
	}
	return session
}

// SetFlow activates a flow at the given step, keeping existing data.
func (m *memoryManager) SetFlow(id Identity, flow Flow, step Step) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session := m.ensure(id)
	session.Flow = flow
	session.Step = step
}

// SetStep moves the active flow to another step. A step cannot exist without
// a flow, so the call is rejected when no flow is active.
func (m *memoryManager) SetStep(id Identity, step Step) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok || session.Flow == FlowNone {
		logger.TG.LogAttrs(logger.Background(), slog.LevelWarn, "fsm.set_step",
			slog.String("status", "skip"),
			slog.Int64("chat_id", id.ChatID),
			slog.String("step", string(step)),
			slog.String("cause", "no active flow"),
		)
		return
	}
	session.Step = step
}

// UpdateData merges the patch into the session data.
func (m *memoryManager) UpdateData(id Identity, patch map[string]interface{}) {
	if len(patch) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	session := m.ensure(id)
	for k, v := range patch {
		session.Data[k] = v
	}
}

// Value returns a single data value.
func (m *memoryManager) Value(id Identity, key string) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	val, ok := session.Data[key]
	return val, ok
}

// Clear removes flow, step and data. Keys listed in preserve survive into the
// fresh session. Clearing an identity without state is a no-op.
func (m *memoryManager) Clear(id Identity, preserve ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return
	}
	if len(preserve) == 0 {
		delete(m.sessions, id)
		return
	}
	kept := make(map[string]interface{}, len(preserve))
	for _, key := range preserve {
		if v, found := session.Data[key]; found {
			kept[key] = v
		}
	}
	if len(kept) == 0 {
		delete(m.sessions, id)
		return
	}
	m.sessions[id] = &Session{Data: kept}
}

// InProgress reports whether the identity has an active flow.
func (m *memoryManager) InProgress(id Identity) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[id]
	return ok && session.Flow != FlowNone
}

// Lock acquires the per-identity mutex and returns its release func.
func (m *memoryManager) Lock(id Identity) func() {
	m.locksMu.Lock()
	lock, ok := m.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[id] = lock
	}
	m.locksMu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// ManagerHandler executes the handler registered for the identity's active flow.
func (m *memoryManager) ManagerHandler(c tele.Context) error {
	id := IdentityOf(c)
	session := m.Get(id)
	ctx := tghelpers.BuildContext(c)
	logger.Debug(ctx, "tg", "fsm.manager",
		slog.String("status", "ok"),
		slog.Int64("user_id", id.UserID),
		slog.String("flow", string(session.Flow)),
		slog.String("step", string(session.Step)),
	)

	if handler, ok := flowHandlers[session.Flow]; ok {
		return handler(c)
	}
	return nil
}
