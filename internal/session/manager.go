package session

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/m3rciful/betbot/core/logger"
	"github.com/m3rciful/betbot/core/telegram/state"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// sqlManager is the durable state.Manager: every mutation is written through
// to the store, so an active conversation survives a process restart. The
// data bag is JSON in the conversation_state row, which is why flow code
// only puts JSON-safe values into it.
//
// A failed store write must not lose the transition for the running process:
// the session is parked in pending and served from there until the next
// write reaches the store.
type sqlManager struct {
	store   Store
	locksMu sync.Mutex
	locks   map[state.Identity]*sync.Mutex

	pendingMu sync.Mutex
	pending   map[state.Identity]state.Session
}

// NewDurableManager builds a state.Manager persisting through the store.
func NewDurableManager(store Store) state.Manager {
	return &sqlManager{
		store:   store,
		locks:   make(map[state.Identity]*sync.Mutex),
		pending: make(map[state.Identity]state.Session),
	}
}

func copySessionData(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (m *sqlManager) load(id state.Identity) (state.Session, bool) {
	m.pendingMu.Lock()
	if parked, ok := m.pending[id]; ok {
		m.pendingMu.Unlock()
		return state.Session{Flow: parked.Flow, Step: parked.Step, Data: copySessionData(parked.Data)}, parked.Flow != state.FlowNone || len(parked.Data) > 0
	}
	m.pendingMu.Unlock()

	st, ok, err := m.store.LoadState(context.Background(), id)
	if err != nil {
		logger.SVCSessions.LogAttrs(context.Background(), slog.LevelError, "state.load",
			slog.String("status", "fail"),
			slog.Int64("chat_id", id.ChatID),
			slog.String("err", err.Error()),
		)
		return state.Session{Data: map[string]interface{}{}}, false
	}
	if !ok {
		return state.Session{Data: map[string]interface{}{}}, false
	}

	data := map[string]interface{}{}
	if len(st.Data) > 0 {
		if err := json.Unmarshal(st.Data, &data); err != nil {
			// Corrupted row; start fresh rather than wedging the chat.
			logger.SVCSessions.LogAttrs(context.Background(), slog.LevelWarn, "state.decode",
				slog.String("status", "fail"),
				slog.Int64("chat_id", id.ChatID),
				slog.String("err", err.Error()),
			)
			data = map[string]interface{}{}
		}
	}
	return state.Session{Flow: state.Flow(st.Flow), Step: state.Step(st.Step), Data: data}, true
}

func (m *sqlManager) save(id state.Identity, session state.Session) {
	raw, err := json.Marshal(session.Data)
	if err != nil {
		logger.SVCSessions.LogAttrs(context.Background(), slog.LevelError, "state.encode",
			slog.String("status", "fail"),
			slog.Int64("chat_id", id.ChatID),
			slog.String("err", err.Error()),
		)
		raw = []byte("{}")
	}
	if err := m.store.SaveState(context.Background(), StoredState{
		ChatID: id.ChatID,
		UserID: id.UserID,
		Flow:   string(session.Flow),
		Step:   string(session.Step),
		Data:   raw,
	}); err != nil {
		logger.SVCSessions.LogAttrs(context.Background(), slog.LevelError, "state.save",
			slog.String("status", "fail"),
			slog.Int64("chat_id", id.ChatID),
			slog.String("err", err.Error()),
		)
		m.park(id, session)
		return
	}
	m.unpark(id)
}

// park keeps the session in memory after a failed write; the conversation
// continues, only durability is degraded until the next successful write.
func (m *sqlManager) park(id state.Identity, session state.Session) {
	m.pendingMu.Lock()
	m.pending[id] = state.Session{Flow: session.Flow, Step: session.Step, Data: copySessionData(session.Data)}
	m.pendingMu.Unlock()
}

func (m *sqlManager) unpark(id state.Identity) {
	m.pendingMu.Lock()
	delete(m.pending, id)
	m.pendingMu.Unlock()
}

func (m *sqlManager) Get(id state.Identity) state.Session {
	session, _ := m.load(id)
	return session
}

func (m *sqlManager) SetFlow(id state.Identity, flow state.Flow, step state.Step) {
	session, _ := m.load(id)
	session.Flow = flow
	session.Step = step
	m.save(id, session)
}

// SetStep moves the active flow to another step. A step cannot exist without
// a flow, so the call is rejected when no flow is active.
func (m *sqlManager) SetStep(id state.Identity, step state.Step) {
	session, ok := m.load(id)
	if !ok || session.Flow == state.FlowNone {
		logger.SVCSessions.LogAttrs(context.Background(), slog.LevelWarn, "state.set_step",
			slog.String("status", "skip"),
			slog.Int64("chat_id", id.ChatID),
			slog.String("step", string(step)),
			slog.String("cause", "no active flow"),
		)
		return
	}
	session.Step = step
	m.save(id, session)
}

func (m *sqlManager) UpdateData(id state.Identity, patch map[string]interface{}) {
	if len(patch) == 0 {
		return
	}
	session, _ := m.load(id)
	for k, v := range patch {
		session.Data[k] = v
	}
	m.save(id, session)
}

func (m *sqlManager) Value(id state.Identity, key string) (interface{}, bool) {
	session, ok := m.load(id)
	if !ok {
		return nil, false
	}
	val, found := session.Data[key]
	return val, found
}

func (m *sqlManager) Clear(id state.Identity, preserve ...string) {
	session, ok := m.load(id)
	if !ok {
		return
	}
	kept := make(map[string]interface{}, len(preserve))
	for _, key := range preserve {
		if v, found := session.Data[key]; found {
			kept[key] = v
		}
	}
	if len(kept) == 0 {
		if err := m.store.DeleteState(context.Background(), id); err != nil {
			logger.SVCSessions.LogAttrs(context.Background(), slog.LevelError, "state.delete",
				slog.String("status", "fail"),
				slog.Int64("chat_id", id.ChatID),
				slog.String("err", err.Error()),
			)
			// Park the cleared session so the stale row cannot resurrect
			// the flow while the store is unreachable.
			m.park(id, state.Session{Data: map[string]interface{}{}})
			return
		}
		m.unpark(id)
		return
	}
	m.save(id, state.Session{Data: kept})
}

func (m *sqlManager) InProgress(id state.Identity) bool {
	session, ok := m.load(id)
	return ok && session.Flow != state.FlowNone
}

func (m *sqlManager) Lock(id state.Identity) func() {
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

func (m *sqlManager) ManagerHandler(c tele.Context) error {
	id := state.IdentityOf(c)
	session := m.Get(id)
	if handler, ok := state.HandlerFor(session.Flow); ok {
		return handler(c)
	}
	return nil
}
