package state

import tele "gopkg.in/telebot.v4"

// Flow identifies a multi-step conversation a user can be inside of.
type Flow string

// Step identifies a single step within a Flow.
type Step string

const (
	// FlowNone indicates there is no active conversation with the user.
	FlowNone Flow = ""
	// StepNone indicates no step is active.
	StepNone Step = ""
)

// Identity addresses one conversation. Private chats have ChatID == UserID,
// group chats do not, so both are part of the key.
type Identity struct {
	ChatID int64
	UserID int64
}

// IdentityOf extracts the conversation identity from a telebot context.
func IdentityOf(c tele.Context) Identity {
	id := Identity{}
	if c == nil {
		return id
	}
	if chat := c.Chat(); chat != nil {
		id.ChatID = chat.ID
	}
	if sender := c.Sender(); sender != nil {
		id.UserID = sender.ID
	}
	if id.ChatID == 0 {
		id.ChatID = id.UserID
	}
	return id
}

// Session stores the active flow, its current step and collected data.
type Session struct {
	Flow Flow
	Step Step
	Data map[string]interface{}
}

// Manager orchestrates per-identity conversation sessions.
//
// Implementations must serialize all accesses for one identity and must treat
// Clear on an identity without state as a no-op.
type Manager interface {
	// Get returns a snapshot of the session. Mutating the returned Data map
	// does not affect the stored session.
	Get(id Identity) Session
	// SetFlow activates a flow at the given step, keeping existing data.
	SetFlow(id Identity, flow Flow, step Step)
	// SetStep moves the active flow to another step.
	SetStep(id Identity, step Step)
	// UpdateData merges the patch into the session data. Existing keys not
	// present in the patch are kept.
	UpdateData(id Identity, patch map[string]interface{})
	// Value returns a single data value.
	Value(id Identity, key string) (interface{}, bool)
	// Clear removes flow, step and data atomically. Keys listed in preserve
	// survive into the fresh session.
	Clear(id Identity, preserve ...string)

	// InProgress reports whether the identity has an active flow.
	InProgress(id Identity) bool
	// Lock acquires the per-identity mutex and returns its release func.
	// Routers hold it for the duration of one update.
	Lock(id Identity) func()

	// ManagerHandler executes the handler registered for the active flow.
	ManagerHandler(c tele.Context) error
}
