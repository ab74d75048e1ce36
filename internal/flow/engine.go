package flow

import (
	"context"
	"errors"

	"github.com/m3rciful/betbot/core/logger"
	"github.com/m3rciful/betbot/core/telegram/state"
	"github.com/m3rciful/betbot/internal/gateway"
	"log/slog"
)

// Event kinds a step may receive.
const (
	EventText   = "text"
	EventButton = "button"
	EventPhoto  = "photo"
)

// Event is one normalized user input delivered to the active step.
type Event struct {
	Kind string
	// Text is the message text for EventText.
	Text string
	// Button and Payload carry the callback key and payload for EventButton.
	Button  string
	Payload string
	// FilePath is a downloaded local file for EventPhoto.
	FilePath string
	// Username is the sender's Telegram username, used by player resolution.
	Username string
}

// Button is one inline keyboard button in a prompt.
type Button struct {
	Label  string
	Action string
	Data   string
}

// Prompt is one outbound message. The Telegram layer renders it; the engine
// never touches the transport.
type Prompt struct {
	Text     string
	Markdown bool
	// Inline rows are rendered as an inline keyboard.
	Inline [][]Button
	// Reply rows are rendered as a reply keyboard.
	Reply [][]string
	// RemoveReply hides any visible reply keyboard.
	RemoveReply bool
}

// StepDone is the sentinel next-step marking flow completion.
const StepDone state.Step = "__done__"

// Request carries everything a step handler may need.
type Request struct {
	Identity state.Identity
	Event    Event
	// Data is a snapshot of the collected conversation data.
	Data map[string]interface{}
}

// Outcome is what a successful step handler produces.
type Outcome struct {
	// Next is the step to move to. Empty keeps the current step, StepDone
	// completes the flow and clears state.
	Next state.Step
	// Patch is merged into the conversation data. It is only applied when the
	// handler succeeds, so a rejected input never poisons the bag.
	Patch map[string]interface{}
	// Prompts are emitted to the user in order.
	Prompts []Prompt
	// Preserve lists data keys surviving the completion clear.
	Preserve []string
}

// Handler processes one event for one step.
type Handler func(ctx context.Context, req Request) (Outcome, error)

// Definition declares a complete flow.
type Definition struct {
	Name    state.Flow
	Initial state.Step
	// OnStart seeds the conversation and produces the opening prompt. Its
	// Next overrides Initial when set.
	OnStart Handler
	Steps   map[state.Step]Handler
	// CancelText is sent when the flow is cancelled mid-way.
	CancelText string
}

// Engine drives flows over a conversation state manager.
type Engine struct {
	states state.Manager
	flows  map[state.Flow]*Definition
}

// NewEngine builds an engine over the given state manager.
func NewEngine(states state.Manager) *Engine {
	return &Engine{
		states: states,
		flows:  make(map[state.Flow]*Definition),
	}
}

// Register adds a flow definition. Registering a duplicate name panics, since
// it can only happen from miswired startup code.
func (e *Engine) Register(def *Definition) {
	if def == nil || def.Name == state.FlowNone {
		panic("flow: invalid definition")
	}
	if _, exists := e.flows[def.Name]; exists {
		panic("flow: duplicate definition " + string(def.Name))
	}
	e.flows[def.Name] = def
}

// States exposes the underlying state manager.
func (e *Engine) States() state.Manager {
	return e.states
}

// Active returns the identity's current flow and step.
func (e *Engine) Active(id state.Identity) (state.Flow, state.Step) {
	session := e.states.Get(id)
	return session.Flow, session.Step
}

// InProgress reports whether the identity has an active flow.
func (e *Engine) InProgress(id state.Identity) bool {
	return e.states.InProgress(id)
}

// Lock proxies the per-identity lock of the state manager.
func (e *Engine) Lock(id state.Identity) func() {
	return e.states.Lock(id)
}

// Start activates a flow for the identity.
func (e *Engine) Start(ctx context.Context, id state.Identity, name state.Flow, ev Event) ([]Prompt, error) {
	if e.states.InProgress(id) {
		return nil, ErrFlowActive
	}
	def, ok := e.flows[name]
	if !ok {
		return nil, ErrInvalidTransition
	}

	ctx = logger.WithFlowStep(ctx, string(name), string(def.Initial))
	outcome, err := def.OnStart(ctx, Request{Identity: id, Event: ev, Data: e.states.Get(id).Data})
	if err != nil {
		return e.failure(ctx, id, err)
	}

	next := outcome.Next
	if next == "" {
		next = def.Initial
	}
	if next == StepDone {
		e.states.Clear(id, outcome.Preserve...)
		return outcome.Prompts, nil
	}
	e.states.SetFlow(id, name, next)
	e.states.UpdateData(id, outcome.Patch)

	logger.FLOW.LogAttrs(ctx, slog.LevelInfo, "flow.start",
		slog.String("status", "ok"),
		slog.Int64("chat_id", id.ChatID),
		slog.String("flow", string(name)),
		slog.String("step", string(next)),
	)
	return outcome.Prompts, nil
}

// Handle routes one event to the active step.
func (e *Engine) Handle(ctx context.Context, id state.Identity, ev Event) ([]Prompt, error) {
	session := e.states.Get(id)
	if session.Flow == state.FlowNone {
		return nil, ErrNoActiveFlow
	}
	def, ok := e.flows[session.Flow]
	if !ok {
		e.states.Clear(id)
		return nil, ErrInvalidTransition
	}
	handler, ok := def.Steps[session.Step]
	if !ok {
		e.states.Clear(id)
		return nil, ErrInvalidTransition
	}

	ctx = logger.WithFlowStep(ctx, string(session.Flow), string(session.Step))
	outcome, err := handler(ctx, Request{Identity: id, Event: ev, Data: session.Data})
	if err != nil {
		return e.failure(ctx, id, err)
	}

	e.states.UpdateData(id, outcome.Patch)
	switch outcome.Next {
	case "":
		// stay on the current step
	case StepDone:
		e.states.Clear(id, outcome.Preserve...)
		logger.FLOW.LogAttrs(ctx, slog.LevelInfo, "flow.done",
			slog.String("status", "ok"),
			slog.Int64("chat_id", id.ChatID),
		)
	default:
		e.states.SetStep(id, outcome.Next)
	}
	return outcome.Prompts, nil
}

// Cancel aborts the active flow and clears its state.
func (e *Engine) Cancel(ctx context.Context, id state.Identity) ([]Prompt, error) {
	session := e.states.Get(id)
	if session.Flow == state.FlowNone {
		return nil, ErrNoActiveFlow
	}
	def := e.flows[session.Flow]
	e.states.Clear(id)

	text := "Operation cancelled."
	if def != nil && def.CancelText != "" {
		text = def.CancelText
	}
	logger.FLOW.LogAttrs(ctx, slog.LevelInfo, "flow.cancel",
		slog.String("status", "cancelled"),
		slog.Int64("chat_id", id.ChatID),
		slog.String("flow", string(session.Flow)),
		slog.String("step", string(session.Step)),
	)
	return []Prompt{{Text: text, RemoveReply: true}}, nil
}

// failure maps step errors onto prompts. Validation errors re-prompt the same
// step without surfacing an error; everything else keeps the step and returns
// the error together with a retry hint.
func (e *Engine) failure(ctx context.Context, id state.Identity, err error) ([]Prompt, error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		logger.FLOW.LogAttrs(ctx, slog.LevelDebug, "flow.reject",
			slog.String("status", "skip"),
			slog.Int64("chat_id", id.ChatID),
			slog.String("cause", verr.Message),
		)
		return []Prompt{{Text: "⚠️ " + verr.Message}}, nil
	}

	if errors.Is(err, gateway.ErrSessionExpired) {
		e.states.Clear(id)
		return []Prompt{{Text: "Your session has expired. Please /login again.", RemoveReply: true}}, err
	}

	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		logger.FLOW.LogAttrs(ctx, slog.LevelWarn, "flow.backend_error",
			slog.String("status", "fail"),
			slog.Int64("chat_id", id.ChatID),
			slog.String("err", gwErr.Error()),
			slog.Bool("retryable", gwErr.Retryable()),
		)
		return []Prompt{{Text: "⚠️ The service is temporarily unavailable. Please try again."}}, err
	}
	return nil, err
}
