package router

import (
	"time"

	tg "github.com/m3rciful/betbot/core/telegram"
	"github.com/m3rciful/betbot/core/telegram/middleware"
	"github.com/m3rciful/betbot/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

// FSM defines the minimal interface for a conversation state manager.
type FSM interface {
	InProgress(id state.Identity) bool
	Lock(id state.Identity) func()
	ManagerHandler(c tele.Context) error
}

// TextOptions controls role resolution and fallback behaviour for text,
// photo and document updates.
type TextOptions struct {
	// RoleOf resolves the sender's role for command gating. Nil means guest.
	RoleOf          func(c tele.Context) string
	UnknownText     tele.HandlerFunc
	UnknownDocument tele.HandlerFunc
}

func resolveRole(opts TextOptions, c tele.Context) string {
	if opts.RoleOf == nil {
		return ""
	}
	return opts.RoleOf(c)
}

// TextRoutes builds handlers for text, photo and document routing.
//
// Dispatch order for a text update: override commands first, then the active
// flow if any, then role-gated command lookup, then the unrecognized fallback.
// A label outside the sender's role falls through to the fallback silently.
func TextRoutes(fsmMgr FSM, reg *tg.Registry, opts TextOptions) []tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		text := c.Text()
		id := state.IdentityOf(c)

		if fsmMgr != nil {
			unlock := fsmMgr.Lock(id)
			defer unlock()
		}

		if reg != nil {
			if key, cmd, ok := reg.LookupOverride(text); ok && cmd.Handler != nil {
				name := normalizeHandlerName(key)
				return handleWithSummary(c, name, start, "", "", func() error {
					return cmd.Handler(c)
				})
			}
		}

		if fsmMgr != nil && fsmMgr.InProgress(id) {
			return handleWithSummary(c, "fsm", start, "", "", func() error {
				return fsmMgr.ManagerHandler(c)
			})
		}

		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(text, resolveRole(opts, c)); ok && cmd.Handler != nil {
				name := normalizeHandlerName(key)
				return handleWithSummary(c, name, start, "", "", func() error {
					return cmd.Handler(c)
				})
			}
		}

		if reg != nil {
			if fb := reg.TextFallback(); fb != nil {
				return handleWithSummary(c, "fallback", start, "", "", func() error {
					return fb(c)
				})
			}
		}

		if opts.UnknownText != nil {
			return handleWithSummary(c, "unknown_text", start, "", "", func() error {
				return opts.UnknownText(c)
			})
		}

		logHandlerSummary(c, "unknown_text", start, "skip", "ok", nil)
		return nil
	}

	mediaHandler := func(name string) tele.HandlerFunc {
		return func(c tele.Context) error {
			start := time.Now()
			id := state.IdentityOf(c)
			if fsmMgr != nil {
				unlock := fsmMgr.Lock(id)
				defer unlock()
			}
			if fsmMgr != nil && fsmMgr.InProgress(id) {
				return handleWithSummary(c, "fsm_"+name, start, "", "", func() error {
					return fsmMgr.ManagerHandler(c)
				})
			}
			if opts.UnknownDocument != nil {
				return handleWithSummary(c, "unexpected_"+name, start, "", "", func() error {
					return opts.UnknownDocument(c)
				})
			}
			logHandlerSummary(c, "unexpected_"+name, start, "skip", "ok", nil)
			return nil
		}
	}

	return []tg.Route{
		{
			Endpoint: tele.OnText,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
		},
		{
			Endpoint: tele.OnPhoto,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(mediaHandler("photo"))),
		},
		{
			Endpoint: tele.OnDocument,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(mediaHandler("document"))),
		},
	}
}
