package router

import (
	"github.com/m3rciful/betbot/core/logger"
	tg "github.com/m3rciful/betbot/core/telegram"
	"github.com/m3rciful/betbot/core/telegram/middleware"
	"github.com/m3rciful/betbot/core/telegram/state"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// CommandRouteOptions configures how commands are wrapped and exposed.
type CommandRouteOptions struct {
	// RoleOf resolves the sender's role for gated commands.
	RoleOf   func(c tele.Context) string
	OnReject tele.HandlerFunc
	// Lock serializes a command with message and callback processing for
	// the same identity. Slash commands dispatch on their own endpoints,
	// so without it /cancel could interleave with an in-flight flow step.
	Lock func(id state.Identity) func()
}

func lockMiddleware(lock func(id state.Identity) func(), next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		unlock := lock(state.IdentityOf(c))
		defer unlock()
		return next(c)
	}
}

// CommandRoutes prepares command handlers wrapped with shared middleware.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}

	accessOpts := middleware.AccessOptions{
		RoleOf:   opts.RoleOf,
		OnReject: opts.OnReject,
	}

	routes := make([]tg.Route, 0, len(reg.Commands()))
	for cmd, def := range reg.Commands() {
		h := def.Handler
		if opts.Lock != nil {
			h = lockMiddleware(opts.Lock, h)
		}
		h = middleware.RecoverMiddleware(h)
		h = middleware.LoggerMiddleware(h)
		if len(def.Roles) > 0 {
			h = middleware.RolesMiddleware(accessOpts, def.Roles)(h)
		}
		routes = append(routes, tg.Route{
			Endpoint: cmd,
			Handler:  h,
		})
	}

	logger.TWire.Info("tg.wire",
		slog.String("event", "complete"),
		slog.Int("commands", len(reg.Commands())),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)

	return routes
}
