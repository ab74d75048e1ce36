package middleware

import tele "gopkg.in/telebot.v4"

// AccessOptions defines how role checks behave.
type AccessOptions struct {
	// RoleOf resolves the sender's role. Nil resolves every sender to guest.
	RoleOf   func(c tele.Context) string
	OnReject tele.HandlerFunc
}

func roleAllowed(role string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

// RolesMiddleware ensures only senders whose role is in allowed can invoke
// downstream handlers. Rejected updates are silently dropped unless OnReject
// is set.
func RolesMiddleware(opts AccessOptions, allowed []string) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			role := ""
			if opts.RoleOf != nil {
				role = opts.RoleOf(c)
			}
			if !roleAllowed(role, allowed) {
				if opts.OnReject != nil {
					return opts.OnReject(c)
				}
				return nil
			}
			return next(c)
		}
	}
}
