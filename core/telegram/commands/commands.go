package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Role names used for menu gating.
const (
	RoleGuest  = "guest"
	RolePlayer = "player"
	RoleAgent  = "agent"
	RoleAdmin  = "admin"
)

// Command represents a bot command with its handler, description, and metadata.
//
// Commands are addressed by their stable slash name; localized button labels
// map onto the same command so gating never depends on display text.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// Roles lists the roles allowed to invoke the command. Empty allows everyone.
	Roles   []string
	Hidden  bool
	Aliases []string
	// Labels are reply-button texts that invoke this command.
	Labels []string
	// Override commands run even while a conversation flow is active.
	Override bool
}

// AllowedFor reports whether the given role may invoke the command.
func (c Command) AllowedFor(role string) bool {
	if len(c.Roles) == 0 {
		return true
	}
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}
