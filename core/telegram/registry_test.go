package telegram

import (
	"testing"

	"github.com/m3rciful/betbot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

func noopHandler(tele.Context) error { return nil }

func newTestRegistry() *Registry {
	reg := NewRegistry()
	reg.RegisterCommand("/deposit", commands.Command{
		Handler:     noopHandler,
		Description: "Start a deposit",
		Roles:       []string{commands.RoleGuest, commands.RolePlayer},
		Labels:      []string{"💰 Deposit"},
	})
	reg.RegisterCommand("/agent", commands.Command{
		Handler:     noopHandler,
		Description: "Agent task queue",
		Roles:       []string{commands.RoleAgent},
		Hidden:      true,
		Labels:      []string{"📋 My tasks"},
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     noopHandler,
		Description: "Abort the current operation",
		Aliases:     []string{"abort"},
		Override:    true,
	})
	reg.RegisterCommand("/login", commands.Command{
		Handler:     noopHandler,
		Description: "Sign in",
	})
	return reg
}

func TestLookupCommandMatchesSlashAliasAndLabel(t *testing.T) {
	reg := newTestRegistry()

	for _, text := range []string{"/cancel", "cancel", "abort", "/abort"} {
		key, _, ok := reg.LookupCommand(text, commands.RoleGuest)
		if !ok {
			t.Fatalf("LookupCommand(%q) not found", text)
		}
		if key != "/cancel" {
			t.Fatalf("LookupCommand(%q) key = %q, want /cancel", text, key)
		}
	}

	key, _, ok := reg.LookupCommand("💰 Deposit", commands.RolePlayer)
	if !ok || key != "/deposit" {
		t.Fatalf("label lookup = (%q, %v), want (/deposit, true)", key, ok)
	}
}

func TestLookupCommandHidesRoleMismatch(t *testing.T) {
	reg := newTestRegistry()

	// An admin tapping an agent-only button must get the same "not found"
	// as completely unknown text, not a rejection message.
	for _, text := range []string{"/agent", "📋 My tasks"} {
		if _, _, ok := reg.LookupCommand(text, commands.RoleAdmin); ok {
			t.Fatalf("LookupCommand(%q, admin) matched an agent-only command", text)
		}
	}

	if _, _, ok := reg.LookupCommand("/agent", commands.RoleAgent); !ok {
		t.Fatal("LookupCommand(/agent, agent) not found")
	}
}

func TestLookupCommandOpenToAllRoles(t *testing.T) {
	reg := newTestRegistry()

	for _, role := range []string{commands.RoleGuest, commands.RolePlayer, commands.RoleAgent, commands.RoleAdmin} {
		if _, _, ok := reg.LookupCommand("/login", role); !ok {
			t.Fatalf("LookupCommand(/login, %s) not found", role)
		}
	}
}

func TestLookupOverrideIgnoresRoles(t *testing.T) {
	reg := newTestRegistry()

	key, cmd, ok := reg.LookupOverride("abort")
	if !ok || key != "/cancel" || !cmd.Override {
		t.Fatalf("LookupOverride(abort) = (%q, override=%v, %v)", key, cmd.Override, ok)
	}

	// Non-override commands never match, even for an allowed role.
	if _, _, ok := reg.LookupOverride("/deposit"); ok {
		t.Fatal("LookupOverride matched a non-override command")
	}
}

func TestRegisterCommandRejectsInvalid(t *testing.T) {
	reg := NewRegistry()

	reg.RegisterCommand("deposit", commands.Command{Handler: noopHandler, Description: "no slash"})
	reg.RegisterCommand("/nod", commands.Command{Description: "nil handler"})
	reg.RegisterCommand("/nodesc", commands.Command{Handler: noopHandler})

	if n := len(reg.Commands()); n != 0 {
		t.Fatalf("registered %d invalid commands", n)
	}

	reg.RegisterCommand("/ok", commands.Command{Handler: noopHandler, Description: "first"})
	reg.RegisterCommand("/ok", commands.Command{Handler: noopHandler, Description: "duplicate"})
	if got := reg.Commands()["/ok"].Description; got != "first" {
		t.Fatalf("duplicate registration overwrote command: %q", got)
	}
}

func TestListCommandsVisibleOnly(t *testing.T) {
	reg := newTestRegistry()

	visible := reg.ListCommands(true)
	for _, cmd := range visible {
		if cmd.Text == "/agent" || cmd.Text == "/deposit" {
			t.Fatalf("ListCommands(true) leaked role-gated command %s", cmd.Text)
		}
	}

	all := reg.ListCommands(false)
	if len(all) != 4 {
		t.Fatalf("ListCommands(false) = %d commands, want 4", len(all))
	}
}

func TestCallbackRegistration(t *testing.T) {
	reg := NewRegistry()

	if err := reg.RegisterCallback("dep_bank", noopHandler); err != nil {
		t.Fatalf("RegisterCallback: %v", err)
	}
	if err := reg.RegisterCallback("dep_bank", noopHandler); err == nil {
		t.Fatal("duplicate RegisterCallback succeeded")
	}
	if _, ok := reg.GetCallback("dep_bank"); !ok {
		t.Fatal("GetCallback(dep_bank) not found")
	}
	if _, ok := reg.GetCallback("missing"); ok {
		t.Fatal("GetCallback(missing) found")
	}
}
