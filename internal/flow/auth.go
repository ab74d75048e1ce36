package flow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/m3rciful/betbot/core/telegram/state"
	"github.com/m3rciful/betbot/internal/gateway"
)

const (
	StepEnteringUsername state.Step = "entering_username"
	StepEnteringEmail    state.Step = "entering_email"
	StepEnteringPassword state.Step = "entering_password"
	StepEnteringName     state.Step = "entering_name"
	StepEnteringPhone    state.Step = "entering_phone"
)

const (
	minUsernameLength = 3
	minPasswordLength = 8
	minDisplayName    = 2
)

// NewLoginFlow builds the login conversation. Players link their chat to an
// existing account; agents and admins additionally receive an access token
// that unlocks their review commands.
func NewLoginFlow(deps Deps) *Definition {
	return &Definition{
		Name:       FlowLogin,
		Initial:    StepEnteringUsername,
		CancelText: "Login cancelled.",
		OnStart: func(ctx context.Context, req Request) (Outcome, error) {
			return Outcome{
				Prompts: []Prompt{{Text: "🔐 Enter your username or email:", RemoveReply: true}},
			}, nil
		},
		Steps: map[state.Step]Handler{
			StepEnteringUsername: loginEnterUsername(),
			StepEnteringPassword: loginEnterPassword(deps),
		},
	}
}

func loginEnterUsername() Handler {
	return func(ctx context.Context, req Request) (Outcome, error) {
		username := strings.TrimSpace(req.Event.Text)
		if len(username) < minUsernameLength {
			return Outcome{}, invalid(fmt.Sprintf("Username must be at least %d characters.", minUsernameLength))
		}
		return Outcome{
			Next:    StepEnteringPassword,
			Patch:   map[string]any{"login_username": username},
			Prompts: []Prompt{{Text: "Enter your password:"}},
		}, nil
	}
}

func loginEnterPassword(deps Deps) Handler {
	return func(ctx context.Context, req Request) (Outcome, error) {
		if len(req.Event.Text) < minPasswordLength {
			return Outcome{}, invalid(fmt.Sprintf("Password must be at least %d characters.", minPasswordLength))
		}
		username := bagString(req.Data, "login_username")

		res, err := deps.Backend.Login(ctx, username, req.Event.Text)
		if err != nil {
			// A 401 here is wrong credentials, not an expired session.
			var gwErr *gateway.Error
			if errors.As(err, &gwErr) && (gwErr.Status == 400 || gwErr.Status == 401) {
				return Outcome{}, invalid("Invalid username or password. Try again, or /cancel.")
			}
			return Outcome{}, err
		}
		if err := deps.Accounts.SaveLogin(ctx, req.Identity, res, username, req.Event.Text); err != nil {
			return Outcome{}, err
		}

		text := "✅ Logged in. Welcome back!"
		switch res.Role {
		case "admin":
			text += "\n\nUse /admin to review transactions."
		case "agent":
			text += "\n\nUse /agent to see your assigned tasks."
		}
		return Outcome{
			Next:    StepDone,
			Prompts: []Prompt{{Text: text, RemoveReply: true}},
		}, nil
	}
}

// NewRegisterFlow builds the account registration conversation.
func NewRegisterFlow(deps Deps) *Definition {
	return &Definition{
		Name:       FlowRegister,
		Initial:    StepEnteringEmail,
		CancelText: "Registration cancelled.",
		OnStart: func(ctx context.Context, req Request) (Outcome, error) {
			return Outcome{
				Prompts: []Prompt{{Text: "📝 Let's create your account.\n\nEnter your email address:", RemoveReply: true}},
			}, nil
		},
		Steps: map[state.Step]Handler{
			StepEnteringEmail:    registerEnterEmail(),
			StepEnteringPassword: registerEnterPassword(),
			StepEnteringName:     registerEnterName(),
			StepEnteringPhone:    registerEnterPhone(deps),
		},
	}
}

func registerEnterEmail() Handler {
	return func(ctx context.Context, req Request) (Outcome, error) {
		email, err := ValidateEmail(req.Event.Text)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{
			Next:    StepEnteringPassword,
			Patch:   map[string]any{"reg_email": email},
			Prompts: []Prompt{{Text: "Choose a password (at least 8 characters):"}},
		}, nil
	}
}

func registerEnterPassword() Handler {
	return func(ctx context.Context, req Request) (Outcome, error) {
		if len(req.Event.Text) < minPasswordLength {
			return Outcome{}, invalid(fmt.Sprintf("Password must be at least %d characters.", minPasswordLength))
		}
		return Outcome{
			Next:    StepEnteringName,
			Patch:   map[string]any{"reg_password": req.Event.Text},
			Prompts: []Prompt{{Text: "What name should we call you?"}},
		}, nil
	}
}

func registerEnterName() Handler {
	return func(ctx context.Context, req Request) (Outcome, error) {
		name := strings.TrimSpace(req.Event.Text)
		if len(name) < minDisplayName {
			return Outcome{}, invalid(fmt.Sprintf("Name must be at least %d characters.", minDisplayName))
		}
		return Outcome{
			Next:    StepEnteringPhone,
			Patch:   map[string]any{"reg_name": name},
			Prompts: []Prompt{{Text: "Enter your phone number in international format (e.g. +2519...), or /skip:"}},
		}, nil
	}
}

func registerEnterPhone(deps Deps) Handler {
	return func(ctx context.Context, req Request) (Outcome, error) {
		phone := strings.TrimSpace(req.Event.Text)
		if strings.EqualFold(phone, "/skip") {
			phone = ""
		} else {
			var perr error
			phone, perr = ValidatePhone(phone)
			if perr != nil {
				return Outcome{}, perr
			}
		}

		email := bagString(req.Data, "reg_email")
		player, err := deps.Backend.RegisterPlayer(ctx, gateway.RegisterPlayerRequest{
			CreatePlayerRequest: gateway.CreatePlayerRequest{
				TelegramID:       strconv.FormatInt(req.Identity.UserID, 10),
				TelegramUsername: req.Event.Username,
			},
			Username:    email,
			Email:       email,
			Password:    bagString(req.Data, "reg_password"),
			DisplayName: bagString(req.Data, "reg_name"),
			Phone:       phone,
		})
		if err != nil {
			var gwErr *gateway.Error
			if errors.As(err, &gwErr) && gwErr.Status == 409 {
				return Outcome{}, invalid("An account with that email already exists. Use /login instead, or enter a different phone number.")
			}
			return Outcome{}, err
		}

		link := gateway.LoginResult{PlayerUUID: player.UUID}
		if err := deps.Accounts.SaveLogin(ctx, req.Identity, link, email, bagString(req.Data, "reg_password")); err != nil {
			return Outcome{}, err
		}
		return Outcome{
			Next: StepDone,
			Prompts: []Prompt{{
				Text:        "🎉 Account created! You can now /deposit and /withdraw.",
				RemoveReply: true,
			}},
		}, nil
	}
}
