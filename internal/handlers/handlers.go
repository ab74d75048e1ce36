package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/betbot/core/logger"
	"github.com/m3rciful/betbot/core/telegram/callbacks"
	"github.com/m3rciful/betbot/core/telegram/commands"
	"github.com/m3rciful/betbot/core/telegram/helpers"
	"github.com/m3rciful/betbot/core/telegram/keyboard"
	"github.com/m3rciful/betbot/core/telegram/state"
	"github.com/m3rciful/betbot/core/telegram/ui"
	"github.com/m3rciful/betbot/internal/files"
	"github.com/m3rciful/betbot/internal/flow"
	"github.com/m3rciful/betbot/internal/gateway"
	"github.com/m3rciful/betbot/internal/session"
	"log/slog"

	tg "github.com/m3rciful/betbot/core/telegram"
)

// Backend extends the flow gateway surface with the config lookups the
// command handlers need directly.
type Backend interface {
	flow.Backend
	Languages(ctx context.Context) ([]gateway.Language, error)
	Welcome(ctx context.Context, lang string) (gateway.Welcome, error)
	Template(ctx context.Context, key, lang string) (string, error)
	UploadConfig(ctx context.Context) (gateway.UploadConfig, error)
	// Logout is best-effort: a failure is logged and the local session is
	// cleared regardless.
	Logout(ctx context.Context, token string) error
}

// Handlers wires the conversation engine and services into the Telegram
// registry.
type Handlers struct {
	engine   *flow.Engine
	backend  Backend
	accounts *session.AccountService
	files    *files.Service

	uploadLimitOnce sync.Once
}

func New(engine *flow.Engine, backend Backend, accounts *session.AccountService, filesSvc *files.Service) *Handlers {
	return &Handlers{
		engine:   engine,
		backend:  backend,
		accounts: accounts,
		files:    filesSvc,
	}
}

// RoleOf resolves the sender's role for command gating.
func (h *Handlers) RoleOf(c tele.Context) string {
	return h.accounts.Role(helpers.BuildContext(c), state.IdentityOf(c))
}

const (
	labelDeposit  = "💰 Deposit"
	labelWithdraw = "💸 Withdraw"
	labelHistory  = "📋 History"
	labelRegister = "📝 Register"
	labelLogin    = "🔐 Login"
	labelAdmin    = "🛠 Admin panel"
	labelTasks    = "📋 My tasks"
	labelLogout   = "🚪 Logout"
)

// Register installs all commands, callbacks, fallbacks and flow handlers.
func (h *Handlers) Register(reg *tg.Registry) {
	reg.RegisterCommand("/start", commands.Command{
		Handler:     h.startCmd,
		Description: "Start the bot and pick a language",
	})
	reg.RegisterCommand("/menu", commands.Command{
		Handler:     h.menuCmd,
		Description: "Show the main menu",
		Override:    true,
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     h.cancelCmd,
		Description: "Cancel the current operation",
		Override:    true,
		Aliases:     []string{"abort"},
	})
	reg.RegisterCommand("/deposit", commands.Command{
		Handler:     h.startFlowCmd(flow.FlowDeposit),
		Description: "Deposit money to a betting site",
		Roles:       []string{commands.RoleGuest, commands.RolePlayer},
		Labels:      []string{labelDeposit},
	})
	reg.RegisterCommand("/withdraw", commands.Command{
		Handler:     h.startFlowCmd(flow.FlowWithdraw),
		Description: "Withdraw money from a betting site",
		Roles:       []string{commands.RoleGuest, commands.RolePlayer},
		Labels:      []string{labelWithdraw},
	})
	reg.RegisterCommand("/register", commands.Command{
		Handler:     h.startFlowCmd(flow.FlowRegister),
		Description: "Create an account",
		Roles:       []string{commands.RoleGuest},
		Labels:      []string{labelRegister},
	})
	reg.RegisterCommand("/login", commands.Command{
		Handler:     h.startFlowCmd(flow.FlowLogin),
		Description: "Log in to your account",
		Labels:      []string{labelLogin},
	})
	reg.RegisterCommand("/logout", commands.Command{
		Handler:     h.logoutCmd,
		Description: "Log out of your account",
		Roles:       []string{commands.RolePlayer, commands.RoleAgent, commands.RoleAdmin},
		Labels:      []string{labelLogout},
	})
	reg.RegisterCommand("/history", commands.Command{
		Handler:     h.historyCmd,
		Description: "Show your recent transactions",
		Roles:       []string{commands.RolePlayer},
		Labels:      []string{labelHistory},
	})
	reg.RegisterCommand("/admin", commands.Command{
		Handler:     h.startFlowCmd(flow.FlowAdminReview),
		Description: "Review transactions",
		Roles:       []string{commands.RoleAdmin},
		Labels:      []string{labelAdmin},
		Hidden:      true,
	})
	reg.RegisterCommand("/agent", commands.Command{
		Handler:     h.startFlowCmd(flow.FlowAgentReview),
		Description: "Work your assigned tasks",
		Roles:       []string{commands.RoleAgent},
		Labels:      []string{labelTasks},
		Hidden:      true,
	})

	for _, action := range []string{
		flow.ActionDepositBank, flow.ActionWithdrawalBank, flow.ActionSite,
		flow.ActionConfirm, flow.ActionPage,
		flow.ActionAdminTx, flow.ActionAdminPage, flow.ActionAdminDate,
		flow.ActionAdminBack, flow.ActionAdminAssign, flow.ActionAdminAgent,
		flow.ActionAdminStatus,
		flow.ActionAgentTx, flow.ActionAgentPage, flow.ActionAgentBack,
		flow.ActionAgentStatus, flow.ActionAgentStats,
	} {
		_ = reg.RegisterCallback(action, h.flowCallback(action))
	}
	_ = reg.RegisterCallback("lang", h.languageCallback)
	_ = reg.RegisterCallback("hist_page", h.historyPageCallback)

	reg.SetCallbackNotFound(h.UnknownCallback())

	// Every flow shares one message handler; the engine routes by stored state.
	for _, name := range []state.Flow{
		flow.FlowDeposit, flow.FlowWithdraw, flow.FlowRegister,
		flow.FlowLogin, flow.FlowAdminReview, flow.FlowAgentReview,
	} {
		state.RegisterHandler(name, h.flowMessage)
	}
}

// deliver renders the engine output and folds engine errors into user-facing
// behavior. An expired backend session additionally drops the stored
// privileges so the next update is gated as a plain player.
func (h *Handlers) deliver(c tele.Context, prompts []flow.Prompt, err error) error {
	if rerr := renderPrompts(c, prompts); rerr != nil {
		return rerr
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, gateway.ErrSessionExpired) {
		ctx := helpers.BuildContext(c)
		if cerr := h.accounts.ClearPrivileged(ctx, state.IdentityOf(c)); cerr != nil {
			logger.TG.LogAttrs(ctx, slog.LevelError, "session.clear",
				slog.String("status", "fail"),
				slog.String("err", cerr.Error()),
			)
		}
		return nil
	}
	return err
}

func (h *Handlers) startFlowCmd(name state.Flow) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := helpers.BuildContext(c)
		id := state.IdentityOf(c)
		ev := flow.Event{Kind: flow.EventText, Text: c.Text(), Username: senderUsername(c)}

		prompts, err := h.engine.Start(ctx, id, name, ev)
		if errors.Is(err, flow.ErrFlowActive) {
			return helpers.SendText(c, "Please finish the current operation first, or /cancel it.")
		}
		return h.deliver(c, prompts, err)
	}
}

func (h *Handlers) cancelCmd(c tele.Context) error {
	ctx := helpers.BuildContext(c)
	id := state.IdentityOf(c)
	prompts, err := h.engine.Cancel(ctx, id)
	h.discardWhenIdle(id)
	if errors.Is(err, flow.ErrNoActiveFlow) {
		return helpers.SendText(c, "Nothing to cancel.")
	}
	return h.deliver(c, prompts, err)
}

// flowMessage feeds text and photo updates into the active flow. A saved
// photo lives past this update only when the flow claimed it as the receipt;
// the staged file is removed once the flow finishes.
func (h *Handlers) flowMessage(c tele.Context) error {
	ctx := helpers.BuildContext(c)
	id := state.IdentityOf(c)

	ev := flow.Event{Kind: flow.EventText, Text: c.Text(), Username: senderUsername(c)}
	var savedPath string
	var cleanup func()
	if msg := c.Message(); msg != nil && msg.Photo != nil {
		dl, ok := c.Bot().(files.Downloader)
		if !ok {
			return helpers.SendText(c, "⚠️ I can't receive files right now. Please try again.")
		}
		h.syncUploadLimit(ctx)
		path, clean, err := h.files.Save(ctx, dl, msg.Photo.File, "")
		if err != nil {
			if errors.Is(err, files.ErrTooLarge) || errors.Is(err, files.ErrBadExtension) {
				return helpers.SendText(c, "⚠️ "+err.Error()+". Please send a smaller photo.")
			}
			return err
		}
		savedPath, cleanup = path, clean
		ev = flow.Event{Kind: flow.EventPhoto, FilePath: path, Username: senderUsername(c)}
	}

	prompts, err := h.engine.Handle(ctx, id, ev)
	if savedPath != "" {
		if claimed, _ := h.engine.States().Value(id, flow.KeyReceiptPath); claimed == savedPath {
			// The upload is opened at the confirm step, a later update.
			h.files.Stage(id, savedPath)
		} else {
			cleanup()
		}
	}
	h.discardWhenIdle(id)
	if errors.Is(err, flow.ErrNoActiveFlow) || errors.Is(err, flow.ErrInvalidTransition) {
		return helpers.SendText(c, "Let's start over. Use /menu to see what I can do.")
	}
	return h.deliver(c, prompts, err)
}

// discardWhenIdle drops any staged receipt once no flow is active anymore,
// covering completion, decline, cancel and forced session resets.
func (h *Handlers) discardWhenIdle(id state.Identity) {
	if !h.engine.InProgress(id) {
		h.files.Discard(id)
	}
}

// syncUploadLimit tightens the local file size limit to the one the backend
// advertises. Fetched once; a failed fetch keeps the configured limit.
func (h *Handlers) syncUploadLimit(ctx context.Context) {
	h.uploadLimitOnce.Do(func() {
		uc, err := h.backend.UploadConfig(ctx)
		if err != nil {
			logger.TG.LogAttrs(ctx, slog.LevelDebug, "upload.config",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
			return
		}
		h.files.CapBytes(uc.MaxFileSize)
	})
}

// flowCallback feeds one inline button press into the active flow.
func (h *Handlers) flowCallback(action string) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := helpers.BuildContext(c)
		id := state.IdentityOf(c)
		unlock := h.engine.Lock(id)
		defer unlock()

		payload := strings.TrimSpace(callbacks.CallbackPayload(c))
		ev := flow.Event{Kind: flow.EventButton, Button: action, Payload: payload, Username: senderUsername(c)}

		prompts, err := h.engine.Handle(ctx, id, ev)
		h.discardWhenIdle(id)
		if errors.Is(err, flow.ErrNoActiveFlow) || errors.Is(err, flow.ErrInvalidTransition) {
			// Stale button from a finished conversation.
			return helpers.SendText(c, "That menu has expired. Use /menu to start again.")
		}
		return h.deliver(c, prompts, err)
	}
}

var _ ui.FallbackProvider = (*Handlers)(nil)

// UnknownText handles text that matched neither a command nor an active flow.
func (h *Handlers) UnknownText() tele.HandlerFunc {
	return func(c tele.Context) error {
		return helpers.SendText(c, "I didn't recognize that. Use /menu to see what I can do.")
	}
}

// UnknownDocument handles files sent outside an upload step.
func (h *Handlers) UnknownDocument() tele.HandlerFunc {
	return func(c tele.Context) error {
		return helpers.SendText(c, "I wasn't expecting a file. Use /menu to see what I can do.")
	}
}

// UnknownCallback answers presses on buttons no handler claims.
func (h *Handlers) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		return c.Respond(&tele.CallbackResponse{Text: "That button is no longer active"})
	}
}

func senderUsername(c tele.Context) string {
	if sender := c.Sender(); sender != nil {
		return sender.Username
	}
	return ""
}

func (h *Handlers) startCmd(c tele.Context) error {
	ctx := helpers.BuildContext(c)

	langs, err := h.backend.Languages(ctx)
	if err != nil || len(langs) == 0 {
		// Language choice is cosmetic; fall back to the default greeting.
		return h.sendWelcome(c, "")
	}

	btns := make([]keyboard.InlineBtn, 0, len(langs))
	for _, lang := range langs {
		btns = append(btns, keyboard.InlineBtn{Text: lang.Name, Unique: "lang", Data: lang.Code})
	}
	return helpers.SendText(c, "👋 Welcome! Choose your language:",
		&tele.SendOptions{ReplyMarkup: keyboard.InlineButtonsNPerRow(btns, 2)})
}

func (h *Handlers) languageCallback(c tele.Context) error {
	ctx := helpers.BuildContext(c)
	id := state.IdentityOf(c)

	code := strings.TrimSpace(callbacks.CallbackPayload(c))
	if code != "" {
		if err := h.accounts.SetLanguage(ctx, id, code); err != nil {
			logger.TG.LogAttrs(ctx, slog.LevelWarn, "language.save",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		}
	}
	return h.sendWelcome(c, code)
}

func (h *Handlers) sendWelcome(c tele.Context, lang string) error {
	ctx := helpers.BuildContext(c)

	text := "Welcome! I can help you move money to and from your betting sites."
	if welcome, err := h.backend.Welcome(ctx, lang); err == nil && welcome.Message != "" {
		text = welcome.Message
	}
	return helpers.SendText(c, text, &tele.SendOptions{ReplyMarkup: h.menuKeyboard(c)})
}

func (h *Handlers) menuKeyboard(c tele.Context) *tele.ReplyMarkup {
	switch h.RoleOf(c) {
	case commands.RoleAdmin:
		return keyboard.ReplyButtons([]string{labelAdmin}, []string{labelLogout})
	case commands.RoleAgent:
		return keyboard.ReplyButtons([]string{labelTasks}, []string{labelLogout})
	case commands.RolePlayer:
		return keyboard.ReplyButtons(
			[]string{labelDeposit, labelWithdraw},
			[]string{labelHistory, labelLogout},
		)
	default:
		return keyboard.ReplyButtons(
			[]string{labelDeposit, labelWithdraw},
			[]string{labelRegister, labelLogin},
		)
	}
}

func (h *Handlers) menuCmd(c tele.Context) error {
	ctx := helpers.BuildContext(c)

	text := "What would you like to do?"
	lang := ""
	if account, ok, err := h.accounts.Get(ctx, state.IdentityOf(c)); err == nil && ok {
		lang = account.Language
	}
	if t, err := h.backend.Template(ctx, "menu", lang); err == nil && t != "" {
		text = t
	}
	return helpers.SendText(c, text, &tele.SendOptions{ReplyMarkup: h.menuKeyboard(c)})
}

// logoutCmd invalidates the backend session and clears the stored role,
// token and cached credentials. The backend call is best-effort: an already
// dead session must not block logging out locally.
func (h *Handlers) logoutCmd(c tele.Context) error {
	ctx := helpers.BuildContext(c)
	id := state.IdentityOf(c)

	account, ok, err := h.accounts.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok || (account.AccessToken == "" && account.Email == "") {
		return helpers.SendText(c, "You are not logged in. Nothing to log out from.")
	}

	if account.AccessToken != "" {
		if lerr := h.backend.Logout(ctx, account.AccessToken); lerr != nil {
			logger.TG.LogAttrs(ctx, slog.LevelWarn, "logout.backend",
				slog.String("status", "fail"),
				slog.String("err", lerr.Error()),
			)
		}
	}
	if err := h.accounts.Logout(ctx, id); err != nil {
		return err
	}
	return helpers.SendText(c, "✅ Logged out. Use /login to sign in with another account.",
		&tele.SendOptions{ReplyMarkup: h.menuKeyboard(c)})
}

const historyPageSize = 5

func (h *Handlers) historyCmd(c tele.Context) error {
	return h.sendHistory(c, 1)
}

func (h *Handlers) historyPageCallback(c tele.Context) error {
	page := 1
	if n, err := callbacks.PayloadInt(c); err == nil && n > 0 {
		page = n
	}
	return h.sendHistory(c, page)
}

func (h *Handlers) sendHistory(c tele.Context, page int) error {
	ctx := helpers.BuildContext(c)
	id := state.IdentityOf(c)

	account, ok, err := h.accounts.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok || account.PlayerUUID == "" {
		return helpers.SendText(c, "You don't have any transactions yet.")
	}

	txs, pg, err := h.backend.Transactions(ctx, account.PlayerUUID, page, historyPageSize)
	if err != nil {
		return h.deliver(c, []flow.Prompt{{Text: "⚠️ The service is temporarily unavailable. Please try again."}}, err)
	}
	if len(txs) == 0 && page == 1 {
		return helpers.SendText(c, "You don't have any transactions yet.")
	}

	var b strings.Builder
	b.WriteString("📋 Your transactions\n")
	for _, tx := range txs {
		fmt.Fprintf(&b, "\n%s %s %.2f %s — %s",
			historyBadge(tx.Status), tx.Type, tx.Amount, tx.Currency, tx.Status)
		if tx.CreatedAt != "" {
			fmt.Fprintf(&b, "\n    %s", tx.CreatedAt)
		}
	}

	var nav []keyboard.InlineBtn
	if pg.Page > 1 {
		nav = append(nav, keyboard.InlineBtn{Text: "⬅️ Prev", Unique: "hist_page", Data: strconv.Itoa(pg.Page - 1)})
	}
	if pg.Limit > 0 && pg.Page*pg.Limit < pg.Total {
		nav = append(nav, keyboard.InlineBtn{Text: "Next ➡️", Unique: "hist_page", Data: strconv.Itoa(pg.Page + 1)})
	}
	var markup *tele.ReplyMarkup
	if len(nav) > 0 {
		markup = keyboard.InlineButtonsNPerRow(nav, 2)
	}
	return helpers.SendText(c, b.String(), &tele.SendOptions{ReplyMarkup: markup})
}

func historyBadge(status string) string {
	switch status {
	case gateway.StatusSuccess:
		return "✅"
	case gateway.StatusFailed, gateway.StatusCancelled:
		return "❌"
	case gateway.StatusInProgress:
		return "⏳"
	}
	return "🕐"
}
