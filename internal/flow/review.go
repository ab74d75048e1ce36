package flow

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/m3rciful/betbot/core/telegram/helpers"
	"github.com/m3rciful/betbot/core/telegram/state"
	"github.com/m3rciful/betbot/internal/gateway"
)

const StepBrowsing state.Step = "browsing"
const StepEnteringDate state.Step = "entering_date"

// Callback actions of the review flows.
const (
	ActionAdminTx     = "admin_tx"
	ActionAdminPage   = "admin_page"
	ActionAdminDate   = "admin_date"
	ActionAdminBack   = "admin_back"
	ActionAdminAssign = "admin_assign"
	ActionAdminAgent  = "admin_agent"
	ActionAdminStatus = "admin_status"

	ActionAgentTx     = "agent_tx"
	ActionAgentPage   = "agent_page"
	ActionAgentBack   = "agent_back"
	ActionAgentStatus = "agent_status"
	ActionAgentStats  = "agent_stats"
)

// txCacheKey holds the per-identity transaction cache inside the data bag.
// List loads populate it, detail views read it instead of refetching, and
// mutations update the cached entry in place. Back buttons complete the flow
// with this key preserved, so the cache outlives the state reset.
const txCacheKey = "tx_cache"

func txToBag(tx gateway.Transaction) map[string]any {
	m := map[string]any{
		"id":             tx.ID,
		"uuid":           tx.UUID,
		"type":           tx.Type,
		"amount":         tx.Amount,
		"currency":       tx.Currency,
		"status":         tx.Status,
		"agent_id":       tx.AgentID,
		"address":        tx.WithdrawalAddress,
		"player_site_id": tx.PlayerSiteID,
		"created_at":     tx.CreatedAt,
	}
	if tx.DepositBank != nil {
		m["bank"] = tx.DepositBank.Name
	}
	if tx.WithdrawalBank != nil {
		m["bank"] = tx.WithdrawalBank.Name
	}
	return m
}

func cacheTransactions(data map[string]any, txs []gateway.Transaction) map[string]any {
	cache, _ := data[txCacheKey].(map[string]any)
	if cache == nil {
		cache = make(map[string]any, len(txs))
	}
	for _, tx := range txs {
		cache[strconv.FormatInt(tx.ID, 10)] = txToBag(tx)
	}
	return cache
}

func cachedTx(data map[string]any, id string) (map[string]any, bool) {
	cache, _ := data[txCacheKey].(map[string]any)
	if cache == nil {
		return nil, false
	}
	m, ok := cache[id].(map[string]any)
	return m, ok
}

func statusBadge(status string) string {
	switch status {
	case gateway.StatusPending:
		return "🕐"
	case gateway.StatusInProgress:
		return "⏳"
	case gateway.StatusSuccess:
		return "✅"
	case gateway.StatusFailed:
		return "❌"
	case gateway.StatusCancelled:
		return "🚫"
	}
	return "•"
}

func txSummaryLine(m map[string]any) string {
	return fmt.Sprintf("%s #%d %s %s %s",
		statusBadge(bagString(m, "status")),
		bagInt(m, "id"),
		bagString(m, "type"),
		formatAmount(bagFloat(m, "amount")),
		bagString(m, "currency"),
	)
}

func txDetailText(m map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Transaction #%d\n\n", bagInt(m, "id"))
	fmt.Fprintf(&b, "Type: %s\n", bagString(m, "type"))
	fmt.Fprintf(&b, "Amount: %s %s\n", formatAmount(bagFloat(m, "amount")), bagString(m, "currency"))
	fmt.Fprintf(&b, "Status: %s %s\n", statusBadge(bagString(m, "status")), bagString(m, "status"))
	if bank := bagString(m, "bank"); bank != "" {
		fmt.Fprintf(&b, "Bank: %s\n", bank)
	}
	if addr := bagString(m, "address"); addr != "" {
		fmt.Fprintf(&b, "Destination: %s\n", MaskAccountNumber(addr))
	}
	if site := bagString(m, "player_site_id"); site != "" {
		fmt.Fprintf(&b, "Player site ID: %s\n", site)
	}
	if agent := bagInt(m, "agent_id"); agent != 0 {
		fmt.Fprintf(&b, "Agent: #%d\n", agent)
	}
	if at := bagString(m, "created_at"); at != "" {
		fmt.Fprintf(&b, "Created: %s\n", at)
	}
	return b.String()
}

func txListPrompt(title string, txs []gateway.Transaction, page gateway.Page, txAction, pageAction string, extraRows [][]Button) Prompt {
	var b strings.Builder
	b.WriteString(title + "\n")
	var rows [][]Button
	for _, tx := range txs {
		m := txToBag(tx)
		rows = append(rows, []Button{{
			Label:  txSummaryLine(m),
			Action: txAction,
			Data:   strconv.FormatInt(tx.ID, 10),
		}})
	}
	if len(txs) == 0 {
		b.WriteString("\nNothing to show.")
	}

	var nav []Button
	if page.Page > 1 {
		nav = append(nav, Button{Label: "⬅️ Prev", Action: pageAction, Data: strconv.Itoa(page.Page - 1)})
	}
	if page.Limit > 0 && page.Page*page.Limit < page.Total {
		nav = append(nav, Button{Label: "Next ➡️", Action: pageAction, Data: strconv.Itoa(page.Page + 1)})
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	rows = append(rows, extraRows...)
	return Prompt{Text: b.String(), Inline: rows}
}

// NewAdminReviewFlow builds the admin transaction review surface: a paged
// list with a by-date filter, per-transaction detail, agent assignment and
// direct status changes.
func NewAdminReviewFlow(deps Deps) *Definition {
	return &Definition{
		Name:       FlowAdminReview,
		Initial:    StepBrowsing,
		CancelText: "Closed the admin panel.",
		OnStart: func(ctx context.Context, req Request) (Outcome, error) {
			token, err := reviewToken(ctx, deps, req, "admin")
			if err != nil {
				return Outcome{}, err
			}
			if token == "" {
				return Outcome{
					Next:    StepDone,
					Prompts: []Prompt{{Text: "You need to /login with an admin account first."}},
				}, nil
			}
			return adminList(ctx, deps, req.Data, token, 1, bagString(req.Data, "admin_date"))
		},
		Steps: map[state.Step]Handler{
			StepBrowsing:     adminBrowse(deps),
			StepEnteringDate: adminEnterDate(deps),
		},
	}
}

// reviewToken returns the stored access token when the account carries the
// wanted role.
func reviewToken(ctx context.Context, deps Deps, req Request, role string) (string, error) {
	acc, ok, err := deps.Accounts.Get(ctx, req.Identity)
	if err != nil {
		return "", err
	}
	if !ok || acc.Role != role || acc.AccessToken == "" {
		return "", nil
	}
	return acc.AccessToken, nil
}

func adminList(ctx context.Context, deps Deps, data map[string]any, token string, page int, dateRange string) (Outcome, error) {
	txs, pg, err := deps.Backend.AdminTransactions(ctx, token, gateway.ListFilter{
		Page:      page,
		Limit:     listPageSize,
		DateRange: dateRange,
	})
	if err != nil {
		return Outcome{}, err
	}

	title := "🗂 Transactions"
	if dateRange != "" {
		title += " (" + dateRange + ")"
	}
	extra := [][]Button{{
		{Label: "📅 Filter by date", Action: ActionAdminDate, Data: "open"},
		{Label: "Close", Action: ActionAdminBack, Data: "close"},
	}}
	return Outcome{
		Next: StepBrowsing,
		Patch: map[string]any{
			txCacheKey:      cacheTransactions(data, txs),
			"admin_page_no": pg.Page,
			"admin_date":    dateRange,
		},
		Prompts: []Prompt{txListPrompt(title, txs, pg, ActionAdminTx, ActionAdminPage, extra)},
	}, nil
}

func adminDetailKeyboard(id string, status string) [][]Button {
	rows := [][]Button{{
		{Label: "👤 Assign agent", Action: ActionAdminAssign, Data: id},
	}}
	var statusRow []Button
	for _, s := range gateway.AdminStatuses {
		if s == status {
			continue
		}
		statusRow = append(statusRow, Button{
			Label:  statusBadge(s),
			Action: ActionAdminStatus,
			Data:   id + ":" + s,
		})
	}
	rows = append(rows, statusRow)
	rows = append(rows, []Button{{Label: "⬅️ Back", Action: ActionAdminBack, Data: "close"}})
	return rows
}

func adminBrowse(deps Deps) Handler {
	return func(ctx context.Context, req Request) (Outcome, error) {
		token, err := reviewToken(ctx, deps, req, "admin")
		if err != nil {
			return Outcome{}, err
		}
		if token == "" {
			return Outcome{}, gateway.ErrSessionExpired
		}

		switch req.Event.Button {
		case ActionAdminTx:
			m, ok := cachedTx(req.Data, req.Event.Payload)
			if !ok {
				return Outcome{}, invalid("That transaction is not on the current page.")
			}
			return Outcome{
				Prompts: []Prompt{{
					Text:   txDetailText(m),
					Inline: adminDetailKeyboard(req.Event.Payload, bagString(m, "status")),
				}},
			}, nil

		case ActionAdminPage:
			page, _ := strconv.Atoi(req.Event.Payload)
			return adminList(ctx, deps, req.Data, token, page, bagString(req.Data, "admin_date"))

		case ActionAdminDate:
			return Outcome{
				Next:    StepEnteringDate,
				Prompts: []Prompt{{Text: "Enter a date (e.g. 2026-08-30, today, yesterday):"}},
			}, nil

		case ActionAdminBack:
			return Outcome{
				Next:     StepDone,
				Preserve: []string{txCacheKey},
				Prompts:  []Prompt{{Text: "Admin panel closed.", RemoveReply: true}},
			}, nil

		case ActionAdminAssign:
			agents, aerr := deps.Backend.Agents(ctx, token)
			if aerr != nil {
				return Outcome{}, aerr
			}
			if len(agents) == 0 {
				return Outcome{}, invalid("No agents are registered.")
			}
			var rows [][]Button
			for _, a := range agents {
				rows = append(rows, []Button{{
					Label:  fmt.Sprintf("%s (%d open)", a.Username, a.Assigned),
					Action: ActionAdminAgent,
					Data:   req.Event.Payload + ":" + strconv.FormatInt(a.ID, 10),
				}})
			}
			rows = append(rows, []Button{{Label: "⬅️ Back", Action: ActionAdminTx, Data: req.Event.Payload}})
			return Outcome{
				Prompts: []Prompt{{Text: "Assign to which agent?", Inline: rows}},
			}, nil

		case ActionAdminAgent:
			txID, agentID, ok := splitIDPair(req.Event.Payload)
			if !ok {
				return Outcome{}, invalid("Malformed selection.")
			}
			tx, aerr := deps.Backend.AssignAgent(ctx, token, txID, agentID)
			if aerr != nil {
				return Outcome{}, aerr
			}
			m := txToBag(tx)
			return Outcome{
				Patch: map[string]any{txCacheKey: cacheTransactions(req.Data, []gateway.Transaction{tx})},
				Prompts: []Prompt{{
					Text:   "👤 Agent assigned.\n\n" + txDetailText(m),
					Inline: adminDetailKeyboard(strconv.FormatInt(tx.ID, 10), tx.Status),
				}},
			}, nil

		case ActionAdminStatus:
			id, status, ok := strings.Cut(req.Event.Payload, ":")
			if !ok {
				return Outcome{}, invalid("Malformed selection.")
			}
			txID, perr := strconv.ParseInt(id, 10, 64)
			if perr != nil {
				return Outcome{}, invalid("Malformed selection.")
			}
			tx, serr := deps.Backend.SetStatus(ctx, token, txID, status, "")
			if serr != nil {
				return Outcome{}, serr
			}
			m := txToBag(tx)
			return Outcome{
				Patch: map[string]any{txCacheKey: cacheTransactions(req.Data, []gateway.Transaction{tx})},
				Prompts: []Prompt{{
					Text:   "Status updated.\n\n" + txDetailText(m),
					Inline: adminDetailKeyboard(id, tx.Status),
				}},
			}, nil
		}
		return Outcome{}, invalid("Use the buttons to browse transactions, or /cancel.")
	}
}

func adminEnterDate(deps Deps) Handler {
	return func(ctx context.Context, req Request) (Outcome, error) {
		token, err := reviewToken(ctx, deps, req, "admin")
		if err != nil {
			return Outcome{}, err
		}
		if token == "" {
			return Outcome{}, gateway.ErrSessionExpired
		}
		day, ok := helpers.ParseFlexibleDate(strings.TrimSpace(req.Event.Text))
		if !ok {
			return Outcome{}, invalid("I could not read that date. Try 2026-08-30, today or yesterday.")
		}
		return adminList(ctx, deps, req.Data, token, 1, day.Format("2006-01-02"))
	}
}

func splitIDPair(payload string) (int64, int64, bool) {
	first, second, ok := strings.Cut(payload, ":")
	if !ok {
		return 0, 0, false
	}
	a, err1 := strconv.ParseInt(first, 10, 64)
	b, err2 := strconv.ParseInt(second, 10, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return a, b, true
}

// NewAgentReviewFlow builds the agent task list: assigned transactions with
// in-place processing and a workload summary.
func NewAgentReviewFlow(deps Deps) *Definition {
	return &Definition{
		Name:       FlowAgentReview,
		Initial:    StepBrowsing,
		CancelText: "Closed the task list.",
		OnStart: func(ctx context.Context, req Request) (Outcome, error) {
			token, err := reviewToken(ctx, deps, req, "agent")
			if err != nil {
				return Outcome{}, err
			}
			if token == "" {
				return Outcome{
					Next:    StepDone,
					Prompts: []Prompt{{Text: "You need to /login with an agent account first."}},
				}, nil
			}
			return agentList(ctx, deps, req.Data, token, 1)
		},
		Steps: map[state.Step]Handler{
			StepBrowsing: agentBrowse(deps),
		},
	}
}

func agentList(ctx context.Context, deps Deps, data map[string]any, token string, page int) (Outcome, error) {
	txs, pg, err := deps.Backend.AgentTasks(ctx, token, gateway.ListFilter{Page: page, Limit: listPageSize})
	if err != nil {
		return Outcome{}, err
	}
	extra := [][]Button{{
		{Label: "📊 My stats", Action: ActionAgentStats, Data: "open"},
		{Label: "Close", Action: ActionAgentBack, Data: "close"},
	}}
	return Outcome{
		Next:    StepBrowsing,
		Patch:   map[string]any{txCacheKey: cacheTransactions(data, txs), "agent_page_no": pg.Page},
		Prompts: []Prompt{txListPrompt("📋 Your tasks", txs, pg, ActionAgentTx, ActionAgentPage, extra)},
	}, nil
}

func agentDetailKeyboard(id string, status string) [][]Button {
	var statusRow []Button
	for _, s := range gateway.AgentStatuses {
		if s == status {
			continue
		}
		statusRow = append(statusRow, Button{
			Label:  statusBadge(s) + " " + s,
			Action: ActionAgentStatus,
			Data:   id + ":" + s,
		})
	}
	return [][]Button{
		statusRow,
		{{Label: "⬅️ Back", Action: ActionAgentBack, Data: "close"}},
	}
}

func agentBrowse(deps Deps) Handler {
	return func(ctx context.Context, req Request) (Outcome, error) {
		token, err := reviewToken(ctx, deps, req, "agent")
		if err != nil {
			return Outcome{}, err
		}
		if token == "" {
			return Outcome{}, gateway.ErrSessionExpired
		}

		switch req.Event.Button {
		case ActionAgentTx:
			m, ok := cachedTx(req.Data, req.Event.Payload)
			if !ok {
				return Outcome{}, invalid("That task is not on the current page.")
			}
			return Outcome{
				Prompts: []Prompt{{
					Text:   txDetailText(m),
					Inline: agentDetailKeyboard(req.Event.Payload, bagString(m, "status")),
				}},
			}, nil

		case ActionAgentPage:
			page, _ := strconv.Atoi(req.Event.Payload)
			return agentList(ctx, deps, req.Data, token, page)

		case ActionAgentStats:
			stats, serr := deps.Backend.AgentStats(ctx, token)
			if serr != nil {
				return Outcome{}, serr
			}
			text := fmt.Sprintf("📊 Your workload\n\nAssigned: %d\nIn progress: %d\nCompleted: %d\nFailed: %d",
				stats.Assigned, stats.InProgress, stats.Completed, stats.Failed)
			return Outcome{
				Prompts: []Prompt{{
					Text:   text,
					Inline: [][]Button{{{Label: "⬅️ Back", Action: ActionAgentBack, Data: "close"}}},
				}},
			}, nil

		case ActionAgentBack:
			return Outcome{
				Next:     StepDone,
				Preserve: []string{txCacheKey},
				Prompts:  []Prompt{{Text: "Task list closed.", RemoveReply: true}},
			}, nil

		case ActionAgentStatus:
			id, status, ok := strings.Cut(req.Event.Payload, ":")
			if !ok {
				return Outcome{}, invalid("Malformed selection.")
			}
			txID, perr := strconv.ParseInt(id, 10, 64)
			if perr != nil {
				return Outcome{}, invalid("Malformed selection.")
			}
			tx, serr := deps.Backend.ProcessTransaction(ctx, token, txID, status, "")
			if serr != nil {
				return Outcome{}, serr
			}
			m := txToBag(tx)
			return Outcome{
				Patch: map[string]any{txCacheKey: cacheTransactions(req.Data, []gateway.Transaction{tx})},
				Prompts: []Prompt{{
					Text:   "Task updated.\n\n" + txDetailText(m),
					Inline: agentDetailKeyboard(id, tx.Status),
				}},
			}, nil
		}
		return Outcome{}, invalid("Use the buttons to work your tasks, or /cancel.")
	}
}
