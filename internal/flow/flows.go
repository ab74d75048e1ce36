package flow

import (
	"strconv"

	"github.com/m3rciful/betbot/core/telegram/format"
	"github.com/m3rciful/betbot/core/telegram/state"
)

// Flow names.
const (
	FlowDeposit     state.Flow = "deposit"
	FlowWithdraw    state.Flow = "withdraw"
	FlowRegister    state.Flow = "register"
	FlowLogin       state.Flow = "login"
	FlowAdminReview state.Flow = "admin_review"
	FlowAgentReview state.Flow = "agent_review"
)

// Step names shared across flows.
const (
	StepSelectingBank         state.Step = "selecting_bank"
	StepEnteringAmount        state.Step = "entering_amount"
	StepEnteringRequiredField state.Step = "entering_required_fields"
	StepSelectingSite         state.Step = "selecting_site"
	StepEnteringSitePlayerID  state.Step = "entering_site_player_id"
	StepUploadingReceipt      state.Step = "uploading_receipt"
	StepConfirming            state.Step = "confirming"
)

// Callback actions the flows understand. The Telegram layer registers one
// callback route per action and forwards the payload untouched.
const (
	ActionDepositBank    = "dep_bank"
	ActionWithdrawalBank = "wd_bank"
	ActionSite           = "site"
	ActionConfirm        = "confirm"
	ActionPage           = "page"
)

const listPageSize = 6

// amountReplies is the quick-pick reply keyboard shown before free-form
// amount entry.
var amountReplies = [][]string{
	{"50", "100", "200"},
	{"500", "1000", "Custom amount"},
}

func formatAmount(a float64) string {
	return strconv.FormatFloat(a, 'f', -1, 64)
}

// mdSafe escapes backend-supplied names before embedding them in Markdown
// prompts.
func mdSafe(s string) string {
	escaped, err := format.EscapeMarkdown(s, format.MarkdownV1)
	if err != nil {
		return s
	}
	return escaped
}

// pickKeyboard renders one page of {id,name} items as inline rows, with
// prev/next navigation when the list spills over a page.
func pickKeyboard(items []map[string]any, page int, action string) [][]Button {
	if page < 0 {
		page = 0
	}
	start := page * listPageSize
	if start >= len(items) {
		start = 0
		page = 0
	}
	end := start + listPageSize
	if end > len(items) {
		end = len(items)
	}

	var rows [][]Button
	for _, item := range items[start:end] {
		rows = append(rows, []Button{{
			Label:  bagString(item, "name"),
			Action: action,
			Data:   strconv.FormatInt(int64(bagInt(item, "id")), 10),
		}})
	}

	var nav []Button
	if page > 0 {
		nav = append(nav, Button{Label: "⬅️ Prev", Action: ActionPage, Data: strconv.Itoa(page - 1)})
	}
	if end < len(items) {
		nav = append(nav, Button{Label: "Next ➡️", Action: ActionPage, Data: strconv.Itoa(page + 1)})
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	return rows
}

// findByID returns the cached {id,...} map matching the callback payload.
func findByID(items []map[string]any, payload string) (map[string]any, bool) {
	id, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		return nil, false
	}
	for _, item := range items {
		if int64(bagInt(item, "id")) == id {
			return item, true
		}
	}
	return nil, false
}

func confirmKeyboard() [][]Button {
	return [][]Button{{
		{Label: "✅ Confirm", Action: ActionConfirm, Data: "yes"},
		{Label: "❌ Cancel", Action: ActionConfirm, Data: "no"},
	}}
}
