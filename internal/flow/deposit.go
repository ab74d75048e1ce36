package flow

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/m3rciful/betbot/core/telegram/state"
	"github.com/m3rciful/betbot/internal/gateway"
)

// NewDepositFlow builds the guided deposit conversation. The player picks a
// receiving bank, enters the amount, names the betting site and account,
// uploads the transfer receipt and confirms before anything is sent to the
// backend.
func NewDepositFlow(deps Deps) *Definition {
	return &Definition{
		Name:       FlowDeposit,
		Initial:    StepSelectingBank,
		CancelText: "Deposit cancelled. Nothing was submitted.",
		OnStart:    depositStart(deps),
		Steps: map[state.Step]Handler{
			StepSelectingBank:        depositSelectBank(deps),
			StepEnteringAmount:       depositEnterAmount(deps),
			StepSelectingSite:        selectSite("dep_site_id", "dep_site_name", StepEnteringSitePlayerID),
			StepEnteringSitePlayerID: depositEnterSitePlayerID(deps),
			StepUploadingReceipt:     depositUploadReceipt(deps),
			StepConfirming:           depositConfirm(deps),
		},
	}
}

func depositStart(deps Deps) Handler {
	return func(ctx context.Context, req Request) (Outcome, error) {
		banks, err := deps.Backend.DepositBanks(ctx)
		if err != nil {
			return Outcome{}, err
		}
		if len(banks) == 0 {
			return Outcome{
				Next:    StepDone,
				Prompts: []Prompt{{Text: "No deposit methods are available right now. Please try again later."}},
			}, nil
		}

		cached := make([]map[string]any, 0, len(banks))
		for _, b := range banks {
			cached = append(cached, map[string]any{
				"id":             b.ID,
				"name":           b.Name,
				"account_number": b.AccountNumber,
				"account_name":   b.AccountName,
				"notes":          b.Notes,
			})
		}
		return Outcome{
			Patch: map[string]any{"dep_banks": cached, "dep_page": 0},
			Prompts: []Prompt{{
				Text:     "💰 *Deposit*\n\nChoose the bank you will transfer to:",
				Markdown: true,
				Inline:   pickKeyboard(cached, 0, ActionDepositBank),
			}},
		}, nil
	}
}

func depositSelectBank(deps Deps) Handler {
	return func(ctx context.Context, req Request) (Outcome, error) {
		banks := bagMaps(req.Data, "dep_banks")
		switch {
		case req.Event.Button == ActionPage:
			page, _ := strconv.Atoi(req.Event.Payload)
			return Outcome{
				Patch: map[string]any{"dep_page": page},
				Prompts: []Prompt{{
					Text:   "Choose the bank you will transfer to:",
					Inline: pickKeyboard(banks, page, ActionDepositBank),
				}},
			}, nil
		case req.Event.Button == ActionDepositBank:
			bank, ok := findByID(banks, req.Event.Payload)
			if !ok {
				return Outcome{}, invalid("That bank is no longer available. Pick one from the list.")
			}
			text := fmt.Sprintf("🏦 *%s*\nAccount: `%s`\nName: %s",
				mdSafe(bagString(bank, "name")), bagString(bank, "account_number"), mdSafe(bagString(bank, "account_name")))
			if notes := bagString(bank, "notes"); notes != "" {
				text += "\n" + notes
			}
			text += "\n\nTransfer the money, then enter the amount:"
			return Outcome{
				Next: StepEnteringAmount,
				Patch: map[string]any{
					"dep_bank_id":   bagInt(bank, "id"),
					"dep_bank_name": bagString(bank, "name"),
				},
				Prompts: []Prompt{{Text: text, Markdown: true, Reply: amountReplies}},
			}, nil
		default:
			return Outcome{}, invalid("Please choose a bank from the buttons.")
		}
	}
}

func depositEnterAmount(deps Deps) Handler {
	return func(ctx context.Context, req Request) (Outcome, error) {
		if req.Event.Text == "Custom amount" {
			return Outcome{Prompts: []Prompt{{Text: "Enter the amount:", RemoveReply: true}}}, nil
		}
		amount, err := ParseAmount(req.Event.Text)
		if err != nil {
			return Outcome{}, err
		}
		sites, serr := deps.Backend.BettingSites(ctx)
		if serr != nil {
			return Outcome{}, serr
		}
		if len(sites) == 0 {
			return Outcome{}, invalid("No betting sites are configured. Please try again later.")
		}
		cached := make([]map[string]any, 0, len(sites))
		for _, s := range sites {
			cached = append(cached, map[string]any{"id": s.ID, "name": s.Name})
		}
		return Outcome{
			Next:  StepSelectingSite,
			Patch: map[string]any{"amount": amount, "sites": cached, "site_page": 0},
			Prompts: []Prompt{{
				Text:        "Which betting site should the deposit go to?",
				RemoveReply: true,
			}, {
				Inline: pickKeyboard(cached, 0, ActionSite),
				Text:   "Select a site:",
			}},
		}, nil
	}
}

// selectSite is the shared betting-site picker used by both transaction
// flows; only the bag keys and the following step differ.
func selectSite(idKey, nameKey string, next state.Step) Handler {
	return func(ctx context.Context, req Request) (Outcome, error) {
		sites := bagMaps(req.Data, "sites")
		switch {
		case req.Event.Button == ActionPage:
			page, _ := strconv.Atoi(req.Event.Payload)
			return Outcome{
				Patch: map[string]any{"site_page": page},
				Prompts: []Prompt{{
					Text:   "Select a site:",
					Inline: pickKeyboard(sites, page, ActionSite),
				}},
			}, nil
		case req.Event.Button == ActionSite:
			site, ok := findByID(sites, req.Event.Payload)
			if !ok {
				return Outcome{}, invalid("That site is not available. Pick one from the list.")
			}
			return Outcome{
				Next: next,
				Patch: map[string]any{
					idKey:   bagInt(site, "id"),
					nameKey: bagString(site, "name"),
				},
				Prompts: []Prompt{{Text: fmt.Sprintf("Enter your player ID on %s:", bagString(site, "name"))}},
			}, nil
		default:
			return Outcome{}, invalid("Please choose a site from the buttons.")
		}
	}
}

// KeyReceiptPath is the bag key holding the staged receipt file path. The
// telegram layer reads it to decide whether the flow claimed a saved file.
const KeyReceiptPath = "receipt_path"

func depositEnterSitePlayerID(deps Deps) Handler {
	return func(ctx context.Context, req Request) (Outcome, error) {
		siteID, err := ValidateSiteID(req.Event.Text)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{
			Next:    StepUploadingReceipt,
			Patch:   map[string]any{"player_site_id": siteID},
			Prompts: []Prompt{{Text: "📷 Send a photo of your transfer receipt, or /skip to continue without one."}},
		}, nil
	}
}

// depositUploadReceipt accepts a receipt photo or /skip; the receipt is
// optional evidence, not a requirement.
func depositUploadReceipt(deps Deps) Handler {
	return func(ctx context.Context, req Request) (Outcome, error) {
		receiptPath := ""
		receiptLine := "skipped"
		switch {
		case req.Event.Kind == EventPhoto && req.Event.FilePath != "":
			receiptPath = req.Event.FilePath
			receiptLine = "attached"
		case req.Event.Kind == EventText && strings.EqualFold(strings.TrimSpace(req.Event.Text), "/skip"):
			// proceed without evidence
		default:
			return Outcome{}, invalid("Please send the receipt as a photo, or /skip.")
		}

		summary := fmt.Sprintf(
			"Please confirm your deposit:\n\nBank: %s\nAmount: %s %s\nSite: %s\nPlayer ID: %s\nReceipt: %s",
			bagString(req.Data, "dep_bank_name"),
			formatAmount(bagFloat(req.Data, "amount")),
			deps.Backend.Currency(),
			bagString(req.Data, "dep_site_name"),
			bagString(req.Data, "player_site_id"),
			receiptLine,
		)
		return Outcome{
			Next:    StepConfirming,
			Patch:   map[string]any{KeyReceiptPath: receiptPath},
			Prompts: []Prompt{{Text: summary, Inline: confirmKeyboard()}},
		}, nil
	}
}

func depositConfirm(deps Deps) Handler {
	return func(ctx context.Context, req Request) (Outcome, error) {
		if req.Event.Button != ActionConfirm {
			return Outcome{}, invalid("Please confirm or cancel with the buttons.")
		}
		if req.Event.Payload != "yes" {
			return Outcome{
				Next:    StepDone,
				Prompts: []Prompt{{Text: "Deposit cancelled. Nothing was submitted.", RemoveReply: true}},
			}, nil
		}

		playerUUID, err := deps.Accounts.EnsurePlayer(ctx, req.Identity, req.Event.Username)
		if err != nil {
			return Outcome{}, err
		}
		tx, err := deps.Backend.CreateTransaction(ctx, gateway.CreateTransactionRequest{
			PlayerUUID:     playerUUID,
			Type:           gateway.TxDeposit,
			Amount:         bagFloat(req.Data, "amount"),
			DepositBankID:  int64(bagInt(req.Data, "dep_bank_id")),
			BettingSiteID:  int64(bagInt(req.Data, "dep_site_id")),
			PlayerSiteID:   bagString(req.Data, "player_site_id"),
			ScreenshotPath: bagString(req.Data, KeyReceiptPath),
		})
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{
			Next: StepDone,
			Prompts: []Prompt{{
				Text: fmt.Sprintf("✅ Deposit submitted!\n\nReference: %s\nStatus: %s\n\nYou will be notified once it is processed.",
					txReference(tx), tx.Status),
				RemoveReply: true,
			}},
		}, nil
	}
}

func txReference(tx gateway.Transaction) string {
	if tx.UUID != "" {
		return tx.UUID
	}
	return strconv.FormatInt(tx.ID, 10)
}
