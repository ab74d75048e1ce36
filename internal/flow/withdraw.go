package flow

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/m3rciful/betbot/core/telegram/state"
	"github.com/m3rciful/betbot/internal/gateway"
)

// NewWithdrawFlow builds the withdrawal conversation. The destination
// details are collected field by field; the payout method decides at runtime
// how many fields there are.
func NewWithdrawFlow(deps Deps) *Definition {
	return &Definition{
		Name:       FlowWithdraw,
		Initial:    StepSelectingBank,
		CancelText: "Withdrawal cancelled. Nothing was submitted.",
		OnStart:    withdrawStart(deps),
		Steps: map[state.Step]Handler{
			StepSelectingBank:         withdrawSelectBank(deps),
			StepEnteringAmount:        withdrawEnterAmount(deps),
			StepEnteringRequiredField: withdrawEnterField(deps),
			StepSelectingSite:         selectSite("wd_site_id", "wd_site_name", StepEnteringSitePlayerID),
			StepEnteringSitePlayerID:  withdrawEnterSitePlayerID(deps),
			StepConfirming:            withdrawConfirm(deps),
		},
	}
}

func withdrawStart(deps Deps) Handler {
	return func(ctx context.Context, req Request) (Outcome, error) {
		banks, err := deps.Backend.WithdrawalBanks(ctx)
		if err != nil {
			return Outcome{}, err
		}
		if len(banks) == 0 {
			return Outcome{
				Next:    StepDone,
				Prompts: []Prompt{{Text: "No withdrawal methods are available right now. Please try again later."}},
			}, nil
		}

		cached := make([]map[string]any, 0, len(banks))
		for _, b := range banks {
			names := make([]string, 0, len(b.RequiredFields))
			labels := make([]string, 0, len(b.RequiredFields))
			for _, f := range b.RequiredFields {
				names = append(names, f.Name)
				label := f.Label
				if label == "" {
					label = f.Name
				}
				labels = append(labels, label)
			}
			cached = append(cached, map[string]any{
				"id":        b.ID,
				"name":      b.Name,
				"rf_names":  names,
				"rf_labels": labels,
				"notes":     b.Notes,
			})
		}
		return Outcome{
			Patch: map[string]any{"wd_banks": cached, "wd_page": 0},
			Prompts: []Prompt{{
				Text:     "💸 *Withdraw*\n\nChoose your payout method:",
				Markdown: true,
				Inline:   pickKeyboard(cached, 0, ActionWithdrawalBank),
			}},
		}, nil
	}
}

func withdrawSelectBank(deps Deps) Handler {
	return func(ctx context.Context, req Request) (Outcome, error) {
		banks := bagMaps(req.Data, "wd_banks")
		switch {
		case req.Event.Button == ActionPage:
			page, _ := strconv.Atoi(req.Event.Payload)
			return Outcome{
				Patch: map[string]any{"wd_page": page},
				Prompts: []Prompt{{
					Text:   "Choose your payout method:",
					Inline: pickKeyboard(banks, page, ActionWithdrawalBank),
				}},
			}, nil
		case req.Event.Button == ActionWithdrawalBank:
			bank, ok := findByID(banks, req.Event.Payload)
			if !ok {
				return Outcome{}, invalid("That payout method is no longer available. Pick one from the list.")
			}
			text := fmt.Sprintf("Payout via *%s*.", mdSafe(bagString(bank, "name")))
			if notes := bagString(bank, "notes"); notes != "" {
				text += "\n" + notes
			}
			text += "\n\nEnter the amount to withdraw:"
			return Outcome{
				Next: StepEnteringAmount,
				Patch: map[string]any{
					"wd_bank_id":   bagInt(bank, "id"),
					"wd_bank_name": bagString(bank, "name"),
					"rf_names":     bagStrings(bank, "rf_names"),
					"rf_labels":    bagStrings(bank, "rf_labels"),
				},
				Prompts: []Prompt{{Text: text, Markdown: true, Reply: amountReplies}},
			}, nil
		default:
			return Outcome{}, invalid("Please choose a payout method from the buttons.")
		}
	}
}

func withdrawEnterAmount(deps Deps) Handler {
	return func(ctx context.Context, req Request) (Outcome, error) {
		if req.Event.Text == "Custom amount" {
			return Outcome{Prompts: []Prompt{{Text: "Enter the amount:", RemoveReply: true}}}, nil
		}
		amount, err := ParseAmount(req.Event.Text)
		if err != nil {
			return Outcome{}, err
		}

		labels := bagStrings(req.Data, "rf_labels")
		if len(labels) == 0 {
			// Method declares no destination fields; go straight to the site.
			return withdrawToSites(ctx, deps, map[string]any{"amount": amount, "rf_values": []string{}})
		}
		return Outcome{
			Next:  StepEnteringRequiredField,
			Patch: map[string]any{"amount": amount, "rf_index": 0, "rf_values": []string{}},
			Prompts: []Prompt{{
				Text:        fmt.Sprintf("Enter your %s:", labels[0]),
				RemoveReply: true,
			}},
		}, nil
	}
}

// withdrawEnterField collects one destination field per message, advancing a
// cursor through the method's field list.
func withdrawEnterField(deps Deps) Handler {
	return func(ctx context.Context, req Request) (Outcome, error) {
		labels := bagStrings(req.Data, "rf_labels")
		index := bagInt(req.Data, "rf_index")
		value := strings.TrimSpace(req.Event.Text)
		if value == "" {
			label := "value"
			if index < len(labels) {
				label = labels[index]
			}
			return Outcome{}, invalid(fmt.Sprintf("Please enter your %s.", label))
		}

		values := append(bagStrings(req.Data, "rf_values"), value)
		if next := index + 1; next < len(labels) {
			return Outcome{
				Patch:   map[string]any{"rf_values": values, "rf_index": next},
				Prompts: []Prompt{{Text: fmt.Sprintf("Enter your %s:", labels[next])}},
			}, nil
		}
		return withdrawToSites(ctx, deps, map[string]any{"rf_values": values})
	}
}

// withdrawToSites loads the betting sites and moves the flow to the site
// picker, merging extra into the patch.
func withdrawToSites(ctx context.Context, deps Deps, extra map[string]any) (Outcome, error) {
	sites, err := deps.Backend.BettingSites(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if len(sites) == 0 {
		return Outcome{}, invalid("No betting sites are configured. Please try again later.")
	}
	cached := make([]map[string]any, 0, len(sites))
	for _, s := range sites {
		cached = append(cached, map[string]any{"id": s.ID, "name": s.Name})
	}
	patch := map[string]any{"sites": cached, "site_page": 0}
	for k, v := range extra {
		patch[k] = v
	}
	return Outcome{
		Next:  StepSelectingSite,
		Patch: patch,
		Prompts: []Prompt{{
			Text:        "Which betting site is the withdrawal from?",
			RemoveReply: true,
		}, {
			Text:   "Select a site:",
			Inline: pickKeyboard(cached, 0, ActionSite),
		}},
	}, nil
}

func withdrawEnterSitePlayerID(deps Deps) Handler {
	return func(ctx context.Context, req Request) (Outcome, error) {
		siteID, err := ValidateSiteID(req.Event.Text)
		if err != nil {
			return Outcome{}, err
		}
		address := strings.Join(bagStrings(req.Data, "rf_values"), ", ")
		summary := fmt.Sprintf(
			"Please confirm your withdrawal:\n\nMethod: %s\nAmount: %s %s\nDestination: %s\nSite: %s\nPlayer ID: %s",
			bagString(req.Data, "wd_bank_name"),
			formatAmount(bagFloat(req.Data, "amount")),
			deps.Backend.Currency(),
			MaskAccountNumber(address),
			bagString(req.Data, "wd_site_name"),
			siteID,
		)
		return Outcome{
			Next:    StepConfirming,
			Patch:   map[string]any{"player_site_id": siteID},
			Prompts: []Prompt{{Text: summary, Inline: confirmKeyboard()}},
		}, nil
	}
}

func withdrawConfirm(deps Deps) Handler {
	return func(ctx context.Context, req Request) (Outcome, error) {
		if req.Event.Button != ActionConfirm {
			return Outcome{}, invalid("Please confirm or cancel with the buttons.")
		}
		if req.Event.Payload != "yes" {
			return Outcome{
				Next:    StepDone,
				Prompts: []Prompt{{Text: "Withdrawal cancelled. Nothing was submitted.", RemoveReply: true}},
			}, nil
		}

		playerUUID, err := deps.Accounts.EnsurePlayer(ctx, req.Identity, req.Event.Username)
		if err != nil {
			return Outcome{}, err
		}
		tx, err := deps.Backend.CreateTransaction(ctx, gateway.CreateTransactionRequest{
			PlayerUUID:        playerUUID,
			Type:              gateway.TxWithdraw,
			Amount:            bagFloat(req.Data, "amount"),
			WithdrawalBankID:  int64(bagInt(req.Data, "wd_bank_id")),
			WithdrawalAddress: strings.Join(bagStrings(req.Data, "rf_values"), ", "),
			BettingSiteID:     int64(bagInt(req.Data, "wd_site_id")),
			PlayerSiteID:      bagString(req.Data, "player_site_id"),
		})
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{
			Next: StepDone,
			Prompts: []Prompt{{
				Text: fmt.Sprintf("✅ Withdrawal submitted!\n\nReference: %s\nStatus: %s\n\nYou will be notified once it is processed.",
					txReference(tx), tx.Status),
				RemoveReply: true,
			}},
		}, nil
	}
}
