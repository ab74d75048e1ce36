package handlers

import (
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/betbot/core/telegram/helpers"
	"github.com/m3rciful/betbot/core/telegram/keyboard"
	"github.com/m3rciful/betbot/internal/flow"
)

// renderPrompts sends engine prompts in order through the async sender.
func renderPrompts(c tele.Context, prompts []flow.Prompt) error {
	for _, p := range prompts {
		if err := renderPrompt(c, p); err != nil {
			return err
		}
	}
	return nil
}

func renderPrompt(c tele.Context, p flow.Prompt) error {
	markup := promptMarkup(p)

	if p.Markdown {
		return helpers.SendMD(c, p.Text, markup)
	}
	opts := &tele.SendOptions{ReplyMarkup: markup}
	return helpers.SendText(c, p.Text, opts)
}

func promptMarkup(p flow.Prompt) *tele.ReplyMarkup {
	switch {
	case len(p.Inline) > 0:
		rows := make([][]keyboard.InlineBtn, 0, len(p.Inline))
		for _, row := range p.Inline {
			btns := make([]keyboard.InlineBtn, 0, len(row))
			for _, b := range row {
				btns = append(btns, keyboard.InlineBtn{Text: b.Label, Unique: b.Action, Data: b.Data})
			}
			rows = append(rows, btns)
		}
		return keyboard.InlineButtonsRows(rows...)
	case len(p.Reply) > 0:
		return keyboard.ReplyButtons(p.Reply...)
	case p.RemoveReply:
		return keyboard.RemoveKeyboard()
	}
	return nil
}
