package ui

import tele "gopkg.in/telebot.v4"

// FallbackProvider exposes handlers for updates nothing claimed: text that
// matched no command or active conversation, files sent outside an upload
// step, and presses on buttons from finished conversations.
type FallbackProvider interface {
	UnknownText() tele.HandlerFunc
	UnknownDocument() tele.HandlerFunc
	UnknownCallback() tele.HandlerFunc
}
