package state

import tele "gopkg.in/telebot.v4"

var flowHandlers = map[Flow]tele.HandlerFunc{}

// RegisterHandler associates a flow with the handler that processes its updates.
func RegisterHandler(flow Flow, h tele.HandlerFunc) {
	if h == nil {
		return
	}
	flowHandlers[flow] = h
}

// HandlerFor returns the registered handler for a flow. Store-backed managers
// outside this package dispatch through it.
func HandlerFor(flow Flow) (tele.HandlerFunc, bool) {
	h, ok := flowHandlers[flow]
	return h, ok
}
