package router

import (
	"testing"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/betbot/core/telegram/state"
)

// lockCtx provides just enough context for identity extraction.
type lockCtx struct {
	tele.Context
}

func (lockCtx) Chat() *tele.Chat   { return &tele.Chat{ID: 42} }
func (lockCtx) Sender() *tele.User { return &tele.User{ID: 42} }

func TestLockMiddlewareSerializesHandler(t *testing.T) {
	var order []string
	lock := func(id state.Identity) func() {
		if id.ChatID != 42 || id.UserID != 42 {
			t.Fatalf("lock called with wrong identity: %+v", id)
		}
		order = append(order, "lock")
		return func() { order = append(order, "unlock") }
	}
	handler := func(c tele.Context) error {
		order = append(order, "handler")
		return nil
	}

	if err := lockMiddleware(lock, handler)(lockCtx{}); err != nil {
		t.Fatalf("handler: %v", err)
	}

	want := []string{"lock", "handler", "unlock"}
	if len(order) != len(want) {
		t.Fatalf("got order %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got order %v, want %v", order, want)
		}
	}
}
