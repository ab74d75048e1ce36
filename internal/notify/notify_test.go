package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/betbot/core/config"
	"github.com/m3rciful/betbot/core/telegram/sender"
)

type fakeResolver struct {
	chats map[string]int64
}

func (f *fakeResolver) FindChatByPlayer(ctx context.Context, playerUUID string) (int64, bool, error) {
	id, ok := f.chats[playerUUID]
	return id, ok, nil
}

type fakeSender struct {
	sent chan string
}

func (f *fakeSender) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.sent <- to.Recipient() + "|" + what.(string)
	return &tele.Message{}, nil
}

func newTestServer(t *testing.T) (*Server, *fakeSender) {
	t.Helper()
	queue := sender.NewDispatcher(sender.Options{Workers: 1})
	t.Cleanup(queue.Close)
	bot := &fakeSender{sent: make(chan string, 1)}
	resolver := &fakeResolver{chats: map[string]int64{"p-1": 42}}
	return NewServer(coreconfig.NotifyConfig{Listen: "127.0.0.1:0", Secret: "s3cret"}, resolver, bot, queue), bot
}

func postNotify(srv *Server, secret, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/notify", strings.NewReader(body))
	if secret != "" {
		req.Header.Set("X-BACKEND-SECRET", secret)
	}
	rec := httptest.NewRecorder()
	srv.handleNotify(rec, req)
	return rec
}

func TestNotifyDeliversToLinkedChat(t *testing.T) {
	srv, bot := newTestServer(t)

	rec := postNotify(srv, "s3cret", `{"player_uuid":"p-1","message":"Your deposit was approved"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case got := <-bot.sent:
		assert.Equal(t, "42|Your deposit was approved", got)
	case <-time.After(2 * time.Second):
		t.Fatal("message was not dispatched")
	}
}

func TestNotifyRejectsBadSecret(t *testing.T) {
	srv, bot := newTestServer(t)

	rec := postNotify(srv, "wrong", `{"player_uuid":"p-1","message":"hi"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = postNotify(srv, "", `{"player_uuid":"p-1","message":"hi"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	select {
	case <-bot.sent:
		t.Fatal("nothing must be sent on rejected requests")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNotifyUnknownPlayer(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := postNotify(srv, "s3cret", `{"player_uuid":"nobody","message":"hi"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotifyValidatesBody(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := postNotify(srv, "s3cret", `{"player_uuid":"p-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postNotify(srv, "s3cret", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotifyMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/notify", nil)
	rec := httptest.NewRecorder()
	srv.handleNotify(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
