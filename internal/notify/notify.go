package notify

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/betbot/core/config"
	"github.com/m3rciful/betbot/core/logger"
	"github.com/m3rciful/betbot/core/telegram/sender"
	"log/slog"
)

const secretHeader = "X-BACKEND-SECRET"

// ChatResolver maps a backend player uuid back to its Telegram chat.
type ChatResolver interface {
	FindChatByPlayer(ctx context.Context, playerUUID string) (int64, bool, error)
}

// TextSender delivers one plain message to a chat. *tele.Bot satisfies it.
type TextSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Server accepts push notifications from the payments backend and relays
// them into the player's chat through the async dispatcher.
type Server struct {
	cfg      coreconfig.NotifyConfig
	resolver ChatResolver
	bot      TextSender
	queue    *sender.Dispatcher
	srv      *http.Server
}

func NewServer(cfg coreconfig.NotifyConfig, resolver ChatResolver, bot TextSender, queue *sender.Dispatcher) *Server {
	return &Server{cfg: cfg, resolver: resolver, bot: bot, queue: queue}
}

type pushRequest struct {
	PlayerUUID string `json:"player_uuid"`
	Message    string `json:"message"`
}

// Start begins serving in the background. It is a no-op when no listen
// address is configured.
func (s *Server) Start() error {
	if s.cfg.Listen == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/notify", s.handleNotify)
	s.srv = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.SVCNotify.Info("notify listening", slog.String("addr", s.cfg.Listen))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.SVCNotify.Error("notify server stopped",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		}
	}()
	return nil
}

// Shutdown stops the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	got := r.Header.Get(secretHeader)
	if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.Secret)) != 1 {
		logger.SVCNotify.Warn("notify rejected", slog.String("cause", "bad secret"))
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var req pushRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.PlayerUUID == "" || req.Message == "" {
		http.Error(w, "player_uuid and message are required", http.StatusBadRequest)
		return
	}

	chatID, ok, err := s.resolver.FindChatByPlayer(r.Context(), req.PlayerUUID)
	if err != nil {
		logger.SVCNotify.Error("notify lookup failed",
			slog.String("status", "fail"),
			slog.String("player_uuid", req.PlayerUUID),
			slog.String("err", err.Error()),
		)
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	if !ok {
		// The player never talked to the bot; nothing to deliver to.
		http.Error(w, "player not linked", http.StatusNotFound)
		return
	}

	message := req.Message
	if err := s.queue.Enqueue(context.Background(), "notify", "sendMessage", func() error {
		_, err := s.bot.Send(tele.ChatID(chatID), message)
		return err
	}); err != nil {
		logger.SVCNotify.Error("notify enqueue failed",
			slog.String("status", "fail"),
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
		http.Error(w, "queue unavailable", http.StatusServiceUnavailable)
		return
	}

	logger.SVCNotify.Info("notify accepted",
		slog.String("status", "ok"),
		slog.Int64("chat_id", chatID),
		slog.String("player_uuid", req.PlayerUUID),
	)
	w.WriteHeader(http.StatusAccepted)
}
