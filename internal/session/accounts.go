package session

import (
	"context"
	"errors"
	"strconv"

	"github.com/m3rciful/betbot/core/logger"
	"github.com/m3rciful/betbot/core/telegram/commands"
	"github.com/m3rciful/betbot/core/telegram/state"
	"github.com/m3rciful/betbot/internal/flow"
	"github.com/m3rciful/betbot/internal/gateway"
	"log/slog"
)

// PlayerBackend is the part of the gateway the account service needs.
type PlayerBackend interface {
	PlayerByTelegramUser(ctx context.Context, userID int64) (gateway.Player, error)
	CreatePlayer(ctx context.Context, req gateway.CreatePlayerRequest) (gateway.Player, error)
}

// AccountService links Telegram chats to backend players. It implements
// flow.Accounts.
type AccountService struct {
	store   Store
	backend PlayerBackend
}

func NewAccountService(store Store, backend PlayerBackend) *AccountService {
	return &AccountService{store: store, backend: backend}
}

func (s *AccountService) Get(ctx context.Context, id state.Identity) (flow.Account, bool, error) {
	link, ok, err := s.store.GetLink(ctx, id)
	if err != nil || !ok {
		return flow.Account{}, false, err
	}
	return flow.Account{
		PlayerUUID:  link.PlayerUUID,
		Email:       link.Email,
		Role:        link.Role,
		AccessToken: link.AccessToken,
		Language:    link.Language,
	}, true, nil
}

// EnsurePlayer returns the linked player uuid, resolving or creating a
// temporary player on the backend when the chat has no link yet.
func (s *AccountService) EnsurePlayer(ctx context.Context, id state.Identity, tgUsername string) (string, error) {
	link, ok, err := s.store.GetLink(ctx, id)
	if err != nil {
		return "", err
	}
	if ok && link.PlayerUUID != "" {
		return link.PlayerUUID, nil
	}

	player, err := s.backend.PlayerByTelegramUser(ctx, id.UserID)
	if err != nil {
		var gwErr *gateway.Error
		if !errors.As(err, &gwErr) || gwErr.Status != 404 {
			return "", err
		}
		player, err = s.backend.CreatePlayer(ctx, gateway.CreatePlayerRequest{
			TelegramID:       strconv.FormatInt(id.UserID, 10),
			TelegramUsername: tgUsername,
			LanguageCode:     link.Language,
		})
		if err != nil {
			return "", err
		}
		logger.SVCSessions.LogAttrs(ctx, slog.LevelInfo, "player.create",
			slog.String("status", "ok"),
			slog.Int64("user_id", id.UserID),
			slog.String("player_uuid", player.UUID),
		)
	}

	link.ChatID = id.ChatID
	link.UserID = id.UserID
	link.PlayerUUID = player.UUID
	if err := s.store.UpsertLink(ctx, link); err != nil {
		return "", err
	}
	return player.UUID, nil
}

// SaveLogin persists a successful login. Plain players get only the link;
// agents and admins also get their role and access token. The credential
// pair is cached on the link so a dropped backend session can be re-entered.
func (s *AccountService) SaveLogin(ctx context.Context, id state.Identity, res gateway.LoginResult, username, secret string) error {
	link, _, err := s.store.GetLink(ctx, id)
	if err != nil {
		return err
	}
	link.ChatID = id.ChatID
	link.UserID = id.UserID
	link.Email = username
	if res.PlayerUUID != "" {
		link.PlayerUUID = res.PlayerUUID
	}
	link.Role = res.Role
	link.AccessToken = res.AccessToken
	link.CachedUsername = username
	link.CachedSecret = secret
	return s.store.UpsertLink(ctx, link)
}

func (s *AccountService) ClearPrivileged(ctx context.Context, id state.Identity) error {
	return s.store.ClearPrivileged(ctx, id)
}

// Logout drops the privileged session and the cached credential pair. The
// player link itself survives, so history and notifications keep working.
func (s *AccountService) Logout(ctx context.Context, id state.Identity) error {
	link, ok, err := s.store.GetLink(ctx, id)
	if err != nil || !ok {
		return err
	}
	link.Role = ""
	link.AccessToken = ""
	link.CachedUsername = ""
	link.CachedSecret = ""
	return s.store.UpsertLink(ctx, link)
}

// Role resolves the sender's role for command gating. Unknown chats and
// plain players without a stored role are treated as their link suggests:
// a player link without a role is a player, no link at all is a guest.
func (s *AccountService) Role(ctx context.Context, id state.Identity) string {
	link, ok, err := s.store.GetLink(ctx, id)
	if err != nil || !ok {
		return commands.RoleGuest
	}
	if link.Role != "" {
		return link.Role
	}
	if link.PlayerUUID != "" && link.Email != "" {
		return commands.RolePlayer
	}
	return commands.RoleGuest
}

// SetLanguage stores the chat's interface language choice.
func (s *AccountService) SetLanguage(ctx context.Context, id state.Identity, lang string) error {
	return s.store.SetLanguage(ctx, id, lang)
}

// FindChatByPlayer resolves a player uuid to its chat for notifications.
func (s *AccountService) FindChatByPlayer(ctx context.Context, playerUUID string) (int64, bool, error) {
	link, ok, err := s.store.FindByAccount(ctx, playerUUID)
	if err != nil || !ok {
		return 0, false, err
	}
	return link.ChatID, true, nil
}
