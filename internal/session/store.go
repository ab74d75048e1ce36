package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/betbot/core/logger"
	"github.com/m3rciful/betbot/core/telegram/state"
	"log/slog"
)

// Link is the persistent chat-account binding. Everything but the chat key
// is optional: a guest has a row only after their first transaction created
// a temporary player.
type Link struct {
	ChatID      int64  `db:"chat_id"`
	UserID      int64  `db:"user_id"`
	PlayerUUID  string `db:"player_uuid"`
	Email       string `db:"email"`
	Role        string `db:"role"`
	Language    string `db:"language"`
	AccessToken string `db:"access_token"`
	Phone       string `db:"phone"`
	// CachedUsername and CachedSecret are the credential pair remembered
	// from the last login, so a dropped backend session can be re-entered
	// without retyping. Cleared on logout.
	CachedUsername string    `db:"cached_username"`
	CachedSecret   string    `db:"cached_secret"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// StoredState is the serialized conversation session of one identity.
type StoredState struct {
	ChatID    int64     `db:"chat_id"`
	UserID    int64     `db:"user_id"`
	Flow      string    `db:"flow"`
	Step      string    `db:"step"`
	Data      []byte    `db:"data"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Store persists account links and durable conversation state.
type Store interface {
	GetLink(ctx context.Context, id state.Identity) (Link, bool, error)
	UpsertLink(ctx context.Context, link Link) error
	SetLanguage(ctx context.Context, id state.Identity, lang string) error
	// ClearPrivileged drops the access token and role, keeping the player link.
	ClearPrivileged(ctx context.Context, id state.Identity) error
	// FindByAccount resolves a player uuid back to its chat, newest link wins.
	FindByAccount(ctx context.Context, playerUUID string) (Link, bool, error)

	LoadState(ctx context.Context, id state.Identity) (StoredState, bool, error)
	SaveState(ctx context.Context, st StoredState) error
	DeleteState(ctx context.Context, id state.Identity) error
}

type sqlStore struct {
	db *sqlx.DB
}

// NewStore builds a Store over an open sqlx handle. The same statements work
// on sqlite and postgres; sqlx rebinds the placeholders per driver.
func NewStore(db *sqlx.DB) Store {
	return &sqlStore{db: db}
}

const linkColumns = "chat_id, user_id, player_uuid, email, role, language, access_token, phone, cached_username, cached_secret, updated_at"

func (s *sqlStore) GetLink(ctx context.Context, id state.Identity) (Link, bool, error) {
	var link Link
	query := s.db.Rebind("SELECT " + linkColumns + " FROM account_links WHERE chat_id = ?")
	err := s.db.GetContext(ctx, &link, query, id.ChatID)
	if errors.Is(err, sql.ErrNoRows) {
		return Link{}, false, nil
	}
	if err != nil {
		return Link{}, false, err
	}
	return link, true, nil
}

func (s *sqlStore) UpsertLink(ctx context.Context, link Link) error {
	link.UpdatedAt = time.Now().UTC()
	query := s.db.Rebind(`
		INSERT INTO account_links (` + linkColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (chat_id) DO UPDATE SET
			user_id = excluded.user_id,
			player_uuid = excluded.player_uuid,
			email = excluded.email,
			role = excluded.role,
			language = excluded.language,
			access_token = excluded.access_token,
			phone = excluded.phone,
			cached_username = excluded.cached_username,
			cached_secret = excluded.cached_secret,
			updated_at = excluded.updated_at`)
	_, err := s.db.ExecContext(ctx, query,
		link.ChatID, link.UserID, link.PlayerUUID, link.Email, link.Role,
		link.Language, link.AccessToken, link.Phone,
		link.CachedUsername, link.CachedSecret, link.UpdatedAt)
	if err != nil {
		return err
	}
	logger.SVCSessions.LogAttrs(ctx, slog.LevelDebug, "link.upsert",
		slog.String("status", "ok"),
		slog.Int64("chat_id", link.ChatID),
		slog.String("role", link.Role),
	)
	return nil
}

func (s *sqlStore) SetLanguage(ctx context.Context, id state.Identity, lang string) error {
	query := s.db.Rebind(`
		INSERT INTO account_links (chat_id, user_id, language, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (chat_id) DO UPDATE SET
			language = excluded.language,
			updated_at = excluded.updated_at`)
	_, err := s.db.ExecContext(ctx, query, id.ChatID, id.UserID, lang, time.Now().UTC())
	return err
}

func (s *sqlStore) ClearPrivileged(ctx context.Context, id state.Identity) error {
	query := s.db.Rebind(
		"UPDATE account_links SET access_token = '', role = '', updated_at = ? WHERE chat_id = ?")
	res, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id.ChatID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		logger.SVCSessions.LogAttrs(ctx, slog.LevelInfo, "link.clear_privileged",
			slog.String("status", "ok"),
			slog.Int64("chat_id", id.ChatID),
		)
	}
	return nil
}

func (s *sqlStore) FindByAccount(ctx context.Context, playerUUID string) (Link, bool, error) {
	var link Link
	query := s.db.Rebind("SELECT " + linkColumns +
		" FROM account_links WHERE player_uuid = ? ORDER BY updated_at DESC LIMIT 1")
	err := s.db.GetContext(ctx, &link, query, playerUUID)
	if errors.Is(err, sql.ErrNoRows) {
		return Link{}, false, nil
	}
	if err != nil {
		return Link{}, false, err
	}
	return link, true, nil
}

func (s *sqlStore) LoadState(ctx context.Context, id state.Identity) (StoredState, bool, error) {
	var st StoredState
	query := s.db.Rebind(
		"SELECT chat_id, user_id, flow, step, data, updated_at FROM conversation_state WHERE chat_id = ? AND user_id = ?")
	err := s.db.GetContext(ctx, &st, query, id.ChatID, id.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredState{}, false, nil
	}
	if err != nil {
		return StoredState{}, false, err
	}
	return st, true, nil
}

func (s *sqlStore) SaveState(ctx context.Context, st StoredState) error {
	st.UpdatedAt = time.Now().UTC()
	query := s.db.Rebind(`
		INSERT INTO conversation_state (chat_id, user_id, flow, step, data, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (chat_id, user_id) DO UPDATE SET
			flow = excluded.flow,
			step = excluded.step,
			data = excluded.data,
			updated_at = excluded.updated_at`)
	_, err := s.db.ExecContext(ctx, query, st.ChatID, st.UserID, st.Flow, st.Step, st.Data, st.UpdatedAt)
	return err
}

func (s *sqlStore) DeleteState(ctx context.Context, id state.Identity) error {
	query := s.db.Rebind("DELETE FROM conversation_state WHERE chat_id = ? AND user_id = ?")
	_, err := s.db.ExecContext(ctx, query, id.ChatID, id.UserID)
	return err
}
