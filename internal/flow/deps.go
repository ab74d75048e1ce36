package flow

import (
	"context"

	"github.com/m3rciful/betbot/core/telegram/state"
	"github.com/m3rciful/betbot/internal/gateway"
)

// Backend is the slice of the payments gateway the flows depend on.
// *gateway.Client satisfies it; tests supply fakes.
type Backend interface {
	DepositBanks(ctx context.Context) ([]gateway.DepositBank, error)
	WithdrawalBanks(ctx context.Context) ([]gateway.WithdrawalBank, error)
	BettingSites(ctx context.Context) ([]gateway.BettingSite, error)
	CreateTransaction(ctx context.Context, req gateway.CreateTransactionRequest) (gateway.Transaction, error)
	Transactions(ctx context.Context, playerUUID string, page, limit int) ([]gateway.Transaction, gateway.Page, error)
	Login(ctx context.Context, username, password string) (gateway.LoginResult, error)
	RegisterPlayer(ctx context.Context, req gateway.RegisterPlayerRequest) (gateway.Player, error)
	AdminTransactions(ctx context.Context, token string, f gateway.ListFilter) ([]gateway.Transaction, gateway.Page, error)
	AssignAgent(ctx context.Context, token string, txID, agentID int64) (gateway.Transaction, error)
	SetStatus(ctx context.Context, token string, txID int64, status, notes string) (gateway.Transaction, error)
	Agents(ctx context.Context, token string) ([]gateway.Agent, error)
	AgentTasks(ctx context.Context, token string, f gateway.ListFilter) ([]gateway.Transaction, gateway.Page, error)
	ProcessTransaction(ctx context.Context, token string, txID int64, status, notes string) (gateway.Transaction, error)
	AgentStats(ctx context.Context, token string) (gateway.AgentStats, error)
	Currency() string
}

// Account is the chat-account link as the flows see it.
type Account struct {
	PlayerUUID  string
	Email       string
	Role        string
	AccessToken string
	Language    string
}

// Accounts resolves and persists chat-account links.
type Accounts interface {
	// Get returns the stored link for the identity.
	Get(ctx context.Context, id state.Identity) (Account, bool, error)
	// EnsurePlayer returns the linked player uuid, creating a temporary
	// player on the backend when no link exists yet.
	EnsurePlayer(ctx context.Context, id state.Identity, tgUsername string) (string, error)
	// SaveLogin persists the outcome of a successful login together with
	// the credential pair used, cached for later re-login.
	SaveLogin(ctx context.Context, id state.Identity, res gateway.LoginResult, username, secret string) error
	// ClearPrivileged drops the access token and role after a 401.
	ClearPrivileged(ctx context.Context, id state.Identity) error
}

// Deps bundles what flow definitions need.
type Deps struct {
	Backend  Backend
	Accounts Accounts
}
