package flow

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/betbot/core/telegram/state"
	"github.com/m3rciful/betbot/internal/gateway"
)

type fakeBackend struct {
	depositBanks    []gateway.DepositBank
	withdrawalBanks []gateway.WithdrawalBank
	sites           []gateway.BettingSite
	createCalls     int
	lastCreate      gateway.CreateTransactionRequest
	createErr       error
	loginResult     gateway.LoginResult
	loginErr        error
	adminTxs        []gateway.Transaction
	adminPage       gateway.Page
	adminCalls      int
	assigned        map[int64]int64
	statuses        map[int64]string
}

func (f *fakeBackend) DepositBanks(ctx context.Context) ([]gateway.DepositBank, error) {
	return f.depositBanks, nil
}

func (f *fakeBackend) WithdrawalBanks(ctx context.Context) ([]gateway.WithdrawalBank, error) {
	return f.withdrawalBanks, nil
}

func (f *fakeBackend) BettingSites(ctx context.Context) ([]gateway.BettingSite, error) {
	return f.sites, nil
}

func (f *fakeBackend) CreateTransaction(ctx context.Context, req gateway.CreateTransactionRequest) (gateway.Transaction, error) {
	f.createCalls++
	f.lastCreate = req
	if f.createErr != nil {
		return gateway.Transaction{}, f.createErr
	}
	return gateway.Transaction{ID: 77, UUID: "tx-77", Type: req.Type, Amount: req.Amount, Status: gateway.StatusPending}, nil
}

func (f *fakeBackend) Transactions(ctx context.Context, playerUUID string, page, limit int) ([]gateway.Transaction, gateway.Page, error) {
	return nil, gateway.Page{}, nil
}

func (f *fakeBackend) Login(ctx context.Context, username, password string) (gateway.LoginResult, error) {
	if f.loginErr != nil {
		return gateway.LoginResult{}, f.loginErr
	}
	return f.loginResult, nil
}

func (f *fakeBackend) RegisterPlayer(ctx context.Context, req gateway.RegisterPlayerRequest) (gateway.Player, error) {
	return gateway.Player{UUID: "new-player", TelegramID: req.TelegramID}, nil
}

func (f *fakeBackend) AdminTransactions(ctx context.Context, token string, filter gateway.ListFilter) ([]gateway.Transaction, gateway.Page, error) {
	f.adminCalls++
	return f.adminTxs, f.adminPage, nil
}

func (f *fakeBackend) AssignAgent(ctx context.Context, token string, txID, agentID int64) (gateway.Transaction, error) {
	if f.assigned == nil {
		f.assigned = map[int64]int64{}
	}
	f.assigned[txID] = agentID
	return gateway.Transaction{ID: txID, Type: gateway.TxDeposit, Amount: 100, Status: gateway.StatusInProgress, AgentID: agentID}, nil
}

func (f *fakeBackend) SetStatus(ctx context.Context, token string, txID int64, status, notes string) (gateway.Transaction, error) {
	if f.statuses == nil {
		f.statuses = map[int64]string{}
	}
	f.statuses[txID] = status
	return gateway.Transaction{ID: txID, Type: gateway.TxDeposit, Amount: 100, Status: status}, nil
}

func (f *fakeBackend) Agents(ctx context.Context, token string) ([]gateway.Agent, error) {
	return []gateway.Agent{{ID: 5, Username: "agent5"}}, nil
}

func (f *fakeBackend) AgentTasks(ctx context.Context, token string, filter gateway.ListFilter) ([]gateway.Transaction, gateway.Page, error) {
	return f.adminTxs, f.adminPage, nil
}

func (f *fakeBackend) ProcessTransaction(ctx context.Context, token string, txID int64, status, notes string) (gateway.Transaction, error) {
	if f.statuses == nil {
		f.statuses = map[int64]string{}
	}
	f.statuses[txID] = status
	return gateway.Transaction{ID: txID, Type: gateway.TxWithdraw, Amount: 50, Status: status}, nil
}

func (f *fakeBackend) AgentStats(ctx context.Context, token string) (gateway.AgentStats, error) {
	return gateway.AgentStats{Assigned: 3, InProgress: 1, Completed: 2}, nil
}

func (f *fakeBackend) Currency() string { return "ETB" }

type fakeAccounts struct {
	account     Account
	hasAccount  bool
	savedLogins []gateway.LoginResult
	savedCreds  [][2]string
	ensured     int
}

func (f *fakeAccounts) Get(ctx context.Context, id state.Identity) (Account, bool, error) {
	return f.account, f.hasAccount, nil
}

func (f *fakeAccounts) EnsurePlayer(ctx context.Context, id state.Identity, tgUsername string) (string, error) {
	f.ensured++
	return "player-uuid-1", nil
}

func (f *fakeAccounts) SaveLogin(ctx context.Context, id state.Identity, res gateway.LoginResult, username, secret string) error {
	f.savedLogins = append(f.savedLogins, res)
	f.savedCreds = append(f.savedCreds, [2]string{username, secret})
	return nil
}

func (f *fakeAccounts) ClearPrivileged(ctx context.Context, id state.Identity) error {
	f.account = Account{}
	f.hasAccount = false
	return nil
}

func testDeps() (*fakeBackend, *fakeAccounts, Deps) {
	backend := &fakeBackend{
		depositBanks: []gateway.DepositBank{
			{ID: 1, Name: "CBE", AccountNumber: "1000123456789", AccountName: "Betbot Ops"},
			{ID: 2, Name: "Awash", AccountNumber: "0134567890", AccountName: "Betbot Ops"},
		},
		withdrawalBanks: []gateway.WithdrawalBank{
			{ID: 3, Name: "Telebirr", RequiredFields: []gateway.RequiredField{
				{Name: "phone", Label: "Telebirr phone"},
				{Name: "holder", Label: "Account holder name"},
			}},
		},
		sites: []gateway.BettingSite{
			{ID: 10, Name: "BetSite A"},
			{ID: 11, Name: "BetSite B"},
		},
	}
	accounts := &fakeAccounts{}
	return backend, accounts, Deps{Backend: backend, Accounts: accounts}
}

func newTestEngine(deps Deps) *Engine {
	e := NewEngine(state.NewMemoryManager())
	e.Register(NewDepositFlow(deps))
	e.Register(NewWithdrawFlow(deps))
	e.Register(NewLoginFlow(deps))
	e.Register(NewRegisterFlow(deps))
	e.Register(NewAdminReviewFlow(deps))
	e.Register(NewAgentReviewFlow(deps))
	return e
}

func TestDepositHappyPathCreatesExactlyOneTransaction(t *testing.T) {
	backend, accounts, deps := testDeps()
	engine := newTestEngine(deps)
	ctx := context.Background()
	id := state.Identity{ChatID: 1, UserID: 1}

	prompts, err := engine.Start(ctx, id, FlowDeposit, Event{Kind: EventText, Text: "/deposit"})
	require.NoError(t, err)
	require.NotEmpty(t, prompts)
	assert.NotEmpty(t, prompts[0].Inline)

	_, err = engine.Handle(ctx, id, Event{Kind: EventButton, Button: ActionDepositBank, Payload: "1"})
	require.NoError(t, err)

	_, err = engine.Handle(ctx, id, Event{Kind: EventText, Text: "250"})
	require.NoError(t, err)

	_, err = engine.Handle(ctx, id, Event{Kind: EventButton, Button: ActionSite, Payload: "10"})
	require.NoError(t, err)

	_, err = engine.Handle(ctx, id, Event{Kind: EventText, Text: "player_42"})
	require.NoError(t, err)

	_, err = engine.Handle(ctx, id, Event{Kind: EventPhoto, FilePath: "/tmp/receipt.jpg"})
	require.NoError(t, err)

	prompts, err = engine.Handle(ctx, id, Event{Kind: EventButton, Button: ActionConfirm, Payload: "yes", Username: "tester"})
	require.NoError(t, err)

	assert.Equal(t, 1, backend.createCalls)
	assert.Equal(t, 1, accounts.ensured)
	assert.Equal(t, gateway.TxDeposit, backend.lastCreate.Type)
	assert.Equal(t, 250.0, backend.lastCreate.Amount)
	assert.Equal(t, int64(1), backend.lastCreate.DepositBankID)
	assert.Equal(t, int64(10), backend.lastCreate.BettingSiteID)
	assert.Equal(t, "player_42", backend.lastCreate.PlayerSiteID)
	assert.Equal(t, "/tmp/receipt.jpg", backend.lastCreate.ScreenshotPath)

	require.NotEmpty(t, prompts)
	assert.Contains(t, prompts[0].Text, "tx-77")
	assert.False(t, engine.InProgress(id), "flow must be cleared after confirmation")
}

func TestDepositSkipReceiptSubmitsWithoutEvidence(t *testing.T) {
	backend, _, deps := testDeps()
	engine := newTestEngine(deps)
	ctx := context.Background()
	id := state.Identity{ChatID: 15, UserID: 15}

	_, err := engine.Start(ctx, id, FlowDeposit, Event{})
	require.NoError(t, err)
	_, err = engine.Handle(ctx, id, Event{Kind: EventButton, Button: ActionDepositBank, Payload: "1"})
	require.NoError(t, err)
	_, err = engine.Handle(ctx, id, Event{Kind: EventText, Text: "120"})
	require.NoError(t, err)
	_, err = engine.Handle(ctx, id, Event{Kind: EventButton, Button: ActionSite, Payload: "10"})
	require.NoError(t, err)
	_, err = engine.Handle(ctx, id, Event{Kind: EventText, Text: "player_7"})
	require.NoError(t, err)

	// The receipt is optional: /skip moves straight to confirmation.
	prompts, err := engine.Handle(ctx, id, Event{Kind: EventText, Text: "/skip"})
	require.NoError(t, err)
	require.NotEmpty(t, prompts)
	assert.Contains(t, prompts[0].Text, "Receipt: skipped")
	_, step := engine.Active(id)
	assert.Equal(t, StepConfirming, step)

	_, err = engine.Handle(ctx, id, Event{Kind: EventButton, Button: ActionConfirm, Payload: "yes"})
	require.NoError(t, err)
	assert.Equal(t, 1, backend.createCalls)
	assert.Empty(t, backend.lastCreate.ScreenshotPath)
}

func TestDepositReceiptPathSurvivesUntilConfirm(t *testing.T) {
	backend, _, deps := testDeps()
	engine := newTestEngine(deps)
	ctx := context.Background()
	id := state.Identity{ChatID: 16, UserID: 16}

	_, err := engine.Start(ctx, id, FlowDeposit, Event{})
	require.NoError(t, err)
	_, err = engine.Handle(ctx, id, Event{Kind: EventButton, Button: ActionDepositBank, Payload: "1"})
	require.NoError(t, err)
	_, err = engine.Handle(ctx, id, Event{Kind: EventText, Text: "80"})
	require.NoError(t, err)
	_, err = engine.Handle(ctx, id, Event{Kind: EventButton, Button: ActionSite, Payload: "10"})
	require.NoError(t, err)
	_, err = engine.Handle(ctx, id, Event{Kind: EventText, Text: "p9"})
	require.NoError(t, err)
	_, err = engine.Handle(ctx, id, Event{Kind: EventPhoto, FilePath: "/tmp/evidence.jpg"})
	require.NoError(t, err)

	// The staged path is visible in the bag until the confirm step opens it.
	claimed, ok := engine.States().Value(id, KeyReceiptPath)
	require.True(t, ok)
	assert.Equal(t, "/tmp/evidence.jpg", claimed)

	_, err = engine.Handle(ctx, id, Event{Kind: EventButton, Button: ActionConfirm, Payload: "yes"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/evidence.jpg", backend.lastCreate.ScreenshotPath)
}

func TestDepositInvalidAmountRepromptsWithoutGatewayCall(t *testing.T) {
	backend, _, deps := testDeps()
	engine := newTestEngine(deps)
	ctx := context.Background()
	id := state.Identity{ChatID: 2, UserID: 2}

	_, err := engine.Start(ctx, id, FlowDeposit, Event{})
	require.NoError(t, err)
	_, err = engine.Handle(ctx, id, Event{Kind: EventButton, Button: ActionDepositBank, Payload: "1"})
	require.NoError(t, err)

	prompts, err := engine.Handle(ctx, id, Event{Kind: EventText, Text: "-5"})
	require.NoError(t, err, "validation failure must not surface an error")
	require.NotEmpty(t, prompts)
	assert.True(t, strings.HasPrefix(prompts[0].Text, "⚠️"))

	_, step := engine.Active(id)
	assert.Equal(t, StepEnteringAmount, step, "flow must stay on the amount step")
	assert.Equal(t, 0, backend.createCalls)

	// A valid retry still works with an unpoisoned bag.
	_, err = engine.Handle(ctx, id, Event{Kind: EventText, Text: "100"})
	require.NoError(t, err)
	_, step = engine.Active(id)
	assert.Equal(t, StepSelectingSite, step)
}

func TestDepositDeclineSubmitsNothing(t *testing.T) {
	backend, _, deps := testDeps()
	engine := newTestEngine(deps)
	ctx := context.Background()
	id := state.Identity{ChatID: 3, UserID: 3}

	_, err := engine.Start(ctx, id, FlowDeposit, Event{})
	require.NoError(t, err)
	_, err = engine.Handle(ctx, id, Event{Kind: EventButton, Button: ActionDepositBank, Payload: "2"})
	require.NoError(t, err)
	_, err = engine.Handle(ctx, id, Event{Kind: EventText, Text: "75"})
	require.NoError(t, err)
	_, err = engine.Handle(ctx, id, Event{Kind: EventButton, Button: ActionSite, Payload: "11"})
	require.NoError(t, err)
	_, err = engine.Handle(ctx, id, Event{Kind: EventText, Text: "abc-99"})
	require.NoError(t, err)
	_, err = engine.Handle(ctx, id, Event{Kind: EventPhoto, FilePath: "/tmp/r.png"})
	require.NoError(t, err)

	_, err = engine.Handle(ctx, id, Event{Kind: EventButton, Button: ActionConfirm, Payload: "no"})
	require.NoError(t, err)

	assert.Equal(t, 0, backend.createCalls)
	assert.False(t, engine.InProgress(id))
}

func TestCancelMidFlowClearsState(t *testing.T) {
	_, _, deps := testDeps()
	engine := newTestEngine(deps)
	ctx := context.Background()
	id := state.Identity{ChatID: 4, UserID: 4}

	_, err := engine.Start(ctx, id, FlowDeposit, Event{})
	require.NoError(t, err)
	require.True(t, engine.InProgress(id))

	prompts, err := engine.Cancel(ctx, id)
	require.NoError(t, err)
	require.NotEmpty(t, prompts)
	assert.Contains(t, prompts[0].Text, "cancelled")
	assert.False(t, engine.InProgress(id))

	_, err = engine.Cancel(ctx, id)
	assert.ErrorIs(t, err, ErrNoActiveFlow)
}

func TestStartWhileActiveReturnsErrFlowActive(t *testing.T) {
	_, _, deps := testDeps()
	engine := newTestEngine(deps)
	ctx := context.Background()
	id := state.Identity{ChatID: 5, UserID: 5}

	_, err := engine.Start(ctx, id, FlowDeposit, Event{})
	require.NoError(t, err)
	_, err = engine.Start(ctx, id, FlowWithdraw, Event{})
	assert.ErrorIs(t, err, ErrFlowActive)
}

func TestWithdrawCollectsRequiredFieldsAndJoinsAddress(t *testing.T) {
	backend, _, deps := testDeps()
	engine := newTestEngine(deps)
	ctx := context.Background()
	id := state.Identity{ChatID: 6, UserID: 6}

	_, err := engine.Start(ctx, id, FlowWithdraw, Event{})
	require.NoError(t, err)

	_, err = engine.Handle(ctx, id, Event{Kind: EventButton, Button: ActionWithdrawalBank, Payload: "3"})
	require.NoError(t, err)

	prompts, err := engine.Handle(ctx, id, Event{Kind: EventText, Text: "500"})
	require.NoError(t, err)
	require.NotEmpty(t, prompts)
	assert.Contains(t, prompts[0].Text, "Telebirr phone")

	// Two required fields means two entry messages before the site picker.
	prompts, err = engine.Handle(ctx, id, Event{Kind: EventText, Text: "+251911000000"})
	require.NoError(t, err)
	assert.Contains(t, prompts[0].Text, "Account holder name")
	_, step := engine.Active(id)
	assert.Equal(t, StepEnteringRequiredField, step)

	_, err = engine.Handle(ctx, id, Event{Kind: EventText, Text: "Abebe K"})
	require.NoError(t, err)
	_, step = engine.Active(id)
	assert.Equal(t, StepSelectingSite, step)

	_, err = engine.Handle(ctx, id, Event{Kind: EventButton, Button: ActionSite, Payload: "10"})
	require.NoError(t, err)
	_, err = engine.Handle(ctx, id, Event{Kind: EventText, Text: "w1"})
	require.NoError(t, err)
	_, err = engine.Handle(ctx, id, Event{Kind: EventButton, Button: ActionConfirm, Payload: "yes"})
	require.NoError(t, err)

	assert.Equal(t, 1, backend.createCalls)
	assert.Equal(t, gateway.TxWithdraw, backend.lastCreate.Type)
	assert.Equal(t, "+251911000000, Abebe K", backend.lastCreate.WithdrawalAddress)
	assert.Equal(t, int64(3), backend.lastCreate.WithdrawalBankID)
}

func TestLoginStoresPrivilegedSession(t *testing.T) {
	backend, accounts, deps := testDeps()
	backend.loginResult = gateway.LoginResult{AccessToken: "tok-1", Role: "admin", PlayerUUID: "admin-uuid"}
	engine := newTestEngine(deps)
	ctx := context.Background()
	id := state.Identity{ChatID: 7, UserID: 7}

	_, err := engine.Start(ctx, id, FlowLogin, Event{})
	require.NoError(t, err)
	_, err = engine.Handle(ctx, id, Event{Kind: EventText, Text: "root_admin"})
	require.NoError(t, err)
	prompts, err := engine.Handle(ctx, id, Event{Kind: EventText, Text: "secret-password"})
	require.NoError(t, err)

	require.Len(t, accounts.savedLogins, 1)
	assert.Equal(t, "tok-1", accounts.savedLogins[0].AccessToken)
	require.Len(t, accounts.savedCreds, 1)
	assert.Equal(t, [2]string{"root_admin", "secret-password"}, accounts.savedCreds[0])
	assert.Contains(t, prompts[0].Text, "/admin")
	assert.False(t, engine.InProgress(id))
}

func TestLoginBadCredentialsReprompts(t *testing.T) {
	backend, accounts, deps := testDeps()
	backend.loginErr = &gateway.Error{Op: "login", Status: 401, Body: "unauthorized"}
	engine := newTestEngine(deps)
	ctx := context.Background()
	id := state.Identity{ChatID: 8, UserID: 8}

	_, err := engine.Start(ctx, id, FlowLogin, Event{})
	require.NoError(t, err)
	_, err = engine.Handle(ctx, id, Event{Kind: EventText, Text: "someone"})
	require.NoError(t, err)

	prompts, err := engine.Handle(ctx, id, Event{Kind: EventText, Text: "wrong-password"})
	require.NoError(t, err, "wrong credentials are a re-prompt, not a session reset")
	assert.Contains(t, prompts[0].Text, "Invalid username or password")
	_, step := engine.Active(id)
	assert.Equal(t, StepEnteringPassword, step)
	assert.Empty(t, accounts.savedLogins)
}

func TestRegisterSkipPhone(t *testing.T) {
	_, accounts, deps := testDeps()
	engine := newTestEngine(deps)
	ctx := context.Background()
	id := state.Identity{ChatID: 9, UserID: 9}

	_, err := engine.Start(ctx, id, FlowRegister, Event{})
	require.NoError(t, err)
	_, err = engine.Handle(ctx, id, Event{Kind: EventText, Text: "user@example.com"})
	require.NoError(t, err)
	_, err = engine.Handle(ctx, id, Event{Kind: EventText, Text: "longpassword"})
	require.NoError(t, err)
	_, err = engine.Handle(ctx, id, Event{Kind: EventText, Text: "Sam"})
	require.NoError(t, err)
	prompts, err := engine.Handle(ctx, id, Event{Kind: EventText, Text: "/skip"})
	require.NoError(t, err)

	require.Len(t, accounts.savedLogins, 1)
	assert.Equal(t, "new-player", accounts.savedLogins[0].PlayerUUID)
	assert.Contains(t, prompts[0].Text, "Account created")
	assert.False(t, engine.InProgress(id))
}

func TestAdminDetailUsesCacheAndMutationUpdatesIt(t *testing.T) {
	backend, accounts, deps := testDeps()
	accounts.account = Account{Role: "admin", AccessToken: "tok"}
	accounts.hasAccount = true
	backend.adminTxs = []gateway.Transaction{
		{ID: 100, Type: gateway.TxDeposit, Amount: 100, Currency: "ETB", Status: gateway.StatusPending},
		{ID: 101, Type: gateway.TxWithdraw, Amount: 40, Currency: "ETB", Status: gateway.StatusPending},
	}
	backend.adminPage = gateway.Page{Page: 1, Limit: 6, Total: 2}
	engine := newTestEngine(deps)
	ctx := context.Background()
	id := state.Identity{ChatID: 10, UserID: 10}

	_, err := engine.Start(ctx, id, FlowAdminReview, Event{})
	require.NoError(t, err)
	require.Equal(t, 1, backend.adminCalls)

	// Detail view is served from the cache, not a refetch.
	prompts, err := engine.Handle(ctx, id, Event{Kind: EventButton, Button: ActionAdminTx, Payload: "100"})
	require.NoError(t, err)
	assert.Equal(t, 1, backend.adminCalls)
	assert.Contains(t, prompts[0].Text, "Transaction #100")

	// A status change updates the cached entry in place.
	_, err = engine.Handle(ctx, id, Event{Kind: EventButton, Button: ActionAdminStatus, Payload: "100:" + gateway.StatusSuccess})
	require.NoError(t, err)
	assert.Equal(t, gateway.StatusSuccess, backend.statuses[100])

	prompts, err = engine.Handle(ctx, id, Event{Kind: EventButton, Button: ActionAdminTx, Payload: "100"})
	require.NoError(t, err)
	assert.Equal(t, 1, backend.adminCalls, "detail after mutation must still come from the cache")
	assert.Contains(t, prompts[0].Text, gateway.StatusSuccess)
}

func TestAdminBackPreservesCache(t *testing.T) {
	backend, accounts, deps := testDeps()
	accounts.account = Account{Role: "admin", AccessToken: "tok"}
	accounts.hasAccount = true
	backend.adminTxs = []gateway.Transaction{{ID: 200, Type: gateway.TxDeposit, Amount: 10, Status: gateway.StatusPending}}
	backend.adminPage = gateway.Page{Page: 1, Limit: 6, Total: 1}
	engine := newTestEngine(deps)
	ctx := context.Background()
	id := state.Identity{ChatID: 11, UserID: 11}

	_, err := engine.Start(ctx, id, FlowAdminReview, Event{})
	require.NoError(t, err)
	_, err = engine.Handle(ctx, id, Event{Kind: EventButton, Button: ActionAdminBack, Payload: "close"})
	require.NoError(t, err)

	assert.False(t, engine.InProgress(id))
	session := engine.States().Get(id)
	_, ok := session.Data[txCacheKey]
	assert.True(t, ok, "closing the panel keeps the transaction cache")
}

func TestAgentProcessTask(t *testing.T) {
	backend, accounts, deps := testDeps()
	accounts.account = Account{Role: "agent", AccessToken: "tok"}
	accounts.hasAccount = true
	backend.adminTxs = []gateway.Transaction{{ID: 300, Type: gateway.TxWithdraw, Amount: 50, Status: gateway.StatusInProgress}}
	backend.adminPage = gateway.Page{Page: 1, Limit: 6, Total: 1}
	engine := newTestEngine(deps)
	ctx := context.Background()
	id := state.Identity{ChatID: 12, UserID: 12}

	_, err := engine.Start(ctx, id, FlowAgentReview, Event{})
	require.NoError(t, err)

	_, err = engine.Handle(ctx, id, Event{Kind: EventButton, Button: ActionAgentStatus, Payload: "300:" + gateway.StatusSuccess})
	require.NoError(t, err)
	assert.Equal(t, gateway.StatusSuccess, backend.statuses[300])
}

func TestGatewayFailureKeepsStep(t *testing.T) {
	backend, _, deps := testDeps()
	backend.createErr = &gateway.Error{Op: "create_transaction", Status: 503, Body: "upstream down"}
	engine := newTestEngine(deps)
	ctx := context.Background()
	id := state.Identity{ChatID: 13, UserID: 13}

	_, err := engine.Start(ctx, id, FlowDeposit, Event{})
	require.NoError(t, err)
	_, err = engine.Handle(ctx, id, Event{Kind: EventButton, Button: ActionDepositBank, Payload: "1"})
	require.NoError(t, err)
	_, err = engine.Handle(ctx, id, Event{Kind: EventText, Text: "10"})
	require.NoError(t, err)
	_, err = engine.Handle(ctx, id, Event{Kind: EventButton, Button: ActionSite, Payload: "10"})
	require.NoError(t, err)
	_, err = engine.Handle(ctx, id, Event{Kind: EventText, Text: "p1"})
	require.NoError(t, err)
	_, err = engine.Handle(ctx, id, Event{Kind: EventPhoto, FilePath: "/tmp/x.jpg"})
	require.NoError(t, err)

	prompts, err := engine.Handle(ctx, id, Event{Kind: EventButton, Button: ActionConfirm, Payload: "yes"})
	require.Error(t, err)
	require.NotEmpty(t, prompts)
	assert.Contains(t, prompts[0].Text, "try again")

	_, step := engine.Active(id)
	assert.Equal(t, StepConfirming, step, "backend failure keeps the flow on the confirm step")
}

func TestSessionExpiryClearsFlow(t *testing.T) {
	backend, accounts, deps := testDeps()
	accounts.account = Account{Role: "admin", AccessToken: "tok"}
	accounts.hasAccount = true
	backend.adminTxs = []gateway.Transaction{{ID: 400, Status: gateway.StatusPending}}
	backend.adminPage = gateway.Page{Page: 1, Limit: 6, Total: 1}
	engine := newTestEngine(deps)
	ctx := context.Background()
	id := state.Identity{ChatID: 14, UserID: 14}

	_, err := engine.Start(ctx, id, FlowAdminReview, Event{})
	require.NoError(t, err)

	// Token disappears mid-session.
	accounts.hasAccount = false
	prompts, err := engine.Handle(ctx, id, Event{Kind: EventButton, Button: ActionAdminPage, Payload: "2"})
	require.ErrorIs(t, err, gateway.ErrSessionExpired)
	require.NotEmpty(t, prompts)
	assert.Contains(t, prompts[0].Text, "/login")
	assert.False(t, engine.InProgress(id))
}
