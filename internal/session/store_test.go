package session

import (
	"context"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/betbot/core/telegram/state"
	"github.com/m3rciful/betbot/internal/gateway"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)
	require.NoError(t, MigrateSQLite(db))
	return NewStore(db)
}

func TestLinkUpsertAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := state.Identity{ChatID: 100, UserID: 100}

	_, ok, err := store.GetLink(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.UpsertLink(ctx, Link{
		ChatID: 100, UserID: 100, PlayerUUID: "p-1", Email: "a@b.co", Role: "player",
	}))

	link, ok, err := store.GetLink(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "p-1", link.PlayerUUID)
	assert.Equal(t, "player", link.Role)

	// Second upsert replaces, not duplicates.
	require.NoError(t, store.UpsertLink(ctx, Link{
		ChatID: 100, UserID: 100, PlayerUUID: "p-1", Email: "a@b.co", Role: "admin", AccessToken: "tok",
	}))
	link, _, err = store.GetLink(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "admin", link.Role)
	assert.Equal(t, "tok", link.AccessToken)
}

func TestClearPrivilegedKeepsPlayerLink(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id := state.Identity{ChatID: 200, UserID: 200}

	require.NoError(t, store.UpsertLink(ctx, Link{
		ChatID: 200, UserID: 200, PlayerUUID: "p-2", Role: "agent", AccessToken: "tok-2",
	}))
	require.NoError(t, store.ClearPrivileged(ctx, id))

	link, ok, err := store.GetLink(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, link.Role)
	assert.Empty(t, link.AccessToken)
	assert.Equal(t, "p-2", link.PlayerUUID)

	// Clearing a chat without a link is a no-op.
	require.NoError(t, store.ClearPrivileged(ctx, state.Identity{ChatID: 999}))
}

func TestFindByAccount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertLink(ctx, Link{ChatID: 300, UserID: 300, PlayerUUID: "p-3"}))

	link, ok, err := store.FindByAccount(ctx, "p-3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(300), link.ChatID)

	_, ok, err = store.FindByAccount(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDurableManagerSurvivesJSONRoundTrip(t *testing.T) {
	store := newTestStore(t)
	mgr := NewDurableManager(store)
	id := state.Identity{ChatID: 400, UserID: 400}

	mgr.SetFlow(id, "deposit", "entering_amount")
	mgr.UpdateData(id, map[string]interface{}{
		"amount":    250.0,
		"rf_values": []string{"a", "b"},
		"banks":     []map[string]interface{}{{"id": int64(1), "name": "CBE"}},
	})

	session := mgr.Get(id)
	assert.Equal(t, state.Flow("deposit"), session.Flow)
	assert.Equal(t, state.Step("entering_amount"), session.Step)
	assert.Equal(t, 250.0, session.Data["amount"])

	// Slices come back as []interface{} after the JSON round trip; the flow
	// bag accessors rely on that shape.
	values, ok := session.Data["rf_values"].([]interface{})
	require.True(t, ok)
	assert.Equal(t, []interface{}{"a", "b"}, values)

	assert.True(t, mgr.InProgress(id))
}

func TestDurableManagerClearPreserve(t *testing.T) {
	store := newTestStore(t)
	mgr := NewDurableManager(store)
	id := state.Identity{ChatID: 500, UserID: 500}

	mgr.SetFlow(id, "admin_review", "browsing")
	mgr.UpdateData(id, map[string]interface{}{
		"tx_cache": map[string]interface{}{"1": map[string]interface{}{"status": "PENDING"}},
		"other":    "x",
	})

	mgr.Clear(id, "tx_cache")
	session := mgr.Get(id)
	assert.Equal(t, state.FlowNone, session.Flow)
	assert.Contains(t, session.Data, "tx_cache")
	assert.NotContains(t, session.Data, "other")
	assert.False(t, mgr.InProgress(id))

	mgr.Clear(id)
	session = mgr.Get(id)
	assert.Empty(t, session.Data)

	// Clear without stored state is a no-op.
	mgr.Clear(state.Identity{ChatID: 501, UserID: 501})
}

func TestDurableManagerSetStepRequiresActiveFlow(t *testing.T) {
	store := newTestStore(t)
	mgr := NewDurableManager(store)
	id := state.Identity{ChatID: 700, UserID: 700}

	mgr.SetStep(id, "confirming")
	session := mgr.Get(id)
	assert.Equal(t, state.FlowNone, session.Flow)
	assert.Equal(t, state.StepNone, session.Step)

	mgr.SetFlow(id, "deposit", "selecting_bank")
	mgr.SetStep(id, "confirming")
	assert.Equal(t, state.Step("confirming"), mgr.Get(id).Step)
}

// flakyStore wraps a real store and fails writes on demand.
type flakyStore struct {
	Store
	failSaves   bool
	failDeletes bool
}

func (s *flakyStore) SaveState(ctx context.Context, st StoredState) error {
	if s.failSaves {
		return errors.New("store unavailable")
	}
	return s.Store.SaveState(ctx, st)
}

func (s *flakyStore) DeleteState(ctx context.Context, id state.Identity) error {
	if s.failDeletes {
		return errors.New("store unavailable")
	}
	return s.Store.DeleteState(ctx, id)
}

func TestDurableManagerParksSessionOnFailedWrite(t *testing.T) {
	flaky := &flakyStore{Store: newTestStore(t)}
	mgr := NewDurableManager(flaky)
	id := state.Identity{ChatID: 800, UserID: 800}

	mgr.SetFlow(id, "withdraw", "selecting_bank")

	// The store goes down mid-conversation. The transition still has to be
	// visible to the running process.
	flaky.failSaves = true
	mgr.SetStep(id, "entering_amount")
	mgr.UpdateData(id, map[string]interface{}{"amount": 100.0})

	session := mgr.Get(id)
	assert.Equal(t, state.Step("entering_amount"), session.Step)
	assert.Equal(t, 100.0, session.Data["amount"])
	assert.True(t, mgr.InProgress(id))

	// Once the store recovers the next write lands and the parked copy is
	// dropped in favor of the durable row.
	flaky.failSaves = false
	mgr.SetStep(id, "confirming")

	st, ok, err := flaky.Store.LoadState(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "confirming", st.Step)
	assert.Equal(t, state.Step("confirming"), mgr.Get(id).Step)
}

func TestDurableManagerClearSticksWhenDeleteFails(t *testing.T) {
	flaky := &flakyStore{Store: newTestStore(t)}
	mgr := NewDurableManager(flaky)
	id := state.Identity{ChatID: 801, UserID: 801}

	mgr.SetFlow(id, "deposit", "confirming")

	flaky.failDeletes = true
	mgr.Clear(id)

	// The stale row is still in the store, but the manager must not serve it.
	assert.False(t, mgr.InProgress(id))
	assert.Equal(t, state.FlowNone, mgr.Get(id).Flow)
}

func TestSaveLoginCachesCredentialPair(t *testing.T) {
	store := newTestStore(t)
	svc := NewAccountService(store, nil)
	ctx := context.Background()
	id := state.Identity{ChatID: 900, UserID: 900}

	require.NoError(t, svc.SaveLogin(ctx, id, gateway.LoginResult{
		AccessToken: "tok-a", Role: "agent", PlayerUUID: "p-9",
	}, "agent9", "hunter2"))

	link, ok, err := store.GetLink(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "agent9", link.CachedUsername)
	assert.Equal(t, "hunter2", link.CachedSecret)
	assert.Equal(t, "tok-a", link.AccessToken)
}

func TestLogoutClearsSessionButKeepsLink(t *testing.T) {
	store := newTestStore(t)
	svc := NewAccountService(store, nil)
	ctx := context.Background()
	id := state.Identity{ChatID: 901, UserID: 901}

	require.NoError(t, svc.SaveLogin(ctx, id, gateway.LoginResult{
		AccessToken: "tok-b", Role: "player", PlayerUUID: "p-10",
	}, "player10", "pass10"))
	require.NoError(t, svc.Logout(ctx, id))

	link, ok, err := store.GetLink(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, link.Role)
	assert.Empty(t, link.AccessToken)
	assert.Empty(t, link.CachedUsername)
	assert.Empty(t, link.CachedSecret)
	assert.Equal(t, "p-10", link.PlayerUUID)

	// Logging out a chat that never logged in is a no-op.
	require.NoError(t, svc.Logout(ctx, state.Identity{ChatID: 902, UserID: 902}))
}

func TestAccountServiceRole(t *testing.T) {
	store := newTestStore(t)
	svc := NewAccountService(store, nil)
	ctx := context.Background()

	assert.Equal(t, "guest", svc.Role(ctx, state.Identity{ChatID: 600}))

	require.NoError(t, store.UpsertLink(ctx, Link{ChatID: 601, UserID: 601, PlayerUUID: "p", Email: "e@x.co"}))
	assert.Equal(t, "player", svc.Role(ctx, state.Identity{ChatID: 601, UserID: 601}))

	require.NoError(t, store.UpsertLink(ctx, Link{ChatID: 602, UserID: 602, Role: "agent", AccessToken: "t"}))
	assert.Equal(t, "agent", svc.Role(ctx, state.Identity{ChatID: 602, UserID: 602}))
}
