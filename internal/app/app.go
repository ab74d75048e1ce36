package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/betbot/core/bootstrap"
	"github.com/m3rciful/betbot/core/cmd"
	coreconfig "github.com/m3rciful/betbot/core/config"
	tg "github.com/m3rciful/betbot/core/telegram"
	"github.com/m3rciful/betbot/core/telegram/router"
	"github.com/m3rciful/betbot/core/telegram/state"
	"github.com/m3rciful/betbot/core/telegram/ui"
	"github.com/m3rciful/betbot/internal/files"
	"github.com/m3rciful/betbot/internal/flow"
	"github.com/m3rciful/betbot/internal/gateway"
	"github.com/m3rciful/betbot/internal/handlers"
	"github.com/m3rciful/betbot/internal/notify"
	"github.com/m3rciful/betbot/internal/session"
)

// Config carries the loaded core configuration through the cmd pipeline.
type Config struct {
	core *coreconfig.Config
}

// CoreConfig implements cmd.ConfigCarrier.
func (c *Config) CoreConfig() *coreconfig.Config {
	return c.core
}

// LoadConfig reads and validates the YAML+env configuration.
func LoadConfig(path string) (cmd.ConfigCarrier, error) {
	core, err := coreconfig.Load(path)
	if err != nil {
		return nil, err
	}
	return &Config{core: core}, nil
}

// Services groups the application layer built on top of the infrastructure.
type Services struct {
	Backend  *gateway.Client
	Store    session.Store
	Accounts *session.AccountService
	Engine   *flow.Engine
	Files    *files.Service
	Handlers *handlers.Handlers
}

// provideServices builds the service graph over the bootstrap storage.
var provideServices = bootstrap.TypedServiceProviderFunc[*Services](
	func(ctx context.Context, cfgAny interface{}, storage bootstrap.Storage) (*Services, error) {
		cfg, ok := cfgAny.(*coreconfig.Config)
		if !ok || cfg == nil {
			return nil, fmt.Errorf("app: unexpected config type %T", cfgAny)
		}

		var store session.Store
		if db, _ := storage.(*sqlx.DB); db != nil {
			store = session.NewStore(db)
		} else {
			store = session.NewMemoryStore()
		}

		backend := gateway.New(cfg.Backend)
		accounts := session.NewAccountService(store, backend)
		deps := flow.Deps{Backend: backend, Accounts: accounts}

		engine := flow.NewEngine(flowStates(cfg, store))
		engine.Register(flow.NewDepositFlow(deps))
		engine.Register(flow.NewWithdrawFlow(deps))
		engine.Register(flow.NewLoginFlow(deps))
		engine.Register(flow.NewRegisterFlow(deps))
		engine.Register(flow.NewAdminReviewFlow(deps))
		engine.Register(flow.NewAgentReviewFlow(deps))

		filesSvc := files.NewService(cfg.Files)

		return &Services{
			Backend:  backend,
			Store:    store,
			Accounts: accounts,
			Engine:   engine,
			Files:    filesSvc,
			Handlers: handlers.New(engine, backend, accounts, filesSvc),
		}, nil
	})

// flowStates picks the conversation state manager for the storage mode.
// Memory mode keeps state in process; sqlite and postgres persist it.
func flowStates(cfg *coreconfig.Config, store session.Store) state.Manager {
	if cfg.Storage.Mode == coreconfig.StorageModeMemory {
		return state.NewMemoryManager()
	}
	return session.NewDurableManager(store)
}

// App is the composed bot application.
type App struct {
	cfg      *coreconfig.Config
	db       *sqlx.DB
	services *Services
	notify   *notify.Server
}

// Bootstrap initializes logging and storage, then builds the services.
func Bootstrap(carrier cmd.ConfigCarrier) (cmd.TelegramApp, error) {
	cfg := carrier.CoreConfig()

	result, err := bootstrap.Run(bootstrap.Options{
		Config:        cfg,
		SQLiteMigrate: session.MigrateSQLite,
	})
	if err != nil {
		return nil, err
	}

	var storage bootstrap.Storage
	if result.DB != nil {
		storage = result.DB
	}
	services, err := provideServices.ProvideTyped(context.Background(), cfg, storage)
	if err != nil {
		if result.DB != nil {
			_ = result.DB.Close()
		}
		return nil, err
	}

	return &App{cfg: cfg, db: result.DB, services: services}, nil
}

// TelegramRunOptions implements cmd.TelegramApp.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	reg := tg.NewRegistry()
	a.services.Handlers.Register(reg)

	roleOf := a.services.Handlers.RoleOf
	var fallbacks ui.FallbackProvider = a.services.Handlers

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		RoleOf: roleOf,
		Lock:   a.services.Engine.Lock,
	})
	routes = append(routes, router.TextRoutes(a.services.Engine.States(), reg, router.TextOptions{
		RoleOf:          roleOf,
		UnknownText:     fallbacks.UnknownText(),
		UnknownDocument: fallbacks.UnknownDocument(),
	})...)
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{
		NotFound: fallbacks.UnknownCallback(),
	}))

	return tg.RunOptions{
		Config:      a.cfg,
		Registry:    reg,
		Middlewares: tg.DefaultMiddlewares(a.cfg, nil),
		Routes:      routes,
		OnStart: func(ctx context.Context, rt tg.Runtime) error {
			return a.startNotify(rt)
		},
		OnStop: func(ctx context.Context, rt tg.Runtime) error {
			return a.shutdown(ctx)
		},
	}, nil
}

func (a *App) startNotify(rt tg.Runtime) error {
	if a.cfg.Notify.Listen == "" {
		return nil
	}
	a.notify = notify.NewServer(a.cfg.Notify, a.services.Accounts, rt.Bot, rt.Dispatcher)
	return a.notify.Start()
}

func (a *App) shutdown(ctx context.Context) error {
	if a.notify != nil {
		stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.notify.Shutdown(stopCtx); err != nil {
			return err
		}
	}
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}
