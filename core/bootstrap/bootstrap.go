package bootstrap

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/betbot/core/config"
	coredatabase "github.com/m3rciful/betbot/core/database"
	"github.com/m3rciful/betbot/core/logger"
)

// Options control the generic bootstrap pipeline.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config) error
	// SQLiteMigrate applies embedded migrations after a sqlite connect.
	SQLiteMigrate func(*sqlx.DB) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
// DB is nil when storage.mode is "memory".
type Result struct {
	DB *sqlx.DB
}

// Run initializes the logger and, depending on the storage mode, connects to
// the database and applies migrations.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	storage := opts.Config.Storage
	switch storage.Mode {
	case coreconfig.StorageModeMemory:
		return &Result{}, nil

	case coreconfig.StorageModeSQLite:
		db, err := coredatabase.ConnectSQLite(storage.Path)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: sqlite initialization failed: %w", err)
		}
		if opts.SQLiteMigrate != nil {
			if err := opts.SQLiteMigrate(db); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
			}
		}
		return &Result{DB: db}, nil

	case coreconfig.StorageModePostgres:
		dbCfg := coredatabase.Config{
			DSN:           storage.DSN,
			MigrationsDir: storage.MigrationsDir,
		}
		connect := opts.Connect
		if connect == nil {
			connect = coredatabase.Connect
		}
		db, err := connect(dbCfg)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
		}
		migrate := opts.Migrate
		if migrate == nil {
			migrate = coredatabase.RunMigrations
		}
		if err := migrate(dbCfg); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
		}
		return &Result{DB: db}, nil
	}
	return nil, fmt.Errorf("bootstrap: unknown storage mode %q", storage.Mode)
}
