package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings that are common for all bots.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Stacks      string `yaml:"stacks"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	ErrorsFile  string `yaml:"errors_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateInlineQuery identifies inline query updates for rate limit exclusions.
	UpdateInlineQuery = "inline_query"
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
// - "inline_query": inline query updates
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

const (
	// StorageModeMemory keeps sessions and conversation state in process memory.
	StorageModeMemory = "memory"
	// StorageModeSQLite persists sessions in a local SQLite file.
	StorageModeSQLite = "sqlite"
	// StorageModePostgres persists sessions in PostgreSQL.
	StorageModePostgres = "postgres"
)

// BackendConfig holds settings for the payments backend API.
type BackendConfig struct {
	BaseURL        string `yaml:"base_url" envconfig:"BACKEND_BASE_URL"`
	Secret         string `yaml:"secret" envconfig:"BACKEND_SECRET"`
	TimeoutSeconds int    `yaml:"timeout_seconds" envconfig:"BACKEND_TIMEOUT_SECONDS"`
	Currency       string `yaml:"currency" envconfig:"BACKEND_CURRENCY"`
}

// StorageConfig selects where chat-account links and conversation state live.
type StorageConfig struct {
	Mode string `yaml:"mode" envconfig:"STORAGE_MODE"`
	// DSN is the PostgreSQL connection string for mode "postgres".
	DSN string `yaml:"dsn" envconfig:"STORAGE_DSN"`
	// Path is the SQLite database file for mode "sqlite".
	Path string `yaml:"path" envconfig:"STORAGE_PATH"`
	// MigrationsDir holds file-source migrations for the postgres mode.
	MigrationsDir string `yaml:"migrations_dir" envconfig:"STORAGE_MIGRATIONS_DIR"`
}

// NotifyConfig configures the inbound backend notification endpoint.
type NotifyConfig struct {
	Listen string `yaml:"listen" envconfig:"NOTIFY_LISTEN"`
	Secret string `yaml:"secret" envconfig:"NOTIFY_SECRET"`
}

// FilesConfig bounds receipt uploads.
type FilesConfig struct {
	TempDir    string   `yaml:"temp_dir" envconfig:"FILES_TEMP_DIR"`
	MaxSizeMB  int      `yaml:"max_size_mb" envconfig:"FILES_MAX_SIZE_MB"`
	Extensions []string `yaml:"extensions" envconfig:"FILES_EXTENSIONS"`
}

// Config aggregates the configuration that belongs to the reusable core.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Backend   BackendConfig   `yaml:"backend"`
	Storage   StorageConfig   `yaml:"storage"`
	Notify    NotifyConfig    `yaml:"notify"`
	Files     FilesConfig     `yaml:"files"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	allowed := map[string]struct{}{
		UpdateCallback:    {},
		UpdateMessage:     {},
		UpdateInlineQuery: {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, inline_query", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}

	if strings.TrimSpace(cfg.Backend.BaseURL) == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	cfg.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Backend.BaseURL), "/")
	if cfg.Backend.TimeoutSeconds <= 0 {
		cfg.Backend.TimeoutSeconds = 15
	}
	if strings.TrimSpace(cfg.Backend.Currency) == "" {
		cfg.Backend.Currency = "ETB"
	}

	mode := strings.ToLower(strings.TrimSpace(cfg.Storage.Mode))
	if mode == "" {
		mode = StorageModeMemory
	}
	switch mode {
	case StorageModeMemory:
	case StorageModeSQLite:
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			cfg.Storage.Path = "data/betbot.db"
		}
	case StorageModePostgres:
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			return fmt.Errorf("storage.dsn is required when storage.mode is 'postgres'")
		}
		if strings.TrimSpace(cfg.Storage.MigrationsDir) == "" {
			cfg.Storage.MigrationsDir = "./migrations"
		}
	default:
		return fmt.Errorf("invalid storage.mode %q; allowed: memory, sqlite, postgres", cfg.Storage.Mode)
	}
	cfg.Storage.Mode = mode

	if strings.TrimSpace(cfg.Notify.Listen) != "" && strings.TrimSpace(cfg.Notify.Secret) == "" {
		return fmt.Errorf("notify.secret is required when notify.listen is set")
	}

	if cfg.Files.MaxSizeMB <= 0 {
		cfg.Files.MaxSizeMB = 10
	}
	if len(cfg.Files.Extensions) == 0 {
		cfg.Files.Extensions = []string{".jpg", ".jpeg", ".png", ".pdf"}
	}
	for i, ext := range cfg.Files.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		cfg.Files.Extensions[i] = ext
	}
	return nil
}
