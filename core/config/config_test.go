package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalYAML = `
telegram:
  token: "123:abc"
backend:
  base_url: "http://localhost:8080/"
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Errorf("run_mode = %q, want longpoll", cfg.Telegram.RunMode)
	}
	if cfg.Backend.BaseURL != "http://localhost:8080" {
		t.Errorf("base_url not trimmed: %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.TimeoutSeconds != 15 {
		t.Errorf("timeout_seconds = %d, want 15", cfg.Backend.TimeoutSeconds)
	}
	if cfg.Backend.Currency != "ETB" {
		t.Errorf("currency = %q, want ETB", cfg.Backend.Currency)
	}
	if cfg.Storage.Mode != StorageModeMemory {
		t.Errorf("storage.mode = %q, want memory", cfg.Storage.Mode)
	}
	if cfg.Files.MaxSizeMB != 10 {
		t.Errorf("files.max_size_mb = %d, want 10", cfg.Files.MaxSizeMB)
	}
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	t.Setenv("BACKEND_CURRENCY", "USD")
	t.Setenv("STORAGE_MODE", "sqlite")

	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.Currency != "USD" {
		t.Errorf("currency = %q, want USD", cfg.Backend.Currency)
	}
	if cfg.Storage.Mode != StorageModeSQLite {
		t.Errorf("storage.mode = %q, want sqlite", cfg.Storage.Mode)
	}
	if cfg.Storage.Path == "" {
		t.Error("sqlite mode left storage.path empty")
	}
}

func TestNormalizeValidation(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing token", func(c *Config) { c.Telegram.Token = "" }, "telegram token"},
		{"missing backend url", func(c *Config) { c.Backend.BaseURL = "" }, "backend.base_url"},
		{"bad run mode", func(c *Config) { c.Telegram.RunMode = "carrier-pigeon" }, "run_mode"},
		{"webhook needs url", func(c *Config) { c.Telegram.RunMode = RunModeWebhook }, "webhook.url"},
		{"postgres needs dsn", func(c *Config) { c.Storage.Mode = StorageModePostgres }, "storage.dsn"},
		{"bad storage mode", func(c *Config) { c.Storage.Mode = "floppy" }, "storage.mode"},
		{"notify listen without secret", func(c *Config) { c.Notify.Listen = ":8090" }, "notify.secret"},
		{"bad rate limit exclude", func(c *Config) { c.RateLimit.ExcludeUpdates = []string{"everything"} }, "exclude_updates"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{
				Telegram: TelegramConfig{Token: "123:abc"},
				Backend:  BackendConfig{BaseURL: "http://localhost:8080"},
			}
			tc.mutate(cfg)
			err := Normalize(cfg)
			if err == nil {
				t.Fatal("Normalize accepted invalid config")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestNormalizePollingAliasAndExtensions(t *testing.T) {
	cfg := &Config{
		Telegram: TelegramConfig{Token: "123:abc", RunMode: "polling"},
		Backend:  BackendConfig{BaseURL: "http://localhost:8080"},
		Files:    FilesConfig{Extensions: []string{"JPG", " .png"}},
	}
	if err := Normalize(cfg); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Errorf("polling alias not normalized: %q", cfg.Telegram.RunMode)
	}
	want := []string{".jpg", ".png"}
	for i, ext := range cfg.Files.Extensions {
		if ext != want[i] {
			t.Errorf("extension[%d] = %q, want %q", i, ext, want[i])
		}
	}
}
