package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadYAMLWithEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
telegram:
  token: "from-file"
  run_mode: polling
logging:
  level: debug
rate_limit:
  interval_ms: 500
  exclude_updates: [" Callback ", ""]
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TELEGRAM_TOKEN", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Fatalf("token = %q, want env override", cfg.Telegram.Token)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("run mode = %q, want %q", cfg.Telegram.RunMode, RunModeLongpoll)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("logging level = %q", cfg.Logging.Level)
	}
	if len(cfg.RateLimit.ExcludeUpdates) != 1 || cfg.RateLimit.ExcludeUpdates[0] != UpdateCallback {
		t.Fatalf("exclude updates = %v", cfg.RateLimit.ExcludeUpdates)
	}
}

func TestLoadMissingFileUsesEnvironment(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "env-only")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "env-only" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
}

func TestNormalizeRejectsInvalidSettings(t *testing.T) {
	cases := map[string]Config{
		"missing token": {},
		"bad run mode":  {Telegram: TelegramConfig{Token: "x", RunMode: "carrier-pigeon"}},
		"webhook without url": {
			Telegram: TelegramConfig{Token: "x", RunMode: RunModeWebhook},
			Webhook:  WebhookConfig{Port: 8443},
		},
		"webhook without port": {
			Telegram: TelegramConfig{Token: "x", RunMode: RunModeWebhook},
			Webhook:  WebhookConfig{URL: "https://bot.example.com/hook"},
		},
		"bad exclude": {
			Telegram:  TelegramConfig{Token: "x"},
			RateLimit: RateLimitConfig{ExcludeUpdates: []string{"poll"}},
		},
	}
	for name, cfg := range cases {
		cfg := cfg
		if err := Normalize(&cfg); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestNormalizeWebhookDefaultsListen(t *testing.T) {
	cfg := Config{
		Telegram: TelegramConfig{Token: "x", RunMode: "WEBHOOK"},
		Webhook:  WebhookConfig{URL: "https://bot.example.com/hook", Port: 8443},
	}
	if err := Normalize(&cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeWebhook || cfg.Webhook.Listen != "0.0.0.0" {
		t.Fatalf("unexpected webhook normalization: %+v", cfg)
	}
}
