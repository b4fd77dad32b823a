package app

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/instarepost/core/config"
	"github.com/m3rciful/instarepost/internal/archive"
	"github.com/m3rciful/instarepost/internal/drive"
)

func baseConfig() *Config {
	return &Config{Config: coreconfig.Config{Telegram: coreconfig.TelegramConfig{Token: "t"}}}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := baseConfig()
	require.NoError(t, Normalize(cfg))

	assert.Equal(t, "data", cfg.Storage.DataDir)
	assert.Equal(t, "file", cfg.Storage.CredentialsBackend)
	assert.Equal(t, archive.BackendFile, cfg.Archive.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Cleanup.Retention)
	assert.Equal(t, 30*time.Minute, cfg.Cleanup.Interval)
	assert.Equal(t, drive.DefaultFolder, cfg.Repost.DriveFolder)
	assert.Equal(t, 0, cfg.Health.Port)
	assert.Equal(t, filepath.Join("data", "posts"), cfg.PostsDir())
	assert.Equal(t, filepath.Join("data", "media"), cfg.MediaDir())
	assert.Equal(t, filepath.Join("data", "history.jsonl"), cfg.HistoryFile())
}

func TestNormalizeRequiresToken(t *testing.T) {
	require.Error(t, Normalize(&Config{}))
}

func TestNormalizeRejectsUnknownBackends(t *testing.T) {
	cfg := baseConfig()
	cfg.Storage.CredentialsBackend = "vault"
	require.Error(t, Normalize(cfg))

	cfg = baseConfig()
	cfg.Archive.Backend = "redis"
	require.Error(t, Normalize(cfg))
}

func TestNormalizeArchiveBackends(t *testing.T) {
	cfg := baseConfig()
	cfg.Archive.Backend = "postgres"
	require.Error(t, Normalize(cfg), "postgres needs a database name")

	cfg = baseConfig()
	cfg.Archive.Backend = "postgres"
	cfg.Archive.Database.Name = "reposts"
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, "localhost", cfg.Archive.Database.Host)
	assert.Equal(t, "migrations", cfg.Archive.Database.MigrationsDir)

	cfg = baseConfig()
	cfg.Archive.Backend = "mongo"
	require.Error(t, Normalize(cfg), "mongo needs a uri")

	cfg.Archive.MongoURI = "mongodb://localhost:27017"
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, "instarepost", cfg.Archive.MongoDatabase)
}

func TestNormalizeHealthPort(t *testing.T) {
	cfg := baseConfig()
	cfg.Health.HostPort = 10000
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, 10000, cfg.Health.Port)
	assert.Equal(t, "0.0.0.0", cfg.Health.Listen)

	// $PORT already serves the webhook.
	cfg = baseConfig()
	cfg.Telegram.RunMode = "webhook"
	cfg.Webhook = coreconfig.WebhookConfig{URL: "https://bot.example", Port: 10000}
	cfg.Health.HostPort = 10000
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, 0, cfg.Health.Port)

	cfg.Health.Port = 10000
	require.Error(t, Normalize(cfg))
}

func TestNormalizeRenderWebhookURL(t *testing.T) {
	cfg := baseConfig()
	cfg.Telegram.RunMode = "webhook"
	cfg.Webhook.Port = 8443
	cfg.RenderExternalURL = "https://instarepost.onrender.com/"
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, "https://instarepost.onrender.com/webhook", cfg.Webhook.URL)
}

func TestNormalizeDriveCredentials(t *testing.T) {
	cfg := baseConfig()
	cfg.Repost.UseGoogleDrive = true
	cfg.Repost.DriveCredentialsB64 = base64.StdEncoding.EncodeToString([]byte(`{"type":"service_account"}`))
	require.NoError(t, Normalize(cfg))
	opts := cfg.DriveOptions()
	assert.Equal(t, "credentials.json", opts.CredentialsFile)
	assert.JSONEq(t, `{"type":"service_account"}`, string(opts.CredentialsJSON))

	cfg = baseConfig()
	cfg.Repost.DriveCredentialsB64 = "%%%"
	require.Error(t, Normalize(cfg))
}

func TestLoadConfigYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
telegram:
  token: from-yaml
  admin_id: 7
storage:
  data_dir: /srv/instarepost
cleanup:
  retention: 2h
repost:
  target_chat_id: -100123
archive:
  backend: none
`), 0o600))
	t.Setenv("TELEGRAM_TOKEN", "from-env")
	t.Setenv("CLEANUP_INTERVAL", "5m")
	t.Setenv("INSTAGRAM_USERNAME", "alice")
	t.Setenv("REPOST_TO_INSTAGRAM", "true")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Telegram.Token)
	assert.EqualValues(t, 7, cfg.Telegram.AdminID)
	assert.Equal(t, "/srv/instarepost", cfg.Storage.DataDir)
	assert.Equal(t, 2*time.Hour, cfg.Cleanup.Retention)
	assert.Equal(t, 5*time.Minute, cfg.Cleanup.Interval)
	assert.EqualValues(t, -100123, cfg.Repost.TargetChatID)
	assert.True(t, cfg.Repost.ToInstagram)
	assert.Equal(t, archive.BackendNone, cfg.Archive.Backend)
	assert.Equal(t, "alice", cfg.Instagram.Username)
	assert.Same(t, &cfg.Config, cfg.CoreConfig())
}

func TestLoadAccountConfigSkipsTelegram(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "")
	t.Setenv("CREDENTIALS_BACKEND", "keyring")

	cfg, err := LoadAccountConfig("")
	require.NoError(t, err)
	assert.Equal(t, "data", cfg.Storage.DataDir)
	assert.Equal(t, "keyring", cfg.CredentialOptions().Backend)
}
