package app

import (
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/instarepost/core/config"
	coredatabase "github.com/m3rciful/instarepost/core/database"
	"github.com/m3rciful/instarepost/internal/archive"
	"github.com/m3rciful/instarepost/internal/cleanup"
	"github.com/m3rciful/instarepost/internal/credentials"
	"github.com/m3rciful/instarepost/internal/drive"
)

// InstagramConfig holds the account used for lookups and the request budget.
type InstagramConfig struct {
	Username  string `yaml:"username" envconfig:"INSTAGRAM_USERNAME"`
	Password  string `yaml:"password" envconfig:"INSTAGRAM_PASSWORD"`
	SessionID string `yaml:"session_id" envconfig:"INSTAGRAM_SESSION_ID"`
	UserAgent string `yaml:"user_agent" envconfig:"INSTAGRAM_USER_AGENT"`
	// RequestsPerMinute throttles every Instagram call; 0 -> default.
	RequestsPerMinute int           `yaml:"requests_per_minute" envconfig:"INSTAGRAM_REQUESTS_PER_MINUTE"`
	Burst             int           `yaml:"burst" envconfig:"INSTAGRAM_BURST"`
	BreakerOpenFor    time.Duration `yaml:"breaker_open_for" envconfig:"INSTAGRAM_BREAKER_OPEN_FOR"`
}

// StorageConfig places the data directory and selects the credential backend.
type StorageConfig struct {
	DataDir            string `yaml:"data_dir" envconfig:"DATA_DIR"`
	CredentialsBackend string `yaml:"credentials_backend" envconfig:"CREDENTIALS_BACKEND"`
	// Passphrase seals the secret fields of the credentials file.
	Passphrase string `yaml:"credentials_passphrase" envconfig:"CREDENTIALS_PASSPHRASE"`
}

// RepostConfig selects where confirmed posts go.
type RepostConfig struct {
	// TargetChatID overrides the originating chat as destination.
	TargetChatID          int64  `yaml:"target_chat_id" envconfig:"REPOST_TARGET_CHAT_ID"`
	// ToInstagram also posts photo reposts to the logged-in Instagram account.
	ToInstagram           bool   `yaml:"to_instagram" envconfig:"REPOST_TO_INSTAGRAM"`
	UseGoogleDrive        bool   `yaml:"use_google_drive" envconfig:"USE_GOOGLE_DRIVE"`
	DriveCredentials      string `yaml:"google_drive_credentials" envconfig:"GOOGLE_DRIVE_CREDENTIALS"`
	DriveCredentialsB64   string `yaml:"-" envconfig:"GOOGLE_DRIVE_CREDENTIALS_BASE64"`
	DriveFolder           string `yaml:"google_drive_folder" envconfig:"GOOGLE_DRIVE_FOLDER"`
	driveCredentialsBytes []byte
}

// CleanupConfig drives the retention sweep.
type CleanupConfig struct {
	Retention time.Duration `yaml:"retention" envconfig:"CLEANUP_RETENTION"`
	Interval  time.Duration `yaml:"interval" envconfig:"CLEANUP_INTERVAL"`
}

// ArchiveConfig selects the repost history backend.
type ArchiveConfig struct {
	Backend       string              `yaml:"backend" envconfig:"ARCHIVE_BACKEND"`
	MongoURI      string              `yaml:"mongo_uri" envconfig:"MONGO_URI"`
	MongoDatabase string              `yaml:"mongo_database" envconfig:"MONGO_DATABASE"`
	Database      coredatabase.Config `yaml:"database"`
}

// HealthConfig configures the HTTP health endpoint; port 0 disables it.
type HealthConfig struct {
	Listen string `yaml:"listen" envconfig:"HEALTH_LISTEN"`
	Port   int    `yaml:"port" envconfig:"HEALTH_PORT"`
	// HostPort is the platform-assigned $PORT, used when Port is unset.
	HostPort int `yaml:"-" envconfig:"PORT"`
}

// Config is the full application configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	// RenderExternalURL derives the webhook URL on Render when WEBHOOK_URL is empty.
	RenderExternalURL string `yaml:"-" envconfig:"RENDER_EXTERNAL_URL"`

	Instagram InstagramConfig `yaml:"instagram"`
	Storage   StorageConfig   `yaml:"storage"`
	Repost    RepostConfig    `yaml:"repost"`
	Cleanup   CleanupConfig   `yaml:"cleanup"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Health    HealthConfig    `yaml:"health"`
}

// CoreConfig exposes the embedded framework configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// PostsDir holds one JSON record per post.
func (c *Config) PostsDir() string { return filepath.Join(c.Storage.DataDir, "posts") }

// MediaDir holds one directory of downloads per post.
func (c *Config) MediaDir() string { return filepath.Join(c.Storage.DataDir, "media") }

// HistoryFile is the JSONL archive used by the file backend.
func (c *Config) HistoryFile() string { return filepath.Join(c.Storage.DataDir, "history.jsonl") }

// CredentialOptions returns the credential store settings.
func (c *Config) CredentialOptions() credentials.Options {
	return credentials.Options{
		Backend:    c.Storage.CredentialsBackend,
		DataDir:    c.Storage.DataDir,
		Passphrase: c.Storage.Passphrase,
	}
}

// DriveOptions returns the Drive publisher settings.
func (c *Config) DriveOptions() drive.Options {
	return drive.Options{
		CredentialsFile: c.Repost.DriveCredentials,
		CredentialsJSON: c.Repost.driveCredentialsBytes,
		Folder:          c.Repost.DriveFolder,
	}
}

// LoadConfig reads path (optional), overlays the environment and normalizes.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadAccountConfig reads only what the login and logout commands need; the
// Telegram settings are not validated.
func LoadAccountConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := normalizeAccount(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func normalizeAccount(cfg *Config) error {
	if strings.TrimSpace(cfg.Storage.DataDir) == "" {
		cfg.Storage.DataDir = "data"
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.CredentialsBackend)) {
	case "", credentials.BackendFile:
		cfg.Storage.CredentialsBackend = credentials.BackendFile
	case credentials.BackendKeyring:
		cfg.Storage.CredentialsBackend = credentials.BackendKeyring
	default:
		return fmt.Errorf("invalid storage.credentials_backend %q; allowed: file, keyring", cfg.Storage.CredentialsBackend)
	}
	if cfg.Instagram.RequestsPerMinute < 0 || cfg.Instagram.Burst < 0 {
		return fmt.Errorf("instagram.requests_per_minute and instagram.burst must be >= 0")
	}
	return nil
}

// Normalize validates the configuration and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if strings.TrimSpace(cfg.Webhook.URL) == "" && cfg.RenderExternalURL != "" &&
		strings.EqualFold(strings.TrimSpace(cfg.Telegram.RunMode), coreconfig.RunModeWebhook) {
		cfg.Webhook.URL = strings.TrimRight(cfg.RenderExternalURL, "/") + "/webhook"
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return err
	}

	if err := normalizeAccount(cfg); err != nil {
		return err
	}

	if cfg.Repost.DriveCredentialsB64 != "" {
		raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(cfg.Repost.DriveCredentialsB64))
		if err != nil {
			return fmt.Errorf("GOOGLE_DRIVE_CREDENTIALS_BASE64 is not valid base64: %w", err)
		}
		cfg.Repost.driveCredentialsBytes = raw
	}
	if cfg.Repost.UseGoogleDrive && cfg.Repost.DriveCredentials == "" {
		cfg.Repost.DriveCredentials = "credentials.json"
	}
	if cfg.Repost.DriveFolder == "" {
		cfg.Repost.DriveFolder = drive.DefaultFolder
	}

	if cfg.Cleanup.Retention <= 0 {
		cfg.Cleanup.Retention = cleanup.DefaultRetention
	}
	if cfg.Cleanup.Interval <= 0 {
		cfg.Cleanup.Interval = cleanup.DefaultInterval
	}

	backend, err := archive.ParseBackend(cfg.Archive.Backend)
	if err != nil {
		return err
	}
	cfg.Archive.Backend = backend
	switch backend {
	case archive.BackendPostgres:
		cfg.Archive.Database = cfg.Archive.Database.WithDefaults()
		if cfg.Archive.Database.Name == "" {
			return fmt.Errorf("archive.database.name is required when archive.backend is 'postgres' (DB_NAME)")
		}
	case archive.BackendMongo:
		if strings.TrimSpace(cfg.Archive.MongoURI) == "" {
			return fmt.Errorf("archive.mongo_uri is required when archive.backend is 'mongo' (MONGO_URI)")
		}
		if cfg.Archive.MongoDatabase == "" {
			cfg.Archive.MongoDatabase = "instarepost"
		}
	}

	webhookPort := 0
	if cfg.Telegram.RunMode == coreconfig.RunModeWebhook {
		webhookPort = cfg.Webhook.Port
	}
	if cfg.Health.Port == 0 && cfg.Health.HostPort != webhookPort {
		cfg.Health.Port = cfg.Health.HostPort
	}
	if cfg.Health.Port < 0 {
		return fmt.Errorf("health.port must be >= 0")
	}
	if strings.TrimSpace(cfg.Health.Listen) == "" {
		cfg.Health.Listen = "0.0.0.0"
	}
	if cfg.Health.Port != 0 && cfg.Health.Port == webhookPort {
		return fmt.Errorf("health.port and webhook.port must differ (both %d)", cfg.Health.Port)
	}
	return nil
}
