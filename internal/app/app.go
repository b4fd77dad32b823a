// Package app wires the repost bot onto the core Telegram runtime: Instagram
// client, credential bootstrap, post storage, publishers, archive, retention
// sweep and the health endpoint.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/instarepost/core/bootstrap"
	coredatabase "github.com/m3rciful/instarepost/core/database"
	"github.com/m3rciful/instarepost/core/health"
	"github.com/m3rciful/instarepost/core/logger"
	coretelegram "github.com/m3rciful/instarepost/core/telegram"
	"github.com/m3rciful/instarepost/core/telegram/state"
	"github.com/m3rciful/instarepost/internal/archive"
	"github.com/m3rciful/instarepost/internal/cleanup"
	"github.com/m3rciful/instarepost/internal/conversation"
	"github.com/m3rciful/instarepost/internal/credentials"
	"github.com/m3rciful/instarepost/internal/drive"
	"github.com/m3rciful/instarepost/internal/instagram"
	"github.com/m3rciful/instarepost/internal/media"
	"github.com/m3rciful/instarepost/internal/posts"
	"github.com/m3rciful/instarepost/internal/repost"
	"github.com/m3rciful/instarepost/migrations"

	tele "gopkg.in/telebot.v4"
)

// App holds the long-lived components shared by the handlers.
type App struct {
	cfg   *Config
	infra *bootstrap.Result

	ig      *instagram.Client
	creds   credentials.Store
	posts   *posts.Store
	fetcher *media.Fetcher
	cleaner *cleanup.Cleaner
	sweeper *cleanup.Sweeper
	history archive.Archive

	publisher *repost.TelegramPublisher
	reposter  *repost.Service
	states    state.Manager
	flow      *conversation.Flow
	registry  *coretelegram.Registry
	health    *health.Server
}

// Options replaces collaborators, mainly in tests. Zero values build the
// real ones from the configuration.
type Options struct {
	Bootstrap     func(context.Context, bootstrap.Options) (*bootstrap.Result, error)
	Instagram     *instagram.Client
	Credentials   credentials.Store
	Authenticator credentials.Authenticator
	Archive       archive.Archive
	Secondary     []repost.Publisher
}

// New builds every component. It fails when the logger, the archive backend
// or the Instagram credentials cannot be initialized.
func New(ctx context.Context, cfg *Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	a := &App{cfg: cfg}

	run := opts.Bootstrap
	if run == nil {
		run = bootstrap.Run
	}
	bopts := bootstrap.Options{Config: &cfg.Config}
	if cfg.Archive.Backend == archive.BackendPostgres && opts.Archive == nil {
		db := cfg.Archive.Database
		db.MigrationsFS = migrations.FS
		bopts.Database = &db
		bopts.Connect = coredatabase.Connect
		bopts.Migrate = coredatabase.RunMigrations
	}
	infra, err := run(ctx, bopts)
	if err != nil {
		return nil, err
	}
	a.infra = infra

	if err := a.build(ctx, opts); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, opts Options) error {
	cfg := a.cfg

	a.ig = opts.Instagram
	if a.ig == nil {
		client, err := instagram.NewClient(instagram.Options{
			UserAgent:         cfg.Instagram.UserAgent,
			RequestsPerMinute: cfg.Instagram.RequestsPerMinute,
			Burst:             cfg.Instagram.Burst,
			BreakerOpenFor:    cfg.Instagram.BreakerOpenFor,
		})
		if err != nil {
			return err
		}
		a.ig = client
	}
	auth := opts.Authenticator
	if auth == nil {
		auth = a.ig
	}

	a.creds = opts.Credentials
	if a.creds == nil {
		store, err := credentials.Open(cfg.CredentialOptions())
		if err != nil {
			return err
		}
		a.creds = store
	}
	account, err := credentials.Ensure(ctx, a.creds, credentials.Bootstrap{
		Username:  cfg.Instagram.Username,
		Password:  cfg.Instagram.Password,
		SessionID: cfg.Instagram.SessionID,
		UserAgent: a.ig.UserAgent(),
	}, auth)
	if err != nil {
		return fmt.Errorf("app: instagram credentials: %w", err)
	}
	a.ig.SetSession(account.Session())

	if a.posts, err = posts.NewStore(cfg.PostsDir()); err != nil {
		return err
	}
	a.fetcher, err = media.New(media.Options{
		Source:    a.ig,
		Store:     a.posts,
		MediaDir:  cfg.MediaDir(),
		Refresher: &credentials.Refresher{Store: a.creds, Auth: auth},
	})
	if err != nil {
		return err
	}
	a.cleaner = cleanup.New(a.posts, cfg.MediaDir())
	if a.sweeper, err = cleanup.NewSweeper(a.cleaner, cfg.Cleanup.Interval, cfg.Cleanup.Retention); err != nil {
		return err
	}

	a.history = opts.Archive
	if a.history == nil {
		if a.history, err = a.openArchive(ctx); err != nil {
			return err
		}
	}

	secondary := opts.Secondary
	if secondary == nil {
		if secondary, err = a.secondaryPublishers(ctx); err != nil {
			return err
		}
	}

	// The bot client is attached in OnBot.
	a.publisher = &repost.TelegramPublisher{TargetChatID: cfg.Repost.TargetChatID}
	a.reposter, err = repost.NewService(repost.Options{
		Store:     a.posts,
		Primary:   a.publisher,
		Secondary: secondary,
		Recorder:  a.history,
		Remover:   a.cleaner,
	})
	if err != nil {
		return err
	}

	a.states = state.NewMemoryManager()
	a.flow, err = conversation.New(conversation.Options{
		States:    a.states,
		Fetcher:   a.fetcher,
		Reposter:  a.reposter,
		Records:   a.posts,
		Discarder: a.cleaner,
	})
	if err != nil {
		return err
	}
	a.flow.Bind(a.states)

	a.registry = coretelegram.NewRegistry()
	if err := a.register(a.registry); err != nil {
		return err
	}

	if cfg.Health.Port > 0 {
		a.health = health.NewServer(health.Options{
			Listen: cfg.Health.Listen,
			Port:   cfg.Health.Port,
			Checks: a.healthChecks(),
			Stats: func() map[string]any {
				return map[string]any{"active_dialogs": a.states.Len()}
			},
		})
	}

	logger.TWire.LogAttrs(ctx, slog.LevelInfo, "app wired",
		slog.String("event", "app.wired"),
		slog.String("instagram_user", account.Username),
		slog.String("archive", cfg.Archive.Backend),
		slog.Int("secondary_publishers", len(secondary)),
		slog.Bool("health", a.health != nil),
	)
	return nil
}

func (a *App) openArchive(ctx context.Context) (archive.Archive, error) {
	switch a.cfg.Archive.Backend {
	case archive.BackendPostgres:
		if a.infra == nil || a.infra.DB == nil {
			return nil, errors.New("app: postgres archive selected but no database connection")
		}
		return archive.NewPostgres(a.infra.DB), nil
	case archive.BackendMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		return archive.ConnectMongo(connectCtx, a.cfg.Archive.MongoURI, a.cfg.Archive.MongoDatabase)
	case archive.BackendNone:
		return archive.Nop{}, nil
	default:
		return archive.NewFile(a.cfg.HistoryFile())
	}
}

func (a *App) healthChecks() map[string]health.Check {
	checks := map[string]health.Check{
		"posts": func(context.Context) error {
			_, err := a.posts.List()
			return err
		},
	}
	if a.infra != nil && a.infra.DB != nil {
		checks["database"] = func(ctx context.Context) error { return a.infra.DB.PingContext(ctx) }
	}
	return checks
}

// TelegramRunOptions returns the runtime configuration for the core runner.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	if a.registry == nil {
		return coretelegram.RunOptions{}, errors.New("app: not initialized")
	}
	return coretelegram.RunOptions{
		Config:      &a.cfg.Config,
		Registry:    a.registry,
		Middlewares: coretelegram.DefaultMiddlewares(&a.cfg.Config, onRateLimited),
		Routes:      a.routes(),
		OnBot: func(bot *tele.Bot) error {
			a.publisher.API = bot
			return nil
		},
		OnStart: a.start,
		OnStop:  a.stop,
	}, nil
}

func (a *App) start(ctx context.Context, _ coretelegram.Runtime) error {
	if a.health != nil {
		if err := a.health.Start(ctx); err != nil {
			return fmt.Errorf("app: health server: %w", err)
		}
	}
	a.sweeper.Start()
	return nil
}

func (a *App) stop(ctx context.Context, _ coretelegram.Runtime) error {
	a.sweeper.Stop()
	var errs []error
	if a.health != nil {
		errs = append(errs, a.health.Shutdown(ctx))
	}
	errs = append(errs, a.Close(ctx))
	return errors.Join(errs...)
}

// Close releases the archive and the database handle.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.history != nil {
		errs = append(errs, a.history.Close(ctx))
		a.history = nil
	}
	if a.infra != nil {
		errs = append(errs, a.infra.Close())
		a.infra = nil
	}
	return errors.Join(errs...)
}

// secondaryPublishers returns the optional repost targets enabled in the
// configuration, Instagram first.
func (a *App) secondaryPublishers(ctx context.Context) ([]repost.Publisher, error) {
	var pubs []repost.Publisher
	if a.cfg.Repost.ToInstagram {
		pubs = append(pubs, &repost.InstagramPublisher{Uploader: a.ig})
	}
	if a.cfg.Repost.UseGoogleDrive {
		pub, err := drive.New(ctx, a.cfg.DriveOptions())
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, pub)
	}
	return pubs, nil
}
