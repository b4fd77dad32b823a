package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/instarepost/core/bootstrap"
	"github.com/m3rciful/instarepost/internal/archive"
	"github.com/m3rciful/instarepost/internal/conversation"
	"github.com/m3rciful/instarepost/internal/credentials"
	"github.com/m3rciful/instarepost/internal/instagram"
	"github.com/m3rciful/instarepost/internal/repost"

	tele "gopkg.in/telebot.v4"
)

type countingAuth struct{ calls int }

func (a *countingAuth) Login(context.Context, string, string) (instagram.Session, error) {
	a.calls++
	return instagram.Session{SessionID: "fresh"}, nil
}

func skipBootstrap(context.Context, bootstrap.Options) (*bootstrap.Result, error) {
	return &bootstrap.Result{}, nil
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := baseConfig()
	cfg.Storage.DataDir = t.TempDir()
	require.NoError(t, Normalize(cfg))
	return cfg
}

func newTestApp(t *testing.T, cfg *Config, store credentials.Store, auth credentials.Authenticator) *App {
	t.Helper()
	ig, err := instagram.NewClient(instagram.Options{BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	a, err := New(context.Background(), cfg, Options{
		Bootstrap:     skipBootstrap,
		Instagram:     ig,
		Credentials:   store,
		Authenticator: auth,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func TestNewReusesStoredSession(t *testing.T) {
	cfg := testConfig(t)
	store, err := credentials.Open(cfg.CredentialOptions())
	require.NoError(t, err)
	require.NoError(t, store.Save(credentials.Record{Username: "reposter", SessionID: "stored"}))

	auth := &countingAuth{}
	a := newTestApp(t, cfg, store, auth)
	assert.Zero(t, auth.calls)
	assert.Equal(t, "stored", a.ig.Session().SessionID)
	assert.IsType(t, &archive.File{}, a.history)
	assert.Nil(t, a.health)
}

func TestSecondaryPublishers(t *testing.T) {
	cfg := testConfig(t)
	store, err := credentials.Open(cfg.CredentialOptions())
	require.NoError(t, err)
	require.NoError(t, store.Save(credentials.Record{Username: "reposter", SessionID: "stored"}))
	a := newTestApp(t, cfg, store, &countingAuth{})

	pubs, err := a.secondaryPublishers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pubs)

	cfg.Repost.ToInstagram = true
	pubs, err = a.secondaryPublishers(context.Background())
	require.NoError(t, err)
	require.Len(t, pubs, 1)
	assert.Equal(t, "instagram", pubs[0].Name())
	ip, ok := pubs[0].(*repost.InstagramPublisher)
	require.True(t, ok)
	assert.Same(t, a.ig, ip.Uploader)
}

func TestNewLogsInWhenNothingStored(t *testing.T) {
	cfg := testConfig(t)
	cfg.Instagram.Username = "reposter"
	cfg.Instagram.Password = "pw"
	store, err := credentials.Open(cfg.CredentialOptions())
	require.NoError(t, err)

	auth := &countingAuth{}
	newTestApp(t, cfg, store, auth)
	assert.Equal(t, 1, auth.calls)

	rec, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "fresh", rec.SessionID)
}

func TestNewFailsWithoutCredentials(t *testing.T) {
	cfg := testConfig(t)
	store, err := credentials.Open(cfg.CredentialOptions())
	require.NoError(t, err)

	_, err = New(context.Background(), cfg, Options{
		Bootstrap:     skipBootstrap,
		Credentials:   store,
		Authenticator: &countingAuth{},
	})
	require.ErrorIs(t, err, credentials.ErrNotFound)
}

func TestNewPropagatesBootstrapError(t *testing.T) {
	boom := errors.New("logger")
	_, err := New(context.Background(), testConfig(t), Options{
		Bootstrap: func(context.Context, bootstrap.Options) (*bootstrap.Result, error) { return nil, boom },
	})
	require.ErrorIs(t, err, boom)
}

func TestTelegramRunOptionsWiring(t *testing.T) {
	cfg := testConfig(t)
	cfg.Health.Port = 18080
	store := credentials.NewFileStore(filepath.Join(cfg.Storage.DataDir, "credentials.json"), "")
	require.NoError(t, store.Save(credentials.Record{Username: "reposter", SessionID: "s"}))
	a := newTestApp(t, cfg, store, &countingAuth{})

	opts, err := a.TelegramRunOptions()
	require.NoError(t, err)
	assert.Same(t, &cfg.Config, opts.Config)
	assert.NotEmpty(t, opts.Middlewares)
	assert.NotNil(t, a.health)

	cmds := opts.Registry.Commands()
	for _, name := range []string{"/start", "/new", "/cancel", "/help", "/status", "/whoami", "/history", "/logout"} {
		assert.Contains(t, cmds, name)
	}
	assert.True(t, cmds["/logout"].AdminOnly)
	assert.ElementsMatch(t, []string{
		conversation.CallbackKeep, conversation.CallbackConfirm,
		conversation.CallbackEdit, conversation.CallbackCancel,
	}, opts.Registry.ListCallbacks())
	assert.NotNil(t, opts.Registry.TextFallback())

	endpoints := map[any]bool{}
	for _, r := range opts.Routes {
		endpoints[r.Endpoint] = true
	}
	for _, ep := range []any{"/start", "/logout", tele.OnCallback, tele.OnText, tele.OnPhoto} {
		assert.True(t, endpoints[ep], "missing route %v", ep)
	}

	bot := &tele.Bot{}
	require.NoError(t, opts.OnBot(bot))
	assert.Same(t, bot, a.publisher.API)
}

func TestLogoutDeletesCredentials(t *testing.T) {
	cfg := testConfig(t)
	store, err := credentials.Open(cfg.CredentialOptions())
	require.NoError(t, err)
	require.NoError(t, store.Save(credentials.Record{Username: "reposter", SessionID: "s"}))
	a := newTestApp(t, cfg, store, &countingAuth{})

	require.NoError(t, a.Logout(context.Background()))
	_, err = store.Load()
	require.ErrorIs(t, err, credentials.ErrNotFound)
	assert.False(t, a.ig.Session().Valid())

	require.NoError(t, a.Logout(context.Background()))
}

func TestHistoryText(t *testing.T) {
	assert.Equal(t, "No reposts yet.", historyText(nil))

	at := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)
	text := historyText([]archive.Entry{
		{Author: "alice", SourceURL: "https://www.instagram.com/p/abc/", PostedAt: at},
		{SourceURL: "https://www.instagram.com/reel/xyz/", PostedAt: at},
	})
	assert.Contains(t, text, "1. @alice, 2025-03-01 12:30:00\nhttps://www.instagram.com/p/abc/")
	assert.Contains(t, text, "2. @unknown")
}

func TestWhoamiText(t *testing.T) {
	user := &tele.User{ID: 7, Username: "bob"}
	chat := &tele.Chat{ID: 42}
	assert.Equal(t, "User ID: 7\nUsername: @bob\nChat ID: 42", whoamiText(user, chat, false))
	assert.Contains(t, whoamiText(user, chat, true), "Role: admin")
}
