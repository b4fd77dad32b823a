package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/instarepost/core/logger"
	"github.com/m3rciful/instarepost/internal/instagram"
)

// Authenticator logs in with a username and password.
// *instagram.Client satisfies it.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (instagram.Session, error)
}

// Bootstrap is the operator-supplied account used when nothing is stored yet
// (INSTAGRAM_USERNAME, INSTAGRAM_PASSWORD, INSTAGRAM_SESSION_ID).
type Bootstrap struct {
	Username  string
	Password  string
	SessionID string
	UserAgent string
}

func (b Bootstrap) empty() bool {
	return strings.TrimSpace(b.Username) == "" && b.Password == "" && b.SessionID == ""
}

// Ensure returns a usable record. A stored record with a session is reused
// as is; otherwise the bootstrap account is used, logging in when it carries
// no session token, and the result is persisted.
func Ensure(ctx context.Context, store Store, boot Bootstrap, auth Authenticator) (Record, error) {
	rec, err := store.Load()
	switch {
	case err == nil && rec.HasSession():
		logger.Creds.LogAttrs(ctx, slog.LevelInfo, "stored session reused",
			slog.String("event", "creds.ensure"),
			slog.String("source", "store"),
			slog.String("username", rec.Username),
		)
		return rec, nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return Record{}, err
	}

	// A stored record without a session still holds a usable password.
	if err == nil && boot.empty() {
		boot = Bootstrap{Username: rec.Username, Password: rec.Password, UserAgent: rec.UserAgent}
	}
	if boot.empty() {
		return Record{}, fmt.Errorf("%w: set INSTAGRAM_USERNAME and INSTAGRAM_PASSWORD (or INSTAGRAM_SESSION_ID), or run `instarepost login`", ErrNotFound)
	}

	next := Record{
		Username:  strings.TrimSpace(boot.Username),
		Password:  boot.Password,
		UserAgent: boot.UserAgent,
	}
	source := "env_session"
	if boot.SessionID != "" {
		next.SessionID = boot.SessionID
	} else {
		if auth == nil {
			return Record{}, errors.New("credentials: no session token and no authenticator")
		}
		sess, err := auth.Login(ctx, next.Username, next.Password)
		if err != nil {
			return Record{}, fmt.Errorf("credentials: login as %s: %w", next.Username, err)
		}
		next.SessionID, next.CSRFToken, next.DSUserID = sess.SessionID, sess.CSRFToken, sess.DSUserID
		next.LastLogin = time.Now().UTC()
		source = "login"
	}

	if err := store.Save(next); err != nil {
		return Record{}, err
	}
	logger.Creds.LogAttrs(ctx, slog.LevelInfo, "credentials bootstrapped",
		slog.String("event", "creds.ensure"),
		slog.String("source", source),
		slog.String("username", next.Username),
		slog.String("session", logger.Mask(next.SessionID)),
	)
	return next, nil
}

// Refresher re-authenticates with the stored password and persists the new
// session. It backs the media fetcher's retry on auth errors.
type Refresher struct {
	Store Store
	Auth  Authenticator
}

// Refresh logs in again. It fails when no password is stored.
func (r *Refresher) Refresh(ctx context.Context) error {
	rec, err := r.Store.Load()
	if err != nil {
		return err
	}
	if rec.Username == "" || rec.Password == "" {
		return errors.New("credentials: session expired and no password stored; run `instarepost login`")
	}
	sess, err := r.Auth.Login(ctx, rec.Username, rec.Password)
	if err != nil {
		return fmt.Errorf("credentials: re-login: %w", err)
	}
	rec.SessionID, rec.CSRFToken, rec.DSUserID = sess.SessionID, sess.CSRFToken, sess.DSUserID
	rec.LastLogin = time.Now().UTC()
	if err := r.Store.Save(rec); err != nil {
		return err
	}
	logger.Creds.LogAttrs(ctx, slog.LevelInfo, "session refreshed",
		slog.String("event", "creds.refresh"),
		slog.String("username", rec.Username),
	)
	return nil
}
