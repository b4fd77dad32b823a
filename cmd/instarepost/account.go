package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	corecmd "github.com/m3rciful/instarepost/core/cmd"
	"github.com/m3rciful/instarepost/core/logger"
	"github.com/m3rciful/instarepost/internal/app"
	"github.com/m3rciful/instarepost/internal/credentials"
	"github.com/m3rciful/instarepost/internal/instagram"
)

var loginSessionID string

var loginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Log in to Instagram and store the session",
	Long: `Prompts for the Instagram password (hidden) and stores the resulting
session in the configured credential backend (DATA_DIR/credentials.json or
the OS keyring). With --session-id the cookie value is stored without
logging in.`,
	Example: `  instarepost login
  instarepost login myaccount
  instarepost login myaccount --session-id "$IG_SESSIONID"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Delete the stored Instagram account",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

func init() {
	loginCmd.Flags().StringVar(&loginSessionID, "session-id", "", "store this sessionid cookie instead of logging in")
}

func openAccount() (*app.Config, credentials.Store, error) {
	path := corecmd.Options{ConfigPath: configPath}.ResolveConfigPath()
	cfg, err := app.LoadAccountConfig(path)
	if err != nil {
		return nil, nil, err
	}
	if err := logger.InitLogger(&cfg.Config); err != nil {
		return nil, nil, err
	}
	store, err := credentials.Open(cfg.CredentialOptions())
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, store, err := openAccount()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Shutdown() }()

	in := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	username := cfg.Instagram.Username
	if len(args) > 0 {
		username = args[0]
	}
	if username == "" {
		fmt.Fprint(out, "Instagram username: ")
		if username, err = readLine(in); err != nil {
			return err
		}
	}
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return errors.New("username is required")
	}

	rec := credentials.Record{Username: username, SessionID: loginSessionID, LastLogin: time.Now().UTC()}
	if rec.SessionID == "" {
		fmt.Fprintf(out, "Password for %s: ", username)
		password, err := readSecret(in, out)
		if err != nil {
			return err
		}
		if password == "" {
			return errors.New("password is required")
		}

		client, err := instagram.NewClient(instagram.Options{UserAgent: cfg.Instagram.UserAgent})
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()

		sess, err := client.Login(ctx, username, password)
		if err != nil {
			return errors.New(instagram.UserMessage(err))
		}
		rec.Password = password
		rec.SessionID, rec.CSRFToken, rec.DSUserID = sess.SessionID, sess.CSRFToken, sess.DSUserID
		rec.UserAgent = client.UserAgent()
	}

	if err := store.Save(rec); err != nil {
		return err
	}
	fmt.Fprintf(out, "Stored (%s backend): %s\n", cfg.Storage.CredentialsBackend, rec)
	if cfg.Storage.CredentialsBackend == credentials.BackendFile && cfg.Storage.Passphrase == "" {
		fmt.Fprintln(out, "Secrets are stored unencrypted; set CREDENTIALS_PASSPHRASE to seal them.")
	}
	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cfg, store, err := openAccount()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Shutdown() }()

	if err := store.Delete(); err != nil && !errors.Is(err, credentials.ErrNotFound) {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Instagram account removed from the %s backend.\n", cfg.Storage.CredentialsBackend)
	return nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// readSecret reads without echo on a terminal and falls back to a plain
// line when stdin is piped.
func readSecret(r *bufio.Reader, out io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	return readLine(r)
}
