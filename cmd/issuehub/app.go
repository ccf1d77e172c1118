package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/iammorganparry/issuehub/internal/client"
	"github.com/iammorganparry/issuehub/internal/config"
	"github.com/iammorganparry/issuehub/internal/issuehub"
	"github.com/iammorganparry/issuehub/internal/session"
)

// expiredHint is printed when the server rejects the stored session.
const expiredHint = "Your session has expired or you are not signed in. Run `issuehub login` to continue."

// app is the state shared by every subcommand.
type app struct {
	cfg      *config.Config
	stdin    io.Reader
	stdout   io.Writer
	stderr   io.Writer
	jsonOut  bool
	location string

	logger  *slog.Logger
	logFile *os.File
	session *session.Session
	raw     *recorder
	hub     *issuehub.Client
	account *issuehub.Account

	// onUnauthenticated is what the client runs after a 401. Commands that
	// own the screen (tui, mcp) replace it before making requests.
	onUnauthenticated func(context.Context)
}

// open builds the logger, session and API client.
func (a *app) open(ctx context.Context, debug bool) error {
	logger, logFile, err := newLogger(a.cfg, debug)
	if err != nil {
		return err
	}
	a.logger = logger
	a.logFile = logFile

	store, err := session.OpenStore(ctx, a.cfg.Session)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	a.session = session.New(store)

	a.onUnauthenticated = client.RedirectToLogin(&cliNavigator{location: a.location, out: a.stderr}, a.cfg.LoginPath)

	c, err := client.New(client.Config{
		BaseURL:   a.cfg.BaseURL,
		Session:   a.session,
		Timeout:   a.cfg.Timeout,
		Logger:    logger,
		UserAgent: "issuehub-cli/" + version,
		OnUnauthenticated: func(ctx context.Context) {
			a.onUnauthenticated(ctx)
		},
	})
	if err != nil {
		return err
	}
	a.raw = &recorder{client: c}
	a.hub = issuehub.New(a.raw)
	a.account = issuehub.NewAccount(a.hub, a.session)

	logger.Debug("cli started",
		"command", a.location,
		"base_url", a.cfg.BaseURL,
		"session_backend", a.cfg.Session.Backend,
	)
	return nil
}

func (a *app) Close() error {
	var err error
	if a.session != nil {
		err = a.session.Close()
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return err
}

// newLogger writes JSON logs to the configured file. The terminal belongs to
// the command's output, so logs never go to stdout.
func newLogger(cfg *config.Config, debug bool) (*slog.Logger, *os.File, error) {
	level := slog.LevelInfo
	if debug || cfg.LogLevel == "debug" {
		level = slog.LevelDebug
	}

	if cfg.LogFile == "" {
		return slog.New(slog.NewJSONHandler(io.Discard, nil)), nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level})), f, nil
}

// cliNavigator gives a one-shot command a location so the client's
// unauthenticated callback can tell a failed login apart from an expired
// session. Navigating means telling the user to sign in.
type cliNavigator struct {
	mu       sync.Mutex
	location string
	out      io.Writer
	told     bool
}

func (n *cliNavigator) Location() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.location
}

func (n *cliNavigator) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.location = path
	if !n.told {
		n.told = true
		fmt.Fprintln(n.out, expiredHint)
	}
}

// recorder is the Requester behind the resource wrappers. It keeps the last
// response body so --json can print exactly what the server sent.
type recorder struct {
	client *client.Client

	mu   sync.Mutex
	last json.RawMessage
}

func (r *recorder) Do(ctx context.Context, method, path string, body any, query url.Values, out any) error {
	raw, err := r.client.Request(ctx, method, path, body, query)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.last = raw
	r.mu.Unlock()

	if out == nil || raw == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// Last returns the most recent response body.
func (r *recorder) Last() json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
