// issuehub is the command-line and terminal client for IssueHub.
//
// Without a subcommand it opens the interactive TUI. Every other subcommand
// makes one or a few API calls with the stored session and prints the
// result as a table, or as the raw response body with --json.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/iammorganparry/issuehub/internal/client"
	"github.com/iammorganparry/issuehub/internal/config"
)

const version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// globalOptions are the flags accepted before the subcommand.
type globalOptions struct {
	baseURL     string
	backend     string
	sessionPath string
	ephemeral   bool
	jsonOut     bool
	debug       bool
}

func (o *globalOptions) register(fs *pflag.FlagSet) {
	fs.StringVar(&o.baseURL, "base-url", "", "API base URL, e.g. http://localhost:8000/api")
	fs.StringVar(&o.backend, "session", "", "session store: file, sqlite, redis or memory")
	fs.StringVar(&o.sessionPath, "session-path", "", "session file or database path")
	fs.BoolVar(&o.ephemeral, "ephemeral", false, "keep the session in memory for this run only")
	fs.BoolVar(&o.jsonOut, "json", false, "print raw JSON response bodies")
	fs.BoolVar(&o.debug, "debug", false, "log requests at debug level")
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var opts globalOptions
	global := pflag.NewFlagSet("issuehub", pflag.ContinueOnError)
	global.SetInterspersed(false)
	global.SetOutput(io.Discard)
	opts.register(global)

	root := rootCommand()
	root.Flags = func(fs *pflag.FlagSet) {
		var shown globalOptions
		shown.register(fs)
	}

	if err := global.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			root.PrintHelp(stdout, "issuehub")
			return nil
		}
		return fmt.Errorf("%w\n\nRun 'issuehub --help' for usage", err)
	}

	rest := global.Args()
	if len(rest) == 0 {
		rest = []string{"tui"}
	}
	if isHelpFlag(rest[0]) {
		root.PrintHelp(stdout, "issuehub")
		return nil
	}
	cmd := root.find(rest[0])
	if cmd == nil {
		return fmt.Errorf("unknown command %q\n\nRun 'issuehub --help' for usage", rest[0])
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	a := &app{
		cfg:      cfg,
		stdin:    stdin,
		stdout:   stdout,
		stderr:   stderr,
		jsonOut:  opts.jsonOut,
		location: commandLocation(cmd.Name, cfg.LoginPath),
	}
	if !cmd.NoSession {
		if err := a.open(ctx, opts.debug); err != nil {
			return err
		}
		defer a.Close()
	}

	return describe(cmd.Execute(ctx, a, "issuehub "+cmd.Name, rest[1:]))
}

// commandLocation is where a command "is" for the 401 redirect. The login
// command sits on the configured login path, so a rejected sign-in is not
// reported as an expired session.
func commandLocation(name, loginPath string) string {
	if name == "login" {
		return loginPath
	}
	return "/" + name
}

// loadConfig layers the global flags over the loaded configuration.
func loadConfig(opts globalOptions) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if opts.baseURL != "" {
		cfg.BaseURL = opts.baseURL
	}
	if opts.backend != "" && opts.backend != cfg.Session.Backend {
		cfg.Session.Backend = opts.backend
		cfg.Session.Path = ""
	}
	if opts.ephemeral {
		cfg.Session.Backend = config.BackendMemory
	}
	if opts.sessionPath != "" {
		cfg.Session.Path = opts.sessionPath
	}
	if opts.debug {
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// describe rewrites API errors into what the user needs to read.
func describe(err error) error {
	if err == nil {
		return nil
	}
	var netErr *client.NetworkError
	if errors.As(err, &netErr) {
		return fmt.Errorf("cannot reach IssueHub: %w", netErr.Err)
	}
	if status := client.StatusCode(err); status != 0 {
		return fmt.Errorf("%s (HTTP %d)", client.Message(err, "request failed"), status)
	}
	return err
}
