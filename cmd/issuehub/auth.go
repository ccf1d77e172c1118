package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/iammorganparry/issuehub/internal/issuehub"
	"github.com/iammorganparry/issuehub/internal/session"
)

func loginCommand() *Command {
	var email, passwordFile string
	return &Command{
		Name:    "login",
		Summary: "Sign in and store the session",
		Usage:   "issuehub login --email <email> [--password-file <path>]",
		Flags: func(fs *pflag.FlagSet) {
			fs.StringVar(&email, "email", "", "account email (prompted when empty)")
			fs.StringVar(&passwordFile, "password-file", "", "read the password from a file, or - for stdin (prompted when empty)")
		},
		Run: func(ctx context.Context, a *app, args []string) error {
			in := bufio.NewReader(a.stdin)
			var err error
			if email == "" {
				if email, err = prompt(in, a.stderr, "Email: "); err != nil {
					return err
				}
			}
			password, err := readPassword(in, a.stdin, a.stderr, passwordFile)
			if err != nil {
				return err
			}

			user, err := a.account.SignIn(ctx, email, password)
			if err != nil {
				return err
			}
			return a.emit(func(w io.Writer) {
				fmt.Fprintf(w, "Signed in as %s <%s>\n", user.Name, user.Email)
			})
		},
	}
}

func signupCommand() *Command {
	var name, email, passwordFile string
	return &Command{
		Name:    "signup",
		Summary: "Create an account and sign in",
		Usage:   "issuehub signup --name <name> --email <email> [--password-file <path>]",
		Flags: func(fs *pflag.FlagSet) {
			fs.StringVar(&name, "name", "", "display name")
			fs.StringVar(&email, "email", "", "account email")
			fs.StringVar(&passwordFile, "password-file", "", "read the password from a file, or - for stdin (prompted when empty)")
		},
		Run: func(ctx context.Context, a *app, args []string) error {
			if name == "" || email == "" {
				return errors.New("--name and --email are required")
			}
			password, err := readPassword(bufio.NewReader(a.stdin), a.stdin, a.stderr, passwordFile)
			if err != nil {
				return err
			}
			if len(password) < 8 {
				return errors.New("password must be at least 8 characters")
			}

			user, err := a.account.SignUp(ctx, name, email, password)
			if err != nil {
				return err
			}
			return a.emit(func(w io.Writer) {
				fmt.Fprintf(w, "Welcome, %s. You are signed in.\n", user.Name)
			})
		},
	}
}

func logoutCommand() *Command {
	return &Command{
		Name:    "logout",
		Summary: "Forget the stored session",
		Run: func(ctx context.Context, a *app, args []string) error {
			if err := a.account.SignOut(ctx); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, "Signed out")
			return nil
		},
	}
}

// whoamiView is the --json shape of whoami.
type whoamiView struct {
	User      *issuehub.User `json:"user"`
	Subject   string         `json:"token_subject,omitempty"`
	ExpiresAt *time.Time     `json:"token_expires_at,omitempty"`
	Expired   bool           `json:"token_expired"`
}

func whoamiCommand() *Command {
	var refresh bool
	return &Command{
		Name:    "whoami",
		Summary: "Show the signed-in user and token expiry",
		Flags: func(fs *pflag.FlagSet) {
			fs.BoolVar(&refresh, "refresh", false, "ask the server instead of using the cached profile")
		},
		Run: func(ctx context.Context, a *app, args []string) error {
			token, err := a.session.Token(ctx)
			if err != nil {
				return err
			}
			if token == "" {
				return errors.New("not signed in; run `issuehub login`")
			}

			var user *issuehub.User
			if refresh {
				user, err = a.account.Restore(ctx)
			} else {
				user, err = a.account.CurrentUser(ctx)
			}
			if err != nil {
				return err
			}

			view := whoamiView{User: user}
			if claims, err := session.ParseClaims(token); err == nil {
				view.Subject = claims.Subject
				if !claims.ExpiresAt.IsZero() {
					view.ExpiresAt = &claims.ExpiresAt
				}
				view.Expired = claims.Expired(time.Now())
			}

			return a.emitValue(view, func(w io.Writer) {
				if user != nil {
					fmt.Fprintf(w, "%s <%s> (user %d)\n", user.Name, user.Email, user.ID)
				} else {
					fmt.Fprintln(w, "Signed in, profile not cached")
				}
				if view.ExpiresAt != nil {
					verb := "expires"
					if view.Expired {
						verb = "expired"
					}
					fmt.Fprintf(w, "Token %s %s\n", verb, humanize.Time(*view.ExpiresAt))
				}
			})
		},
	}
}

// prompt reads one line from in after writing label to out.
func prompt(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.ToLower(label), ": "), err)
	}
	return strings.TrimSpace(line), nil
}

// readPassword takes the password from a file, from stdin ("-"), or from an
// echo-free terminal prompt.
func readPassword(in *bufio.Reader, stdin io.Reader, out io.Writer, passwordFile string) (string, error) {
	switch passwordFile {
	case "":
	case "-":
		line, err := in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read password: %w", err)
		}
		// Only the line terminator is stripped; spaces belong to the password.
		password := strings.TrimRight(line, "\r\n")
		if password == "" {
			return "", errors.New("no password on stdin")
		}
		return password, nil
	default:
		data, err := os.ReadFile(passwordFile)
		if err != nil {
			return "", fmt.Errorf("read password file: %w", err)
		}
		password := strings.TrimRight(string(data), "\r\n")
		if password == "" {
			return "", fmt.Errorf("password file %s is empty", passwordFile)
		}
		return password, nil
	}

	f, ok := stdin.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return "", errors.New("no terminal for the password prompt; use --password-file")
	}
	fmt.Fprint(out, "Password: ")
	password, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(password), nil
}
