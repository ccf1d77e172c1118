package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
)

// Command is one node of the CLI tree. Leaf commands have Run; group
// commands have Subcommands.
type Command struct {
	Name    string
	Summary string
	Usage   string

	// Flags registers the command's flags. The FlagSet is the one Run's
	// args were parsed from, so commands may keep it to call Changed.
	Flags func(fs *pflag.FlagSet)

	Subcommands []*Command

	Run func(ctx context.Context, a *app, args []string) error

	// NoSession marks commands that run without the API client.
	NoSession bool
}

func (c *Command) find(name string) *Command {
	for _, sub := range c.Subcommands {
		if sub.Name == name {
			return sub
		}
	}
	return nil
}

// Execute parses args for c and runs it, descending into subcommands.
func (c *Command) Execute(ctx context.Context, a *app, path string, args []string) error {
	if len(c.Subcommands) > 0 {
		if len(args) == 0 || isHelpFlag(args[0]) {
			c.PrintHelp(a.stdout, path)
			if len(args) == 0 {
				return errors.New("subcommand required")
			}
			return nil
		}
		sub := c.find(args[0])
		if sub == nil {
			return fmt.Errorf("unknown command %q\n\nRun '%s --help' for usage", args[0], path)
		}
		return sub.Execute(ctx, a, path+" "+sub.Name, args[1:])
	}

	flagSet := pflag.NewFlagSet(path, pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	if c.Flags != nil {
		c.Flags(flagSet)
	}
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			c.PrintHelp(a.stdout, path)
			return nil
		}
		return fmt.Errorf("%s\n\nRun '%s --help' for usage", err, path)
	}
	return c.Run(ctx, a, flagSet.Args())
}

// PrintHelp writes usage for c.
func (c *Command) PrintHelp(w io.Writer, path string) {
	if c.Summary != "" {
		fmt.Fprintf(w, "%s\n\n", c.Summary)
	}

	switch {
	case c.Usage != "":
		fmt.Fprintf(w, "Usage:\n  %s\n", c.Usage)
	case len(c.Subcommands) > 0:
		fmt.Fprintf(w, "Usage:\n  %s <command> [flags]\n", path)
	default:
		fmt.Fprintf(w, "Usage:\n  %s [flags]\n", path)
	}

	if len(c.Subcommands) > 0 {
		fmt.Fprintf(w, "\nCommands:\n")
		tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
		for _, sub := range c.Subcommands {
			fmt.Fprintf(tw, "  %s\t%s\n", sub.Name, sub.Summary)
		}
		tw.Flush()
	}

	if c.Flags != nil {
		flagSet := pflag.NewFlagSet(path, pflag.ContinueOnError)
		c.Flags(flagSet)
		var flagHelp strings.Builder
		flagSet.SetOutput(&flagHelp)
		flagSet.PrintDefaults()
		if flagHelp.Len() > 0 {
			fmt.Fprintf(w, "\nFlags:\n%s", flagHelp.String())
		}
	}
}

func isHelpFlag(arg string) bool {
	return arg == "-h" || arg == "--help" || arg == "help"
}
