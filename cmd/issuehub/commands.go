package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/iammorganparry/issuehub/internal/client"
	"github.com/iammorganparry/issuehub/internal/config"
	"github.com/iammorganparry/issuehub/internal/issuehub"
	"github.com/iammorganparry/issuehub/internal/mcp"
	"github.com/iammorganparry/issuehub/internal/tui"
)

func rootCommand() *Command {
	return &Command{
		Name:    "issuehub",
		Summary: "IssueHub client. Run without a command to open the terminal UI.",
		Subcommands: []*Command{
			tuiCommand(),
			loginCommand(),
			signupCommand(),
			logoutCommand(),
			whoamiCommand(),
			projectsCommand(),
			projectCommand(),
			issuesCommand(),
			issueCommand(),
			commentsCommand(),
			commentCommand(),
			mcpCommand(),
			configCommand(),
		},
	}
}

func tuiCommand() *Command {
	return &Command{
		Name:    "tui",
		Summary: "Open the interactive terminal UI (default)",
		Run: func(ctx context.Context, a *app, args []string) error {
			router := tui.NewRouter(tui.PathProjects)
			a.onUnauthenticated = client.RedirectToLogin(router, a.cfg.LoginPath)

			model := tui.NewRootModel(tui.Options{
				Hub:       a.hub,
				Account:   a.account,
				Router:    router,
				LoginPath: a.cfg.LoginPath,
				Context:   ctx,
			})
			p := tea.NewProgram(model,
				tea.WithAltScreen(),
				tea.WithContext(ctx),
				tea.WithInput(a.stdin),
				tea.WithOutput(a.stdout),
			)
			router.Attach(p)

			if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return fmt.Errorf("tui: %w", err)
			}
			return nil
		},
	}
}

func mcpCommand() *Command {
	return &Command{
		Name:    "mcp",
		Summary: "Serve IssueHub tools over MCP on stdin/stdout",
		Run: func(ctx context.Context, a *app, args []string) error {
			// stdout carries the protocol, so the expiry hint goes to the log
			// and the tool result tells the agent what to do.
			a.onUnauthenticated = func(context.Context) {
				a.logger.Warn("mcp: session rejected, user must run issuehub login")
			}
			return mcp.NewServer(a.hub, a.logger, version).Run(ctx, a.stdin, a.stdout)
		},
	}
}

func configCommand() *Command {
	var path string
	var force bool
	return &Command{
		Name:    "config",
		Summary: "Manage the configuration file",
		Subcommands: []*Command{{
			Name:      "init",
			Summary:   "Write the effective configuration as YAML",
			NoSession: true,
			Flags: func(fs *pflag.FlagSet) {
				fs.StringVar(&path, "path", "", "file to write (default: the file issuehub reads)")
				fs.BoolVar(&force, "force", false, "overwrite an existing file")
			},
			Run: func(ctx context.Context, a *app, args []string) error {
				if path == "" {
					path = config.Path()
				}
				if _, err := os.Stat(path); err == nil && !force {
					return fmt.Errorf("%s already exists; use --force to overwrite", path)
				}
				if err := a.cfg.Save(path); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "Wrote %s\n", path)
				return nil
			},
		}},
		NoSession: true,
	}
}

// Projects

func projectsCommand() *Command {
	return &Command{
		Name:    "projects",
		Summary: "List your projects",
		Run: func(ctx context.Context, a *app, args []string) error {
			projects, err := a.hub.ListProjects(ctx)
			if err != nil {
				return err
			}
			return a.emit(func(w io.Writer) { projectsTable(w, projects) })
		},
	}
}

func projectCommand() *Command {
	var name, key, description string
	var email, role string
	return &Command{
		Name:    "project",
		Summary: "Show, create or add members to a project",
		Subcommands: []*Command{
			{
				Name:    "show",
				Summary: "Show a project and its members",
				Usage:   "issuehub project show <project-id>",
				Run: func(ctx context.Context, a *app, args []string) error {
					projectID, err := parseID(args, "project-id")
					if err != nil {
						return err
					}
					project, err := a.hub.GetProject(ctx, projectID)
					if err != nil {
						return err
					}
					return a.emit(func(w io.Writer) { projectDetail(w, project) })
				},
			},
			{
				Name:    "create",
				Summary: "Create a project; you become its maintainer",
				Flags: func(fs *pflag.FlagSet) {
					fs.StringVar(&name, "name", "", "project name")
					fs.StringVar(&key, "key", "", "short key, e.g. API")
					fs.StringVar(&description, "description", "", "description")
				},
				Run: func(ctx context.Context, a *app, args []string) error {
					if name == "" || key == "" {
						return errors.New("--name and --key are required")
					}
					req := issuehub.ProjectCreate{Name: name, Key: strings.ToUpper(key)}
					if description != "" {
						req.Description = &description
					}
					project, err := a.hub.CreateProject(ctx, req)
					if err != nil {
						return err
					}
					return a.emit(func(w io.Writer) {
						fmt.Fprintf(w, "Created project %s (id %d)\n", project.Key, project.ID)
					})
				},
			},
			{
				Name:    "add-member",
				Summary: "Add a user to a project (maintainers only)",
				Usage:   "issuehub project add-member <project-id> --email <email> [--role member|maintainer]",
				Flags: func(fs *pflag.FlagSet) {
					fs.StringVar(&email, "email", "", "email of the user to add")
					fs.StringVar(&role, "role", string(issuehub.RoleMember), "member or maintainer")
				},
				Run: func(ctx context.Context, a *app, args []string) error {
					projectID, err := parseID(args, "project-id")
					if err != nil {
						return err
					}
					r := issuehub.Role(role)
					if email == "" || !r.Valid() {
						return errors.New("--email is required and --role must be member or maintainer")
					}
					member, err := a.hub.AddMember(ctx, projectID, issuehub.MemberAdd{Email: email, Role: r})
					if err != nil {
						return err
					}
					return a.emit(func(w io.Writer) {
						fmt.Fprintf(w, "Added %s as %s\n", member.User.Name, member.Role)
					})
				},
			},
		},
	}
}

// Issues

func issuesCommand() *Command {
	var filter issuehub.IssueFilter
	var status, priority string
	return &Command{
		Name:    "issues",
		Summary: "List issues in a project",
		Usage:   "issuehub issues <project-id> [--status s] [--priority p] [--assignee id] [--q text] [--sort key] [--page n]",
		Flags: func(fs *pflag.FlagSet) {
			fs.StringVar(&filter.Query, "q", "", "search title and description")
			fs.StringVar(&status, "status", "", "open, in_progress, resolved or closed")
			fs.StringVar(&priority, "priority", "", "low, medium, high or critical")
			fs.Int64Var(&filter.AssigneeID, "assignee", 0, "assignee user id")
			fs.StringVar(&filter.Sort, "sort", "", "created_at, updated_at, priority or status")
			fs.IntVar(&filter.Page, "page", 0, "page number, from 1")
			fs.IntVar(&filter.PageSize, "page-size", 0, "issues per page, 1 to 100")
		},
		Run: func(ctx context.Context, a *app, args []string) error {
			projectID, err := parseID(args, "project-id")
			if err != nil {
				return err
			}
			filter.Status = issuehub.Status(status)
			filter.Priority = issuehub.Priority(priority)
			if status != "" && !filter.Status.Valid() {
				return fmt.Errorf("unknown status %q", status)
			}
			if priority != "" && !filter.Priority.Valid() {
				return fmt.Errorf("unknown priority %q", priority)
			}

			page, err := a.hub.ListIssues(ctx, projectID, filter)
			if err != nil {
				return err
			}
			return a.emit(func(w io.Writer) { issuesTable(w, page) })
		},
	}
}

func issueCommand() *Command {
	var (
		title, description, status, priority string
		assignee                              int64
		unassign                              bool
		updateFlags                           *pflag.FlagSet
	)
	return &Command{
		Name:    "issue",
		Summary: "Show, create, update or delete an issue",
		Subcommands: []*Command{
			{
				Name:    "show",
				Summary: "Show an issue with its comments",
				Usage:   "issuehub issue show <issue-id>",
				Run: func(ctx context.Context, a *app, args []string) error {
					issueID, err := parseID(args, "issue-id")
					if err != nil {
						return err
					}
					issue, err := a.hub.GetIssue(ctx, issueID)
					if err != nil {
						return err
					}
					comments, err := a.hub.ListComments(ctx, issueID)
					if err != nil {
						return err
					}
					view := struct {
						*issuehub.Issue
						Comments []issuehub.Comment `json:"comments"`
					}{issue, comments}
					return a.emitValue(view, func(w io.Writer) { issueDetail(w, issue, comments) })
				},
			},
			{
				Name:    "create",
				Summary: "Create an issue in a project",
				Usage:   "issuehub issue create <project-id> --title <title> [--description d] [--priority p] [--assignee id]",
				Flags: func(fs *pflag.FlagSet) {
					fs.StringVar(&title, "title", "", "issue title")
					fs.StringVar(&description, "description", "", "description")
					fs.StringVar(&priority, "priority", string(issuehub.PriorityMedium), "low, medium, high or critical")
					fs.Int64Var(&assignee, "assignee", 0, "assignee user id")
				},
				Run: func(ctx context.Context, a *app, args []string) error {
					projectID, err := parseID(args, "project-id")
					if err != nil {
						return err
					}
					if title == "" {
						return errors.New("--title is required")
					}
					req := issuehub.IssueCreate{Title: title, Priority: issuehub.Priority(priority)}
					if !req.Priority.Valid() {
						return fmt.Errorf("unknown priority %q", priority)
					}
					if description != "" {
						req.Description = &description
					}
					if assignee != 0 {
						req.AssigneeID = &assignee
					}
					issue, err := a.hub.CreateIssue(ctx, projectID, req)
					if err != nil {
						return err
					}
					return a.emit(func(w io.Writer) {
						fmt.Fprintf(w, "Created issue #%d %s\n", issue.ID, issue.Title)
					})
				},
			},
			{
				Name:    "update",
				Summary: "Change an issue; only the given flags are sent",
				Usage:   "issuehub issue update <issue-id> [--title t] [--description d] [--status s] [--priority p] [--assignee id | --unassign]",
				Flags: func(fs *pflag.FlagSet) {
					updateFlags = fs
					fs.StringVar(&title, "title", "", "new title")
					fs.StringVar(&description, "description", "", "new description")
					fs.StringVar(&status, "status", "", "open, in_progress, resolved or closed")
					fs.StringVar(&priority, "priority", "", "low, medium, high or critical")
					fs.Int64Var(&assignee, "assignee", 0, "assignee user id")
					fs.BoolVar(&unassign, "unassign", false, "clear the assignee")
				},
				Run: func(ctx context.Context, a *app, args []string) error {
					issueID, err := parseID(args, "issue-id")
					if err != nil {
						return err
					}

					var update issuehub.IssueUpdate
					if updateFlags.Changed("title") {
						update.Title = &title
					}
					if updateFlags.Changed("description") {
						update.Description = &description
					}
					if updateFlags.Changed("status") {
						s := issuehub.Status(status)
						if !s.Valid() {
							return fmt.Errorf("unknown status %q", status)
						}
						update.Status = &s
					}
					if updateFlags.Changed("priority") {
						p := issuehub.Priority(priority)
						if !p.Valid() {
							return fmt.Errorf("unknown priority %q", priority)
						}
						update.Priority = &p
					}
					if updateFlags.Changed("assignee") {
						update.AssigneeID = &assignee
					}
					update.Unassign = unassign
					if update.Empty() {
						return errors.New("nothing to update; pass at least one flag")
					}

					issue, err := a.hub.UpdateIssue(ctx, issueID, update)
					if err != nil {
						return err
					}
					return a.emit(func(w io.Writer) {
						fmt.Fprintf(w, "Updated issue #%d: %s, %s, %s\n",
							issue.ID, issue.Status.Label(), issue.Priority, issue.AssigneeName())
					})
				},
			},
			{
				Name:    "delete",
				Summary: "Delete an issue (maintainers only)",
				Usage:   "issuehub issue delete <issue-id>",
				Run: func(ctx context.Context, a *app, args []string) error {
					issueID, err := parseID(args, "issue-id")
					if err != nil {
						return err
					}
					if err := a.hub.DeleteIssue(ctx, issueID); err != nil {
						return err
					}
					if !a.jsonOut {
						fmt.Fprintf(a.stdout, "Deleted issue #%d\n", issueID)
					}
					return nil
				},
			},
		},
	}
}

// Comments

func commentsCommand() *Command {
	return &Command{
		Name:    "comments",
		Summary: "List the comments on an issue",
		Usage:   "issuehub comments <issue-id>",
		Run: func(ctx context.Context, a *app, args []string) error {
			issueID, err := parseID(args, "issue-id")
			if err != nil {
				return err
			}
			comments, err := a.hub.ListComments(ctx, issueID)
			if err != nil {
				return err
			}
			return a.emit(func(w io.Writer) { commentList(w, comments) })
		},
	}
}

func commentCommand() *Command {
	return &Command{
		Name:    "comment",
		Summary: "Comment on an issue",
		Usage:   "issuehub comment <issue-id> <text...>",
		Run: func(ctx context.Context, a *app, args []string) error {
			if len(args) < 2 {
				return errors.New("usage: issuehub comment <issue-id> <text...>")
			}
			issueID, err := parseID(args[:1], "issue-id")
			if err != nil {
				return err
			}
			comment, err := a.hub.CreateComment(ctx, issueID, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			return a.emit(func(w io.Writer) {
				fmt.Fprintf(w, "Comment %d added to issue #%d\n", comment.ID, issueID)
			})
		},
	}
}

// parseID reads the single positional ID argument.
func parseID(args []string, what string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected one <%s> argument", what)
	}
	v, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("<%s> must be a positive number, got %q", what, args[0])
	}
	return v, nil
}
