package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/iammorganparry/issuehub/internal/issuehub"
	"github.com/iammorganparry/issuehub/internal/tui"
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(tui.ColorMagenta).Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	labelStyle  = lipgloss.NewStyle().Foreground(tui.ColorSubtext)
	titleStyle  = lipgloss.NewStyle().Bold(true)
)

// emit prints the last response body with --json, and calls human
// otherwise.
func (a *app) emit(human func(w io.Writer)) error {
	if !a.jsonOut {
		human(a.stdout)
		return nil
	}
	raw := a.raw.Last()
	if len(raw) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return fmt.Errorf("format response: %w", err)
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(a.stdout)
	return err
}

// emitValue is emit for output assembled from several responses; --json
// prints v itself.
func (a *app) emitValue(v any, human func(w io.Writer)) error {
	if !a.jsonOut {
		human(a.stdout)
		return nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.stdout, "%s\n", data)
	return err
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(tui.ColorBorder)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...)
}

func projectsTable(w io.Writer, projects []issuehub.Project) {
	if len(projects) == 0 {
		fmt.Fprintln(w, "No projects. Create one with `issuehub project create`.")
		return
	}
	t := newTable("ID", "KEY", "NAME", "CREATED")
	for _, p := range projects {
		t.Row(formatID(p.ID), p.Key, p.Name, ago(p.CreatedAt.Time))
	}
	fmt.Fprintln(w, t.Render())
}

func projectDetail(w io.Writer, p *issuehub.ProjectDetail) {
	fmt.Fprintf(w, "%s %s\n", titleStyle.Render(p.Name), labelStyle.Render("("+p.Key+")"))
	if p.Description != nil && *p.Description != "" {
		fmt.Fprintln(w, *p.Description)
	}
	fmt.Fprintln(w, labelStyle.Render("Created "+ago(p.CreatedAt.Time)))

	t := newTable("USER ID", "NAME", "EMAIL", "ROLE")
	for _, m := range p.Members {
		t.Row(formatID(m.User.ID), m.User.Name, m.User.Email, string(m.Role))
	}
	fmt.Fprintln(w, t.Render())
}

func issuesTable(w io.Writer, page *issuehub.IssuePage) {
	if len(page.Issues) == 0 {
		fmt.Fprintln(w, "No issues match.")
		return
	}
	t := newTable("ID", "STATUS", "PRIORITY", "TITLE", "ASSIGNEE", "UPDATED")
	for _, issue := range page.Issues {
		t.Row(
			formatID(issue.ID),
			tui.StatusStyle(issue.Status).Render(issue.Status.Label()),
			tui.PriorityStyle(issue.Priority).Render(string(issue.Priority)),
			issue.Title,
			issue.AssigneeName(),
			ago(issue.UpdatedAt.Time),
		)
	}
	fmt.Fprintln(w, t.Render())
	fmt.Fprintf(w, "Page %d of %d, %s issues\n", page.Page, page.Pages(), humanize.Comma(int64(page.Total)))
}

func issueDetail(w io.Writer, issue *issuehub.Issue, comments []issuehub.Comment) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("#%d %s", issue.ID, issue.Title)))
	fmt.Fprintf(w, "%s %s   %s %s\n",
		labelStyle.Render("Status:"), tui.StatusStyle(issue.Status).Render(issue.Status.Label()),
		labelStyle.Render("Priority:"), tui.PriorityStyle(issue.Priority).Render(string(issue.Priority)),
	)
	fmt.Fprintf(w, "%s %s   %s %s\n",
		labelStyle.Render("Reporter:"), issue.Reporter.Name,
		labelStyle.Render("Assignee:"), issue.AssigneeName(),
	)
	fmt.Fprintf(w, "%s %s   %s %s\n",
		labelStyle.Render("Created:"), ago(issue.CreatedAt.Time),
		labelStyle.Render("Updated:"), ago(issue.UpdatedAt.Time),
	)
	if desc := issue.DescriptionText(); desc != "" {
		fmt.Fprintf(w, "\n%s\n", desc)
	}
	if comments != nil {
		fmt.Fprintln(w)
		commentList(w, comments)
	}
}

func commentList(w io.Writer, comments []issuehub.Comment) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Comments (%d)", len(comments))))
	for _, c := range comments {
		fmt.Fprintf(w, "\n%s %s\n%s\n", tui.CommentAuthorStyle.Render(c.Author.Name), labelStyle.Render(ago(c.CreatedAt.Time)), c.Body)
	}
}

func formatID(v int64) string {
	return strconv.FormatInt(v, 10)
}

func ago(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}
