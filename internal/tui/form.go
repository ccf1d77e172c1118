package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// field describes one input of a form.
type field struct {
	label       string
	placeholder string
	value       string
	secret      bool
	limit       int
}

// form is a stack of text inputs submitted together. submit receives the
// trimmed values in field order.
type form struct {
	title  string
	labels []string
	inputs []textinput.Model
	focus  int
	err    string
	submit func(values []string) tea.Cmd
}

func newForm(title string, submit func([]string) tea.Cmd, fields ...field) *form {
	f := &form{title: title, submit: submit}
	for i, fd := range fields {
		ti := textinput.New()
		ti.Prompt = "❯ "
		ti.PromptStyle = InputPromptStyle
		ti.Placeholder = fd.placeholder
		ti.SetValue(fd.value)
		ti.CharLimit = 500
		if fd.limit > 0 {
			ti.CharLimit = fd.limit
		}
		ti.Width = 50
		if fd.secret {
			ti.EchoMode = textinput.EchoPassword
			ti.EchoCharacter = '•'
		}
		if i == 0 {
			ti.Focus()
		}
		f.labels = append(f.labels, fd.label)
		f.inputs = append(f.inputs, ti)
	}
	return f
}

func (f *form) values() []string {
	out := make([]string, len(f.inputs))
	for i, in := range f.inputs {
		out[i] = strings.TrimSpace(in.Value())
	}
	return out
}

func (f *form) setFocus(i int) {
	f.inputs[f.focus].Blur()
	f.focus = (i + len(f.inputs)) % len(f.inputs)
	f.inputs[f.focus].Focus()
}

// update routes a key press. Enter on the last field submits; on earlier
// fields it advances.
func (f *form) update(msg tea.KeyMsg, keys KeyMap) tea.Cmd {
	switch {
	case key.Matches(msg, keys.Submit):
		if f.focus < len(f.inputs)-1 {
			f.setFocus(f.focus + 1)
			return nil
		}
		f.err = ""
		return f.submit(f.values())
	case key.Matches(msg, keys.NextField):
		f.setFocus(f.focus + 1)
		return nil
	case key.Matches(msg, keys.PrevField):
		f.setFocus(f.focus - 1)
		return nil
	}

	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return cmd
}

func (f *form) view(width int) string {
	var b strings.Builder
	b.WriteString(PanelTitleStyle.Render(f.title))
	b.WriteString("\n\n")
	for i, in := range f.inputs {
		b.WriteString(FormLabelStyle.Render(f.labels[i]))
		b.WriteString("\n")
		b.WriteString(in.View())
		b.WriteString("\n\n")
	}
	if f.err != "" {
		b.WriteString(ErrorStyle.Render(f.err))
		b.WriteString("\n")
	}
	b.WriteString(DimStyle.Render("enter submit · tab next field · esc cancel"))

	style := FormStyle
	if width > 0 {
		style = style.Width(min(width-4, 70))
	}
	return lipgloss.NewStyle().PaddingLeft(1).Render(style.Render(b.String()))
}
