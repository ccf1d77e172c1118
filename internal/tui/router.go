package tui

import (
	"strconv"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// Route paths.
const (
	PathLogin    = "/login"
	PathSignup   = "/signup"
	PathProjects = "/projects"
)

// ProjectPath returns the route of a project page.
func ProjectPath(id int64) string {
	return PathProjects + "/" + strconv.FormatInt(id, 10)
}

// IssuePath returns the route of an issue page.
func IssuePath(id int64) string {
	return "/issues/" + strconv.FormatInt(id, 10)
}

// navigateMsg asks the model to switch routes. It is how navigation started
// outside the event loop reaches Update.
type navigateMsg struct {
	path string
}

// Router tracks the current route. It satisfies client.Navigator, so the
// client's unauthenticated callback can read the location and request a
// redirect from whatever goroutine the failing request ran on.
type Router struct {
	mu       sync.Mutex
	location string
	send     func(tea.Msg)
}

func NewRouter(initial string) *Router {
	return &Router{location: initial}
}

// Attach connects the router to a running program. Until then Navigate only
// records the location.
func (r *Router) Attach(p *tea.Program) {
	r.AttachFunc(p.Send)
}

// AttachFunc is Attach for anything that accepts messages.
func (r *Router) AttachFunc(send func(tea.Msg)) {
	r.mu.Lock()
	r.send = send
	r.mu.Unlock()
}

func (r *Router) Location() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.location
}

// Set records a route change made inside Update.
func (r *Router) Set(path string) {
	r.mu.Lock()
	r.location = path
	r.mu.Unlock()
}

// Navigate records path and posts a navigateMsg to the program. It must not
// be called from Update, where Send would block the event loop.
func (r *Router) Navigate(path string) {
	r.mu.Lock()
	r.location = path
	send := r.send
	r.mu.Unlock()

	if send != nil {
		send(navigateMsg{path: path})
	}
}

// View identifies a screen.
type View int

const (
	ViewLogin View = iota
	ViewSignup
	ViewProjects
	ViewProject
	ViewIssue
)

// parseRoute maps a path to its view and resource ID. Unknown paths fall
// back to the project list.
func parseRoute(path string) (View, int64) {
	switch path {
	case PathLogin:
		return ViewLogin, 0
	case PathSignup:
		return ViewSignup, 0
	case PathProjects:
		return ViewProjects, 0
	}

	if rest, ok := strings.CutPrefix(path, PathProjects+"/"); ok {
		if id, err := strconv.ParseInt(rest, 10, 64); err == nil {
			return ViewProject, id
		}
	}
	if rest, ok := strings.CutPrefix(path, "/issues/"); ok {
		if id, err := strconv.ParseInt(rest, 10, 64); err == nil {
			return ViewIssue, id
		}
	}
	return ViewProjects, 0
}
