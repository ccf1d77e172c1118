package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/iammorganparry/issuehub/internal/client"
	"github.com/iammorganparry/issuehub/internal/issuehub"
)

const issuesPerPage = 20

// Options wires the model to the API.
type Options struct {
	Hub     *issuehub.Client
	Account *issuehub.Account
	Router  *Router

	// LoginPath is the route the unauthenticated callback navigates to.
	// Defaults to PathLogin.
	LoginPath string

	Context context.Context
	Now     func() time.Time
}

type flashKind int

const (
	flashInfo flashKind = iota
	flashSuccess
	flashError
)

// Model is the root bubbletea model. Every screen is a route; fetches run as
// commands and report back through the *Msg types below.
type Model struct {
	ctx       context.Context
	hub       *issuehub.Client
	account   *issuehub.Account
	router    *Router
	loginPath string
	now       func() time.Time

	// Dimensions
	width  int
	height int
	ready  bool

	keys     KeyMap
	showHelp bool

	// Route state
	path string
	view View
	id   int64
	user *issuehub.User

	loading   bool
	flash     string
	flashKind flashKind

	// Active form. Login and signup always have one; elsewhere it is an
	// overlay opened by an action key.
	form *form

	// Project list
	projects []issuehub.Project
	cursor   int

	// Project page
	project       *issuehub.ProjectDetail
	page          *issuehub.IssuePage
	filter        issuehub.IssueFilter
	filterProject int64

	// Issue page
	issue         *issuehub.Issue
	issueProject  *issuehub.ProjectDetail
	comments      []issuehub.Comment
	confirmDelete bool
	viewport      viewport.Model
}

// Message types
type restoredMsg struct {
	user *issuehub.User
	err  error
}

type signedInMsg struct {
	user *issuehub.User
	err  error
}

type signedOutMsg struct {
	err error
}

type projectsLoadedMsg struct {
	path     string
	projects []issuehub.Project
	err      error
}

type projectLoadedMsg struct {
	path    string
	project *issuehub.ProjectDetail
	page    *issuehub.IssuePage
	err     error
}

type issuesLoadedMsg struct {
	path string
	page *issuehub.IssuePage
	err  error
}

type issueLoadedMsg struct {
	path     string
	issue    *issuehub.Issue
	project  *issuehub.ProjectDetail
	comments []issuehub.Comment
	err      error
}

// mutationMsg reports a write. On success the model shows flash and moves to
// next, or reloads the current route when next is empty.
type mutationMsg struct {
	flash string
	next  string
	err   error
}

// inputError is a form problem caught before any request is made.
type inputError string

func (e inputError) Error() string { return string(e) }

// NewRootModel creates the root model. The starting route is the router's
// location; it is shown once the stored session has been restored.
func NewRootModel(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	router := opts.Router
	if router == nil {
		router = NewRouter(PathProjects)
	}
	loginPath := opts.LoginPath
	if loginPath == "" {
		loginPath = PathLogin
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	m := Model{
		ctx:       ctx,
		hub:       opts.Hub,
		account:   opts.Account,
		router:    router,
		loginPath: loginPath,
		now:       now,
		keys:      DefaultKeyMap(),
		path:      router.Location(),
		loading:   true,
		viewport:  viewport.New(80, 20),
	}
	m.view, m.id = m.route(m.path)
	return m
}

// Init restores the stored session before showing anything.
func (m Model) Init() tea.Cmd {
	return m.restore()
}

// route resolves a path, honouring a custom login path.
func (m Model) route(path string) (View, int64) {
	if path == m.loginPath {
		return ViewLogin, 0
	}
	return parseRoute(path)
}

// Commands

func (m Model) restore() tea.Cmd {
	account, ctx := m.account, m.ctx
	return func() tea.Msg {
		user, err := account.Restore(ctx)
		return restoredMsg{user: user, err: err}
	}
}

func (m Model) signIn(email, password string) tea.Cmd {
	account, ctx := m.account, m.ctx
	return func() tea.Msg {
		if email == "" || password == "" {
			return signedInMsg{err: inputError("Email and password are required")}
		}
		user, err := account.SignIn(ctx, email, password)
		return signedInMsg{user: user, err: err}
	}
}

func (m Model) signUp(name, email, password string) tea.Cmd {
	account, ctx := m.account, m.ctx
	return func() tea.Msg {
		if name == "" || email == "" || password == "" {
			return signedInMsg{err: inputError("Name, email and password are required")}
		}
		if len(password) < 8 {
			return signedInMsg{err: inputError("Password must be at least 8 characters")}
		}
		user, err := account.SignUp(ctx, name, email, password)
		return signedInMsg{user: user, err: err}
	}
}

func (m Model) signOut() tea.Cmd {
	account, ctx := m.account, m.ctx
	return func() tea.Msg {
		return signedOutMsg{err: account.SignOut(ctx)}
	}
}

func (m Model) loadProjects() tea.Cmd {
	hub, ctx, path := m.hub, m.ctx, m.path
	return func() tea.Msg {
		projects, err := hub.ListProjects(ctx)
		return projectsLoadedMsg{path: path, projects: projects, err: err}
	}
}

func (m Model) loadProject(id int64) tea.Cmd {
	hub, ctx, path, filter := m.hub, m.ctx, m.path, m.filter
	return func() tea.Msg {
		project, err := hub.GetProject(ctx, id)
		if err != nil {
			return projectLoadedMsg{path: path, err: err}
		}
		page, err := hub.ListIssues(ctx, id, filter)
		return projectLoadedMsg{path: path, project: project, page: page, err: err}
	}
}

func (m Model) loadIssues() tea.Cmd {
	hub, ctx, path, filter, id := m.hub, m.ctx, m.path, m.filter, m.id
	return func() tea.Msg {
		page, err := hub.ListIssues(ctx, id, filter)
		return issuesLoadedMsg{path: path, page: page, err: err}
	}
}

func (m Model) loadIssue(id int64) tea.Cmd {
	hub, ctx, path := m.hub, m.ctx, m.path
	return func() tea.Msg {
		issue, err := hub.GetIssue(ctx, id)
		if err != nil {
			return issueLoadedMsg{path: path, err: err}
		}
		project, err := hub.GetProject(ctx, issue.ProjectID)
		if err != nil {
			return issueLoadedMsg{path: path, err: err}
		}
		comments, err := hub.ListComments(ctx, id)
		return issueLoadedMsg{path: path, issue: issue, project: project, comments: comments, err: err}
	}
}

// mutate runs fn as a command.
func (m Model) mutate(fn func(ctx context.Context) mutationMsg) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return fn(ctx)
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.viewport.Width = max(msg.Width-4, 20)
		m.viewport.Height = max(m.bodyHeight()-2, 3)
		if m.issue != nil {
			m.viewport.SetContent(m.issueContent())
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case navigateMsg:
		if msg.path == m.loginPath {
			return m.expire()
		}
		return m.navigate(msg.path)

	case restoredMsg:
		m.loading = false
		switch {
		case msg.user != nil:
			m.user = msg.user
			if msg.err != nil {
				m.setFlash(flashError, "Offline: showing your cached profile")
			}
			if m.view == ViewLogin || m.view == ViewSignup {
				return m.navigate(PathProjects)
			}
			return m.navigate(m.path)
		case client.IsUnauthorized(msg.err):
			return m.expire()
		case msg.err != nil:
			m.setFlash(flashError, errorText(msg.err, "Could not restore your session"))
		}
		if m.view == ViewSignup {
			return m.navigate(PathSignup)
		}
		return m.navigate(m.loginPath)

	case signedInMsg:
		m.loading = false
		if msg.err != nil {
			text := errorText(msg.err, "Sign in failed")
			if m.form != nil {
				m.form.err = text
			} else {
				m.setFlash(flashError, text)
			}
			return m, nil
		}
		m.user = msg.user
		m.setFlash(flashSuccess, "Signed in as "+msg.user.Name)
		return m.navigate(PathProjects)

	case signedOutMsg:
		m.user = nil
		if msg.err != nil {
			m.setFlash(flashError, "Sign out failed: "+msg.err.Error())
		} else {
			m.setFlash(flashInfo, "Signed out")
		}
		return m.navigate(m.loginPath)

	case projectsLoadedMsg:
		if msg.path != m.path {
			return m, nil
		}
		m.loading = false
		if msg.err != nil {
			return m.fail(msg.err, "Could not load projects")
		}
		m.projects = msg.projects
		m.cursor = clamp(m.cursor, len(m.projects))
		return m, nil

	case projectLoadedMsg:
		if msg.path != m.path {
			return m, nil
		}
		m.loading = false
		if msg.err != nil {
			return m.fail(msg.err, "Could not load project")
		}
		m.project = msg.project
		m.page = msg.page
		m.cursor = clamp(m.cursor, len(m.page.Issues))
		return m, nil

	case issuesLoadedMsg:
		if msg.path != m.path {
			return m, nil
		}
		m.loading = false
		if msg.err != nil {
			return m.fail(msg.err, "Could not load issues")
		}
		m.page = msg.page
		m.cursor = clamp(m.cursor, len(m.page.Issues))
		return m, nil

	case issueLoadedMsg:
		if msg.path != m.path {
			return m, nil
		}
		m.loading = false
		if msg.err != nil {
			return m.fail(msg.err, "Could not load issue")
		}
		m.issue = msg.issue
		m.issueProject = msg.project
		m.comments = msg.comments
		m.viewport.SetContent(m.issueContent())
		return m, nil

	case searchMsg:
		m.form = nil
		m.filter.Query = msg.query
		return m.refilter()

	case mutationMsg:
		m.loading = false
		if msg.err != nil {
			if client.IsUnauthorized(msg.err) {
				return m.expire()
			}
			text := errorText(msg.err, "Request failed")
			if m.form != nil {
				m.form.err = text
			} else {
				m.setFlash(flashError, text)
			}
			return m, nil
		}
		m.form = nil
		m.confirmDelete = false
		m.setFlash(flashSuccess, msg.flash)
		next := msg.next
		if next == "" {
			next = m.path
		}
		return m.navigate(next)
	}

	// Cursor blink and other input housekeeping
	if m.form != nil {
		var cmd tea.Cmd
		m.form.inputs[m.form.focus], cmd = m.form.inputs[m.form.focus].Update(msg)
		return m, cmd
	}
	return m, nil
}

// navigate switches to path and starts loading it.
func (m Model) navigate(path string) (Model, tea.Cmd) {
	m.path = path
	m.router.Set(path)
	m.view, m.id = m.route(path)
	m.form = nil
	m.confirmDelete = false
	m.showHelp = false

	switch m.view {
	case ViewLogin:
		m.user = nil
		m.loading = false
		m.form = m.loginForm()
		return m, textinput.Blink

	case ViewSignup:
		m.loading = false
		m.form = m.signupForm()
		return m, textinput.Blink

	case ViewProjects:
		m.loading = true
		return m, m.loadProjects()

	case ViewProject:
		if m.filterProject != m.id {
			m.filterProject = m.id
			m.filter = issuehub.IssueFilter{Sort: issuehub.SortCreated, Page: 1, PageSize: issuesPerPage}
			m.cursor = 0
			m.project = nil
			m.page = nil
		}
		m.loading = true
		return m, m.loadProject(m.id)

	case ViewIssue:
		if m.issue == nil || m.issue.ID != m.id {
			m.issue = nil
			m.issueProject = nil
			m.comments = nil
			m.viewport.GotoTop()
		}
		m.loading = true
		return m, m.loadIssue(m.id)
	}
	return m, nil
}

// expire handles a lost session. Both the 401 result and the callback's
// navigateMsg land here, so it does nothing once the login screen is up.
func (m Model) expire() (Model, tea.Cmd) {
	if m.view == ViewLogin && m.form != nil {
		return m, nil
	}
	m, cmd := m.navigate(m.loginPath)
	m.setFlash(flashError, "Your session has expired. Please sign in again.")
	return m, cmd
}

// fail reports a failed fetch.
func (m Model) fail(err error, fallback string) (Model, tea.Cmd) {
	if client.IsUnauthorized(err) {
		return m.expire()
	}
	m.setFlash(flashError, errorText(err, fallback))
	return m, nil
}

func (m *Model) setFlash(kind flashKind, text string) {
	m.flashKind = kind
	m.flash = text
}

// errorText picks the message to show for err.
func errorText(err error, fallback string) string {
	var inErr inputError
	if errors.As(err, &inErr) {
		return string(inErr)
	}
	if client.IsNetwork(err) {
		return "Cannot reach the server"
	}
	return client.Message(err, fallback)
}

// Key handling

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}

	if m.showHelp {
		if key.Matches(msg, m.keys.Help) || msg.Type == tea.KeyEsc {
			m.showHelp = false
		}
		return m, nil
	}

	if m.form != nil {
		return m.handleFormKey(msg)
	}

	if m.confirmDelete {
		m.confirmDelete = false
		if msg.String() == "y" && m.issue != nil {
			m.loading = true
			return m, m.deleteIssue()
		}
		m.setFlash(flashInfo, "Delete cancelled")
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil
	case key.Matches(msg, m.keys.Refresh):
		m.flash = ""
		return m.navigate(m.path)
	case key.Matches(msg, m.keys.SignOut):
		return m, m.signOut()
	}

	switch m.view {
	case ViewProjects:
		return m.handleProjectsKey(msg)
	case ViewProject:
		return m.handleProjectKey(msg)
	case ViewIssue:
		return m.handleIssueKey(msg)
	}
	return m, nil
}

func (m Model) handleFormKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	auth := m.view == ViewLogin || m.view == ViewSignup

	switch {
	case msg.Type == tea.KeyEsc:
		if !auth {
			m.form = nil
		}
		return m, nil
	case auth && key.Matches(msg, m.keys.SwitchAuth):
		m.flash = ""
		if m.view == ViewLogin {
			return m.navigate(PathSignup)
		}
		return m.navigate(m.loginPath)
	}

	cmd := m.form.update(msg, m.keys)
	if cmd != nil && key.Matches(msg, m.keys.Submit) {
		m.loading = true
	}
	return m, cmd
}

func (m Model) handleProjectsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.cursor = clamp(m.cursor-1, len(m.projects))
	case key.Matches(msg, m.keys.Down):
		m.cursor = clamp(m.cursor+1, len(m.projects))
	case key.Matches(msg, m.keys.Open):
		if len(m.projects) > 0 {
			return m.navigate(ProjectPath(m.projects[m.cursor].ID))
		}
	case key.Matches(msg, m.keys.New):
		m.form = m.projectForm()
		return m, textinput.Blink
	}
	return m, nil
}

func (m Model) handleProjectKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var issues []issuehub.Issue
	if m.page != nil {
		issues = m.page.Issues
	}

	switch {
	case key.Matches(msg, m.keys.Back):
		return m.navigate(PathProjects)
	case key.Matches(msg, m.keys.Up):
		m.cursor = clamp(m.cursor-1, len(issues))
	case key.Matches(msg, m.keys.Down):
		m.cursor = clamp(m.cursor+1, len(issues))
	case key.Matches(msg, m.keys.Open):
		if len(issues) > 0 {
			return m.navigate(IssuePath(issues[m.cursor].ID))
		}
	case key.Matches(msg, m.keys.New):
		if m.project != nil && m.userID() != 0 && m.project.RoleOf(m.userID()) != "" {
			m.form = m.issueForm()
			return m, textinput.Blink
		}
	case key.Matches(msg, m.keys.Member):
		if issuehub.PermissionsFor(m.project, nil, m.userID()).CanAddMember {
			m.form = m.memberForm()
			return m, textinput.Blink
		}
	case key.Matches(msg, m.keys.Search):
		m.form = m.searchForm()
		return m, textinput.Blink
	case key.Matches(msg, m.keys.Status):
		m.filter.Status = nextStatusFilter(m.filter.Status)
		return m.refilter()
	case key.Matches(msg, m.keys.Priority):
		m.filter.Priority = nextPriorityFilter(m.filter.Priority)
		return m.refilter()
	case key.Matches(msg, m.keys.Sort):
		m.filter.Sort = nextSort(m.filter.Sort)
		return m.refilter()
	case key.Matches(msg, m.keys.NextPage):
		if m.page != nil && m.filter.Page < m.page.Pages() {
			m.filter.Page++
			m.cursor = 0
			m.loading = true
			return m, m.loadIssues()
		}
	case key.Matches(msg, m.keys.PrevPage):
		if m.filter.Page > 1 {
			m.filter.Page--
			m.cursor = 0
			m.loading = true
			return m, m.loadIssues()
		}
	}
	return m, nil
}

// refilter reloads the first page after a filter change.
func (m Model) refilter() (Model, tea.Cmd) {
	m.filter.Page = 1
	m.cursor = 0
	m.loading = true
	return m, m.loadIssues()
}

func (m Model) handleIssueKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.issue == nil {
		if key.Matches(msg, m.keys.Back) {
			return m.navigate(PathProjects)
		}
		return m, nil
	}
	perms := m.permissions()

	switch {
	case key.Matches(msg, m.keys.Back):
		return m.navigate(ProjectPath(m.issue.ProjectID))
	case key.Matches(msg, m.keys.Comment):
		if perms.CanComment {
			m.form = m.commentForm()
			return m, textinput.Blink
		}
	case key.Matches(msg, m.keys.Edit):
		if perms.CanEditText {
			m.form = m.editForm()
			return m, textinput.Blink
		}
	case key.Matches(msg, m.keys.Assign):
		if perms.CanTriage {
			m.form = m.assignForm()
			return m, textinput.Blink
		}
	case key.Matches(msg, m.keys.Status):
		if perms.CanTriage {
			next := nextStatus(m.issue.Status)
			return m, m.updateIssue(issuehub.IssueUpdate{Status: &next}, "Status set to "+next.Label())
		}
	case key.Matches(msg, m.keys.Priority):
		if perms.CanTriage {
			next := nextPriority(m.issue.Priority)
			return m, m.updateIssue(issuehub.IssueUpdate{Priority: &next}, "Priority set to "+string(next))
		}
	case key.Matches(msg, m.keys.Delete):
		if perms.CanDelete {
			m.confirmDelete = true
			return m, nil
		}
	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) userID() int64 {
	if m.user == nil {
		return 0
	}
	return m.user.ID
}

// permissions decides which issue actions to offer.
func (m Model) permissions() issuehub.Permissions {
	return issuehub.PermissionsFor(m.issueProject, m.issue, m.userID())
}

// Actions

func (m Model) updateIssue(update issuehub.IssueUpdate, flash string) tea.Cmd {
	hub, id := m.hub, m.issue.ID
	return m.mutate(func(ctx context.Context) mutationMsg {
		_, err := hub.UpdateIssue(ctx, id, update)
		return mutationMsg{flash: flash, err: err}
	})
}

func (m Model) deleteIssue() tea.Cmd {
	hub, issue := m.hub, *m.issue
	return m.mutate(func(ctx context.Context) mutationMsg {
		err := hub.DeleteIssue(ctx, issue.ID)
		return mutationMsg{
			flash: fmt.Sprintf("Deleted issue #%d", issue.ID),
			next:  ProjectPath(issue.ProjectID),
			err:   err,
		}
	})
}

// Forms

func (m Model) loginForm() *form {
	return newForm("Sign in to IssueHub", func(v []string) tea.Cmd {
		return m.signIn(v[0], v[1])
	},
		field{label: "Email", placeholder: "you@example.com"},
		field{label: "Password", secret: true},
	)
}

func (m Model) signupForm() *form {
	return newForm("Create an account", func(v []string) tea.Cmd {
		return m.signUp(v[0], v[1], v[2])
	},
		field{label: "Name", limit: 100},
		field{label: "Email", placeholder: "you@example.com"},
		field{label: "Password", placeholder: "at least 8 characters", secret: true},
	)
}

func (m Model) projectForm() *form {
	hub := m.hub
	return newForm("New project", func(v []string) tea.Cmd {
		return m.mutate(func(ctx context.Context) mutationMsg {
			if v[0] == "" || v[1] == "" {
				return mutationMsg{err: inputError("Name and key are required")}
			}
			req := issuehub.ProjectCreate{Name: v[0], Key: strings.ToUpper(v[1])}
			if v[2] != "" {
				req.Description = &v[2]
			}
			project, err := hub.CreateProject(ctx, req)
			if err != nil {
				return mutationMsg{err: err}
			}
			return mutationMsg{flash: "Created project " + project.Key, next: ProjectPath(project.ID)}
		})
	},
		field{label: "Name", limit: 100},
		field{label: "Key", placeholder: "API", limit: 10},
		field{label: "Description (optional)"},
	)
}

func (m Model) memberForm() *form {
	hub, projectID := m.hub, m.project.ID
	return newForm("Add member to "+m.project.Name, func(v []string) tea.Cmd {
		return m.mutate(func(ctx context.Context) mutationMsg {
			role := issuehub.Role(strings.ToLower(v[1]))
			if role == "" {
				role = issuehub.RoleMember
			}
			if v[0] == "" || !role.Valid() {
				return mutationMsg{err: inputError("Enter an email and a role of member or maintainer")}
			}
			member, err := hub.AddMember(ctx, projectID, issuehub.MemberAdd{Email: v[0], Role: role})
			if err != nil {
				return mutationMsg{err: err}
			}
			return mutationMsg{flash: fmt.Sprintf("Added %s as %s", member.User.Name, member.Role)}
		})
	},
		field{label: "Email"},
		field{label: "Role", value: string(issuehub.RoleMember)},
	)
}

func (m Model) issueForm() *form {
	hub, projectID := m.hub, m.project.ID
	return newForm("New issue in "+m.project.Key, func(v []string) tea.Cmd {
		return m.mutate(func(ctx context.Context) mutationMsg {
			priority := issuehub.Priority(strings.ToLower(v[2]))
			if v[0] == "" {
				return mutationMsg{err: inputError("Title is required")}
			}
			if !priority.Valid() {
				return mutationMsg{err: inputError("Priority must be low, medium, high or critical")}
			}
			req := issuehub.IssueCreate{Title: v[0], Priority: priority}
			if v[1] != "" {
				req.Description = &v[1]
			}
			issue, err := hub.CreateIssue(ctx, projectID, req)
			if err != nil {
				return mutationMsg{err: err}
			}
			return mutationMsg{flash: fmt.Sprintf("Created issue #%d", issue.ID), next: IssuePath(issue.ID)}
		})
	},
		field{label: "Title", limit: 200},
		field{label: "Description (optional)", limit: 5000},
		field{label: "Priority", value: string(issuehub.PriorityMedium)},
	)
}

func (m Model) editForm() *form {
	return newForm(fmt.Sprintf("Edit issue #%d", m.issue.ID), func(v []string) tea.Cmd {
		if v[0] == "" {
			return m.mutate(func(context.Context) mutationMsg {
				return mutationMsg{err: inputError("Title is required")}
			})
		}
		return m.updateIssue(issuehub.IssueUpdate{Title: &v[0], Description: &v[1]}, "Issue updated")
	},
		field{label: "Title", value: m.issue.Title, limit: 200},
		field{label: "Description", value: m.issue.DescriptionText(), limit: 5000},
	)
}

func (m Model) assignForm() *form {
	project := m.issueProject
	var current string
	if m.issue.Assignee != nil {
		current = m.issue.Assignee.Email
	}
	return newForm("Assign issue", func(v []string) tea.Cmd {
		if v[0] == "" {
			return m.updateIssue(issuehub.IssueUpdate{Unassign: true}, "Issue unassigned")
		}
		for _, member := range project.Members {
			if strings.EqualFold(member.User.Email, v[0]) {
				id := member.User.ID
				return m.updateIssue(issuehub.IssueUpdate{AssigneeID: &id}, "Assigned to "+member.User.Name)
			}
		}
		return m.mutate(func(context.Context) mutationMsg {
			return mutationMsg{err: inputError(v[0] + " is not a member of this project")}
		})
	},
		field{label: "Assignee email (empty to unassign)", value: current},
	)
}

func (m Model) commentForm() *form {
	hub, id := m.hub, m.issue.ID
	return newForm("Add a comment", func(v []string) tea.Cmd {
		return m.mutate(func(ctx context.Context) mutationMsg {
			if v[0] == "" {
				return mutationMsg{err: inputError("Comment cannot be empty")}
			}
			_, err := hub.CreateComment(ctx, id, v[0])
			return mutationMsg{flash: "Comment added", err: err}
		})
	},
		field{label: "Comment", limit: 5000},
	)
}

// searchForm edits the search text. Submitting only changes the filter.
func (m Model) searchForm() *form {
	return newForm("Search issues", func(v []string) tea.Cmd {
		return func() tea.Msg { return searchMsg{query: v[0]} }
	},
		field{label: "Title or description contains", value: m.filter.Query},
	)
}

type searchMsg struct {
	query string
}

// Filter cycling

func nextStatusFilter(s issuehub.Status) issuehub.Status {
	if s == "" {
		return issuehub.Statuses[0]
	}
	for i, v := range issuehub.Statuses {
		if v == s && i+1 < len(issuehub.Statuses) {
			return issuehub.Statuses[i+1]
		}
	}
	return ""
}

func nextPriorityFilter(p issuehub.Priority) issuehub.Priority {
	if p == "" {
		return issuehub.Priorities[0]
	}
	for i, v := range issuehub.Priorities {
		if v == p && i+1 < len(issuehub.Priorities) {
			return issuehub.Priorities[i+1]
		}
	}
	return ""
}

var sortOrder = []string{issuehub.SortCreated, issuehub.SortUpdated, issuehub.SortPriority, issuehub.SortStatus}

func nextSort(s string) string {
	for i, v := range sortOrder {
		if v == s {
			return sortOrder[(i+1)%len(sortOrder)]
		}
	}
	return sortOrder[0]
}

// nextStatus cycles an issue through the workflow, wrapping to open.
func nextStatus(s issuehub.Status) issuehub.Status {
	for i, v := range issuehub.Statuses {
		if v == s {
			return issuehub.Statuses[(i+1)%len(issuehub.Statuses)]
		}
	}
	return issuehub.StatusOpen
}

func nextPriority(p issuehub.Priority) issuehub.Priority {
	return issuehub.Priorities[(p.Rank()+1)%len(issuehub.Priorities)]
}

func clamp(i, n int) int {
	if n == 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// View rendering

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.helpView()
	}

	header := m.renderHeader()
	var body string
	switch m.view {
	case ViewLogin, ViewSignup:
		body = m.authView()
	case ViewProjects:
		body = m.projectsView()
	case ViewProject:
		body = m.projectView()
	case ViewIssue:
		body = m.issueView()
	}
	if m.form != nil && m.view != ViewLogin && m.view != ViewSignup {
		body = lipgloss.JoinVertical(lipgloss.Left, body, m.form.view(m.width))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		body,
		m.renderFlash(),
		m.renderStatusBar(),
	)
}

// bodyHeight leaves room for header (2 lines), flash and status bar.
func (m Model) bodyHeight() int {
	return m.height - 4
}

func (m Model) renderHeader() string {
	title := TitleStyle.Render("ISSUEHUB")
	crumb := DimStyle.Render("  " + m.breadcrumb())

	var who string
	if m.user != nil {
		who = lipgloss.NewStyle().Foreground(ColorSubtext).Render(m.user.Name + " <" + m.user.Email + ">")
	}

	gap := m.width - lipgloss.Width(title) - lipgloss.Width(crumb) - lipgloss.Width(who) - 2
	line := title + crumb + strings.Repeat(" ", max(gap, 1)) + who
	return lipgloss.NewStyle().PaddingLeft(1).Render(line) + "\n"
}

func (m Model) breadcrumb() string {
	switch m.view {
	case ViewProjects:
		return "Projects"
	case ViewProject:
		if m.project != nil {
			return "Projects › " + m.project.Name
		}
		return "Projects › …"
	case ViewIssue:
		if m.issue != nil && m.issueProject != nil {
			return fmt.Sprintf("Projects › %s › %s-%d", m.issueProject.Name, m.issueProject.Key, m.issue.ID)
		}
		return "Projects › …"
	case ViewSignup:
		return "Sign up"
	default:
		return "Sign in"
	}
}

func (m Model) authView() string {
	if m.form == nil {
		return ""
	}
	other := "ctrl+t: create an account"
	if m.view == ViewSignup {
		other = "ctrl+t: back to sign in"
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.form.view(m.width), DimStyle.PaddingLeft(2).Render(other))
}

func (m Model) projectsView() string {
	var b strings.Builder
	b.WriteString(PanelTitleStyle.Render("Your projects"))
	b.WriteString("\n\n")

	if len(m.projects) == 0 {
		if m.loading {
			b.WriteString(DimStyle.Render("Loading projects..."))
		} else {
			b.WriteString(DimStyle.Render("No projects yet. Press n to create one."))
		}
	}
	for i, p := range m.projects {
		line := fmt.Sprintf("%-8s %-32s %s",
			p.Key,
			truncate(p.Name, 32),
			DimStyle.Render("created "+m.ago(p.CreatedAt.Time)),
		)
		b.WriteString(m.row(line, i == m.cursor))
		b.WriteString("\n")
	}
	return PanelStyle.Width(max(m.width-2, 20)).Height(max(m.bodyHeight()-2, 1)).Render(b.String())
}

func (m Model) projectView() string {
	if m.project == nil {
		return PanelStyle.Render(DimStyle.Render("Loading project..."))
	}
	p := m.project

	var b strings.Builder
	b.WriteString(PanelTitleStyle.Render(p.Name) + DimStyle.Render("  "+p.Key))
	b.WriteString("\n")
	if p.Description != nil && *p.Description != "" {
		b.WriteString(wrapText(*p.Description, max(m.width-6, 20)))
		b.WriteString("\n")
	}

	members := make([]string, 0, len(p.Members))
	for _, mem := range p.Members {
		name := mem.User.Name
		if mem.Role == issuehub.RoleMaintainer {
			name += " " + WarningStyle.Render("★")
		}
		members = append(members, name)
	}
	b.WriteString(DimStyle.Render("Members: ") + strings.Join(members, ", "))
	b.WriteString("\n\n")

	b.WriteString(m.filterLine())
	b.WriteString("\n\n")

	if m.page == nil || len(m.page.Issues) == 0 {
		if m.loading {
			b.WriteString(DimStyle.Render("Loading issues..."))
		} else {
			b.WriteString(DimStyle.Render("No issues match."))
		}
	} else {
		for i, issue := range m.page.Issues {
			b.WriteString(m.row(m.issueLine(p.Key, issue), i == m.cursor))
			b.WriteString("\n")
		}
	}
	return PanelStyle.Width(max(m.width-2, 20)).Height(max(m.bodyHeight()-2, 1)).Render(b.String())
}

func (m Model) filterLine() string {
	status := "any"
	if m.filter.Status != "" {
		status = m.filter.Status.Label()
	}
	priority := "any"
	if m.filter.Priority != "" {
		priority = string(m.filter.Priority)
	}
	parts := []string{
		"status: " + status,
		"priority: " + priority,
		"sort: " + m.filter.Sort,
	}
	if m.filter.Query != "" {
		parts = append(parts, fmt.Sprintf("search: %q", m.filter.Query))
	}
	if m.page != nil {
		parts = append(parts, fmt.Sprintf("page %d/%d · %s issues",
			m.filter.Page, m.page.Pages(), humanize.Comma(int64(m.page.Total))))
	}
	return DimStyle.Render(strings.Join(parts, " · "))
}

func (m Model) issueLine(projectKey string, issue issuehub.Issue) string {
	ref := IssueKeyStyle.Render(fmt.Sprintf("%s-%-4d", projectKey, issue.ID))
	status := StatusStyle(issue.Status).Render(fmt.Sprintf("%-12s", issue.Status.Label()))
	priority := PriorityStyle(issue.Priority).Render(fmt.Sprintf("%-9s", issue.Priority))
	return fmt.Sprintf("%s %s %s %-40s %-16s %s",
		ref, status, priority,
		truncate(issue.Title, 40),
		truncate(issue.AssigneeName(), 16),
		DimStyle.Render(m.ago(issue.UpdatedAt.Time)),
	)
}

func (m Model) issueView() string {
	if m.issue == nil {
		return PanelStyle.Render(DimStyle.Render("Loading issue..."))
	}
	return PanelStyle.Render(m.viewport.View())
}

// issueContent renders the scrollable issue body with its comments.
func (m Model) issueContent() string {
	issue := m.issue
	width := max(m.viewport.Width-2, 20)

	var b strings.Builder
	b.WriteString(PanelTitleStyle.Render(fmt.Sprintf("#%d %s", issue.ID, issue.Title)))
	b.WriteString("\n")
	b.WriteString(StatusStyle(issue.Status).Render(issue.Status.Label()))
	b.WriteString(DimStyle.Render(" · "))
	b.WriteString(PriorityStyle(issue.Priority).Render(string(issue.Priority)))
	b.WriteString(DimStyle.Render(fmt.Sprintf(" · reported by %s %s · assigned to %s",
		issue.Reporter.Name, m.ago(issue.CreatedAt.Time), issue.AssigneeName())))
	b.WriteString("\n\n")

	if desc := issue.DescriptionText(); desc != "" {
		b.WriteString(wrapText(desc, width))
	} else {
		b.WriteString(DimStyle.Render("No description."))
	}
	b.WriteString("\n\n")

	b.WriteString(PanelTitleStyle.Render(fmt.Sprintf("Comments (%d)", len(m.comments))))
	b.WriteString("\n")
	for _, c := range m.comments {
		b.WriteString("\n")
		b.WriteString(CommentAuthorStyle.Render(c.Author.Name))
		b.WriteString(DimStyle.Render(" " + m.ago(c.CreatedAt.Time)))
		b.WriteString("\n")
		b.WriteString(wrapText(c.Body, width))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderFlash() string {
	switch {
	case m.confirmDelete && m.issue != nil:
		return ErrorStyle.PaddingLeft(1).Render(fmt.Sprintf("Delete issue #%d? y to confirm, any other key to cancel", m.issue.ID))
	case m.flash == "":
		return ""
	case m.flashKind == flashError:
		return ErrorStyle.PaddingLeft(1).Render(m.flash)
	case m.flashKind == flashSuccess:
		return SuccessStyle.PaddingLeft(1).Render(m.flash)
	default:
		return WarningStyle.PaddingLeft(1).Render(m.flash)
	}
}

func (m Model) renderStatusBar() string {
	var status string
	if m.loading {
		status = WarningStyle.Render("● Loading")
	} else {
		status = SuccessStyle.Render("○ Ready")
	}

	mutedStyle := lipgloss.NewStyle().Foreground(ColorMuted)
	keyStyle := lipgloss.NewStyle().Foreground(ColorText)
	hint := func(bindings ...key.Binding) string {
		var s string
		for _, b := range bindings {
			h := b.Help()
			s += mutedStyle.Render(" │ ") + keyStyle.Render(h.Key) + mutedStyle.Render(" "+h.Desc)
		}
		return s
	}

	var help string
	switch {
	case m.form != nil:
		help = hint(m.keys.Submit, m.keys.NextField)
	case m.view == ViewProjects:
		help = hint(m.keys.Open, m.keys.New, m.keys.Refresh, m.keys.SignOut, m.keys.Quit)
	case m.view == ViewProject:
		bindings := []key.Binding{m.keys.Open, m.keys.New, m.keys.Status, m.keys.Priority, m.keys.Sort, m.keys.Search}
		if issuehub.PermissionsFor(m.project, nil, m.userID()).CanAddMember {
			bindings = append(bindings, m.keys.Member)
		}
		help = hint(append(bindings, m.keys.Back, m.keys.Help)...)
	case m.view == ViewIssue:
		perms := m.permissions()
		var bindings []key.Binding
		if perms.CanComment {
			bindings = append(bindings, m.keys.Comment)
		}
		if perms.CanEditText {
			bindings = append(bindings, m.keys.Edit)
		}
		if perms.CanTriage {
			bindings = append(bindings, m.keys.Status, m.keys.Priority, m.keys.Assign)
		}
		if perms.CanDelete {
			bindings = append(bindings, m.keys.Delete)
		}
		help = hint(append(bindings, m.keys.Back, m.keys.Help)...)
	}

	return StatusBarStyle.Render(status + help)
}

func (m Model) helpView() string {
	title := HelpTitleStyle.Render("Keyboard Shortcuts")

	var lines []string
	for _, group := range m.keys.FullHelp() {
		for _, b := range group {
			h := b.Help()
			lines = append(lines, HelpKeyStyle.Render(fmt.Sprintf("%-10s", h.Key))+HelpDescStyle.Render(h.Desc))
		}
		lines = append(lines, "")
	}

	content := title + "\n\n" + strings.Join(lines, "\n") + HelpDescStyle.Render("Press ? or Esc to close")
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, HelpStyle.Render(content))
}

func (m Model) row(line string, selected bool) string {
	if selected {
		return SelectedStyle.Render("❯ " + line)
	}
	return RowStyle.Render("  " + line)
}

func (m Model) ago(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return humanize.RelTime(t, m.now(), "ago", "from now")
}

// truncate shortens s to n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

// wrapText wraps text at word boundaries.
func wrapText(text string, width int) string {
	return lipgloss.NewStyle().Width(width).Render(text)
}
