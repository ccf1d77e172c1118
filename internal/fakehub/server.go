// Package fakehub is an in-memory stand-in for the IssueHub REST backend.
// It speaks the same JSON contract, issues real HS256 tokens and enforces
// the member/maintainer rules, so the client, CLI and MCP server can be
// exercised end to end in tests and local demos. Nothing is persisted.
package fakehub

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
)

const defaultTokenTTL = 30 * time.Minute

// Options configures a Server. The zero value is usable.
type Options struct {
	// Secret signs tokens. A random secret is generated when empty.
	Secret []byte
	// TokenTTL is the lifetime of issued tokens. Defaults to 30 minutes.
	TokenTTL time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost. Tests pass bcrypt.MinCost.
	BcryptCost int
	Logger     *slog.Logger
	// Now overrides the clock.
	Now func() time.Time
}

// Server is the fake backend. It implements http.Handler; routes live
// under /api.
type Server struct {
	mu sync.Mutex
	db *data

	secret []byte
	ttl    time.Duration
	cost   int
	logger *slog.Logger
	now    func() time.Time
	router chi.Router

	obsMu    sync.Mutex
	observed []Request
	failures []failure
}

// New creates an empty Server.
func New(opts Options) *Server {
	s := &Server{
		db:     newData(),
		secret: opts.Secret,
		ttl:    opts.TokenTTL,
		cost:   opts.BcryptCost,
		logger: opts.Logger,
		now:    opts.Now,
	}
	if len(s.secret) == 0 {
		s.secret = make([]byte, 32)
		rand.Read(s.secret)
	}
	if s.ttl <= 0 {
		s.ttl = defaultTokenTTL
	}
	if s.cost == 0 {
		s.cost = bcrypt.DefaultCost
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(CORS)
	r.Use(RequestID)
	r.Use(Logger(s.logger))
	r.Use(Recovery(s.logger))
	r.Use(s.observe)
	r.Use(s.injectFailure)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/signup", s.signup)
		r.Post("/auth/login", s.login)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Get("/auth/me", s.me)

			r.Route("/projects", func(r chi.Router) {
				r.Get("/", s.listProjects)
				r.Post("/", s.createProject)
				r.Get("/{projectID}", s.getProject)
				r.Post("/{projectID}/members", s.addMember)
				r.Get("/{projectID}/issues", s.listIssues)
				r.Post("/{projectID}/issues", s.createIssue)
			})

			r.Route("/issues/{issueID}", func(r chi.Router) {
				r.Get("/", s.getIssue)
				r.Patch("/", s.updateIssue)
				r.Delete("/", s.deleteIssue)
				r.Get("/comments", s.listComments)
				r.Post("/comments", s.createComment)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Requests returns every request seen so far, oldest first.
func (s *Server) Requests() []Request {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	return append([]Request(nil), s.observed...)
}

// ResetRequests forgets observed requests.
func (s *Server) ResetRequests() {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observed = nil
}

// FailNext makes the next request, whatever its route, answer status with
// {"detail": detail}. Calls queue up.
func (s *Server) FailNext(status int, detail string) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.failures = append(s.failures, failure{status: status, detail: detail})
}

// CreateUser registers a user directly and returns its id.
func (s *Server) CreateUser(name, email, password string) (int64, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return 0, fmt.Errorf("fakehub: hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db.userByEmail(email) != nil {
		return 0, fmt.Errorf("fakehub: email %q already registered", email)
	}
	u := &userRecord{ID: s.db.id(), Name: name, Email: email, PasswordHash: hash, CreatedAt: s.now()}
	s.db.users[u.ID] = u
	return u.ID, nil
}

// CreateProject creates a project with maintainerID as its maintainer.
func (s *Server) CreateProject(name, key, description string, maintainerID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertProject(name, key, optional(description), maintainerID)
}

// AddMember adds userID to projectID with role.
func (s *Server) AddMember(projectID, userID int64, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db.members = append(s.db.members, memberRecord{ProjectID: projectID, UserID: userID, Role: role})
}

// CreateIssue files an issue directly and returns its id.
func (s *Server) CreateIssue(projectID, reporterID int64, title, description, status, priority string, assigneeID *int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	issue := &issueRecord{
		ID:          s.db.id(),
		ProjectID:   projectID,
		Title:       title,
		Description: optional(description),
		Status:      status,
		Priority:    priority,
		ReporterID:  reporterID,
		AssigneeID:  assigneeID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.db.issues[issue.ID] = issue
	return issue.ID
}

// CreateComment adds a comment directly and returns its id.
func (s *Server) CreateComment(issueID, authorID int64, body string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &commentRecord{ID: s.db.id(), IssueID: issueID, AuthorID: authorID, Body: body, CreatedAt: s.now()}
	s.db.comments = append(s.db.comments, c)
	return c.ID
}

// IssueToken signs a token for email without checking a password. A
// negative ttl yields an already expired token.
func (s *Server) IssueToken(email string, ttl time.Duration) (string, error) {
	return s.signToken(email, ttl)
}

func (s *Server) insertProject(name, key string, description *string, maintainerID int64) int64 {
	p := &projectRecord{ID: s.db.id(), Name: name, Key: key, Description: description, CreatedAt: s.now()}
	s.db.projects[p.ID] = p
	s.db.members = append(s.db.members, memberRecord{ProjectID: p.ID, UserID: maintainerID, Role: "maintainer"})
	return p.ID
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
