// Package issuehub wraps the IssueHub REST endpoints. Each call is a single
// request through the authenticated client; nothing here validates, retries
// or caches.
package issuehub

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Requester sends one JSON request and decodes the response into out.
// *client.Client satisfies it.
type Requester interface {
	Do(ctx context.Context, method, path string, body any, query url.Values, out any) error
}

// Client exposes the IssueHub resources.
type Client struct {
	r Requester
}

// New creates a Client on top of r.
func New(r Requester) *Client {
	return &Client{r: r}
}

// Signup registers a new user. It does not log in.
func (c *Client) Signup(ctx context.Context, req SignupRequest) (*User, error) {
	var user User
	if err := c.r.Do(ctx, http.MethodPost, "/auth/signup", req, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*Token, error) {
	var token Token
	if err := c.r.Do(ctx, http.MethodPost, "/auth/login", req, nil, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

// Me returns the profile belonging to the current token.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User
	if err := c.r.Do(ctx, http.MethodGet, "/auth/me", nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListProjects returns the projects the current user belongs to.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var projects []Project
	if err := c.r.Do(ctx, http.MethodGet, "/projects", nil, nil, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// CreateProject creates a project with the current user as maintainer.
func (c *Client) CreateProject(ctx context.Context, req ProjectCreate) (*Project, error) {
	var project Project
	if err := c.r.Do(ctx, http.MethodPost, "/projects", req, nil, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

func (c *Client) GetProject(ctx context.Context, projectID int64) (*ProjectDetail, error) {
	var project ProjectDetail
	if err := c.r.Do(ctx, http.MethodGet, projectPath(projectID), nil, nil, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// AddMember adds an existing user to a project by email.
func (c *Client) AddMember(ctx context.Context, projectID int64, req MemberAdd) (*Member, error) {
	var member Member
	if err := c.r.Do(ctx, http.MethodPost, projectPath(projectID)+"/members", req, nil, &member); err != nil {
		return nil, err
	}
	return &member, nil
}

// ListIssues returns one page of a project's issues.
func (c *Client) ListIssues(ctx context.Context, projectID int64, filter IssueFilter) (*IssuePage, error) {
	var page IssuePage
	if err := c.r.Do(ctx, http.MethodGet, projectPath(projectID)+"/issues", nil, filter.Values(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) CreateIssue(ctx context.Context, projectID int64, req IssueCreate) (*Issue, error) {
	var issue Issue
	if err := c.r.Do(ctx, http.MethodPost, projectPath(projectID)+"/issues", req, nil, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

func (c *Client) GetIssue(ctx context.Context, issueID int64) (*Issue, error) {
	var issue Issue
	if err := c.r.Do(ctx, http.MethodGet, issuePath(issueID), nil, nil, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// UpdateIssue applies a partial update and returns the issue as stored.
func (c *Client) UpdateIssue(ctx context.Context, issueID int64, update IssueUpdate) (*Issue, error) {
	var issue Issue
	if err := c.r.Do(ctx, http.MethodPatch, issuePath(issueID), update, nil, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

func (c *Client) DeleteIssue(ctx context.Context, issueID int64) error {
	return c.r.Do(ctx, http.MethodDelete, issuePath(issueID), nil, nil, nil)
}

// ListComments returns an issue's comments, oldest first.
func (c *Client) ListComments(ctx context.Context, issueID int64) ([]Comment, error) {
	var comments []Comment
	if err := c.r.Do(ctx, http.MethodGet, issuePath(issueID)+"/comments", nil, nil, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

func (c *Client) CreateComment(ctx context.Context, issueID int64, body string) (*Comment, error) {
	var comment Comment
	if err := c.r.Do(ctx, http.MethodPost, issuePath(issueID)+"/comments", CommentCreate{Body: body}, nil, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

func projectPath(id int64) string {
	return fmt.Sprintf("/projects/%d", id)
}

func issuePath(id int64) string {
	return fmt.Sprintf("/issues/%d", id)
}
