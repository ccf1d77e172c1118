package issuehub

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Status is the workflow state of an issue.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

// Statuses lists every status in workflow order.
var Statuses = []Status{StatusOpen, StatusInProgress, StatusResolved, StatusClosed}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Label returns the status for display, e.g. "in progress".
func (s Status) Label() string {
	return strings.ReplaceAll(string(s), "_", " ")
}

// Priority is the urgency of an issue.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Priorities lists every priority from least to most urgent.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

func (p Priority) Valid() bool {
	for _, v := range Priorities {
		if p == v {
			return true
		}
	}
	return false
}

// Rank orders priorities; higher is more urgent. Unknown values rank -1.
func (p Priority) Rank() int {
	for i, v := range Priorities {
		if p == v {
			return i
		}
	}
	return -1
}

// Role is a user's membership level in a project.
type Role string

const (
	RoleMember     Role = "member"
	RoleMaintainer Role = "maintainer"
)

func (r Role) Valid() bool {
	return r == RoleMember || r == RoleMaintainer
}

// Sort keys accepted by the issue list endpoint.
const (
	SortCreated  = "created_at"
	SortUpdated  = "updated_at"
	SortPriority = "priority"
	SortStatus   = "status"
)

// Timestamp decodes the server's datetimes. The server may omit the zone
// offset; those values are taken as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognized format %q", raw)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// User is a public profile. Passwords never leave the server.
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt Timestamp `json:"created_at"`
}

// Token is the login response.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type Project struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Key         string    `json:"key"` // short prefix like "API"
	Description *string   `json:"description"`
	CreatedAt   Timestamp `json:"created_at"`
}

// Member is one entry of a project's member list.
type Member struct {
	User User `json:"user"`
	Role Role `json:"role"`
}

// ProjectDetail is a project with its members.
type ProjectDetail struct {
	Project
	Members []Member `json:"members"`
}

// RoleOf returns userID's role in the project, or "" if they are not a member.
func (p *ProjectDetail) RoleOf(userID int64) Role {
	for _, m := range p.Members {
		if m.User.ID == userID {
			return m.Role
		}
	}
	return ""
}

// Member returns the member with userID.
func (p *ProjectDetail) Member(userID int64) (Member, bool) {
	for _, m := range p.Members {
		if m.User.ID == userID {
			return m, true
		}
	}
	return Member{}, false
}

type Issue struct {
	ID          int64     `json:"id"`
	ProjectID   int64     `json:"project_id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Status      Status    `json:"status"`
	Priority    Priority  `json:"priority"`
	Reporter    User      `json:"reporter"`
	Assignee    *User     `json:"assignee"`
	CreatedAt   Timestamp `json:"created_at"`
	UpdatedAt   Timestamp `json:"updated_at"`
}

// DescriptionText returns the description or "".
func (i *Issue) DescriptionText() string {
	if i.Description == nil {
		return ""
	}
	return *i.Description
}

// AssigneeName returns the assignee's name, or "unassigned".
func (i *Issue) AssigneeName() string {
	if i.Assignee == nil {
		return "unassigned"
	}
	return i.Assignee.Name
}

// IssuePage is one page of an issue listing.
type IssuePage struct {
	Issues   []Issue `json:"issues"`
	Total    int     `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
}

// Pages returns the number of pages needed for Total.
func (p *IssuePage) Pages() int {
	if p.PageSize <= 0 || p.Total == 0 {
		return 1
	}
	return (p.Total + p.PageSize - 1) / p.PageSize
}

type Comment struct {
	ID        int64     `json:"id"`
	IssueID   int64     `json:"issue_id"`
	Author    User      `json:"author"`
	Body      string    `json:"body"`
	CreatedAt Timestamp `json:"created_at"`
}

// SignupRequest is the body of POST /auth/signup.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ProjectCreate struct {
	Name        string  `json:"name"`
	Key         string  `json:"key"`
	Description *string `json:"description,omitempty"`
}

type MemberAdd struct {
	Email string `json:"email"`
	Role  Role   `json:"role,omitempty"`
}

type IssueCreate struct {
	Title       string   `json:"title"`
	Description *string  `json:"description,omitempty"`
	Priority    Priority `json:"priority,omitempty"`
	AssigneeID  *int64   `json:"assignee_id,omitempty"`
}

// IssueUpdate is a partial update. Nil fields are not sent. Set Unassign to
// clear the assignee; it takes precedence over AssigneeID.
type IssueUpdate struct {
	Title       *string
	Description *string
	Status      *Status
	Priority    *Priority
	AssigneeID  *int64
	Unassign    bool
}

// Empty reports whether the update changes nothing.
func (u IssueUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Status == nil &&
		u.Priority == nil && u.AssigneeID == nil && !u.Unassign
}

// Triage reports whether the update touches maintainer-only fields.
func (u IssueUpdate) Triage() bool {
	return u.Status != nil || u.Priority != nil || u.AssigneeID != nil || u.Unassign
}

func (u IssueUpdate) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any)
	if u.Title != nil {
		fields["title"] = *u.Title
	}
	if u.Description != nil {
		fields["description"] = *u.Description
	}
	if u.Status != nil {
		fields["status"] = *u.Status
	}
	if u.Priority != nil {
		fields["priority"] = *u.Priority
	}
	switch {
	case u.Unassign:
		fields["assignee_id"] = nil
	case u.AssigneeID != nil:
		fields["assignee_id"] = *u.AssigneeID
	}
	return json.Marshal(fields)
}

type CommentCreate struct {
	Body string `json:"body"`
}

// IssueFilter narrows an issue listing. Zero fields are not sent.
type IssueFilter struct {
	Query      string
	Status     Status
	Priority   Priority
	AssigneeID int64
	Sort       string
	Page       int
	PageSize   int
}

// Values encodes the non-empty fields as query parameters.
func (f IssueFilter) Values() url.Values {
	v := url.Values{}
	if f.Query != "" {
		v.Set("q", f.Query)
	}
	if f.Status != "" {
		v.Set("status", string(f.Status))
	}
	if f.Priority != "" {
		v.Set("priority", string(f.Priority))
	}
	if f.AssigneeID != 0 {
		v.Set("assignee_id", strconv.FormatInt(f.AssigneeID, 10))
	}
	if f.Sort != "" {
		v.Set("sort", f.Sort)
	}
	if f.Page > 0 {
		v.Set("page", strconv.Itoa(f.Page))
	}
	if f.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(f.PageSize))
	}
	return v
}

// Ptr returns a pointer to v, for building IssueUpdate and friends.
func Ptr[T any](v T) *T {
	return &v
}
