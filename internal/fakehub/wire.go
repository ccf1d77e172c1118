package fakehub

import (
	"encoding/json"
	"net/http"
	"time"
)

// Response shapes. These mirror the backend's JSON rather than sharing the
// client's types so a drift between the two shows up in tests.

type userJSON struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

type projectJSON struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Key         string  `json:"key"`
	Description *string `json:"description"`
	CreatedAt   string  `json:"created_at"`
}

type memberJSON struct {
	User userJSON `json:"user"`
	Role string   `json:"role"`
}

type projectDetailJSON struct {
	projectJSON
	Members []memberJSON `json:"members"`
}

type issueJSON struct {
	ID          int64     `json:"id"`
	ProjectID   int64     `json:"project_id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Status      string    `json:"status"`
	Priority    string    `json:"priority"`
	Reporter    userJSON  `json:"reporter"`
	Assignee    *userJSON `json:"assignee"`
	CreatedAt   string    `json:"created_at"`
	UpdatedAt   string    `json:"updated_at"`
}

type issueListJSON struct {
	Issues   []issueJSON `json:"issues"`
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

type commentJSON struct {
	ID        int64    `json:"id"`
	IssueID   int64    `json:"issue_id"`
	Author    userJSON `json:"author"`
	Body      string   `json:"body"`
	CreatedAt string   `json:"created_at"`
}

// validationIssue is one entry of a 422 detail list.
type validationIssue struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

// timestamp formats like the backend: naive UTC with microseconds.
func timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000")
}

func (d *data) renderUser(id int64) userJSON {
	u, ok := d.users[id]
	if !ok {
		return userJSON{ID: id}
	}
	return userJSON{ID: u.ID, Name: u.Name, Email: u.Email, CreatedAt: timestamp(u.CreatedAt)}
}

func renderProject(p *projectRecord) projectJSON {
	return projectJSON{
		ID:          p.ID,
		Name:        p.Name,
		Key:         p.Key,
		Description: p.Description,
		CreatedAt:   timestamp(p.CreatedAt),
	}
}

func (d *data) renderProjectDetail(p *projectRecord) projectDetailJSON {
	members := d.membersOf(p.ID)
	out := projectDetailJSON{projectJSON: renderProject(p), Members: make([]memberJSON, 0, len(members))}
	for _, m := range members {
		out.Members = append(out.Members, memberJSON{User: d.renderUser(m.UserID), Role: m.Role})
	}
	return out
}

func (d *data) renderIssue(i *issueRecord) issueJSON {
	out := issueJSON{
		ID:          i.ID,
		ProjectID:   i.ProjectID,
		Title:       i.Title,
		Description: i.Description,
		Status:      i.Status,
		Priority:    i.Priority,
		Reporter:    d.renderUser(i.ReporterID),
		CreatedAt:   timestamp(i.CreatedAt),
		UpdatedAt:   timestamp(i.UpdatedAt),
	}
	if i.AssigneeID != nil {
		assignee := d.renderUser(*i.AssigneeID)
		out.Assignee = &assignee
	}
	return out
}

func (d *data) renderComment(c *commentRecord) commentJSON {
	return commentJSON{
		ID:        c.ID,
		IssueID:   c.IssueID,
		Author:    d.renderUser(c.AuthorID),
		Body:      c.Body,
		CreatedAt: timestamp(c.CreatedAt),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeDetail writes the backend's error shape: {"detail": "..."}.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeValidation(w http.ResponseWriter, field, msg string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string][]validationIssue{
		"detail": {{Loc: []string{"body", field}, Msg: msg, Type: "value_error"}},
	})
}

func writeQueryValidation(w http.ResponseWriter, field, msg string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string][]validationIssue{
		"detail": {{Loc: []string{"query", field}, Msg: msg, Type: "value_error"}},
	})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(v)
}
