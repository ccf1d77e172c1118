package fakehub

import (
	"sort"
	"strings"
	"time"
)

type userRecord struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

type projectRecord struct {
	ID          int64
	Name        string
	Key         string
	Description *string
	CreatedAt   time.Time
}

type memberRecord struct {
	ProjectID int64
	UserID    int64
	Role      string
}

type issueRecord struct {
	ID          int64
	ProjectID   int64
	Title       string
	Description *string
	Status      string
	Priority    string
	ReporterID  int64
	AssigneeID  *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type commentRecord struct {
	ID        int64
	IssueID   int64
	AuthorID  int64
	Body      string
	CreatedAt time.Time
}

// data is the in-memory database. Callers hold Server.mu.
type data struct {
	users    map[int64]*userRecord
	projects map[int64]*projectRecord
	members  []memberRecord
	issues   map[int64]*issueRecord
	comments []*commentRecord
	nextID   int64
}

func newData() *data {
	return &data{
		users:    make(map[int64]*userRecord),
		projects: make(map[int64]*projectRecord),
		issues:   make(map[int64]*issueRecord),
	}
}

func (d *data) id() int64 {
	d.nextID++
	return d.nextID
}

func (d *data) userByEmail(email string) *userRecord {
	for _, u := range d.users {
		if strings.EqualFold(u.Email, email) {
			return u
		}
	}
	return nil
}

func (d *data) projectByKey(key string) *projectRecord {
	for _, p := range d.projects {
		if p.Key == key {
			return p
		}
	}
	return nil
}

// role returns userID's role in projectID, or "" for non-members.
func (d *data) role(projectID, userID int64) string {
	for _, m := range d.members {
		if m.ProjectID == projectID && m.UserID == userID {
			return m.Role
		}
	}
	return ""
}

func (d *data) projectsOf(userID int64) []*projectRecord {
	var out []*projectRecord
	for _, m := range d.members {
		if m.UserID == userID {
			if p, ok := d.projects[m.ProjectID]; ok {
				out = append(out, p)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *data) membersOf(projectID int64) []memberRecord {
	var out []memberRecord
	for _, m := range d.members {
		if m.ProjectID == projectID {
			out = append(out, m)
		}
	}
	return out
}

func (d *data) commentsOf(issueID int64) []*commentRecord {
	var out []*commentRecord
	for _, c := range d.comments {
		if c.IssueID == issueID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (d *data) deleteIssue(issueID int64) {
	delete(d.issues, issueID)
	kept := d.comments[:0]
	for _, c := range d.comments {
		if c.IssueID != issueID {
			kept = append(kept, c)
		}
	}
	d.comments = kept
}

// issueQuery mirrors the list endpoint's query parameters.
type issueQuery struct {
	Search     string
	Status     string
	Priority   string
	AssigneeID int64
	Sort       string
	Page       int
	PageSize   int
}

var (
	statusOrder   = map[string]int{"open": 0, "in_progress": 1, "resolved": 2, "closed": 3}
	priorityOrder = map[string]int{"critical": 0, "high": 1, "medium": 2, "low": 3}
)

// listIssues filters, sorts and pages a project's issues. It returns the
// page and the total before paging.
func (d *data) listIssues(projectID int64, q issueQuery) ([]*issueRecord, int) {
	search := strings.ToLower(q.Search)
	var matched []*issueRecord
	for _, issue := range d.issues {
		if issue.ProjectID != projectID {
			continue
		}
		if search != "" {
			desc := ""
			if issue.Description != nil {
				desc = *issue.Description
			}
			if !strings.Contains(strings.ToLower(issue.Title), search) &&
				!strings.Contains(strings.ToLower(desc), search) {
				continue
			}
		}
		if q.Status != "" && issue.Status != q.Status {
			continue
		}
		if q.Priority != "" && issue.Priority != q.Priority {
			continue
		}
		if q.AssigneeID != 0 && (issue.AssigneeID == nil || *issue.AssigneeID != q.AssigneeID) {
			continue
		}
		matched = append(matched, issue)
	}

	less := func(a, b *issueRecord) bool {
		switch q.Sort {
		case "updated_at":
			if !a.UpdatedAt.Equal(b.UpdatedAt) {
				return a.UpdatedAt.After(b.UpdatedAt)
			}
		case "priority":
			if priorityOrder[a.Priority] != priorityOrder[b.Priority] {
				return priorityOrder[a.Priority] < priorityOrder[b.Priority]
			}
		case "status":
			if statusOrder[a.Status] != statusOrder[b.Status] {
				return statusOrder[a.Status] < statusOrder[b.Status]
			}
		default:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
		}
		return a.ID > b.ID
	}
	sort.Slice(matched, func(i, j int) bool { return less(matched[i], matched[j]) })

	total := len(matched)
	start := (q.Page - 1) * q.PageSize
	if start >= total {
		return nil, total
	}
	end := start + q.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total
}
