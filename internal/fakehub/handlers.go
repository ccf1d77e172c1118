package fakehub

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/mail"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	validStatuses   = map[string]bool{"open": true, "in_progress": true, "resolved": true, "closed": true}
	validPriorities = map[string]bool{"low": true, "medium": true, "high": true, "critical": true}
	validSorts      = map[string]bool{"created_at": true, "updated_at": true, "priority": true, "status": true}
)

// signup handles POST /api/auth/signup
func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeValidation(w, "body", "invalid JSON: "+err.Error())
		return
	}
	switch {
	case req.Name == "" || len(req.Name) > 100:
		writeValidation(w, "name", "name must be 1 to 100 characters")
		return
	case !validEmail(req.Email):
		writeValidation(w, "email", "value is not a valid email address")
		return
	case len(req.Password) < 8 || len(req.Password) > 100:
		writeValidation(w, "password", "password must be 8 to 100 characters")
		return
	}

	s.mu.Lock()
	taken := s.db.userByEmail(req.Email) != nil
	s.mu.Unlock()
	if taken {
		writeDetail(w, http.StatusBadRequest, "Email already registered")
		return
	}

	id, err := s.CreateUser(req.Name, req.Email, req.Password)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Email already registered")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusCreated, s.db.renderUser(id))
}

// login handles POST /api/auth/login
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeValidation(w, "body", "invalid JSON: "+err.Error())
		return
	}

	s.mu.Lock()
	user := s.db.userByEmail(req.Email)
	s.mu.Unlock()

	if user == nil || bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(req.Password)) != nil {
		unauthorized(w, "Incorrect email or password")
		return
	}

	token, err := s.signToken(user.Email, s.ttl)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Could not issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": token, "token_type": "bearer"})
}

// me handles GET /api/auth/me
func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.db.renderUser(currentUserID(r)))
}

// listProjects handles GET /api/projects
func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	projects := s.db.projectsOf(currentUserID(r))
	out := make([]projectJSON, 0, len(projects))
	for _, p := range projects {
		out = append(out, renderProject(p))
	}
	writeJSON(w, http.StatusOK, out)
}

// createProject handles POST /api/projects
func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string  `json:"name"`
		Key         string  `json:"key"`
		Description *string `json:"description"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeValidation(w, "body", "invalid JSON: "+err.Error())
		return
	}
	switch {
	case req.Name == "" || len(req.Name) > 100:
		writeValidation(w, "name", "name must be 1 to 100 characters")
		return
	case len(req.Key) < 2 || len(req.Key) > 10:
		writeValidation(w, "key", "key must be 2 to 10 characters")
		return
	case req.Description != nil && len(*req.Description) > 1000:
		writeValidation(w, "description", "description must be at most 1000 characters")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db.projectByKey(req.Key) != nil {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("Project key '%s' already exists", req.Key))
		return
	}
	id := s.insertProject(req.Name, req.Key, req.Description, currentUserID(r))
	writeJSON(w, http.StatusCreated, renderProject(s.db.projects[id]))
}

// getProject handles GET /api/projects/{projectID}
func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathID(w, r, "projectID")
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	project, exists := s.db.projects[projectID]
	if !exists {
		writeDetail(w, http.StatusNotFound, "Project not found")
		return
	}
	if s.db.role(projectID, currentUserID(r)) == "" {
		writeDetail(w, http.StatusForbidden, "You are not a member of this project")
		return
	}
	writeJSON(w, http.StatusOK, s.db.renderProjectDetail(project))
}

// addMember handles POST /api/projects/{projectID}/members
func (s *Server) addMember(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathID(w, r, "projectID")
	if !ok {
		return
	}
	var req struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeValidation(w, "body", "invalid JSON: "+err.Error())
		return
	}
	if req.Role == "" {
		req.Role = "member"
	}
	if req.Role != "member" && req.Role != "maintainer" {
		writeValidation(w, "role", "role must be 'member' or 'maintainer'")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.db.role(projectID, currentUserID(r)) {
	case "":
		writeDetail(w, http.StatusForbidden, "You are not a member of this project")
		return
	case "member":
		writeDetail(w, http.StatusForbidden, "Only project maintainers can add members")
		return
	}

	user := s.db.userByEmail(req.Email)
	if user == nil {
		writeDetail(w, http.StatusNotFound, fmt.Sprintf("User with email '%s' not found", req.Email))
		return
	}
	if s.db.role(projectID, user.ID) != "" {
		writeDetail(w, http.StatusBadRequest, "User is already a member of this project")
		return
	}

	s.db.members = append(s.db.members, memberRecord{ProjectID: projectID, UserID: user.ID, Role: req.Role})
	writeJSON(w, http.StatusCreated, memberJSON{User: s.db.renderUser(user.ID), Role: req.Role})
}

// listIssues handles GET /api/projects/{projectID}/issues
func (s *Server) listIssues(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathID(w, r, "projectID")
	if !ok {
		return
	}

	params := r.URL.Query()
	q := issueQuery{
		Search:   params.Get("q"),
		Status:   params.Get("status"),
		Priority: params.Get("priority"),
		Sort:     params.Get("sort"),
		Page:     1,
		PageSize: 20,
	}
	if q.Status != "" && !validStatuses[q.Status] {
		writeQueryValidation(w, "status", "unknown status")
		return
	}
	if q.Priority != "" && !validPriorities[q.Priority] {
		writeQueryValidation(w, "priority", "unknown priority")
		return
	}
	if q.Sort == "" {
		q.Sort = "created_at"
	}
	if !validSorts[q.Sort] {
		writeQueryValidation(w, "sort", "unknown sort field")
		return
	}
	if raw := params.Get("assignee_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeQueryValidation(w, "assignee_id", "value is not a valid integer")
			return
		}
		q.AssigneeID = id
	}
	if raw := params.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			writeQueryValidation(w, "page", "page must be an integer >= 1")
			return
		}
		q.Page = page
	}
	if raw := params.Get("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 || size > 100 {
			writeQueryValidation(w, "page_size", "page_size must be between 1 and 100")
			return
		}
		q.PageSize = size
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db.role(projectID, currentUserID(r)) == "" {
		writeDetail(w, http.StatusForbidden, "You are not a member of this project")
		return
	}

	issues, total := s.db.listIssues(projectID, q)
	out := issueListJSON{Issues: make([]issueJSON, 0, len(issues)), Total: total, Page: q.Page, PageSize: q.PageSize}
	for _, issue := range issues {
		out.Issues = append(out.Issues, s.db.renderIssue(issue))
	}
	writeJSON(w, http.StatusOK, out)
}

// createIssue handles POST /api/projects/{projectID}/issues
func (s *Server) createIssue(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathID(w, r, "projectID")
	if !ok {
		return
	}
	var req struct {
		Title       string  `json:"title"`
		Description *string `json:"description"`
		Priority    string  `json:"priority"`
		AssigneeID  *int64  `json:"assignee_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeValidation(w, "body", "invalid JSON: "+err.Error())
		return
	}
	if req.Priority == "" {
		req.Priority = "medium"
	}
	switch {
	case req.Title == "" || len(req.Title) > 200:
		writeValidation(w, "title", "title must be 1 to 200 characters")
		return
	case req.Description != nil && len(*req.Description) > 5000:
		writeValidation(w, "description", "description must be at most 5000 characters")
		return
	case !validPriorities[req.Priority]:
		writeValidation(w, "priority", "unknown priority")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	userID := currentUserID(r)
	if s.db.role(projectID, userID) == "" {
		writeDetail(w, http.StatusForbidden, "You are not a member of this project")
		return
	}
	if req.AssigneeID != nil && s.db.role(projectID, *req.AssigneeID) == "" {
		writeDetail(w, http.StatusBadRequest, "Assignee must be a project member")
		return
	}

	now := s.now()
	issue := &issueRecord{
		ID:          s.db.id(),
		ProjectID:   projectID,
		Title:       req.Title,
		Description: req.Description,
		Status:      "open",
		Priority:    req.Priority,
		ReporterID:  userID,
		AssigneeID:  req.AssigneeID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.db.issues[issue.ID] = issue
	writeJSON(w, http.StatusCreated, s.db.renderIssue(issue))
}

// getIssue handles GET /api/issues/{issueID}
func (s *Server) getIssue(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	issue, _, ok := s.accessibleIssue(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.db.renderIssue(issue))
}

// updateIssue handles PATCH /api/issues/{issueID}. Only fields present in
// the body change; "assignee_id": null unassigns.
func (s *Server) updateIssue(w http.ResponseWriter, r *http.Request) {
	var fields map[string]json.RawMessage
	if err := decodeJSON(r, &fields); err != nil {
		writeValidation(w, "body", "invalid JSON: "+err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	issue, role, ok := s.accessibleIssue(w, r)
	if !ok {
		return
	}
	userID := currentUserID(r)
	maintainer := role == "maintainer"
	reporter := issue.ReporterID == userID

	updated := *issue
	for field, raw := range fields {
		switch field {
		case "title", "description":
			if !reporter && !maintainer {
				writeDetail(w, http.StatusForbidden, "Only the reporter or maintainers can update this field")
				return
			}
		case "status", "priority", "assignee_id":
			if !maintainer {
				writeDetail(w, http.StatusForbidden, "Only maintainers can update status, priority, or assignee")
				return
			}
		default:
			continue
		}

		switch field {
		case "title":
			var title string
			if err := json.Unmarshal(raw, &title); err != nil || title == "" || len(title) > 200 {
				writeValidation(w, "title", "title must be 1 to 200 characters")
				return
			}
			updated.Title = title
		case "description":
			var desc *string
			if err := json.Unmarshal(raw, &desc); err != nil || (desc != nil && len(*desc) > 5000) {
				writeValidation(w, "description", "description must be at most 5000 characters")
				return
			}
			updated.Description = desc
		case "status":
			var status string
			if err := json.Unmarshal(raw, &status); err != nil || !validStatuses[status] {
				writeValidation(w, "status", "unknown status")
				return
			}
			updated.Status = status
		case "priority":
			var priority string
			if err := json.Unmarshal(raw, &priority); err != nil || !validPriorities[priority] {
				writeValidation(w, "priority", "unknown priority")
				return
			}
			updated.Priority = priority
		case "assignee_id":
			var assignee *int64
			if err := json.Unmarshal(raw, &assignee); err != nil {
				writeValidation(w, "assignee_id", "value is not a valid integer")
				return
			}
			if assignee != nil && s.db.role(issue.ProjectID, *assignee) == "" {
				writeDetail(w, http.StatusBadRequest, "Assignee must be a project member")
				return
			}
			updated.AssigneeID = assignee
		}
	}

	updated.UpdatedAt = s.now()
	*issue = updated
	writeJSON(w, http.StatusOK, s.db.renderIssue(issue))
}

// deleteIssue handles DELETE /api/issues/{issueID}
func (s *Server) deleteIssue(w http.ResponseWriter, r *http.Request) {
	issueID, ok := pathID(w, r, "issueID")
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	issue, exists := s.db.issues[issueID]
	if !exists {
		writeDetail(w, http.StatusNotFound, "Issue not found")
		return
	}
	if s.db.role(issue.ProjectID, currentUserID(r)) != "maintainer" {
		writeDetail(w, http.StatusForbidden, "Only project maintainers can delete issues")
		return
	}
	s.db.deleteIssue(issueID)
	w.WriteHeader(http.StatusNoContent)
}

// listComments handles GET /api/issues/{issueID}/comments
func (s *Server) listComments(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	issue, _, ok := s.accessibleIssue(w, r)
	if !ok {
		return
	}
	comments := s.db.commentsOf(issue.ID)
	out := make([]commentJSON, 0, len(comments))
	for _, c := range comments {
		out = append(out, s.db.renderComment(c))
	}
	writeJSON(w, http.StatusOK, out)
}

// createComment handles POST /api/issues/{issueID}/comments
func (s *Server) createComment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Body string `json:"body"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeValidation(w, "body", "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Body) == "" || len(req.Body) > 5000 {
		writeValidation(w, "body", "body must be 1 to 5000 characters")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	issue, _, ok := s.accessibleIssue(w, r)
	if !ok {
		return
	}
	c := &commentRecord{ID: s.db.id(), IssueID: issue.ID, AuthorID: currentUserID(r), Body: req.Body, CreatedAt: s.now()}
	s.db.comments = append(s.db.comments, c)
	writeJSON(w, http.StatusCreated, s.db.renderComment(c))
}

// accessibleIssue loads the issue named in the path and checks that the
// caller belongs to its project. It writes the error response itself.
// Callers hold s.mu.
func (s *Server) accessibleIssue(w http.ResponseWriter, r *http.Request) (*issueRecord, string, bool) {
	issueID, ok := pathID(w, r, "issueID")
	if !ok {
		return nil, "", false
	}
	issue, exists := s.db.issues[issueID]
	if !exists {
		writeDetail(w, http.StatusNotFound, "Issue not found")
		return nil, "", false
	}
	role := s.db.role(issue.ProjectID, currentUserID(r))
	if role == "" {
		writeDetail(w, http.StatusForbidden, "You do not have access to this issue")
		return nil, "", false
	}
	return issue, role, true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string][]validationIssue{
			"detail": {{Loc: []string{"path", name}, Msg: "value is not a valid integer", Type: "type_error"}},
		})
		return 0, false
	}
	return id, true
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email && strings.Contains(email, "@")
}
