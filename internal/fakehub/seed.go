package fakehub

// DemoPassword is the password of every seeded user.
const DemoPassword = "password123"

// Seed loads a small demo dataset: three users, two projects, ten issues and
// a handful of comments. alice maintains API and is a member of FE; bob is a
// member of API; charlie maintains FE.
func (s *Server) Seed() error {
	alice, err := s.CreateUser("Alice Johnson", "alice@example.com", DemoPassword)
	if err != nil {
		return err
	}
	bob, err := s.CreateUser("Bob Smith", "bob@example.com", DemoPassword)
	if err != nil {
		return err
	}
	charlie, err := s.CreateUser("Charlie Davis", "charlie@example.com", DemoPassword)
	if err != nil {
		return err
	}

	api := s.CreateProject("Backend API", "API", "REST API for IssueHub", alice)
	s.AddMember(api, bob, "member")
	fe := s.CreateProject("Frontend App", "FE", "React frontend application", charlie)
	s.AddMember(fe, alice, "member")

	ptr := func(id int64) *int64 { return &id }

	loginBug := s.CreateIssue(api, bob, "Login endpoint returns 500 error",
		"When posting invalid credentials, should return 401 but returns 500", "open", "high", ptr(alice))
	pagination := s.CreateIssue(api, alice, "Add pagination to issues list",
		"Currently returns all issues, need to add page/limit parameters", "in_progress", "medium", ptr(alice))
	s.CreateIssue(api, bob, "JWT tokens expire too quickly",
		"30 minutes is too short, should be at least 2 hours", "resolved", "low", ptr(alice))
	s.CreateIssue(api, alice, "Database connection pool exhausted",
		"Under heavy load, running out of database connections", "open", "critical", nil)
	s.CreateIssue(api, bob, "Add input validation for email field",
		"Need to validate email format before saving to database", "open", "medium", nil)

	s.CreateIssue(fe, charlie, "Login button not centered on mobile",
		"Button alignment is off on screens smaller than 768px", "open", "low", nil)
	staleList := s.CreateIssue(fe, alice, "Issue list doesn't update after creating issue",
		"Need to refresh page to see newly created issues", "in_progress", "high", ptr(charlie))
	s.CreateIssue(fe, charlie, "Add loading spinners",
		"Show loading state when fetching data from API", "resolved", "medium", ptr(charlie))
	s.CreateIssue(fe, alice, "Implement dark mode",
		"Add toggle for dark/light theme preference", "open", "low", nil)
	toasts := s.CreateIssue(fe, charlie, "Add toast notifications",
		"Show success/error messages for user actions", "closed", "high", ptr(charlie))

	s.CreateComment(loginBug, alice, "I'll look into this today. Probably missing error handling.")
	s.CreateComment(loginBug, bob, "Thanks! It's blocking our testing.")
	s.CreateComment(pagination, alice, "Working on this now. Will use standard page/page_size params.")
	s.CreateComment(staleList, charlie, "I think we need to invalidate the cache after POST requests.")
	s.CreateComment(staleList, alice, "Good point! I'll add that to the fix.")
	s.CreateComment(toasts, charlie, "Completed! Toast notifications are now working across the app.")

	return nil
}
