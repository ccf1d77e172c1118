package issuehub

// Permissions says which issue actions to offer a user. The server enforces
// the same rules and answers 403 when they are broken; this only decides
// what to show.
type Permissions struct {
	CanComment   bool // any member
	CanEditText  bool // title and description
	CanTriage    bool // status, priority, assignee
	CanDelete    bool
	CanAddMember bool
}

// PermissionsFor derives permissions for userID on issue within project.
// issue may be nil when only project-level actions matter.
func PermissionsFor(project *ProjectDetail, issue *Issue, userID int64) Permissions {
	if project == nil {
		return Permissions{}
	}
	role := project.RoleOf(userID)
	if role == "" {
		return Permissions{}
	}

	maintainer := role == RoleMaintainer
	reporter := issue != nil && issue.Reporter.ID == userID

	return Permissions{
		CanComment:   true,
		CanEditText:  maintainer || reporter,
		CanTriage:    maintainer,
		CanDelete:    maintainer,
		CanAddMember: maintainer,
	}
}

// Allows reports whether p permits update.
func (p Permissions) Allows(update IssueUpdate) bool {
	if (update.Title != nil || update.Description != nil) && !p.CanEditText {
		return false
	}
	if update.Triage() && !p.CanTriage {
		return false
	}
	return true
}
