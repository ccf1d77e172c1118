package mcp

import "github.com/iammorganparry/issuehub/internal/issuehub"

func enum[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

func statusEnum() []string   { return enum(issuehub.Statuses) }
func priorityEnum() []string { return enum(issuehub.Priorities) }

// Tools lists the IssueHub tools in the order tools/list returns them.
func Tools() []Tool {
	return []Tool{
		{
			Name:        "issuehub_list_projects",
			Description: "List the IssueHub projects the signed-in user belongs to.",
			InputSchema: Schema{Type: "object", Properties: map[string]Prop{}},
		},
		{
			Name: "issuehub_list_issues",
			Description: "List issues in a project, newest first by default. " +
				"Filter by status, priority, assignee or a search string matched against title and description.",
			InputSchema: Schema{
				Type: "object",
				Properties: map[string]Prop{
					"project_id":  {Type: "integer", Description: "Project ID"},
					"q":           {Type: "string", Description: "Search text"},
					"status":      {Type: "string", Enum: statusEnum()},
					"priority":    {Type: "string", Enum: priorityEnum()},
					"assignee_id": {Type: "integer", Description: "Only issues assigned to this user"},
					"sort": {Type: "string", Description: "Sort key (default created_at)",
						Enum: []string{issuehub.SortCreated, issuehub.SortUpdated, issuehub.SortPriority, issuehub.SortStatus}},
					"page":      {Type: "integer", Default: 1},
					"page_size": {Type: "integer", Default: 20},
				},
				Required: []string{"project_id"},
			},
		},
		{
			Name:        "issuehub_get_issue",
			Description: "Get one issue with its comments, oldest comment first.",
			InputSchema: Schema{
				Type: "object",
				Properties: map[string]Prop{
					"issue_id": {Type: "integer", Description: "Issue ID"},
				},
				Required: []string{"issue_id"},
			},
		},
		{
			Name: "issuehub_create_issue",
			Description: "Create an issue in a project. Any project member may create issues; " +
				"the signed-in user becomes the reporter.",
			InputSchema: Schema{
				Type: "object",
				Properties: map[string]Prop{
					"project_id":  {Type: "integer", Description: "Project ID"},
					"title":       {Type: "string", Description: "Short summary, 1 to 200 characters"},
					"description": {Type: "string"},
					"priority":    {Type: "string", Enum: priorityEnum(), Default: "medium"},
					"assignee_id": {Type: "integer", Description: "Must be a project member"},
				},
				Required: []string{"project_id", "title"},
			},
		},
		{
			Name: "issuehub_update_issue",
			Description: "Change an issue. The reporter and maintainers may edit title and description; " +
				"only maintainers may change status, priority or assignee. Omitted fields are left alone.",
			InputSchema: Schema{
				Type: "object",
				Properties: map[string]Prop{
					"issue_id":    {Type: "integer", Description: "Issue ID"},
					"title":       {Type: "string"},
					"description": {Type: "string"},
					"status":      {Type: "string", Enum: statusEnum()},
					"priority":    {Type: "string", Enum: priorityEnum()},
					"assignee_id": {Type: "integer", Description: "Must be a project member"},
					"unassign":    {Type: "boolean", Description: "Clear the assignee"},
				},
				Required: []string{"issue_id"},
			},
		},
		{
			Name:        "issuehub_comment",
			Description: "Add a comment to an issue as the signed-in user.",
			InputSchema: Schema{
				Type: "object",
				Properties: map[string]Prop{
					"issue_id": {Type: "integer", Description: "Issue ID"},
					"body":     {Type: "string", Description: "Comment text"},
				},
				Required: []string{"issue_id", "body"},
			},
		},
	}
}
