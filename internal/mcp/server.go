// Package mcp exposes IssueHub as an MCP stdio server so agents can read and
// triage issues with the user's stored session.
package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/iammorganparry/issuehub/internal/client"
	"github.com/iammorganparry/issuehub/internal/issuehub"
)

const protocolVersion = "2024-11-05"

// SignInHint is the tool error returned when the server rejects the session.
const SignInHint = "Not signed in to IssueHub, or the session has expired. Run `issuehub login` and try again."

// Server implements an MCP stdio server on top of the IssueHub client.
type Server struct {
	hub     *issuehub.Client
	logger  *slog.Logger
	version string

	mu  sync.Mutex
	out io.Writer
}

// NewServer creates a new MCP server.
func NewServer(hub *issuehub.Client, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{hub: hub, logger: logger, version: version}
}

// Run reads one JSON-RPC message per line from in and writes responses to
// out. It returns when in is exhausted or ctx is done.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	s.out = out

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.write(errorResponse(nil, codeParseError, "parse error: "+err.Error()))
			continue
		}

		resp := s.handleRequest(ctx, &req)
		if resp != nil && !req.isNotification() {
			s.write(resp)
		}
	}
	return scanner.Err()
}

func (s *Server) handleRequest(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		var result initializeResult
		result.ProtocolVersion = protocolVersion
		result.ServerInfo.Name = "issuehub"
		result.ServerInfo.Version = s.version
		return reply(req.ID, result)
	case "notifications/initialized", "initialized":
		return nil
	case "tools/list":
		return reply(req.ID, toolList{Tools: Tools()})
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "ping":
		return reply(req.ID, struct{}{})
	default:
		return errorResponse(req.ID, codeMethodNotFound, "method not found: "+req.Method)
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params toolCall
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "invalid params: "+err.Error())
	}
	if len(params.Arguments) == 0 {
		params.Arguments = json.RawMessage("{}")
	}

	result, err := s.dispatchTool(ctx, params.Name, params.Arguments)
	text, isError := s.render(params.Name, result, err)

	return reply(req.ID, toolResult{
		Content: []textBlock{{Type: "text", Text: text}},
		IsError: isError,
	})
}

// errUnknownTool marks a call to a tool this server does not define.
var errUnknownTool = errors.New("unknown tool")

func (s *Server) dispatchTool(ctx context.Context, name string, args json.RawMessage) (any, error) {
	switch name {
	case "issuehub_list_projects":
		return s.hub.ListProjects(ctx)
	case "issuehub_list_issues":
		return s.toolListIssues(ctx, args)
	case "issuehub_get_issue":
		return s.toolGetIssue(ctx, args)
	case "issuehub_create_issue":
		return s.toolCreateIssue(ctx, args)
	case "issuehub_update_issue":
		return s.toolUpdateIssue(ctx, args)
	case "issuehub_comment":
		return s.toolComment(ctx, args)
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownTool, name)
	}
}

// render turns a tool outcome into the text block sent back to the agent.
func (s *Server) render(tool string, result any, err error) (string, bool) {
	if err != nil {
		switch {
		case client.IsUnauthorized(err):
			return SignInHint, true
		case client.StatusCode(err) != 0:
			return fmt.Sprintf("IssueHub returned %d: %s", client.StatusCode(err), client.Message(err, "request failed")), true
		case client.IsNetwork(err):
			s.logger.Error("mcp tool failed", "tool", tool, "error", err)
			return "Cannot reach the IssueHub server: " + err.Error(), true
		default:
			return err.Error(), true
		}
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "marshal error: " + err.Error(), true
	}
	return string(data), false
}

// --- Tool implementations ---

type listIssuesArgs struct {
	ProjectID  int64             `json:"project_id"`
	Query      string            `json:"q"`
	Status     issuehub.Status   `json:"status"`
	Priority   issuehub.Priority `json:"priority"`
	AssigneeID int64             `json:"assignee_id"`
	Sort       string            `json:"sort"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
}

func (s *Server) toolListIssues(ctx context.Context, raw json.RawMessage) (any, error) {
	var args listIssuesArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.ProjectID == 0 {
		return nil, errors.New("project_id is required")
	}
	return s.hub.ListIssues(ctx, args.ProjectID, issuehub.IssueFilter{
		Query:      args.Query,
		Status:     args.Status,
		Priority:   args.Priority,
		AssigneeID: args.AssigneeID,
		Sort:       args.Sort,
		Page:       args.Page,
		PageSize:   args.PageSize,
	})
}

type issueWithComments struct {
	*issuehub.Issue
	Comments []issuehub.Comment `json:"comments"`
}

func (s *Server) toolGetIssue(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		IssueID int64 `json:"issue_id"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.IssueID == 0 {
		return nil, errors.New("issue_id is required")
	}

	issue, err := s.hub.GetIssue(ctx, args.IssueID)
	if err != nil {
		return nil, err
	}
	comments, err := s.hub.ListComments(ctx, args.IssueID)
	if err != nil {
		return nil, err
	}
	return issueWithComments{Issue: issue, Comments: comments}, nil
}

func (s *Server) toolCreateIssue(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		ProjectID   int64             `json:"project_id"`
		Title       string            `json:"title"`
		Description *string           `json:"description"`
		Priority    issuehub.Priority `json:"priority"`
		AssigneeID  *int64            `json:"assignee_id"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.ProjectID == 0 || args.Title == "" {
		return nil, errors.New("project_id and title are required")
	}
	return s.hub.CreateIssue(ctx, args.ProjectID, issuehub.IssueCreate{
		Title:       args.Title,
		Description: args.Description,
		Priority:    args.Priority,
		AssigneeID:  args.AssigneeID,
	})
}

func (s *Server) toolUpdateIssue(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		IssueID     int64              `json:"issue_id"`
		Title       *string            `json:"title"`
		Description *string            `json:"description"`
		Status      *issuehub.Status   `json:"status"`
		Priority    *issuehub.Priority `json:"priority"`
		AssigneeID  *int64             `json:"assignee_id"`
		Unassign    bool               `json:"unassign"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.IssueID == 0 {
		return nil, errors.New("issue_id is required")
	}

	update := issuehub.IssueUpdate{
		Title:       args.Title,
		Description: args.Description,
		Status:      args.Status,
		Priority:    args.Priority,
		AssigneeID:  args.AssigneeID,
		Unassign:    args.Unassign,
	}
	if update.Empty() {
		return nil, errors.New("nothing to update")
	}
	return s.hub.UpdateIssue(ctx, args.IssueID, update)
}

func (s *Server) toolComment(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		IssueID int64  `json:"issue_id"`
		Body    string `json:"body"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.IssueID == 0 || args.Body == "" {
		return nil, errors.New("issue_id and body are required")
	}
	return s.hub.CreateComment(ctx, args.IssueID, args.Body)
}

func decodeArgs(raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// --- Response helpers ---

func (s *Server) write(resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("mcp: marshal response", "error", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "%s\n", data)
}
