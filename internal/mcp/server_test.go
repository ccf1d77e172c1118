package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/iammorganparry/issuehub/internal/client"
	"github.com/iammorganparry/issuehub/internal/fakehub"
	"github.com/iammorganparry/issuehub/internal/issuehub"
	"github.com/iammorganparry/issuehub/internal/session"
)

type testEnv struct {
	fake   *fakehub.Server
	sess   *session.Session
	server *Server
	logged int
}

func newTestEnv(t *testing.T, email string) *testEnv {
	t.Helper()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	fake := fakehub.New(fakehub.Options{Secret: []byte("mcp"), BcryptCost: bcrypt.MinCost, Logger: quiet})
	if err := fake.Seed(); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	ts := httptest.NewServer(fake)
	t.Cleanup(ts.Close)

	e := &testEnv{fake: fake, sess: session.New(session.NewMemoryStore())}
	c, err := client.New(client.Config{
		BaseURL:           ts.URL + "/api",
		Session:           e.sess,
		Logger:            quiet,
		OnUnauthenticated: func(context.Context) { e.logged++ },
	})
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	hub := issuehub.New(c)

	if email != "" {
		if _, err := issuehub.NewAccount(hub, e.sess).SignIn(context.Background(), email, fakehub.DemoPassword); err != nil {
			t.Fatalf("SignIn: %v", err)
		}
	}
	e.server = NewServer(hub, quiet, "test")
	return e
}

// exchange sends each request line and returns the responses in order.
func (e *testEnv) exchange(t *testing.T, lines ...string) []Response {
	t.Helper()
	var out strings.Builder
	if err := e.server.Run(context.Background(), strings.NewReader(strings.Join(lines, "\n")), &out); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var responses []Response
	scanner := bufio.NewScanner(strings.NewReader(out.String()))
	for scanner.Scan() {
		var resp Response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			t.Fatalf("bad response line %q: %v", scanner.Text(), err)
		}
		responses = append(responses, resp)
	}
	return responses
}

// call invokes one tool and returns its text block.
func (e *testEnv) call(t *testing.T, tool string, args any) (string, bool) {
	t.Helper()
	argsJSON, _ := json.Marshal(args)
	line := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"` + tool + `","arguments":` + string(argsJSON) + `}}`

	responses := e.exchange(t, line)
	if len(responses) != 1 {
		t.Fatalf("got %d responses", len(responses))
	}
	data, _ := json.Marshal(responses[0].Result)
	var result toolResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.Content) != 1 {
		t.Fatalf("content = %+v", result.Content)
	}
	return result.Content[0].Text, result.IsError
}

func TestProtocol(t *testing.T) {
	e := newTestEnv(t, "")
	responses := e.exchange(t,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":"two","method":"tools/list"}`,
		`not json`,
		`{"jsonrpc":"2.0","id":3,"method":"resources/list"}`,
		`{"jsonrpc":"2.0","id":4,"method":"ping"}`,
	)

	if len(responses) != 5 {
		t.Fatalf("got %d responses, want 5 (notification unanswered)", len(responses))
	}
	if string(responses[0].ID) != "1" || responses[0].Error != nil {
		t.Errorf("initialize = %+v", responses[0])
	}
	if string(responses[1].ID) != `"two"` {
		t.Errorf("string id not echoed: %s", responses[1].ID)
	}

	data, _ := json.Marshal(responses[1].Result)
	var list toolList
	json.Unmarshal(data, &list)
	if len(list.Tools) != 6 {
		t.Errorf("tools = %d, want 6", len(list.Tools))
	}

	if responses[2].Error == nil || responses[2].Error.Code != codeParseError {
		t.Errorf("parse error = %+v", responses[2])
	}
	if responses[3].Error == nil || responses[3].Error.Code != codeMethodNotFound {
		t.Errorf("unknown method = %+v", responses[3])
	}
	if responses[4].Error != nil {
		t.Errorf("ping = %+v", responses[4].Error)
	}
}

func TestToolsSignedIn(t *testing.T) {
	e := newTestEnv(t, "alice@example.com")

	text, isErr := e.call(t, "issuehub_list_projects", map[string]any{})
	if isErr || !strings.Contains(text, "Backend API") {
		t.Errorf("list_projects = %s (error %v)", text, isErr)
	}

	text, isErr = e.call(t, "issuehub_list_issues", map[string]any{"project_id": 4, "status": "open"})
	if isErr {
		t.Fatalf("list_issues: %s", text)
	}
	var page issuehub.IssuePage
	if err := json.Unmarshal([]byte(text), &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	for _, issue := range page.Issues {
		if issue.Status != issuehub.StatusOpen {
			t.Errorf("issue %d status %s", issue.ID, issue.Status)
		}
	}

	text, isErr = e.call(t, "issuehub_comment", map[string]any{"issue_id": 6, "body": "Looking into it"})
	if isErr {
		t.Fatalf("comment: %s", text)
	}

	text, isErr = e.call(t, "issuehub_get_issue", map[string]any{"issue_id": 6})
	if isErr || !strings.Contains(text, "Looking into it") || !strings.Contains(text, `"comments"`) {
		t.Errorf("get_issue = %s", text)
	}

	text, isErr = e.call(t, "issuehub_update_issue", map[string]any{"issue_id": 6, "status": "resolved", "unassign": true})
	var issue issuehub.Issue
	if isErr || json.Unmarshal([]byte(text), &issue) != nil || issue.Status != issuehub.StatusResolved || issue.Assignee != nil {
		t.Errorf("update_issue = %s", text)
	}

	text, isErr = e.call(t, "issuehub_create_issue", map[string]any{"project_id": 4, "title": "Flaky test", "priority": "low"})
	if isErr || !strings.Contains(text, "Flaky test") {
		t.Errorf("create_issue = %s", text)
	}
}

func TestToolErrors(t *testing.T) {
	e := newTestEnv(t, "bob@example.com")

	tests := []struct {
		name string
		tool string
		args map[string]any
		want string
	}{
		{"member cannot triage", "issuehub_update_issue", map[string]any{"issue_id": 6, "priority": "low"}, "403"},
		{"missing issue", "issuehub_get_issue", map[string]any{"issue_id": 999}, "Issue not found"},
		{"required argument", "issuehub_comment", map[string]any{"issue_id": 6}, "required"},
		{"empty update", "issuehub_update_issue", map[string]any{"issue_id": 6}, "nothing to update"},
		{"unknown tool", "issuehub_close_everything", map[string]any{}, "unknown tool"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, isErr := e.call(t, tt.tool, tt.args)
			if !isErr || !strings.Contains(text, tt.want) {
				t.Errorf("got %q (error %v), want error containing %q", text, isErr, tt.want)
			}
		})
	}

	if token, _ := e.sess.Token(context.Background()); token == "" {
		t.Error("non-401 errors cleared the session")
	}
}

func TestToolUnauthorized(t *testing.T) {
	e := newTestEnv(t, "alice@example.com")
	e.fake.FailNext(http.StatusUnauthorized, "Could not validate credentials")

	text, isErr := e.call(t, "issuehub_list_projects", map[string]any{})
	if !isErr || text != SignInHint {
		t.Errorf("got %q (error %v)", text, isErr)
	}
	if token, _ := e.sess.Token(context.Background()); token != "" {
		t.Error("token survived 401")
	}
	if e.logged != 1 {
		t.Errorf("unauthenticated callback ran %d times", e.logged)
	}

	// Without a token the next call is rejected the same way.
	text, isErr = e.call(t, "issuehub_list_projects", map[string]any{})
	if !isErr || text != SignInHint {
		t.Errorf("second call = %q", text)
	}
}
