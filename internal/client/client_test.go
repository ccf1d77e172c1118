package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/iammorganparry/issuehub/internal/session"
)

// fakeNavigator records navigations and updates its location like a router.
type fakeNavigator struct {
	mu       sync.Mutex
	location string
	visits   []string
}

func (n *fakeNavigator) Location() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.location
}

func (n *fakeNavigator) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.location = path
	n.visits = append(n.visits, path)
}

func (n *fakeNavigator) Visits() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.visits...)
}

// countingStore wraps a MemoryStore and counts Delete calls.
type countingStore struct {
	*session.MemoryStore
	deletes atomic.Int32
}

func (s *countingStore) Delete(ctx context.Context, keys ...string) error {
	s.deletes.Add(1)
	return s.MemoryStore.Delete(ctx, keys...)
}

type recorded struct {
	method        string
	path          string
	query         url.Values
	authorization string
	hasAuth       bool
	contentType   string
	requestID     string
	body          string
}

// harness is an httptest server that answers every request with a fixed
// status and body and records what it saw.
type harness struct {
	server *httptest.Server
	store  *countingStore
	sess   *session.Session
	nav    *fakeNavigator
	client *Client

	mu       sync.Mutex
	requests []recorded
}

func newHarness(t *testing.T, status int, body string) *harness {
	t.Helper()
	h := &harness{
		store: &countingStore{MemoryStore: session.NewMemoryStore()},
		nav:   &fakeNavigator{location: "/projects"},
	}
	h.sess = session.New(h.store)

	h.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_, hasAuth := r.Header["Authorization"]
		h.mu.Lock()
		h.requests = append(h.requests, recorded{
			method:        r.Method,
			path:          r.URL.Path,
			query:         r.URL.Query(),
			authorization: r.Header.Get("Authorization"),
			hasAuth:       hasAuth,
			contentType:   r.Header.Get("Content-Type"),
			requestID:     r.Header.Get("X-Request-ID"),
			body:          string(raw),
		})
		h.mu.Unlock()

		if body != "" {
			w.Header().Set("Content-Type", "application/json")
		}
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(h.server.Close)

	c, err := New(Config{
		BaseURL:           h.server.URL + "/api/",
		Session:           h.sess,
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		OnUnauthenticated: RedirectToLogin(h.nav, "/login"),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.client = c
	return h
}

func (h *harness) Requests() []recorded {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]recorded(nil), h.requests...)
}

func TestNewValidation(t *testing.T) {
	sess := session.New(session.NewMemoryStore())

	tests := []struct {
		name   string
		config Config
	}{
		{"missing base url", Config{Session: sess}},
		{"missing session", Config{BaseURL: "http://localhost:8000/api"}},
		{"bad scheme", Config{BaseURL: "ftp://example.com", Session: sess}},
		{"unparseable", Config{BaseURL: "http://[::1", Session: sess}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.config); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	c, err := New(Config{BaseURL: "http://localhost:8000/api/", Session: sess})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.BaseURL() != "http://localhost:8000/api" {
		t.Errorf("BaseURL = %q, want trailing slash stripped", c.BaseURL())
	}
}

func TestBearerAttachedWhenTokenPresent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, http.StatusOK, `[{"id":1,"name":"Core"}]`)
	h.sess.SetToken(ctx, "abc")

	var projects []map[string]any
	if err := h.client.Do(ctx, http.MethodGet, "/projects", nil, nil, &projects); err != nil {
		t.Fatalf("Do: %v", err)
	}

	reqs := h.Requests()
	if len(reqs) != 1 {
		t.Fatalf("got %d requests, want 1", len(reqs))
	}
	if reqs[0].authorization != "Bearer abc" {
		t.Errorf("Authorization = %q, want %q", reqs[0].authorization, "Bearer abc")
	}
	if reqs[0].path != "/api/projects" {
		t.Errorf("path = %q, want /api/projects", reqs[0].path)
	}
	if reqs[0].contentType != "application/json" {
		t.Errorf("Content-Type = %q", reqs[0].contentType)
	}
	if reqs[0].requestID == "" {
		t.Error("X-Request-ID missing")
	}
	if len(projects) != 1 || projects[0]["name"] != "Core" {
		t.Errorf("decoded body = %v", projects)
	}
}

func TestBearerFollowsTokenChanges(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, http.StatusOK, `{}`)

	tokens := []string{"first", "second", ""}
	for _, token := range tokens {
		h.sess.SetToken(ctx, token)
		if _, err := h.client.Request(ctx, http.MethodGet, "/auth/me", nil, nil); err != nil {
			t.Fatalf("Request: %v", err)
		}
	}

	reqs := h.Requests()
	want := []string{"Bearer first", "Bearer second", ""}
	for i, r := range reqs {
		if r.authorization != want[i] {
			t.Errorf("request %d Authorization = %q, want %q", i, r.authorization, want[i])
		}
	}
}

func TestNoAuthorizationWithoutToken(t *testing.T) {
	h := newHarness(t, http.StatusOK, `{"ok":true}`)

	if _, err := h.client.Request(context.Background(), http.MethodGet, "/projects", nil, nil); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if reqs := h.Requests(); reqs[0].hasAuth {
		t.Errorf("Authorization header sent without a token: %q", reqs[0].authorization)
	}
}

func TestUnauthorizedClearsSessionAndRedirects(t *testing.T) {
	endpoints := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/projects"},
		{http.MethodPost, "/projects/5/issues"},
		{http.MethodPatch, "/issues/9"},
		{http.MethodDelete, "/issues/9"},
		{http.MethodGet, "/auth/me"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t, http.StatusUnauthorized, `{"detail":"Could not validate credentials"}`)
			h.sess.SetToken(ctx, "abc")
			h.sess.SetUser(ctx, map[string]any{"id": 1})

			_, err := h.client.Request(ctx, ep.method, ep.path, map[string]string{"x": "y"}, nil)

			var httpErr *HTTPError
			if !errors.As(err, &httpErr) {
				t.Fatalf("err = %v, want *HTTPError", err)
			}
			if httpErr.Status != http.StatusUnauthorized {
				t.Errorf("Status = %d", httpErr.Status)
			}
			if !IsUnauthorized(err) {
				t.Error("IsUnauthorized = false")
			}

			if token, _ := h.sess.Token(ctx); token != "" {
				t.Errorf("token = %q after 401, want cleared", token)
			}
			var user map[string]any
			if ok, _ := h.sess.User(ctx, &user); ok {
				t.Errorf("user still cached after 401: %v", user)
			}
			if n := h.store.deletes.Load(); n != 1 {
				t.Errorf("session cleared %d times, want 1", n)
			}
			if visits := h.nav.Visits(); len(visits) != 1 || visits[0] != "/login" {
				t.Errorf("navigations = %v, want [/login]", visits)
			}
		})
	}
}

func TestUnauthorizedWithoutTokenRedirects(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, http.StatusUnauthorized, `{"detail":"Not authenticated"}`)

	_, err := h.client.Request(ctx, http.MethodGet, "/projects", nil, nil)
	if StatusCode(err) != http.StatusUnauthorized {
		t.Fatalf("err = %v, want 401", err)
	}
	if token, _ := h.sess.Token(ctx); token != "" {
		t.Errorf("token = %q", token)
	}
	if loc := h.nav.Location(); loc != "/login" {
		t.Errorf("location = %q, want /login", loc)
	}
}

func TestUnauthorizedOnLoginPageDoesNotNavigate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, http.StatusUnauthorized, `{"detail":"Incorrect email or password"}`)
	h.nav.location = "/login"

	_, err := h.client.Request(ctx, http.MethodPost, "/auth/login", nil, nil)
	if !IsUnauthorized(err) {
		t.Fatalf("err = %v", err)
	}
	if visits := h.nav.Visits(); len(visits) != 0 {
		t.Errorf("navigations = %v, want none", visits)
	}
	if n := h.store.deletes.Load(); n != 1 {
		t.Errorf("session cleared %d times, want 1", n)
	}
	if got := Message(err, "Login failed"); got != "Incorrect email or password" {
		t.Errorf("Message = %q", got)
	}
}

func TestUnauthorizedCallbackOncePerResponse(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, http.StatusUnauthorized, ``)

	var calls atomic.Int32
	h.client.onUnauthenticated = func(context.Context) { calls.Add(1) }

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.client.Request(ctx, http.MethodGet, "/projects", nil, nil)
		}()
	}
	wg.Wait()

	if got := calls.Load(); got != n {
		t.Errorf("callback ran %d times for %d failing responses", got, n)
	}
	if got := h.store.deletes.Load(); got != n {
		t.Errorf("session cleared %d times for %d failing responses", got, n)
	}
}

func TestNonUnauthorizedErrorsLeaveSession(t *testing.T) {
	statuses := []int{
		http.StatusBadRequest,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusUnprocessableEntity,
		http.StatusInternalServerError,
	}

	for _, status := range statuses {
		t.Run(fmt.Sprint(status), func(t *testing.T) {
			ctx := context.Background()
			body := fmt.Sprintf(`{"detail":"failure %d"}`, status)
			h := newHarness(t, status, body)
			h.sess.SetToken(ctx, "abc")
			h.sess.SetUser(ctx, map[string]any{"id": 1})

			_, err := h.client.Request(ctx, http.MethodGet, "/issues/1", nil, nil)

			var httpErr *HTTPError
			if !errors.As(err, &httpErr) {
				t.Fatalf("err = %v, want *HTTPError", err)
			}
			if httpErr.Status != status {
				t.Errorf("Status = %d, want %d", httpErr.Status, status)
			}
			if string(httpErr.Body) != body {
				t.Errorf("Body = %s, want %s", httpErr.Body, body)
			}
			if httpErr.Detail() != fmt.Sprintf("failure %d", status) {
				t.Errorf("Detail = %q", httpErr.Detail())
			}

			if token, _ := h.sess.Token(ctx); token != "abc" {
				t.Errorf("token = %q, want abc", token)
			}
			var user map[string]any
			if ok, _ := h.sess.User(ctx, &user); !ok {
				t.Error("cached user removed")
			}
			if n := h.store.deletes.Load(); n != 0 {
				t.Errorf("session deleted %d times", n)
			}
			if visits := h.nav.Visits(); len(visits) != 0 {
				t.Errorf("navigations = %v", visits)
			}
		})
	}
}

func TestForbiddenAddMemberKeepsToken(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, http.StatusForbidden, `{"detail":"Only project maintainers can add members"}`)
	h.sess.SetToken(ctx, "abc")

	_, err := h.client.Request(ctx, http.MethodPost, "/projects/5/members",
		map[string]string{"email": "bob@example.com", "role": "member"}, nil)

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusForbidden {
		t.Fatalf("err = %v, want 403", err)
	}
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(httpErr.Body, &body); err != nil || body.Detail != "Only project maintainers can add members" {
		t.Errorf("body = %s", httpErr.Body)
	}
	if token, _ := h.sess.Token(ctx); token != "abc" {
		t.Errorf("token = %q, want abc", token)
	}

	reqs := h.Requests()
	if reqs[0].body != `{"email":"bob@example.com","role":"member"}` {
		t.Errorf("request body = %s", reqs[0].body)
	}
}

func TestNonJSONErrorBody(t *testing.T) {
	h := newHarness(t, http.StatusBadGateway, `<html>bad gateway</html>`)

	_, err := h.client.Request(context.Background(), http.MethodGet, "/projects", nil, nil)
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("err = %v", err)
	}
	if httpErr.Body != nil {
		t.Errorf("Body = %s, want nil for non-JSON", httpErr.Body)
	}
	if got := Message(err, "Something went wrong"); got != "Something went wrong" {
		t.Errorf("Message = %q", got)
	}
}

func TestValidationDetailFallsBack(t *testing.T) {
	h := newHarness(t, http.StatusUnprocessableEntity, `{"detail":[{"loc":["body","title"],"msg":"field required"}]}`)

	_, err := h.client.Request(context.Background(), http.MethodPost, "/projects/1/issues", nil, nil)
	if got := Message(err, "Failed to create issue"); got != "Failed to create issue" {
		t.Errorf("Message = %q", got)
	}
	if StatusCode(err) != http.StatusUnprocessableEntity {
		t.Errorf("StatusCode = %d", StatusCode(err))
	}
}

func TestRepeatedReadsAreIndependent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, http.StatusOK, `{"id":3,"title":"Crash"}`)
	h.sess.SetToken(ctx, "abc")

	for i := 0; i < 2; i++ {
		raw, err := h.client.Request(ctx, http.MethodGet, "/issues/3", nil, nil)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if string(raw) != `{"id":3,"title":"Crash"}` {
			t.Errorf("read %d body = %s", i, raw)
		}
	}

	reqs := h.Requests()
	if len(reqs) != 2 {
		t.Fatalf("got %d requests, want 2", len(reqs))
	}
	if reqs[0].requestID == reqs[1].requestID {
		t.Error("request IDs repeated")
	}
	if token, _ := h.sess.Token(ctx); token != "abc" {
		t.Errorf("token = %q", token)
	}
	if n := h.store.deletes.Load(); n != 0 {
		t.Errorf("session mutated %d times", n)
	}
}

func TestQueryAndEmptyResponses(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, http.StatusNoContent, ``)

	query := url.Values{"status": {"open"}, "page": {"2"}}
	raw, err := h.client.Request(ctx, http.MethodDelete, "/issues/4", nil, query)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if raw != nil {
		t.Errorf("raw = %s, want nil", raw)
	}

	var out map[string]any
	if err := h.client.Do(ctx, http.MethodDelete, "/issues/4", nil, nil, &out); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if out != nil {
		t.Errorf("out = %v, want untouched", out)
	}

	reqs := h.Requests()
	if got := reqs[0].query.Get("status"); got != "open" {
		t.Errorf("status query = %q", got)
	}
	if got := reqs[0].query.Get("page"); got != "2" {
		t.Errorf("page query = %q", got)
	}
	if reqs[0].body != "" {
		t.Errorf("body = %q, want empty", reqs[0].body)
	}
}

func TestInvalidSuccessBody(t *testing.T) {
	h := newHarness(t, http.StatusOK, `not json`)

	_, err := h.client.Request(context.Background(), http.MethodGet, "/projects", nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if StatusCode(err) != 0 || IsNetwork(err) {
		t.Errorf("err = %v, want plain decode error", err)
	}
}

func TestNetworkError(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, http.StatusOK, `{}`)
	h.sess.SetToken(ctx, "abc")
	h.server.Close()

	_, err := h.client.Request(ctx, http.MethodGet, "/projects", nil, nil)
	if !IsNetwork(err) {
		t.Fatalf("err = %v, want *NetworkError", err)
	}
	var netErr *NetworkError
	errors.As(err, &netErr)
	if netErr.Method != http.MethodGet || netErr.Path != "/projects" {
		t.Errorf("NetworkError = %+v", netErr)
	}
	if netErr.Unwrap() == nil {
		t.Error("Unwrap = nil")
	}
	if StatusCode(err) != 0 {
		t.Errorf("StatusCode = %d", StatusCode(err))
	}
	if got := Message(err, "Failed to load projects"); got != "Failed to load projects" {
		t.Errorf("Message = %q", got)
	}
	if token, _ := h.sess.Token(ctx); token != "abc" {
		t.Errorf("token = %q, network failure must not clear it", token)
	}
	if visits := h.nav.Visits(); len(visits) != 0 {
		t.Errorf("navigations = %v", visits)
	}
}

// truncatedServer answers with status and a Content-Length it never
// fulfils, then drops the connection mid-body.
func truncatedServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Length", "100")
		w.WriteHeader(status)
		io.WriteString(w, `{"detail":"Could`)
		w.(http.Flusher).Flush()
		conn, _, err := w.(http.Hijacker).Hijack()
		if err != nil {
			t.Errorf("Hijack: %v", err)
			return
		}
		conn.Close()
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestTruncatedBody(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		wantStatus  int
		wantCleared bool
		wantVisits  []string
	}{
		{"401 still clears and redirects", http.StatusUnauthorized, http.StatusUnauthorized, true, []string{"/login"}},
		{"403 is an HTTPError without body", http.StatusForbidden, http.StatusForbidden, false, nil},
		{"200 is a network error", http.StatusOK, 0, false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			ts := truncatedServer(t, tt.status)
			sess := session.New(session.NewMemoryStore())
			sess.SetToken(ctx, "abc")
			nav := &fakeNavigator{location: "/projects"}

			c, err := New(Config{
				BaseURL:           ts.URL + "/api",
				Session:           sess,
				Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
				OnUnauthenticated: RedirectToLogin(nav, "/login"),
			})
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			_, err = c.Request(ctx, http.MethodGet, "/projects", nil, nil)
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := StatusCode(err); got != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d (err %v)", got, tt.wantStatus, err)
			}
			if tt.wantStatus == 0 && !IsNetwork(err) {
				t.Errorf("err = %v, want *NetworkError", err)
			}
			var httpErr *HTTPError
			if errors.As(err, &httpErr) {
				if httpErr.Body != nil {
					t.Errorf("Body = %s, want nil for a truncated body", httpErr.Body)
				}
				if got := Message(err, "Request failed"); got != "Request failed" {
					t.Errorf("Message = %q, want fallback", got)
				}
			}

			token, _ := sess.Token(ctx)
			if cleared := token == ""; cleared != tt.wantCleared {
				t.Errorf("token = %q, cleared = %v, want %v", token, cleared, tt.wantCleared)
			}
			if visits := nav.Visits(); fmt.Sprint(visits) != fmt.Sprint(tt.wantVisits) {
				t.Errorf("navigations = %v, want %v", visits, tt.wantVisits)
			}
		})
	}
}

func TestCanceledContext(t *testing.T) {
	h := newHarness(t, http.StatusOK, `{}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.client.Request(ctx, http.MethodGet, "/projects", nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if !IsNetwork(err) {
		t.Errorf("err = %v, want *NetworkError", err)
	}
}

func TestHTTPErrorString(t *testing.T) {
	err := &HTTPError{
		Status: http.StatusForbidden,
		Body:   json.RawMessage(`{"detail":"You are not a member of this project"}`),
		Method: http.MethodGet,
		Path:   "/projects/2",
	}
	got := err.Error()
	for _, want := range []string{"GET", "/projects/2", "403", "You are not a member of this project"} {
		if !strings.Contains(got, want) {
			t.Errorf("Error() = %q, missing %q", got, want)
		}
	}
}

func TestRedirectToLogin(t *testing.T) {
	tests := []struct {
		name     string
		location string
		want     []string
	}{
		{"from projects", "/projects", []string{"/login"}},
		{"from issue", "/issues/12", []string{"/login"}},
		{"already on login", "/login", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nav := &fakeNavigator{location: tt.location}
			redirect := RedirectToLogin(nav, "/login")
			redirect(context.Background())
			redirect(context.Background())

			got := nav.Visits()
			if len(got) != len(tt.want) {
				t.Fatalf("visits = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("visits = %v, want %v", got, tt.want)
				}
			}
		})
	}
}
