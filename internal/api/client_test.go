package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hylla/kanri/internal/domain"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   string
}

// newTestClient starts a server answering every request with handler and records requests.
func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) (*Client, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests = append(requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Header: r.Header.Clone(),
			Body:   string(body),
		})
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	client, err := New(Config{BaseURL: srv.URL}, staticToken("tok-1"), opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client, &requests
}

func respondJSON(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func TestClientAttachesBearerTokenAndRequestID(t *testing.T) {
	client, reqs := newTestClient(t, respondJSON(200, `{"content":[{"id":1,"name":"Alpha"}],"totalPages":3,"page":1}`),
		WithRequestIDs(func() string { return "req-1" }))

	page, err := client.ListProjects(context.Background(), 1, 20)
	if err != nil {
		t.Fatalf("ListProjects() error = %v", err)
	}
	if len(page.Content) != 1 || page.Content[0].Name != "Alpha" || page.TotalPages != 3 {
		t.Fatalf("unexpected page %#v", page)
	}
	got := (*reqs)[0]
	if got.Path != "/v1/projects" || got.Query != "page=1&size=20" {
		t.Fatalf("unexpected request %s?%s", got.Path, got.Query)
	}
	if got.Header.Get("Authorization") != "Bearer tok-1" {
		t.Fatalf("unexpected authorization %q", got.Header.Get("Authorization"))
	}
	if got.Header.Get("X-Request-ID") != "req-1" {
		t.Fatalf("unexpected request id %q", got.Header.Get("X-Request-ID"))
	}
}

func TestClientOmitsAuthorizationWithoutToken(t *testing.T) {
	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("Authorization")
		respondJSON(200, `{"content":[],"totalPages":0}`)(w, r)
	}))
	defer srv.Close()
	client, err := New(Config{BaseURL: srv.URL}, staticToken(""))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := client.ListProjects(context.Background(), 0, 10); err != nil {
		t.Fatalf("ListProjects() error = %v", err)
	}
	if seen != "" {
		t.Fatalf("expected no authorization header, got %q", seen)
	}
}

func TestClientUnauthorizedRedirectsOncePerResponse(t *testing.T) {
	var redirects atomic.Int32
	client, _ := newTestClient(t,
		respondJSON(http.StatusUnauthorized, `{"error":{"code":"unauthorized","message":"token expired"}}`),
		WithUnauthorizedHandler(func(*StatusError) { redirects.Add(1) }),
	)

	_, err := client.UserSettings(context.Background())
	if !errors.Is(err, ErrUnauthorized) || !IsUnauthorized(err) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if redirects.Load() != 1 {
		t.Fatalf("expected one redirect, got %d", redirects.Load())
	}

	_, err = client.Statuses(context.Background(), 1)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if redirects.Load() != 2 {
		t.Fatalf("expected one redirect per response, got %d", redirects.Load())
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Message != "token expired" {
		t.Fatalf("expected decoded error envelope, got %#v", err)
	}
}

func TestClientStatusErrorDoesNotRedirect(t *testing.T) {
	var redirects atomic.Int32
	client, _ := newTestClient(t,
		respondJSON(http.StatusNotFound, `{"error":{"code":"not_found","message":"project not found"}}`),
		WithUnauthorizedHandler(func(*StatusError) { redirects.Add(1) }),
	)
	_, err := client.ProjectModules(context.Background(), 9)
	if StatusCode(err) != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Fatal("404 must not match ErrUnauthorized")
	}
	if redirects.Load() != 0 {
		t.Fatalf("expected no redirect, got %d", redirects.Load())
	}
	if !strings.Contains(err.Error(), "project not found") {
		t.Fatalf("unexpected error text %q", err.Error())
	}
}

func TestClientRejectsMalformedResponses(t *testing.T) {
	cases := map[string]struct {
		body string
		call func(*Client) error
	}{
		"invalid json": {
			body: `{"content":`,
			call: func(c *Client) error { _, err := c.ListProjects(context.Background(), 0, 5); return err },
		},
		"missing content": {
			body: `{"items":[],"totalPages":1}`,
			call: func(c *Client) error { _, err := c.ListProjects(context.Background(), 0, 5); return err },
		},
		"wrong type": {
			body: `{"content":"nope","totalPages":1}`,
			call: func(c *Client) error { _, err := c.ListProjects(context.Background(), 0, 5); return err },
		},
		"story without status": {
			body: `[{"id":1,"title":"x"}]`,
			call: func(c *Client) error { _, err := c.UserStories(context.Background(), 1); return err },
		},
		"status without id": {
			body: `{"new":{"name":"New"}}`,
			call: func(c *Client) error { _, err := c.Statuses(context.Background(), 1); return err },
		},
		"progress missing field": {
			body: `{"percentage":50,"totalTasks":2}`,
			call: func(c *Client) error { _, err := c.SprintProgress(context.Background(), 1); return err },
		},
		"empty body": {
			body: ``,
			call: func(c *Client) error { _, err := c.Tasks(context.Background(), 1); return err },
		},
		"null list": {
			body: `null`,
			call: func(c *Client) error { _, err := c.Tasks(context.Background(), 1); return err },
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			client, _ := newTestClient(t, respondJSON(200, tc.body))
			if err := tc.call(client); !errors.Is(err, ErrMalformedResponse) {
				t.Fatalf("expected ErrMalformedResponse, got %v", err)
			}
		})
	}
}

func TestClientWrapsTransportFailures(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	client, err := New(Config{BaseURL: url}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = client.UserSettings(context.Background())
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestMoveStoryRequest(t *testing.T) {
	client, reqs := newTestClient(t, respondJSON(200, `{"id":1,"projectId":1,"title":"US","statusId":5,"order":0}`))
	card, err := client.MoveCard(context.Background(), domain.StoryKey(1), 5, 0)
	if err != nil {
		t.Fatalf("MoveCard() error = %v", err)
	}
	got := (*reqs)[0]
	if got.Method != http.MethodPut || got.Path != "/api/user-story/1/status/5" {
		t.Fatalf("unexpected request %s %s", got.Method, got.Path)
	}
	if strings.TrimSpace(got.Body) != `{"order":0}` {
		t.Fatalf("unexpected body %s", got.Body)
	}
	if card.StatusID != 5 || card.Key != domain.StoryKey(1) {
		t.Fatalf("unexpected card %#v", card)
	}
}

func TestMoveTaskUsesTaskRoute(t *testing.T) {
	client, reqs := newTestClient(t, respondJSON(200, `{"id":4,"name":"T","statusId":2,"assigneeIds":[]}`))
	if _, err := client.MoveCard(context.Background(), domain.TaskKey(4), 2, 3); err != nil {
		t.Fatalf("MoveCard() error = %v", err)
	}
	if (*reqs)[0].Path != "/api/tasks/4/status/2" {
		t.Fatalf("unexpected path %s", (*reqs)[0].Path)
	}
}

func TestCreateTaskSendsEmptyAssignees(t *testing.T) {
	client, reqs := newTestClient(t, respondJSON(201, `{"id":9,"projectId":1,"name":"write docs","statusId":2,"assigneeIds":[]}`))
	card, err := client.CreateTask(context.Background(), domain.TaskDraft{ProjectID: 1, StatusID: 2, Name: "write docs"})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	got := (*reqs)[0]
	if got.Method != http.MethodPost || got.Path != "/api/tasks" {
		t.Fatalf("unexpected request %s %s", got.Method, got.Path)
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(got.Body), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	assignees, ok := body["assigneeIds"].([]any)
	if !ok || len(assignees) != 0 {
		t.Fatalf("expected assigneeIds: [], got %#v", body["assigneeIds"])
	}
	if card.Key != domain.TaskKey(9) || card.Title != "write docs" {
		t.Fatalf("unexpected card %#v", card)
	}
}

func TestCreateStoryEncodesPointsAndDueDate(t *testing.T) {
	client, reqs := newTestClient(t, respondJSON(201, `{"id":2,"projectId":1,"title":"Story","statusId":1,"points":{"ux":1},"dueDate":"2026-03-01"}`))
	ux := 1.0
	card, err := client.CreateStory(context.Background(), domain.StoryDraft{ProjectID: 1, StatusID: 1, Title: "Story", Points: domain.Points{UX: &ux}})
	if err != nil {
		t.Fatalf("CreateStory() error = %v", err)
	}
	if !strings.Contains((*reqs)[0].Body, `"points":{"ux":1}`) {
		t.Fatalf("unexpected body %s", (*reqs)[0].Body)
	}
	if card.DueDate == nil || card.DueDate.Format("2006-01-02") != "2026-03-01" {
		t.Fatalf("unexpected due date %v", card.DueDate)
	}
	if card.Points.UX == nil || *card.Points.UX != 1 {
		t.Fatalf("unexpected points %#v", card.Points)
	}
}

func TestStatusesAreOrderedByExplicitPosition(t *testing.T) {
	client, _ := newTestClient(t, respondJSON(200, `{
		"done":{"id":5,"name":"Done","order":4},
		"archived":{"id":6,"name":"Archived"},
		"new":{"id":1,"name":"New","order":0},
		"ready":{"id":2,"name":"Ready","order":1}
	}`))
	cols, err := client.Statuses(context.Background(), 1)
	if err != nil {
		t.Fatalf("Statuses() error = %v", err)
	}
	var slugs []string
	for i, c := range cols {
		slugs = append(slugs, c.Slug)
		if c.Position != i {
			t.Fatalf("expected renumbered position %d, got %d", i, c.Position)
		}
	}
	if strings.Join(slugs, ",") != "new,ready,done,archived" {
		t.Fatalf("unexpected order %v", slugs)
	}
}

func TestLoginPrehashesPassword(t *testing.T) {
	var body LoginRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		respondJSON(200, `{"token":"t","user":{"id":1,"username":"ada"}}`)(w, r)
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL, PrehashPasswords: true}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	res, err := client.Login(context.Background(), " ada ", "secret")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if res.Token != "t" || res.User.Username != "ada" {
		t.Fatalf("unexpected login result %#v", res)
	}
	if body.Username != "ada" || body.Password != PrehashPassword("secret") || body.Password == "secret" {
		t.Fatalf("unexpected login body %#v", body)
	}
}

func TestCustomPrefixes(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	client, err := New(Config{BaseURL: srv.URL + "/pm", V1Prefix: "/rest/v1", APIPrefix: "/rest/api"}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := client.ChangePassword(context.Background(), "a", "b"); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}
	if paths[0] != "/pm/rest/v1/user-settings/change-password" {
		t.Fatalf("unexpected path %s", paths[0])
	}
}

func TestNewRejectsInvalidBaseURL(t *testing.T) {
	if _, err := New(Config{BaseURL: "not a url"}, nil); err == nil {
		t.Fatal("expected invalid base url error")
	}
}
