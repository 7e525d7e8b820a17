package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	"github.com/hylla/kanri/internal/adapters/server/common"
	"github.com/hylla/kanri/internal/adapters/storage/sqlite"
	"github.com/hylla/kanri/internal/api"
	"github.com/hylla/kanri/internal/backend"
	"github.com/hylla/kanri/internal/domain"
)

// stubBoards satisfies the MCP board contract without any backing store.
type stubBoards struct{}

func (stubBoards) ListProjects(context.Context, int) (common.ProjectList, error) {
	return common.ProjectList{Projects: []common.ProjectSummary{}}, nil
}

func (stubBoards) GetBoard(context.Context, int64) (common.BoardSnapshot, error) {
	return common.BoardSnapshot{}, nil
}

func (stubBoards) MoveCard(context.Context, common.MoveCardRequest) (common.MoveCardResult, error) {
	return common.MoveCardResult{}, nil
}

func (stubBoards) CreateStory(context.Context, common.CreateStoryRequest) (common.CardSummary, error) {
	return common.CardSummary{}, nil
}

func (stubBoards) CreateTask(context.Context, common.CreateTaskRequest) (common.CardSummary, error) {
	return common.CardSummary{}, nil
}

func (stubBoards) SprintProgress(context.Context, int64) (common.ProgressSummary, error) {
	return common.ProgressSummary{}, nil
}

// newBackend builds one backend service over an in-memory repository with a seeded user.
func newBackend(t *testing.T) *backend.Service {
	t.Helper()
	repo, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	svc := backend.NewService(repo, nil, nil, backend.ServiceConfig{BcryptCost: bcrypt.MinCost})
	if _, err := svc.EnsureUser(context.Background(), domain.User{Username: "ada"}, api.PrehashPassword("secret")); err != nil {
		t.Fatalf("EnsureUser() error = %v", err)
	}
	return svc
}

// get performs one GET and returns status plus body.
func get(t *testing.T, client *http.Client, url string) (int, string) {
	t.Helper()
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	return resp.StatusCode, string(body)
}

// TestNewHandlerRoutesEveryTransport verifies health, REST, metrics, and MCP share one mux.
func TestNewHandlerRoutesEveryTransport(t *testing.T) {
	registry := prometheus.NewRegistry()
	handler, cfg, err := NewHandler(Config{}, Dependencies{
		Backend:  newBackend(t),
		Board:    stubBoards{},
		Registry: registry,
	})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	if cfg.MCPEndpoint != "/mcp" || cfg.MetricsEndpoint != "/metrics" {
		t.Fatalf("cfg = %#v, want default endpoints", cfg)
	}
	server := httptest.NewServer(handler)
	defer server.Close()
	client := server.Client()

	for _, path := range []string{"/healthz", "/readyz"} {
		status, body := get(t, client, server.URL+path)
		if status != http.StatusOK || !strings.Contains(body, `"ok"`) {
			t.Fatalf("%s = %d %q, want 200 ok", path, status, body)
		}
	}

	payload, _ := json.Marshal(map[string]string{"username": "ada", "password": api.PrehashPassword("secret")})
	resp, err := client.Post(server.URL+"/v1/auth/login", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("Post(login) error = %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}

	status, _ := get(t, client, server.URL+"/api/project-settings/1/statuses")
	if status != http.StatusUnauthorized {
		t.Fatalf("statuses without token = %d, want 401", status)
	}

	status, body := get(t, client, server.URL+"/metrics")
	if status != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", status)
	}
	if !strings.Contains(body, "kanri_http_requests_total") {
		t.Fatalf("metrics body missing request counter:\n%s", body)
	}

	init := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","clientInfo":{"name":"t","version":"1"}}}`
	resp, err = client.Post(server.URL+"/mcp", "application/json", strings.NewReader(init))
	if err != nil {
		t.Fatalf("Post(mcp) error = %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mcp status = %d, want 200", resp.StatusCode)
	}
}

// TestNewHandlerBoardOnly verifies MCP-only composition leaves REST routes unmounted.
func TestNewHandlerBoardOnly(t *testing.T) {
	handler, _, err := NewHandler(Config{}, Dependencies{Board: stubBoards{}})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	server := httptest.NewServer(handler)
	defer server.Close()

	status, _ := get(t, server.Client(), server.URL+"/v1/projects")
	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
}

// TestNewHandlerRequiresDependency verifies composition fails with nothing to serve.
func TestNewHandlerRequiresDependency(t *testing.T) {
	if _, _, err := NewHandler(Config{}, Dependencies{}); err == nil {
		t.Fatalf("NewHandler() error = nil, want non-nil")
	}
}

// TestNormalizeConfig verifies defaults and endpoint collision validation.
func TestNormalizeConfig(t *testing.T) {
	got, err := normalizeConfig(Config{HTTPBind: " ", MCPEndpoint: "agents/", ServerName: " x "})
	if err != nil {
		t.Fatalf("normalizeConfig() error = %v", err)
	}
	want := Config{
		HTTPBind:        defaultBindAddress,
		V1Prefix:        "/v1",
		APIPrefix:       "/api",
		MCPEndpoint:     "/agents",
		MetricsEndpoint: "/metrics",
		ServerName:      "x",
		ServerVersion:   "dev",
	}
	if got != want {
		t.Fatalf("normalizeConfig() = %#v, want %#v", got, want)
	}

	for _, cfg := range []Config{
		{MCPEndpoint: "/api"},
		{MetricsEndpoint: "/healthz"},
		{V1Prefix: "/x", APIPrefix: "x/"},
	} {
		if _, err := normalizeConfig(cfg); err == nil {
			t.Fatalf("normalizeConfig(%#v) error = nil, want collision error", cfg)
		}
	}
}

// TestNormalizeEndpoint verifies slash trimming and fallback.
func TestNormalizeEndpoint(t *testing.T) {
	cases := map[string]string{
		"":        "/mcp",
		"/":       "/mcp",
		"mcp":     "/mcp",
		"//a/b//": "/a/b",
		" /x ":    "/x",
	}
	for in, want := range cases {
		if got := normalizeEndpoint(in, "/mcp"); got != want {
			t.Fatalf("normalizeEndpoint(%q) = %q, want %q", in, got, want)
		}
	}
}

// TestRunStopsOnCancel verifies graceful shutdown once the context is cancelled.
func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Config{HTTPBind: "127.0.0.1:0"}, Dependencies{Board: stubBoards{}})
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
