package mcpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/hylla/kanri/internal/adapters/server/common"
	"github.com/mark3labs/mcp-go/mcp"
)

// stubBoardService records tool inputs and returns fixture results.
type stubBoardService struct {
	projects common.ProjectList
	board    common.BoardSnapshot
	moved    common.MoveCardResult
	created  common.CardSummary
	progress common.ProgressSummary
	err      error

	lastPage     int
	lastProject  int64
	lastMove     common.MoveCardRequest
	lastStory    common.CreateStoryRequest
	lastTask     common.CreateTaskRequest
	lastSprintID int64
}

func (s *stubBoardService) ListProjects(_ context.Context, page int) (common.ProjectList, error) {
	s.lastPage = page
	return s.projects, s.err
}

func (s *stubBoardService) GetBoard(_ context.Context, projectID int64) (common.BoardSnapshot, error) {
	s.lastProject = projectID
	return s.board, s.err
}

func (s *stubBoardService) MoveCard(_ context.Context, req common.MoveCardRequest) (common.MoveCardResult, error) {
	s.lastMove = req
	return s.moved, s.err
}

func (s *stubBoardService) CreateStory(_ context.Context, req common.CreateStoryRequest) (common.CardSummary, error) {
	s.lastStory = req
	return s.created, s.err
}

func (s *stubBoardService) CreateTask(_ context.Context, req common.CreateTaskRequest) (common.CardSummary, error) {
	s.lastTask = req
	return s.created, s.err
}

func (s *stubBoardService) SprintProgress(_ context.Context, sprintID int64) (common.ProgressSummary, error) {
	s.lastSprintID = sprintID
	return s.progress, s.err
}

// jsonRPCResponse models minimal JSON-RPC response fields used in MCP adapter tests.
type jsonRPCResponse struct {
	ID     float64        `json:"id"`
	Result map[string]any `json:"result"`
}

// callToolRequest constructs one tools/call JSON-RPC request payload.
func callToolRequest(id int, toolName string, arguments map[string]any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      toolName,
			"arguments": arguments,
		},
	}
}

// toolResultText decodes the first text entry from one tool-call result payload.
func toolResultText(t *testing.T, result map[string]any) string {
	t.Helper()

	contentRaw, ok := result["content"].([]any)
	if !ok || len(contentRaw) == 0 {
		t.Fatalf("content missing in tool result: %#v", result)
	}
	first, ok := contentRaw[0].(map[string]any)
	if !ok {
		t.Fatalf("first content entry has unexpected type: %#v", contentRaw[0])
	}
	text, ok := first["text"].(string)
	if !ok {
		t.Fatalf("content text missing in tool result: %#v", first)
	}
	return text
}

// toolResultStructured decodes structuredContent as one map.
func toolResultStructured(t *testing.T, result map[string]any) map[string]any {
	t.Helper()
	structured, ok := result["structuredContent"].(map[string]any)
	if !ok {
		t.Fatalf("structuredContent missing in tool result: %#v", result)
	}
	return structured
}

// postJSONRPC sends one JSON-RPC payload and decodes the response body.
func postJSONRPC(t *testing.T, client *http.Client, url string, payload any) (*http.Response, jsonRPCResponse) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	var decoded jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if err := resp.Body.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return resp, decoded
}

// initializeRequest builds an MCP initialize request payload.
func initializeRequest() map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "initialize",
		"params": map[string]any{
			"protocolVersion": mcp.LATEST_PROTOCOL_VERSION,
			"clientInfo": map[string]any{
				"name":    "kanri-test",
				"version": "1.0.0",
			},
		},
	}
}

// callToolResultText decodes the first textual content block from a CallToolResult.
func callToolResultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil {
		t.Fatalf("result = nil, want non-nil")
	}
	if len(result.Content) == 0 {
		t.Fatalf("result content is empty")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content[0] has unexpected type %T", result.Content[0])
	}
	return text.Text
}

// newTestServer starts one MCP handler over boards and performs initialize.
func newTestServer(t *testing.T, boards common.BoardService) *httptest.Server {
	t.Helper()
	handler, err := NewHandler(Config{}, boards)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	_, _ = postJSONRPC(t, server.Client(), server.URL, initializeRequest())
	return server
}

// TestHandlerUsesStatelessTransport verifies MCP transport does not issue session ids.
func TestHandlerUsesStatelessTransport(t *testing.T) {
	handler, err := NewHandler(Config{}, &stubBoardService{})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}

	server := httptest.NewServer(handler)
	defer server.Close()

	resp, decoded := postJSONRPC(t, server.Client(), server.URL, initializeRequest())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if decoded.ID != 1 {
		t.Fatalf("id = %v, want 1", decoded.ID)
	}
	if got := resp.Header.Get("Mcp-Session-Id"); got != "" {
		t.Fatalf("Mcp-Session-Id header = %q, want empty (stateless transport)", got)
	}
}

// TestHandlerRegistersBoardTools verifies tool discovery lists every board tool.
func TestHandlerRegistersBoardTools(t *testing.T) {
	server := newTestServer(t, &stubBoardService{})
	_, toolsResp := postJSONRPC(t, server.Client(), server.URL, map[string]any{
		"jsonrpc": "2.0",
		"id":      2,
		"method":  "tools/list",
	})

	toolsRaw, ok := toolsResp.Result["tools"].([]any)
	if !ok {
		t.Fatalf("tools list payload missing tools: %#v", toolsResp.Result)
	}
	toolNames := make([]string, 0, len(toolsRaw))
	for _, toolRaw := range toolsRaw {
		toolMap, ok := toolRaw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := toolMap["name"].(string)
		toolNames = append(toolNames, name)
	}
	for _, required := range []string{
		"kanri.list_projects",
		"kanri.get_board",
		"kanri.move_card",
		"kanri.create_story",
		"kanri.create_task",
		"kanri.sprint_progress",
	} {
		if !slices.Contains(toolNames, required) {
			t.Fatalf("tool list missing %q: %#v", required, toolNames)
		}
	}
}

// TestHandlerListProjectsAndBoard verifies read tools pass arguments and return structured data.
func TestHandlerListProjectsAndBoard(t *testing.T) {
	boards := &stubBoardService{
		projects: common.ProjectList{
			Projects:   []common.ProjectSummary{{ID: 3, Slug: "roadmap", Name: "Roadmap"}},
			Page:       1,
			TotalPages: 2,
		},
		board: common.BoardSnapshot{
			ProjectID: 3,
			Columns: []common.ColumnSnapshot{
				{ID: 10, Slug: "new", Name: "New", Cards: []common.CardSummary{{Key: "story-1", Ref: "US-1", Title: "Login"}}},
				{ID: 11, Slug: "done", Name: "Done", Cards: []common.CardSummary{}},
			},
		},
	}
	server := newTestServer(t, boards)

	_, listResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(2, "kanri.list_projects", map[string]any{"page": 1}))
	structured := toolResultStructured(t, listResp.Result)
	projectsRaw, ok := structured["projects"].([]any)
	if !ok || len(projectsRaw) != 1 {
		t.Fatalf("projects = %#v, want one row", structured["projects"])
	}
	if got := structured["total_pages"]; got != float64(2) {
		t.Fatalf("total_pages = %#v, want 2", got)
	}
	if boards.lastPage != 1 {
		t.Fatalf("page = %d, want 1", boards.lastPage)
	}

	_, boardResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(3, "kanri.get_board", map[string]any{"project_id": 3}))
	structured = toolResultStructured(t, boardResp.Result)
	columns, ok := structured["columns"].([]any)
	if !ok || len(columns) != 2 {
		t.Fatalf("columns = %#v, want two", structured["columns"])
	}
	if boards.lastProject != 3 {
		t.Fatalf("project = %d, want 3", boards.lastProject)
	}
}

// TestHandlerMoveCardIndex verifies the optional index maps to append or positioned moves.
func TestHandlerMoveCardIndex(t *testing.T) {
	cases := []struct {
		name      string
		args      map[string]any
		wantIndex *int
	}{
		{
			name: "append without index",
			args: map[string]any{"project_id": 3, "card": "US-1", "status_id": 11},
		},
		{
			name:      "explicit zero index",
			args:      map[string]any{"project_id": 3, "card": "US-1", "status_id": 11, "index": 0},
			wantIndex: new(int),
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			boards := &stubBoardService{
				moved: common.MoveCardResult{Moved: true, Card: common.CardSummary{Key: "story-1", StatusID: 11}},
			}
			server := newTestServer(t, boards)

			_, resp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(2, "kanri.move_card", tt.args))
			structured := toolResultStructured(t, resp.Result)
			if structured["moved"] != true {
				t.Fatalf("moved = %#v, want true", structured["moved"])
			}
			got := boards.lastMove
			if got.ProjectID != 3 || got.Card != "US-1" || got.StatusID != 11 {
				t.Fatalf("move request = %#v", got)
			}
			switch {
			case tt.wantIndex == nil && got.Index != nil:
				t.Fatalf("index = %d, want nil", *got.Index)
			case tt.wantIndex != nil && (got.Index == nil || *got.Index != *tt.wantIndex):
				t.Fatalf("index = %v, want %d", got.Index, *tt.wantIndex)
			}
		})
	}
}

// TestHandlerCreateAndProgressTools verifies create and progress tool wiring.
func TestHandlerCreateAndProgressTools(t *testing.T) {
	boards := &stubBoardService{
		created:  common.CardSummary{Key: "task-4", Ref: "T-4", Kind: "task", Title: "Write docs"},
		progress: common.ProgressSummary{SprintID: 3, Percentage: 50, TotalTasks: 2, CompletedTasks: 1},
	}
	server := newTestServer(t, boards)

	_, storyResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(2, "kanri.create_story", map[string]any{
		"project_id": 3,
		"title":      "Login page",
		"due_date":   "2026-11-01",
	}))
	_ = toolResultStructured(t, storyResp.Result)
	if boards.lastStory.Title != "Login page" || boards.lastStory.DueDate != "2026-11-01" || boards.lastStory.StatusID != 0 {
		t.Fatalf("story request = %#v", boards.lastStory)
	}

	_, taskResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(3, "kanri.create_task", map[string]any{
		"project_id":    3,
		"name":          "Write docs",
		"status_id":     11,
		"user_story_id": 1,
	}))
	structured := toolResultStructured(t, taskResp.Result)
	if structured["ref"] != "T-4" {
		t.Fatalf("ref = %#v, want T-4", structured["ref"])
	}
	if boards.lastTask.UserStoryID != 1 || boards.lastTask.StatusID != 11 {
		t.Fatalf("task request = %#v", boards.lastTask)
	}

	_, progressResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(4, "kanri.sprint_progress", map[string]any{"sprint_id": 3}))
	structured = toolResultStructured(t, progressResp.Result)
	if structured["percentage"] != float64(50) {
		t.Fatalf("percentage = %#v, want 50", structured["percentage"])
	}
	if boards.lastSprintID != 3 {
		t.Fatalf("sprint id = %d, want 3", boards.lastSprintID)
	}
}

// TestHandlerToolCallErrorPaths verifies required-arg and mapped-service errors.
func TestHandlerToolCallErrorPaths(t *testing.T) {
	cases := []struct {
		name       string
		boards     *stubBoardService
		tool       string
		args       map[string]any
		wantPrefix string
	}{
		{
			name:       "missing project id",
			boards:     &stubBoardService{},
			tool:       "kanri.get_board",
			args:       map[string]any{},
			wantPrefix: "required argument",
		},
		{
			name:       "missing card",
			boards:     &stubBoardService{},
			tool:       "kanri.move_card",
			args:       map[string]any{"project_id": 1, "status_id": 2},
			wantPrefix: "required argument",
		},
		{
			name:       "signed out",
			boards:     &stubBoardService{err: errors.Join(common.ErrUnauthorized, errors.New("run kanri login first"))},
			tool:       "kanri.list_projects",
			args:       map[string]any{},
			wantPrefix: "unauthorized:",
		},
		{
			name:       "unknown card",
			boards:     &stubBoardService{err: errors.Join(common.ErrNotFound, errors.New("US-9"))},
			tool:       "kanri.move_card",
			args:       map[string]any{"project_id": 1, "card": "US-9", "status_id": 2},
			wantPrefix: "not_found:",
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(t, tt.boards)
			_, resp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(2, tt.tool, tt.args))
			if isErr, _ := resp.Result["isError"].(bool); !isErr {
				t.Fatalf("isError = false, want true: %#v", resp.Result)
			}
			if got := toolResultText(t, resp.Result); !strings.HasPrefix(got, tt.wantPrefix) {
				t.Fatalf("text = %q, want prefix %q", got, tt.wantPrefix)
			}
		})
	}
}

// TestNewHandlerRequiresBoardService verifies construction fails without a board service.
func TestNewHandlerRequiresBoardService(t *testing.T) {
	handler, err := NewHandler(Config{}, nil)
	if err == nil {
		t.Fatalf("NewHandler() error = nil, want non-nil")
	}
	if handler != nil {
		t.Fatalf("handler = %#v, want nil", handler)
	}
}

// TestNormalizeConfig verifies config defaults and path normalization.
func TestNormalizeConfig(t *testing.T) {
	cases := []struct {
		name string
		in   Config
		want Config
	}{
		{
			name: "defaults",
			in:   Config{},
			want: Config{ServerName: "kanri", ServerVersion: "dev", EndpointPath: "/mcp"},
		},
		{
			name: "trimmed values and slash prefix",
			in:   Config{ServerName: " kanri-agent ", ServerVersion: " v1.2.3 ", EndpointPath: "custom/path"},
			want: Config{ServerName: "kanri-agent", ServerVersion: "v1.2.3", EndpointPath: "/custom/path"},
		},
		{
			name: "endpoint trim of repeated slashes",
			in:   Config{ServerName: "kanri", ServerVersion: "dev", EndpointPath: "///mcp///"},
			want: Config{ServerName: "kanri", ServerVersion: "dev", EndpointPath: "/mcp"},
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeConfig(tt.in); got != tt.want {
				t.Fatalf("normalizeConfig() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

// TestHandlerServeHTTPUnavailable verifies nil handler paths fail closed with 503.
func TestHandlerServeHTTPUnavailable(t *testing.T) {
	for _, handler := range []*Handler{nil, {}} {
		req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(`{}`))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
		}
		if !strings.Contains(rec.Body.String(), "mcp handler unavailable") {
			t.Fatalf("body = %q, want mcp handler unavailable", rec.Body.String())
		}
	}
}

// TestToolResultFromErrorMapping verifies error-to-tool-result mapping.
func TestToolResultFromErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantPrefix string
	}{
		{name: "nil error", err: nil, wantPrefix: "unknown error"},
		{name: "unauthorized", err: errors.Join(common.ErrUnauthorized, errors.New("expired")), wantPrefix: "unauthorized:"},
		{name: "invalid", err: errors.Join(common.ErrInvalidRequest, errors.New("bad")), wantPrefix: "invalid_request:"},
		{name: "not found", err: errors.Join(common.ErrNotFound, errors.New("missing")), wantPrefix: "not_found:"},
		{name: "unavailable", err: errors.Join(common.ErrUnavailable, errors.New("dial")), wantPrefix: "unavailable:"},
		{name: "internal", err: errors.New("boom"), wantPrefix: "internal_error:"},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			result := toolResultFromError(tt.err)
			if !result.IsError {
				t.Fatalf("IsError = false, want true")
			}
			if got := callToolResultText(t, result); !strings.HasPrefix(got, tt.wantPrefix) {
				t.Fatalf("text = %q, want prefix %q", got, tt.wantPrefix)
			}
		})
	}
}
