// Package mcpapi provides a stateless MCP adapter exposing board tools to agents.
package mcpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hylla/kanri/internal/adapters/server/common"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewServer builds the MCP server with every board tool registered.
func NewServer(cfg Config, boards common.BoardService) (*mcpserver.MCPServer, error) {
	if boards == nil {
		return nil, fmt.Errorf("board service is required")
	}
	cfg = normalizeConfig(cfg)
	srv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerProjectTools(srv, boards)
	registerBoardTools(srv, boards)
	return srv, nil
}

// NewHandler builds one stateless streamable HTTP adapter over boards.
func NewHandler(cfg Config, boards common.BoardService) (*Handler, error) {
	cfg = normalizeConfig(cfg)
	srv, err := NewServer(cfg, boards)
	if err != nil {
		return nil, err
	}
	streamable := mcpserver.NewStreamableHTTPServer(
		srv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "kanri"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	if !strings.HasPrefix(cfg.EndpointPath, "/") {
		cfg.EndpointPath = "/" + cfg.EndpointPath
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// registerProjectTools registers `kanri.list_projects` and `kanri.sprint_progress`.
func registerProjectTools(srv *mcpserver.MCPServer, boards common.BoardService) {
	srv.AddTool(
		mcp.NewTool(
			"kanri.list_projects",
			mcp.WithDescription("List projects visible to the signed-in user, one page at a time."),
			mcp.WithNumber("page", mcp.Description("Zero-based page number")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			list, err := boards.ListProjects(ctx, req.GetInt("page", 0))
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(list)
			if err != nil {
				return nil, fmt.Errorf("encode list_projects result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"kanri.sprint_progress",
			mcp.WithDescription("Report task completion for one sprint."),
			mcp.WithNumber("sprint_id", mcp.Required(), mcp.Description("Sprint identifier (a project's current_sprint_id)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			sprintID, err := req.RequireInt("sprint_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			progress, err := boards.SprintProgress(ctx, int64(sprintID))
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(progress)
			if err != nil {
				return nil, fmt.Errorf("encode sprint_progress result: %w", err)
			}
			return result, nil
		},
	)
}

// registerBoardTools registers board read, move, and create tools.
func registerBoardTools(srv *mcpserver.MCPServer, boards common.BoardService) {
	srv.AddTool(
		mcp.NewTool(
			"kanri.get_board",
			mcp.WithDescription("Return every column of a project board with its cards in order."),
			mcp.WithNumber("project_id", mcp.Required(), mcp.Description("Project identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			projectID, err := req.RequireInt("project_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			snap, err := boards.GetBoard(ctx, int64(projectID))
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(snap)
			if err != nil {
				return nil, fmt.Errorf("encode get_board result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"kanri.move_card",
			mcp.WithDescription("Move a story or task to a status column. The board changes only after the server accepts the move."),
			mcp.WithNumber("project_id", mcp.Required(), mcp.Description("Project identifier")),
			mcp.WithString("card", mcp.Required(), mcp.Description("Card reference such as US-12, T-7, or story-12")),
			mcp.WithNumber("status_id", mcp.Required(), mcp.Description("Destination status (column) id")),
			mcp.WithNumber("index", mcp.Description("Destination position; omit to append")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			projectID, err := req.RequireInt("project_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			card, err := req.RequireString("card")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			statusID, err := req.RequireInt("status_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			move := common.MoveCardRequest{
				ProjectID: int64(projectID),
				Card:      card,
				StatusID:  int64(statusID),
			}
			if _, ok := req.GetArguments()["index"]; ok {
				index := req.GetInt("index", 0)
				move.Index = &index
			}
			moved, err := boards.MoveCard(ctx, move)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(moved)
			if err != nil {
				return nil, fmt.Errorf("encode move_card result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"kanri.create_story",
			mcp.WithDescription("Create a user story at the end of a column."),
			mcp.WithNumber("project_id", mcp.Required(), mcp.Description("Project identifier")),
			mcp.WithString("title", mcp.Required(), mcp.Description("Story title")),
			mcp.WithString("description", mcp.Description("Optional markdown description")),
			mcp.WithNumber("status_id", mcp.Description("Column id; defaults to the first column")),
			mcp.WithString("due_date", mcp.Description("Optional due date, YYYY-MM-DD")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			projectID, err := req.RequireInt("project_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			title, err := req.RequireString("title")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			card, err := boards.CreateStory(ctx, common.CreateStoryRequest{
				ProjectID:   int64(projectID),
				StatusID:    int64(req.GetInt("status_id", 0)),
				Title:       title,
				Description: req.GetString("description", ""),
				DueDate:     req.GetString("due_date", ""),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(card)
			if err != nil {
				return nil, fmt.Errorf("encode create_story result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"kanri.create_task",
			mcp.WithDescription("Create a task at the end of a column, optionally linked to a story."),
			mcp.WithNumber("project_id", mcp.Required(), mcp.Description("Project identifier")),
			mcp.WithString("name", mcp.Required(), mcp.Description("Task name")),
			mcp.WithString("description", mcp.Description("Optional description")),
			mcp.WithNumber("status_id", mcp.Description("Column id; defaults to the first column")),
			mcp.WithNumber("user_story_id", mcp.Description("Parent story id")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			projectID, err := req.RequireInt("project_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			name, err := req.RequireString("name")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			card, err := boards.CreateTask(ctx, common.CreateTaskRequest{
				ProjectID:   int64(projectID),
				StatusID:    int64(req.GetInt("status_id", 0)),
				Name:        name,
				Description: req.GetString("description", ""),
				UserStoryID: int64(req.GetInt("user_story_id", 0)),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(card)
			if err != nil {
				return nil, fmt.Errorf("encode create_task result: %w", err)
			}
			return result, nil
		},
	)
}

// toolResultFromError maps service errors into MCP-visible tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	switch {
	case err == nil:
		return mcp.NewToolResultError("unknown error")
	case errors.Is(err, common.ErrUnauthorized):
		return mcp.NewToolResultError("unauthorized: " + err.Error())
	case errors.Is(err, common.ErrInvalidRequest):
		return mcp.NewToolResultError("invalid_request: " + err.Error())
	case errors.Is(err, common.ErrNotFound):
		return mcp.NewToolResultError("not_found: " + err.Error())
	case errors.Is(err, common.ErrUnavailable):
		return mcp.NewToolResultError("unavailable: " + err.Error())
	default:
		return mcp.NewToolResultError("internal_error: " + err.Error())
	}
}
