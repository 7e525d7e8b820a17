// Package common provides transport-agnostic board contracts used by the MCP adapter.
package common

import (
	"context"
	"errors"
)

// ErrInvalidRequest reports malformed tool input.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNotFound reports missing transport-visible resources.
var ErrNotFound = errors.New("not found")

// ErrUnauthorized reports a missing or rejected session.
var ErrUnauthorized = errors.New("unauthorized")

// ErrUnavailable reports that the backend could not be reached.
var ErrUnavailable = errors.New("backend unavailable")

// ProjectSummary describes one project row.
type ProjectSummary struct {
	ID              int64  `json:"id" yaml:"id"`
	Slug            string `json:"slug" yaml:"slug"`
	Name            string `json:"name" yaml:"name"`
	Description     string `json:"description,omitempty" yaml:"description,omitempty"`
	IsPrivate       bool   `json:"is_private" yaml:"is_private"`
	CurrentSprintID int64  `json:"current_sprint_id,omitempty" yaml:"current_sprint_id,omitempty"`
}

// ProjectList is one page of projects.
type ProjectList struct {
	Projects   []ProjectSummary `json:"projects" yaml:"projects"`
	Page       int              `json:"page" yaml:"page"`
	TotalPages int              `json:"total_pages" yaml:"total_pages"`
}

// CardSummary describes one card in a column.
type CardSummary struct {
	Key         string  `json:"key" yaml:"key"`
	Ref         string  `json:"ref" yaml:"ref"`
	Kind        string  `json:"kind" yaml:"kind"`
	Title       string  `json:"title" yaml:"title"`
	StatusID    int64   `json:"status_id" yaml:"status_id"`
	Index       int     `json:"index" yaml:"index"`
	Points      float64 `json:"points,omitempty" yaml:"points,omitempty"`
	DueDate     string  `json:"due_date,omitempty" yaml:"due_date,omitempty"`
	UserStoryID int64   `json:"user_story_id,omitempty" yaml:"user_story_id,omitempty"`
	Assignees   []int64 `json:"assignee_ids,omitempty" yaml:"assignee_ids,omitempty"`
}

// ColumnSnapshot is one board column with its cards in display order.
type ColumnSnapshot struct {
	ID       int64         `json:"id" yaml:"id"`
	Slug     string        `json:"slug" yaml:"slug"`
	Name     string        `json:"name" yaml:"name"`
	Color    string        `json:"color,omitempty" yaml:"color,omitempty"`
	Position int           `json:"position" yaml:"position"`
	Cards    []CardSummary `json:"cards" yaml:"cards"`
}

// BoardSnapshot is the full board of one project.
type BoardSnapshot struct {
	ProjectID int64            `json:"project_id" yaml:"project_id"`
	Columns   []ColumnSnapshot `json:"columns" yaml:"columns"`
}

// ProgressSummary reports sprint completion.
type ProgressSummary struct {
	SprintID       int64   `json:"sprint_id" yaml:"sprint_id"`
	Percentage     float64 `json:"percentage" yaml:"percentage"`
	TotalTasks     int     `json:"total_tasks" yaml:"total_tasks"`
	CompletedTasks int     `json:"completed_tasks" yaml:"completed_tasks"`
}

// MoveCardRequest stores transport input for card moves.
type MoveCardRequest struct {
	ProjectID int64
	Card      string
	StatusID  int64
	// Index is the destination position. Nil appends to the column.
	Index *int
}

// MoveCardResult reports the outcome of one move.
type MoveCardResult struct {
	Moved bool        `json:"moved" yaml:"moved"`
	Card  CardSummary `json:"card" yaml:"card"`
}

// CreateStoryRequest stores transport input for story creation.
type CreateStoryRequest struct {
	ProjectID   int64
	StatusID    int64
	Title       string
	Description string
	DueDate     string
}

// CreateTaskRequest stores transport input for task creation.
type CreateTaskRequest struct {
	ProjectID   int64
	StatusID    int64
	Name        string
	Description string
	UserStoryID int64
}

// BoardService is the board surface exposed to agents.
type BoardService interface {
	ListProjects(ctx context.Context, page int) (ProjectList, error)
	GetBoard(ctx context.Context, projectID int64) (BoardSnapshot, error)
	MoveCard(ctx context.Context, req MoveCardRequest) (MoveCardResult, error)
	CreateStory(ctx context.Context, req CreateStoryRequest) (CardSummary, error)
	CreateTask(ctx context.Context, req CreateTaskRequest) (CardSummary, error)
	SprintProgress(ctx context.Context, sprintID int64) (ProgressSummary, error)
}
