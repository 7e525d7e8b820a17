package app

import (
	"context"

	"github.com/hylla/kanri/internal/api"
	"github.com/hylla/kanri/internal/domain"
)

// Client is the REST surface the service depends on. *api.Client implements it.
type Client interface {
	Login(ctx context.Context, username, password string) (api.LoginResult, error)
	ChangePassword(ctx context.Context, current, next string) error
	UserSettings(ctx context.Context) (domain.UserSettings, error)
	UpdateUserSettings(ctx context.Context, settings domain.UserSettings) (domain.UserSettings, error)

	ListProjects(ctx context.Context, page, size int) (domain.ProjectPage, error)
	CreateProject(ctx context.Context, draft domain.ProjectDraft) (domain.Project, error)
	DuplicateProject(ctx context.Context, id int64, draft domain.ProjectDraft) (domain.Project, error)
	ProjectModules(ctx context.Context, projectID int64) ([]domain.ProjectModule, error)
	SetProjectModules(ctx context.Context, projectID int64, modules []domain.ProjectModule) ([]domain.ProjectModule, error)

	Statuses(ctx context.Context, projectID int64) ([]domain.Column, error)
	UserStories(ctx context.Context, projectID int64) ([]domain.Card, error)
	Tasks(ctx context.Context, projectID int64) ([]domain.Card, error)
	MoveCard(ctx context.Context, key domain.CardKey, statusID int64, order int) (domain.Card, error)
	CreateStory(ctx context.Context, draft domain.StoryDraft) (domain.Card, error)
	CreateTask(ctx context.Context, draft domain.TaskDraft) (domain.Card, error)
	SprintProgress(ctx context.Context, sprintID int64) (domain.SprintProgress, error)
}

var _ Client = (*api.Client)(nil)

// Logger is satisfied by *charmLog.Logger.
type Logger interface {
	Debug(msg any, keyvals ...any)
	Info(msg any, keyvals ...any)
	Warn(msg any, keyvals ...any)
	Error(msg any, keyvals ...any)
}
