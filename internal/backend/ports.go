package backend

import (
	"context"
	"time"

	"github.com/hylla/kanri/internal/domain"
)

// UserRecord is a stored account with its password hash.
type UserRecord struct {
	User         domain.User
	PasswordHash string
}

// Repository represents the persistence port of the mock backend.
type Repository interface {
	CreateUser(ctx context.Context, user domain.User, passwordHash string, now time.Time) (domain.User, error)
	GetUser(ctx context.Context, id int64) (UserRecord, error)
	GetUserByUsername(ctx context.Context, username string) (UserRecord, error)
	SetPasswordHash(ctx context.Context, userID int64, hash string) error
	CreateToken(ctx context.Context, token string, userID int64, now time.Time) error
	UserForToken(ctx context.Context, token string) (domain.User, error)
	GetUserSettings(ctx context.Context, userID int64) (domain.UserSettings, error)
	SaveUserSettings(ctx context.Context, settings domain.UserSettings) error

	CreateProject(ctx context.Context, draft domain.ProjectDraft, now time.Time) (domain.Project, error)
	GetProject(ctx context.Context, id int64) (domain.Project, error)
	GetProjectBySprint(ctx context.Context, sprintID int64) (domain.Project, error)
	ListProjects(ctx context.Context, viewerID int64, offset, limit int) ([]domain.Project, int, error)
	SetCurrentSprint(ctx context.Context, projectID, sprintID int64) error
	CreateColumn(ctx context.Context, projectID int64, tmpl domain.ColumnTemplate, position int) (domain.Column, error)
	ListColumns(ctx context.Context, projectID int64) ([]domain.Column, error)
	GetModules(ctx context.Context, projectID int64) ([]domain.ProjectModule, error)
	SaveModules(ctx context.Context, projectID int64, modules []domain.ProjectModule) error

	CreateStory(ctx context.Context, draft domain.StoryDraft, order int) (domain.Card, error)
	CreateTask(ctx context.Context, draft domain.TaskDraft, order int) (domain.Card, error)
	GetCard(ctx context.Context, key domain.CardKey) (domain.Card, error)
	ListCards(ctx context.Context, projectID int64, kind domain.CardKind) ([]domain.Card, error)
	UpdateCardPositions(ctx context.Context, cards []domain.Card) error
}
