// Package backend implements the REST contract kanri consumes, for local use
// and tests through `kanri serve`.
package backend

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hylla/kanri/internal/domain"
)

// TokenGenerator returns new bearer tokens.
type TokenGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	BcryptCost int
}

// Service represents the mock backend's business rules.
type Service struct {
	repo       Repository
	tokens     TokenGenerator
	clock      Clock
	bcryptCost int
}

// NewService constructs a new value for this package.
func NewService(repo Repository, tokens TokenGenerator, clock Clock, cfg ServiceConfig) *Service {
	if tokens == nil {
		tokens = uuid.NewString
	}
	if clock == nil {
		clock = time.Now
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{repo: repo, tokens: tokens, clock: clock, bcryptCost: cfg.BcryptCost}
}

// EnsureUser creates the account when the username is free and returns it.
// credential is the value clients send as the password.
func (s *Service) EnsureUser(ctx context.Context, user domain.User, credential string) (domain.User, error) {
	user.Username = strings.TrimSpace(user.Username)
	if user.Username == "" || credential == "" {
		return domain.User{}, fmt.Errorf("username and password are required: %w", ErrInvalidRequest)
	}
	existing, err := s.repo.GetUserByUsername(ctx, user.Username)
	if err == nil {
		return existing.User, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return domain.User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(credential), s.bcryptCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	created, err := s.repo.CreateUser(ctx, user, string(hash), s.clock())
	if err != nil {
		return domain.User{}, err
	}
	if err := s.repo.SaveUserSettings(ctx, domain.DefaultUserSettings(created)); err != nil {
		return domain.User{}, err
	}
	return created, nil
}

// Login checks credentials and issues a token.
func (s *Service) Login(ctx context.Context, username, credential string) (string, domain.User, error) {
	rec, err := s.repo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, ErrNotFound) {
		return "", domain.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", domain.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(credential)) != nil {
		return "", domain.User{}, ErrInvalidCredentials
	}
	token := s.tokens()
	if err := s.repo.CreateToken(ctx, token, rec.User.ID, s.clock()); err != nil {
		return "", domain.User{}, err
	}
	return token, rec.User, nil
}

// Authenticate resolves a bearer token.
func (s *Service) Authenticate(ctx context.Context, token string) (domain.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.User{}, ErrUnauthorized
	}
	user, err := s.repo.UserForToken(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return domain.User{}, ErrUnauthorized
	}
	return user, err
}

// ChangePassword verifies the current credential and stores the new one.
func (s *Service) ChangePassword(ctx context.Context, user domain.User, current, next string) error {
	if next == "" {
		return fmt.Errorf("new password is required: %w", ErrInvalidRequest)
	}
	rec, err := s.repo.GetUser(ctx, user.ID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(current)) != nil {
		return ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.repo.SetPasswordHash(ctx, user.ID, string(hash))
}

// UserSettings returns the viewer's settings.
func (s *Service) UserSettings(ctx context.Context, user domain.User) (domain.UserSettings, error) {
	settings, err := s.repo.GetUserSettings(ctx, user.ID)
	if errors.Is(err, ErrNotFound) {
		return domain.DefaultUserSettings(user), nil
	}
	return settings, err
}

// UpdateUserSettings stores the viewer's settings. Id and username cannot change.
func (s *Service) UpdateUserSettings(ctx context.Context, user domain.User, settings domain.UserSettings) (domain.UserSettings, error) {
	settings.User.ID = user.ID
	settings.User.Username = user.Username
	settings, err := settings.Normalize()
	if err != nil {
		return domain.UserSettings{}, errors.Join(ErrInvalidRequest, err)
	}
	if err := s.repo.SaveUserSettings(ctx, settings); err != nil {
		return domain.UserSettings{}, err
	}
	return settings, nil
}

// ListProjects returns one zero-based page of projects visible to viewer.
func (s *Service) ListProjects(ctx context.Context, viewer domain.User, page, size int) (domain.ProjectPage, error) {
	if page < 0 || size <= 0 || size > 200 {
		return domain.ProjectPage{}, fmt.Errorf("page %d size %d: %w", page, size, ErrInvalidRequest)
	}
	projects, total, err := s.repo.ListProjects(ctx, viewer.ID, page*size, size)
	if err != nil {
		return domain.ProjectPage{}, err
	}
	return domain.ProjectPage{
		Content:    projects,
		Page:       page,
		TotalPages: (total + size - 1) / size,
	}, nil
}

// CreateProject creates a project with the default statuses and modules.
func (s *Service) CreateProject(ctx context.Context, viewer domain.User, draft domain.ProjectDraft) (domain.Project, error) {
	draft.OwnerID = viewer.ID
	columns := domain.DefaultColumns()
	return s.createProject(ctx, draft, columns, domain.DefaultModules())
}

// DuplicateProject copies the statuses and modules of sourceID into a new project.
func (s *Service) DuplicateProject(ctx context.Context, viewer domain.User, sourceID int64, draft domain.ProjectDraft) (domain.Project, error) {
	if _, err := s.repo.GetProject(ctx, sourceID); err != nil {
		return domain.Project{}, err
	}
	if draft.OwnerID == 0 {
		draft.OwnerID = viewer.ID
	}
	srcColumns, err := s.repo.ListColumns(ctx, sourceID)
	if err != nil {
		return domain.Project{}, err
	}
	templates := make([]domain.ColumnTemplate, 0, len(srcColumns))
	for _, c := range srcColumns {
		templates = append(templates, domain.ColumnTemplate{Name: c.Name, Color: c.Color})
	}
	modules, err := s.repo.GetModules(ctx, sourceID)
	if err != nil {
		return domain.Project{}, err
	}
	return s.createProject(ctx, draft, templates, modules)
}

func (s *Service) createProject(ctx context.Context, draft domain.ProjectDraft, columns []domain.ColumnTemplate, modules []domain.ProjectModule) (domain.Project, error) {
	draft, err := draft.Normalize()
	if err != nil {
		return domain.Project{}, errors.Join(ErrInvalidRequest, err)
	}
	project, err := s.repo.CreateProject(ctx, draft, s.clock())
	if err != nil {
		return domain.Project{}, err
	}
	for i, tmpl := range columns {
		if _, err := s.repo.CreateColumn(ctx, project.ID, tmpl, i); err != nil {
			return domain.Project{}, fmt.Errorf("seed status %q: %w", tmpl.Name, err)
		}
	}
	if err := s.repo.SaveModules(ctx, project.ID, modules); err != nil {
		return domain.Project{}, err
	}
	// Each project runs one open sprint sharing the project id.
	if err := s.repo.SetCurrentSprint(ctx, project.ID, project.ID); err != nil {
		return domain.Project{}, err
	}
	project.CurrentSprintID = project.ID
	return project, nil
}

// Modules returns the module toggles of a project.
func (s *Service) Modules(ctx context.Context, projectID int64) ([]domain.ProjectModule, error) {
	if _, err := s.repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return s.repo.GetModules(ctx, projectID)
}

// SetModules replaces the module toggles of a project.
func (s *Service) SetModules(ctx context.Context, projectID int64, modules []domain.ProjectModule) ([]domain.ProjectModule, error) {
	if _, err := s.repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	modules, err := domain.ValidateModules(modules)
	if err != nil {
		return nil, errors.Join(ErrInvalidRequest, err)
	}
	if err := s.repo.SaveModules(ctx, projectID, modules); err != nil {
		return nil, err
	}
	return modules, nil
}

// Statuses returns the project's columns.
func (s *Service) Statuses(ctx context.Context, projectID int64) ([]domain.Column, error) {
	if _, err := s.repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return s.repo.ListColumns(ctx, projectID)
}

// Cards returns the project's stories or tasks ordered by column order.
func (s *Service) Cards(ctx context.Context, projectID int64, kind domain.CardKind) ([]domain.Card, error) {
	if _, err := s.repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	cards, err := s.repo.ListCards(ctx, projectID, kind)
	if err != nil {
		return nil, err
	}
	sortByOrder(cards)
	return cards, nil
}

// MoveCard places a card at order within statusID and renumbers affected columns.
func (s *Service) MoveCard(ctx context.Context, key domain.CardKey, statusID int64, order int) (domain.Card, error) {
	if order < 0 {
		return domain.Card{}, fmt.Errorf("order %d: %w", order, ErrInvalidRequest)
	}
	card, err := s.repo.GetCard(ctx, key)
	if err != nil {
		return domain.Card{}, err
	}
	if err := s.requireStatus(ctx, card.ProjectID, statusID); err != nil {
		return domain.Card{}, err
	}
	cards, err := s.repo.ListCards(ctx, card.ProjectID, key.Kind)
	if err != nil {
		return domain.Card{}, err
	}
	moved, changed, ok := reorder(cards, key, statusID, order)
	if !ok {
		return domain.Card{}, ErrNotFound
	}
	if err := s.repo.UpdateCardPositions(ctx, changed); err != nil {
		return domain.Card{}, err
	}
	return moved, nil
}

// CreateStory appends a story to the end of its column.
func (s *Service) CreateStory(ctx context.Context, draft domain.StoryDraft) (domain.Card, error) {
	draft, err := draft.Normalize()
	if err != nil {
		return domain.Card{}, errors.Join(ErrInvalidRequest, err)
	}
	if err := s.requireStatus(ctx, draft.ProjectID, draft.StatusID); err != nil {
		return domain.Card{}, err
	}
	order, err := s.columnLength(ctx, draft.ProjectID, domain.CardKindStory, draft.StatusID)
	if err != nil {
		return domain.Card{}, err
	}
	return s.repo.CreateStory(ctx, draft, order)
}

// CreateTask appends a task to the end of its column.
func (s *Service) CreateTask(ctx context.Context, draft domain.TaskDraft) (domain.Card, error) {
	draft, err := draft.Normalize()
	if err != nil {
		return domain.Card{}, errors.Join(ErrInvalidRequest, err)
	}
	if err := s.requireStatus(ctx, draft.ProjectID, draft.StatusID); err != nil {
		return domain.Card{}, err
	}
	if draft.UserStoryID != nil {
		if _, err := s.repo.GetCard(ctx, domain.StoryKey(*draft.UserStoryID)); err != nil {
			return domain.Card{}, fmt.Errorf("user story %d: %w", *draft.UserStoryID, err)
		}
	}
	order, err := s.columnLength(ctx, draft.ProjectID, domain.CardKindTask, draft.StatusID)
	if err != nil {
		return domain.Card{}, err
	}
	return s.repo.CreateTask(ctx, draft, order)
}

// SprintProgress counts the sprint's tasks; a task is complete in the last column.
func (s *Service) SprintProgress(ctx context.Context, sprintID int64) (domain.SprintProgress, error) {
	project, err := s.repo.GetProjectBySprint(ctx, sprintID)
	if err != nil {
		return domain.SprintProgress{}, err
	}
	columns, err := s.repo.ListColumns(ctx, project.ID)
	if err != nil {
		return domain.SprintProgress{}, err
	}
	tasks, err := s.repo.ListCards(ctx, project.ID, domain.CardKindTask)
	if err != nil {
		return domain.SprintProgress{}, err
	}
	if len(columns) == 0 {
		return domain.ComputeSprintProgress(len(tasks), 0), nil
	}
	domain.SortColumns(columns)
	doneID := columns[len(columns)-1].ID
	completed := 0
	for _, t := range tasks {
		if t.StatusID == doneID {
			completed++
		}
	}
	return domain.ComputeSprintProgress(len(tasks), completed), nil
}

func (s *Service) requireStatus(ctx context.Context, projectID, statusID int64) error {
	columns, err := s.repo.ListColumns(ctx, projectID)
	if err != nil {
		return err
	}
	if !slices.ContainsFunc(columns, func(c domain.Column) bool { return c.ID == statusID }) {
		return fmt.Errorf("status %d is not part of project %d: %w", statusID, projectID, ErrInvalidRequest)
	}
	return nil
}

func (s *Service) columnLength(ctx context.Context, projectID int64, kind domain.CardKind, statusID int64) (int, error) {
	cards, err := s.repo.ListCards(ctx, projectID, kind)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range cards {
		if c.StatusID == statusID {
			n++
		}
	}
	return n, nil
}
