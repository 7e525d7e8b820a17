// Package app coordinates the session, the REST client, and the board store
// for the TUI, the CLI, and the MCP adapter.
package app

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	charmLog "github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/hylla/kanri/internal/api"
	"github.com/hylla/kanri/internal/board"
	"github.com/hylla/kanri/internal/domain"
	"github.com/hylla/kanri/internal/session"
)

const minPasswordLength = 8

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	PageSize int
}

// Service is the client-side application layer.
type Service struct {
	client      Client
	session     *session.Session
	store       *board.Store
	coordinator *board.Coordinator
	creator     *board.Creator
	logger      Logger
	pageSize    int
}

// NewService constructs a new value for this package.
func NewService(client Client, sess *session.Session, logger Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = charmLog.New(io.Discard)
	}
	if sess == nil {
		sess = session.New(nil)
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	store := board.NewStore()
	return &Service{
		client:      client,
		session:     sess,
		store:       store,
		coordinator: board.NewCoordinator(store, client, logger),
		creator:     board.NewCreator(store, client),
		logger:      logger,
		pageSize:    cfg.PageSize,
	}
}

// Board exposes the store for rendering.
func (s *Service) Board() *board.Store {
	return s.store
}

// PageSize is the configured project page size.
func (s *Service) PageSize() int {
	return s.pageSize
}

// CurrentUser returns the signed-in user.
func (s *Service) CurrentUser() (domain.User, bool) {
	if !s.session.Authenticated() {
		return domain.User{}, false
	}
	return s.session.User(), true
}

// Login authenticates and persists the session.
func (s *Service) Login(ctx context.Context, username, password string) (domain.User, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return domain.User{}, fmt.Errorf("username and password are required: %w", domain.ErrInvalidName)
	}
	res, err := s.client.Login(ctx, username, password)
	if err != nil {
		return domain.User{}, err
	}
	if err := s.session.Update(ctx, session.Data{Token: res.Token, User: res.User}); err != nil {
		return domain.User{}, err
	}
	s.logger.Info("signed in", "user", res.User.Username)
	return res.User, nil
}

// Logout clears the session and discards the board.
func (s *Service) Logout(ctx context.Context) error {
	s.store.Clear()
	return s.session.Clear(ctx)
}

// HandleUnauthorized is registered with the API client and runs once per 401 response.
func (s *Service) HandleUnauthorized(statusErr *api.StatusError) {
	s.logger.Warn("session rejected by server", "method", statusErr.Method, "path", statusErr.Path)
	s.store.Clear()
	if err := s.session.Clear(context.Background()); err != nil {
		s.logger.Error("clear session failed", "err", err)
	}
}

// ListProjects fetches one page of projects.
func (s *Service) ListProjects(ctx context.Context, page int) (domain.ProjectPage, error) {
	return s.client.ListProjects(ctx, page, s.pageSize)
}

// CreateProject validates and creates a project.
func (s *Service) CreateProject(ctx context.Context, draft domain.ProjectDraft) (domain.Project, error) {
	draft, err := draft.Normalize()
	if err != nil {
		return domain.Project{}, err
	}
	return s.client.CreateProject(ctx, draft)
}

// DuplicateProject copies a project; the signed-in user becomes the owner.
func (s *Service) DuplicateProject(ctx context.Context, sourceID int64, draft domain.ProjectDraft) (domain.Project, error) {
	user, ok := s.CurrentUser()
	if !ok {
		return domain.Project{}, ErrNotAuthenticated
	}
	draft.OwnerID = user.ID
	draft, err := draft.Normalize()
	if err != nil {
		return domain.Project{}, err
	}
	return s.client.DuplicateProject(ctx, sourceID, draft)
}

// ProjectModules fetches module toggles.
func (s *Service) ProjectModules(ctx context.Context, projectID int64) ([]domain.ProjectModule, error) {
	return s.client.ProjectModules(ctx, projectID)
}

// SetProjectModules validates and stores module toggles.
func (s *Service) SetProjectModules(ctx context.Context, projectID int64, modules []domain.ProjectModule) ([]domain.ProjectModule, error) {
	modules, err := domain.ValidateModules(modules)
	if err != nil {
		return nil, err
	}
	return s.client.SetProjectModules(ctx, projectID, modules)
}

// LoadBoard fetches statuses, stories, and tasks concurrently and resets the store.
// It returns the new board generation.
func (s *Service) LoadBoard(ctx context.Context, projectID int64) (uint64, error) {
	var (
		columns []domain.Column
		stories []domain.Card
		tasks   []domain.Card
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		columns, err = s.client.Statuses(gctx, projectID)
		return err
	})
	g.Go(func() error {
		var err error
		stories, err = s.client.UserStories(gctx, projectID)
		return err
	})
	g.Go(func() error {
		var err error
		tasks, err = s.client.Tasks(gctx, projectID)
		return err
	})
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("load board %d: %w", projectID, err)
	}

	cards := make([]domain.Card, 0, len(stories)+len(tasks))
	cards = append(cards, sortedByOrder(stories)...)
	cards = append(cards, sortedByOrder(tasks)...)
	gen := s.store.Reset(projectID, columns, cards)
	s.logger.Debug("board loaded", "project_id", projectID, "columns", len(columns), "cards", len(cards), "generation", gen)
	return gen, nil
}

// Drop forwards a drag-end event to the coordinator.
func (s *Service) Drop(ctx context.Context, ev board.DropEvent) (board.Outcome, error) {
	return s.coordinator.Drop(ctx, ev)
}

// MoveToColumnEnd moves a card after the last card of columnID.
func (s *Service) MoveToColumnEnd(ctx context.Context, key domain.CardKey, columnID int64) (board.Outcome, error) {
	return s.coordinator.MoveToColumnEnd(ctx, key, columnID)
}

// CreateStory creates a story on the loaded board.
func (s *Service) CreateStory(ctx context.Context, draft domain.StoryDraft) (domain.Card, error) {
	if draft.ProjectID == 0 {
		draft.ProjectID = s.store.ProjectID()
	}
	if draft.ProjectID == 0 {
		return domain.Card{}, ErrNoBoard
	}
	return s.creator.CreateStory(ctx, draft)
}

// CreateTask creates a task on the loaded board.
func (s *Service) CreateTask(ctx context.Context, draft domain.TaskDraft) (domain.Card, error) {
	if draft.ProjectID == 0 {
		draft.ProjectID = s.store.ProjectID()
	}
	if draft.ProjectID == 0 {
		return domain.Card{}, ErrNoBoard
	}
	return s.creator.CreateTask(ctx, draft)
}

// SprintProgress fetches sprint completion.
func (s *Service) SprintProgress(ctx context.Context, sprintID int64) (domain.SprintProgress, error) {
	return s.client.SprintProgress(ctx, sprintID)
}

// UserSettings fetches account settings.
func (s *Service) UserSettings(ctx context.Context) (domain.UserSettings, error) {
	return s.client.UserSettings(ctx)
}

// UpdateUserSettings validates, stores, and mirrors profile changes into the session.
func (s *Service) UpdateUserSettings(ctx context.Context, settings domain.UserSettings) (domain.UserSettings, error) {
	settings, err := settings.Normalize()
	if err != nil {
		return domain.UserSettings{}, err
	}
	saved, err := s.client.UpdateUserSettings(ctx, settings)
	if err != nil {
		return domain.UserSettings{}, err
	}
	if s.session.Authenticated() {
		if err := s.session.UpdateUser(ctx, saved.User); err != nil {
			s.logger.Warn("session profile update failed", "err", err)
		}
	}
	return saved, nil
}

// ChangePassword validates the form and submits it.
func (s *Service) ChangePassword(ctx context.Context, current, next, confirm string) error {
	if current == "" {
		return ErrPasswordRequired
	}
	if len(next) < minPasswordLength {
		return ErrPasswordTooShort
	}
	if next != confirm {
		return ErrPasswordMismatch
	}
	return s.client.ChangePassword(ctx, current, next)
}

// sortedByOrder orders cards by server order, then id.
func sortedByOrder(cards []domain.Card) []domain.Card {
	out := slices.Clone(cards)
	slices.SortStableFunc(out, func(a, b domain.Card) int {
		if c := cmp.Compare(a.Order, b.Order); c != 0 {
			return c
		}
		return cmp.Compare(a.Key.ID, b.Key.ID)
	})
	return out
}
