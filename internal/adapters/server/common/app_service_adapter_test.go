package common

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/hylla/kanri/internal/adapters/server/httpapi"
	"github.com/hylla/kanri/internal/adapters/storage/sqlite"
	"github.com/hylla/kanri/internal/api"
	"github.com/hylla/kanri/internal/app"
	"github.com/hylla/kanri/internal/backend"
	"github.com/hylla/kanri/internal/board"
	"github.com/hylla/kanri/internal/domain"
	"github.com/hylla/kanri/internal/session"
)

// stack is one app.Service talking to a live mock backend.
type stack struct {
	adapter *AppServiceAdapter
	service *app.Service
	backend *backend.Service
	owner   domain.User
}

// newStack wires sqlite, the backend, the REST handler, the api client, and the app service.
func newStack(t *testing.T, signIn bool) *stack {
	t.Helper()
	ctx := context.Background()
	repo, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	be := backend.NewService(repo, nil, nil, backend.ServiceConfig{BcryptCost: bcrypt.MinCost})
	owner, err := be.EnsureUser(ctx, domain.User{Username: "ada"}, "secret")
	if err != nil {
		t.Fatalf("EnsureUser() error = %v", err)
	}
	handler, err := httpapi.NewHandler(be, httpapi.Config{})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	sess := session.New(&session.MemoryStore{})
	var svc *app.Service
	client, err := api.New(api.Config{BaseURL: server.URL}, sess,
		api.WithHTTPClient(server.Client()),
		api.WithUnauthorizedHandler(func(e *api.StatusError) { svc.HandleUnauthorized(e) }),
	)
	if err != nil {
		t.Fatalf("api.New() error = %v", err)
	}
	svc = app.NewService(client, sess, nil, app.ServiceConfig{})
	if signIn {
		if _, err := svc.Login(ctx, "ada", "secret"); err != nil {
			t.Fatalf("Login() error = %v", err)
		}
	}
	return &stack{adapter: NewAppServiceAdapter(svc), service: svc, backend: be, owner: owner}
}

// seedProject creates one project with a story in the first column.
func (s *stack) seedProject(t *testing.T) (domain.Project, []domain.Column, domain.Card) {
	t.Helper()
	ctx := context.Background()
	project, err := s.backend.CreateProject(ctx, s.owner, domain.ProjectDraft{Name: "Board"})
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	columns, err := s.backend.Statuses(ctx, project.ID)
	if err != nil {
		t.Fatalf("Statuses() error = %v", err)
	}
	story, err := s.backend.CreateStory(ctx, domain.StoryDraft{ProjectID: project.ID, StatusID: columns[0].ID, Title: "US one"})
	if err != nil {
		t.Fatalf("CreateStory() error = %v", err)
	}
	return project, columns, story
}

func TestAppServiceAdapterRequiresSession(t *testing.T) {
	s := newStack(t, false)
	if _, err := s.adapter.ListProjects(context.Background(), 0); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	var nilAdapter *AppServiceAdapter
	if _, err := nilAdapter.GetBoard(context.Background(), 1); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable for nil adapter, got %v", err)
	}
}

func TestAppServiceAdapterListAndBoard(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, true)
	project, columns, story := s.seedProject(t)

	list, err := s.adapter.ListProjects(ctx, 0)
	if err != nil {
		t.Fatalf("ListProjects() error = %v", err)
	}
	if len(list.Projects) != 1 || list.Projects[0].ID != project.ID || list.Projects[0].CurrentSprintID != project.ID {
		t.Fatalf("unexpected project list %#v", list)
	}

	snap, err := s.adapter.GetBoard(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetBoard() error = %v", err)
	}
	if len(snap.Columns) != len(columns) {
		t.Fatalf("expected %d columns, got %d", len(columns), len(snap.Columns))
	}
	first := snap.Columns[0]
	if len(first.Cards) != 1 || first.Cards[0].Ref != story.Ref() || first.Cards[0].Key != "story-1" {
		t.Fatalf("unexpected first column %#v", first)
	}
	if _, err := s.adapter.GetBoard(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown project, got %v", err)
	}
	if _, err := s.adapter.GetBoard(ctx, 0); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for zero project, got %v", err)
	}
}

func TestAppServiceAdapterMoveCard(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, true)
	project, columns, story := s.seedProject(t)
	done := columns[len(columns)-1].ID

	zero := 0
	result, err := s.adapter.MoveCard(ctx, MoveCardRequest{ProjectID: project.ID, Card: story.Ref(), StatusID: done, Index: &zero})
	if err != nil {
		t.Fatalf("MoveCard() error = %v", err)
	}
	if !result.Moved || result.Card.StatusID != done || result.Card.Index != 0 {
		t.Fatalf("unexpected move result %#v", result)
	}
	stored, err := s.backend.Cards(ctx, project.ID, domain.CardKindStory)
	if err != nil {
		t.Fatalf("Cards() error = %v", err)
	}
	if stored[0].StatusID != done {
		t.Fatalf("expected server to record the move, got %#v", stored[0])
	}

	again, err := s.adapter.MoveCard(ctx, MoveCardRequest{ProjectID: project.ID, Card: story.Key.String(), StatusID: done})
	if err != nil {
		t.Fatalf("MoveCard() same position error = %v", err)
	}
	if again.Moved {
		t.Fatalf("expected dropping in place to be ignored, got %#v", again)
	}

	tests := []struct {
		name string
		req  MoveCardRequest
		want error
	}{
		{"bad key", MoveCardRequest{ProjectID: project.ID, Card: "nope", StatusID: done}, ErrInvalidRequest},
		{"unknown card", MoveCardRequest{ProjectID: project.ID, Card: "US-42", StatusID: done}, ErrNotFound},
		{"unknown status", MoveCardRequest{ProjectID: project.ID, Card: story.Ref(), StatusID: 999}, ErrNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.adapter.MoveCard(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("MoveCard() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestAppServiceAdapterCreateCardsAndProgress(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, true)
	project, columns, story := s.seedProject(t)
	done := columns[len(columns)-1].ID

	created, err := s.adapter.CreateStory(ctx, CreateStoryRequest{ProjectID: project.ID, Title: "US two", DueDate: "2026-03-01"})
	if err != nil {
		t.Fatalf("CreateStory() error = %v", err)
	}
	if created.StatusID != columns[0].ID || created.Index != 1 || created.DueDate != "2026-03-01" {
		t.Fatalf("unexpected story %#v", created)
	}
	if _, err := s.adapter.CreateStory(ctx, CreateStoryRequest{ProjectID: project.ID, Title: "  "}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for blank title, got %v", err)
	}
	if _, err := s.adapter.CreateStory(ctx, CreateStoryRequest{ProjectID: project.ID, Title: "x", DueDate: "soon"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for bad due date, got %v", err)
	}

	task, err := s.adapter.CreateTask(ctx, CreateTaskRequest{ProjectID: project.ID, StatusID: done, Name: "Ship", UserStoryID: story.Key.ID})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if task.Kind != string(domain.CardKindTask) || task.UserStoryID != story.Key.ID {
		t.Fatalf("unexpected task %#v", task)
	}
	if _, err := s.adapter.CreateTask(ctx, CreateTaskRequest{ProjectID: project.ID, Name: "Open"}); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	progress, err := s.adapter.SprintProgress(ctx, project.CurrentSprintID)
	if err != nil {
		t.Fatalf("SprintProgress() error = %v", err)
	}
	if progress.TotalTasks != 2 || progress.CompletedTasks != 1 || progress.Percentage != 50 {
		t.Fatalf("unexpected progress %#v", progress)
	}
	if _, err := s.adapter.SprintProgress(ctx, 0); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for zero sprint, got %v", err)
	}
}

func TestMapAppError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"unauthorized", &api.StatusError{StatusCode: 401}, ErrUnauthorized},
		{"not signed in", app.ErrNotAuthenticated, ErrUnauthorized},
		{"transport", api.ErrTransport, ErrUnavailable},
		{"404", &api.StatusError{StatusCode: 404}, ErrNotFound},
		{"unknown card", board.ErrUnknownCard, ErrNotFound},
		{"400", &api.StatusError{StatusCode: 400}, ErrInvalidRequest},
		{"title", domain.ErrTitleRequired, ErrInvalidRequest},
		{"no board", app.ErrNoBoard, ErrInvalidRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := mapAppError("op", tc.in); !errors.Is(got, tc.want) {
				t.Fatalf("mapAppError(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
	if mapAppError("op", nil) != nil {
		t.Fatal("expected nil for nil error")
	}
	plain := errors.New("boom")
	if got := mapAppError("op", plain); !errors.Is(got, plain) || errors.Is(got, ErrInvalidRequest) {
		t.Fatalf("unexpected default mapping %v", got)
	}
}
