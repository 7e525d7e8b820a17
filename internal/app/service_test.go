package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/hylla/kanri/internal/api"
	"github.com/hylla/kanri/internal/board"
	"github.com/hylla/kanri/internal/domain"
	"github.com/hylla/kanri/internal/session"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// fakeClient is an in-memory Client for service tests.
type fakeClient struct {
	mu sync.Mutex

	loginUser   domain.User
	loginErr    error
	columns     []domain.Column
	stories     []domain.Card
	tasks       []domain.Card
	tasksErr    error
	moveErr     error
	moves       int
	duplicated  domain.ProjectDraft
	settings    domain.UserSettings
	passwords   [][2]string
	modulesSent []domain.ProjectModule
	pageSizes   []int
}

func (f *fakeClient) Login(_ context.Context, username, _ string) (api.LoginResult, error) {
	if f.loginErr != nil {
		return api.LoginResult{}, f.loginErr
	}
	user := f.loginUser
	if user.Username == "" {
		user = domain.User{ID: 1, Username: username}
	}
	return api.LoginResult{Token: "tok", User: user}, nil
}

func (f *fakeClient) ChangePassword(_ context.Context, current, next string) error {
	f.passwords = append(f.passwords, [2]string{current, next})
	return nil
}

func (f *fakeClient) UserSettings(context.Context) (domain.UserSettings, error) {
	return f.settings, nil
}

func (f *fakeClient) UpdateUserSettings(_ context.Context, s domain.UserSettings) (domain.UserSettings, error) {
	f.settings = s
	return s, nil
}

func (f *fakeClient) ListProjects(_ context.Context, page, size int) (domain.ProjectPage, error) {
	f.pageSizes = append(f.pageSizes, size)
	return domain.ProjectPage{Page: page, TotalPages: 1}, nil
}

func (f *fakeClient) CreateProject(_ context.Context, d domain.ProjectDraft) (domain.Project, error) {
	return domain.NewProject(5, d, testNow)
}

func (f *fakeClient) DuplicateProject(_ context.Context, id int64, d domain.ProjectDraft) (domain.Project, error) {
	f.duplicated = d
	return domain.NewProject(id+100, d, testNow)
}

func (f *fakeClient) ProjectModules(context.Context, int64) ([]domain.ProjectModule, error) {
	return domain.DefaultModules(), nil
}

func (f *fakeClient) SetProjectModules(_ context.Context, _ int64, mods []domain.ProjectModule) ([]domain.ProjectModule, error) {
	f.modulesSent = mods
	return mods, nil
}

func (f *fakeClient) Statuses(context.Context, int64) ([]domain.Column, error) {
	return f.columns, nil
}

func (f *fakeClient) UserStories(context.Context, int64) ([]domain.Card, error) {
	return f.stories, nil
}

func (f *fakeClient) Tasks(context.Context, int64) ([]domain.Card, error) {
	return f.tasks, f.tasksErr
}

func (f *fakeClient) MoveCard(_ context.Context, key domain.CardKey, statusID int64, order int) (domain.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moves++
	if f.moveErr != nil {
		return domain.Card{}, f.moveErr
	}
	return f.savedCopy(key, statusID, order), nil
}

// savedCopy echoes the stored card with its new position, as the server does.
func (f *fakeClient) savedCopy(key domain.CardKey, statusID int64, order int) domain.Card {
	for _, pool := range [][]domain.Card{f.stories, f.tasks} {
		for _, c := range pool {
			if c.Key == key {
				c.StatusID, c.Order = statusID, order
				return c
			}
		}
	}
	return domain.Card{Key: key, StatusID: statusID, Order: order}
}

func (f *fakeClient) CreateStory(_ context.Context, d domain.StoryDraft) (domain.Card, error) {
	return domain.NewStory(77, d, 0)
}

func (f *fakeClient) CreateTask(_ context.Context, d domain.TaskDraft) (domain.Card, error) {
	return domain.NewTaskCard(78, d, 0)
}

func (f *fakeClient) SprintProgress(context.Context, int64) (domain.SprintProgress, error) {
	return domain.ComputeSprintProgress(4, 2), nil
}

func newTestService(t *testing.T, client *fakeClient) (*Service, *session.Session) {
	t.Helper()
	sess := session.New(&session.MemoryStore{})
	return NewService(client, sess, nil, ServiceConfig{PageSize: 7}), sess
}

func boardFixture() *fakeClient {
	return &fakeClient{
		columns: []domain.Column{
			{ID: 2, ProjectID: 1, Slug: "done", Name: "Done", Position: 1},
			{ID: 1, ProjectID: 1, Slug: "new", Name: "New", Position: 0},
		},
		stories: []domain.Card{
			{Key: domain.StoryKey(2), StatusID: 1, Title: "second", Order: 1},
			{Key: domain.StoryKey(1), StatusID: 1, Title: "first", Order: 0},
		},
		tasks: []domain.Card{
			{Key: domain.TaskKey(1), StatusID: 2, Title: "task", AssigneeIDs: []int64{}},
		},
	}
}

func TestLoginUpdatesSessionAndLogoutClears(t *testing.T) {
	ctx := context.Background()
	svc, sess := newTestService(t, &fakeClient{})
	user, err := svc.Login(ctx, "ada", "pw")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if user.Username != "ada" || sess.Token() != "tok" {
		t.Fatalf("unexpected session %q %#v", sess.Token(), user)
	}
	if _, ok := svc.CurrentUser(); !ok {
		t.Fatal("expected current user")
	}
	if err := svc.Logout(ctx); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if sess.Authenticated() {
		t.Fatal("expected session cleared")
	}
}

func TestLoginRequiresCredentials(t *testing.T) {
	svc, _ := newTestService(t, &fakeClient{})
	if _, err := svc.Login(context.Background(), " ", "pw"); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestHandleUnauthorizedClearsSessionAndBoard(t *testing.T) {
	ctx := context.Background()
	svc, sess := newTestService(t, boardFixture())
	if _, err := svc.Login(ctx, "ada", "pw"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if _, err := svc.LoadBoard(ctx, 1); err != nil {
		t.Fatalf("LoadBoard() error = %v", err)
	}
	svc.HandleUnauthorized(&api.StatusError{Method: "GET", Path: "/v1/user-settings", StatusCode: http.StatusUnauthorized})
	if sess.Authenticated() {
		t.Fatal("expected session cleared")
	}
	if svc.Board().ProjectID() != 0 || len(svc.Board().Cards()) != 0 {
		t.Fatal("expected board discarded")
	}
}

func TestLoadBoardOrdersCardsAndColumns(t *testing.T) {
	svc, _ := newTestService(t, boardFixture())
	gen, err := svc.LoadBoard(context.Background(), 1)
	if err != nil {
		t.Fatalf("LoadBoard() error = %v", err)
	}
	if gen != svc.Board().Generation() {
		t.Fatalf("unexpected generation %d", gen)
	}
	cols := svc.Board().Columns()
	if cols[0].Slug != "new" || cols[1].Slug != "done" {
		t.Fatalf("unexpected columns %#v", cols)
	}
	cards := svc.Board().CardsForColumn(1)
	if len(cards) != 2 || cards[0].Title != "first" || cards[1].Title != "second" {
		t.Fatalf("unexpected new column %#v", cards)
	}
	if len(svc.Board().CardsForColumn(2)) != 1 {
		t.Fatal("expected task in done")
	}
}

func TestLoadBoardFailureKeepsPreviousBoard(t *testing.T) {
	client := boardFixture()
	svc, _ := newTestService(t, client)
	if _, err := svc.LoadBoard(context.Background(), 1); err != nil {
		t.Fatalf("LoadBoard() error = %v", err)
	}
	client.tasksErr = errors.New("boom")
	if _, err := svc.LoadBoard(context.Background(), 2); err == nil {
		t.Fatal("expected load error")
	}
	if svc.Board().ProjectID() != 1 {
		t.Fatalf("expected previous board kept, got project %d", svc.Board().ProjectID())
	}
}

func TestDropAndQuickMoveThroughService(t *testing.T) {
	client := boardFixture()
	svc, _ := newTestService(t, client)
	if _, err := svc.LoadBoard(context.Background(), 1); err != nil {
		t.Fatalf("LoadBoard() error = %v", err)
	}
	outcome, err := svc.Drop(context.Background(), board.DropEvent{
		DraggableID: "story-1",
		Source:      board.Location{ColumnID: 1, Index: 0},
		Destination: &board.Location{ColumnID: 2, Index: 0},
	})
	if err != nil || outcome != board.OutcomeMoved {
		t.Fatalf("Drop() = %v %v", outcome, err)
	}
	if _, err := svc.MoveToColumnEnd(context.Background(), domain.StoryKey(2), 2); err != nil {
		t.Fatalf("MoveToColumnEnd() error = %v", err)
	}
	if client.moves != 2 {
		t.Fatalf("expected two moves, got %d", client.moves)
	}
	if len(svc.Board().CardsForColumn(1)) != 0 {
		t.Fatal("expected new column empty")
	}
}

func TestCreateRequiresBoard(t *testing.T) {
	svc, _ := newTestService(t, boardFixture())
	if _, err := svc.CreateStory(context.Background(), domain.StoryDraft{StatusID: 1, Title: "x"}); !errors.Is(err, ErrNoBoard) {
		t.Fatalf("expected ErrNoBoard, got %v", err)
	}
	if _, err := svc.LoadBoard(context.Background(), 1); err != nil {
		t.Fatalf("LoadBoard() error = %v", err)
	}
	card, err := svc.CreateTask(context.Background(), domain.TaskDraft{StatusID: 1, Name: "later"})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	cards := svc.Board().CardsForColumn(1)
	if cards[len(cards)-1].Key != card.Key || card.ProjectID != 1 {
		t.Fatalf("expected task appended to column end, got %#v", cards)
	}
}

func TestDuplicateProjectUsesSessionOwner(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{loginUser: domain.User{ID: 42, Username: "ada"}}
	svc, _ := newTestService(t, client)
	if _, err := svc.DuplicateProject(ctx, 1, domain.ProjectDraft{Name: "copy"}); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if _, err := svc.Login(ctx, "ada", "pw"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	project, err := svc.DuplicateProject(ctx, 1, domain.ProjectDraft{Name: " copy "})
	if err != nil {
		t.Fatalf("DuplicateProject() error = %v", err)
	}
	if client.duplicated.OwnerID != 42 || client.duplicated.Name != "copy" || project.ID != 101 {
		t.Fatalf("unexpected duplicate %#v %#v", client.duplicated, project)
	}
}

func TestListProjectsUsesPageSize(t *testing.T) {
	client := &fakeClient{}
	svc, _ := newTestService(t, client)
	if _, err := svc.ListProjects(context.Background(), 0); err != nil {
		t.Fatalf("ListProjects() error = %v", err)
	}
	if client.pageSizes[0] != 7 {
		t.Fatalf("unexpected page size %d", client.pageSizes[0])
	}
}

func TestSetProjectModulesValidates(t *testing.T) {
	client := &fakeClient{}
	svc, _ := newTestService(t, client)
	if _, err := svc.SetProjectModules(context.Background(), 1, []domain.ProjectModule{{Key: "bogus"}}); !errors.Is(err, domain.ErrInvalidModule) {
		t.Fatalf("expected ErrInvalidModule, got %v", err)
	}
	if client.modulesSent != nil {
		t.Fatal("expected no request for invalid modules")
	}
}

func TestChangePasswordValidation(t *testing.T) {
	client := &fakeClient{}
	svc, _ := newTestService(t, client)
	ctx := context.Background()
	cases := []struct {
		current, next, confirm string
		want                   error
	}{
		{"", "longenough", "longenough", ErrPasswordRequired},
		{"old", "short", "short", ErrPasswordTooShort},
		{"old", "longenough", "different1", ErrPasswordMismatch},
	}
	for _, tc := range cases {
		if err := svc.ChangePassword(ctx, tc.current, tc.next, tc.confirm); !errors.Is(err, tc.want) {
			t.Fatalf("ChangePassword(%q,%q,%q) = %v, want %v", tc.current, tc.next, tc.confirm, err, tc.want)
		}
	}
	if len(client.passwords) != 0 {
		t.Fatal("expected no request for invalid forms")
	}
	if err := svc.ChangePassword(ctx, "old", "longenough", "longenough"); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}
	if len(client.passwords) != 1 {
		t.Fatal("expected one password request")
	}
}

func TestUpdateUserSettingsMirrorsSession(t *testing.T) {
	ctx := context.Background()
	svc, sess := newTestService(t, &fakeClient{})
	if _, err := svc.Login(ctx, "ada", "pw"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	settings := domain.DefaultUserSettings(domain.User{ID: 1, Username: "ada", FullName: " Ada Lovelace "})
	saved, err := svc.UpdateUserSettings(ctx, settings)
	if err != nil {
		t.Fatalf("UpdateUserSettings() error = %v", err)
	}
	if saved.User.FullName != "Ada Lovelace" || sess.User().FullName != "Ada Lovelace" {
		t.Fatalf("expected profile mirrored, got %#v", sess.User())
	}
}
