package app_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
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

// newBackedService wires the app service to the mock backend over HTTP.
func newBackedService(t *testing.T) *app.Service {
	t.Helper()
	repo, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	backendSvc := backend.NewService(repo, nil, nil, backend.ServiceConfig{BcryptCost: bcrypt.MinCost})
	if _, err := backendSvc.EnsureUser(context.Background(), domain.User{Username: "ada"}, api.PrehashPassword("secret")); err != nil {
		t.Fatalf("EnsureUser() error = %v", err)
	}
	handler, err := httpapi.NewHandler(backendSvc, httpapi.Config{Registerer: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	sess := session.New(&session.MemoryStore{})
	var svc *app.Service
	client, err := api.New(api.Config{BaseURL: server.URL, PrehashPasswords: true}, sess,
		api.WithHTTPClient(server.Client()),
		api.WithUnauthorizedHandler(func(statusErr *api.StatusError) { svc.HandleUnauthorized(statusErr) }),
	)
	if err != nil {
		t.Fatalf("api.New() error = %v", err)
	}
	svc = app.NewService(client, sess, nil, app.ServiceConfig{})
	if _, err := svc.Login(context.Background(), "ada", "secret"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	return svc
}

func columnRefs(cards []domain.Card) string {
	refs := make([]string, 0, len(cards))
	for _, c := range cards {
		refs = append(refs, c.Ref())
	}
	return strings.Join(refs, ",")
}

func columnOrders(cards []domain.Card) map[string]int {
	out := make(map[string]int, len(cards))
	for _, c := range cards {
		out[c.Ref()] = c.Order
	}
	return out
}

func TestMixedColumnReorderSurvivesReload(t *testing.T) {
	ctx := context.Background()
	svc := newBackedService(t)

	project, err := svc.CreateProject(ctx, domain.ProjectDraft{Name: "Website"})
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	if _, err := svc.LoadBoard(ctx, project.ID); err != nil {
		t.Fatalf("LoadBoard() error = %v", err)
	}
	cols := svc.Board().Columns()
	if len(cols) < 2 {
		t.Fatalf("expected default columns, got %#v", cols)
	}
	col := cols[0].ID

	us1, err := svc.CreateStory(ctx, domain.StoryDraft{StatusID: col, Title: "first"})
	if err != nil {
		t.Fatalf("CreateStory() error = %v", err)
	}
	us2, err := svc.CreateStory(ctx, domain.StoryDraft{StatusID: col, Title: "second"})
	if err != nil {
		t.Fatalf("CreateStory() error = %v", err)
	}
	t1, err := svc.CreateTask(ctx, domain.TaskDraft{StatusID: col, Name: "wire api"})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	t2, err := svc.CreateTask(ctx, domain.TaskDraft{StatusID: col, Name: "write docs"})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	// Indices count every card in the column, stories and tasks alike.
	drops := []struct {
		key   domain.CardKey
		index int
	}{
		{key: t2.Key, index: 0},
		{key: us2.Key, index: 0},
		{key: us2.Key, index: 3},
	}
	for _, d := range drops {
		src, ok := svc.Board().LocationOf(d.key)
		if !ok {
			t.Fatalf("card %s missing from board", d.key.Ref())
		}
		outcome, err := svc.Drop(ctx, board.DropEvent{
			DraggableID: d.key.String(),
			Source:      src,
			Destination: &board.Location{ColumnID: col, Index: d.index},
		})
		if err != nil || outcome != board.OutcomeMoved {
			t.Fatalf("Drop(%s -> %d) = %v, %v", d.key.Ref(), d.index, outcome, err)
		}
	}

	local := svc.Board().CardsForColumn(col)
	if got, want := columnRefs(local), columnRefs([]domain.Card{us1, us2, t2, t1}); got != want {
		t.Fatalf("local column after moves = %s, want %s", got, want)
	}
	localOrders := columnOrders(local)

	if _, err := svc.LoadBoard(ctx, project.ID); err != nil {
		t.Fatalf("LoadBoard() reload error = %v", err)
	}
	reloaded := svc.Board().CardsForColumn(col)
	if got := columnRefs(reloaded); got != columnRefs(local) {
		t.Fatalf("reloaded column %s, local was %s", got, columnRefs(local))
	}
	for ref, order := range columnOrders(reloaded) {
		if localOrders[ref] != order {
			t.Fatalf("card %s order local=%d server=%d", ref, localOrders[ref], order)
		}
	}
}

func TestCrossColumnMoveKeepsKindOrdersInStep(t *testing.T) {
	ctx := context.Background()
	svc := newBackedService(t)

	project, err := svc.CreateProject(ctx, domain.ProjectDraft{Name: "Ops"})
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	if _, err := svc.LoadBoard(ctx, project.ID); err != nil {
		t.Fatalf("LoadBoard() error = %v", err)
	}
	cols := svc.Board().Columns()
	from, to := cols[0].ID, cols[1].ID

	task, err := svc.CreateTask(ctx, domain.TaskDraft{StatusID: from, Name: "rotate keys"})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if _, err := svc.CreateStory(ctx, domain.StoryDraft{StatusID: to, Title: "audit"}); err != nil {
		t.Fatalf("CreateStory() error = %v", err)
	}
	if _, err := svc.CreateTask(ctx, domain.TaskDraft{StatusID: to, Name: "page oncall"}); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	// Slot 1 sits between the story and the existing task: first task slot.
	outcome, err := svc.Drop(ctx, board.DropEvent{
		DraggableID: task.Key.String(),
		Source:      board.Location{ColumnID: from, Index: 0},
		Destination: &board.Location{ColumnID: to, Index: 1},
	})
	if err != nil || outcome != board.OutcomeMoved {
		t.Fatalf("Drop() = %v, %v", outcome, err)
	}
	local := columnRefs(svc.Board().CardsForColumn(to))

	if _, err := svc.LoadBoard(ctx, project.ID); err != nil {
		t.Fatalf("LoadBoard() reload error = %v", err)
	}
	if got := columnRefs(svc.Board().CardsForColumn(to)); got != local {
		t.Fatalf("reloaded column %s, local was %s", got, local)
	}
	moved, _ := svc.Board().Card(task.Key)
	if moved.Order != 0 || moved.StatusID != to {
		t.Fatalf("unexpected saved task %#v", moved)
	}
}
