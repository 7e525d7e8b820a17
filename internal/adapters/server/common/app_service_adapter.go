package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hylla/kanri/internal/api"
	"github.com/hylla/kanri/internal/app"
	"github.com/hylla/kanri/internal/board"
	"github.com/hylla/kanri/internal/domain"
)

// dueDateLayout is the calendar-date layout accepted for due dates.
const dueDateLayout = "2006-01-02"

// AppServiceAdapter maps transport contracts onto app.Service board APIs.
//
// The service owns a single board store, so calls are serialized and every
// board operation reloads the requested project first.
type AppServiceAdapter struct {
	mu      sync.Mutex
	service *app.Service
}

var _ BoardService = (*AppServiceAdapter)(nil)

// NewAppServiceAdapter builds one common adapter over an app.Service instance.
func NewAppServiceAdapter(service *app.Service) *AppServiceAdapter {
	return &AppServiceAdapter{service: service}
}

// ListProjects returns one page of projects visible to the session user.
func (a *AppServiceAdapter) ListProjects(ctx context.Context, page int) (ProjectList, error) {
	if err := a.ready(); err != nil {
		return ProjectList{}, err
	}
	if page < 0 {
		return ProjectList{}, fmt.Errorf("page %d: %w", page, ErrInvalidRequest)
	}
	result, err := a.service.ListProjects(ctx, page)
	if err != nil {
		return ProjectList{}, mapAppError("list projects", err)
	}
	out := ProjectList{
		Projects:   make([]ProjectSummary, 0, len(result.Content)),
		Page:       result.Page,
		TotalPages: result.TotalPages,
	}
	for _, p := range result.Content {
		out.Projects = append(out.Projects, ProjectSummary{
			ID:              p.ID,
			Slug:            p.Slug,
			Name:            p.Name,
			Description:     p.Description,
			IsPrivate:       p.IsPrivate,
			CurrentSprintID: p.CurrentSprintID,
		})
	}
	return out, nil
}

// GetBoard loads and returns the board of projectID.
func (a *AppServiceAdapter) GetBoard(ctx context.Context, projectID int64) (BoardSnapshot, error) {
	if err := a.ready(); err != nil {
		return BoardSnapshot{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.load(ctx, projectID); err != nil {
		return BoardSnapshot{}, err
	}
	return snapshotBoard(a.service.Board()), nil
}

// MoveCard moves one card to a column position and waits for the server.
func (a *AppServiceAdapter) MoveCard(ctx context.Context, req MoveCardRequest) (MoveCardResult, error) {
	if err := a.ready(); err != nil {
		return MoveCardResult{}, err
	}
	key, err := domain.ParseCardKey(req.Card)
	if err != nil {
		return MoveCardResult{}, fmt.Errorf("move card: %w", errors.Join(ErrInvalidRequest, err))
	}
	if req.Index != nil && *req.Index < 0 {
		return MoveCardResult{}, fmt.Errorf("index %d: %w", *req.Index, ErrInvalidRequest)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.load(ctx, req.ProjectID); err != nil {
		return MoveCardResult{}, err
	}
	store := a.service.Board()
	if _, ok := store.Column(req.StatusID); !ok {
		return MoveCardResult{}, fmt.Errorf("status %d is not on board %d: %w", req.StatusID, req.ProjectID, ErrNotFound)
	}
	src, ok := store.LocationOf(key)
	if !ok {
		return MoveCardResult{}, fmt.Errorf("card %s: %w", key.Ref(), ErrNotFound)
	}

	var outcome board.Outcome
	if req.Index == nil {
		outcome, err = a.service.MoveToColumnEnd(ctx, key, req.StatusID)
	} else {
		index := min(*req.Index, len(store.CardsForColumn(req.StatusID)))
		outcome, err = a.service.Drop(ctx, board.DropEvent{
			DraggableID: key.String(),
			Source:      src,
			Destination: &board.Location{ColumnID: req.StatusID, Index: index},
		})
	}
	if err != nil {
		return MoveCardResult{}, mapAppError("move card", err)
	}
	card, _ := store.Card(key)
	return MoveCardResult{
		Moved: outcome == board.OutcomeMoved,
		Card:  summarizeCard(store, card),
	}, nil
}

// CreateStory creates a user story. A zero status uses the first column.
func (a *AppServiceAdapter) CreateStory(ctx context.Context, req CreateStoryRequest) (CardSummary, error) {
	if err := a.ready(); err != nil {
		return CardSummary{}, err
	}
	due, err := parseDueDate(req.DueDate)
	if err != nil {
		return CardSummary{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	statusID, err := a.resolveStatus(ctx, req.ProjectID, req.StatusID)
	if err != nil {
		return CardSummary{}, err
	}
	card, err := a.service.CreateStory(ctx, domain.StoryDraft{
		ProjectID:   req.ProjectID,
		StatusID:    statusID,
		Title:       req.Title,
		Description: req.Description,
		DueDate:     due,
	})
	if err != nil {
		return CardSummary{}, mapAppError("create story", err)
	}
	return summarizeCard(a.service.Board(), card), nil
}

// CreateTask creates a task. A zero status uses the first column.
func (a *AppServiceAdapter) CreateTask(ctx context.Context, req CreateTaskRequest) (CardSummary, error) {
	if err := a.ready(); err != nil {
		return CardSummary{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	statusID, err := a.resolveStatus(ctx, req.ProjectID, req.StatusID)
	if err != nil {
		return CardSummary{}, err
	}
	draft := domain.TaskDraft{
		ProjectID:   req.ProjectID,
		StatusID:    statusID,
		Name:        req.Name,
		Description: req.Description,
	}
	if req.UserStoryID > 0 {
		draft.UserStoryID = &req.UserStoryID
	}
	card, err := a.service.CreateTask(ctx, draft)
	if err != nil {
		return CardSummary{}, mapAppError("create task", err)
	}
	return summarizeCard(a.service.Board(), card), nil
}

// SprintProgress reports completion of one sprint.
func (a *AppServiceAdapter) SprintProgress(ctx context.Context, sprintID int64) (ProgressSummary, error) {
	if err := a.ready(); err != nil {
		return ProgressSummary{}, err
	}
	if sprintID <= 0 {
		return ProgressSummary{}, fmt.Errorf("sprint id %d: %w", sprintID, ErrInvalidRequest)
	}
	progress, err := a.service.SprintProgress(ctx, sprintID)
	if err != nil {
		return ProgressSummary{}, mapAppError("sprint progress", err)
	}
	return ProgressSummary{
		SprintID:       sprintID,
		Percentage:     progress.Percentage,
		TotalTasks:     progress.TotalTasks,
		CompletedTasks: progress.CompletedTasks,
	}, nil
}

// ready reports whether the adapter has a service and a signed-in user.
func (a *AppServiceAdapter) ready() error {
	if a == nil || a.service == nil {
		return fmt.Errorf("app service adapter is not configured: %w", ErrUnavailable)
	}
	if _, ok := a.service.CurrentUser(); !ok {
		return fmt.Errorf("run `kanri login` first: %w", ErrUnauthorized)
	}
	return nil
}

// load refreshes the store with projectID. Callers hold a.mu.
func (a *AppServiceAdapter) load(ctx context.Context, projectID int64) error {
	if projectID <= 0 {
		return fmt.Errorf("project id %d: %w", projectID, ErrInvalidRequest)
	}
	if _, err := a.service.LoadBoard(ctx, projectID); err != nil {
		return mapAppError("load board", err)
	}
	return nil
}

// resolveStatus loads the board and validates or defaults the status. Callers hold a.mu.
func (a *AppServiceAdapter) resolveStatus(ctx context.Context, projectID, statusID int64) (int64, error) {
	if err := a.load(ctx, projectID); err != nil {
		return 0, err
	}
	columns := a.service.Board().Columns()
	if statusID == 0 {
		if len(columns) == 0 {
			return 0, fmt.Errorf("project %d has no statuses: %w", projectID, ErrInvalidRequest)
		}
		return columns[0].ID, nil
	}
	if _, ok := a.service.Board().Column(statusID); !ok {
		return 0, fmt.Errorf("status %d is not on board %d: %w", statusID, projectID, ErrNotFound)
	}
	return statusID, nil
}

// snapshotBoard copies the store into transport rows.
func snapshotBoard(store *board.Store) BoardSnapshot {
	out := BoardSnapshot{ProjectID: store.ProjectID()}
	for _, col := range store.Columns() {
		cards := store.CardsForColumn(col.ID)
		snap := ColumnSnapshot{
			ID:       col.ID,
			Slug:     col.Slug,
			Name:     col.Name,
			Color:    col.Color,
			Position: col.Position,
			Cards:    make([]CardSummary, 0, len(cards)),
		}
		for i, c := range cards {
			summary := cardSummary(c)
			summary.Index = i
			snap.Cards = append(snap.Cards, summary)
		}
		out.Columns = append(out.Columns, snap)
	}
	return out
}

// summarizeCard converts one card and resolves its display index.
func summarizeCard(store *board.Store, card domain.Card) CardSummary {
	out := cardSummary(card)
	if loc, ok := store.LocationOf(card.Key); ok {
		out.Index = loc.Index
	}
	return out
}

func cardSummary(c domain.Card) CardSummary {
	out := CardSummary{
		Key:       c.Key.String(),
		Ref:       c.Ref(),
		Kind:      string(c.Key.Kind),
		Title:     c.Title,
		StatusID:  c.StatusID,
		Points:    c.Points.Total(),
		Assignees: c.AssigneeIDs,
	}
	if c.DueDate != nil {
		out.DueDate = c.DueDate.Format(dueDateLayout)
	}
	if c.UserStoryID != nil {
		out.UserStoryID = *c.UserStoryID
	}
	return out
}

// parseDueDate parses one optional calendar date.
func parseDueDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	due, err := time.Parse(dueDateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("due_date %q must be YYYY-MM-DD: %w", raw, ErrInvalidRequest)
	}
	return &due, nil
}

// mapAppError maps app, client, and domain errors into transport sentinels.
func mapAppError(operation string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, api.ErrUnauthorized), errors.Is(err, app.ErrNotAuthenticated):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrUnauthorized, err))
	case errors.Is(err, api.ErrTransport):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrUnavailable, err))
	case api.StatusCode(err) == http.StatusNotFound, errors.Is(err, board.ErrUnknownCard):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrNotFound, err))
	case api.StatusCode(err) == http.StatusBadRequest,
		errors.Is(err, app.ErrNoBoard),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidName),
		errors.Is(err, domain.ErrTitleRequired),
		errors.Is(err, domain.ErrInvalidPosition),
		errors.Is(err, domain.ErrInvalidColumnID),
		errors.Is(err, domain.ErrInvalidCardKey),
		errors.Is(err, domain.ErrInvalidPoints):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrInvalidRequest, err))
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}
