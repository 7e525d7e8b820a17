package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/hylla/kanri/internal/domain"
)

const dueDateLayout = "2006-01-02"

// story form field indexes.
const (
	storyFieldTitle = iota
	storyFieldDescription
	storyFieldUX
	storyFieldDesign
	storyFieldFront
	storyFieldBack
	storyFieldDue
)

// task form field indexes.
const (
	taskFieldName = iota
	taskFieldDescription
)

// cardCreatedMsg reports a created story or task.
type cardCreatedMsg struct {
	generation uint64
	card       domain.Card
	err        error
}

// startStoryForm opens the story modal targeting the focused column.
func (m *Model) startStoryForm() tea.Cmd {
	col, ok := m.focusedColumn()
	if !ok {
		m.setError("no column to add to")
		return nil
	}
	m.formInputs = []textinput.Model{
		newModalInput("title: ", "story title (required)", "", 200),
		newModalInput("description: ", "markdown", "", 2000),
		newModalInput("ux: ", "points", "", 8),
		newModalInput("design: ", "points", "", 8),
		newModalInput("front: ", "points", "", 8),
		newModalInput("back: ", "points", "", 8),
		newModalInput("due: ", "YYYY-MM-DD", "", 10),
	}
	m.formFocus = 0
	m.formColumn = col.ID
	m.formStoryID = nil
	m.submitting = false
	m.mode = modeAddStory
	m.setStatus("new story in " + col.Name)
	return focusInput(m.formInputs, 0)
}

// startTaskForm opens the task modal. A focused story becomes the parent.
func (m *Model) startTaskForm() tea.Cmd {
	col, ok := m.focusedColumn()
	if !ok {
		m.setError("no column to add to")
		return nil
	}
	m.formInputs = []textinput.Model{
		newModalInput("name: ", "task name (required)", "", 200),
		newModalInput("description: ", "optional", "", 2000),
	}
	m.formFocus = 0
	m.formColumn = col.ID
	m.formStoryID = nil
	if card, ok := m.focusedCard(); ok && card.Key.Kind == domain.CardKindStory {
		id := card.Key.ID
		m.formStoryID = &id
	}
	m.submitting = false
	m.mode = modeAddTask
	m.setStatus("new task in " + col.Name)
	return focusInput(m.formInputs, 0)
}

// handleCardFormKey handles keys inside the story and task modals.
func (m Model) handleCardFormKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	if m.submitting {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.cancel):
		m.mode = modeNone
		m.setStatus("cancelled")
		return m, nil
	case key.Matches(msg, m.keys.submit):
		if m.mode == modeAddStory {
			return m.submitStory()
		}
		return m.submitTask()
	case key.Matches(msg, m.keys.nextField), key.Matches(msg, m.keys.prevField):
		return m.cycleFormFocus(key.Matches(msg, m.keys.nextField))
	}
	return m.updateFormInput(msg)
}

// submitStory parses the story modal and creates the story.
func (m Model) submitStory() (tea.Model, tea.Cmd) {
	draft := domain.StoryDraft{
		StatusID:    m.formColumn,
		Title:       m.formInputs[storyFieldTitle].Value(),
		Description: m.formInputs[storyFieldDescription].Value(),
	}
	var err error
	points := []struct {
		field int
		dst   **float64
		label string
	}{
		{storyFieldUX, &draft.Points.UX, "ux"},
		{storyFieldDesign, &draft.Points.Design, "design"},
		{storyFieldFront, &draft.Points.Front, "front"},
		{storyFieldBack, &draft.Points.Back, "back"},
	}
	for _, p := range points {
		if *p.dst, err = parsePoints(m.formInputs[p.field].Value()); err != nil {
			m.setError(p.label + " points: " + err.Error())
			return m, nil
		}
	}
	if draft.DueDate, err = parseDueDate(m.formInputs[storyFieldDue].Value()); err != nil {
		m.setError("due date: " + err.Error())
		return m, nil
	}

	m.submitting = true
	m.setStatus("creating story...")
	svc := m.svc
	gen := m.generation
	ctx, cancel := m.requestContext()
	return m, func() tea.Msg {
		defer cancel()
		card, err := svc.CreateStory(ctx, draft)
		return cardCreatedMsg{generation: gen, card: card, err: err}
	}
}

// submitTask creates the task from the task modal.
func (m Model) submitTask() (tea.Model, tea.Cmd) {
	draft := domain.TaskDraft{
		StatusID:    m.formColumn,
		UserStoryID: m.formStoryID,
		Name:        m.formInputs[taskFieldName].Value(),
		Description: m.formInputs[taskFieldDescription].Value(),
	}
	m.submitting = true
	m.setStatus("creating task...")
	svc := m.svc
	gen := m.generation
	ctx, cancel := m.requestContext()
	return m, func() tea.Msg {
		defer cancel()
		card, err := svc.CreateTask(ctx, draft)
		return cardCreatedMsg{generation: gen, card: card, err: err}
	}
}

// handleCardCreated closes the modal and focuses the new card. Validation
// failures keep the modal open.
func (m Model) handleCardCreated(msg cardCreatedMsg) (tea.Model, tea.Cmd) {
	if m.sessionEnded(msg.err) {
		m.submitting = false
		return m.toLogin("session expired, sign in again")
	}
	if !m.boardCurrent(msg.generation) {
		return m, nil
	}
	m.submitting = false
	if msg.err != nil {
		if errors.Is(msg.err, domain.ErrTitleRequired) {
			m.setError("a title is required")
			return m, nil
		}
		return m.failed("create failed", msg.err)
	}
	m.mode = modeNone
	m.focusCard(msg.card.Key)
	m.setStatus("created " + msg.card.Ref())
	return m, nil
}

// renderCardForm renders the story or task modal.
func (m Model) renderCardForm() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	hint := lipgloss.NewStyle().Foreground(mutedColor)
	colName := ""
	if col, ok := m.svc.Board().Column(m.formColumn); ok {
		colName = col.Name
	}
	title := "New Story"
	if m.mode == modeAddTask {
		title = "New Task"
	}
	lines := []string{titleStyle.Render(title) + hint.Render("  in "+colName)}
	if m.mode == modeAddTask && m.formStoryID != nil {
		lines = append(lines, hint.Render("story: "+domain.StoryKey(*m.formStoryID).Ref()))
	}
	for idx, in := range m.formInputs {
		if m.mode == modeAddStory && idx == storyFieldUX {
			lines = append(lines, hint.Render("points"))
		}
		lines = append(lines, in.View())
	}
	lines = append(lines, hint.Render("enter save • tab next field • esc cancel"))
	return m.modalStyle(accentColor, 44, 80).Render(strings.Join(lines, "\n"))
}

// parsePoints reads one optional non-negative estimate.
func parsePoints(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%q is not a number", raw)
	}
	if v < 0 {
		return nil, domain.ErrInvalidPoints
	}
	return &v, nil
}

// parseDueDate reads one optional YYYY-MM-DD date.
func parseDueDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dueDateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("%q is not YYYY-MM-DD", raw)
	}
	return &t, nil
}
