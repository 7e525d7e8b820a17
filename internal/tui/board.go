package tui

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/dustin/go-humanize"

	"github.com/hylla/kanri/internal/board"
	"github.com/hylla/kanri/internal/domain"
)

// boardLoadedMsg reports a completed board load.
type boardLoadedMsg struct {
	projectID  int64
	generation uint64
	err        error
}

// moveMsg reports the outcome of one drop.
type moveMsg struct {
	generation uint64
	key        domain.CardKey
	outcome    board.Outcome
	cancelled  bool
	err        error
}

// progressMsg carries one sprint progress fetch.
type progressMsg struct {
	generation uint64
	progress   domain.SprintProgress
	err        error
}

// progressTickMsg triggers the next progress poll for one board generation.
type progressTickMsg struct {
	generation uint64
}

// openBoard switches to the board screen and loads it.
func (m Model) openBoard(project domain.Project) (tea.Model, tea.Cmd) {
	m.project = project
	m.screen = screenBoard
	m.mode = modeNone
	m.selectedColumn, m.selectedCard = 0, 0
	m.progress = nil
	m.svc.Board().Clear()
	m.generation = m.svc.Board().Generation()
	cmd := m.loadBoard()
	return m, cmd
}

// loadBoard fetches statuses and cards for the open project.
func (m *Model) loadBoard() tea.Cmd {
	m.boardLoading = true
	m.setStatus("loading board...")
	svc := m.svc
	projectID := m.project.ID
	ctx, cancel := m.requestContext()
	return func() tea.Msg {
		defer cancel()
		gen, err := svc.LoadBoard(ctx, projectID)
		return boardLoadedMsg{projectID: projectID, generation: gen, err: err}
	}
}

// boardCurrent reports whether gen still matches the board on screen.
func (m Model) boardCurrent(gen uint64) bool {
	return m.screen == screenBoard && gen == m.generation && gen == m.svc.Board().Generation()
}

// sessionEnded reports a session error seen on the board. The unauthorized
// hook clears the store before the result arrives, so these skip boardCurrent.
func (m Model) sessionEnded(err error) bool {
	return err != nil && m.screen == screenBoard && isSessionError(err)
}

// handleBoardLoaded adopts the new generation and starts progress polling.
func (m Model) handleBoardLoaded(msg boardLoadedMsg) (tea.Model, tea.Cmd) {
	if m.screen != screenBoard || msg.projectID != m.project.ID {
		return m, nil
	}
	m.boardLoading = false
	if msg.err != nil {
		return m.failed("load board", msg.err)
	}
	m.generation = msg.generation
	m.clampBoardSelection()
	m.setStatus("")
	return m, m.fetchProgress()
}

// fetchProgress loads sprint progress for the open project.
func (m Model) fetchProgress() tea.Cmd {
	sprintID := m.project.CurrentSprintID
	if sprintID == 0 {
		return nil
	}
	svc := m.svc
	gen := m.generation
	ctx, cancel := m.requestContext()
	return func() tea.Msg {
		defer cancel()
		progress, err := svc.SprintProgress(ctx, sprintID)
		return progressMsg{generation: gen, progress: progress, err: err}
	}
}

// handleProgress stores progress and schedules the next poll.
func (m Model) handleProgress(msg progressMsg) (tea.Model, tea.Cmd) {
	if m.sessionEnded(msg.err) {
		return m.toLogin("session expired, sign in again")
	}
	if !m.boardCurrent(msg.generation) {
		return m, nil
	}
	if msg.err == nil {
		progress := msg.progress
		m.progress = &progress
	}
	if m.pollInterval <= 0 {
		return m, nil
	}
	gen := msg.generation
	return m, tea.Tick(m.pollInterval, func(time.Time) tea.Msg {
		return progressTickMsg{generation: gen}
	})
}

// columns returns board columns in render order.
func (m Model) columns() []domain.Column {
	return m.svc.Board().Columns()
}

// visibleCards returns a column's cards, leaving out the card being dragged.
func (m Model) visibleCards(columnID int64) []domain.Card {
	cards := m.svc.Board().CardsForColumn(columnID)
	if m.mode != modeDrag {
		return cards
	}
	return slices.DeleteFunc(cards, func(c domain.Card) bool { return c.Key == m.drag.key })
}

// focusedColumn returns the column under the cursor.
func (m Model) focusedColumn() (domain.Column, bool) {
	cols := m.columns()
	if len(cols) == 0 {
		return domain.Column{}, false
	}
	return cols[clamp(m.selectedColumn, 0, len(cols)-1)], true
}

// focusedCard returns the card under the cursor.
func (m Model) focusedCard() (domain.Card, bool) {
	col, ok := m.focusedColumn()
	if !ok {
		return domain.Card{}, false
	}
	cards := m.svc.Board().CardsForColumn(col.ID)
	if len(cards) == 0 {
		return domain.Card{}, false
	}
	return cards[clamp(m.selectedCard, 0, len(cards)-1)], true
}

// clampBoardSelection keeps the cursor on an existing column and card.
func (m *Model) clampBoardSelection() {
	cols := m.columns()
	m.selectedColumn = clamp(m.selectedColumn, 0, len(cols)-1)
	if len(cols) == 0 {
		m.selectedCard = 0
		return
	}
	cards := m.svc.Board().CardsForColumn(cols[m.selectedColumn].ID)
	m.selectedCard = clamp(m.selectedCard, 0, len(cards)-1)
}

// focusCard moves the cursor onto key.
func (m *Model) focusCard(key domain.CardKey) {
	loc, ok := m.svc.Board().LocationOf(key)
	if !ok {
		m.clampBoardSelection()
		return
	}
	m.selectedColumn = max(0, slices.IndexFunc(m.columns(), func(c domain.Column) bool { return c.ID == loc.ColumnID }))
	m.selectedCard = loc.Index
}

// handleBoardKey handles keys on the board screen.
func (m Model) handleBoardKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case modeDrag:
		return m.handleDragKey(msg)
	case modeAddStory, modeAddTask:
		return m.handleCardFormKey(msg)
	case modeCardInfo:
		switch {
		case key.Matches(msg, m.keys.copyRef):
			return m, m.copyCmd(m.infoCard.Ref())
		case key.Matches(msg, m.keys.cancel), key.Matches(msg, m.keys.cardInfo), key.Matches(msg, m.keys.quit):
			m.mode = modeNone
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.toggleHelp):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.back):
		m.svc.Board().Clear()
		m.screen = screenProjects
		m.progress = nil
		m.setStatus("")
		return m, m.loadProjects(m.page.Page)
	case key.Matches(msg, m.keys.boardRefresh):
		cmd := m.loadBoard()
		return m, cmd
	case key.Matches(msg, m.keys.toggleDense):
		m.compact = !m.compact
		return m, nil
	case key.Matches(msg, m.keys.left):
		m.selectedColumn = clamp(m.selectedColumn-1, 0, len(m.columns())-1)
		m.clampBoardSelection()
		return m, nil
	case key.Matches(msg, m.keys.right):
		m.selectedColumn = clamp(m.selectedColumn+1, 0, len(m.columns())-1)
		m.clampBoardSelection()
		return m, nil
	case key.Matches(msg, m.keys.up):
		m.selectedCard = max(0, m.selectedCard-1)
		m.clampBoardSelection()
		return m, nil
	case key.Matches(msg, m.keys.down):
		m.selectedCard++
		m.clampBoardSelection()
		return m, nil
	case key.Matches(msg, m.keys.pickUp):
		return m.startDrag()
	case key.Matches(msg, m.keys.moveLeft):
		return m.quickMove(-1)
	case key.Matches(msg, m.keys.moveRight):
		return m.quickMove(1)
	case key.Matches(msg, m.keys.newStory):
		cmd := m.startStoryForm()
		return m, cmd
	case key.Matches(msg, m.keys.newTask):
		cmd := m.startTaskForm()
		return m, cmd
	case key.Matches(msg, m.keys.cardInfo):
		card, ok := m.focusedCard()
		if !ok {
			return m, nil
		}
		m.infoCard = card.Key
		m.mode = modeCardInfo
		return m, nil
	case key.Matches(msg, m.keys.copyRef):
		card, ok := m.focusedCard()
		if !ok {
			return m, nil
		}
		return m, m.copyCmd(card.Ref())
	}
	return m, nil
}

// startDrag picks up the focused card.
func (m Model) startDrag() (tea.Model, tea.Cmd) {
	card, ok := m.focusedCard()
	if !ok {
		return m, nil
	}
	loc, ok := m.svc.Board().LocationOf(card.Key)
	if !ok {
		return m, nil
	}
	m.drag = dragState{key: card.Key, source: loc, dest: loc}
	m.mode = modeDrag
	m.setStatus(fmt.Sprintf("moving %s • h/j/k/l place • space drop • esc cancel", card.Ref()))
	return m, nil
}

// handleDragKey moves the drop placeholder, drops, or cancels.
func (m Model) handleDragKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.cancelDrag):
		return m.finishDrag(nil)
	case key.Matches(msg, m.keys.drop):
		dest := m.drag.dest
		return m.finishDrag(&dest)
	case key.Matches(msg, m.keys.left):
		m.moveDragColumn(-1)
	case key.Matches(msg, m.keys.right):
		m.moveDragColumn(1)
	case key.Matches(msg, m.keys.up):
		m.drag.dest.Index = max(0, m.drag.dest.Index-1)
	case key.Matches(msg, m.keys.down):
		m.drag.dest.Index = min(len(m.visibleCards(m.drag.dest.ColumnID)), m.drag.dest.Index+1)
	}
	return m, nil
}

// moveDragColumn shifts the placeholder to a neighbouring column.
func (m *Model) moveDragColumn(delta int) {
	cols := m.columns()
	idx := slices.IndexFunc(cols, func(c domain.Column) bool { return c.ID == m.drag.dest.ColumnID })
	if idx < 0 {
		return
	}
	next := clamp(idx+delta, 0, len(cols)-1)
	m.drag.dest.ColumnID = cols[next].ID
	m.drag.dest.Index = clamp(m.drag.dest.Index, 0, len(m.visibleCards(cols[next].ID)))
	m.selectedColumn = next
}

// finishDrag emits the drop event. A nil destination cancels the move.
func (m Model) finishDrag(dest *board.Location) (tea.Model, tea.Cmd) {
	ev := board.DropEvent{
		DraggableID: m.drag.key.String(),
		Source:      m.drag.source,
		Destination: dest,
	}
	m.mode = modeNone
	m.focusCard(m.drag.key)
	if dest != nil {
		m.setStatus("moving " + m.drag.key.Ref() + "...")
	}
	svc := m.svc
	gen := m.generation
	cardKey := m.drag.key
	ctx, cancel := m.requestContext()
	return m, func() tea.Msg {
		defer cancel()
		outcome, err := svc.Drop(ctx, ev)
		return moveMsg{generation: gen, key: cardKey, outcome: outcome, cancelled: dest == nil, err: err}
	}
}

// quickMove sends the focused card to the end of the neighbouring column.
func (m Model) quickMove(delta int) (tea.Model, tea.Cmd) {
	card, ok := m.focusedCard()
	if !ok {
		return m, nil
	}
	cols := m.columns()
	target := m.selectedColumn + delta
	if target < 0 || target >= len(cols) {
		m.setStatus("no column in that direction")
		return m, nil
	}
	m.setStatus("moving " + card.Ref() + "...")
	svc := m.svc
	gen := m.generation
	columnID := cols[target].ID
	ctx, cancel := m.requestContext()
	return m, func() tea.Msg {
		defer cancel()
		outcome, err := svc.MoveToColumnEnd(ctx, card.Key, columnID)
		return moveMsg{generation: gen, key: card.Key, outcome: outcome, err: err}
	}
}

// handleMoveResult follows the moved card or reports the failure.
func (m Model) handleMoveResult(msg moveMsg) (tea.Model, tea.Cmd) {
	if m.sessionEnded(msg.err) {
		return m.toLogin("session expired, sign in again")
	}
	if !m.boardCurrent(msg.generation) {
		return m, nil
	}
	if msg.err != nil {
		return m.failed("move "+msg.key.Ref()+" failed", msg.err)
	}
	switch msg.outcome {
	case board.OutcomeMoved:
		m.focusCard(msg.key)
		colName := ""
		if col, ok := m.focusedColumn(); ok {
			colName = col.Name
		}
		m.setStatus(fmt.Sprintf("moved %s to %s", msg.key.Ref(), colName))
	default:
		if msg.cancelled {
			m.setStatus("move cancelled")
		} else {
			m.setStatus(msg.key.Ref() + " not moved")
		}
	}
	return m, nil
}

// boardBindings returns help for the board or its active modal.
func (m Model) boardBindings() help.KeyMap {
	switch m.mode {
	case modeDrag:
		return m.keys.dragHelp()
	case modeAddStory, modeAddTask:
		return m.keys.formHelp()
	case modeCardInfo:
		bindings := []key.Binding{m.keys.copyRef, m.keys.cancel}
		return helpBindings{short: bindings, full: [][]key.Binding{bindings}}
	}
	return m.keys.boardHelp()
}

// renderBoard renders columns left to right and the progress panel.
func (m Model) renderBoard() string {
	cols := m.columns()
	if len(cols) == 0 {
		if m.boardLoading {
			return ""
		}
		return lipgloss.NewStyle().Foreground(mutedColor).Render("This project has no statuses.")
	}

	colWidth := m.columnWidthFor(len(cols))
	colHeight := m.columnHeight()
	base := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(dimColor).
		Padding(0, 1).
		MarginRight(1).
		Width(colWidth)

	views := make([]string, 0, len(cols))
	for colIdx, col := range cols {
		lines, selStart, selEnd := m.columnLines(col, colIdx, colWidth-4)
		titleColor := accentColor
		if strings.TrimSpace(col.Color) != "" {
			titleColor = lipgloss.Color(col.Color)
		}
		header := lipgloss.NewStyle().Bold(true).Foreground(titleColor).
			Render(fmt.Sprintf("%s (%d)", col.Name, len(m.svc.Board().CardsForColumn(col.ID))))

		window := max(1, colHeight-3)
		top := 0
		if selStart >= 0 {
			if selEnd >= window {
				top = selEnd - window + 1
			}
			top = min(top, selStart)
		}
		top = clamp(top, 0, max(0, len(lines)-window))
		if len(lines) > window {
			lines = lines[top : top+window]
		}
		content := fitLines(header+"\n"+strings.Join(lines, "\n"), window+1)

		style := base
		if colIdx == m.selectedColumn {
			style = style.BorderForeground(accentColor)
		}
		views = append(views, style.Render(content))
	}

	sections := []string{lipgloss.JoinHorizontal(lipgloss.Top, views...)}
	if panel := m.renderProgress(); panel != "" {
		sections = append(sections, panel)
	}
	return strings.Join(sections, "\n")
}

// columnLines renders one column's cards and reports the selected row span.
func (m Model) columnLines(col domain.Column, colIdx, width int) ([]string, int, int) {
	muted := lipgloss.NewStyle().Foreground(mutedColor)
	selected := lipgloss.NewStyle().Foreground(selectedColor).Bold(true)
	placeholder := lipgloss.NewStyle().Foreground(accentColor).Bold(true)

	cards := m.visibleCards(col.ID)
	lines := make([]string, 0, len(cards)*3+1)
	selStart, selEnd := -1, -1
	dragging := m.mode == modeDrag && m.drag.dest.ColumnID == col.ID

	emitPlaceholder := func() {
		dragged, _ := m.svc.Board().Card(m.drag.key)
		selStart = len(lines)
		lines = append(lines, placeholder.Render(truncate("┈ "+dragged.Ref()+" "+dragged.Title, width)))
		selEnd = len(lines) - 1
	}

	if len(cards) == 0 && !dragging {
		return []string{muted.Render("(empty)")}, -1, -1
	}
	for idx, card := range cards {
		if dragging && idx == m.drag.dest.Index {
			emitPlaceholder()
		}
		isSelected := m.mode != modeDrag && colIdx == m.selectedColumn && idx == m.selectedCard
		prefix := "  "
		if isSelected {
			prefix = "│ "
			selStart = len(lines)
		}
		title := prefix + truncate(card.Ref()+" "+card.Title, max(1, width-2))
		if isSelected {
			title = selected.Render(title)
		}
		lines = append(lines, title)
		if !m.compact {
			if meta := m.cardMeta(card); meta != "" {
				lines = append(lines, prefix+muted.Render(truncate(meta, max(1, width-2))))
			}
		}
		if isSelected {
			selEnd = len(lines) - 1
		}
	}
	if dragging && m.drag.dest.Index >= len(cards) {
		emitPlaceholder()
	}
	return lines, selStart, selEnd
}

// cardMeta renders the secondary line shown in full density.
func (m Model) cardMeta(card domain.Card) string {
	parts := make([]string, 0, 4)
	if !card.Points.IsZero() {
		parts = append(parts, humanize.FtoaWithDigits(card.Points.Total(), 1)+" pts")
	}
	if card.DueDate != nil {
		parts = append(parts, "due "+humanize.RelTime(*card.DueDate, m.now(), "ago", "from now"))
	}
	if assignees := cardAssignees(card); len(assignees) > 0 {
		parts = append(parts, "@"+strings.Join(assignees, ",@"))
	}
	if card.UserStoryID != nil {
		parts = append(parts, "↳ "+domain.StoryKey(*card.UserStoryID).Ref())
	}
	return strings.Join(parts, " • ")
}

// cardAssignees lists assignee ids as display strings.
func cardAssignees(card domain.Card) []string {
	ids := slices.Clone(card.AssigneeIDs)
	if card.AssigneeID != nil && !slices.Contains(ids, *card.AssigneeID) {
		ids = append([]int64{*card.AssigneeID}, ids...)
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, fmt.Sprintf("%d", id))
	}
	return out
}

// renderProgress renders the sprint progress panel.
func (m Model) renderProgress() string {
	if m.progress == nil {
		return ""
	}
	const barWidth = 24
	filled := clamp(int(m.progress.Percentage/100*barWidth+0.5), 0, barWidth)
	bar := lipgloss.NewStyle().Foreground(accentColor).Render(strings.Repeat("█", filled)) +
		lipgloss.NewStyle().Foreground(dimColor).Render(strings.Repeat("░", barWidth-filled))
	return fmt.Sprintf("sprint %s %s%% • %d/%d tasks done",
		bar,
		humanize.FtoaWithDigits(m.progress.Percentage, 1),
		m.progress.CompletedTasks,
		m.progress.TotalTasks,
	)
}

// renderBoardOverlay renders card modals.
func (m Model) renderBoardOverlay() string {
	switch m.mode {
	case modeAddStory, modeAddTask:
		return m.renderCardForm()
	case modeCardInfo:
		return m.renderCardInfo()
	}
	if m.help.ShowAll {
		return m.renderHelpOverlay(m.boardBindings())
	}
	return ""
}

// renderCardInfo renders the details of m.infoCard.
func (m Model) renderCardInfo() string {
	card, ok := m.svc.Board().Card(m.infoCard)
	if !ok {
		return ""
	}
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	hint := lipgloss.NewStyle().Foreground(mutedColor)
	colName := "-"
	if col, ok := m.svc.Board().Column(card.StatusID); ok {
		colName = col.Name
	}
	lines := []string{
		titleStyle.Render(card.Ref() + "  " + card.Title),
		hint.Render("status: " + colName),
	}
	if !card.Points.IsZero() {
		lines = append(lines, hint.Render("points: "+formatPoints(card.Points)))
	}
	if card.DueDate != nil {
		lines = append(lines, hint.Render(fmt.Sprintf("due: %s (%s)",
			card.DueDate.Format(dueDateLayout),
			humanize.RelTime(*card.DueDate, m.now(), "ago", "from now"))))
	}
	if assignees := cardAssignees(card); len(assignees) > 0 {
		lines = append(lines, hint.Render("assigned: @"+strings.Join(assignees, ", @")))
	}
	if card.UserStoryID != nil {
		lines = append(lines, hint.Render("story: "+domain.StoryKey(*card.UserStoryID).Ref()))
	}
	if len(card.Attachments) > 0 {
		lines = append(lines, "", hint.Render("attachments"))
		for _, a := range card.Attachments {
			lines = append(lines, fmt.Sprintf("  %s (%s)", a.Name, humanize.Bytes(uint64(max(a.Size, 0)))))
		}
	}
	if desc := m.markdown.render(card.Description, clamp(m.width-14, minMarkdownWrap, 72)); desc != "" {
		lines = append(lines, "", desc)
	}
	lines = append(lines, "", hint.Render("y copy ref • esc close"))
	return m.modalStyle(accentColor, 40, 80).Render(strings.Join(lines, "\n"))
}

// renderHelpOverlay renders the expanded help.
func (m Model) renderHelpOverlay(bindings help.KeyMap) string {
	h := m.help
	h.ShowAll = true
	h.SetWidth(clamp(m.width-12, 30, 96))
	body := lipgloss.NewStyle().Bold(true).Foreground(accentColor).Render("Keys") + "\n" + h.View(bindings)
	return m.modalStyle(accentColor, 40, 100).Render(body)
}

// formatPoints lists set estimates by discipline.
func formatPoints(p domain.Points) string {
	parts := make([]string, 0, 4)
	for _, e := range []struct {
		label string
		value *float64
	}{{"ux", p.UX}, {"design", p.Design}, {"front", p.Front}, {"back", p.Back}} {
		if e.value != nil {
			parts = append(parts, e.label+" "+humanize.FtoaWithDigits(*e.value, 1))
		}
	}
	return strings.Join(parts, " • ") + " (total " + humanize.FtoaWithDigits(p.Total(), 1) + ")"
}

// columnWidthFor sizes columns to share the terminal width.
func (m Model) columnWidthFor(count int) int {
	if count == 0 {
		return 24
	}
	w := 28
	if m.width > 0 {
		// border (2) + margin (1)
		const colOverhead = 3
		if candidate := (m.width - count*colOverhead) / count; candidate > 0 {
			w = candidate
		}
	}
	return clamp(w, 22, 44)
}

// columnHeight returns the outer column height.
func (m Model) columnHeight() int {
	const chrome = 8
	return max(10, m.height-chrome)
}
