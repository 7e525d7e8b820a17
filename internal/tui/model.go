// Package tui renders the kanri board client with Bubble Tea.
package tui

import (
	"context"
	"errors"
	"image/color"
	"strings"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/atotto/clipboard"

	"github.com/hylla/kanri/internal/api"
	"github.com/hylla/kanri/internal/app"
	"github.com/hylla/kanri/internal/board"
	"github.com/hylla/kanri/internal/domain"
)

// Service is the application surface the TUI drives.
type Service interface {
	Board() *board.Store
	CurrentUser() (domain.User, bool)
	Login(ctx context.Context, username, password string) (domain.User, error)
	Logout(ctx context.Context) error

	ListProjects(ctx context.Context, page int) (domain.ProjectPage, error)
	CreateProject(ctx context.Context, draft domain.ProjectDraft) (domain.Project, error)
	DuplicateProject(ctx context.Context, sourceID int64, draft domain.ProjectDraft) (domain.Project, error)
	ProjectModules(ctx context.Context, projectID int64) ([]domain.ProjectModule, error)
	SetProjectModules(ctx context.Context, projectID int64, modules []domain.ProjectModule) ([]domain.ProjectModule, error)

	LoadBoard(ctx context.Context, projectID int64) (uint64, error)
	Drop(ctx context.Context, ev board.DropEvent) (board.Outcome, error)
	MoveToColumnEnd(ctx context.Context, key domain.CardKey, columnID int64) (board.Outcome, error)
	CreateStory(ctx context.Context, draft domain.StoryDraft) (domain.Card, error)
	CreateTask(ctx context.Context, draft domain.TaskDraft) (domain.Card, error)
	SprintProgress(ctx context.Context, sprintID int64) (domain.SprintProgress, error)

	UserSettings(ctx context.Context) (domain.UserSettings, error)
	UpdateUserSettings(ctx context.Context, settings domain.UserSettings) (domain.UserSettings, error)
	ChangePassword(ctx context.Context, current, next, confirm string) error
}

var _ Service = (*app.Service)(nil)

// screen identifies the active top-level view.
type screen int

const (
	screenLogin screen = iota
	screenProjects
	screenBoard
	screenSettings
)

// inputMode identifies the modal state layered over a screen.
type inputMode int

const (
	modeNone inputMode = iota
	modeDrag
	modeAddStory
	modeAddTask
	modeCardInfo
	modeAddProject
	modeDuplicateProject
	modeModules
	modePassword
)

const defaultRequestTimeout = 15 * time.Second

var (
	accentColor   = lipgloss.Color("62")
	mutedColor    = lipgloss.Color("241")
	dimColor      = lipgloss.Color("239")
	errorColor    = lipgloss.Color("203")
	selectedColor = lipgloss.Color("212")
)

// dragState tracks a card picked up with the keyboard.
type dragState struct {
	key    domain.CardKey
	source board.Location
	dest   board.Location
}

// Model is the root Bubble Tea model.
type Model struct {
	svc Service

	ready  bool
	width  int
	height int

	status    string
	statusErr bool

	help help.Model
	keys keyMap

	screen screen
	mode   inputMode

	timeout         time.Duration
	pollInterval    time.Duration
	compact         bool
	copyToClipboard func(string) error
	now             func() time.Time
	markdown        *markdownRenderer

	user domain.User

	loginInputs []textinput.Model
	loginFocus  int
	loggingIn   bool

	page          domain.ProjectPage
	projectCursor int
	project       domain.Project

	generation     uint64
	boardLoading   bool
	selectedColumn int
	selectedCard   int
	drag           dragState
	progress       *domain.SprintProgress
	infoCard       domain.CardKey

	formInputs  []textinput.Model
	formFocus   int
	formColumn  int64
	formStoryID *int64
	formSource  domain.Project
	submitting  bool

	modules       []domain.ProjectModule
	modulesFor    int64
	moduleCursor  int
	settings      domain.UserSettings
	settingsReady bool
	settingsForm  []textinput.Model
	settingsFocus int
}

// loginMsg reports a sign-in attempt.
type loginMsg struct {
	user domain.User
	err  error
}

// logoutMsg reports sign-out completion.
type logoutMsg struct {
	err error
}

// clipboardMsg reports one copy action.
type clipboardMsg struct {
	text string
	err  error
}

// NewModel constructs the root model. Screens start at the project list when
// the service already holds a session, otherwise at the login form.
func NewModel(svc Service, opts ...Option) Model {
	h := help.New()
	h.ShowAll = false
	m := Model{
		svc:             svc,
		help:            h,
		keys:            newKeyMap(),
		timeout:         defaultRequestTimeout,
		pollInterval:    3 * time.Second,
		copyToClipboard: clipboard.WriteAll,
		now:             time.Now,
		markdown:        &markdownRenderer{},
		screen:          screenLogin,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}
	if user, ok := svc.CurrentUser(); ok {
		m.user = user
		m.screen = screenProjects
		m.status = "loading projects..."
	} else {
		m.resetLoginForm()
	}
	return m
}

// Init starts the first load for the opening screen.
func (m Model) Init() tea.Cmd {
	if m.screen == screenProjects {
		return m.loadProjects(0)
	}
	return nil
}

// Update routes one message to the active screen.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case loginMsg:
		return m.handleLoginResult(msg)
	case logoutMsg:
		if msg.err != nil {
			m.setError("sign out failed: " + msg.err.Error())
			return m, nil
		}
		return m.toLogin("signed out")
	case clipboardMsg:
		if msg.err != nil {
			m.setError("copy failed: " + msg.err.Error())
			return m, nil
		}
		m.setStatus("copied " + msg.text)
		return m, nil

	case projectsMsg:
		return m.handleProjectsLoaded(msg)
	case projectSavedMsg:
		return m.handleProjectSaved(msg)
	case modulesMsg:
		return m.handleModules(msg)

	case boardLoadedMsg:
		return m.handleBoardLoaded(msg)
	case moveMsg:
		return m.handleMoveResult(msg)
	case cardCreatedMsg:
		return m.handleCardCreated(msg)
	case progressMsg:
		return m.handleProgress(msg)
	case progressTickMsg:
		if !m.boardCurrent(msg.generation) {
			return m, nil
		}
		return m, m.fetchProgress()

	case settingsMsg:
		return m.handleSettings(msg)
	case passwordMsg:
		return m.handlePasswordResult(msg)

	case tea.KeyPressMsg:
		if key.Matches(msg, m.keys.interrupt) {
			return m, tea.Quit
		}
		switch m.screen {
		case screenLogin:
			return m.handleLoginKey(msg)
		case screenProjects:
			return m.handleProjectsKey(msg)
		case screenBoard:
			return m.handleBoardKey(msg)
		case screenSettings:
			return m.handleSettingsKey(msg)
		}
		return m, nil

	default:
		return m, nil
	}
}

// View renders the active screen.
func (m Model) View() tea.View {
	if !m.ready {
		v := tea.NewView("loading...")
		v.AltScreen = true
		return v
	}
	switch m.screen {
	case screenLogin:
		return m.frame(m.loginHeader(), m.renderLogin(), m.keys.formHelp(), "")
	case screenProjects:
		return m.frame(m.header("projects"), m.renderProjects(), m.projectsBindings(), m.renderProjectsOverlay())
	case screenBoard:
		return m.frame(m.header(m.project.Name), m.renderBoard(), m.boardBindings(), m.renderBoardOverlay())
	default:
		return m.frame(m.header("settings"), m.renderSettings(), m.settingsBindings(), m.renderSettingsOverlay())
	}
}

// frame lays out header, body, status, and help, then composes an optional overlay.
func (m Model) frame(header, body string, bindings help.KeyMap, overlay string) tea.View {
	sections := []string{header, "", body}
	if status := strings.TrimSpace(m.status); status != "" {
		style := lipgloss.NewStyle().Foreground(dimColor)
		if m.statusErr {
			style = lipgloss.NewStyle().Foreground(errorColor)
		}
		sections = append(sections, style.Render(status))
	}
	content := strings.Join(sections, "\n")

	helpBubble := m.help
	helpBubble.ShowAll = false
	helpBubble.SetWidth(max(0, m.width-2))
	helpLine := lipgloss.NewStyle().
		Foreground(mutedColor).
		BorderTop(true).
		BorderForeground(dimColor).
		Padding(0, 1).
		Width(max(0, m.width)).
		Render(helpBubble.View(bindings))

	if m.height > 0 {
		content = fitLines(content, max(0, m.height-lipgloss.Height(helpLine)))
	}
	full := content + "\n" + helpLine
	if overlay != "" {
		overlayHeight := lipgloss.Height(full)
		if m.height > 0 {
			overlayHeight = m.height
		}
		full = overlayOnContent(full, overlay, max(1, m.width), max(1, overlayHeight))
	}
	v := tea.NewView(full)
	v.AltScreen = true
	return v
}

// header renders the title bar shared by signed-in screens.
func (m Model) header(title string) string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	muted := lipgloss.NewStyle().Foreground(dimColor)
	out := titleStyle.Render("kanri") + "  " + title
	if label := m.modeLabel(); label != "" {
		out += muted.Render("  [" + label + "]")
	}
	if m.user.ID != 0 {
		out += muted.Render("  " + m.user.DisplayName())
	}
	return out
}

// modeLabel names the active modal state.
func (m Model) modeLabel() string {
	switch m.mode {
	case modeDrag:
		return "moving " + m.drag.key.Ref()
	case modeAddStory:
		return "new story"
	case modeAddTask:
		return "new task"
	case modeCardInfo:
		return "card info"
	case modeAddProject:
		return "new project"
	case modeDuplicateProject:
		return "duplicate project"
	case modeModules:
		return "modules"
	case modePassword:
		return "change password"
	}
	if m.screen == screenBoard && m.compact {
		return "compact"
	}
	return ""
}

// requestContext bounds one service call.
func (m Model) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), m.timeout)
}

// setStatus shows an informational status line.
func (m *Model) setStatus(text string) {
	m.status = text
	m.statusErr = false
}

// setError shows an error status line.
func (m *Model) setError(text string) {
	m.status = text
	m.statusErr = true
}

// failed converts a service error into a status message, or a redirect to the
// login screen when the session was rejected.
func (m Model) failed(prefix string, err error) (tea.Model, tea.Cmd) {
	if isSessionError(err) {
		return m.toLogin("session expired, sign in again")
	}
	m.setError(prefix + ": " + err.Error())
	return m, nil
}

// isSessionError reports errors that end the session.
func isSessionError(err error) bool {
	return errors.Is(err, api.ErrUnauthorized) || errors.Is(err, app.ErrNotAuthenticated)
}

// toLogin discards board state and shows the login form.
func (m Model) toLogin(status string) (tea.Model, tea.Cmd) {
	m.svc.Board().Clear()
	m.screen = screenLogin
	m.mode = modeNone
	m.user = domain.User{}
	m.page = domain.ProjectPage{}
	m.project = domain.Project{}
	m.progress = nil
	m.generation = 0
	m.settingsReady = false
	m.resetLoginForm()
	m.setError(status)
	return m, m.loginInputs[0].Focus()
}

// copyCmd writes text to the clipboard.
func (m Model) copyCmd(text string) tea.Cmd {
	write := m.copyToClipboard
	return func() tea.Msg {
		return clipboardMsg{text: text, err: write(text)}
	}
}

// newModalInput constructs one form input with a steady accent cursor.
func newModalInput(prompt, placeholder, value string, limit int) textinput.Model {
	in := textinput.New()
	styles := textinput.DefaultDarkStyles()
	styles.Cursor.Color = accentColor
	styles.Cursor.Blink = false
	in.SetStyles(styles)
	in.Prompt = prompt
	in.Placeholder = placeholder
	in.CharLimit = limit
	if value != "" {
		in.SetValue(value)
	}
	return in
}

// focusInput focuses inputs[idx] and blurs the rest.
func focusInput(inputs []textinput.Model, idx int) tea.Cmd {
	var cmd tea.Cmd
	for i := range inputs {
		if i == idx {
			cmd = inputs[i].Focus()
			continue
		}
		inputs[i].Blur()
	}
	return cmd
}

// modalStyle returns the bordered box used by overlays.
func (m Model) modalStyle(accent color.Color, minWidth, maxWidth int) lipgloss.Style {
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Padding(0, 1)
	if m.width > 0 {
		style = style.Width(clamp(m.width-8, minWidth, maxWidth))
	}
	return style
}

// clamp bounds v to [minV, maxV]; maxV below minV yields minV.
func clamp(v, minV, maxV int) int {
	if maxV < minV {
		return minV
	}
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}

// fitLines truncates or pads content to exactly maxLines lines.
func fitLines(content string, maxLines int) string {
	if maxLines <= 0 {
		return ""
	}
	lines := strings.Split(content, "\n")
	switch {
	case len(lines) > maxLines:
		if maxLines == 1 {
			lines = []string{"…"}
		} else {
			lines = append(lines[:maxLines-1], "…")
		}
	case len(lines) < maxLines:
		lines = append(lines, make([]string, maxLines-len(lines))...)
	}
	return strings.Join(lines, "\n")
}

// overlayOnContent centers overlay above base on a width by height canvas.
func overlayOnContent(base, overlay string, width, height int) string {
	if width <= 0 || height <= 0 {
		if strings.TrimSpace(overlay) == "" {
			return base
		}
		return overlay + "\n\n" + base
	}

	base = fitLines(base, height)
	canvas := lipgloss.NewCanvas(width, height)
	baseLayer := lipgloss.NewLayer(base).X(0).Y(0).Z(0)
	centered := lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, overlay)
	overlayLayer := lipgloss.NewLayer(centered).X(0).Y(0).Z(10)

	canvas.Compose(baseLayer)
	canvas.Compose(overlayLayer)
	return canvas.Render()
}

// truncate shortens s to limit runes with an ellipsis.
func truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	if limit == 1 {
		return string(rs[:1])
	}
	return string(rs[:limit-1]) + "…"
}
