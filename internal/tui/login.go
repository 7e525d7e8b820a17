package tui

import (
	"strings"

	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
)

// resetLoginForm builds empty username and password inputs, focusing the first.
func (m *Model) resetLoginForm() {
	password := newModalInput("password: ", "", "", 128)
	password.EchoMode = textinput.EchoPassword
	m.loginInputs = []textinput.Model{
		newModalInput("username: ", "username or email", "", 128),
		password,
	}
	m.loginFocus = 0
	m.loggingIn = false
	_ = focusInput(m.loginInputs, 0)
}

// handleLoginKey handles keys on the login screen.
func (m Model) handleLoginKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	if m.loggingIn {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.nextField):
		m.loginFocus = (m.loginFocus + 1) % len(m.loginInputs)
		return m, focusInput(m.loginInputs, m.loginFocus)
	case key.Matches(msg, m.keys.prevField):
		m.loginFocus = (m.loginFocus + len(m.loginInputs) - 1) % len(m.loginInputs)
		return m, focusInput(m.loginInputs, m.loginFocus)
	case key.Matches(msg, m.keys.submit):
		if m.loginFocus == 0 {
			m.loginFocus = 1
			return m, focusInput(m.loginInputs, m.loginFocus)
		}
		return m.submitLogin()
	}
	var cmd tea.Cmd
	m.loginInputs[m.loginFocus], cmd = m.loginInputs[m.loginFocus].Update(msg)
	return m, cmd
}

// submitLogin validates the form and signs in.
func (m Model) submitLogin() (tea.Model, tea.Cmd) {
	username := strings.TrimSpace(m.loginInputs[0].Value())
	password := m.loginInputs[1].Value()
	if username == "" || password == "" {
		m.setError("username and password are required")
		return m, nil
	}
	m.loggingIn = true
	m.setStatus("signing in...")
	svc := m.svc
	ctx, cancel := m.requestContext()
	return m, func() tea.Msg {
		defer cancel()
		user, err := svc.Login(ctx, username, password)
		return loginMsg{user: user, err: err}
	}
}

// handleLoginResult opens the project list after a successful sign-in.
func (m Model) handleLoginResult(msg loginMsg) (tea.Model, tea.Cmd) {
	m.loggingIn = false
	if msg.err != nil {
		m.loginInputs[1].SetValue("")
		m.setError("sign in failed: " + msg.err.Error())
		return m, nil
	}
	m.user = msg.user
	m.screen = screenProjects
	m.mode = modeNone
	m.setStatus("signed in as " + msg.user.DisplayName())
	return m, m.loadProjects(0)
}

// loginHeader renders the login title.
func (m Model) loginHeader() string {
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252")).Render("kanri") + "  sign in"
}

// renderLogin renders the login form.
func (m Model) renderLogin() string {
	lines := []string{
		lipgloss.NewStyle().Bold(true).Foreground(accentColor).Render("Sign in"),
		"",
	}
	for _, in := range m.loginInputs {
		lines = append(lines, in.View())
	}
	box := m.modalStyle(accentColor, 36, 64).Render(strings.Join(lines, "\n"))
	if m.width <= 0 {
		return box
	}
	return lipgloss.PlaceHorizontal(m.width, lipgloss.Center, box)
}
