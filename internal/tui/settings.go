package tui

import (
	"errors"
	"strings"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/hylla/kanri/internal/app"
	"github.com/hylla/kanri/internal/domain"
)

// settings focus slots: the text inputs come first, then the toggles.
const (
	settingsFieldFullName = iota
	settingsFieldEmail
	settingsFieldLanguage
	settingsFieldTheme
	settingsFieldBio
	settingsToggleAssigned
	settingsToggleMentioned
	settingsToggleStatus
	settingsDigest
	settingsSlots
)

// password form field indexes.
const (
	passwordFieldCurrent = iota
	passwordFieldNext
	passwordFieldConfirm
)

// settingsMsg carries loaded or saved settings.
type settingsMsg struct {
	settings domain.UserSettings
	saved    bool
	err      error
}

// passwordMsg reports a password change.
type passwordMsg struct {
	err error
}

// openSettings switches to the settings screen and loads settings.
func (m Model) openSettings() (tea.Model, tea.Cmd) {
	m.screen = screenSettings
	m.mode = modeNone
	m.settingsReady = false
	m.setStatus("loading settings...")
	svc := m.svc
	ctx, cancel := m.requestContext()
	return m, func() tea.Msg {
		defer cancel()
		settings, err := svc.UserSettings(ctx)
		return settingsMsg{settings: settings, err: err}
	}
}

// handleSettings fills the form after a load or confirms a save.
func (m Model) handleSettings(msg settingsMsg) (tea.Model, tea.Cmd) {
	m.submitting = false
	if msg.err != nil {
		return m.failed("settings", msg.err)
	}
	if m.screen != screenSettings {
		return m, nil
	}
	m.settings = msg.settings
	if msg.saved {
		m.user = msg.settings.User
		m.setStatus("settings saved")
	} else {
		m.setStatus("")
	}
	m.settingsForm = []textinput.Model{
		newModalInput("full name: ", "", msg.settings.User.FullName, 120),
		newModalInput("email: ", "name@example.com", msg.settings.User.Email, 200),
		newModalInput("language: ", "en", msg.settings.Language, 16),
		newModalInput("theme: ", "dark", msg.settings.Theme, 32),
		newModalInput("bio: ", "", msg.settings.Bio, 500),
	}
	m.settingsReady = true
	m.settingsFocus = clamp(m.settingsFocus, 0, settingsSlots-1)
	cmd := m.focusSettingsSlot()
	return m, cmd
}

// focusSettingsSlot focuses the input under settingsFocus, if any.
func (m *Model) focusSettingsSlot() tea.Cmd {
	if m.settingsFocus < len(m.settingsForm) {
		return focusInput(m.settingsForm, m.settingsFocus)
	}
	for i := range m.settingsForm {
		m.settingsForm[i].Blur()
	}
	return nil
}

// handleSettingsKey handles keys on the settings screen.
func (m Model) handleSettingsKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	if m.mode == modePassword {
		return m.handlePasswordKey(msg)
	}
	if !m.settingsReady || m.submitting {
		if key.Matches(msg, m.keys.cancel) {
			return m.leaveSettings()
		}
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.cancel):
		return m.leaveSettings()
	case key.Matches(msg, m.keys.password):
		cmd := m.startPasswordForm()
		return m, cmd
	case key.Matches(msg, m.keys.nextField):
		m.settingsFocus = (m.settingsFocus + 1) % settingsSlots
		cmd := m.focusSettingsSlot()
		return m, cmd
	case key.Matches(msg, m.keys.prevField):
		m.settingsFocus = (m.settingsFocus + settingsSlots - 1) % settingsSlots
		cmd := m.focusSettingsSlot()
		return m, cmd
	case key.Matches(msg, m.keys.submit):
		return m.saveSettings()
	}
	if m.settingsFocus >= len(m.settingsForm) {
		if key.Matches(msg, m.keys.toggle) {
			m.toggleSetting()
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.settingsForm[m.settingsFocus], cmd = m.settingsForm[m.settingsFocus].Update(msg)
	return m, cmd
}

// toggleSetting flips the focused notification toggle or cycles the digest.
func (m *Model) toggleSetting() {
	n := &m.settings.Notifications
	switch m.settingsFocus {
	case settingsToggleAssigned:
		n.EmailOnAssigned = !n.EmailOnAssigned
	case settingsToggleMentioned:
		n.EmailOnMentioned = !n.EmailOnMentioned
	case settingsToggleStatus:
		n.EmailOnStatusChange = !n.EmailOnStatusChange
	case settingsDigest:
		n.Digest = n.Digest.Next()
	}
}

// saveSettings submits the settings form.
func (m Model) saveSettings() (tea.Model, tea.Cmd) {
	settings := m.settings
	settings.User.FullName = m.settingsForm[settingsFieldFullName].Value()
	settings.User.Email = m.settingsForm[settingsFieldEmail].Value()
	settings.Language = m.settingsForm[settingsFieldLanguage].Value()
	settings.Theme = m.settingsForm[settingsFieldTheme].Value()
	settings.Bio = m.settingsForm[settingsFieldBio].Value()

	m.submitting = true
	m.setStatus("saving settings...")
	svc := m.svc
	ctx, cancel := m.requestContext()
	return m, func() tea.Msg {
		defer cancel()
		saved, err := svc.UpdateUserSettings(ctx, settings)
		return settingsMsg{settings: saved, saved: true, err: err}
	}
}

// leaveSettings returns to the project list.
func (m Model) leaveSettings() (tea.Model, tea.Cmd) {
	m.screen = screenProjects
	m.mode = modeNone
	m.submitting = false
	m.setStatus("")
	return m, m.loadProjects(m.page.Page)
}

// startPasswordForm opens the password modal.
func (m *Model) startPasswordForm() tea.Cmd {
	m.formInputs = []textinput.Model{
		newModalInput("current: ", "", "", 128),
		newModalInput("new: ", "at least 8 characters", "", 128),
		newModalInput("confirm: ", "", "", 128),
	}
	for i := range m.formInputs {
		m.formInputs[i].EchoMode = textinput.EchoPassword
	}
	m.formFocus = 0
	m.submitting = false
	m.mode = modePassword
	for i := range m.settingsForm {
		m.settingsForm[i].Blur()
	}
	return focusInput(m.formInputs, 0)
}

// handlePasswordKey handles keys inside the password modal.
func (m Model) handlePasswordKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	if m.submitting {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.cancel):
		m.mode = modeNone
		m.setStatus("password unchanged")
		cmd := m.focusSettingsSlot()
		return m, cmd
	case key.Matches(msg, m.keys.submit):
		current := m.formInputs[passwordFieldCurrent].Value()
		next := m.formInputs[passwordFieldNext].Value()
		confirm := m.formInputs[passwordFieldConfirm].Value()
		m.submitting = true
		m.setStatus("changing password...")
		svc := m.svc
		ctx, cancel := m.requestContext()
		return m, func() tea.Msg {
			defer cancel()
			return passwordMsg{err: svc.ChangePassword(ctx, current, next, confirm)}
		}
	case key.Matches(msg, m.keys.nextField), key.Matches(msg, m.keys.prevField):
		return m.cycleFormFocus(key.Matches(msg, m.keys.nextField))
	}
	return m.updateFormInput(msg)
}

// handlePasswordResult closes the modal on success. Validation and credential
// errors keep it open.
func (m Model) handlePasswordResult(msg passwordMsg) (tea.Model, tea.Cmd) {
	m.submitting = false
	if msg.err != nil {
		switch {
		case errors.Is(msg.err, app.ErrPasswordRequired),
			errors.Is(msg.err, app.ErrPasswordTooShort),
			errors.Is(msg.err, app.ErrPasswordMismatch):
			m.setError(msg.err.Error())
			return m, nil
		}
		return m.failed("change password", msg.err)
	}
	m.mode = modeNone
	m.setStatus("password changed")
	cmd := m.focusSettingsSlot()
	return m, cmd
}

// settingsBindings returns help for the settings screen or password modal.
func (m Model) settingsBindings() help.KeyMap {
	if m.mode == modePassword {
		return m.keys.formHelp()
	}
	return m.keys.settingsHelp()
}

// renderSettings renders the settings form.
func (m Model) renderSettings() string {
	if !m.settingsReady {
		return ""
	}
	section := lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	muted := lipgloss.NewStyle().Foreground(mutedColor)
	selected := lipgloss.NewStyle().Foreground(selectedColor).Bold(true)

	lines := []string{section.Render("Profile"), muted.Render("username: " + m.settings.User.Username)}
	for _, in := range m.settingsForm {
		lines = append(lines, in.View())
	}
	lines = append(lines, "", section.Render("Email notifications"))
	n := m.settings.Notifications
	rows := []struct {
		slot  int
		label string
	}{
		{settingsToggleAssigned, checkbox(n.EmailOnAssigned) + " when assigned"},
		{settingsToggleMentioned, checkbox(n.EmailOnMentioned) + " when mentioned"},
		{settingsToggleStatus, checkbox(n.EmailOnStatusChange) + " on status change"},
		{settingsDigest, "digest: " + string(n.Digest)},
	}
	for _, row := range rows {
		if row.slot == m.settingsFocus && m.mode == modeNone {
			lines = append(lines, selected.Render("│ "+row.label))
			continue
		}
		lines = append(lines, "  "+row.label)
	}
	return strings.Join(lines, "\n")
}

// renderSettingsOverlay renders the password modal.
func (m Model) renderSettingsOverlay() string {
	if m.mode != modePassword {
		return ""
	}
	lines := []string{lipgloss.NewStyle().Bold(true).Foreground(accentColor).Render("Change Password")}
	for _, in := range m.formInputs {
		lines = append(lines, in.View())
	}
	lines = append(lines, lipgloss.NewStyle().Foreground(mutedColor).Render("enter save • tab next field • esc cancel"))
	return m.modalStyle(accentColor, 40, 64).Render(strings.Join(lines, "\n"))
}

// checkbox renders a boolean toggle.
func checkbox(on bool) string {
	if on {
		return "[x]"
	}
	return "[ ]"
}
