package tui

import (
	"fmt"
	"slices"
	"strings"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/hylla/kanri/internal/domain"
)

// project form field indexes.
const (
	projectFieldName = iota
	projectFieldDescription
	projectFieldPrivate
)

// projectsMsg carries one loaded project page.
type projectsMsg struct {
	page domain.ProjectPage
	err  error
}

// projectSavedMsg reports a create or duplicate.
type projectSavedMsg struct {
	project   domain.Project
	duplicate bool
	err       error
}

// modulesMsg carries module toggles for one project.
type modulesMsg struct {
	projectID int64
	modules   []domain.ProjectModule
	saved     bool
	err       error
}

// loadProjects fetches one page of projects.
func (m Model) loadProjects(page int) tea.Cmd {
	svc := m.svc
	ctx, cancel := m.requestContext()
	return func() tea.Msg {
		defer cancel()
		result, err := svc.ListProjects(ctx, max(page, 0))
		return projectsMsg{page: result, err: err}
	}
}

// handleProjectsLoaded stores the page and clamps the cursor.
func (m Model) handleProjectsLoaded(msg projectsMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		return m.failed("load projects", msg.err)
	}
	m.page = msg.page
	m.projectCursor = clamp(m.projectCursor, 0, len(m.page.Content)-1)
	if m.status == "loading projects..." {
		m.setStatus("")
	}
	return m, nil
}

// selectedProject returns the project under the cursor.
func (m Model) selectedProject() (domain.Project, bool) {
	if len(m.page.Content) == 0 {
		return domain.Project{}, false
	}
	return m.page.Content[clamp(m.projectCursor, 0, len(m.page.Content)-1)], true
}

// handleProjectsKey handles keys on the project list.
func (m Model) handleProjectsKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case modeAddProject, modeDuplicateProject:
		return m.handleProjectFormKey(msg)
	case modeModules:
		return m.handleModulesKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.toggleHelp):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.up):
		m.projectCursor = clamp(m.projectCursor-1, 0, len(m.page.Content)-1)
		return m, nil
	case key.Matches(msg, m.keys.down):
		m.projectCursor = clamp(m.projectCursor+1, 0, len(m.page.Content)-1)
		return m, nil
	case key.Matches(msg, m.keys.nextPage):
		if !m.page.HasNext() {
			m.setStatus("last page")
			return m, nil
		}
		m.projectCursor = 0
		return m, m.loadProjects(m.page.Page + 1)
	case key.Matches(msg, m.keys.prevPage):
		if !m.page.HasPrev() {
			m.setStatus("first page")
			return m, nil
		}
		m.projectCursor = 0
		return m, m.loadProjects(m.page.Page - 1)
	case key.Matches(msg, m.keys.reload):
		return m, m.loadProjects(m.page.Page)
	case key.Matches(msg, m.keys.openBoard):
		project, ok := m.selectedProject()
		if !ok {
			return m, nil
		}
		return m.openBoard(project)
	case key.Matches(msg, m.keys.newProject):
		cmd := m.startProjectForm(nil)
		return m, cmd
	case key.Matches(msg, m.keys.duplicate):
		project, ok := m.selectedProject()
		if !ok {
			return m, nil
		}
		cmd := m.startProjectForm(&project)
		return m, cmd
	case key.Matches(msg, m.keys.modules):
		project, ok := m.selectedProject()
		if !ok {
			return m, nil
		}
		return m, m.loadModules(project.ID)
	case key.Matches(msg, m.keys.settings):
		return m.openSettings()
	case key.Matches(msg, m.keys.logout):
		svc := m.svc
		ctx, cancel := m.requestContext()
		return m, func() tea.Msg {
			defer cancel()
			return logoutMsg{err: svc.Logout(ctx)}
		}
	}
	return m, nil
}

// startProjectForm opens the create form, or the duplicate form when source is set.
func (m *Model) startProjectForm(source *domain.Project) tea.Cmd {
	m.formInputs = []textinput.Model{
		newModalInput("name: ", "project name (required)", "", 120),
		newModalInput("description: ", "optional", "", 240),
		newModalInput("private: ", "y/n", "", 3),
	}
	m.formFocus = 0
	m.submitting = false
	m.mode = modeAddProject
	if source != nil {
		m.formSource = *source
		m.formInputs[projectFieldName].SetValue(source.Name + " copy")
		m.formInputs[projectFieldDescription].SetValue(source.Description)
		if source.IsPrivate {
			m.formInputs[projectFieldPrivate].SetValue("y")
		}
		m.mode = modeDuplicateProject
	}
	return focusInput(m.formInputs, 0)
}

// handleProjectFormKey handles keys inside the project form.
func (m Model) handleProjectFormKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	if m.submitting {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.cancel):
		m.mode = modeNone
		m.setStatus("cancelled")
		return m, nil
	case key.Matches(msg, m.keys.submit):
		return m.submitProjectForm()
	case key.Matches(msg, m.keys.nextField), key.Matches(msg, m.keys.prevField):
		return m.cycleFormFocus(key.Matches(msg, m.keys.nextField))
	}
	return m.updateFormInput(msg)
}

// submitProjectForm creates or duplicates a project.
func (m Model) submitProjectForm() (tea.Model, tea.Cmd) {
	draft := domain.ProjectDraft{
		Name:        m.formInputs[projectFieldName].Value(),
		Description: m.formInputs[projectFieldDescription].Value(),
		IsPrivate:   parseYes(m.formInputs[projectFieldPrivate].Value()),
	}
	if strings.TrimSpace(draft.Name) == "" {
		m.setError("project name is required")
		return m, nil
	}
	m.submitting = true
	svc := m.svc
	ctx, cancel := m.requestContext()
	if m.mode == modeDuplicateProject {
		sourceID := m.formSource.ID
		m.setStatus("duplicating...")
		return m, func() tea.Msg {
			defer cancel()
			project, err := svc.DuplicateProject(ctx, sourceID, draft)
			return projectSavedMsg{project: project, duplicate: true, err: err}
		}
	}
	m.setStatus("creating...")
	return m, func() tea.Msg {
		defer cancel()
		project, err := svc.CreateProject(ctx, draft)
		return projectSavedMsg{project: project, err: err}
	}
}

// handleProjectSaved closes the form and reloads the page.
func (m Model) handleProjectSaved(msg projectSavedMsg) (tea.Model, tea.Cmd) {
	m.submitting = false
	if msg.err != nil {
		return m.failed("save project", msg.err)
	}
	m.mode = modeNone
	if msg.duplicate {
		m.setStatus(fmt.Sprintf("duplicated %s as %s", m.formSource.Name, msg.project.Name))
	} else {
		m.setStatus("created " + msg.project.Name)
	}
	return m, m.loadProjects(m.page.Page)
}

// loadModules fetches module toggles for projectID.
func (m Model) loadModules(projectID int64) tea.Cmd {
	svc := m.svc
	ctx, cancel := m.requestContext()
	return func() tea.Msg {
		defer cancel()
		modules, err := svc.ProjectModules(ctx, projectID)
		return modulesMsg{projectID: projectID, modules: modules, err: err}
	}
}

// handleModules opens or closes the modules modal.
func (m Model) handleModules(msg modulesMsg) (tea.Model, tea.Cmd) {
	m.submitting = false
	if msg.err != nil {
		return m.failed("modules", msg.err)
	}
	if msg.saved {
		m.mode = modeNone
		m.setStatus("modules saved")
		return m, nil
	}
	m.modules = slices.Clone(msg.modules)
	m.modulesFor = msg.projectID
	m.moduleCursor = 0
	m.mode = modeModules
	m.setStatus("")
	return m, nil
}

// handleModulesKey toggles and saves modules.
func (m Model) handleModulesKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	if m.submitting {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.cancel):
		m.mode = modeNone
		return m, nil
	case key.Matches(msg, m.keys.up):
		m.moduleCursor = clamp(m.moduleCursor-1, 0, len(m.modules)-1)
	case key.Matches(msg, m.keys.down):
		m.moduleCursor = clamp(m.moduleCursor+1, 0, len(m.modules)-1)
	case key.Matches(msg, m.keys.toggle):
		if len(m.modules) > 0 {
			m.modules[m.moduleCursor].Enabled = !m.modules[m.moduleCursor].Enabled
		}
	case key.Matches(msg, m.keys.submit):
		m.submitting = true
		m.setStatus("saving modules...")
		svc := m.svc
		projectID := m.modulesFor
		modules := slices.Clone(m.modules)
		ctx, cancel := m.requestContext()
		return m, func() tea.Msg {
			defer cancel()
			saved, err := svc.SetProjectModules(ctx, projectID, modules)
			return modulesMsg{projectID: projectID, modules: saved, saved: true, err: err}
		}
	}
	return m, nil
}

// cycleFormFocus moves focus across m.formInputs.
func (m Model) cycleFormFocus(forward bool) (tea.Model, tea.Cmd) {
	n := len(m.formInputs)
	if n == 0 {
		return m, nil
	}
	if forward {
		m.formFocus = (m.formFocus + 1) % n
	} else {
		m.formFocus = (m.formFocus + n - 1) % n
	}
	return m, focusInput(m.formInputs, m.formFocus)
}

// updateFormInput forwards a key to the focused form input.
func (m Model) updateFormInput(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	if len(m.formInputs) == 0 {
		return m, nil
	}
	var cmd tea.Cmd
	m.formInputs[m.formFocus], cmd = m.formInputs[m.formFocus].Update(msg)
	return m, cmd
}

// projectsBindings returns help for the project list or its modals.
func (m Model) projectsBindings() help.KeyMap {
	switch m.mode {
	case modeAddProject, modeDuplicateProject:
		return m.keys.formHelp()
	case modeModules:
		bindings := []key.Binding{m.keys.up, m.keys.down, m.keys.toggle, m.keys.submit, m.keys.cancel}
		return helpBindings{short: bindings, full: [][]key.Binding{bindings}}
	}
	return m.keys.projectsHelp()
}

// renderProjects renders the project list.
func (m Model) renderProjects() string {
	muted := lipgloss.NewStyle().Foreground(mutedColor)
	if len(m.page.Content) == 0 {
		return strings.Join([]string{
			"No projects yet.",
			muted.Render(fmt.Sprintf("Press %s to create your first project.", m.keys.newProject.Help().Key)),
		}, "\n")
	}
	selected := lipgloss.NewStyle().Foreground(selectedColor).Bold(true)
	lines := make([]string, 0, len(m.page.Content)+2)
	for idx, project := range m.page.Content {
		prefix := "  "
		line := project.Name
		if project.IsPrivate {
			line += muted.Render("  private")
		}
		line += muted.Render("  " + project.Slug)
		if idx == m.projectCursor {
			prefix = "│ "
			line = selected.Render(project.Name) + strings.TrimPrefix(line, project.Name)
		}
		lines = append(lines, prefix+line)
	}
	lines = append(lines, "", muted.Render(fmt.Sprintf("page %d/%d", m.page.Page+1, max(1, m.page.TotalPages))))
	return strings.Join(lines, "\n")
}

// renderProjectsOverlay renders the project form or modules modal.
func (m Model) renderProjectsOverlay() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	hint := lipgloss.NewStyle().Foreground(mutedColor)
	switch m.mode {
	case modeAddProject, modeDuplicateProject:
		title := "New Project"
		if m.mode == modeDuplicateProject {
			title = "Duplicate " + m.formSource.Name
		}
		lines := []string{titleStyle.Render(title)}
		for _, in := range m.formInputs {
			lines = append(lines, in.View())
		}
		lines = append(lines, hint.Render("enter save • tab next field • esc cancel"))
		return m.modalStyle(accentColor, 40, 72).Render(strings.Join(lines, "\n"))
	case modeModules:
		lines := []string{titleStyle.Render("Modules")}
		for idx, module := range m.modules {
			prefix := "  "
			if idx == m.moduleCursor {
				prefix = "│ "
			}
			lines = append(lines, prefix+checkbox(module.Enabled)+" "+module.Name)
		}
		lines = append(lines, hint.Render("space toggle • enter save • esc cancel"))
		return m.modalStyle(accentColor, 32, 48).Render(strings.Join(lines, "\n"))
	}
	if m.help.ShowAll {
		return m.renderHelpOverlay(m.projectsBindings())
	}
	return ""
}

// parseYes reports whether raw reads as an affirmative answer.
func parseYes(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "y", "yes", "true", "1":
		return true
	}
	return false
}
