package tui

import "charm.land/bubbles/v2/key"

// keyMap holds every binding used across screens.
type keyMap struct {
	quit       key.Binding
	interrupt  key.Binding
	toggleHelp key.Binding
	reload     key.Binding
	back       key.Binding

	left  key.Binding
	right key.Binding
	up    key.Binding
	down  key.Binding

	pickUp       key.Binding
	drop         key.Binding
	cancelDrag   key.Binding
	moveLeft     key.Binding
	moveRight    key.Binding
	newStory     key.Binding
	newTask      key.Binding
	cardInfo     key.Binding
	copyRef      key.Binding
	toggleDense  key.Binding
	boardRefresh key.Binding

	openBoard  key.Binding
	nextPage   key.Binding
	prevPage   key.Binding
	newProject key.Binding
	duplicate  key.Binding
	modules    key.Binding
	settings   key.Binding
	logout     key.Binding

	submit    key.Binding
	cancel    key.Binding
	nextField key.Binding
	prevField key.Binding
	toggle    key.Binding
	password  key.Binding
}

// newKeyMap constructs key map.
func newKeyMap() keyMap {
	return keyMap{
		quit:       key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit")),
		interrupt:  key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
		toggleHelp: key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		reload:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		back:       key.NewBinding(key.WithKeys("esc", "b"), key.WithHelp("esc/b", "back")),

		left:  key.NewBinding(key.WithKeys("h", "left"), key.WithHelp("h/←", "column left")),
		right: key.NewBinding(key.WithKeys("l", "right"), key.WithHelp("l/→", "column right")),
		up:    key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "up")),
		down:  key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "down")),

		pickUp:       key.NewBinding(key.WithKeys("space", " "), key.WithHelp("space", "pick up card")),
		drop:         key.NewBinding(key.WithKeys("space", " ", "enter"), key.WithHelp("space/enter", "drop")),
		cancelDrag:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel move")),
		moveLeft:     key.NewBinding(key.WithKeys("["), key.WithHelp("[", "move to previous column")),
		moveRight:    key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "move to next column")),
		newStory:     key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new story")),
		newTask:      key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "new task")),
		cardInfo:     key.NewBinding(key.WithKeys("i", "enter"), key.WithHelp("i/enter", "card info")),
		copyRef:      key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy ref")),
		toggleDense:  key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "compact")),
		boardRefresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload board")),

		openBoard:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open board")),
		nextPage:   key.NewBinding(key.WithKeys("l", "right", "pgdown"), key.WithHelp("l/→", "next page")),
		prevPage:   key.NewBinding(key.WithKeys("h", "left", "pgup"), key.WithHelp("h/←", "previous page")),
		newProject: key.NewBinding(key.WithKeys("N"), key.WithHelp("N", "new project")),
		duplicate:  key.NewBinding(key.WithKeys("D"), key.WithHelp("D", "duplicate")),
		modules:    key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "modules")),
		settings:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "settings")),
		logout:     key.NewBinding(key.WithKeys("L"), key.WithHelp("L", "sign out")),

		submit:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "submit")),
		cancel:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		nextField: key.NewBinding(key.WithKeys("tab", "down"), key.WithHelp("tab", "next field")),
		prevField: key.NewBinding(key.WithKeys("shift+tab", "up"), key.WithHelp("shift+tab", "previous field")),
		toggle:    key.NewBinding(key.WithKeys("space", " "), key.WithHelp("space", "toggle")),
		password:  key.NewBinding(key.WithKeys("ctrl+p"), key.WithHelp("ctrl+p", "change password")),
	}
}

// helpBindings adapts a fixed binding set to help.KeyMap.
type helpBindings struct {
	short []key.Binding
	full  [][]key.Binding
}

// ShortHelp returns the single-line bindings.
func (h helpBindings) ShortHelp() []key.Binding { return h.short }

// FullHelp returns the grouped bindings.
func (h helpBindings) FullHelp() [][]key.Binding { return h.full }

// boardHelp lists board bindings for normal mode.
func (k keyMap) boardHelp() helpBindings {
	return helpBindings{
		short: []key.Binding{k.pickUp, k.moveLeft, k.moveRight, k.newStory, k.newTask, k.cardInfo, k.toggleDense, k.back, k.quit},
		full: [][]key.Binding{
			{k.left, k.right, k.up, k.down},
			{k.pickUp, k.moveLeft, k.moveRight},
			{k.newStory, k.newTask, k.cardInfo, k.copyRef},
			{k.toggleDense, k.boardRefresh, k.back, k.toggleHelp, k.quit},
		},
	}
}

// dragHelp lists bindings while a card is picked up.
func (k keyMap) dragHelp() helpBindings {
	bindings := []key.Binding{k.left, k.right, k.up, k.down, k.drop, k.cancelDrag}
	return helpBindings{short: bindings, full: [][]key.Binding{bindings}}
}

// projectsHelp lists project list bindings.
func (k keyMap) projectsHelp() helpBindings {
	return helpBindings{
		short: []key.Binding{k.openBoard, k.nextPage, k.prevPage, k.newProject, k.duplicate, k.modules, k.settings, k.quit},
		full: [][]key.Binding{
			{k.up, k.down, k.nextPage, k.prevPage, k.openBoard},
			{k.newProject, k.duplicate, k.modules},
			{k.settings, k.logout, k.reload, k.toggleHelp, k.quit},
		},
	}
}

// formHelp lists bindings shared by modal forms and the login screen.
func (k keyMap) formHelp() helpBindings {
	bindings := []key.Binding{k.nextField, k.prevField, k.submit, k.cancel, k.interrupt}
	return helpBindings{short: bindings, full: [][]key.Binding{bindings}}
}

// settingsHelp lists settings screen bindings.
func (k keyMap) settingsHelp() helpBindings {
	bindings := []key.Binding{k.nextField, k.prevField, k.toggle, k.submit, k.password, k.cancel}
	return helpBindings{short: bindings, full: [][]key.Binding{bindings}}
}
