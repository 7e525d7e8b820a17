package api

import (
	"time"

	"github.com/hylla/kanri/internal/domain"
)

// Wire types shared by the client and the mock backend. Required fields are
// pointers so a missing key is distinguishable from a zero value.

const dateLayout = "2006-01-02"

// ErrorEnvelope wraps every non-2xx response body.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody is the machine-readable failure inside ErrorEnvelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// LoginRequest is the POST /auth/login body.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the bearer token and the signed-in user.
type LoginResponse struct {
	Token *string `json:"token"`
	User  *User   `json:"user"`
}

// User is an account as the API returns it.
type User struct {
	ID       *int64 `json:"id"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

// Project is one project record.
type Project struct {
	ID              *int64     `json:"id"`
	Name            string     `json:"name"`
	Slug            string     `json:"slug,omitempty"`
	Description     string     `json:"description"`
	IsPrivate       bool       `json:"isPrivate"`
	OwnerID         int64      `json:"ownerId"`
	CurrentSprintID int64      `json:"currentSprintId,omitempty"`
	CreatedAt       *time.Time `json:"createdAt,omitempty"`
}

// ProjectPage is one page of the project listing.
type ProjectPage struct {
	Content    *[]Project `json:"content"`
	TotalPages *int       `json:"totalPages"`
	Page       int        `json:"page"`
}

// ProjectRequest is the create and duplicate body.
type ProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPrivate   bool   `json:"isPrivate"`
	OwnerID     int64  `json:"ownerId,omitempty"`
}

// Module is one project module toggle.
type Module struct {
	Key     string `json:"key"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// Status is one entry of the statuses map keyed by slug.
type Status struct {
	ID    *int64 `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Order *int   `json:"order,omitempty"`
}

// Points holds story points per role.
type Points struct {
	UX     *float64 `json:"ux,omitempty"`
	Design *float64 `json:"design,omitempty"`
	Front  *float64 `json:"front,omitempty"`
	Back   *float64 `json:"back,omitempty"`
}

// Attachment is file metadata on a story.
type Attachment struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// Story is a user story card.
type Story struct {
	ID          *int64       `json:"id"`
	ProjectID   int64        `json:"projectId"`
	Title       *string      `json:"title"`
	Description string       `json:"description"`
	StatusID    *int64       `json:"statusId"`
	AssigneeID  *int64       `json:"assigneeId,omitempty"`
	Points      *Points      `json:"points,omitempty"`
	DueDate     *string      `json:"dueDate,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Order       int          `json:"order"`
}

// Task is a task card.
type Task struct {
	ID          *int64  `json:"id"`
	ProjectID   int64   `json:"projectId"`
	Name        *string `json:"name"`
	Description string  `json:"description"`
	StatusID    *int64  `json:"statusId"`
	UserStoryID *int64  `json:"userStoryId,omitempty"`
	AssigneeIDs []int64 `json:"assigneeIds"`
	Order       int     `json:"order"`
}

// MoveRequest is the status-change body. Order counts cards of the same kind.
type MoveRequest struct {
	Order int `json:"order"`
}

// StoryRequest is the create-story body.
type StoryRequest struct {
	ProjectID   int64   `json:"projectId"`
	StatusID    int64   `json:"statusId"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	AssigneeID  *int64  `json:"assigneeId,omitempty"`
	Points      *Points `json:"points,omitempty"`
	DueDate     *string `json:"dueDate,omitempty"`
}

// TaskRequest is the create-task body.
type TaskRequest struct {
	ProjectID   int64   `json:"projectId"`
	StatusID    int64   `json:"statusId"`
	UserStoryID *int64  `json:"userStoryId,omitempty"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	AssigneeIDs []int64 `json:"assigneeIds"`
}

// SprintProgress is the sprint completion summary.
type SprintProgress struct {
	Percentage     *float64 `json:"percentage"`
	TotalTasks     *int     `json:"totalTasks"`
	CompletedTasks *int     `json:"completedTasks"`
}

// Notifications holds email preferences.
type Notifications struct {
	EmailOnAssigned     bool   `json:"emailOnAssigned"`
	EmailOnMentioned    bool   `json:"emailOnMentioned"`
	EmailOnStatusChange bool   `json:"emailOnStatusChange"`
	Digest              string `json:"digest"`
}

// UserSettings is the account settings document.
type UserSettings struct {
	UserID        *int64        `json:"userId"`
	Username      string        `json:"username"`
	FullName      string        `json:"fullName"`
	Email         string        `json:"email"`
	Language      string        `json:"language"`
	Theme         string        `json:"theme"`
	Bio           string        `json:"bio"`
	Notifications Notifications `json:"notifications"`
}

// ChangePasswordRequest is the password change body.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ToDomain validates required user fields.
func (u User) ToDomain() (domain.User, error) {
	if u.ID == nil || *u.ID <= 0 {
		return domain.User{}, malformed("user id missing")
	}
	return domain.User{ID: *u.ID, Username: u.Username, FullName: u.FullName, Email: u.Email}, nil
}

// UserFromDomain encodes u.
func UserFromDomain(u domain.User) User {
	return User{ID: ptr(u.ID), Username: u.Username, FullName: u.FullName, Email: u.Email}
}

// ToDomain validates required project fields.
func (p Project) ToDomain() (domain.Project, error) {
	if p.ID == nil || *p.ID <= 0 {
		return domain.Project{}, malformed("project id missing")
	}
	if p.Name == "" {
		return domain.Project{}, malformed("project %d has no name", *p.ID)
	}
	out := domain.Project{
		ID:              *p.ID,
		Slug:            p.Slug,
		Name:            p.Name,
		Description:     p.Description,
		IsPrivate:       p.IsPrivate,
		OwnerID:         p.OwnerID,
		CurrentSprintID: p.CurrentSprintID,
	}
	if p.CreatedAt != nil {
		out.CreatedAt = p.CreatedAt.UTC()
	}
	return out, nil
}

// ProjectFromDomain encodes p.
func ProjectFromDomain(p domain.Project) Project {
	out := Project{
		ID:              ptr(p.ID),
		Name:            p.Name,
		Slug:            p.Slug,
		Description:     p.Description,
		IsPrivate:       p.IsPrivate,
		OwnerID:         p.OwnerID,
		CurrentSprintID: p.CurrentSprintID,
	}
	if !p.CreatedAt.IsZero() {
		out.CreatedAt = ptr(p.CreatedAt.UTC())
	}
	return out
}

// ToDomain validates the page envelope and every project in it.
func (p ProjectPage) ToDomain() (domain.ProjectPage, error) {
	if p.Content == nil {
		return domain.ProjectPage{}, malformed("project page has no content")
	}
	if p.TotalPages == nil || *p.TotalPages < 0 {
		return domain.ProjectPage{}, malformed("project page has no totalPages")
	}
	out := domain.ProjectPage{Page: p.Page, TotalPages: *p.TotalPages, Content: make([]domain.Project, 0, len(*p.Content))}
	for _, item := range *p.Content {
		project, err := item.ToDomain()
		if err != nil {
			return domain.ProjectPage{}, err
		}
		out.Content = append(out.Content, project)
	}
	return out, nil
}

// ModulesToDomain converts a module list.
func ModulesToDomain(in []Module) []domain.ProjectModule {
	out := make([]domain.ProjectModule, 0, len(in))
	for _, m := range in {
		out = append(out, domain.ProjectModule{Key: m.Key, Name: m.Name, Enabled: m.Enabled})
	}
	return out
}

// ModulesFromDomain encodes a module list.
func ModulesFromDomain(in []domain.ProjectModule) []Module {
	out := make([]Module, 0, len(in))
	for _, m := range in {
		out = append(out, Module{Key: m.Key, Name: m.Name, Enabled: m.Enabled})
	}
	return out
}

// StatusesToColumns turns the status map into columns ordered by Position.
// Statuses without an order sort after ordered ones, by id. Positions are
// renumbered from zero.
func StatusesToColumns(projectID int64, statuses map[string]Status) ([]domain.Column, error) {
	const unordered = 1 << 30
	columns := make([]domain.Column, 0, len(statuses))
	for slug, st := range statuses {
		if st.ID == nil || *st.ID <= 0 {
			return nil, malformed("status %q has no id", slug)
		}
		name := st.Name
		if name == "" {
			name = slug
		}
		position := unordered
		if st.Order != nil {
			position = *st.Order
		}
		columns = append(columns, domain.Column{
			ID:        *st.ID,
			ProjectID: projectID,
			Slug:      slug,
			Name:      name,
			Color:     st.Color,
			Position:  position,
		})
	}
	domain.SortColumns(columns)
	for i := range columns {
		columns[i].Position = i
	}
	return columns, nil
}

// StatusesFromColumns encodes columns as the status map.
func StatusesFromColumns(columns []domain.Column) map[string]Status {
	out := make(map[string]Status, len(columns))
	for _, c := range columns {
		out[c.Slug] = Status{ID: ptr(c.ID), Name: c.Name, Color: c.Color, Order: ptr(c.Position)}
	}
	return out
}

func (p *Points) toDomain() domain.Points {
	if p == nil {
		return domain.Points{}
	}
	return domain.Points{UX: p.UX, Design: p.Design, Front: p.Front, Back: p.Back}
}

func pointsFromDomain(p domain.Points) *Points {
	if p.IsZero() {
		return nil
	}
	return &Points{UX: p.UX, Design: p.Design, Front: p.Front, Back: p.Back}
}

func parseDate(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, *raw)
	if err != nil {
		// Accept full timestamps too.
		t, err = time.Parse(time.RFC3339, *raw)
		if err != nil {
			return nil, malformed("due date %q", *raw)
		}
	}
	t = t.UTC()
	return &t, nil
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	return ptr(t.UTC().Format(dateLayout))
}

// ToDomain validates required story fields.
func (s Story) ToDomain() (domain.Card, error) {
	if s.ID == nil || *s.ID <= 0 {
		return domain.Card{}, malformed("story id missing")
	}
	if s.Title == nil {
		return domain.Card{}, malformed("story %d has no title", *s.ID)
	}
	if s.StatusID == nil || *s.StatusID <= 0 {
		return domain.Card{}, malformed("story %d has no statusId", *s.ID)
	}
	due, err := parseDate(s.DueDate)
	if err != nil {
		return domain.Card{}, err
	}
	card := domain.Card{
		Key:         domain.StoryKey(*s.ID),
		ProjectID:   s.ProjectID,
		Title:       *s.Title,
		Description: s.Description,
		StatusID:    *s.StatusID,
		AssigneeID:  s.AssigneeID,
		Points:      s.Points.toDomain(),
		DueDate:     due,
		Order:       s.Order,
	}
	for _, a := range s.Attachments {
		card.Attachments = append(card.Attachments, domain.Attachment{ID: a.ID, Name: a.Name, URL: a.URL, Size: a.Size})
	}
	return card, nil
}

// StoryFromDomain encodes a story card.
func StoryFromDomain(c domain.Card) Story {
	out := Story{
		ID:          ptr(c.Key.ID),
		ProjectID:   c.ProjectID,
		Title:       ptr(c.Title),
		Description: c.Description,
		StatusID:    ptr(c.StatusID),
		AssigneeID:  c.AssigneeID,
		Points:      pointsFromDomain(c.Points),
		DueDate:     formatDate(c.DueDate),
		Order:       c.Order,
	}
	for _, a := range c.Attachments {
		out.Attachments = append(out.Attachments, Attachment{ID: a.ID, Name: a.Name, URL: a.URL, Size: a.Size})
	}
	return out
}

// ToDomain validates required task fields.
func (t Task) ToDomain() (domain.Card, error) {
	if t.ID == nil || *t.ID <= 0 {
		return domain.Card{}, malformed("task id missing")
	}
	if t.Name == nil {
		return domain.Card{}, malformed("task %d has no name", *t.ID)
	}
	if t.StatusID == nil || *t.StatusID <= 0 {
		return domain.Card{}, malformed("task %d has no statusId", *t.ID)
	}
	assignees := t.AssigneeIDs
	if assignees == nil {
		assignees = []int64{}
	}
	return domain.Card{
		Key:         domain.TaskKey(*t.ID),
		ProjectID:   t.ProjectID,
		Title:       *t.Name,
		Description: t.Description,
		StatusID:    *t.StatusID,
		UserStoryID: t.UserStoryID,
		AssigneeIDs: assignees,
		Order:       t.Order,
	}, nil
}

// TaskFromDomain encodes a task card.
func TaskFromDomain(c domain.Card) Task {
	assignees := c.AssigneeIDs
	if assignees == nil {
		assignees = []int64{}
	}
	return Task{
		ID:          ptr(c.Key.ID),
		ProjectID:   c.ProjectID,
		Name:        ptr(c.Title),
		Description: c.Description,
		StatusID:    ptr(c.StatusID),
		UserStoryID: c.UserStoryID,
		AssigneeIDs: assignees,
		Order:       c.Order,
	}
}

// StoryRequestFromDraft encodes the create-story body.
func StoryRequestFromDraft(d domain.StoryDraft) StoryRequest {
	return StoryRequest{
		ProjectID:   d.ProjectID,
		StatusID:    d.StatusID,
		Title:       d.Title,
		Description: d.Description,
		AssigneeID:  d.AssigneeID,
		Points:      pointsFromDomain(d.Points),
		DueDate:     formatDate(d.DueDate),
	}
}

// ToDraft decodes a create-story body.
func (r StoryRequest) ToDraft() (domain.StoryDraft, error) {
	due, err := parseDate(r.DueDate)
	if err != nil {
		return domain.StoryDraft{}, err
	}
	return domain.StoryDraft{
		ProjectID:   r.ProjectID,
		StatusID:    r.StatusID,
		Title:       r.Title,
		Description: r.Description,
		AssigneeID:  r.AssigneeID,
		Points:      r.Points.toDomain(),
		DueDate:     due,
	}, nil
}

// TaskRequestFromDraft encodes the create-task body. AssigneeIDs is always present.
func TaskRequestFromDraft(d domain.TaskDraft) TaskRequest {
	assignees := d.AssigneeIDs
	if assignees == nil {
		assignees = []int64{}
	}
	return TaskRequest{
		ProjectID:   d.ProjectID,
		StatusID:    d.StatusID,
		UserStoryID: d.UserStoryID,
		Name:        d.Name,
		Description: d.Description,
		AssigneeIDs: assignees,
	}
}

// ToDraft decodes a create-task body.
func (r TaskRequest) ToDraft() domain.TaskDraft {
	return domain.TaskDraft{
		ProjectID:   r.ProjectID,
		StatusID:    r.StatusID,
		UserStoryID: r.UserStoryID,
		Name:        r.Name,
		Description: r.Description,
		AssigneeIDs: r.AssigneeIDs,
	}
}

// ToDomain requires all three progress fields.
func (p SprintProgress) ToDomain() (domain.SprintProgress, error) {
	if p.Percentage == nil || p.TotalTasks == nil || p.CompletedTasks == nil {
		return domain.SprintProgress{}, malformed("sprint progress is missing fields")
	}
	return domain.SprintProgress{
		Percentage:     *p.Percentage,
		TotalTasks:     *p.TotalTasks,
		CompletedTasks: *p.CompletedTasks,
	}, nil
}

// SprintProgressFromDomain encodes p.
func SprintProgressFromDomain(p domain.SprintProgress) SprintProgress {
	return SprintProgress{
		Percentage:     ptr(p.Percentage),
		TotalTasks:     ptr(p.TotalTasks),
		CompletedTasks: ptr(p.CompletedTasks),
	}
}

// ToDomain validates required settings fields.
func (s UserSettings) ToDomain() (domain.UserSettings, error) {
	if s.UserID == nil || *s.UserID <= 0 {
		return domain.UserSettings{}, malformed("user settings have no userId")
	}
	return domain.UserSettings{
		User: domain.User{
			ID:       *s.UserID,
			Username: s.Username,
			FullName: s.FullName,
			Email:    s.Email,
		},
		Language: s.Language,
		Theme:    s.Theme,
		Bio:      s.Bio,
		Notifications: domain.NotificationPrefs{
			EmailOnAssigned:     s.Notifications.EmailOnAssigned,
			EmailOnMentioned:    s.Notifications.EmailOnMentioned,
			EmailOnStatusChange: s.Notifications.EmailOnStatusChange,
			Digest:              domain.Digest(s.Notifications.Digest),
		},
	}, nil
}

// UserSettingsFromDomain encodes s.
func UserSettingsFromDomain(s domain.UserSettings) UserSettings {
	return UserSettings{
		UserID:   ptr(s.User.ID),
		Username: s.User.Username,
		FullName: s.User.FullName,
		Email:    s.User.Email,
		Language: s.Language,
		Theme:    s.Theme,
		Bio:      s.Bio,
		Notifications: Notifications{
			EmailOnAssigned:     s.Notifications.EmailOnAssigned,
			EmailOnMentioned:    s.Notifications.EmailOnMentioned,
			EmailOnStatusChange: s.Notifications.EmailOnStatusChange,
			Digest:              string(s.Notifications.Digest),
		},
	}
}

func ptr[T any](v T) *T { return &v }
