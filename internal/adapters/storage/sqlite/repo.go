package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hylla/kanri/internal/backend"
	"github.com/hylla/kanri/internal/domain"
	"github.com/hylla/kanri/internal/session"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// sessionKey is the client_storage key holding the persisted session.
const sessionKey = "session"

// dueDateLayout is the calendar-date layout used for due dates.
const dueDateLayout = "2006-01-02"

// Repository represents repository data used by this package.
type Repository struct {
	db *sql.DB
}

var (
	_ backend.Repository = (*Repository)(nil)
	_ session.Store      = (*Repository)(nil)
)

// Open opens the requested operation.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// OpenInMemory opens a private in-memory database.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, "file::memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	// Every pooled connection would otherwise see its own empty database.
	db.SetMaxOpenConns(1)
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the requested operation.
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate handles migrate.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			full_name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS auth_tokens (
			token TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS user_settings (
			user_id INTEGER PRIMARY KEY,
			language TEXT NOT NULL DEFAULT 'en',
			theme TEXT NOT NULL DEFAULT 'dark',
			bio TEXT NOT NULL DEFAULT '',
			notifications_json TEXT NOT NULL DEFAULT '{}',
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS projects (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			slug TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			is_private INTEGER NOT NULL DEFAULT 0,
			owner_id INTEGER NOT NULL,
			current_sprint_id INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS statuses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id INTEGER NOT NULL,
			slug TEXT NOT NULL,
			name TEXT NOT NULL,
			color TEXT NOT NULL DEFAULT '',
			position INTEGER NOT NULL,
			FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS project_modules (
			project_id INTEGER NOT NULL,
			module_key TEXT NOT NULL,
			name TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY(project_id, module_key),
			FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
		);`,
		// stories and tasks share one table but keep separate id spaces per kind.
		`CREATE TABLE IF NOT EXISTS cards (
			kind TEXT NOT NULL,
			id INTEGER NOT NULL,
			project_id INTEGER NOT NULL,
			status_id INTEGER NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			assignee_id INTEGER,
			assignee_ids_json TEXT NOT NULL DEFAULT '[]',
			user_story_id INTEGER,
			points_json TEXT NOT NULL DEFAULT '{}',
			due_date TEXT,
			attachments_json TEXT NOT NULL DEFAULT '[]',
			position INTEGER NOT NULL,
			PRIMARY KEY(kind, id),
			FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE,
			FOREIGN KEY(status_id) REFERENCES statuses(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS client_storage (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_statuses_project_position ON statuses(project_id, position);`,
		`CREATE INDEX IF NOT EXISTS idx_cards_project_kind_status ON cards(project_id, kind, status_id, position);`,
		`CREATE INDEX IF NOT EXISTS idx_auth_tokens_user ON auth_tokens(user_id);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// CreateUser inserts an account and returns it with its assigned id.
func (r *Repository) CreateUser(ctx context.Context, user domain.User, passwordHash string, now time.Time) (domain.User, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO users(username, full_name, email, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, user.Username, user.FullName, user.Email, passwordHash, ts(now))
	if err != nil {
		if isUniqueErr(err) {
			return domain.User{}, fmt.Errorf("username %q: %w", user.Username, backend.ErrConflict)
		}
		return domain.User{}, err
	}
	user.ID, err = res.LastInsertId()
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// GetUser returns the account with id.
func (r *Repository) GetUser(ctx context.Context, id int64) (backend.UserRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, username, full_name, email, password_hash FROM users WHERE id = ?
	`, id)
	return scanUserRecord(row)
}

// GetUserByUsername returns the account named username.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (backend.UserRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, username, full_name, email, password_hash FROM users WHERE username = ?
	`, username)
	return scanUserRecord(row)
}

// SetPasswordHash replaces an account's password hash.
func (r *Repository) SetPasswordHash(ctx context.Context, userID int64, hash string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hash, userID)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// CreateToken stores a bearer token for userID.
func (r *Repository) CreateToken(ctx context.Context, token string, userID int64, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO auth_tokens(token, user_id, created_at) VALUES (?, ?, ?)
	`, token, userID, ts(now))
	return err
}

// UserForToken resolves a bearer token to its account.
func (r *Repository) UserForToken(ctx context.Context, token string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT u.id, u.username, u.full_name, u.email, u.password_hash
		FROM auth_tokens t JOIN users u ON u.id = t.user_id
		WHERE t.token = ?
	`, token)
	rec, err := scanUserRecord(row)
	if err != nil {
		return domain.User{}, err
	}
	return rec.User, nil
}

// GetUserSettings returns the stored settings of userID.
func (r *Repository) GetUserSettings(ctx context.Context, userID int64) (domain.UserSettings, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT u.id, u.username, u.full_name, u.email, s.language, s.theme, s.bio, s.notifications_json
		FROM user_settings s JOIN users u ON u.id = s.user_id
		WHERE s.user_id = ?
	`, userID)
	var (
		s        domain.UserSettings
		notifRaw string
	)
	if err := row.Scan(&s.User.ID, &s.User.Username, &s.User.FullName, &s.User.Email, &s.Language, &s.Theme, &s.Bio, &notifRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.UserSettings{}, backend.ErrNotFound
		}
		return domain.UserSettings{}, err
	}
	if err := json.Unmarshal([]byte(notifRaw), &s.Notifications); err != nil {
		return domain.UserSettings{}, fmt.Errorf("decode notifications_json: %w", err)
	}
	return s, nil
}

// SaveUserSettings upserts settings and mirrors name and email onto the account.
func (r *Repository) SaveUserSettings(ctx context.Context, settings domain.UserSettings) (err error) {
	notifJSON, err := json.Marshal(settings.Notifications)
	if err != nil {
		return fmt.Errorf("encode notifications: %w", err)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `UPDATE users SET full_name = ?, email = ? WHERE id = ?`,
		settings.User.FullName, settings.User.Email, settings.User.ID)
	if err != nil {
		return err
	}
	if err = translateNoRows(res); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_settings(user_id, language, theme, bio, notifications_json)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			language = excluded.language,
			theme = excluded.theme,
			bio = excluded.bio,
			notifications_json = excluded.notifications_json
	`, settings.User.ID, settings.Language, settings.Theme, settings.Bio, string(notifJSON))
	if err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

// CreateProject inserts a project and derives its slug from the assigned id.
func (r *Repository) CreateProject(ctx context.Context, draft domain.ProjectDraft, now time.Time) (project domain.Project, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO projects(slug, name, description, is_private, owner_id, created_at)
		VALUES ('', ?, ?, ?, ?, ?)
	`, draft.Name, draft.Description, draft.IsPrivate, draft.OwnerID, ts(now))
	if err != nil {
		return domain.Project{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Project{}, err
	}
	project, err = domain.NewProject(id, draft, now)
	if err != nil {
		return domain.Project{}, err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE projects SET slug = ? WHERE id = ?`, project.Slug, id); err != nil {
		return domain.Project{}, err
	}
	err = tx.Commit()
	return project, err
}

// GetProject returns the project with id.
func (r *Repository) GetProject(ctx context.Context, id int64) (domain.Project, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, slug, name, description, is_private, owner_id, current_sprint_id, created_at
		FROM projects WHERE id = ?
	`, id)
	return scanProject(row)
}

// GetProjectBySprint returns the project whose open sprint is sprintID.
func (r *Repository) GetProjectBySprint(ctx context.Context, sprintID int64) (domain.Project, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, slug, name, description, is_private, owner_id, current_sprint_id, created_at
		FROM projects WHERE current_sprint_id = ?
	`, sprintID)
	return scanProject(row)
}

// ListProjects returns one window of projects visible to viewerID and the total count.
func (r *Repository) ListProjects(ctx context.Context, viewerID int64, offset, limit int) ([]domain.Project, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM projects WHERE is_private = 0 OR owner_id = ?
	`, viewerID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, slug, name, description, is_private, owner_id, current_sprint_id, created_at
		FROM projects
		WHERE is_private = 0 OR owner_id = ?
		ORDER BY id ASC
		LIMIT ? OFFSET ?
	`, viewerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]domain.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// SetCurrentSprint records the open sprint of a project.
func (r *Repository) SetCurrentSprint(ctx context.Context, projectID, sprintID int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE projects SET current_sprint_id = ? WHERE id = ?`, sprintID, projectID)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// CreateColumn inserts a status for projectID.
func (r *Repository) CreateColumn(ctx context.Context, projectID int64, tmpl domain.ColumnTemplate, position int) (domain.Column, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO statuses(project_id, slug, name, color, position) VALUES (?, '', ?, ?, ?)
	`, projectID, tmpl.Name, tmpl.Color, position)
	if err != nil {
		return domain.Column{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Column{}, err
	}
	column, err := domain.NewColumn(id, projectID, tmpl.Name, tmpl.Color, position)
	if err != nil {
		return domain.Column{}, err
	}
	if _, err := r.db.ExecContext(ctx, `UPDATE statuses SET slug = ? WHERE id = ?`, column.Slug, id); err != nil {
		return domain.Column{}, err
	}
	return column, nil
}

// ListColumns returns the statuses of projectID ordered by position.
func (r *Repository) ListColumns(ctx context.Context, projectID int64) ([]domain.Column, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, slug, name, color, position
		FROM statuses
		WHERE project_id = ?
		ORDER BY position ASC, id ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Column, 0)
	for rows.Next() {
		var c domain.Column
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Slug, &c.Name, &c.Color, &c.Position); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetModules returns the module toggles of projectID.
func (r *Repository) GetModules(ctx context.Context, projectID int64) ([]domain.ProjectModule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT module_key, name, enabled FROM project_modules WHERE project_id = ?
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ProjectModule, 0)
	for rows.Next() {
		var m domain.ProjectModule
		if err := rows.Scan(&m.Key, &m.Name, &m.Enabled); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return domain.ValidateModules(out)
}

// SaveModules replaces the module toggles of projectID.
func (r *Repository) SaveModules(ctx context.Context, projectID int64, modules []domain.ProjectModule) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM project_modules WHERE project_id = ?`, projectID); err != nil {
		return err
	}
	for _, m := range modules {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO project_modules(project_id, module_key, name, enabled) VALUES (?, ?, ?, ?)
		`, projectID, m.Key, m.Name, m.Enabled); err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

// CreateStory inserts a user story at order.
func (r *Repository) CreateStory(ctx context.Context, draft domain.StoryDraft, order int) (domain.Card, error) {
	return r.insertCard(ctx, domain.CardKindStory, func(id int64) (domain.Card, error) {
		return domain.NewStory(id, draft, order)
	})
}

// CreateTask inserts a task at order.
func (r *Repository) CreateTask(ctx context.Context, draft domain.TaskDraft, order int) (domain.Card, error) {
	return r.insertCard(ctx, domain.CardKindTask, func(id int64) (domain.Card, error) {
		return domain.NewTaskCard(id, draft, order)
	})
}

// insertCard allocates the next id for kind and stores the card built from it.
func (r *Repository) insertCard(ctx context.Context, kind domain.CardKind, build func(int64) (domain.Card, error)) (card domain.Card, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Card{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var id int64
	if err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) + 1 FROM cards WHERE kind = ?`, string(kind)).Scan(&id); err != nil {
		return domain.Card{}, err
	}
	card, err = build(id)
	if err != nil {
		return domain.Card{}, err
	}
	args, err := cardArgs(card)
	if err != nil {
		return domain.Card{}, err
	}
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO cards(kind, id, project_id, status_id, title, description, assignee_id, assignee_ids_json,
			user_story_id, points_json, due_date, attachments_json, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, args...); err != nil {
		return domain.Card{}, err
	}
	err = tx.Commit()
	return card, err
}

// GetCard returns the card identified by key.
func (r *Repository) GetCard(ctx context.Context, key domain.CardKey) (domain.Card, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT kind, id, project_id, status_id, title, description, assignee_id, assignee_ids_json,
			user_story_id, points_json, due_date, attachments_json, position
		FROM cards WHERE kind = ? AND id = ?
	`, string(key.Kind), key.ID)
	return scanCard(row)
}

// ListCards returns every card of kind in projectID.
func (r *Repository) ListCards(ctx context.Context, projectID int64, kind domain.CardKind) ([]domain.Card, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT kind, id, project_id, status_id, title, description, assignee_id, assignee_ids_json,
			user_story_id, points_json, due_date, attachments_json, position
		FROM cards
		WHERE project_id = ? AND kind = ?
		ORDER BY status_id ASC, position ASC, id ASC
	`, projectID, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Card, 0)
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateCardPositions writes status and order for every card in one transaction.
func (r *Repository) UpdateCardPositions(ctx context.Context, cards []domain.Card) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, c := range cards {
		res, execErr := tx.ExecContext(ctx, `
			UPDATE cards SET status_id = ?, position = ? WHERE kind = ? AND id = ?
		`, c.StatusID, c.Order, string(c.Key.Kind), c.Key.ID)
		if execErr != nil {
			err = execErr
			return err
		}
		if err = translateNoRows(res); err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

// LoadSession returns the persisted client session.
func (r *Repository) LoadSession(ctx context.Context) (session.Data, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM client_storage WHERE key = ?`, sessionKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Data{}, session.ErrNoSession
	}
	if err != nil {
		return session.Data{}, err
	}
	var data session.Data
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return session.Data{}, fmt.Errorf("decode session: %w", err)
	}
	return data, nil
}

// SaveSession persists the client session.
func (r *Repository) SaveSession(ctx context.Context, data session.Data) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO client_storage(key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, sessionKey, string(raw), ts(time.Now()))
	return err
}

// ClearSession removes the persisted client session.
func (r *Repository) ClearSession(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM client_storage WHERE key = ?`, sessionKey)
	return err
}

// scanner describes scanner behavior required by this package.
type scanner interface {
	Scan(dest ...any) error
}

// scanUserRecord handles scan user record.
func scanUserRecord(s scanner) (backend.UserRecord, error) {
	var rec backend.UserRecord
	if err := s.Scan(&rec.User.ID, &rec.User.Username, &rec.User.FullName, &rec.User.Email, &rec.PasswordHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return backend.UserRecord{}, backend.ErrNotFound
		}
		return backend.UserRecord{}, err
	}
	return rec, nil
}

// scanProject handles scan project.
func scanProject(s scanner) (domain.Project, error) {
	var (
		p          domain.Project
		createdRaw string
	)
	if err := s.Scan(&p.ID, &p.Slug, &p.Name, &p.Description, &p.IsPrivate, &p.OwnerID, &p.CurrentSprintID, &createdRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Project{}, backend.ErrNotFound
		}
		return domain.Project{}, err
	}
	p.CreatedAt = parseTS(createdRaw)
	return p, nil
}

// pointsRecord is the points_json column layout.
type pointsRecord struct {
	UX     *float64 `json:"ux,omitempty"`
	Design *float64 `json:"design,omitempty"`
	Front  *float64 `json:"front,omitempty"`
	Back   *float64 `json:"back,omitempty"`
}

// attachmentRecord is one element of the attachments_json column.
type attachmentRecord struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// cardArgs flattens a card into insert arguments.
func cardArgs(c domain.Card) ([]any, error) {
	assignees := c.AssigneeIDs
	if assignees == nil {
		assignees = []int64{}
	}
	assigneesJSON, err := json.Marshal(assignees)
	if err != nil {
		return nil, fmt.Errorf("encode card assignees: %w", err)
	}
	pointsJSON, err := json.Marshal(pointsRecord(c.Points))
	if err != nil {
		return nil, fmt.Errorf("encode card points: %w", err)
	}
	attachments := make([]attachmentRecord, 0, len(c.Attachments))
	for _, a := range c.Attachments {
		attachments = append(attachments, attachmentRecord(a))
	}
	attachmentsJSON, err := json.Marshal(attachments)
	if err != nil {
		return nil, fmt.Errorf("encode card attachments: %w", err)
	}
	var due any
	if c.DueDate != nil {
		due = c.DueDate.UTC().Format(dueDateLayout)
	}
	return []any{
		string(c.Key.Kind), c.Key.ID, c.ProjectID, c.StatusID, c.Title, c.Description,
		nullableInt(c.AssigneeID), string(assigneesJSON), nullableInt(c.UserStoryID),
		string(pointsJSON), due, string(attachmentsJSON), c.Order,
	}, nil
}

// scanCard handles scan card.
func scanCard(s scanner) (domain.Card, error) {
	var (
		c               domain.Card
		kind            string
		assignee        sql.NullInt64
		assigneesRaw    string
		userStory       sql.NullInt64
		pointsRaw       string
		dueRaw          sql.NullString
		attachmentsRaw  string
		points          pointsRecord
		attachmentsRows []attachmentRecord
	)
	if err := s.Scan(&kind, &c.Key.ID, &c.ProjectID, &c.StatusID, &c.Title, &c.Description, &assignee,
		&assigneesRaw, &userStory, &pointsRaw, &dueRaw, &attachmentsRaw, &c.Order); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Card{}, backend.ErrNotFound
		}
		return domain.Card{}, err
	}
	c.Key.Kind = domain.CardKind(kind)
	c.AssigneeID = parseNullInt(assignee)
	c.UserStoryID = parseNullInt(userStory)
	if err := json.Unmarshal([]byte(assigneesRaw), &c.AssigneeIDs); err != nil {
		return domain.Card{}, fmt.Errorf("decode card assignee_ids_json: %w", err)
	}
	if err := json.Unmarshal([]byte(pointsRaw), &points); err != nil {
		return domain.Card{}, fmt.Errorf("decode card points_json: %w", err)
	}
	c.Points = domain.Points(points)
	if err := json.Unmarshal([]byte(attachmentsRaw), &attachmentsRows); err != nil {
		return domain.Card{}, fmt.Errorf("decode card attachments_json: %w", err)
	}
	for _, a := range attachmentsRows {
		c.Attachments = append(c.Attachments, domain.Attachment(a))
	}
	if dueRaw.Valid && strings.TrimSpace(dueRaw.String) != "" {
		due, err := time.Parse(dueDateLayout, dueRaw.String)
		if err == nil {
			c.DueDate = &due
		}
	}
	return c, nil
}

// translateNoRows maps zero affected rows to backend.ErrNotFound.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return backend.ErrNotFound
	}
	return nil
}

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses input into a normalized form.
func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

func nullableInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func parseNullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	out := v.Int64
	return &out
}

// isUniqueErr reports whether err is a unique-constraint violation.
func isUniqueErr(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
