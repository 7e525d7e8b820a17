package domain

import (
	"strings"
	"time"
)

// Project represents project data used by this package.
type Project struct {
	ID              int64
	Slug            string
	Name            string
	Description     string
	IsPrivate       bool
	OwnerID         int64
	CurrentSprintID int64
	CreatedAt       time.Time
}

// ProjectDraft holds the user-editable fields for create and duplicate.
type ProjectDraft struct {
	Name        string
	Description string
	IsPrivate   bool
	OwnerID     int64
}

// Normalize trims the draft and validates the name.
func (d ProjectDraft) Normalize() (ProjectDraft, error) {
	d.Name = strings.TrimSpace(d.Name)
	d.Description = strings.TrimSpace(d.Description)
	if d.Name == "" {
		return ProjectDraft{}, ErrInvalidName
	}
	return d, nil
}

// ProjectPage is one page of the project listing.
type ProjectPage struct {
	Content    []Project
	Page       int
	TotalPages int
}

// HasNext reports whether a later page exists.
func (p ProjectPage) HasNext() bool {
	return p.Page+1 < p.TotalPages
}

// HasPrev reports whether an earlier page exists.
func (p ProjectPage) HasPrev() bool {
	return p.Page > 0
}

// NewProject constructs a new value for this package.
func NewProject(id int64, draft ProjectDraft, now time.Time) (Project, error) {
	if id <= 0 {
		return Project{}, ErrInvalidID
	}
	draft, err := draft.Normalize()
	if err != nil {
		return Project{}, err
	}
	return Project{
		ID:          id,
		Slug:        normalizeSlug(draft.Name),
		Name:        draft.Name,
		Description: draft.Description,
		IsPrivate:   draft.IsPrivate,
		OwnerID:     draft.OwnerID,
		CreatedAt:   now.UTC(),
	}, nil
}

func normalizeSlug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	var b strings.Builder
	prevDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
