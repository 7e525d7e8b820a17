package domain

import (
	"cmp"
	"slices"
	"strings"
)

// Column is a board lane built from one project status.
type Column struct {
	ID        int64
	ProjectID int64
	Slug      string
	Name      string
	Color     string
	// Position is the explicit left-to-right sort key.
	Position int
}

// NewColumn constructs a new value for this package.
func NewColumn(id, projectID int64, name, color string, position int) (Column, error) {
	name = strings.TrimSpace(name)
	if id <= 0 || projectID <= 0 {
		return Column{}, ErrInvalidID
	}
	if name == "" {
		return Column{}, ErrInvalidName
	}
	if position < 0 {
		return Column{}, ErrInvalidPosition
	}
	return Column{
		ID:        id,
		ProjectID: projectID,
		Slug:      normalizeSlug(name),
		Name:      name,
		Color:     strings.TrimSpace(color),
		Position:  position,
	}, nil
}

// SortColumns orders columns by Position, then ID.
func SortColumns(columns []Column) {
	slices.SortStableFunc(columns, func(a, b Column) int {
		if c := cmp.Compare(a.Position, b.Position); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// ColumnTemplate describes a status seeded into new projects.
type ColumnTemplate struct {
	Name  string
	Color string
}

// DefaultColumns returns the statuses every new project starts with.
func DefaultColumns() []ColumnTemplate {
	return []ColumnTemplate{
		{Name: "New", Color: "#70728f"},
		{Name: "Ready", Color: "#e44057"},
		{Name: "In progress", Color: "#e47c40"},
		{Name: "Ready for test", Color: "#e4ce40"},
		{Name: "Done", Color: "#a8e440"},
	}
}
