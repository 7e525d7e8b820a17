package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CardKind distinguishes user stories from tasks.
type CardKind string

const (
	CardKindStory CardKind = "story"
	CardKindTask  CardKind = "task"
)

// CardKey identifies one card on a board. Stories and tasks use separate id spaces.
type CardKey struct {
	Kind CardKind
	ID   int64
}

// StoryKey returns the key of a user story.
func StoryKey(id int64) CardKey { return CardKey{Kind: CardKindStory, ID: id} }

// TaskKey returns the key of a task.
func TaskKey(id int64) CardKey { return CardKey{Kind: CardKindTask, ID: id} }

// String renders the drag identifier, e.g. "story-12".
func (k CardKey) String() string {
	return fmt.Sprintf("%s-%d", k.Kind, k.ID)
}

// Ref renders the human reference shown on cards, e.g. "US-12".
func (k CardKey) Ref() string {
	if k.Kind == CardKindTask {
		return fmt.Sprintf("T-%d", k.ID)
	}
	return fmt.Sprintf("US-%d", k.ID)
}

// ParseCardKey extracts a card key from a drag identifier or reference.
// A bare number is treated as a story id.
func ParseCardKey(raw string) (CardKey, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return CardKey{}, ErrInvalidCardKey
	}
	kind := CardKindStory
	for _, prefix := range []struct {
		text string
		kind CardKind
	}{
		{"story-", CardKindStory},
		{"us-", CardKindStory},
		{"task-", CardKindTask},
		{"t-", CardKindTask},
	} {
		if rest, ok := strings.CutPrefix(s, prefix.text); ok {
			s, kind = rest, prefix.kind
			break
		}
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return CardKey{}, fmt.Errorf("%w: %q", ErrInvalidCardKey, raw)
	}
	return CardKey{Kind: kind, ID: id}, nil
}

// Points holds optional estimates per discipline.
type Points struct {
	UX     *float64
	Design *float64
	Front  *float64
	Back   *float64
}

// Total sums every set estimate.
func (p Points) Total() float64 {
	var total float64
	for _, v := range []*float64{p.UX, p.Design, p.Front, p.Back} {
		if v != nil {
			total += *v
		}
	}
	return total
}

// IsZero reports whether no estimate is set.
func (p Points) IsZero() bool {
	return p.UX == nil && p.Design == nil && p.Front == nil && p.Back == nil
}

func (p Points) validate() error {
	for _, v := range []*float64{p.UX, p.Design, p.Front, p.Back} {
		if v != nil && *v < 0 {
			return ErrInvalidPoints
		}
	}
	return nil
}

// Attachment is a file linked to a card.
type Attachment struct {
	ID   int64
	Name string
	URL  string
	Size int64
}

// Card represents a user story or task displayed on the board.
type Card struct {
	Key         CardKey
	ProjectID   int64
	Title       string
	Description string
	StatusID    int64
	AssigneeID  *int64
	AssigneeIDs []int64
	UserStoryID *int64
	Points      Points
	DueDate     *time.Time
	Attachments []Attachment
	Order       int
}

// Ref returns the card's display reference.
func (c Card) Ref() string { return c.Key.Ref() }

// Move sets the column reference and order.
func (c *Card) Move(statusID int64, order int) error {
	if statusID <= 0 {
		return ErrInvalidColumnID
	}
	if order < 0 {
		return ErrInvalidPosition
	}
	c.StatusID = statusID
	c.Order = order
	return nil
}

// StoryDraft holds the fields collected by the user story modal.
type StoryDraft struct {
	ProjectID   int64
	StatusID    int64
	Title       string
	Description string
	AssigneeID  *int64
	Points      Points
	DueDate     *time.Time
}

// Normalize trims the draft and enforces the non-empty title rule.
func (d StoryDraft) Normalize() (StoryDraft, error) {
	d.Title = strings.TrimSpace(d.Title)
	d.Description = strings.TrimSpace(d.Description)
	if d.Title == "" {
		return StoryDraft{}, ErrTitleRequired
	}
	if d.ProjectID <= 0 {
		return StoryDraft{}, ErrInvalidID
	}
	if d.StatusID <= 0 {
		return StoryDraft{}, ErrInvalidColumnID
	}
	if err := d.Points.validate(); err != nil {
		return StoryDraft{}, err
	}
	return d, nil
}

// TaskDraft holds the fields collected by the task modal.
type TaskDraft struct {
	ProjectID   int64
	StatusID    int64
	UserStoryID *int64
	Name        string
	Description string
	AssigneeIDs []int64
}

// Normalize trims the draft and enforces the non-empty name rule.
// AssigneeIDs is never nil afterwards.
func (d TaskDraft) Normalize() (TaskDraft, error) {
	d.Name = strings.TrimSpace(d.Name)
	d.Description = strings.TrimSpace(d.Description)
	if d.Name == "" {
		return TaskDraft{}, ErrTitleRequired
	}
	if d.ProjectID <= 0 {
		return TaskDraft{}, ErrInvalidID
	}
	if d.StatusID <= 0 {
		return TaskDraft{}, ErrInvalidColumnID
	}
	if d.AssigneeIDs == nil {
		d.AssigneeIDs = []int64{}
	}
	return d, nil
}

// NewStory builds a story card from a normalized draft.
func NewStory(id int64, d StoryDraft, order int) (Card, error) {
	if id <= 0 {
		return Card{}, ErrInvalidID
	}
	d, err := d.Normalize()
	if err != nil {
		return Card{}, err
	}
	return Card{
		Key:         StoryKey(id),
		ProjectID:   d.ProjectID,
		Title:       d.Title,
		Description: d.Description,
		StatusID:    d.StatusID,
		AssigneeID:  d.AssigneeID,
		Points:      d.Points,
		DueDate:     d.DueDate,
		Order:       order,
	}, nil
}

// NewTaskCard builds a task card from a normalized draft.
func NewTaskCard(id int64, d TaskDraft, order int) (Card, error) {
	if id <= 0 {
		return Card{}, ErrInvalidID
	}
	d, err := d.Normalize()
	if err != nil {
		return Card{}, err
	}
	return Card{
		Key:         TaskKey(id),
		ProjectID:   d.ProjectID,
		Title:       d.Name,
		Description: d.Description,
		StatusID:    d.StatusID,
		AssigneeIDs: d.AssigneeIDs,
		UserStoryID: d.UserStoryID,
		Order:       order,
	}, nil
}
