package board

import (
	"context"

	"github.com/hylla/kanri/internal/domain"
)

// CardCreator persists new cards.
type CardCreator interface {
	CreateStory(ctx context.Context, draft domain.StoryDraft) (domain.Card, error)
	CreateTask(ctx context.Context, draft domain.TaskDraft) (domain.Card, error)
}

// Creator validates modal input, calls the backend, and appends the result
// to the end of its column.
type Creator struct {
	store *Store
	api   CardCreator
}

// NewCreator wires a creator.
func NewCreator(store *Store, api CardCreator) *Creator {
	return &Creator{store: store, api: api}
}

// CreateStory never calls the backend for a blank title.
func (c *Creator) CreateStory(ctx context.Context, draft domain.StoryDraft) (domain.Card, error) {
	draft, err := draft.Normalize()
	if err != nil {
		return domain.Card{}, err
	}
	card, err := c.api.CreateStory(ctx, draft)
	if err != nil {
		return domain.Card{}, err
	}
	c.store.InsertCard(card)
	return card, nil
}

// CreateTask never calls the backend for a blank name.
func (c *Creator) CreateTask(ctx context.Context, draft domain.TaskDraft) (domain.Card, error) {
	draft, err := draft.Normalize()
	if err != nil {
		return domain.Card{}, err
	}
	card, err := c.api.CreateTask(ctx, draft)
	if err != nil {
		return domain.Card{}, err
	}
	c.store.InsertCard(card)
	return card, nil
}
