package api

import (
	"context"
	"fmt"

	"github.com/hylla/kanri/internal/domain"
)

// Statuses fetches the board columns of a project, ordered by Position.
func (c *Client) Statuses(ctx context.Context, projectID int64) ([]domain.Column, error) {
	var resp map[string]Status
	if err := c.getParsedResponse(ctx, "GET", c.api("/project-settings/%d/statuses", projectID), nil, &resp); err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, malformed("status map is null")
	}
	return StatusesToColumns(projectID, resp)
}

// UserStories fetches every story of a project.
func (c *Client) UserStories(ctx context.Context, projectID int64) ([]domain.Card, error) {
	var resp []Story
	if err := c.getParsedResponse(ctx, "GET", c.api("/projects/%d/user-stories", projectID), nil, &resp); err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, malformed("story list is null")
	}
	cards := make([]domain.Card, 0, len(resp))
	for _, s := range resp {
		card, err := s.ToDomain()
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, nil
}

// Tasks fetches every task of a project.
func (c *Client) Tasks(ctx context.Context, projectID int64) ([]domain.Card, error) {
	var resp []Task
	if err := c.getParsedResponse(ctx, "GET", c.api("/projects/%d/tasks", projectID), nil, &resp); err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, malformed("task list is null")
	}
	cards := make([]domain.Card, 0, len(resp))
	for _, t := range resp {
		card, err := t.ToDomain()
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, nil
}

// MoveCard persists a card's new column and order.
func (c *Client) MoveCard(ctx context.Context, key domain.CardKey, statusID int64, order int) (domain.Card, error) {
	body := MoveRequest{Order: order}
	switch key.Kind {
	case domain.CardKindStory:
		var resp Story
		if err := c.getParsedResponse(ctx, "PUT", c.api("/user-story/%d/status/%d", key.ID, statusID), body, &resp); err != nil {
			return domain.Card{}, err
		}
		return resp.ToDomain()
	case domain.CardKindTask:
		var resp Task
		if err := c.getParsedResponse(ctx, "PUT", c.api("/tasks/%d/status/%d", key.ID, statusID), body, &resp); err != nil {
			return domain.Card{}, err
		}
		return resp.ToDomain()
	default:
		return domain.Card{}, fmt.Errorf("move %s: %w", key, domain.ErrInvalidCardKey)
	}
}

// CreateStory creates a user story.
func (c *Client) CreateStory(ctx context.Context, draft domain.StoryDraft) (domain.Card, error) {
	var resp Story
	if err := c.getParsedResponse(ctx, "POST", c.api("/user-story"), StoryRequestFromDraft(draft), &resp); err != nil {
		return domain.Card{}, err
	}
	return resp.ToDomain()
}

// CreateTask creates a task. The body always carries assigneeIds.
func (c *Client) CreateTask(ctx context.Context, draft domain.TaskDraft) (domain.Card, error) {
	var resp Task
	if err := c.getParsedResponse(ctx, "POST", c.api("/tasks"), TaskRequestFromDraft(draft), &resp); err != nil {
		return domain.Card{}, err
	}
	return resp.ToDomain()
}
