package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/hylla/kanri/internal/domain"
)

// ListProjects fetches one zero-based page of projects.
func (c *Client) ListProjects(ctx context.Context, page, size int) (domain.ProjectPage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(max(page, 0)))
	query.Set("size", strconv.Itoa(max(size, 1)))
	var resp ProjectPage
	if err := c.getParsedResponse(ctx, "GET", c.v1("/projects?%s", query.Encode()), nil, &resp); err != nil {
		return domain.ProjectPage{}, err
	}
	return resp.ToDomain()
}

// CreateProject creates a project from draft.
func (c *Client) CreateProject(ctx context.Context, draft domain.ProjectDraft) (domain.Project, error) {
	body := ProjectRequest{Name: draft.Name, Description: draft.Description, IsPrivate: draft.IsPrivate}
	var resp Project
	if err := c.getParsedResponse(ctx, "POST", c.v1("/projects"), body, &resp); err != nil {
		return domain.Project{}, err
	}
	return resp.ToDomain()
}

// DuplicateProject copies project id into a new project described by draft.
// draft.OwnerID carries the signed-in user.
func (c *Client) DuplicateProject(ctx context.Context, id int64, draft domain.ProjectDraft) (domain.Project, error) {
	body := ProjectRequest{
		Name:        draft.Name,
		Description: draft.Description,
		IsPrivate:   draft.IsPrivate,
		OwnerID:     draft.OwnerID,
	}
	var resp Project
	if err := c.getParsedResponse(ctx, "POST", c.v1("/projects/%d/duplicate", id), body, &resp); err != nil {
		return domain.Project{}, err
	}
	return resp.ToDomain()
}

// ProjectModules fetches the module toggles of a project.
func (c *Client) ProjectModules(ctx context.Context, projectID int64) ([]domain.ProjectModule, error) {
	var resp []Module
	if err := c.getParsedResponse(ctx, "GET", c.v1("/projects/%d/modules", projectID), nil, &resp); err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, malformed("module list is null")
	}
	return ModulesToDomain(resp), nil
}

// SetProjectModules replaces the module toggles of a project.
func (c *Client) SetProjectModules(ctx context.Context, projectID int64, modules []domain.ProjectModule) ([]domain.ProjectModule, error) {
	var resp []Module
	if err := c.getParsedResponse(ctx, "PUT", c.v1("/projects/%d/modules", projectID), ModulesFromDomain(modules), &resp); err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, malformed("module list is null")
	}
	return ModulesToDomain(resp), nil
}

// SprintProgress fetches completion counts for a sprint.
func (c *Client) SprintProgress(ctx context.Context, sprintID int64) (domain.SprintProgress, error) {
	if sprintID <= 0 {
		return domain.SprintProgress{}, fmt.Errorf("sprint id %d: %w", sprintID, domain.ErrInvalidID)
	}
	var resp SprintProgress
	if err := c.getParsedResponse(ctx, "GET", c.api("/kanban/board/sprint/%d/progress", sprintID), nil, &resp); err != nil {
		return domain.SprintProgress{}, err
	}
	return resp.ToDomain()
}
