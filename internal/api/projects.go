package api

import (
	"context"
	"net/http"
	"net/url"

	"apex-client/pkg/models"
)

// Projects lists the caller's projects.
func (c *Client) Projects(ctx context.Context) ([]models.Project, error) {
	var out []models.Project
	if err := c.do(ctx, http.MethodGet, "/projects", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Project fetches a single project.
func (c *Client) Project(ctx context.Context, projectID string) (*models.Project, error) {
	var out models.Project
	if err := c.do(ctx, http.MethodGet, "/projects/"+url.PathEscape(projectID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateProject provisions a project and its sandbox.
func (c *Client) CreateProject(ctx context.Context, name, description string) (*models.Project, error) {
	in := map[string]string{"name": name, "description": description}
	var out models.Project
	if err := c.do(ctx, http.MethodPost, "/projects", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteProject removes a project and tears down its sandbox.
func (c *Client) DeleteProject(ctx context.Context, projectID string) error {
	return c.do(ctx, http.MethodDelete, "/projects/"+url.PathEscape(projectID), nil, nil)
}

// Threads lists the conversations attached to a project.
func (c *Client) Threads(ctx context.Context, projectID string) ([]models.Thread, error) {
	var out []models.Thread
	path := "/threads?project_id=" + url.QueryEscape(projectID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Messages fetches a thread's history, oldest first.
func (c *Client) Messages(ctx context.Context, threadID string) ([]models.Message, error) {
	var out []models.Message
	path := "/thread/" + url.PathEscape(threadID) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
