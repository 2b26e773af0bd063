package api

import (
	"context"
	"net/http"
	"net/url"

	"apex-client/pkg/models"
)

// Deploy pushes the project build to a hosting provider.
func (c *Client) Deploy(ctx context.Context, projectID, provider string) (*models.Deployment, error) {
	in := map[string]string{"provider": provider}
	var out models.Deployment
	path := "/projects/" + url.PathEscape(projectID) + "/deploy"
	if err := c.do(ctx, http.MethodPost, path, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeploymentStatus polls one deployment.
func (c *Client) DeploymentStatus(ctx context.Context, deploymentID string) (*models.Deployment, error) {
	var out models.Deployment
	path := "/deployments/" + url.PathEscape(deploymentID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DevServerStart asks the sandbox to boot the project's dev server. The call
// is idempotent on the backend.
func (c *Client) DevServerStart(ctx context.Context, projectID string) error {
	path := "/project/" + url.PathEscape(projectID) + "/devserver/start"
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// DevServerStatus reports the dev server state and preview URL.
func (c *Client) DevServerStatus(ctx context.Context, projectID string) (*models.DevServerStatus, error) {
	var out models.DevServerStatus
	path := "/project/" + url.PathEscape(projectID) + "/devserver/status"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
