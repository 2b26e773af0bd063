package api

import (
	"context"
	"net/http"
	"net/url"

	"apex-client/pkg/models"
)

// StartAgent kicks off an agent run on a thread and returns the run id to
// stream from.
func (c *Client) StartAgent(ctx context.Context, threadID string, req models.StartAgentRequest) (string, error) {
	var out models.StartAgentResponse
	path := "/thread/" + url.PathEscape(threadID) + "/agent/start"
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return "", err
	}
	return out.AgentRunID, nil
}

// StopAgent requests a graceful stop. The stream observes it as a "stopped"
// status frame.
func (c *Client) StopAgent(ctx context.Context, runID string) error {
	path := "/agent-run/" + url.PathEscape(runID) + "/stop"
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// AgentRunStatus fetches the current state of a run, useful after the stream
// has closed.
func (c *Client) AgentRunStatus(ctx context.Context, runID string) (*models.AgentRun, error) {
	var out models.AgentRun
	path := "/agent-run/" + url.PathEscape(runID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
