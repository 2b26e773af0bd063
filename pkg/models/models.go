// Package models holds the wire types exchanged with the APEX.BUILD platform
// API. Field names and json tags follow the backend's payloads exactly.
package models

import "time"

// AgentRun represents one agent execution attached to a thread.
type AgentRun struct {
	ID        string     `json:"id"`
	ThreadID  string     `json:"thread_id"`
	Status    string     `json:"status"` // running, completed, failed, stopped
	Error     string     `json:"error,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"completed_at,omitempty"`
}

// Finished returns true once the run has reached a terminal status.
func (r *AgentRun) Finished() bool {
	switch r.Status {
	case "completed", "failed", "stopped":
		return true
	}
	return false
}

// StartAgentRequest tunes a new agent run.
type StartAgentRequest struct {
	ModelName     string `json:"model_name,omitempty"`
	EnableContext bool   `json:"enable_context_manager,omitempty"`
}

// StartAgentResponse is returned by POST /thread/{id}/agent/start.
type StartAgentResponse struct {
	AgentRunID string `json:"agent_run_id"`
}

// Project represents a user project with its sandbox.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	AccountID   string    `json:"account_id"`
	SandboxID   string    `json:"sandbox_id,omitempty"`
	IsPublic    bool      `json:"is_public"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Thread is a conversation attached to a project.
type Thread struct {
	ID        string    `json:"thread_id"`
	ProjectID string    `json:"project_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one entry in a thread's history.
type Message struct {
	ID        string    `json:"message_id"`
	ThreadID  string    `json:"thread_id"`
	Type      string    `json:"type"` // user, assistant, tool, status
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// BillingStatus gates agent runs on subscription state.
type BillingStatus struct {
	CanRun        bool    `json:"can_run"`
	Message       string  `json:"message,omitempty"`
	Tier          string  `json:"subscription_tier,omitempty"` // free, pro, team
	CreditsLeft   float64 `json:"credits_remaining,omitempty"`
	CostThisMonth float64 `json:"current_usage,omitempty"`
}

// FileNode is one entry in a sandbox file listing.
type FileNode struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

// Deployment tracks a project deployment through its provider.
type Deployment struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Provider  string    `json:"provider"` // vercel, netlify, cloudflare
	Status    string    `json:"status"`   // pending, building, deploying, live, failed
	URL       string    `json:"url,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Live returns true once the deployment serves traffic.
func (d *Deployment) Live() bool { return d.Status == "live" }

// DevServerStatus reports the sandbox dev server state for a project.
type DevServerStatus struct {
	ProjectID  string `json:"project_id"`
	Status     string `json:"status"` // stopped, starting, running, error
	PreviewURL string `json:"preview_url,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Running returns true when the dev server accepts traffic.
func (s *DevServerStatus) Running() bool { return s.Status == "running" }

// APIError is the backend's JSON error envelope.
type APIError struct {
	Detail  string `json:"detail,omitempty"`
	Message string `json:"message,omitempty"`
}

// Text returns whichever error field the backend populated.
func (e *APIError) Text() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Message
}
