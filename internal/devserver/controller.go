// Package devserver manages the sandbox dev server behind the preview pane.
// A Controller guarantees the start call is issued at most once per project
// for its lifetime, no matter how many UI surfaces ask for a preview.
package devserver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"apex-client/internal/logging"
	"apex-client/internal/metrics"
	"apex-client/pkg/models"
)

// API is the slice of the platform client the controller needs.
type API interface {
	DevServerStart(ctx context.Context, projectID string) error
	DevServerStatus(ctx context.Context, projectID string) (*models.DevServerStatus, error)
}

// Options tunes a Controller.
type Options struct {
	// PollInterval paces status polling while waiting for "running".
	PollInterval time.Duration
	// StartTimeout bounds how long EnsureStarted waits for the server to
	// come up.
	StartTimeout time.Duration

	Logger *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.StartTimeout <= 0 {
		o.StartTimeout = 2 * time.Minute
	}
	if o.Logger == nil {
		o.Logger = logging.Named("devserver")
	}
	return o
}

// Controller owns dev-server lifecycle for any number of projects.
type Controller struct {
	api  API
	opts Options
	log  *zap.Logger

	mu      sync.Mutex
	started map[string]bool

	flight singleflight.Group
}

// New builds a Controller over the platform API.
func New(api API, opts Options) *Controller {
	o := opts.withDefaults()
	return &Controller{
		api:     api,
		opts:    o,
		log:     o.Logger,
		started: make(map[string]bool),
	}
}

// EnsureStarted boots the project's dev server if this controller has not
// already done so, then blocks until the server reports "running". Repeat
// calls never re-issue the start request; they only wait.
func (c *Controller) EnsureStarted(ctx context.Context, projectID string) error {
	c.mu.Lock()
	first := !c.started[projectID]
	if first {
		c.started[projectID] = true
	}
	c.mu.Unlock()

	if first {
		c.log.Info("starting dev server", zap.String("project_id", projectID))
		metrics.Get().DevServerStartsTotal.Inc()
		if err := c.api.DevServerStart(ctx, projectID); err != nil {
			// Allow a later call to try the start again.
			c.mu.Lock()
			delete(c.started, projectID)
			c.mu.Unlock()
			return fmt.Errorf("devserver: start %s: %w", projectID, err)
		}
	}

	return c.waitRunning(ctx, projectID)
}

// waitRunning polls status until running, terminal error or deadline.
func (c *Controller) waitRunning(ctx context.Context, projectID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.StartTimeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(c.opts.PollInterval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("devserver: waiting for %s: %w", projectID, err)
		}

		st, err := c.api.DevServerStatus(ctx, projectID)
		if err != nil {
			metrics.Get().DevServerPollsTotal.WithLabelValues("error").Inc()
			c.log.Warn("status poll failed", zap.String("project_id", projectID), zap.Error(err))
			continue
		}
		metrics.Get().DevServerPollsTotal.WithLabelValues(st.Status).Inc()

		switch {
		case st.Running():
			return nil
		case st.Status == "error":
			return fmt.Errorf("devserver: %s failed to start: %s", projectID, st.Error)
		}
	}
}

// PreviewURL returns the public preview URL, starting the dev server first
// when needed. Concurrent callers for the same project share one fetch; the
// fetch runs detached from any single caller, so one caller cancelling does
// not fail the rest.
func (c *Controller) PreviewURL(ctx context.Context, projectID string) (string, error) {
	ch := c.flight.DoChan(projectID, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.Background(), c.opts.StartTimeout)
		defer cancel()

		if err := c.EnsureStarted(fctx, projectID); err != nil {
			return "", err
		}
		st, err := c.api.DevServerStatus(fctx, projectID)
		if err != nil {
			return "", err
		}
		if st.PreviewURL == "" {
			return "", fmt.Errorf("devserver: %s running but no preview URL", projectID)
		}
		return st.PreviewURL, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}
