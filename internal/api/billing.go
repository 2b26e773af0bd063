package api

import (
	"context"
	"net/http"

	"apex-client/pkg/models"
)

// CheckBillingStatus asks whether the account may start an agent run. The UI
// gates the run button on CanRun and shows Message when it is false.
func (c *Client) CheckBillingStatus(ctx context.Context) (*models.BillingStatus, error) {
	var out models.BillingStatus
	if err := c.do(ctx, http.MethodGet, "/billing/check-status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
