package api

import (
	"context"
	"net/http"

	"github.com/stillon/choremane/internal/model"
)

// Logs fetches the raw activity feed, newest first.
func (c *Client) Logs(ctx context.Context) ([]model.LogEntry, error) {
	var entries []model.LogEntry
	if err := c.do(ctx, http.MethodGet, "/logs", nil, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
