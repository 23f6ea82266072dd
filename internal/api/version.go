package api

import (
	"context"
	"net/http"

	"github.com/stillon/choremane/internal/model"
)

// Version fetches deployment metadata. Callers on the update path treat a
// 5xx here as "likely redeploying" rather than a hard failure.
func (c *Client) Version(ctx context.Context) (model.VersionInfo, error) {
	var info model.VersionInfo
	err := c.do(ctx, http.MethodGet, "/version", nil, nil, &info)
	return info, err
}

// Status runs the backend health check.
func (c *Client) Status(ctx context.Context) (string, error) {
	var resp struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodGet, "/status", nil, nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}
