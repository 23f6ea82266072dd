package api

import (
	"context"
	"net/http"

	"github.com/stillon/choremane/internal/model"
)

// Export downloads the full dataset for the current user.
func (c *Client) Export(ctx context.Context) (model.ExportData, error) {
	var data model.ExportData
	err := c.do(ctx, http.MethodGet, "/export", nil, nil, &data)
	return data, err
}

// Import uploads a dataset snapshot. Existing chores matched by id are
// updated, everything else is created.
func (c *Client) Import(ctx context.Context, data model.ExportData) (model.ImportResult, error) {
	var result model.ImportResult
	err := c.do(ctx, http.MethodPost, "/import", nil, data, &result)
	return result, err
}
