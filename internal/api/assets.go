package api

import (
	"context"
	"io"
	"net/http"
)

// FetchAsset downloads a static app-shell asset as raw bytes. Assets are
// public; no auth headers or retries are applied.
func (c *Client) FetchAsset(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Path: path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Path: path, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Path: path, Body: body}
	}
	return body, nil
}
