package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/stillon/choremane/internal/model"
)

func pageQuery(page, limit int) url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	return q
}

// ListChores fetches one page of active chores, ordered by due date.
func (c *Client) ListChores(ctx context.Context, page, limit int) ([]model.Chore, error) {
	var chores []model.Chore
	if err := c.do(ctx, http.MethodGet, "/chores", pageQuery(page, limit), nil, &chores); err != nil {
		return nil, err
	}
	return chores, nil
}

// ListArchivedChores fetches one page of archived chores.
func (c *Client) ListArchivedChores(ctx context.Context, page, limit int) ([]model.Chore, error) {
	var chores []model.Chore
	if err := c.do(ctx, http.MethodGet, "/chores/archived", pageQuery(page, limit), nil, &chores); err != nil {
		return nil, err
	}
	return chores, nil
}

// ChoreCounts fetches the server-computed per-bucket totals.
func (c *Client) ChoreCounts(ctx context.Context) (model.ChoreCounts, error) {
	var counts model.ChoreCounts
	err := c.do(ctx, http.MethodGet, "/chores/count", nil, nil, &counts)
	return counts, err
}

// CreateChore posts a new chore. The response carries only the assigned id.
func (c *Client) CreateChore(ctx context.Context, chore model.Chore) (model.CreateChoreResponse, error) {
	var resp model.CreateChoreResponse
	err := c.do(ctx, http.MethodPost, "/chores", nil, chore, &resp)
	return resp, err
}

// UpdateChore puts the full chore payload. The echo may omit fields the
// caller sent; the chore store reconciles.
func (c *Client) UpdateChore(ctx context.Context, id int64, chore model.Chore) (model.Chore, error) {
	var updated model.Chore
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("/chores/%d", id), nil, chore, &updated)
	return updated, err
}

// MarkChoreDone records a completion. A 409 means the chore was already
// completed in the current period and is surfaced as *AlreadyDoneError with
// the server's last_done when the conflict payload carries one.
func (c *Client) MarkChoreDone(ctx context.Context, id int64, doneBy string) (model.MarkDoneResponse, error) {
	var resp model.MarkDoneResponse
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("/chores/%d/done", id), nil, model.MarkDoneRequest{DoneBy: doneBy}, &resp)
	if err != nil {
		var he *HTTPError
		if errors.As(err, &he) && he.StatusCode == http.StatusConflict {
			return resp, decodeConflict(he.Body)
		}
		return resp, err
	}
	return resp, nil
}

func decodeConflict(body []byte) *AlreadyDoneError {
	var wrapper struct {
		Detail model.ConflictDetail `json:"detail"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return &AlreadyDoneError{}
	}
	return &AlreadyDoneError{
		Message:  wrapper.Detail.Message,
		LastDone: wrapper.Detail.LastDone,
	}
}

// ArchiveChore moves a chore out of the active set.
func (c *Client) ArchiveChore(ctx context.Context, id int64) (model.MessageResponse, error) {
	var resp model.MessageResponse
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("/chores/%d/archive", id), nil, nil, &resp)
	return resp, err
}

// UnarchiveChore restores an archived chore to the active set.
func (c *Client) UnarchiveChore(ctx context.Context, id int64) (model.MessageResponse, error) {
	var resp model.MessageResponse
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("/chores/%d/unarchive", id), nil, nil, &resp)
	return resp, err
}

// Undo reverts the action recorded in a log entry.
func (c *Client) Undo(ctx context.Context, logID int64) (model.MessageResponse, error) {
	var resp model.MessageResponse
	err := c.do(ctx, http.MethodPost, "/undo", nil, model.UndoRequest{LogID: logID}, &resp)
	return resp, err
}

// HouseholdHealth fetches the server-computed 0-100 freshness score.
func (c *Client) HouseholdHealth(ctx context.Context) (int, error) {
	var resp struct {
		Score int `json:"score"`
	}
	err := c.do(ctx, http.MethodGet, "/chores/household-health", nil, nil, &resp)
	return resp.Score, err
}
