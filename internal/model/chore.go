package model

// Chore is a recurring task tracked by the backend. Dates travel as ISO
// strings on the wire; the bucket package owns parsing and normalization so
// a malformed date from an import never breaks decoding.
type Chore struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	IntervalDays *int    `json:"interval_days"`
	DueDate      string  `json:"due_date"`
	Done         bool    `json:"done"`
	DoneBy       *string `json:"done_by"`
	LastDone     *string `json:"last_done"`
	Archived     bool    `json:"archived"`
	OwnerEmail   *string `json:"owner_email,omitempty"`
	IsPrivate    bool    `json:"is_private"`

	// Disabled is computed client-side (due today with an interval set);
	// it is never persisted.
	Disabled bool `json:"-"`
}

// Interval returns the recurrence interval in days, or 0 for non-recurring.
func (c Chore) Interval() int {
	if c.IntervalDays == nil {
		return 0
	}
	return *c.IntervalDays
}

// ChoreCounts mirrors GET /chores/count.
type ChoreCounts struct {
	All      int `json:"all"`
	Overdue  int `json:"overdue"`
	Today    int `json:"today"`
	Tomorrow int `json:"tomorrow"`
	ThisWeek int `json:"thisWeek"`
	Upcoming int `json:"upcoming"`
}

// CreateChoreResponse is the id-only echo from POST /chores.
type CreateChoreResponse struct {
	Message string `json:"message"`
	ID      int64  `json:"id"`
}

// MarkDoneRequest identifies the actor completing a chore.
type MarkDoneRequest struct {
	DoneBy string `json:"done_by"`
}

// MarkDoneResponse is returned by PUT /chores/{id}/done on success. The
// backend computes the next due date from the chore's interval.
type MarkDoneResponse struct {
	Message    string `json:"message"`
	NewDueDate string `json:"new_due_date"`
	LastDone   string `json:"last_done"`
	DoneBy     string `json:"done_by"`
}

// ConflictDetail is the 409 payload when a chore was already completed in
// the current period.
type ConflictDetail struct {
	Message  string `json:"message"`
	LastDone string `json:"last_done"`
}

// UndoRequest targets a log entry for backend-authoritative undo.
type UndoRequest struct {
	LogID int64 `json:"log_id"`
}

// MessageResponse is the generic status echo used by several endpoints.
type MessageResponse struct {
	Message string `json:"message"`
}
