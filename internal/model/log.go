package model

import "encoding/json"

// Log action kinds appended by the backend on every mutating operation.
const (
	ActionCreated    = "created"
	ActionUpdated    = "updated"
	ActionMarkedDone = "marked_done"
	ActionArchived   = "archived"
	ActionUnarchived = "unarchived"
	ActionUndo       = "undo"
	ActionImport     = "import"
	ActionExport     = "export"
)

// LogEntry is a wire-level activity record from GET /logs. ActionDetails may
// arrive as a JSON object or as a JSON-encoded string depending on how the
// entry was written; it is kept raw here and normalized by the log store.
type LogEntry struct {
	ID            int64           `json:"id"`
	ChoreID       *int64          `json:"chore_id"`
	DoneBy        *string         `json:"done_by"`
	DoneAt        string          `json:"done_at"`
	ActionDetails json.RawMessage `json:"action_details"`
	ActionType    string          `json:"action_type"`
}

// ExportData is the full dataset snapshot from GET /export and the payload
// accepted by POST /import.
type ExportData struct {
	Chores []Chore    `json:"chores"`
	Logs   []LogEntry `json:"logs,omitempty"`
}

// ImportResult summarizes a POST /import.
type ImportResult struct {
	Message        string `json:"message"`
	ImportedChores int    `json:"imported_chores"`
	ImportedLogs   int    `json:"imported_logs"`
}
