package state

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/stillon/choremane/internal/api"
	"github.com/stillon/choremane/internal/bucket"
	"github.com/stillon/choremane/internal/health"
	"github.com/stillon/choremane/internal/model"
)

const defaultPageSize = 20

// User-facing failure messages. Fetch and mutation errors are captured here
// rather than crashing the view; the last one is exposed via ErrorMessage.
const (
	msgFetchFailed     = "Failed to fetch chores. Please try again later."
	msgAddFailed       = "Failed to add chore. Please try again."
	msgUpdateFailed    = "Failed to update chore. Please try again."
	msgMarkDoneFailed  = "Failed to mark chore as done. Please try again."
	msgArchiveFailed   = "Failed to archive chore. Please try again."
	msgUnarchiveFailed = "Failed to restore chore. Please try again."
	msgAlreadyDone     = "Chore already completed today"
)

// ChoreStore holds the active and archived chore collections with
// optimistic local updates reconciled against server responses.
type ChoreStore struct {
	mu       sync.RWMutex
	api      *api.Client
	session  *SessionStore
	logs     *LogStore
	logger   *slog.Logger
	pageSize int

	active          []model.Chore
	archived        []model.Chore
	hasMore         bool
	hasMoreArchived bool
	counts          model.ChoreCounts
	errMsg          string
}

// NewChoreStore creates a chore store backed by the given API client.
func NewChoreStore(client *api.Client, session *SessionStore, logs *LogStore, logger *slog.Logger) *ChoreStore {
	return &ChoreStore{
		api:      client,
		session:  session,
		logs:     logs,
		logger:   logger,
		pageSize: defaultPageSize,
	}
}

// FetchChores loads one page of active chores. Page 1 replaces the
// collection; later pages append, skipping ids already present. A failure
// keeps the current collection and records a user-facing message.
func (s *ChoreStore) FetchChores(ctx context.Context, page int) error {
	chores, err := s.api.ListChores(ctx, page, s.pageSize)
	if err != nil {
		s.logger.Error("failed to fetch chores", "page", page, "error", err)
		s.setError(msgFetchFailed)
		return err
	}

	s.mu.Lock()
	if page <= 1 {
		s.active = chores
	} else {
		s.active = appendNew(s.active, chores)
	}
	s.hasMore = len(chores) == s.pageSize
	s.errMsg = ""
	s.mu.Unlock()
	return nil
}

// FetchArchivedChores loads one page of archived chores, same paging rules
// as FetchChores.
func (s *ChoreStore) FetchArchivedChores(ctx context.Context, page int) error {
	chores, err := s.api.ListArchivedChores(ctx, page, s.pageSize)
	if err != nil {
		s.logger.Error("failed to fetch archived chores", "page", page, "error", err)
		s.setError(msgFetchFailed)
		return err
	}

	s.mu.Lock()
	if page <= 1 {
		s.archived = chores
	} else {
		s.archived = appendNew(s.archived, chores)
	}
	s.hasMoreArchived = len(chores) == s.pageSize
	s.mu.Unlock()
	return nil
}

// FetchCounts refreshes the server-computed bucket totals. Best effort:
// failure keeps the previous counts.
func (s *ChoreStore) FetchCounts(ctx context.Context) error {
	counts, err := s.api.ChoreCounts(ctx)
	if err != nil {
		s.logger.Warn("failed to fetch chore counts", "error", err)
		return err
	}
	s.mu.Lock()
	s.counts = counts
	s.mu.Unlock()
	return nil
}

// AddChore creates a chore and inserts it locally with the assigned id.
func (s *ChoreStore) AddChore(ctx context.Context, chore model.Chore) (model.Chore, error) {
	resp, err := s.api.CreateChore(ctx, chore)
	if err != nil {
		s.logger.Error("failed to add chore", "name", chore.Name, "error", err)
		s.setError(msgAddFailed)
		return model.Chore{}, err
	}

	created := chore
	created.ID = resp.ID
	created.Done = false
	created.DoneBy = nil
	created.Archived = false

	s.mu.Lock()
	s.active = appendNew(s.active, []model.Chore{created})
	s.errMsg = ""
	s.mu.Unlock()

	s.refreshAfterMutation(ctx)
	return created, nil
}

// UpdateChore saves edits and merges the server echo into the local entry.
// The echo may omit fields (the backend replies with a bare status message),
// so the request's interval and due date are re-applied over it.
func (s *ChoreStore) UpdateChore(ctx context.Context, id int64, chore model.Chore) (model.Chore, error) {
	echo, err := s.api.UpdateChore(ctx, id, chore)
	if err != nil {
		s.logger.Error("failed to update chore", "id", id, "error", err)
		s.setError(msgUpdateFailed)
		return model.Chore{}, err
	}

	s.mu.Lock()
	merged := chore
	merged.ID = id
	if i := indexOf(s.active, id); i >= 0 {
		s.active[i] = mergeChore(s.active[i], echo, chore)
		merged = s.active[i]
	} else if i := indexOf(s.archived, id); i >= 0 {
		s.archived[i] = mergeChore(s.archived[i], echo, chore)
		merged = s.archived[i]
	}
	s.errMsg = ""
	s.mu.Unlock()

	s.refreshAfterMutation(ctx)
	return merged, nil
}

// mergeChore layers the server echo over the local entry, then re-applies
// the fields the caller set that the echo is known to omit.
func mergeChore(existing, echo, requested model.Chore) model.Chore {
	out := existing
	if echo.Name != "" {
		out.Name = echo.Name
	} else if requested.Name != "" {
		out.Name = requested.Name
	}
	if echo.DoneBy != nil {
		out.DoneBy = echo.DoneBy
	}
	if echo.LastDone != nil {
		out.LastDone = echo.LastDone
	}
	out.IntervalDays = requested.IntervalDays
	if echo.DueDate != "" {
		out.DueDate = echo.DueDate
	}
	if requested.DueDate != "" {
		out.DueDate = requested.DueDate
	}
	out.IsPrivate = requested.IsPrivate
	return out
}

// MarkChoreDone records a completion. The local entry takes the server's
// new due date and completion fields. An already-completed conflict is a
// no-op: the message is surfaced and the entry reconciled with the server's
// last_done, but no error is returned.
func (s *ChoreStore) MarkChoreDone(ctx context.Context, id int64) error {
	doneBy := s.actor()
	resp, err := s.api.MarkChoreDone(ctx, id, doneBy)
	if err != nil {
		var already *api.AlreadyDoneError
		if errors.As(err, &already) {
			msg := already.Message
			if msg == "" {
				msg = msgAlreadyDone
			}
			s.setError(msg)
			if already.LastDone != "" {
				s.reconcileAlreadyDone(id, already.LastDone)
			}
			return nil
		}
		s.logger.Error("failed to mark chore done", "id", id, "error", err)
		s.setError(msgMarkDoneFailed)
		return err
	}

	s.mu.Lock()
	var name string
	if i := indexOf(s.active, id); i >= 0 {
		c := &s.active[i]
		c.Done = true
		c.DueDate = resp.NewDueDate
		last := resp.LastDone
		c.LastDone = &last
		by := resp.DoneBy
		if by == "" {
			by = doneBy
		}
		c.DoneBy = &by
		name = c.Name
	}
	s.errMsg = ""
	s.mu.Unlock()

	// Refresh first: the provisional entry must survive until the feed is
	// fetched again, not be wiped by the refresh it triggered.
	s.refreshAfterMutation(ctx)
	if s.logs != nil && name != "" {
		s.logs.AddLocalEntry(name+" marked as done", model.ActionMarkedDone)
	}
	return nil
}

func (s *ChoreStore) reconcileAlreadyDone(id int64, lastDone string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := indexOf(s.active, id); i >= 0 {
		s.active[i].Done = true
		last := lastDone
		s.active[i].LastDone = &last
	}
}

// ArchiveChore moves a chore from the active to the archived collection.
func (s *ChoreStore) ArchiveChore(ctx context.Context, id int64) error {
	if _, err := s.api.ArchiveChore(ctx, id); err != nil {
		s.logger.Error("failed to archive chore", "id", id, "error", err)
		s.setError(msgArchiveFailed)
		return err
	}

	s.mu.Lock()
	if i := indexOf(s.active, id); i >= 0 {
		c := s.active[i]
		c.Archived = true
		s.active = append(s.active[:i], s.active[i+1:]...)
		s.archived = appendNew(s.archived, []model.Chore{c})
	}
	s.errMsg = ""
	s.mu.Unlock()

	s.refreshAfterMutation(ctx)
	return nil
}

// UnarchiveChore restores an archived chore to the active collection.
func (s *ChoreStore) UnarchiveChore(ctx context.Context, id int64) error {
	if _, err := s.api.UnarchiveChore(ctx, id); err != nil {
		s.logger.Error("failed to restore chore", "id", id, "error", err)
		s.setError(msgUnarchiveFailed)
		return err
	}

	s.mu.Lock()
	if i := indexOf(s.archived, id); i >= 0 {
		c := s.archived[i]
		c.Archived = false
		s.archived = append(s.archived[:i], s.archived[i+1:]...)
		s.active = appendNew(s.active, []model.Chore{c})
	}
	s.errMsg = ""
	s.mu.Unlock()

	s.refreshAfterMutation(ctx)
	return nil
}

// UndoChore flips a completion back locally for immediate feedback. The
// authoritative revert is UndoByLog.
func (s *ChoreStore) UndoChore(ctx context.Context, id int64) {
	s.mu.Lock()
	var name string
	if i := indexOf(s.active, id); i >= 0 {
		s.active[i].Done = false
		name = s.active[i].Name
	}
	s.mu.Unlock()

	if s.logs != nil && name != "" {
		s.logs.AddLocalEntry("Undid completion of "+name, model.ActionUndo)
	}
	_ = s.FetchCounts(ctx)
}

// UndoByLog asks the backend to revert the action recorded in a log entry,
// then refetches everything the revert may have touched.
func (s *ChoreStore) UndoByLog(ctx context.Context, logID int64) error {
	if _, err := s.api.Undo(ctx, logID); err != nil {
		s.logger.Error("failed to undo", "log_id", logID, "error", err)
		s.setError(msgUpdateFailed)
		return err
	}
	_ = s.FetchChores(ctx, 1)
	s.refreshAfterMutation(ctx)
	return nil
}

// refreshAfterMutation refetches the data every mutation can change. Best
// effort; failures are logged by the callees.
func (s *ChoreStore) refreshAfterMutation(ctx context.Context) {
	_ = s.FetchCounts(ctx)
	if s.logs != nil {
		_ = s.logs.Fetch(ctx)
	}
}

func (s *ChoreStore) actor() string {
	if s.session != nil {
		if name := s.session.DisplayName(); name != "" {
			return name
		}
	}
	return "anonymous"
}

// Active returns a copy of the active collection in fetch order.
func (s *ChoreStore) Active() []model.Chore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Chore, len(s.active))
	copy(out, s.active)
	return out
}

// Archived returns a copy of the archived collection.
func (s *ChoreStore) Archived() []model.Chore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Chore, len(s.archived))
	copy(out, s.archived)
	return out
}

// HasMore reports whether another page of active chores may exist.
func (s *ChoreStore) HasMore() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasMore
}

// HasMoreArchived reports whether another page of archived chores may exist.
func (s *ChoreStore) HasMoreArchived() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasMoreArchived
}

// Counts returns the last fetched server-side bucket totals.
func (s *ChoreStore) Counts() model.ChoreCounts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counts
}

// ErrorMessage returns the current user-facing failure message, empty when
// the last operation succeeded.
func (s *ChoreStore) ErrorMessage() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errMsg
}

// ClearError discards the current failure message.
func (s *ChoreStore) ClearError() {
	s.mu.Lock()
	s.errMsg = ""
	s.mu.Unlock()
}

func (s *ChoreStore) setError(msg string) {
	s.mu.Lock()
	s.errMsg = msg
	s.mu.Unlock()
}

// SortedByUrgency returns active chores ordered by normalized due date,
// soonest first, with unresolvable dates last. Each chore's Disabled flag
// reflects whether it is a recurring chore due today.
func (s *ChoreStore) SortedByUrgency(now time.Time) []model.Chore {
	chores := s.Active()
	loc := now.Location()
	for i := range chores {
		chores[i].Disabled = bucket.DisabledToday(chores[i], now)
	}
	sort.SliceStable(chores, func(i, j int) bool {
		di, oki := bucket.Normalize(chores[i].DueDate, loc)
		dj, okj := bucket.Normalize(chores[j].DueDate, loc)
		if oki != okj {
			return oki
		}
		if !oki {
			return false
		}
		return di.Before(dj)
	})
	return chores
}

// SortedArchived returns archived chores ordered by normalized due date,
// soonest first, with unresolvable dates last.
func (s *ChoreStore) SortedArchived(now time.Time) []model.Chore {
	chores := s.Archived()
	loc := now.Location()
	sort.SliceStable(chores, func(i, j int) bool {
		di, oki := bucket.Normalize(chores[i].DueDate, loc)
		dj, okj := bucket.Normalize(chores[j].DueDate, loc)
		if oki != okj {
			return oki
		}
		if !oki {
			return false
		}
		return di.Before(dj)
	})
	return chores
}

// Buckets partitions the active collection by due-date urgency.
func (s *ChoreStore) Buckets(now time.Time) bucket.Result {
	return bucket.Partition(s.Active(), now)
}

// HouseholdHealth computes the local 0-100 freshness score over the active
// collection.
func (s *ChoreStore) HouseholdHealth(now time.Time) int {
	return health.Score(s.Active(), now)
}

func indexOf(chores []model.Chore, id int64) int {
	for i := range chores {
		if chores[i].ID == id {
			return i
		}
	}
	return -1
}

// appendNew appends chores whose ids are not already present.
func appendNew(existing, incoming []model.Chore) []model.Chore {
	seen := make(map[int64]struct{}, len(existing))
	for _, c := range existing {
		seen[c.ID] = struct{}{}
	}
	for _, c := range incoming {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		existing = append(existing, c)
		seen[c.ID] = struct{}{}
	}
	return existing
}
