package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stillon/choremane/internal/localstore"
	"github.com/stillon/choremane/internal/model"
	"github.com/stillon/choremane/internal/state"
)

const tickInterval = 60 * time.Second

// Scheduler fires due-chore reminders at the user's configured clock times.
// Each slot fires at most once per day; the last fired slot is recorded in
// the local store so a restart inside the same minute cannot double-send.
type Scheduler struct {
	mu     sync.RWMutex
	sender Sender
	store  *localstore.Store
	chores *state.ChoreStore
	logger *slog.Logger
	now    func() time.Time
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a reminder scheduler.
func NewScheduler(sender Sender, store *localstore.Store, chores *state.ChoreStore, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		sender: sender,
		store:  store,
		chores: chores,
		logger: logger,
		now:    time.Now,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick()
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Tick evaluates the reminder schedule once against the current minute.
func (s *Scheduler) Tick() {
	settings := s.Settings()
	if !settings.Enabled {
		return
	}

	now := s.now()
	slot := now.Format("15:04")
	if !containsSlot(settings.Times, slot) {
		return
	}

	ref := now.Format("2006-01-02") + " " + slot
	if last, ok, _ := s.store.Get(localstore.KeyLastNotification); ok && last == ref {
		return
	}

	due := s.dueCount(now)
	if due == 0 {
		// Record anyway so the slot does not re-evaluate every tick of
		// this minute.
		s.recordFired(ref)
		return
	}

	sub, ok := s.subscription()
	if !ok {
		s.logger.Debug("reminder slot fired without a push subscription", "slot", slot)
		s.recordFired(ref)
		return
	}

	body := fmt.Sprintf("You have %d chores due today", due)
	if due == 1 {
		body = "You have 1 chore due today"
	}
	err := s.sender.Send(sub, Payload{
		Title: "Choremane",
		Body:  body,
		URL:   "/",
		Tag:   "chores-due",
	})
	switch {
	case errors.Is(err, ErrExpired):
		s.logger.Info("dropping expired push subscription")
		if delErr := s.store.Delete(localstore.KeyPushSubscription); delErr != nil {
			s.logger.Warn("failed to drop subscription", "error", delErr)
		}
	case err != nil:
		s.logger.Error("failed to send reminder", "error", err)
	default:
		s.logger.Info("reminder sent", "slot", slot, "due", due)
	}
	s.recordFired(ref)
}

// dueCount counts chores needing attention today: overdue plus due today.
func (s *Scheduler) dueCount(now time.Time) int {
	counts := s.chores.Buckets(now).Counts
	return counts.Overdue + counts.Today
}

func (s *Scheduler) recordFired(ref string) {
	if err := s.store.Set(localstore.KeyLastNotification, ref); err != nil {
		s.logger.Warn("failed to record fired slot", "error", err)
	}
}

// Settings returns the persisted reminder schedule, or the disabled
// default when none is stored.
func (s *Scheduler) Settings() model.NotificationSettings {
	var settings model.NotificationSettings
	ok, err := s.store.GetJSON(localstore.KeyNotificationSettings, &settings)
	if err != nil || !ok {
		return model.DefaultNotificationSettings()
	}
	return settings
}

// UpdateSettings validates and persists a new reminder schedule.
func (s *Scheduler) UpdateSettings(settings model.NotificationSettings) error {
	for _, slot := range settings.Times {
		if _, err := time.Parse("15:04", slot); err != nil {
			return fmt.Errorf("invalid reminder time %q", slot)
		}
	}
	return s.store.SetJSON(localstore.KeyNotificationSettings, settings)
}

// SetSubscription persists the device's push subscription.
func (s *Scheduler) SetSubscription(sub model.PushSubscription) error {
	return s.store.SetJSON(localstore.KeyPushSubscription, sub)
}

// ClearSubscription removes the stored push subscription.
func (s *Scheduler) ClearSubscription() error {
	return s.store.Delete(localstore.KeyPushSubscription)
}

func (s *Scheduler) subscription() (model.PushSubscription, bool) {
	var sub model.PushSubscription
	ok, err := s.store.GetJSON(localstore.KeyPushSubscription, &sub)
	if err != nil || !ok || sub.Endpoint == "" {
		return model.PushSubscription{}, false
	}
	return sub, true
}

func containsSlot(times []string, slot string) bool {
	for _, t := range times {
		if t == slot {
			return true
		}
	}
	return false
}
