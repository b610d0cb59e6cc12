// Package scheduler runs the daily reset: a periodic tick that clears
// completion flags for every user whose local reset time fell inside the
// elapsed window, persists the table once, then notifies best effort.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dailycheck/checklistbot/internal/bot"
	"github.com/dailycheck/checklistbot/internal/logfields"
	"github.com/dailycheck/checklistbot/internal/metrics"
	"github.com/dailycheck/checklistbot/internal/model"
	"github.com/dailycheck/checklistbot/internal/store"
)

// Resetter performs one reset pass over the store. Users carry their own
// daily_reset_time/timezone settings; the configured defaults cover users
// who never changed them.
type Resetter struct {
	store     *store.Store
	transport bot.Transport
	recorder  metrics.Recorder
	now       func() time.Time

	// The config watcher swaps the defaults while the tick goroutine reads
	// them, so they live behind the mutex.
	mu              sync.RWMutex
	defaultTime     string
	defaultTimezone string
}

// NewResetter wires a reset pass. A nil recorder gets the noop recorder.
func NewResetter(st *store.Store, tr bot.Transport, rec metrics.Recorder, defaultTime, defaultTimezone string) *Resetter {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Resetter{
		store:           st,
		transport:       tr,
		recorder:        rec,
		defaultTime:     defaultTime,
		defaultTimezone: defaultTimezone,
		now:             time.Now,
	}
}

// WithClock overrides the wall clock (tests).
func (r *Resetter) WithClock(now func() time.Time) *Resetter {
	r.now = now
	return r
}

// SetDefaults swaps the fallback reset time and timezone (config hot-reload).
func (r *Resetter) SetDefaults(defaultTime, defaultTimezone string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultTime = defaultTime
	r.defaultTimezone = defaultTimezone
}

func (r *Resetter) defaults() (string, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultTime, r.defaultTimezone
}

// Run resets every user whose reset instant lies in (from, to]. The whole
// table is persisted once at the end, then notifications go out after the
// store lock is released. A notification failure for one user never aborts
// the rest.
func (r *Resetter) Run(ctx context.Context, from, to time.Time) {
	r.recorder.IncResetRun()

	changed, err := r.store.UpdateAll(func(u *model.UserState) bool {
		if !r.due(u, from, to) {
			return false
		}
		for _, c := range u.Checklists {
			c.ResetAll()
		}
		return true
	})
	if err != nil {
		slog.Error("Daily reset failed to persist", logfields.Error(err))
		return
	}
	if len(changed) == 0 {
		return
	}

	r.recorder.AddResetUsers(len(changed))
	slog.Info("Daily reset applied", logfields.Users(len(changed)))

	now := r.now()
	for _, u := range changed {
		if !u.Settings.NotificationsEnabled {
			continue
		}
		text, kb := bot.DailyResetNotification(u, now)
		if err := r.transport.SendMessage(ctx, u.ID, text, kb); err != nil {
			r.recorder.IncNotifyFailure()
			slog.Warn("Failed to notify user after reset",
				logfields.UserID(u.ID), logfields.Error(err))
		}
	}
}

// due reports whether the user's local reset time has an instant inside
// (from, to]. The window can span midnight in the user's zone, so both the
// window-start day and window-end day are checked.
func (r *Resetter) due(u *model.UserState, from, to time.Time) bool {
	defaultTime, defaultTimezone := r.defaults()

	resetAt := u.Settings.DailyResetTime
	if resetAt == "" {
		resetAt = defaultTime
	}
	tod, err := time.Parse("15:04", resetAt)
	if err != nil {
		tod, _ = time.Parse("15:04", defaultTime)
	}

	zone := u.Settings.Timezone
	if zone == "" {
		zone = defaultTimezone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		loc = time.UTC
	}

	for _, day := range []time.Time{from.In(loc), to.In(loc)} {
		instant := time.Date(day.Year(), day.Month(), day.Day(),
			tod.Hour(), tod.Minute(), 0, 0, loc)
		if instant.After(from) && !instant.After(to) {
			return true
		}
	}
	return false
}
