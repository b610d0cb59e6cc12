// Package store persists the whole user-state table as a single JSON
// document, loaded once at startup and rewritten atomically on every
// committed mutation. A single mutex serializes every logical
// read-modify-write, so concurrent handlers on the same user are linearized
// and handlers on different users cannot lose each other's writes.
package store

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dailycheck/checklistbot/internal/errors"
	"github.com/dailycheck/checklistbot/internal/logfields"
	"github.com/dailycheck/checklistbot/internal/metrics"
	"github.com/dailycheck/checklistbot/internal/model"
)

// Store owns all UserState values. Callers never hold references into the
// table: reads return deep copies and mutations go through Update/UpdateAll,
// which run the caller's function on a copy and commit it atomically.
type Store struct {
	path     string
	recorder metrics.Recorder

	mu    sync.Mutex
	users map[string]*model.UserState

	report model.MigrationReport
}

// Open loads the store from path. A missing file yields an empty table. An
// unparseable file is preserved under a timestamped backup name and replaced
// with an empty table: durability over strict correctness.
func Open(path string, rec metrics.Recorder) (*Store, error) {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	s := &Store{
		path:     path,
		recorder: rec,
		users:    map[string]*model.UserState{},
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, errors.IOError(err, "failed to read store file").WithContext("path", path)
	}

	users, report, decodeErr := model.DecodeDocument(data, time.Now())
	if decodeErr != nil {
		backup := fmt.Sprintf("%s.corrupt-%s", path, time.Now().UTC().Format("20060102T150405"))
		if renameErr := os.Rename(path, backup); renameErr != nil {
			slog.Error("Failed to back up corrupt store file", logfields.Error(renameErr))
		} else {
			slog.Error("Store file is corrupt, starting with an empty table",
				slog.String("backup", backup), logfields.Error(decodeErr))
		}
		return s, nil
	}

	s.users = users
	s.report = report
	if report.Changed() {
		slog.Info("Store schema migrated",
			slog.Int("from_version", report.DetectedVersion),
			slog.Int("users_migrated", report.UsersMigrated),
			slog.Int("users_backfilled", report.UsersBackfilled))
		if err := s.saveLocked(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// MigrationReport returns what the load-time migration did.
func (s *Store) MigrationReport() model.MigrationReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// Len returns the number of known users.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// Get returns a deep copy of a user's state.
func (s *Store) Get(id string) (*model.UserState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, false
	}
	return u.Clone(), true
}

// EnsureUser creates the default state for an unknown user and persists it.
// Existing users get schema defaults backfilled in place. Either way the
// returned state is a consistent deep copy.
func (s *Store) EnsureUser(id string) (*model.UserState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		u = model.NewUserState(id)
		s.users[id] = u
		if err := s.saveLocked(); err != nil {
			delete(s.users, id)
			return nil, err
		}
		return u.Clone(), nil
	}
	if u.EnsureDefaults() {
		if err := s.saveLocked(); err != nil {
			return nil, err
		}
	}
	return u.Clone(), nil
}

// Update runs fn inside the lock against a copy of the user's state (created
// on first use when absent) and commits the result with one atomic snapshot
// write. If fn returns an error, nothing is committed. If the write fails,
// the in-memory table is rolled back so memory and disk stay consistent.
func (s *Store) Update(id string, fn func(u *model.UserState) error) (*model.UserState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.users[id]
	var work *model.UserState
	if existed {
		work = prev.Clone()
		work.EnsureDefaults()
	} else {
		work = model.NewUserState(id)
	}

	if err := fn(work); err != nil {
		return nil, err
	}

	s.users[id] = work
	if err := s.saveLocked(); err != nil {
		if existed {
			s.users[id] = prev
		} else {
			delete(s.users, id)
		}
		return nil, err
	}
	return work.Clone(), nil
}

// UpdateAll runs fn for every user and persists the whole table once at the
// end. A panic in fn for one user must not halt the loop; it is recovered,
// logged and that user's change is skipped.
func (s *Store) UpdateAll(fn func(u *model.UserState) bool) ([]*model.UserState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := make([]*model.UserState, 0, len(s.users))
	next := make(map[string]*model.UserState, len(s.users))
	for id, prev := range s.users {
		work := prev.Clone()
		work.EnsureDefaults()
		if applyIsolated(work, fn) {
			changed = append(changed, work.Clone())
		}
		next[id] = work
	}

	if len(changed) == 0 {
		return nil, nil
	}

	prevTable := s.users
	s.users = next
	if err := s.saveLocked(); err != nil {
		s.users = prevTable
		return nil, err
	}
	return changed, nil
}

// applyIsolated isolates one per-user iteration from the rest of the loop.
func applyIsolated(u *model.UserState, fn func(u *model.UserState) bool) (changed bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Recovered panic during per-user update",
				logfields.UserID(u.ID), slog.Any("panic", r))
			changed = false
		}
	}()
	return fn(u)
}

// saveLocked writes the whole table atomically: the document is fully
// written to a temporary file which is renamed into place, so a concurrent
// reader or a crash mid-write never observes a truncated file. The caller
// must hold the mutex.
func (s *Store) saveLocked() error {
	start := time.Now()

	data, err := model.EncodeDocument(s.users)
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return errors.IOError(err, "failed to write temporary store file").WithContext("path", tmp)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return errors.IOError(err, "failed to replace store file").WithContext("path", s.path)
	}

	s.recorder.ObserveSaveDuration(time.Since(start))
	return nil
}
