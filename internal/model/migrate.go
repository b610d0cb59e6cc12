package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dailycheck/checklistbot/internal/errors"
)

// SchemaVersion is the current version stamped into the persisted document.
// Version 1 is the legacy shape: per-user `tasks` (array of strings) plus
// `done` (array of integer indices), no version field.
const SchemaVersion = 2

const schemaVersionKey = "schema_version"

// MigrationReport summarizes what a document migration did.
type MigrationReport struct {
	DetectedVersion int `json:"detected_version"`
	UsersTotal      int `json:"users_total"`
	UsersMigrated   int `json:"users_migrated"`
	UsersBackfilled int `json:"users_backfilled"`
}

// Changed reports whether the migration altered the document and the result
// should be persisted.
func (r MigrationReport) Changed() bool {
	return r.DetectedVersion < SchemaVersion || r.UsersMigrated > 0 || r.UsersBackfilled > 0
}

// legacyUser is the version-1 per-user record.
type legacyUser struct {
	Tasks []string `json:"tasks"`
	Done  []int    `json:"done"`
}

// DecodeDocument parses the raw persisted document and migrates every user
// record to the current schema. Migration is idempotent: a second pass over
// already-migrated data reports no changes.
func DecodeDocument(data []byte, now time.Time) (map[string]*UserState, MigrationReport, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, MigrationReport{}, errors.CorruptDataError(err, "persisted store is not a JSON object")
	}

	report := MigrationReport{DetectedVersion: detectVersion(raw)}
	delete(raw, schemaVersionKey)

	users := make(map[string]*UserState, len(raw))
	for id, rec := range raw {
		u, migrated, err := decodeUser(id, rec, now)
		if err != nil {
			return nil, report, err
		}
		if migrated {
			report.UsersMigrated++
		}
		if u.EnsureDefaults() && !migrated {
			report.UsersBackfilled++
		}
		users[id] = u
	}
	report.UsersTotal = len(users)
	return users, report, nil
}

// EncodeDocument serializes the user table with the current schema stamp.
func EncodeDocument(users map[string]*UserState) ([]byte, error) {
	doc := make(map[string]any, len(users)+1)
	doc[schemaVersionKey] = SchemaVersion
	for id, u := range users {
		doc[id] = u
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, errors.SeverityError, "failed to marshal store")
	}
	return data, nil
}

// detectVersion sniffs the document version. An explicit stamp wins; without
// one the document predates versioning and is treated as version 1.
func detectVersion(raw map[string]json.RawMessage) int {
	if rec, ok := raw[schemaVersionKey]; ok {
		var v int
		if err := json.Unmarshal(rec, &v); err == nil && v > 0 {
			return v
		}
	}
	return 1
}

// decodeUser parses one user record, converting the legacy shape when found.
// Legacy detection is structural: a `tasks` array of strings marks version 1,
// since the modern record keeps tasks inside the `checklists` object.
func decodeUser(id string, rec json.RawMessage, now time.Time) (*UserState, bool, error) {
	if legacy, ok := sniffLegacy(rec); ok {
		return migrateLegacyUser(id, legacy, now), true, nil
	}
	u := &UserState{ID: id}
	if err := json.Unmarshal(rec, u); err != nil {
		return nil, false, errors.CorruptDataError(err, "unreadable user record").
			WithContext("user_id", id)
	}
	u.ID = id
	return u, false, nil
}

func sniffLegacy(rec json.RawMessage) (legacyUser, bool) {
	var probe struct {
		Tasks      []string                   `json:"tasks"`
		Done       []int                      `json:"done"`
		Checklists map[string]json.RawMessage `json:"checklists"`
	}
	if err := json.Unmarshal(rec, &probe); err != nil {
		return legacyUser{}, false
	}
	if probe.Checklists != nil || probe.Tasks == nil {
		return legacyUser{}, false
	}
	return legacyUser{Tasks: probe.Tasks, Done: probe.Done}, true
}

// migrateLegacyUser converts each string+index-membership pair into a Task
// with a fresh id, preserving order and completion flags. The legacy fields
// are discarded.
func migrateLegacyUser(id string, legacy legacyUser, now time.Time) *UserState {
	u := NewUserState(id)
	done := make(map[int]bool, len(legacy.Done))
	for _, i := range legacy.Done {
		done[i] = true
	}
	daily := u.Daily()
	for i, text := range legacy.Tasks {
		daily.Tasks = append(daily.Tasks, &Task{
			ID:        uuid.NewString(),
			Text:      text,
			CreatedAt: now,
			Completed: done[i],
		})
	}
	return u
}
