package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecodeDocument(t *testing.T) {
	now := time.Date(2026, 8, 25, 8, 0, 0, 0, time.UTC)

	t.Run("legacy tasks and done convert to Daily", func(t *testing.T) {
		doc := []byte(`{
			"42": {"tasks": ["buy milk", "walk the dog", "write report"], "done": [0, 2]}
		}`)
		users, report, err := DecodeDocument(doc, now)
		require.NoError(t, err)
		require.Equal(t, 1, report.DetectedVersion)
		require.Equal(t, 1, report.UsersMigrated)
		require.True(t, report.Changed())

		u := users["42"]
		require.NotNil(t, u)
		daily := u.Daily()
		require.Equal(t, []string{"buy milk", "walk the dog", "write report"}, taskTexts(daily))
		require.True(t, daily.Tasks[0].Completed)
		require.False(t, daily.Tasks[1].Completed)
		require.True(t, daily.Tasks[2].Completed)
		require.NotEmpty(t, daily.Tasks[0].ID)
		require.NotEqual(t, daily.Tasks[0].ID, daily.Tasks[1].ID)
	})

	t.Run("migration is idempotent", func(t *testing.T) {
		doc := []byte(`{"42": {"tasks": ["buy milk"], "done": []}}`)
		users, _, err := DecodeDocument(doc, now)
		require.NoError(t, err)

		encoded, err := EncodeDocument(users)
		require.NoError(t, err)

		again, report, err := DecodeDocument(encoded, now)
		require.NoError(t, err)
		require.Equal(t, SchemaVersion, report.DetectedVersion)
		require.Zero(t, report.UsersMigrated)
		require.Zero(t, report.UsersBackfilled)
		require.False(t, report.Changed())
		require.Equal(t, taskTexts(users["42"].Daily()), taskTexts(again["42"].Daily()))
	})

	t.Run("modern record missing settings is backfilled", func(t *testing.T) {
		doc := []byte(`{
			"schema_version": 2,
			"7": {"is_premium": false, "checklists": {"Daily": {"name": "Daily", "tasks": []}}}
		}`)
		users, report, err := DecodeDocument(doc, now)
		require.NoError(t, err)
		require.Equal(t, 1, report.UsersBackfilled)
		require.True(t, report.Changed())
		require.Equal(t, DefaultSettings(), users["7"].Settings)
	})

	t.Run("round trip preserves state", func(t *testing.T) {
		u := NewUserState("42")
		task, err := u.Daily().AddTask("héllo wörld ✓", now)
		require.NoError(t, err)
		u.Daily().ToggleTask(task.ID)
		work, err := u.AddChecklist("Work")
		require.NoError(t, err)
		_, err = work.AddTask("ship it", now)
		require.NoError(t, err)
		exp := now.Add(30 * 24 * time.Hour)
		u.IsPremium = true
		u.PremiumExpires = &exp
		u.PlanTier = PlanStandard

		encoded, err := EncodeDocument(map[string]*UserState{"42": u})
		require.NoError(t, err)
		decoded, report, err := DecodeDocument(encoded, now)
		require.NoError(t, err)
		require.False(t, report.Changed())

		got := decoded["42"]
		require.Equal(t, "42", got.ID)
		require.True(t, got.IsPremium)
		require.True(t, got.PremiumExpires.Equal(exp))
		require.Equal(t, PlanStandard, got.PlanTier)
		require.Equal(t, u.ChecklistOrder, got.ChecklistOrder)
		require.Equal(t, taskTexts(u.Daily()), taskTexts(got.Daily()))
		require.True(t, got.Daily().Tasks[0].Completed)
	})

	t.Run("empty table round trips", func(t *testing.T) {
		encoded, err := EncodeDocument(map[string]*UserState{})
		require.NoError(t, err)
		users, report, err := DecodeDocument(encoded, now)
		require.NoError(t, err)
		require.Empty(t, users)
		require.False(t, report.Changed())
	})

	t.Run("garbage is corrupt data", func(t *testing.T) {
		_, _, err := DecodeDocument([]byte("not json at all"), now)
		require.Error(t, err)
	})
}
