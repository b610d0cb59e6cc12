package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dailycheck/checklistbot/internal/errors"
	"github.com/dailycheck/checklistbot/internal/model"
)

func TestCmdStart(t *testing.T) {
	h, st, tr, _ := newTestHandler(t)
	require.NoError(t, h.HandleCommand(context.Background(), "42", "start", nil))
	require.Contains(t, tr.lastSend(t).Text, "/add")

	u, ok := st.Get("42")
	require.True(t, ok)
	require.NotNil(t, u.Daily())
}

func TestCmdAdd(t *testing.T) {
	ctx := context.Background()

	t.Run("free user adds to Daily", func(t *testing.T) {
		h, st, tr, _ := newTestHandler(t)
		require.NoError(t, h.HandleCommand(ctx, "42", "add", []string{"buy", "milk"}))
		require.Contains(t, tr.lastSend(t).Text, "Task added to Daily: buy milk")

		u, _ := st.Get("42")
		require.Len(t, u.Daily().Tasks, 1)
		require.Equal(t, "buy milk", u.Daily().Tasks[0].Text)
	})

	t.Run("first word naming no checklist is part of the text", func(t *testing.T) {
		h, st, _, _ := newTestHandler(t)
		require.NoError(t, h.HandleCommand(ctx, "42", "add", []string{"Work", "report"}))

		u, _ := st.Get("42")
		require.Equal(t, "Work report", u.Daily().Tasks[0].Text)
	})

	t.Run("targeting a named checklist needs premium", func(t *testing.T) {
		h, st, tr, _ := newTestHandler(t)
		grantPremium(t, st, "42")
		require.NoError(t, h.HandleCommand(ctx, "42", "new_checklist", []string{"Work"}))
		require.NoError(t, h.HandleCommand(ctx, "42", "add", []string{"Work", "write", "report"}))
		require.Contains(t, tr.lastSend(t).Text, "Task added to Work: write report")

		// Lapse the grant; the same add now upsells and the downgrade persists.
		h.WithClock(func() time.Time { return testNow.AddDate(0, 0, 31) })
		require.NoError(t, h.HandleCommand(ctx, "42", "add", []string{"Work", "another"}))
		require.Equal(t, upsellText, tr.lastSend(t).Text)

		u, _ := st.Get("42")
		require.False(t, u.IsPremium)
		require.Len(t, u.Checklist("Work").Tasks, 1)
	})

	t.Run("validation failure becomes a reply, not an error", func(t *testing.T) {
		h, _, tr, _ := newTestHandler(t)
		require.NoError(t, h.HandleCommand(ctx, "42", "add", []string{strings.Repeat("x", model.MaxTaskTextLen+1)}))
		require.Contains(t, tr.lastSend(t).Text, "too long")
	})

	t.Run("no arguments shows usage", func(t *testing.T) {
		h, _, tr, _ := newTestHandler(t)
		require.NoError(t, h.HandleCommand(ctx, "42", "add", nil))
		require.Contains(t, tr.lastSend(t).Text, "Usage:")
	})
}

func TestCmdShow(t *testing.T) {
	ctx := context.Background()

	t.Run("renders the daily checklist with toggle buttons", func(t *testing.T) {
		h, _, tr, _ := newTestHandler(t)
		require.NoError(t, h.HandleCommand(ctx, "42", "add", []string{"buy milk"}))
		require.NoError(t, h.HandleCommand(ctx, "42", "checklist", nil))

		msg := tr.lastSend(t)
		require.Contains(t, msg.Text, "Daily")
		require.Contains(t, msg.Text, "0 of 1 done (0%)")
		require.True(t, strings.HasPrefix(msg.Keyboard[0][0].Callback, "toggle_"))
	})

	t.Run("unknown checklist", func(t *testing.T) {
		h, _, tr, _ := newTestHandler(t)
		require.NoError(t, h.HandleCommand(ctx, "42", "show", []string{"Nope"}))
		require.Contains(t, tr.lastSend(t).Text, "not found")
	})
}

func TestCmdNewChecklist(t *testing.T) {
	ctx := context.Background()

	t.Run("free user is upsold", func(t *testing.T) {
		h, st, tr, _ := newTestHandler(t)
		require.NoError(t, h.HandleCommand(ctx, "42", "new_checklist", []string{"Work"}))
		require.Equal(t, upsellText, tr.lastSend(t).Text)

		u, _ := st.Get("42")
		require.Len(t, u.Checklists, 1)
	})

	t.Run("premium user creates up to the limit", func(t *testing.T) {
		h, st, tr, _ := newTestHandler(t)
		grantPremium(t, st, "42")
		for i := 0; i < model.MaxChecklists-1; i++ {
			name := "List " + string(rune('A'+i))
			require.NoError(t, h.HandleCommand(ctx, "42", "new_checklist", []string{name}))
		}
		u, _ := st.Get("42")
		require.Len(t, u.Checklists, model.MaxChecklists)

		require.NoError(t, h.HandleCommand(ctx, "42", "new_checklist", []string{"Overflow"}))
		require.Contains(t, tr.lastSend(t).Text, "limit")
		u, _ = st.Get("42")
		require.Len(t, u.Checklists, model.MaxChecklists)
	})

	t.Run("duplicate name rejected with a reply", func(t *testing.T) {
		h, st, tr, _ := newTestHandler(t)
		grantPremium(t, st, "42")
		require.NoError(t, h.HandleCommand(ctx, "42", "new_checklist", []string{"Work"}))
		require.NoError(t, h.HandleCommand(ctx, "42", "new_checklist", []string{"Work"}))
		require.Contains(t, tr.lastSend(t).Text, "already")
	})
}

func TestCmdDeleteChecklist(t *testing.T) {
	ctx := context.Background()

	t.Run("free user is upsold before any prompt", func(t *testing.T) {
		h, _, tr, _ := newTestHandler(t)
		require.NoError(t, h.HandleCommand(ctx, "42", "delete_checklist", []string{"Work"}))
		require.Equal(t, upsellText, tr.lastSend(t).Text)
	})

	t.Run("premium user gets a confirm prompt carrying the target", func(t *testing.T) {
		h, st, tr, _ := newTestHandler(t)
		grantPremium(t, st, "42")
		require.NoError(t, h.HandleCommand(ctx, "42", "new_checklist", []string{"My_Work_List"}))
		require.NoError(t, h.HandleCommand(ctx, "42", "delete_checklist", []string{"My_Work_List"}))

		msg := tr.lastSend(t)
		require.Contains(t, msg.Text, `Delete checklist "My_Work_List"`)
		require.Equal(t, "delete_confirmed_My_Work_List", msg.Keyboard[0][0].Callback)

		// Nothing deleted until the confirming press.
		u, _ := st.Get("42")
		require.NotNil(t, u.Checklist("My_Work_List"))
	})

	t.Run("Daily is refused", func(t *testing.T) {
		h, st, tr, _ := newTestHandler(t)
		grantPremium(t, st, "42")
		require.NoError(t, h.HandleCommand(ctx, "42", "delete_checklist", []string{model.DailyChecklistName}))
		require.Contains(t, tr.lastSend(t).Text, "cannot be deleted")
	})
}

func TestCmdUpgrade(t *testing.T) {
	ctx := context.Background()

	t.Run("free user sees the plan table", func(t *testing.T) {
		h, _, tr, _ := newTestHandler(t)
		require.NoError(t, h.HandleCommand(ctx, "42", "upgrade", nil))

		msg := tr.lastSend(t)
		require.Contains(t, msg.Text, "Plans:")
		require.Len(t, msg.Keyboard, 5) // four tiers plus "Not now"
		require.Equal(t, "buy_basic", msg.Keyboard[0][0].Callback)
	})

	t.Run("premium user sees status instead", func(t *testing.T) {
		h, st, tr, _ := newTestHandler(t)
		grantPremium(t, st, "42")
		require.NoError(t, h.HandleCommand(ctx, "42", "upgrade", nil))
		require.Contains(t, tr.lastSend(t).Text, "premium until")
	})

	t.Run("lapsed grant is downgraded on disk by the check itself", func(t *testing.T) {
		h, st, tr, _ := newTestHandler(t)
		grantPremium(t, st, "42")
		h.WithClock(func() time.Time { return testNow.AddDate(0, 0, 31) })

		require.NoError(t, h.HandleCommand(ctx, "42", "upgrade", nil))
		require.Contains(t, tr.lastSend(t).Text, "Plans:")

		u, _ := st.Get("42")
		require.False(t, u.IsPremium)
		require.Nil(t, u.PremiumExpires)
	})
}

func TestCmdStats(t *testing.T) {
	ctx := context.Background()

	h, st, tr, _ := newTestHandler(t)
	require.NoError(t, h.HandleCommand(ctx, "42", "stats", nil))
	require.Equal(t, upsellText, tr.lastSend(t).Text)

	grantPremium(t, st, "42")
	require.NoError(t, h.HandleCommand(ctx, "42", "add", []string{"buy milk"}))
	require.NoError(t, h.HandleCommand(ctx, "42", "stats", nil))
	require.Contains(t, tr.lastSend(t).Text, "Daily: 0/1 (0%)")
}

func TestPremiumDenialClassification(t *testing.T) {
	h, st, _, _ := newTestHandler(t)

	_, err := h.gated("42", func(u *model.UserState) error { return nil })
	require.True(t, errors.IsCategory(err, errors.CategoryCapability))
	require.Equal(t, upsellText, err.(*errors.BotError).Message)

	grantPremium(t, st, "42")
	_, err = h.gated("42", func(u *model.UserState) error { return nil })
	require.NoError(t, err)
}

func TestUnknownCommand(t *testing.T) {
	h, _, tr, _ := newTestHandler(t)
	require.NoError(t, h.HandleCommand(context.Background(), "42", "frobnicate", nil))
	require.Contains(t, tr.lastSend(t).Text, "Unknown command")
}

func TestOnPaymentConfirmed(t *testing.T) {
	ctx := context.Background()

	t.Run("activates the purchased tier", func(t *testing.T) {
		h, st, tr, _ := newTestHandler(t)
		require.NoError(t, h.OnPaymentConfirmed(ctx, "42", "plan_standard"))

		u, _ := st.Get("42")
		require.True(t, u.IsPremium)
		require.Equal(t, model.PlanStandard, u.PlanTier)
		require.True(t, u.PremiumExpires.Equal(testNow.AddDate(0, 0, 30)))
		require.Contains(t, tr.lastSend(t).Text, "premium until")
	})

	t.Run("double confirmation replies instead of stacking", func(t *testing.T) {
		h, st, tr, _ := newTestHandler(t)
		require.NoError(t, h.OnPaymentConfirmed(ctx, "42", "plan_basic"))
		require.NoError(t, h.OnPaymentConfirmed(ctx, "42", "plan_basic"))
		require.Contains(t, tr.lastSend(t).Text, "already premium")

		u, _ := st.Get("42")
		require.Equal(t, model.PlanBasic, u.PlanTier)
	})

	t.Run("malformed payload is an error", func(t *testing.T) {
		h, _, _, _ := newTestHandler(t)
		require.Error(t, h.OnPaymentConfirmed(ctx, "42", "garbage"))
		require.Error(t, h.OnPaymentConfirmed(ctx, "42", "plan_gold"))
	})
}
