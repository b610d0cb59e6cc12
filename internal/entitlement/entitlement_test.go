package entitlement

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dailycheck/checklistbot/internal/errors"
	"github.com/dailycheck/checklistbot/internal/model"
)

func TestIsPremium(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	t.Run("free user", func(t *testing.T) {
		u := model.NewUserState("42")
		require.False(t, IsPremium(u, now))
	})

	t.Run("live grant", func(t *testing.T) {
		u := model.NewUserState("42")
		exp := now.Add(24 * time.Hour)
		u.IsPremium = true
		u.PremiumExpires = &exp
		u.PlanTier = model.PlanBasic
		require.True(t, IsPremium(u, now))
		require.True(t, u.IsPremium)
	})

	t.Run("expired grant flips state in place", func(t *testing.T) {
		u := model.NewUserState("42")
		exp := now.Add(-time.Minute)
		u.IsPremium = true
		u.PremiumExpires = &exp
		u.PlanTier = model.PlanStandard

		require.False(t, IsPremium(u, now))
		require.False(t, u.IsPremium)
		require.Nil(t, u.PremiumExpires)
		require.Empty(t, u.PlanTier)

		// Re-checking the already-flipped state is a no-op.
		require.False(t, IsPremium(u, now))
	})

	t.Run("grant without expiry never lapses", func(t *testing.T) {
		u := model.NewUserState("42")
		u.IsPremium = true
		require.True(t, IsPremium(u, now.AddDate(10, 0, 0)))
	})

	t.Run("boundary instant is still premium", func(t *testing.T) {
		u := model.NewUserState("42")
		exp := now
		u.IsPremium = true
		u.PremiumExpires = &exp
		require.True(t, IsPremium(u, now))
	})
}

func TestActivate(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	e := NewEngine(nil)

	t.Run("free to premium with plan duration", func(t *testing.T) {
		u := model.NewUserState("42")
		plan, err := e.Activate(u, model.PlanStandard, now)
		require.NoError(t, err)
		require.Equal(t, 30, plan.Days)
		require.True(t, u.IsPremium)
		require.Equal(t, model.PlanStandard, u.PlanTier)
		require.True(t, u.PremiumExpires.Equal(now.AddDate(0, 0, 30)))
	})

	t.Run("unknown tier rejected", func(t *testing.T) {
		u := model.NewUserState("42")
		_, err := e.Activate(u, model.PlanTier("gold"), now)
		require.True(t, errors.IsCategory(err, errors.CategoryValidation))
		require.False(t, u.IsPremium)
	})

	t.Run("re-purchase while premium rejected", func(t *testing.T) {
		u := model.NewUserState("42")
		_, err := e.Activate(u, model.PlanBasic, now)
		require.NoError(t, err)

		_, err = e.Activate(u, model.PlanUltimate, now)
		require.True(t, errors.IsCategory(err, errors.CategoryValidation))
		require.Contains(t, err.(*errors.BotError).Message, "already premium until")
		require.Equal(t, model.PlanBasic, u.PlanTier, "original grant stays intact")
	})

	t.Run("activation after lapse succeeds", func(t *testing.T) {
		u := model.NewUserState("42")
		_, err := e.Activate(u, model.PlanBasic, now)
		require.NoError(t, err)

		later := now.AddDate(0, 0, 8)
		_, err = e.Activate(u, model.PlanPremium, later)
		require.NoError(t, err)
		require.Equal(t, model.PlanPremium, u.PlanTier)
	})
}

func TestEnginePlans(t *testing.T) {
	t.Run("empty table falls back to defaults", func(t *testing.T) {
		e := NewEngine(nil)
		require.Len(t, e.Plans(), 4)
		p, ok := e.Plan(model.PlanUltimate)
		require.True(t, ok)
		require.Equal(t, 365, p.Days)
	})

	t.Run("set plans swaps the table", func(t *testing.T) {
		e := NewEngine(nil)
		e.SetPlans([]Plan{{Tier: model.PlanBasic, Days: 14, Price: "$1.49"}})
		require.Len(t, e.Plans(), 1)

		// Empty reload keeps the previous table.
		e.SetPlans(nil)
		require.Len(t, e.Plans(), 1)
	})

	t.Run("concurrent reload and lookup", func(t *testing.T) {
		e := NewEngine(nil)
		tables := [][]Plan{
			{{Tier: model.PlanBasic, Days: 7, Price: "$0.99"}},
			{{Tier: model.PlanBasic, Days: 14, Price: "$1.49"},
				{Tier: model.PlanUltimate, Days: 365, Price: "$19.99"}},
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				e.SetPlans(tables[i%len(tables)])
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_ = e.Plans()
				e.Plan(model.PlanBasic)
			}
		}()
		wg.Wait()

		p, ok := e.Plan(model.PlanBasic)
		require.True(t, ok)
		require.NotZero(t, p.Days)
	})
}
