// Package entitlement implements the premium state machine: activation from
// a confirmed payment, and lazy expiry re-evaluated on every read.
package entitlement

import (
	"fmt"
	"sync"
	"time"

	"github.com/dailycheck/checklistbot/internal/errors"
	"github.com/dailycheck/checklistbot/internal/model"
)

// Plan is a purchasable entitlement package. Duration and price are business
// configuration, not protocol; see config.PlansConfig.
type Plan struct {
	Tier  model.PlanTier
	Days  int
	Price string
}

// DefaultPlans returns the built-in tier table used when the config file
// does not override it.
func DefaultPlans() []Plan {
	return []Plan{
		{Tier: model.PlanBasic, Days: 7, Price: "$0.99"},
		{Tier: model.PlanStandard, Days: 30, Price: "$2.99"},
		{Tier: model.PlanPremium, Days: 90, Price: "$6.99"},
		{Tier: model.PlanUltimate, Days: 365, Price: "$19.99"},
	}
}

// IsPremium reports whether the user holds a live premium grant. Expiry is a
// pure function of wall-clock time, re-evaluated on every call: when the
// grant has lapsed the entitlement is flipped back to free in place, so the
// caller's subsequent persist captures the downgrade. Two near-simultaneous
// checks may both observe the expiry; the flip is idempotent.
func IsPremium(u *model.UserState, now time.Time) bool {
	if !u.IsPremium {
		return false
	}
	if u.PremiumExpires == nil {
		return true // non-expiring grant
	}
	if now.After(*u.PremiumExpires) {
		u.Entitlement.Clear()
		return false
	}
	return true
}

// Engine holds the configured plan table and drives activations. The table
// is swapped by the config watcher while handlers read it, so access goes
// through the mutex.
type Engine struct {
	mu    sync.RWMutex
	plans []Plan
}

// NewEngine creates an engine over the given plan table, falling back to the
// defaults when empty.
func NewEngine(plans []Plan) *Engine {
	if len(plans) == 0 {
		plans = DefaultPlans()
	}
	return &Engine{plans: plans}
}

// Plans returns a copy of the configured tier table in display order.
func (e *Engine) Plans() []Plan {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Plan(nil), e.plans...)
}

// Plan looks up a tier.
func (e *Engine) Plan(tier model.PlanTier) (Plan, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, p := range e.plans {
		if p.Tier == tier {
			return p, true
		}
	}
	return Plan{}, false
}

// SetPlans swaps the tier table (config hot-reload). An empty table keeps the
// previous one.
func (e *Engine) SetPlans(plans []Plan) {
	if len(plans) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.plans = plans
}

// Activate applies a confirmed payment for the given tier: Free -> Premium
// with expiry now + plan duration. A re-purchase while already premium is
// rejected; callers surface it as "already premium until <date>".
func (e *Engine) Activate(u *model.UserState, tier model.PlanTier, now time.Time) (Plan, error) {
	plan, ok := e.Plan(tier)
	if !ok {
		return Plan{}, errors.ValidationError("unknown plan tier").WithContext("tier", string(tier))
	}
	if IsPremium(u, now) {
		msg := "already premium"
		if u.PremiumExpires != nil {
			msg = fmt.Sprintf("already premium until %s", u.PremiumExpires.Format("2 January 2006"))
		}
		return Plan{}, errors.ValidationError(msg)
	}
	expires := now.AddDate(0, 0, plan.Days)
	u.IsPremium = true
	u.PremiumExpires = &expires
	u.PlanTier = plan.Tier
	return plan, nil
}
