package bot

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dailycheck/checklistbot/internal/entitlement"
	"github.com/dailycheck/checklistbot/internal/errors"
	"github.com/dailycheck/checklistbot/internal/logfields"
	"github.com/dailycheck/checklistbot/internal/metrics"
	"github.com/dailycheck/checklistbot/internal/model"
	"github.com/dailycheck/checklistbot/internal/store"
)

const upsellText = "⭐ That needs premium. Use /upgrade to see plans."

// Handler is the dispatcher for commands and callbacks. All store access is
// a single locked read-modify-write per invocation; outbound transport calls
// happen strictly after the store releases its lock.
type Handler struct {
	store     *store.Store
	engine    *entitlement.Engine
	transport Transport
	payments  PaymentProvider
	recorder  metrics.Recorder
	now       func() time.Time
}

// NewHandler wires the dispatcher. A nil recorder gets the noop recorder.
func NewHandler(st *store.Store, engine *entitlement.Engine, tr Transport, pay PaymentProvider, rec metrics.Recorder) *Handler {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Handler{
		store:     st,
		engine:    engine,
		transport: tr,
		payments:  pay,
		recorder:  rec,
		now:       time.Now,
	}
}

// WithClock overrides the wall clock (tests).
func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}

// send delivers a message, logging failures. Transport faults are never
// fatal to the invocation.
func (h *Handler) send(ctx context.Context, userID, text string, kb Keyboard) {
	if err := h.transport.SendMessage(ctx, userID, text, kb); err != nil {
		slog.Warn("Failed to send message", logfields.UserID(userID), logfields.Error(err))
	}
}

// gated runs fn under the store lock only when the user is premium at the
// time of the call. The premium check re-evaluates expiry, and a denial is
// reported as a capability error only after the commit, so any downgrade the
// check produced is persisted and the gate is never answered from a cached
// value.
func (h *Handler) gated(userID string, fn func(u *model.UserState) error) (*model.UserState, error) {
	denied := false
	updated, err := h.store.Update(userID, func(u *model.UserState) error {
		if !entitlement.IsPremium(u, h.now()) {
			denied = true
			return nil
		}
		return fn(u)
	})
	if err != nil {
		return nil, err
	}
	if denied {
		return updated, errors.CapabilityError(upsellText)
	}
	return updated, nil
}

// OnPaymentConfirmed is the hook the external payment collaborator calls
// after a successful payment. The payload tag round-trips the plan tier
// chosen at invoice time: "plan_<tier>".
func (h *Handler) OnPaymentConfirmed(ctx context.Context, userID, payloadTag string) error {
	raw, ok := strings.CutPrefix(payloadTag, "plan_")
	if !ok {
		return errors.ValidationError("unrecognized payment payload").WithContext("payload", payloadTag)
	}
	tier, ok := model.ParsePlanTier(raw)
	if !ok {
		return errors.ValidationError("unknown plan tier in payment payload").WithContext("payload", payloadTag)
	}

	var plan entitlement.Plan
	updated, err := h.store.Update(userID, func(u *model.UserState) error {
		var aerr error
		plan, aerr = h.engine.Activate(u, tier, h.now())
		return aerr
	})
	if err != nil {
		if errors.IsCategory(err, errors.CategoryValidation) {
			h.send(ctx, userID, err.(*errors.BotError).Message, nil)
			return nil
		}
		return err
	}

	h.recorder.IncActivation(string(plan.Tier))
	slog.Info("Premium activated", logfields.UserID(userID), logfields.Plan(string(plan.Tier)))
	h.send(ctx, userID, "⭐ "+premiumStatusText(updated), nil)
	return nil
}
