package bot

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dailycheck/checklistbot/internal/entitlement"
	"github.com/dailycheck/checklistbot/internal/errors"
	"github.com/dailycheck/checklistbot/internal/logfields"
	"github.com/dailycheck/checklistbot/internal/model"
)

// Verb is the decoded action of a callback token.
type Verb string

const (
	VerbToggle              Verb = "toggle"
	VerbShowList            Verb = "showlist"
	VerbLists               Verb = "lists"
	VerbRefresh             Verb = "refresh"
	VerbClose               Verb = "close"
	VerbDeleteMode          Verb = "delete_mode"
	VerbDeleteTask          Verb = "delete_task"
	VerbConfirmDelete       Verb = "confirm_delete"
	VerbDeleteConfirmed     Verb = "delete_confirmed"
	VerbCancelDelete        Verb = "cancel_delete"
	VerbCreateNewList       Verb = "create_new_list"
	VerbBuy                 Verb = "buy"
	VerbCancelUpgrade       Verb = "cancel_upgrade"
	VerbSettings            Verb = "settings"
	VerbToggleNotifications Verb = "toggle_notifications"
)

// Token prefixes/literals used when rendering keyboards. The grammar is
// "<verb>_<argument>" for verbs taking an argument and the bare verb
// otherwise. The argument is the whole remainder, so checklist names
// containing underscores survive the round trip.
const (
	tokenToggle              = string(VerbToggle) + "_"
	tokenShowList            = string(VerbShowList) + "_"
	tokenLists               = string(VerbLists)
	tokenRefresh             = string(VerbRefresh) + "_"
	tokenClose               = string(VerbClose)
	tokenDeleteMode          = string(VerbDeleteMode) + "_"
	tokenDeleteTask          = string(VerbDeleteTask) + "_"
	tokenConfirmDelete       = string(VerbConfirmDelete) + "_"
	tokenDeleteConfirmed     = string(VerbDeleteConfirmed) + "_"
	tokenCancelDelete        = string(VerbCancelDelete) + "_"
	tokenCreateNewList       = string(VerbCreateNewList)
	tokenBuy                 = string(VerbBuy) + "_"
	tokenCancelUpgrade       = string(VerbCancelUpgrade)
	tokenSettings            = string(VerbSettings)
	tokenToggleNotifications = string(VerbToggleNotifications)
)

// Callback is a token decoded once at the boundary into a typed value.
type Callback struct {
	Verb Verb
	Arg  string
}

// bareVerbs take no argument and must match the token exactly.
var bareVerbs = []Verb{
	VerbToggleNotifications, // before "toggle" prefix matching
	VerbCreateNewList,
	VerbCancelUpgrade,
	VerbSettings,
	VerbLists,
	VerbClose,
}

// argVerbs take one argument, matched longest-prefix-first so that e.g.
// "delete_confirmed_x" never decodes as verb "delete" with junk.
var argVerbs = []Verb{
	VerbDeleteConfirmed,
	VerbConfirmDelete,
	VerbCancelDelete,
	VerbDeleteMode,
	VerbDeleteTask,
	VerbShowList,
	VerbRefresh,
	VerbToggle,
	VerbBuy,
}

// ParseCallback decodes an opaque button token.
func ParseCallback(token string) (Callback, error) {
	for _, v := range bareVerbs {
		if token == string(v) {
			return Callback{Verb: v}, nil
		}
	}
	for _, v := range argVerbs {
		if arg, ok := strings.CutPrefix(token, string(v)+"_"); ok && arg != "" {
			return Callback{Verb: v, Arg: arg}, nil
		}
	}
	return Callback{}, errors.ValidationError("unrecognized callback token").WithContext("token", token)
}

// callbackOutcome is what a dispatch step decided to show.
type callbackOutcome struct {
	alert string // answer text, "" for a silent ack
	view  *View  // replacement view for the pressed message, nil to leave it
}

// HandleCallback dispatches one inline-button press: decode the token, apply
// the mutation or navigation against the store, then answer the callback and
// edit the originating message outside the lock.
func (h *Handler) HandleCallback(ctx context.Context, userID, callbackID, token string, ref MessageRef) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Recovered panic in callback handler",
				logfields.UserID(userID), slog.Any("panic", r))
			h.answer(ctx, callbackID, "Something went wrong.")
			err = nil
		}
	}()

	cb, perr := ParseCallback(token)
	if perr != nil {
		h.recorder.IncCallback("unknown", "rejected")
		h.answer(ctx, callbackID, "This button is no longer valid.")
		return nil
	}

	out, derr := h.dispatchCallback(ctx, userID, cb)
	if derr != nil {
		h.recorder.IncCallback(string(cb.Verb), "error")
		h.answer(ctx, callbackID, "Something went wrong.")
		return derr
	}

	outcome := "ok"
	if out.alert != "" {
		outcome = "rejected"
	}
	h.recorder.IncCallback(string(cb.Verb), outcome)

	h.answer(ctx, callbackID, out.alert)
	if out.view != nil {
		if err := h.transport.EditMessage(ctx, ref, out.view.Text, out.view.Keyboard); err != nil {
			slog.Warn("Failed to edit message", logfields.UserID(userID), logfields.Error(err))
		}
	}
	return nil
}

func (h *Handler) answer(ctx context.Context, callbackID, alert string) {
	if err := h.transport.AnswerCallback(ctx, callbackID, alert); err != nil {
		slog.Warn("Failed to answer callback", logfields.Error(err))
	}
}

func (h *Handler) dispatchCallback(ctx context.Context, userID string, cb Callback) (callbackOutcome, error) {
	switch cb.Verb {
	case VerbToggle:
		return h.cbToggle(userID, cb.Arg)
	case VerbShowList, VerbRefresh, VerbCancelDelete:
		return h.cbShowList(userID, cb.Arg)
	case VerbLists:
		return h.cbLists(userID)
	case VerbClose:
		return callbackOutcome{view: &View{Text: "📋 Closed. /checklist brings it back."}}, nil
	case VerbDeleteMode:
		return h.cbDeleteMode(userID, cb.Arg)
	case VerbDeleteTask:
		return h.cbDeleteTask(userID, cb.Arg)
	case VerbConfirmDelete:
		return h.cbConfirmDelete(userID, cb.Arg)
	case VerbDeleteConfirmed:
		return h.cbDeleteConfirmed(userID, cb.Arg)
	case VerbCreateNewList:
		return h.cbCreateNewList(userID)
	case VerbBuy:
		return h.cbBuy(ctx, userID, cb.Arg)
	case VerbCancelUpgrade:
		return callbackOutcome{view: &View{Text: "No problem. /upgrade any time."}}, nil
	case VerbSettings:
		return h.cbSettings(userID)
	case VerbToggleNotifications:
		return h.cbToggleNotifications(userID)
	default:
		return callbackOutcome{alert: "This button is no longer valid."}, nil
	}
}

// cbToggle flips one task. A task id that no longer exists is a silent
// no-op: the pressed view may be stale relative to a concurrent deletion.
func (h *Handler) cbToggle(userID, taskID string) (callbackOutcome, error) {
	var list *model.Checklist
	updated, err := h.store.Update(userID, func(u *model.UserState) error {
		if c, _ := u.FindTask(taskID); c != nil {
			c.ToggleTask(taskID)
			list = c
		}
		return nil
	})
	if err != nil {
		return callbackOutcome{}, err
	}
	if list == nil {
		return callbackOutcome{}, nil // gone; leave the view as is
	}
	v := renderChecklist(updated, updated.Checklist(list.Name), h.now())
	return callbackOutcome{view: &v}, nil
}

func (h *Handler) cbShowList(userID, name string) (callbackOutcome, error) {
	u, err := h.store.EnsureUser(userID)
	if err != nil {
		return callbackOutcome{}, err
	}
	c := u.Checklist(name)
	if c == nil {
		v := renderOverview(u)
		return callbackOutcome{alert: "That checklist is gone.", view: &v}, nil
	}
	v := renderChecklist(u, c, h.now())
	return callbackOutcome{view: &v}, nil
}

func (h *Handler) cbLists(userID string) (callbackOutcome, error) {
	u, err := h.store.EnsureUser(userID)
	if err != nil {
		return callbackOutcome{}, err
	}
	v := renderOverview(u)
	return callbackOutcome{view: &v}, nil
}

func (h *Handler) cbDeleteMode(userID, name string) (callbackOutcome, error) {
	updated, err := h.gated(userID, func(u *model.UserState) error { return nil })
	if errors.IsCategory(err, errors.CategoryCapability) {
		return callbackOutcome{alert: err.(*errors.BotError).Message}, nil
	}
	if err != nil {
		return callbackOutcome{}, err
	}
	c := updated.Checklist(name)
	if c == nil {
		v := renderOverview(updated)
		return callbackOutcome{alert: "That checklist is gone.", view: &v}, nil
	}
	v := renderDeleteMode(c)
	return callbackOutcome{view: &v}, nil
}

// cbDeleteTask removes one task; premium-gated. A missing id is a silent
// no-op like toggle.
func (h *Handler) cbDeleteTask(userID, taskID string) (callbackOutcome, error) {
	denied := false
	var list *model.Checklist
	updated, err := h.store.Update(userID, func(u *model.UserState) error {
		if !entitlement.IsPremium(u, h.now()) {
			denied = true
			return nil
		}
		if c, _ := u.FindTask(taskID); c != nil {
			c.RemoveTask(taskID)
			list = c
		}
		return nil
	})
	if err != nil {
		return callbackOutcome{}, err
	}
	if denied {
		return callbackOutcome{alert: upsellText}, nil
	}
	if list == nil {
		return callbackOutcome{}, nil
	}
	v := renderDeleteMode(updated.Checklist(list.Name))
	return callbackOutcome{view: &v}, nil
}

func (h *Handler) cbConfirmDelete(userID, name string) (callbackOutcome, error) {
	updated, err := h.gated(userID, func(u *model.UserState) error { return nil })
	if errors.IsCategory(err, errors.CategoryCapability) {
		return callbackOutcome{alert: err.(*errors.BotError).Message}, nil
	}
	if err != nil {
		return callbackOutcome{}, err
	}
	if name == model.DailyChecklistName {
		return callbackOutcome{alert: `The "Daily" checklist cannot be deleted.`}, nil
	}
	if updated.Checklist(name) == nil {
		v := renderOverview(updated)
		return callbackOutcome{alert: "That checklist is already gone.", view: &v}, nil
	}
	v := renderConfirmDelete(name)
	return callbackOutcome{view: &v}, nil
}

// cbDeleteConfirmed performs the deletion initiated by confirm_delete. The
// prompt may be arbitrarily stale, so a target deleted in the meantime fails
// gracefully into the overview.
func (h *Handler) cbDeleteConfirmed(userID, name string) (callbackOutcome, error) {
	denied := false
	gone := false
	updated, err := h.store.Update(userID, func(u *model.UserState) error {
		if !entitlement.IsPremium(u, h.now()) {
			denied = true
			return nil
		}
		if derr := u.DeleteChecklist(name); derr != nil {
			if errors.IsCategory(derr, errors.CategoryNotFound) {
				gone = true
				return nil
			}
			return derr
		}
		return nil
	})
	switch {
	case err != nil && errors.IsCategory(err, errors.CategoryValidation):
		return callbackOutcome{alert: err.(*errors.BotError).Message}, nil
	case err != nil:
		return callbackOutcome{}, err
	case denied:
		return callbackOutcome{alert: upsellText}, nil
	}
	v := renderOverview(updated)
	if gone {
		return callbackOutcome{alert: "That checklist was already gone.", view: &v}, nil
	}
	return callbackOutcome{alert: "Checklist deleted.", view: &v}, nil
}

// cbCreateNewList cannot collect a name through a button press; it points at
// the command instead. Gated so free users get the upsell here already.
func (h *Handler) cbCreateNewList(userID string) (callbackOutcome, error) {
	_, err := h.gated(userID, func(u *model.UserState) error { return nil })
	if errors.IsCategory(err, errors.CategoryCapability) {
		return callbackOutcome{alert: err.(*errors.BotError).Message}, nil
	}
	if err != nil {
		return callbackOutcome{}, err
	}
	return callbackOutcome{alert: "Send /new_checklist <name> to create one."}, nil
}

// cbBuy requests an invoice. The payment call happens after the store lock
// is released; confirmation arrives later via OnPaymentConfirmed.
func (h *Handler) cbBuy(ctx context.Context, userID, rawTier string) (callbackOutcome, error) {
	tier, ok := model.ParsePlanTier(rawTier)
	if !ok {
		return callbackOutcome{alert: "That plan no longer exists."}, nil
	}
	plan, ok := h.engine.Plan(tier)
	if !ok {
		return callbackOutcome{alert: "That plan no longer exists."}, nil
	}

	already := false
	updated, err := h.store.Update(userID, func(u *model.UserState) error {
		already = entitlement.IsPremium(u, h.now())
		return nil
	})
	if err != nil {
		return callbackOutcome{}, err
	}
	if already {
		return callbackOutcome{alert: premiumStatusText(updated)}, nil
	}

	if _, perr := h.payments.RequestPayment(ctx, userID, plan); perr != nil {
		slog.Warn("Failed to request payment", logfields.UserID(userID), logfields.Error(perr))
		return callbackOutcome{alert: "Could not start the payment. Please try again."}, nil
	}
	return callbackOutcome{alert: "Invoice sent. Complete the payment to activate premium."}, nil
}

func (h *Handler) cbSettings(userID string) (callbackOutcome, error) {
	u, err := h.store.EnsureUser(userID)
	if err != nil {
		return callbackOutcome{}, err
	}
	v := renderSettings(u)
	return callbackOutcome{view: &v}, nil
}

// cbToggleNotifications is a settings change, premium-gated per the
// capability rules.
func (h *Handler) cbToggleNotifications(userID string) (callbackOutcome, error) {
	updated, err := h.gated(userID, func(u *model.UserState) error {
		u.Settings.NotificationsEnabled = !u.Settings.NotificationsEnabled
		return nil
	})
	if errors.IsCategory(err, errors.CategoryCapability) {
		return callbackOutcome{alert: err.(*errors.BotError).Message}, nil
	}
	if err != nil {
		return callbackOutcome{}, err
	}
	v := renderSettings(updated)
	return callbackOutcome{view: &v}, nil
}
