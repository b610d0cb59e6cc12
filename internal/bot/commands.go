package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dailycheck/checklistbot/internal/entitlement"
	"github.com/dailycheck/checklistbot/internal/errors"
	"github.com/dailycheck/checklistbot/internal/logfields"
	"github.com/dailycheck/checklistbot/internal/model"
)

// HandleCommand dispatches one inbound chat command. Every failure is
// converted into a user-visible reply at this boundary; nothing propagates
// except store-level I/O errors, which the caller logs. A panic in one
// invocation is recovered so the process keeps serving the next.
func (h *Handler) HandleCommand(ctx context.Context, userID, command string, args []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Recovered panic in command handler",
				logfields.UserID(userID), logfields.Command(command), slog.Any("panic", r))
			h.send(ctx, userID, "Something went wrong. Please try again.", nil)
			err = nil
		}
	}()

	h.recorder.IncCommand(command)

	switch command {
	case "start":
		return h.cmdStart(ctx, userID)
	case "help":
		h.send(ctx, userID, helpText, nil)
		return nil
	case "add":
		return h.cmdAdd(ctx, userID, args)
	case "show", "checklist":
		return h.cmdShow(ctx, userID, args)
	case "lists":
		return h.cmdLists(ctx, userID)
	case "new_checklist":
		return h.cmdNewChecklist(ctx, userID, args)
	case "delete_checklist":
		return h.cmdDeleteChecklist(ctx, userID, args)
	case "upgrade":
		return h.cmdUpgrade(ctx, userID)
	case "stats":
		return h.cmdStats(ctx, userID)
	default:
		h.send(ctx, userID, "Unknown command. "+helpText, nil)
		return nil
	}
}

func (h *Handler) cmdStart(ctx context.Context, userID string) error {
	if _, err := h.store.EnsureUser(userID); err != nil {
		h.send(ctx, userID, "Something went wrong. Please try again.", nil)
		return err
	}
	h.send(ctx, userID, greetingText, nil)
	return nil
}

// cmdAdd appends a task. With two or more arguments whose first word names
// an existing checklist, the task goes there; otherwise everything is the
// task text and the target is "Daily". Targeting a named list is premium.
func (h *Handler) cmdAdd(ctx context.Context, userID string, args []string) error {
	if len(args) == 0 {
		h.send(ctx, userID, "Usage: /add [checklist] <task>", nil)
		return nil
	}

	denied := false
	var created *model.Task
	var target string
	_, err := h.store.Update(userID, func(u *model.UserState) error {
		target = model.DailyChecklistName
		text := strings.Join(args, " ")
		if len(args) >= 2 {
			if c := u.Checklist(args[0]); c != nil {
				target = args[0]
				text = strings.Join(args[1:], " ")
			}
		}
		if target != model.DailyChecklistName && !entitlement.IsPremium(u, h.now()) {
			denied = true
			return nil
		}
		var aerr error
		created, aerr = u.Checklist(target).AddTask(text, h.now())
		return aerr
	})
	switch {
	case err != nil && errors.IsCategory(err, errors.CategoryValidation):
		h.send(ctx, userID, err.(*errors.BotError).Message, nil)
		return nil
	case err != nil:
		h.send(ctx, userID, "Could not save your task. Please try again.", nil)
		return err
	case denied:
		h.send(ctx, userID, upsellText, nil)
		return nil
	}

	h.send(ctx, userID, fmt.Sprintf("✅ Task added to %s: %s", target, created.Text),
		Keyboard{{{Label: "📋 View " + target, Callback: tokenShowList + target}}})
	return nil
}

func (h *Handler) cmdShow(ctx context.Context, userID string, args []string) error {
	u, err := h.store.EnsureUser(userID)
	if err != nil {
		h.send(ctx, userID, "Something went wrong. Please try again.", nil)
		return err
	}
	name := model.DailyChecklistName
	if len(args) > 0 {
		name = strings.Join(args, " ")
	}
	c := u.Checklist(name)
	if c == nil {
		h.send(ctx, userID, fmt.Sprintf("Checklist %q not found. /lists shows what you have.", name), nil)
		return nil
	}
	v := renderChecklist(u, c, h.now())
	h.send(ctx, userID, v.Text, v.Keyboard)
	return nil
}

func (h *Handler) cmdLists(ctx context.Context, userID string) error {
	u, err := h.store.EnsureUser(userID)
	if err != nil {
		h.send(ctx, userID, "Something went wrong. Please try again.", nil)
		return err
	}
	v := renderOverview(u)
	h.send(ctx, userID, v.Text, v.Keyboard)
	return nil
}

func (h *Handler) cmdNewChecklist(ctx context.Context, userID string, args []string) error {
	if len(args) == 0 {
		h.send(ctx, userID, "Usage: /new_checklist <name>", nil)
		return nil
	}
	name := strings.Join(args, " ")

	updated, err := h.gated(userID, func(u *model.UserState) error {
		_, aerr := u.AddChecklist(name)
		return aerr
	})
	switch {
	case errors.IsCategory(err, errors.CategoryCapability),
		errors.IsCategory(err, errors.CategoryValidation):
		h.send(ctx, userID, err.(*errors.BotError).Message, nil)
		return nil
	case err != nil:
		h.send(ctx, userID, "Could not create the checklist. Please try again.", nil)
		return err
	}

	v := renderChecklist(updated, updated.Checklist(name), h.now())
	h.send(ctx, userID, v.Text, v.Keyboard)
	return nil
}

// cmdDeleteChecklist starts the two-step confirmation flow. The target's
// identity travels in the confirming token, not in any server-side session.
func (h *Handler) cmdDeleteChecklist(ctx context.Context, userID string, args []string) error {
	if len(args) == 0 {
		h.send(ctx, userID, "Usage: /delete_checklist <name>", nil)
		return nil
	}
	name := strings.Join(args, " ")

	denied := false
	notFound := false
	_, err := h.store.Update(userID, func(u *model.UserState) error {
		if !entitlement.IsPremium(u, h.now()) {
			denied = true
			return nil
		}
		if u.Checklist(name) == nil {
			notFound = true
		}
		return nil
	})
	switch {
	case err != nil:
		h.send(ctx, userID, "Something went wrong. Please try again.", nil)
		return err
	case denied:
		h.send(ctx, userID, upsellText, nil)
		return nil
	case name == model.DailyChecklistName:
		h.send(ctx, userID, `The "Daily" checklist cannot be deleted.`, nil)
		return nil
	case notFound:
		h.send(ctx, userID, fmt.Sprintf("Checklist %q not found.", name), nil)
		return nil
	}

	v := renderConfirmDelete(name)
	h.send(ctx, userID, v.Text, v.Keyboard)
	return nil
}

// cmdUpgrade evaluates the entitlement inside an update so a lapsed grant's
// downgrade is persisted even though nothing else changes.
func (h *Handler) cmdUpgrade(ctx context.Context, userID string) error {
	premium := false
	updated, err := h.store.Update(userID, func(u *model.UserState) error {
		premium = entitlement.IsPremium(u, h.now())
		return nil
	})
	if err != nil {
		h.send(ctx, userID, "Something went wrong. Please try again.", nil)
		return err
	}
	if premium {
		h.send(ctx, userID, premiumStatusText(updated), nil)
		return nil
	}
	v := renderUpsell(h.engine.Plans())
	h.send(ctx, userID, v.Text, v.Keyboard)
	return nil
}

func (h *Handler) cmdStats(ctx context.Context, userID string) error {
	updated, err := h.gated(userID, func(u *model.UserState) error { return nil })
	switch {
	case errors.IsCategory(err, errors.CategoryCapability):
		h.send(ctx, userID, err.(*errors.BotError).Message, nil)
		return nil
	case err != nil:
		h.send(ctx, userID, "Something went wrong. Please try again.", nil)
		return err
	}
	h.send(ctx, userID, renderStats(updated), nil)
	return nil
}
