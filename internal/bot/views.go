package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/dailycheck/checklistbot/internal/entitlement"
	"github.com/dailycheck/checklistbot/internal/model"
)

// Views are pure renderings of user state. No view function touches the
// store; handlers pass in a consistent snapshot.

const greetingText = "Hi! Use /add to add tasks and /checklist to view them. /help lists everything."

const helpText = `Commands:
/start — set up your checklists
/add [checklist] <task> — add a task (defaults to Daily)
/checklist [name] — show a checklist
/lists — show all your checklists
/new_checklist <name> — create a checklist (premium)
/delete_checklist <name> — delete a checklist (premium)
/stats — progress across checklists (premium)
/upgrade — see premium plans
/help — this message`

func renderChecklist(u *model.UserState, c *model.Checklist, now time.Time) View {
	var b strings.Builder
	fmt.Fprintf(&b, "📋 %s — %s\n", c.Name, now.Format("Monday, 02 January 2006"))
	completed, total := c.Progress()
	if pct, ok := c.Percent(); ok {
		fmt.Fprintf(&b, "%d of %d done (%d%%)", completed, total, pct)
	} else {
		b.WriteString("No tasks yet. Add one with /add.")
	}

	var kb Keyboard
	for _, t := range c.Tasks {
		mark := "⬜"
		if t.Completed {
			mark = "✅"
		}
		kb = append(kb, []Button{{Label: mark + " " + t.Text, Callback: tokenToggle + t.ID}})
	}
	footer := []Button{
		{Label: "🔄 Refresh", Callback: tokenRefresh + c.Name},
		{Label: "📂 Lists", Callback: tokenLists},
	}
	if len(c.Tasks) > 0 {
		footer = append(footer, Button{Label: "🗑 Edit", Callback: tokenDeleteMode + c.Name})
	}
	kb = append(kb, footer, []Button{{Label: "✖ Close", Callback: tokenClose}})
	return View{Text: b.String(), Keyboard: kb}
}

func renderOverview(u *model.UserState) View {
	var b strings.Builder
	b.WriteString("📂 Your checklists\n")
	var kb Keyboard
	for _, c := range u.ChecklistsInOrder() {
		completed, total := c.Progress()
		label := fmt.Sprintf("%s (%d/%d)", c.Name, completed, total)
		row := []Button{{Label: label, Callback: tokenShowList + c.Name}}
		if c.Name != model.DailyChecklistName {
			row = append(row, Button{Label: "🗑", Callback: tokenConfirmDelete + c.Name})
		}
		kb = append(kb, row)
	}
	kb = append(kb,
		[]Button{{Label: "➕ New checklist", Callback: tokenCreateNewList}},
		[]Button{{Label: "⚙ Settings", Callback: tokenSettings}, {Label: "✖ Close", Callback: tokenClose}},
	)
	return View{Text: b.String(), Keyboard: kb}
}

func renderDeleteMode(c *model.Checklist) View {
	text := fmt.Sprintf("🗑 %s — tap a task to delete it", c.Name)
	var kb Keyboard
	for _, t := range c.Tasks {
		kb = append(kb, []Button{{Label: "❌ " + t.Text, Callback: tokenDeleteTask + t.ID}})
	}
	kb = append(kb, []Button{{Label: "← Back", Callback: tokenShowList + c.Name}})
	return View{Text: text, Keyboard: kb}
}

// renderConfirmDelete embeds the target checklist name in the confirming
// token. The token is the only state carried between the two steps.
func renderConfirmDelete(name string) View {
	return View{
		Text: fmt.Sprintf("Delete checklist %q and all its tasks?", name),
		Keyboard: Keyboard{
			{
				{Label: "Yes, delete", Callback: tokenDeleteConfirmed + name},
				{Label: "Cancel", Callback: tokenCancelDelete + name},
			},
		},
	}
}

func renderUpsell(plans []entitlement.Plan) View {
	var b strings.Builder
	b.WriteString("⭐ Premium unlocks multiple checklists, task management, stats and settings.\n\nPlans:")
	var kb Keyboard
	for _, p := range plans {
		label := fmt.Sprintf("%s — %d days", p.Tier, p.Days)
		if p.Price != "" {
			label += " — " + p.Price
		}
		kb = append(kb, []Button{{Label: label, Callback: tokenBuy + string(p.Tier)}})
	}
	kb = append(kb, []Button{{Label: "Not now", Callback: tokenCancelUpgrade}})
	return View{Text: b.String(), Keyboard: kb}
}

func renderSettings(u *model.UserState) View {
	notif := "off"
	if u.Settings.NotificationsEnabled {
		notif = "on"
	}
	text := fmt.Sprintf("⚙ Settings\nDaily reset: %s (%s)\nNotifications: %s",
		u.Settings.DailyResetTime, u.Settings.Timezone, notif)
	return View{
		Text: text,
		Keyboard: Keyboard{
			{{Label: "🔔 Toggle notifications", Callback: tokenToggleNotifications}},
			{{Label: "← Back", Callback: tokenLists}},
		},
	}
}

func renderStats(u *model.UserState) string {
	var b strings.Builder
	b.WriteString("📊 Progress\n")
	for _, c := range u.ChecklistsInOrder() {
		completed, total := c.Progress()
		if pct, ok := c.Percent(); ok {
			fmt.Fprintf(&b, "%s: %d/%d (%d%%)\n", c.Name, completed, total, pct)
		} else {
			fmt.Fprintf(&b, "%s: empty\n", c.Name)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func premiumStatusText(u *model.UserState) string {
	if u.PremiumExpires == nil {
		return "You have premium with no expiry."
	}
	return fmt.Sprintf("You are premium until %s (%s plan).",
		u.PremiumExpires.Format("2 January 2006"), u.PlanTier)
}

// DailyResetNotification renders the message the scheduler sends after a
// user's checklists were reset: the fresh "Daily" view, as the original bot
// re-sent it each morning.
func DailyResetNotification(u *model.UserState, now time.Time) (string, Keyboard) {
	v := renderChecklist(u, u.Daily(), now)
	return "🌅 New day! Your checklists were reset.\n\n" + v.Text, v.Keyboard
}
