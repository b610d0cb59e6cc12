// Package model holds the persisted domain entities: users, checklists,
// tasks, entitlement and per-user settings.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dailycheck/checklistbot/internal/errors"
)

const (
	// DailyChecklistName is the checklist every user owns. It cannot be deleted.
	DailyChecklistName = "Daily"

	// MaxChecklists is the per-user checklist limit, the default "Daily" included.
	MaxChecklists = 10

	// MaxTaskTextLen bounds task text after whitespace trimming.
	MaxTaskTextLen = 50

	// MaxChecklistNameLen bounds checklist names.
	MaxChecklistNameLen = 50
)

// Task is a single checklist item. The id is assigned on creation and never
// changes or gets reused.
type Task struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	Completed bool      `json:"completed"`
}

// Checklist is a named, ordered set of tasks. Task order is insertion order.
type Checklist struct {
	Name  string  `json:"name"`
	Tasks []*Task `json:"tasks"`
}

// AddTask validates and appends a new task, returning it for UI feedback.
func (c *Checklist) AddTask(text string, now time.Time) (*Task, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.ValidationError("task text must not be empty")
	}
	if len([]rune(text)) > MaxTaskTextLen {
		return nil, errors.ValidationError("task text too long").
			WithContext("max_len", MaxTaskTextLen)
	}
	task := &Task{
		ID:        uuid.NewString(),
		Text:      text,
		CreatedAt: now,
	}
	c.Tasks = append(c.Tasks, task)
	return task, nil
}

// FindTask returns the task with the given id, or nil.
func (c *Checklist) FindTask(id string) *Task {
	for _, t := range c.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// ToggleTask flips the completion flag of the given task. A missing id is a
// no-op returning false: the presented view may be stale relative to a
// concurrent deletion, so this is never an error.
func (c *Checklist) ToggleTask(id string) bool {
	t := c.FindTask(id)
	if t == nil {
		return false
	}
	t.Completed = !t.Completed
	return true
}

// RemoveTask deletes the task with the given id, returning false if absent.
func (c *Checklist) RemoveTask(id string) bool {
	for i, t := range c.Tasks {
		if t.ID == id {
			c.Tasks = append(c.Tasks[:i], c.Tasks[i+1:]...)
			return true
		}
	}
	return false
}

// ResetAll clears every task's completion flag. Idempotent.
func (c *Checklist) ResetAll() {
	for _, t := range c.Tasks {
		t.Completed = false
	}
}

// Progress returns (completed, total) counts.
func (c *Checklist) Progress() (completed, total int) {
	for _, t := range c.Tasks {
		if t.Completed {
			completed++
		}
	}
	return completed, len(c.Tasks)
}

// Percent returns floor(completed/total*100) and true, or 0 and false for an
// empty checklist.
func (c *Checklist) Percent() (int, bool) {
	completed, total := c.Progress()
	if total == 0 {
		return 0, false
	}
	return completed * 100 / total, true
}

// Clone returns a deep copy.
func (c *Checklist) Clone() *Checklist {
	out := &Checklist{Name: c.Name}
	if c.Tasks != nil {
		out.Tasks = make([]*Task, len(c.Tasks))
		for i, t := range c.Tasks {
			cp := *t
			out.Tasks[i] = &cp
		}
	}
	return out
}

// PlanTier names an entitlement package. The duration and price attached to a
// tier are configuration, not protocol.
type PlanTier string

const (
	PlanBasic    PlanTier = "basic"
	PlanStandard PlanTier = "standard"
	PlanPremium  PlanTier = "premium"
	PlanUltimate PlanTier = "ultimate"
)

// ParsePlanTier validates a raw tier name.
func ParsePlanTier(raw string) (PlanTier, bool) {
	switch PlanTier(raw) {
	case PlanBasic, PlanStandard, PlanPremium, PlanUltimate:
		return PlanTier(raw), true
	}
	return "", false
}

// Entitlement is the premium grant attached to a user. IsPremium true with a
// nil expiry means a non-expiring grant.
type Entitlement struct {
	IsPremium      bool       `json:"is_premium"`
	PremiumExpires *time.Time `json:"premium_expires,omitempty"`
	PlanTier       PlanTier   `json:"premium_plan,omitempty"`
}

// Clear reverts the entitlement to the free state.
func (e *Entitlement) Clear() {
	e.IsPremium = false
	e.PremiumExpires = nil
	e.PlanTier = ""
}

// Settings is the per-user preference record, independent of entitlement.
type Settings struct {
	DailyResetTime       string `json:"daily_reset_time"`
	Timezone             string `json:"timezone"`
	NotificationsEnabled bool   `json:"notifications_enabled"`
}

// DefaultSettings returns the settings a fresh user starts with.
func DefaultSettings() Settings {
	return Settings{
		DailyResetTime:       "08:00",
		Timezone:             "UTC",
		NotificationsEnabled: true,
	}
}

// UserState is everything persisted for one user. The embedded Entitlement
// keeps its fields at the top level of the serialized record.
type UserState struct {
	ID string `json:"-"`
	Entitlement
	Checklists     map[string]*Checklist `json:"checklists"`
	ChecklistOrder []string              `json:"checklist_order,omitempty"`
	Settings       Settings              `json:"settings"`
}

// NewUserState creates the default state for a first interaction: the "Daily"
// checklist pre-populated, entitlement cleared, default settings.
func NewUserState(id string) *UserState {
	u := &UserState{
		ID:         id,
		Checklists: map[string]*Checklist{},
		Settings:   DefaultSettings(),
	}
	u.Checklists[DailyChecklistName] = &Checklist{Name: DailyChecklistName}
	u.ChecklistOrder = []string{DailyChecklistName}
	return u
}

// EnsureDefaults backfills fields introduced by schema evolution. It is
// idempotent and reports whether anything changed.
func (u *UserState) EnsureDefaults() bool {
	changed := false
	if u.Checklists == nil {
		u.Checklists = map[string]*Checklist{}
		changed = true
	}
	if _, ok := u.Checklists[DailyChecklistName]; !ok {
		u.Checklists[DailyChecklistName] = &Checklist{Name: DailyChecklistName}
		changed = true
	}
	for name, c := range u.Checklists {
		if c.Name != name {
			c.Name = name
			changed = true
		}
	}
	if u.Settings == (Settings{}) {
		u.Settings = DefaultSettings()
		changed = true
	}
	if u.syncOrder() {
		changed = true
	}
	return changed
}

// syncOrder reconciles ChecklistOrder with the checklist map: drops stale
// names, appends missing ones ("Daily" always first when backfilling).
func (u *UserState) syncOrder() bool {
	changed := false
	kept := u.ChecklistOrder[:0]
	seen := map[string]bool{}
	for _, name := range u.ChecklistOrder {
		if _, ok := u.Checklists[name]; ok && !seen[name] {
			kept = append(kept, name)
			seen[name] = true
		} else {
			changed = true
		}
	}
	u.ChecklistOrder = kept
	if !seen[DailyChecklistName] {
		if _, ok := u.Checklists[DailyChecklistName]; ok {
			u.ChecklistOrder = append([]string{DailyChecklistName}, u.ChecklistOrder...)
			seen[DailyChecklistName] = true
			changed = true
		}
	}
	for name := range u.Checklists {
		if !seen[name] {
			u.ChecklistOrder = append(u.ChecklistOrder, name)
			changed = true
		}
	}
	return changed
}

// Checklist returns the named checklist, or nil. Lookup is case-sensitive.
func (u *UserState) Checklist(name string) *Checklist {
	return u.Checklists[name]
}

// Daily returns the "Daily" checklist, which EnsureDefaults guarantees exists.
func (u *UserState) Daily() *Checklist {
	return u.Checklists[DailyChecklistName]
}

// ChecklistsInOrder returns checklists in display (insertion) order.
func (u *UserState) ChecklistsInOrder() []*Checklist {
	out := make([]*Checklist, 0, len(u.ChecklistOrder))
	for _, name := range u.ChecklistOrder {
		if c, ok := u.Checklists[name]; ok {
			out = append(out, c)
		}
	}
	return out
}

// AddChecklist validates and creates a new named checklist.
func (u *UserState) AddChecklist(name string) (*Checklist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.ValidationError("checklist name must not be empty")
	}
	if len([]rune(name)) > MaxChecklistNameLen {
		return nil, errors.ValidationError("checklist name too long").
			WithContext("max_len", MaxChecklistNameLen)
	}
	if _, exists := u.Checklists[name]; exists {
		return nil, errors.ValidationError("a checklist with that name already exists").
			WithContext("name", name)
	}
	if len(u.Checklists) >= MaxChecklists {
		return nil, errors.ValidationError("checklist limit reached").
			WithContext("max", MaxChecklists)
	}
	c := &Checklist{Name: name}
	u.Checklists[name] = c
	u.ChecklistOrder = append(u.ChecklistOrder, name)
	return c, nil
}

// DeleteChecklist removes a named checklist. "Daily" is exempt from deletion.
func (u *UserState) DeleteChecklist(name string) error {
	if name == DailyChecklistName {
		return errors.ValidationError(`the "Daily" checklist cannot be deleted`)
	}
	if _, ok := u.Checklists[name]; !ok {
		return errors.NotFoundError("checklist not found").WithContext("name", name)
	}
	delete(u.Checklists, name)
	for i, n := range u.ChecklistOrder {
		if n == name {
			u.ChecklistOrder = append(u.ChecklistOrder[:i], u.ChecklistOrder[i+1:]...)
			break
		}
	}
	return nil
}

// FindTask searches all checklists for a task id. Task ids are generated
// unique, so at most one checklist can own it.
func (u *UserState) FindTask(id string) (*Checklist, *Task) {
	for _, c := range u.Checklists {
		if t := c.FindTask(id); t != nil {
			return c, t
		}
	}
	return nil, nil
}

// Clone returns a deep copy.
func (u *UserState) Clone() *UserState {
	out := &UserState{
		ID:          u.ID,
		Entitlement: u.Entitlement,
		Settings:    u.Settings,
		Checklists:  make(map[string]*Checklist, len(u.Checklists)),
	}
	if u.PremiumExpires != nil {
		exp := *u.PremiumExpires
		out.PremiumExpires = &exp
	}
	for name, c := range u.Checklists {
		out.Checklists[name] = c.Clone()
	}
	if u.ChecklistOrder != nil {
		out.ChecklistOrder = append([]string(nil), u.ChecklistOrder...)
	}
	return out
}
