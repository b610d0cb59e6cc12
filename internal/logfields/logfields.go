package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyUserID     = "user_id"
	KeyChecklist  = "checklist"
	KeyTaskID     = "task_id"
	KeyCommand    = "command"
	KeyVerb       = "verb"
	KeyPlan       = "plan"
	KeyUsers      = "users"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func UserID(id string) slog.Attr      { return slog.String(KeyUserID, id) }
func Checklist(name string) slog.Attr { return slog.String(KeyChecklist, name) }
func TaskID(id string) slog.Attr      { return slog.String(KeyTaskID, id) }
func Command(c string) slog.Attr      { return slog.String(KeyCommand, c) }
func Verb(v string) slog.Attr         { return slog.String(KeyVerb, v) }
func Plan(p string) slog.Attr         { return slog.String(KeyPlan, p) }
func Users(n int) slog.Attr           { return slog.Int(KeyUsers, n) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
