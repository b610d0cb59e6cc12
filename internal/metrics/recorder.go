package metrics

import "time"

// Recorder defines observability hooks for command handling, persistence and
// the daily reset. Implementations may forward to Prometheus, OpenTelemetry,
// etc. All methods must be safe for nil receivers when using the NoopRecorder
// (allowing optional injection).
type Recorder interface {
	IncCommand(command string)
	IncCallback(verb string, outcome string) // outcome: ok|rejected|error
	ObserveSaveDuration(d time.Duration)
	IncResetRun()
	AddResetUsers(n int)
	IncNotifyFailure()
	IncActivation(plan string)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncCommand(string)                {}
func (NoopRecorder) IncCallback(string, string)       {}
func (NoopRecorder) ObserveSaveDuration(time.Duration) {}
func (NoopRecorder) IncResetRun()                     {}
func (NoopRecorder) AddResetUsers(int)                {}
func (NoopRecorder) IncNotifyFailure()                {}
func (NoopRecorder) IncActivation(string)             {}
