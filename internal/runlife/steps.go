package runlife

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/CyberForge275/traderunner-sub002/internal/fsio"
	"github.com/CyberForge275/traderunner-sub002/internal/telemetry"
)

// StepStatus is the lifecycle state of one pipeline step event.
type StepStatus string

const (
	StepStarted   StepStatus = "started"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// StepEvent is one line of run_steps.jsonl.
type StepEvent struct {
	StepIndex int            `json:"step_index"`
	StepName  string         `json:"step_name"`
	Status    StepStatus     `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// StepTracker appends step events in emission order. UI consumers order
// by step_index and treat the highest started-without-terminal as current.
type StepTracker struct {
	path string
	next int
}

// NewStepTracker writes to the run's step stream.
func NewStepTracker(ctx *RunContext) *StepTracker {
	return &StepTracker{path: ctx.Path(FileSteps)}
}

// Step is one opened step awaiting its terminal event.
type Step struct {
	tracker *StepTracker
	index   int
	name    string
	started time.Time
}

func (t *StepTracker) emit(ev StepEvent) {
	ev.Timestamp = time.Now().UTC()
	telemetry.StepsTotal.WithLabelValues(ev.StepName, string(ev.Status)).Inc()
	if err := fsio.AppendJSONLine(t.path, ev); err != nil {
		// The step stream is advisory for UIs; a write failure must not
		// take the pipeline down.
		log.Error().Err(err).Str("step", ev.StepName).Msg("step event write failed")
	}
}

// Begin opens a step with a started event.
func (t *StepTracker) Begin(name string) *Step {
	idx := t.next
	t.next++
	t.emit(StepEvent{StepIndex: idx, StepName: name, Status: StepStarted})
	return &Step{tracker: t, index: idx, name: name, started: time.Now()}
}

// Skip records a step that a gate decision made unreachable.
func (t *StepTracker) Skip(name string, details map[string]any) {
	idx := t.next
	t.next++
	t.emit(StepEvent{StepIndex: idx, StepName: name, Status: StepSkipped, Details: details})
}

// Complete closes the step successfully.
func (s *Step) Complete(details map[string]any) {
	s.observeDuration()
	s.tracker.emit(StepEvent{StepIndex: s.index, StepName: s.name, Status: StepCompleted, Details: details})
}

// Fail closes the step with the failure cause.
func (s *Step) Fail(err error) {
	s.observeDuration()
	details := map[string]any{}
	if err != nil {
		details["error"] = err.Error()
	}
	s.tracker.emit(StepEvent{StepIndex: s.index, StepName: s.name, Status: StepFailed, Details: details})
}

func (s *Step) observeDuration() {
	telemetry.StageDuration.WithLabelValues(s.name).Observe(time.Since(s.started).Seconds())
}
