package schedule

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// RunState is the lifecycle state of one schedule execution.
type RunState string

const (
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunFailed    RunState = "failed"
)

// StepResult records the outcome of a single executed step.
type StepResult struct {
	StepIndex   int        `yaml:"step_index"`
	CommandType string     `yaml:"command_type"`
	StartedAt   time.Time  `yaml:"started_at"`
	CompletedAt *time.Time `yaml:"completed_at,omitempty"`
	Success     bool       `yaml:"success"`
	Error       *string    `yaml:"error,omitempty"`
}

// ExecutionLog is the durable record of one schedule run, persisted after
// every step so a crash still leaves a usable trace.
type ExecutionLog struct {
	ScheduleID  string       `yaml:"schedule_id"`
	State       RunState     `yaml:"state"`
	StartedAt   time.Time    `yaml:"started_at"`
	CompletedAt *time.Time   `yaml:"completed_at,omitempty"`
	StepResults []StepResult `yaml:"step_results"`
}

// Artifacts owns the per-run artifact directory: the execution log plus the
// per-step stdout/stderr captures written by the executor.
type Artifacts struct {
	dir string
	log ExecutionLog
}

// NewArtifacts creates <base>/artifacts/<scheduleID>/ and an execution log
// in the running state. A pre-existing directory with content is refused:
// it would mean two runs writing into the same artifact space.
func NewArtifacts(base, scheduleID string) (*Artifacts, error) {
	dir := filepath.Join(base, "artifacts", scheduleID)

	if dirents, err := os.ReadDir(dir); err == nil && len(dirents) > 0 {
		return nil, fmt.Errorf("artifacts directory %s already has content", dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifacts directory: %w", err)
	}

	a := &Artifacts{
		dir: dir,
		log: ExecutionLog{
			ScheduleID: scheduleID,
			State:      RunRunning,
			StartedAt:  time.Now().UTC(),
		},
	}
	return a, a.save()
}

// Dir returns the artifact directory for this run.
func (a *Artifacts) Dir() string { return a.dir }

// ExecutionLog returns a copy of the current log.
func (a *Artifacts) ExecutionLog() ExecutionLog {
	out := a.log
	out.StepResults = append([]StepResult(nil), a.log.StepResults...)
	return out
}

// AddStepResult appends a result and persists the log.
func (a *Artifacts) AddStepResult(result StepResult) error {
	a.log.StepResults = append(a.log.StepResults, result)
	return a.save()
}

// RecordAbort marks the given step failed with the abort reason. If the
// step already has a result (the usual case: a spawned process failed
// after its step was recorded as started) that result is updated in place,
// keeping one result per step.
func (a *Artifacts) RecordAbort(stepIndex int, reason string) error {
	now := time.Now().UTC()
	for i := range a.log.StepResults {
		if a.log.StepResults[i].StepIndex == stepIndex {
			a.log.StepResults[i].Success = false
			a.log.StepResults[i].Error = &reason
			a.log.StepResults[i].CompletedAt = &now
			return a.save()
		}
	}
	return a.AddStepResult(StepResult{
		StepIndex:   stepIndex,
		CommandType: "executor",
		StartedAt:   now,
		CompletedAt: &now,
		Success:     false,
		Error:       &reason,
	})
}

// FinishWithState finalizes the log.
func (a *Artifacts) FinishWithState(state RunState) error {
	now := time.Now().UTC()
	a.log.State = state
	a.log.CompletedAt = &now
	return a.save()
}

func (a *Artifacts) save() error {
	out, err := yaml.Marshal(a.log)
	if err != nil {
		return fmt.Errorf("serialize execution log: %w", err)
	}
	return os.WriteFile(filepath.Join(a.dir, "execution_log.yaml"), out, 0o644)
}
