package schedule

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jdiez17/sat-o-mat/internal/abort"
	"github.com/jdiez17/sat-o-mat/internal/executor"
	"github.com/jdiez17/sat-o-mat/internal/radio"
	"github.com/jdiez17/sat-o-mat/internal/telemetry"
	"github.com/jdiez17/sat-o-mat/internal/tracker"
)

// drainPeriod is how long the runner listens for late abort signals after
// the last step, so a process that failed moments before the end still
// fails the run.
const drainPeriod = 100 * time.Millisecond

// AbortedError terminates a run on a background worker's abort signal.
type AbortedError struct {
	Step   int
	Reason string
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("aborted at step %d: %s", e.Step, e.Reason)
}

// Runner executes one schedule: it walks the steps in declared order,
// sleeps until each step's resolved time, dispatches the command to its
// subsystem, and records every outcome in the run's artifacts. Abort
// signals from background workers terminate the run at the next wait.
type Runner struct {
	scheduleID string
	schedule   *Schedule
	tracker    *tracker.Tracker
	radio      radio.Controller
	artifacts  *Artifacts
	executor   *executor.Executor
	abortCh    chan abort.Signal
	log        *log.Logger

	// Events, when set, receives step lifecycle payloads.
	Events func(ev telemetry.Payload)
}

// NewRunner prepares a run: it creates the artifact directory under
// baseDir and wires an executor that writes step logs there and publishes
// failures on the runner's abort channel.
func NewRunner(scheduleID string, sched *Schedule, trk *tracker.Tracker, radioCtl radio.Controller, baseDir string, logger *log.Logger) (*Runner, error) {
	artifacts, err := NewArtifacts(baseDir, scheduleID)
	if err != nil {
		return nil, err
	}

	abortCh := make(chan abort.Signal, 16)
	return &Runner{
		scheduleID: scheduleID,
		schedule:   sched,
		tracker:    trk,
		radio:      radioCtl,
		artifacts:  artifacts,
		executor:   executor.New(artifacts.Dir(), abortCh, logger),
		abortCh:    abortCh,
		log:        logger,
	}, nil
}

// Artifacts exposes the run's artifact log.
func (r *Runner) Artifacts() *Artifacts { return r.artifacts }

// Run executes the schedule. It returns nil after all steps completed and
// the drain period passed quietly; an AbortedError if a background worker
// signalled; the step's own error if a dispatch failed; or the context
// error on cancellation. The execution log is finalized either way.
func (r *Runner) Run(ctx context.Context) error {
	defer r.executor.Close()

	r.log.Printf("runner: starting schedule %s (%d steps)", r.scheduleID, len(r.schedule.Steps))

	for i, step := range r.schedule.Steps {
		if err := r.waitForStep(ctx, step); err != nil {
			r.finish(RunFailed)
			return err
		}

		started := time.Now().UTC()
		r.emit(telemetry.NewStepStarted(r.scheduleID, i, step.Command.Subsystem()))

		err := r.dispatch(step.Command, i)
		completed := time.Now().UTC()

		result := StepResult{
			StepIndex:   i,
			CommandType: step.Command.Subsystem(),
			StartedAt:   started,
			CompletedAt: &completed,
			Success:     err == nil,
		}
		if err != nil {
			msg := err.Error()
			result.Error = &msg
		}
		if logErr := r.artifacts.AddStepResult(result); logErr != nil {
			r.log.Printf("runner: failed to persist step result: %v", logErr)
		}
		r.emit(telemetry.NewStepFinished(r.scheduleID, i, step.Command.Subsystem(), err == nil))

		if err != nil {
			r.log.Printf("runner: step %d failed: %v", i, err)
			r.finish(RunFailed)
			return err
		}
	}

	// Give background monitors a moment to report a failure from the tail
	// of the schedule before declaring success.
	if err := r.wait(ctx, drainPeriod); err != nil {
		r.finish(RunFailed)
		return err
	}

	r.finish(RunCompleted)
	return nil
}

// waitForStep sleeps until the step's resolved time. Steps without a time,
// and steps whose time is already past, run immediately. The wait is
// abortable: an abort signal or context cancellation ends the run.
func (r *Runner) waitForStep(ctx context.Context, step Step) error {
	var wait time.Duration
	if step.Time != nil {
		target := step.Time.Resolve(r.schedule.Start)
		wait = time.Until(target)
		if wait < 0 {
			wait = 0
		}
	}
	return r.wait(ctx, wait)
}

// wait blocks for d while watching the abort channel and the context.
func (r *Runner) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case sig := <-r.abortCh:
		r.log.Printf("runner: abort signal received: %s", sig)
		if err := r.artifacts.RecordAbort(sig.Step, sig.Reason); err != nil {
			r.log.Printf("runner: failed to record abort: %v", err)
		}
		return &AbortedError{Step: sig.Step, Reason: sig.Reason}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatch executes one command synchronously on its subsystem.
func (r *Runner) dispatch(cmd Command, stepIndex int) error {
	switch c := cmd.(type) {
	case TrackerCommand:
		return r.tracker.ExecuteCommand(c.Cmd)
	case ExecutorCommand:
		return r.executor.ExecuteCommand(c.Cmd, stepIndex)
	case RadioCommand:
		return r.radio.ExecuteCommand(c.Cmd)
	default:
		return fmt.Errorf("runner: unhandled command subsystem %q", cmd.Subsystem())
	}
}

func (r *Runner) finish(state RunState) {
	if err := r.artifacts.FinishWithState(state); err != nil {
		r.log.Printf("runner: failed to finalize execution log: %v", err)
	}
	r.emit(telemetry.NewRunFinished(r.scheduleID, string(state)))
}

func (r *Runner) emit(ev telemetry.Payload) {
	if r.Events != nil {
		r.Events(ev)
	}
}
