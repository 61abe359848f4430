// Package executor launches schedule shell steps as child processes and
// watches them in the background. Each child gets its stdout and stderr
// redirected into the run's artifact directory and a monitor goroutine that
// publishes an abort signal if the process fails under an abort policy.
package executor

import (
	"fmt"
	"log"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/jdiez17/sat-o-mat/internal/abort"
)

// OnFail selects what a non-zero exit of a shell step does to the run.
type OnFail string

const (
	// OnFailAbort publishes an abort signal, terminating the schedule.
	OnFailAbort OnFail = "abort"
	// OnFailContinue logs the failure and lets the schedule continue.
	OnFailContinue OnFail = "continue"
)

// Command is an executor subsystem command.
type Command interface{ isExecutorCommand() }

// RunShellCommand starts a shell command in the background.
type RunShellCommand struct {
	Cmd    string `yaml:"cmd"`
	OnFail OnFail `yaml:"on_fail"`
}

// StopCommand kills every child the executor has started.
type StopCommand struct{}

func (RunShellCommand) isExecutorCommand() {}
func (StopCommand) isExecutorCommand()     {}

// ParseCommand decodes a generic YAML-shaped value into a typed command.
// on_fail defaults to abort.
func ParseCommand(value any) (Command, error) {
	raw, err := yaml.Marshal(value)
	if err != nil {
		return nil, err
	}

	var head struct {
		Action string `yaml:"action"`
	}
	if err := yaml.Unmarshal(raw, &head); err != nil {
		return nil, err
	}

	switch head.Action {
	case "run_shell":
		cmd := RunShellCommand{OnFail: OnFailAbort}
		if err := yaml.Unmarshal(raw, &cmd); err != nil {
			return nil, err
		}
		if cmd.Cmd == "" {
			return nil, fmt.Errorf("executor run_shell: missing cmd")
		}
		switch cmd.OnFail {
		case OnFailAbort, OnFailContinue:
		case "":
			cmd.OnFail = OnFailAbort
		default:
			return nil, fmt.Errorf("executor run_shell: unknown on_fail %q", cmd.OnFail)
		}
		return cmd, nil
	case "stop":
		return StopCommand{}, nil
	case "":
		return nil, fmt.Errorf("executor command: missing action")
	default:
		return nil, fmt.Errorf("executor command: unknown action %q", head.Action)
	}
}

// Executor tracks the children it has spawned. Children are shared with
// their monitor goroutines behind per-child locks so StopAll can take a
// child out for killing without racing the monitor's polling.
type Executor struct {
	artifactsDir string
	abortCh      chan<- abort.Signal
	log          *log.Logger

	mu        sync.Mutex
	processes []*trackedProcess
}

// New returns an executor writing step logs under artifactsDir and
// publishing failures on abortCh.
func New(artifactsDir string, abortCh chan<- abort.Signal, logger *log.Logger) *Executor {
	return &Executor{
		artifactsDir: artifactsDir,
		abortCh:      abortCh,
		log:          logger,
	}
}

// ExecuteCommand dispatches an executor command for the given step.
func (e *Executor) ExecuteCommand(cmd Command, stepIndex int) error {
	switch c := cmd.(type) {
	case RunShellCommand:
		return e.RunShell(c.Cmd, stepIndex, c.OnFail)
	case StopCommand:
		e.log.Printf("executor: stopping all child processes")
		e.StopAll()
		return nil
	default:
		return fmt.Errorf("executor: unhandled command")
	}
}

// RunShell spawns the command via the platform shell and registers it with
// a background monitor. The call returns as soon as the child has started;
// exit status is handled asynchronously by the monitor.
func (e *Executor) RunShell(cmdLine string, stepIndex int, onFail OnFail) error {
	p, err := e.spawn(cmdLine, stepIndex, onFail)
	if err != nil {
		e.log.Printf("executor: step %d failed to start: %v", stepIndex, err)
		return err
	}

	e.mu.Lock()
	e.processes = append(e.processes, p)
	e.mu.Unlock()
	return nil
}

// StopAll kills every tracked child, best effort: kill failures are logged
// and do not stop the sweep. The registry is cleared afterwards.
func (e *Executor) StopAll() {
	e.mu.Lock()
	procs := e.processes
	e.processes = nil
	e.mu.Unlock()

	for _, p := range procs {
		cmd := p.take()
		if cmd == nil || cmd.Process == nil {
			continue
		}
		pid := cmd.Process.Pid
		if err := cmd.Process.Kill(); err != nil {
			e.log.Printf("executor: failed to kill process %d: %v", pid, err)
		} else {
			e.log.Printf("executor: killed process %d", pid)
		}
	}
}

// Close kills any children still running. Safe to call more than once.
func (e *Executor) Close() {
	e.StopAll()
}
