// Package schedule implements the scheduling core: parsing schedule
// documents into typed steps, the filesystem-backed schedule store with
// overlap detection and approval, per-run execution artifacts, and the
// runner that executes steps at their scheduled times.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jdiez17/sat-o-mat/internal/executor"
	"github.com/jdiez17/sat-o-mat/internal/radio"
	"github.com/jdiez17/sat-o-mat/internal/tracker"
)

// Schedule is a parsed schedule document. Start and end come from the
// mandatory variables of the same names; steps keep their declared order.
type Schedule struct {
	Start     time.Time
	End       time.Time
	Variables map[string]any
	Steps     []Step
}

// Step is one scheduled command. A nil Time means the step runs as soon as
// its predecessor finished.
type Step struct {
	Time    *TimeExpr
	Command Command
}

// Command routes a step to exactly one subsystem.
type Command interface {
	// Subsystem names the command's target: tracker, executor, or radio.
	Subsystem() string
}

// TrackerCommand targets the antenna/rotator tracker.
type TrackerCommand struct{ Cmd tracker.Command }

// ExecutorCommand targets the shell command executor.
type ExecutorCommand struct{ Cmd executor.Command }

// RadioCommand targets the radio.
type RadioCommand struct{ Cmd radio.Command }

func (TrackerCommand) Subsystem() string  { return "tracker" }
func (ExecutorCommand) Subsystem() string { return "executor" }
func (RadioCommand) Subsystem() string    { return "radio" }

// ValidationError marks a document that parsed as YAML but violates a
// schedule-level requirement.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return "validation: " + e.Msg }

// StepError marks a malformed step, identified by its zero-based index.
type StepError struct {
	Index int
	Msg   string
}

func (e *StepError) Error() string { return fmt.Sprintf("step %d: %s", e.Index, e.Msg) }

// Parse transforms a schedule document into a Schedule. The document's
// variables must include RFC 3339 "start" and "end" with end after start.
func Parse(doc []byte) (*Schedule, error) {
	var root struct {
		Variables map[string]any `yaml:"variables"`
		Steps     []any          `yaml:"steps"`
	}
	if err := yaml.Unmarshal(doc, &root); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	vars := root.Variables
	if vars == nil {
		vars = map[string]any{}
	}

	start, err := requiredTimestamp(vars, "start")
	if err != nil {
		return nil, err
	}
	end, err := requiredTimestamp(vars, "end")
	if err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, &ValidationError{Msg: fmt.Sprintf("end (%s) must be after start (%s)",
			end.Format(time.RFC3339), start.Format(time.RFC3339))}
	}

	if root.Steps == nil {
		return nil, &StepError{Index: 0, Msg: "missing 'steps'"}
	}

	steps := make([]Step, 0, len(root.Steps))
	for i, raw := range root.Steps {
		step, err := parseStep(i, raw, vars)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}

	return &Schedule{Start: start, End: end, Variables: vars, Steps: steps}, nil
}

func requiredTimestamp(vars map[string]any, name string) (time.Time, error) {
	v, ok := vars[name]
	if !ok {
		return time.Time{}, &ValidationError{Msg: fmt.Sprintf("missing required variable %q", name)}
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, &ValidationError{Msg: fmt.Sprintf("variable %q must be an RFC 3339 timestamp", name)}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, &ValidationError{Msg: fmt.Sprintf("variable %q: %v", name, err)}
	}
	return t.UTC(), nil
}

func parseStep(i int, raw any, vars map[string]any) (Step, error) {
	stepErr := func(format string, args ...any) error {
		return &StepError{Index: i, Msg: fmt.Sprintf(format, args...)}
	}

	m, ok := raw.(map[string]any)
	if !ok {
		return Step{}, stepErr("expected mapping")
	}

	var step Step
	if rawTime, ok := m["time"]; ok {
		resolved := resolveValue(rawTime, vars)
		s, ok := resolved.(string)
		if !ok {
			return Step{}, stepErr("time must be a string")
		}
		expr, err := ParseTimeExpr(s)
		if err != nil {
			return Step{}, stepErr("%v", err)
		}
		step.Time = &expr
	}

	var subsystem string
	var value any
	for key, v := range m {
		if key == "time" {
			continue
		}
		if subsystem != "" {
			return Step{}, stepErr("expected exactly one subsystem, got %q and %q", subsystem, key)
		}
		subsystem = key
		value = v
	}
	if subsystem == "" {
		return Step{}, stepErr("no command found")
	}

	value = resolveValue(value, vars)

	var err error
	switch subsystem {
	case "tracker":
		var cmd tracker.Command
		if cmd, err = tracker.ParseCommand(value); err == nil {
			step.Command = TrackerCommand{Cmd: cmd}
		}
	case "executor":
		var cmd executor.Command
		if cmd, err = executor.ParseCommand(value); err == nil {
			step.Command = ExecutorCommand{Cmd: cmd}
		}
	case "radio":
		var cmd radio.Command
		if cmd, err = radio.ParseCommand(value); err == nil {
			step.Command = RadioCommand{Cmd: cmd}
		}
	default:
		return Step{}, stepErr("unknown subsystem: %s", subsystem)
	}
	if err != nil {
		return Step{}, stepErr("%v", err)
	}

	return step, nil
}

// resolveValue substitutes variables through a decoded YAML value tree.
// A string that is exactly "$name" (after trimming, with no embedded
// whitespace) is replaced by the variable's full value, preserving its
// type. Any other string gets textual substitution of the scalar
// variables; non-scalar variables are left alone inline.
func resolveValue(value any, vars map[string]any) any {
	switch v := value.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		if strings.HasPrefix(trimmed, "$") && !strings.ContainsAny(trimmed, " \t") {
			if full, ok := vars[trimmed[1:]]; ok {
				return full
			}
		}
		result := v
		for name, val := range vars {
			if s, ok := scalarString(val); ok {
				result = strings.ReplaceAll(result, "$"+name, s)
			}
		}
		return result

	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			out[key] = resolveValue(val, vars)
		}
		return out

	case []any:
		out := make([]any, len(v))
		for idx, val := range v {
			out[idx] = resolveValue(val, vars)
		}
		return out

	default:
		return value
	}
}

// scalarString stringifies the variable values eligible for inline
// substitution: strings, numbers, and booleans.
func scalarString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case bool:
		return strconv.FormatBool(val), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case uint64:
		return strconv.FormatUint(val, 10), true
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), true
	default:
		return "", false
	}
}
