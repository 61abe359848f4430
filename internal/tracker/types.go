package tracker

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jdiez17/sat-o-mat/internal/predict"
)

// Command is a tracker subsystem command from a schedule step or API call.
type Command interface{ isTrackerCommand() }

// RunCommand starts tracking the satellite described by a TLE group.
type RunCommand struct {
	TLE     string       `yaml:"tle"`
	End     *time.Time   `yaml:"end"`
	Rotator string       `yaml:"rotator"`
	Radio   *RadioConfig `yaml:"radio"`
}

// RotatorParkCommand orders the named rotator to its park position. The
// tracker logs the order and broadcasts it as a telemetry event; no rotator
// hardware is driven.
type RotatorParkCommand struct {
	Rotator string `yaml:"rotator"`
}

// StopCommand stops the active tracking worker, if any.
type StopCommand struct{}

func (RunCommand) isTrackerCommand()         {}
func (RotatorParkCommand) isTrackerCommand() {}
func (StopCommand) isTrackerCommand()        {}

// RadioConfig names the radio device and link frequencies used to derive a
// Doppler frequency plan while tracking.
type RadioConfig struct {
	Device      string      `yaml:"device"`
	Frequencies Frequencies `yaml:"frequencies"`
}

// Frequencies are link frequency literals, e.g. "437.8 MHz".
type Frequencies struct {
	Uplink   string `yaml:"uplink"`
	Downlink string `yaml:"downlink"`
}

// ParseCommand decodes a generic YAML-shaped value (as produced by the
// schedule parser after variable substitution) into a typed command.
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
	case "run":
		var cmd RunCommand
		if err := yaml.Unmarshal(raw, &cmd); err != nil {
			return nil, err
		}
		if cmd.TLE == "" {
			return nil, fmt.Errorf("tracker run: missing tle")
		}
		return cmd, nil
	case "rotator_park":
		var cmd RotatorParkCommand
		if err := yaml.Unmarshal(raw, &cmd); err != nil {
			return nil, err
		}
		if cmd.Rotator == "" {
			return nil, fmt.Errorf("tracker rotator_park: missing rotator")
		}
		return cmd, nil
	case "stop":
		return StopCommand{}, nil
	case "":
		return nil, fmt.Errorf("tracker command: missing action")
	default:
		return nil, fmt.Errorf("tracker command: unknown action %q", head.Action)
	}
}

// Mode is the tracker's lifecycle state.
type Mode string

const (
	ModeIdle    Mode = "idle"
	ModeRunning Mode = "running"
)

// Status is the externally visible tracker state. When Mode is idle the
// run fields, last sample, and trajectory are all cleared.
type Status struct {
	Mode       Mode             `json:"mode"`
	Start      *time.Time       `json:"start,omitempty"`
	End        *time.Time       `json:"end,omitempty"`
	TLEName    *string          `json:"tle_name,omitempty"`
	LastSample *predict.Sample  `json:"last_sample,omitempty"`
	Trajectory []predict.Sample `json:"trajectory,omitempty"`
}
