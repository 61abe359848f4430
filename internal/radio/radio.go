// Package radio defines the command surface of the radio subsystem. The
// radio's signal chain is an external collaborator; this package gives the
// schedule parser and runner a typed target to decode into and dispatch to.
package radio

import (
	"fmt"
	"log"
	"sync"

	"gopkg.in/yaml.v3"
)

// Command is a radio subsystem command.
type Command interface{ isRadioCommand() }

// RunCommand starts a radio with the given passband configuration.
type RunCommand struct {
	Radio     string  `yaml:"radio"`
	Bandwidth string  `yaml:"bandwidth"`
	Out       *Output `yaml:"out"`
	WebFFT    bool    `yaml:"web_fft"`
}

// StopCommand stops whatever the radio subsystem is running.
type StopCommand struct{}

func (RunCommand) isRadioCommand()  {}
func (StopCommand) isRadioCommand() {}

// Output selects where demodulated data goes.
type Output struct {
	UDP *UDPOutput `yaml:"udp"`
}

// UDPOutput streams samples to a UDP destination in the named wire format.
type UDPOutput struct {
	Send   string `yaml:"send"`
	Format string `yaml:"format"`
}

// ParseCommand decodes a generic YAML-shaped value into a typed command.
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
		if cmd.Radio == "" {
			return nil, fmt.Errorf("radio run: missing radio")
		}
		if cmd.Bandwidth == "" {
			return nil, fmt.Errorf("radio run: missing bandwidth")
		}
		return cmd, nil
	case "stop":
		return StopCommand{}, nil
	case "":
		return nil, fmt.Errorf("radio command: missing action")
	default:
		return nil, fmt.Errorf("radio command: unknown action %q", head.Action)
	}
}

// Controller is the contract the runner dispatches radio commands through.
type Controller interface {
	ExecuteCommand(cmd Command) error
}

// LogController is the default controller: it records which radio is
// running and logs every command. It stands in for the real signal chain
// so schedules exercising the radio can run end to end without hardware.
type LogController struct {
	log *log.Logger

	mu      sync.Mutex
	running string // active radio name, empty when stopped
}

// NewLogController returns a stopped controller.
func NewLogController(logger *log.Logger) *LogController {
	return &LogController{log: logger}
}

// ExecuteCommand dispatches a radio command.
func (c *LogController) ExecuteCommand(cmd Command) error {
	switch cmd := cmd.(type) {
	case RunCommand:
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.running != "" {
			return fmt.Errorf("radio %s already running", c.running)
		}
		c.running = cmd.Radio
		c.log.Printf("radio: starting %s, bandwidth %s, web_fft=%v", cmd.Radio, cmd.Bandwidth, cmd.WebFFT)
		if cmd.Out != nil && cmd.Out.UDP != nil {
			c.log.Printf("radio: streaming %s to %s", cmd.Out.UDP.Format, cmd.Out.UDP.Send)
		}
		return nil
	case StopCommand:
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.running != "" {
			c.log.Printf("radio: stopping %s", c.running)
			c.running = ""
		}
		return nil
	default:
		return fmt.Errorf("radio: unhandled command")
	}
}

// Running returns the name of the active radio, or empty when stopped.
func (c *LogController) Running() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
