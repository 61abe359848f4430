package radio

import (
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand(map[string]any{
		"action":    "run",
		"radio":     "usrp0",
		"bandwidth": "48 khz",
		"out": map[string]any{
			"udp": map[string]any{"send": "127.0.0.1:7355", "format": "s16le"},
		},
		"web_fft": true,
	})
	require.NoError(t, err)
	run, ok := cmd.(RunCommand)
	require.True(t, ok)
	assert.Equal(t, "usrp0", run.Radio)
	assert.Equal(t, "48 khz", run.Bandwidth)
	assert.True(t, run.WebFFT)
	require.NotNil(t, run.Out)
	require.NotNil(t, run.Out.UDP)
	assert.Equal(t, "127.0.0.1:7355", run.Out.UDP.Send)

	cmd, err = ParseCommand(map[string]any{"action": "stop"})
	require.NoError(t, err)
	assert.IsType(t, StopCommand{}, cmd)

	_, err = ParseCommand(map[string]any{"action": "run", "radio": "usrp0"})
	assert.Error(t, err, "missing bandwidth")

	_, err = ParseCommand(map[string]any{"action": "transmit"})
	assert.Error(t, err)
}

func TestLogControllerLifecycle(t *testing.T) {
	c := NewLogController(log.New(io.Discard, "", 0))
	assert.Empty(t, c.Running())

	require.NoError(t, c.ExecuteCommand(RunCommand{Radio: "usrp0", Bandwidth: "48 khz"}))
	assert.Equal(t, "usrp0", c.Running())

	// A second run while active is refused.
	err := c.ExecuteCommand(RunCommand{Radio: "rtl0", Bandwidth: "32 khz"})
	assert.Error(t, err)

	require.NoError(t, c.ExecuteCommand(StopCommand{}))
	assert.Empty(t, c.Running())

	// Stop on a stopped radio is a no-op.
	require.NoError(t, c.ExecuteCommand(StopCommand{}))
}
