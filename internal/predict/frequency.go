package predict

import (
	"fmt"
	"strconv"
	"strings"
)

// FrequencyPlan holds the link frequencies used to compute Doppler-shifted
// values. Either side may be absent; absent links simply produce no Doppler
// field in the samples.
type FrequencyPlan struct {
	UplinkHz   *float64
	DownlinkHz *float64
}

// BuildFrequencyPlan parses the optional uplink and downlink frequency
// literals into a plan. Unparseable literals are treated as absent.
func BuildFrequencyPlan(uplink, downlink string) FrequencyPlan {
	var plan FrequencyPlan
	if hz, err := ParseFrequencyHz(uplink); err == nil {
		plan.UplinkHz = &hz
	}
	if hz, err := ParseFrequencyHz(downlink); err == nil {
		plan.DownlinkHz = &hz
	}
	return plan
}

// ParseFrequencyHz parses a frequency literal of the form "<number> <unit>"
// where unit is hz, khz, mhz, or ghz (case-insensitive). A missing unit
// means Hz. "437.8 MHz" parses to 437.8e6.
func ParseFrequencyHz(input string) (float64, error) {
	fields := strings.Fields(strings.TrimSpace(input))
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty frequency literal")
	}

	value, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("frequency %q: %w", input, err)
	}

	unit := "hz"
	if len(fields) > 1 {
		unit = strings.ToLower(fields[1])
	}

	switch unit {
	case "hz":
		return value, nil
	case "khz":
		return value * 1e3, nil
	case "mhz":
		return value * 1e6, nil
	case "ghz":
		return value * 1e9, nil
	default:
		return value, nil
	}
}
