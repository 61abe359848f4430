// Package abort carries the signal used to terminate a running schedule.
// The executor's process monitors publish it; the tracker worker does not
// publish abort signals. The schedule runner is the single consumer.
package abort

import "fmt"

// Signal asks the runner to terminate the current schedule execution.
type Signal struct {
	// Step is the index of the step that caused the abort.
	Step int
	// Reason is a human-readable explanation recorded in the execution log.
	Reason string
}

func (s Signal) String() string {
	return fmt.Sprintf("step %d: %s", s.Step, s.Reason)
}

// Publish sends sig without blocking. Signals emitted after the runner has
// exited (nobody draining the channel, buffer full) are dropped.
func Publish(ch chan<- Signal, sig Signal) {
	select {
	case ch <- sig:
	default:
	}
}
