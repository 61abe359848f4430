// Package tracker runs the real-time satellite tracking worker. A Tracker
// owns at most one worker goroutine; the worker computes a rolling
// trajectory for the tracked object and walks through it sample by sample
// in wall-clock time, publishing the current geometry to a shared status
// record. Run and Stop transitions are cooperative and idempotent where the
// state machine allows.
package tracker

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/jdiez17/sat-o-mat/internal/predict"
	"github.com/jdiez17/sat-o-mat/internal/telemetry"
)

const (
	// defaultOpenEnded is the rolling window length when no end time is given.
	defaultOpenEnded = 15 * time.Minute
	// sampleStep is the trajectory sampling interval.
	sampleStep = time.Second
)

var (
	// ErrAlreadyRunning is returned by Run while a worker is active.
	ErrAlreadyRunning = errors.New("tracker already running")
	// ErrInvalidTLEFormat marks a TLE group that is not 2 or 3 non-blank
	// lines ending in element lines prefixed "1 " and "2 ".
	ErrInvalidTLEFormat = errors.New("invalid tle format")
)

type workerHandle struct {
	stop chan struct{}
	done chan struct{}
}

// Tracker coordinates the tracking worker and its shared status.
type Tracker struct {
	station predict.GroundStation
	log     *log.Logger

	// Events, when set, receives telemetry payloads (sample updates, park
	// orders). Must be safe for calls from the worker goroutine.
	Events func(ev telemetry.Payload)

	mu     sync.Mutex // serializes run/stop transitions
	worker *workerHandle

	statusMu sync.Mutex
	status   Status
}

// New returns an idle tracker for the given station.
func New(station predict.GroundStation, logger *log.Logger) *Tracker {
	return &Tracker{
		station: station,
		log:     logger,
		status:  Status{Mode: ModeIdle},
	}
}

// Status returns a snapshot of the current tracker state.
func (t *Tracker) Status() Status {
	t.statusMu.Lock()
	defer t.statusMu.Unlock()
	return t.status
}

// ExecuteCommand dispatches a tracker command.
func (t *Tracker) ExecuteCommand(cmd Command) error {
	switch c := cmd.(type) {
	case RunCommand:
		return t.Run(c.TLE, c.End, c.Radio)
	case RotatorParkCommand:
		return t.park(c.Rotator)
	case StopCommand:
		t.Stop()
		return nil
	default:
		return errors.New("tracker: unhandled command")
	}
}

// Run parses the TLE, builds the Doppler frequency plan, and spawns the
// tracking worker. Returns ErrAlreadyRunning if a worker is active.
func (t *Tracker) Run(tle string, end *time.Time, radio *RadioConfig) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.worker != nil {
		// Reap a worker that finished its window on its own.
		select {
		case <-t.worker.done:
			t.worker = nil
		default:
			t.log.Printf("tracker: run rejected, worker already active")
			return ErrAlreadyRunning
		}
	}

	name, line1, line2, err := SplitTLE(tle)
	if err != nil {
		return err
	}
	group := line1 + "\n" + line2
	if name != "" {
		group = name + "\n" + group
	}
	prop, err := predict.NewPropagator(group)
	if err != nil {
		return err
	}

	var freqs predict.FrequencyPlan
	if radio != nil {
		freqs = predict.BuildFrequencyPlan(radio.Frequencies.Uplink, radio.Frequencies.Downlink)
	}

	var tleName *string
	if name != "" {
		tleName = &name
	}

	w := &workerHandle{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	t.worker = w

	now := time.Now().UTC()
	t.setStatus(Status{Mode: ModeRunning, Start: &now, End: end, TLEName: tleName})

	go func() {
		defer close(w.done)
		if err := t.trackLoop(prop, end, freqs, w.stop); err != nil {
			t.log.Printf("tracker: worker failed: %v", err)
			t.setStatus(Status{Mode: ModeIdle})
		}
	}()

	return nil
}

// Stop signals the worker, waits for it to exit, and resets the status to
// idle with cleared sample and trajectory. Stopping an idle tracker is a
// no-op.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.worker == nil {
		return
	}
	t.log.Printf("tracker: sending stop signal to worker")
	close(t.worker.stop)
	<-t.worker.done
	t.worker = nil
	t.log.Printf("tracker: worker joined")

	t.setStatus(Status{Mode: ModeIdle})
}

// park logs the park order for the named rotator. The rotator is an opaque
// name; the steering hardware behind it is not modeled here.
func (t *Tracker) park(rotator string) error {
	t.log.Printf("tracker: parking rotator %s", rotator)
	t.emit(telemetry.NewRotatorPark(rotator))
	return nil
}

// trackLoop is the worker body. Each iteration computes the trajectory for
// the next window, publishes it, and then walks the samples in wall-clock
// time. The inter-sample wait selects on the stop channel so stop latency
// is independent of the sample step.
func (t *Tracker) trackLoop(prop *predict.Propagator, end *time.Time, freqs predict.FrequencyPlan, stop <-chan struct{}) error {
	t.log.Printf("tracker: worker starting, end=%v", end)

	for {
		windowStart := time.Now().UTC()
		windowEnd := windowStart.Add(defaultOpenEnded)
		if end != nil {
			windowEnd = *end
		}

		trajectory, err := prop.BuildTrajectory(t.station, windowStart, windowEnd, freqs, sampleStep)
		if err != nil {
			return err
		}
		t.log.Printf("tracker: trajectory computed, %d points", len(trajectory))

		t.updateStatus(func(s *Status) {
			s.Trajectory = trajectory
			s.LastSample = nil
		})

		for i := range trajectory {
			point := trajectory[i]

			wait := time.Until(point.Timestamp)
			if wait < 0 {
				wait = 0
			}
			timer := time.NewTimer(wait)
			select {
			case <-stop:
				timer.Stop()
				t.log.Printf("tracker: stop received, exiting worker")
				return nil
			case <-timer.C:
			}

			t.updateStatus(func(s *Status) { s.LastSample = &point })
			t.emit(telemetry.NewTrackerSample(point))
		}

		if end != nil {
			break
		}
	}

	t.log.Printf("tracker: window finished, worker exiting")
	t.setStatus(Status{Mode: ModeIdle})
	return nil
}

func (t *Tracker) setStatus(s Status) {
	t.statusMu.Lock()
	t.status = s
	t.statusMu.Unlock()
}

func (t *Tracker) updateStatus(fn func(*Status)) {
	t.statusMu.Lock()
	fn(&t.status)
	t.statusMu.Unlock()
}

func (t *Tracker) emit(ev telemetry.Payload) {
	if t.Events != nil {
		t.Events(ev)
	}
}
