// Package robot runs the drivetrain at a fixed rate in one of three modes
// and publishes a telemetry snapshot after every cycle.
package robot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"github.com/cjeanneret/DriveGo/internal/config"
	"github.com/cjeanneret/DriveGo/internal/debug"
	"github.com/cjeanneret/DriveGo/internal/logic/auto"
	"github.com/cjeanneret/DriveGo/internal/logic/drivetrain"
	"github.com/cjeanneret/DriveGo/internal/telemetry"
)

// Mode is the robot operating mode.
type Mode int

const (
	Disabled Mode = iota
	Teleop
	Autonomous
)

func (m Mode) String() string {
	switch m {
	case Disabled:
		return "Disabled"
	case Teleop:
		return "Teleop"
	case Autonomous:
		return "Autonomous"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode accepts mode names in any case.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "disabled":
		return Disabled, nil
	case "teleop":
		return Teleop, nil
	case "autonomous", "auto":
		return Autonomous, nil
	}
	return Disabled, errors.Errorf("unknown mode %q", s)
}

// ErrUnknownRoutine is returned by StartRoutine for a name not in the config.
var ErrUnknownRoutine = errors.New("robot: unknown routine")

// Advancer is simulated hardware that integrates over time.
type Advancer interface {
	Advance(dt time.Duration)
}

// Runner owns the control loop. All drivetrain access goes through it, so
// the loop and the web handlers never touch the motors concurrently.
type Runner struct {
	mu sync.Mutex

	dt     *drivetrain.DriveTrain
	cfg    *config.Config
	clock  clock.Clock
	period time.Duration

	mode      Mode
	routine   *auto.Sequence
	cycle     uint64
	lastCycle time.Time
	last      telemetry.Snapshot

	sim   []Advancer
	sinks []telemetry.Sink
	out   chan telemetry.Snapshot
}

// New creates a runner in Disabled mode. A nil clock uses the system clock.
func New(dt *drivetrain.DriveTrain, cfg *config.Config, clk clock.Clock) *Runner {
	if clk == nil {
		clk = clock.New()
	}
	r := &Runner{
		dt:     dt,
		cfg:    cfg,
		clock:  clk,
		period: cfg.Period(),
		out:    make(chan telemetry.Snapshot, 1),
	}
	dt.SetEnabled(false)
	r.last = r.snapshotLocked()
	return r
}

// Simulate registers devices advanced by the elapsed time after each cycle.
func (r *Runner) Simulate(devs ...Advancer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sim = append(r.sim, devs...)
}

// AddSink registers a telemetry consumer served by PublishLoop.
func (r *Runner) AddSink(s telemetry.Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, s)
}

func (r *Runner) Mode() Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// SetMode switches mode. Leaving Autonomous cleans up the active routine.
// Disabled stops every motor; the other modes enable them and re-apply the
// cached setpoints. Entering Autonomous starts the default routine, if any.
func (r *Runner) SetMode(m Mode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setModeLocked(m)
}

func (r *Runner) setModeLocked(m Mode) error {
	if m == r.mode {
		return nil
	}
	from := r.mode
	if from == Autonomous {
		r.cancelRoutineLocked()
	}
	r.mode = m
	debug.Mode(from.String(), m.String())

	if m == Disabled {
		r.dt.SetEnabled(false)
		return nil
	}
	r.dt.SetEnabled(true)
	if err := r.dt.Update(); err != nil {
		debug.Warn("%v", err)
	}
	if m == Autonomous && r.routine == nil && r.cfg.Autonomous.Default != "" {
		return r.startRoutineLocked(r.cfg.Autonomous.Default)
	}
	return nil
}

// StartRoutine replaces any active routine with the named one and switches
// to Autonomous.
func (r *Runner) StartRoutine(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.startRoutineLocked(name); err != nil {
		return err
	}
	return r.setModeLocked(Autonomous)
}

func (r *Runner) startRoutineLocked(name string) error {
	rc, ok := r.cfg.Routine(name)
	if !ok {
		return errors.Wrap(ErrUnknownRoutine, name)
	}
	seq, err := r.dt.BuildRoutine(rc)
	if err != nil {
		return err
	}
	r.cancelRoutineLocked()
	r.routine = seq
	debug.Info("Routine %s: %d actions", name, seq.Len())
	return nil
}

// CancelRoutine cleans up the active routine and stays in the current mode.
func (r *Runner) CancelRoutine() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelRoutineLocked()
}

func (r *Runner) cancelRoutineLocked() {
	if r.routine == nil {
		return
	}
	if err := r.routine.Cancel(); err != nil {
		debug.Error(err)
	}
	r.routine = nil
}

// Routines lists the configured routine names.
func (r *Runner) Routines() []string {
	return r.cfg.RoutineNames()
}

// Cycle runs one control cycle and queues a snapshot for PublishLoop.
func (r *Runner) Cycle() error {
	r.mu.Lock()
	err := r.cycleLocked()
	snap := r.last
	r.mu.Unlock()

	select {
	case r.out <- snap:
	default:
		// PublishLoop is behind; keep the older snapshot.
	}
	return err
}

func (r *Runner) cycleLocked() error {
	var err error
	switch r.mode {
	case Teleop:
		err = r.dt.TeleopUpdate()
	case Autonomous:
		if r.routine != nil {
			var done bool
			done, err = r.routine.Poll()
			if err != nil {
				debug.Error(err)
				r.cancelRoutineLocked()
			} else if done {
				debug.Info("Routine %s complete", r.routine.Name())
				r.routine = nil
			}
		}
	}

	now := r.clock.Now()
	elapsed := r.period
	if !r.lastCycle.IsZero() {
		elapsed = now.Sub(r.lastCycle)
	}
	r.lastCycle = now
	for _, s := range r.sim {
		s.Advance(elapsed)
	}

	r.cycle++
	r.last = r.snapshotLocked()
	return err
}

func (r *Runner) snapshotLocked() telemetry.Snapshot {
	s := r.dt.Snapshot()
	s.Cycle = r.cycle
	s.RobotMode = r.mode.String()
	if r.routine != nil {
		s.Routine = r.routine.Name()
		if a := r.routine.Active(); a != nil {
			s.Action = a.Name()
		}
	}
	return s
}

// Snapshot returns the state after the last cycle.
func (r *Runner) Snapshot() telemetry.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Run cycles every period until ctx is cancelled, then disables the robot.
// Cycle errors are logged; the loop keeps running.
func (r *Runner) Run(ctx context.Context) error {
	ticker := r.clock.Ticker(r.period)
	defer ticker.Stop()
	debug.Info("Control loop: %v period", r.period)

	for {
		select {
		case <-ctx.Done():
			if err := r.SetMode(Disabled); err != nil {
				debug.Error(err)
			}
			return ctx.Err()
		case <-ticker.C:
			if err := r.Cycle(); err != nil {
				debug.Warn("cycle %d: %v", r.Snapshot().Cycle, err)
			}
		}
	}
}

// PublishLoop hands snapshots to every sink until ctx is cancelled.
func (r *Runner) PublishLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s := <-r.out:
			r.mu.Lock()
			sinks := append([]telemetry.Sink(nil), r.sinks...)
			r.mu.Unlock()
			for _, sink := range sinks {
				if err := sink.Publish(s); err != nil {
					debug.Warn("telemetry: %v", err)
				}
			}
		}
	}
}
