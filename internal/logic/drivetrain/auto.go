package drivetrain

import (
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/cjeanneret/DriveGo/internal/config"
	"github.com/cjeanneret/DriveGo/internal/debug"
	"github.com/cjeanneret/DriveGo/internal/hw/esc"
	"github.com/cjeanneret/DriveGo/internal/logic/auto"
	"github.com/cjeanneret/DriveGo/internal/logic/geometry"
)

// ErrUnknownStep is returned by BuildRoutine for an unsupported op.
var ErrUnknownStep = errors.New("drivetrain: unknown routine step")

// AutoDriveAction holds both sides at the given RPM for d, in Velocity mode.
// Cleanup zeroes the setpoints and restores PercentOutput.
func (d *DriveTrain) AutoDriveAction(rpmLeft, rpmRight float64, dur time.Duration) *auto.Action {
	name := fmt.Sprintf("drive %.1f/%.1f rpm for %v", rpmLeft, rpmRight, dur)
	return auto.Timed(name, d.clock, dur,
		func() {
			d.main.SetControlMode(esc.Velocity)
			warn(name, d.main.Set(rpmLeft, rpmRight))
			warn(name, d.follower.Update())
		},
		func() {
			warn(name, d.main.SetBoth(0))
			warn(name, d.follower.Update())
			d.main.SetControlMode(esc.PercentOutput)
		},
	)
}

func warn(name string, err error) {
	if err != nil {
		debug.Warn("%s: %v", name, err)
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Drive covers metersLeft and metersRight in the given time.
func (d *DriveTrain) Drive(metersLeft, metersRight, secs float64) (*auto.Action, error) {
	rpmLeft, err := d.wheel.RPM(metersLeft, secs)
	if err != nil {
		return nil, err
	}
	rpmRight, err := d.wheel.RPM(metersRight, secs)
	if err != nil {
		return nil, err
	}
	return d.AutoDriveAction(rpmLeft, rpmRight, seconds(secs)), nil
}

// DriveDistance drives both sides the same distance.
func (d *DriveTrain) DriveDistance(meters, secs float64) (*auto.Action, error) {
	return d.Drive(meters, meters, secs)
}

// TurnLeftRadians drives the left wheel only; the right wheel stays put.
func (d *DriveTrain) TurnLeftRadians(radians, secs float64) (*auto.Action, error) {
	return d.Drive(d.wheel.ArcLength(radians), 0, secs)
}

func (d *DriveTrain) TurnLeftDegrees(degrees, secs float64) (*auto.Action, error) {
	return d.TurnLeftRadians(geometry.Radians(degrees), secs)
}

// TurnRightRadians drives the right wheel only; the left wheel stays put.
func (d *DriveTrain) TurnRightRadians(radians, secs float64) (*auto.Action, error) {
	return d.Drive(0, d.wheel.ArcLength(radians), secs)
}

func (d *DriveTrain) TurnRightDegrees(degrees, secs float64) (*auto.Action, error) {
	return d.TurnRightRadians(geometry.Radians(degrees), secs)
}

// TurnLeftOnDimeRadians drives the wheels in opposite directions.
// secs is honored here too: on-the-dime turns take exactly as long as the
// caller asks, never a default duration.
func (d *DriveTrain) TurnLeftOnDimeRadians(radians, secs float64) (*auto.Action, error) {
	dist := d.wheel.ArcLength(radians)
	return d.Drive(dist, -dist, secs)
}

func (d *DriveTrain) TurnLeftOnDimeDegrees(degrees, secs float64) (*auto.Action, error) {
	return d.TurnLeftOnDimeRadians(geometry.Radians(degrees), secs)
}

// TurnRightOnDimeRadians drives the wheels in opposite directions, over secs
// like TurnLeftOnDimeRadians.
func (d *DriveTrain) TurnRightOnDimeRadians(radians, secs float64) (*auto.Action, error) {
	dist := d.wheel.ArcLength(radians)
	return d.Drive(-dist, dist, secs)
}

func (d *DriveTrain) TurnRightOnDimeDegrees(degrees, secs float64) (*auto.Action, error) {
	return d.TurnRightOnDimeRadians(geometry.Radians(degrees), secs)
}

// SpinLeft turns on the dime by full robot rotations.
func (d *DriveTrain) SpinLeft(rotations, secs float64) (*auto.Action, error) {
	return d.TurnLeftOnDimeDegrees(rotations*360, secs)
}

func (d *DriveTrain) SpinRight(rotations, secs float64) (*auto.Action, error) {
	return d.TurnRightOnDimeDegrees(rotations*360, secs)
}

// DriveRotations turns each wheel by a number of wheel rotations.
func (d *DriveTrain) DriveRotations(rotationsLeft, rotationsRight, secs float64) (*auto.Action, error) {
	return d.Drive(d.wheel.RotationsToMeters(rotationsLeft), d.wheel.RotationsToMeters(rotationsRight), secs)
}

func (d *DriveTrain) DriveRotationsBoth(rotations, secs float64) (*auto.Action, error) {
	return d.DriveRotations(rotations, rotations, secs)
}

type stepFunc func(d *DriveTrain, s config.Step) (*auto.Action, error)

var steps = map[string]stepFunc{
	"drive": func(d *DriveTrain, s config.Step) (*auto.Action, error) {
		return d.DriveDistance(s.Meters, s.Seconds)
	},
	"drive_sides": func(d *DriveTrain, s config.Step) (*auto.Action, error) {
		return d.Drive(s.MetersLeft, s.MetersRight, s.Seconds)
	},
	"drive_rpm": func(d *DriveTrain, s config.Step) (*auto.Action, error) {
		if s.Seconds <= 0 {
			return nil, errors.Errorf("duration must be > 0 seconds, got %v", s.Seconds)
		}
		return d.AutoDriveAction(s.RPMLeft, s.RPMRight, seconds(s.Seconds)), nil
	},
	"drive_rotations": func(d *DriveTrain, s config.Step) (*auto.Action, error) {
		if s.RotationsLeft != 0 || s.RotationsRight != 0 {
			return d.DriveRotations(s.RotationsLeft, s.RotationsRight, s.Seconds)
		}
		return d.DriveRotationsBoth(s.Rotations, s.Seconds)
	},
	"turn_left_degrees": func(d *DriveTrain, s config.Step) (*auto.Action, error) {
		return d.TurnLeftDegrees(s.Degrees, s.Seconds)
	},
	"turn_right_degrees": func(d *DriveTrain, s config.Step) (*auto.Action, error) {
		return d.TurnRightDegrees(s.Degrees, s.Seconds)
	},
	"turn_left_radians": func(d *DriveTrain, s config.Step) (*auto.Action, error) {
		return d.TurnLeftRadians(s.Radians, s.Seconds)
	},
	"turn_right_radians": func(d *DriveTrain, s config.Step) (*auto.Action, error) {
		return d.TurnRightRadians(s.Radians, s.Seconds)
	},
	"turn_left_on_dime_degrees": func(d *DriveTrain, s config.Step) (*auto.Action, error) {
		return d.TurnLeftOnDimeDegrees(s.Degrees, s.Seconds)
	},
	"turn_right_on_dime_degrees": func(d *DriveTrain, s config.Step) (*auto.Action, error) {
		return d.TurnRightOnDimeDegrees(s.Degrees, s.Seconds)
	},
	"turn_left_on_dime_radians": func(d *DriveTrain, s config.Step) (*auto.Action, error) {
		return d.TurnLeftOnDimeRadians(s.Radians, s.Seconds)
	},
	"turn_right_on_dime_radians": func(d *DriveTrain, s config.Step) (*auto.Action, error) {
		return d.TurnRightOnDimeRadians(s.Radians, s.Seconds)
	},
	"spin_left": func(d *DriveTrain, s config.Step) (*auto.Action, error) {
		return d.SpinLeft(s.Rotations, s.Seconds)
	},
	"spin_right": func(d *DriveTrain, s config.Step) (*auto.Action, error) {
		return d.SpinRight(s.Rotations, s.Seconds)
	},
}

// StepOps lists the op names BuildRoutine accepts, sorted.
func StepOps() []string {
	ops := make([]string, 0, len(steps))
	for op := range steps {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// BuildRoutine turns a configured routine into a sequence of actions.
func (d *DriveTrain) BuildRoutine(r config.Routine) (*auto.Sequence, error) {
	seq := auto.NewSequence(r.Name)
	for i, s := range r.Steps {
		build, ok := steps[s.Op]
		if !ok {
			return nil, errors.Wrapf(ErrUnknownStep, "routine %q step %d: %q", r.Name, i, s.Op)
		}
		a, err := build(d, s)
		if err != nil {
			return nil, errors.Wrapf(err, "routine %q step %d (%s)", r.Name, i, s.Op)
		}
		seq.Add(a)
	}
	return seq, nil
}
