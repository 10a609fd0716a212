// Package drivetrain turns driver input and autonomous requests into motor
// group setpoints. It owns a closed-loop main group and a follower group
// slaved to it.
package drivetrain

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/cjeanneret/DriveGo/internal/config"
	"github.com/cjeanneret/DriveGo/internal/debug"
	"github.com/cjeanneret/DriveGo/internal/hw/esc"
	"github.com/cjeanneret/DriveGo/internal/hw/gamepad"
	"github.com/cjeanneret/DriveGo/internal/hw/motor"
	"github.com/cjeanneret/DriveGo/internal/logic/geometry"
	"github.com/cjeanneret/DriveGo/internal/logic/motion"
	"github.com/cjeanneret/DriveGo/internal/telemetry"
)

// Input is what teleop reads each cycle.
type Input interface {
	Axis(a gamepad.Axis) float64
	ButtonReleased(b gamepad.Button) bool
}

// SwapButton flips the logical front when released.
const SwapButton = gamepad.ButtonB

// TeleopMode selects how driver input becomes main group setpoints.
type TeleopMode int

const (
	// TriggerBlend: triggers give throttle, the left stick steers (see Blend).
	TriggerBlend TeleopMode = iota
	// Arcade: left stick Y throttles, left stick X turns.
	Arcade
	// Tank: each stick's Y axis drives its own side.
	Tank
)

func (m TeleopMode) String() string {
	switch m {
	case TriggerBlend:
		return "TriggerBlend"
	case Arcade:
		return "Arcade"
	case Tank:
		return "Tank"
	}
	return fmt.Sprintf("TeleopMode(%d)", int(m))
}

// ParseTeleopMode maps a config name to a mode. Empty means TriggerBlend.
func ParseTeleopMode(name string) (TeleopMode, error) {
	switch name {
	case "", config.TeleopTriggers:
		return TriggerBlend, nil
	case config.TeleopArcade:
		return Arcade, nil
	case config.TeleopTank:
		return Tank, nil
	}
	return 0, errors.Errorf("drivetrain: unknown teleop mode %q", name)
}

// DriveTrain is driven by a single control loop; it does no locking.
type DriveTrain struct {
	main       *motion.Group
	follower   *motion.Group
	input      Input
	wheel      *geometry.Wheel
	clock      clock.Clock
	teleopMode TeleopMode
}

// New wires follower to main in Follower mode. A nil clock uses the system clock.
func New(main, follower *motion.Group, input Input, wheel *geometry.Wheel, clk clock.Clock) (*DriveTrain, error) {
	if main == nil || follower == nil {
		return nil, errors.New("drivetrain: both motor groups are required")
	}
	if input == nil {
		return nil, errors.New("drivetrain: input is required")
	}
	if wheel == nil {
		return nil, errors.New("drivetrain: wheel geometry is required")
	}
	if clk == nil {
		clk = clock.New()
	}
	d := &DriveTrain{
		main:     main,
		follower: follower,
		input:    input,
		wheel:    wheel,
		clock:    clk,
	}
	if err := d.follower.Follow(d.main); err != nil {
		debug.Warn("drivetrain: follow: %v", err)
	}
	return d, nil
}

// Configure applies the drivetrain section to the main group: percent output,
// feedback sensor, sensor units, per-side gains, right negation, scale floor,
// neutral mode and teleop mode. Unknown names are errors; unacknowledged
// writes are logged and left to the cached values.
func (d *DriveTrain) Configure(cfg config.DrivetrainConfig) error {
	fb, ok := esc.ParseFeedbackDevice(cfg.FeedbackDevice)
	if !ok {
		return errors.Errorf("drivetrain: unknown feedback device %q", cfg.FeedbackDevice)
	}
	mode, err := ParseTeleopMode(cfg.TeleopMode)
	if err != nil {
		return err
	}

	debug.Section("Drivetrain configuration")
	d.main.SetControlMode(esc.PercentOutput)
	acks := d.main.SetFeedbackDevice(fb)
	d.main.SetSensorUnitsPerRotation(cfg.SensorUnits)
	l, r := cfg.LeftPIDF, cfg.RightPIDF
	acks = multierr.Append(acks, d.main.SetLeftPIDF(l.P, l.I, l.D, l.F))
	acks = multierr.Append(acks, d.main.SetRightPIDF(r.P, r.I, r.D, r.F))
	d.main.NegateRightSetPoint(cfg.NegateRight)
	d.main.SetScaleFactorMinimum(cfg.ScaleMinimum)
	d.SetTeleopMode(mode)

	switch cfg.Neutral {
	case "brake":
		d.main.SetBrake()
		d.follower.SetBrake()
	default:
		d.main.SetCoast()
		d.follower.SetCoast()
	}

	acks = multierr.Append(acks, d.follower.Follow(d.main))
	for _, err := range multierr.Errors(acks) {
		debug.Warn("drivetrain: %v", err)
	}
	debug.Value("feedback", fb)
	debug.Value("sensor units/rev", cfg.SensorUnits)
	debug.Value("negate right", cfg.NegateRight)
	debug.Value("teleop", mode)
	return nil
}

// Main and Follower expose the groups for autonomous actions and telemetry.
func (d *DriveTrain) Main() *motion.Group      { return d.main }
func (d *DriveTrain) Follower() *motion.Group  { return d.follower }
func (d *DriveTrain) Wheel() *geometry.Wheel   { return d.wheel }
func (d *DriveTrain) Clock() clock.Clock       { return d.clock }
func (d *DriveTrain) Swapped() bool            { return d.main.Swapped() }
func (d *DriveTrain) SetInput(input Input)     { d.input = input }
func (d *DriveTrain) Enabled() bool            { return d.main.Enabled() }
func (d *DriveTrain) ScaleFactor() float64     { return d.main.ScaleFactor() }
func (d *DriveTrain) SetScaleFactor(v float64) { d.main.SetScaleFactor(v) }
func (d *DriveTrain) TeleopMode() TeleopMode   { return d.teleopMode }

// SetTeleopMode changes the input interpretation. Arcade and Tank also set
// the main group's drive mode.
func (d *DriveTrain) SetTeleopMode(mode TeleopMode) {
	d.teleopMode = mode
	switch mode {
	case Arcade:
		d.main.SetDriveMode(motion.ArcadeDrive)
	case Tank:
		d.main.SetDriveMode(motion.TankDrive)
	}
}

// SetEnabled gates both groups. Disabling stops every motor.
func (d *DriveTrain) SetEnabled(enabled bool) {
	d.main.SetEnabled(enabled)
	d.follower.SetEnabled(enabled)
}

// Update re-issues the cached setpoints, main before follower.
func (d *DriveTrain) Update() error {
	return multierr.Append(d.main.Update(), d.follower.Update())
}

// Blend maps throttle and steering to left and right power. Only the side
// toward the turn is damped, and the turn term changes sign when reversing.
func Blend(forward, leftStickX float64) (left, right float64) {
	leftForward, rightForward := forward, forward
	var leftTurn, rightTurn float64

	stick := leftStickX / 2
	if stick > 0 {
		rightTurn = stick
		rightForward *= 1 - rightTurn
	} else if stick < 0 {
		leftTurn = -stick
		leftForward *= 1 - leftTurn
	}

	if forward < 0 {
		leftTurn = -leftTurn
		rightTurn = -rightTurn
	}
	return leftForward + rightTurn, rightForward + leftTurn
}

// TeleopUpdate runs one teleop cycle: swap on button release, turn the
// input into main group setpoints scaled by the group's scale factor, then
// refresh the follower.
func (d *DriveTrain) TeleopUpdate() error {
	var err error
	if d.input.ButtonReleased(SwapButton) {
		err = d.SwapFront()
	}
	err = multierr.Append(err, d.drive())
	return multierr.Append(err, d.follower.Update())
}

func (d *DriveTrain) drive() error {
	switch d.teleopMode {
	case Arcade:
		// Stick Y reads negative when pushed up.
		x, y := d.input.Axis(gamepad.LeftStickX), -d.input.Axis(gamepad.LeftStickY)
		debug.Trace("[TELEOP] arcade x=%.3f y=%.3f", x, y)
		return d.main.Drive(x, y)
	case Tank:
		l, r := -d.input.Axis(gamepad.LeftStickY), -d.input.Axis(gamepad.RightStickY)
		debug.Trace("[TELEOP] tank left=%.3f right=%.3f", l, r)
		return d.main.Drive(l, r)
	}

	forward := d.input.Axis(gamepad.RightTrigger) - d.input.Axis(gamepad.LeftTrigger)
	left, right := Blend(forward, d.input.Axis(gamepad.LeftStickX))
	s := d.main.ScaleFactor()
	debug.Trace("[TELEOP] forward=%.3f left=%.3f right=%.3f scale=%.2f", forward, left, right, s)
	return d.main.Set(left*s, right*s)
}

// SwapFront flips the logical front of both groups together and re-points
// the follower at the main group's new sides.
func (d *DriveTrain) SwapFront() error {
	d.main.Swap()
	d.main.Invert()
	d.follower.Swap()
	d.follower.Invert()
	debug.Live("Front swapped (swapped=%v)", d.main.Swapped())
	return d.follower.Follow(d.main)
}

// Snapshot samples every controller. Mode fields are filled by the caller.
func (d *DriveTrain) Snapshot() telemetry.Snapshot {
	return telemetry.Snapshot{
		Time:        d.clock.Now(),
		Swapped:     d.main.Swapped(),
		ScaleFactor: d.main.ScaleFactor(),
		Motors: []telemetry.MotorSample{
			sample("main.left", d.main.Left()),
			sample("main.right", d.main.Right()),
			sample("follower.left", d.follower.Left()),
			sample("follower.right", d.follower.Right()),
		},
	}
}

func sample(role string, c *motor.Controller) telemetry.MotorSample {
	return telemetry.MotorSample{
		Role:        role,
		ID:          c.ID(),
		Name:        c.Name(),
		Mode:        c.ControlMode().String(),
		Enabled:     c.Enabled(),
		SetPoint:    c.SetPoint(),
		Output:      c.MotorOutput(),
		VelocityRPM: c.VelocityRPM(),
		Rotations:   c.PositionRotations(),
		Inverted:    c.Inverted(),
	}
}
