// Package motion pairs a left and a right motor controller into one drive
// side group. It is the layer between the drivetrain logic and the individual
// controllers.
package motion

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/cjeanneret/DriveGo/internal/debug"
	"github.com/cjeanneret/DriveGo/internal/hw/esc"
	"github.com/cjeanneret/DriveGo/internal/hw/motor"
)

// DriveMode selects how Drive interprets its two inputs.
type DriveMode int

const (
	ArcadeDrive DriveMode = iota // x turn, y throttle
	TankDrive                    // left throttle, right throttle
)

func (m DriveMode) String() string {
	switch m {
	case ArcadeDrive:
		return "ArcadeDrive"
	case TankDrive:
		return "TankDrive"
	}
	return fmt.Sprintf("DriveMode(%d)", int(m))
}

// Group owns the left and right controllers of one drive side pair.
type Group struct {
	left, right *motor.Controller

	driveMode    DriveMode
	scale        float64
	scaleMinimum float64
	swapped      bool

	// Negation belongs to the controller in each slot and moves with it on Swap.
	negateLeft, negateRight bool
}

// NewGroup takes ownership of both controllers. Arcade drive, scale 1.
func NewGroup(left, right *motor.Controller) *Group {
	return &Group{
		left:      left,
		right:     right,
		driveMode: ArcadeDrive,
		scale:     1,
	}
}

// Left returns the controller currently driving the left side.
func (g *Group) Left() *motor.Controller { return g.left }

// Right returns the controller currently driving the right side.
func (g *Group) Right() *motor.Controller { return g.right }

// DeviceIDs returns the current left and right device ids (after swaps).
func (g *Group) DeviceIDs() (left, right int) {
	return g.left.ID(), g.right.ID()
}

// Set forwards one setpoint per side. The value sent to the mirrored
// gearbox is negated when NegateRightSetPoint is active, whichever side it
// is on after swaps.
func (g *Group) Set(left, right float64) error {
	if g.negateLeft {
		left = -left
	}
	if g.negateRight {
		right = -right
	}
	return multierr.Append(g.left.Set(left), g.right.Set(right))
}

// SetBoth sends the same literal setpoint to both sides. There is no
// differential inversion: callers pre-invert if the mounting needs it.
func (g *Group) SetBoth(setPoint float64) error {
	return g.Set(setPoint, setPoint)
}

// Follow puts both controllers in Follower mode mirroring leader's current
// left and right devices. Device ids are never negated. Call it again
// whenever the leader is swapped.
func (g *Group) Follow(leader *Group) error {
	l, r := leader.DeviceIDs()
	debug.Verbose("Follow: #%d->#%d #%d->#%d", g.left.ID(), l, g.right.ID(), r)
	return multierr.Append(
		g.left.SetWithMode(esc.Follower, float64(l)),
		g.right.SetWithMode(esc.Follower, float64(r)),
	)
}

// Update re-issues both cached setpoints.
func (g *Group) Update() error {
	return multierr.Append(g.left.Update(), g.right.Update())
}

// Enabled reports the left controller's state; both sides are set together.
func (g *Group) Enabled() bool { return g.left.Enabled() }

// SetEnabled enables or disables both sides. Disabling stops the motors.
func (g *Group) SetEnabled(enabled bool) {
	g.left.SetEnabled(enabled)
	g.right.SetEnabled(enabled)
}

// SetPID pushes the same gains to both sides.
func (g *Group) SetPID(p, i, d float64) error {
	return multierr.Append(g.left.SetPID(p, i, d), g.right.SetPID(p, i, d))
}

// SetPIDF pushes the same gains and feed-forward to both sides.
func (g *Group) SetPIDF(p, i, d, f float64) error {
	return multierr.Append(g.left.SetPIDF(p, i, d, f), g.right.SetPIDF(p, i, d, f))
}

// SetLeftPIDF configures the left controller only.
func (g *Group) SetLeftPIDF(p, i, d, f float64) error { return g.left.SetPIDF(p, i, d, f) }

// SetRightPIDF configures the right controller only.
func (g *Group) SetRightPIDF(p, i, d, f float64) error { return g.right.SetPIDF(p, i, d, f) }

// SetFeedbackDevice selects the sensor on both sides. Both writes are
// attempted; failures are combined.
func (g *Group) SetFeedbackDevice(dev esc.FeedbackDevice) error {
	return multierr.Append(g.left.SetFeedbackDevice(dev), g.right.SetFeedbackDevice(dev))
}

// SetControlMode caches the mode on both sides. Nothing is sent until the
// next Set or Update.
func (g *Group) SetControlMode(mode esc.ControlMode) {
	g.left.SetControlMode(mode)
	g.right.SetControlMode(mode)
}

// ControlMode returns the left controller's mode.
func (g *Group) ControlMode() esc.ControlMode { return g.left.ControlMode() }

// SetSensorUnitsPerRotation sets the encoder resolution on both sides.
func (g *Group) SetSensorUnitsPerRotation(units int) {
	g.left.SetUnitsPerRotation(units)
	g.right.SetUnitsPerRotation(units)
}

// SetCoast lets both motors spin freely at neutral.
func (g *Group) SetCoast() {
	g.left.SetCoast()
	g.right.SetCoast()
}

// SetBrake shorts both motors at neutral.
func (g *Group) SetBrake() {
	g.left.SetBrake()
	g.right.SetBrake()
}

// Invert flips each controller's hardware inversion from its current value.
func (g *Group) Invert() {
	g.left.SetInverted(!g.left.Inverted())
	g.right.SetInverted(!g.right.Inverted())
}

// InvertLeft sets the left controller's hardware inversion.
func (g *Group) InvertLeft(inverted bool) { g.left.SetInverted(inverted) }

// InvertRight sets the right controller's hardware inversion.
func (g *Group) InvertRight(inverted bool) { g.right.SetInverted(inverted) }

// Swap exchanges the left and right controllers, flipping the logical front.
// Setpoint negation stays with the mirrored gearbox.
func (g *Group) Swap() {
	g.left, g.right = g.right, g.left
	g.negateLeft, g.negateRight = g.negateRight, g.negateLeft
	g.swapped = !g.swapped
	debug.Verbose("Swap: left=%s right=%s swapped=%v", g.left.Name(), g.right.Name(), g.swapped)
}

// Swapped reports whether front and back are logically flipped.
func (g *Group) Swapped() bool { return g.swapped }

// NegateRightSetPoint compensates for a mirrored gearbox on the physical
// right side, i.e. the left slot while swapped.
func (g *Group) NegateRightSetPoint(negate bool) {
	if g.swapped {
		g.negateLeft = negate
		return
	}
	g.negateRight = negate
}

// RightSetPointNegated reports whether the physical right gearbox is negated.
func (g *Group) RightSetPointNegated() bool {
	if g.swapped {
		return g.negateLeft
	}
	return g.negateRight
}

// ArcadeDrive mixes a turn (x) and a throttle (y) axis.
func (g *Group) ArcadeDrive(x, y float64) error {
	return g.Set((y+x)*g.scale, (y-x)*g.scale)
}

// TankDrive drives each side from its own axis.
func (g *Group) TankDrive(left, right float64) error {
	return g.Set(left*g.scale, right*g.scale)
}

// Drive dispatches to ArcadeDrive(a, b) or TankDrive(a, b).
func (g *Group) Drive(a, b float64) error {
	if g.driveMode == TankDrive {
		return g.TankDrive(a, b)
	}
	return g.ArcadeDrive(a, b)
}

// DriveMode returns how Drive interprets its inputs.
func (g *Group) DriveMode() DriveMode { return g.driveMode }

// SetDriveMode selects arcade or tank interpretation for Drive.
func (g *Group) SetDriveMode(mode DriveMode) { g.driveMode = mode }

// ScaleFactor returns the effective scale factor.
func (g *Group) ScaleFactor() float64 { return g.scale }

// SetScaleFactor sets the scale factor, clamped to the minimum.
func (g *Group) SetScaleFactor(v float64) {
	if v < g.scaleMinimum {
		v = g.scaleMinimum
	}
	g.scale = v
}

// ScaleFactorMinimum returns the clamp floor.
func (g *Group) ScaleFactorMinimum() float64 { return g.scaleMinimum }

// SetScaleFactorMinimum sets the floor and re-clamps the current factor.
func (g *Group) SetScaleFactorMinimum(minimum float64) {
	g.scaleMinimum = minimum
	g.SetScaleFactor(g.scale)
}

// LeftVelocity and RightVelocity read each side's sensor in RPM.
func (g *Group) LeftVelocity() float64  { return g.left.VelocityRPM() }
func (g *Group) RightVelocity() float64 { return g.right.VelocityRPM() }

// LeftPosition and RightPosition read each side's sensor in rotations.
func (g *Group) LeftPosition() float64  { return g.left.PositionRotations() }
func (g *Group) RightPosition() float64 { return g.right.PositionRotations() }
