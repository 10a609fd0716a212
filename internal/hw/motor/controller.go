// Package motor wraps one motor controller device with the state the
// drivetrain needs: enable gate, control mode, PID gains, a cached setpoint
// and conversions between native sensor units and RPM/rotations.
package motor

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/cjeanneret/DriveGo/internal/debug"
	"github.com/cjeanneret/DriveGo/internal/hw/esc"
)

// ErrUnknownCode is returned when a numeric control mode or feedback device code does not resolve.
var ErrUnknownCode = errors.New("motor: unknown code")

// NativeToRPM converts native velocity (units per 100ms) to RPM.
// Returns 0 when unitsPerRotation is 0 (no sensor configured).
func NativeToRPM(native float64, unitsPerRotation int) float64 {
	if unitsPerRotation == 0 {
		return 0
	}
	return native * 600.0 / float64(unitsPerRotation)
}

// RPMToNative converts RPM to native velocity (units per 100ms).
// Returns 0 when unitsPerRotation is 0 (no sensor configured).
func RPMToNative(rpm float64, unitsPerRotation int) float64 {
	if unitsPerRotation == 0 {
		return 0
	}
	return rpm * float64(unitsPerRotation) / 600.0
}

// Controller is one motor controller as seen by the drivetrain.
//
// The setpoint is only forwarded while enabled. Disabling stops the motor but
// keeps the setpoint, so Update can re-apply it later.
type Controller struct {
	dev  esc.Device
	name string

	enabled  bool
	mode     esc.ControlMode
	feedback esc.FeedbackDevice
	p, i, d  float64
	f        float64
	setPoint float64

	unitsPerRotation int
}

// New wraps dev with a clean slate: PercentOutput, no feedback sensor,
// setpoint 0, all gains 0, coast, no sensor units. The controller starts
// disabled. Configuration pushes that are not acknowledged are logged.
func New(dev esc.Device) *Controller {
	c := &Controller{dev: dev}

	c.SetControlMode(esc.PercentOutput)
	if err := c.SetFeedbackDevice(esc.NoFeedback); err != nil {
		debug.Warn("%v", err)
	}
	_ = c.Set(0)
	if err := c.SetAllPIDF(0); err != nil {
		debug.Warn("%v", err)
	}
	c.SetCoast()
	c.SetUnitsPerRotation(0)
	return c
}

// NewNamed is New with a label used in logs and telemetry.
func NewNamed(name string, dev esc.Device) *Controller {
	c := New(dev)
	c.name = name
	return c
}

// ID returns the device id on the bus.
func (c *Controller) ID() int { return c.dev.ID() }

// Name returns the label, or "#<id>" when none was given.
func (c *Controller) Name() string {
	if c.name == "" {
		return fmt.Sprintf("#%d", c.dev.ID())
	}
	return c.name
}

// Set caches setPoint and, if enabled, forwards it. In Velocity mode the
// setpoint is RPM and is converted to native units per 100ms; every other
// mode forwards the raw value.
func (c *Controller) Set(setPoint float64) error {
	c.setPoint = setPoint
	if !c.enabled {
		return nil
	}

	// Read the mode once so conversion and the write agree.
	mode := c.mode
	value := setPoint
	if mode == esc.Velocity {
		value = RPMToNative(setPoint, c.unitsPerRotation)
	}
	if err := c.dev.SetOutput(mode, value); err != nil {
		return errors.Wrapf(err, "%s: set %s %g", c.Name(), mode, setPoint)
	}
	return nil
}

// SetWithMode switches the control mode and sets the setpoint in one call.
func (c *Controller) SetWithMode(mode esc.ControlMode, setPoint float64) error {
	c.SetControlMode(mode)
	return c.Set(setPoint)
}

// Update re-issues the cached setpoint.
func (c *Controller) Update() error { return c.Set(c.setPoint) }

// SetPoint returns the cached setpoint.
func (c *Controller) SetPoint() float64 { return c.setPoint }

// Enabled reports whether setpoints are forwarded to the device.
func (c *Controller) Enabled() bool { return c.enabled }

// SetEnabled gates output. Disabling stops the motor immediately. Enabling
// does not re-issue the setpoint: call Update or Set afterwards.
func (c *Controller) SetEnabled(enabled bool) {
	c.enabled = enabled
	if !enabled {
		c.dev.Stop()
	}
}

// SetPID stores and pushes P, I and D. Each term is written even if another fails.
func (c *Controller) SetPID(p, i, d float64) error {
	return multierr.Combine(c.SetP(p), c.SetI(i), c.SetD(d))
}

// SetPIDF stores and pushes P, I, D and F independently.
func (c *Controller) SetPIDF(p, i, d, f float64) error {
	return multierr.Append(c.SetPID(p, i, d), c.SetF(f))
}

// SetAllPIDF sets every gain to the same value.
func (c *Controller) SetAllPIDF(v float64) error { return c.SetPIDF(v, v, v, v) }

// P, I, D and F return the cached gains, which may differ from the device's
// when a write was not acknowledged.
func (c *Controller) P() float64 { return c.p }
func (c *Controller) I() float64 { return c.i }
func (c *Controller) D() float64 { return c.d }
func (c *Controller) F() float64 { return c.f }

// SetP caches the proportional gain and pushes it to slot 0.
func (c *Controller) SetP(p float64) error {
	c.p = p
	return c.configPID(esc.TermP, p)
}

// SetI caches the integral gain and pushes it to slot 0.
func (c *Controller) SetI(i float64) error {
	c.i = i
	return c.configPID(esc.TermI, i)
}

// SetD caches the derivative gain and pushes it to slot 0.
func (c *Controller) SetD(d float64) error {
	c.d = d
	return c.configPID(esc.TermD, d)
}

// SetF caches the feed-forward gain and pushes it to slot 0.
func (c *Controller) SetF(f float64) error {
	c.f = f
	return c.configPID(esc.TermF, f)
}

func (c *Controller) configPID(term esc.PIDTerm, v float64) error {
	if err := c.dev.ConfigPID(esc.DefaultSlot, term, v, esc.DefaultTimeout); err != nil {
		return errors.Wrapf(err, "%s: config %s", c.Name(), term)
	}
	return nil
}

// SetCoast lets the motor spin freely at neutral (default).
func (c *Controller) SetCoast() { c.dev.SetNeutralMode(esc.Coast) }

// SetBrake shorts the motor at neutral.
func (c *Controller) SetBrake() { c.dev.SetNeutralMode(esc.Brake) }

// SetInverted sets the hardware inversion flag.
func (c *Controller) SetInverted(inverted bool) { c.dev.SetInverted(inverted) }

// Inverted reads the hardware inversion flag.
func (c *Controller) Inverted() bool { return c.dev.Inverted() }

// UnitsPerRotation returns native sensor units per rotation (0 = no sensor).
func (c *Controller) UnitsPerRotation() int { return c.unitsPerRotation }

// SetUnitsPerRotation sets native sensor units per rotation.
func (c *Controller) SetUnitsPerRotation(units int) { c.unitsPerRotation = units }

// FeedbackDevice returns the cached sensor selection.
func (c *Controller) FeedbackDevice() esc.FeedbackDevice { return c.feedback }

// SetFeedbackDevice caches the sensor selection and pushes it to the device.
// A missing ack is returned, but the cached value is kept.
func (c *Controller) SetFeedbackDevice(dev esc.FeedbackDevice) error {
	c.feedback = dev
	if err := c.dev.ConfigFeedbackSensor(dev, esc.DefaultSlot, esc.DefaultTimeout); err != nil {
		return errors.Wrapf(err, "%s: config feedback sensor %s", c.Name(), dev)
	}
	return nil
}

// SetFeedbackDeviceCode resolves a numeric code and sets it.
func (c *Controller) SetFeedbackDeviceCode(code int) error {
	dev, ok := esc.FeedbackDeviceFromCode(code)
	if !ok {
		return errors.Wrapf(ErrUnknownCode, "feedback device %d", code)
	}
	return c.SetFeedbackDevice(dev)
}

// ControlMode returns the cached control mode.
func (c *Controller) ControlMode() esc.ControlMode { return c.mode }

// SetControlMode only changes how the next Set is interpreted; nothing is written.
func (c *Controller) SetControlMode(mode esc.ControlMode) { c.mode = mode }

// SetControlModeCode resolves a numeric code and sets it.
func (c *Controller) SetControlModeCode(code int) error {
	mode, ok := esc.ControlModeFromCode(code)
	if !ok {
		return errors.Wrapf(ErrUnknownCode, "control mode %d", code)
	}
	c.SetControlMode(mode)
	return nil
}

// VelocityRPM reads the sensor velocity in RPM, 0 without sensor units.
func (c *Controller) VelocityRPM() float64 {
	if c.unitsPerRotation == 0 {
		return 0
	}
	return NativeToRPM(c.dev.SensorVelocity(esc.DefaultSlot), c.unitsPerRotation)
}

// PositionRotations reads the sensor position in rotations, 0 without sensor units.
func (c *Controller) PositionRotations() float64 {
	if c.unitsPerRotation == 0 {
		return 0
	}
	return c.dev.SensorPosition(esc.DefaultSlot) / float64(c.unitsPerRotation)
}

// NativeVelocity reads the raw sensor velocity (units per 100ms).
func (c *Controller) NativeVelocity() float64 { return c.dev.SensorVelocity(esc.DefaultSlot) }

// NativePosition reads the raw sensor position.
func (c *Controller) NativePosition() float64 { return c.dev.SensorPosition(esc.DefaultSlot) }

// SetSensorPosition overwrites the sensor position (native units).
func (c *Controller) SetSensorPosition(pos int) error {
	if err := c.dev.SetSensorPosition(pos, esc.DefaultSlot, esc.DefaultTimeout); err != nil {
		return errors.Wrapf(err, "%s: set sensor position", c.Name())
	}
	return nil
}

// MotorOutput returns the output the device is applying, in [-1,1].
func (c *Controller) MotorOutput() float64 { return c.dev.MotorOutput() }
