package esc

import (
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/cjeanneret/DriveGo/internal/debug"
	"github.com/cjeanneret/DriveGo/internal/hw/gpio"
)

// PWMConfig holds the wiring of an H-bridge motor driver.
type PWMConfig struct {
	PWMPin    int // hardware PWM pin (BCM) carrying the speed
	DirPin    int // direction pin (BCM). HIGH = forward.
	EnablePin int // driver ENABLE pin (BCM). 0 = not used. Active LOW.

	// MaxNativeVelocity maps Velocity setpoints to duty cycle (open loop):
	// duty = velocity / MaxNativeVelocity. 0 disables Velocity mode.
	MaxNativeVelocity float64
}

// PWMDevice drives a brushed motor through an H-bridge on GPIO pins. It has no
// sensor and no closed loop: gains are accepted and kept but never used, and
// Velocity setpoints are converted to duty cycle with a fixed feedforward.
type PWMDevice struct {
	mu   sync.Mutex
	id   int
	gpio gpio.Driver
	bus  *Bus
	cfg  PWMConfig

	output   float64
	inverted bool
	neutral  NeutralMode
	gains    map[int][4]float64
}

// NewPWMDevice sets up the pins, leaves the driver enabled at zero duty and
// attaches the device to bus (if not nil).
func NewPWMDevice(id int, g gpio.Driver, bus *Bus, cfg PWMConfig) (*PWMDevice, error) {
	if err := g.SetupPin(cfg.PWMPin, gpio.PWM); err != nil {
		return nil, errors.Wrapf(err, "device #%d: setup pwm pin", id)
	}
	if err := g.SetupPin(cfg.DirPin, gpio.Output); err != nil {
		return nil, errors.Wrapf(err, "device #%d: setup dir pin", id)
	}

	d := &PWMDevice{
		id:      id,
		gpio:    g,
		bus:     bus,
		cfg:     cfg,
		neutral: Coast,
		gains:   make(map[int][4]float64),
	}

	// ENABLE: active LOW. LOW = enabled, HIGH = disabled (freewheel).
	if cfg.EnablePin > 0 {
		if err := g.SetupPin(cfg.EnablePin, gpio.Output); err != nil {
			return nil, errors.Wrapf(err, "device #%d: setup enable pin", id)
		}
		_ = g.WritePin(cfg.EnablePin, gpio.Low)
	}
	if err := g.SetPWM(cfg.PWMPin, 0); err != nil {
		return nil, errors.Wrapf(err, "device #%d: zero pwm", id)
	}

	if bus != nil {
		if err := bus.Attach(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *PWMDevice) ID() int { return d.id }

func (d *PWMDevice) SetOutput(mode ControlMode, value float64) error {
	var percent float64
	switch mode {
	case PercentOutput:
		percent = value
	case Velocity:
		if d.cfg.MaxNativeVelocity <= 0 {
			return errors.Wrapf(ErrUnsupported, "device #%d: velocity without max_native_velocity", d.id)
		}
		percent = value / d.cfg.MaxNativeVelocity
	case Follower:
		out, err := d.bus.leaderOutput(d.id, value)
		if err != nil {
			return err
		}
		percent = out
	case Disabled:
		d.Stop()
		return nil
	default:
		return errors.Wrapf(ErrUnsupported, "device #%d: mode %s", d.id, mode)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.output = clampUnit(percent)
	return d.applyLocked()
}

// applyLocked writes direction then duty. Inversion only changes the direction pin.
func (d *PWMDevice) applyLocked() error {
	physical := d.output
	if d.inverted {
		physical = -physical
	}
	dir := gpio.High
	if physical < 0 {
		dir = gpio.Low
	}

	if d.cfg.EnablePin > 0 {
		if err := d.gpio.WritePin(d.cfg.EnablePin, gpio.Low); err != nil {
			return err
		}
	}
	if err := d.gpio.WritePin(d.cfg.DirPin, dir); err != nil {
		return err
	}
	return d.gpio.SetPWM(d.cfg.PWMPin, math.Abs(physical))
}

// Stop zeroes the duty. In Coast the driver is also disabled so the motor
// freewheels; in Brake it stays enabled and holds.
func (d *PWMDevice) Stop() {
	debug.Motor(d.id, "Stop", d.neutral)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.output = 0
	_ = d.gpio.SetPWM(d.cfg.PWMPin, 0)
	if d.cfg.EnablePin > 0 && d.neutral == Coast {
		_ = d.gpio.WritePin(d.cfg.EnablePin, gpio.High)
	}
}

func (d *PWMDevice) MotorOutput() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.output
}

func (d *PWMDevice) ConfigPID(slot int, term PIDTerm, value float64, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	g := d.gains[slot]
	g[term] = value
	d.gains[slot] = g
	return nil
}

func (d *PWMDevice) ConfigFeedbackSensor(device FeedbackDevice, slot int, timeout time.Duration) error {
	if device != NoFeedback {
		return errors.Wrapf(ErrUnsupported, "device #%d: feedback sensor %s", d.id, device)
	}
	return nil
}

func (d *PWMDevice) SensorVelocity(slot int) float64 { return 0 }

func (d *PWMDevice) SensorPosition(slot int) float64 { return 0 }

func (d *PWMDevice) SetSensorPosition(pos int, slot int, timeout time.Duration) error {
	return errors.Wrapf(ErrUnsupported, "device #%d: no sensor", d.id)
}

func (d *PWMDevice) SetNeutralMode(mode NeutralMode) {
	d.mu.Lock()
	d.neutral = mode
	d.mu.Unlock()
}

func (d *PWMDevice) SetInverted(inverted bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inverted = inverted
	if d.output != 0 {
		_ = d.applyLocked()
	}
}

func (d *PWMDevice) Inverted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inverted
}
