// Package esc describes the motor controller hardware that the drivetrain
// drives: control modes, feedback sensors, neutral behavior and the Device
// capability itself. Concrete devices live alongside (SimDevice, PWMDevice).
package esc

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

const (
	// DefaultSlot is the PID slot and closed-loop index used for every configuration write.
	DefaultSlot = 0
	// DefaultTimeout bounds how long a configuration write waits for the device to ack.
	DefaultTimeout = 10 * time.Millisecond
)

var (
	// ErrNoAck is returned when a configuration write is not acknowledged within its timeout.
	ErrNoAck = errors.New("esc: configuration write not acknowledged")
	// ErrUnknownDevice is returned when a follower points at an id that is not on the bus.
	ErrUnknownDevice = errors.New("esc: unknown device id")
	// ErrUnsupported is returned when a device cannot honor a mode or sensor.
	ErrUnsupported = errors.New("esc: unsupported by device")
)

// ControlMode selects what a device setpoint represents. The numeric values
// are the codes used on the wire and in configuration files.
type ControlMode int

const (
	PercentOutput ControlMode = 0
	Position      ControlMode = 1
	Velocity      ControlMode = 2
	Current       ControlMode = 3
	Follower      ControlMode = 5
	MotionProfile ControlMode = 6
	MotionMagic   ControlMode = 7
	Disabled      ControlMode = 15
)

var controlModeNames = map[ControlMode]string{
	PercentOutput: "PercentOutput",
	Position:      "Position",
	Velocity:      "Velocity",
	Current:       "Current",
	Follower:      "Follower",
	MotionProfile: "MotionProfile",
	MotionMagic:   "MotionMagic",
	Disabled:      "Disabled",
}

func (m ControlMode) String() string {
	if name, ok := controlModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("ControlMode(%d)", int(m))
}

// ControlModeFromCode resolves a numeric code. ok is false for unknown codes.
func ControlModeFromCode(code int) (ControlMode, bool) {
	m := ControlMode(code)
	_, ok := controlModeNames[m]
	return m, ok
}

// ParseControlMode resolves a control mode by name (as written in YAML).
func ParseControlMode(name string) (ControlMode, bool) {
	for m, n := range controlModeNames {
		if n == name {
			return m, true
		}
	}
	return 0, false
}

// FeedbackDevice selects the sensor used for closed-loop feedback.
type FeedbackDevice int

const (
	NoFeedback                FeedbackDevice = -1
	QuadEncoder               FeedbackDevice = 0
	Analog                    FeedbackDevice = 2
	Tachometer                FeedbackDevice = 4
	PulseWidthEncodedPosition FeedbackDevice = 8
	SensorSum                 FeedbackDevice = 9
	SensorDifference          FeedbackDevice = 10
	RemoteSensor0             FeedbackDevice = 11
	RemoteSensor1             FeedbackDevice = 12
	SoftwareEmulatedSensor    FeedbackDevice = 15
)

var feedbackDeviceNames = map[FeedbackDevice]string{
	NoFeedback:                "None",
	QuadEncoder:               "QuadEncoder",
	Analog:                    "Analog",
	Tachometer:                "Tachometer",
	PulseWidthEncodedPosition: "PulseWidthEncodedPosition",
	SensorSum:                 "SensorSum",
	SensorDifference:          "SensorDifference",
	RemoteSensor0:             "RemoteSensor0",
	RemoteSensor1:             "RemoteSensor1",
	SoftwareEmulatedSensor:    "SoftwareEmulatedSensor",
}

func (f FeedbackDevice) String() string {
	if name, ok := feedbackDeviceNames[f]; ok {
		return name
	}
	return fmt.Sprintf("FeedbackDevice(%d)", int(f))
}

// FeedbackDeviceFromCode resolves a numeric code. ok is false for unknown codes.
func FeedbackDeviceFromCode(code int) (FeedbackDevice, bool) {
	f := FeedbackDevice(code)
	_, ok := feedbackDeviceNames[f]
	return f, ok
}

// ParseFeedbackDevice resolves a feedback device by name (as written in YAML).
func ParseFeedbackDevice(name string) (FeedbackDevice, bool) {
	for f, n := range feedbackDeviceNames {
		if n == name {
			return f, true
		}
	}
	return 0, false
}

// NeutralMode is what the motor does when commanded to zero output.
type NeutralMode int

const (
	Coast NeutralMode = 1
	Brake NeutralMode = 2
)

func (n NeutralMode) String() string {
	switch n {
	case Coast:
		return "Coast"
	case Brake:
		return "Brake"
	default:
		return fmt.Sprintf("NeutralMode(%d)", int(n))
	}
}

// PIDTerm names one gain of a closed-loop slot.
type PIDTerm int

const (
	TermP PIDTerm = iota
	TermI
	TermD
	TermF
)

func (t PIDTerm) String() string {
	switch t {
	case TermP:
		return "kP"
	case TermI:
		return "kI"
	case TermD:
		return "kD"
	case TermF:
		return "kF"
	default:
		return fmt.Sprintf("PIDTerm(%d)", int(t))
	}
}

// Device is a single motor controller on the bus.
//
// Configuration calls take a timeout and report a missing ack as an error;
// callers treat that as a warning, not a failure. Output writes are fire and
// forget.
type Device interface {
	ID() int

	// SetOutput commands the device. value is percent output in [-1,1], native
	// velocity units per 100ms, native position, or a leader id in Follower mode.
	SetOutput(mode ControlMode, value float64) error
	// Stop forces neutral output immediately.
	Stop()
	// MotorOutput is the percent output currently applied, before inversion.
	MotorOutput() float64

	ConfigPID(slot int, term PIDTerm, value float64, timeout time.Duration) error
	ConfigFeedbackSensor(device FeedbackDevice, slot int, timeout time.Duration) error

	SensorVelocity(slot int) float64
	SensorPosition(slot int) float64
	SetSensorPosition(pos int, slot int, timeout time.Duration) error

	SetNeutralMode(mode NeutralMode)
	SetInverted(inverted bool)
	Inverted() bool
}
