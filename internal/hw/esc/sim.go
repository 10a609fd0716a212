package esc

import (
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/cjeanneret/DriveGo/internal/debug"
)

// SimDevice is an in-memory motor controller with an ideal servo: velocity
// and position setpoints are reached instantly and the sensor integrates
// velocity when Advance is called. It is used for development without
// hardware (mock mode) and by tests.
type SimDevice struct {
	mu  sync.Mutex
	id  int
	bus *Bus

	maxNativeVelocity float64 // native units per 100ms at full output

	mode     ControlMode
	value    float64
	output   float64
	velocity float64
	position float64

	feedback FeedbackDevice
	gains    map[int][4]float64
	neutral  NeutralMode
	inverted bool

	stops      int
	failConfig bool
}

// NewSimDevice creates a simulated device and attaches it to bus (if not nil).
func NewSimDevice(id int, bus *Bus, maxNativeVelocity float64) (*SimDevice, error) {
	s := &SimDevice{
		id:                id,
		bus:               bus,
		maxNativeVelocity: maxNativeVelocity,
		feedback:          NoFeedback,
		gains:             make(map[int][4]float64),
		neutral:           Coast,
	}
	if bus != nil {
		if err := bus.Attach(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *SimDevice) ID() int { return s.id }

func (s *SimDevice) SetOutput(mode ControlMode, value float64) error {
	debug.Motor(s.id, "SetOutput("+mode.String()+")", value)

	// Resolve the leader before taking our own lock so two devices that
	// follow each other cannot deadlock.
	var leaderOut float64
	if mode == Follower {
		out, err := s.bus.leaderOutput(s.id, value)
		if err != nil {
			return err
		}
		leaderOut = out
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch mode {
	case PercentOutput:
		s.output = clampUnit(value)
		s.velocity = s.output * s.maxNativeVelocity
	case Velocity:
		s.velocity = value
		s.output = 0
		if s.maxNativeVelocity > 0 {
			s.output = clampUnit(value / s.maxNativeVelocity)
		}
	case Position:
		s.position = value
		s.velocity = 0
		s.output = 0
	case Follower:
		s.output = leaderOut
		s.velocity = leaderOut * s.maxNativeVelocity
	case Disabled:
		s.stopLocked()
	default:
		return errors.Wrapf(ErrUnsupported, "device #%d: mode %s", s.id, mode)
	}
	s.mode = mode
	s.value = value
	return nil
}

func (s *SimDevice) Stop() {
	debug.Motor(s.id, "Stop", 0)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *SimDevice) stopLocked() {
	s.output = 0
	s.velocity = 0
	s.stops++
}

func (s *SimDevice) MotorOutput() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.output
}

func (s *SimDevice) ConfigPID(slot int, term PIDTerm, value float64, timeout time.Duration) error {
	debug.Motor(s.id, "Config "+term.String(), value)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failConfig {
		return errors.Wrapf(ErrNoAck, "device #%d %s within %s", s.id, term, timeout)
	}
	g := s.gains[slot]
	g[term] = value
	s.gains[slot] = g
	return nil
}

func (s *SimDevice) ConfigFeedbackSensor(device FeedbackDevice, slot int, timeout time.Duration) error {
	debug.Motor(s.id, "ConfigFeedbackSensor", device)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failConfig {
		return errors.Wrapf(ErrNoAck, "device #%d feedback sensor within %s", s.id, timeout)
	}
	s.feedback = device
	return nil
}

// SensorVelocity returns native units per 100ms, or 0 without a feedback sensor.
func (s *SimDevice) SensorVelocity(slot int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.feedback == NoFeedback {
		return 0
	}
	return s.velocity
}

// SensorPosition returns native units, or 0 without a feedback sensor.
func (s *SimDevice) SensorPosition(slot int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.feedback == NoFeedback {
		return 0
	}
	return s.position
}

func (s *SimDevice) SetSensorPosition(pos int, slot int, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failConfig {
		return errors.Wrapf(ErrNoAck, "device #%d sensor position within %s", s.id, timeout)
	}
	s.position = float64(pos)
	return nil
}

func (s *SimDevice) SetNeutralMode(mode NeutralMode) {
	debug.Motor(s.id, "SetNeutralMode", mode)
	s.mu.Lock()
	s.neutral = mode
	s.mu.Unlock()
}

func (s *SimDevice) SetInverted(inverted bool) {
	debug.Motor(s.id, "SetInverted", inverted)
	s.mu.Lock()
	s.inverted = inverted
	s.mu.Unlock()
}

func (s *SimDevice) Inverted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inverted
}

// Advance integrates the sensor position over dt at the current velocity.
func (s *SimDevice) Advance(dt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position += s.velocity * float64(dt) / float64(100*time.Millisecond)
}

// LastCommand returns the mode and raw value of the last accepted SetOutput.
func (s *SimDevice) LastCommand() (ControlMode, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode, s.value
}

// Gains returns the P, I, D, F gains stored in a slot.
func (s *SimDevice) Gains(slot int) [4]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gains[slot]
}

// Feedback returns the configured feedback sensor.
func (s *SimDevice) Feedback() FeedbackDevice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feedback
}

// Neutral returns the configured neutral mode.
func (s *SimDevice) Neutral() NeutralMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.neutral
}

// Stops returns how many times the device was forced to neutral.
func (s *SimDevice) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

// SetFailConfig makes every following configuration write miss its ack.
func (s *SimDevice) SetFailConfig(fail bool) {
	s.mu.Lock()
	s.failConfig = fail
	s.mu.Unlock()
}

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
