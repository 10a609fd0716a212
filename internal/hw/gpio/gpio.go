package gpio

import (
	"fmt"
	"math"
	"sync"

	"github.com/cjeanneret/DriveGo/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

// PinMode indicates whether a GPIO is input or output.
type PinMode int

const (
	Input PinMode = iota
	Output
	PWM
)

// Driver defines the abstract interface for controlling GPIOs.
// This allows plugging in a real Raspberry Pi implementation
// or a mock for development on PC.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	// SetPWM sets the duty cycle of a PWM-capable pin, duty in [0,1].
	SetPWM(pin int, duty float64) error
	Close() error
}

// CheckDuty validates a PWM duty cycle.
func CheckDuty(duty float64) error {
	if math.IsNaN(duty) || duty < 0 || duty > 1 {
		return fmt.Errorf("duty cycle must be between 0 and 1, got %g", duty)
	}
	return nil
}

// MockDriver keeps pin state in memory instead of touching hardware.
// Used for development on PC and by the PWM backend in tests.
type MockDriver struct {
	mu     sync.Mutex
	modes  map[int]PinMode
	levels map[int]Level
	duty   map[int]float64
	closed bool
}

// NewMockDriver returns an empty MockDriver.
func NewMockDriver() *MockDriver {
	return &MockDriver{
		modes:  make(map[int]PinMode),
		levels: make(map[int]Level),
		duty:   make(map[int]float64),
	}
}

// NewDriver creates a GPIO driver based on the chosen mode.
// If mock is true, returns a MockDriver (for dev/test).
// If mock is false, returns a real RPiDriver (for Raspberry Pi).
func NewDriver(mock bool) (Driver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return NewMockDriver(), nil
	}
	return NewRPiRealDriver()
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	m.mu.Lock()
	defer m.mu.Unlock()
	if mode > PWM || mode < Input {
		return fmt.Errorf("unknown pin mode: %d", mode)
	}
	m.modes[pin] = mode
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.modes[pin] != Output {
		return fmt.Errorf("pin %d is not set up as output", pin)
	}
	m.levels[pin] = level
	return nil
}

// ReadPin returns the last level written to the pin, Low if none.
func (m *MockDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin], nil
}

func (m *MockDriver) SetPWM(pin int, duty float64) error {
	debug.GPIO("SetPWM", pin, duty)
	if err := CheckDuty(duty); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.modes[pin] != PWM {
		return fmt.Errorf("pin %d is not set up as pwm", pin)
	}
	m.duty[pin] = duty
	return nil
}

// Duty returns the last duty cycle set on a PWM pin.
func (m *MockDriver) Duty(pin int) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duty[pin]
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (m *MockDriver) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
