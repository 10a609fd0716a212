// Package gamepad exposes driver input as normalized axes and button
// release edges. State holds the latest values; Evdev feeds it from a Linux
// input device.
package gamepad

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/DriveGo/internal/config"
	"github.com/cjeanneret/DriveGo/internal/debug"
)

// Axis names a normalized analog input.
type Axis int

const (
	LeftStickX   Axis = iota // [-1,1], right positive
	LeftStickY               // [-1,1], up negative
	LeftTrigger              // [0,1]
	RightTrigger             // [0,1]
	RightStickY              // [-1,1], up negative
)

func (a Axis) String() string {
	switch a {
	case LeftStickX:
		return "LeftStickX"
	case LeftStickY:
		return "LeftStickY"
	case LeftTrigger:
		return "LeftTrigger"
	case RightTrigger:
		return "RightTrigger"
	case RightStickY:
		return "RightStickY"
	}
	return fmt.Sprintf("Axis(%d)", int(a))
}

// Button names a digital input.
type Button int

const (
	ButtonA Button = iota
	ButtonB
	ButtonX
	ButtonY
)

func (b Button) String() string {
	switch b {
	case ButtonA:
		return "A"
	case ButtonB:
		return "B"
	case ButtonX:
		return "X"
	case ButtonY:
		return "Y"
	}
	return fmt.Sprintf("Button(%d)", int(b))
}

// State is the latest input snapshot. It is safe for one producer and one
// consumer goroutine.
type State struct {
	mu       sync.Mutex
	axes     map[Axis]float64
	pressed  map[Button]bool
	released map[Button]bool
}

// NewState returns a State with every axis at 0 and no button held.
func NewState() *State {
	return &State{
		axes:     make(map[Axis]float64),
		pressed:  make(map[Button]bool),
		released: make(map[Button]bool),
	}
}

// SetAxis stores a value clamped to [-1,1].
func (s *State) SetAxis(a Axis, v float64) {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	s.mu.Lock()
	s.axes[a] = v
	s.mu.Unlock()
}

// Axis returns the last value, 0 if never set.
func (s *State) Axis(a Axis) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.axes[a]
}

// SetButton records a press or release. A press followed by a release
// latches a release edge.
func (s *State) SetButton(b Button, pressed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pressed[b] && !pressed {
		s.released[b] = true
		debug.Trace("[PAD] %s released", b)
	}
	s.pressed[b] = pressed
}

// ButtonPressed reports whether the button is held.
func (s *State) ButtonPressed(b Button) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pressed[b]
}

// ButtonReleased reports a release edge since the last call and consumes it.
func (s *State) ButtonReleased(b Button) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.released[b]
	s.released[b] = false
	return r
}

// Mapping translates evdev codes to axes and buttons.
type Mapping struct {
	Axes    map[int]Axis
	Buttons map[int]Button
}

// NewMapping builds the mapping from the input section.
func NewMapping(cfg config.InputConfig) Mapping {
	return Mapping{
		Axes: map[int]Axis{
			cfg.LeftStickX:   LeftStickX,
			cfg.LeftStickY:   LeftStickY,
			cfg.RightStickY:  RightStickY,
			cfg.LeftTrigger:  LeftTrigger,
			cfg.RightTrigger: RightTrigger,
		},
		Buttons: map[int]Button{
			cfg.SwapButton: ButtonB,
		},
	}
}

// Normalize scales a raw absolute value to [0,1] for one-sided ranges
// (triggers) and [-1,1] for centered ranges (sticks).
func Normalize(value, min, max int32) float64 {
	if max <= min {
		return 0
	}
	span := float64(max) - float64(min)
	ratio := (float64(value) - float64(min)) / span
	if min >= 0 {
		return clamp(ratio, 0, 1)
	}
	return clamp(2*ratio-1, -1, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
