package geometry

import (
	"fmt"
	"math"

	"github.com/cjeanneret/DriveGo/internal/config"
)

// Wheel holds the drivetrain geometry used by autonomous maneuvers.
type Wheel struct {
	radius     float64 // meters
	separation float64 // meters, left wheel to right wheel
}

// NewWheel validates and stores the geometry.
func NewWheel(radius, separation float64) (*Wheel, error) {
	if radius <= 0 {
		return nil, fmt.Errorf("wheel radius must be > 0, got %v", radius)
	}
	if separation <= 0 {
		return nil, fmt.Errorf("wheel separation must be > 0, got %v", separation)
	}
	return &Wheel{radius: radius, separation: separation}, nil
}

// NewWheelFromConfig reads the geometry from the drivetrain section.
func NewWheelFromConfig(cfg *config.Config) (*Wheel, error) {
	return NewWheel(cfg.Drivetrain.WheelRadiusM, cfg.Drivetrain.WheelSeparationM)
}

func (w *Wheel) Radius() float64     { return w.radius }
func (w *Wheel) Separation() float64 { return w.separation }

// Circumference returns 2π × radius, in meters.
func (w *Wheel) Circumference() float64 {
	return 2 * math.Pi * w.radius
}

// RPM converts a distance covered in a duration to wheel RPM.
// Formula: rpm = (meters / seconds / radius) × 60 / 2π
func (w *Wheel) RPM(meters, seconds float64) (float64, error) {
	if seconds <= 0 {
		return 0, fmt.Errorf("duration must be > 0 seconds, got %v", seconds)
	}
	return (meters / seconds / w.radius) * (60 / (2 * math.Pi)), nil
}

// ArcLength returns the distance one wheel travels to rotate the robot by
// radians around the other wheel, or around its center on the dime.
func (w *Wheel) ArcLength(radians float64) float64 {
	return radians * w.separation
}

// RotationsToMeters converts wheel rotations to distance.
func (w *Wheel) RotationsToMeters(rotations float64) float64 {
	return rotations * w.Circumference()
}

// Radians converts degrees to radians.
func Radians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
