// Package telemetry carries drivetrain state snapshots to observers.
package telemetry

import "time"

// MotorSample is the state of one controller at snapshot time.
type MotorSample struct {
	Role        string  `json:"role"` // e.g., "main.left"
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Mode        string  `json:"mode"`
	Enabled     bool    `json:"enabled"`
	SetPoint    float64 `json:"set_point"`
	Output      float64 `json:"output"`
	VelocityRPM float64 `json:"velocity_rpm"`
	Rotations   float64 `json:"rotations"`
	Inverted    bool    `json:"inverted"`
}

// Snapshot is the robot state after one control cycle.
type Snapshot struct {
	Time        time.Time     `json:"time"`
	Cycle       uint64        `json:"cycle"`
	RobotMode   string        `json:"robot_mode"`
	Routine     string        `json:"routine,omitempty"`
	Action      string        `json:"action,omitempty"`
	Swapped     bool          `json:"swapped"`
	ScaleFactor float64       `json:"scale_factor"`
	Motors      []MotorSample `json:"motors"`
}

// Sink receives snapshots. Implementations may drop snapshots to honor a rate.
type Sink interface {
	Publish(s Snapshot) error
}
