package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes bounds the size of a configuration file.
const MaxConfigFileBytes = 64 * 1024

// Teleop input modes for DrivetrainConfig.TeleopMode.
const (
	TeleopTriggers = "triggers"
	TeleopArcade   = "arcade"
	TeleopTank     = "tank"
)

// Backend names for HardwareConfig.Backend.
const (
	BackendSim = "sim"
	BackendPWM = "pwm"
)

// GroupConfig holds the bus ids of one left/right motor pair.
type GroupConfig struct {
	LeftID  int `yaml:"left_id"`
	RightID int `yaml:"right_id"`
}

// PIDFConfig holds closed-loop gains for one controller.
type PIDFConfig struct {
	P float64 `yaml:"p"`
	I float64 `yaml:"i"`
	D float64 `yaml:"d"`
	F float64 `yaml:"f"`
}

// DrivetrainConfig describes the two motor groups and the wheel geometry.
type DrivetrainConfig struct {
	WheelRadiusM     float64     `yaml:"wheel_radius_m"`     // e.g., 0.0762 (6" wheel)
	WheelSeparationM float64     `yaml:"wheel_separation_m"` // distance between left and right wheels
	Main             GroupConfig `yaml:"main"`               // closed-loop group
	Follower         GroupConfig `yaml:"follower"`           // slaved to Main
	FeedbackDevice   string      `yaml:"feedback_device"`    // e.g., "QuadEncoder", "None"
	SensorUnits      int         `yaml:"sensor_units_per_rotation"`
	LeftPIDF         PIDFConfig  `yaml:"left_pidf"`
	RightPIDF        PIDFConfig  `yaml:"right_pidf"`
	NegateRight      bool        `yaml:"negate_right"`         // right gearbox is mirrored
	ScaleMinimum     float64     `yaml:"scale_factor_minimum"` // floor for the group scale factor
	Neutral          string      `yaml:"neutral"`              // "coast" or "brake"
	TeleopMode       string      `yaml:"teleop_mode"`          // "triggers", "arcade" or "tank"
}

// PWMDeviceConfig wires one motor driver to GPIO pins (BCM numbering).
type PWMDeviceConfig struct {
	ID                int     `yaml:"id"`
	PWMPin            int     `yaml:"pwm_pin"`
	DirPin            int     `yaml:"dir_pin"`
	EnablePin         int     `yaml:"enable_pin"` // 0 = not used. Active LOW.
	MaxNativeVelocity float64 `yaml:"max_native_velocity"`
}

// HardwareConfig selects the motor controller backend.
type HardwareConfig struct {
	Backend              string            `yaml:"backend"`   // "sim" or "pwm"
	MockGPIO             bool              `yaml:"mock_gpio"` // use mock GPIO (true=dev/test, false=real Raspberry Pi)
	SimMaxNativeVelocity float64           `yaml:"sim_max_native_velocity"`
	Devices              []PWMDeviceConfig `yaml:"devices"`
}

// InputConfig locates the gamepad and maps its evdev codes.
type InputConfig struct {
	Device       string `yaml:"device"`        // e.g., /dev/input/event0. Empty = no gamepad.
	LeftStickX   int    `yaml:"left_stick_x"`  // ABS_X
	LeftStickY   int    `yaml:"left_stick_y"`  // ABS_Y
	RightStickY  int    `yaml:"right_stick_y"` // ABS_RY
	LeftTrigger  int    `yaml:"left_trigger"`  // ABS_Z
	RightTrigger int    `yaml:"right_trigger"` // ABS_RZ
	SwapButton   int    `yaml:"swap_button"`   // BTN_EAST ("B")
}

// LoopConfig sets the control cycle rate.
type LoopConfig struct {
	PeriodMs int `yaml:"period_ms"`
}

// Step is one autonomous maneuver. Which fields apply depends on Op.
type Step struct {
	Op             string  `yaml:"op"`
	Meters         float64 `yaml:"meters"`
	MetersLeft     float64 `yaml:"meters_left"`
	MetersRight    float64 `yaml:"meters_right"`
	Degrees        float64 `yaml:"degrees"`
	Radians        float64 `yaml:"radians"`
	Rotations      float64 `yaml:"rotations"`
	RotationsLeft  float64 `yaml:"rotations_left"`
	RotationsRight float64 `yaml:"rotations_right"`
	RPMLeft        float64 `yaml:"rpm_left"`
	RPMRight       float64 `yaml:"rpm_right"`
	Seconds        float64 `yaml:"seconds"`
}

// Routine is a named list of steps run in order.
type Routine struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// AutonomousConfig lists the available routines.
type AutonomousConfig struct {
	Default  string    `yaml:"default"`
	Routines []Routine `yaml:"routines"`
}

// MQTTConfig configures the telemetry publisher.
type MQTTConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Broker   string  `yaml:"broker"` // e.g., tcp://localhost:1883
	Topic    string  `yaml:"topic"`
	ClientID string  `yaml:"client_id"`
	QoS      byte    `yaml:"qos"`
	RateHz   float64 `yaml:"rate_hz"` // max publish rate
}

// TelemetryConfig groups telemetry sinks.
type TelemetryConfig struct {
	MQTT MQTTConfig `yaml:"mqtt"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
}

// Config aggregates all application configuration.
type Config struct {
	Drivetrain DrivetrainConfig `yaml:"drivetrain"`
	Hardware   HardwareConfig   `yaml:"hardware"`
	Input      InputConfig      `yaml:"input"`
	Loop       LoopConfig       `yaml:"loop"`
	Autonomous AutonomousConfig `yaml:"autonomous"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Defaults   DefaultsConfig   `yaml:"defaults"`
}

// ValidateConfigPath accepts only *.yaml files located directly in a
// directory named "configs".
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	clean := filepath.Clean(path)
	for _, part := range strings.Split(filepath.ToSlash(clean), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q escapes its directory", path)
		}
	}
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q: extension must be .yaml", path)
	}
	abs, err := filepath.Abs(clean)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config path %q must be in a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", MaxConfigFileBytes)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	d := &c.Drivetrain
	if d.Main == (GroupConfig{}) {
		d.Main = GroupConfig{LeftID: 43, RightID: 44} // rear controllers
	}
	if d.Follower == (GroupConfig{}) {
		d.Follower = GroupConfig{LeftID: 41, RightID: 42} // front controllers
	}
	if d.FeedbackDevice == "" {
		d.FeedbackDevice = "None"
	}
	if d.Neutral == "" {
		d.Neutral = "coast"
	}
	if d.TeleopMode == "" {
		d.TeleopMode = TeleopTriggers
	}

	if c.Hardware.Backend == "" {
		c.Hardware.Backend = BackendSim
	}
	if c.Hardware.SimMaxNativeVelocity <= 0 {
		c.Hardware.SimMaxNativeVelocity = 1000 // native units per 100ms at full output
	}

	if c.Input.LeftStickY == 0 {
		c.Input.LeftStickY = 1 // ABS_Y
	}
	if c.Input.RightStickY == 0 {
		c.Input.RightStickY = 4 // ABS_RY
	}
	if c.Input.LeftTrigger == 0 {
		c.Input.LeftTrigger = 2 // ABS_Z
	}
	if c.Input.RightTrigger == 0 {
		c.Input.RightTrigger = 5 // ABS_RZ
	}
	if c.Input.SwapButton == 0 {
		c.Input.SwapButton = 305 // BTN_EAST
	}

	if c.Loop.PeriodMs <= 0 {
		c.Loop.PeriodMs = 20 // 50 Hz
	}

	m := &c.Telemetry.MQTT
	if m.Topic == "" {
		m.Topic = "drivego/telemetry"
	}
	if m.ClientID == "" {
		m.ClientID = "drivego"
	}
	if m.RateHz <= 0 {
		m.RateHz = 5
	}
}

func (c *Config) validate() error {
	d := c.Drivetrain
	if d.WheelRadiusM <= 0 {
		return fmt.Errorf("drivetrain.wheel_radius_m must be > 0")
	}
	if d.WheelSeparationM <= 0 {
		return fmt.Errorf("drivetrain.wheel_separation_m must be > 0")
	}
	if d.SensorUnits < 0 {
		return fmt.Errorf("drivetrain.sensor_units_per_rotation must be >= 0, got %d", d.SensorUnits)
	}
	if d.ScaleMinimum < 0 || d.ScaleMinimum > 1 {
		return fmt.Errorf("drivetrain.scale_factor_minimum must be between 0 and 1, got %.2f", d.ScaleMinimum)
	}
	if d.Neutral != "coast" && d.Neutral != "brake" {
		return fmt.Errorf("drivetrain.neutral must be coast or brake, got %q", d.Neutral)
	}
	switch d.TeleopMode {
	case TeleopTriggers, TeleopArcade, TeleopTank:
	default:
		return fmt.Errorf("drivetrain.teleop_mode must be %s, %s or %s, got %q", TeleopTriggers, TeleopArcade, TeleopTank, d.TeleopMode)
	}
	ids := c.DeviceIDs()
	seen := make(map[int]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return fmt.Errorf("drivetrain: device id %d used twice", id)
		}
		seen[id] = true
	}

	switch c.Hardware.Backend {
	case BackendSim:
	case BackendPWM:
		for _, id := range ids {
			if _, ok := c.PWMDevice(id); !ok {
				return fmt.Errorf("hardware.devices: no pins for device %d", id)
			}
		}
	default:
		return fmt.Errorf("hardware.backend must be %q or %q, got %q", BackendSim, BackendPWM, c.Hardware.Backend)
	}

	names := make(map[string]bool, len(c.Autonomous.Routines))
	for _, r := range c.Autonomous.Routines {
		if r.Name == "" {
			return fmt.Errorf("autonomous.routines: routine name is required")
		}
		if names[r.Name] {
			return fmt.Errorf("autonomous.routines: duplicate routine %q", r.Name)
		}
		names[r.Name] = true
		for i, s := range r.Steps {
			if s.Op == "" {
				return fmt.Errorf("routine %q step %d: op is required", r.Name, i)
			}
			if s.Seconds <= 0 {
				return fmt.Errorf("routine %q step %d: seconds must be > 0", r.Name, i)
			}
		}
	}
	if c.Autonomous.Default != "" && !names[c.Autonomous.Default] {
		return fmt.Errorf("autonomous.default: unknown routine %q", c.Autonomous.Default)
	}

	if c.Telemetry.MQTT.Enabled && c.Telemetry.MQTT.Broker == "" {
		return fmt.Errorf("telemetry.mqtt.broker is required when mqtt is enabled")
	}
	if c.Telemetry.MQTT.QoS > 2 {
		return fmt.Errorf("telemetry.mqtt.qos must be 0, 1 or 2, got %d", c.Telemetry.MQTT.QoS)
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

// DeviceIDs returns main left, main right, follower left, follower right.
func (c *Config) DeviceIDs() []int {
	d := c.Drivetrain
	return []int{d.Main.LeftID, d.Main.RightID, d.Follower.LeftID, d.Follower.RightID}
}

// PWMDevice returns the pin wiring for a device id.
func (c *Config) PWMDevice(id int) (PWMDeviceConfig, bool) {
	for _, dev := range c.Hardware.Devices {
		if dev.ID == id {
			return dev, true
		}
	}
	return PWMDeviceConfig{}, false
}

// Period returns the control cycle period.
func (c *Config) Period() time.Duration {
	return time.Duration(c.Loop.PeriodMs) * time.Millisecond
}

// Routine looks up an autonomous routine by name.
func (c *Config) Routine(name string) (Routine, bool) {
	for _, r := range c.Autonomous.Routines {
		if r.Name == name {
			return r, true
		}
	}
	return Routine{}, false
}

// RoutineNames lists routine names in file order.
func (c *Config) RoutineNames() []string {
	names := make([]string, 0, len(c.Autonomous.Routines))
	for _, r := range c.Autonomous.Routines {
		names = append(names, r.Name)
	}
	return names
}

// PublishInterval returns the minimum delay between two telemetry messages.
func (c *Config) PublishInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.Telemetry.MQTT.RateHz)
}
