package robot

import (
	"github.com/pkg/errors"

	"github.com/cjeanneret/DriveGo/internal/config"
	"github.com/cjeanneret/DriveGo/internal/debug"
	"github.com/cjeanneret/DriveGo/internal/hw/esc"
	"github.com/cjeanneret/DriveGo/internal/hw/gpio"
	"github.com/cjeanneret/DriveGo/internal/hw/motor"
	"github.com/cjeanneret/DriveGo/internal/logic/motion"
)

// Hardware is the four drive controllers on one bus.
type Hardware struct {
	Bus      *esc.Bus
	Main     *motion.Group
	Follower *motion.Group

	// Sim is set for the simulated backend only.
	Sim []*esc.SimDevice

	gpio gpio.Driver
}

// NewHardware builds the controllers named by the drivetrain section on the
// configured backend.
func NewHardware(cfg *config.Config) (*Hardware, error) {
	h := &Hardware{Bus: esc.NewBus()}
	ids := cfg.DeviceIDs()
	ctrls := make([]*motor.Controller, len(ids))

	switch cfg.Hardware.Backend {
	case config.BackendSim:
		for i, id := range ids {
			s, err := esc.NewSimDevice(id, h.Bus, cfg.Hardware.SimMaxNativeVelocity)
			if err != nil {
				return nil, err
			}
			h.Sim = append(h.Sim, s)
			ctrls[i] = motor.New(s)
		}
	case config.BackendPWM:
		g, err := gpio.NewDriver(cfg.Hardware.MockGPIO)
		if err != nil {
			return nil, errors.Wrap(err, "gpio")
		}
		h.gpio = g
		for i, id := range ids {
			dc, ok := cfg.PWMDevice(id)
			if !ok {
				h.Close()
				return nil, errors.Errorf("no pwm wiring for device #%d", id)
			}
			d, err := esc.NewPWMDevice(id, g, h.Bus, esc.PWMConfig{
				PWMPin:            dc.PWMPin,
				DirPin:            dc.DirPin,
				EnablePin:         dc.EnablePin,
				MaxNativeVelocity: dc.MaxNativeVelocity,
			})
			if err != nil {
				h.Close()
				return nil, err
			}
			ctrls[i] = motor.New(d)
		}
	default:
		return nil, errors.Errorf("unknown hardware backend %q", cfg.Hardware.Backend)
	}

	h.Main = motion.NewGroup(ctrls[0], ctrls[1])
	h.Follower = motion.NewGroup(ctrls[2], ctrls[3])
	debug.Info("Hardware: %s backend, devices %v", cfg.Hardware.Backend, h.Bus.IDs())
	return h, nil
}

// Advancers returns the simulated devices as runner hooks.
func (h *Hardware) Advancers() []Advancer {
	out := make([]Advancer, len(h.Sim))
	for i, s := range h.Sim {
		out[i] = s
	}
	return out
}

// Close stops every controller and releases the GPIO driver.
func (h *Hardware) Close() error {
	for _, g := range []*motion.Group{h.Main, h.Follower} {
		if g != nil {
			g.SetEnabled(false)
		}
	}
	if h.gpio != nil {
		return h.gpio.Close()
	}
	return nil
}
