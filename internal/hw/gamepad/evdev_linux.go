//go:build linux

package gamepad

import (
	"context"

	"github.com/pkg/errors"
	"github.com/viamrobotics/evdev"

	"github.com/cjeanneret/DriveGo/internal/debug"
)

type absRange struct {
	min, max int32
}

// Evdev reads a Linux input device and keeps a State up to date.
type Evdev struct {
	*State

	dev     *evdev.Evdev
	mapping Mapping
	ranges  map[int]absRange
}

// Open opens the event device at path (e.g., /dev/input/event0).
func Open(path string, mapping Mapping) (*Evdev, error) {
	dev, err := evdev.OpenFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open gamepad %s", path)
	}
	g := &Evdev{
		State:   NewState(),
		dev:     dev,
		mapping: mapping,
		ranges:  make(map[int]absRange),
	}
	for code, info := range dev.AbsoluteTypes() {
		g.ranges[int(code)] = absRange{min: info.Min, max: info.Max}
	}
	debug.Info("Gamepad: %s (%s), %d axes", dev.Name(), path, len(g.ranges))
	return g, nil
}

// Run consumes events until ctx is cancelled or the device goes away.
func (g *Evdev) Run(ctx context.Context) error {
	for env := range g.dev.Poll(ctx) {
		ev := env.Event
		code := int(ev.Code)
		switch ev.Type {
		case evdev.EventAbsolute:
			a, ok := g.mapping.Axes[code]
			if !ok {
				continue
			}
			r := g.ranges[code]
			g.SetAxis(a, Normalize(ev.Value, r.min, r.max))
		case evdev.EventKey:
			b, ok := g.mapping.Buttons[code]
			if !ok {
				continue
			}
			// 0 release, 1 press, 2 autorepeat
			g.SetButton(b, ev.Value != 0)
		}
	}
	return ctx.Err()
}

func (g *Evdev) Close() error {
	return g.dev.Close()
}
