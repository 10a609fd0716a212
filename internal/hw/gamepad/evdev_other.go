//go:build !linux

package gamepad

import (
	"context"

	"github.com/pkg/errors"
)

// ErrUnsupported is returned by Open on platforms without evdev.
var ErrUnsupported = errors.New("gamepad: evdev is only available on linux")

// Evdev is unavailable on this platform.
type Evdev struct {
	*State
}

func Open(path string, mapping Mapping) (*Evdev, error) {
	return nil, errors.Wrap(ErrUnsupported, path)
}

func (g *Evdev) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (g *Evdev) Close() error { return nil }
