package esc

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Bus is the set of devices reachable by id, the way controllers on a CAN bus
// find the leader they follow.
type Bus struct {
	mu      sync.RWMutex
	devices map[int]Device
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{devices: make(map[int]Device)}
}

// Attach registers a device. Ids are unique on a bus.
func (b *Bus) Attach(d Device) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.devices[d.ID()]; exists {
		return errors.Errorf("esc: device id %d already attached", d.ID())
	}
	b.devices[d.ID()] = d
	return nil
}

// Lookup returns the device with the given id.
func (b *Bus) Lookup(id int) (Device, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	d, ok := b.devices[id]
	return d, ok
}

// IDs returns the attached ids in ascending order.
func (b *Bus) IDs() []int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]int, 0, len(b.devices))
	for id := range b.devices {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// leaderOutput resolves the applied output of the device a follower mirrors.
func (b *Bus) leaderOutput(followerID int, value float64) (float64, error) {
	leaderID := int(value)
	if b == nil {
		return 0, errors.Wrapf(ErrUnknownDevice, "follower #%d has no bus to find #%d", followerID, leaderID)
	}
	if leaderID == followerID {
		return 0, errors.Errorf("esc: device #%d cannot follow itself", followerID)
	}
	leader, ok := b.Lookup(leaderID)
	if !ok {
		return 0, errors.Wrapf(ErrUnknownDevice, "follower #%d -> #%d", followerID, leaderID)
	}
	return leader.MotorOutput(), nil
}
