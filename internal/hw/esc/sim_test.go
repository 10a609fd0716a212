package esc

import (
	"errors"
	"math"
	"testing"
	"time"
)

func newSim(t *testing.T, bus *Bus, id int) *SimDevice {
	t.Helper()
	s, err := NewSimDevice(id, bus, 1000)
	if err != nil {
		t.Fatalf("NewSimDevice(%d): %v", id, err)
	}
	return s
}

// ---------- Bus ----------

func TestBus_AttachAndLookup(t *testing.T) {
	bus := NewBus()
	newSim(t, bus, 44)
	newSim(t, bus, 43)

	if _, ok := bus.Lookup(43); !ok {
		t.Error("Lookup(43): not found")
	}
	if _, ok := bus.Lookup(41); ok {
		t.Error("Lookup(41): unexpected device")
	}
	ids := bus.IDs()
	if len(ids) != 2 || ids[0] != 43 || ids[1] != 44 {
		t.Errorf("IDs() = %v, want [43 44]", ids)
	}
}

func TestBus_DuplicateID(t *testing.T) {
	bus := NewBus()
	newSim(t, bus, 43)
	if _, err := NewSimDevice(43, bus, 1000); err == nil {
		t.Error("expected error attaching duplicate id")
	}
}

// ---------- SimDevice ----------

func TestSimDevice_PercentOutputClamps(t *testing.T) {
	s := newSim(t, nil, 1)
	if err := s.SetOutput(PercentOutput, 1.5); err != nil {
		t.Fatalf("SetOutput: %v", err)
	}
	if got := s.MotorOutput(); got != 1 {
		t.Errorf("MotorOutput() = %v, want 1", got)
	}
	mode, value := s.LastCommand()
	if mode != PercentOutput || value != 1.5 {
		t.Errorf("LastCommand() = %v, %v; want PercentOutput, 1.5", mode, value)
	}
}

func TestSimDevice_VelocityIntegratesPosition(t *testing.T) {
	s := newSim(t, nil, 1)
	if err := s.ConfigFeedbackSensor(QuadEncoder, DefaultSlot, DefaultTimeout); err != nil {
		t.Fatal(err)
	}
	if err := s.SetOutput(Velocity, 250); err != nil {
		t.Fatal(err)
	}
	if got := s.SensorVelocity(DefaultSlot); got != 250 {
		t.Errorf("SensorVelocity = %v, want 250", got)
	}
	if got := s.MotorOutput(); got != 0.25 {
		t.Errorf("MotorOutput = %v, want 0.25", got)
	}

	s.Advance(time.Second) // 10 periods of 100ms
	if got := s.SensorPosition(DefaultSlot); math.Abs(got-2500) > 1e-9 {
		t.Errorf("SensorPosition = %v, want 2500", got)
	}
}

func TestSimDevice_NoFeedbackReadsZero(t *testing.T) {
	s := newSim(t, nil, 1)
	_ = s.SetOutput(Velocity, 250)
	s.Advance(time.Second)
	if s.SensorVelocity(DefaultSlot) != 0 || s.SensorPosition(DefaultSlot) != 0 {
		t.Error("sensor reads must be 0 without a feedback device")
	}
}

func TestSimDevice_FollowerMirrorsLeader(t *testing.T) {
	bus := NewBus()
	leader := newSim(t, bus, 43)
	follower := newSim(t, bus, 41)

	_ = leader.SetOutput(PercentOutput, 0.4)
	if err := follower.SetOutput(Follower, 43); err != nil {
		t.Fatalf("SetOutput(Follower): %v", err)
	}
	if got := follower.MotorOutput(); got != 0.4 {
		t.Errorf("follower output = %v, want 0.4", got)
	}

	// The follower only picks up a new leader output when refreshed.
	_ = leader.SetOutput(PercentOutput, -0.2)
	if got := follower.MotorOutput(); got != 0.4 {
		t.Errorf("follower output before refresh = %v, want 0.4", got)
	}
	_ = follower.SetOutput(Follower, 43)
	if got := follower.MotorOutput(); got != -0.2 {
		t.Errorf("follower output after refresh = %v, want -0.2", got)
	}
}

func TestSimDevice_FollowerUnknownLeader(t *testing.T) {
	bus := NewBus()
	follower := newSim(t, bus, 41)
	err := follower.SetOutput(Follower, 99)
	if !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("err = %v, want ErrUnknownDevice", err)
	}
	if err := follower.SetOutput(Follower, 41); err == nil {
		t.Error("following itself should fail")
	}
}

func TestSimDevice_StopCounts(t *testing.T) {
	s := newSim(t, nil, 1)
	_ = s.SetOutput(PercentOutput, 0.5)
	s.Stop()
	if s.MotorOutput() != 0 {
		t.Error("Stop should zero the output")
	}
	_ = s.SetOutput(Disabled, 0)
	if s.Stops() != 2 {
		t.Errorf("Stops() = %d, want 2", s.Stops())
	}
}

func TestSimDevice_ConfigFailure(t *testing.T) {
	s := newSim(t, nil, 1)
	if err := s.ConfigPID(DefaultSlot, TermP, 0.85, DefaultTimeout); err != nil {
		t.Fatal(err)
	}
	s.SetFailConfig(true)
	if err := s.ConfigPID(DefaultSlot, TermI, 0.01, DefaultTimeout); !errors.Is(err, ErrNoAck) {
		t.Errorf("ConfigPID err = %v, want ErrNoAck", err)
	}
	if err := s.ConfigFeedbackSensor(QuadEncoder, DefaultSlot, DefaultTimeout); !errors.Is(err, ErrNoAck) {
		t.Errorf("ConfigFeedbackSensor err = %v, want ErrNoAck", err)
	}
	g := s.Gains(DefaultSlot)
	if g[TermP] != 0.85 || g[TermI] != 0 {
		t.Errorf("Gains = %v, want P=0.85 and I untouched", g)
	}
}

func TestSimDevice_UnsupportedMode(t *testing.T) {
	s := newSim(t, nil, 1)
	if err := s.SetOutput(MotionMagic, 1); !errors.Is(err, ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}
