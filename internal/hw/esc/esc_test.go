package esc

import "testing"

// ---------- code lookup ----------

func TestControlModeFromCode_Known(t *testing.T) {
	cases := []struct {
		code int
		want ControlMode
	}{
		{0, PercentOutput},
		{1, Position},
		{2, Velocity},
		{3, Current},
		{5, Follower},
		{6, MotionProfile},
		{7, MotionMagic},
		{15, Disabled},
	}
	for _, tc := range cases {
		t.Run(tc.want.String(), func(t *testing.T) {
			got, ok := ControlModeFromCode(tc.code)
			if !ok {
				t.Fatalf("ControlModeFromCode(%d): not found", tc.code)
			}
			if got != tc.want {
				t.Errorf("ControlModeFromCode(%d) = %v, want %v", tc.code, got, tc.want)
			}
		})
	}
}

func TestControlModeFromCode_Unknown(t *testing.T) {
	for _, code := range []int{-1, 4, 8, 14, 16, 1000} {
		if m, ok := ControlModeFromCode(code); ok {
			t.Errorf("ControlModeFromCode(%d) = %v, want not found", code, m)
		}
	}
}

func TestFeedbackDeviceFromCode(t *testing.T) {
	cases := []struct {
		code   int
		want   FeedbackDevice
		wantOK bool
	}{
		{-1, NoFeedback, true},
		{0, QuadEncoder, true},
		{2, Analog, true},
		{4, Tachometer, true},
		{8, PulseWidthEncodedPosition, true},
		{15, SoftwareEmulatedSensor, true},
		{1, 0, false},
		{99, 0, false},
	}
	for _, tc := range cases {
		got, ok := FeedbackDeviceFromCode(tc.code)
		if ok != tc.wantOK {
			t.Errorf("FeedbackDeviceFromCode(%d) ok = %v, want %v", tc.code, ok, tc.wantOK)
			continue
		}
		if ok && got != tc.want {
			t.Errorf("FeedbackDeviceFromCode(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestParseNames(t *testing.T) {
	if m, ok := ParseControlMode("Velocity"); !ok || m != Velocity {
		t.Errorf("ParseControlMode(Velocity) = %v, %v", m, ok)
	}
	if _, ok := ParseControlMode("velocity"); ok {
		t.Error("names are case sensitive")
	}
	if f, ok := ParseFeedbackDevice("QuadEncoder"); !ok || f != QuadEncoder {
		t.Errorf("ParseFeedbackDevice(QuadEncoder) = %v, %v", f, ok)
	}
	if f, ok := ParseFeedbackDevice("None"); !ok || f != NoFeedback {
		t.Errorf("ParseFeedbackDevice(None) = %v, %v", f, ok)
	}
}

func TestStringers(t *testing.T) {
	cases := map[string]string{
		ControlMode(42).String():    "ControlMode(42)",
		Follower.String():           "Follower",
		FeedbackDevice(77).String(): "FeedbackDevice(77)",
		Brake.String():              "Brake",
		TermF.String():              "kF",
	}
	for got, want := range cases {
		if got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
