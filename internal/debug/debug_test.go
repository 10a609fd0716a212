package debug

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
)

func withOutput(t *testing.T, lvl int) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	Init(lvl)
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stdout)
		Init(LevelOff)
	})
	return &buf
}

func TestDebug_LevelGating(t *testing.T) {
	buf := withOutput(t, LevelLive)

	Info("info %d", 1)
	Live("live %d", 2)
	Verbose("verbose %d", 3)
	Trace("trace %d", 4)

	out := buf.String()
	for _, want := range []string{"[INFO] info 1", "[LIVE] live 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	for _, unwanted := range []string{"verbose 3", "trace 4"} {
		if strings.Contains(out, unwanted) {
			t.Errorf("output should not contain %q at level %d:\n%s", unwanted, LevelLive, out)
		}
	}
}

func TestDebug_Off(t *testing.T) {
	buf := withOutput(t, LevelOff)

	Info("hidden")
	Error(errors.New("hidden error"))
	Summary("hidden summary")

	if buf.Len() != 0 {
		t.Errorf("expected no output at level 0, got %q", buf.String())
	}
}

func TestDebug_TraceHelpers(t *testing.T) {
	buf := withOutput(t, LevelTrace)

	Motor(43, "SetOutput(Velocity)", 37.5)
	GPIO("WritePin", 17, true)

	out := buf.String()
	if !strings.Contains(out, "[ESC] #43 SetOutput(Velocity) value=37.5") {
		t.Errorf("motor trace missing:\n%s", out)
	}
	if !strings.Contains(out, "[GPIO] WritePin pin=17 value=true") {
		t.Errorf("gpio trace missing:\n%s", out)
	}
}

func TestDebug_WarnAndError(t *testing.T) {
	buf := withOutput(t, LevelLive)

	Warn("feedback sensor on #%d not acknowledged", 44)
	Error(errors.New("boom"))
	Error(nil)

	out := buf.String()
	if !strings.Contains(out, "[WARN] feedback sensor on #44 not acknowledged") {
		t.Errorf("warn missing:\n%s", out)
	}
	if strings.Count(out, "[ERROR]") != 1 {
		t.Errorf("expected exactly one error line (nil is skipped):\n%s", out)
	}
}

func TestDebug_IsEnabled(t *testing.T) {
	withOutput(t, LevelVerbose)

	if !IsEnabled(LevelInfo) || !IsEnabled(LevelVerbose) {
		t.Error("levels up to verbose should be enabled")
	}
	if IsEnabled(LevelTrace) {
		t.Error("trace should not be enabled at verbose")
	}
	if Level() != LevelVerbose {
		t.Errorf("Level() = %d, want %d", Level(), LevelVerbose)
	}
}

func TestDebug_Fmt(t *testing.T) {
	withOutput(t, LevelOff)
	if got := Fmt("x=%d", 1); got != "" {
		t.Errorf("Fmt at level 0 = %q, want empty", got)
	}
	Init(LevelInfo)
	if got := Fmt("x=%d", 1); got != "x=1" {
		t.Errorf("Fmt = %q, want \"x=1\"", got)
	}
}
