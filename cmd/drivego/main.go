package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/cjeanneret/DriveGo/internal/config"
	"github.com/cjeanneret/DriveGo/internal/debug"
	"github.com/cjeanneret/DriveGo/internal/hw/gamepad"
	"github.com/cjeanneret/DriveGo/internal/logic/drivetrain"
	"github.com/cjeanneret/DriveGo/internal/logic/geometry"
	"github.com/cjeanneret/DriveGo/internal/logic/robot"
	"github.com/cjeanneret/DriveGo/internal/telemetry"
	"github.com/cjeanneret/DriveGo/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	modeName := flag.String("mode", "disabled", "initial mode: disabled, teleop or autonomous")
	routine := flag.String("routine", "", "autonomous routine to start (implies -mode autonomous)")
	scale := flag.Float64("scale", 0, "override the drive scale factor (0-1], 0 keeps the default")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	mode, err := robot.ParseMode(*modeName)
	if err != nil {
		log.Fatalf("invalid -mode: %v", err)
	}
	if err := validateScale(*scale); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}

	debug.Init(cfg.Defaults.DebugLevel)
	defer debug.Sync()

	var logs *web.LogBroadcaster
	if webPort.port() > 0 {
		logs = web.NewLogBroadcaster(nil)
		debug.SetOutput(io.MultiWriter(os.Stdout, logs))
	}

	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	if err := run(ctx, cfg, options{
		mode:    mode,
		routine: *routine,
		scale:   *scale,
		webAddr: webAddr(webPort.port()),
		logs:    logs,
	}); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("drivego: %v", err)
	}
}

type options struct {
	mode    robot.Mode
	routine string
	scale   float64
	webAddr string // empty = no web server
	logs    *web.LogBroadcaster
}

// run wires hardware, input and telemetry around one runner and blocks
// until ctx is cancelled or a component fails.
func run(ctx context.Context, cfg *config.Config, opts options) error {
	debug.Step(1, "Initializing motor controllers")
	hw, err := robot.NewHardware(cfg)
	if err != nil {
		return fmt.Errorf("init hardware: %w", err)
	}
	defer func() {
		if err := hw.Close(); err != nil {
			debug.Warn("closing hardware: %v", err)
		}
	}()

	debug.Step(2, "Initializing gamepad")
	pad, padInput, err := openGamepad(cfg.Input)
	if err != nil {
		return fmt.Errorf("init gamepad: %w", err)
	}
	if pad != nil {
		defer pad.Close()
	}

	debug.Step(3, "Configuring drivetrain")
	wheel, err := geometry.NewWheelFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("wheel geometry: %w", err)
	}
	dt, err := drivetrain.New(hw.Main, hw.Follower, padInput, wheel, nil)
	if err != nil {
		return err
	}
	if err := dt.Configure(cfg.Drivetrain); err != nil {
		return err
	}
	if opts.scale > 0 {
		dt.SetScaleFactor(opts.scale)
	}
	debug.Value("Wheel radius (m)", wheel.Radius())
	debug.Value("Wheel separation (m)", wheel.Separation())

	r := robot.New(dt, cfg, nil)
	r.Simulate(hw.Advancers()...)

	debug.Step(4, "Initializing telemetry")
	mqttPub, err := openMQTT(cfg.Telemetry.MQTT)
	if err != nil {
		return err
	}
	if mqttPub != nil {
		defer mqttPub.Close()
		r.AddSink(mqttPub)
	}

	if opts.routine != "" {
		if err := r.StartRoutine(opts.routine); err != nil {
			return err
		}
	} else if err := r.SetMode(opts.mode); err != nil {
		return err
	}

	var srv *web.Server
	if opts.webAddr != "" {
		hub := web.NewTelemetryHub()
		logs := opts.logs
		if logs == nil {
			logs = web.NewLogBroadcaster(nil)
		}
		if srv, err = web.NewServer(opts.webAddr, r, logs, hub); err != nil {
			return err
		}
		r.AddSink(hub)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.Run(ctx) })
	g.Go(func() error { return r.PublishLoop(ctx) })
	if pad != nil {
		g.Go(func() error { return pad.Run(ctx) })
	}
	if srv != nil {
		g.Go(func() error { return srv.Run(ctx) })
	}

	return g.Wait()
}

// openGamepad opens the configured evdev device. Without one, teleop reads
// a neutral State that stays at rest.
func openGamepad(cfg config.InputConfig) (*gamepad.Evdev, drivetrain.Input, error) {
	if cfg.Device == "" {
		debug.Info("No gamepad configured; teleop input stays neutral")
		return nil, gamepad.NewState(), nil
	}
	pad, err := gamepad.Open(cfg.Device, gamepad.NewMapping(cfg))
	if err != nil {
		return nil, nil, err
	}
	return pad, pad, nil
}

func openMQTT(cfg config.MQTTConfig) (*telemetry.MQTTPublisher, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	p, err := telemetry.NewMQTTPublisher(cfg)
	if err != nil {
		return nil, fmt.Errorf("mqtt: %w", err)
	}
	debug.Value("MQTT broker", cfg.Broker)
	debug.Value("MQTT topic", cfg.Topic)
	return p, nil
}

// validateScale accepts 0 (keep the configured value) or a value in (0, 1].
func validateScale(v float64) error {
	if v == 0 {
		return nil
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 1 {
		return fmt.Errorf("scale must be in (0, 1], got %g", v)
	}
	return nil
}

func webAddr(port int) string {
	if port <= 0 {
		return ""
	}
	return fmt.Sprintf(":%d", port)
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
