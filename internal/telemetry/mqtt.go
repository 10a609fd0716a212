package telemetry

import (
	"encoding/json"
	"time"

	"github.com/benbjohnson/clock"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/cjeanneret/DriveGo/internal/config"
	"github.com/cjeanneret/DriveGo/internal/debug"
)

const (
	publishTimeout = 500 * time.Millisecond
	quiesceMs      = 250
)

// ErrPublishTimeout is returned when the broker does not ack in time.
var ErrPublishTimeout = errors.New("telemetry: publish timed out")

// mqttClient is the part of mqtt.Client the publisher uses.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher sends snapshots as JSON to an MQTT topic, at most
// RateHz messages per second. Extra snapshots are dropped.
type MQTTPublisher struct {
	client  mqttClient
	topic   string
	qos     byte
	limiter *rate.Limiter
	clock   clock.Clock
	dropped uint64
}

// NewMQTTPublisher connects to the broker. The client reconnects on its own
// after the first connection succeeds.
func NewMQTTPublisher(cfg config.MQTTConfig) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.OnConnect = func(mqtt.Client) {
		debug.Info("MQTT: connected to %s", cfg.Broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		debug.Warn("MQTT: connection lost: %v", err)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		debug.Warn("MQTT: %s not reachable yet, retrying in background", cfg.Broker)
	} else if err := token.Error(); err != nil {
		return nil, errors.Wrapf(err, "connect to %s", cfg.Broker)
	}
	return newMQTTPublisher(client, cfg, clock.New()), nil
}

func newMQTTPublisher(client mqttClient, cfg config.MQTTConfig, clk clock.Clock) *MQTTPublisher {
	return &MQTTPublisher{
		client:  client,
		topic:   cfg.Topic,
		qos:     cfg.QoS,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateHz), 1),
		clock:   clk,
	}
}

// Publish sends s unless the rate limit has been reached.
func (p *MQTTPublisher) Publish(s Snapshot) error {
	if !p.limiter.AllowN(p.clock.Now(), 1) {
		p.dropped++
		return nil
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	token := p.client.Publish(p.topic, p.qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.Wrap(ErrPublishTimeout, p.topic)
	}
	if err := token.Error(); err != nil {
		return errors.Wrapf(err, "publish %s", p.topic)
	}
	debug.Trace("[MQTT] %s cycle=%d %d bytes", p.topic, s.Cycle, len(payload))
	return nil
}

// Dropped counts snapshots skipped by the rate limit.
func (p *MQTTPublisher) Dropped() uint64 { return p.dropped }

func (p *MQTTPublisher) Close() {
	p.client.Disconnect(quiesceMs)
}
