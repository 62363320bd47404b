// Package telemetrymqtt publishes the Ride Supervisor's periodic
// telemetry snapshot onto an MQTT topic, the same publish-loop role
// raptor-core's state topic plays for its VFD telemetry. This is an
// optional HMI-facing sink external to the three core subsystems; the
// core runs unchanged with it disabled.
package telemetrymqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Snapshot is the JSON payload published on each telemetry tick.
type Snapshot struct {
	Timestamp string  `json:"ts"`
	Speed1    float64 `json:"speed1"`
	Speed2    float64 `json:"speed2"`
	Position1 int32   `json:"position1"`
	Position2 int32   `json:"position2"`
	Status    string  `json:"status"`
	AgeMillis int64   `json:"age_ms"`
}

// Options configures a Publisher's MQTT connection.
type Options struct {
	Broker     string
	ClientID   string
	StateTopic string
	Username   string
	Password   string
}

// Publisher connects to an MQTT broker and publishes telemetry snapshots,
// satisfying supervisor.TelemetryPublisher.
type Publisher struct {
	client mqtt.Client
	topic  string
	logger *zap.SugaredLogger
}

// Connect dials the broker and returns a ready Publisher. The connection
// auto-reconnects, matching raptor-core's SetAutoReconnect/SetConnectRetry
// usage.
func Connect(opts Options, logger *zap.SugaredLogger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOrderMatters(false)
	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
		clientOpts.SetPassword(opts.Password)
	}

	client := mqtt.NewClient(clientOpts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, errors.New("mqtt connect: timed out")
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrap(err, "mqtt connect")
	}

	return &Publisher{client: client, topic: opts.StateTopic, logger: logger}, nil
}

// Publish marshals the given telemetry fields and publishes them at QoS 1,
// not retained.
func (p *Publisher) Publish(ctx context.Context, speeds [2]float64, positions [2]int32, status string, age time.Duration) error {
	snap := Snapshot{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Speed1:    speeds[0],
		Speed2:    speeds[1],
		Position1: positions[0],
		Position2: positions[1],
		Status:    status,
		AgeMillis: age.Milliseconds(),
	}

	b, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "marshal telemetry snapshot")
	}

	token := p.client.Publish(p.topic, 1, false, b)
	if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, token.Error())
	}
	return nil
}

// Close disconnects from the broker, waiting up to 250ms for in-flight
// publishes to flush.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
