// Package config loads process configuration from environment variables
// with hard-coded defaults, the same small env(k, def) pattern used by
// industrial control processes in this corpus rather than a YAML/flag
// framework.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is every environment-driven knob the ridecontrol process reads at
// startup.
type Config struct {
	SerialPort      string
	SerialAddress   byte
	AutoRecover     bool
	MQTTEnabled     bool
	MQTTBroker      string
	MQTTClientID    string
	MQTTStateTopic  string
	MQTTUsername    string
	MQTTPassword    string
	TelemetryPeriod time.Duration
}

// FromEnv builds a Config from the process environment, falling back to
// defaults suitable for a desk/simulated setup.
func FromEnv() Config {
	return Config{
		SerialPort:      env("RCC_SERIAL_PORT", "/dev/ttyACM0"),
		SerialAddress:   byte(envInt("RCC_SERIAL_ADDRESS", 0x80)),
		AutoRecover:     envBool("RCC_SERIAL_AUTO_RECOVER", true),
		MQTTEnabled:     envBool("RCC_MQTT_ENABLED", false),
		MQTTBroker:      env("RCC_MQTT_BROKER", "tcp://localhost:1883"),
		MQTTClientID:    env("RCC_MQTT_CLIENT_ID", "ridecontrol"),
		MQTTStateTopic:  env("RCC_MQTT_STATE_TOPIC", "ridecontrol/telemetry"),
		MQTTUsername:    env("RCC_MQTT_USERNAME", ""),
		MQTTPassword:    env("RCC_MQTT_PASSWORD", ""),
		TelemetryPeriod: envDuration("RCC_TELEMETRY_PERIOD", 2*time.Second),
	}
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envBool(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
