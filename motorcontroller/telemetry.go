package motorcontroller

import (
	"time"

	"ridecontrol/roboclaw"
)

// MotorTelemetry is the last-polled reading for a single motor.
type MotorTelemetry struct {
	Speed     float64
	Encoder   int32
	Current   float64
	Direction roboclaw.Direction
	Timestamp time.Time
}

// ControllerTelemetry is one atomically-swapped snapshot of everything the
// poll loop reads from the RoboClaw in a single cycle.
type ControllerTelemetry struct {
	Motors     [2]MotorTelemetry // index 0 = motor 1, index 1 = motor 2
	Voltage    float64
	Status     roboclaw.Status
	Temp1      float64
	Temp2      float64
	LastUpdate time.Time
}

// TelemetryReader is the read-only contract the Ride Supervisor (and any
// HMI/telemetry sink) uses to observe the Motor Controller Service without
// depending on its command surface.
type TelemetryReader interface {
	GetMotorSpeeds() (m1, m2 float64)
	GetMotorPositions() (m1, m2 int32)
	GetState() State
	GetControllerStatus() roboclaw.Status
	GetTelemetryAge() time.Duration
	IsTelemetryStale(maxAge ...time.Duration) bool
	IsEstopActive() bool
}
