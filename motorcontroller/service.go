package motorcontroller

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"ridecontrol/looptimer"
	"ridecontrol/roboclaw"
)

// Tuning constants for the RoboClaw-driven motor controller, carried
// verbatim from the original RoboClawSerialMotorController.
const (
	PollRateHz       = 50
	JogSpeed         = 500
	JogAcceleration  = 200
	StopDeceleration = 300
	HaltDeceleration = 10000

	// StoppedThreshold is the |speed| below which a motor commanded to
	// stop is considered settled.
	StoppedThreshold = 5

	// StaleThresholdMultiplier matches the original's
	// STALE_THRESHOLD_MULTIPLIER: telemetry older than this many poll
	// intervals is considered stale absent an explicit override.
	StaleThresholdMultiplier = 3
)

// StaleThreshold is the default max telemetry age before IsTelemetryStale
// reports true.
const StaleThreshold = StaleThresholdMultiplier * time.Second / PollRateHz

// pollInterval is the background telemetry loop's tick period.
const pollInterval = time.Second / PollRateHz

// Service implements the Motor Controller Service: it owns the serial
// link to a RoboClaw, runs a background telemetry poll loop, and exposes
// jog/sequence/home/stop/halt commands plus a TelemetryReader surface.
type Service struct {
	client *roboclaw.Client
	loop   *looptimer.Timer
	logger *zap.SugaredLogger

	stateMu sync.RWMutex
	state   State

	telemetryMu sync.Mutex
	telemetry   ControllerTelemetry

	cancel context.CancelFunc
	wg     sync.WaitGroup

	// RideSequenceFunc and HomeFunc are optional hooks invoked after the
	// corresponding state transition. Neither the ride program body nor
	// the homing motion profile is implemented here; a caller wires its
	// own in when one exists. Left nil, the command only records state.
	RideSequenceFunc func(ctx context.Context) error
	HomeFunc         func(ctx context.Context) error
}

// NewService constructs a Service in the Disabled state. Call Start to
// bring the hardware link up and begin polling.
func NewService(client *roboclaw.Client, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{
		client: client,
		loop:   looptimer.NewTimer(0),
		logger: logger,
		state:  Disabled,
	}
}

// Start reads the controller's firmware version to confirm the link is
// live, then launches the background poll loop. The service remains
// Disabled until the first telemetry poll succeeds and reports status
// Normal; evaluateAutoTransitions makes that Disabled->Idle edge.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("starting motor controller service")

	version, err := s.client.ReadVersion()
	if err != nil {
		return errors.Wrap(err, "read firmware version")
	}
	s.logger.Infow("connected to roboclaw", "version", version)

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(loopCtx)

	return nil
}

// Shutdown halts all motion, stops the poll loop, and waits up to 1s for
// it to exit before transitioning to Disabled.
func (s *Service) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down motor controller service")

	if err := s.HaltMotion(); err != nil {
		s.logger.Warnw("halt during shutdown failed", "error", err)
	}

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		s.logger.Error("telemetry loop failed to shut down within 1s")
	}

	s.setState(Disabled)
	return nil
}

// ===== Commands =====

// StartRideSequence transitions Idle -> Sequencing and invokes
// RideSequenceFunc, if set.
func (s *Service) StartRideSequence(ctx context.Context) error {
	s.stateMu.Lock()
	if s.state != Idle {
		current := s.state
		s.stateMu.Unlock()
		s.logger.Warnw("cannot start sequence from this state", "state", current)
		return errors.Errorf("cannot start ride sequence from state %s", current)
	}
	s.state = Sequencing
	s.stateMu.Unlock()
	s.logger.Info("state: IDLE -> SEQUENCING")

	if s.RideSequenceFunc != nil {
		return s.RideSequenceFunc(ctx)
	}
	return nil
}

// Home transitions to Homing and invokes HomeFunc, if set.
func (s *Service) Home(ctx context.Context) error {
	s.setState(Homing)
	if s.HomeFunc != nil {
		return s.HomeFunc(ctx)
	}
	return nil
}

// JogMotor jogs motorNumber continuously in direction (positive forward,
// non-positive backward) at JogSpeed/JogAcceleration. Must be called again
// to keep the motor moving; only valid from Idle or already-Jogging.
// Returns whether the motor is now being jogged.
func (s *Service) JogMotor(motorNumber int, direction int) bool {
	if motorNumber != 1 && motorNumber != 2 {
		s.logger.Errorw("invalid motor number", "motor", motorNumber)
		return false
	}

	s.stateMu.Lock()
	if s.state != Idle && s.state != Jogging {
		current := s.state
		s.stateMu.Unlock()
		s.logger.Debugw("cannot jog from this state", "state", current)
		return false
	}
	s.state = Jogging
	s.stateMu.Unlock()

	speed := int32(JogSpeed)
	if direction <= 0 {
		speed = -speed
	}

	if err := s.client.SetSpeedWithAcceleration(motorNumber, speed, JogAcceleration); err != nil {
		s.logger.Warnw("jog command failed", "motor", motorNumber, "error", err)
		return false
	}
	return true
}

// StopMotion decelerates both motors gently to a stop. The transition to
// Idle is made by evaluateAutoTransitions once telemetry shows both
// motors have settled below StoppedThreshold.
func (s *Service) StopMotion() error {
	s.setState(Stopping)

	var errs error
	for _, motor := range []int{1, 2} {
		if err := s.client.SetSpeedWithAcceleration(motor, 0, StopDeceleration); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "stop motor %d", motor))
		}
	}

	return errs
}

// HaltMotion immediately stops both motors at HaltDeceleration. Like
// StopMotion, it only issues the deceleration command and enters
// Stopping; evaluateAutoTransitions brings the service to Idle once
// telemetry confirms both motors have settled.
func (s *Service) HaltMotion() error {
	s.setState(Stopping)

	var errs error
	for _, motor := range []int{1, 2} {
		if err := s.client.SetSpeedWithAcceleration(motor, 0, HaltDeceleration); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "halt motor %d", motor))
		}
	}

	return errs
}

func (s *Service) setState(newState State) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.state != newState {
		s.logger.Infow("state transition", "from", s.state, "to", newState)
		s.state = newState
	}
}

// ===== Background telemetry loop =====

func (s *Service) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.loop.Tick()
			if err := s.pollOnce(); err != nil {
				s.logger.Errorw("telemetry poll failed", "error", err)
			}
		}
	}
}

// pollOnce reads every telemetry field in one cycle. Each read's failure
// is collected independently via multierr so a single dead sensor doesn't
// blank the rest of the snapshot; the assembled snapshot is swapped in
// under the telemetry lock in one assignment regardless of partial
// failures, preserving the read side's atomicity invariant.
func (s *Service) pollOnce() error {
	start := time.Now()
	var errs error

	status, err := s.client.ReadStatus()
	errs = multierr.Append(errs, err)

	voltage, err := s.client.ReadBattVoltage(roboclaw.Main)
	errs = multierr.Append(errs, err)

	current1, current2, err := s.client.ReadCurrents()
	errs = multierr.Append(errs, err)

	temp1, err := s.client.ReadTempSensor(1)
	errs = multierr.Append(errs, err)

	temp2, err := s.client.ReadTempSensor(2)
	errs = multierr.Append(errs, err)

	var motors [2]MotorTelemetry
	currents := [2]float64{current1, current2}
	for i, motor := range []int{1, 2} {
		enc, err := s.client.ReadEncoderPosition(motor)
		errs = multierr.Append(errs, err)

		spd, err := s.client.ReadEncoderSpeed(motor)
		errs = multierr.Append(errs, err)

		speed := float64(spd.Speed)
		if spd.Direction == roboclaw.Backward {
			speed = -speed
		}

		motors[i] = MotorTelemetry{
			Speed:     speed,
			Encoder:   enc.Count,
			Current:   currents[i],
			Direction: spd.Direction,
			Timestamp: start,
		}
	}

	snapshot := ControllerTelemetry{
		Motors:     motors,
		Voltage:    voltage,
		Status:     status,
		Temp1:      temp1,
		Temp2:      temp2,
		LastUpdate: start,
	}

	s.telemetryMu.Lock()
	s.telemetry = snapshot
	s.telemetryMu.Unlock()

	// A failed read leaves its field zeroed, which would read as
	// StatusNormal or as a settled motor, so only a fully successful poll
	// may drive the auto transitions.
	if errs == nil {
		s.evaluateAutoTransitions(status)
	}

	return errs
}

// evaluateAutoTransitions handles the telemetry-driven DISABLED->IDLE and
// STOPPING->IDLE edges. Neither StopMotion nor HaltMotion transitions out
// of Stopping themselves; this is the only place that does, once a fresh
// poll confirms the precondition for each edge.
func (s *Service) evaluateAutoTransitions(status roboclaw.Status) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	switch s.state {
	case Disabled:
		if status == roboclaw.StatusNormal {
			s.logger.Infow("state transition", "from", s.state, "to", Idle)
			s.state = Idle
		}
	case Stopping:
		m1, m2 := s.motorsSettled()
		if m1 && m2 {
			s.logger.Infow("state transition", "from", s.state, "to", Idle)
			s.state = Idle
		}
	}
}

func (s *Service) motorsSettled() (bool, bool) {
	s.telemetryMu.Lock()
	defer s.telemetryMu.Unlock()
	settled := func(m MotorTelemetry) bool {
		return math.Abs(m.Speed) < StoppedThreshold
	}
	return settled(s.telemetry.Motors[0]), settled(s.telemetry.Motors[1])
}

// ===== TelemetryReader =====

func (s *Service) GetMotorSpeeds() (m1, m2 float64) {
	s.telemetryMu.Lock()
	defer s.telemetryMu.Unlock()
	return s.telemetry.Motors[0].Speed, s.telemetry.Motors[1].Speed
}

func (s *Service) GetMotorPositions() (m1, m2 int32) {
	s.telemetryMu.Lock()
	defer s.telemetryMu.Unlock()
	return s.telemetry.Motors[0].Encoder, s.telemetry.Motors[1].Encoder
}

func (s *Service) GetState() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Service) GetControllerStatus() roboclaw.Status {
	s.telemetryMu.Lock()
	defer s.telemetryMu.Unlock()
	return s.telemetry.Status
}

// GetTelemetryAge returns how long ago the telemetry snapshot was last
// refreshed, or an effectively-infinite duration if a poll has never
// completed (time.Duration has no true infinity, unlike the original's
// float('inf')).
func (s *Service) GetTelemetryAge() time.Duration {
	s.telemetryMu.Lock()
	lastUpdate := s.telemetry.LastUpdate
	s.telemetryMu.Unlock()

	if lastUpdate.IsZero() {
		return time.Duration(math.MaxInt64)
	}
	return time.Since(lastUpdate)
}

// IsTelemetryStale reports whether the telemetry snapshot is older than
// maxAge (default StaleThreshold, StaleThresholdMultiplier poll intervals).
func (s *Service) IsTelemetryStale(maxAge ...time.Duration) bool {
	threshold := time.Duration(StaleThreshold)
	if len(maxAge) > 0 {
		threshold = maxAge[0]
	}
	return s.GetTelemetryAge() > threshold
}

// IsEstopActive reports whether the last polled status has the hardware
// E-Stop bit set.
func (s *Service) IsEstopActive() bool {
	s.telemetryMu.Lock()
	defer s.telemetryMu.Unlock()
	return s.telemetry.Status == roboclaw.StatusEStop
}
