// Package supervisor implements the Ride Supervisor: the master control
// loop that arbitrates between the operator panel, the Motor Controller
// Service, and the show controller, and owns the ride's safety latch.
package supervisor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ridecontrol/looptimer"
	"ridecontrol/panel"
	"ridecontrol/roboclaw"
	"ridecontrol/show"
)

// MotorService is the capability trait the Supervisor drives the Motor
// Controller Service through. motorcontroller.Service satisfies it; tests
// substitute a fake, the way the Design Notes call for capability traits
// in place of interface-plus-subclass mocking.
type MotorService interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
	StartRideSequence(ctx context.Context) error
	StopMotion() error
	HaltMotion() error
	JogMotor(motorNumber int, direction int) bool

	GetMotorSpeeds() (m1, m2 float64)
	GetMotorPositions() (m1, m2 int32)
	GetControllerStatus() roboclaw.Status
	GetTelemetryAge() time.Duration
	IsTelemetryStale(maxAge ...time.Duration) bool
	IsEstopActive() bool
}

// TelemetryPublisher is an optional sink the Supervisor pushes periodic
// telemetry to (e.g. an MQTT publish loop). A nil Publisher disables
// publication entirely.
type TelemetryPublisher interface {
	Publish(ctx context.Context, speeds [2]float64, positions [2]int32, status string, age time.Duration) error
}

// Config tunes the Supervisor's periodic behavior.
type Config struct {
	TelemetryPeriod time.Duration // default 2s
	TickSleep       time.Duration // default 1ms
}

// Supervisor is the ride's master control loop.
type Supervisor struct {
	service MotorService
	events  panel.EventSource
	show    show.Controller
	loop    *looptimer.Timer
	logger  *zap.SugaredLogger

	publisher TelemetryPublisher

	telemetryPeriod time.Duration
	tickSleep       time.Duration
	lastTelemetry   time.Time

	maintenanceMode bool
	estopLatched    bool
}

// New constructs a Supervisor. publisher may be nil.
func New(service MotorService, events panel.EventSource, showCtl show.Controller, publisher TelemetryPublisher, logger *zap.SugaredLogger, cfg Config) *Supervisor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.TelemetryPeriod <= 0 {
		cfg.TelemetryPeriod = 2 * time.Second
	}
	if cfg.TickSleep <= 0 {
		cfg.TickSleep = time.Millisecond
	}
	return &Supervisor{
		service:         service,
		events:          events,
		show:            showCtl,
		publisher:       publisher,
		loop:            looptimer.NewTimer(0),
		logger:          logger,
		telemetryPeriod: cfg.TelemetryPeriod,
		tickSleep:       cfg.TickSleep,
	}
}

// Run starts the panel producer loop and the Motor Controller Service,
// then runs the Supervisor's main loop until ctx is canceled.
func (s *Supervisor) Run(ctx context.Context) error {
	panelErrs := make(chan error, 1)
	go func() { panelErrs <- s.events.Run(ctx) }()

	if err := s.service.Start(ctx); err != nil {
		return fmt.Errorf("start motor controller service: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return s.service.Shutdown(context.Background())
		case err := <-panelErrs:
			if err != nil && ctx.Err() == nil {
				s.logger.Errorw("panel event source exited", "error", err)
			}
		default:
		}

		s.drainEvents(ctx)

		if !s.estopLatched {
			s.evaluateSafety(ctx)
		}

		s.maybeEmitTelemetry(ctx)

		s.loop.Tick()
		time.Sleep(s.tickSleep)
	}
}

func (s *Supervisor) drainEvents(ctx context.Context) {
	for {
		select {
		case ev := <-s.events.Events():
			s.handleEvent(ctx, ev)
		default:
			return
		}
	}
}

func (s *Supervisor) handleEvent(ctx context.Context, ev panel.Event) {
	switch ev.Kind {
	case panel.EventDispatch:
		if ev.Momentary == panel.Pressed {
			s.handleDispatch(ctx)
		}
	case panel.EventReset:
		if ev.Momentary == panel.Pressed {
			s.handleReset()
		}
	case panel.EventStop:
		if ev.Momentary == panel.Pressed {
			s.handleStop(ctx)
		}
	case panel.EventEStop:
		if ev.Momentary == panel.Pressed {
			s.latch(ctx, "Operator E-Stop Pressed.")
		}
	case panel.EventMaintenanceSwitch:
		s.handleMaintenanceSwitch(ctx, ev.Sustained)
	case panel.EventJogSwitch:
		s.handleJogSwitch(ev.Jog)
	}
}

func (s *Supervisor) handleDispatch(ctx context.Context) {
	if s.estopLatched {
		s.logger.Warn("dispatch ignored: E-Stop latched")
		return
	}
	if s.maintenanceMode {
		s.logger.Info("dispatch ignored: maintenance mode active")
		return
	}
	if err := s.show.StartShow(ctx); err != nil {
		s.logger.Warnw("show failed to start", "error", err)
	}
	if err := s.service.StartRideSequence(ctx); err != nil {
		s.logger.Warnw("ride sequence failed to start", "error", err)
	}
}

func (s *Supervisor) handleReset() {
	if s.estopLatched && s.service.IsEstopActive() {
		s.logger.Warn("reset refused: hardware E-Stop still active")
		return
	}
	s.estopLatched = false
}

func (s *Supervisor) handleStop(ctx context.Context) {
	if err := s.service.StopMotion(); err != nil {
		s.logger.Warnw("stop motion failed", "error", err)
	}
	if err := s.show.StopShow(ctx); err != nil {
		s.logger.Warnw("show failed to stop", "error", err)
	}
}

func (s *Supervisor) handleMaintenanceSwitch(ctx context.Context, state panel.SustainedState) {
	switch state {
	case panel.On:
		s.maintenanceMode = true
		if err := s.show.StopShow(ctx); err != nil {
			s.logger.Warnw("show failed to stop for maintenance", "error", err)
		}
	case panel.Off:
		s.maintenanceMode = false
	case panel.Maintenance:
		s.logger.Debug("maintenance switch set to reserved MAINTENANCE position, no-op")
	}
}

func (s *Supervisor) handleJogSwitch(state panel.JogState) {
	if !s.maintenanceMode || s.estopLatched {
		return
	}
	switch state {
	case panel.Up:
		s.service.JogMotor(1, 1)
		s.service.JogMotor(2, 1)
	case panel.Down:
		s.service.JogMotor(1, -1)
		s.service.JogMotor(2, -1)
	case panel.Neutral:
		if err := s.service.StopMotion(); err != nil {
			s.logger.Warnw("jog-neutral stop failed", "error", err)
		}
	}
}

// evaluateSafety checks the safety constraints in order, latching on the
// first violation.
func (s *Supervisor) evaluateSafety(ctx context.Context) {
	if s.service.IsEstopActive() {
		s.latch(ctx, "MC E-Stop Active.")
		return
	}
	if s.service.IsTelemetryStale() {
		age := s.service.GetTelemetryAge()
		s.latch(ctx, fmt.Sprintf("MC Telemetry stale -> %.3fs since last fetch.", age.Seconds()))
		return
	}
	if status := s.service.GetControllerStatus(); status != roboclaw.StatusNormal {
		s.latch(ctx, fmt.Sprintf("MC Abnormal Status: %s", status))
	}
}

// latch sets the software E-Stop latch and commands the motors and show
// to stop before this loop iteration returns to draining the next event,
// upholding the invariant that halt+stop-show happen before any further
// panel event is processed.
func (s *Supervisor) latch(ctx context.Context, reason string) {
	if s.estopLatched {
		return
	}
	s.logger.Errorw("latching E-Stop", "reason", reason)
	s.estopLatched = true

	if err := s.service.HaltMotion(); err != nil {
		s.logger.Warnw("halt motion failed during latch", "error", err)
	}
	if err := s.show.StopShow(ctx); err != nil {
		s.logger.Warnw("show failed to stop during latch", "error", err)
	}
}

func (s *Supervisor) maybeEmitTelemetry(ctx context.Context) {
	if time.Since(s.lastTelemetry) < s.telemetryPeriod {
		return
	}
	s.lastTelemetry = time.Now()

	m1, m2 := s.service.GetMotorSpeeds()
	p1, p2 := s.service.GetMotorPositions()
	status := s.service.GetControllerStatus()
	age := s.service.GetTelemetryAge()

	s.logger.Infow("telemetry",
		"speed1", m1, "speed2", m2,
		"pos1", p1, "pos2", p2,
		"status", status.String(), "age", age)

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, [2]float64{m1, m2}, [2]int32{p1, p2}, status.String(), age); err != nil {
			s.logger.Warnw("telemetry publish failed", "error", err)
		}
	}
}

// IsEstopLatched reports the Supervisor's software latch state, exposed
// for tests and diagnostics.
func (s *Supervisor) IsEstopLatched() bool {
	return s.estopLatched
}

// IsMaintenanceMode reports whether the maintenance rotary switch is On.
func (s *Supervisor) IsMaintenanceMode() bool {
	return s.maintenanceMode
}
