package motorcontroller

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ridecontrol/roboclaw"
)

// fakePort is a minimal roboclaw.Port double driven by a per-command
// handler, the same shape as the roboclaw package's own test fake.
type fakePort struct {
	handlers map[byte]func(req []byte) []byte
	outBuf   []byte
	delay    time.Duration
}

func respond(header, payload []byte) []byte {
	crcSeed := append(append([]byte{}, header...), payload...)
	crc := crc16For(crcSeed)
	return append(append([]byte{}, payload...), byte(crc>>8), byte(crc))
}

// crc16For duplicates roboclaw's unexported crc16 using the same table
// shape so the test fixture stays in this package.
func crc16For(data []byte) uint16 {
	const poly = uint16(0x1021)
	var table [256]uint16
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ poly
			} else {
				crc = crc << 1
			}
		}
		table[i] = crc
	}
	var crc uint16
	for _, b := range data {
		crc = (crc << 8) ^ table[byte(crc>>8)^b]
	}
	return crc
}

func (f *fakePort) Write(b []byte) (int, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if h, ok := f.handlers[b[1]]; ok {
		f.outBuf = append(f.outBuf, h(b)...)
	} else {
		f.outBuf = append(f.outBuf, []byte{0xFF}...) // default: ack writes
	}
	return len(b), nil
}

func (f *fakePort) Read(b []byte) (int, error) {
	if len(f.outBuf) == 0 {
		return 0, nil
	}
	n := copy(b, f.outBuf)
	f.outBuf = f.outBuf[n:]
	return n, nil
}

func (f *fakePort) Close() error { return nil }

func healthyHandlers() map[byte]func(req []byte) []byte {
	return map[byte]func(req []byte) []byte{
		21: func(req []byte) []byte { // ReadVersion
			body := append([]byte("USB RoboClaw 2x15a v4.1.34"), 0x0A, 0x00)
			crc := crc16For(append(append([]byte{}, req...), body...))
			return append(body, byte(crc>>8), byte(crc))
		},
		90: func(req []byte) []byte { return respond(req, []byte{0x00, 0x00, 0x00, 0x00}) },  // ReadStatus: Normal
		24: func(req []byte) []byte { return respond(req, []byte{0x00, 0x7D}) },               // ReadBattVoltage: 12.5V
		49: func(req []byte) []byte { return respond(req, []byte{0x00, 0x00, 0x00, 0x00}) },    // ReadCurrents
		82: func(req []byte) []byte { return respond(req, []byte{0x00, 0xC8}) },                // ReadTempSensor 1: 20.0C
		83: func(req []byte) []byte { return respond(req, []byte{0x00, 0xC8}) },                // ReadTempSensor 2
		16: func(req []byte) []byte { return respond(req, []byte{0, 0, 0, 0, 0x00}) },           // encoder 1
		17: func(req []byte) []byte { return respond(req, []byte{0, 0, 0, 0, 0x00}) },           // encoder 2
		18: func(req []byte) []byte { return respond(req, []byte{0, 0, 0, 0, 0x00}) },           // speed 1
		19: func(req []byte) []byte { return respond(req, []byte{0, 0, 0, 0, 0x00}) },           // speed 2
	}
}

func newTestService(t *testing.T, handlers map[byte]func(req []byte) []byte) *Service {
	t.Helper()
	fp := &fakePort{handlers: handlers}
	client := roboclaw.NewClient(fp, roboclaw.Options{})
	return NewService(client, nil)
}

func TestStartTransitionsToIdle(t *testing.T) {
	svc := newTestService(t, healthyHandlers())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, svc.Start(ctx))
	require.Equal(t, Disabled, svc.GetState(), "must stay DISABLED until the first healthy telemetry poll")

	require.Eventually(t, func() bool {
		return svc.GetState() == Idle
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, svc.Shutdown(context.Background()))
	require.Equal(t, Disabled, svc.GetState())
}

func TestStartupDetectsHardwareEstop(t *testing.T) {
	handlers := healthyHandlers()
	handlers[90] = func(req []byte) []byte { return respond(req, []byte{0x00, 0x00, 0x00, 0x01}) } // EStop bit

	svc := newTestService(t, handlers)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, svc.Start(ctx))

	require.Eventually(t, func() bool {
		return svc.IsEstopActive()
	}, time.Second, 5*time.Millisecond)

	require.Never(t, func() bool {
		return svc.GetState() != Disabled
	}, 200*time.Millisecond, 10*time.Millisecond, "must remain DISABLED while status is not Normal")

	require.NoError(t, svc.Shutdown(context.Background()))
}

func TestJogMotorOnlyFromIdleOrJogging(t *testing.T) {
	svc := newTestService(t, healthyHandlers())
	svc.setState(Homing)

	ok := svc.JogMotor(1, 1)
	require.False(t, ok, "jog should be refused from HOMING")

	svc.setState(Idle)
	ok = svc.JogMotor(1, 1)
	require.True(t, ok)
	require.Equal(t, Jogging, svc.GetState())
}

func TestJogMotorRejectsInvalidMotorNumber(t *testing.T) {
	svc := newTestService(t, healthyHandlers())
	svc.setState(Idle)
	require.False(t, svc.JogMotor(3, 1))
}

func TestStopMotionReturnsToIdle(t *testing.T) {
	var speed atomic.Int32
	speed.Store(100)

	handlers := healthyHandlers()
	speedHandler := func(req []byte) []byte {
		return respond(req, []byte{0, 0, 0, byte(speed.Load()), 0x00})
	}
	handlers[18] = speedHandler
	handlers[19] = speedHandler

	svc := newTestService(t, handlers)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Start(ctx))
	require.Eventually(t, func() bool { return svc.GetState() == Idle }, time.Second, 5*time.Millisecond)

	svc.setState(Jogging)
	require.NoError(t, svc.StopMotion())
	require.Equal(t, Stopping, svc.GetState())

	require.Never(t, func() bool {
		return svc.GetState() == Idle
	}, 100*time.Millisecond, 10*time.Millisecond, "must stay STOPPING while telemetry reports motors still moving")

	speed.Store(0)
	require.Eventually(t, func() bool {
		return svc.GetState() == Idle
	}, 500*time.Millisecond, 5*time.Millisecond, "must become IDLE once telemetry confirms both motors have settled")

	require.NoError(t, svc.Shutdown(context.Background()))
}

func TestHaltMotionRoutesThroughStoppingUntilSettled(t *testing.T) {
	var speed atomic.Int32
	speed.Store(100)

	handlers := healthyHandlers()
	speedHandler := func(req []byte) []byte {
		return respond(req, []byte{0, 0, 0, byte(speed.Load()), 0x00})
	}
	handlers[18] = speedHandler
	handlers[19] = speedHandler

	svc := newTestService(t, handlers)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Start(ctx))
	require.Eventually(t, func() bool { return svc.GetState() == Idle }, time.Second, 5*time.Millisecond)

	svc.setState(Jogging)
	require.NoError(t, svc.HaltMotion())
	require.Equal(t, Stopping, svc.GetState(), "halt must not report IDLE while motors are still decelerating")

	speed.Store(0)
	require.Eventually(t, func() bool {
		return svc.GetState() == Idle
	}, 500*time.Millisecond, 5*time.Millisecond)
}

func TestStartRideSequenceRefusedOutsideIdle(t *testing.T) {
	svc := newTestService(t, healthyHandlers())
	svc.setState(Jogging)

	err := svc.StartRideSequence(context.Background())
	require.Error(t, err)
	require.Equal(t, Jogging, svc.GetState())
}

func TestTelemetryReadsStayFastUnderSlowHardware(t *testing.T) {
	handlers := healthyHandlers()
	handlers[90] = func(req []byte) []byte {
		time.Sleep(50 * time.Millisecond)
		return respond(req, []byte{0x00, 0x00, 0x00, 0x00})
	}

	svc := newTestService(t, handlers)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Start(ctx))

	start := time.Now()
	_ = svc.GetState()
	_ = svc.IsTelemetryStale()
	elapsed := time.Since(start)

	require.Less(t, elapsed, 10*time.Millisecond, "telemetry reads must never block on a hardware round trip")

	require.NoError(t, svc.Shutdown(context.Background()))
}
