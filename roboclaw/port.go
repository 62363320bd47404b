package roboclaw

import (
	"time"

	goserial "github.com/daedaluz/goserial"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// readTimeout and interCharTimeout match spec.md's §4.1 framing: 0.1s read
// timeout, 0.01s inter-character timeout.
const (
	readTimeout       = 100 * time.Millisecond
	interCharTimeout  = 10 * time.Millisecond
	recoverBackoff    = 200 * time.Millisecond
)

// Port is the byte-level transport a Client drives. Implementations must
// handle platform-specific serial I/O; this interface exists for
// dependency injection, the same role SerialPortInterface plays in the
// teacher's driver.go.
type Port interface {
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)
	Close() error
}

// realPort opens an actual RS-232 line through github.com/daedaluz/goserial,
// configured for the RoboClaw's fixed 115200-8N1 framing.
type realPort struct {
	name string
	p    *goserial.Port
}

// OpenPort opens the named serial device at 115200 baud, 8N1, with the
// RoboClaw's fixed read timeouts.
func OpenPort(name string) (Port, error) {
	opts := goserial.NewOptions().SetReadTimeout(readTimeout)
	p, err := goserial.Open(name, opts)
	if err != nil {
		return nil, &SerialOpenError{Port: name, Err: err}
	}

	if err := configureRoboClawLine(p); err != nil {
		_ = p.Close()
		return nil, &SerialOpenError{Port: name, Err: err}
	}

	return &realPort{name: name, p: p}, nil
}

// configureRoboClawLine puts the line into raw 115200-8N1 mode, the way
// pyserial's Serial(baudrate=115200, ...) does implicitly for the Python
// original.
func configureRoboClawLine(p *goserial.Port) error {
	if err := p.MakeRaw(); err != nil {
		return errors.Wrap(err, "make raw")
	}

	attrs, err := p.GetAttr()
	if err != nil {
		return errors.Wrap(err, "get termios attrs")
	}

	attrs.SetSpeed(goserial.B115200)
	attrs.Cflag &^= goserial.CSIZE
	attrs.Cflag |= goserial.CS8
	attrs.Cflag &^= goserial.PARENB
	attrs.Cflag &^= goserial.CSTOPB
	attrs.Cflag |= goserial.CREAD | goserial.CLOCAL

	if err := p.SetAttr(goserial.TCSANOW, attrs); err != nil {
		return errors.Wrap(err, "set termios attrs")
	}

	p.SetReadTimeout(readTimeout)
	return nil
}

func (r *realPort) Read(b []byte) (int, error)  { return r.p.Read(b) }
func (r *realPort) Write(b []byte) (int, error) { return r.p.Write(b) }
func (r *realPort) Close() error                { return r.p.Close() }

// reopen closes and reopens the underlying line, used by recoverSerial.
func (r *realPort) reopen() error {
	_ = r.p.Close()
	opts := goserial.NewOptions().SetReadTimeout(readTimeout)
	p, err := goserial.Open(r.name, opts)
	if err != nil {
		return err
	}
	if err := configureRoboClawLine(p); err != nil {
		_ = p.Close()
		return err
	}
	r.p = p
	return nil
}

// recoverSerial closes and reopens the port with a fixed backoff until it
// succeeds, mirroring RoboClaw.recover_serial. Only realPort supports
// recovery; injected fakes used in tests never need it.
func recoverSerial(logger *zap.SugaredLogger, port Port) {
	rp, ok := port.(*realPort)
	if !ok {
		return
	}
	for {
		if err := rp.reopen(); err == nil {
			return
		} else if logger != nil {
			logger.Warnw("failed to recover serial port, retrying", "port", rp.name, "error", err)
		}
		time.Sleep(recoverBackoff)
	}
}
