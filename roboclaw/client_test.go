package roboclaw

import (
	"encoding/binary"
	"errors"
	"testing"
)

// fakePort is an in-memory stand-in for a real serial line. A write is
// routed through handler, whose return value becomes the bytes a
// subsequent Read drains, mirroring how driver.go's tests drive
// SerialPortInterface fakes.
type fakePort struct {
	handler  func(request []byte) []byte
	outBuf   []byte
	readErr  error
	lastSent []byte
	closed   bool
}

func (f *fakePort) Write(b []byte) (int, error) {
	f.lastSent = append([]byte{}, b...)
	if f.handler != nil {
		f.outBuf = append(f.outBuf, f.handler(b)...)
	}
	return len(b), nil
}

func (f *fakePort) Read(b []byte) (int, error) {
	if f.readErr != nil {
		return 0, f.readErr
	}
	if len(f.outBuf) == 0 {
		return 0, nil
	}
	n := copy(b, f.outBuf)
	f.outBuf = f.outBuf[n:]
	return n, nil
}

func (f *fakePort) Close() error {
	f.closed = true
	return nil
}

// respond builds a framed response for a read command: the payload
// followed by the CRC of header+payload, exactly as a RoboClaw would.
func respond(header, payload []byte) []byte {
	framed := appendCrc(append(append([]byte{}, header...), payload...))
	return framed[len(header):]
}

func newTestClient(handler func([]byte) []byte) (*Client, *fakePort) {
	fp := &fakePort{handler: handler}
	c := NewClient(fp, Options{})
	return c, fp
}

func TestReadStatusDecodesBitmask(t *testing.T) {
	c, _ := newTestClient(func(req []byte) []byte {
		payload := []byte{0x00, 0x00, 0x00, 0x01}
		return respond(req, payload)
	})

	status, err := c.ReadStatus()
	if err != nil {
		t.Fatalf("ReadStatus() error: %v", err)
	}
	if status != StatusEStop {
		t.Fatalf("status = %v, want StatusEStop", status)
	}
}

func TestReadStatusCrcMismatch(t *testing.T) {
	c, _ := newTestClient(func(req []byte) []byte {
		resp := respond(req, []byte{0, 0, 0, 0})
		resp[len(resp)-1] ^= 0xFF // corrupt the CRC
		return resp
	})

	_, err := c.ReadStatus()
	var crcErr *CrcError
	if !errors.As(err, &crcErr) {
		t.Fatalf("expected *CrcError, got %v (%T)", err, err)
	}
}

func TestSetSpeedWithAccelerationFramesCorrectly(t *testing.T) {
	var gotHeader, gotPayload []byte
	c, _ := newTestClient(func(req []byte) []byte {
		gotHeader = req[:2]
		gotPayload = req[2 : len(req)-2]
		return []byte{0xFF}
	})

	if err := c.SetSpeedWithAcceleration(1, -500, 200); err != nil {
		t.Fatalf("SetSpeedWithAcceleration() error: %v", err)
	}
	if gotHeader[0] != DefaultAddress || gotHeader[1] != cmdM1SpeedAccel {
		t.Fatalf("header = %v", gotHeader)
	}
	accel := binary.BigEndian.Uint32(gotPayload[:4])
	speed := int32(binary.BigEndian.Uint32(gotPayload[4:]))
	if accel != 200 || speed != -500 {
		t.Fatalf("accel=%d speed=%d, want 200/-500", accel, speed)
	}
}

func TestSetSpeedWithAccelerationAckFailure(t *testing.T) {
	c, _ := newTestClient(func(req []byte) []byte {
		return []byte{0x00}
	})

	err := c.SetSpeedWithAcceleration(2, 100, 50)
	var ackErr *AckError
	if !errors.As(err, &ackErr) {
		t.Fatalf("expected *AckError, got %v (%T)", err, err)
	}
}

func TestDriveToPositionRejectsOutOfRangeValues(t *testing.T) {
	c, fp := newTestClient(func(req []byte) []byte { return []byte{0xFF} })

	err := c.DriveToPosition(1, 1000, 3000, 100, 100, 0)
	var rangeErr *ValueOutOfRangeError
	if !errors.As(err, &rangeErr) {
		t.Fatalf("expected *ValueOutOfRangeError, got %v (%T)", err, err)
	}
	if fp.lastSent != nil {
		t.Fatal("out-of-range command should never reach the port")
	}
}

func TestInvalidMotorNumber(t *testing.T) {
	c, _ := newTestClient(func(req []byte) []byte { return []byte{0xFF} })

	_, err := c.ReadEncoderPosition(3)
	var motorErr *InvalidMotorError
	if !errors.As(err, &motorErr) {
		t.Fatalf("expected *InvalidMotorError, got %v (%T)", err, err)
	}
}

func TestReadVersionStopsAtTerminator(t *testing.T) {
	c, _ := newTestClient(func(req []byte) []byte {
		body := append([]byte("USB RoboClaw 2x15a v4.1.34"), versionTerminator[0], versionTerminator[1])
		return respond(req, body)
	})

	version, err := c.ReadVersion()
	if err != nil {
		t.Fatalf("ReadVersion() error: %v", err)
	}
	if version != "USB RoboClaw 2x15a v4.1.34" {
		t.Fatalf("version = %q", version)
	}
}

func TestReadBattVoltageScalesTenths(t *testing.T) {
	c, _ := newTestClient(func(req []byte) []byte {
		return respond(req, []byte{0x00, 0x7D}) // 125 -> 12.5V
	})

	v, err := c.ReadBattVoltage(Main)
	if err != nil {
		t.Fatalf("ReadBattVoltage() error: %v", err)
	}
	if v != 12.5 {
		t.Fatalf("voltage = %v, want 12.5", v)
	}
}

func TestResetEncodersDefaultsToBothMotors(t *testing.T) {
	var cmds []byte
	c, _ := newTestClient(func(req []byte) []byte {
		cmds = append(cmds, req[1])
		return []byte{0xFF}
	})

	if err := c.ResetEncoders(); err != nil {
		t.Fatalf("ResetEncoders() error: %v", err)
	}
	if len(cmds) != 2 || cmds[0] != cmdSetM1EncCount || cmds[1] != cmdSetM2EncCount {
		t.Fatalf("cmds = %v, want [%d %d]", cmds, cmdSetM1EncCount, cmdSetM2EncCount)
	}
}

func TestIncompleteReadTimesOut(t *testing.T) {
	c, _ := newTestClient(func(req []byte) []byte {
		return []byte{0x00} // short: ReadStatus wants 4 payload + 2 CRC bytes
	})

	_, err := c.ReadStatus()
	var incomplete *IncompleteReadError
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected *IncompleteReadError, got %v (%T)", err, err)
	}
}
