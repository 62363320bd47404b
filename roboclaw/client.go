package roboclaw

import (
	"encoding/binary"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Client is a stateless-from-the-caller's-perspective interface for
// low-level communication with a RoboClaw over a framed serial protocol.
// All operations take an internal mutex on the port, tolerating
// accidental concurrent callers even though the Motor Controller Service
// is the port's sole intended owner (belt-and-braces, per spec.md §4.1).
type Client struct {
	mu          sync.Mutex
	port        Port
	address     byte
	autoRecover bool
	logger      *zap.SugaredLogger
}

// Options configures a new Client.
type Options struct {
	Address     byte
	AutoRecover bool
	Logger      *zap.SugaredLogger
}

// NewClient wraps an already-open Port in a Client. Use OpenPort to open a
// real serial line first.
func NewClient(port Port, opts Options) *Client {
	address := opts.Address
	if address == 0 {
		address = DefaultAddress
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{
		port:        port,
		address:     address,
		autoRecover: opts.AutoRecover,
		logger:      logger,
	}
}

// Close releases the underlying port.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.port.Close()
}

// readExact reads exactly n bytes, looping until the read timeout elapses.
// Returns IncompleteReadError on a short read, matching spec.md §4.1's
// framing rule: "short reads raise IncompleteRead".
func (c *Client) readExact(n int) ([]byte, error) {
	buf := make([]byte, 0, n)
	deadline := time.Now().Add(readTimeout)
	tmp := make([]byte, n)

	for len(buf) < n && time.Now().Before(deadline) {
		read, err := c.port.Read(tmp[:n-len(buf)])
		if err != nil {
			return nil, &SerialIoError{Op: "read", Err: err}
		}
		if read > 0 {
			buf = append(buf, tmp[:read]...)
			deadline = time.Now().Add(interCharTimeout + readTimeout)
		}
	}

	if len(buf) < n {
		return nil, &IncompleteReadError{Wanted: n, Got: len(buf)}
	}
	return buf, nil
}

// write sends the full body, retrying partial writes are not modeled since
// RoboClaw frames are short enough to go out in a single syscall the way
// pyserial's write() does for the Python original.
func (c *Client) write(b []byte) error {
	_, err := c.port.Write(b)
	if err != nil {
		return &SerialIoError{Op: "write", Err: err}
	}
	return nil
}

// doRead issues cmd, reads expectedLen payload bytes plus a trailing
// 2-byte CRC computed over the outgoing header and the payload, and
// validates it.
func (c *Client) doRead(cmd byte, expectedLen int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	header := c.header(cmd)
	if err := c.write(header); err != nil {
		c.maybeRecover()
		return nil, err
	}

	resp, err := c.readExact(expectedLen + 2)
	if err != nil {
		c.maybeRecover()
		return nil, err
	}

	payload := resp[:expectedLen]
	receivedCrc := binary.BigEndian.Uint16(resp[expectedLen:])
	computedCrc := crc16(append(append([]byte{}, header...), payload...))
	if receivedCrc != computedCrc {
		return nil, &CrcError{Expected: receivedCrc, Actual: computedCrc}
	}
	return payload, nil
}

// doWrite sends [address, cmd, payload..., CRC] and expects a single
// 0xFF acknowledgement byte.
func (c *Client) doWrite(cmd byte, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := append(c.header(cmd), payload...)
	framed := appendCrc(msg)

	if err := c.write(framed); err != nil {
		c.maybeRecover()
		return err
	}

	ack, err := c.readExact(1)
	if err != nil {
		c.maybeRecover()
		return err
	}
	if ack[0] != 0xFF {
		return &AckError{Got: ack[0]}
	}
	return nil
}

func (c *Client) maybeRecover() {
	if c.autoRecover {
		recoverSerial(c.logger, c.port)
	}
}

// ===== Write commands =====

// SetSpeedWithAcceleration drives motor 1 or 2 at a signed speed (QPPS),
// ramping at the given unsigned acceleration (QPPS/s).
func (c *Client) SetSpeedWithAcceleration(motor int, speed int32, accel uint32) error {
	cmd, err := motorCmd(motor, cmdM1SpeedAccel, cmdM2SpeedAccel)
	if err != nil {
		return err
	}
	payload := append(be32(accel), be32s(speed)...)
	return c.doWrite(cmd, payload)
}

// DriveToPosition moves motor 1 or 2 to an absolute encoder position,
// accelerating to speed, cruising, then decelerating to a stop at pos.
func (c *Client) DriveToPosition(motor int, pos int32, speed int32, accel, decel uint32, buffer byte) error {
	cmd, err := motorCmd(motor, cmdM1SpeedAccelDecelPos, cmdM2SpeedAccelDecelPos)
	if err != nil {
		return err
	}
	if speed > 2000 {
		return &ValueOutOfRangeError{Field: "speed", Value: int64(speed), Max: 2000}
	}
	if accel > 500 {
		return &ValueOutOfRangeError{Field: "accel", Value: int64(accel), Max: 500}
	}
	if decel > 500 {
		return &ValueOutOfRangeError{Field: "decel", Value: int64(decel), Max: 500}
	}

	payload := make([]byte, 0, 17)
	payload = append(payload, be32(accel)...)
	payload = append(payload, be32s(speed)...)
	payload = append(payload, be32(decel)...)
	payload = append(payload, be32s(pos)...)
	payload = append(payload, buffer)
	return c.doWrite(cmd, payload)
}

// ResetEncoders zeroes the indicated encoders (default both, if none given).
func (c *Client) ResetEncoders(motors ...int) error {
	if len(motors) == 0 {
		motors = []int{1, 2}
	}
	for _, motor := range motors {
		cmd, err := motorCmd(motor, cmdSetM1EncCount, cmdSetM2EncCount)
		if err != nil {
			return err
		}
		if err := c.doWrite(cmd, be32(0)); err != nil {
			return err
		}
	}
	return nil
}

// ===== Read commands =====

// ReadEncoderPosition reads motor 1 or 2's encoder count and status flags.
func (c *Client) ReadEncoderPosition(motor int) (EncoderPosition, error) {
	cmd, err := motorCmd(motor, cmdGetM1Enc, cmdGetM2Enc)
	if err != nil {
		return EncoderPosition{}, err
	}
	payload, err := c.doRead(cmd, 5)
	if err != nil {
		return EncoderPosition{}, err
	}
	count := int32(binary.BigEndian.Uint32(payload[:4]))
	return decodeEncoderPosition(count, payload[4]), nil
}

// ReadEncoderSpeed reads motor 1 or 2's instantaneous encoder speed.
func (c *Client) ReadEncoderSpeed(motor int) (EncoderSpeed, error) {
	cmd, err := motorCmd(motor, cmdGetM1Speed, cmdGetM2Speed)
	if err != nil {
		return EncoderSpeed{}, err
	}
	payload, err := c.doRead(cmd, 5)
	if err != nil {
		return EncoderSpeed{}, err
	}
	speed := binary.BigEndian.Uint32(payload[:4])
	return EncoderSpeed{Speed: speed, Direction: directionFromBit(payload[4] != 0)}, nil
}

// ReadStatus reads and decodes the controller's 32-bit error/status mask.
func (c *Client) ReadStatus() (Status, error) {
	payload, err := c.doRead(cmdGetError, 4)
	if err != nil {
		return 0, err
	}
	return decodeStatus([4]byte(payload)), nil
}

// ReadBattVoltage reads the main or logic battery voltage in volts.
func (c *Client) ReadBattVoltage(kind BatteryKind) (float64, error) {
	cmd := cmdGetMBatt
	if kind == Logic {
		cmd = cmdGetLBatt
	}
	payload, err := c.doRead(byte(cmd), 2)
	if err != nil {
		return 0, err
	}
	return float64(binary.BigEndian.Uint16(payload)) / 10.0, nil
}

// ReadCurrents reads both motor currents in amps.
func (c *Client) ReadCurrents() (m1, m2 float64, err error) {
	payload, err := c.doRead(cmdGetCurrents, 4)
	if err != nil {
		return 0, 0, err
	}
	i1 := int16(binary.BigEndian.Uint16(payload[:2]))
	i2 := int16(binary.BigEndian.Uint16(payload[2:]))
	return float64(i1) / 100.0, float64(i2) / 100.0, nil
}

// ReadTempSensor reads temperature sensor 1 or 2 in degrees Celsius.
func (c *Client) ReadTempSensor(n int) (float64, error) {
	cmd := cmdGetTemp
	if n == 2 {
		cmd = cmdGetTemp2
	}
	payload, err := c.doRead(byte(cmd), 2)
	if err != nil {
		return 0, err
	}
	return float64(binary.BigEndian.Uint16(payload)) / 10.0, nil
}

// ReadVersion reads the firmware version string, a variable-length read
// terminated by the byte sequence 0x0A 0x00, followed by a 2-byte CRC.
func (c *Client) ReadVersion() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	header := c.header(cmdGetVersion)
	if err := c.write(header); err != nil {
		c.maybeRecover()
		return "", err
	}

	var resp []byte
	deadline := time.Now().Add(readTimeout)
	buf := make([]byte, 1)
	for time.Now().Before(deadline) {
		n, err := c.port.Read(buf)
		if err != nil {
			c.maybeRecover()
			return "", &SerialIoError{Op: "read_version", Err: err}
		}
		if n == 0 {
			continue
		}
		resp = append(resp, buf[0])
		deadline = time.Now().Add(readTimeout)
		if len(resp) >= 2 && resp[len(resp)-2] == versionTerminator[0] && resp[len(resp)-1] == versionTerminator[1] {
			break
		}
	}

	crcBytes, err := c.readExact(2)
	if err != nil {
		return "", err
	}
	receivedCrc := binary.BigEndian.Uint16(crcBytes)
	computedCrc := crc16(append(append([]byte{}, header...), resp...))
	if receivedCrc != computedCrc {
		return "", &CrcError{Expected: receivedCrc, Actual: computedCrc}
	}

	return trimVersionTrailer(resp), nil
}

func trimVersionTrailer(resp []byte) string {
	s := string(resp)
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == 0x00) {
		s = s[:len(s)-1]
	}
	return s
}

// ReadSPinModes reads the S3/S4/S5 pin mode bytes and decodes them through
// fixed lookup tables.
func (c *Client) ReadSPinModes() (SPinModes, error) {
	payload, err := c.doRead(cmdGetPinFunctions, 5)
	if err != nil {
		return SPinModes{}, err
	}
	return decodeSPinModes(payload[0], payload[1], payload[2]), nil
}

// ReadStandardConfig reads and decodes the 16-bit standard configuration
// mask.
func (c *Client) ReadStandardConfig() (StandardConfig, error) {
	payload, err := c.doRead(cmdGetConfig, 2)
	if err != nil {
		return StandardConfig{}, err
	}
	return decodeStandardConfig(binary.BigEndian.Uint16(payload)), nil
}

func motorCmd(motor int, m1, m2 byte) (byte, error) {
	switch motor {
	case 1:
		return m1, nil
	case 2:
		return m2, nil
	default:
		return 0, &InvalidMotorError{Motor: motor}
	}
}
