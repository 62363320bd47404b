// Package roboclaw implements the framed, CRC-protected serial protocol
// spoken by a RoboClaw motor controller, plus a mutex-guarded client for
// issuing typed commands and reads over it.
package roboclaw

import "encoding/binary"

// DefaultAddress is the RoboClaw's factory packet-serial address.
const DefaultAddress byte = 0x80

// Command bytes, as defined by the RoboClaw packet-serial protocol.
const (
	cmdM1SpeedAccel        = 38
	cmdM2SpeedAccel        = 39
	cmdM1SpeedAccelDecelPos = 65
	cmdM2SpeedAccelDecelPos = 66
	cmdSetM1EncCount       = 22
	cmdSetM2EncCount       = 23
	cmdGetM1Enc            = 16
	cmdGetM2Enc            = 17
	cmdGetM1Speed          = 18
	cmdGetM2Speed          = 19
	cmdGetCurrents         = 49
	cmdGetMBatt            = 24
	cmdGetLBatt            = 25
	cmdGetTemp             = 82
	cmdGetTemp2            = 83
	cmdGetError            = 90
	cmdGetVersion          = 21
	cmdGetPinFunctions     = 74
	cmdGetConfig           = 99
)

// versionTerminator is the two-byte sequence that ends a read_version
// response, ahead of its trailing CRC.
var versionTerminator = [2]byte{0x0A, 0x00}

// crcTable is a CRC-CCITT (XMODEM variant: poly 0x1021, init 0x0000, no
// reflection, no final XOR) lookup table, built the same way the teacher's
// dxl/protocol.go builds its own (different-polynomial) CRC-16 table.
var crcTable [256]uint16

func init() {
	const poly = uint16(0x1021)
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ poly
			} else {
				crc = crc << 1
			}
		}
		crcTable[i] = crc
	}
}

// crc16 computes the XMODEM CRC over data, starting from an initial value
// of 0x0000 as required by the RoboClaw wire protocol.
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc = (crc << 8) ^ crcTable[(byte(crc>>8)^b)]
	}
	return crc
}

// appendCrc appends the big-endian CRC of msg to msg and returns the result.
func appendCrc(msg []byte) []byte {
	crc := crc16(msg)
	return append(msg, byte(crc>>8), byte(crc))
}

// header builds the [address, cmd] prefix every request begins with.
func (c *Client) header(cmd byte) []byte {
	return []byte{c.address, cmd}
}

// be32 / be32s are little helpers kept local to this package so command
// encoders read as a flat sequence of field writes, the same shape as the
// teacher's driver.go Write/Read helpers built on encoding/binary.
func be32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func be32s(v int32) []byte {
	return be32(uint32(v))
}
