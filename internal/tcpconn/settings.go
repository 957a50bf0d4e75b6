package tcpconn

import (
	"encoding/binary"
	"syscall"
	"time"

	"github.com/kavlak/tcpd/internal/handle"
	"github.com/kavlak/tcpd/internal/scheme"
)

// durationWireSize is the width of the wire encoding a timeout setting is
// read and written as: two big-endian int64 fields, seconds and
// nanoseconds, mirroring a POSIX timespec (spec §4.7).
const durationWireSize = 16

// readSetting implements read() on a Setting handle (spec §4.7). Once the
// parent Connection is closed the setting handle fails with EBADF.
func (e *Engine) readSetting(req scheme.Request, s handle.Setting) *scheme.Response {
	conn, ok := e.Table.Connection(s.Parent)
	if !ok {
		return respond(req, 0, syscall.EBADF)
	}

	switch s.Which {
	case handle.SettingTTL:
		if len(req.Buf) == 0 {
			return respond(req, 0, nil)
		}
		req.Buf[0] = conn.TTL
		return respond(req, 1, nil)

	case handle.SettingReadTimeout:
		return respond(req, writeDuration(conn.ReadTimeout, req.Buf), nil)

	case handle.SettingWriteTimeout:
		return respond(req, writeDuration(conn.WriteTimeout, req.Buf), nil)

	default:
		return respond(req, 0, syscall.EINVAL)
	}
}

// writeSetting implements write() on a Setting handle (spec §4.7).
func (e *Engine) writeSetting(req scheme.Request, s handle.Setting) *scheme.Response {
	conn, ok := e.Table.Connection(s.Parent)
	if !ok {
		return respond(req, 0, syscall.EBADF)
	}

	switch s.Which {
	case handle.SettingTTL:
		if len(req.Buf) == 0 {
			return respond(req, 0, nil)
		}
		conn.TTL = req.Buf[0]
		return respond(req, 1, nil)

	case handle.SettingReadTimeout:
		n := setDuration(&conn.ReadTimeout, req.Buf)
		return respond(req, n, nil)

	case handle.SettingWriteTimeout:
		n := setDuration(&conn.WriteTimeout, req.Buf)
		return respond(req, n, nil)

	default:
		return respond(req, 0, syscall.EINVAL)
	}
}

// writeDuration copies the wire encoding of d into buf, or writes nothing
// if d is unset (spec §4.7: "0 bytes if unset").
func writeDuration(d *time.Duration, buf []byte) int {
	if d == nil {
		return 0
	}
	var wire [durationWireSize]byte
	secs := int64(*d / time.Second)
	nsecs := int64(*d % time.Second)
	binary.BigEndian.PutUint64(wire[0:8], uint64(secs))
	binary.BigEndian.PutUint64(wire[8:16], uint64(nsecs))
	return copy(buf, wire[:])
}

// setDuration parses a timeout from buf into *field when the buffer is at
// least durationWireSize bytes, otherwise clears the timeout (spec §4.7:
// "Timeout write").
func setDuration(field **time.Duration, buf []byte) int {
	if len(buf) < durationWireSize {
		*field = nil
		return 0
	}
	secs := int64(binary.BigEndian.Uint64(buf[0:8]))
	nsecs := int64(binary.BigEndian.Uint64(buf[8:16]))
	d := time.Duration(secs)*time.Second + time.Duration(nsecs)
	*field = &d
	return durationWireSize
}
