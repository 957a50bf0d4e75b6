package tcpconn

import (
	"syscall"
	"time"

	"github.com/kavlak/tcpd/internal/handle"
	"github.com/kavlak/tcpd/internal/scheme"
	"github.com/kavlak/tcpd/internal/segment"
)

// Read implements the read() scheme operation (spec §4.6, §4.7). It
// returns nil when the request has been enqueued as a deferred read
// instead of answered synchronously.
func (e *Engine) Read(req scheme.Request) *scheme.Response {
	h, ok := e.Table.Get(req.Handle)
	if !ok {
		return respond(req, 0, syscall.EBADF)
	}

	switch v := h.(type) {
	case handle.Empty:
		return respond(req, 0, syscall.EBADF)
	case *handle.Connection:
		return e.readConnection(req, v)
	case handle.Setting:
		return e.readSetting(req, v)
	default:
		return respond(req, 0, syscall.EBADF)
	}
}

func (e *Engine) readConnection(req scheme.Request, conn *handle.Connection) *scheme.Response {
	if !conn.IsConnected() {
		return respond(req, 0, syscall.ENOTCONN)
	}

	if len(conn.Data) > 0 {
		head := &conn.Data[0]
		n := len(req.Buf)
		if len(head.Payload) < n {
			n = len(head.Payload)
		}
		copy(req.Buf, head.Payload[:n])
		head.Payload = head.Payload[n:]
		if len(head.Payload) == 0 {
			conn.Data = conn.Data[1:]
		}
		return respond(req, n, nil)
	}

	if conn.Flags&scheme.ONonblock != 0 || conn.State.ReadClosed() {
		return respond(req, 0, nil)
	}

	deadline, has := e.armDeadline(conn.ReadTimeout)
	conn.PushRead(req, deadline, has)
	return nil
}

// Write implements the write() scheme operation (spec §4.6).
func (e *Engine) Write(req scheme.Request) *scheme.Response {
	h, ok := e.Table.Get(req.Handle)
	if !ok {
		return respond(req, 0, syscall.EBADF)
	}

	switch v := h.(type) {
	case handle.Empty:
		return respond(req, 0, syscall.EBADF)
	case *handle.Connection:
		return e.writeConnection(req, v)
	case handle.Setting:
		return e.writeSetting(req, v)
	default:
		return respond(req, 0, syscall.EBADF)
	}
}

func (e *Engine) writeConnection(req scheme.Request, conn *handle.Connection) *scheme.Response {
	if !conn.IsConnected() {
		return respond(req, 0, syscall.ENOTCONN)
	}
	if len(req.Buf) >= maxWriteSize {
		return respond(req, 0, syscall.EMSGSIZE)
	}

	if conn.State == handle.StateEstablished {
		if err := e.send(conn, segment.FlagPSH|segment.FlagACK, req.Buf); err != nil {
			return respond(req, 0, syscall.EIO)
		}
		conn.Seq += uint32(len(req.Buf))
		return respond(req, len(req.Buf), nil)
	}

	if conn.Flags&scheme.ONonblock != 0 {
		return respond(req, 0, syscall.EWOULDBLOCK)
	}

	deadline, has := e.armDeadline(conn.WriteTimeout)
	conn.PushWrite(req, deadline, has)
	return nil
}

// Fcntl implements fcntl() (spec §6; recovered behavior from
// original_source: valid only on Empty and Connection handles, see
// SPEC_FULL.md §6).
func (e *Engine) Fcntl(file int, cmd int, arg uintptr) (int, error) {
	h, ok := e.Table.Get(file)
	if !ok {
		return 0, syscall.EBADF
	}

	switch v := h.(type) {
	case handle.Empty:
		switch cmd {
		case scheme.FGetFL:
			return v.Flags, nil
		case scheme.FSetFL:
			v.Flags = int(arg) &^ scheme.OAccmode
			e.Table.Insert(file, v)
			return 0, nil
		default:
			return 0, syscall.EINVAL
		}
	case *handle.Connection:
		switch cmd {
		case scheme.FGetFL:
			return v.Flags, nil
		case scheme.FSetFL:
			v.Flags = int(arg) &^ scheme.OAccmode
			return 0, nil
		default:
			return 0, syscall.EINVAL
		}
	default:
		return 0, syscall.EBADF
	}
}

// Fevent implements fevent() (spec §4.5, §6).
func (e *Engine) Fevent(file int, mask int) (int, error) {
	h, ok := e.Table.Get(file)
	if !ok {
		return 0, syscall.EBADF
	}
	conn, ok := h.(*handle.Connection)
	if !ok {
		return 0, syscall.EBADF
	}
	conn.Events = mask
	return file, nil
}

// Fpath implements fpath() (spec §6).
func (e *Engine) Fpath(file int, buf []byte) (int, error) {
	h, ok := e.Table.Get(file)
	if !ok {
		return 0, syscall.EBADF
	}
	conn, ok := h.(*handle.Connection)
	if !ok {
		return 0, syscall.EBADF
	}
	path := "tcp:" + conn.Remote.String() + "/" + conn.Local.String()
	return copy(buf, path), nil
}

// Fsync implements fsync() — a no-op success as long as the handle exists
// (spec §6).
func (e *Engine) Fsync(file int) (int, error) {
	if _, ok := e.Table.Get(file); !ok {
		return 0, syscall.EBADF
	}
	return 0, nil
}

func (e *Engine) armDeadline(timeout *time.Duration) (time.Time, bool) {
	if timeout == nil {
		return time.Time{}, false
	}
	deadline := e.Clock.Now().Add(*timeout)
	e.Clock.Arm(deadline)
	return deadline, true
}

func respond(req scheme.Request, n int, err error) *scheme.Response {
	resp := req.Respond(n, err)
	return &resp
}
