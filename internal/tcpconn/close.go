package tcpconn

import (
	"syscall"

	"github.com/kavlak/tcpd/internal/handle"
	"github.com/kavlak/tcpd/internal/segment"
)

// Close implements the close() scheme operation — "active close" (spec
// §4.3). Deferred requests still queued on a force-closed handle are
// dropped without a response, per the documented behavior in spec §9.
func (e *Engine) Close(file int) (int, error) {
	h, ok := e.Table.Get(file)
	if !ok {
		return 0, syscall.EBADF
	}

	conn, ok := h.(*handle.Connection)
	if !ok {
		e.Table.Remove(file)
		return 0, nil
	}

	conn.Data = nil

	switch conn.State {
	case handle.StateSynReceived, handle.StateEstablished:
		conn.DropPending()
		if err := e.send(conn, segment.FlagFIN|segment.FlagACK, nil); err != nil {
			return 0, syscall.EIO
		}
		conn.Seq++
		conn.State = handle.StateFinWait1
		return 0, nil

	case handle.StateCloseWait:
		conn.DropPending()
		if err := e.send(conn, segment.FlagFIN|segment.FlagACK, nil); err != nil {
			return 0, syscall.EIO
		}
		conn.Seq++
		conn.State = handle.StateLastAck
		return 0, nil

	default:
		conn.DropPending()
		e.Table.Remove(file)
		e.Table.UnbindPort(conn.Local.Port)
		return 0, nil
	}
}
