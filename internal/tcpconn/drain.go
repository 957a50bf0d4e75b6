package tcpconn

import (
	"github.com/kavlak/tcpd/internal/handle"
	"github.com/kavlak/tcpd/internal/scheme"
	"github.com/kavlak/tcpd/internal/segment"
)

// drain runs the deferred-request drain for one handle after an event
// that may have unblocked it (spec §4.5): complete every read it can,
// complete at most one write, then emit a read-event notification if
// appropriate. Accepts are drained separately, in acceptFromListeners,
// since they're only ever unblocked by a Listen handle's backlog.
func (e *Engine) drain(id int, conn *handle.Connection) ([]scheme.Response, []Notification) {
	var responses []scheme.Response

	for conn.HasRead() && (len(conn.Data) > 0 || conn.State.ReadClosed()) {
		req, _ := conn.PopRead()
		if len(conn.Data) == 0 {
			responses = append(responses, req.Respond(0, nil))
			continue
		}
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
		responses = append(responses, req.Respond(n, nil))
	}

	if conn.HasWrite() && conn.State == handle.StateEstablished {
		req, _ := conn.PopWrite()
		if err := e.send(conn, segment.FlagPSH|segment.FlagACK, req.Buf); err != nil {
			responses = append(responses, req.Respond(0, errIO(err)))
		} else {
			conn.Seq += uint32(len(req.Buf))
			responses = append(responses, req.Respond(len(req.Buf), nil))
		}
	}

	var notifications []Notification
	if conn.Events&scheme.EventRead == scheme.EventRead && len(conn.Data) > 0 {
		notifications = append(notifications, Notification{Handle: id, Len: len(conn.Data[0].Payload)})
	}

	return responses, notifications
}
