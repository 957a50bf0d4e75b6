package tcpconn

import (
	"github.com/kavlak/tcpd/internal/handle"
	"github.com/kavlak/tcpd/internal/scheme"
	"github.com/kavlak/tcpd/internal/segment"
)

// Notification is a push event written to the scheme channel outside the
// request/response cycle — the fevent EVENT_READ notification (spec §4.5).
type Notification struct {
	Handle int
	Len    int
}

// OnSegment processes one inbound datagram: it demultiplexes to every
// matching non-Listen Connection (spec §4.4), applies the RFC 793
// transition table (§4.3), runs the deferred-request drain on every
// touched handle (§4.5), and — if nothing matched and the segment is a
// bare SYN — tries to match it against Listen handles and satisfy pending
// accepts (§4.3 "Reception"). It returns every scheme.Response generated
// for a deferred request, plus any fevent notifications to emit.
func (e *Engine) OnSegment(seg segment.Segment) ([]scheme.Response, []Notification) {
	var responses []scheme.Response
	var notifications []Notification
	var closing []int
	foundConnection := false

	for id, conn := range e.Table.All() {
		if conn.State == handle.StateListen || !conn.Matches(seg) {
			continue
		}
		foundConnection = true

		if e.applyTransition(conn, seg) {
			closing = append(closing, id)
		}

		resps, notifs := e.drain(id, conn)
		responses = append(responses, resps...)
		notifications = append(notifications, notifs...)
	}

	for _, id := range closing {
		e.reap(id)
	}

	if !foundConnection && seg.Flags.Masked() == segment.FlagSYN {
		resps, notifs := e.acceptFromListeners(seg)
		responses = append(responses, resps...)
		notifications = append(notifications, notifs...)
	}

	return responses, notifications
}

// applyTransition drives one Connection through the transition table
// (spec §4.3). It returns true if the handle should be reaped once the
// full demux pass over this segment completes.
func (e *Engine) applyTransition(conn *handle.Connection, seg segment.Segment) bool {
	masked := seg.Flags.Masked()
	// ackOnly reports whether masked carries ACK (and not SYN) regardless
	// of FIN, since FIN rides alongside ACK on a peer's closing segment and
	// must not make an otherwise-valid ACK fail the state guard below —
	// every state here branches on FIN separately once the guard passes.
	ackOnly := masked&(segment.FlagSYN|segment.FlagACK) == segment.FlagACK

	switch conn.State {
	case handle.StateSynReceived:
		if ackOnly && seg.Ack == conn.Seq {
			conn.State = handle.StateEstablished
		}

	case handle.StateSynSent:
		if masked&(segment.FlagSYN|segment.FlagACK) == (segment.FlagSYN|segment.FlagACK) && seg.Ack == conn.Seq {
			conn.Ack = seg.Seq + 1
			conn.State = handle.StateEstablished
			e.send(conn, segment.FlagACK, nil)
		}

	case handle.StateEstablished:
		if !ackOnly || seg.Ack != conn.Seq {
			break
		}
		switch {
		case len(seg.Payload) > 0:
			conn.Data = append(conn.Data, seg)
			conn.Ack += uint32(len(seg.Payload))
			e.send(conn, segment.FlagACK, nil)
		case seg.Flags.Has(segment.FlagFIN):
			conn.Ack++
			conn.State = handle.StateCloseWait
			e.send(conn, segment.FlagACK, nil)
		default:
			// Established receive with no payload and no FIN: advance
			// ack to the segment's own sequence number (no data
			// consumed) and drop (spec §9).
			conn.Ack = seg.Seq
		}

	case handle.StateFinWait1:
		if !ackOnly || seg.Ack != conn.Seq {
			break
		}
		if seg.Flags.Has(segment.FlagFIN) {
			conn.Ack = seg.Seq + 1
			e.send(conn, segment.FlagACK, nil)
			conn.State = handle.StateTimeWait
			return true
		}
		conn.Ack = seg.Seq + 1
		conn.State = handle.StateFinWait2

	case handle.StateFinWait2:
		if masked == (segment.FlagACK|segment.FlagFIN) && seg.Ack == conn.Seq {
			conn.Ack = seg.Seq + 1
			e.send(conn, segment.FlagACK, nil)
			conn.State = handle.StateTimeWait
			return true
		}

	case handle.StateLastAck:
		if ackOnly && seg.Ack == conn.Seq {
			conn.State = handle.StateClosed
			return true
		}
	}

	return false
}

// reap removes a handle that has reached TimeWait/Closed and releases its
// port (spec §4.3: "Handle removal ... is deferred until the demux pass
// completes, then performed"; §8: absent from the table by the end of the
// current event handler).
func (e *Engine) reap(id int) {
	conn, ok := e.Table.Connection(id)
	if !ok {
		return
	}
	e.Table.Remove(id)
	e.Table.UnbindPort(conn.Local.Port)
}

// acceptFromListeners matches a bare SYN with no existing connection
// against every Listen handle and, for each match, queues it and drains
// any pending accepts (spec §4.3).
func (e *Engine) acceptFromListeners(seg segment.Segment) ([]scheme.Response, []Notification) {
	var responses []scheme.Response
	var notifications []Notification

	for listenerID, listener := range e.Table.All() {
		if listener.State != handle.StateListen || !listener.Matches(seg) {
			continue
		}

		listener.Data = append(listener.Data, seg)

		for listener.HasDup() && len(listener.Data) > 0 {
			req, _ := listener.PopDup()
			popped := listener.Data[0]
			listener.Data = listener.Data[1:]

			child := &handle.Connection{
				Local:        listener.Local,
				Remote:       popped.Src,
				Flags:        listener.Flags,
				ReadTimeout:  listener.ReadTimeout,
				WriteTimeout: listener.WriteTimeout,
				TTL:          listener.TTL,
				State:        handle.StateSynReceived,
				Seq:          e.RNG.Uint32(),
				Ack:          popped.Seq + 1,
			}

			var sendErr error
			if sendErr = e.send(child, segment.FlagSYN|segment.FlagACK, nil); sendErr == nil {
				child.Seq++
			}

			listener.PurgeMatching(child.Matches)

			childID := e.Table.Alloc(child)
			e.Table.BindPort(child.Local.Port)

			if sendErr != nil {
				responses = append(responses, req.Respond(0, errIO(sendErr)))
				continue
			}
			responses = append(responses, req.Respond(childID, nil))
		}

		if listener.Events&scheme.EventRead == scheme.EventRead && len(listener.Data) > 0 {
			notifications = append(notifications, Notification{Handle: listenerID, Len: len(listener.Data[0].Payload)})
		}
	}

	return responses, notifications
}
