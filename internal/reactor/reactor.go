// Package reactor runs the daemon's single-threaded event loop (spec
// §4.8): three pump goroutines wrap the scheme transport, the raw IP
// channel, and the monotonic timer, forwarding requests, raw datagrams and
// timer firings onto one channel the reactor goroutine selects on; the
// reactor goroutine decodes datagrams itself. Every handle-table mutation
// happens on that one goroutine, which is how this daemon satisfies the
// "single-threaded" invariant (spec §5) while still using native Go
// concurrency for its I/O.
package reactor

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/kavlak/tcpd/internal/scheme"
	"github.com/kavlak/tcpd/internal/segment"
	"github.com/kavlak/tcpd/internal/tcpconn"
)

// Reactor owns the engine and the scheme transport it answers requests
// over.
type Reactor struct {
	Engine *tcpconn.Engine
	Scheme scheme.Channel
	Log    *logrus.Entry
}

// New returns a Reactor ready to Run.
func New(engine *tcpconn.Engine, ch scheme.Channel, log *logrus.Entry) *Reactor {
	return &Reactor{Engine: engine, Scheme: ch, Log: log}
}

// Run drives the event loop until ctx is canceled. It never returns a
// non-nil error except ctx's own.
func (r *Reactor) Run(ctx context.Context) error {
	// The buffer holds the three startup kicks below, which are queued
	// before any pump starts so that sending them cannot block this
	// goroutine ahead of its own receive loop.
	events := make(chan event, 3)

	// Startup kicks (spec §4.8): one synthetic event per source, handled
	// on the first loop iterations as no-ops; the pumps themselves start
	// reading their collaborators immediately, so anything already queued
	// at process start is drained without waiting for a later wakeup.
	events <- schemeEvent{synthetic: true}
	events <- ipEvent{synthetic: true}
	events <- timerEvent{synthetic: true}

	go r.pumpScheme(ctx, events)
	go r.pumpIP(ctx, events)
	go r.pumpTimer(ctx, events)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			r.handle(ev)
		}
	}
}

func (r *Reactor) pumpScheme(ctx context.Context, out chan<- event) {
	for {
		req, err := r.Scheme.ReadRequest()
		select {
		case out <- schemeEvent{req: req, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

func (r *Reactor) pumpIP(ctx context.Context, out chan<- event) {
	buf := make([]byte, 65536)
	for {
		n, err := r.Engine.IP.ReadDatagram(buf)
		if err != nil {
			select {
			case out <- ipEvent{err: err}:
			case <-ctx.Done():
			}
			return
		}
		if n == 0 {
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case out <- ipEvent{data: data}:
		case <-ctx.Done():
			return
		}
	}
}

func (r *Reactor) pumpTimer(ctx context.Context, out chan<- event) {
	for {
		select {
		case t := <-r.Engine.Clock.Chan():
			select {
			case out <- timerEvent{at: t}:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (r *Reactor) handle(ev event) {
	switch v := ev.(type) {
	case schemeEvent:
		if v.synthetic {
			return
		}
		if v.err != nil {
			r.Log.WithError(v.err).Error("scheme transport read failed")
			return
		}
		r.dispatch(v.req)

	case ipEvent:
		if v.synthetic {
			return
		}
		if v.err != nil {
			r.Log.WithError(v.err).Error("IP channel read failed")
			return
		}
		seg, err := segment.Parse(v.data)
		if err != nil {
			r.Log.WithError(err).Debug("dropping malformed segment")
			return
		}
		responses, notifications := r.Engine.OnSegment(seg)
		r.flush(responses, notifications)

	case timerEvent:
		if v.synthetic {
			return
		}
		responses := r.Engine.OnTimer(v.at)
		r.flush(responses, nil)
	}
}

// dispatch answers one scheme.Request synchronously, except dup/read/write
// requests the engine defers — those answer later out of a drain.
func (r *Reactor) dispatch(req scheme.Request) {
	switch req.Op {
	case scheme.OpOpen:
		id, err := r.Engine.Open(req.Path, req.Flags, req.UID)
		r.writeResponse(req.Respond(id, err))

	case scheme.OpDup:
		if resp := r.Engine.Dup(req); resp != nil {
			r.writeResponse(*resp)
		}

	case scheme.OpRead:
		if resp := r.Engine.Read(req); resp != nil {
			r.writeResponse(*resp)
		}

	case scheme.OpWrite:
		if resp := r.Engine.Write(req); resp != nil {
			r.writeResponse(*resp)
		}

	case scheme.OpFcntl:
		n, err := r.Engine.Fcntl(req.Handle, req.Cmd, req.Arg)
		r.writeResponse(req.Respond(n, err))

	case scheme.OpFevent:
		n, err := r.Engine.Fevent(req.Handle, int(req.Arg))
		r.writeResponse(req.Respond(n, err))

	case scheme.OpFpath:
		n, err := r.Engine.Fpath(req.Handle, req.Buf)
		r.writeResponse(req.Respond(n, err))

	case scheme.OpFsync:
		n, err := r.Engine.Fsync(req.Handle)
		r.writeResponse(req.Respond(n, err))

	case scheme.OpClose:
		n, err := r.Engine.Close(req.Handle)
		r.writeResponse(req.Respond(n, err))

	default:
		r.writeResponse(req.Respond(0, nil))
	}
}

func (r *Reactor) flush(responses []scheme.Response, notifications []tcpconn.Notification) {
	for _, resp := range responses {
		r.writeResponse(resp)
	}
	for _, n := range notifications {
		if err := r.Scheme.WriteNotification(n.Handle, n.Len); err != nil {
			r.Log.WithError(err).Warn("failed to write event notification")
		}
	}
}

func (r *Reactor) writeResponse(resp scheme.Response) {
	if err := r.Scheme.WriteResponse(resp); err != nil {
		r.Log.WithError(err).Warn("failed to write scheme response")
	}
}
