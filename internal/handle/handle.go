// Package handle owns the handle table: the three handle variants a
// scheme resource can be (spec §3), the id allocator, the per-port
// reference count, and the deferred-request queues hung off Connection
// handles. Every mutation here is expected to happen on the reactor
// goroutine (spec §5 invariant 5) — this package holds no locks of its
// own.
package handle

import (
	"time"

	"github.com/kavlak/tcpd/internal/scheme"
	"github.com/kavlak/tcpd/internal/segment"
)

// Kind discriminates the Handle variants without a type switch at every
// call site.
type Kind int

const (
	KindEmpty Kind = iota
	KindConnection
	KindSetting
)

// Handle is implemented by Empty, *Connection, and Setting.
type Handle interface {
	Kind() Kind
}

// Empty is a freshly opened handle not yet bound to a connection (spec §3).
type Empty struct {
	Privileged bool
	Flags      int
}

func (Empty) Kind() Kind { return KindEmpty }

// SettingKind names which of a Connection's tunables a Setting handle
// refers to (spec §4.7).
type SettingKind int

const (
	SettingTTL SettingKind = iota
	SettingReadTimeout
	SettingWriteTimeout
)

// Setting is an alias referring to a parent Connection handle by id (not
// by pointer, to avoid a reference cycle — spec §9) and one tunable.
type Setting struct {
	Parent int
	Which  SettingKind
}

func (Setting) Kind() Kind { return KindSetting }

// deferredIO is one queued read or write request, with the absolute
// monotonic deadline it was armed with, if any (spec §4.6).
type deferredIO struct {
	Deadline    time.Time
	HasDeadline bool
	Req         scheme.Request
}

// Connection is a TCP endpoint (spec §3).
type Connection struct {
	Local, Remote segment.Endpoint
	Flags         int
	Events        int
	ReadTimeout   *time.Duration
	WriteTimeout  *time.Duration
	TTL           uint8
	State         State
	Seq, Ack      uint32

	// Data holds segments that have arrived and are awaiting an
	// application read, in FIFO order (spec §3: "receive queue").
	Data []segment.Segment

	todoDup   []scheme.Request
	todoRead  []deferredIO
	todoWrite []deferredIO
}

func (*Connection) Kind() Kind { return KindConnection }

// IsConnected reports whether the handle has a non-wildcard remote
// endpoint (spec uses this to distinguish a Listen handle, which never
// connects, from one that has).
func (c *Connection) IsConnected() bool {
	return !c.Remote.IsWildcardIP() && c.Remote.Port != 0
}

// Matches implements the 4-condition demux test (spec §4.4).
func (c *Connection) Matches(seg segment.Segment) bool {
	localOK := c.Local.IsWildcardIP() || c.Local.IP.Equal(seg.Dst.IP) || seg.Dst.IsBroadcastIP()
	portOK := c.Local.Port == seg.Dst.Port
	remoteIPOK := c.Remote.IsWildcardIP() || c.Remote.IsBroadcastIP() || c.Remote.IP.Equal(seg.Src.IP)
	remotePortOK := c.Remote.Port == 0 || c.Remote.Port == seg.Src.Port
	return localOK && portOK && remoteIPOK && remotePortOK
}

// PurgeMatching removes, from the receive queue, any queued segments that
// match the given 4-tuple predicate — used after spawning a child
// connection out of a Listen handle's backlog (spec §4.3).
func (c *Connection) PurgeMatching(match func(segment.Segment) bool) {
	kept := c.Data[:0]
	for _, s := range c.Data {
		if !match(s) {
			kept = append(kept, s)
		}
	}
	c.Data = kept
}

// PushDup enqueues a blocked accept request (no deadline — accepts never
// time out, spec §5).
func (c *Connection) PushDup(req scheme.Request) {
	c.todoDup = append(c.todoDup, req)
}

func (c *Connection) PopDup() (scheme.Request, bool) {
	if len(c.todoDup) == 0 {
		return scheme.Request{}, false
	}
	req := c.todoDup[0]
	c.todoDup = c.todoDup[1:]
	return req, true
}

func (c *Connection) HasDup() bool { return len(c.todoDup) > 0 }

// PushRead/PushWrite enqueue a blocked read/write with an optional
// absolute deadline.
func (c *Connection) PushRead(req scheme.Request, deadline time.Time, hasDeadline bool) {
	c.todoRead = append(c.todoRead, deferredIO{Deadline: deadline, HasDeadline: hasDeadline, Req: req})
}

func (c *Connection) PushWrite(req scheme.Request, deadline time.Time, hasDeadline bool) {
	c.todoWrite = append(c.todoWrite, deferredIO{Deadline: deadline, HasDeadline: hasDeadline, Req: req})
}

func (c *Connection) HasRead() bool  { return len(c.todoRead) > 0 }
func (c *Connection) HasWrite() bool { return len(c.todoWrite) > 0 }

func (c *Connection) PopRead() (scheme.Request, bool) {
	if len(c.todoRead) == 0 {
		return scheme.Request{}, false
	}
	d := c.todoRead[0]
	c.todoRead = c.todoRead[1:]
	return d.Req, true
}

func (c *Connection) PopWrite() (scheme.Request, bool) {
	if len(c.todoWrite) == 0 {
		return scheme.Request{}, false
	}
	d := c.todoWrite[0]
	c.todoWrite = c.todoWrite[1:]
	return d.Req, true
}

// ExpireReads/ExpireWrites removes every queued entry whose deadline has
// elapsed as of now, returning the requests to fail with ETIMEDOUT (spec
// §5, §8 scenario 5).
func (c *Connection) ExpireReads(now time.Time) []scheme.Request {
	kept, expired := splitExpired(c.todoRead, now)
	c.todoRead = kept
	return expired
}

func (c *Connection) ExpireWrites(now time.Time) []scheme.Request {
	kept, expired := splitExpired(c.todoWrite, now)
	c.todoWrite = kept
	return expired
}

func splitExpired(entries []deferredIO, now time.Time) (kept []deferredIO, expired []scheme.Request) {
	for _, e := range entries {
		if e.HasDeadline && !now.Before(e.Deadline) {
			expired = append(expired, e.Req)
		} else {
			kept = append(kept, e)
		}
	}
	return kept, expired
}

// DropPending discards every deferred request without responding to any
// of them — the documented force-close behavior (spec §9 "Close with
// pending requests").
func (c *Connection) DropPending() {
	c.todoDup = nil
	c.todoRead = nil
	c.todoWrite = nil
}

// Clone produces the handle created by dup("") on a Connection: same
// endpoints/flags/timeouts/state/sequence numbers and a copy of the
// receive queue, but empty deferred-request queues (spec §4.3).
func (c *Connection) Clone() *Connection {
	data := make([]segment.Segment, len(c.Data))
	copy(data, c.Data)
	return &Connection{
		Local:        c.Local,
		Remote:       c.Remote,
		Flags:        c.Flags,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		TTL:          c.TTL,
		State:        c.State,
		Seq:          c.Seq,
		Ack:          c.Ack,
		Data:         data,
	}
}
