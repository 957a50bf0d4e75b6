// Package netio provides two of the three external event sources the
// reactor multiplexes (spec §1, §4.8): the raw IPv4 datagram channel and
// the monotonic timer. The third, the scheme channel, is defined in
// package scheme.
package netio

import "time"

// IPChannel delivers and accepts raw IPv4 datagrams, one per Read/Write
// call (spec §1: "byte-stream channel delivering one datagram per read,
// accepting one datagram per write"). The reactor's IP pump calls
// ReadDatagram in a loop on its own goroutine, so a read may block until a
// datagram arrives, as TUNChannel's does.
type IPChannel interface {
	ReadDatagram(buf []byte) (int, error)
	WriteDatagram(data []byte) error
	Close() error
}

// Clock models the monotonic timer collaborator: Arm requests a wakeup at
// an absolute deadline (spec §6 "write an absolute monotonic deadline to
// request a wakeup"), and Chan delivers the current time each time one of
// those deadlines elapses ("read the current time on readiness").
type Clock interface {
	Now() time.Time
	Arm(deadline time.Time)
	Chan() <-chan time.Time
}
