// Package tcpconn drives the per-connection TCP state machine (spec
// §4.3), the inbound-segment demultiplexer (§4.4), the deferred-request
// drain (§4.5), and the scheme operations that create, read, write, and
// close connection handles (§4.6, §4.7, §6). It is the daemon's core.
package tcpconn

import (
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kavlak/tcpd/internal/handle"
	"github.com/kavlak/tcpd/internal/netio"
	"github.com/kavlak/tcpd/internal/scheme"
	"github.com/kavlak/tcpd/internal/segment"
)

// defaultTTL is the IP TTL a freshly created Connection starts with
// (spec §3).
const defaultTTL = 64

// maxWriteSize is the payload size at or above which write() fails with
// EMSGSIZE (spec §4.6).
const maxWriteSize = 65507

// Engine holds everything the daemon needs to answer scheme requests and
// react to inbound segments: the handle table, an RNG, and the IP channel
// segments are transmitted over. It assumes single-threaded use — every
// exported method must be called from the reactor goroutine only (spec §5).
type Engine struct {
	Table *handle.Table
	RNG   RNG
	IP    netio.IPChannel
	Clock netio.Clock
	Log   *logrus.Entry

	ipID uint16
}

func New(ip netio.IPChannel, clock netio.Clock, log *logrus.Entry) *Engine {
	return &Engine{
		Table: handle.NewTable(),
		RNG:   CryptoRNG{},
		IP:    ip,
		Clock: clock,
		Log:   log,
	}
}

func (e *Engine) nextIPID() uint16 {
	e.ipID++
	return e.ipID
}

// send builds and transmits a segment from conn's perspective (local as
// source, remote as destination) carrying the given flags/payload, and
// advances nothing itself — callers update Seq/Ack as spec §4.3 dictates.
func (e *Engine) send(conn *handle.Connection, flags segment.Flags, payload []byte) error {
	raw, err := segment.Build(conn.Local, conn.Remote, conn.Seq, conn.Ack, flags, conn.TTL, e.nextIPID(), payload)
	if err != nil {
		return err
	}
	return e.IP.WriteDatagram(raw)
}

// errIO wraps a transmit failure as EIO for deferred requests (spec §5).
func errIO(err error) error {
	if err == nil {
		return nil
	}
	return syscall.EIO
}
