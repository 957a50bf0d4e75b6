package tcpconn

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// fakeIPChannel records every datagram this daemon transmits; nothing in
// these tests drives it through ReadDatagram (segments are injected
// directly via Engine.OnSegment instead of a real pump).
type fakeIPChannel struct {
	sent [][]byte
}

func (f *fakeIPChannel) ReadDatagram(buf []byte) (int, error) { return 0, io.EOF }

func (f *fakeIPChannel) WriteDatagram(data []byte) error {
	cp := append([]byte(nil), data...)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeIPChannel) Close() error { return nil }

// fakeClock is a Clock whose Now() is set directly by the test and whose
// Arm() just records the deadlines it was asked for.
type fakeClock struct {
	now   time.Time
	armed []time.Time
	ch    chan time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now, ch: make(chan time.Time, 1)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Arm(deadline time.Time) { c.armed = append(c.armed, deadline) }

func (c *fakeClock) Chan() <-chan time.Time { return c.ch }

// fakeRNG returns 1, 2, 3, ... so test expectations are deterministic.
type fakeRNG struct{ n uint32 }

func (r *fakeRNG) Uint32() uint32 {
	r.n++
	return r.n
}

func newTestEngine() (*Engine, *fakeIPChannel, *fakeClock) {
	ip := &fakeIPChannel{}
	clock := newFakeClock(time.Unix(0, 0))
	log := logrus.NewEntry(logrus.New())
	e := New(ip, clock, log)
	e.RNG = &fakeRNG{}
	return e, ip, clock
}
