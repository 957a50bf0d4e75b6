package reactor

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavlak/tcpd/internal/scheme"
	"github.com/kavlak/tcpd/internal/segment"
	"github.com/kavlak/tcpd/internal/tcpconn"
)

type fakeIPChannel struct{ sent [][]byte }

func (f *fakeIPChannel) ReadDatagram(buf []byte) (int, error) { return 0, io.EOF }
func (f *fakeIPChannel) WriteDatagram(data []byte) error {
	f.sent = append(f.sent, append([]byte(nil), data...))
	return nil
}
func (f *fakeIPChannel) Close() error { return nil }

type fakeClock struct{ ch chan time.Time }

func (c *fakeClock) Now() time.Time         { return time.Unix(0, 0) }
func (c *fakeClock) Arm(time.Time)          {}
func (c *fakeClock) Chan() <-chan time.Time { return c.ch }

type fakeChannel struct {
	responses     []scheme.Response
	notifications []struct{ handle, length int }
}

func (c *fakeChannel) ReadRequest() (scheme.Request, error) { return scheme.Request{}, io.EOF }
func (c *fakeChannel) WriteResponse(resp scheme.Response) error {
	c.responses = append(c.responses, resp)
	return nil
}
func (c *fakeChannel) WriteNotification(handle int, length int) error {
	c.notifications = append(c.notifications, struct{ handle, length int }{handle, length})
	return nil
}

func newTestReactor() (*Reactor, *fakeIPChannel, *fakeChannel) {
	ip := &fakeIPChannel{}
	clock := &fakeClock{ch: make(chan time.Time, 1)}
	log := logrus.NewEntry(logrus.New())
	engine := tcpconn.New(ip, clock, log)
	ch := &fakeChannel{}
	return New(engine, ch, log), ip, ch
}

func TestDispatchOpenWritesResponse(t *testing.T) {
	r, _, ch := newTestReactor()

	req := scheme.NewRequest(scheme.OpOpen, 0, 1000)
	req.Path = "10.0.0.2:443/10.0.0.1:0"
	r.dispatch(req)

	require.Len(t, ch.responses, 1)
	assert.NoError(t, ch.responses[0].Err)
	assert.Greater(t, ch.responses[0].Result, 0)
}

func TestDispatchOpenDeniedWritesErrorResponse(t *testing.T) {
	r, _, ch := newTestReactor()

	req := scheme.NewRequest(scheme.OpOpen, 0, 1000)
	req.Path = "10.0.0.2:443/10.0.0.1:80"
	r.dispatch(req)

	require.Len(t, ch.responses, 1)
	assert.Error(t, ch.responses[0].Err)
}

func TestHandleMalformedSegmentIsDropped(t *testing.T) {
	r, _, ch := newTestReactor()

	r.handle(ipEvent{data: []byte{0x01, 0x02}})
	assert.Empty(t, ch.responses)
}

func TestHandleSyntheticEventsAreNoOps(t *testing.T) {
	r, _, ch := newTestReactor()

	r.handle(schemeEvent{synthetic: true})
	r.handle(ipEvent{synthetic: true})
	r.handle(timerEvent{synthetic: true})
	assert.Empty(t, ch.responses)
}

func TestHandleValidSegmentTriggersAcceptFlow(t *testing.T) {
	r, ip, _ := newTestReactor()

	openReq := scheme.NewRequest(scheme.OpOpen, 0, 1000)
	openReq.Path = "0.0.0.0:0/10.0.0.1:5000"
	_, err := r.Engine.Open(openReq.Path, openReq.Flags, openReq.UID)
	require.NoError(t, err)

	raw, err := segment.Build(
		segment.ParseEndpoint("10.0.0.2:5555"),
		segment.ParseEndpoint("10.0.0.1:5000"),
		100, 0, segment.FlagSYN, 64, 1, nil,
	)
	require.NoError(t, err)

	r.handle(ipEvent{data: raw})
	assert.Empty(t, ip.sent) // no reply yet — nobody has accepted from the backlog
}
