package tcpconn

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavlak/tcpd/internal/handle"
	"github.com/kavlak/tcpd/internal/scheme"
	"github.com/kavlak/tcpd/internal/segment"
)

func seg(payload string) segment.Segment {
	return segment.Segment{Payload: []byte(payload)}
}

func establishedConn(t *testing.T, e *Engine) (int, *handle.Connection) {
	t.Helper()
	id, err := e.Open("10.0.0.2:443/10.0.0.1:0", 0, 1000)
	require.NoError(t, err)
	conn, ok := e.Table.Connection(id)
	require.True(t, ok)
	conn.State = handle.StateEstablished
	conn.Seq = 1000
	conn.Ack = 2000
	return id, conn
}

func TestWriteEstablishedSendsAndAdvancesSeq(t *testing.T) {
	e, ip, _ := newTestEngine()
	id, conn := establishedConn(t, e)

	req := scheme.NewRequest(scheme.OpWrite, id, 1000)
	req.Buf = []byte("payload")
	resp := e.Write(req)
	require.NotNil(t, resp)
	assert.NoError(t, resp.Err)
	assert.Equal(t, len(req.Buf), resp.Result)
	assert.EqualValues(t, 1000+len(req.Buf), conn.Seq)
	assert.Len(t, ip.sent, 2) // SYN from Open, then this write
}

func TestWriteTooLargeRejected(t *testing.T) {
	e, _, _ := newTestEngine()
	id, _ := establishedConn(t, e)

	req := scheme.NewRequest(scheme.OpWrite, id, 1000)
	req.Buf = make([]byte, maxWriteSize)
	resp := e.Write(req)
	require.NotNil(t, resp)
	assert.Equal(t, syscall.EMSGSIZE, resp.Err)
}

func TestReadReturnsQueuedData(t *testing.T) {
	e, _, _ := newTestEngine()
	id, conn := establishedConn(t, e)
	conn.Data = append(conn.Data, seg("hello"))

	req := scheme.NewRequest(scheme.OpRead, id, 1000)
	req.Buf = make([]byte, 16)
	resp := e.Read(req)
	require.NotNil(t, resp)
	assert.NoError(t, resp.Err)
	assert.Equal(t, 5, resp.Result)
	assert.Equal(t, []byte("hello"), req.Buf[:5])
	assert.Empty(t, conn.Data)
}

func TestReadNonblockingEmptyReturnsZero(t *testing.T) {
	e, _, _ := newTestEngine()
	id, conn := establishedConn(t, e)
	conn.Flags = scheme.ONonblock

	req := scheme.NewRequest(scheme.OpRead, id, 1000)
	req.Buf = make([]byte, 16)
	resp := e.Read(req)
	require.NotNil(t, resp)
	assert.NoError(t, resp.Err)
	assert.Equal(t, 0, resp.Result)
}

func TestFcntlGetSetFlags(t *testing.T) {
	e, _, _ := newTestEngine()
	id, _ := establishedConn(t, e)

	n, err := e.Fcntl(id, scheme.FSetFL, scheme.ONonblock)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = e.Fcntl(id, scheme.FGetFL, 0)
	require.NoError(t, err)
	assert.Equal(t, scheme.ONonblock, n)
}

func TestFpathFormat(t *testing.T) {
	e, _, _ := newTestEngine()
	id, _ := establishedConn(t, e)

	buf := make([]byte, 64)
	n, err := e.Fpath(id, buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), "tcp:10.0.0.2:443/10.0.0.1:")
}

func TestFsyncOnMissingHandle(t *testing.T) {
	e, _, _ := newTestEngine()
	_, err := e.Fsync(99)
	assert.Equal(t, syscall.EBADF, err)
}

func TestSettingTTLRoundTrip(t *testing.T) {
	e, _, _ := newTestEngine()
	id, conn := establishedConn(t, e)

	dupReq := scheme.NewRequest(scheme.OpDup, id, 1000)
	dupReq.Path = "ttl"
	dupResp := e.Dup(dupReq)
	require.NotNil(t, dupResp)
	require.NoError(t, dupResp.Err)
	ttlHandle := dupResp.Result

	writeReq := scheme.NewRequest(scheme.OpWrite, ttlHandle, 1000)
	writeReq.Buf = []byte{200}
	resp := e.Write(writeReq)
	require.NotNil(t, resp)
	assert.NoError(t, resp.Err)
	assert.EqualValues(t, 200, conn.TTL)

	readReq := scheme.NewRequest(scheme.OpRead, ttlHandle, 1000)
	readReq.Buf = make([]byte, 1)
	resp = e.Read(readReq)
	require.NotNil(t, resp)
	assert.Equal(t, 1, resp.Result)
	assert.EqualValues(t, 200, readReq.Buf[0])
}

func TestSettingReadTimeoutRoundTrip(t *testing.T) {
	e, _, _ := newTestEngine()
	id, conn := establishedConn(t, e)

	dupReq := scheme.NewRequest(scheme.OpDup, id, 1000)
	dupReq.Path = "read_timeout"
	dupResp := e.Dup(dupReq)
	require.NotNil(t, dupResp)
	require.NoError(t, dupResp.Err)
	h := dupResp.Result

	wire := make([]byte, durationWireSize)
	writeDuration(durationPtr(7*time.Second), wire)

	writeReq := scheme.NewRequest(scheme.OpWrite, h, 1000)
	writeReq.Buf = wire
	resp := e.Write(writeReq)
	require.NotNil(t, resp)
	assert.NoError(t, resp.Err)
	require.NotNil(t, conn.ReadTimeout)
	assert.Equal(t, 7*time.Second, *conn.ReadTimeout)

	readBuf := make([]byte, durationWireSize)
	readReq := scheme.NewRequest(scheme.OpRead, h, 1000)
	readReq.Buf = readBuf
	resp = e.Read(readReq)
	require.NotNil(t, resp)
	assert.Equal(t, durationWireSize, resp.Result)
}

func durationPtr(d time.Duration) *time.Duration { return &d }
