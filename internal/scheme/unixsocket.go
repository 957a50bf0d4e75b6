package scheme

import (
	"bufio"
	"encoding/json"
	"net"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// UnixChannel is the concrete Channel adapter this repository ships so the
// daemon is runnable end to end (SPEC_FULL.md §1): one client connection
// at a time over a Unix domain socket, each request/response/notification
// newline-delimited JSON. The real Redox scheme wire protocol this daemon
// conceptually implements is out of scope (spec §1) — this is a stand-in
// transport a local client can actually speak.
type UnixChannel struct {
	listener net.Listener
	conn     net.Conn
	reader   *bufio.Reader
}

// wireRequest/wireNotification mirror Request/Response for JSON framing;
// uuid.UUID and syscall.Errno already marshal sensibly via their own
// (Un)MarshalText/JSON methods.
type wireRequest struct {
	ID     uuid.UUID `json:"id"`
	Op     Op        `json:"op"`
	Handle int       `json:"handle"`
	Path   string    `json:"path,omitempty"`
	Buf    []byte    `json:"buf,omitempty"`
	Flags  int       `json:"flags,omitempty"`
	Cmd    int       `json:"cmd,omitempty"`
	Arg    uintptr   `json:"arg,omitempty"`
	UID    int       `json:"uid"`
}

type wireResponse struct {
	ID     uuid.UUID `json:"id"`
	Handle int       `json:"handle"`
	Result int       `json:"result"`
	Errno  int       `json:"errno,omitempty"`
}

type wireNotification struct {
	Type   string `json:"type"`
	Handle int    `json:"handle"`
	Length int    `json:"length"`
}

// ListenUnix opens path as a Unix domain socket and accepts exactly one
// client connection, returning a Channel backed by it.
func ListenUnix(path string) (*UnixChannel, error) {
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, errors.Wrap(err, "listen on scheme socket")
	}
	conn, err := l.Accept()
	if err != nil {
		l.Close()
		return nil, errors.Wrap(err, "accept scheme client")
	}
	return &UnixChannel{listener: l, conn: conn, reader: bufio.NewReader(conn)}, nil
}

func (c *UnixChannel) ReadRequest() (Request, error) {
	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return Request{}, errors.Wrap(err, "read scheme request")
	}
	var w wireRequest
	if err := json.Unmarshal(line, &w); err != nil {
		return Request{}, errors.Wrap(err, "decode scheme request")
	}
	return Request{
		ID:     w.ID,
		Op:     w.Op,
		Handle: w.Handle,
		Path:   w.Path,
		Buf:    w.Buf,
		Flags:  w.Flags,
		Cmd:    w.Cmd,
		Arg:    w.Arg,
		UID:    w.UID,
	}, nil
}

func (c *UnixChannel) WriteResponse(resp Response) error {
	w := wireResponse{ID: resp.ID, Handle: resp.Handle, Result: resp.Result}
	if errno := resp.Errno(); errno != 0 {
		w.Errno = int(errno)
	}
	return c.writeLine(w)
}

func (c *UnixChannel) WriteNotification(handle int, length int) error {
	return c.writeLine(wireNotification{Type: "event", Handle: handle, Length: length})
}

func (c *UnixChannel) writeLine(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encode scheme message")
	}
	data = append(data, '\n')
	_, err = c.conn.Write(data)
	return errors.Wrap(err, "write scheme message")
}

func (c *UnixChannel) Close() error {
	c.conn.Close()
	return c.listener.Close()
}
