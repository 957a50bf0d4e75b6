// Package scheme defines the request/response shapes exchanged between
// client processes and this daemon, and the errno vocabulary used to
// answer them. The transport that carries these across process
// boundaries is abstracted as Channel; UnixChannel is the one transport
// shipped here, a newline-delimited JSON stand-in over a Unix domain
// socket.
package scheme

import (
	"syscall"

	"github.com/google/uuid"
)

// Op identifies a scheme operation (spec §6).
type Op int

const (
	OpOpen Op = iota
	OpDup
	OpRead
	OpWrite
	OpFcntl
	OpFevent
	OpFpath
	OpFsync
	OpClose
)

func (o Op) String() string {
	switch o {
	case OpOpen:
		return "open"
	case OpDup:
		return "dup"
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpFcntl:
		return "fcntl"
	case OpFevent:
		return "fevent"
	case OpFpath:
		return "fpath"
	case OpFsync:
		return "fsync"
	case OpClose:
		return "close"
	default:
		return "unknown"
	}
}

// fcntl commands (spec §6).
const (
	FGetFL = 1
	FSetFL = 2
)

// Open/fcntl flag bits this daemon understands. O_ACCMODE masks off the
// access-mode bits fcntl(F_SETFL) must never change (spec §4.7/§6).
const (
	ONonblock = 1 << 2
	OCreat    = 1 << 3
	OAccmode  = 0x3
)

// EventRead is the only event mask bit fevent honors (spec §4.5).
const EventRead = 1

// Request is one inbound scheme operation. ID is a correlation id: it never
// determines behavior, and UnixChannel carries it on the wire as "id",
// echoing it back on the matching response.
type Request struct {
	ID     uuid.UUID
	Op     Op
	Handle int
	Path   string
	Buf    []byte
	Flags  int     // open() flags
	Cmd    int     // fcntl() command (FGetFL/FSetFL)
	Arg    uintptr // fcntl() argument
	UID    int
}

// Response answers a Request. Result is the success value (bytes
// transferred, a new handle id, ...); Err, when non-nil, is the failure —
// transport code is expected to encode it as a negative errno (spec §6),
// which for every error this daemon returns is exactly the underlying
// syscall.Errno.
type Response struct {
	ID     uuid.UUID
	Handle int
	Result int
	Err    error
}

// Errno unwraps resp.Err to the syscall.Errno a transport should encode,
// or 0 if the response was successful.
func (r Response) Errno() syscall.Errno {
	if r.Err == nil {
		return 0
	}
	var errno syscall.Errno
	if eno, ok := r.Err.(syscall.Errno); ok {
		errno = eno
	}
	return errno
}

func NewRequest(op Op, handle int, uid int) Request {
	return Request{ID: uuid.New(), Op: op, Handle: handle, UID: uid}
}

func (req Request) Respond(result int, err error) Response {
	return Response{ID: req.ID, Handle: req.Handle, Result: result, Err: err}
}
