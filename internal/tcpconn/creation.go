package tcpconn

import (
	"strings"
	"syscall"

	"github.com/kavlak/tcpd/internal/handle"
	"github.com/kavlak/tcpd/internal/scheme"
	"github.com/kavlak/tcpd/internal/segment"
)

// Open implements the open() scheme operation (spec §4.3, §6).
func (e *Engine) Open(path string, flags int, uid int) (int, error) {
	id := e.Table.Alloc(handle.Empty{Privileged: uid == 0, Flags: flags})

	h, err := e.innerDup(id, path)
	if err != nil {
		e.Table.Remove(id)
		return 0, err
	}
	e.Table.Insert(id, h)
	return id, nil
}

// Dup implements the dup() scheme operation (spec §4.3, §4.6, §6). It
// returns nil when dup("listen") found an empty backlog on a blocking
// handle and enqueued the request as a deferred accept instead of
// answering synchronously (spec §4.6, §8 scenario 2).
func (e *Engine) Dup(req scheme.Request) *scheme.Response {
	h, ok := e.Table.Get(req.Handle)
	if !ok {
		return respond(req, 0, syscall.EBADF)
	}

	if conn, ok := h.(*handle.Connection); ok && req.Path == "listen" {
		return e.dupListen(req, conn)
	}

	nh, err := e.innerDup(req.Handle, req.Path)
	if err != nil {
		return respond(req, 0, err)
	}
	return respond(req, e.Table.Alloc(nh), nil)
}

// innerDup is the shared creation logic both open() and dup() funnel
// through (spec §4.3's "Creation paths").
func (e *Engine) innerDup(file int, path string) (handle.Handle, error) {
	h, ok := e.Table.Get(file)
	if !ok {
		return nil, syscall.EBADF
	}

	switch v := h.(type) {
	case handle.Empty:
		return e.dupEmpty(v, path)
	case *handle.Connection:
		return e.dupConnection(file, v, path)
	case handle.Setting:
		return handle.Setting{Parent: v.Parent, Which: v.Which}, nil
	default:
		return nil, syscall.EBADF
	}
}

func (e *Engine) dupEmpty(eh handle.Empty, path string) (handle.Handle, error) {
	if path == "" {
		return handle.Empty{Privileged: eh.Privileged, Flags: eh.Flags}, nil
	}

	remoteStr, localStr, _ := strings.Cut(path, "/")
	remote := segment.ParseEndpoint(remoteStr)
	local := segment.ParseEndpoint(localStr)

	if local.Port == 0 {
		local.Port = EphemeralPort(e.RNG)
	}
	if local.Port <= 1024 && !eh.Privileged {
		return nil, syscall.EACCES
	}
	if e.Table.PortInUse(local.Port) {
		return nil, syscall.EADDRINUSE
	}

	conn := &handle.Connection{
		Local:  local,
		Remote: remote,
		Flags:  eh.Flags,
		TTL:    defaultTTL,
		State:  handle.StateListen,
	}

	if conn.IsConnected() {
		conn.Seq = e.RNG.Uint32()
		conn.Ack = 0
		conn.State = handle.StateSynSent
		if err := e.send(conn, segment.FlagSYN, nil); err != nil {
			return nil, syscall.EIO
		}
		conn.Seq++
	}

	e.Table.BindPort(local.Port)
	return conn, nil
}

// dupConnection handles every dup() target on a Connection handle except
// "listen", which Dup intercepts before calling here since it alone can
// defer (spec §4.6).
func (e *Engine) dupConnection(file int, parent *handle.Connection, path string) (handle.Handle, error) {
	switch path {
	case "":
		return parent.Clone(), nil
	case "ttl":
		return handle.Setting{Parent: file, Which: handle.SettingTTL}, nil
	case "read_timeout":
		return handle.Setting{Parent: file, Which: handle.SettingReadTimeout}, nil
	case "write_timeout":
		return handle.Setting{Parent: file, Which: handle.SettingWriteTimeout}, nil
	default:
		return nil, syscall.EINVAL
	}
}

// dupListen implements the accept-from-backlog dup("listen") path (spec
// §4.3, §4.6, §8 scenario 2): a non-blocking handle with an empty backlog
// fails immediately with EWOULDBLOCK, a blocking one is queued on the
// parent's todoDup and answered later out of acceptFromListeners' drain
// once a SYN arrives.
func (e *Engine) dupListen(req scheme.Request, parent *handle.Connection) *scheme.Response {
	if parent.IsConnected() {
		return respond(req, 0, syscall.EISCONN)
	}

	if len(parent.Data) == 0 {
		if parent.Flags&scheme.ONonblock != 0 {
			return respond(req, 0, syscall.EWOULDBLOCK)
		}
		parent.PushDup(req)
		return nil
	}

	popped := parent.Data[0]
	parent.Data = parent.Data[1:]

	child := &handle.Connection{
		Local:        parent.Local,
		Remote:       popped.Src,
		Flags:        parent.Flags,
		ReadTimeout:  parent.ReadTimeout,
		WriteTimeout: parent.WriteTimeout,
		TTL:          parent.TTL,
		State:        handle.StateSynReceived,
		Seq:          e.RNG.Uint32(),
		Ack:          popped.Seq + 1,
	}

	if err := e.send(child, segment.FlagSYN|segment.FlagACK, nil); err != nil {
		return respond(req, 0, syscall.EIO)
	}
	child.Seq++

	parent.PurgeMatching(child.Matches)
	childID := e.Table.Alloc(child)
	e.Table.BindPort(child.Local.Port)

	return respond(req, childID, nil)
}
