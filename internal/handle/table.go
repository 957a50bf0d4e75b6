package handle

// Table maps handle ids to handles, allocates new ids, and tracks which
// local ports are in use. It is owned entirely by the reactor goroutine.
type Table struct {
	nextID  int
	handles map[int]Handle
	ports   map[uint16]int
}

// NewTable returns an empty table with the id counter starting at 1 (spec
// §3: "Ids are allocated from a counter starting at 1").
func NewTable() *Table {
	return &Table{
		nextID:  1,
		handles: make(map[int]Handle),
		ports:   make(map[uint16]int),
	}
}

// Alloc reserves the next id and stores h under it.
func (t *Table) Alloc(h Handle) int {
	id := t.nextID
	t.nextID++
	t.handles[id] = h
	return id
}

// Insert stores h under an id already reserved by Alloc (used by open,
// which allocates an Empty placeholder before it knows the final handle).
func (t *Table) Insert(id int, h Handle) {
	t.handles[id] = h
}

func (t *Table) Get(id int) (Handle, bool) {
	h, ok := t.handles[id]
	return h, ok
}

// Connection looks up id and type-asserts it to *Connection, following a
// Setting's Parent link once if needed. It returns (nil, false) if the
// handle doesn't exist, isn't a Connection (directly or via Setting), or
// — for a Setting whose parent has been closed — has gone stale.
func (t *Table) Connection(id int) (*Connection, bool) {
	h, ok := t.handles[id]
	if !ok {
		return nil, false
	}
	if c, ok := h.(*Connection); ok {
		return c, true
	}
	if s, ok := h.(Setting); ok {
		return t.Connection(s.Parent)
	}
	return nil, false
}

func (t *Table) Remove(id int) {
	delete(t.handles, id)
}

// All returns every (id, *Connection) pair currently in the table. Order
// is unspecified (map iteration) — every caller in this daemon treats
// handles as independent per spec §5 ("no ordering is guaranteed across
// handles").
func (t *Table) All() map[int]*Connection {
	out := make(map[int]*Connection, len(t.handles))
	for id, h := range t.handles {
		if c, ok := h.(*Connection); ok {
			out[id] = c
		}
	}
	return out
}

// BindPort records a new reference to port (a freshly bound Connection).
func (t *Table) BindPort(port uint16) {
	t.ports[port]++
}

// UnbindPort releases one reference to port, removing the entry once it
// reaches zero. Per spec §9 this corrects the original Redox
// implementation's port-counting defect (it incremented on both bind and
// unbind, relying on integer wraparound to reach zero) — here UnbindPort
// is a real decrement.
func (t *Table) UnbindPort(port uint16) {
	if t.ports[port] <= 1 {
		delete(t.ports, port)
		return
	}
	t.ports[port]--
}

// PortInUse reports whether port has at least one bound Connection.
func (t *Table) PortInUse(port uint16) bool {
	_, ok := t.ports[port]
	return ok
}

// PortRefCount returns the number of Connection handles currently bound
// to port (spec §8 testable property).
func (t *Table) PortRefCount(port uint16) int {
	return t.ports[port]
}
