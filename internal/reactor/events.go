package reactor

import (
	"time"

	"github.com/kavlak/tcpd/internal/scheme"
)

// event is whatever a pump goroutine forwards onto the reactor's single
// input channel. Exactly one of the three concrete types below is ever
// sent (spec §4.8: "the reactor selects over three channels" — collapsed
// here into one channel fed by three pumps, so the handle table is only
// ever touched from the reactor goroutine).
type event interface{ isEvent() }

type schemeEvent struct {
	req       scheme.Request
	err       error
	synthetic bool
}

type ipEvent struct {
	data      []byte
	err       error
	synthetic bool
}

type timerEvent struct {
	at        time.Time
	synthetic bool
}

func (schemeEvent) isEvent() {}
func (ipEvent) isEvent()     {}
func (timerEvent) isEvent()  {}
