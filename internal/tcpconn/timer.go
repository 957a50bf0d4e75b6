package tcpconn

import (
	"syscall"
	"time"

	"github.com/kavlak/tcpd/internal/scheme"
)

// OnTimer scans every Connection's deferred read/write queues for expired
// deadlines and fails each one with ETIMEDOUT (spec §5 cancellation, §8
// scenario 5).
func (e *Engine) OnTimer(now time.Time) []scheme.Response {
	var responses []scheme.Response

	for _, conn := range e.Table.All() {
		for _, req := range conn.ExpireReads(now) {
			responses = append(responses, req.Respond(0, syscall.ETIMEDOUT))
		}
		for _, req := range conn.ExpireWrites(now) {
			responses = append(responses, req.Respond(0, syscall.ETIMEDOUT))
		}
	}

	return responses
}
