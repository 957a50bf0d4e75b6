package tcpconn

import (
	"crypto/rand"
	"encoding/binary"
)

// RNG is the source of randomness this daemon needs: initial sequence
// numbers (spec §4.3: "cryptographically random 32-bit value") and
// ephemeral port selection. Both draw from this one source rather than
// mixing a crypto RNG for ISNs with a separate math/rand for ports. IPv4
// identification fields are not random: they come from Engine's counter
// (nextIPID).
type RNG interface {
	Uint32() uint32
}

// CryptoRNG reads from crypto/rand.
type CryptoRNG struct{}

func (CryptoRNG) Uint32() uint32 {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing means the platform's entropy source is
		// broken; there is no sane fallback for an initial sequence
		// number in that situation.
		panic("tcpconn: crypto/rand unavailable: " + err.Error())
	}
	return binary.BigEndian.Uint32(buf[:])
}

// EphemeralPort picks a port in [32768, 65535) the way spec §4.3 requires
// for an unspecified local port.
func EphemeralPort(r RNG) uint16 {
	const lo, hi = 32768, 65535
	return uint16(lo + r.Uint32()%(hi-lo))
}
