// Package segment implements the wire format this daemon speaks: IPv4
// datagrams carrying protocol-6 (TCP) segments, with no IP or TCP options.
package segment

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Endpoint is an (IPv4 address, port) pair. The zero value is the wildcard
// endpoint: 0.0.0.0:0, meaning "unbound" for a local endpoint or "any" for
// a remote one.
type Endpoint struct {
	IP   net.IP
	Port uint16
}

// NewEndpoint builds an Endpoint from a 4-byte (or nil) IP and a port.
func NewEndpoint(ip net.IP, port uint16) Endpoint {
	if ip == nil {
		ip = net.IPv4zero
	}
	return Endpoint{IP: ip.To4(), Port: port}
}

// IsWildcardIP reports whether the IP half of the endpoint is 0.0.0.0.
func (e Endpoint) IsWildcardIP() bool {
	return e.IP == nil || e.IP.Equal(net.IPv4zero)
}

// IsBroadcastIP reports whether the IP half of the endpoint is 255.255.255.255.
func (e Endpoint) IsBroadcastIP() bool {
	return e.IP != nil && e.IP.Equal(net.IPv4bcast)
}

// IsWildcard reports whether the whole endpoint is 0.0.0.0:0 — "unbound".
func (e Endpoint) IsWildcard() bool {
	return e.IsWildcardIP() && e.Port == 0
}

// ParseEndpoint parses "<ip>:<port>" the way tcpd's scheme paths encode
// endpoints. A missing or unparsable host/port yields the wildcard value
// for that half, mirroring original_source's parse_socket (which falls
// back to Ipv4Addr::NULL / 0 rather than erroring).
func ParseEndpoint(s string) Endpoint {
	host, portStr, found := strings.Cut(s, ":")
	ip := net.ParseIP(host)
	if ip == nil {
		ip = net.IPv4zero
	}
	var port uint16
	if found {
		if p, err := strconv.ParseUint(portStr, 10, 16); err == nil {
			port = uint16(p)
		}
	}
	return NewEndpoint(ip, port)
}

func (e Endpoint) String() string {
	ip := e.IP
	if ip == nil {
		ip = net.IPv4zero
	}
	return fmt.Sprintf("%s:%d", ip.String(), e.Port)
}
