package segment

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEndpoint(t *testing.T) {
	e := ParseEndpoint("10.0.0.2:443")
	assert.Equal(t, "10.0.0.2", e.IP.String())
	assert.EqualValues(t, 443, e.Port)
}

func TestParseEndpointFallsBackToWildcard(t *testing.T) {
	e := ParseEndpoint("not-an-ip:not-a-port")
	assert.True(t, e.IsWildcardIP())
	assert.EqualValues(t, 0, e.Port)
}

func TestEndpointWildcardAndBroadcast(t *testing.T) {
	wildcard := NewEndpoint(nil, 0)
	assert.True(t, wildcard.IsWildcard())
	assert.True(t, wildcard.IsWildcardIP())
	assert.False(t, wildcard.IsBroadcastIP())

	broadcast := NewEndpoint(net.IPv4bcast, 80)
	assert.True(t, broadcast.IsBroadcastIP())
	assert.False(t, broadcast.IsWildcard())
}

func TestEndpointString(t *testing.T) {
	e := NewEndpoint(net.ParseIP("10.0.0.1"), 8080)
	assert.Equal(t, "10.0.0.1:8080", e.String())
}
