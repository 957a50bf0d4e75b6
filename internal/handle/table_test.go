package handle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableAllocStartsAtOne(t *testing.T) {
	table := NewTable()
	id := table.Alloc(Empty{})
	assert.Equal(t, 1, id)
	assert.Equal(t, 2, table.Alloc(Empty{}))
}

func TestTableConnectionFollowsSetting(t *testing.T) {
	table := NewTable()
	connID := table.Alloc(&Connection{TTL: 64})
	settingID := table.Alloc(Setting{Parent: connID, Which: SettingTTL})

	conn, ok := table.Connection(settingID)
	require.True(t, ok)
	assert.EqualValues(t, 64, conn.TTL)
}

func TestTableConnectionStaleAfterParentRemoved(t *testing.T) {
	table := NewTable()
	connID := table.Alloc(&Connection{})
	settingID := table.Alloc(Setting{Parent: connID, Which: SettingTTL})

	table.Remove(connID)
	_, ok := table.Connection(settingID)
	assert.False(t, ok)
}

func TestPortRefCounting(t *testing.T) {
	table := NewTable()
	assert.False(t, table.PortInUse(443))

	table.BindPort(443)
	table.BindPort(443)
	assert.True(t, table.PortInUse(443))
	assert.Equal(t, 2, table.PortRefCount(443))

	table.UnbindPort(443)
	assert.True(t, table.PortInUse(443))
	assert.Equal(t, 1, table.PortRefCount(443))

	table.UnbindPort(443)
	assert.False(t, table.PortInUse(443))
	assert.Equal(t, 0, table.PortRefCount(443))
}

func TestTableAllOnlyReturnsConnections(t *testing.T) {
	table := NewTable()
	connID := table.Alloc(&Connection{})
	table.Alloc(Empty{})
	table.Alloc(Setting{Parent: connID})

	all := table.All()
	assert.Len(t, all, 1)
	_, ok := all[connID]
	assert.True(t, ok)
}
