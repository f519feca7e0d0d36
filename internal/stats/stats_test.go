package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotOrder(t *testing.T) {
	var c Counters
	c.CacheGet = 1
	c.NetUnkReq = 21
	snap := c.Snapshot()
	assert.Equal(t, uint64(1), snap[0])
	assert.Equal(t, uint64(21), snap[20])
	assert.Len(t, snap, 21)
}

func TestFlagsDefaults(t *testing.T) {
	var f Flags
	assert.False(t, f.Passive())
	assert.False(t, f.ReadOnly())
}

func TestTogglePassive(t *testing.T) {
	var f Flags
	assert.True(t, f.TogglePassive())
	assert.True(t, f.Passive())
	assert.False(t, f.TogglePassive())
	assert.False(t, f.Passive())
}

func TestLatchReadOnlyIsOneWay(t *testing.T) {
	var f Flags
	f.LatchReadOnly()
	assert.True(t, f.ReadOnly())
	f.LatchReadOnly()
	assert.True(t, f.ReadOnly())
}
