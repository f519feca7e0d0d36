package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolfly/nmdb/internal/backend"
)

func TestParseDefaults(t *testing.T) {
	s, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, backend.KindMemory, s.BackendKind)
	assert.Equal(t, DefaultDBPath, s.DBPath)
	assert.Equal(t, DefaultCacheEntries, s.CacheEntries)
	assert.Equal(t, DefaultBindAddr, s.TCPBindAddr)
	assert.Equal(t, DefaultInetPort, s.TCPPort)
	assert.False(t, s.ReadOnly)
}

func TestParseOverrides(t *testing.T) {
	s, err := Parse([]string{"-b", "redis", "-d", "localhost:6379", "-c", "4000", "-r", "-p"})
	require.NoError(t, err)
	assert.Equal(t, backend.KindRedis, s.BackendKind)
	assert.Equal(t, "localhost:6379", s.DBPath)
	assert.Equal(t, 4000, s.CacheEntries)
	assert.True(t, s.ReadOnly)
	assert.True(t, s.Passive)
}

func TestParseLowercaseIsPortUppercaseIsAddr(t *testing.T) {
	s, err := Parse([]string{"-t", "9000", "-T", "10.0.0.1", "-u", "9001", "-U", "10.0.0.2", "-s", "9002", "-S", "10.0.0.3"})
	require.NoError(t, err)
	assert.Equal(t, 9000, s.TCPPort)
	assert.Equal(t, "10.0.0.1", s.TCPBindAddr)
	assert.Equal(t, 9001, s.UDPPort)
	assert.Equal(t, "10.0.0.2", s.UDPBindAddr)
	assert.Equal(t, 9002, s.SCTPPort)
	assert.Equal(t, "10.0.0.3", s.SCTPBindAddr)
}

func TestParseRejectsUnknownBackend(t *testing.T) {
	_, err := Parse([]string{"-b", "bogus"})
	assert.Error(t, err)
}

func TestParseRejectsNonPositiveCache(t *testing.T) {
	_, err := Parse([]string{"-c", "0"})
	assert.Error(t, err)
}
