package backend

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGetSetDel(t *testing.T) {
	m := NewMemory()

	_, err := m.Get([]byte("x"))
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Set([]byte("x"), []byte("1")))
	v, err := m.Get([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	require.NoError(t, m.Del([]byte("x")))
	_, err = m.Get([]byte("x"))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Set([]byte("x"), []byte("1")))

	v, _ := m.Get([]byte("x"))
	v[0] = 'Z'

	v2, _ := m.Get([]byte("x"))
	assert.Equal(t, []byte("1"), v2)
}

func TestMemoryIteration(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Set([]byte("a"), []byte("1")))
	require.NoError(t, m.Set([]byte("b"), []byte("2")))
	require.NoError(t, m.Set([]byte("c"), []byte("3")))

	seen := map[string]bool{}
	k, ok := m.FirstKey()
	require.True(t, ok)
	for ok {
		seen[string(k)] = true
		k, ok = m.NextKey(k)
	}
	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": true}, seen)
}

func TestMemoryIterationEmpty(t *testing.T) {
	m := NewMemory()
	_, ok := m.FirstKey()
	assert.False(t, ok)
}

func TestOpenUnknownKind(t *testing.T) {
	_, err := Open(Kind("bogus"), "")
	assert.Error(t, err)
}

func TestOpenDefaultsToMemory(t *testing.T) {
	s, err := Open("", "")
	require.NoError(t, err)
	_, ok := s.(*Memory)
	assert.True(t, ok)
}
