package xattr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySetThenGetRoundTrips(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.SetSize("/a", 12345))

	v, ok, err := m.GetSize("/a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(12345), v)
}

func TestMemoryGetMissingReturnsNotOK(t *testing.T) {
	m := NewMemory()
	_, ok, err := m.GetSize("/nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryDenySupportMakesSupportedFalse(t *testing.T) {
	m := NewMemory()
	assert.True(t, m.Supported("/a"))
	m.DenySupport("/a")
	assert.False(t, m.Supported("/a"))
	assert.True(t, m.Supported("/b"))
}
