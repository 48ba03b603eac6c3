package md

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p1nky/sheepdog/internal/xattr"
)

func TestProbeEstablishesWeightOnceAndCachesIt(t *testing.T) {
	dir := t.TempDir()
	xi := xattr.NewMemory()

	w1 := probe(dir, xi)
	require.NotZero(t, w1)

	_, err := os.Stat(filepath.Join(dir, StaleDir))
	require.NoError(t, err)

	cached, ok, err := xi.GetSize(dir)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, w1, cached)
}

func TestProbeCreatesStaleDir(t *testing.T) {
	dir := t.TempDir()
	xi := xattr.NewMemory()

	probe(dir, xi)

	info, err := os.Stat(filepath.Join(dir, StaleDir))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestProbeReturnsZeroWhenXattrUnsupported(t *testing.T) {
	dir := t.TempDir()
	xi := xattr.NewMemory()
	xi.DenySupport(dir)

	got := probe(dir, xi)
	assert.Zero(t, got)
}

func TestProbeNeverRefreshesCachedWeight(t *testing.T) {
	dir := t.TempDir()
	xi := xattr.NewMemory()

	first := probe(dir, xi)
	require.NotZero(t, first)

	require.NoError(t, xi.SetSize(dir, first+999))
	second := probe(dir, xi)
	assert.Equal(t, first+999, second, "probe should trust whatever is cached, not recompute")
}
