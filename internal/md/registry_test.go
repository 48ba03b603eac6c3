package md

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p1nky/sheepdog/internal/xattr"
)

func newTestRegistry(t *testing.T) (*Registry, *xattr.Memory) {
	t.Helper()
	xi := xattr.NewMemory()
	return NewRegistry(t.TempDir(), xi, nil, nil), xi
}

func TestAddRejectsDuplicatePath(t *testing.T) {
	r, _ := newTestRegistry(t)
	dir := t.TempDir()

	require.NoError(t, r.Add(dir))
	require.NoError(t, r.Add(dir))

	r.Reinit()
	assert.Len(t, r.Info(), 1)
}

func TestReinitEnablesMultiDiskLatchAndNeverRevertsIt(t *testing.T) {
	r, _ := newTestRegistry(t)
	require.NoError(t, r.Add(t.TempDir()))
	r.Reinit()
	assert.True(t, r.MultiDiskEnabled())

	require.NoError(t, r.Remove(0))
	r.Reinit()
	assert.True(t, r.MultiDiskEnabled(), "latch must stay on even with zero disks left")
}

func TestReinitRemovesDiskThatFailsProbe(t *testing.T) {
	r, xi := newTestRegistry(t)
	bad := t.TempDir()
	good := t.TempDir()
	require.NoError(t, r.Add(bad))
	require.NoError(t, r.Add(good))
	xi.DenySupport(bad)

	r.Reinit()

	info := r.Info()
	require.Len(t, info, 1)
	assert.Equal(t, good, info[0].Path)
}

func TestPlugUnplugCSVChangesDiskSet(t *testing.T) {
	r, _ := newTestRegistry(t)
	a := t.TempDir()
	b := t.TempDir()

	require.NoError(t, r.PlugCSV(a+","+b))
	assert.Len(t, r.Info(), 2)

	require.NoError(t, r.UnplugCSV(a))
	info := r.Info()
	require.Len(t, info, 1)
	assert.Equal(t, b, info[0].Path)
}

func TestGetObjectPathFallsBackToSingleDiskBeforeMultiDiskEnabled(t *testing.T) {
	fallback := t.TempDir()
	r := NewRegistry(fallback, xattr.NewMemory(), nil, nil)

	got := r.GetObjectPath(12345)
	assert.Equal(t, fallback, got)
}

func TestExistsFindsObjectStrandedOnNonPrimaryDisk(t *testing.T) {
	r, _ := newTestRegistry(t)
	a := t.TempDir()
	b := t.TempDir()
	require.NoError(t, r.PlugCSV(a + "," + b))

	const oid = uint64(0xabc123)
	primary := r.GetObjectPath(oid)
	other := a
	if primary == a {
		other = b
	}

	stranded := filepath.Join(other, objectFilename(oid))
	require.NoError(t, os.WriteFile(stranded, nil, 0o644))

	path, ok := r.Exists(oid)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(primary, objectFilename(oid)), path, "Exists must move a stranded hit into its ring-assigned location")

	_, err := os.Stat(stranded)
	assert.True(t, os.IsNotExist(err), "old-location file must be gone after a successful scan (P7)")
}
