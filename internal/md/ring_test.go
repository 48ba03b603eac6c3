package md

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVdiskCountMatchesWeightRatio(t *testing.T) {
	const gib = 1 << 30
	disks := []Disk{
		{Path: "/a", Weight: 100 * gib},
		{Path: "/b", Weight: 300 * gib},
	}
	assignVdiskCounts(disks)

	assert.Equal(t, uint16(64), disks[0].VdiskCount)
	assert.Equal(t, uint16(192), disks[1].VdiskCount)
}

func TestVdiskCountCapsAtMaxRingSize(t *testing.T) {
	got := vdiskCount(1_000_000, 1)
	assert.LessOrEqual(t, int(got), MaxRingSize)
	assert.Equal(t, uint16(MaxRingSize), got)
}

func TestBuildRingSizeMatchesSumOfVdiskCounts(t *testing.T) {
	disks := []Disk{
		{Path: "/a", Weight: 100, VdiskCount: 10},
		{Path: "/b", Weight: 200, VdiskCount: 20},
	}
	ring := buildRing(disks)
	require.Len(t, ring, 30)

	for i := 1; i < len(ring); i++ {
		assert.LessOrEqual(t, ring[i-1].Hash, ring[i].Hash)
	}
}

func TestLookupIsStableAcrossRepeatedCalls(t *testing.T) {
	disks := []Disk{
		{Path: "/a", Weight: 100},
		{Path: "/b", Weight: 100},
		{Path: "/c", Weight: 100},
	}
	assignVdiskCounts(disks)
	ring := buildRing(disks)
	require.NotEmpty(t, ring)

	first := lookup(ring, 0xdeadbeef)
	for i := 0; i < 50; i++ {
		again := lookup(ring, 0xdeadbeef)
		assert.Equal(t, first, again)
	}
}

func TestLookupWrapsAroundRing(t *testing.T) {
	ring := []Vdisk{
		{Hash: 10, DiskIndex: 0},
		{Hash: 20, DiskIndex: 1},
		{Hash: 30, DiskIndex: 2},
	}
	got := lookup(ring, maxOIDHashingAbove(ring))
	assert.Equal(t, ring[0], got)
}

// maxOIDHashingAbove finds an oid whose hash exceeds every entry in ring,
// forcing lookup's wrap-to-zero branch.
func maxOIDHashingAbove(ring []Vdisk) uint64 {
	var maxHash uint64
	for _, v := range ring {
		if v.Hash > maxHash {
			maxHash = v.Hash
		}
	}
	for oid := uint64(0); ; oid++ {
		if hashOID(oid) > maxHash {
			return oid
		}
		if oid > 1<<20 {
			return oid
		}
	}
}

func TestRemovingADiskOnlyRemapsItsOwnVdisks(t *testing.T) {
	disks := []Disk{
		{Path: "/a", Weight: 100},
		{Path: "/b", Weight: 100},
		{Path: "/c", Weight: 100},
	}
	assignVdiskCounts(disks)
	before := buildRing(disks)

	owners := make(map[uint64]string)
	for oid := uint64(0); oid < 500; oid++ {
		v := lookup(before, oid)
		owners[oid] = disks[v.DiskIndex].Path
	}

	reduced := disks[:2]
	assignVdiskCounts(reduced)
	after := buildRing(reduced)

	for oid, ownerBefore := range owners {
		if ownerBefore == "/c" {
			continue
		}
		v := lookup(after, oid)
		assert.Equal(t, ownerBefore, reduced[v.DiskIndex].Path, "oid %d remapped despite its disk surviving", oid)
	}
}
