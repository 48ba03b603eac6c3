package md

import (
	"encoding/binary"
	"sort"
)

// FNV-1a 64-bit constants (hash/fnv's published offset basis and prime).
// The exact fold order below is spec.md §4.1's compatibility requirement
// with an existing on-disk layout; no library reproduces this specific
// per-vdisk index-then-reversed-path fold, so it is hand-written
// arithmetic over the standard constants rather than a call to hash/fnv.
const (
	fnvOffset64 uint64 = 14695981039346656037
	fnvPrime64  uint64 = 1099511628211
)

func fnv1aByte(h uint64, b byte) uint64 {
	h ^= uint64(b)
	h *= fnvPrime64
	return h
}

// hashVdisk reproduces original_source/sheep/md.c's per-vdisk hash: seed a
// fresh accumulator, fold the loop index as 8 little-endian bytes, then
// fold the disk path traversed from its last character back to its first.
func hashVdisk(index int, path string) uint64 {
	h := fnvOffset64
	var idxBuf [8]byte
	binary.LittleEndian.PutUint64(idxBuf[:], uint64(index))
	for _, b := range idxBuf {
		h = fnv1aByte(h, b)
	}
	for i := len(path) - 1; i >= 0; i-- {
		h = fnv1aByte(h, path[i])
	}
	return h
}

// hashOID hashes an 8-byte object id with plain FNV-1a (no reversal — the
// lookup key is simply "hash the 8 bytes", spec.md §4.2).
func hashOID(oid uint64) uint64 {
	h := fnvOffset64
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], oid)
	for _, b := range buf {
		h = fnv1aByte(h, b)
	}
	return h
}

// vdiskCount computes DEFAULT_VDISKS * (weight / meanWeight), rounded to
// the nearest integer (spec.md §3).
func vdiskCount(weight, meanWeight uint64) uint16 {
	if meanWeight == 0 {
		return 0
	}
	// round(DefaultVdisks * weight / meanWeight) using integer math:
	// (2*DefaultVdisks*weight + meanWeight) / (2*meanWeight)
	num := 2*uint64(DefaultVdisks)*weight + meanWeight
	den := 2 * meanWeight
	n := num / den
	if n > MaxRingSize {
		n = MaxRingSize
	}
	return uint16(n)
}

// buildRing constructs the full vdisk ring from the given disks (index in
// this slice becomes Vdisk.DiskIndex), sorted ascending by hash. Ties are
// tolerated gracefully (spec.md §3 invariants; §9 notes the winner on a
// collision is implementation-defined) — Go's sort.Slice is not stable,
// which the spec explicitly allows.
func buildRing(disks []Disk) []Vdisk {
	total := 0
	for _, d := range disks {
		total += int(d.VdiskCount)
	}
	ring := make([]Vdisk, 0, total)
	for diskIdx, d := range disks {
		for i := int(d.VdiskCount) - 1; i >= 0; i-- {
			ring = append(ring, Vdisk{
				Hash:      hashVdisk(i, d.Path),
				DiskIndex: uint16(diskIdx),
			})
		}
	}
	sort.Slice(ring, func(i, j int) bool { return ring[i].Hash < ring[j].Hash })
	return ring
}

// lookup finds the vdisk responsible for oid: the smallest-hash entry with
// hash >= key, wrapping to index 0 if key exceeds every hash in the ring.
// Undefined (and this function must not be called) on an empty ring.
func lookup(ring []Vdisk, oid uint64) Vdisk {
	key := hashOID(oid)
	idx := sort.Search(len(ring), func(i int) bool { return ring[i].Hash >= key })
	if idx == len(ring) {
		idx = 0
	}
	return ring[idx]
}

// assignVdiskCounts recomputes each disk's VdiskCount from the current set
// of weights' mean, mutating disks in place.
func assignVdiskCounts(disks []Disk) {
	if len(disks) == 0 {
		return
	}
	var sum uint64
	for _, d := range disks {
		sum += d.Weight
	}
	mean := sum / uint64(len(disks))
	for i := range disks {
		disks[i].VdiskCount = vdiskCount(disks[i].Weight, mean)
	}
}
