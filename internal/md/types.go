// Package md implements the multi-disk object placement layer: a weighted
// consistent-hash ring over a small set of local storage paths, online
// disk add/remove/EIO handling, and object location including the
// cross-disk scan fallback for objects a prior ring change moved but
// haven't been physically migrated yet.
//
// Naming follows original_source/sheep/md.c ("md" = multi-disk).
package md

const (
	// DefaultVdisks is the base virtual-node count for a disk at the
	// mean weight; spec.md §3.
	DefaultVdisks = 128

	// MaxDisk bounds both the registry and the ring (MaxDisk *
	// DefaultVdisks).
	MaxDisk = 64

	// MaxRingSize is the largest the vdisk ring can ever be.
	MaxRingSize = MaxDisk * DefaultVdisks
)

// Disk is one active storage path and its measured placement weight.
type Disk struct {
	Path       string
	Weight     uint64
	VdiskCount uint16
}

// Vdisk is one virtual node on the consistent-hash ring.
type Vdisk struct {
	Hash      uint64
	DiskIndex uint16
}

// DiskInfo is the admin-surface shape for Registry.Info() (spec.md §6).
type DiskInfo struct {
	Index     int    `json:"index"`
	Path      string `json:"path"`
	SizeBytes uint64 `json:"size_bytes"`
	UsedBytes uint64 `json:"used_bytes"`
}

// Recoverer is the out-of-scope recovery-algorithm collaborator: "kick
// recovery" asks it to reconcile objects after a ring change.
type Recoverer interface {
	StartRecovery(before, after []Vdisk)
}

// NopRecoverer is a Recoverer that does nothing, useful for tests and for
// single-disk deployments that never rebuild a ring.
type NopRecoverer struct{}

func (NopRecoverer) StartRecovery(before, after []Vdisk) {}

// Submitter is the narrow slice of workqueue.Pool the EIO dispatcher needs:
// enqueue a job and return immediately.
type Submitter interface {
	Submit(item *Item)
}

// Item mirrors workqueue.Item's shape without importing the workqueue
// package's concrete type directly into md's public API, keeping md
// decoupled from the scheduler's internals; node wires a thin adapter
// (see internal/node) that submits these onto a real workqueue.Pool.
type Item struct {
	Run  func() any
	Done func(any)
}
