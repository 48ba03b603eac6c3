// Package node wires the multi-disk placement registry and the work-queue
// scheduler into a single process-wide cell, the way the teacher's
// blobnode Service wires its disk map and its shared task switches
// together (startup.go). It is the glue layer SPEC_FULL.md §4.10 adds on
// top of the distilled spec: neither internal/md nor internal/workqueue
// knows the other exists.
package node

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/p1nky/sheepdog/internal/errs"
	"github.com/p1nky/sheepdog/internal/md"
	"github.com/p1nky/sheepdog/internal/telemetry"
	"github.com/p1nky/sheepdog/internal/workqueue"
	"github.com/p1nky/sheepdog/internal/xattr"
)

// ClusterView is the out-of-scope cluster-membership collaborator (spec.md
// §1): the Dynamic work-queue policy needs the current node count, but
// discovering and maintaining that count is cluster-membership machinery
// this layer never implements. SetClusterNodeCount is the manual substitute
// used when no real ClusterView is wired; AttachClusterView lets a caller
// swap in a live one instead.
type ClusterView interface {
	NodeCount() int
}

// Config is the JSON-decodable process configuration (SPEC_FULL.md §4.10).
type Config struct {
	Disks            []string `json:"disks"`
	ObjectPath       string   `json:"object_path"`
	ClusterNodeCount int      `json:"cluster_node_count"`
	Development      bool     `json:"development_logging"`
}

// Node is the owned root of a running process: the disk registry, the
// three named work-queue pools it drives (md, io, scan), and the shared
// completion bus that wakes their callers.
type Node struct {
	Registry *md.Registry

	MDPool   *workqueue.Pool
	IOPool   *workqueue.Pool
	ScanPool *workqueue.Pool
	Bus      *workqueue.Bus

	clusterNodeCount int32
	clusterViewMu    sync.Mutex
	clusterView      ClusterView // set via AttachClusterView, nil until then
	logger           *zap.Logger
	stop             chan struct{}
}

// New builds a Node from cfg, adding and probing the configured disks
// (Registry.Reinit), but does not start the bus loop; call Start for that.
func New(cfg Config, logger *zap.Logger) *Node {
	if logger == nil {
		logger = telemetry.NewLogger(telemetry.Config{Development: cfg.Development}, "sheepdog")
	}

	n := &Node{
		clusterNodeCount: int32(max(cfg.ClusterNodeCount, 1)),
		logger:           logger,
		stop:             make(chan struct{}),
	}

	n.Registry = md.NewRegistry(cfg.ObjectPath, xattr.Default{}, nil, logger)
	n.Bus = workqueue.NewBus(logger)

	n.MDPool = workqueue.NewPool("md", workqueue.Ordered, nil, n.Bus, logger)
	n.IOPool = workqueue.NewPool("io", workqueue.Dynamic, n.clusterRoof, n.Bus, logger)
	n.ScanPool = workqueue.NewPool("scan", workqueue.Unlimited, nil, n.Bus, logger)
	n.Bus.Register(n.MDPool)
	n.Bus.Register(n.IOPool)
	n.Bus.Register(n.ScanPool)

	n.Registry.SetEIOQueue(mdSubmitter{n.MDPool})

	for _, d := range cfg.Disks {
		if err := n.Registry.Add(d); err != nil {
			logger.Error("failed to add configured disk", zap.String("path", d), zap.Error(err))
		}
	}
	n.Registry.Reinit()

	return n
}

// Start launches the completion bus loop; call in its own goroutine or
// run it inline and use Stop from elsewhere to unwind it.
func (n *Node) Start(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			n.Stop()
		case <-n.stop:
		}
	}()
	n.Bus.Run(n.stop)
}

// Stop tears down the bus and all pools.
func (n *Node) Stop() {
	select {
	case <-n.stop:
		return
	default:
		close(n.stop)
	}
	n.MDPool.Close()
	n.IOPool.Close()
	n.ScanPool.Close()
	_ = n.Bus.Close()
}

// SetClusterNodeCount updates the Dynamic-policy roof input for the IO
// pool (spec.md §5: roof = 2 * cluster node count).
func (n *Node) SetClusterNodeCount(count int) {
	atomic.StoreInt32(&n.clusterNodeCount, int32(max(count, 1)))
}

// AttachClusterView wires a live ClusterView; once attached it takes
// precedence over SetClusterNodeCount for the IO pool's Dynamic roof.
func (n *Node) AttachClusterView(cv ClusterView) {
	n.clusterViewMu.Lock()
	n.clusterView = cv
	n.clusterViewMu.Unlock()
}

func (n *Node) clusterRoof() int {
	n.clusterViewMu.Lock()
	cv := n.clusterView
	n.clusterViewMu.Unlock()
	if cv != nil {
		return cv.NodeCount()
	}
	return int(atomic.LoadInt32(&n.clusterNodeCount))
}

// Plug adds disks (comma-separated paths) and kicks recovery if the set
// changed (spec.md §4.4).
func (n *Node) Plug(csv string) error {
	return n.Registry.PlugCSV(csv)
}

// Unplug removes disks (comma-separated paths) and kicks recovery if the
// set changed (spec.md §4.4).
func (n *Node) Unplug(csv string) error {
	return n.Registry.UnplugCSV(csv)
}

// Info returns the current disk listing for the admin surface.
func (n *Node) Info() []md.DiskInfo {
	return n.Registry.Info()
}

// Locate resolves an object id to its current path, scanning every disk
// if it isn't where the ring currently assigns it (spec.md §4.2).
func (n *Node) Locate(oid uint64) (string, error) {
	if path, ok := n.Registry.Exists(oid); ok {
		return path, nil
	}
	return "", errs.New(errs.NoObject, "Locate", fmt.Sprintf("%016x", oid), nil)
}

// mdSubmitter adapts md.Item onto a workqueue.Pool, converting between
// the two packages' deliberately separate Item shapes.
type mdSubmitter struct {
	pool *workqueue.Pool
}

func (s mdSubmitter) Submit(item *md.Item) {
	s.pool.Submit(&workqueue.Item{
		Run:  item.Run,
		Done: item.Done,
	})
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
