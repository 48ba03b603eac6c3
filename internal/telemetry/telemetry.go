// Package telemetry provides the ambient logging and metrics stack shared by
// the placement layer and the work queue: a zap structured logger per
// component, and a small set of Prometheus gauges/counters registered once
// through Register (md.NewRegistry calls it) and updated at the point a
// mutation happens.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Config controls the base logger.
type Config struct {
	Development bool `json:"development"`
}

// NewLogger builds a component-scoped zap logger. Development mode uses a
// human-readable console encoder; production mode (the default) uses JSON.
func NewLogger(cfg Config, component string) *zap.Logger {
	var l *zap.Logger
	var err error
	if cfg.Development {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		l = zap.NewNop()
	}
	return l.Named(component)
}

var (
	registerOnce sync.Once

	// RingSize reports the current number of vdisks in the ring.
	RingSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sheepdog",
		Subsystem: "md",
		Name:      "ring_size",
		Help:      "number of vdisks currently in the ring",
	})

	// DiskWeight reports the cached free-byte weight per disk path.
	DiskWeight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sheepdog",
		Subsystem: "md",
		Name:      "disk_weight_bytes",
		Help:      "cached free-space weight used for vdisk allocation",
	}, []string{"path"})

	// DiskBroken counts disks removed for returning a zero probe weight
	// (reason "probe_failed") or after an EIO report (reason "eio").
	DiskBroken = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sheepdog",
		Subsystem: "md",
		Name:      "disk_broken_total",
		Help:      "disks removed from the registry after a broken probe or EIO",
	}, []string{"path", "reason"})

	// EIOEvents counts completed EIO remap jobs, labeled "removed" when the
	// job removed the disk or "already_gone" when it was no longer
	// registered. Reports collapsed by singleflight are not counted.
	EIOEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sheepdog",
		Subsystem: "md",
		Name:      "eio_events_total",
		Help:      "EIO reports handled by the dispatcher",
	}, []string{"outcome"})

	// PoolThreadsTotal reports each pool's current worker count.
	PoolThreadsTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sheepdog",
		Subsystem: "workqueue",
		Name:      "threads_total",
		Help:      "current worker goroutine count for a pool",
	}, []string{"pool"})

	// PoolPending reports each pool's pending item count.
	PoolPending = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sheepdog",
		Subsystem: "workqueue",
		Name:      "pending",
		Help:      "items waiting to run in a pool",
	}, []string{"pool"})

	// PoolRunning reports each pool's currently-executing item count.
	PoolRunning = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sheepdog",
		Subsystem: "workqueue",
		Name:      "running",
		Help:      "items currently executing in a pool",
	}, []string{"pool"})
)

// Register installs all collectors with the default Prometheus registry.
// Safe to call more than once; registration only happens the first time.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(RingSize, DiskWeight, DiskBroken, EIOEvents,
			PoolThreadsTotal, PoolPending, PoolRunning)
	})
}
