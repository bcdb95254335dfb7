package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	opsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nostrly_store_ops_total",
		Help: "Store operations by table, op and result",
	}, []string{"table", "op", "result"})

	sweptTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nostrly_store_swept_total",
		Help: "Expired records removed by the sweeper",
	}, []string{"table"})
)

// Stats is a compact view of pebble state for readiness and inspect output.
type Stats struct {
	DiskSpaceUsage uint64
	L0Files        int64
	WALBytes       uint64
	CacheHits      int64
	CacheMisses    int64
	Compactions    int64
}

// Stats returns best-effort metrics about the pebble DB.
func (d *DB) Stats() Stats {
	var s Stats
	if !d.Ready() {
		return s
	}
	m := d.db.Metrics()
	if m == nil {
		return s
	}
	s.DiskSpaceUsage = m.DiskSpaceUsage()
	s.L0Files = m.Levels[0].NumFiles
	s.WALBytes = m.WAL.Size
	s.CacheHits = m.BlockCache.Hits
	s.CacheMisses = m.BlockCache.Misses
	s.Compactions = m.Compact.Count
	return s
}
