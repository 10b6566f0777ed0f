package engine

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	engineMetrics sync.Once

	recordsIndexedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pagan",
			Subsystem: "engine",
			Name:      "records_indexed_total",
			Help:      "Number of records indexed while decoding",
		})
	listsIndexedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pagan",
			Subsystem: "engine",
			Name:      "lists_indexed_total",
			Help:      "Number of repeated fields indexed while decoding",
		})
	fieldReadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pagan",
			Subsystem: "engine",
			Name:      "field_reads_total",
			Help:      "Number of field values decoded on access",
		})
	bytesWrittenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pagan",
			Subsystem: "engine",
			Name:      "bytes_written_total",
			Help:      "Number of bytes written by Encode",
		})
)

func registerMetrics() {
	engineMetrics.Do(func() {
		prometheus.MustRegister(recordsIndexedTotal)
		prometheus.MustRegister(listsIndexedTotal)
		prometheus.MustRegister(fieldReadsTotal)
		prometheus.MustRegister(bytesWrittenTotal)
	})
}

type Stats struct {
	Streams        int
	Types          int
	RecordsIndexed int64
	ListsIndexed   int64
	FieldReads     int64
	BytesWritten   int64

	// WritesRejected counts assignments refused by views over this
	// engine's records.
	WritesRejected int64
}

type counters struct {
	recordsIndexed atomic.Int64
	listsIndexed   atomic.Int64
	fieldReads     atomic.Int64
	bytesWritten   atomic.Int64
	writesRejected atomic.Int64
}

func (e *Engine) fieldRead() {
	e.counters.fieldReads.Add(1)
	fieldReadsTotal.Inc()
}

func (e *Engine) recordIndexed() {
	e.counters.recordsIndexed.Add(1)
	recordsIndexedTotal.Inc()
}

func (e *Engine) listIndexed() {
	e.counters.listsIndexed.Add(1)
	listsIndexedTotal.Inc()
}

func (e *Engine) bytesWritten(n int) {
	e.counters.bytesWritten.Add(int64(n))
	bytesWrittenTotal.Add(float64(n))
}

// WriteRejected counts an assignment refused by a read-only view over one of
// the engine's records.
func (e *Engine) WriteRejected() {
	e.counters.writesRejected.Add(1)
}

func (e *Engine) Stats() Stats {
	return Stats{
		Streams:        e.streams.Len(),
		Types:          e.reg.Len(),
		RecordsIndexed: e.counters.recordsIndexed.Load(),
		ListsIndexed:   e.counters.listsIndexed.Load(),
		FieldReads:     e.counters.fieldReads.Load(),
		BytesWritten:   e.counters.bytesWritten.Load(),
		WritesRejected: e.counters.writesRejected.Load(),
	}
}
