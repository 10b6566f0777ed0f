package pagan

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/andreyvit/pagan/engine"
)

var (
	viewMetrics sync.Once

	viewWritesRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pagan",
			Subsystem: "view",
			Name:      "writes_rejected_total",
			Help:      "Number of assignments rejected by read-only views",
		})
)

func registerMetrics() {
	viewMetrics.Do(func() {
		prometheus.MustRegister(viewWritesRejectedTotal)
	})
}

// Stats are the counters of a parser's engine. WritesRejected only counts
// views over records; views over plain composites show up in the
// pagan_view_writes_rejected_total metric alone.
type Stats = engine.Stats

func (p *Parser) Stats() Stats {
	return p.eng.Stats()
}

func (v *View) writeRejected() {
	registerMetrics()
	viewWritesRejectedTotal.Inc()
	switch t := v.target.(type) {
	case *engine.Record:
		t.Engine().WriteRejected()
	case *engine.List:
		t.Owner().Engine().WriteRejected()
	}
}
