package tdsim

import (
	"time"

	gometrics "github.com/armon/go-metrics"
)

// Stats is the statistics tap: every tick, the driver flushes each
// node's returned counters through here. It can point at any
// gometrics.MetricSink (StatsD, a Prometheus push gateway, or — the
// default here — an in-memory sink for the CLI's end-of-run report)
// without this package knowing which.
type Stats struct {
	m    *gometrics.Metrics
	sink *gometrics.InmemSink
}

// statsServiceName is the prefix armon/go-metrics joins onto every key
// this package records (IncrCounterWithLabels inserts it ahead of the
// key parts when EnableServiceLabel is false, its default); Totals has
// to look counters up under the same prefix or it never finds them.
const statsServiceName = "tdsim"

// NewStats builds a Stats tap backed by an in-memory sink that aggregates
// into buckets of length interval and retains them for 24 hours, long
// enough for a simulation run to read back its own totals when it
// finishes.
func NewStats(interval time.Duration) *Stats {
	sink := gometrics.NewInmemSink(interval, 24*time.Hour)
	cfg := gometrics.DefaultConfig(statsServiceName)
	cfg.EnableHostname = false
	cfg.EnableRuntimeMetrics = false
	m, _ := gometrics.New(cfg, sink)
	return &Stats{m: m, sink: sink}
}

// Totals sums every interval bucket recorded so far into a flat summary,
// the shape the CLI's end-of-run report prints.
type Totals struct {
	ControlMessages int
	WaveMessages    int
	BasicMessages   int
}

func (s *Stats) Totals() Totals {
	var t Totals
	for _, interval := range s.sink.Data() {
		interval.RLock()
		if c, ok := interval.Counters[statsServiceName+".control_messages"]; ok {
			t.ControlMessages += int(c.Sum)
		}
		if c, ok := interval.Counters[statsServiceName+".wave_messages"]; ok {
			t.WaveMessages += int(c.Sum)
		}
		if c, ok := interval.Counters[statsServiceName+".basic_messages"]; ok {
			t.BasicMessages += int(c.Sum)
		}
		interval.RUnlock()
	}
	return t
}

func (s *Stats) observeTick(result TickResult) {
	if result.ControlMessages > 0 {
		s.m.IncrCounter([]string{"control_messages"}, float32(result.ControlMessages))
	}
	if result.WaveMessages > 0 {
		s.m.IncrCounter([]string{"wave_messages"}, float32(result.WaveMessages))
	}
	if result.SentBasicTo != nil {
		s.m.IncrCounter([]string{"basic_messages"}, 1)
	}
}

func (s *Stats) observePopulation(tickN int64, inTree, exited, total int) {
	s.m.SetGauge([]string{"tick"}, float32(tickN))
	s.m.SetGauge([]string{"in_tree"}, float32(inTree))
	s.m.SetGauge([]string{"exited"}, float32(exited))
	s.m.SetGauge([]string{"total_nodes"}, float32(total))
}
