// Package stats aggregates the latency of executed requests with HDR
// histograms.
package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/abdul-hamid-achik/hitrun/packages/core/runner"
)

// Latencies are recorded in microseconds between 1us and 60s
const (
	minLatency = 1
	maxLatency = 60_000_000
	sigFigures = 3
)

// Collector records request outcomes. It is safe for concurrent use.
type Collector struct {
	mu        sync.Mutex
	total     int64
	errors    int64
	histogram *hdrhistogram.Histogram
	requests  map[string]*requestStats
	order     []string
}

type requestStats struct {
	name      string
	total     int64
	errors    int64
	histogram *hdrhistogram.Histogram
}

func NewCollector() *Collector {
	return &Collector{
		histogram: newHistogram(),
		requests:  make(map[string]*requestStats),
	}
}

func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(minLatency, maxLatency, sigFigures)
}

// Record adds one request. Failed requests count as errors and their
// latency is not recorded.
func (c *Collector) Record(name string, duration time.Duration, failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rs, ok := c.requests[name]
	if !ok {
		rs = &requestStats{name: name, histogram: newHistogram()}
		c.requests[name] = rs
		c.order = append(c.order, name)
	}

	c.total++
	rs.total++
	if failed {
		c.errors++
		rs.errors++
		return
	}

	us := clamp(duration.Microseconds())
	_ = c.histogram.RecordValue(us)
	_ = rs.histogram.RecordValue(us)
}

func clamp(us int64) int64 {
	if us < minLatency {
		return minLatency
	}
	if us > maxLatency {
		return maxLatency
	}
	return us
}

// Summary is the aggregated view of a run
type Summary struct {
	Duration  time.Duration `json:"duration"`
	Total     int64         `json:"total"`
	Errors    int64         `json:"errors"`
	ErrorRate float64       `json:"errorRate"`
	RPS       float64       `json:"rps"`
	Latency   Latency       `json:"latency"`
	Requests  []*Request    `json:"requests,omitempty"`
}

// Latency holds percentiles of the successful requests
type Latency struct {
	Min  time.Duration `json:"min"`
	Mean time.Duration `json:"mean"`
	P50  time.Duration `json:"p50"`
	P95  time.Duration `json:"p95"`
	P99  time.Duration `json:"p99"`
	Max  time.Duration `json:"max"`
}

// Request is the breakdown of one request name
type Request struct {
	Name    string  `json:"name"`
	Total   int64   `json:"total"`
	Errors  int64   `json:"errors"`
	Latency Latency `json:"latency"`
}

// Summary returns the aggregate over duration. Requests are sorted by
// name.
func (c *Collector) Summary(duration time.Duration) *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Summary{
		Duration: duration,
		Total:    c.total,
		Errors:   c.errors,
		Latency:  latencyOf(c.histogram),
	}
	if c.total > 0 {
		s.ErrorRate = float64(c.errors) / float64(c.total)
	}
	if duration > 0 {
		s.RPS = float64(c.total) / duration.Seconds()
	}

	names := append([]string(nil), c.order...)
	sort.Strings(names)
	for _, name := range names {
		rs := c.requests[name]
		s.Requests = append(s.Requests, &Request{
			Name:    rs.name,
			Total:   rs.total,
			Errors:  rs.errors,
			Latency: latencyOf(rs.histogram),
		})
	}
	return s
}

func latencyOf(h *hdrhistogram.Histogram) Latency {
	if h.TotalCount() == 0 {
		return Latency{}
	}
	us := func(v int64) time.Duration { return time.Duration(v) * time.Microsecond }
	return Latency{
		Min:  us(h.Min()),
		Mean: us(int64(h.Mean())),
		P50:  us(h.ValueAtQuantile(50)),
		P95:  us(h.ValueAtQuantile(95)),
		P99:  us(h.ValueAtQuantile(99)),
		Max:  us(h.Max()),
	}
}

// FromReport summarizes every executed request of a report
func FromReport(report *runner.Report) *Summary {
	c := NewCollector()
	for _, it := range report.Iterations {
		for _, res := range it.Executed {
			var d time.Duration
			if res.Log != nil {
				d = res.Log.Timings.Total
			}
			c.Record(res.Name, d, res.Error)
		}
	}
	return c.Summary(time.Duration(report.Ended-report.Started) * time.Millisecond)
}
