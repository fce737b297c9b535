package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "filterproxy"

// maxDurationSamples bounds the per-filter window used for percentiles.
const maxDurationSamples = 1000

// Metrics holds per-filter counters, both as Prometheus series and as an
// in-memory view for snapshots.
type Metrics struct {
	registry        *prometheus.Registry
	resolutions     *prometheus.CounterVec
	initializations *prometheus.CounterVec
	requests        *prometheus.CounterVec
	failures        *prometheus.CounterVec
	duration        *prometheus.HistogramVec

	mutex     sync.RWMutex
	filters   map[string]*filterStats
	startTime time.Time
}

type filterStats struct {
	resolutions     int64
	initializations int64
	requests        int64
	failures        map[string]int64
	durations       []time.Duration
	lastResolved    time.Time
}

type Snapshot struct {
	Uptime  time.Duration            `json:"uptime"`
	Filters map[string]FilterMetrics `json:"filters"`
}

type FilterMetrics struct {
	Resolutions     int64            `json:"resolutions"`
	Initializations int64            `json:"initializations"`
	Requests        int64            `json:"requests"`
	Failures        map[string]int64 `json:"failures,omitempty"`
	AvgDuration     time.Duration    `json:"avg_duration"`
	P50Duration     time.Duration    `json:"p50_duration"`
	P95Duration     time.Duration    `json:"p95_duration"`
	P99Duration     time.Duration    `json:"p99_duration"`
	LastResolved    time.Time        `json:"last_resolved,omitempty"`
}

func (m *Metrics) RecordResolution(filter string, at time.Time) {
	m.resolutions.WithLabelValues(filter).Inc()

	m.mutex.Lock()
	defer m.mutex.Unlock()
	stats := m.stats(filter)
	stats.resolutions++
	stats.lastResolved = at
}

func (m *Metrics) RecordInitialization(filter string) {
	m.initializations.WithLabelValues(filter).Inc()

	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.stats(filter).initializations++
}

func (m *Metrics) RecordRequest(filter string, duration time.Duration) {
	m.requests.WithLabelValues(filter).Inc()
	m.duration.WithLabelValues(filter).Observe(duration.Seconds())

	m.mutex.Lock()
	defer m.mutex.Unlock()
	stats := m.stats(filter)
	stats.requests++
	stats.durations = append(stats.durations, duration)
	if len(stats.durations) > maxDurationSamples {
		stats.durations = stats.durations[1:]
	}
}

func (m *Metrics) RecordFailure(filter, reason string) {
	m.failures.WithLabelValues(filter, reason).Inc()

	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.stats(filter).failures[reason]++
}

// stats must be called with the mutex held.
func (m *Metrics) stats(filter string) *filterStats {
	s, ok := m.filters[filter]
	if !ok {
		s = &filterStats{failures: make(map[string]int64)}
		m.filters[filter] = s
	}
	return s
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime:  time.Since(m.startTime),
		Filters: make(map[string]FilterMetrics, len(m.filters)),
	}

	for name, s := range m.filters {
		fm := FilterMetrics{
			Resolutions:     s.resolutions,
			Initializations: s.initializations,
			Requests:        s.requests,
			LastResolved:    s.lastResolved,
		}

		if len(s.failures) > 0 {
			fm.Failures = make(map[string]int64, len(s.failures))
			for reason, n := range s.failures {
				fm.Failures[reason] = n
			}
		}

		if len(s.durations) > 0 {
			sorted := make([]time.Duration, len(s.durations))
			copy(sorted, s.durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			fm.AvgDuration = average(sorted)
			fm.P50Duration = percentile(sorted, 0.50)
			fm.P95Duration = percentile(sorted, 0.95)
			fm.P99Duration = percentile(sorted, 0.99)
		}

		snap.Filters[name] = fm
	}

	return snap
}

// Registry returns the Prometheus registry the series are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// NewMetrics registers the proxy series on a fresh Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Delegate lookups that produced a filter.",
		}, []string{"filter"}),
		initializations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "initializations_total",
			Help:      "Successful delegate Init calls.",
		}, []string{"filter"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests forwarded to a delegate.",
		}, []string{"filter"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Requests that failed in the proxy or its delegate.",
		}, []string{"filter", "reason"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time spent in the delegate's DoFilter, including the rest of the chain.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"filter"}),
		filters:   make(map[string]*filterStats),
		startTime: time.Now(),
	}

	m.registry.MustRegister(m.resolutions, m.initializations, m.requests, m.failures, m.duration)

	return m
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
