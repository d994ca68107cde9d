package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	scanStarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "reconsole",
			Subsystem: "scan",
			Name:      "starts_total",
			Help:      "Number of admitted and launched scans.",
		},
	)
	scanRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reconsole",
			Subsystem: "scan",
			Name:      "rejections_total",
			Help:      "Number of start requests that did not launch a scan, by reason.",
		}, []string{"reason"},
	)
	scanStops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "reconsole",
			Subsystem: "scan",
			Name:      "stops_total",
			Help:      "Number of interrupt signals delivered to a scan process group.",
		},
	)
	scanRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "reconsole",
			Subsystem: "scan",
			Name:      "running",
			Help:      "1 while the scan slot is occupied (running or draining), 0 otherwise.",
		},
	)
	scanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "reconsole",
			Subsystem: "scan",
			Name:      "duration_seconds",
			Help:      "Wall time from launch until the scan slot was released.",
			Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600, 7200, 14400},
		},
	)
	consoleLines = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "reconsole",
			Subsystem: "console",
			Name:      "lines_total",
			Help:      "Number of scan output lines delivered to the console stream.",
		},
	)
	watchEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reconsole",
			Subsystem: "watch",
			Name:      "events_total",
			Help:      "Raw filesystem events seen by watch sessions, by debounce result.",
		}, []string{"result"},
	)
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "reconsole",
			Subsystem: "notify",
			Name:      "queue_depth",
			Help:      "Change events waiting to be dispatched to subscribers.",
		},
	)
	subscribers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "reconsole",
			Subsystem: "stream",
			Name:      "subscribers",
			Help:      "Currently attached push-stream subscribers.",
		}, []string{"stream"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{scanStarts, scanRejections, scanStops, scanRunning, scanDuration, consoleLines, watchEvents, queueDepth, subscribers}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncScanStart() {
	if regOK.Load() {
		scanStarts.Inc()
	}
}

func IncScanRejection(reason string) {
	if regOK.Load() {
		scanRejections.WithLabelValues(reason).Inc()
	}
}

func IncScanStop() {
	if regOK.Load() {
		scanStops.Inc()
	}
}

func SetScanRunning(occupied bool) {
	if regOK.Load() {
		var v float64
		if occupied {
			v = 1
		}
		scanRunning.Set(v)
	}
}

func ObserveScanDuration(seconds float64) {
	if regOK.Load() {
		scanDuration.Observe(seconds)
	}
}

func IncConsoleLine() {
	if regOK.Load() {
		consoleLines.Inc()
	}
}

func IncWatchEvent(emitted bool) {
	if regOK.Load() {
		result := "suppressed"
		if emitted {
			result = "emitted"
		}
		watchEvents.WithLabelValues(result).Inc()
	}
}

func SetQueueDepth(n int) {
	if regOK.Load() {
		queueDepth.Set(float64(n))
	}
}

func SetSubscribers(stream string, n int) {
	if regOK.Load() {
		subscribers.WithLabelValues(stream).Set(float64(n))
	}
}
