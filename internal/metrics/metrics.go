package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	reqTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	reqInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "In-flight HTTP requests",
		},
	)

	reqDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Cache hits by record kind",
		},
		[]string{"kind"},
	)

	cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Cache misses by record kind",
		},
		[]string{"kind"},
	)

	cacheItems = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cache_items",
			Help: "Approximate number of items in cache",
		},
	)

	eventsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_events_ingested_total",
			Help: "Normalized gateway events by kind",
		},
		[]string{"kind"},
	)

	fanoutDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanout_messages_delivered_total",
			Help: "Messages delivered to realtime subscribers",
		},
		[]string{"event"},
	)

	fanoutSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fanout_subscribers",
			Help: "Currently connected realtime subscribers",
		},
	)
)

func init() {
	Registry.MustRegister(
		reqTotal, reqInFlight, reqDuration,
		cacheHits, cacheMisses, cacheItems,
		eventsIngested, fanoutDelivered, fanoutSubscribers,
	)
}

// CacheHit records a cache hit for a record kind ("profile" or "presence")
func CacheHit(kind string) { cacheHits.WithLabelValues(kind).Inc() }

// CacheMiss records a cache miss for a record kind
func CacheMiss(kind string) { cacheMisses.WithLabelValues(kind).Inc() }

// EventIngested records one normalized gateway event
func EventIngested(kind string) { eventsIngested.WithLabelValues(kind).Inc() }

// FanoutDelivered records one message handed to a subscriber
func FanoutDelivered(event string) { fanoutDelivered.WithLabelValues(event).Inc() }

// SetSubscribers tracks the live subscriber count
func SetSubscribers(n int) { fanoutSubscribers.Set(float64(n)) }

// CacheSizer provides the cache's approximate item count
type CacheSizer interface{ Size() int }

// UpdateCacheItems gauges current cache size
func UpdateCacheItems(c CacheSizer) {
	if c == nil {
		return
	}
	cacheItems.Set(float64(c.Size()))
}

// Middleware instruments HTTP requests
func Middleware(route string, next http.Handler, sizer CacheSizer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqInFlight.Inc()
		defer reqInFlight.Dec()

		rw := &statusRecorder{ResponseWriter: w, status: 200}
		next.ServeHTTP(rw, r)

		dur := time.Since(start).Seconds()
		reqDuration.WithLabelValues(r.Method, route).Observe(dur)
		reqTotal.WithLabelValues(r.Method, route, http.StatusText(rw.status)).Inc()

		UpdateCacheItems(sizer)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack delegates to the wrapped writer so websocket upgrades keep
// working behind the middleware.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("underlying writer does not support hijacking")
	}
	return hj.Hijack()
}

// Unwrap exposes the wrapped writer for http.ResponseController
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Handler returns a promhttp handler for the Registry
func Handler() http.Handler { return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}) }
