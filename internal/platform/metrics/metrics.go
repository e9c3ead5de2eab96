package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"venue-pickup-service/internal/platform/obs"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	HTTPRequests *prometheus.HistogramVec // method, route, code

	LedgerOps          *prometheus.CounterVec // op, result
	AssignmentConflict prometheus.Counter

	SuggestionDuration *prometheus.HistogramVec // source: llm|cache|fallback

	EventsPublished  prometheus.Counter
	EventPublishErrs prometheus.Counter
	EventsConnected  prometheus.Gauge
	PublishDuration  prometheus.Histogram
	MapsCalls        *prometheus.CounterVec // api, result
	MapsCacheLookups *prometheus.CounterVec // kind, result
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		HTTPRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pickup_http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"method", "route", "code"}),
		LedgerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pickup_ledger_operations_total",
			Help: "Ledger mutations by operation and result.",
		}, []string{"op", "result"}),
		AssignmentConflict: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pickup_assignment_conflicts_total",
			Help: "Attempts to add an attendee already riding another route.",
		}),
		SuggestionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pickup_suggestion_duration_seconds",
			Help:    "Time to produce route suggestions.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"source"}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pickup_events_published_total",
			Help: "Total ledger change events published.",
		}),
		EventPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pickup_event_publish_errors_total",
			Help: "Total ledger change event publish errors.",
		}),
		EventsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pickup_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pickup_publish_duration_seconds",
			Help:    "Duration to marshal and publish a change event.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		MapsCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pickup_maps_api_calls_total",
			Help: "Calls to the maps API by endpoint and result.",
		}, []string{"api", "result"}),
		MapsCacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pickup_maps_cache_lookups_total",
			Help: "Maps cache lookups by kind and result.",
		}, []string{"kind", "result"}),
	}

	reg.MustRegister(
		c.HTTPRequests,
		c.LedgerOps, c.AssignmentConflict,
		c.SuggestionDuration,
		c.EventsPublished, c.EventPublishErrs, c.EventsConnected, c.PublishDuration,
		c.MapsCalls, c.MapsCacheLookups,
	)

	return c
}

// LedgerOp records one ledger mutation.
func (c *Collector) LedgerOp(op string, err error, conflict bool) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.LedgerOps.WithLabelValues(op, result).Inc()
	if conflict {
		c.AssignmentConflict.Inc()
	}
}

func (c *Collector) SuggestionObserve(source string, d time.Duration) {
	c.SuggestionDuration.WithLabelValues(source).Observe(d.Seconds())
}

func (c *Collector) HTTPObserve(method, route string, code int, d time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Observe(d.Seconds())
}

func (c *Collector) NATSPublishedInc()              { c.EventsPublished.Inc() }
func (c *Collector) NATSPublishErrInc()             { c.EventPublishErrs.Inc() }
func (c *Collector) PublishObserve(d time.Duration) { c.PublishDuration.Observe(d.Seconds()) }

func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.EventsConnected.Set(1)
		return
	}
	c.EventsConnected.Set(0)
}

func (c *Collector) MapsCall(api string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.MapsCalls.WithLabelValues(api, result).Inc()
}

func (c *Collector) CacheLookup(kind string, hits, misses int) {
	c.MapsCacheLookups.WithLabelValues(kind, "hit").Add(float64(hits))
	c.MapsCacheLookups.WithLabelValues(kind, "miss").Add(float64(misses))
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(ctx context.Context, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	log := obs.Logger(ctx)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics server error")
		}
	}()
	log.WithField("addr", addr).Info("metrics listening")
	return srv
}
