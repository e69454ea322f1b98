package http

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"audiolink/internal/flood"
)

type Metrics struct {
	registry *prometheus.Registry

	ResolutionsTotal  *prometheus.CounterVec
	ResolutionTime    *prometheus.HistogramVec
	RelayFetchesTotal *prometheus.CounterVec
	RelayFetchTime    *prometheus.HistogramVec
	DiscoveriesTotal  *prometheus.CounterVec
	HTTPRequestsTotal *prometheus.CounterVec
	ActiveProviders   prometheus.Gauge
}

// NewMetrics creates the collectors on a private registry, so several instances can coexist.
func NewMetrics() *Metrics {
	metrics := &Metrics{
		registry: prometheus.NewRegistry(),
		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audiolink_resolutions_total",
				Help: "Total number of URL resolutions by provider and outcome",
			},
			[]string{"provider", "status"},
		),
		ResolutionTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "audiolink_resolution_duration_seconds",
				Help:    "Time spent resolving a URL",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		RelayFetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audiolink_upstream_fetches_total",
				Help: "Total number of upstream GETs by mode and status code",
			},
			[]string{"mode", "status"},
		),
		RelayFetchTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "audiolink_upstream_fetch_duration_seconds",
				Help:    "Time spent on a single upstream GET",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		DiscoveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audiolink_credential_discoveries_total",
				Help: "Total number of credential acquisitions by result",
			},
			[]string{"result"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audiolink_http_requests_total",
				Help: "Total number of API requests by route and status code",
			},
			[]string{"route", "status"},
		),
		ActiveProviders: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "audiolink_active_providers",
				Help: "Number of providers registered with the dispatcher",
			},
		),
	}

	metrics.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.ResolutionsTotal,
		metrics.ResolutionTime,
		metrics.RelayFetchesTotal,
		metrics.RelayFetchTime,
		metrics.DiscoveriesTotal,
		metrics.HTTPRequestsTotal,
		metrics.ActiveProviders,
	)

	return metrics
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordFetch(mode string, statusCode int, duration time.Duration) {
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	m.RelayFetchesTotal.WithLabelValues(mode, status).Inc()
	m.RelayFetchTime.WithLabelValues(mode).Observe(duration.Seconds())
}

func (m *Metrics) RecordDiscovery(result string) {
	m.DiscoveriesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordResolution(provider, status string, duration time.Duration) {
	m.ResolutionsTotal.WithLabelValues(provider, status).Inc()
	m.ResolutionTime.WithLabelValues(provider).Observe(duration.Seconds())
}

func (m *Metrics) RecordRequest(route string, statusCode int) {
	m.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(statusCode)).Inc()
}

func (m *Metrics) SetActiveProviders(count int) {
	m.ActiveProviders.Set(float64(count))
}

// TrackLimiter exports the limiter state. Only the first limiter tracked by m is exported.
func (m *Metrics) TrackLimiter(limiter *flood.Limiter) {
	_ = m.registry.Register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "audiolink_rate_limiter_clients",
			Help: "Number of clients tracked by the resolve rate limiter",
		},
		func() float64 { return float64(limiter.GetStats().ActiveClients) },
	))
	_ = m.registry.Register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "audiolink_rate_limiter_limit_per_minute",
			Help: "Resolve requests allowed per client per minute (0 when disabled)",
		},
		func() float64 { return float64(limiter.GetStats().LimitPerMinute) },
	))
}
