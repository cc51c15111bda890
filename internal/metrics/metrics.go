package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ResolutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geo_resolutions_total",
		Help: "Resolved coordinates by method (polygon, centroid)",
	}, []string{"method"})
	UnresolvedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geo_unresolved_total",
		Help: "Coordinates that could not be resolved, by reason",
	}, []string{"reason"})
	ResolveDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "geo_resolve_duration_ms",
		Help:    "Resolve duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 5000},
	})
	ResultCacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geo_result_cache_hits_total",
		Help: "Resolve result cache hits by tier",
	}, []string{"tier"})
	GeometryLoadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geo_geometry_loads_total",
		Help: "Geometry file loads by result (ok, missing, malformed, error)",
	}, []string{"result"})
	GeometryCacheEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "geo_geometry_cache_entries",
		Help: "Geometry collections currently held in memory",
	})
	ReconcileRecordsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geo_reconcile_records_total",
		Help: "Records processed by reconciliation, by outcome",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(ResolutionsTotal)
	prometheus.MustRegister(UnresolvedTotal)
	prometheus.MustRegister(ResolveDurationMs)
	prometheus.MustRegister(ResultCacheHitsTotal)
	prometheus.MustRegister(GeometryLoadsTotal)
	prometheus.MustRegister(GeometryCacheEntries)
	prometheus.MustRegister(ReconcileRecordsTotal)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
