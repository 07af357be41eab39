package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "county_requests_total",
		Help: "Total number of API requests by route",
	}, []string{"route"})
	RequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "county_request_duration_ms",
		Help:    "Request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	}, []string{"route"})
	ResolveTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "county_resolve_total",
		Help: "Resolved coordinates by outcome (matched, no_match, cancelled)",
	}, []string{"status"})
	InvalidCoordinatesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "county_invalid_coordinates_total",
		Help: "Total number of rejected coordinates",
	})
	BatchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "county_batch_size",
		Help:    "Number of coordinates per batch request",
		Buckets: []float64{1, 10, 100, 1000, 10000, 100000},
	})
	CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "county_cache_hits_total",
		Help: "Cache hits by layer (lru, redis)",
	}, []string{"layer"})
	CacheMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "county_cache_misses_total",
		Help: "Cache misses by layer (lru, redis)",
	}, []string{"layer"})
	Regions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "county_regions",
		Help: "Number of region records loaded",
	})
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(ResolveTotal)
	prometheus.MustRegister(InvalidCoordinatesTotal)
	prometheus.MustRegister(BatchSize)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(Regions)
}

// 文档注释：返回 Prometheus 指标监听器
// 背景：统一暴露注册指标到 {base}/metrics，供 Prometheus 抓取；在 api 路由中挂载。
func Handler() http.Handler { return promhttp.Handler() }
