package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BasketMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "basket_mutations_total",
		Help: "Basket mutations by operation",
	}, []string{"op"})

	OrdersSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_submitted_total",
		Help: "Total number of order submissions",
	})

	OrderRebuildsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_rebuilds_total",
		Help: "Total number of stale orders rebuilt from a basket",
	})

	OrderLinesDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_lines_dropped_total",
		Help: "Basket entries dropped during rebuild because the product no longer resolves",
	})

	OrdersPaidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_paid_total",
		Help: "Total number of orders marked paid",
	})

	LoginMergesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "login_merges_total",
		Help: "Login reconciliations by branch taken",
	}, []string{"branch"})

	CatalogCacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_cache_requests_total",
		Help: "Catalog cache lookups by result",
	}, []string{"result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

// GinMiddleware records request count and latency keyed by route template.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}
