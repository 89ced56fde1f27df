// Package metrics holds the Prometheus collectors shared by the HTTP layer,
// the bid engine and the payment adapter.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "umoja_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	HTTPLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "umoja_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"method", "route"})

	// BidTransitions counts bid status changes, including cascade rejections.
	BidTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "umoja_bid_transitions_total",
		Help: "Bid status transitions",
	}, []string{"to"})

	CascadeRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "umoja_bid_cascade_rejections_total",
		Help: "Pending bids rejected because an acceptance left too little inventory",
	})

	GatewayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "umoja_payment_gateway_requests_total",
		Help: "Payment initiation calls by outcome",
	}, []string{"outcome"})

	GatewayLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "umoja_payment_gateway_duration_seconds",
		Help:    "Payment gateway call latency",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	Webhooks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "umoja_payment_webhooks_total",
		Help: "Payment webhook deliveries by result",
	}, []string{"result"})

	PaymentTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "umoja_payment_transitions_total",
		Help: "Payment status transitions",
	}, []string{"to"})
)

// Middleware records request counts and latency per route template.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			HTTPLatency.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			HTTPRequests.WithLabelValues(method, route, strconv.Itoa(c.Response().Status)).Inc()
			return nil
		}
	}
}

// Handler serves the default registry.
func Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}
