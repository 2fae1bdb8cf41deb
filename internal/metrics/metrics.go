package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Confirmation outcomes.
const (
	OutcomeConfirmed        = "confirmed"
	OutcomeAlreadyConfirmed = "already_confirmed"
	OutcomeRejected         = "rejected"
	OutcomeError            = "error"
)

type Metrics struct {
	Requests      *prometheus.CounterVec
	LatencyMS     *prometheus.HistogramVec
	Confirmations *prometheus.CounterVec
	StockDeducted prometheus.Counter

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg; pass prometheus.NewRegistry() in tests.
func New(reg *prometheus.Registry) *Metrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "storefront",
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})
	confirmations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "payment_confirmations_total",
		Help:      "Payment confirmation attempts by outcome.",
	}, []string{"outcome"})
	deducted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "stock_units_deducted_total",
		Help:      "Units of stock deducted by confirmed orders.",
	})

	reg.MustRegister(requests, latency, confirmations, deducted)
	return &Metrics{
		Requests:      requests,
		LatencyMS:     latency,
		Confirmations: confirmations,
		StockDeducted: deducted,
		gatherer:      reg,
	}
}

// ObserveConfirmation counts one confirmation attempt; a nil receiver is a no-op.
func (m *Metrics) ObserveConfirmation(outcome string, units int64) {
	if m == nil {
		return
	}
	m.Confirmations.WithLabelValues(outcome).Inc()
	if units > 0 {
		m.StockDeducted.Add(float64(units))
	}
}

// Middleware records request count and latency per route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		handler := c.FullPath()
		if handler == "" {
			handler = "unmatched"
		}
		m.Requests.WithLabelValues(handler, strconv.Itoa(c.Writer.Status())).Inc()
		m.LatencyMS.WithLabelValues(handler).Observe(float64(time.Since(start).Milliseconds()))
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
