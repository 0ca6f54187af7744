package mid

import (
	"context"
	"net/http"
	"time"

	"github.com/ardanlabs/mycoin/foundation/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Set of metrics maintained for every request.
var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mycoin_http_requests_total",
			Help: "Number of http requests handled.",
		},
		[]string{"method"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mycoin_http_request_duration_seconds",
			Help:    "Latency of http requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	errorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mycoin_http_errors_total",
		Help: "Number of http requests that ended in an error.",
	})

	panicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mycoin_http_panics_total",
		Help: "Number of panics recovered while handling http requests.",
	})
)

// Metrics updates program counters.
func Metrics() web.Middleware {

	// This is the actual middleware function to be executed.
	m := func(handler web.Handler) web.Handler {

		// Create the handler that will be attached in the middleware chain.
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			// Call the next handler.
			err := handler(ctx, w, r)

			requestsTotal.WithLabelValues(r.Method).Inc()
			if v, verr := web.GetValues(ctx); verr == nil {
				requestDuration.WithLabelValues(r.Method).Observe(time.Since(v.Now).Seconds())
			}

			// Increment the errors counter if an error occurred on this request.
			if err != nil {
				errorsTotal.Inc()
			}

			// Return the error so it can be handled further up the chain.
			return err
		}

		return h
	}

	return m
}
