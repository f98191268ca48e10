package restapi

import (
	"net/http"
	"strconv"
	"time"
)

// instrument records request count and latency for one route. The label is
// the route pattern, not the raw path, so stop codes do not explode the
// metric cardinality.
func (api *RestAPI) instrument(pattern string, next http.Handler) http.Handler {
	if api.Metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		api.Metrics.HTTPRequestsTotal.
			WithLabelValues(r.Method, pattern, strconv.Itoa(wrapped.statusCode)).
			Inc()
		api.Metrics.HTTPRequestDuration.
			WithLabelValues(r.Method, pattern).
			Observe(time.Since(start).Seconds())
	})
}
