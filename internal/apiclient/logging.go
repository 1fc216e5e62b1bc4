package apiclient

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"queuehive/internal/metrics"
)

type loggingTransport struct {
	next    http.RoundTripper
	metrics *metrics.Metrics
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	duration := time.Since(start)

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	t.metrics.ObserveRequest(req.Method, status, duration)
	log.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", status).
		Int64("duration_ms", duration.Milliseconds()).
		Str("request_id", req.Header.Get("X-Request-ID")).
		Msg("request")
	return resp, err
}
