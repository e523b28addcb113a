package alchemy

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const aliasHeader = "alias"

var requestsHistogram = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "ethfolio",
		Name:      "upstream_requests",
		Help:      "Time taken by upstream data API requests",
		Buckets:   []float64{.005, .01, .025, .05, .075, .1, .15, .2, .25, .5, 1, 2.5, 5, 10, 15, 30},
	},
	[]string{"client", "method", "error"},
)

func collectRequestsMetric(client, method string, err error, start time.Time) {
	requestsHistogram.
		WithLabelValues(client, method, errLabelValue(err)).
		Observe(time.Since(start).Seconds())
}

func errLabelValue(err error) string {
	if err != nil {
		return "true"
	}
	return "false"
}

// RequestWatcher is an http.RoundTripper that records the latency of every
// upstream request, labelled by the alias header set on the request.
type RequestWatcher struct {
	name string
	next http.RoundTripper
}

func NewRequestWatcher(name string, next http.RoundTripper) *RequestWatcher {
	if next == nil {
		next = http.DefaultTransport
	}
	return &RequestWatcher{
		name: name,
		next: next,
	}
}

func (m *RequestWatcher) RoundTrip(r *http.Request) (*http.Response, error) {
	var err error
	defer func(start time.Time) {
		collectRequestsMetric(m.name, r.Header.Get(aliasHeader), err, start)
	}(time.Now())

	resp, err := m.next.RoundTrip(r)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		err = errStatus(resp.StatusCode)
	}
	return resp, nil
}

type errStatus int

func (e errStatus) Error() string {
	return http.StatusText(int(e))
}
