package portfolio

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var loadsCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ethfolio",
		Name:      "loads_total",
		Help:      "Portfolio load sequences by outcome",
	},
	[]string{"outcome", "network"},
)

func collectLoad(outcome, network string) {
	loadsCounter.WithLabelValues(outcome, network).Inc()
}
