package ping_worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pinger_attempts_total", Help: "Probe attempts by outcome",
	}, []string{"outcome"})
	mVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pinger_verdicts_total", Help: "Final verdicts by status",
	}, []string{"status"})
	mLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pinger_latency_seconds",
		Help:    "Latency of completed probe responses",
		Buckets: prometheus.DefBuckets,
	})
)

func outcomeLabel(kind string) string {
	if kind == "" {
		return "ok"
	}
	return kind
}
