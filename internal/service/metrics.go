package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricJoins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matching_joins_total",
		Help: "Queue joins by outcome",
	}, []string{"outcome"})

	metricMatchTier = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matching_matches_by_tier_total",
		Help: "Matches by the search tier that produced them",
	}, []string{"tier"})

	metricClaimConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matching_claim_conflicts_total",
		Help: "Candidate claims lost to a concurrent join",
	})

	metricJoinLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "matching_join_latency_ms",
		Help:    "Time spent inside the queue unit of work",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	metricExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matching_waiting_expired_total",
		Help: "Waiting sessions ended by the TTL sweep",
	})
)
