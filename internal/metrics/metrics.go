// Package metrics defines all Prometheus collectors in one place so the
// metric surface of the tool is reviewable at a glance.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "quarry"

var (
	// RulesFinished counts rules by terminal state per engine run.
	// States: built, reused, failed, blocked.
	RulesFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "rules_finished_total",
		Help:      "Number of rules that reached a terminal state, by state.",
	}, []string{"state"})

	// StepsExecuted counts individual build steps actually run (cache
	// misses only; a fully warm build executes zero steps).
	StepsExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "steps_executed_total",
		Help:      "Number of build steps executed.",
	})

	// CacheLookups counts artifact store lookups by outcome: hit or miss.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Number of artifact cache lookups, by outcome.",
	}, []string{"outcome"})

	// BuildDuration observes wall time per freshly built rule.
	BuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "rule_build_duration_seconds",
		Help:      "Wall time spent executing a rule's steps.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	})
)
