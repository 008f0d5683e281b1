// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchesTotal counts page fetch outcomes, labeled by source and
	// outcome (ok, not_found, off_domain, error).
	FetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_fetches_total",
		Help: "Total page fetches, labeled by source and outcome.",
	}, []string{"source", "outcome"})

	// BytesFetchedTotal counts body bytes fetched per source.
	BytesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_bytes_fetched_total",
		Help: "Total body bytes fetched, labeled by source.",
	}, []string{"source"})

	// RetriesTotal counts transient-failure retries per source.
	RetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_fetch_retries_total",
		Help: "Total fetch retries after transient failures.",
	}, []string{"source"})

	// ProbesTotal counts boundary probes by outcome (found, gone, error).
	ProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_probes_total",
		Help: "Total boundary probes, labeled by source and outcome.",
	}, []string{"source", "outcome"})

	// ArticlesTotal counts records that survived extraction.
	ArticlesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_articles_total",
		Help: "Total articles successfully extracted.",
	}, []string{"source"})

	// ExtractionFailuresTotal counts pages whose extraction soft-failed.
	ExtractionFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_extraction_failures_total",
		Help: "Total pages that failed field extraction.",
	}, []string{"source"})

	// EmptyArticlesTotal counts pages that yielded an empty body text.
	EmptyArticlesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_empty_articles_total",
		Help: "Total pages that produced an empty article.",
	}, []string{"source"})

	// PipelineProgress reports completed items of the current harvest run.
	PipelineProgress = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "harvester_pipeline_completed",
		Help: "Items completed by the current harvest pipeline run.",
	}, []string{"source"})

	// PhaseDurationSeconds observes per-item phase latency
	// (fetch, parse, extract).
	PhaseDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "harvester_phase_duration_seconds",
		Help:    "Per-item duration of each pipeline phase.",
		Buckets: prometheus.DefBuckets,
	}, []string{"source", "phase"})
)
