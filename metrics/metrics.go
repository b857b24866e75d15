// Copyright 2020 Daniel Erat <dan@erat.org>.
// All rights reserved.

// Package metrics counts what the pipeline did during a run.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for imputation and matrix building.
// All methods are no-ops on a nil *Metrics.
type Metrics struct {
	// Contacts whose age was resolved, by method
	// ("exact", "point", "mean", "sample_uniform", "sample_popdist", "sample_partdist").
	ContactsResolved *prometheus.CounterVec

	// Contacts dropped because their age couldn't be resolved
	ContactsRemoved prometheus.Counter

	// Participants whose age was sampled or assigned
	ParticipantsImputed prometheus.Counter

	// Time spent resampling and imputing one bootstrap replicate
	ReplicateDuration prometheus.Histogram

	// Matrix build attempts by outcome ("ok", "empty")
	MatricesBuilt *prometheus.CounterVec
}

// New creates collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ContactsResolved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "contacts_age_resolved_total",
			Help: "Contacts whose age estimate was resolved, by method",
		}, []string{"method"}),
		ContactsRemoved: f.NewCounter(prometheus.CounterOpts{
			Name: "contacts_age_removed_total",
			Help: "Contacts dropped because of unknown age",
		}),
		ParticipantsImputed: f.NewCounter(prometheus.CounterOpts{
			Name: "contacts_participants_imputed_total",
			Help: "Participants whose missing age was imputed",
		}),
		ReplicateDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "contacts_bootstrap_replicate_duration_seconds",
			Help:    "Duration of resampling and imputing a bootstrap replicate",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		MatricesBuilt: f.NewCounterVec(prometheus.CounterOpts{
			Name: "contacts_matrices_built_total",
			Help: "Contact matrix builds by outcome",
		}, []string{"result"}),
	}
}

// AddResolved records n contacts resolved by method.
func (m *Metrics) AddResolved(method string, n int) {
	if m != nil && n > 0 {
		m.ContactsResolved.WithLabelValues(method).Add(float64(n))
	}
}

// AddRemoved records n contacts dropped for unknown age.
func (m *Metrics) AddRemoved(n int) {
	if m != nil && n > 0 {
		m.ContactsRemoved.Add(float64(n))
	}
}

// AddParticipantsImputed records n participants with imputed ages.
func (m *Metrics) AddParticipantsImputed(n int) {
	if m != nil && n > 0 {
		m.ParticipantsImputed.Add(float64(n))
	}
}

// ObserveReplicate records the duration of one bootstrap replicate.
func (m *Metrics) ObserveReplicate(d time.Duration) {
	if m != nil {
		m.ReplicateDuration.Observe(d.Seconds())
	}
}

// IncMatrix records a matrix build outcome.
func (m *Metrics) IncMatrix(result string) {
	if m != nil {
		m.MatricesBuilt.WithLabelValues(result).Inc()
	}
}
