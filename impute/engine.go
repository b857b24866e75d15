// Copyright 2020 Daniel Erat <dan@erat.org>.
// All rights reserved.

// Package impute resolves point estimates for contact and participant ages.
package impute

import (
	"fmt"
	"log/slog"

	"github.com/derat/contacts/metrics"
	"github.com/derat/contacts/population"
	"github.com/derat/contacts/survey"
)

// ContactAgeProcess describes how contacts with a known, non-degenerate age
// range are given a point estimate.
type ContactAgeProcess string

const (
	// Mean uses the rounded midpoint of the range.
	Mean ContactAgeProcess = "mean"
	// SampleUniform draws uniformly from the range.
	SampleUniform ContactAgeProcess = "sample_uniform"
	// SamplePopDist draws from the range weighted by population.
	SamplePopDist ContactAgeProcess = "sample_popdist"
)

// UnknownAgeProcess describes how contacts without any age information are handled.
type UnknownAgeProcess string

const (
	// UnknownSamplePartDist draws from the age ranges of the participant's other
	// contacts, or from the whole population if there aren't any.
	UnknownSamplePartDist UnknownAgeProcess = "sample_partdist"
	// UnknownSamplePopDist draws from the whole population.
	UnknownSamplePopDist UnknownAgeProcess = "sample_popdist"
	// UnknownRemove drops the contacts.
	UnknownRemove UnknownAgeProcess = "remove"
)

// Options configures contact age imputation.
type Options struct {
	ContactAgeProcess ContactAgeProcess
	UnknownAgeProcess UnknownAgeProcess

	// AgeGroups, if non-nil, is joined against contacts' AgeGroup labels to
	// derive age ranges instead of using the numeric age columns.
	AgeGroups survey.AgeGroups
}

// DefaultOptions returns population-weighted sampling for both known and unknown ranges.
func DefaultOptions() Options {
	return Options{
		ContactAgeProcess: SamplePopDist,
		UnknownAgeProcess: UnknownSamplePartDist,
	}
}

// Validate returns an error if o has unsupported settings.
func (o Options) Validate() error {
	switch o.ContactAgeProcess {
	case Mean, SampleUniform, SamplePopDist:
	default:
		return fmt.Errorf("%w: unknown contact age process %q", survey.ErrConfiguration, o.ContactAgeProcess)
	}
	switch o.UnknownAgeProcess {
	case UnknownSamplePartDist, UnknownSamplePopDist, UnknownRemove:
	default:
		return fmt.Errorf("%w: unknown unknown-age process %q", survey.ErrConfiguration, o.UnknownAgeProcess)
	}
	if o.AgeGroups != nil {
		if err := o.AgeGroups.Validate(); err != nil {
			return fmt.Errorf("%w: %v", survey.ErrConfiguration, err)
		}
	}
	return nil
}

// Engine imputes ages against a single population distribution.
// It holds no mutable state and may be shared between goroutines.
type Engine struct {
	pop     population.Distribution
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures an Engine.
type Option func(e *Engine)

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics sets collectors that record imputation outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New returns an Engine that samples from pop.
func New(pop population.Distribution, opts Options, eopts ...Option) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{pop: pop, opts: opts, logger: slog.Default()}
	for _, o := range eopts {
		o(e)
	}
	return e, nil
}
