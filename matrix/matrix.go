// Copyright 2020 Daniel Erat <dan@erat.org>.
// All rights reserved.

// Package matrix aggregates imputed contacts into age-stratified contact matrices.
package matrix

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/derat/contacts/metrics"
	"github.com/derat/contacts/population"
	"github.com/derat/contacts/survey"
	"gonum.org/v1/gonum/mat"
)

// Day-of-week weights. Contacts are reported for a single day, so weekday
// reports stand in for five days of the week and weekend reports for two.
const (
	weekdayWeight = 5
	weekendWeight = 2
)

// Options controls how the matrix is corrected after aggregation.
type Options struct {
	// WeightDayOfWeek weights weekday reports by 5 and weekend reports by 2.
	// If false, all reports have weight 1.
	WeightDayOfWeek bool
	// UseReciprocalForMissing fills missing cells from their transposed cells.
	UseReciprocalForMissing bool
	// Symmetric adjusts the matrix so contacts are reciprocal given group populations.
	Symmetric bool
	// ReturnRaw skips all corrections.
	ReturnRaw bool
}

// DefaultOptions returns options with day-of-week weighting and no corrections.
func DefaultOptions() Options {
	return Options{WeightDayOfWeek: true}
}

// Matrix holds average daily contact rates between age groups.
type Matrix struct {
	// Groups labels both rows and columns.
	Groups []string
	// Data.At(i, j) is the average number of daily contacts that a participant
	// in group j reports with people in group i. Missing cells hold NaN.
	Data *mat.Dense
	// Participants holds the weighted number of participants in each group.
	Participants []float64
}

// At returns the rate for contact group i and participant group j.
// ok is false if the cell is missing.
func (m *Matrix) At(i, j int) (v float64, ok bool) {
	v = m.Data.At(i, j)
	return v, !math.IsNaN(v)
}

// Builder builds contact matrices.
type Builder struct {
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Builder.
type Option func(b *Builder)

// WithLogger sets the logger used for warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// WithMetrics sets collectors that record build outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Builder) {
		b.metrics = m
	}
}

// NewBuilder returns a Builder using opts.
func NewBuilder(opts Options, bopts ...Option) *Builder {
	b := &Builder{opts: opts, logger: slog.Default()}
	for _, o := range bopts {
		o(b)
	}
	return b
}

func (b *Builder) weight(wd survey.Weekday) float64 {
	switch {
	case !b.opts.WeightDayOfWeek:
		return 1
	case wd.Weekend():
		return weekendWeight
	default:
		return weekdayWeight // unknown days count as weekdays
	}
}

// Build returns the contact matrix for contacts (with AgeEst resolved) and
// parts (with Age resolved), bucketed by groups. pop is only used when
// b's options request a symmetric matrix.
//
// If contacts or parts is empty, a warning is logged and a nil Matrix is
// returned without an error.
func (b *Builder) Build(contacts []survey.Contact, parts []survey.Participant,
	pop population.Distribution, groups survey.AgeGroups) (*Matrix, error) {
	if len(groups) == 0 {
		return nil, fmt.Errorf("%w: no age groups", survey.ErrConfiguration)
	}
	if err := groups.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", survey.ErrConfiguration, err)
	}
	if len(contacts) == 0 || len(parts) == 0 {
		b.logger.Warn("No data to build contact matrix from",
			"contacts", len(contacts), "participants", len(parts))
		b.metrics.IncMatrix("empty")
		return nil, nil
	}

	n := len(groups)
	partGroups := make(map[string]int, len(parts))
	partDays := make(map[string]survey.Weekday, len(parts))
	partWeights := make([]float64, n)
	for _, p := range parts {
		g, ok := groups.Find(p.Age)
		if !ok {
			continue
		}
		partGroups[p.PartID] = g
		partDays[p.PartID] = p.Weekday
		partWeights[g] += b.weight(p.Weekday)
	}

	// Count contacts separately for each weight and then combine the weighted counts.
	buckets := make(map[float64]*mat.Dense)
	skipped := 0
	for _, c := range contacts {
		pg, ok := partGroups[c.PartID]
		if !ok {
			skipped++
			continue
		}
		cg, ok := groups.Find(c.AgeEst)
		if !ok {
			skipped++
			continue
		}
		wd := c.Weekday
		if wd == survey.WeekdayUnknown {
			wd = partDays[c.PartID]
		}
		w := b.weight(wd)
		bm := buckets[w]
		if bm == nil {
			bm = mat.NewDense(n, n, nil)
			buckets[w] = bm
		}
		bm.Set(cg, pg, bm.At(cg, pg)+1)
	}
	if skipped > 0 {
		b.logger.Debug("Skipped contacts outside age groups", "count", skipped)
	}

	weights := make([]float64, 0, len(buckets))
	for w := range buckets {
		weights = append(weights, w)
	}
	sort.Float64s(weights)
	counts := mat.NewDense(n, n, nil)
	for _, w := range weights {
		var scaled mat.Dense
		scaled.Scale(w, buckets[w])
		counts.Add(counts, &scaled)
	}

	raw := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if partWeights[j] == 0 {
				raw.Set(i, j, math.NaN())
			} else {
				raw.Set(i, j, counts.At(i, j)/partWeights[j])
			}
		}
	}

	m := &Matrix{Groups: groups.Names(), Data: raw, Participants: partWeights}
	b.metrics.IncMatrix("ok")
	if b.opts.ReturnRaw {
		return m, nil
	}
	if b.opts.UseReciprocalForMissing {
		m.Data = fillReciprocal(m.Data)
	}
	if b.opts.Symmetric {
		m.Data = symmetrize(m.Data, groupPopulations(pop, groups))
	}
	return m, nil
}

// fillReciprocal returns a copy of m with each missing cell [i, j] replaced by m[j, i].
func fillReciprocal(m *mat.Dense) *mat.Dense {
	out := mat.DenseCopyOf(m)
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if math.IsNaN(m.At(i, j)) {
				out.Set(i, j, m.At(j, i))
			}
		}
	}
	return out
}

// groupPopulations returns the total population within each group's bounds.
func groupPopulations(pop population.Distribution, groups survey.AgeGroups) []float64 {
	totals := make([]float64, len(groups))
	for i, g := range groups {
		totals[i] = pop.Total(g.Low, g.High)
	}
	return totals
}

// symmetrize returns 0.5 * (m + mᵀ ⊙ pᵀ), where p[i, j] = pops[i] / pops[j].
// Afterwards m[i, j] * pops[i] == m[j, i] * pops[j]. Ratios involving an empty
// group are missing.
func symmetrize(m *mat.Dense, pops []float64) *mat.Dense {
	n := len(pops)
	ratios := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if pops[i] == 0 || pops[j] == 0 {
				ratios.Set(i, j, math.NaN())
			} else {
				ratios.Set(i, j, pops[i]/pops[j])
			}
		}
	}

	var adj mat.Dense
	adj.MulElem(m.T(), ratios.T())
	var out mat.Dense
	out.Add(m, &adj)
	out.Scale(0.5, &out)
	return &out
}
