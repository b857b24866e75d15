// Copyright 2020 Daniel Erat <dan@erat.org>.
// All rights reserved.

package impute

import (
	"fmt"
	"math"
	"sort"

	"github.com/derat/contacts/sampler"
	"github.com/derat/contacts/survey"
)

// ageRange is an inclusive [low, high] pair used to group contacts for sampling.
type ageRange struct{ low, high int }

func sortedRanges(m map[ageRange][]int) []ageRange {
	keys := make([]ageRange, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].low != keys[j].low {
			return keys[i].low < keys[j].low
		}
		return keys[i].high < keys[j].high
	})
	return keys
}

// Contacts returns a copy of tbl's contacts with AgeLow, AgeHigh, and AgeEst set.
// Contacts with unknown ages are dropped if the engine uses UnknownRemove.
// All random draws come from src and are made in a fixed order, so a seeded
// source produces reproducible output.
func (e *Engine) Contacts(tbl survey.ContactTable, src sampler.Source) ([]survey.Contact, error) {
	cs, err := e.deriveRanges(tbl)
	if err != nil {
		return nil, err
	}

	// Indexes of contacts awaiting a sampled age, keyed by range.
	pending := make(map[ageRange][]int)
	var unknown []int

	for i := range cs {
		c := &cs[i]
		switch {
		case c.AgeExact != survey.NoAge:
			c.AgeEst = c.AgeExact
			e.metrics.AddResolved("exact", 1)
		case !c.RangeKnown():
			unknown = append(unknown, i)
		case c.AgeLow == c.AgeHigh:
			c.AgeEst = c.AgeLow
			e.metrics.AddResolved("point", 1)
		case e.opts.ContactAgeProcess == Mean:
			// Halves round to even.
			c.AgeEst = int(math.RoundToEven(float64(c.AgeLow+c.AgeHigh) / 2))
			e.metrics.AddResolved(string(Mean), 1)
		default:
			r := ageRange{c.AgeLow, c.AgeHigh}
			pending[r] = append(pending[r], i)
		}
	}

	for _, r := range sortedRanges(pending) {
		idxs := pending[r]
		var weights []float64
		ages := make([]int, 0, r.high-r.low+1)
		if e.opts.ContactAgeProcess == SamplePopDist {
			ages, weights = e.pop.Weights(r.low, r.high)
		} else {
			for a := r.low; a <= r.high; a++ {
				ages = append(ages, a)
			}
		}
		drawn, err := sampler.Sample(src, ages, len(idxs), true, weights)
		if err != nil {
			return nil, fmt.Errorf("failed sampling ages in [%d, %d]: %v", r.low, r.high, err)
		}
		for j, i := range idxs {
			cs[i].AgeEst = drawn[j]
		}
		e.metrics.AddResolved(string(e.opts.ContactAgeProcess), len(idxs))
	}

	if len(unknown) == 0 {
		return cs, nil
	}
	switch e.opts.UnknownAgeProcess {
	case UnknownRemove:
		e.logger.Debug("Removing contacts with unknown age", "count", len(unknown))
		e.metrics.AddRemoved(len(unknown))
		return removeUnknown(cs), nil
	case UnknownSamplePopDist:
		if err := e.samplePopulation(cs, unknown, src); err != nil {
			return nil, err
		}
		e.metrics.AddResolved(string(UnknownSamplePopDist), len(unknown))
	case UnknownSamplePartDist:
		if err := e.sampleParticipantRanges(cs, unknown, src); err != nil {
			return nil, err
		}
		e.metrics.AddResolved(string(UnknownSamplePartDist), len(unknown))
	}
	return cs, nil
}

// deriveRanges copies tbl's contacts and fills their AgeLow and AgeHigh fields,
// either from the numeric age columns or by joining against e.opts.AgeGroups.
func (e *Engine) deriveRanges(tbl survey.ContactTable) ([]survey.Contact, error) {
	var groups map[string]survey.AgeGroup
	if e.opts.AgeGroups != nil {
		if !tbl.Columns.Has(survey.ColAgeGroup) {
			return nil, fmt.Errorf("%w: contacts lack an age-group column to join against", survey.ErrSchema)
		}
		groups = e.opts.AgeGroups.ByName()
	} else if !tbl.Columns.Has(survey.ColAgeRange) {
		return nil, fmt.Errorf("%w: contacts lack exact, min, and max age columns", survey.ErrSchema)
	}
	hasExact := tbl.Columns.Has(survey.ColAgeExact)

	cs := make([]survey.Contact, len(tbl.Contacts))
	copy(cs, tbl.Contacts)
	for i := range cs {
		c := &cs[i]
		c.AgeLow, c.AgeHigh, c.AgeEst = survey.NoAge, survey.NoAge, survey.NoAge
		if !hasExact {
			c.AgeExact = survey.NoAge
		}
		switch {
		case c.AgeExact != survey.NoAge:
			c.AgeLow, c.AgeHigh = c.AgeExact, c.AgeExact
		case groups != nil:
			if g, ok := groups[c.AgeGroup]; ok {
				c.AgeLow, c.AgeHigh = g.Low, g.High
			}
		case c.AgeEstMin != survey.NoAge && c.AgeEstMax != survey.NoAge:
			c.AgeLow, c.AgeHigh = c.AgeEstMin, c.AgeEstMax
			if c.AgeLow > c.AgeHigh {
				c.AgeLow, c.AgeHigh = c.AgeHigh, c.AgeLow
			}
		}
	}
	return cs, nil
}

func removeUnknown(cs []survey.Contact) []survey.Contact {
	out := cs[:0]
	for _, c := range cs {
		if c.RangeKnown() {
			out = append(out, c)
		}
	}
	return out
}

// samplePopulation assigns ages drawn from the whole population to cs[idxs].
func (e *Engine) samplePopulation(cs []survey.Contact, idxs []int, src sampler.Source) error {
	ages, totals := e.pop.Ages()
	drawn, err := sampler.Sample(src, ages, len(idxs), true, totals)
	if err != nil {
		return fmt.Errorf("failed sampling from population: %v", err)
	}
	for j, i := range idxs {
		cs[i].AgeEst = drawn[j]
	}
	return nil
}

// sampleParticipantRanges resolves unknown contacts in cs[unknown] using the
// age ranges of each participant's known contacts. A range is drawn for each
// unknown contact (weighted by how often the participant reported it) and
// then an age is drawn from it by population. Participants without any known
// contacts fall back to the whole population.
func (e *Engine) sampleParticipantRanges(cs []survey.Contact, unknown []int, src sampler.Source) error {
	known := make(map[string][]ageRange)
	for _, c := range cs {
		if c.RangeKnown() {
			known[c.PartID] = append(known[c.PartID], ageRange{c.AgeLow, c.AgeHigh})
		}
	}
	byPart := make(map[string][]int)
	for _, i := range unknown {
		byPart[cs[i].PartID] = append(byPart[cs[i].PartID], i)
	}
	ids := make([]string, 0, len(byPart))
	for id := range byPart {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var noKnown []int
	pending := make(map[ageRange][]int)
	for _, id := range ids {
		idxs := byPart[id]
		ranges := known[id]
		if len(ranges) == 0 {
			noKnown = append(noKnown, idxs...)
			continue
		}
		drawn, err := sampler.Sample(src, ranges, len(idxs), true, nil)
		if err != nil {
			return fmt.Errorf("failed sampling age ranges for participant %q: %v", id, err)
		}
		for j, i := range idxs {
			r := drawn[j]
			cs[i].AgeLow, cs[i].AgeHigh = r.low, r.high
			pending[r] = append(pending[r], i)
		}
	}

	for _, r := range sortedRanges(pending) {
		idxs := pending[r]
		ages, weights := e.pop.Weights(r.low, r.high)
		drawn, err := sampler.Sample(src, ages, len(idxs), true, weights)
		if err != nil {
			return fmt.Errorf("failed sampling ages in [%d, %d]: %v", r.low, r.high, err)
		}
		for j, i := range idxs {
			cs[i].AgeEst = drawn[j]
		}
	}

	if len(noKnown) > 0 {
		e.logger.Debug("Sampling unknown contact ages from population", "count", len(noKnown))
		return e.samplePopulation(cs, noKnown, src)
	}
	return nil
}
