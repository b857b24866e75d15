// Copyright 2020 Daniel Erat <dan@erat.org>.
// All rights reserved.

package impute

import (
	"fmt"

	"github.com/derat/contacts/sampler"
	"github.com/derat/contacts/survey"
)

// Participants fills in missing ages of participants who reported age bounds.
// Each distinct pair of bounds is sampled separately, weighted by the
// population within those bounds. Participants whose upper bound is 1 are
// assigned age 0. If no participant needs an age, parts is returned as-is;
// otherwise a modified copy is returned.
func (e *Engine) Participants(parts []survey.Participant, src sampler.Source) ([]survey.Participant, error) {
	pending := make(map[ageRange][]int)
	for i, p := range parts {
		if p.Age != survey.NoAge || p.AgeEstMin == survey.NoAge || p.AgeEstMax == survey.NoAge {
			continue
		}
		r := ageRange{p.AgeEstMin, p.AgeEstMax}
		if r.low > r.high {
			r.low, r.high = r.high, r.low
		}
		pending[r] = append(pending[r], i)
	}
	if len(pending) == 0 {
		return parts, nil
	}

	out := make([]survey.Participant, len(parts))
	copy(out, parts)
	n := 0
	for _, r := range sortedRanges(pending) {
		idxs := pending[r]
		n += len(idxs)
		if r.high == 1 {
			// "Under 1" bins.
			for _, i := range idxs {
				out[i].Age = 0
			}
			continue
		}
		ages, weights := e.pop.Weights(r.low, r.high)
		drawn, err := sampler.Sample(src, ages, len(idxs), true, weights)
		if err != nil {
			return nil, fmt.Errorf("failed sampling participant ages in [%d, %d]: %v", r.low, r.high, err)
		}
		for j, i := range idxs {
			out[i].Age = drawn[j]
		}
	}
	e.logger.Debug("Imputed participant ages", "count", n, "ranges", len(pending))
	e.metrics.AddParticipantsImputed(n)
	return out, nil
}
