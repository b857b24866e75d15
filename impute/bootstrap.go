// Copyright 2020 Daniel Erat <dan@erat.org>.
// All rights reserved.

package impute

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/derat/contacts/sampler"
	"github.com/derat/contacts/survey"
	"golang.org/x/sync/errgroup"
)

// BootstrapType describes how contacts are resampled for each bootstrap replicate.
type BootstrapType string

const (
	// BootstrapAll resamples all contacts with replacement, ignoring participants.
	BootstrapAll BootstrapType = "bootstrap_all"
	// SampleParticipantsContacts resamples each replicate participant's own
	// contacts with replacement, preserving per-participant contact counts.
	// A participant drawn k times contributes k independent resamples.
	SampleParticipantsContacts BootstrapType = "sample_participants_contacts"
	// NoSample keeps the contacts of the replicate's participants unchanged.
	// Participants drawn more than once are kept once.
	NoSample BootstrapType = "no_sample"
)

// BootstrapOptions configures Engine.Bootstrap.
type BootstrapOptions struct {
	// Samples is the number of replicates. Zero produces a single imputation
	// of the unresampled contacts.
	Samples int
	Type    BootstrapType
	// Seed seeds the master generator that seeds each replicate.
	Seed uint64
	// Workers limits concurrent replicates. Zero uses runtime.NumCPU().
	Workers int
	// ParticipantSets optionally supplies each replicate's participant IDs,
	// e.g. from participant-level resampling done by the caller. If nil,
	// ResampleParticipants is used. Ignored for BootstrapAll.
	ParticipantSets [][]string
}

// Validate returns an error if o has unsupported settings.
func (o BootstrapOptions) Validate() error {
	if o.Samples < 0 {
		return fmt.Errorf("%w: negative bootstrap samples %d", survey.ErrConfiguration, o.Samples)
	}
	switch o.Type {
	case BootstrapAll, SampleParticipantsContacts, NoSample:
	default:
		if o.Samples > 0 {
			return fmt.Errorf("%w: unknown bootstrap type %q", survey.ErrConfiguration, o.Type)
		}
	}
	if o.ParticipantSets != nil && len(o.ParticipantSets) != o.Samples {
		return fmt.Errorf("%w: got %d participant set(s) for %d sample(s)",
			survey.ErrConfiguration, len(o.ParticipantSets), o.Samples)
	}
	return nil
}

// Bootstrap returns imputed contacts for each of o.Samples resampled replicates.
// Replicates run concurrently, each with its own generator split from a master
// generator seeded by o.Seed, so results depend only on the inputs and seed.
func (e *Engine) Bootstrap(ctx context.Context, tbl survey.ContactTable, o BootstrapOptions) ([][]survey.Contact, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	master := sampler.New(o.Seed)
	if o.Samples == 0 {
		cs, err := e.Contacts(tbl, master)
		if err != nil {
			return nil, err
		}
		return [][]survey.Contact{cs}, nil
	}

	srcs := make([]*sampler.Sampler, o.Samples)
	for i := range srcs {
		srcs[i] = master.Split()
	}
	workers := o.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	ids := survey.PartIDs(tbl.Contacts)

	results := make([][]survey.Contact, o.Samples)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for b := 0; b < o.Samples; b++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			src := srcs[b]

			var set []string
			if o.Type != BootstrapAll {
				if o.ParticipantSets != nil {
					set = o.ParticipantSets[b]
				} else {
					var err error
					if set, err = ResampleParticipants(src, ids); err != nil {
						return fmt.Errorf("replicate %d: %v", b, err)
					}
				}
			}
			rs, err := resample(tbl.Contacts, o.Type, set, src)
			if err != nil {
				return fmt.Errorf("replicate %d: %v", b, err)
			}
			cs, err := e.Contacts(survey.ContactTable{Columns: tbl.Columns, Contacts: rs}, src)
			if err != nil {
				return fmt.Errorf("replicate %d: %w", b, err)
			}
			results[b] = cs
			e.metrics.ObserveReplicate(time.Since(start))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	e.logger.Debug("Finished bootstrap", "samples", o.Samples, "type", o.Type)
	return results, nil
}

// ResampleParticipants draws len(ids) participant IDs from ids with replacement.
func ResampleParticipants(src sampler.Source, ids []string) ([]string, error) {
	return sampler.Sample(src, ids, len(ids), true, nil)
}

// resample returns the contacts for a single replicate.
// set holds the replicate's participant IDs and is ignored for BootstrapAll.
func resample(cs []survey.Contact, typ BootstrapType, set []string, src sampler.Source) ([]survey.Contact, error) {
	if typ == BootstrapAll {
		return sampler.Sample(src, cs, len(cs), true, nil)
	}

	var out []survey.Contact
	if typ == NoSample {
		seen := make(map[string]struct{}, len(set))
		for _, id := range set {
			seen[id] = struct{}{}
		}
		for _, c := range cs {
			if _, ok := seen[c.PartID]; ok {
				out = append(out, c)
			}
		}
		return out, nil
	}

	// Each draw of a participant contributes its own resample of their contacts.
	byPart := make(map[string][]survey.Contact)
	for _, c := range cs {
		byPart[c.PartID] = append(byPart[c.PartID], c)
	}
	for _, id := range set {
		own := byPart[id]
		if len(own) == 0 {
			continue
		}
		drawn, err := sampler.Sample(src, own, len(own), true, nil)
		if err != nil {
			return nil, fmt.Errorf("participant %q: %v", id, err)
		}
		out = append(out, drawn...)
	}
	return out, nil
}
