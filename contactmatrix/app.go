// Copyright 2020 Daniel Erat <dan@erat.org>.
// All rights reserved.

package main

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/derat/contacts/impute"
	"github.com/derat/contacts/matrix"
	"github.com/derat/contacts/metrics"
	"github.com/derat/contacts/population"
	"github.com/derat/contacts/survey"
	"github.com/prometheus/client_golang/prometheus"
)

// app holds the state shared by subcommands during a single invocation.
type app struct {
	cfg     *config
	logger  *slog.Logger
	logFile io.Closer
	reg     *prometheus.Registry // nil if metrics are disabled
	metrics *metrics.Metrics     // nil if metrics are disabled
}

func newApp(cfg *config, stderr io.Writer) (*app, error) {
	logger, closer, err := newLogger(cfg.Log, stderr)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, logFile: closer}
	if cfg.Metrics.Enabled {
		a.reg = prometheus.NewRegistry()
		a.metrics = metrics.New(a.reg)
	}
	return a, nil
}

// close writes metrics (if enabled) and closes the log file.
func (a *app) close() error {
	var err error
	if a.reg != nil {
		if err = prometheus.WriteToTextfile(a.cfg.Metrics.Textfile, a.reg); err != nil {
			err = fmt.Errorf("failed writing metrics: %w", err)
		}
	}
	return errors.Join(err, a.logFile.Close())
}

// readFile opens p (decompressing it if it ends in ".gz") and passes it to fn.
func readFile[T any](p string, fn func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(p)
	if err != nil {
		return zero, err
	}
	defer f.Close()

	var r io.Reader = f
	if filepath.Ext(p) == ".gz" {
		gr, err := gzip.NewReader(f)
		if err != nil {
			return zero, fmt.Errorf("failed decompressing %v: %v", p, err)
		}
		defer gr.Close()
		r = gr
	}
	v, err := fn(r)
	if err != nil {
		return zero, fmt.Errorf("%v: %w", p, err)
	}
	return v, nil
}

// population loads the distribution for the configured country and year.
func (a *app) population(ctx context.Context) (population.Distribution, error) {
	var st population.Store
	switch in := a.cfg.Input; {
	case in.PopulationDB != "":
		db, err := population.OpenSQLite(ctx, in.PopulationDB)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		st = db
	case in.Population != "":
		rows, err := readFile(in.Population, population.ReadCSV)
		if err != nil {
			return nil, err
		}
		st = rows
	default:
		return nil, fmt.Errorf("%w: no population input", survey.ErrConfiguration)
	}
	pc := a.cfg.Population
	pop, err := population.Lookup(ctx, st, pc.Country, pc.ISO3, pc.Year)
	if err != nil {
		return nil, err
	}
	a.logger.Info("Loaded population", "country", pc.Country, "iso3", pc.ISO3, "year", pc.Year,
		"min_age", pop.MinAge(), "max_age", pop.MaxAge(), "total", pop.Sum())
	return pop, nil
}

// ageGroups returns the matrix age groups, read from a file or built from
// the configured limits and capped at pop's maximum age.
func (a *app) ageGroups(pop population.Distribution) (survey.AgeGroups, error) {
	if p := a.cfg.Input.AgeGroups; p != "" {
		return readFile(p, survey.ReadAgeGroups)
	}
	maxAge := pop.MaxAge()
	if maxAge == survey.NoAge {
		return nil, fmt.Errorf("%w: empty population", survey.ErrConfiguration)
	}
	gs, err := survey.AgeGroupsFromLimits(a.cfg.Input.AgeLimits, maxAge)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", survey.ErrConfiguration, err)
	}
	return gs, nil
}

func (a *app) contacts() (*survey.ContactTable, error) {
	tbl, err := readFile(a.cfg.Input.Contacts, survey.ReadContacts)
	if err != nil {
		return nil, err
	}
	a.logger.Info("Read contacts", "path", a.cfg.Input.Contacts, "count", len(tbl.Contacts))
	return tbl, nil
}

func (a *app) participants() ([]survey.Participant, error) {
	parts, err := readFile(a.cfg.Input.Participants, survey.ReadParticipants)
	if err != nil {
		return nil, err
	}
	a.logger.Info("Read participants", "path", a.cfg.Input.Participants, "count", len(parts))
	return parts, nil
}

func (a *app) engine(pop population.Distribution, groups survey.AgeGroups) (*impute.Engine, error) {
	return impute.New(pop, a.cfg.imputeOptions(groups),
		impute.WithLogger(a.logger), impute.WithMetrics(a.metrics))
}

func (a *app) builder() *matrix.Builder {
	return matrix.NewBuilder(a.cfg.matrixOptions(),
		matrix.WithLogger(a.logger), matrix.WithMetrics(a.metrics))
}

// inputs holds everything needed to impute ages and build matrices.
type inputs struct {
	pop    population.Distribution
	groups survey.AgeGroups
	tbl    *survey.ContactTable
	parts  []survey.Participant // nil unless requested
}

// load reads the population, age groups, and contacts, plus participants
// if withParts is true.
func (a *app) load(ctx context.Context, withParts bool) (*inputs, error) {
	names := []string{"contacts", "population"}
	if withParts {
		names = append(names, "participants")
	}
	if err := a.cfg.requireInputs(names...); err != nil {
		return nil, err
	}

	var in inputs
	var err error
	if in.pop, err = a.population(ctx); err != nil {
		return nil, err
	}
	if in.groups, err = a.ageGroups(in.pop); err != nil {
		return nil, err
	}
	if in.tbl, err = a.contacts(); err != nil {
		return nil, err
	}
	if withParts {
		if in.parts, err = a.participants(); err != nil {
			return nil, err
		}
	}
	return &in, nil
}
