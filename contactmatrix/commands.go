// Copyright 2020 Daniel Erat <dan@erat.org>.
// All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/derat/contacts/impute"
	"github.com/derat/contacts/matrix"
	"github.com/derat/contacts/population"
	"github.com/derat/contacts/sampler"
	"github.com/derat/contacts/survey"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// newRootCmd returns the contactmatrix command tree. Logs are written to stderr
// unless configured otherwise.
func newRootCmd(stderr io.Writer) *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:   "contactmatrix",
		Short: "Impute contact ages and build age-stratified contact matrices",
		Long: `Reads social-contact survey tables, imputes point estimates for contact and
participant ages, and aggregates them into matrices of average daily contacts
between age groups.`,
		Example: `  # Impute contact ages
  $ contactmatrix impute --contacts contacts.csv --population pop.csv --country uk --year 2005 --out-contacts out.csv

  # Build a symmetric matrix
  $ contactmatrix matrix --config polymod.yaml --symmetric --out matrix.tsv

  # Average 100 bootstrap replicates
  $ contactmatrix bootstrap --config polymod.yaml --samples 100 --out mean.tsv`,
		SilenceUsage: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "YAML config file")
	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	// run wraps fn with config loading and app setup.
	run := func(fn func(ctx context.Context, a *app) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) (err error) {
			cfg, err := loadConfig(cfgPath, cmd.Flags())
			if err != nil {
				return err
			}
			a, err := newApp(cfg, stderr)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.close(); err == nil {
					err = cerr
				}
			}()
			if err := fn(cmd.Context(), a); err != nil {
				a.logger.Error("Command failed", "command", cmd.Name(), "error", err)
				return err
			}
			return nil
		}
	}

	imputeCmd := &cobra.Command{
		Use:   "impute",
		Short: "Write contacts with imputed ages",
		Args:  cobra.NoArgs,
		RunE:  run(runImpute),
	}
	addInputFlags(imputeCmd.Flags())
	imputeCmd.Flags().String("out-contacts", "", "Output CSV for imputed contacts")

	matrixCmd := &cobra.Command{
		Use:   "matrix",
		Short: "Build a contact matrix from a single imputation",
		Args:  cobra.NoArgs,
		RunE:  run(runMatrix),
	}
	addInputFlags(matrixCmd.Flags())
	addMatrixFlags(matrixCmd.Flags())

	bootstrapCmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Build the mean contact matrix over bootstrap replicates",
		Args:  cobra.NoArgs,
		RunE:  run(runBootstrap),
	}
	addInputFlags(bootstrapCmd.Flags())
	addMatrixFlags(bootstrapCmd.Flags())
	bootstrapCmd.Flags().Int("samples", 0, "Number of bootstrap replicates")
	bootstrapCmd.Flags().Int("workers", 0, "Concurrent replicates (0 for one per CPU)")
	bootstrapCmd.Flags().String("bootstrap-type", "", "Resampling scheme (bootstrap_all, sample_participants_contacts, no_sample)")
	bootstrapCmd.Flags().String("replicates-dir", "", "Directory for per-replicate matrices")

	importCmd := &cobra.Command{
		Use:   "import-population",
		Short: "Copy a population CSV into a SQLite database",
		Args:  cobra.NoArgs,
		RunE:  run(runImportPopulation),
	}
	importCmd.Flags().String("population", "", "Population CSV")
	importCmd.Flags().String("population-db", "", "SQLite database to write")

	root.AddCommand(imputeCmd, matrixCmd, bootstrapCmd, importCmd)
	return root
}

func addInputFlags(fs *pflag.FlagSet) {
	fs.String("contacts", "", "Contact CSV")
	fs.String("participants", "", "Participant CSV")
	fs.String("age-groups", "", "Age-group CSV")
	fs.String("population", "", "Population CSV")
	fs.String("population-db", "", "Population SQLite database")
	fs.String("country", "", `Survey country code (e.g. "uk")`)
	fs.Int("year", 0, "Population year")
	fs.Uint64("seed", 0, "Random seed")
	fs.String("metrics-file", "", "Write Prometheus metrics to this file")
}

func addMatrixFlags(fs *pflag.FlagSet) {
	fs.Bool("symmetric", false, "Make the matrix reciprocal given group populations")
	fs.String("out", "", "Output TSV for the matrix")
}

func runImpute(ctx context.Context, a *app) error {
	if a.cfg.Output.Contacts == "" {
		return fmt.Errorf("%w: output.contacts is required", survey.ErrConfiguration)
	}
	in, err := a.load(ctx, false)
	if err != nil {
		return err
	}
	e, err := a.engine(in.pop, in.groups)
	if err != nil {
		return err
	}
	cs, err := e.Contacts(*in.tbl, sampler.New(a.cfg.Impute.Seed))
	if err != nil {
		return err
	}
	if err := survey.WriteContacts(a.cfg.Output.Contacts, cs); err != nil {
		return err
	}
	a.logger.Info("Wrote contacts", "path", a.cfg.Output.Contacts, "count", len(cs))
	return nil
}

func runMatrix(ctx context.Context, a *app) error {
	if a.cfg.Output.Matrix == "" {
		return fmt.Errorf("%w: output.matrix is required", survey.ErrConfiguration)
	}
	in, err := a.load(ctx, true)
	if err != nil {
		return err
	}
	e, err := a.engine(in.pop, in.groups)
	if err != nil {
		return err
	}
	src := sampler.New(a.cfg.Impute.Seed)
	parts, err := e.Participants(in.parts, src)
	if err != nil {
		return err
	}
	cs, err := e.Contacts(*in.tbl, src)
	if err != nil {
		return err
	}
	if a.cfg.Output.Contacts != "" {
		if err := survey.WriteContacts(a.cfg.Output.Contacts, cs); err != nil {
			return err
		}
	}
	m, err := a.builder().Build(cs, parts, in.pop, in.groups)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("no contacts or participants to build matrix from")
	}
	if err := m.Write(a.cfg.Output.Matrix); err != nil {
		return err
	}
	a.logger.Info("Wrote matrix", "path", a.cfg.Output.Matrix, "groups", len(m.Groups))
	return nil
}

func runBootstrap(ctx context.Context, a *app) error {
	if a.cfg.Output.Matrix == "" {
		return fmt.Errorf("%w: output.matrix is required", survey.ErrConfiguration)
	}
	in, err := a.load(ctx, true)
	if err != nil {
		return err
	}
	e, err := a.engine(in.pop, in.groups)
	if err != nil {
		return err
	}
	parts, err := e.Participants(in.parts, sampler.New(a.cfg.Impute.Seed))
	if err != nil {
		return err
	}

	// Participant sets are drawn from the participant table so that participants
	// without contacts can still be selected.
	bo := a.cfg.bootstrapOptions()
	if bo.Samples > 0 && bo.Type != impute.BootstrapAll {
		ids := make([]string, len(parts))
		for i, p := range parts {
			ids[i] = p.PartID
		}
		src := sampler.New(bo.Seed + 1)
		bo.ParticipantSets = make([][]string, bo.Samples)
		for b := range bo.ParticipantSets {
			if bo.ParticipantSets[b], err = impute.ResampleParticipants(src, ids); err != nil {
				return err
			}
		}
	}
	reps, err := e.Bootstrap(ctx, *in.tbl, bo)
	if err != nil {
		return err
	}

	b := a.builder()
	ms := make([]*matrix.Matrix, 0, len(reps))
	for i, cs := range reps {
		rparts := parts
		if bo.ParticipantSets != nil {
			rparts = selectParticipants(parts, bo.ParticipantSets[i], bo.Type)
		}
		m, err := b.Build(cs, rparts, in.pop, in.groups)
		if err != nil {
			return fmt.Errorf("replicate %d: %w", i, err)
		}
		if m != nil && a.cfg.Output.ReplicatesDir != "" {
			p := filepath.Join(a.cfg.Output.ReplicatesDir, fmt.Sprintf("matrix-%03d.tsv", i+1))
			if err := m.Write(p); err != nil {
				return err
			}
		}
		ms = append(ms, m)
	}
	mean, err := matrix.Mean(ms)
	if err != nil {
		return err
	}
	if mean == nil {
		return fmt.Errorf("all %d replicate(s) were empty", len(reps))
	}
	if err := mean.Write(a.cfg.Output.Matrix); err != nil {
		return err
	}
	a.logger.Info("Wrote mean matrix", "path", a.cfg.Output.Matrix, "replicates", len(reps))
	return nil
}

// selectParticipants returns the members of parts named by ids, in ids order.
// A participant listed more than once is repeated unless typ is impute.NoSample,
// matching the contacts impute.Engine.Bootstrap keeps for the replicate.
func selectParticipants(parts []survey.Participant, ids []string, typ impute.BootstrapType) []survey.Participant {
	byID := make(map[string]survey.Participant, len(parts))
	for _, p := range parts {
		byID[p.PartID] = p
	}
	seen := make(map[string]struct{}, len(ids))
	var out []survey.Participant
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			continue
		}
		if typ == impute.NoSample {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
		}
		out = append(out, p)
	}
	return out
}

func runImportPopulation(ctx context.Context, a *app) error {
	in := a.cfg.Input
	if in.Population == "" || in.PopulationDB == "" {
		return fmt.Errorf("%w: input.population and input.population_db are required", survey.ErrConfiguration)
	}
	rows, err := readFile(in.Population, population.ReadCSV)
	if err != nil {
		return err
	}
	db, err := population.OpenSQLite(ctx, in.PopulationDB)
	if err != nil {
		return err
	}
	if err := db.Insert(ctx, rows); err != nil {
		db.Close()
		return err
	}
	a.logger.Info("Imported population", "rows", len(rows), "db", in.PopulationDB)
	return db.Close()
}
