// Copyright 2020 Daniel Erat <dan@erat.org>.
// All rights reserved.

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/derat/contacts/impute"
	"github.com/derat/contacts/matrix"
	"github.com/derat/contacts/survey"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "CONTACTS"

// config holds all settings for a single invocation.
type config struct {
	Log        logConfig        `mapstructure:"log"`
	Input      inputConfig      `mapstructure:"input"`
	Population populationConfig `mapstructure:"population"`
	Impute     imputeConfig     `mapstructure:"impute"`
	Matrix     matrixConfig     `mapstructure:"matrix"`
	Output     outputConfig     `mapstructure:"output"`
	Metrics    metricsConfig    `mapstructure:"metrics"`
}

type logConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	Output    string `mapstructure:"output"`
	FilePath  string `mapstructure:"file_path"`
	AddSource bool   `mapstructure:"add_source"`
}

type inputConfig struct {
	Contacts     string `mapstructure:"contacts"`     // contact CSV
	Participants string `mapstructure:"participants"` // participant CSV
	AgeGroups    string `mapstructure:"age_groups"`   // age-group CSV; overrides AgeLimits
	AgeLimits    []int  `mapstructure:"age_limits"`   // lower bounds of matrix age groups
	Population   string `mapstructure:"population"`   // population CSV
	PopulationDB string `mapstructure:"population_db"`
}

type populationConfig struct {
	Country string `mapstructure:"country"` // survey country code, e.g. "uk"
	ISO3    string `mapstructure:"iso3"`    // overrides Country
	Year    int    `mapstructure:"year"`
}

type imputeConfig struct {
	ContactAgeProcess string `mapstructure:"contact_age_process"`
	UnknownAgeProcess string `mapstructure:"unknown_age_process"`
	// UseAgeGroups joins contacts' cnt_age labels against the age groups
	// instead of using the numeric age columns.
	UseAgeGroups  bool   `mapstructure:"use_age_groups"`
	Samples       int    `mapstructure:"samples"`
	BootstrapType string `mapstructure:"bootstrap_type"`
	Seed          uint64 `mapstructure:"seed"`
	Workers       int    `mapstructure:"workers"`
}

type matrixConfig struct {
	WeightDayOfWeek         bool `mapstructure:"weight_dayofweek"`
	UseReciprocalForMissing bool `mapstructure:"use_reciprocal_for_missing"`
	Symmetric               bool `mapstructure:"symmetric"`
	ReturnRaw               bool `mapstructure:"return_raw"`
}

type outputConfig struct {
	Contacts      string `mapstructure:"contacts"`       // imputed contact CSV
	Matrix        string `mapstructure:"matrix"`         // matrix TSV
	ReplicatesDir string `mapstructure:"replicates_dir"` // per-replicate matrix TSVs
}

type metricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Textfile string `mapstructure:"textfile"`
}

var defaults = map[string]any{
	"log.level":                         "info",
	"log.format":                        "text",
	"log.output":                        "stderr",
	"log.file_path":                     "",
	"log.add_source":                    false,
	"input.contacts":                    "",
	"input.participants":                "",
	"input.age_groups":                  "",
	"input.age_limits":                  []int{0, 5, 18, 30, 40, 50, 60, 70},
	"input.population":                  "",
	"input.population_db":               "",
	"population.country":                "",
	"population.iso3":                   "",
	"population.year":                   0,
	"impute.contact_age_process":        string(impute.SamplePopDist),
	"impute.unknown_age_process":        string(impute.UnknownSamplePartDist),
	"impute.use_age_groups":             false,
	"impute.samples":                    0,
	"impute.bootstrap_type":             string(impute.SampleParticipantsContacts),
	"impute.seed":                       1,
	"impute.workers":                    0,
	"matrix.weight_dayofweek":           true,
	"matrix.use_reciprocal_for_missing": false,
	"matrix.symmetric":                  false,
	"matrix.return_raw":                 false,
	"output.contacts":                   "",
	"output.matrix":                     "",
	"output.replicates_dir":             "",
	"metrics.enabled":                   false,
	"metrics.textfile":                  "",
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"log-level":      "log.level",
	"contacts":       "input.contacts",
	"participants":   "input.participants",
	"age-groups":     "input.age_groups",
	"population":     "input.population",
	"population-db":  "input.population_db",
	"country":        "population.country",
	"year":           "population.year",
	"seed":           "impute.seed",
	"samples":        "impute.samples",
	"workers":        "impute.workers",
	"bootstrap-type": "impute.bootstrap_type",
	"replicates-dir": "output.replicates_dir",
	"symmetric":      "matrix.symmetric",
	"out":            "output.matrix",
	"out-contacts":   "output.contacts",
	"metrics-file":   "metrics.textfile",
}

// loadConfig reads settings from defaults, the YAML file at p (if non-empty),
// CONTACTS_-prefixed environment variables, and any flags in fs that were set,
// in increasing order of precedence.
func loadConfig(p string, fs *pflag.FlagSet) (*config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	if p != "" {
		v.SetConfigFile(p)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Metrics.Textfile != "" {
		cfg.Metrics.Enabled = true
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// validate checks settings that don't depend on the subcommand.
func (c *config) validate() error {
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s, must be 'json' or 'text'", c.Log.Format)
	}
	if err := c.imputeOptions(nil).Validate(); err != nil {
		return err
	}
	if err := c.bootstrapOptions().Validate(); err != nil {
		return err
	}
	if c.Metrics.Enabled && c.Metrics.Textfile == "" {
		return errors.New("metrics.textfile is required when metrics are enabled")
	}
	return nil
}

// requireInputs returns an error if any of the named inputs are unset.
func (c *config) requireInputs(names ...string) error {
	vals := map[string]string{
		"contacts":     c.Input.Contacts,
		"participants": c.Input.Participants,
		"population":   c.Input.Population + c.Input.PopulationDB,
	}
	for _, n := range names {
		if vals[n] == "" {
			return fmt.Errorf("%w: input.%s is required", survey.ErrConfiguration, n)
		}
	}
	return nil
}

func (c *config) imputeOptions(groups survey.AgeGroups) impute.Options {
	o := impute.Options{
		ContactAgeProcess: impute.ContactAgeProcess(c.Impute.ContactAgeProcess),
		UnknownAgeProcess: impute.UnknownAgeProcess(c.Impute.UnknownAgeProcess),
	}
	if c.Impute.UseAgeGroups {
		o.AgeGroups = groups
	}
	return o
}

func (c *config) bootstrapOptions() impute.BootstrapOptions {
	return impute.BootstrapOptions{
		Samples: c.Impute.Samples,
		Type:    impute.BootstrapType(c.Impute.BootstrapType),
		Seed:    c.Impute.Seed,
		Workers: c.Impute.Workers,
	}
}

func (c *config) matrixOptions() matrix.Options {
	return matrix.Options{
		WeightDayOfWeek:         c.Matrix.WeightDayOfWeek,
		UseReciprocalForMissing: c.Matrix.UseReciprocalForMissing,
		Symmetric:               c.Matrix.Symmetric,
		ReturnRaw:               c.Matrix.ReturnRaw,
	}
}
