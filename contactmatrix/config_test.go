// Copyright 2020 Daniel Erat <dan@erat.org>.
// All rights reserved.

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/derat/contacts/impute"
	"github.com/derat/contacts/matrix"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig("", nil)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, []int{0, 5, 18, 30, 40, 50, 60, 70}, cfg.Input.AgeLimits)
	assert.Equal(t, impute.DefaultOptions(), cfg.imputeOptions(nil))
	assert.Equal(t, matrix.DefaultOptions(), cfg.matrixOptions())
	assert.Equal(t, uint64(1), cfg.Impute.Seed)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadConfig_Precedence(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`impute:
  contact_age_process: mean
  samples: 10
  seed: 3
matrix:
  symmetric: true
population:
  country: be
  year: 2006
`), 0644))
	t.Setenv("CONTACTS_IMPUTE_SAMPLES", "20")
	t.Setenv("CONTACTS_POPULATION_YEAR", "2010")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("samples", 0, "")
	fs.Uint64("seed", 0, "")
	require.NoError(t, fs.Parse([]string{"--samples", "30"}))

	cfg, err := loadConfig(p, fs)
	require.NoError(t, err)
	assert.Equal(t, impute.Mean, cfg.imputeOptions(nil).ContactAgeProcess)
	assert.True(t, cfg.Matrix.Symmetric)
	assert.Equal(t, "be", cfg.Population.Country)
	assert.Equal(t, 2010, cfg.Population.Year)  // env beats file
	assert.Equal(t, 30, cfg.Impute.Samples)     // set flag beats env
	assert.Equal(t, uint64(3), cfg.Impute.Seed) // unset flag doesn't override
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()
	for name, data := range map[string]string{
		"level":     "log:\n  level: loud\n",
		"format":    "log:\n  format: xml\n",
		"process":   "impute:\n  contact_age_process: guess\n",
		"unknown":   "impute:\n  unknown_age_process: ignore\n",
		"samples":   "impute:\n  samples: -1\n",
		"bootstrap": "impute:\n  samples: 5\n  bootstrap_type: jackknife\n",
		"metrics":   "metrics:\n  enabled: true\n",
	} {
		p := filepath.Join(dir, name+".yaml")
		require.NoError(t, os.WriteFile(p, []byte(data), 0644))
		_, err := loadConfig(p, nil)
		assert.Error(t, err, name)
	}
	_, err := loadConfig(filepath.Join(dir, "missing.yaml"), nil)
	assert.Error(t, err)
}
