// Copyright 2020 Daniel Erat <dan@erat.org>.
// All rights reserved.

package population

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/derat/contacts/survey"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRows = Rows{
	{"GBR", 2020, 0, 10},
	{"GBR", 2020, 1, 20},
	{"GBR", 2020, 2, 30},
	{"GBR", 2019, 0, 1},
	{"BEL", 2020, 0, 5},
}

func TestResolveCountry(t *testing.T) {
	for _, tc := range []struct {
		code, iso3, want string
	}{
		{"uk", "", "GBR"},
		{"BE", "", "BEL"},
		{"nl", "", "NLD"},
		{"no", "", "NOR"},
		{"xx", "fra", "FRA"},
		{"uk", "DEU", "DEU"},
	} {
		got, err := ResolveCountry(tc.code, tc.iso3)
		if err != nil {
			t.Errorf("ResolveCountry(%q, %q) failed: %v", tc.code, tc.iso3, err)
		} else if got != tc.want {
			t.Errorf("ResolveCountry(%q, %q) = %q; want %q", tc.code, tc.iso3, got, tc.want)
		}
	}

	if _, err := ResolveCountry("xx", ""); !errors.Is(err, survey.ErrConfiguration) {
		t.Errorf("ResolveCountry(%q, %q) returned %v; want ErrConfiguration", "xx", "", err)
	}
}

func TestLookup(t *testing.T) {
	ctx := context.Background()

	d, err := Lookup(ctx, testRows, "uk", "", 2020)
	require.NoError(t, err)
	if diff := cmp.Diff(Distribution{{0, 10}, {1, 20}, {2, 30}}, d); diff != "" {
		t.Error("Lookup returned wrong distribution:\n" + diff)
	}

	_, err = Lookup(ctx, testRows, "uk", "", 1990)
	assert.ErrorIs(t, err, survey.ErrNotFound)
	_, err = Lookup(ctx, testRows, "zz", "", 2020)
	assert.ErrorIs(t, err, survey.ErrConfiguration)
}

func TestNewDistribution(t *testing.T) {
	d, err := NewDistribution([]Record{{2, 3}, {0, 1}, {1, 2}})
	require.NoError(t, err)
	assert.Equal(t, Distribution{{0, 1}, {1, 2}, {2, 3}}, d)

	_, err = NewDistribution([]Record{{0, 1}, {0, 2}})
	assert.Error(t, err, "duplicate age")
	_, err = NewDistribution([]Record{{0, 1}, {2, 2}})
	assert.Error(t, err, "gap")
	_, err = NewDistribution([]Record{{0, -1}})
	assert.Error(t, err, "negative total")
}

func TestDistribution_Weights(t *testing.T) {
	d := Distribution{{5, 1}, {6, 2}, {7, 4}}

	ages, weights := d.Weights(6, 9)
	assert.Equal(t, []int{6, 7, 8, 9}, ages)
	assert.Equal(t, []float64{2, 4, 4, 4}, weights, "ages past the max should reuse its weight")

	ages, weights = d.Weights(3, 5)
	assert.Equal(t, []int{3, 4, 5}, ages)
	assert.Equal(t, []float64{0, 0, 1}, weights)

	assert.Equal(t, 6.0, d.Total(6, 9), "Total doesn't clamp")
	assert.Equal(t, 7.0, d.Sum())
	assert.Equal(t, 5, d.MinAge())
	assert.Equal(t, 7, d.MaxAge())
	assert.Equal(t, survey.NoAge, Distribution{}.MaxAge())
}

func TestReadCSV(t *testing.T) {
	const in = "iso3,year,age,population\nGBR,2020,0,100\nGBR,2020,1,200.5\n"
	rows, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	if diff := cmp.Diff(Rows{{"GBR", 2020, 0, 100}, {"GBR", 2020, 1, 200.5}}, rows); diff != "" {
		t.Error("ReadCSV returned wrong rows:\n" + diff)
	}

	// Excel-style byte order mark and padded names.
	rows, err = ReadCSV(strings.NewReader("\ufeffcountry, year ,age,total\nNLD,2005,3,7\n"))
	require.NoError(t, err)
	assert.Equal(t, Rows{{"NLD", 2005, 3, 7}}, rows)

	_, err = ReadCSV(strings.NewReader("country,year,age\nGBR,2020,0\n"))
	assert.ErrorIs(t, err, survey.ErrSchema)
	_, err = ReadCSV(strings.NewReader("country,year,age,total\nGBR,x,0,1\n"))
	assert.Error(t, err)
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	st, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Insert(ctx, testRows))
	// Replacing an existing row shouldn't produce a duplicate age.
	require.NoError(t, st.Insert(ctx, []Row{{"GBR", 2020, 1, 25}}))

	d, err := Lookup(ctx, st, "", "gbr", 2020)
	require.NoError(t, err)
	assert.Equal(t, Distribution{{0, 10}, {1, 25}, {2, 30}}, d)

	_, err = Lookup(ctx, st, "no", "", 2020)
	assert.ErrorIs(t, err, survey.ErrNotFound)
}
