// Copyright 2020 Daniel Erat <dan@erat.org>.
// All rights reserved.

// Package population provides single-year population-by-age distributions.
package population

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/derat/contacts/survey"
	"gonum.org/v1/gonum/floats"
)

// Record holds the number of people of a single age.
type Record struct {
	Age   int
	Total float64
}

// Distribution is a population-by-age table for one country and year,
// sorted by ascending age with no gaps or duplicates.
type Distribution []Record

// NewDistribution sorts rs and checks that its ages are contiguous and unique.
func NewDistribution(rs []Record) (Distribution, error) {
	d := make(Distribution, len(rs))
	copy(d, rs)
	sort.Slice(d, func(i, j int) bool { return d[i].Age < d[j].Age })
	for i, r := range d {
		if r.Age < 0 {
			return nil, fmt.Errorf("negative age %d", r.Age)
		}
		if r.Total < 0 {
			return nil, fmt.Errorf("negative total %v for age %d", r.Total, r.Age)
		}
		if i > 0 {
			if r.Age == d[i-1].Age {
				return nil, fmt.Errorf("multiple records for age %d", r.Age)
			} else if r.Age != d[i-1].Age+1 {
				return nil, fmt.Errorf("missing ages between %d and %d", d[i-1].Age, r.Age)
			}
		}
	}
	return d, nil
}

// MinAge returns the lowest age in d, or survey.NoAge if d is empty.
func (d Distribution) MinAge() int {
	if len(d) == 0 {
		return survey.NoAge
	}
	return d[0].Age
}

// MaxAge returns the highest age in d, or survey.NoAge if d is empty.
func (d Distribution) MaxAge() int {
	if len(d) == 0 {
		return survey.NoAge
	}
	return d[len(d)-1].Age
}

// total returns the population of the supplied age, or 0 if it isn't in d.
func (d Distribution) total(age int) float64 {
	if len(d) == 0 || age < d[0].Age || age > d[len(d)-1].Age {
		return 0
	}
	return d[age-d[0].Age].Total
}

// Total returns the summed population of ages in [low, high].
// Ages outside d contribute nothing.
func (d Distribution) Total(low, high int) float64 {
	var sum float64
	for age := low; age <= high; age++ {
		sum += d.total(age)
	}
	return sum
}

// Ages returns all ages in d along with their totals.
func (d Distribution) Ages() (ages []int, totals []float64) {
	ages = make([]int, len(d))
	totals = make([]float64, len(d))
	for i, r := range d {
		ages[i] = r.Age
		totals[i] = r.Total
	}
	return ages, totals
}

// Weights returns every age in [low, high] along with its sampling weight.
// Ages above d's maximum use the maximum age's total, so open-ended brackets
// such as "70+" still draw from the tail of the distribution. Ages below d's
// minimum get zero weight.
func (d Distribution) Weights(low, high int) (ages []int, weights []float64) {
	if high < low {
		return nil, nil
	}
	maxAge := d.MaxAge()
	ages = make([]int, 0, high-low+1)
	weights = make([]float64, 0, high-low+1)
	for age := low; age <= high; age++ {
		ages = append(ages, age)
		if len(d) > 0 && age > maxAge {
			weights = append(weights, d.total(maxAge))
		} else {
			weights = append(weights, d.total(age))
		}
	}
	return ages, weights
}

// Sum returns the total population in d.
func (d Distribution) Sum() float64 {
	_, totals := d.Ages()
	return floats.Sum(totals)
}

// Row is a single row of a multi-country population table.
type Row struct {
	Country string // ISO3 code, e.g. "GBR"
	Year    int
	Age     int
	Total   float64
}

// Store supplies population rows for a country and year.
type Store interface {
	Rows(ctx context.Context, iso3 string, year int) ([]Row, error)
}

// Rows is an in-memory Store.
type Rows []Row

func (rs Rows) Rows(ctx context.Context, iso3 string, year int) ([]Row, error) {
	var out []Row
	for _, r := range rs {
		if strings.EqualFold(r.Country, iso3) && r.Year == year {
			out = append(out, r)
		}
	}
	return out, nil
}

// Lookup returns the distribution for the country identified by code (a short
// code such as "uk") or iso3 (which takes precedence if non-empty) in year.
// survey.ErrConfiguration is returned for unknown short codes and
// survey.ErrNotFound if st has no matching rows.
func Lookup(ctx context.Context, st Store, code, iso3 string, year int) (Distribution, error) {
	country, err := ResolveCountry(code, iso3)
	if err != nil {
		return nil, err
	}
	rows, err := st.Rows(ctx, country, year)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no population data for %v in %d", survey.ErrNotFound, country, year)
	}
	rs := make([]Record, len(rows))
	for i, r := range rows {
		rs[i] = Record{Age: r.Age, Total: r.Total}
	}
	d, err := NewDistribution(rs)
	if err != nil {
		return nil, fmt.Errorf("bad population data for %v in %d: %v", country, year, err)
	}
	return d, nil
}
