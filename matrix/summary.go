// Copyright 2020 Daniel Erat <dan@erat.org>.
// All rights reserved.

package matrix

import (
	"fmt"
	"math"
	"strconv"

	"github.com/derat/contacts/filewriter"
	"gonum.org/v1/gonum/mat"
)

// Mean returns the cell-wise mean of ms, e.g. across bootstrap replicates.
// Nil matrices (from empty replicates) are skipped, as are missing cells.
// A cell that's missing in every matrix is missing in the result.
// nil is returned if ms contains no matrices.
func Mean(ms []*Matrix) (*Matrix, error) {
	var first *Matrix
	for _, m := range ms {
		if m != nil {
			first = m
			break
		}
	}
	if first == nil {
		return nil, nil
	}

	n := len(first.Groups)
	sums := mat.NewDense(n, n, nil)
	counts := mat.NewDense(n, n, nil)
	parts := make([]float64, n)
	used := 0
	for _, m := range ms {
		if m == nil {
			continue
		}
		if len(m.Groups) != n {
			return nil, fmt.Errorf("matrix has %d group(s); want %d", len(m.Groups), n)
		}
		for i, g := range m.Groups {
			if g != first.Groups[i] {
				return nil, fmt.Errorf("matrix group %d is %q; want %q", i, g, first.Groups[i])
			}
		}
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				if v, ok := m.At(i, j); ok {
					sums.Set(i, j, sums.At(i, j)+v)
					counts.Set(i, j, counts.At(i, j)+1)
				}
			}
			parts[i] += m.Participants[i]
		}
		used++
	}

	out := mat.NewDense(n, n, nil)
	out.Apply(func(i, j int, v float64) float64 {
		if c := counts.At(i, j); c > 0 {
			return sums.At(i, j) / c
		}
		return math.NaN()
	}, sums)
	for i := range parts {
		parts[i] /= float64(used)
	}
	groups := append([]string(nil), first.Groups...)
	return &Matrix{Groups: groups, Data: out, Participants: parts}, nil
}

// Write atomically writes m to p as tab-separated values.
// The first row and column hold group names; missing cells are written as "NA".
func (m *Matrix) Write(p string) error {
	fw, err := filewriter.New(p)
	if err != nil {
		return err
	}
	fw.Row(append([]string{"contact_age_group"}, m.Groups...)...)
	for i, g := range m.Groups {
		vals := make([]string, 0, 1+len(m.Groups))
		vals = append(vals, g)
		for j := range m.Groups {
			if v, ok := m.At(i, j); ok {
				vals = append(vals, strconv.FormatFloat(v, 'g', -1, 64))
			} else {
				vals = append(vals, "NA")
			}
		}
		fw.Row(vals...)
	}
	return fw.Close()
}
