// Copyright 2020 Daniel Erat <dan@erat.org>.
// All rights reserved.

package population

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/derat/contacts/survey"
)

// ReadCSV reads population rows from CSV data with country (or iso3), year,
// age, and total (or population) columns.
func ReadCSV(r io.Reader) (Rows, error) {
	cr := csv.NewReader(r)
	h, err := survey.ReadHeader(cr)
	if err != nil {
		return nil, err
	}
	var countryCol, yearCol, ageCol, totalCol int
	for nameList, dst := range map[string]*int{
		"country,iso3,iso3c": &countryCol,
		"year":               &yearCol,
		"age":                &ageCol,
		"total,population":   &totalCol,
	} {
		if *dst, err = h.Require(nameList); err != nil {
			return nil, err
		}
	}

	var rows Rows
	for line := 2; ; line++ {
		vals, err := cr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}

		var row Row
		row.Country = strings.TrimSpace(vals[countryCol])
		if row.Year, err = strconv.Atoi(strings.TrimSpace(vals[yearCol])); err != nil {
			return nil, fmt.Errorf("line %d: bad year %q", line, vals[yearCol])
		}
		if row.Age, err = strconv.Atoi(strings.TrimSpace(vals[ageCol])); err != nil {
			return nil, fmt.Errorf("line %d: bad age %q", line, vals[ageCol])
		}
		if row.Total, err = strconv.ParseFloat(strings.TrimSpace(vals[totalCol]), 64); err != nil {
			return nil, fmt.Errorf("line %d: bad total %q", line, vals[totalCol])
		}
		rows = append(rows, row)
	}
	return rows, nil
}
