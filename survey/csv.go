// Copyright 2020 Daniel Erat <dan@erat.org>.
// All rights reserved.

package survey

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/derat/contacts/filewriter"
)

// Header locates named columns in a CSV header row.
type Header struct {
	cols map[string]int
}

// ReadHeader reads the header row from r. A leading byte order mark is ignored.
func ReadHeader(r *csv.Reader) (*Header, error) {
	cols, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed reading header: %v", err)
	}
	h := &Header{make(map[string]int, len(cols))}
	for i, s := range cols {
		s = strings.TrimLeft(s, "\ufeff") // sigh
		h.cols[strings.TrimSpace(s)] = i
	}
	return h, nil
}

// Find returns the index of the first column matching one of the
// comma-separated names in nameList, or -1.
func (h *Header) Find(nameList string) int {
	for _, name := range strings.Split(nameList, ",") {
		if i, ok := h.cols[name]; ok {
			return i
		}
	}
	return -1
}

// Require is like Find but returns an ErrSchema error if the column is missing.
func (h *Header) Require(nameList string) (int, error) {
	i := h.Find(nameList)
	if i < 0 {
		return -1, fmt.Errorf("%w: missing column %q", ErrSchema, nameList)
	}
	return i, nil
}

// field returns vals[i], or an empty string if i is -1.
func field(vals []string, i int) string {
	if i < 0 || i >= len(vals) {
		return ""
	}
	return strings.TrimSpace(vals[i])
}

// parseAge parses an age column. Empty and "NA" values produce NoAge.
// Fractional values are rounded since some exports store ages as doubles.
func parseAge(s string) (int, error) {
	if s == "" || strings.EqualFold(s, "NA") {
		return NoAge, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return NoAge, nil
		}
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return NoAge, fmt.Errorf("bad age %q", s)
	}
	if f < 0 || math.IsNaN(f) {
		return NoAge, nil
	}
	return int(math.Round(f)), nil
}

// forEachRow calls fn with each data row read from r.
func forEachRow(r *csv.Reader, fn func(line int, vals []string) error) error {
	for line := 2; ; line++ {
		vals, err := r.Read()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		if err := fn(line, vals); err != nil {
			return fmt.Errorf("line %d: %v", line, err)
		}
	}
}

const (
	partIDCols  = "part_id"
	weekdayCols = "weekday,dayofweek,day_of_week"
)

// ReadContacts reads a contact table from CSV data in r.
// part_id is required. The weekday, cnt_age, cnt_age_exact, cnt_age_est_min,
// and cnt_age_est_max columns are optional; the returned table's Columns
// field records which age columns were found.
func ReadContacts(r io.Reader) (*ContactTable, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	h, err := ReadHeader(cr)
	if err != nil {
		return nil, err
	}
	idCol, err := h.Require(partIDCols)
	if err != nil {
		return nil, err
	}
	dayCol := h.Find(weekdayCols)

	tbl := &ContactTable{}
	ageCols := make(map[Columns]int)
	for col, name := range map[Columns]string{
		ColAgeExact:  "cnt_age_exact",
		ColAgeEstMin: "cnt_age_est_min",
		ColAgeEstMax: "cnt_age_est_max",
		ColAgeGroup:  "cnt_age,cnt_age_group",
	} {
		if i := h.Find(name); i >= 0 {
			ageCols[col] = i
			tbl.Columns |= col
		}
	}
	col := func(c Columns) int {
		if i, ok := ageCols[c]; ok {
			return i
		}
		return -1
	}

	err = forEachRow(cr, func(line int, vals []string) error {
		wd, err := ParseWeekday(field(vals, dayCol))
		if err != nil {
			return err
		}
		c := NewContact(field(vals, idCol), wd)
		c.AgeGroup = field(vals, col(ColAgeGroup))
		for dst, i := range map[*int]int{
			&c.AgeExact:  col(ColAgeExact),
			&c.AgeEstMin: col(ColAgeEstMin),
			&c.AgeEstMax: col(ColAgeEstMax),
		} {
			if *dst, err = parseAge(field(vals, i)); err != nil {
				return err
			}
		}
		tbl.Contacts = append(tbl.Contacts, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tbl, nil
}

// ReadParticipants reads a participant table from CSV data in r.
// part_id is required; part_age, part_age_est_min, part_age_est_max,
// weekday, and n_cnt_all are optional.
func ReadParticipants(r io.Reader) ([]Participant, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	h, err := ReadHeader(cr)
	if err != nil {
		return nil, err
	}
	idCol, err := h.Require(partIDCols)
	if err != nil {
		return nil, err
	}
	dayCol := h.Find(weekdayCols)
	ageCol := h.Find("part_age")
	minCol := h.Find("part_age_est_min")
	maxCol := h.Find("part_age_est_max")
	cntCol := h.Find("n_cnt_all,n_cnt")

	var parts []Participant
	err = forEachRow(cr, func(line int, vals []string) error {
		wd, err := ParseWeekday(field(vals, dayCol))
		if err != nil {
			return err
		}
		p := NewParticipant(field(vals, idCol), wd)
		for dst, i := range map[*int]int{&p.Age: ageCol, &p.AgeEstMin: minCol, &p.AgeEstMax: maxCol} {
			if *dst, err = parseAge(field(vals, i)); err != nil {
				return err
			}
		}
		if s := field(vals, cntCol); s != "" && !strings.EqualFold(s, "NA") {
			if p.NumContacts, err = strconv.Atoi(s); err != nil {
				return fmt.Errorf("bad contact count %q", s)
			}
		}
		parts = append(parts, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return parts, nil
}

// ReadAgeGroups reads an ordered age-group table with name, age_low, and
// age_high columns from CSV data in r.
func ReadAgeGroups(r io.Reader) (AgeGroups, error) {
	cr := csv.NewReader(r)
	h, err := ReadHeader(cr)
	if err != nil {
		return nil, err
	}
	var nameCol, lowCol, highCol int
	for nameList, dst := range map[string]*int{
		"name,age_group": &nameCol,
		"age_low,low":    &lowCol,
		"age_high,high":  &highCol,
	} {
		if *dst, err = h.Require(nameList); err != nil {
			return nil, err
		}
	}

	var gs AgeGroups
	err = forEachRow(cr, func(line int, vals []string) error {
		low, err := strconv.Atoi(field(vals, lowCol))
		if err != nil {
			return fmt.Errorf("bad lower bound %q", field(vals, lowCol))
		}
		high, err := strconv.Atoi(field(vals, highCol))
		if err != nil {
			return fmt.Errorf("bad upper bound %q", field(vals, highCol))
		}
		gs = append(gs, AgeGroup{field(vals, nameCol), low, high})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := gs.Validate(); err != nil {
		return nil, err
	}
	return gs, nil
}

// contactCols is the header written by WriteContacts. The raw age columns
// come first so the output can be read back by ReadContacts and imputed again.
var contactCols = []string{
	"part_id", "weekday", "cnt_age", "cnt_age_exact", "cnt_age_est_min", "cnt_age_est_max",
	"age_low", "age_high", "age_est",
}

// WriteContacts atomically writes imputed contacts to p as CSV.
// Unresolved ages are written as "NA".
func WriteContacts(p string, cs []Contact) error {
	fw, err := filewriter.New(p)
	if err != nil {
		return err
	}
	age := func(v int) string {
		if v == NoAge {
			return "NA"
		}
		return strconv.Itoa(v)
	}
	cw := csv.NewWriter(fw)
	if err := cw.Write(contactCols); err != nil {
		fw.Abort()
		return err
	}
	for _, c := range cs {
		if err := cw.Write([]string{
			c.PartID, c.Weekday.String(), c.AgeGroup,
			age(c.AgeExact), age(c.AgeEstMin), age(c.AgeEstMax),
			age(c.AgeLow), age(c.AgeHigh), age(c.AgeEst),
		}); err != nil {
			fw.Abort()
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		fw.Abort()
		return err
	}
	return fw.Close()
}
