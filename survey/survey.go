// Copyright 2020 Daniel Erat <dan@erat.org>.
// All rights reserved.

// Package survey defines the participant, contact, and age-group tables
// shared by the imputation and matrix packages.
package survey

// NoAge marks an age that wasn't reported or hasn't been resolved yet.
const NoAge = -1

// Columns records which optional age columns were present in a contact table.
type Columns uint8

const (
	ColAgeExact Columns = 1 << iota // cnt_age_exact
	ColAgeEstMin                    // cnt_age_est_min
	ColAgeEstMax                    // cnt_age_est_max
	ColAgeGroup                     // cnt_age

	// ColAgeRange contains the raw numeric age columns.
	ColAgeRange = ColAgeExact | ColAgeEstMin | ColAgeEstMax
)

// Has returns true if all columns in o are present in c.
func (c Columns) Has(o Columns) bool { return c&o == o }

// Contact is a single contact reported by a participant.
type Contact struct {
	PartID  string  // participant that reported the contact
	Weekday Weekday // day the contacts were made

	// Raw ages as reported. Either AgeGroup or the numeric fields are set,
	// depending on how the survey coded contact ages.
	AgeGroup  string // age-group label, e.g. "18-29"
	AgeExact  int
	AgeEstMin int
	AgeEstMax int

	// Derived during imputation.
	AgeLow  int
	AgeHigh int
	AgeEst  int // point estimate, NoAge until resolved
}

// NewContact returns a contact for partID with all ages set to NoAge.
func NewContact(partID string, wd Weekday) Contact {
	return Contact{
		PartID:    partID,
		Weekday:   wd,
		AgeExact:  NoAge,
		AgeEstMin: NoAge,
		AgeEstMax: NoAge,
		AgeLow:    NoAge,
		AgeHigh:   NoAge,
		AgeEst:    NoAge,
	}
}

// RangeKnown returns true if both derived bounds are set.
func (c *Contact) RangeKnown() bool {
	return c.AgeLow != NoAge && c.AgeHigh != NoAge
}

// ContactTable holds contacts along with the age columns their source provided.
type ContactTable struct {
	Columns  Columns
	Contacts []Contact
}

// Participant is a survey respondent.
type Participant struct {
	PartID      string
	Age         int // NoAge if not reported
	AgeEstMin   int
	AgeEstMax   int
	Weekday     Weekday
	NumContacts int // n_cnt_all
}

// NewParticipant returns a participant with all ages set to NoAge.
func NewParticipant(partID string, wd Weekday) Participant {
	return Participant{
		PartID:    partID,
		Age:       NoAge,
		AgeEstMin: NoAge,
		AgeEstMax: NoAge,
		Weekday:   wd,
	}
}

// PartIDs returns the distinct participant IDs in cs in order of first appearance.
func PartIDs(cs []Contact) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, c := range cs {
		if _, ok := seen[c.PartID]; !ok {
			seen[c.PartID] = struct{}{}
			ids = append(ids, c.PartID)
		}
	}
	return ids
}
