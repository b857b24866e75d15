// Copyright 2020 Daniel Erat <dan@erat.org>.
// All rights reserved.

package survey

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// AgeGroup is a named, bound-inclusive age range.
type AgeGroup struct {
	Name string
	Low  int
	High int
}

// Contains returns true if age falls within g's bounds.
func (g AgeGroup) Contains(age int) bool { return age >= g.Low && age <= g.High }

// AgeGroups is an ordered age-group partition.
type AgeGroups []AgeGroup

// Find returns the index of the first group containing age.
// false is returned if no group contains it.
func (gs AgeGroups) Find(age int) (int, bool) {
	if age == NoAge {
		return -1, false
	}
	for i, g := range gs {
		if g.Contains(age) {
			return i, true
		}
	}
	return -1, false
}

// Names returns the groups' names in order.
func (gs AgeGroups) Names() []string {
	names := make([]string, len(gs))
	for i, g := range gs {
		names[i] = g.Name
	}
	return names
}

// ByName returns a map from group name to group.
func (gs AgeGroups) ByName() map[string]AgeGroup {
	m := make(map[string]AgeGroup, len(gs))
	for _, g := range gs {
		m[g.Name] = g
	}
	return m
}

// Validate checks that each group is well-formed and that groups are ordered
// and don't overlap.
func (gs AgeGroups) Validate() error {
	names := make(map[string]struct{}, len(gs))
	for i, g := range gs {
		if g.Low < 0 || g.Low > g.High {
			return fmt.Errorf("age group %q has bad bounds [%d, %d]", g.Name, g.Low, g.High)
		}
		if _, ok := names[g.Name]; ok {
			return fmt.Errorf("duplicate age group %q", g.Name)
		}
		names[g.Name] = struct{}{}
		if i > 0 && g.Low <= gs[i-1].High {
			return fmt.Errorf("age group %q overlaps %q", g.Name, gs[i-1].Name)
		}
	}
	return nil
}

var (
	dashRegexp     = regexp.MustCompile(`^(\d+)\s*(?:-|to)\s*(\d+)$`)    // "0-4", "30 to 39"
	plusRegexp     = regexp.MustCompile(`^(\d+)\s*\+$`)                   // "70+"
	intervalRegexp = regexp.MustCompile(`^\[(\d+)\s*,\s*(\d+|Inf)\s*\)$`) // "[5,10)", "[70,Inf)"
)

// ParseAgeGroup parses a label such as "0-4", "30 to 39", "70+", or "[5,10)".
// Open-ended groups are capped at maxAge.
func ParseAgeGroup(label string, maxAge int) (AgeGroup, error) {
	s := strings.TrimSpace(label)
	atoi := func(v string) int { n, _ := strconv.Atoi(v); return n } // regexps only match digits

	var g AgeGroup
	if m := dashRegexp.FindStringSubmatch(s); m != nil {
		g = AgeGroup{label, atoi(m[1]), atoi(m[2])}
	} else if m := plusRegexp.FindStringSubmatch(s); m != nil {
		g = AgeGroup{label, atoi(m[1]), maxAge}
	} else if m := intervalRegexp.FindStringSubmatch(s); m != nil {
		high := maxAge
		if m[2] != "Inf" {
			high = atoi(m[2]) - 1
		}
		g = AgeGroup{label, atoi(m[1]), high}
	} else {
		return AgeGroup{}, fmt.Errorf("unparseable age group %q", label)
	}
	if g.Low > g.High {
		return AgeGroup{}, fmt.Errorf("age group %q has bad bounds [%d, %d]", label, g.Low, g.High)
	}
	return g, nil
}

// AgeGroupsFromLimits returns groups starting at each of the supplied
// ascending lower limits. The last group ends at maxAge and is named "N+".
func AgeGroupsFromLimits(limits []int, maxAge int) (AgeGroups, error) {
	if len(limits) == 0 {
		return nil, fmt.Errorf("no age limits")
	}
	gs := make(AgeGroups, len(limits))
	for i, low := range limits {
		if i > 0 && low <= limits[i-1] {
			return nil, fmt.Errorf("age limits not ascending at %d", low)
		}
		if i == len(limits)-1 {
			if low > maxAge {
				return nil, fmt.Errorf("last limit %d exceeds max age %d", low, maxAge)
			}
			gs[i] = AgeGroup{fmt.Sprintf("%d+", low), low, maxAge}
		} else {
			gs[i] = AgeGroup{fmt.Sprintf("%d-%d", low, limits[i+1]-1), low, limits[i+1] - 1}
		}
	}
	return gs, nil
}
