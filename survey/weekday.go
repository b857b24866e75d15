// Copyright 2020 Daniel Erat <dan@erat.org>.
// All rights reserved.

package survey

import (
	"fmt"
	"strconv"
	"strings"
)

// Weekday is the day of the week that a participant reported contacts for.
type Weekday int

const (
	WeekdayUnknown Weekday = iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayNames = map[Weekday]string{
	Monday:    "Monday",
	Tuesday:   "Tuesday",
	Wednesday: "Wednesday",
	Thursday:  "Thursday",
	Friday:    "Friday",
	Saturday:  "Saturday",
	Sunday:    "Sunday",
}

func (w Weekday) String() string {
	if s, ok := weekdayNames[w]; ok {
		return s
	}
	return "Unknown"
}

// Weekend returns true for Saturday and Sunday.
func (w Weekday) Weekend() bool { return w == Saturday || w == Sunday }

// ParseWeekday parses full or three-letter English day names (case-insensitive)
// or ISO 8601 day numbers (1 for Monday through 7 for Sunday).
// Empty strings, "NA", and "Unknown" produce WeekdayUnknown.
func ParseWeekday(s string) (Weekday, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "NA") || strings.EqualFold(s, "Unknown") {
		return WeekdayUnknown, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < int(Monday) || n > int(Sunday) {
			return WeekdayUnknown, fmt.Errorf("invalid day number %d", n)
		}
		return Weekday(n), nil
	}
	for w, name := range weekdayNames {
		if strings.EqualFold(s, name) || strings.EqualFold(s, name[:3]) {
			return w, nil
		}
	}
	return WeekdayUnknown, fmt.Errorf("invalid weekday %q", s)
}
