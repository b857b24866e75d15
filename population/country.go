// Copyright 2020 Daniel Erat <dan@erat.org>.
// All rights reserved.

package population

import (
	"fmt"
	"strings"

	"github.com/derat/contacts/survey"
)

// Short country codes used by the survey, mapped to ISO 3166-1 alpha-3 codes.
var countryCodes = map[string]string{
	"uk": "GBR",
	"be": "BEL",
	"nl": "NLD",
	"no": "NOR",
}

// ResolveCountry returns iso3 (upper-cased) if it's non-empty, and otherwise
// maps the short code to its ISO3 code.
func ResolveCountry(code, iso3 string) (string, error) {
	if iso3 = strings.TrimSpace(iso3); iso3 != "" {
		return strings.ToUpper(iso3), nil
	}
	if c, ok := countryCodes[strings.ToLower(strings.TrimSpace(code))]; ok {
		return c, nil
	}
	return "", fmt.Errorf("%w: no ISO3 code for country %q", survey.ErrConfiguration, code)
}
