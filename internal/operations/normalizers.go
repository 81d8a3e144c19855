package operations

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/csvimport/internal/core"
)

// usStates maps lowercase US state names to their postal codes.
var usStates = map[string]string{
	"alabama":              "AL",
	"alaska":               "AK",
	"arizona":              "AZ",
	"arkansas":             "AR",
	"california":           "CA",
	"colorado":             "CO",
	"connecticut":          "CT",
	"delaware":             "DE",
	"florida":              "FL",
	"georgia":              "GA",
	"hawaii":               "HI",
	"idaho":                "ID",
	"illinois":             "IL",
	"indiana":              "IN",
	"iowa":                 "IA",
	"kansas":               "KS",
	"kentucky":             "KY",
	"louisiana":            "LA",
	"maine":                "ME",
	"maryland":             "MD",
	"massachusetts":        "MA",
	"michigan":             "MI",
	"minnesota":            "MN",
	"mississippi":          "MS",
	"missouri":             "MO",
	"montana":              "MT",
	"nebraska":             "NE",
	"nevada":               "NV",
	"new hampshire":        "NH",
	"new jersey":           "NJ",
	"new mexico":           "NM",
	"new york":             "NY",
	"north carolina":       "NC",
	"north dakota":         "ND",
	"ohio":                 "OH",
	"oklahoma":             "OK",
	"oregon":               "OR",
	"pennsylvania":         "PA",
	"rhode island":         "RI",
	"south carolina":       "SC",
	"south dakota":         "SD",
	"tennessee":            "TN",
	"texas":                "TX",
	"utah":                 "UT",
	"vermont":              "VT",
	"virginia":             "VA",
	"washington":           "WA",
	"west virginia":        "WV",
	"wisconsin":            "WI",
	"wyoming":              "WY",
	"district of columbia": "DC",
}

var usStateCodes = func() map[string]bool {
	codes := make(map[string]bool, len(usStates))
	for _, code := range usStates {
		codes[code] = true
	}
	return codes
}()

// NormalizeUsState returns the postal code for a state name or code, and
// false when s is neither.
func NormalizeUsState(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if code, ok := usStates[strings.ToLower(s)]; ok {
		return code, true
	}
	if code := strings.ToUpper(s); usStateCodes[code] {
		return code, true
	}
	return s, false
}

// normalizeState is a field process hook mapping state names to codes.
// Unknown values pass through unchanged.
func normalizeState(value any, _ core.MappedRow) (any, error) {
	s, ok := value.(string)
	if !ok || s == "" {
		return value, nil
	}
	code, _ := NormalizeUsState(s)
	return code, nil
}

// validateState rejects values that are not US states when the row's
// country is US or empty.
func validateState(value any, row core.MappedRow) error {
	s, ok := value.(string)
	if !ok || s == "" {
		return nil
	}
	country := strings.ToUpper(strings.TrimSpace(core.Stringify(row["country"])))
	if country != "" && country != "US" && country != "USA" {
		return nil
	}
	if _, ok := NormalizeUsState(s); !ok {
		return fmt.Errorf("%q is not a US state", s)
	}
	return nil
}
