package engine

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Replacement vocabularies for address synthesis. Deterministic indexing by
// keyed hash keeps repeated originals mapping to the same replacement.
var streetNames = []string{
	"Redwood", "Maple", "Cedar", "Willow", "Summit",
	"Riverview", "Sunset", "Hillcrest", "Parkside", "Lakeside",
	"Prairie", "Riverstone", "Oak Grove", "Silverpine", "Meadowbrook",
}

var streetSuffixes = []string{
	"St", "Ave", "Dr", "Ln", "Way", "Rd", "Terrace", "Court", "Place", "Trail",
}

var cityNames = []string{
	"Riverton", "Oakridge", "Fairview", "Brookfield", "Sunnyvale",
	"Highland", "Glenmont", "Clearwater", "Silverpine", "Lakeshore",
	"Grand Harbor", "Cedar Grove", "Mapleton", "Pinecrest", "Harborside",
}

// stateFIPSPrefix maps two-letter state codes to their FIPS prefix, used as
// the leading digits of synthesized postal codes so the result stays
// plausible for the patient's state without retaining the original ZIP.
var stateFIPSPrefix = map[string]int{
	"AL": 1, "AK": 2, "AZ": 4, "AR": 5, "CA": 6, "CO": 8, "CT": 9,
	"DE": 10, "DC": 11, "FL": 12, "GA": 13, "HI": 15, "ID": 16, "IL": 17,
	"IN": 18, "IA": 19, "KS": 20, "KY": 21, "LA": 22, "ME": 23, "MD": 24,
	"MA": 25, "MI": 26, "MN": 27, "MS": 28, "MO": 29, "MT": 30, "NE": 31,
	"NV": 32, "NH": 33, "NJ": 34, "NM": 35, "NY": 36, "NC": 37, "ND": 38,
	"OH": 39, "OK": 40, "OR": 41, "PA": 42, "RI": 44, "SC": 45, "SD": 46,
	"TN": 47, "TX": 48, "UT": 49, "VT": 50, "VA": 51, "WA": 53, "WV": 54,
	"WI": 55, "WY": 56, "PR": 72,
}

var twoLetterState = regexp.MustCompile(`^[A-Za-z]{2}$`)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"01/02/2006",
}

func parseDate(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, nil
		}
	}
	// Never echo the value itself, it may be PHI.
	return time.Time{}, fmt.Errorf("unparsable date (%d chars)", len(value))
}

// generalizeBirthDate applies the Safe Harbor age rule. Patients aged 90 or
// older at the reference time lose the date entirely; younger dates truncate
// to January 1 of the birth year. An unparsable input drops the field.
func generalizeBirthDate(value string, now time.Time) (string, Action, error) {
	dob, err := parseDate(value)
	if err != nil {
		return "", ActionDrop, err
	}
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	if age >= 90 {
		return "", ActionRedact, nil
	}
	return fmt.Sprintf("%04d-01-01", dob.Year()), ActionGeneralize, nil
}

// generalizeEffectiveDate truncates any parseable date to January 1 of its
// year. An unparsable input drops the field.
func generalizeEffectiveDate(value string) (string, Action, error) {
	t, err := parseDate(value)
	if err != nil {
		return "", ActionDrop, err
	}
	return fmt.Sprintf("%04d-01-01", t.Year()), ActionGeneralize, nil
}

func synthesizeStreet(seed uint64, original string) string {
	number := (seed % 9000) + 100
	nameIndex := int(seed % uint64(len(streetNames)))
	suffixIndex := int((seed / uint64(len(streetNames))) % uint64(len(streetSuffixes)))
	street := fmt.Sprintf("%d %s %s", number, streetNames[nameIndex], streetSuffixes[suffixIndex])
	if original != "" && strings.EqualFold(street, original) {
		nameIndex = (nameIndex + 1) % len(streetNames)
		suffixIndex = (suffixIndex + 1) % len(streetSuffixes)
		number = ((number + 73) % 9000) + 100
		street = fmt.Sprintf("%d %s %s", number, streetNames[nameIndex], streetSuffixes[suffixIndex])
	}
	return street
}

func synthesizeCity(seed uint64, original string) string {
	index := int(seed % uint64(len(cityNames)))
	city := cityNames[index]
	if original != "" && strings.EqualFold(city, original) {
		city = cityNames[(index+1)%len(cityNames)]
	}
	return city
}

func synthesizePostalCode(seed uint64, original, state string) string {
	if prefix, ok := stateFIPSPrefix[state]; ok {
		digits := seed % 1000
		postal := fmt.Sprintf("%02d%03d", prefix, digits)
		if postal == original {
			postal = fmt.Sprintf("%02d%03d", prefix, (digits+1)%1000)
		}
		return postal
	}
	postal := fmt.Sprintf("%05d", (seed%90000)+10000)
	if postal == original {
		postal = fmt.Sprintf("%05d", ((seed+1)%90000)+10000)
	}
	return postal
}
