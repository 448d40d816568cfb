package tables

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/easyvol/csvimport/internal/core"
)

// ---------------------------------------------------------------------------
// Italian tax code (codice fiscale)
// ---------------------------------------------------------------------------

var taxCodeFormat = regexp.MustCompile(`^[A-Z]{6}[0-9]{2}[A-Z][0-9]{2}[A-Z0-9]{4}[A-Z]$`)

// Odd positions are 1-based; index 0 of the code is an odd position.
var taxCodeOdd = map[rune]int{
	'0': 1, '1': 0, '2': 5, '3': 7, '4': 9, '5': 13, '6': 15, '7': 17, '8': 19, '9': 21,
	'A': 1, 'B': 0, 'C': 5, 'D': 7, 'E': 9, 'F': 13, 'G': 15, 'H': 17, 'I': 19, 'J': 21,
	'K': 2, 'L': 4, 'M': 18, 'N': 20, 'O': 11, 'P': 3, 'Q': 6, 'R': 8, 'S': 12, 'T': 14,
	'U': 16, 'V': 10, 'W': 22, 'X': 25, 'Y': 24, 'Z': 23,
}

var taxCodeMonths = map[byte]time.Month{
	'A': time.January, 'B': time.February, 'C': time.March, 'D': time.April,
	'E': time.May, 'H': time.June, 'L': time.July, 'M': time.August,
	'P': time.September, 'R': time.October, 'S': time.November, 'T': time.December,
}

var (
	errTaxCodeFormat   = errors.New("invalid tax code format")
	errTaxCodeChecksum = errors.New("invalid tax code checksum")
)

// NormalizeTaxCode uppercases a tax code and removes whitespace.
func NormalizeTaxCode(s string) string {
	return core.NormalizeKey(s)
}

// ValidateTaxCode checks format and check character.
func ValidateTaxCode(s string) error {
	code := NormalizeTaxCode(s)
	if !taxCodeFormat.MatchString(code) {
		return errTaxCodeFormat
	}
	if taxCodeCheckChar(code) != code[15] {
		return errTaxCodeChecksum
	}
	return nil
}

func taxCodeCheckChar(code string) byte {
	sum := 0
	for i, r := range code[:15] {
		if i%2 == 0 {
			sum += taxCodeOdd[r]
			continue
		}
		if r >= '0' && r <= '9' {
			sum += int(r - '0')
		} else {
			sum += int(r - 'A')
		}
	}
	return byte('A' + sum%26)
}

// DecodeTaxCode extracts birth date and gender from a valid tax code.
// Two-digit years land in the current century unless that would be in the future.
func DecodeTaxCode(s string, now time.Time) (birth time.Time, gender string, ok bool) {
	code := NormalizeTaxCode(s)
	if ValidateTaxCode(code) != nil {
		return time.Time{}, "", false
	}

	yy, _ := strconv.Atoi(code[6:8])
	month, found := taxCodeMonths[code[8]]
	if !found {
		return time.Time{}, "", false
	}
	day, _ := strconv.Atoi(code[9:11])

	gender = "M"
	if day > 40 {
		gender = "F"
		day -= 40
	}

	year := now.Year()/100*100 + yy
	if year > now.Year() {
		year -= 100
	}

	birth = time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if birth.Day() != day || birth.Month() != month {
		return time.Time{}, "", false
	}
	return birth, gender, true
}

// deriveFromTaxCode sets birth_date and gender defaults from the tax code.
func deriveFromTaxCode(rec *core.Record, now time.Time) {
	if rec.Has("birth_date") && rec.Has("gender") {
		return
	}
	birth, gender, ok := DecodeTaxCode(rec.String("tax_code"), now)
	if !ok {
		return
	}
	rec.SetDefault("birth_date", birth)
	rec.SetDefault("gender", gender)
}

// ---------------------------------------------------------------------------
// Contacts
// ---------------------------------------------------------------------------

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidateEmail rejects values that are not a single address.
func ValidateEmail(s string) error {
	if !emailRegex.MatchString(s) {
		return fmt.Errorf("invalid email %q", s)
	}
	return nil
}

// NormalizeEmail lowercases an address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizePhone drops separators, keeping digits and a leading '+'.
func NormalizePhone(s string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(s) {
		if unicode.IsDigit(r) || (r == '+' && i == 0) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isPhone(s string) bool {
	digits := 0
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '+' || r == ' ' || r == '-' || r == '.' || r == '/' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits >= 6
}

// ClassifyContact assigns an item of a multi-value contact cell to its
// contact type: pec or email for addresses, cellulare or telefono_fisso
// for numbers.
func ClassifyContact(item string) (string, bool) {
	switch {
	case strings.Contains(item, "@"):
		if strings.Contains(strings.ToLower(item), "@pec.") || strings.Contains(strings.ToLower(item), ".pec.") {
			return "pec", true
		}
		return "email", true
	case isPhone(item):
		n := strings.TrimPrefix(NormalizePhone(item), "+39")
		if strings.HasPrefix(n, "3") {
			return "cellulare", true
		}
		return "telefono_fisso", true
	}
	return "", false
}

// ---------------------------------------------------------------------------
// Places and misc
// ---------------------------------------------------------------------------

// NormalizeProvince uppercases a province code ("mi" -> "MI").
func NormalizeProvince(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizePlate uppercases a license plate and removes spaces and dashes.
func NormalizePlate(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' {
			return -1
		}
		return unicode.ToUpper(r)
	}, s)
}

// ValidateYear accepts four-digit years between 1900 and 2100.
func ValidateYear(s string) error {
	y, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || len(strings.TrimSpace(s)) != 4 || y < 1900 || y > 2100 {
		return fmt.Errorf("invalid number %q: year must have 4 digits", s)
	}
	return nil
}

// capRegex matches the five-digit Italian postal code.
var capRegex = regexp.MustCompile(`^\d{5}$`)

// NormalizeCAP left-pads postal codes that lost their leading zeros.
func NormalizeCAP(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 0 && len(s) < 5 && strings.Trim(s, "0123456789") == "" {
		return strings.Repeat("0", 5-len(s)) + s
	}
	return s
}

// ValidateCAP checks the postal code shape.
func ValidateCAP(s string) error {
	if !capRegex.MatchString(s) {
		return fmt.Errorf("invalid postal code %q", s)
	}
	return nil
}

var genderSynonyms = map[string]string{
	"maschio": "M", "male": "M", "uomo": "M",
	"femmina": "F", "female": "F", "donna": "F",
}
