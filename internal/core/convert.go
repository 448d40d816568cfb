package core

// convert.go provides the conversions behind each TransformKind.
//
// These functions handle the messy reality of spreadsheet exports:
//   - Day-first Italian dates next to ISO dates
//   - Comma decimal separators and dot thousands separators
//   - Italian and English boolean tokens (si/no, vero/falso, x)
//   - Excel formula prefixes (="value")
//
// Every parser returns an error naming the problem so the transformer can
// attach it to the offending column.

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// numericRegex validates a number after separator cleanup.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would land more than this many years in the future are moved
// to the previous century.
var TwoDigitYearPivot = 20

// MultiValueSeparator splits multi-value cells.
const MultiValueSeparator = ";"

var (
	fourDigitYearLayouts = []string{
		"2006-01-02", "02/01/2006", "2/1/2006", "02-01-2006", "2-1-2006",
		"2006/01/02", "02.01.2006", "2.1.2006",
		"2006-01-02 15:04:05", "2006-01-02T15:04:05", "02/01/2006 15:04", "02/01/2006 15:04:05",
	}
	twoDigitYearLayouts = []string{
		"02/01/06", "2/1/06", "02-01-06", "02.01.06",
	}
)

var (
	trueTokens  = map[string]bool{"si": true, "s": true, "yes": true, "y": true, "true": true, "t": true, "1": true, "x": true, "vero": true}
	falseTokens = map[string]bool{"no": true, "n": true, "false": true, "f": true, "0": true, "falso": true}
)

// CleanCell removes common CSV artifacts from a cell value:
//   - Trims whitespace (including non-breaking spaces)
//   - Removes Excel formula prefix (="...")
//   - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimFunc(s, unicode.IsSpace)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		s = s[2 : len(s)-1]
	}

	s = strings.Trim(s, `"`)
	return strings.TrimFunc(s, unicode.IsSpace)
}

// ParseDate parses s against the fixed set of accepted layouts.
// The result is a UTC date with the time of day dropped. Two-digit years
// pivot around now.
func ParseDate(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)

	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dateOnly(t), nil
		}
	}

	pivotYear := now.Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return dateOnly(t), nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid date %q (use DD/MM/YYYY or YYYY-MM-DD)", s)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseBool parses s against the fixed boolean token set.
func ParseBool(s string) (bool, error) {
	tok := NormalizeToken(s)
	switch {
	case trueTokens[tok]:
		return true, nil
	case falseTokens[tok]:
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q (use si/no)", s)
}

// ParseDecimal parses a locale-aware number.
//
// When both '.' and ',' appear, the last one is the decimal separator.
// A single ',' or '.' is a decimal separator; a repeated one separates
// thousands. Euro signs, spaces and accounting parentheses are accepted.
func ParseDecimal(s string) (decimal.Decimal, error) {
	raw := s
	s = strings.TrimSpace(s)

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	s = strings.NewReplacer("\u20ac", "", " ", "", "\u00a0", "", "'", "").Replace(s)

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	if negative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return decimal.Decimal{}, fmt.Errorf("invalid number %q", raw)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid number %q: %w", raw, err)
	}
	return d, nil
}

// CheckNumericBounds enforces integer and precision/scale limits.
// precision 0 means unbounded. Values with more decimals than scale are rounded.
func CheckNumericBounds(d decimal.Decimal, integer bool, precision, scale int) (decimal.Decimal, error) {
	if integer {
		if !d.Equal(d.Truncate(0)) {
			return d, fmt.Errorf("invalid number %s: must be a whole number", d.String())
		}
		if d.GreaterThan(maxInt32) || d.LessThan(minInt32) {
			return d, fmt.Errorf("numeric overflow: %s", d.String())
		}
		return d, nil
	}

	if scale > 0 || precision > 0 {
		d = d.Round(int32(scale))
	}
	if precision > 0 {
		intDigits := len(d.Truncate(0).Abs().String())
		if d.Abs().LessThan(decimal.NewFromInt(1)) {
			intDigits = 0
		}
		if intDigits > precision-scale {
			return d, fmt.Errorf("numeric overflow: %s exceeds %d digits", d.String(), precision-scale)
		}
	}
	return d, nil
}

var (
	maxInt32 = decimal.NewFromInt(2147483647)
	minInt32 = decimal.NewFromInt(-2147483648)
)

// stripMarks removes combining diacritics after NFD decomposition.
var stripMarks = runes.Remove(runes.In(unicode.Mn))

// foldAccents returns s lowercased with diacritics removed ("Città" -> "citta").
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, stripMarks, norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// NormalizeToken prepares an enum or boolean cell for lookup:
// lowercase, accents removed, runs of spaces, hyphens and dots become '_'.
func NormalizeToken(s string) string {
	s = foldAccents(strings.TrimSpace(s))
	var b strings.Builder
	sep := false
	for _, r := range s {
		if r == ' ' || r == '-' || r == '_' || r == '.' || r == '/' {
			sep = true
			continue
		}
		if sep && b.Len() > 0 {
			b.WriteByte('_')
		}
		sep = false
		b.WriteRune(r)
	}
	return b.String()
}

// SplitMultiValue splits a multi-value cell on MultiValueSeparator,
// trimming items and dropping empty ones.
func SplitMultiValue(s string) []string {
	parts := strings.Split(s, MultiValueSeparator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
