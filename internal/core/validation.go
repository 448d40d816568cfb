package core

// validation.go converts and checks a single cell against its FieldSpec.
//
// Validation happens at two levels:
//  1. Mapping validation: required fields must be bound to a column
//     (see ColumnMapping.Missing)
//  2. Cell validation: each non-empty cell is normalized, converted to its
//     typed value and checked by the field's Validator
//
// The transformer collects every cell error of a row so a preview can show
// all problems at once.

import (
	"fmt"
	"strings"
	"time"
)

// ConvertCell runs the per-field pipeline on a cleaned, non-empty cell and
// returns the typed value: string, int64, decimal.Decimal, time.Time or bool.
// Multi-value cells are split by the transformer; each item goes through
// here as a string. now anchors two-digit years.
func ConvertCell(raw string, spec FieldSpec, now time.Time) (any, error) {
	value := raw
	if spec.Normalizer != nil {
		value = spec.Normalizer(value)
	}

	var (
		out any
		err error
	)
	switch spec.Kind {
	case TransformDate:
		out, err = ParseDate(value, now)
	case TransformBoolean:
		out, err = ParseBool(value)
	case TransformNumeric:
		out, err = convertNumeric(value, spec)
	case TransformEnum:
		var s string
		s, err = MatchEnum(value, spec)
		if err == nil {
			value, out = s, s
		}
	default:
		out = value
	}
	if err != nil {
		return nil, err
	}

	if spec.Validator != nil {
		if err := spec.Validator(value); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// MatchEnum returns the allowed value matching raw, by normalized spelling
// first and then through the field's synonyms.
func MatchEnum(raw string, spec FieldSpec) (string, error) {
	tok := NormalizeToken(raw)
	for _, v := range spec.EnumValues {
		if NormalizeToken(v) == tok {
			return v, nil
		}
	}
	if v, ok := spec.Synonyms[tok]; ok {
		return v, nil
	}
	return "", fmt.Errorf("invalid enum value %q (allowed: %s)", raw, strings.Join(spec.EnumValues, ", "))
}

func convertNumeric(value string, spec FieldSpec) (any, error) {
	d, err := ParseDecimal(value)
	if err != nil {
		return nil, err
	}
	d, err = CheckNumericBounds(d, spec.Integer, spec.Precision, spec.Scale)
	if err != nil {
		return nil, err
	}
	if spec.Integer {
		return d.IntPart(), nil
	}
	return d, nil
}
