package core

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// KeyFinder looks up existing records by natural key. Matching is on
// NormalizeKey of both sides.
type KeyFinder interface {
	FindByKey(ctx context.Context, table, column, key string) ([]string, error)
}

// DuplicateResolver decides whether a bundle inserts, updates or conflicts.
type DuplicateResolver struct {
	def *ImportDefinition
}

// NewDuplicateResolver creates a resolver for def's natural key.
func NewDuplicateResolver(def *ImportDefinition) *DuplicateResolver {
	return &DuplicateResolver{def: def}
}

// NormalizeKey uppercases s and removes all whitespace.
func NormalizeKey(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, s)
}

// Resolve tags b with a DuplicateDecision. Lookup errors are returned
// unchanged so storage failures keep their classification.
func (r *DuplicateResolver) Resolve(ctx context.Context, finder KeyFinder, b *EntityBundle, update bool) (DuplicateDecision, error) {
	var (
		matches []string
		column  string
		key     string
	)
	for _, name := range r.def.Key.Columns {
		col := r.column(name)
		k := NormalizeKey(keyString(b.Core.Values[col]))
		if k == "" {
			continue
		}
		ids, err := finder.FindByKey(ctx, r.def.Table, col, k)
		if err != nil {
			return DuplicateDecision{}, fmt.Errorf("lookup %s: %w", col, err)
		}
		matches, column, key = ids, col, k
		break
	}

	if len(matches) > 1 {
		return DuplicateDecision{
			Action:        ActionConflict,
			MatchedColumn: column,
			MatchedKey:    key,
			Reason:        fmt.Sprintf("ambiguous match: %d records with %s %s", len(matches), column, key),
		}, nil
	}

	var existing string
	if len(matches) == 1 {
		existing = matches[0]
	}

	for _, name := range r.def.Key.Guard {
		col := r.column(name)
		gk := NormalizeKey(keyString(b.Core.Values[col]))
		if gk == "" {
			continue
		}
		ids, err := finder.FindByKey(ctx, r.def.Table, col, gk)
		if err != nil {
			return DuplicateDecision{}, fmt.Errorf("lookup %s: %w", col, err)
		}
		for _, id := range ids {
			if id != existing {
				return DuplicateDecision{
					Action:        ActionConflict,
					ExistingID:    id,
					MatchedColumn: col,
					MatchedKey:    gk,
					Reason:        fmt.Sprintf("%s %s già associato a un altro record", col, gk),
				}, nil
			}
		}
	}

	switch {
	case existing == "":
		return DuplicateDecision{Action: ActionInsert}, nil
	case update:
		return DuplicateDecision{
			Action:        ActionUpdate,
			ExistingID:    existing,
			MatchedColumn: column,
			MatchedKey:    key,
		}, nil
	default:
		reason := r.def.Key.ConflictReason
		if reason == "" {
			reason = fmt.Sprintf("%s %s already exists", column, key)
		}
		return DuplicateDecision{
			Action:        ActionConflict,
			ExistingID:    existing,
			MatchedColumn: column,
			MatchedKey:    key,
			Reason:        reason,
		}, nil
	}
}

func (r *DuplicateResolver) column(field string) string {
	if f, ok := r.def.Field(field); ok {
		return f.DBColumn()
	}
	return field
}

func keyString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
