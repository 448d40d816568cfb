package core

// transform.go turns one RawRow into an EntityBundle. Core fields fill the
// core record; child fields sharing (group, slot) combine into one child
// record. Multi-value cells fan out into one child record per item.

import (
	"fmt"
	"strings"
	"time"
)

// TransformOptions carries job-level values for finalizers.
type TransformOptions struct {
	Now       func() time.Time
	CreatedBy string

	// DeferRequired moves empty required fields outside the natural key
	// into EntityBundle.Deferred instead of rejecting the row. Set it when
	// rows may update existing records.
	DeferRequired bool
}

// Transformer converts rows for one definition and one mapping.
// It holds no per-row state and is safe for sequential reuse.
type Transformer struct {
	def      *ImportDefinition
	bindings []binding
	opts     TransformOptions
	oneOf    []oneOfGroup
	key      map[string]bool
}

type binding struct {
	entry MappingEntry
	field FieldSpec
}

type oneOfGroup struct {
	tag    string
	fields []string
}

// NewTransformer prepares a transformer. Mapping entries naming fields the
// definition lacks are ignored.
func NewTransformer(def *ImportDefinition, mapping ColumnMapping, opts TransformOptions) *Transformer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	t := &Transformer{def: def, opts: opts, key: map[string]bool{}}
	for _, name := range def.Key.Columns {
		t.key[name] = true
	}
	for _, e := range mapping {
		if f, ok := def.Field(e.TargetField); ok {
			t.bindings = append(t.bindings, binding{entry: e, field: f})
		}
	}

	idx := map[string]int{}
	for _, f := range def.Fields {
		if f.OneOf == "" {
			continue
		}
		i, ok := idx[f.OneOf]
		if !ok {
			i = len(t.oneOf)
			idx[f.OneOf] = i
			t.oneOf = append(t.oneOf, oneOfGroup{tag: f.OneOf})
		}
		t.oneOf[i].fields = append(t.oneOf[i].fields, f.Name)
	}
	return t
}

// childKey identifies one pending child record.
type childKey struct {
	group GroupName
	slot  string
	item  int // Position within a multi-value cell, 0 otherwise
	col   int // Source column of a multi-value item
}

type pendingChild struct {
	key    childKey
	record Record
}

// Transform returns the bundle for row, or *TransformError listing every
// failing field. A row that failed to parse returns its *RowParseError.
func (t *Transformer) Transform(row RawRow) (*EntityBundle, error) {
	if row.Err != nil {
		return nil, row.Err
	}

	b := &EntityBundle{
		Type:      t.def.Type,
		RowNumber: row.Number,
		Core:      newRecord(t.def.Table),
	}

	now := t.opts.Now()

	var (
		errs      []FieldError
		children  []*pendingChild
		byKey     = map[childKey]*pendingChild{}
		satisfied = map[string]bool{}
	)

	child := func(k childKey) *Record {
		if c, ok := byKey[k]; ok {
			return &c.record
		}
		g, _ := t.def.Group(k.group)
		c := &pendingChild{key: k, record: newRecord(g.Table)}
		if g.SlotColumn != "" && k.slot != "" {
			c.record.Values[g.SlotColumn] = k.slot
		}
		byKey[k] = c
		children = append(children, c)
		return &c.record
	}

	for _, bd := range t.bindings {
		f := bd.field
		raw := CleanCell(row.Cell(bd.entry.SourceIndex))

		if raw == "" {
			if f.Required && !f.AllowEmpty && f.OneOf == "" {
				fe := FieldError{
					Column:  bd.entry.SourceHeader,
					Field:   f.Name,
					Message: "required field is empty",
				}
				if t.opts.DeferRequired && !t.key[f.Name] {
					b.Deferred = append(b.Deferred, fe)
				} else {
					errs = append(errs, fe)
				}
			}
			continue
		}

		if f.Kind == TransformMultiValue {
			errs = append(errs, t.splitMulti(bd, raw, now, child)...)
			if f.OneOf != "" {
				satisfied[f.OneOf] = true
			}
			continue
		}

		v, err := ConvertCell(raw, f, now)
		if err != nil {
			errs = append(errs, FieldError{
				Column:  bd.entry.SourceHeader,
				Field:   f.Name,
				Value:   raw,
				Message: err.Error(),
			})
			continue
		}
		if f.OneOf != "" {
			satisfied[f.OneOf] = true
		}

		if f.Group == "" {
			b.Core.Values[f.DBColumn()] = v
		} else {
			child(childKey{group: f.Group, slot: f.Slot}).Values[f.DBColumn()] = v
		}
	}

	for _, g := range t.oneOf {
		if !satisfied[g.tag] {
			errs = append(errs, FieldError{
				Field:   strings.Join(g.fields, "|"),
				Message: "required field is empty (one of " + strings.Join(g.fields, ", ") + ")",
			})
		}
	}

	if len(errs) > 0 {
		return nil, &TransformError{RowNumber: row.Number, Fields: errs}
	}

	t.applyDefaults(&b.Core, "", "")
	for _, c := range children {
		g, _ := t.def.Group(c.key.group)
		if !triggered(g, c.record) {
			continue
		}
		t.applyDefaults(&c.record, c.key.group, c.key.slot)
		b.addChild(c.key.group, c.record)
	}

	if t.def.Finalize != nil {
		t.def.Finalize(b, FinalizeEnv{Now: now, CreatedBy: t.opts.CreatedBy})
	}
	return b, nil
}

// splitMulti fans a multi-value cell into child records, one per item.
func (t *Transformer) splitMulti(bd binding, raw string, now time.Time, child func(childKey) *Record) []FieldError {
	f := bd.field
	var errs []FieldError
	for i, item := range SplitMultiValue(raw) {
		slot := f.Slot
		if f.Classify != nil {
			s, ok := f.Classify(item)
			if !ok {
				errs = append(errs, FieldError{
					Column:  bd.entry.SourceHeader,
					Field:   f.Name,
					Value:   item,
					Message: fmt.Sprintf("cannot classify value %q", item),
				})
				continue
			}
			slot = s
		}

		itemSpec := f
		itemSpec.Kind = TransformString
		v, err := ConvertCell(item, itemSpec, now)
		if err != nil {
			errs = append(errs, FieldError{
				Column:  bd.entry.SourceHeader,
				Field:   f.Name,
				Value:   item,
				Message: err.Error(),
			})
			continue
		}
		k := childKey{group: f.Group, slot: slot, item: i + 1, col: bd.entry.SourceIndex}
		child(k).Values[f.DBColumn()] = v
	}
	return errs
}

// applyDefaults sets insert-only defaults of the fields routed to rec.
func (t *Transformer) applyDefaults(rec *Record, group GroupName, slot string) {
	for _, f := range t.def.Fields {
		if f.Default == nil || f.Group != group {
			continue
		}
		if group != "" && f.Slot != "" && f.Slot != slot {
			continue
		}
		rec.SetDefault(f.DBColumn(), f.Default)
	}
}

// triggered reports whether a child record carries enough data to be written.
func triggered(g ChildGroupDef, rec Record) bool {
	if len(g.Trigger) == 0 {
		for col := range rec.Values {
			if col != g.SlotColumn {
				return true
			}
		}
		return false
	}
	for _, col := range g.Trigger {
		if v, ok := rec.Values[col]; ok && v != "" {
			return true
		}
	}
	return false
}
