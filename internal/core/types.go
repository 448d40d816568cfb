// Package core provides the CSV import engine: detection, parsing, column
// mapping, row splitting, duplicate resolution and per-row transactional
// persistence. This package has no HTTP or SQL dependencies; storage is
// reached through the Store and JobLog interfaces.
package core

import (
	"maps"
	"time"
)

// ImportType identifies what kind of records a file contains.
type ImportType string

const (
	TypeAdultMember   ImportType = "adult_member"
	TypeJuniorMember  ImportType = "junior_member"
	TypeVehicle       ImportType = "vehicle"
	TypeWarehouseItem ImportType = "warehouse_item"
)

// ImportTypes lists the closed set of import types in display order.
var ImportTypes = []ImportType{TypeAdultMember, TypeJuniorMember, TypeVehicle, TypeWarehouseItem}

// Valid reports whether t is one of the known import types.
func (t ImportType) Valid() bool {
	for _, known := range ImportTypes {
		if t == known {
			return true
		}
	}
	return false
}

// TransformKind is the closed set of per-field conversions.
type TransformKind string

const (
	TransformString     TransformKind = "string"
	TransformDate       TransformKind = "date"
	TransformEnum       TransformKind = "enum"
	TransformBoolean    TransformKind = "boolean"
	TransformNumeric    TransformKind = "numeric"
	TransformMultiValue TransformKind = "multi_value_split"
)

// GroupName names a child-record group of an EntityBundle.
type GroupName string

const (
	GroupContacts    GroupName = "contacts"
	GroupAddresses   GroupName = "addresses"
	GroupEmployment  GroupName = "employment"
	GroupGuardians   GroupName = "guardians"
	GroupMaintenance GroupName = "maintenance"
	GroupMovements   GroupName = "movements"
)

// FieldSpec defines one canonical target field of an import type.
type FieldSpec struct {
	Name       string        // Canonical field identifier: "registration_number"
	Column     string        // Destination column (defaults to Name)
	Label      string        // Human-readable label for mapping UIs
	Aliases    []string      // Source header spellings matched by the mapping resolver
	Kind       TransformKind // Conversion applied to the raw cell
	Group      GroupName     // Child group; empty for the core record
	Slot       string        // Child discriminator value, e.g. "residenza" or "email"
	Required   bool          // Column must be mapped before the job can run
	AllowEmpty bool          // If true, empty values are allowed even when Required
	OneOf      string        // At least one field sharing this tag must be mapped and non-empty

	EnumValues []string          // Allowed values for TransformEnum
	Synonyms   map[string]string // Normalized spelling -> allowed value
	Default    any               // Applied on insert when the cell is empty

	Integer   bool // Numeric fields only: reject fractions, store int64
	Precision int  // Numeric fields only: total digits (0 = unbounded)
	Scale     int  // Numeric fields only: digits after the decimal point

	Normalizer func(string) string // Optional cleanup run before conversion
	Validator  func(string) error  // Optional check run on the normalized value

	// Classify picks the slot for each item of a multi-value cell.
	// When nil every item goes to Slot.
	Classify func(item string) (slot string, ok bool)
}

// DBColumn returns the destination column for the field.
func (f FieldSpec) DBColumn() string {
	if f.Column != "" {
		return f.Column
	}
	return f.Name
}

// ChildGroupDef describes how one child group is written.
type ChildGroupDef struct {
	Name         GroupName
	Table        string   // Destination table
	ParentColumn string   // Foreign key column pointing at the core record
	SlotColumn   string   // Discriminator column filled from FieldSpec.Slot ("" if none)
	Trigger      []string // A record is emitted only if one of these columns is non-empty
}

// KeyDef declares the natural key used for duplicate detection.
type KeyDef struct {
	// Columns are tried in order; the first non-empty one is matched.
	Columns []string

	// Guard columns must not point at a different existing record.
	Guard []string

	// ConflictReason is logged when a match exists and updates are disabled.
	ConflictReason string
}

// FinalizeEnv carries job-level values available to finalizers.
type FinalizeEnv struct {
	Now       time.Time
	CreatedBy string
}

// ImportDefinition contains everything needed to import one ImportType.
type ImportDefinition struct {
	Type   ImportType
	Label  string
	Table  string          // Core table
	Fields []FieldSpec     // Declaration order drives mapping tie-breaks
	Groups []ChildGroupDef // Write order after the core record
	Key    KeyDef

	// Finalize runs after all fields are converted, to fill derived or
	// insert-only values. It must not fail.
	Finalize func(b *EntityBundle, env FinalizeEnv)
}

// Field returns the field with the given canonical name.
func (d *ImportDefinition) Field(name string) (FieldSpec, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Group returns the child group definition by name.
func (d *ImportDefinition) Group(name GroupName) (ChildGroupDef, bool) {
	for _, g := range d.Groups {
		if g.Name == name {
			return g, true
		}
	}
	return ChildGroupDef{}, false
}

// TableFor returns the destination table of a field.
func (d *ImportDefinition) TableFor(f FieldSpec) string {
	if f.Group == "" {
		return d.Table
	}
	if g, ok := d.Group(f.Group); ok {
		return g.Table
	}
	return ""
}

// Record is one row destined for one table.
type Record struct {
	Table    string         `json:"table"`
	Values   map[string]any `json:"values"`             // Non-empty incoming values only
	Defaults map[string]any `json:"defaults,omitempty"` // Applied on insert only
}

func newRecord(table string) Record {
	return Record{Table: table, Values: map[string]any{}}
}

// String returns a column value as a string, or "" when absent.
func (r Record) String(column string) string {
	if v, ok := r.Values[column].(string); ok {
		return v
	}
	return ""
}

// Has reports whether column has an incoming value.
func (r Record) Has(column string) bool {
	_, ok := r.Values[column]
	return ok
}

// SetDefault records an insert-only value unless an incoming value exists.
func (r *Record) SetDefault(column string, v any) {
	if r.Has(column) {
		return
	}
	if r.Defaults == nil {
		r.Defaults = map[string]any{}
	}
	r.Defaults[column] = v
}

// InsertValues merges defaults and incoming values; incoming values win.
func (r Record) InsertValues() map[string]any {
	out := make(map[string]any, len(r.Values)+len(r.Defaults))
	maps.Copy(out, r.Defaults)
	maps.Copy(out, r.Values)
	return out
}

// EntityBundle is the typed decomposition of one source row.
type EntityBundle struct {
	Type      ImportType `json:"type"`
	RowNumber int        `json:"rowNumber"`
	Core      Record     `json:"core"`

	Contacts    []Record `json:"contacts,omitempty"`
	Addresses   []Record `json:"addresses,omitempty"`
	Employment  []Record `json:"employment,omitempty"`
	Guardians   []Record `json:"guardians,omitempty"`
	Maintenance []Record `json:"maintenance,omitempty"`
	Movements   []Record `json:"movements,omitempty"`

	// Deferred lists required fields left empty in a row that may update
	// an existing record. The row fails if it turns out to be an insert.
	Deferred []FieldError `json:"deferred,omitempty"`
}

// Children returns the records of a child group.
func (b *EntityBundle) Children(g GroupName) []Record {
	if p := b.group(g); p != nil {
		return *p
	}
	return nil
}

func (b *EntityBundle) addChild(g GroupName, r Record) {
	if p := b.group(g); p != nil {
		*p = append(*p, r)
	}
}

func (b *EntityBundle) group(g GroupName) *[]Record {
	switch g {
	case GroupContacts:
		return &b.Contacts
	case GroupAddresses:
		return &b.Addresses
	case GroupEmployment:
		return &b.Employment
	case GroupGuardians:
		return &b.Guardians
	case GroupMaintenance:
		return &b.Maintenance
	case GroupMovements:
		return &b.Movements
	}
	return nil
}

// DecisionAction is the exhaustive set of duplicate outcomes.
type DecisionAction string

const (
	ActionInsert   DecisionAction = "insert"
	ActionUpdate   DecisionAction = "update_existing"
	ActionConflict DecisionAction = "conflict"
)

// DuplicateDecision tags a bundle before persistence.
type DuplicateDecision struct {
	Action        DecisionAction `json:"action"`
	ExistingID    string         `json:"existingId,omitempty"`
	MatchedColumn string         `json:"matchedColumn,omitempty"`
	MatchedKey    string         `json:"matchedKey,omitempty"`
	Reason        string         `json:"reason,omitempty"`
}

// Outcome is the final result of one source row.
type Outcome string

const (
	OutcomeImported Outcome = "imported"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// ImportRowResult is the append-only audit record of one source row.
type ImportRowResult struct {
	JobID        string              `json:"jobId"`
	RowNumber    int                 `json:"rowNumber"`
	Outcome      Outcome             `json:"outcome"`
	Action       DecisionAction      `json:"action,omitempty"`
	CreatedIDs   map[string][]string `json:"createdIds,omitempty"`
	ErrorMessage string              `json:"errorMessage,omitempty"`
	Columns      []string            `json:"columns,omitempty"`
}

// ImportJob identifies one ingestion run.
type ImportJob struct {
	ID                string            `json:"id"`
	ImportType        ImportType        `json:"importType"`
	SourceFileName    string            `json:"sourceFileName"`
	DetectedEncoding  Encoding          `json:"detectedEncoding,omitempty"`
	DetectedDelimiter string            `json:"detectedDelimiter,omitempty"`
	Status            JobStatus         `json:"status"`
	UpdateOnDuplicate bool              `json:"updateOnDuplicate"`
	Mapping           ColumnMapping     `json:"mapping,omitempty"`
	Overrides         map[string]string `json:"overrides,omitempty"`
	CreatedBy         string            `json:"createdBy,omitempty"`

	TotalRows    int `json:"totalRows"`
	ImportedRows int `json:"importedRows"`
	UpdatedRows  int `json:"updatedRows"` // Subset of ImportedRows
	SkippedRows  int `json:"skippedRows"`
	ErrorRows    int `json:"errorRows"`

	ErrorMessage string     `json:"errorMessage,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
}

// Processed returns the number of rows with a recorded outcome.
func (j *ImportJob) Processed() int {
	return j.ImportedRows + j.SkippedRows + j.ErrorRows
}

// Percent returns completion percentage (0-100).
func (j *ImportJob) Percent() int {
	if j.TotalRows == 0 {
		if j.Status.Terminal() {
			return 100
		}
		return 0
	}
	return j.Processed() * 100 / j.TotalRows
}

// Clone returns a deep copy safe to hand to callers while the job runs.
func (j *ImportJob) Clone() *ImportJob {
	c := *j
	c.Mapping = j.Mapping.Clone()
	if j.Overrides != nil {
		c.Overrides = maps.Clone(j.Overrides)
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

// Summary holds the counters returned to operators after a run.
type Summary struct {
	Total    int `json:"total"`
	Imported int `json:"imported"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Summary returns the job's counters.
func (j *ImportJob) Summary() Summary {
	return Summary{
		Total:    j.TotalRows,
		Imported: j.ImportedRows,
		Updated:  j.UpdatedRows,
		Skipped:  j.SkippedRows,
		Failed:   j.ErrorRows,
	}
}
