// Package core provides the business logic for CSV imports.
//
// The package turns spreadsheet exports into rows of a relational schema,
// independent of any transport. It is used by the HTTP API, the importctl
// CLI and tests without modification.
//
// # Architecture
//
// An upload flows through these stages:
//
//  1. [Detect] picks the encoding and the delimiter from a bounded prefix.
//  2. [NewRowParser] decodes the file and yields one [RawRow] per record.
//     Malformed records carry their error instead of stopping the parse.
//  3. [ResolveMapping] binds source headers to the fields of an
//     [ImportDefinition]: operator overrides, then exact aliases, then
//     substring matches.
//  4. A [Transformer] converts each row into an [EntityBundle]: one core
//     record plus the child records routed to each [ChildGroupDef].
//  5. A [DuplicateResolver] decides insert, update or conflict.
//  6. An [Importer] writes the bundle in its own transaction.
//
// [Service.Preview] runs stages 1-5 on sample rows and never writes.
// [Service.RunImport] runs the whole pipeline and records the job and
// every row outcome in a [JobLog].
//
// # Import Registry
//
// Import types are registered at init time using [Register]. Package
// tables holds the definitions for members, junior members, vehicles and
// warehouse items:
//
//	core.Register(core.ImportDefinition{
//	    Type:  core.TypeVehicle,
//	    Table: "vehicles",
//	    Fields: []core.FieldSpec{
//	        {Name: "license_plate", Aliases: []string{"targa"}, Kind: core.TransformString},
//	    },
//	    Key: core.KeyDef{Columns: []string{"license_plate"}},
//	})
//
// # Row Isolation
//
// A failing row never affects another row. Each row runs in a transaction
// bounded by its own timeout and detached from caller cancellation, so a
// disconnect cannot leave a half-written row. Only a storage failure
// ([ErrStorageUnavailable]) or an explicit cancel stops the job; the rows
// left unprocessed are recorded as failed.
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages using [MapError].
// Each category has a code for support reference:
//
//   - FILE001-FILE006: File errors (encoding, delimiter, size, row limit)
//   - MAP001-MAP003: Mapping errors (missing fields, bad overrides)
//   - VAL001-VAL006: Row validation errors (dates, numbers, tax codes)
//   - JOB001-JOB005: Job errors (busy, not found, cancelled)
//   - DB001-DB004: Storage errors (duplicates, constraints, connectivity)
package core
