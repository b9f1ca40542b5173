// Package document provides type-safe Go definitions and validation rules for
// Grimoire documents. A document is either a character Sheet or a Macro
// collection: an ordered list of named sections, each holding an ordered list
// of typed fields. The package is pure - it performs no I/O - so validation
// can run on any goroutine without synchronization.
//
// Incoming JSON payloads are decoded at the boundary into a closed set of
// field variants. Payloads whose shape does not match the schema (an object
// where a list is expected, an unknown field type tag) fail decoding with a
// *StructuralError before any business rule runs. Business rule violations
// are accumulated as FieldError values and returned as data, never as Go
// errors.
package document
