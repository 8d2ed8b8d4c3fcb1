// Package schema describes the tabular shape of a data source: column
// metadata, semantic value types, and validated row access.
package schema

import (
	"strings"

	"github.com/tesseradata/tessera/errs"
)

// Row is a single record keyed by field name.
type Row map[string]any

// Clone returns a shallow per-field copy of the row.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Type names the semantic value type of a column. It drives comparison and
// coercion in filtering and sorting; TypeAuto defers to runtime inspection.
type Type string

const (
	// TypeAuto lets the evaluator infer the type from the value at hand.
	TypeAuto Type = ""
	// TypeString holds free text.
	TypeString Type = "string"
	// TypeNumber holds integral or fractional numbers.
	TypeNumber Type = "number"
	// TypeDate holds calendar dates without a time component.
	TypeDate Type = "date"
	// TypeDateTime holds timestamps.
	TypeDateTime Type = "datetime"
	// TypeBool holds true/false flags.
	TypeBool Type = "boolean"
	// TypeObject holds nested structures opaque to comparison.
	TypeObject Type = "object"
)

// Column describes one field of the tabular shape.
type Column struct {
	Field string
	Title string
	Type  Type
}

// Provider supplies column metadata on demand. A nil provider means the
// source carries no metadata and field access is unvalidated.
type Provider func() []Column

// Accessor resolves row fields against column metadata. Field names are
// validated once at configuration time; per-row access is a plain map lookup.
// An accessor built without metadata is open: it accepts any field name.
type Accessor struct {
	columns map[string]Column
	open    bool
}

// NewAccessor builds an accessor over the given columns. An empty column set
// yields an open accessor.
func NewAccessor(columns []Column) Accessor {
	if len(columns) == 0 {
		return Accessor{open: true}
	}
	byField := make(map[string]Column, len(columns))
	for _, col := range columns {
		field := strings.TrimSpace(col.Field)
		if field == "" {
			continue
		}
		byField[field] = col
	}
	if len(byField) == 0 {
		return Accessor{open: true}
	}
	return Accessor{columns: byField}
}

// Open reports whether the accessor accepts arbitrary field names.
func (a Accessor) Open() bool { return a.open }

// Validate checks that every field name resolves against the column
// metadata. Open accessors accept everything.
func (a Accessor) Validate(fields ...string) error {
	if a.open {
		return nil
	}
	for _, field := range fields {
		trimmed := strings.TrimSpace(field)
		if trimmed == "" {
			return errs.New("schema", errs.CodeValidation, errs.WithMessage("empty field name"))
		}
		if _, ok := a.columns[trimmed]; !ok {
			return errs.New("schema", errs.CodeValidation,
				errs.WithMessage("unknown field"),
				errs.WithField("field", trimmed))
		}
	}
	return nil
}

// Value reads a field from the row. The second result reports whether the
// row carries the field at all; a present nil value returns (nil, true).
func (a Accessor) Value(row Row, field string) (any, bool) {
	if row == nil {
		return nil, false
	}
	v, ok := row[field]
	return v, ok
}

// Type returns the declared semantic type for the field, or TypeAuto when
// the accessor is open or the field is undeclared.
func (a Accessor) Type(field string) Type {
	if a.open {
		return TypeAuto
	}
	if col, ok := a.columns[field]; ok {
		return col.Type
	}
	return TypeAuto
}

// Columns lists the declared columns in unspecified order. Open accessors
// return nil.
func (a Accessor) Columns() []Column {
	if a.open || len(a.columns) == 0 {
		return nil
	}
	out := make([]Column, 0, len(a.columns))
	for _, col := range a.columns {
		out = append(out, col)
	}
	return out
}
