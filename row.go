package pyros

import (
	"fmt"

	"github.com/elbaro/pyros/cache"
	"github.com/elbaro/pyros/pgerr"
	"github.com/elbaro/pyros/pgtype"
)

// Row is one decoded DataRow, readable either by position or, once
// RowNamed has been requested, by column name.
type Row struct {
	fields []cache.FieldDescription
	values []any
}

// Get returns the value at the given 0-based column position.
func (r *Row) Get(i int) (any, error) {
	if i < 0 || i >= len(r.values) {
		return nil, fmt.Errorf("pyros: column index %d out of range (%d columns)", i, len(r.values))
	}
	return r.values[i], nil
}

// GetNamed returns the value of the column with the given name, as
// reported in the statement's RowDescription. Returns an error if no such
// column exists, or if more than one column shares the name (the caller
// should use Get for an unambiguous positional lookup in that case).
func (r *Row) GetNamed(name string) (any, error) {
	found := -1
	for i, f := range r.fields {
		if f.Name == name {
			if found != -1 {
				return nil, fmt.Errorf("pyros: column name %q is ambiguous", name)
			}
			found = i
		}
	}
	if found == -1 {
		return nil, fmt.Errorf("pyros: no column named %q", name)
	}
	return r.values[found], nil
}

// Values returns all decoded column values, in column order.
func (r *Row) Values() []any { return r.values }

// Len returns the number of columns in the row.
func (r *Row) Len() int { return len(r.values) }

// decodeRow decodes a DataRow's raw column bytes (nil entry meaning SQL
// NULL) against the statement's field descriptions. The column-name
// schema is attached to the returned Row only when mode is RowNamed;
// decoding itself always uses fields for OID dispatch.
func decodeRow(fields []cache.FieldDescription, raw [][]byte, mode RowMode) (*Row, error) {
	if len(raw) != len(fields) {
		return nil, fmt.Errorf("pyros: DataRow has %d columns, expected %d", len(raw), len(fields))
	}

	values := make([]any, len(raw))
	for i, col := range raw {
		v, err := pgtype.Decode(fields[i].TypeOID, col)
		if err != nil {
			if _, ok := pgtype.Lookup(fields[i].TypeOID); !ok {
				return nil, pgerr.NewUnsupportedTypeError(uint32(fields[i].TypeOID))
			}
			return nil, fmt.Errorf("pyros: decoding column %q: %w", fields[i].Name, err)
		}
		values[i] = v
	}

	row := &Row{values: values}
	if mode == RowNamed {
		row.fields = fields
	}
	return row, nil
}
