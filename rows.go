package pyros

// RowMode selects whether a result Row is readable only positionally or
// also by column name; the Go spelling of the original `as_dict` flag.
type RowMode int

const (
	// RowPositional attaches no column-name schema to returned rows.
	RowPositional RowMode = iota
	// RowNamed attaches the RowDescription's column names, making
	// Row.GetNamed usable.
	RowNamed
)

// Rows is an ordered, fully materialized result set.
type Rows []*Row
