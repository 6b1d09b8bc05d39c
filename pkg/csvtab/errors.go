package csvtab

import "fmt"

// ParameterError is returned for a malformed or unsupported construction argument
type ParameterError struct {
	Arg string // argument as passed by the host
	Msg string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("%s: %q", e.Msg, e.Arg)
}

// SchemaError is returned when a table can't be defined from the given arguments
type SchemaError struct {
	Msg string
}

func (e *SchemaError) Error() string { return e.Msg }

// ParseError wraps a failure of the record reader
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "csv: " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

// IndexError is returned by Cursor.Column for a column outside of the current record
type IndexError struct {
	Index int
	Count int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("column index out of bounds: %d, record has %d columns", e.Index, e.Count)
}
