package csvtab

import (
	"errors"
	"io"

	"modernc.org/sqlite/vtab"

	"github.com/umputun/csvtab/pkg/csvrec"
)

// Cursor scans a Table forward. Filter rewinds it to the first data record, so a single cursor
// can be scanned any number of times.
type Cursor struct {
	table  *Table
	rdr    *csvrec.Reader
	record []string // current record
	eof    bool
}

func newCursor(t *Table) *Cursor {
	return &Cursor{table: t, rdr: t.reader()}
}

// Filter rewinds the cursor and reads the first record. All arguments are ignored,
// only full scans are supported.
func (c *Cursor) Filter(_ int, _ string, _ []vtab.Value) error {
	if err := c.rdr.Seek(c.table.firstRow); err != nil {
		return &ParseError{Err: err}
	}
	c.eof = false
	return c.Next()
}

// Next moves to the next record. At the end of data it sets eof and keeps the last record.
func (c *Cursor) Next() error {
	if c.eof {
		return nil
	}
	rec, err := c.rdr.Read()
	if errors.Is(err, io.EOF) {
		c.eof = true
		return nil
	}
	if err != nil {
		return &ParseError{Err: err}
	}
	c.record = rec
	return nil
}

// Eof reports whether the cursor moved past the last record
func (c *Cursor) Eof() bool { return c.eof }

// Column returns the text of the col field of the current record as is, no type conversion
// made. A record without fields (blank line) returns NULL for any column.
func (c *Cursor) Column(col int) (vtab.Value, error) {
	if col < 0 {
		return nil, &IndexError{Index: col, Count: len(c.record)}
	}
	if len(c.record) == 0 {
		return nil, nil
	}
	if col >= len(c.record) {
		return nil, &IndexError{Index: col, Count: len(c.record)}
	}
	return c.record[col], nil
}

// Rowid returns the number of the current record counted from the first data record, starting from 1.
// Blank lines are records and have their own rowid.
func (c *Cursor) Rowid() (int64, error) {
	return int64(c.rdr.Position().Record - c.table.firstRow.Record), nil
}

// Close releases the reader
func (c *Cursor) Close() error {
	c.rdr, c.record = nil, nil
	return nil
}
