package csvtab

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"modernc.org/sqlite/vtab"

	"github.com/umputun/csvtab/pkg/csvrec"
)

// fullScanCost is reported to the planner for every query, only full scans are supported
const fullScanCost = 1_000_000

// hostArgs is the number of leading arguments reserved by the host: module, database and table names
const hostArgs = 3

// Table is a virtual table over a CSV payload. Immutable after connect and safe to share
// between cursors.
type Table struct {
	source    string // payload with escaped newlines normalized
	hasHeader bool
	delimiter byte
	quote     byte
	firstRow  csvrec.Position // position of the first data record
	schema    string
	columns   []string
}

// connect makes a Table from the host's argument list. The schema to declare is in Table.Schema.
func connect(args []string) (*Table, error) {
	if len(args) <= hostArgs {
		return nil, &SchemaError{Msg: "no table name specified"}
	}

	p, err := parseParams(args[hostArgs:])
	if err != nil {
		return nil, err
	}
	if p.table == "" {
		return nil, &SchemaError{Msg: "no table name specified"}
	}

	tbl := &Table{
		source:    strings.ReplaceAll(p.table, `\n`, "\n"),
		hasHeader: p.header,
		delimiter: p.delimiter,
		quote:     p.quote,
		firstRow:  csvrec.Position{Line: 1},
	}

	cols, err := tbl.inferColumns(p)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 && !p.hasSchema {
		return nil, &SchemaError{Msg: "no column specified"}
	}
	tbl.columns = cols

	tbl.schema = p.schema
	if !p.hasSchema {
		tbl.schema = makeSchema(cols)
	}
	return tbl, nil
}

// inferColumns derives column names and sets the first data position. With a header the header
// record is always consumed, even if names come from 'columns' or 'schema', so scans never
// return the header as data. Blank lines are skipped when looking for the header or a sample record.
func (t *Table) inferColumns(p params) ([]string, error) {
	var cols []string

	if t.hasHeader || (p.columns == 0 && !p.hasSchema) {
		rdr := t.reader()
		if t.hasHeader {
			hdr, err := rdr.Headers()
			if err != nil && !errors.Is(err, io.EOF) {
				return nil, &ParseError{Err: err}
			}
			if p.columns == 0 && !p.hasSchema {
				for _, h := range hdr {
					cols = append(cols, escapeDoubleQuote(h))
				}
			}
			t.firstRow = rdr.Position()
		} else {
			rec, err := sampleRecord(rdr)
			if err != nil {
				return nil, err
			}
			for i := range rec {
				cols = append(cols, fmt.Sprintf("c%d", i))
			}
		}
	}

	if p.columns > 0 && !p.hasSchema {
		cols = make([]string, p.columns)
		for i := range cols {
			cols[i] = fmt.Sprintf("c%d", i)
		}
	}
	return cols, nil
}

// sampleRecord returns the first non-blank record, nil if there is none
func sampleRecord(rdr *csvrec.Reader) ([]string, error) {
	for {
		rec, err := rdr.Read()
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, &ParseError{Err: err}
		}
		if len(rec) > 0 {
			return rec, nil
		}
	}
}

// makeSchema builds CREATE TABLE statement with all columns as TEXT. Names must be escaped already.
func makeSchema(cols []string) string {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE x(")
	for i, col := range cols {
		sb.WriteString(`"`)
		sb.WriteString(col)
		sb.WriteString(`" TEXT`)
		if i == len(cols)-1 {
			sb.WriteString(");")
		} else {
			sb.WriteString(", ")
		}
	}
	return sb.String()
}

// reader makes a new record reader over the table payload
func (t *Table) reader() *csvrec.Reader {
	return csvrec.New([]byte(t.source), csvrec.Options{Delimiter: t.delimiter, Quote: t.quote, HasHeader: t.hasHeader})
}

// Schema returns the declared CREATE TABLE statement
func (t *Table) Schema() string { return t.schema }

// Columns returns inferred column names, double quotes escaped. Empty if an explicit schema was given
// without header or count inference.
func (t *Table) Columns() []string { return append([]string(nil), t.columns...) }

// BestIndex reports a full scan. No constraint is consumed, so SQLite evaluates all of them itself.
func (t *Table) BestIndex(info *vtab.IndexInfo) error {
	info.EstimatedCost = fullScanCost
	return nil
}

// Open makes a new cursor with its own reader
func (t *Table) Open() (vtab.Cursor, error) {
	return newCursor(t), nil
}

// Disconnect releases the table, nothing is held outside of it
func (t *Table) Disconnect() error {
	log.Printf("[DEBUG] csvtab disconnect, columns: %d", len(t.columns))
	return nil
}

// Destroy drops the table, there is no backing storage to remove
func (t *Table) Destroy() error {
	log.Printf("[DEBUG] csvtab destroy, columns: %d", len(t.columns))
	return nil
}
