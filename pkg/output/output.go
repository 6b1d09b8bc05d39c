// Package output prints query results as an aligned text table or as csv.
package output

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/go-pkgz/stringutils"
	"github.com/olekukonko/tablewriter"

	"github.com/umputun/csvtab/pkg/query"
)

// supported formats
const (
	FormatText = "text"
	FormatCSV  = "csv"
)

const nullText = "NULL"

// Printer writes results to Writer
type Printer struct {
	Writer     io.Writer
	Format     string // FormatText (default) or FormatCSV
	Monochrome bool   // disable header colors in text format
	MaxWidth   int    // truncate text cells to this number of characters, no limit if zero
}

// Print writes all results, one after another, separated by an empty line in text format.
// Nil results (failed queries) are skipped.
func (p *Printer) Print(results []*query.Result) error {
	first := true
	for _, r := range results {
		if r == nil {
			continue
		}
		if !first && p.Format != FormatCSV {
			if _, err := fmt.Fprintln(p.Writer); err != nil {
				return err
			}
		}
		first = false

		var err error
		switch p.Format {
		case FormatCSV:
			err = p.printCSV(r)
		case FormatText, "":
			err = p.printText(r)
		default:
			return fmt.Errorf("unknown output format %q", p.Format)
		}
		if err != nil {
			return fmt.Errorf("can't print result of %q: %w", r.Query, err)
		}
	}
	return nil
}

func (p *Printer) printCSV(r *query.Result) error {
	w := csv.NewWriter(p.Writer)
	if err := w.Write(r.Columns); err != nil {
		return err
	}
	for _, row := range r.Rows {
		rec := make([]string, len(row))
		for i, v := range row {
			if v != nil {
				rec[i] = *v
			}
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (p *Printer) printText(r *query.Result) error {
	buf := bytes.Buffer{}
	table := tablewriter.NewWriter(&buf)
	table.SetHeader(r.Columns)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetRowLine(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	if !p.Monochrome && len(r.Columns) > 0 {
		colors := make([]tablewriter.Colors, len(r.Columns))
		for i := range colors {
			colors[i] = tablewriter.Colors{tablewriter.Bold, tablewriter.FgHiGreenColor}
		}
		table.SetHeaderColor(colors...)
	}

	for _, row := range r.Rows {
		line := make([]string, len(row))
		for i, v := range row {
			line[i] = nullText
			if v != nil {
				line[i] = p.cell(*v)
			}
		}
		table.Append(line)
	}
	table.Render()
	fmt.Fprintf(&buf, "(%d rows)\n", len(r.Rows))

	// table renders to the buffer, so write errors are reported here
	_, err := p.Writer.Write(buf.Bytes())
	return err
}

// cell prepares a value for text output, newlines are escaped to keep one row per line
func (p *Printer) cell(s string) string {
	s = strings.NewReplacer("\r\n", `\n`, "\n", `\n`, "\r", `\r`).Replace(s)
	if p.MaxWidth > 0 {
		s = stringutils.Truncate(s, p.MaxWidth)
	}
	return s
}
