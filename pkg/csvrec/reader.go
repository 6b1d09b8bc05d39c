// Package csvrec implements an in-memory delimiter separated record reader.
// Unlike encoding/csv it supports an arbitrary quote byte (or no quoting at all)
// and can capture a position and seek back to it, which is what restartable scans need.
package csvrec

import (
	"errors"
	"fmt"
	"io"
)

// Options defines reader configuration
type Options struct {
	Delimiter byte // field separator, zero means ','
	Quote     byte // quote byte, zero disables quoting
	HasHeader bool // first record is a header and skipped by Read
}

// DefaultOptions returns options for a comma separated input with double quotes and no header
func DefaultOptions() Options {
	return Options{Delimiter: ',', Quote: '"'}
}

// Position is a place in the input a reader can seek back to
type Position struct {
	Byte   int // byte offset of the next record
	Line   int // 1-based line of the next record
	Record int // number of records read before this position, header included
}

// ParseError reports malformed input
type ParseError struct {
	Line   int // 1-based line where the error was detected
	Column int // 1-based byte column where the error was detected
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error on line %d, column %d: %v", e.Line, e.Column, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// errors reported inside ParseError
var (
	ErrUnterminatedQuote = errors.New("unterminated quoted field")
	ErrAfterQuote        = errors.New("unexpected character after closing quote")
)

// Reader reads records from a byte buffer. Not safe for concurrent use,
// make a separate Reader for each consumer.
type Reader struct {
	data      []byte
	delimiter byte
	quote     byte
	hasHeader bool

	pos        Position
	headerDone bool
}

// New makes a Reader for data
func New(data []byte, opts Options) *Reader {
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}
	return &Reader{
		data:      data,
		delimiter: opts.Delimiter,
		quote:     opts.Quote,
		hasHeader: opts.HasHeader,
		pos:       Position{Line: 1},
	}
}

// Headers returns the header record, the first non-blank one. Returns nil if the reader is
// configured without a header. Calling it more than once is allowed; the header is re-read
// from the start of the input and the current position is kept.
func (r *Reader) Headers() ([]string, error) {
	if !r.hasHeader {
		return nil, nil
	}
	if r.pos.Byte == 0 && !r.headerDone {
		return r.readHeader()
	}
	saved, savedDone := r.pos, r.headerDone
	r.pos = Position{Line: 1}
	rec, err := r.readHeader()
	r.pos, r.headerDone = saved, savedDone
	return rec, err
}

// Read returns the next data record, io.EOF at the end of input.
// A blank line produces a record with zero fields, blank lines at the end of input are ignored.
func (r *Reader) Read() ([]string, error) {
	if r.hasHeader && !r.headerDone && r.pos.Byte == 0 {
		if _, err := r.readHeader(); err != nil {
			return nil, err
		}
	}
	return r.readRecord()
}

// readHeader reads records up to the first non-blank one and marks the header as done
func (r *Reader) readHeader() ([]string, error) {
	for {
		rec, err := r.readRecord()
		if err != nil {
			return nil, err
		}
		if len(rec) > 0 {
			r.headerDone = true
			return rec, nil
		}
	}
}

// Position returns the position of the next record
func (r *Reader) Position() Position {
	return r.pos
}

// Seek moves the reader to pos. Seeking to the start of the input of a reader with a header
// makes the next Read skip the header again.
func (r *Reader) Seek(pos Position) error {
	if pos.Byte < 0 || pos.Byte > len(r.data) {
		return fmt.Errorf("seek position %d out of range [0, %d]", pos.Byte, len(r.data))
	}
	if pos.Line < 1 {
		pos.Line = 1
	}
	r.pos = pos
	r.headerDone = pos.Byte > 0
	return nil
}

// readRecord parses one record starting at the current position. The position is advanced only
// on success, so a failed read can be retried or seeked away from.
func (r *Reader) readRecord() ([]string, error) {
	i, line := r.pos.Byte, r.pos.Line
	if i >= len(r.data) {
		return nil, io.EOF
	}

	if n := r.terminator(i); n > 0 { // blank line
		if r.onlyTerminators(i) {
			return nil, io.EOF
		}
		r.pos = Position{Byte: i + n, Line: line + 1, Record: r.pos.Record + 1}
		return []string{}, nil
	}

	lineStart := i
	fields := []string{}
	for {
		var field []byte
		if r.quote != 0 && r.data[i] == r.quote {
			// quoted field, runs to the closing quote; doubled quote is a literal quote
			qLine, qCol := line, i-lineStart+1
			i++
			closed := false
			for i < len(r.data) {
				c := r.data[i]
				if c == r.quote {
					if i+1 < len(r.data) && r.data[i+1] == r.quote {
						field = append(field, c)
						i += 2
						continue
					}
					i++
					closed = true
					break
				}
				if n := r.terminator(i); n > 0 {
					field = append(field, r.data[i:i+n]...)
					i += n
					line++
					lineStart = i
					continue
				}
				field = append(field, c)
				i++
			}
			if !closed {
				return nil, &ParseError{Line: qLine, Column: qCol, Err: ErrUnterminatedQuote}
			}
			if i < len(r.data) && r.data[i] != r.delimiter && r.terminator(i) == 0 {
				return nil, &ParseError{Line: line, Column: i - lineStart + 1, Err: ErrAfterQuote}
			}
		} else {
			start := i
			for i < len(r.data) && r.data[i] != r.delimiter && r.terminator(i) == 0 {
				i++
			}
			field = r.data[start:i]
		}
		fields = append(fields, string(field))

		if i >= len(r.data) {
			r.pos = Position{Byte: i, Line: line, Record: r.pos.Record + 1}
			return fields, nil
		}
		if n := r.terminator(i); n > 0 {
			r.pos = Position{Byte: i + n, Line: line + 1, Record: r.pos.Record + 1}
			return fields, nil
		}
		i++ // delimiter
		if i >= len(r.data) || r.terminator(i) > 0 {
			// trailing delimiter makes an empty last field
			fields = append(fields, "")
			if i >= len(r.data) {
				r.pos = Position{Byte: i, Line: line, Record: r.pos.Record + 1}
				return fields, nil
			}
			n := r.terminator(i)
			r.pos = Position{Byte: i + n, Line: line + 1, Record: r.pos.Record + 1}
			return fields, nil
		}
	}
}

// onlyTerminators reports whether the input from offset i to the end has nothing but line terminators
func (r *Reader) onlyTerminators(i int) bool {
	for ; i < len(r.data); i++ {
		if r.data[i] != '\n' && r.data[i] != '\r' {
			return false
		}
	}
	return true
}

// terminator returns the length of a record terminator at offset i, zero if there is none.
// Recognized terminators are \n, \r\n and a lone \r.
func (r *Reader) terminator(i int) int {
	switch r.data[i] {
	case '\n':
		return 1
	case '\r':
		if i+1 < len(r.data) && r.data[i+1] == '\n' {
			return 2
		}
		return 1
	}
	return 0
}
