package csvtab

import (
	"strconv"
	"strings"

	"github.com/go-pkgz/stringutils"

	"github.com/umputun/csvtab/pkg/csvrec"
)

// recognized construction argument keys
const (
	keyTable     = "table"
	keySchema    = "schema"
	keyHeader    = "header"
	keyColumns   = "columns"
	keyDelimiter = "delimiter"
	keyQuote     = "quote"
)

var (
	knownKeys   = []string{keyTable, keySchema, keyHeader, keyColumns, keyDelimiter, keyQuote}
	trueTokens  = []string{"yes", "true", "on", "1"}
	falseTokens = []string{"no", "false", "off", "0"}
)

// params is the table configuration accumulated from construction arguments
type params struct {
	table     string
	schema    string
	hasSchema bool
	header    bool
	columns   int // zero if not set
	delimiter byte
	quote     byte
}

// parseParams parses all module arguments, failing on the first bad one
func parseParams(args []string) (params, error) {
	def := csvrec.DefaultOptions()
	res := params{delimiter: def.Delimiter, quote: def.Quote}
	for _, arg := range args {
		key, value, err := parseParam(arg)
		if err != nil {
			return params{}, err
		}
		switch key {
		case keyTable:
			res.table = value
		case keySchema:
			res.schema, res.hasSchema = value, true
		case keyHeader:
			b, ok := parseBool(value)
			if !ok {
				return params{}, &ParameterError{Arg: value, Msg: "unrecognized argument to 'header'"}
			}
			res.header = b
		case keyColumns:
			if res.columns > 0 {
				return params{}, &ParameterError{Arg: arg, Msg: "more than one 'columns' parameter"}
			}
			n, err := strconv.ParseUint(value, 10, 16)
			if err != nil {
				return params{}, &ParameterError{Arg: value, Msg: "unrecognized argument to 'columns'"}
			}
			if n == 0 {
				return params{}, &ParameterError{Arg: value, Msg: "must have at least one column"}
			}
			res.columns = int(n)
		case keyDelimiter:
			b, ok := parseByte(value)
			if !ok {
				return params{}, &ParameterError{Arg: value, Msg: "unrecognized argument to 'delimiter'"}
			}
			res.delimiter = b
		case keyQuote:
			b, ok := parseByte(value)
			if !ok {
				return params{}, &ParameterError{Arg: value, Msg: "unrecognized argument to 'quote'"}
			}
			if b == '0' {
				b = 0
			}
			res.quote = b
		}
	}
	return res, nil
}

// parseParam splits a single "key=value" argument. The key is matched case-insensitively
// against known keys, the value is trimmed and dequoted.
func parseParam(arg string) (key, value string, err error) {
	arg = strings.TrimSpace(arg)
	k, v, ok := strings.Cut(arg, "=")
	if !ok {
		return "", "", &ParameterError{Arg: arg, Msg: "illegal argument"}
	}
	key = strings.ToLower(strings.TrimSpace(k))
	if !stringutils.Contains(key, knownKeys) {
		return "", "", &ParameterError{Arg: strings.TrimSpace(k), Msg: "unrecognized parameter"}
	}
	return key, dequote(strings.TrimSpace(v)), nil
}

// dequote removes SQL-style quotes around s. Supported forms are '...', "...", `...` and [...].
// Inside the first three a doubled quote character stands for a single one.
func dequote(s string) string {
	if len(s) < 2 {
		return s
	}
	first, last := s[0], s[len(s)-1]
	switch first {
	case '\'', '"', '`':
		if last != first {
			return s
		}
		q := string(first)
		return strings.ReplaceAll(s[1:len(s)-1], q+q, q)
	case '[':
		if last != ']' {
			return s
		}
		return s[1 : len(s)-1]
	}
	return s
}

// parseBool accepts yes/no, true/false, on/off and 1/0 in any case
func parseBool(s string) (value, ok bool) {
	s = strings.ToLower(s)
	if stringutils.Contains(s, trueTokens) {
		return true, true
	}
	if stringutils.Contains(s, falseTokens) {
		return false, true
	}
	return false, false
}

// parseByte returns the only byte of s
func parseByte(s string) (byte, bool) {
	if len(s) != 1 {
		return 0, false
	}
	return s[0], true
}

// escapeDoubleQuote doubles every '"' so s can be put inside a double-quoted SQL identifier
func escapeDoubleQuote(s string) string {
	return strings.ReplaceAll(s, `"`, `""`)
}
