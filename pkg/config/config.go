// Package config loads csvtab table definitions from yaml or toml file.
package config

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-pkgz/fileutils"
	"github.com/hashicorp/go-multierror"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/umputun/csvtab/pkg/csvtab"
)

// Definitions is the top-level config object
type Definitions struct {
	Tables  []Table  `yaml:"tables" toml:"tables"`   // virtual tables to create
	Queries []string `yaml:"queries" toml:"queries"` // queries to run after tables created
}

// Table defines a single virtual table
type Table struct {
	Name      string `yaml:"name" toml:"name"`           // table name, sql identifier
	File      string `yaml:"file" toml:"file"`           // csv file, relative to the config file location
	Data      string `yaml:"data" toml:"data"`           // inline csv payload, used instead of file
	Header    bool   `yaml:"header" toml:"header"`       // first record holds column names
	Delimiter string `yaml:"delimiter" toml:"delimiter"` // single character, default ","
	Quote     string `yaml:"quote" toml:"quote"`         // single character, "0" disables quoting, default '"'
	Columns   int    `yaml:"columns" toml:"columns"`     // fixed number of columns, named c0..cN-1
	Schema    string `yaml:"schema" toml:"schema"`       // explicit CREATE TABLE statement
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Load reads definitions from fname. The format is detected by file extension,
// yaml for .yml, .yaml or no extension, toml for .toml.
// Table files are resolved relative to the directory of fname and loaded into Data.
func Load(fname string) (*Definitions, error) {
	data, err := os.ReadFile(fname) // nolint
	if err != nil {
		return nil, fmt.Errorf("can't read config %s: %w", fname, err)
	}

	res := &Definitions{}
	if err = unmarshal(fname, data, res); err != nil {
		return nil, err
	}

	for i, t := range res.Tables {
		if t.File != "" && !filepath.IsAbs(t.File) {
			res.Tables[i].File = filepath.Join(filepath.Dir(fname), t.File)
		}
	}

	if err = res.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", fname, err)
	}
	if err = res.LoadFiles(); err != nil {
		return nil, err
	}
	log.Printf("[INFO] config %s loaded, tables: %d, queries: %d", fname, len(res.Tables), len(res.Queries))
	return res, nil
}

func unmarshal(fname string, data []byte, v *Definitions) error {
	switch {
	case strings.HasSuffix(fname, ".yml") || strings.HasSuffix(fname, ".yaml") || !strings.Contains(filepath.Base(fname), "."):
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true) // strict mode, fail on unknown fields
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("can't unmarshal yaml config %s: %w", fname, err)
		}
	case strings.HasSuffix(fname, ".toml"):
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("can't unmarshal toml config %s: %w", fname, err)
		}
	default:
		return fmt.Errorf("unknown config format %s", fname)
	}
	return nil
}

// Validate checks all tables and reports all problems found
func (d *Definitions) Validate() error {
	errs := new(multierror.Error)
	seen := map[string]bool{}
	for i, t := range d.Tables {
		if err := t.Validate(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("table #%d: %w", i+1, err))
		}
		key := strings.ToLower(t.Name)
		if t.Name != "" && seen[key] {
			errs = multierror.Append(errs, fmt.Errorf("table #%d: duplicate name %q", i+1, t.Name))
		}
		seen[key] = true
	}
	return errs.ErrorOrNil()
}

// Add validates tables, loads their files and appends them to definitions.
// Names must be unique across all tables.
func (d *Definitions) Add(tables ...Table) error {
	other := &Definitions{Tables: tables}
	if err := other.Validate(); err != nil {
		return err
	}
	errs := new(multierror.Error)
	for _, t := range tables {
		for _, e := range d.Tables {
			if strings.EqualFold(t.Name, e.Name) {
				errs = multierror.Append(errs, fmt.Errorf("duplicate name %q", t.Name))
			}
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return err
	}
	if err := other.LoadFiles(); err != nil {
		return err
	}
	d.Tables = append(d.Tables, other.Tables...)
	return nil
}

// LoadFiles reads files of all tables with File set into Data
func (d *Definitions) LoadFiles() error {
	for i, t := range d.Tables {
		if t.File == "" {
			continue
		}
		data, err := os.ReadFile(t.File) // nolint
		if err != nil {
			return fmt.Errorf("can't read %s for table %s: %w", t.File, t.Name, err)
		}
		d.Tables[i].Data = string(data)
		log.Printf("[DEBUG] table %s, loaded %d bytes from %s", t.Name, len(data), t.File)
	}
	return nil
}

// Validate checks a single table definition
func (t Table) Validate() error {
	errs := new(multierror.Error)
	switch {
	case t.Name == "":
		errs = multierror.Append(errs, fmt.Errorf("name is required"))
	case !identRe.MatchString(t.Name):
		errs = multierror.Append(errs, fmt.Errorf("invalid name %q", t.Name))
	}
	switch {
	case t.File == "" && t.Data == "":
		errs = multierror.Append(errs, fmt.Errorf("one of file or data is required"))
	case t.File != "" && t.Data != "":
		errs = multierror.Append(errs, fmt.Errorf("file and data are mutually exclusive"))
	case t.File != "" && !fileutils.IsFile(t.File):
		errs = multierror.Append(errs, fmt.Errorf("file %s not found", t.File))
	}
	if len(t.Delimiter) > 1 {
		errs = multierror.Append(errs, fmt.Errorf("delimiter %q must be a single character", t.Delimiter))
	}
	if len(t.Quote) > 1 {
		errs = multierror.Append(errs, fmt.Errorf("quote %q must be a single character", t.Quote))
	}
	if t.Columns < 0 {
		errs = multierror.Append(errs, fmt.Errorf("columns %d can't be negative", t.Columns))
	}
	return errs.ErrorOrNil()
}

// Statement makes CREATE VIRTUAL TABLE statement for the table. Data must be loaded already.
func (t Table) Statement() string {
	args := []string{"table=" + quoteLiteral(t.Data)}
	if t.Header {
		args = append(args, "header=yes")
	}
	if t.Columns > 0 {
		args = append(args, "columns="+strconv.Itoa(t.Columns))
	}
	if t.Delimiter != "" {
		args = append(args, "delimiter="+quoteLiteral(t.Delimiter))
	}
	if t.Quote != "" {
		args = append(args, "quote="+quoteLiteral(t.Quote))
	}
	if t.Schema != "" {
		args = append(args, "schema="+quoteLiteral(t.Schema))
	}
	return fmt.Sprintf("CREATE VIRTUAL TABLE %s USING %s(%s)", t.Name, csvtab.ModuleName, strings.Join(args, ", "))
}

// quoteLiteral makes sql string literal from s
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
