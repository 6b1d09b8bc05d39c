package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"
	"golang.org/x/term"

	"github.com/umputun/csvtab/pkg/config"
	"github.com/umputun/csvtab/pkg/csvtab"
	"github.com/umputun/csvtab/pkg/output"
	"github.com/umputun/csvtab/pkg/query"
)

type options struct {
	PositionalArgs struct {
		Queries []string `positional-arg-name:"query" description:"sql queries to run"`
	} `positional-args:"yes" positional-optional:"yes"`

	Config     string   `short:"c" long:"config" env:"CSVTAB_CONFIG" description:"table definitions file, yaml or toml"`
	Tables     []string `short:"t" long:"table" description:"ad-hoc table from csv file, name=path"`
	Queries    []string `short:"q" long:"query" description:"sql query to run"`
	NoHeader   bool     `long:"no-header" description:"ad-hoc tables have no header line"`
	Delimiter  string   `long:"delimiter" description:"delimiter of ad-hoc tables" default:","`
	Quote      string   `long:"quote" description:"quote character of ad-hoc tables, 0 disables quoting" default:"\""`
	Concurrent int      `long:"concurrent" env:"CSVTAB_CONCURRENT" description:"concurrent queries" default:"1"`

	Format   string `short:"f" long:"format" env:"CSVTAB_FORMAT" description:"output format" choice:"text" choice:"csv" default:"text"`
	MaxWidth int    `long:"max-width" env:"CSVTAB_MAX_WIDTH" description:"max width of text cells, 0 for unlimited" default:"0"`
	NoColor  bool   `long:"no-color" env:"CSVTAB_NO_COLOR" description:"disable colors"`

	Version bool `long:"version" description:"show version"`
	Dbg     bool `long:"dbg" description:"debug mode"`
}

var revision = "latest"

func main() {
	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		os.Exit(1)
	}
	if opts.Version {
		fmt.Printf("csvtab %s\n", revision)
		os.Exit(0)
	}
	setupLog(opts.Dbg, opts.NoColor)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts, os.Stdout); err != nil {
		if opts.Dbg {
			log.Panicf("[ERROR] %v", err)
		}
		fmt.Fprintf(os.Stderr, "failed, %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, out io.Writer) error {
	st := time.Now()
	defs, err := definitions(opts)
	if err != nil {
		return err
	}
	if len(defs.Queries) == 0 {
		return errors.New("no queries to run")
	}

	db, err := csvtab.OpenDB(ctx)
	if err != nil {
		return fmt.Errorf("can't make database: %w", err)
	}
	// the database has a single connection, hold it so concurrent queries share it
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("can't get database connection: %w", err)
	}
	defer conn.Close() // nolint

	r := query.Runner{DB: conn, Concurrency: opts.Concurrent}
	defer func() {
		if err := r.DropTables(context.WithoutCancel(ctx), defs.Tables); err != nil {
			log.Printf("[WARN] %v", err)
		}
	}()
	if err = r.CreateTables(ctx, defs.Tables); err != nil {
		return err
	}

	results, runErr := r.Run(ctx, defs.Queries)

	prn := output.Printer{Writer: out, Format: opts.Format, MaxWidth: opts.MaxWidth, Monochrome: monochrome(opts, out)}
	if err = prn.Print(results); err != nil {
		return fmt.Errorf("can't print results: %w", err)
	}
	if runErr != nil {
		return runErr
	}
	log.Printf("[INFO] completed %d queries over %d tables in %v", len(defs.Queries), len(defs.Tables),
		time.Since(st).Truncate(time.Millisecond))
	return nil
}

// definitions combines config file, ad-hoc tables and queries from the command line
func definitions(opts options) (*config.Definitions, error) {
	defs := &config.Definitions{}
	if opts.Config != "" {
		d, err := config.Load(opts.Config)
		if err != nil {
			return nil, fmt.Errorf("can't load config: %w", err)
		}
		defs = d
	}

	adHoc := make([]config.Table, 0, len(opts.Tables))
	for _, t := range opts.Tables {
		name, file, ok := strings.Cut(t, "=")
		if !ok || name == "" || file == "" {
			return nil, fmt.Errorf("invalid table %q, expected name=path", t)
		}
		adHoc = append(adHoc, config.Table{Name: name, File: file, Header: !opts.NoHeader,
			Delimiter: opts.Delimiter, Quote: opts.Quote})
	}
	if err := defs.Add(adHoc...); err != nil {
		return nil, fmt.Errorf("invalid tables: %w", err)
	}

	defs.Queries = append(defs.Queries, opts.Queries...)
	defs.Queries = append(defs.Queries, opts.PositionalArgs.Queries...)
	return defs, nil
}

// monochrome reports whether colors should be disabled, always for non-terminal output
func monochrome(opts options, out io.Writer) bool {
	if opts.NoColor {
		return true
	}
	f, ok := out.(*os.File)
	return !ok || !term.IsTerminal(int(f.Fd()))
}

func setupLog(dbg, noColor bool) {
	logOpts := []lgr.Option{lgr.Out(io.Discard), lgr.Err(os.Stderr)} // only errors reported by default
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError,
			lgr.Out(os.Stderr)}
	}

	if !noColor {
		colorizer := lgr.Mapper{
			ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
			WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
			InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
			DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
			CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
			TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
		}
		logOpts = append(logOpts, lgr.Map(colorizer))
	}

	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
