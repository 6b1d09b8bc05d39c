// Package query runs sql queries against csvtab virtual tables, usually in the database
// returned by csvtab.OpenDB.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-pkgz/syncs"
	"github.com/hashicorp/go-multierror"

	"github.com/umputun/csvtab/pkg/config"
)

// Querier runs statements, implemented by *sql.DB, *sql.Conn and *sql.Tx
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Result is the outcome of a single query
type Result struct {
	Query   string
	Columns []string
	Rows    [][]*string // nil value is NULL
}

// Runner creates tables and runs queries. All of them go to one sqlite connection: with DB set to
// a *sql.Conn concurrent queries have their statements open at the same time and their steps
// interleaved by the connection lock, with a single-connection *sql.DB they wait for each other.
type Runner struct {
	DB          Querier
	Concurrency int // max number of queries open at the same time, 1 if not set
}

// CreateTables creates virtual tables for all definitions. Stops on the first failure.
func (r *Runner) CreateTables(ctx context.Context, tables []config.Table) error {
	for _, t := range tables {
		if _, err := r.DB.ExecContext(ctx, t.Statement()); err != nil {
			return fmt.Errorf("can't create table %s: %w", t.Name, err)
		}
		log.Printf("[INFO] table %s created, %d bytes", t.Name, len(t.Data))
	}
	return nil
}

// DropTables drops tables made by CreateTables, missing ones are ignored. Reports all failures.
func (r *Runner) DropTables(ctx context.Context, tables []config.Table) error {
	errs := new(multierror.Error)
	for _, t := range tables {
		if _, err := r.DB.ExecContext(ctx, "DROP TABLE IF EXISTS "+t.Name); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("can't drop table %s: %w", t.Name, err))
			continue
		}
		log.Printf("[DEBUG] table %s dropped", t.Name)
	}
	return errs.ErrorOrNil()
}

// Run executes queries with limited concurrency. Results are in the same order as queries;
// a failed query leaves nil in its place and its error is reported in the combined error.
func (r *Runner) Run(ctx context.Context, queries []string) ([]*Result, error) {
	concurrency := r.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	res := make([]*Result, len(queries))
	errs := new(multierror.Error)
	var lock sync.Mutex

	wg := syncs.NewErrSizedGroup(concurrency, syncs.Context(ctx))
	for i, q := range queries {
		wg.Go(func() error {
			st := time.Now()
			qr, err := r.query(ctx, q)
			if err != nil {
				lock.Lock()
				errs = multierror.Append(errs, fmt.Errorf("query #%d %q: %w", i+1, q, err))
				lock.Unlock()
				return err
			}
			res[i] = qr
			log.Printf("[DEBUG] query #%d completed, rows: %d in %v", i+1, len(qr.Rows), time.Since(st).Truncate(time.Microsecond))
			return nil
		})
	}
	_ = wg.Wait() // errors collected in order-independent errs

	return res, errs.ErrorOrNil()
}

func (r *Runner) query(ctx context.Context, q string) (*Result, error) {
	rows, err := r.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("can't get columns: %w", err)
	}

	res := &Result{Query: q, Columns: cols, Rows: [][]*string{}}
	for rows.Next() {
		vals := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("can't scan row: %w", err)
		}
		row := make([]*string, len(cols))
		for i, v := range vals {
			if v.Valid {
				s := v.String
				row[i] = &s
			}
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("can't read rows: %w", err)
	}
	return res, nil
}
