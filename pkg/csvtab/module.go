// Package csvtab implements "csvtab", an SQLite virtual table module exposing a CSV payload
// passed in the table definition as a read-only table. All columns are TEXT.
//
//	CREATE VIRTUAL TABLE people USING csvtab(
//	  table='name,age\nAlice,30\nBob,25', -- CSV payload, required. \n is converted to a newline
//	  [schema='CREATE TABLE x(...)',]    -- explicit schema, disables inference
//	  [header=yes|no,]                    -- first record holds column names, default no
//	  [columns=N,]                        -- N columns named c0..cN-1
//	  [delimiter=C,]                      -- field delimiter, default ','
//	  [quote=C]                           -- quote character, default '"', 0 disables quoting
//	);
//
// The module is registered with modernc.org/sqlite by Register. The driver installs registered modules
// only on the first connection it opens after registration, later connections don't have the module.
// OpenDB returns the database pinned to that connection.
package csvtab

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"

	_ "modernc.org/sqlite" // sqlite driver installs the vtab registration hook
	"modernc.org/sqlite/vtab"
)

// ModuleName is the name used in CREATE VIRTUAL TABLE ... USING
const ModuleName = "csvtab"

// Module implements vtab.Module for CSV payloads. It is stateless, all state is kept by tables.
type Module struct{}

// Create is called for CREATE VIRTUAL TABLE. There is no backing storage, so it is the same as Connect.
func (m Module) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.Connect(ctx, args)
}

// Connect parses the arguments, declares the table schema and returns the table
func (m Module) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	tbl, err := connect(args)
	if err != nil {
		log.Printf("[WARN] csvtab connect failed: %v", err)
		return nil, err
	}
	if err := ctx.Declare(tbl.Schema()); err != nil {
		return nil, fmt.Errorf("can't declare schema %q: %w", tbl.Schema(), err)
	}
	log.Printf("[DEBUG] csvtab connected, schema: %s, inferred columns: %d, header: %v, payload: %d bytes",
		tbl.Schema(), len(tbl.Columns()), tbl.hasHeader, len(tbl.source))
	return tbl, nil
}

var registration struct {
	once sync.Once
	err  error
}

// Register registers the module with the sqlite driver. Only the first call does the registration,
// all calls return its result. db is passed to the driver as is and may be nil.
// The module becomes available on the next connection the driver opens, and on that one only.
func Register(db *sql.DB) error {
	registration.once.Do(func() {
		if err := vtab.RegisterModule(db, ModuleName, Module{}); err != nil {
			registration.err = fmt.Errorf("can't register %s module: %w", ModuleName, err)
			return
		}
		log.Printf("[DEBUG] %s module registered", ModuleName)
	})
	return registration.err
}

var shared struct {
	once sync.Once
	db   *sql.DB
	err  error
}

// OpenDB registers the module and returns the process-wide in-memory database with the module
// installed. The pool is limited to a single connection kept open forever, so every statement
// runs on the connection carrying the module. Later calls return the same db, callers must not
// close it. Fails if another sqlite connection of the process was opened first after registration.
func OpenDB(ctx context.Context) (*sql.DB, error) {
	shared.once.Do(func() {
		shared.db, shared.err = openDB(ctx)
	})
	return shared.db, shared.err
}

func openDB(ctx context.Context) (*sql.DB, error) {
	if err := Register(nil); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("can't open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	// make sure the only connection carries the module
	for _, q := range []string{
		"CREATE VIRTUAL TABLE temp.csvtab_check USING " + ModuleName + "(table='a')",
		"DROP TABLE temp.csvtab_check",
	} {
		if _, err = db.ExecContext(ctx, q); err != nil {
			db.Close() // nolint
			return nil, fmt.Errorf("can't use %s module on database connection: %w", ModuleName, err)
		}
	}
	log.Printf("[DEBUG] in-memory database with %s module opened", ModuleName)
	return db, nil
}
