package query

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/csvtab/pkg/config"
	"github.com/umputun/csvtab/pkg/csvtab"
)

func sp(s string) *string { return &s }

var testTables = []config.Table{
	{Name: "people", Data: "name,age\nAlice,30\nBob,25\nCarol,", Header: true},
	{Name: "pairs", Data: "1|one\n2|two\n\n3|three", Delimiter: "|", Columns: 2},
}

func prepDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := csvtab.OpenDB(context.Background())
	require.NoError(t, err)
	return db
}

// prepRunner creates test tables in the shared database and drops them after the test
func prepRunner(t *testing.T, q Querier, concurrency int) *Runner {
	t.Helper()
	r := &Runner{DB: q, Concurrency: concurrency}
	require.NoError(t, r.CreateTables(context.Background(), testTables))
	t.Cleanup(func() { assert.NoError(t, r.DropTables(context.Background(), testTables)) })
	return r
}

func TestRunner_Run(t *testing.T) {
	r := prepRunner(t, prepDB(t), 1)
	res, err := r.Run(context.Background(), []string{
		"SELECT name, age FROM people ORDER BY name",
		"SELECT rowid, c0, c1 FROM pairs",
		"SELECT count(*) AS cnt FROM people WHERE age != ''",
	})
	require.NoError(t, err)
	require.Len(t, res, 3)

	assert.Equal(t, &Result{
		Query:   "SELECT name, age FROM people ORDER BY name",
		Columns: []string{"name", "age"},
		Rows:    [][]*string{{sp("Alice"), sp("30")}, {sp("Bob"), sp("25")}, {sp("Carol"), sp("")}},
	}, res[0])

	assert.Equal(t, []string{"rowid", "c0", "c1"}, res[1].Columns)
	assert.Equal(t, [][]*string{
		{sp("1"), sp("1"), sp("one")},
		{sp("2"), sp("2"), sp("two")},
		{sp("3"), nil, nil},
		{sp("4"), sp("3"), sp("three")},
	}, res[1].Rows)

	assert.Equal(t, [][]*string{{sp("2")}}, res[2].Rows)
}

func TestRunner_RunConcurrent(t *testing.T) {
	queries := make([]string, 20)
	for i := range queries {
		queries[i] = fmt.Sprintf("SELECT %d, name FROM people ORDER BY rowid", i)
	}
	check := func(t *testing.T, res []*Result) {
		require.Len(t, res, len(queries))
		for i, qr := range res {
			require.NotNil(t, qr)
			assert.Equal(t, queries[i], qr.Query)
			require.Len(t, qr.Rows, 3)
			assert.Equal(t, fmt.Sprintf("%d", i), *qr.Rows[0][0])
			assert.Equal(t, "Alice", *qr.Rows[0][1])
			assert.Equal(t, "Carol", *qr.Rows[2][1])
		}
	}

	t.Run("pool", func(t *testing.T) {
		r := prepRunner(t, prepDB(t), 4)
		res, err := r.Run(context.Background(), queries)
		require.NoError(t, err)
		check(t, res)
	})

	t.Run("connection", func(t *testing.T) {
		conn, err := prepDB(t).Conn(context.Background())
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() }) // after tables dropped
		r := prepRunner(t, conn, 4)
		res, err := r.Run(context.Background(), queries)
		require.NoError(t, err)
		check(t, res)
	})
}

func TestRunner_RunWithOpenRows(t *testing.T) {
	conn, err := prepDB(t).Conn(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() }) // after tables dropped
	r := prepRunner(t, conn, 2)

	rows, err := conn.QueryContext(context.Background(), "SELECT name FROM people ORDER BY rowid")
	require.NoError(t, err)
	require.True(t, rows.Next())

	res, err := r.Run(context.Background(), []string{"SELECT name FROM people", "SELECT c1 FROM pairs WHERE c0 = '2'"})
	require.NoError(t, err, "queries run next to an open statement on the same connection")
	require.Len(t, res, 2)
	assert.Len(t, res[0].Rows, 3)
	assert.Equal(t, [][]*string{{sp("two")}}, res[1].Rows)

	var name string
	require.NoError(t, rows.Scan(&name))
	assert.Equal(t, "Alice", name)
	require.True(t, rows.Next())
	require.NoError(t, rows.Scan(&name))
	assert.Equal(t, "Bob", name)
	require.NoError(t, rows.Close())
}

func TestRunner_RunErrors(t *testing.T) {
	r := prepRunner(t, prepDB(t), 2)
	res, err := r.Run(context.Background(), []string{
		"SELECT name FROM people LIMIT 1",
		"SELECT * FROM nope",
		"SELECT bad syntax FROM",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `query #2 "SELECT * FROM nope"`)
	assert.Contains(t, err.Error(), "no such table: nope")
	assert.Contains(t, err.Error(), "query #3")

	require.Len(t, res, 3)
	require.NotNil(t, res[0])
	assert.Equal(t, [][]*string{{sp("Alice")}}, res[0].Rows)
	assert.Nil(t, res[1])
	assert.Nil(t, res[2])
}

func TestRunner_CreateTablesError(t *testing.T) {
	r := &Runner{DB: prepDB(t)}
	err := r.CreateTables(context.Background(), []config.Table{{Name: "empty", Data: ""}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "can't create table empty")
	assert.Contains(t, err.Error(), "no table name specified")
}

func TestRunner_DropTables(t *testing.T) {
	db := prepDB(t)
	r := &Runner{DB: db}
	tables := []config.Table{{Name: "dropped", Data: "a"}}
	require.NoError(t, r.CreateTables(context.Background(), tables))
	require.NoError(t, r.DropTables(context.Background(), tables))
	_, err := db.Exec("SELECT * FROM dropped")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such table: dropped")

	assert.NoError(t, r.DropTables(context.Background(), tables), "missing table ignored")
}

func TestRunner_RepeatedSetup(t *testing.T) {
	for i := 0; i < 3; i++ {
		r := prepRunner(t, prepDB(t), 2)
		res, err := r.Run(context.Background(), []string{"SELECT count(*) FROM people"})
		require.NoError(t, err)
		assert.Equal(t, [][]*string{{sp("3")}}, res[0].Rows)
		require.NoError(t, r.DropTables(context.Background(), testTables))
	}
}
