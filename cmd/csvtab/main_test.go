package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseOpts(t *testing.T, args ...string) options {
	t.Helper()
	var opts options
	_, err := flags.ParseArgs(&opts, args)
	require.NoError(t, err)
	return opts
}

func TestRun(t *testing.T) {
	setupLog(true, true)

	tests := []struct {
		name     string
		args     []string
		want     string
		contains []string
		wantErr  string
	}{
		{
			name: "config with join",
			args: []string{"-c", "testdata/defs.yml", "--no-color"},
			contains: []string{
				"| city        | temp |\n",
				"| Berlin      | 20   |\n| Paris       | 18   |\n| Rome; Italy | 25   |\n",
				"(3 rows)\n",
			},
		},
		{
			name: "ad-hoc table csv output",
			args: []string{"-t", "c=testdata/cities.csv", "--delimiter", ";", "-f", "csv",
				"SELECT id, city FROM c WHERE id > '1'"},
			want: "id,city\n2,Paris\n3,Rome; Italy\n",
		},
		{
			name: "ad-hoc without header",
			args: []string{"-t", "c=testdata/cities.csv", "--delimiter", ";", "--no-header", "-f", "csv",
				"--quote", "0", "-q", "SELECT c1 FROM c WHERE rowid = 4"},
			want: "c1\n\"\"\"Rome\"\n",
		},
		{
			name: "several queries concurrently",
			args: []string{"-c", "testdata/defs.yml", "--concurrent", "2", "-f", "csv", "-q", "SELECT count(*) AS n FROM temps"},
			want: "city,temp\nBerlin,20\nParis,18\nRome; Italy,25\nn\n3\n",
		},
		{
			name: "same tables again",
			args: []string{"-c", "testdata/defs.yml", "-f", "csv", "--concurrent", "4",
				"SELECT count(*) AS n FROM cities", "SELECT count(*) AS n FROM temps"},
			want: "city,temp\nBerlin,20\nParis,18\nRome; Italy,25\nn\n3\nn\n3\n",
		},
		{
			name:    "no queries",
			args:    []string{"-t", "c=testdata/cities.csv"},
			wantErr: "no queries to run",
		},
		{
			name:    "bad table option",
			args:    []string{"-t", "testdata/cities.csv", "SELECT 1"},
			wantErr: `invalid table "testdata/cities.csv", expected name=path`,
		},
		{
			name:    "duplicate table",
			args:    []string{"-c", "testdata/defs.yml", "-t", "cities=testdata/cities.csv"},
			wantErr: `duplicate name "cities"`,
		},
		{
			name:    "missing config",
			args:    []string{"-c", "testdata/nope.yml"},
			wantErr: "can't load config",
		},
		{
			name:    "query error",
			args:    []string{"-t", "c=testdata/cities.csv", "SELECT * FROM nope"},
			wantErr: "no such table: nope",
		},
		{
			name:    "module error",
			args:    []string{"-t", "c=testdata/cities.csv", "--delimiter", "::", "SELECT 1"},
			wantErr: `delimiter "::" must be a single character`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opts := parseOpts(t, tc.args...)
			buf := bytes.Buffer{}
			err := run(context.Background(), opts, &buf)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			if len(tc.contains) > 0 {
				for _, c := range tc.contains {
					assert.Contains(t, buf.String(), c)
				}
				return
			}
			assert.Equal(t, tc.want, buf.String())
		})
	}
}

func TestMonochrome(t *testing.T) {
	assert.True(t, monochrome(options{NoColor: true}, &bytes.Buffer{}))
	assert.True(t, monochrome(options{}, &bytes.Buffer{}), "not a terminal")
}
