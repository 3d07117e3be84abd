package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/superscore/internal/backend"
	"github.com/tamzrod/superscore/internal/backend/backendtest"
	"github.com/tamzrod/superscore/internal/model"
)

func openSQLite(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{Driver: DriverSQLite, DSN: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteConformance(t *testing.T) {
	paths := map[backend.Backend]string{}
	backendtest.Run(t, backendtest.Factory{
		Open: func(t *testing.T) backend.Backend {
			path := filepath.Join(t.TempDir(), "superscore.db")
			s := openSQLite(t, path)
			paths[s] = path
			return s
		},
		Reopen: func(t *testing.T, b backend.Backend) backend.Backend {
			return openSQLite(t, paths[b])
		},
	})
}

func TestPostgresConformance(t *testing.T) {
	dsn := os.Getenv("SUPERSCORE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SUPERSCORE_TEST_POSTGRES_DSN not set")
	}
	tables := map[backend.Backend]string{}
	open := func(t *testing.T, table string) *Store {
		s, err := Open(context.Background(), Config{Driver: DriverPostgres, DSN: dsn, Table: table})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}
	backendtest.Run(t, backendtest.Factory{
		Open: func(t *testing.T) backend.Backend {
			table := "superscore_test_" + uuid.NewString()[:8]
			s := open(t, table)
			t.Cleanup(func() { _, _ = s.DB().Exec("DROP TABLE IF EXISTS " + table) })
			tables[s] = table
			return s
		},
		Reopen: func(t *testing.T, b backend.Backend) backend.Backend {
			return open(t, tables[b])
		},
	})
}

func TestRowsFollowRootOrder(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t, filepath.Join(t.TempDir(), "db"))
	var want []string
	for i := 0; i < 3; i++ {
		p := model.NewParameter(fmt.Sprintf("PV:%d", i), "")
		require.NoError(t, s.Save(ctx, p))
		want = append(want, p.ID.String())
	}

	rows, err := s.DB().QueryContext(ctx, `SELECT id FROM `+DefaultTable+` ORDER BY position`)
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()
	var got []string
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		got = append(got, id)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, want, got)
}

func TestOpenRejects(t *testing.T) {
	ctx := context.Background()
	cases := map[string]Config{
		"unknown driver": {Driver: "mysql", DSN: "x"},
		"no sqlite path": {Driver: DriverSQLite},
		"no postgres":    {Driver: DriverPostgres},
		"bad table":      {Driver: DriverSQLite, DSN: filepath.Join(t.TempDir(), "db"), Table: "x; DROP"},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Open(ctx, cfg)
			require.ErrorIs(t, err, backend.ErrBackend)
		})
	}
}

func TestOpenFailureIsWrapped(t *testing.T) {
	orig := sqlOpen
	sqlOpen = func(string, string) (*sql.DB, error) { return nil, errors.New("no route to host") }
	defer func() { sqlOpen = orig }()

	_, err := Open(context.Background(), Config{Driver: DriverPostgres, DSN: "postgres://nowhere/db"})
	require.ErrorIs(t, err, backend.ErrBackend)
	assert.Contains(t, err.Error(), "no route to host")
}
