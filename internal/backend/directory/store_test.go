package directory

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/superscore/internal/backend"
	"github.com/tamzrod/superscore/internal/backend/backendtest"
	"github.com/tamzrod/superscore/internal/model"
	"github.com/tamzrod/superscore/internal/model/modeltest"
)

func entryFiles(t *testing.T, dir string) []string {
	t.Helper()
	items, err := os.ReadDir(dir)
	require.NoError(t, err)
	var out []string
	for _, it := range items {
		name := it.Name()
		if name == indexFile || strings.HasPrefix(name, ".") {
			continue
		}
		out = append(out, name)
	}
	return out
}

func TestConformance(t *testing.T) {
	backendtest.Run(t, backendtest.Factory{
		Open: func(t *testing.T) backend.Backend {
			s, err := Open(t.TempDir(), nil)
			require.NoError(t, err)
			return s
		},
		Reopen: func(t *testing.T, b backend.Backend) backend.Backend {
			s, err := Open(b.(*Store).Dir(), nil)
			require.NoError(t, err)
			return s
		},
	})
}

func TestOneFilePerTopLevelEntry(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := Open(dir, nil)
	require.NoError(t, err)

	db := modeltest.SampleDatabase()
	for _, e := range db.Entries {
		require.NoError(t, s.Save(ctx, e))
	}
	assert.Len(t, entryFiles(t, dir), len(db.Entries))

	require.NoError(t, s.Delete(ctx, db.Entries[0]))
	files := entryFiles(t, dir)
	assert.Len(t, files, len(db.Entries)-1)
	assert.NotContains(t, files, db.Entries[0].EntryID().String()+entryExt)
}

func TestUnchangedEntriesAreNotRewritten(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := Open(dir, nil)
	require.NoError(t, err)

	first := model.NewParameter("PV:1", "")
	require.NoError(t, s.Save(ctx, first))
	path := filepath.Join(dir, first.ID.String()+entryExt)
	// a rewrite through a temp file would reset the mode to 0600
	require.NoError(t, os.Chmod(path, 0o400))
	require.NoError(t, s.Save(ctx, model.NewParameter("PV:2", "")))
	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o400), after.Mode().Perm())
}

func TestMissingEntryFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := Open(dir, nil)
	require.NoError(t, err)
	p := model.NewParameter("PV", "")
	require.NoError(t, s.Save(ctx, p))

	require.NoError(t, os.Remove(filepath.Join(dir, p.ID.String()+entryExt)))
	_, err = Open(dir, nil)
	require.ErrorIs(t, err, backend.ErrBackend)
}
