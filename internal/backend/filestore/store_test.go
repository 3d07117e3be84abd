package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/superscore/internal/backend"
	"github.com/tamzrod/superscore/internal/backend/backendtest"
	"github.com/tamzrod/superscore/internal/model"
)

func TestConformance(t *testing.T) {
	backendtest.Run(t, backendtest.Factory{
		Open: func(t *testing.T) backend.Backend {
			s, err := Open(filepath.Join(t.TempDir(), "db.json"), nil)
			require.NoError(t, err)
			return s
		},
		Reopen: func(t *testing.T, b backend.Backend) backend.Backend {
			s, err := Open(b.(*Store).Path(), nil)
			require.NoError(t, err)
			return s
		},
	})
}

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "db.json")
	s, err := Open(path, nil)
	require.NoError(t, err)

	r, err := s.Root(context.Background())
	require.NoError(t, err)
	assert.Empty(t, r.Entries)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "nothing is written before the first mutation")
}

func TestOpenCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err := Open(path, nil)
	require.ErrorIs(t, err, backend.ErrBackend)
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "db.json"), nil)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), model.NewParameter("PV", "")))

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "db.json", files[0].Name())
}

func TestUnwritableDirectoryFailsMutation(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "db.json"), nil)
	require.NoError(t, err)
	require.NoError(t, os.Chmod(dir, 0o500))
	defer func() { _ = os.Chmod(dir, 0o700) }()

	err = s.Save(context.Background(), model.NewParameter("PV", ""))
	require.ErrorIs(t, err, backend.ErrBackend)

	r, err := s.Root(context.Background())
	require.NoError(t, err)
	assert.Empty(t, r.Entries)
}
