package statedir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	dir := t.TempDir()

	s, err := New(dir + "/./")
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(dir), s.Base())
	assert.Equal(t, filepath.Join(dir, "metadata"), s.Path("metadata"))

	_, err = New(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, ErrStateDir)

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	_, err = New(file)
	assert.ErrorIs(t, err, ErrStateDir)
}

func TestWriteFile(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.WriteFile("metadata", []byte(`{"id":"a"}`), ModeFile))
	require.NoError(t, s.WriteFile("metadata", []byte(`{"id":"b"}`), ModeFile))

	b, err := os.ReadFile(s.Path("metadata"))
	require.NoError(t, err)
	assert.Equal(t, `{"id":"b"}`, string(b))

	info, err := os.Stat(s.Path("metadata"))
	require.NoError(t, err)
	assert.Equal(t, ModeFile, info.Mode().Perm())
	assert.False(t, s.IsExecutable("metadata"))

	require.NoError(t, s.WriteFile("cleanup.sh", []byte("#!/usr/bin/env sh\nreboot\n"), ModeExecutable))

	info, err = os.Stat(s.Path("cleanup.sh"))
	require.NoError(t, err)
	assert.Equal(t, ModeExecutable, info.Mode().Perm())
	assert.True(t, s.IsExecutable("cleanup.sh"))
}

func TestRemoveExists(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	assert.False(t, s.Exists("disks-partioned-image-extracted"))
	assert.False(t, s.IsExecutable("loop.sh"))

	require.NoError(t, os.WriteFile(s.Path("disks-partioned-image-extracted"), nil, 0o644))
	assert.True(t, s.Exists("disks-partioned-image-extracted"))

	require.NoError(t, s.Remove("disks-partioned-image-extracted"))
	assert.False(t, s.Exists("disks-partioned-image-extracted"))

	assert.ErrorIs(t, s.Remove("disks-partioned-image-extracted"), ErrStateDir)
}
