// Package statedir manages the scratch directory shared with the installer.
//
// The runner writes the metadata, userdata and marker files here before an installer
// run, and inspects the marker files the installer leaves behind once it exits.
package statedir

import (
	"os"
	"path/filepath"

	"github.com/moby/sys/atomicwriter"
	"github.com/pkg/errors"
)

var (
	ErrStateDir = errors.New("state directory error")
)

const (
	ModeFile       os.FileMode = 0o644
	ModeExecutable os.FileMode = 0o700
)

// Store is a state directory rooted at a fixed base.
type Store struct {
	base string
}

// New returns a Store rooted at the normalized base directory.
func New(base string) (*Store, error) {
	base = filepath.Clean(base)

	info, err := os.Stat(base)
	if err != nil {
		return nil, errors.Wrap(ErrStateDir, err.Error())
	}

	if !info.IsDir() {
		return nil, errors.Wrap(ErrStateDir, "not a directory: "+base)
	}

	return &Store{base: base}, nil
}

// Base returns the state directory path.
func (s *Store) Base() string {
	return s.base
}

// Path returns the path of the named file within the state directory.
func (s *Store) Path(name string) string {
	return filepath.Join(s.base, filepath.Base(name))
}

// WriteFile creates or replaces the named file with content and mode.
//
// The content is written to a temporary file which is renamed into place,
// a reader never observes a partially written file.
func (s *Store) WriteFile(name string, content []byte, mode os.FileMode) error {
	if err := atomicwriter.WriteFile(s.Path(name), content, mode); err != nil {
		return errors.Wrap(ErrStateDir, "write "+name+": "+err.Error())
	}

	return nil
}

// Remove deletes the named file.
func (s *Store) Remove(name string) error {
	if err := os.Remove(s.Path(name)); err != nil {
		return errors.Wrap(ErrStateDir, "remove "+name+": "+err.Error())
	}

	return nil
}

// Exists returns true when the named file is present.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}

// IsExecutable returns true when the named file is present and has an executable bit set.
func (s *Store) IsExecutable(name string) bool {
	info, err := os.Stat(s.Path(name))
	if err != nil {
		return false
	}

	return !info.IsDir() && info.Mode().Perm()&0o111 != 0
}
