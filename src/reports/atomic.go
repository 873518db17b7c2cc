package reports

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

type stagedFile struct {
	path   string
	tmp    string
	backup string
	placed bool
}

// OutputSet writes several report files so that either all of them replace
// their targets or none does. Files are staged into temporary siblings and
// only renamed into place by Commit.
type OutputSet struct {
	files     []*stagedFile
	committed bool
}

func NewOutputSet() *OutputSet {
	return &OutputSet{}
}

// Paths returns the target paths in staging order.
func (s *OutputSet) Paths() []string {
	paths := make([]string, 0, len(s.files))
	for _, f := range s.files {
		paths = append(paths, f.path)
	}
	return paths
}

// Stage writes the content of path into a temporary file next to it.
func (s *OutputSet) Stage(path string, write func(w io.Writer) error) (err error) {
	if s.committed {
		return fmt.Errorf("cannot stage %s: output set already committed", path)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if err = write(tmp); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	s.files = append(s.files, &stagedFile{path: path, tmp: tmpName})
	return nil
}

// Commit renames every staged file into place. Existing targets are kept
// aside until Finish, so a failed Commit, or a later Rollback, restores the
// previous files.
func (s *OutputSet) Commit() error {
	if s.committed {
		return nil
	}
	for _, f := range s.files {
		if err := f.place(); err != nil {
			return errors.Join(err, s.Rollback())
		}
	}
	s.committed = true
	return nil
}

func (f *stagedFile) place() error {
	info, err := os.Lstat(f.path)
	switch {
	case err == nil && info.IsDir():
		return fmt.Errorf("failed to replace %s: target is a directory", f.path)
	case err == nil:
		backup, err := os.CreateTemp(filepath.Dir(f.path), "."+filepath.Base(f.path)+".bak-*")
		if err != nil {
			return fmt.Errorf("failed to back up %s: %w", f.path, err)
		}
		backup.Close()
		if err := os.Rename(f.path, backup.Name()); err != nil {
			os.Remove(backup.Name())
			return fmt.Errorf("failed to back up %s: %w", f.path, err)
		}
		f.backup = backup.Name()
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("failed to inspect %s: %w", f.path, err)
	}

	if err := os.Rename(f.tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", f.path, err)
	}
	f.placed = true
	return nil
}

// Rollback discards staged files and, after a Commit, puts the previous
// targets back.
func (s *OutputSet) Rollback() error {
	var errs []error
	for i := len(s.files) - 1; i >= 0; i-- {
		f := s.files[i]
		if f.placed {
			if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
			f.placed = false
		} else if err := os.Remove(f.tmp); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
		if f.backup != "" {
			if err := os.Rename(f.backup, f.path); err != nil {
				errs = append(errs, fmt.Errorf("failed to restore %s: %w", f.path, err))
			}
			f.backup = ""
		}
	}
	s.files = nil
	s.committed = false
	return errors.Join(errs...)
}

// Finish drops the backups of replaced files. The set cannot be rolled back
// afterwards.
func (s *OutputSet) Finish() {
	for _, f := range s.files {
		if f.backup != "" {
			os.Remove(f.backup)
			f.backup = ""
		}
	}
	s.files = nil
}
