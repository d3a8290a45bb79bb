// Package atomicfile writes files so readers see either the old content or the
// complete new content, never a partial write.
package atomicfile

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// WriteFile writes data to a temporary file next to path, syncs it and renames
// it over path. On failure the temporary file is removed and path is untouched.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "failed to create temporary file for %s", path)
	}
	tmpPath := tmp.Name()
	fail := func(err error, op string) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return errors.Wrapf(err, "failed to %s %s", op, tmpPath)
	}
	if err = tmp.Chmod(perm); err != nil {
		return fail(err, "chmod")
	}
	if _, err = tmp.Write(data); err != nil {
		return fail(err, "write")
	}
	if err = tmp.Sync(); err != nil {
		return fail(err, "sync")
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrapf(err, "failed to close %s", tmpPath)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrapf(err, "failed to rename %s to %s", tmpPath, path)
	}
	// Best effort: persist the rename itself.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
