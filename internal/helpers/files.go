package helpers

import (
	"os"
	"path/filepath"
	"regexp"

	"github.com/pkg/errors"
)

var windowCRregexp = regexp.MustCompile(`\r?\n`)

// NormalizeNewlines turns CRLF line endings into LF.
func NormalizeNewlines(b []byte) []byte {
	return windowCRregexp.ReplaceAll(b, []byte("\n"))
}

// WriteFile writes data next to path then renames it into place, so readers
// never observe a half written file. Missing parent folders are created.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "create folder %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrapf(err, "create temporary file for %s", path)
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(data)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmpName, perm)
	}
	if err == nil {
		err = os.Rename(tmpName, path)
	}
	if err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

// Exists reports whether path can be stat'ed.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
