// Package naming derives output, log and backup paths from an input workbook
// path. Nothing here writes to disk; UniquePath only checks existence, so a
// concurrent writer can still claim the returned path before the caller does.
package naming

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// SlimSuffix is appended to the stem of image-stage outputs.
	SlimSuffix = "_slim"

	// ImageLogTag is appended to the stem of the image-stage companion log.
	ImageLogTag = "_image_slim"

	// LogExt is the extension of every auxiliary log file.
	LogExt = ".log"

	backupLayout = "20060102-150405"
)

// Exister reports whether a path is present.
type Exister interface {
	Exists(path string) bool
}

// OS checks existence against the local filesystem.
type OS struct{}

// Exists reports true for anything os.Stat can see, including paths it fails
// to stat for reasons other than absence.
func (OS) Exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}

// splitStem returns dir, stem and extension of path.
func splitStem(path string) (dir, stem, ext string) {
	dir = filepath.Dir(path)
	base := filepath.Base(path)
	ext = filepath.Ext(base)
	stem = strings.TrimSuffix(base, ext)
	return dir, stem, ext
}

// UniquePath returns <stem><suffix><ext> next to input, or the first of
// <stem><suffix>(1)<ext>, <stem><suffix>(2)<ext>, ... that does not exist.
func UniquePath(fsys Exister, input, suffix string) string {
	if fsys == nil {
		fsys = OS{}
	}
	dir, stem, ext := splitStem(input)

	candidate := filepath.Join(dir, stem+suffix+ext)
	for n := 1; fsys.Exists(candidate); n++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s%s(%d)%s", stem, suffix, n, ext))
	}
	return candidate
}

// LogPath returns the sibling log file <stem><tag>.log for input.
func LogPath(input, tag string) string {
	dir, stem, _ := splitStem(input)
	return filepath.Join(dir, stem+tag+LogExt)
}

// BackupPath returns a timestamped sibling <stem>_backup_YYYYMMDD-HHMMSS<ext>.
func BackupPath(input string, now time.Time) string {
	return NumberedBackupPath(input, now, 0)
}

// NumberedBackupPath returns the n-th candidate backup path for input. n == 0
// is BackupPath; n > 0 inserts a "(n)" counter before the extension, matching
// UniquePath's collision scheme.
func NumberedBackupPath(input string, now time.Time, n int) string {
	dir, stem, ext := splitStem(input)
	name := stem + "_backup_" + now.Format(backupLayout)
	if n > 0 {
		name += fmt.Sprintf("(%d)", n)
	}
	return filepath.Join(dir, name+ext)
}
