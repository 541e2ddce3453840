package stage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/dusk-indust/excelslim/internal/naming"
	"github.com/dusk-indust/excelslim/internal/orchestrator"
)

// maxBackupAttempts bounds the counter tried when same-second backups collide.
const maxBackupAttempts = 1000

// writeBackup copies input to a timestamped sibling and returns its path. An
// existing backup is never overwritten; a "(n)" counter is added instead.
func writeBackup(input string, now time.Time) (string, error) {
	var (
		dst string
		err error
	)
	for n := 0; n < maxBackupAttempts; n++ {
		dst = naming.NumberedBackupPath(input, now, n)
		if err = copyFile(input, dst); !errors.Is(err, fs.ErrExist) {
			break
		}
	}
	if err != nil {
		return "", orchestrator.NewStageError(err, "cannot write backup %s: %v", dst, err)
	}
	return dst, nil
}

// copyFile copies src to dst, refusing to overwrite an existing dst.
func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dst)
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Sync()
}
