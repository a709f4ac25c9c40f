package extract

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spherical/scan-ocr/internal/domain"
)

// WriteText atomically replaces path with text. The content goes to a temp
// file in the same directory which is synced and renamed over the target, so
// readers only ever see the previous file or the complete new one.
func WriteText(path, text string) (err error) {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return domain.IOError(fmt.Sprintf("create temp file in %s", dir), err)
	}
	tmpPath := tmp.Name()

	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.WriteString(text); err != nil {
		return domain.IOError(fmt.Sprintf("write %s", path), err)
	}
	if err = tmp.Sync(); err != nil {
		return domain.IOError(fmt.Sprintf("sync %s", path), err)
	}
	if err = tmp.Close(); err != nil {
		return domain.IOError(fmt.Sprintf("close %s", path), err)
	}
	if err = os.Chmod(tmpPath, 0o644); err != nil {
		return domain.IOError(fmt.Sprintf("chmod %s", path), err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return domain.IOError(fmt.Sprintf("rename into %s", path), err)
	}
	return nil
}
