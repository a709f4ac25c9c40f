package layout

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spherical/scan-ocr/internal/domain"
)

const dirPerm = 0o755

// EnsureRoot creates the output root. Failure here means the run cannot proceed.
func EnsureRoot(root string) error {
	if root == "" {
		return domain.ConfigError("output root is empty", nil)
	}
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return domain.IOError(fmt.Sprintf("create output root %s", root), err)
	}
	return nil
}

// EnsureLayout creates the output directories the items will write into.
// Existing files and directories are left untouched.
func EnsureLayout(items []domain.WorkItem) error {
	created := make(map[string]bool)
	mkdir := func(dir string) error {
		if dir == "" || created[dir] {
			return nil
		}
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return domain.IOError(fmt.Sprintf("create directory %s", dir), err)
		}
		created[dir] = true
		return nil
	}

	for _, item := range items {
		if err := mkdir(filepath.Dir(item.OutputPath)); err != nil {
			return err
		}
		if item.ImageDir != "" {
			if err := mkdir(filepath.Dir(item.ImageDir)); err != nil {
				return err
			}
		}
	}
	return nil
}
