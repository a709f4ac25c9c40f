package layout

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spherical/scan-ocr/internal/domain"
)

// Rename records one extension rename.
type Rename struct {
	From    string
	To      string
	Skipped string // reason the rename was not applied, empty on success
}

// RenameExtensions renames every file under root whose name ends in from
// (case-insensitive) to the same stem with the to suffix. Targets that already
// exist are never overwritten. With dryRun set nothing on disk changes.
func RenameExtensions(root, from, to string, dryRun bool) ([]Rename, error) {
	filter := NewSuffixFilter(from)
	if len(filter.Suffixes()) == 0 {
		return nil, domain.ValidationError("source suffix is empty", nil)
	}
	if !strings.HasPrefix(to, ".") {
		to = "." + to
	}

	var renames []Rename
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() || !filter.Match(d.Name()) {
			return nil
		}

		base := path[:len(path)-len(filter.matched(d.Name()))]
		target := base + to
		r := Rename{From: path, To: target}

		if _, statErr := os.Stat(target); statErr == nil {
			r.Skipped = "target exists"
		} else if !dryRun {
			if err := os.Rename(path, target); err != nil {
				r.Skipped = err.Error()
			}
		}

		renames = append(renames, r)
		return nil
	})
	if err != nil {
		return renames, domain.IOError(fmt.Sprintf("walk %s", root), err)
	}
	return renames, nil
}

// matched returns the suffix of name, in its original case, that the filter matched.
func (f SuffixFilter) matched(name string) string {
	lower := strings.ToLower(name)
	for _, s := range f.suffixes {
		if strings.HasSuffix(lower, s) {
			return name[len(name)-len(s):]
		}
	}
	return ""
}
