// Package layout maps an input document tree onto mirrored output trees.
package layout

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/spherical/scan-ocr/internal/domain"
	"github.com/spherical/scan-ocr/internal/observability"
)

// TextExt is the extension given to every output text file.
const TextExt = ".txt"

// Walker enumerates matching documents under an input root.
type Walker struct {
	filter SuffixFilter
	logger *observability.Logger
}

// NewWalker creates a walker that selects files matching filter.
func NewWalker(filter SuffixFilter, logger *observability.Logger) *Walker {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Walker{
		filter: filter,
		logger: logger.WithOperation("discover"),
	}
}

// Discover walks inputRoot and returns one work item per matching regular file,
// sorted by relative path. It creates nothing on disk.
// imageRoot may be empty, in which case items carry no image directory.
func (w *Walker) Discover(inputRoot, outputRoot, imageRoot string) ([]domain.WorkItem, error) {
	info, err := os.Stat(inputRoot)
	if err != nil {
		return nil, domain.ValidationError(fmt.Sprintf("cannot access input root: %s", inputRoot), err)
	}
	if !info.IsDir() {
		return nil, domain.ValidationError(fmt.Sprintf("input root is not a directory: %s", inputRoot), nil)
	}

	var items []domain.WorkItem
	err = filepath.WalkDir(inputRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == inputRoot {
				return walkErr
			}
			w.logger.Warn().Str("path", path).Err(walkErr).Msg("Skipping unreadable entry")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || !w.filter.Match(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(inputRoot, path)
		if err != nil {
			return err
		}

		items = append(items, MapItem(path, rel, outputRoot, imageRoot))
		return nil
	})
	if err != nil {
		return nil, domain.IOError(fmt.Sprintf("walk %s", inputRoot), err)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].RelPath < items[j].RelPath })

	w.logger.Debug().Int("documents", len(items)).Str("root", inputRoot).Msg("Discovered documents")
	return items, nil
}

// MapItem derives the mirrored output paths for a document at relPath.
func MapItem(inputPath, relPath, outputRoot, imageRoot string) domain.WorkItem {
	dir, name := filepath.Split(relPath)
	base := stem(name)

	item := domain.WorkItem{
		InputPath:  inputPath,
		RelPath:    relPath,
		OutputPath: filepath.Join(outputRoot, dir, base+TextExt),
	}
	if imageRoot != "" {
		item.ImageDir = filepath.Join(imageRoot, dir, base)
	}
	return item
}
