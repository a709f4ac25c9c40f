// Package rag answers questions over the converted text corpus: it loads the
// text tree, splits documents into overlapping chunks, embeds and indexes them
// in memory, and passes the top-k chunks with the question to a chat model.
package rag

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spherical/scan-ocr/internal/domain"
	"github.com/spherical/scan-ocr/internal/layout"
	"github.com/spherical/scan-ocr/internal/observability"
)

// Document is one text file of the corpus.
type Document struct {
	Path    string
	RelPath string
	Text    string
}

// LoadCorpus reads every .txt file under root. Blank files are skipped, and
// unreadable files are logged and skipped.
func LoadCorpus(root string, logger *observability.Logger) ([]Document, error) {
	if logger == nil {
		logger = observability.Nop()
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, domain.ValidationError(fmt.Sprintf("cannot access corpus root: %s", root), err)
	}
	if !info.IsDir() {
		return nil, domain.ValidationError(fmt.Sprintf("corpus root is not a directory: %s", root), nil)
	}

	filter := layout.NewSuffixFilter(layout.TextExt)
	var docs []Document

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			logger.Warn().Str("path", path).Err(walkErr).Msg("Skipping unreadable entry")
			return nil
		}
		if !d.Type().IsRegular() || !filter.Match(d.Name()) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn().Str("path", path).Err(err).Msg("Skipping unreadable file")
			return nil
		}
		if strings.TrimSpace(string(data)) == "" {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		docs = append(docs, Document{Path: path, RelPath: rel, Text: string(data)})
		return nil
	})
	if err != nil {
		return nil, domain.IOError(fmt.Sprintf("walk %s", root), err)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].RelPath < docs[j].RelPath })
	logger.Debug().Int("documents", len(docs)).Str("root", root).Msg("Loaded corpus")
	return docs, nil
}
