package layout

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/scan-ocr/internal/domain"
	"github.com/spherical/scan-ocr/internal/observability"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestSuffixFilter_Match(t *testing.T) {
	f := NewSuffixFilter("pdf", ".PDF", " ")
	assert.Equal(t, []string{".pdf"}, f.Suffixes())

	tests := []struct {
		name string
		want bool
	}{
		{"report.pdf", true},
		{"REPORT.PDF", true},
		{"mixed.Pdf", true},
		{"notes.txt", false},
		{"pdf", false},
		{".pdf", false},
		{"archive.pdf.bak", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Match(tt.name))
		})
	}
}

func TestDiscover_MirrorsTree(t *testing.T) {
	in := t.TempDir()
	writeFile(t, filepath.Join(in, "a.pdf"), "x")
	writeFile(t, filepath.Join(in, "sub", "b.PDF"), "x")
	writeFile(t, filepath.Join(in, "sub", "deep", "c.Pdf"), "x")
	writeFile(t, filepath.Join(in, "sub", "ignore.txt"), "x")

	out := filepath.Join(t.TempDir(), "out")
	img := filepath.Join(t.TempDir(), "img")

	w := NewWalker(NewSuffixFilter(".pdf"), observability.Nop())
	items, err := w.Discover(in, out, img)
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "a.pdf", items[0].RelPath)
	assert.Equal(t, filepath.Join(out, "a.txt"), items[0].OutputPath)
	assert.Equal(t, filepath.Join(img, "a"), items[0].ImageDir)

	assert.Equal(t, filepath.Join("sub", "b.PDF"), items[1].RelPath)
	assert.Equal(t, filepath.Join(out, "sub", "b.txt"), items[1].OutputPath)

	assert.Equal(t, filepath.Join(out, "sub", "deep", "c.txt"), items[2].OutputPath)
	assert.Equal(t, filepath.Join(img, "sub", "deep", "c"), items[2].ImageDir)

	// discovery has no side effects
	_, err = os.Stat(out)
	assert.True(t, os.IsNotExist(err))
}

func TestDiscover_NoImageRoot(t *testing.T) {
	in := t.TempDir()
	writeFile(t, filepath.Join(in, "a.pdf"), "x")

	items, err := NewWalker(NewSuffixFilter(".pdf"), nil).Discover(in, "out", "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Empty(t, items[0].ImageDir)
}

func TestDiscover_BadRoot(t *testing.T) {
	w := NewWalker(NewSuffixFilter(".pdf"), nil)

	_, err := w.Discover(filepath.Join(t.TempDir(), "missing"), "out", "")
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))

	file := filepath.Join(t.TempDir(), "file.pdf")
	writeFile(t, file, "x")
	_, err = w.Discover(file, "out", "")
	assert.Error(t, err)
}

func TestEnsureLayout(t *testing.T) {
	in := t.TempDir()
	writeFile(t, filepath.Join(in, "a.pdf"), "x")
	writeFile(t, filepath.Join(in, "x", "y", "b.pdf"), "x")

	out := filepath.Join(t.TempDir(), "out")
	img := filepath.Join(t.TempDir(), "img")
	require.NoError(t, EnsureRoot(out))

	items, err := NewWalker(NewSuffixFilter(".pdf"), nil).Discover(in, out, img)
	require.NoError(t, err)

	// an unrelated file already in the output tree must survive
	keep := filepath.Join(out, "x", "y", "keep.md")
	writeFile(t, keep, "mine")

	require.NoError(t, EnsureLayout(items))
	require.NoError(t, EnsureLayout(items))

	assert.DirExists(t, filepath.Join(out, "x", "y"))
	assert.DirExists(t, filepath.Join(img, "x", "y"))
	data, err := os.ReadFile(keep)
	require.NoError(t, err)
	assert.Equal(t, "mine", string(data))
}

func TestEnsureRoot_Errors(t *testing.T) {
	assert.Error(t, EnsureRoot(""))

	blocker := filepath.Join(t.TempDir(), "file")
	writeFile(t, blocker, "x")
	err := EnsureRoot(filepath.Join(blocker, "out"))
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeIO))
}

func TestRenameExtensions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.PDF"), "text a")
	writeFile(t, filepath.Join(root, "sub", "b.pdf"), "text b")
	writeFile(t, filepath.Join(root, "sub", "c.PDF"), "text c")
	writeFile(t, filepath.Join(root, "sub", "c.txt"), "existing")

	renames, err := RenameExtensions(root, ".pdf", "txt", true)
	require.NoError(t, err)
	require.Len(t, renames, 3)
	assert.FileExists(t, filepath.Join(root, "a.PDF"), "dry run must not touch files")

	renames, err = RenameExtensions(root, ".pdf", ".txt", false)
	require.NoError(t, err)

	var skipped []string
	for _, r := range renames {
		if r.Skipped != "" {
			skipped = append(skipped, r.From)
		}
	}
	sort.Strings(skipped)
	assert.Equal(t, []string{filepath.Join(root, "sub", "c.PDF")}, skipped)

	assert.FileExists(t, filepath.Join(root, "a.txt"))
	assert.FileExists(t, filepath.Join(root, "sub", "b.txt"))
	data, err := os.ReadFile(filepath.Join(root, "sub", "c.txt"))
	require.NoError(t, err)
	assert.Equal(t, "existing", string(data))
}
