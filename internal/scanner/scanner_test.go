// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/docweaver/pkg/types"
)

func write(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestScanFileImageFound(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "img.png"), "fake")
	md := write(t, filepath.Join(dir, "a.md"), "![a](img.png)\n")

	refs := ScanFile(md)
	require.Len(t, refs, 1)
	assert.Equal(t, types.RefImage, refs[0].Kind)
	assert.Equal(t, types.RefFound, refs[0].Status)
	assert.Equal(t, "![a](img.png)", refs[0].Original)
	assert.Equal(t, filepath.Join(dir, "img.png"), refs[0].ResolvedPath)
	assert.Equal(t, md, refs[0].SourceFile)
	assert.Equal(t, 1, refs[0].LineNumber)
}

func TestScanContentInResolvesAgainstDir(t *testing.T) {
	origin := t.TempDir()
	write(t, filepath.Join(origin, "images", "p.png"), "fake")
	copyPath := filepath.Join(t.TempDir(), "inputs", "a.md")

	refs := ScanContentIn(copyPath, origin, "# A\n\n![pic](images/p.png)\n")
	require.Len(t, refs, 1)
	assert.Equal(t, types.RefFound, refs[0].Status)
	assert.Equal(t, filepath.Join(origin, "images", "p.png"), refs[0].ResolvedPath)
	assert.Equal(t, copyPath, refs[0].SourceFile, "the copy is the file that gets rewritten")
	assert.Equal(t, 3, refs[0].LineNumber)

	missing := ScanContent(copyPath, "![pic](images/p.png)\n")
	require.Len(t, missing, 1)
	assert.Equal(t, types.RefMissing, missing[0].Status)
}

func TestScanFileClassification(t *testing.T) {
	tests := []struct {
		name    string
		content string
		files   []string
		kind    types.RefKind
		status  types.RefStatus
		line    int
	}{
		{
			name:    "image in subdirectory",
			content: "# Test\n\n![diagram](images/diagram.png)\n",
			files:   []string{"images/diagram.png"},
			kind:    types.RefImage,
			status:  types.RefFound,
			line:    3,
		},
		{
			name:    "missing image",
			content: "# Test\n\n![x](images/does_not_exist.png)\n",
			kind:    types.RefImage,
			status:  types.RefMissing,
			line:    3,
		},
		{
			name:    "existing path",
			content: "# Test\n\n[other doc](docs/other.md)\n",
			files:   []string{"docs/other.md"},
			kind:    types.RefPath,
			status:  types.RefFound,
			line:    3,
		},
		{
			name:    "missing path",
			content: "# Test\n\n[missing doc](docs/does_not_exist.md)\n",
			kind:    types.RefPath,
			status:  types.RefMissing,
			line:    3,
		},
		{
			name:    "bare url",
			content: "https://example.com",
			kind:    types.RefURL,
			status:  types.RefExternal,
			line:    1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for _, f := range tt.files {
				write(t, filepath.Join(dir, f), "x")
			}
			md := write(t, filepath.Join(dir, "doc.md"), tt.content)

			refs := ScanFile(md)
			require.Len(t, refs, 1)
			assert.Equal(t, tt.kind, refs[0].Kind)
			assert.Equal(t, tt.status, refs[0].Status)
			assert.Equal(t, tt.line, refs[0].LineNumber)
			if tt.kind == types.RefURL {
				assert.Empty(t, refs[0].ResolvedPath)
			} else {
				assert.NotEmpty(t, refs[0].ResolvedPath)
			}
		})
	}
}

func TestScanFileLinksToURLsAreExternalOnly(t *testing.T) {
	dir := t.TempDir()
	md := write(t, filepath.Join(dir, "url.md"), "# Test\n\n[Google](https://www.google.com)\n\n[GitHub](http://github.com)\n")

	refs := ScanFile(md)
	require.Len(t, refs, 2)
	for _, r := range refs {
		assert.Equal(t, types.RefURL, r.Kind)
		assert.Equal(t, types.RefExternal, r.Status)
		assert.Empty(t, r.ResolvedPath)
	}
	assert.Equal(t, "https://www.google.com", refs[0].Original)
}

func TestScanFileRemoteImageIsNotLocal(t *testing.T) {
	dir := t.TempDir()
	md := write(t, filepath.Join(dir, "a.md"), "![logo](https://cdn.example.com/logo.png)\n")

	refs := ScanFile(md)
	require.Len(t, refs, 1)
	assert.Equal(t, types.RefURL, refs[0].Kind)
}

func TestScanFileMixed(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "images", "photo.png"), "fake")
	write(t, filepath.Join(dir, "docs", "guide.md"), "# Guide")
	md := write(t, filepath.Join(dir, "mixed.md"), `# Test Document

![photo](images/photo.png)

![missing photo](images/nothing.jpg)

[guide](docs/guide.md)

[missing doc](docs/nowhere.md)

[External](https://example.com)

Some text.
`)

	refs := ScanFile(md)
	require.Len(t, refs, 5)
	counts := CountByKind(refs)
	assert.Equal(t, 2, counts[types.RefImage])
	assert.Equal(t, 2, counts[types.RefPath])
	assert.Equal(t, 1, counts[types.RefURL])

	missing := Missing(refs)
	require.Len(t, missing, 2)
	found := FoundImages(refs)
	require.Len(t, found, 1)
	assert.Equal(t, "![photo](images/photo.png)", found[0].Original)
}

func TestPathPatternExclusions(t *testing.T) {
	dir := t.TempDir()
	md := write(t, filepath.Join(dir, "a.md"), "See [section](#intro) and [spaced](a b.md).\n")
	assert.Empty(t, ScanFile(md))
}

func TestScanFileCRLF(t *testing.T) {
	dir := t.TempDir()
	md := write(t, filepath.Join(dir, "a.md"), "# T\r\n\r\n[x](y.md)\r\n")

	refs := ScanFile(md)
	require.Len(t, refs, 1)
	assert.Equal(t, 3, refs[0].LineNumber)
	assert.Equal(t, "[x](y.md)", refs[0].Original)
}

func TestScanFileUnreadable(t *testing.T) {
	assert.Empty(t, ScanFile(filepath.Join(t.TempDir(), "missing.md")))
}

func TestScanFilesDeduplicates(t *testing.T) {
	dir := t.TempDir()
	md := write(t, filepath.Join(dir, "a.md"), "[link](same.md)\n[link](same.md)")
	other := write(t, filepath.Join(dir, "b.md"), "[link](same.md)\n")

	assert.Len(t, ScanFile(md), 2)

	refs := ScanFiles([]string{md, other})
	require.Len(t, refs, 1)
	assert.Equal(t, "[link](same.md)", refs[0].Original)
	assert.Equal(t, md, refs[0].SourceFile)
	assert.Equal(t, 1, refs[0].LineNumber)
}

func TestScanFilesSkipsMissingAndDirectories(t *testing.T) {
	dir := t.TempDir()
	md := write(t, filepath.Join(dir, "a.md"), "[one](file1.md)\n")
	other := write(t, filepath.Join(dir, "b.md"), "[two](file2.md)\n")

	refs := ScanFiles([]string{md, filepath.Join(dir, "nope.md"), dir, other})
	require.Len(t, refs, 2)
	assert.Equal(t, md, refs[0].SourceFile)
	assert.Equal(t, other, refs[1].SourceFile)

	assert.Empty(t, ScanFiles(nil))
}

func TestCountByKind(t *testing.T) {
	assert.Equal(t, map[types.RefKind]int{
		types.RefImage: 0,
		types.RefPath:  0,
		types.RefURL:   0,
	}, CountByKind(nil))

	dir := t.TempDir()
	md := write(t, filepath.Join(dir, "u.md"), "https://a.com\nhttps://b.com\nhttps://a.com")
	counts := CountByKind(ScanFile(md))
	assert.Equal(t, 3, counts[types.RefURL])
	assert.Equal(t, 0, counts[types.RefImage])
}
