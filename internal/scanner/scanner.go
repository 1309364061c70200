// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package scanner extracts image references, relative-path links, and
// absolute URLs from markdown files. Relative targets are resolved against
// the directory of the file that contains them and classified found or
// missing once, at scan time.
package scanner

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pdiddy/docweaver/pkg/types"
)

var (
	imagePattern = regexp.MustCompile(`!\[([^\]]*)\]\(([^)]+)\)`)
	pathPattern  = regexp.MustCompile(`\[([^\]]*)\]\(([^)#\s]+)\)`)
	urlPattern   = regexp.MustCompile(`https?://[^\s)"<>]+`)
)

// ScanFile returns every reference in the file at path, in line order. A file
// that cannot be read contributes no references.
func ScanFile(path string) []types.Reference {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return ScanContent(path, string(data))
}

// ScanContent scans markdown text as if it were the contents of path.
func ScanContent(path, content string) []types.Reference {
	return ScanContentIn(path, filepath.Dir(path), content)
}

// ScanContentIn is ScanContent with relative targets resolved against dir
// instead of path's directory. It serves copies of files that were moved
// away from their assets.
func ScanContentIn(path, dir, content string) []types.Reference {
	var refs []types.Reference

	for i, line := range splitLines(content) {
		lineNumber := i + 1

		for _, m := range imagePattern.FindAllStringSubmatch(line, -1) {
			if strings.HasPrefix(m[2], "http") {
				continue
			}
			refs = append(refs, local(types.RefImage, m[0], m[2], dir, path, lineNumber))
		}

		for _, loc := range pathPattern.FindAllStringSubmatchIndex(line, -1) {
			// Image syntax is handled above.
			if loc[0] > 0 && line[loc[0]-1] == '!' {
				continue
			}
			target := line[loc[4]:loc[5]]
			if strings.HasPrefix(target, "http") {
				continue
			}
			refs = append(refs, local(types.RefPath, line[loc[0]:loc[1]], target, dir, path, lineNumber))
		}

		for _, url := range urlPattern.FindAllString(line, -1) {
			refs = append(refs, types.Reference{
				Kind:       types.RefURL,
				Original:   url,
				Status:     types.RefExternal,
				SourceFile: path,
				LineNumber: lineNumber,
			})
		}
	}
	return refs
}

func local(kind types.RefKind, original, target, dir, source string, line int) types.Reference {
	resolved := filepath.Join(dir, target)
	if abs, err := filepath.Abs(resolved); err == nil {
		resolved = abs
	}
	status := types.RefMissing
	if _, err := os.Stat(resolved); err == nil {
		status = types.RefFound
	}
	return types.Reference{
		Kind:         kind,
		Original:     original,
		ResolvedPath: resolved,
		Status:       status,
		SourceFile:   source,
		LineNumber:   line,
	}
}

// splitLines splits on \n, \r\n, and \r without yielding a trailing empty line.
func splitLines(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	content = strings.TrimSuffix(content, "\n")
	if content == "" {
		return nil
	}
	return strings.Split(content, "\n")
}

// ScanFiles scans each regular file in paths, concatenates the results, and
// deduplicates them. Paths that are not regular files are skipped.
func ScanFiles(paths []string) []types.Reference {
	var all []types.Reference
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		all = append(all, ScanFile(p)...)
	}
	return Deduplicate(all)
}

// Deduplicate keeps the first reference for each distinct Original text,
// preserving order.
func Deduplicate(refs []types.Reference) []types.Reference {
	seen := make(map[string]bool, len(refs))
	out := make([]types.Reference, 0, len(refs))
	for _, r := range refs {
		if seen[r.Original] {
			continue
		}
		seen[r.Original] = true
		out = append(out, r)
	}
	return out
}

// CountByKind reports how many references fall into each kind. All three
// kinds are always present in the result.
func CountByKind(refs []types.Reference) map[types.RefKind]int {
	counts := map[types.RefKind]int{
		types.RefImage: 0,
		types.RefPath:  0,
		types.RefURL:   0,
	}
	for _, r := range refs {
		counts[r.Kind]++
	}
	return counts
}

// Missing returns the image and path references whose target was not found.
func Missing(refs []types.Reference) []types.Reference {
	var out []types.Reference
	for _, r := range refs {
		if r.Status == types.RefMissing {
			out = append(out, r)
		}
	}
	return out
}

// FoundImages returns the image references whose target exists.
func FoundImages(refs []types.Reference) []types.Reference {
	var out []types.Reference
	for _, r := range refs {
		if r.Kind == types.RefImage && r.Status == types.RefFound {
			out = append(out, r)
		}
	}
	return out
}
