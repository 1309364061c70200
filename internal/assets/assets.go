// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package assets copies located images into a session's assets area and
// rewrites markdown image syntax in the session inputs to point at the
// copies (./assets/<basename>). Running the same references through Apply
// twice yields the same files.
package assets

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pdiddy/docweaver/internal/fsutil"
	"github.com/pdiddy/docweaver/internal/logging"
	"github.com/pdiddy/docweaver/pkg/types"
)

// LocalPrefix is the relative form written into rewritten image syntax.
const LocalPrefix = "./assets/"

// imageSyntax matches ![alt](path), allowing one level of nested brackets in
// the alt text. Group 1 is the ![alt] part, group 2 the parenthesized body.
var imageSyntax = regexp.MustCompile(`(!\[[^\[\]]*(?:\[[^\[\]]*\][^\[\]]*)*\])\(\s*([^)]+)\s*\)`)

// Summary reports what Apply did.
type Summary struct {
	// Copied is the number of distinct targets copied into assets/.
	Copied int `json:"copied" yaml:"copied"`

	// Rewritten is the total number of image references rewritten.
	Rewritten int `json:"rewritten" yaml:"rewritten"`

	// PerFile maps an input file to its rewrite count. Files with no
	// rewrites are absent.
	PerFile map[string]int `json:"per_file" yaml:"per_file"`

	// Copies maps an original link target to the basename it was copied to.
	Copies map[string]string `json:"copies" yaml:"copies"`
}

// Apply copies every found image reference into the session assets area and
// rewrites the input files that contain them.
func Apply(sessionPath string, refs []types.Reference, logger *slog.Logger) Summary {
	logger = logging.OrNop(logger)

	copies := CopyFoundImages(sessionPath, refs, logger)
	perFile := RewriteInputFiles(sessionPath, refs, copies, logger)

	total := 0
	for _, n := range perFile {
		total += n
	}
	logger.Info("asset scan results applied", "copied", len(copies), "rewritten", total)
	return Summary{
		Copied:    len(copies),
		Rewritten: total,
		PerFile:   perFile,
		Copies:    copies,
	}
}

// CopyFoundImages copies the resolved file of each found image reference to
// <session>/assets/<basename> and returns target -> basename for the copies
// that succeeded. When two sources share a basename the later one wins.
func CopyFoundImages(sessionPath string, refs []types.Reference, logger *slog.Logger) map[string]string {
	logger = logging.OrNop(logger)
	copies := map[string]string{}
	copied := map[string]string{}
	dir := filepath.Join(sessionPath, "assets")

	for _, ref := range refs {
		if ref.Kind != types.RefImage || ref.Status != types.RefFound {
			continue
		}
		// The same image referenced from several files is copied once.
		if base, ok := copied[ref.ResolvedPath]; ok {
			copies[ref.Target()] = base
			continue
		}
		if !fsutil.IsFile(ref.ResolvedPath) {
			logger.Warn("skipping image copy: source not found",
				"resolved_path", ref.ResolvedPath, "source_file", ref.SourceFile)
			continue
		}

		base := filepath.Base(ref.ResolvedPath)
		dest := filepath.Join(dir, base)
		if _, err := os.Stat(dest); err == nil {
			logger.Info("image collision: overwriting asset",
				"asset", base, "resolved_path", ref.ResolvedPath, "source_file", ref.SourceFile)
		}
		if err := fsutil.CopyFile(ref.ResolvedPath, dest); err != nil {
			logger.Warn("image copy failed",
				"resolved_path", ref.ResolvedPath, "source_file", ref.SourceFile, "error", err)
			continue
		}
		logger.Debug("image copied", "resolved_path", ref.ResolvedPath, "asset", base)
		copied[ref.ResolvedPath] = base
		copies[ref.Target()] = base
	}

	logger.Info("copied images to session assets", "count", len(copies))
	return copies
}

// RewriteContent replaces the path of every image whose link target equals
// target exactly with ./assets/<basename>. A quoted title after the path is
// accepted when matching and dropped from the output. It returns the new
// content and the number of replacements.
func RewriteContent(content, target, basename string) (string, int) {
	if content == "" || target == "" {
		return content, 0
	}
	count := 0
	out := imageSyntax.ReplaceAllStringFunc(content, func(match string) string {
		sub := imageSyntax.FindStringSubmatch(match)
		if linkPath(sub[2]) != target {
			return match
		}
		count++
		return sub[1] + "(" + LocalPrefix + basename + ")"
	})
	return out, count
}

// linkPath strips surrounding space and an optional "title" or 'title'
// suffix from the parenthesized body of an image link.
func linkPath(body string) string {
	p := strings.TrimSpace(body)
	for _, q := range []string{` "`, ` '`} {
		if i := strings.Index(p, q); i >= 0 {
			p = p[:i]
			break
		}
	}
	return strings.TrimSpace(p)
}

// RewriteInputFiles rewrites, in place, each input file that holds a copied
// image reference. A relative SourceFile is taken to be relative to the
// session inputs area. The original line-ending convention is kept. It
// returns source file -> rewrite count for the files that changed.
func RewriteInputFiles(sessionPath string, refs []types.Reference, copies map[string]string, logger *slog.Logger) map[string]int {
	logger = logging.OrNop(logger)
	results := map[string]int{}
	if len(refs) == 0 || len(copies) == 0 {
		return results
	}

	var order []string
	byFile := map[string][]types.Reference{}
	for _, ref := range refs {
		if ref.Kind != types.RefImage || ref.Status != types.RefFound {
			continue
		}
		if _, ok := byFile[ref.SourceFile]; !ok {
			order = append(order, ref.SourceFile)
		}
		byFile[ref.SourceFile] = append(byFile[ref.SourceFile], ref)
	}

	for _, source := range order {
		path := source
		if !filepath.IsAbs(path) {
			path = filepath.Join(sessionPath, "inputs", source)
		}
		n, err := rewriteFile(path, byFile[source], copies)
		if err != nil {
			logger.Warn("input rewrite failed", "source_file", source, "error", err)
			continue
		}
		if n == 0 {
			continue
		}
		results[source] = n
		logger.Info("rewrote image references", "source_file", source, "count", n)
	}
	return results
}

func rewriteFile(path string, refs []types.Reference, copies map[string]string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	crlf := bytes.Contains(raw, []byte("\r\n"))
	content := strings.ReplaceAll(string(raw), "\r\n", "\n")

	total := 0
	done := map[string]bool{}
	for _, ref := range refs {
		target := ref.Target()
		base, ok := copies[target]
		if !ok || done[target] {
			continue
		}
		done[target] = true
		var n int
		content, n = RewriteContent(content, target, base)
		total += n
	}
	if total == 0 {
		return 0, nil
	}

	if crlf {
		content = strings.ReplaceAll(content, "\n", "\r\n")
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if err := fsutil.AtomicWrite(path, []byte(content), info.Mode().Perm()); err != nil {
		return 0, err
	}
	return total, nil
}

// Localized reports whether a reference already points at a file in the
// session assets area, as left behind by a previous rewrite.
func Localized(sessionPath string, ref types.Reference) bool {
	target := ref.Target()
	if ref.Kind != types.RefImage || !strings.HasPrefix(target, LocalPrefix) {
		return false
	}
	return fsutil.IsFile(filepath.Join(sessionPath, "assets", strings.TrimPrefix(target, LocalPrefix)))
}
