// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package discovery lists candidate input files and validates the files a
// user asks for before any workflow step runs. A single base directory is
// the only allowed input root.
package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/gobwas/glob"

	"github.com/pdiddy/docweaver/internal/fsutil"
	"github.com/pdiddy/docweaver/pkg/types"
)

// Code identifies why a requested file was rejected.
type Code string

const (
	CodeMissing             Code = "MISSING"
	CodePathEscape          Code = "PATH_ESCAPE"
	CodeExtensionNotAllowed Code = "EXTENSION_NOT_ALLOWED"
	CodeFileTooLarge        Code = "FILE_TOO_LARGE"
	CodeInvalidUTF8         Code = "INVALID_UTF8"
	CodePathNotFile         Code = "PATH_NOT_FILE"
)

// FileError describes one requested file that failed validation.
type FileError struct {
	Path    string `json:"path" yaml:"path"`
	Message string `json:"message" yaml:"message"`
	Code    Code   `json:"code" yaml:"code"`
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Path, e.Message, e.Code)
}

type matcher struct {
	include []glob.Glob
	exclude []glob.Glob
}

func compile(cfg types.InputConfig) (matcher, error) {
	var m matcher
	for _, p := range cfg.Include {
		g, err := glob.Compile(p)
		if err != nil {
			return m, fmt.Errorf("invalid include pattern %s: %w", p, err)
		}
		m.include = append(m.include, g)
	}
	for _, p := range cfg.Exclude {
		g, err := glob.Compile(p)
		if err != nil {
			return m, fmt.Errorf("invalid exclude pattern %s: %w", p, err)
		}
		m.exclude = append(m.exclude, g)
	}
	return m, nil
}

func (m matcher) match(name string) bool {
	for _, g := range m.exclude {
		if g.Match(name) {
			return false
		}
	}
	if len(m.include) == 0 {
		return true
	}
	for _, g := range m.include {
		if g.Match(name) {
			return true
		}
	}
	return false
}

func allowedExtension(name string, cfg types.InputConfig) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, a := range cfg.AllowedExtensions {
		if strings.ToLower(a) == ext {
			return true
		}
	}
	return false
}

// ListAvailable returns the absolute paths of regular files directly inside
// baseDir that have an allowed extension and pass the include/exclude
// patterns, sorted. A baseDir that is not a directory yields an empty list.
func ListAvailable(baseDir string, cfg types.InputConfig) ([]string, error) {
	m, err := compile(cfg)
	if err != nil {
		return nil, err
	}
	base, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolving base directory: %w", err)
	}
	info, err := os.Stat(base)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", base, err)
	}
	if !info.IsDir() {
		return []string{}, nil
	}
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", base, err)
	}

	files := []string{}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if !allowedExtension(e.Name(), cfg) || !m.match(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(base, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// ValidateRequested checks each requested path against baseDir and cfg. It
// returns the resolved paths that passed, in request order, and one FileError
// per rejected path.
func ValidateRequested(requested []string, baseDir string, cfg types.InputConfig) ([]string, []FileError) {
	valid := []string{}
	var failures []FileError

	base, err := filepath.Abs(baseDir)
	if err == nil {
		if resolved, evalErr := filepath.EvalSymlinks(base); evalErr == nil {
			base = resolved
		}
	}

	for _, req := range requested {
		path, ferr := validateOne(req, base, cfg)
		if ferr != nil {
			failures = append(failures, *ferr)
			continue
		}
		valid = append(valid, path)
	}
	return valid, failures
}

func validateOne(req, base string, cfg types.InputConfig) (string, *FileError) {
	fail := func(code Code, format string, args ...any) (string, *FileError) {
		return "", &FileError{Path: req, Message: fmt.Sprintf(format, args...), Code: code}
	}

	candidate := req
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(base, candidate)
	}
	candidate = filepath.Clean(candidate)
	if !within(base, candidate) {
		return fail(CodePathEscape, "path is outside the input directory")
	}

	info, err := os.Stat(candidate)
	if err != nil {
		return fail(CodeMissing, "file not found")
	}
	resolved, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		return fail(CodeMissing, "file not found")
	}
	if !within(base, resolved) {
		return fail(CodePathEscape, "path resolves outside the input directory")
	}
	if !info.Mode().IsRegular() {
		return fail(CodePathNotFile, "path is not a regular file")
	}
	if !allowedExtension(resolved, cfg) {
		return fail(CodeExtensionNotAllowed, "extension %q is not allowed", filepath.Ext(resolved))
	}
	if cfg.MaxFileSize > 0 && info.Size() > cfg.MaxFileSize {
		return fail(CodeFileTooLarge, "file is %d bytes; limit is %d", info.Size(), cfg.MaxFileSize)
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return fail(CodeMissing, "file could not be read: %v", err)
	}
	if !utf8.Valid(data) {
		return fail(CodeInvalidUTF8, "file is not valid UTF-8")
	}
	return resolved, nil
}

func within(base, path string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// CopyInputs copies validated files into the session inputs area and returns
// their basenames in order. Two inputs with the same basename are rejected
// before anything is copied.
func CopyInputs(paths []string, inputsDir string) ([]string, error) {
	names := make([]string, 0, len(paths))
	seen := map[string]string{}
	for _, p := range paths {
		name := filepath.Base(p)
		if prev, ok := seen[name]; ok {
			return nil, fmt.Errorf("inputs %s and %s share the name %s", prev, p, name)
		}
		seen[name] = p
		names = append(names, name)
	}
	for i, p := range paths {
		if err := fsutil.CopyFile(p, filepath.Join(inputsDir, names[i])); err != nil {
			return nil, fmt.Errorf("copying input %s: %w", p, err)
		}
	}
	return names, nil
}
