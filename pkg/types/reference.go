// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"path/filepath"
	"strings"
)

// RefKind identifies what a markdown reference points at.
type RefKind string

const (
	RefImage RefKind = "image"
	RefPath  RefKind = "path"
	RefURL   RefKind = "url"
)

// RefStatus records whether a reference target was located at scan time.
type RefStatus string

const (
	RefFound    RefStatus = "found"
	RefMissing  RefStatus = "missing"
	RefExternal RefStatus = "external"
)

// Reference is one image, relative-path link, or URL detected in a markdown
// file. References are created by a scan and never mutated afterwards.
type Reference struct {
	// Kind is image, path, or url.
	Kind RefKind `json:"kind" yaml:"kind"`

	// Original is the verbatim matched text. It is the deduplication key.
	Original string `json:"original" yaml:"original"`

	// ResolvedPath is the absolute target path; empty for URLs.
	ResolvedPath string `json:"resolved_path,omitempty" yaml:"resolved_path,omitempty"`

	// Status is found, missing, or external.
	Status RefStatus `json:"status" yaml:"status"`

	// SourceFile is the file that contains the reference, as it was passed to the scanner.
	SourceFile string `json:"source_file" yaml:"source_file"`

	// LineNumber is 1-based.
	LineNumber int `json:"line_number" yaml:"line_number"`
}

// Target returns the link target: the text inside the parentheses for image
// and path references, the URL itself for url references.
func (r Reference) Target() string {
	if r.Kind == RefURL {
		return r.Original
	}
	i := strings.Index(r.Original, "](")
	if i < 0 {
		return r.Original
	}
	return strings.TrimSuffix(r.Original[i+2:], ")")
}

// Key returns a stable descriptor used to track a reference awaiting a
// decision: "<source-base>:<line>: <original>".
func (r Reference) Key() string {
	return fmt.Sprintf("%s:%d: %s", filepath.Base(r.SourceFile), r.LineNumber, r.Original)
}

// Placeholder renders the text substituted for a reference that was skipped.
func (r Reference) Placeholder() string {
	switch r.Kind {
	case RefImage:
		return fmt.Sprintf("[Image: %s]", r.Target())
	case RefPath:
		return fmt.Sprintf("[External Path: %s]", r.Target())
	case RefURL:
		return fmt.Sprintf("[External URL: %s]", r.Original)
	default:
		return fmt.Sprintf("[Unknown: %s]", r.Original)
	}
}
