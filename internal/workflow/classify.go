// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package workflow

import (
	"strings"

	"github.com/pdiddy/docweaver/pkg/types"
)

var classifiers = []struct {
	kind     types.ErrorType
	keywords []string
}{
	{types.ErrorSyntax, []string{"unclosed", "code block", "fence", "syntax"}},
	{types.ErrorEncoding, []string{"utf-8", "utf8", "encoding", "decode"}},
	{types.ErrorAsset, []string{"image", "asset", "not found"}},
	{types.ErrorStructural, []string{"heading", "hierarchy", "structure", "outline"}},
}

// Classify maps an error message to an error type by keyword. Checks run
// in order syntax, encoding, asset, structural.
func Classify(message string) types.ErrorType {
	m := strings.ToLower(message)
	for _, c := range classifiers {
		for _, k := range c.keywords {
			if strings.Contains(m, k) {
				return c.kind
			}
		}
	}
	return types.ErrorUnknown
}

// Outcome describes what the error handler does for an error type.
func Outcome(kind types.ErrorType) string {
	switch kind {
	case types.ErrorSyntax:
		return "Syntax error - chapter will be regenerated from the last checkpoint"
	case types.ErrorEncoding:
		return "Encoding error - input will be re-read as UTF-8"
	case types.ErrorAsset:
		return "Asset error - missing reference will be replaced with a placeholder"
	case types.ErrorStructural:
		return "Structural error - heading hierarchy will be regenerated"
	default:
		return "Unknown error - no fix applied"
	}
}
