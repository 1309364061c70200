// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package lint runs the external markdown validator and normalizes its
// findings into ValidationIssue records. The workflow depends only on the
// Validator interface; MarkdownLint is the markdownlint-cli implementation.
package lint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/pdiddy/docweaver/pkg/types"
)

// SyntheticRule is the rule name on issues produced when the validator
// itself fails rather than reporting on the document.
const SyntheticRule = "markdownlint"

const defaultTimeout = 30 * time.Second

var (
	// ErrToolMissing means the validator binary is not on PATH.
	ErrToolMissing = errors.New("markdownlint CLI not installed")

	// ErrTimeout means the validator did not finish within its time budget.
	ErrTimeout = errors.New("validation timeout")

	// ErrMalformedOutput means the validator failed without emitting a
	// parseable issue list.
	ErrMalformedOutput = errors.New("failed to parse markdownlint JSON output")
)

// Validator checks one markdown file and returns its issues. An empty slice
// with a nil error means the file passed.
type Validator interface {
	Validate(ctx context.Context, path string) ([]types.ValidationIssue, error)
}

// RawIssue is one entry of markdownlint's --json output.
type RawIssue struct {
	LineNumber      int      `json:"lineNumber"`
	RuleNames       []string `json:"ruleNames"`
	RuleDescription string   `json:"ruleDescription"`
	ErrorDetail     string   `json:"errorDetail"`
}

// NormalizeIssue converts a raw markdownlint issue. Missing fields become
// empty strings or zero.
func NormalizeIssue(raw RawIssue) types.ValidationIssue {
	rule := ""
	if len(raw.RuleNames) > 0 {
		rule = raw.RuleNames[0]
	}
	return types.ValidationIssue{
		LineNumber:      raw.LineNumber,
		Rule:            rule,
		RuleDescription: raw.RuleDescription,
		Message:         fmt.Sprintf("%s (line %d)", raw.RuleDescription, raw.LineNumber),
		ErrorDetail:     raw.ErrorDetail,
	}
}

// SyntheticIssue turns a validator failure into a single issue so that a
// broken validator fails the document instead of passing it.
func SyntheticIssue(err error) types.ValidationIssue {
	issue := types.ValidationIssue{Rule: SyntheticRule, ErrorDetail: err.Error()}
	switch {
	case errors.Is(err, ErrToolMissing):
		issue.RuleDescription = "markdownlint CLI not installed"
		issue.Message = "markdownlint CLI not installed or not found on PATH"
	case errors.Is(err, ErrTimeout):
		issue.RuleDescription = "Validation timeout"
		issue.Message = "Validation timeout: markdownlint did not finish in time"
	case errors.Is(err, ErrMalformedOutput):
		issue.RuleDescription = "Failed to parse markdownlint JSON output"
		issue.Message = "Failed to parse markdownlint JSON output"
	default:
		issue.RuleDescription = "Validation failed"
		issue.Message = err.Error()
	}
	return issue
}

// executor abstracts command execution for testing.
type executor interface {
	LookPath(file string) (string, error)

	// Run executes the command and returns its output and exit code. A
	// non-zero exit is not an error; failure to start or a cancelled
	// context is.
	Run(ctx context.Context, name string, args []string) (stdout, stderr []byte, exitCode int, err error)
}

// osExecutor is the production executor backed by os/exec.
type osExecutor struct{}

func (o *osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (o *osExecutor) Run(ctx context.Context, name string, args []string) ([]byte, []byte, int, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if ctx.Err() != nil {
		return nil, nil, -1, ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.Bytes(), stderr.Bytes(), exitErr.ExitCode(), nil
	}
	if err != nil {
		return nil, nil, -1, err
	}
	return stdout.Bytes(), stderr.Bytes(), 0, nil
}

// MarkdownLint validates files with the markdownlint CLI.
type MarkdownLint struct {
	command string
	args    []string
	timeout time.Duration
	exec    executor
}

var defaultExec = &osExecutor{}

// NewMarkdownLint returns a validator for cfg. Zero fields take the
// markdownlint defaults.
func NewMarkdownLint(cfg types.LintConfig) *MarkdownLint {
	return newMarkdownLint(cfg, defaultExec)
}

func newMarkdownLint(cfg types.LintConfig, exec executor) *MarkdownLint {
	m := &MarkdownLint{
		command: cfg.Command,
		args:    append([]string(nil), cfg.Args...),
		timeout: cfg.Timeout,
		exec:    exec,
	}
	if m.command == "" {
		m.command = "markdownlint"
	}
	if len(m.args) == 0 {
		m.args = []string{"--json"}
	}
	if m.timeout <= 0 {
		m.timeout = defaultTimeout
	}
	return m
}

// Validate runs the linter on path. Failures of the linter itself are
// returned as ErrToolMissing, ErrTimeout, or ErrMalformedOutput.
func (m *MarkdownLint) Validate(ctx context.Context, path string) ([]types.ValidationIssue, error) {
	if _, err := m.exec.LookPath(m.command); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrToolMissing, m.command, err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	args := append(append([]string(nil), m.args...), path)
	stdout, stderr, code, err := m.exec.Run(ctx, m.command, args)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, m.timeout)
		}
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return nil, fmt.Errorf("%w: %v", ErrToolMissing, err)
		}
		return nil, fmt.Errorf("running %s: %w", m.command, err)
	}
	if code == 0 {
		return []types.ValidationIssue{}, nil
	}

	raw, ok := parse(stdout)
	if !ok || len(raw) == 0 {
		raw, ok = parse(stderr)
	}
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("%w: exit status %d", ErrMalformedOutput, code)
	}

	issues := make([]types.ValidationIssue, 0, len(raw))
	for _, r := range raw {
		issues = append(issues, NormalizeIssue(r))
	}
	return issues, nil
}

func parse(out []byte) ([]RawIssue, bool) {
	trimmed := strings.TrimSpace(string(out))
	if trimmed == "" {
		return nil, false
	}
	var raw []RawIssue
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, false
	}
	return raw, true
}

// Static is a Validator that returns fixed results, for dry runs and tests.
type Static struct {
	Issues []types.ValidationIssue
	Err    error
}

// Validate returns the configured issues and error.
func (s Static) Validate(ctx context.Context, path string) ([]types.ValidationIssue, error) {
	return s.Issues, s.Err
}
