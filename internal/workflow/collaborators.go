// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package workflow

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/pdiddy/docweaver/pkg/types"
)

// ChapterRequest is what the generator sees for one chapter.
type ChapterRequest struct {
	// Chapter is the 1-based chapter number.
	Chapter int

	// SourceFile is the input file name inside the session inputs area.
	SourceFile string

	// Source is the input text after reference decisions were applied.
	Source string

	// Outline holds the section titles generated so far.
	Outline []string

	// Current is the chapter text that failed validation. Set only for Fix.
	Current string

	// Issues are the validation findings to address. Set only for Fix.
	Issues []types.ValidationIssue
}

// Generator produces chapter markdown. Production deployments put a language
// model behind this interface.
type Generator interface {
	Generate(ctx context.Context, req ChapterRequest) (string, error)
	Fix(ctx context.Context, req ChapterRequest) (string, error)
}

// PassthroughGenerator emits each input unchanged apart from line-ending
// normalization, and fixes chapters with mechanical whitespace and fence
// repairs.
type PassthroughGenerator struct{}

// Generate returns the source with LF line endings and no surrounding blank lines.
func (PassthroughGenerator) Generate(ctx context.Context, req ChapterRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return normalizeBody(req.Source), nil
}

var fenceLine = regexp.MustCompile("^\\s*(```|~~~)")

// Fix strips trailing whitespace, collapses runs of blank lines, and closes
// an unterminated code fence.
func (PassthroughGenerator) Fix(ctx context.Context, req ChapterRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text := req.Current
	if strings.TrimSpace(text) == "" {
		text = req.Source
	}

	var out []string
	blank := false
	open := ""
	for _, line := range strings.Split(normalizeBody(text), "\n") {
		line = strings.TrimRight(line, " \t")
		if m := fenceLine.FindStringSubmatch(line); m != nil {
			switch {
			case open == "":
				open = m[1]
			case open == m[1]:
				open = ""
			}
		}
		if line == "" && open == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	if open != "" {
		out = append(out, open)
	}
	return strings.TrimRight(strings.Join(out, "\n"), "\n"), nil
}

func normalizeBody(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.Trim(s, "\n")
}

// Reference decisions recorded in WorkflowState.UserDecisions.
const (
	DecisionSkip = "skip"
	DecisionKeep = "keep"
)

// Question asks how to handle one unresolved reference.
type Question struct {
	// Key is the reference key ("<file>:<line>: <original>").
	Key string

	// Text is the prompt shown to the person answering.
	Text string
}

// Resolver answers reference questions.
type Resolver interface {
	Resolve(ctx context.Context, q Question) (string, error)
}

// SkipResolver answers every question with DecisionSkip.
type SkipResolver struct{}

// Resolve returns DecisionSkip.
func (SkipResolver) Resolve(ctx context.Context, q Question) (string, error) {
	return DecisionSkip, nil
}

// PromptResolver asks on Out and reads the answer from In. An empty answer
// or end of input means skip.
type PromptResolver struct {
	In  io.Reader
	Out io.Writer

	scanner *bufio.Scanner
}

// Resolve prints the question and reads one line.
func (p *PromptResolver) Resolve(ctx context.Context, q Question) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.scanner == nil {
		p.scanner = bufio.NewScanner(p.In)
	}
	fmt.Fprintf(p.Out, "%s\n[skip/keep] (default skip): ", q.Text)
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", fmt.Errorf("reading answer: %w", err)
		}
		return DecisionSkip, nil
	}
	return normalizeDecision(p.scanner.Text()), nil
}

func normalizeDecision(answer string) string {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "k", DecisionKeep:
		return DecisionKeep
	default:
		return DecisionSkip
	}
}

// Event is one journal entry for a completed step.
type Event struct {
	SessionID    string       `json:"session_id"`
	Step         types.Step   `json:"step"`
	Status       types.Status `json:"status"`
	CheckpointID string       `json:"checkpoint_id,omitempty"`
	Message      string       `json:"message,omitempty"`
	Err          string       `json:"error,omitempty"`
	At           time.Time    `json:"at"`
}

// Journal records step events outside the session directory.
type Journal interface {
	Record(ctx context.Context, e Event) error
}

type nopJournal struct{}

func (nopJournal) Record(context.Context, Event) error { return nil }
