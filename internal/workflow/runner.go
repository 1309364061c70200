// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package workflow implements the generation graph: scan assets, generate a
// chapter, checkpoint it, validate it, then confirm, fix, or roll back. Each
// step reads the current WorkflowState and returns a Patch; the Runner
// applies patches, asks the routing package for the next step, and
// snapshots the state after every step.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/pdiddy/docweaver/internal/lint"
	"github.com/pdiddy/docweaver/internal/logging"
	"github.com/pdiddy/docweaver/internal/routing"
	"github.com/pdiddy/docweaver/pkg/types"
)

// Steps that exist only in the runner's graph.
const (
	StepScanAssets types.Step = "scan_assets"
	StepBeginFix   types.Step = "begin_fix"
)

// OutputFile is the published document inside the session root.
const OutputFile = "output.md"

const defaultStepLimit = 500

// ErrStepLimit is returned when a run takes more steps than allowed.
var ErrStepLimit = errors.New("step limit reached")

// Runner executes the generation graph for one session.
type Runner struct {
	sessionPath string

	logger    *slog.Logger
	out       io.Writer
	now       func() time.Time
	generator Generator
	resolver  Resolver
	validator lint.Validator
	journal   Journal
	stepLimit int

	publish func(src, dest string) error
}

// Option customizes a Runner.
type Option func(*Runner)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithProgress sets the writer that receives one line per progress message.
func WithProgress(w io.Writer) Option {
	return func(r *Runner) {
		if w != nil {
			r.out = w
		}
	}
}

// WithClock overrides the timestamp source (tests).
func WithClock(clock func() time.Time) Option {
	return func(r *Runner) {
		if clock != nil {
			r.now = clock
		}
	}
}

// WithGenerator sets the chapter generator.
func WithGenerator(g Generator) Option {
	return func(r *Runner) {
		if g != nil {
			r.generator = g
		}
	}
}

// WithResolver sets the reference question resolver.
func WithResolver(res Resolver) Option {
	return func(r *Runner) {
		if res != nil {
			r.resolver = res
		}
	}
}

// WithValidator sets the markdown validator.
func WithValidator(v lint.Validator) Option {
	return func(r *Runner) {
		if v != nil {
			r.validator = v
		}
	}
}

// WithJournal sets where step events are recorded.
func WithJournal(j Journal) Option {
	return func(r *Runner) {
		if j != nil {
			r.journal = j
		}
	}
}

// WithStepLimit bounds the number of steps a run may take.
func WithStepLimit(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.stepLimit = n
		}
	}
}

// NewRunner returns a runner for the session rooted at sessionPath.
func NewRunner(sessionPath string, opts ...Option) *Runner {
	r := &Runner{
		sessionPath: sessionPath,
		logger:      logging.Nop(),
		out:         io.Discard,
		now:         time.Now,
		generator:   PassthroughGenerator{},
		resolver:    SkipResolver{},
		validator:   lint.NewMarkdownLint(types.DefaultConfig().Lint),
		journal:     nopJournal{},
		stepLimit:   defaultStepLimit,
		publish:     publishDocument,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// StatePath is where the runner snapshots state after each step.
func (r *Runner) StatePath() string {
	return filepath.Join(r.sessionPath, "logs", StateFile)
}

// Run drives s through the graph until the complete step finishes. A state
// whose status is scanning_assets or initializing starts with the asset
// scan; any other non-terminal state resumes at the agent. Step failures are
// routed to the error handler; Run itself returns an error only when the
// context ends, the step limit is hit, or the error path itself fails.
func (r *Runner) Run(ctx context.Context, s types.WorkflowState) (types.WorkflowState, error) {
	switch s.Status {
	case types.StatusComplete, types.StatusFailed:
		return s, nil
	}
	step := types.StepAgent
	if s.Status == types.StatusScanningAssets || s.Status == types.StatusInitializing || s.Status == "" {
		step = StepScanAssets
	}

	for n := 0; ; n++ {
		if err := ctx.Err(); err != nil {
			r.snapshot(s)
			return s, err
		}
		if n >= r.stepLimit {
			r.snapshot(s)
			return s, fmt.Errorf("%w after %d steps", ErrStepLimit, n)
		}

		r.logger.Debug("step starting", "step", step, "session_id", s.SessionID)
		patch, err := r.execute(ctx, step, s)
		if err != nil {
			r.logger.Error("step failed", "step", step, "session_id", s.SessionID, "error", err)
			fatal := step == types.StepError || step == types.StepComplete
			p := types.Patch{
				LastError: types.Set(err.Error()),
				Messages:  []string{fmt.Sprintf("%s failed: %v", step, err)},
			}
			if fatal {
				p.Status = types.Set(types.StatusFailed)
			}
			s = s.Apply(p)
			r.progress(p)
			r.snapshot(s)
			r.record(ctx, step, s, p, err)
			if fatal {
				return s, err
			}
			step = types.StepError
			continue
		}

		s = s.Apply(patch)
		r.progress(patch)
		r.snapshot(s)
		r.record(ctx, step, s, patch, nil)

		if step == types.StepComplete {
			return s, nil
		}
		step = next(step, s)
	}
}

// next maps a finished step and the resulting state to the following step.
func next(step types.Step, s types.WorkflowState) types.Step {
	switch step {
	case StepScanAssets, types.StepHumanInput, types.StepRollback, StepBeginFix:
		return types.StepAgent
	case types.StepAgent:
		return types.StepTools
	case types.StepTools:
		return routing.RouteAfterTools(s)
	case types.StepValidate:
		if to := routing.RouteAfterValidation(s); to != types.StepAgent {
			return to
		}
		return StepBeginFix
	case types.StepCheckpoint:
		return routing.RouteAfterCheckpoint(s)
	case types.StepError:
		return routing.RouteAfterError(s)
	}
	return types.StepComplete
}

func (r *Runner) execute(ctx context.Context, step types.Step, s types.WorkflowState) (types.Patch, error) {
	switch step {
	case StepScanAssets:
		return r.ScanAssets(ctx, s)
	case types.StepAgent:
		return r.Agent(ctx, s)
	case types.StepTools:
		return r.Tools(ctx, s)
	case types.StepValidate:
		return r.Validate(ctx, s)
	case StepBeginFix:
		return BeginFix(s), nil
	case types.StepCheckpoint:
		return ConfirmCheckpoint(s), nil
	case types.StepHumanInput:
		return r.HumanInput(ctx, s)
	case types.StepError:
		return r.HandleError(s), nil
	case types.StepRollback:
		return r.Rollback(s), nil
	case types.StepComplete:
		return r.Complete(ctx, s)
	}
	return types.Patch{}, fmt.Errorf("unknown step %q", step)
}

func (r *Runner) progress(p types.Patch) {
	for _, m := range p.Messages {
		fmt.Fprintf(r.out, "  %s\n", m)
	}
}

func (r *Runner) snapshot(s types.WorkflowState) {
	if err := SaveState(r.StatePath(), s); err != nil {
		r.logger.Warn("state snapshot failed", "error", err)
	}
}

func (r *Runner) record(ctx context.Context, step types.Step, s types.WorkflowState, p types.Patch, stepErr error) {
	e := Event{
		SessionID:    s.SessionID,
		Step:         step,
		Status:       s.Status,
		CheckpointID: s.LastCheckpointID,
		At:           r.now(),
	}
	if n := len(p.Messages); n > 0 {
		e.Message = p.Messages[n-1]
	}
	if stepErr != nil {
		e.Err = stepErr.Error()
	}
	if err := r.journal.Record(ctx, e); err != nil {
		r.logger.Warn("journal record failed", "step", step, "error", err)
	}
}
