// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Step names a node in the generation graph. Routing functions return one of
// these values.
type Step string

const (
	StepAgent      Step = "agent"
	StepTools      Step = "tools"
	StepValidate   Step = "validate"
	StepHumanInput Step = "human_input"
	StepCheckpoint Step = "checkpoint"
	StepRollback   Step = "rollback"
	StepError      Step = "error_handler"
	StepComplete   Step = "complete"
)

// Status is the lifecycle stage of a generation run.
type Status string

const (
	StatusInitializing    Status = "initializing"
	StatusScanningAssets  Status = "scanning_assets"
	StatusProcessing      Status = "processing"
	StatusValidating      Status = "validating"
	StatusConverting      Status = "converting"
	StatusQualityChecking Status = "quality_checking"
	StatusErrorHandling   Status = "error_handling"
	StatusComplete        Status = "complete"
	StatusFailed          Status = "failed"
)

// Validation is the tri-state outcome of the last validation pass. The zero
// value means no validation has run yet.
type Validation string

const (
	ValidationUnknown Validation = ""
	ValidationPassed  Validation = "passed"
	ValidationFailed  Validation = "failed"
)

// ErrorType classifies a processing failure for the error handler.
type ErrorType string

const (
	ErrorNone       ErrorType = ""
	ErrorSyntax     ErrorType = "syntax"
	ErrorEncoding   ErrorType = "encoding"
	ErrorAsset      ErrorType = "asset"
	ErrorStructural ErrorType = "structural"
	ErrorUnknown    ErrorType = "unknown"
)

// ValidationIssue is one normalized finding from the markdown validator.
// Fields default to empty/zero when the validator omits them.
type ValidationIssue struct {
	LineNumber      int    `json:"line_number" yaml:"line_number"`
	Rule            string `json:"rule" yaml:"rule"`
	RuleDescription string `json:"rule_description" yaml:"rule_description"`
	Message         string `json:"message" yaml:"message"`
	ErrorDetail     string `json:"error_detail" yaml:"error_detail"`
}

// WorkflowState is the record threaded through every step of a generation
// run. Steps never modify it in place; they return a Patch which the runner
// applies with Apply.
type WorkflowState struct {
	// SessionID is the UUID of the owning session. Immutable once set.
	SessionID string `json:"session_id" yaml:"session_id"`

	// InputFiles are file names relative to the session inputs area.
	InputFiles []string `json:"input_files" yaml:"input_files"`

	// SourceDirs maps an input file name to the directory it was copied
	// from. Relative references in that file resolve against it. Inputs
	// without an entry resolve against the session inputs area.
	SourceDirs map[string]string `json:"source_dirs,omitempty" yaml:"source_dirs,omitempty"`

	CurrentFileIndex int `json:"current_file_index" yaml:"current_file_index"`
	CurrentChapter   int `json:"current_chapter" yaml:"current_chapter"`

	// DocumentOutline holds section titles accumulated so far.
	DocumentOutline []string `json:"document_outline" yaml:"document_outline"`

	// MissingReferences holds reference keys awaiting resolution. Append-only.
	MissingReferences []string `json:"missing_references" yaml:"missing_references"`

	// UserDecisions maps a reference key to its resolution choice.
	UserDecisions map[string]string `json:"user_decisions" yaml:"user_decisions"`

	// PendingQuestion is non-empty while a human decision is required.
	PendingQuestion string `json:"pending_question" yaml:"pending_question"`

	// LastCheckpointID is the basename of the most recent checkpoint, or empty.
	LastCheckpointID string `json:"last_checkpoint_id" yaml:"last_checkpoint_id"`

	Validation       Validation        `json:"validation" yaml:"validation"`
	ValidationIssues []ValidationIssue `json:"validation_issues" yaml:"validation_issues"`

	// FixAttempts counts automatic-fix cycles for the current chapter.
	FixAttempts int `json:"fix_attempts" yaml:"fix_attempts"`

	// RetryCount counts error-triggered rollback cycles for the run.
	RetryCount int `json:"retry_count" yaml:"retry_count"`

	LastError      string    `json:"last_error" yaml:"last_error"`
	ErrorType      ErrorType `json:"error_type" yaml:"error_type"`
	HandlerOutcome string    `json:"handler_outcome,omitempty" yaml:"handler_outcome,omitempty"`

	GenerationComplete bool   `json:"generation_complete" yaml:"generation_complete"`
	Status             Status `json:"status" yaml:"status"`

	// OutputPath is set once the final document has been published.
	OutputPath string `json:"output_path,omitempty" yaml:"output_path,omitempty"`

	// Messages is an append-only log of progress notes.
	Messages []string `json:"messages" yaml:"messages"`
}

// NewWorkflowState returns the initial state for a run over inputFiles. Every
// field holds its explicit default.
func NewWorkflowState(sessionID string, inputFiles []string) WorkflowState {
	files := make([]string, len(inputFiles))
	copy(files, inputFiles)
	return WorkflowState{
		SessionID:         sessionID,
		InputFiles:        files,
		DocumentOutline:   []string{},
		MissingReferences: []string{},
		UserDecisions:     map[string]string{},
		ValidationIssues:  []ValidationIssue{},
		Status:            StatusScanningAssets,
		Messages:          []string{},
	}
}

// CurrentFile returns the input file under the cursor, or "" when every file
// has been processed.
func (s WorkflowState) CurrentFile() string {
	if s.CurrentFileIndex < 0 || s.CurrentFileIndex >= len(s.InputFiles) {
		return ""
	}
	return s.InputFiles[s.CurrentFileIndex]
}

// Patch is the change a step makes to the state. A nil pointer field leaves
// the corresponding state field untouched. MissingReferences and Messages are
// appended, never replaced.
type Patch struct {
	CurrentFileIndex   *int
	CurrentChapter     *int
	DocumentOutline    *[]string
	UserDecisions      *map[string]string
	PendingQuestion    *string
	LastCheckpointID   *string
	Validation         *Validation
	ValidationIssues   *[]ValidationIssue
	FixAttempts        *int
	RetryCount         *int
	LastError          *string
	ErrorType          *ErrorType
	HandlerOutcome     *string
	GenerationComplete *bool
	Status             *Status
	OutputPath         *string

	MissingReferences []string
	Messages          []string
}

// Set returns a pointer to v, for building Patch values.
func Set[T any](v T) *T {
	return &v
}

// Apply returns a copy of s with p merged in. s is not modified.
func (s WorkflowState) Apply(p Patch) WorkflowState {
	out := s.clone()
	if p.CurrentFileIndex != nil {
		out.CurrentFileIndex = *p.CurrentFileIndex
	}
	if p.CurrentChapter != nil {
		out.CurrentChapter = *p.CurrentChapter
	}
	if p.DocumentOutline != nil {
		out.DocumentOutline = cloneStrings(*p.DocumentOutline)
	}
	if p.UserDecisions != nil {
		out.UserDecisions = cloneStringMap(*p.UserDecisions)
	}
	if p.PendingQuestion != nil {
		out.PendingQuestion = *p.PendingQuestion
	}
	if p.LastCheckpointID != nil {
		out.LastCheckpointID = *p.LastCheckpointID
	}
	if p.Validation != nil {
		out.Validation = *p.Validation
	}
	if p.ValidationIssues != nil {
		out.ValidationIssues = cloneIssues(*p.ValidationIssues)
	}
	if p.FixAttempts != nil {
		out.FixAttempts = *p.FixAttempts
	}
	if p.RetryCount != nil {
		out.RetryCount = *p.RetryCount
	}
	if p.LastError != nil {
		out.LastError = *p.LastError
	}
	if p.ErrorType != nil {
		out.ErrorType = *p.ErrorType
	}
	if p.HandlerOutcome != nil {
		out.HandlerOutcome = *p.HandlerOutcome
	}
	if p.GenerationComplete != nil {
		out.GenerationComplete = *p.GenerationComplete
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.OutputPath != nil {
		out.OutputPath = *p.OutputPath
	}
	out.MissingReferences = append(out.MissingReferences, p.MissingReferences...)
	out.Messages = append(out.Messages, p.Messages...)
	return out
}

// Merge combines two patches into one. Fields set in q override p; the
// append-only slices are concatenated in order.
func (p Patch) Merge(q Patch) Patch {
	out := p
	if q.CurrentFileIndex != nil {
		out.CurrentFileIndex = q.CurrentFileIndex
	}
	if q.CurrentChapter != nil {
		out.CurrentChapter = q.CurrentChapter
	}
	if q.DocumentOutline != nil {
		out.DocumentOutline = q.DocumentOutline
	}
	if q.UserDecisions != nil {
		out.UserDecisions = q.UserDecisions
	}
	if q.PendingQuestion != nil {
		out.PendingQuestion = q.PendingQuestion
	}
	if q.LastCheckpointID != nil {
		out.LastCheckpointID = q.LastCheckpointID
	}
	if q.Validation != nil {
		out.Validation = q.Validation
	}
	if q.ValidationIssues != nil {
		out.ValidationIssues = q.ValidationIssues
	}
	if q.FixAttempts != nil {
		out.FixAttempts = q.FixAttempts
	}
	if q.RetryCount != nil {
		out.RetryCount = q.RetryCount
	}
	if q.LastError != nil {
		out.LastError = q.LastError
	}
	if q.ErrorType != nil {
		out.ErrorType = q.ErrorType
	}
	if q.HandlerOutcome != nil {
		out.HandlerOutcome = q.HandlerOutcome
	}
	if q.GenerationComplete != nil {
		out.GenerationComplete = q.GenerationComplete
	}
	if q.Status != nil {
		out.Status = q.Status
	}
	if q.OutputPath != nil {
		out.OutputPath = q.OutputPath
	}
	out.MissingReferences = append(cloneStrings(p.MissingReferences), q.MissingReferences...)
	out.Messages = append(cloneStrings(p.Messages), q.Messages...)
	return out
}

func (s WorkflowState) clone() WorkflowState {
	out := s
	out.InputFiles = cloneStrings(s.InputFiles)
	out.DocumentOutline = cloneStrings(s.DocumentOutline)
	out.MissingReferences = cloneStrings(s.MissingReferences)
	out.UserDecisions = cloneStringMap(s.UserDecisions)
	if s.SourceDirs != nil {
		out.SourceDirs = cloneStringMap(s.SourceDirs)
	}
	out.ValidationIssues = cloneIssues(s.ValidationIssues)
	out.Messages = cloneStrings(s.Messages)
	return out
}

func cloneStrings(values []string) []string {
	out := make([]string, len(values))
	copy(out, values)
	return out
}

func cloneStringMap(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

func cloneIssues(values []ValidationIssue) []ValidationIssue {
	out := make([]ValidationIssue, len(values))
	copy(out, values)
	return out
}
