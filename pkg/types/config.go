package types

import "time"

// SessionConfig holds settings for the session lifecycle manager.
// Session roots live at DocsBasePath/SessionsDir/<id>; archives at
// DocsBasePath/ArchiveDir/<id>.
type SessionConfig struct {
	// DocsBasePath is the base directory under which sessions and archives live.
	DocsBasePath string `json:"docs_base_path" yaml:"docs_base_path"`

	// SessionsDir is the directory name (under DocsBasePath) holding live sessions.
	SessionsDir string `json:"sessions_dir" yaml:"sessions_dir"`

	// ArchiveDir is the directory name (under DocsBasePath) holding archived sessions.
	ArchiveDir string `json:"archive_dir" yaml:"archive_dir"`
}

// InputConfig holds settings for input file discovery and validation.
type InputConfig struct {
	// AllowedExtensions lists the file extensions accepted as input (e.g. ".md").
	AllowedExtensions []string `json:"allowed_extensions" yaml:"allowed_extensions"`

	// MaxFileSize is the largest accepted input file in bytes.
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	// Include lists glob patterns a file name must match (empty means all).
	Include []string `json:"include,omitempty" yaml:"include,omitempty"`

	// Exclude lists glob patterns that reject a file name.
	Exclude []string `json:"exclude,omitempty" yaml:"exclude,omitempty"`
}

// LintConfig holds settings for the external markdown validator.
type LintConfig struct {
	// Command is the linter binary (default "markdownlint").
	Command string `json:"command" yaml:"command"`

	// Args are passed before the file path (default ["--json"]).
	Args []string `json:"args" yaml:"args"`

	// Timeout bounds a single linter invocation (default 30s).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// LedgerConfig holds settings for the SQLite run ledger.
type LedgerConfig struct {
	// Enabled controls whether runs and session events are recorded.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Path is the SQLite database file. Empty means DocsBasePath/docweaver.db.
	Path string `json:"path" yaml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level" yaml:"level"`
}

// Config groups all docweaver settings.
type Config struct {
	Session SessionConfig `json:"session" yaml:"session"`
	Input   InputConfig   `json:"input" yaml:"input"`
	Lint    LintConfig    `json:"lint" yaml:"lint"`
	Ledger  LedgerConfig  `json:"ledger" yaml:"ledger"`
	Log     LogConfig     `json:"log" yaml:"log"`
}

// DefaultConfig returns the configuration used when no file or environment
// overrides are present.
func DefaultConfig() Config {
	return Config{
		Session: SessionConfig{
			DocsBasePath: "docs",
			SessionsDir:  "sessions",
			ArchiveDir:   "archive",
		},
		Input: InputConfig{
			AllowedExtensions: []string{".md", ".markdown", ".txt"},
			MaxFileSize:       10 * 1024 * 1024,
		},
		Lint: LintConfig{
			Command: "markdownlint",
			Args:    []string{"--json"},
			Timeout: 30 * time.Second,
		},
		Ledger: LedgerConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
