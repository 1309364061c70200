// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package session manages per-request working directories. Each session is a
// UUID-named directory under DocsBasePath/SessionsDir holding exactly four
// subareas (inputs, assets, checkpoints, logs). A session is either fully
// present or absent: a failed create removes the partial tree, archiving is
// a single rename, and deletion removes the whole tree.
package session

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/google/uuid"

	"github.com/pdiddy/docweaver/internal/fsutil"
	"github.com/pdiddy/docweaver/internal/logging"
	"github.com/pdiddy/docweaver/pkg/types"
)

// Subarea names inside a session root.
const (
	InputsDir      = "inputs"
	AssetsDir      = "assets"
	CheckpointsDir = "checkpoints"
	LogsDir        = "logs"
)

// Subdirs lists the subareas created for every session, in creation order.
var Subdirs = []string{InputsDir, AssetsDir, CheckpointsDir, LogsDir}

var (
	// ErrInvalidSessionID is returned before any filesystem access when an
	// identifier is not a UUID.
	ErrInvalidSessionID = errors.New("invalid session id")

	// ErrArchiveExists is returned when an archive for the session id is
	// already present. The live session is left untouched.
	ErrArchiveExists = errors.New("archive already exists")
)

// Manager creates, locates, and cleans up session directories.
type Manager struct {
	cfg    types.SessionConfig
	logger *slog.Logger

	newID  func() string
	mkdir  func(path string, perm os.FileMode) error
	rename func(from, to string) error
}

// Option customizes a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager returns a manager rooted at the configured base path.
func NewManager(cfg types.SessionConfig, opts ...Option) *Manager {
	if cfg.SessionsDir == "" {
		cfg.SessionsDir = "sessions"
	}
	if cfg.ArchiveDir == "" {
		cfg.ArchiveDir = "archive"
	}
	m := &Manager{
		cfg:    cfg,
		logger: logging.Nop(),
		newID:  uuid.NewString,
		mkdir:  os.Mkdir,
		rename: os.Rename,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SessionsRoot is the directory holding live sessions.
func (m *Manager) SessionsRoot() string {
	return filepath.Join(m.cfg.DocsBasePath, m.cfg.SessionsDir)
}

// ArchiveRoot is the directory holding archived sessions.
func (m *Manager) ArchiveRoot() string {
	return filepath.Join(m.cfg.DocsBasePath, m.cfg.ArchiveDir)
}

// ValidateID reports whether id is a canonical UUID string.
func ValidateID(id string) error {
	if len(id) != 36 {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}
	return nil
}

// Create makes a new session directory with its four subareas and returns
// the session id. If any directory cannot be created the partial tree is
// removed before the error is returned.
func (m *Manager) Create() (string, error) {
	id := m.newID()
	root := filepath.Join(m.SessionsRoot(), id)

	if created, err := m.build(root); err != nil {
		if created {
			if rmErr := os.RemoveAll(root); rmErr != nil {
				m.logger.Error("session partial tree removal failed", "session_id", id, "error", rmErr)
			}
		}
		m.logger.Error("session create failed", "session_id", id, "error", err)
		return "", fmt.Errorf("creating session %s: %w", id, err)
	}

	m.logger.Info("session created", "session_id", id)
	return id, nil
}

// build reports whether it created root, so a failed Create never removes a
// directory it does not own.
func (m *Manager) build(root string) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(root), 0o755); err != nil {
		return false, err
	}
	if err := m.mkdir(root, 0o755); err != nil {
		return false, err
	}
	for _, sub := range Subdirs {
		if err := m.mkdir(filepath.Join(root, sub), 0o755); err != nil {
			return true, err
		}
	}
	return true, nil
}

// Path returns the session root for id. It does not check existence.
func (m *Manager) Path(id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	return filepath.Join(m.SessionsRoot(), id), nil
}

// Subdir returns the path of one of the session's subareas.
func (m *Manager) Subdir(id, name string) (string, error) {
	root, err := m.Path(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, name), nil
}

// Exists reports whether the session directory is currently present.
func (m *Manager) Exists(id string) (bool, error) {
	root, err := m.Path(id)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(root)
	return err == nil && info.IsDir(), nil
}

// List returns the ids of live sessions, sorted.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.SessionsRoot())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("reading sessions directory: %w", err)
	}
	ids := []string{}
	for _, e := range entries {
		if !e.IsDir() || ValidateID(e.Name()) != nil {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

// Cleanup archives (archive=true) or deletes the session. A missing session
// is a no-op, so Cleanup may be called repeatedly. An existing archive for
// the same id yields ErrArchiveExists. Other I/O failures are logged and
// returned.
func (m *Manager) Cleanup(id string, archive bool) error {
	root, err := m.Path(id)
	if err != nil {
		return err
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		m.logger.Debug("session cleanup no-op", "session_id", id)
		return nil
	}

	if archive {
		return m.archive(id, root)
	}

	if err := os.RemoveAll(root); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			m.logger.Debug("session already deleted", "session_id", id)
			return nil
		}
		m.logger.Error("session delete failed", "session_id", id, "error", err)
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	m.logger.Info("session deleted", "session_id", id)
	return nil
}

func (m *Manager) archive(id, root string) error {
	archiveRoot := m.ArchiveRoot()
	if err := os.MkdirAll(archiveRoot, 0o755); err != nil {
		m.logger.Error("session archive failed", "session_id", id, "error", err)
		return fmt.Errorf("creating archive directory: %w", err)
	}
	dest := filepath.Join(archiveRoot, id)
	if _, err := os.Lstat(dest); err == nil {
		return fmt.Errorf("%w for session %s; cannot overwrite", ErrArchiveExists, id)
	}

	err := m.rename(root, dest)
	if err != nil && errors.Is(err, syscall.EXDEV) {
		err = m.moveAcrossDevices(id, root, dest)
	}
	if err != nil {
		m.logger.Error("session archive failed", "session_id", id, "error", err)
		return fmt.Errorf("archiving session %s: %w", id, err)
	}
	m.logger.Info("session archived", "session_id", id, "path", dest)
	return nil
}

// moveAcrossDevices copies the tree into a hidden staging directory on the
// archive volume, renames it into place, then removes the source. An
// interrupted copy leaves only the staging directory, never a partial
// archive at dest.
func (m *Manager) moveAcrossDevices(id, root, dest string) error {
	staging, err := os.MkdirTemp(filepath.Dir(dest), ".staging-"+id+"-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	staged := filepath.Join(staging, id)
	if err := fsutil.CopyDir(root, staged); err != nil {
		return fmt.Errorf("staging archive copy: %w", err)
	}
	if err := os.Rename(staged, dest); err != nil {
		return fmt.Errorf("publishing staged archive: %w", err)
	}
	if err := os.RemoveAll(root); err != nil {
		return fmt.Errorf("removing source after archive copy: %w", err)
	}
	return nil
}
