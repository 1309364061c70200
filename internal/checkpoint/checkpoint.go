// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package checkpoint snapshots the in-progress document of a session and
// restores it after a failure. Checkpoints are immutable files named
// <timestamp>_chapter_<N>.md inside the session's checkpoints area and are
// addressed by basename only.
package checkpoint

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/docweaver/internal/fsutil"
	"github.com/pdiddy/docweaver/internal/logging"
)

const (
	// WorkingFile is the in-progress document at the session root.
	WorkingFile = "temp_output.md"

	// Dir is the checkpoints area inside a session root.
	Dir = "checkpoints"

	timestampLayout = "20060102_150405.000000"
)

// ErrInvalidCheckpointID reports an identifier that is empty, contains a path
// separator or "..", or resolves outside the checkpoints area.
var ErrInvalidCheckpointID = errors.New("invalid checkpoint id")

var namePattern = regexp.MustCompile(`^(\d{8}_\d{6}(?:\.\d+)?)_chapter_(\d+)\.md$`)

// Info describes a checkpoint file.
type Info struct {
	ID        string    `json:"id" yaml:"id"`
	Chapter   int       `json:"chapter" yaml:"chapter"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Size      int64     `json:"size" yaml:"size"`
}

// Name returns the checkpoint basename for chapter at time t.
func Name(t time.Time, chapter int) string {
	return fmt.Sprintf("%s_chapter_%d.md", t.UTC().Format(timestampLayout), chapter)
}

// Create copies the session's working file into the checkpoints area and
// returns the new basename. It returns "" with a nil error when there is no
// working file to snapshot.
func Create(sessionPath string, chapter int, now time.Time) (string, error) {
	src := filepath.Join(sessionPath, WorkingFile)
	if !fsutil.IsFile(src) {
		return "", nil
	}
	name := Name(now, chapter)
	dest := filepath.Join(sessionPath, Dir, name)
	if _, err := os.Lstat(dest); err == nil {
		return "", fmt.Errorf("checkpoint %s already exists", name)
	}
	if err := fsutil.CopyFile(src, dest); err != nil {
		return "", fmt.Errorf("creating checkpoint %s: %w", name, err)
	}
	return name, nil
}

// ValidateID checks that id names a file directly inside the session's
// checkpoints area and returns its resolved path.
func ValidateID(sessionPath, id string) (string, error) {
	cid := strings.TrimSpace(id)
	if cid == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidCheckpointID)
	}
	if strings.ContainsAny(cid, `/\`) {
		return "", fmt.Errorf("%w: %q contains a path separator", ErrInvalidCheckpointID, cid)
	}
	if strings.Contains(cid, "..") {
		return "", fmt.Errorf("%w: %q contains '..'", ErrInvalidCheckpointID, cid)
	}

	dir, err := filepath.Abs(filepath.Join(sessionPath, Dir))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCheckpointID, err)
	}
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}

	candidate := filepath.Join(dir, cid)
	if resolved, err := filepath.EvalSymlinks(candidate); err == nil {
		candidate = resolved
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %v", ErrInvalidCheckpointID, err)
	}

	rel, err := filepath.Rel(dir, candidate)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %q escapes the checkpoints directory", ErrInvalidCheckpointID, cid)
	}
	return candidate, nil
}

// Restore copies checkpoint id over the session's working file. It returns
// false, after logging, for an invalid id, a missing checkpoint, or any I/O
// failure; nothing is written unless both the id and the file check out.
func Restore(sessionPath, id string, logger *slog.Logger) bool {
	logger = logging.OrNop(logger)

	src, err := ValidateID(sessionPath, id)
	if err != nil {
		logger.Warn("checkpoint restore rejected", "checkpoint_id", id, "error", err)
		return false
	}
	if !fsutil.IsFile(src) {
		logger.Warn("checkpoint file not found", "checkpoint_id", id)
		return false
	}

	dest := filepath.Join(sessionPath, WorkingFile)
	if err := fsutil.CopyFile(src, dest); err != nil {
		logger.Error("checkpoint restore failed", "checkpoint_id", id, "error", err)
		return false
	}
	logger.Info("checkpoint restored", "checkpoint_id", id, "target", WorkingFile)
	return true
}

// List returns the session's checkpoints ordered oldest first.
func List(sessionPath string) ([]Info, error) {
	entries, err := os.ReadDir(filepath.Join(sessionPath, Dir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Info{}, nil
		}
		return nil, fmt.Errorf("reading checkpoints: %w", err)
	}
	results := []Info{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := namePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		info := Info{ID: e.Name()}
		info.Chapter, _ = strconv.Atoi(m[2])
		if ts, err := time.Parse(timestampLayout, m[1]); err == nil {
			info.CreatedAt = ts
		} else if ts, err := time.Parse("20060102_150405", m[1]); err == nil {
			info.CreatedAt = ts
		}
		if fi, err := e.Info(); err == nil {
			info.Size = fi.Size()
		}
		results = append(results, info)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].ID < results[j].ID
	})
	return results, nil
}

// Latest returns the newest checkpoint id, or "" when there is none.
func Latest(sessionPath string) (string, error) {
	list, err := List(sessionPath)
	if err != nil || len(list) == 0 {
		return "", err
	}
	return list[len(list)-1].ID, nil
}
