// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package workflow

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/docweaver/internal/fsutil"
	"github.com/pdiddy/docweaver/pkg/types"
)

// StateFile is the state snapshot name inside a session's logs area.
const StateFile = "state.yaml"

// SaveState writes s to path as YAML, replacing any previous snapshot atomically.
func SaveState(path string, s types.WorkflowState) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}
	if err := fsutil.AtomicWrite(path, data, 0o644); err != nil {
		return fmt.Errorf("writing state %s: %w", path, err)
	}
	return nil
}

// LoadState reads a snapshot written by SaveState. Fields absent from the
// file keep the defaults of NewWorkflowState.
func LoadState(path string) (types.WorkflowState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.WorkflowState{}, fmt.Errorf("reading state %s: %w", path, err)
	}
	s := types.NewWorkflowState("", nil)
	if err := yaml.Unmarshal(data, &s); err != nil {
		return types.WorkflowState{}, fmt.Errorf("parsing state %s: %w", path, err)
	}
	if s.UserDecisions == nil {
		s.UserDecisions = map[string]string{}
	}
	return s, nil
}
