package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/oss-labs/datalab/core"
)

// FlowMessage is one entry of the agent flow: every message exchanged with
// the completion API during a run, including the injected reminders.
type FlowMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RunState is the durable snapshot of an in-progress analysis run,
// checkpointed after every loop step so a live client can observe progress
// mid-run.
type RunState struct {
	SessionID      string              `json:"session_id"`
	ParentID       string              `json:"parent_id"`
	AgentID        string              `json:"agent_id"`
	Timestamp      time.Time           `json:"timestamp"`
	ToolCall       core.ToolInvocation `json:"tool_call"`
	AgentFlow      []FlowMessage       `json:"agent_flow"`
	NotebookPath   string              `json:"notebook_path"`
	Status         string              `json:"status"`
	CellsExecuted  int                 `json:"cells_executed"`
	StepsProcessed int                 `json:"steps_processed,omitempty"`
	Conclusion     string              `json:"conclusion,omitempty"`
	LastUpdated    time.Time           `json:"last_updated"`
}

// Checkpoint overwrites the run state file atomically (write to temp, then
// rename) so a partially written checkpoint is never observable.
func (rs *RunState) Checkpoint(path string) error {
	rs.LastUpdated = time.Now().UTC()

	raw, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return fmt.Errorf("runstate: encode: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("runstate: write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("runstate: rename: %w", err)
	}
	return nil
}

// RunObserver receives a copy of the run state after every checkpoint.
// Wired to the broadcast hub by the composition layer; nil means no
// observer.
type RunObserver func(state RunState)
