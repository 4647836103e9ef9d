package workflow

import (
	"time"

	"github.com/BaSui01/flowcore/types"
)

// ExecutionMetadata identifies one execution.
type ExecutionMetadata struct {
	ExecutionID string    `json:"execution_id"`
	WorkflowID  string    `json:"workflow_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
}

// ExecutionResult is produced once per Execute call.
type ExecutionResult struct {
	Variables map[string]any `json:"variables"`
	// VariableOrder lists Variables keys in commit order.
	VariableOrder   []string          `json:"variable_order"`
	History         []HistoryEntry    `json:"history"`
	TotalDurationMs int64             `json:"total_duration_ms"`
	Success         bool              `json:"success"`
	Error           string            `json:"error,omitempty"`
	ErrorCode       types.ErrorCode   `json:"error_code,omitempty"`
	Metadata        ExecutionMetadata `json:"metadata"`
}

// Output returns the most recently committed value, which on success is the
// last top-level step's output.
func (r *ExecutionResult) Output() any {
	if r == nil || len(r.VariableOrder) == 0 {
		return nil
	}
	return r.Variables[r.VariableOrder[len(r.VariableOrder)-1]]
}

// TokensUsed sums tokens across history.
func (r *ExecutionResult) TokensUsed() int {
	total := 0
	for _, h := range r.History {
		total += h.TokensUsed
	}
	return total
}
