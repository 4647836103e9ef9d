package workflow

import (
	"sync"
	"time"

	"github.com/BaSui01/flowcore/types"
)

// HistoryEntry records the outcome of one leaf step execution.
type HistoryEntry struct {
	StepID string `json:"step_id"`
	// ParentID is the enclosing condition or parallel step, if any.
	ParentID   string          `json:"parent_id,omitempty"`
	Kind       StepKind        `json:"kind"`
	StartTime  time.Time       `json:"start_time"`
	DurationMs int64           `json:"duration_ms"`
	Success    bool            `json:"success"`
	Error      string          `json:"error,omitempty"`
	ErrorCode  types.ErrorCode `json:"error_code,omitempty"`
	ModelUsed  string          `json:"model_used,omitempty"`
	TokensUsed int             `json:"tokens_used,omitempty"`
	// Attempts is the number of model calls made for this entry.
	Attempts int `json:"attempts"`
}

// executionHistory collects entries; parallel branches append concurrently.
type executionHistory struct {
	mu      sync.Mutex
	entries []HistoryEntry
}

func newExecutionHistory() *executionHistory {
	return &executionHistory{entries: make([]HistoryEntry, 0, 8)}
}

func (h *executionHistory) record(entry HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, entry)
}

func (h *executionHistory) snapshot() []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

func failedEntry(entry HistoryEntry, err error) HistoryEntry {
	entry.Success = false
	if err != nil {
		entry.Error = err.Error()
		entry.ErrorCode = types.GetErrorCode(err)
	}
	return entry
}

func durationMs(d time.Duration) int64 {
	if d < 0 {
		return 0
	}
	return d.Milliseconds()
}
