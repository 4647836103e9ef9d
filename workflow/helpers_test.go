package workflow

import (
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/BaSui01/flowcore/llm"
	"github.com/BaSui01/flowcore/llm/retry"
	"github.com/BaSui01/flowcore/types"
)

// mapCatalog is an unvalidated Catalog for engine tests.
type mapCatalog struct {
	agents    map[string]types.Agent
	workflows map[string]*Workflow
}

func newMapCatalog(agents ...types.Agent) *mapCatalog {
	c := &mapCatalog{agents: map[string]types.Agent{}, workflows: map[string]*Workflow{}}
	for _, a := range agents {
		c.agents[a.ID] = a
	}
	return c
}

func (c *mapCatalog) add(wf *Workflow) *mapCatalog {
	c.workflows[wf.ID] = wf
	return c
}

func (c *mapCatalog) Agent(id string) (types.Agent, error) {
	a, ok := c.agents[id]
	if !ok {
		return types.Agent{}, types.Errorf(types.ErrNotFound, "agent %q not found", id)
	}
	return a, nil
}

func (c *mapCatalog) Workflow(id string) (*Workflow, error) {
	wf, ok := c.workflows[id]
	if !ok {
		return nil, types.Errorf(types.ErrNotFound, "workflow %q not found", id)
	}
	return wf, nil
}

func newTestEngine(t *testing.T, inv llm.Invoker, catalog Catalog, opts ...EngineOption) *Engine {
	t.Helper()
	resolver := retry.NewFallbackResolver(inv, nil, zap.NewNop())
	return NewEngine(catalog, resolver, opts...)
}

// eventLog is a concurrency-safe EventEmitter sink.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) emit(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) ofType(t EventType) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, ev := range l.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func agentStep(id, agentID string) *AgentStep {
	return &AgentStep{ID: id, AgentID: agentID}
}

func historyIDs(entries []HistoryEntry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.StepID
	}
	return ids
}

func entryFor(t *testing.T, entries []HistoryEntry, stepID string) HistoryEntry {
	t.Helper()
	for _, e := range entries {
		if e.StepID == stepID {
			return e
		}
	}
	t.Fatalf("no history entry for %q", stepID)
	return HistoryEntry{}
}
