package registry

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/flowcore/types"
	"github.com/BaSui01/flowcore/workflow"
	"github.com/BaSui01/flowcore/workflow/expr"
)

// Kind selects what Get looks up.
type Kind string

const (
	KindAgent    Kind = "agent"
	KindWorkflow Kind = "workflow"
)

// Registry stores agents and workflows by id.
type Registry struct {
	mu        sync.RWMutex
	agents    map[string]types.Agent
	workflows map[string]*workflow.Workflow
	evaluator *expr.Evaluator
	logger    *zap.Logger
}

// New creates an empty registry. The evaluator compiles condition
// expressions at registration; nil gets a private one.
func New(evaluator *expr.Evaluator, logger *zap.Logger) *Registry {
	if evaluator == nil {
		evaluator = expr.NewEvaluator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		agents:    make(map[string]types.Agent),
		workflows: make(map[string]*workflow.Workflow),
		evaluator: evaluator,
		logger:    logger.With(zap.String("component", "registry")),
	}
}

// RegisterAgent stores an agent. It fails with DUPLICATE_ID or INVALID_CONFIG.
func (r *Registry) RegisterAgent(agent types.Agent) error {
	if err := agent.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[agent.ID]; exists {
		return types.Errorf(types.ErrDuplicateID, "agent %q already registered", agent.ID)
	}
	r.agents[agent.ID] = agent.Clone()

	r.logger.Debug("agent registered",
		zap.String("agent_id", agent.ID),
		zap.Strings("models", agent.Model.Models()),
	)
	return nil
}

// RegisterWorkflow validates and stores a workflow. It fails with
// DUPLICATE_ID, UNKNOWN_AGENT or INVALID_CONFIG.
func (r *Registry) RegisterWorkflow(wf *workflow.Workflow) error {
	if wf == nil {
		return types.NewError(types.ErrInvalidConfig, "workflow is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if wf.ID == "" {
		return types.NewError(types.ErrInvalidConfig, "workflow id is required")
	}
	if _, exists := r.workflows[wf.ID]; exists {
		return types.Errorf(types.ErrDuplicateID, "workflow %q already registered", wf.ID)
	}

	v := &validator{wf: wf, agents: r.agents, evaluator: r.evaluator}
	if err := v.validate(); err != nil {
		return err
	}
	for _, ref := range v.danglingRefs() {
		r.logger.Warn("condition references a step that is not in the workflow",
			zap.String("workflow_id", wf.ID),
			zap.String("ref", ref),
		)
	}

	r.workflows[wf.ID] = wf.Clone()
	r.logger.Debug("workflow registered",
		zap.String("workflow_id", wf.ID),
		zap.Int("steps", len(wf.Steps)),
		zap.Int("leaves", wf.LeafCount()),
	)
	return nil
}

// Get returns a copy of the stored agent (types.Agent) or workflow
// (*workflow.Workflow), or NOT_FOUND.
func (r *Registry) Get(kind Kind, id string) (any, error) {
	switch kind {
	case KindAgent:
		return r.Agent(id)
	case KindWorkflow:
		return r.Workflow(id)
	default:
		return nil, types.Errorf(types.ErrNotFound, "unknown kind %q", kind)
	}
}

// Agent returns a copy of a registered agent.
func (r *Registry) Agent(id string) (types.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[id]
	if !ok {
		return types.Agent{}, types.Errorf(types.ErrNotFound, "agent %q not found", id)
	}
	return a.Clone(), nil
}

// Workflow returns a copy of a registered workflow.
func (r *Registry) Workflow(id string) (*workflow.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wf, ok := r.workflows[id]
	if !ok {
		return nil, types.Errorf(types.ErrNotFound, "workflow %q not found", id)
	}
	return wf.Clone(), nil
}

// AgentIDs returns the registered agent ids, sorted.
func (r *Registry) AgentIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.agents)
}

// WorkflowIDs returns the registered workflow ids, sorted.
func (r *Registry) WorkflowIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.workflows)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ workflow.Catalog = (*Registry)(nil)
