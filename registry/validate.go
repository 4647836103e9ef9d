package registry

import (
	"github.com/BaSui01/flowcore/types"
	"github.com/BaSui01/flowcore/workflow"
	"github.com/BaSui01/flowcore/workflow/expr"
)

// validator checks one workflow against the registered agents. It runs under
// the registry's write lock.
type validator struct {
	wf        *workflow.Workflow
	agents    map[string]types.Agent
	evaluator *expr.Evaluator

	ids  map[string]bool
	refs []string
}

func (v *validator) validate() error {
	if len(v.wf.Steps) == 0 {
		return types.Errorf(types.ErrInvalidConfig, "workflow %q has no steps", v.wf.ID)
	}
	v.ids = make(map[string]bool)
	return v.wf.Walk(func(step workflow.Step, _ string) error {
		if isNilStep(step) {
			return types.Errorf(types.ErrInvalidConfig, "workflow %q contains a nil step", v.wf.ID)
		}
		if err := v.claim(step.StepID()); err != nil {
			return err
		}
		switch s := step.(type) {
		case *workflow.AgentStep:
			return v.agentStep(s)
		case *workflow.ConditionStep:
			return v.conditionStep(s)
		case *workflow.ParallelStep:
			return v.parallelStep(s)
		default:
			return types.Errorf(types.ErrInvalidConfig, "step %q has unsupported type %T", step.StepID(), step)
		}
	})
}

// isNilStep also catches typed nil pointers such as (*workflow.AgentStep)(nil).
func isNilStep(step workflow.Step) bool {
	switch s := step.(type) {
	case nil:
		return true
	case *workflow.AgentStep:
		return s == nil
	case *workflow.ConditionStep:
		return s == nil
	case *workflow.ParallelStep:
		return s == nil
	}
	return false
}

// claim reserves a step id; ids are unique across the whole workflow.
func (v *validator) claim(id string) error {
	if id == "" {
		return types.Errorf(types.ErrInvalidConfig, "workflow %q has a step without id", v.wf.ID)
	}
	if v.ids[id] {
		return types.Errorf(types.ErrInvalidConfig, "workflow %q: duplicate step id %q", v.wf.ID, id)
	}
	v.ids[id] = true
	return nil
}

func (v *validator) agentRef(stepID, agentID string) error {
	if _, ok := v.agents[agentID]; !ok {
		return types.Errorf(types.ErrUnknownAgent, "step %q references unknown agent %q", stepID, agentID)
	}
	return nil
}

func (v *validator) agentStep(s *workflow.AgentStep) error {
	if s.Retries < 0 {
		return types.Errorf(types.ErrInvalidConfig, "step %q: retries must be >= 0", s.ID)
	}
	if s.Timeout < 0 {
		return types.Errorf(types.ErrInvalidConfig, "step %q: timeout must be >= 0", s.ID)
	}
	return v.agentRef(s.ID, s.AgentID)
}

func (v *validator) conditionStep(s *workflow.ConditionStep) error {
	compiled, err := v.evaluator.Compile(s.Condition)
	if err != nil {
		return types.Errorf(types.ErrInvalidConfig, "step %q: invalid condition", s.ID).WithCause(err)
	}
	v.refs = append(v.refs, compiled.StepRefs()...)
	return nil
}

func (v *validator) parallelStep(s *workflow.ParallelStep) error {
	if len(s.Branches) == 0 {
		return types.Errorf(types.ErrInvalidConfig, "parallel step %q has no branches", s.ID)
	}
	for _, b := range s.Branches {
		if err := v.claim(b.ID); err != nil {
			return err
		}
		if err := v.agentRef(b.ID, b.AgentID); err != nil {
			return err
		}
	}
	return nil
}

// danglingRefs lists condition references to ids the workflow never defines.
// They are legal but always fail with MISSING_VARIABLE when evaluated.
func (v *validator) danglingRefs() []string {
	var out []string
	for _, ref := range v.refs {
		if !v.ids[ref] {
			out = append(out, ref)
		}
	}
	return out
}
