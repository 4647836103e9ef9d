package workflow

// Workflow is an ordered sequence of steps. Registered workflows are immutable.
type Workflow struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Steps       []Step `json:"steps"`
}

// Clone returns a deep copy.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}
	return &Workflow{
		ID:          w.ID,
		Name:        w.Name,
		Description: w.Description,
		Steps:       cloneSteps(w.Steps),
	}
}

// Visit is called for every step reachable from a workflow. parentID is the
// enclosing condition step's id, or "" at the top level.
type Visit func(step Step, parentID string) error

// Walk visits every step depth-first in declaration order, including nested
// condition branches. Parallel branches are reported through ParallelStep.
func (w *Workflow) Walk(fn Visit) error {
	return walkSteps(w.Steps, "", fn)
}

func walkSteps(steps []Step, parentID string, fn Visit) error {
	for _, s := range steps {
		if err := fn(s, parentID); err != nil {
			return err
		}
		if c, ok := s.(*ConditionStep); ok && c != nil {
			if err := walkSteps(c.TrueSteps, c.ID, fn); err != nil {
				return err
			}
			if err := walkSteps(c.FalseSteps, c.ID, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// LeafCount is the number of agent steps and parallel branches in the workflow.
func (w *Workflow) LeafCount() int {
	n := 0
	_ = w.Walk(func(s Step, _ string) error {
		switch s := s.(type) {
		case *AgentStep:
			n++
		case *ParallelStep:
			if s != nil {
				n += len(s.Branches)
			}
		}
		return nil
	})
	return n
}
