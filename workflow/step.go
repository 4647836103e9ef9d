package workflow

import (
	"time"
)

// StepKind identifies the variant of a Step.
type StepKind string

const (
	StepKindAgent     StepKind = "agent"
	StepKindCondition StepKind = "condition"
	StepKindParallel  StepKind = "parallel"
	// StepKindBranch marks history entries of parallel branches.
	StepKindBranch StepKind = "branch"
)

// Step is one unit of a workflow. The set of implementations is closed:
// *AgentStep, *ConditionStep and *ParallelStep.
type Step interface {
	StepID() string
	Kind() StepKind
	clone() Step
}

// AgentStep invokes one agent.
type AgentStep struct {
	ID      string        `json:"id"`
	AgentID string        `json:"agent_id"`
	Timeout time.Duration `json:"timeout,omitempty"`
	// Retries is the number of extra attempts on the agent's primary model.
	Retries int `json:"retries,omitempty"`
}

// ConditionStep evaluates an expression and runs one of two nested sequences.
type ConditionStep struct {
	ID         string `json:"id"`
	Condition  string `json:"condition"`
	TrueSteps  []Step `json:"true_steps,omitempty"`
	FalseSteps []Step `json:"false_steps,omitempty"`
}

// Branch is one concurrent arm of a ParallelStep.
type Branch struct {
	ID      string `json:"id"`
	AgentID string `json:"agent_id"`
}

// ParallelStep fans the same input out to every branch.
type ParallelStep struct {
	ID       string   `json:"id"`
	Branches []Branch `json:"branches"`
}

func (s *AgentStep) StepID() string     { return s.ID }
func (s *ConditionStep) StepID() string { return s.ID }
func (s *ParallelStep) StepID() string  { return s.ID }

func (s *AgentStep) Kind() StepKind     { return StepKindAgent }
func (s *ConditionStep) Kind() StepKind { return StepKindCondition }
func (s *ParallelStep) Kind() StepKind  { return StepKindParallel }

func (s *AgentStep) clone() Step {
	c := *s
	return &c
}

func (s *ConditionStep) clone() Step {
	return &ConditionStep{
		ID:         s.ID,
		Condition:  s.Condition,
		TrueSteps:  cloneSteps(s.TrueSteps),
		FalseSteps: cloneSteps(s.FalseSteps),
	}
}

func (s *ParallelStep) clone() Step {
	c := &ParallelStep{ID: s.ID}
	if s.Branches != nil {
		c.Branches = append([]Branch(nil), s.Branches...)
	}
	return c
}

func cloneSteps(steps []Step) []Step {
	if steps == nil {
		return nil
	}
	out := make([]Step, len(steps))
	for i, s := range steps {
		if s == nil {
			continue
		}
		out[i] = s.clone()
	}
	return out
}
