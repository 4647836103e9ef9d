package dsl

import (
	"fmt"
	"strings"

	"github.com/BaSui01/flowcore/workflow/expr"
)

// Validator DSL 验证器
type Validator struct{}

// NewValidator 创建验证器
func NewValidator() *Validator {
	return &Validator{}
}

// Validate 验证 DSL 定义，返回全部问题
func (v *Validator) Validate(dsl *DefinitionsDSL) []error {
	var errs []error

	// 基础字段验证
	if dsl.Version == "" {
		errs = append(errs, fmt.Errorf("version is required"))
	} else if dsl.Version != CurrentVersion {
		errs = append(errs, fmt.Errorf("unsupported version %q", dsl.Version))
	}
	if len(dsl.Agents) == 0 && len(dsl.Workflows) == 0 {
		errs = append(errs, fmt.Errorf("definitions must contain at least one agent or workflow"))
	}

	for id, agent := range dsl.Agents {
		errs = append(errs, v.validateAgent(id, &agent, dsl)...)
	}

	workflowIDs := make(map[string]bool)
	for i := range dsl.Workflows {
		wf := &dsl.Workflows[i]
		if wf.ID == "" {
			errs = append(errs, fmt.Errorf("workflow #%d: id is required", i))
			continue
		}
		if workflowIDs[wf.ID] {
			errs = append(errs, fmt.Errorf("duplicate workflow ID: %s", wf.ID))
		}
		workflowIDs[wf.ID] = true

		if len(wf.Steps) == 0 {
			errs = append(errs, fmt.Errorf("workflow %s: must have at least one step", wf.ID))
		}
		stepIDs := make(map[string]bool)
		for j := range wf.Steps {
			errs = append(errs, v.validateStep(wf.ID, &wf.Steps[j], dsl, stepIDs)...)
		}
	}

	return errs
}

// validateAgent 验证单个 Agent 与其插值引用
func (v *Validator) validateAgent(id string, agent *AgentDef, dsl *DefinitionsDSL) []error {
	var errs []error
	if agent.Model == "" {
		errs = append(errs, fmt.Errorf("agent %s: model is required", id))
	}
	for i, fb := range agent.Fallbacks {
		if strings.TrimSpace(fb) == "" {
			errs = append(errs, fmt.Errorf("agent %s: fallback #%d is empty", id, i))
		}
	}
	if agent.Temperature < 0 || agent.Temperature > 1 {
		errs = append(errs, fmt.Errorf("agent %s: temperature %.2f out of range [0,1]", id, agent.Temperature))
	}
	if agent.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("agent %s: max_tokens must be positive, got %d", id, agent.MaxTokens))
	}
	if agent.Timeout < 0 {
		errs = append(errs, fmt.Errorf("agent %s: timeout must not be negative, got %s", id, agent.Timeout))
	}
	for _, ref := range extractVariableRefs(agent.SystemPrompt) {
		if _, ok := dsl.Variables[ref]; !ok {
			errs = append(errs, fmt.Errorf("agent %s: variable %q referenced in system_prompt not defined", id, ref))
		}
	}
	return errs
}

// validateStep 递归验证步骤；条件分支与并行分支共享同一 ID 空间
func (v *Validator) validateStep(wfID string, step *StepDef, dsl *DefinitionsDSL, ids map[string]bool) []error {
	var errs []error

	if step.ID == "" {
		return append(errs, fmt.Errorf("workflow %s: step ID is required", wfID))
	}
	if ids[step.ID] {
		errs = append(errs, fmt.Errorf("workflow %s: duplicate step ID: %s", wfID, step.ID))
	}
	ids[step.ID] = true

	switch step.kind() {
	case StepTypeAgent:
		if step.Agent == "" {
			errs = append(errs, fmt.Errorf("step %s: agent step requires agent", step.ID))
		} else if err := v.checkAgentRef(step.ID, step.Agent, dsl); err != nil {
			errs = append(errs, err)
		}
		if step.Retries < 0 {
			errs = append(errs, fmt.Errorf("step %s: retries must be >= 0", step.ID))
		}

	case StepTypeCondition:
		if step.Condition == "" {
			errs = append(errs, fmt.Errorf("step %s: condition step requires condition expression", step.ID))
		} else if _, err := expr.Parse(step.Condition); err != nil {
			errs = append(errs, fmt.Errorf("step %s: %w", step.ID, err))
		}
		for i := range step.OnTrue {
			errs = append(errs, v.validateStep(wfID, &step.OnTrue[i], dsl, ids)...)
		}
		for i := range step.OnFalse {
			errs = append(errs, v.validateStep(wfID, &step.OnFalse[i], dsl, ids)...)
		}

	case StepTypeParallel:
		if len(step.Branches) == 0 {
			errs = append(errs, fmt.Errorf("step %s: parallel step requires at least one branch", step.ID))
		}
		for _, b := range step.Branches {
			if b.ID == "" {
				errs = append(errs, fmt.Errorf("step %s: branch ID is required", step.ID))
				continue
			}
			if ids[b.ID] {
				errs = append(errs, fmt.Errorf("workflow %s: duplicate step ID: %s", wfID, b.ID))
			}
			ids[b.ID] = true
			if b.Agent == "" {
				errs = append(errs, fmt.Errorf("branch %s: agent is required", b.ID))
			} else if err := v.checkAgentRef(b.ID, b.Agent, dsl); err != nil {
				errs = append(errs, err)
			}
		}

	default:
		errs = append(errs, fmt.Errorf("step %s: invalid type %q", step.ID, step.Type))
	}

	return errs
}

// checkAgentRef 文件内定义了 agents 时才检查引用，否则交给 Registry 在注册时检查
func (v *Validator) checkAgentRef(stepID, agentID string, dsl *DefinitionsDSL) error {
	if len(dsl.Agents) == 0 {
		return nil
	}
	if _, ok := dsl.Agents[agentID]; !ok {
		return fmt.Errorf("step %s: agent %q not found", stepID, agentID)
	}
	return nil
}

// extractVariableRefs 提取 ${var} 引用
func extractVariableRefs(s string) []string {
	var refs []string
	for {
		start := strings.Index(s, "${")
		if start == -1 {
			break
		}
		end := strings.Index(s[start:], "}")
		if end == -1 {
			break
		}
		ref := s[start+2 : start+end]
		refs = append(refs, ref)
		s = s[start+end+1:]
	}
	return refs
}
