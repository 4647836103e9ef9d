package dsl

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/flowcore/types"
	"github.com/BaSui01/flowcore/workflow"
)

// Definitions 解析结果
type Definitions struct {
	// Agents 按 ID 排序
	Agents []types.Agent
	// Workflows 按文件中的声明顺序
	Workflows []*workflow.Workflow
}

// Registrar 接收解析出的定义，Orchestrator 与 Registry 都满足该接口
type Registrar interface {
	RegisterAgent(agent types.Agent) error
	RegisterWorkflow(wf *workflow.Workflow) error
}

// Parser DSL 解析器
type Parser struct {
	// vars 调用方提供的变量值，覆盖默认值
	vars map[string]string
}

// NewParser 创建 DSL 解析器
func NewParser() *Parser {
	return &Parser{vars: make(map[string]string)}
}

// WithVariable 设置变量值
func (p *Parser) WithVariable(name, value string) *Parser {
	p.vars[name] = value
	return p
}

// ParseFile 从文件解析 DSL
func (p *Parser) ParseFile(filename string) (*Definitions, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read DSL file: %w", err)
	}
	return p.Parse(data)
}

// Parse 从 YAML 字节解析 DSL；未知字段视为错误
func (p *Parser) Parse(data []byte) (*Definitions, error) {
	var dsl DefinitionsDSL
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&dsl); err != nil {
		return nil, types.NewError(types.ErrInvalidConfig, "parse YAML").WithCause(err)
	}

	// 1. 验证 DSL
	if err := p.validate(&dsl); err != nil {
		return nil, err
	}

	// 2. 解析变量，构建插值上下文
	vars, err := p.resolveVariables(dsl.Variables)
	if err != nil {
		return nil, err
	}

	// 3. 构建定义
	defs := &Definitions{}
	ids := make([]string, 0, len(dsl.Agents))
	for id := range dsl.Agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		defs.Agents = append(defs.Agents, p.buildAgent(id, dsl.Agents[id], vars))
	}
	for i := range dsl.Workflows {
		defs.Workflows = append(defs.Workflows, p.buildWorkflow(&dsl.Workflows[i]))
	}
	return defs, nil
}

// validate 验证 DSL
func (p *Parser) validate(dsl *DefinitionsDSL) error {
	errs := NewValidator().Validate(dsl)
	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		sort.Strings(msgs)
		return types.Errorf(types.ErrInvalidConfig, "validation errors: %s", strings.Join(msgs, "; ")).
			WithCause(errors.Join(errs...))
	}
	return nil
}

// resolveVariables 合并默认值与调用方提供的值
func (p *Parser) resolveVariables(defs map[string]VariableDef) (map[string]string, error) {
	vars := make(map[string]string, len(defs))
	var missing []string
	for name, def := range defs {
		if v, ok := p.vars[name]; ok {
			vars[name] = v
			continue
		}
		if def.Required && def.Default == "" {
			missing = append(missing, name)
			continue
		}
		vars[name] = def.Default
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, types.Errorf(types.ErrInvalidConfig, "required variables not set: %s", strings.Join(missing, ", "))
	}
	return vars, nil
}

// interpolate 变量插值（替换 ${var_name}）
func interpolate(template string, vars map[string]string) string {
	result := template
	for name, value := range vars {
		result = strings.ReplaceAll(result, "${"+name+"}", value)
	}
	return result
}

func (p *Parser) buildAgent(id string, def AgentDef, vars map[string]string) types.Agent {
	name := def.Name
	if name == "" {
		name = id
	}
	maxTokens := def.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}
	var fallbacks []string
	if len(def.Fallbacks) > 0 {
		fallbacks = append(fallbacks, def.Fallbacks...)
	}
	return types.Agent{
		ID:   id,
		Name: name,
		Model: types.ModelSpec{
			Provider:       def.Provider,
			PrimaryModel:   def.Model,
			FallbackModels: fallbacks,
			Temperature:    def.Temperature,
			MaxTokens:      maxTokens,
			Timeout:        def.Timeout,
		},
		SystemPrompt: interpolate(def.SystemPrompt, vars),
	}
}

func (p *Parser) buildWorkflow(def *WorkflowDef) *workflow.Workflow {
	return &workflow.Workflow{
		ID:          def.ID,
		Name:        def.Name,
		Description: def.Description,
		Steps:       p.buildSteps(def.Steps),
	}
}

func (p *Parser) buildSteps(defs []StepDef) []workflow.Step {
	if len(defs) == 0 {
		return nil
	}
	steps := make([]workflow.Step, 0, len(defs))
	for i := range defs {
		steps = append(steps, p.buildStep(&defs[i]))
	}
	return steps
}

// buildStep 类型已由 Validator 检查
func (p *Parser) buildStep(def *StepDef) workflow.Step {
	switch def.kind() {
	case StepTypeCondition:
		return &workflow.ConditionStep{
			ID:         def.ID,
			Condition:  def.Condition,
			TrueSteps:  p.buildSteps(def.OnTrue),
			FalseSteps: p.buildSteps(def.OnFalse),
		}
	case StepTypeParallel:
		branches := make([]workflow.Branch, 0, len(def.Branches))
		for _, b := range def.Branches {
			branches = append(branches, workflow.Branch{ID: b.ID, AgentID: b.Agent})
		}
		return &workflow.ParallelStep{ID: def.ID, Branches: branches}
	default:
		return &workflow.AgentStep{
			ID:      def.ID,
			AgentID: def.Agent,
			Timeout: def.Timeout,
			Retries: def.Retries,
		}
	}
}

// =============================================================================
// 便捷函数
// =============================================================================

// Parse 使用默认变量解析 DSL
func Parse(data []byte) (*Definitions, error) {
	return NewParser().Parse(data)
}

// ParseFile 使用默认变量解析 DSL 文件
func ParseFile(filename string) (*Definitions, error) {
	return NewParser().ParseFile(filename)
}

// Register 先注册全部 Agent，再按顺序注册工作流，遇到第一个错误即停止
func (d *Definitions) Register(r Registrar) error {
	for _, a := range d.Agents {
		if err := r.RegisterAgent(a); err != nil {
			return fmt.Errorf("register agent %s: %w", a.ID, err)
		}
	}
	for _, wf := range d.Workflows {
		if err := r.RegisterWorkflow(wf); err != nil {
			return fmt.Errorf("register workflow %s: %w", wf.ID, err)
		}
	}
	return nil
}

// Load 解析 data 并注册到 r
func Load(r Registrar, data []byte) (*Definitions, error) {
	defs, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := defs.Register(r); err != nil {
		return defs, err
	}
	return defs, nil
}
