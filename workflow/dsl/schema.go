package dsl

import "time"

// CurrentVersion 当前支持的 DSL 版本
const CurrentVersion = "1"

// DefaultMaxTokens 未设置 max_tokens 时使用的 Token 上限
const DefaultMaxTokens = 1024

// Step 类型
const (
	StepTypeAgent     = "agent"
	StepTypeCondition = "condition"
	StepTypeParallel  = "parallel"
)

// DefinitionsDSL DSL 顶层结构
type DefinitionsDSL struct {
	// Version DSL 版本
	Version string `yaml:"version" json:"version"`

	// Variables 全局变量定义，用于 system_prompt 插值
	Variables map[string]VariableDef `yaml:"variables,omitempty" json:"variables,omitempty"`

	// Agents Agent 定义（key 为 Agent ID）
	Agents map[string]AgentDef `yaml:"agents,omitempty" json:"agents,omitempty"`

	// Workflows 工作流定义，按声明顺序注册
	Workflows []WorkflowDef `yaml:"workflows,omitempty" json:"workflows,omitempty"`
}

// VariableDef 变量定义
type VariableDef struct {
	Default     string `yaml:"default,omitempty" json:"default,omitempty"`         // 默认值
	Description string `yaml:"description,omitempty" json:"description,omitempty"` // 描述
	Required    bool   `yaml:"required,omitempty" json:"required,omitempty"`       // 是否必须由调用方提供
}

// AgentDef Agent 定义
type AgentDef struct {
	Name         string        `yaml:"name,omitempty" json:"name,omitempty"`
	Provider     string        `yaml:"provider,omitempty" json:"provider,omitempty"`
	Model        string        `yaml:"model" json:"model"`
	Fallbacks    []string      `yaml:"fallbacks,omitempty" json:"fallbacks,omitempty"`
	SystemPrompt string        `yaml:"system_prompt,omitempty" json:"system_prompt,omitempty"` // 支持 ${variable} 插值
	Temperature  float64       `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens    int           `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"` // 0 表示 DefaultMaxTokens
	Timeout      time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`       // "30s" 形式，0 表示引擎默认步骤超时
}

// WorkflowDef 工作流定义
type WorkflowDef struct {
	ID          string    `yaml:"id" json:"id"`
	Name        string    `yaml:"name,omitempty" json:"name,omitempty"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
	Steps       []StepDef `yaml:"steps" json:"steps"`
}

// StepDef 步骤定义，type 缺省时按 agent 处理
type StepDef struct {
	ID   string `yaml:"id" json:"id"`
	Type string `yaml:"type,omitempty" json:"type,omitempty"` // agent, condition, parallel

	// agent
	Agent   string        `yaml:"agent,omitempty" json:"agent,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Retries int           `yaml:"retries,omitempty" json:"retries,omitempty"`

	// condition
	Condition string    `yaml:"condition,omitempty" json:"condition,omitempty"`
	OnTrue    []StepDef `yaml:"on_true,omitempty" json:"on_true,omitempty"`
	OnFalse   []StepDef `yaml:"on_false,omitempty" json:"on_false,omitempty"`

	// parallel
	Branches []BranchDef `yaml:"branches,omitempty" json:"branches,omitempty"`
}

// BranchDef 并行分支定义
type BranchDef struct {
	ID    string `yaml:"id" json:"id"`
	Agent string `yaml:"agent" json:"agent"`
}

// kind 返回步骤类型，缺省为 agent
func (s *StepDef) kind() string {
	if s.Type == "" {
		return StepTypeAgent
	}
	return s.Type
}
