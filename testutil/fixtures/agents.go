// =============================================================================
// 📦 测试数据工厂 - Agent 测试数据
// =============================================================================
package fixtures

import (
	"time"

	"github.com/BaSui01/flowcore/types"
)

// DefaultAgent 返回带两个降级模型的 Agent
func DefaultAgent(id string) types.Agent {
	return types.Agent{
		ID:   id,
		Name: "agent " + id,
		Model: types.ModelSpec{
			Provider:       "anthropic",
			PrimaryModel:   id + "-primary",
			FallbackModels: []string{id + "-fallback-1", id + "-fallback-2"},
			Temperature:    0.2,
			MaxTokens:      512,
			Timeout:        time.Second,
		},
		SystemPrompt: "You are " + id + ".",
	}
}

// MinimalAgent 返回无降级模型的 Agent
func MinimalAgent(id string, timeout time.Duration) types.Agent {
	return types.Agent{
		ID:   id,
		Name: id,
		Model: types.ModelSpec{
			Provider:     "anthropic",
			PrimaryModel: id + "-model",
			Temperature:  0,
			MaxTokens:    128,
			Timeout:      timeout,
		},
	}
}
