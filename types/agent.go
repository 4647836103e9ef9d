package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ModelSpec binds an agent to its primary model and ordered fallbacks.
type ModelSpec struct {
	Provider       string   `json:"provider" yaml:"provider"`
	PrimaryModel   string   `json:"primary_model" yaml:"primary"`
	FallbackModels []string `json:"fallback_models,omitempty" yaml:"fallbacks,omitempty"`
	Temperature    float64  `json:"temperature" yaml:"temperature"`
	MaxTokens      int      `json:"max_tokens" yaml:"max_tokens"`
	// Timeout bounds each attempt; zero defers to the engine's default step timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// Models returns the primary model followed by the fallbacks.
func (m ModelSpec) Models() []string {
	models := make([]string, 0, 1+len(m.FallbackModels))
	models = append(models, m.PrimaryModel)
	return append(models, m.FallbackModels...)
}

// Agent is a named configuration binding a model, its fallbacks and a system prompt.
type Agent struct {
	ID           string    `json:"id" yaml:"id"`
	Name         string    `json:"name" yaml:"name"`
	Model        ModelSpec `json:"model" yaml:"model"`
	SystemPrompt string    `json:"system_prompt" yaml:"system_prompt"`
}

// Clone returns a deep copy so the caller can no longer mutate registered state.
func (a Agent) Clone() Agent {
	out := a
	if a.Model.FallbackModels != nil {
		out.Model.FallbackModels = append([]string(nil), a.Model.FallbackModels...)
	}
	return out
}

// Validate reports every out-of-range field as a single INVALID_CONFIG error.
func (a Agent) Validate() error {
	var errs []error

	if strings.TrimSpace(a.ID) == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if strings.TrimSpace(a.Model.PrimaryModel) == "" {
		errs = append(errs, errors.New("primary model is required"))
	}
	for i, m := range a.Model.FallbackModels {
		if strings.TrimSpace(m) == "" {
			errs = append(errs, fmt.Errorf("fallback model %d is empty", i))
		}
	}
	if a.Model.Temperature < 0 || a.Model.Temperature > 1 {
		errs = append(errs, fmt.Errorf("temperature %.2f out of range [0,1]", a.Model.Temperature))
	}
	if a.Model.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("max_tokens must be positive, got %d", a.Model.MaxTokens))
	}
	if a.Model.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %s", a.Model.Timeout))
	}

	if len(errs) == 0 {
		return nil
	}
	return Errorf(ErrInvalidConfig, "agent %q", a.ID).WithCause(errors.Join(errs...))
}
