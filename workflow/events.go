package workflow

import (
	"context"
)

// EventType defines the type of execution event.
type EventType string

const (
	// EventStepStart is emitted before a step begins.
	EventStepStart EventType = "step_start"
	// EventStepComplete is emitted after a step commits its output.
	EventStepComplete EventType = "step_complete"
	// EventStepError is emitted when a step fails.
	EventStepError EventType = "step_error"
	// EventAttemptFailed is emitted for every failed model call.
	EventAttemptFailed EventType = "attempt_failed"
	// EventFallback is emitted when a fallback model was tried.
	EventFallback EventType = "fallback"
)

// Event carries information about an execution event.
type Event struct {
	Type        EventType `json:"type"`
	ExecutionID string    `json:"execution_id"`
	WorkflowID  string    `json:"workflow_id"`
	StepID      string    `json:"step_id,omitempty"`
	Kind        StepKind  `json:"kind,omitempty"`
	Model       string    `json:"model,omitempty"`
	Attempt     int       `json:"attempt,omitempty"`
	Data        any       `json:"data,omitempty"`
	Error       error     `json:"-"`
}

// EventEmitter receives execution events. Parallel branches emit from their
// own goroutines, so an emitter must be safe for concurrent use.
type EventEmitter func(Event)

type eventEmitterKey struct{}

// WithEventEmitter stores an EventEmitter in the context.
func WithEventEmitter(ctx context.Context, emitter EventEmitter) context.Context {
	if emitter == nil {
		return ctx
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, eventEmitterKey{}, emitter)
}

func eventEmitterFromContext(ctx context.Context) (EventEmitter, bool) {
	if ctx == nil {
		return nil, false
	}
	v := ctx.Value(eventEmitterKey{})
	if v == nil {
		return nil, false
	}
	emit, ok := v.(EventEmitter)
	return emit, ok && emit != nil
}
