// MockInvoker 的模型调用测试模拟实现。
//
// 支持固定响应、按模型脚本化结果、延迟与错误注入场景。
package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/flowcore/llm"
)

// MockInvokerCall 记录单次调用
type MockInvokerCall struct {
	Request  llm.Request
	Response *llm.Response
	Error    error
	At       time.Time
}

// MockInvoker 是 llm.Invoker 的模拟实现
// 默认响应为 "<model>:<input>"，对相同输入是确定性的
type MockInvoker struct {
	mu sync.Mutex

	response  string
	err       error
	responses map[string]string
	errs      map[string]error
	scripts   map[string][]error
	fn        func(ctx context.Context, req *llm.Request) (*llm.Response, error)

	tokens        int
	delay         time.Duration
	ignoreContext bool

	calls  []MockInvokerCall
	closed int
}

// NewMockInvoker 创建新的 MockInvoker
func NewMockInvoker() *MockInvoker {
	return &MockInvoker{
		responses: make(map[string]string),
		errs:      make(map[string]error),
		scripts:   make(map[string][]error),
		tokens:    10,
	}
}

// WithResponse 设置所有模型的固定响应
func (m *MockInvoker) WithResponse(text string) *MockInvoker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = text
	return m
}

// WithError 设置所有模型均返回的错误
func (m *MockInvoker) WithError(err error) *MockInvoker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithModelResponse 设置指定模型的固定响应
func (m *MockInvoker) WithModelResponse(model, text string) *MockInvoker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[model] = text
	return m
}

// WithModelError 设置指定模型始终返回的错误
func (m *MockInvoker) WithModelError(model string, err error) *MockInvoker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[model] = err
	return m
}

// WithScript 设置指定模型逐次调用的结果，nil 表示成功；脚本用尽后按其他配置处理
func (m *MockInvoker) WithScript(model string, outcomes ...error) *MockInvoker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[model] = append(m.scripts[model], outcomes...)
	return m
}

// WithFunc 设置自定义调用函数，优先于其他配置
func (m *MockInvoker) WithFunc(fn func(ctx context.Context, req *llm.Request) (*llm.Response, error)) *MockInvoker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	return m
}

// WithTokens 设置每次成功调用报告的 Token 数
func (m *MockInvoker) WithTokens(n int) *MockInvoker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = n
	return m
}

// WithDelay 设置模拟延迟；ignoreContext 为 true 时延迟期间不响应取消
func (m *MockInvoker) WithDelay(d time.Duration, ignoreContext bool) *MockInvoker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	m.ignoreContext = ignoreContext
	return m
}

// Invoke 实现 llm.Invoker
func (m *MockInvoker) Invoke(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	delay, ignore, fn := m.delay, m.ignoreContext, m.fn
	var scripted error
	var hasScript bool
	if script := m.scripts[req.Model]; len(script) > 0 {
		scripted, hasScript = script[0], true
		m.scripts[req.Model] = script[1:]
	}
	m.mu.Unlock()

	if delay > 0 {
		if ignore {
			time.Sleep(delay)
		} else {
			select {
			case <-ctx.Done():
				m.record(req, nil, ctx.Err())
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	var resp *llm.Response
	var err error
	switch {
	case fn != nil:
		resp, err = fn(ctx, req)
	case hasScript && scripted != nil:
		err = scripted
	case hasScript:
		resp = m.success(req)
	default:
		resp, err = m.configured(req)
	}

	m.record(req, resp, err)
	return resp, err
}

func (m *MockInvoker) configured(req *llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.errs[req.Model]; ok {
		return nil, err
	}
	if m.err != nil {
		if _, ok := m.responses[req.Model]; !ok {
			return nil, m.err
		}
	}
	return m.successLocked(req), nil
}

func (m *MockInvoker) success(req *llm.Request) *llm.Response {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.successLocked(req)
}

func (m *MockInvoker) successLocked(req *llm.Request) *llm.Response {
	text, ok := m.responses[req.Model]
	if !ok {
		text = m.response
	}
	if text == "" {
		text = fmt.Sprintf("%s:%v", req.Model, req.Input)
	}
	return &llm.Response{Text: text, Model: req.Model, TokensUsed: m.tokens}
}

func (m *MockInvoker) record(req *llm.Request, resp *llm.Response, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockInvokerCall{Request: *req, Response: resp, Error: err, At: time.Now()})
}

// Close 实现 llm.Closer，记录关闭次数
func (m *MockInvoker) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

// --- 查询方法 ---

// Calls 返回所有调用记录的副本
func (m *MockInvoker) Calls() []MockInvokerCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockInvokerCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount 返回调用次数
func (m *MockInvoker) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// ModelsCalled 按调用顺序返回模型名
func (m *MockInvoker) ModelsCalled() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.calls))
	for _, c := range m.calls {
		out = append(out, c.Request.Model)
	}
	return out
}

// CloseCount 返回 Close 被调用的次数
func (m *MockInvoker) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
