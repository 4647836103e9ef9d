package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/flowcore/llm"
	"github.com/BaSui01/flowcore/types"
)

// echoInvoker 不访问网络，回显模型名与输入，用于试运行定义文件
type echoInvoker struct {
	fail map[string]bool
}

func newEchoInvoker(failModels []string) *echoInvoker {
	e := &echoInvoker{fail: make(map[string]bool, len(failModels))}
	for _, m := range failModels {
		e.fail[m] = true
	}
	return e
}

func (e *echoInvoker) Invoke(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.NewTimeoutError(req.Model, err.Error())
	}
	if e.fail[req.Model] {
		return nil, types.NewProviderError(req.Model, "simulated failure")
	}
	text := fmt.Sprintf("[%s] %v", req.Model, req.Input)
	return &llm.Response{
		Text:       text,
		Model:      req.Model,
		TokensUsed: len(strings.Fields(text)),
	}, nil
}
