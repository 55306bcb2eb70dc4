package llm

import (
	"context"
	"encoding/json"
	"sync"
)

// MockResult is one scripted reply for MockInvoker.
type MockResult struct {
	JSON string
	Err  error
}

// MockInvoker is a scripted invoker for testing. Scripted results are
// consumed in call order; once exhausted the last one repeats. Safe for the
// orchestrator's concurrent fan-out.
type MockInvoker struct {
	mu      sync.Mutex
	Script  []MockResult
	Fn      func(call int, prompt string) (json.RawMessage, error)
	Calls   int
	Prompts []string
}

func (m *MockInvoker) Invoke(ctx context.Context, prompt string) (json.RawMessage, error) {
	m.mu.Lock()
	call := m.Calls
	m.Calls++
	m.Prompts = append(m.Prompts, prompt)
	fn := m.Fn
	var result MockResult
	if len(m.Script) > 0 {
		idx := call
		if idx >= len(m.Script) {
			idx = len(m.Script) - 1
		}
		result = m.Script[idx]
	}
	m.mu.Unlock()

	if fn != nil {
		return fn(call, prompt)
	}
	if result.Err != nil {
		return nil, result.Err
	}
	return json.RawMessage(result.JSON), nil
}

// CallCount returns how many times Invoke ran.
func (m *MockInvoker) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}
