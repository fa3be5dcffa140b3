package vcs

import (
	"context"
	"strings"
	"sync"
)

// MockCall is one command seen by MockExecutor
type MockCall struct {
	Dir  string
	Args string
}

// MockResponse is the scripted result of a command
type MockResponse struct {
	Output []byte
	Err    error
}

// MockExecutor is a scripted Executor for testing. Responses are keyed by the
// space-joined arguments; unscripted commands succeed with no output.
type MockExecutor struct {
	mu        sync.Mutex
	Responses map[string]MockResponse
	Calls     []MockCall
}

// NewMockExecutor creates a mock with no scripted responses
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{Responses: make(map[string]MockResponse)}
}

// On scripts the output of a command
func (m *MockExecutor) On(args string, output string, err error) *MockExecutor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses[args] = MockResponse{Output: []byte(output), Err: err}
	return m
}

func (m *MockExecutor) Run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.Join(args, " ")
	m.Calls = append(m.Calls, MockCall{Dir: dir, Args: key})
	r := m.Responses[key]
	return r.Output, r.Err
}

// Commands returns the arguments of every call in order
func (m *MockExecutor) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.Calls))
	for _, c := range m.Calls {
		out = append(out, c.Args)
	}
	return out
}
