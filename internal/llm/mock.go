package llm

import "context"

// MockCompleter is a scripted Completer for tests. Responses are returned
// in order; when the script runs out the last response repeats. Err, when
// set, takes precedence.
type MockCompleter struct {
	Responses []string
	Err       error
	Calls     []CompletionRequest
}

func (m *MockCompleter) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.Calls = append(m.Calls, req)

	if m.Err != nil {
		return nil, m.Err
	}

	if len(m.Responses) == 0 {
		return &CompletionResponse{Content: ""}, nil
	}

	idx := len(m.Calls) - 1
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}

	return &CompletionResponse{Content: m.Responses[idx]}, nil
}
