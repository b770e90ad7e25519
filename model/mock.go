package model

import (
	"context"
	"fmt"
	"sync"
)

// Script describes the deterministic behavior of a MockModel for one prompt:
// the fragments to stream, the token count reported on completion, and an
// optional error injected either before any fragment or after FailAfter
// fragments have been emitted.
type Script struct {
	Fragments   []string
	TotalTokens int
	Err         error
	FailAfter   int // fragments emitted before Err fires; only used when Err != nil
}

// MockModel is a scripted in-memory Model for tests and examples. Prompts
// without a registered script stream a canned reply character by character.
type MockModel struct {
	mu      sync.RWMutex
	scripts map[string]Script
}

// NewMockModel constructs an empty MockModel.
func NewMockModel() *MockModel {
	return &MockModel{scripts: make(map[string]Script)}
}

// AddScript registers the scripted behavior for a prompt.
func (m *MockModel) AddScript(prompt string, s Script) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[prompt] = s
}

// Generate implements Model.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.mu.RLock()
	script, ok := m.scripts[req.Prompt]
	m.mu.RUnlock()
	if !ok {
		reply := fmt.Sprintf("Mock response to: %s", req.Prompt)
		script = Script{Fragments: []string{reply}, TotalTokens: len(reply) / 4}
	}

	go func() {
		defer close(respCh)
		defer close(errCh)

		if script.Err != nil && script.FailAfter == 0 {
			errCh <- script.Err
			return
		}

		for i, frag := range script.Fragments {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case respCh <- Response{Text: frag, Partial: true}:
			}
			if script.Err != nil && i+1 == script.FailAfter {
				errCh <- script.Err
				return
			}
		}

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- Response{Partial: false, TotalTokens: script.TotalTokens}:
		}
	}()

	return respCh, errCh
}
