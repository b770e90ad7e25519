// Package model abstracts the text-generation backends behind a single
// streaming interface. Given a prompt, an optional system instruction,
// bounded recent history and optional attachments, a Model produces a lazy
// sequence of incremental text fragments followed by a final response
// carrying the total token count. Adapters for real providers live in the
// anthropic and openai subpackages; MockModel serves tests and examples.
package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/parleyhq/parley/core"
)

// Request captures the normalized generation input produced by the engine.
type Request struct {
	ModelName         string            `json:"model_name"`
	Prompt            string            `json:"prompt"`
	SystemInstruction string            `json:"system_instruction,omitempty"`
	History           []core.Message    `json:"history,omitempty"`
	Attachments       []core.Attachment `json:"attachments,omitempty"`
}

// Response is a partial or final chunk emitted by a streaming model. Partial
// responses carry an incremental text fragment; the final response has
// Partial=false and the authoritative token count for the call.
type Response struct {
	Text        string `json:"text"`
	Partial     bool   `json:"partial"`
	TotalTokens int    `json:"total_tokens,omitempty"`
}

// Model is the minimal interface the engine needs to drive generation.
// Implementations close both channels when generation ends; a value on the
// error channel terminates the call, whether or not fragments were already
// produced.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)
}

// Resolver maps a model name from an agent descriptor to a Model instance.
type Resolver interface {
	Resolve(modelName string) (Model, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(modelName string) (Model, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(modelName string) (Model, error) { return f(modelName) }

// Registry is a fixed name-to-model table implementing Resolver. A model
// registered under the empty name serves as the fallback for unknown names.
type Registry struct {
	mu     sync.RWMutex
	models map[string]Model
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]Model)}
}

// Register binds a model name to an implementation.
func (r *Registry) Register(name string, m Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[name] = m
}

// Resolve implements Resolver.
func (r *Registry) Resolve(modelName string) (Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.models[modelName]; ok {
		return m, nil
	}
	if m, ok := r.models[""]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("model: no model registered for %q", modelName)
}
