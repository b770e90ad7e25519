// Package parley provides a high-level façade over the orchestration engine
// and its collaborators (stores, model resolvers, logging), enabling rapid
// construction of multi-agent chat backends. Most applications interact with
// this package by:
//  1. Creating a Parley via New() (optionally overriding the default
//     in-memory store and mock resolver)
//  2. Invoking Chat for a streaming event sequence, or ChatSync to collect
//     the whole sequence at once
//
// All defaults are safe for local development and testing; production
// deployments supply a durable store (store/sqlite or store/postgres), real
// model adapters (model/anthropic, model/openai) and a structured logger.
package parley

import (
	"context"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/engine"
	"github.com/parleyhq/parley/logging"
	"github.com/parleyhq/parley/model"
	"github.com/parleyhq/parley/store/memory"
	"github.com/parleyhq/parley/stream"
)

// Options configures the Parley instance.
type Options struct {
	// EngineConfig carries the engine's policy and tuning parameters.
	EngineConfig engine.Config

	// Store provides persistence (defaults to the in-memory store).
	Store core.Store

	// Resolver maps model names to generation backends (defaults to a
	// registry with a mock fallback).
	Resolver model.Resolver

	// Logger defaults to NoOpLogger if nil.
	Logger logging.Logger
}

// Parley aggregates the engine and its collaborators.
type Parley struct {
	opts   Options
	engine *engine.Engine
}

// New creates a new Parley instance with optional overrides. Any unset
// collaborator is initialized with a development-grade default.
func New(optFns ...func(o *Options)) *Parley {
	registry := model.NewRegistry()
	registry.Register("", model.NewMockModel())

	opts := Options{
		EngineConfig: engine.DefaultConfig,
		Store:        memory.NewStore(),
		Resolver:     registry,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	e := engine.New(func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Store = opts.Store
		o.Resolver = opts.Resolver
		o.Logger = opts.Logger
	})

	return &Parley{opts: opts, engine: e}
}

// Engine returns the underlying orchestration engine, e.g. for mounting the
// transport handler.
func (p *Parley) Engine() *engine.Engine { return p.engine }

// Chat starts an invocation and returns its streaming event sequence.
func (p *Parley) Chat(ctx context.Context, req engine.ChatRequest) (<-chan stream.Event, error) {
	return p.engine.Invoke(ctx, req)
}

// ChatSync is a synchronous helper that drains the event sequence and
// returns all events including the terminal marker.
func (p *Parley) ChatSync(ctx context.Context, req engine.ChatRequest) ([]stream.Event, error) {
	events, err := p.engine.Invoke(ctx, req)
	if err != nil {
		return nil, err
	}
	var out []stream.Event
	for {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return out, nil
			}
			out = append(out, ev)
		}
	}
}
