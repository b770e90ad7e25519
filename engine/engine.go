package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/logging"
	"github.com/parleyhq/parley/metrics"
	"github.com/parleyhq/parley/model"
	"github.com/parleyhq/parley/stream"
)

// ErrAgentNotFound indicates a role configuration referencing an agent id
// that does not resolve in the catalog. This is a client/config bug, not a
// transient condition.
var ErrAgentNotFound = errors.New("Agent not found")

// ChatRequest is the immutable per-invocation configuration: one user
// message, the mode and role assignment to answer it with, and the agent
// catalog the roles resolve against.
type ChatRequest struct {
	ConversationID string            `json:"conversation_id"`
	UserID         string            `json:"user_id"`
	Prompt         string            `json:"prompt"`
	Attachments    []core.Attachment `json:"attachments,omitempty"`
	Mode           core.Mode         `json:"mode"`
	Roles          core.Roles        `json:"roles"`
	AutoReply      bool              `json:"auto_reply,omitempty"`
	Catalog        core.Catalog      `json:"catalog"`
}

func (r ChatRequest) validate() error {
	if r.ConversationID == "" {
		return errors.New("conversation id is required")
	}
	if r.UserID == "" {
		return errors.New("user id is required")
	}
	if !r.Mode.Valid() {
		return fmt.Errorf("unknown mode %q", r.Mode)
	}
	return nil
}

// Options configures an Engine instance.
type Options struct {
	// Config contains policy and tuning parameters.
	Config Config

	// Store provides message persistence, the credit ledger and the usage
	// log. Required.
	Store core.Store

	// Resolver maps agent model names to generation backends. Required.
	Resolver model.Resolver

	// Logger defaults to NoOpLogger if nil.
	Logger logging.Logger
}

// Engine orchestrates agent turns for chat invocations. It is safe for
// concurrent use; each invocation runs in its own goroutine with an isolated
// event channel.
type Engine struct {
	store    core.Store
	resolver model.Resolver
	logger   logging.Logger
	config   Config
}

// New creates an Engine with the supplied options.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config: DefaultConfig,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Engine{
		store:    opts.Store,
		resolver: opts.Resolver,
		logger:   opts.Logger,
		config:   opts.Config,
	}
}

// Invoke starts an invocation and returns its event sequence. The channel is
// closed after the terminal marker (stream.Done or stream.Error) or, without
// a marker, once ctx is cancelled. An error is returned only for requests
// that are structurally invalid before any work starts.
func (e *Engine) Invoke(ctx context.Context, req ChatRequest) (<-chan stream.Event, error) {
	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("invalid chat request: %w", err)
	}
	out := make(chan stream.Event, e.config.EventBufferSize)
	go e.orchestrate(ctx, req, out)
	return out, nil
}

// emitter serializes event delivery for one invocation and stops delivering
// as soon as the caller's context is cancelled.
type emitter struct {
	ctx context.Context
	out chan<- stream.Event
}

// send delivers ev unless the invocation has been cancelled. The false
// return tells the producing goroutine to stop.
func (em *emitter) send(ev stream.Event) bool {
	select {
	case <-em.ctx.Done():
		return false
	case em.out <- ev:
		return true
	}
}

// orchestrate drives one full invocation: admission control, user message
// commit, one or more turns, terminal marker.
func (e *Engine) orchestrate(ctx context.Context, req ChatRequest, out chan<- stream.Event) {
	defer close(out)

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	em := &emitter{ctx: ctx, out: out}
	outcome := "done"
	defer func() {
		metrics.InvocationsTotal.WithLabelValues(string(req.Mode), outcome).Inc()
	}()

	// Admission control. A hard precondition: nothing is persisted and no
	// agent is called when the balance is below the threshold.
	ok, err := e.store.HasEnoughCredits(ctx, req.UserID, e.config.MinCreditBalance)
	if err != nil {
		outcome = "error"
		e.logger.Error("engine.admission.failed", "user", req.UserID, "error", err)
		em.send(stream.Error{Message: fmt.Sprintf("credit check failed: %v", err)})
		return
	}
	if !ok {
		outcome = "rejected"
		e.logger.Info("engine.admission.rejected", "user", req.UserID)
		em.send(stream.Error{Message: "Insufficient credits. Please add credits to continue."})
		return
	}

	// Commit the user message exactly once, before any agent runs, so agent
	// responses can reference it.
	userMsg, err := e.store.CreateUserMessage(ctx, req.ConversationID, req.UserID, req.Prompt, req.Attachments)
	if err != nil {
		outcome = "error"
		e.logger.Error("engine.user_message.persist_failed", "conversation", req.ConversationID, "error", err)
		em.send(stream.Error{Message: fmt.Sprintf("failed to save message: %v", err)})
		return
	}
	if !em.send(stream.UserMessage{MessageID: userMsg.ID}) {
		return
	}

	turn := 1
	userText := req.Prompt
	for {
		targets, err := ResolveTargets(req.Mode, req.Roles, userText, req.Catalog)
		if err != nil {
			outcome = "error"
			em.send(stream.Error{Message: err.Error()})
			return
		}

		if err := e.runTurn(ctx, req, targets, userMsg.ID, em); err != nil {
			if ctx.Err() != nil {
				outcome = "cancelled"
				return
			}
			outcome = "error"
			e.logger.Error("engine.turn.failed", "conversation", req.ConversationID, "turn", turn, "error", err)
			em.send(stream.Error{Message: err.Error()})
			return
		}

		if !em.send(stream.TurnComplete{Turn: turn}) {
			outcome = "cancelled"
			return
		}
		e.logger.Info("engine.turn.completed", "conversation", req.ConversationID, "turn", turn, "agents", len(targets))

		if !req.AutoReply || turn > e.config.MaxAutoTurns {
			break
		}
		turn++
		// Auto-reply turns re-target without a new user message, so mention
		// restrictions never carry over.
		userText = ""
		select {
		case <-ctx.Done():
			outcome = "cancelled"
			return
		case <-time.After(e.config.AutoReplyDelay):
		}
	}

	em.send(stream.Done{})
}
