package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/metrics"
	"github.com/parleyhq/parley/model"
	"github.com/parleyhq/parley/stream"
)

// runTurn executes one full round for the targeted agents: concurrent
// fan-out/fan-in for parallel and expert-council, a strict chain for
// collaborative and debate. A single agent failure aborts the whole turn;
// siblings already committed stay committed, nothing is rolled back.
func (e *Engine) runTurn(ctx context.Context, req ChatRequest, targets []string, relatedToID string, em *emitter) error {
	if !req.Mode.Concurrent() {
		for _, agentID := range targets {
			if err := e.runAgentTurn(ctx, req, agentID, relatedToID, em); err != nil {
				return err
			}
		}
		return nil
	}

	// Concurrent fan-out. Each agent streams through the shared emitter, so
	// fragments interleave across agents but stay ordered within one. The
	// first real failure cancels the siblings; their cancellation errors are
	// ignored in favor of the root cause.
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, len(targets))
	for _, agentID := range targets {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := e.runAgentTurn(turnCtx, req, id, relatedToID, em); err != nil {
				errCh <- err
				cancel()
			}
		}(agentID)
	}
	wg.Wait()
	close(errCh)

	var firstErr error
	for err := range errCh {
		if firstErr == nil {
			firstErr = err
		}
		if !isCancellation(err) {
			return err
		}
	}
	return firstErr
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// runAgentTurn executes a single agent's response: agent_start, streamed
// text fragments, cost computation, credit debit, usage log, final content
// persistence, agent_done. Any generation error aborts the turn.
func (e *Engine) runAgentTurn(ctx context.Context, req ChatRequest, agentID, relatedToID string, em *emitter) error {
	agent, ok := req.Catalog.Lookup(agentID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}

	m, err := e.resolver.Resolve(agent.ModelName)
	if err != nil {
		return fmt.Errorf("no backend for agent %s: %w", agent.Name, err)
	}

	messageID := core.NewID()
	if !em.send(stream.AgentStart{MessageID: messageID, AgentID: agentID}) {
		return ctx.Err()
	}

	history, err := e.store.RecentMessages(ctx, req.ConversationID, e.config.HistoryWindow)
	if err != nil {
		// History is advisory context, not a correctness requirement; a
		// degraded prompt beats a failed turn.
		e.logger.Warn("engine.history.load_failed", "conversation", req.ConversationID, "error", err)
		history = nil
	}

	respCh, errCh := m.Generate(ctx, model.Request{
		ModelName:         agent.ModelName,
		Prompt:            req.Prompt,
		SystemInstruction: agent.SystemInstruction,
		History:           history,
		Attachments:       req.Attachments,
	})

	var buf strings.Builder
	var totalTokens int
	var genErr error
loop:
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case resp, open := <-respCh:
			if !open {
				// Catch a trailing error racing the channel close.
				select {
				case err, open := <-errCh:
					if open && err != nil {
						genErr = err
					}
				default:
				}
				break loop
			}
			if resp.Text != "" {
				buf.WriteString(resp.Text)
				if !em.send(stream.Text{MessageID: messageID, AgentID: agentID, Content: resp.Text}) {
					return ctx.Err()
				}
			}
			if !resp.Partial {
				totalTokens = resp.TotalTokens
			}
		case err, open := <-errCh:
			if !open {
				errCh = nil
				continue
			}
			if err != nil {
				genErr = err
				// Fragments produced before the failure still reach the
				// client. The model closes respCh after reporting the error,
				// so this drain terminates.
				for resp := range respCh {
					if resp.Text == "" {
						continue
					}
					buf.WriteString(resp.Text)
					if !em.send(stream.Text{MessageID: messageID, AgentID: agentID, Content: resp.Text}) {
						return ctx.Err()
					}
				}
				break loop
			}
		}
	}
	if genErr != nil {
		return fmt.Errorf("generation failed for agent %s: %w", agent.Name, genErr)
	}

	cost := e.config.Pricing.Cost(totalTokens)

	// The debit is conditional-and-atomic at the storage layer. Losing the
	// race against a concurrent debit does not fail the turn; the response
	// has already been produced, so the turn completes and the miss is
	// logged (see DESIGN.md on strict accounting).
	debited, err := e.store.DeductCredits(ctx, req.UserID, cost)
	switch {
	case err != nil:
		e.logger.Error("engine.credits.debit_error", "user", req.UserID, "cost", cost, "error", err)
	case !debited:
		metrics.DebitFailuresTotal.Inc()
		e.logger.Warn("engine.credits.debit_lost_race", "user", req.UserID, "cost", cost)
	default:
		metrics.CreditsDebitedTotal.Add(cost)
	}

	if err := e.store.LogUsage(ctx, core.UsageRecord{
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		MessageID:      messageID,
		AgentID:        agentID,
		ModelName:      agent.ModelName,
		TokensUsed:     totalTokens,
		Cost:           cost,
	}); err != nil {
		e.logger.Error("engine.usage.log_failed", "message", messageID, "error", err)
	}

	// Durably store the final content before agent_done goes out.
	if _, err := e.store.CreateAgentMessage(ctx, req.ConversationID, agentID, buf.String(), core.AgentMessageOptions{
		ID:          messageID,
		RelatedToID: relatedToID,
		Cost:        cost,
	}); err != nil {
		return fmt.Errorf("failed to save response from agent %s: %w", agent.Name, err)
	}

	metrics.AgentTurnsTotal.WithLabelValues(agentID).Inc()
	metrics.TokensTotal.WithLabelValues(agent.ModelName).Add(float64(totalTokens))

	if !em.send(stream.AgentDone{MessageID: messageID, AgentID: agentID, Cost: cost, TotalTokens: totalTokens}) {
		return ctx.Err()
	}
	return nil
}
