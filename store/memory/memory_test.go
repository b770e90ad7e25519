package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/core"
)

func TestMessages(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	user, err := s.CreateUserMessage(ctx, "conv-1", "user-1", "hello", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "user", user.Role)

	agent, err := s.CreateAgentMessage(ctx, "conv-1", "a1", "hi there", core.AgentMessageOptions{
		RelatedToID: user.ID,
		Cost:        0.01,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, agent.ID)
	assert.Equal(t, "agent", agent.Role)
	assert.Equal(t, user.ID, agent.RelatedToID)
	assert.InDelta(t, 0.01, agent.Cost, 1e-9)

	msgs, err := s.RecentMessages(ctx, "conv-1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, user.ID, msgs[0].ID)
	assert.Equal(t, agent.ID, msgs[1].ID)
}

func TestCreateAgentMessage_HonorsProvidedID(t *testing.T) {
	s := NewStore()
	msg, err := s.CreateAgentMessage(context.Background(), "conv-1", "a1", "x", core.AgentMessageOptions{ID: "msg-42"})
	require.NoError(t, err)
	assert.Equal(t, "msg-42", msg.ID)
}

func TestRecentMessages_WindowKeepsNewestOldestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	for i := 0; i < 5; i++ {
		_, err := s.CreateUserMessage(ctx, "conv-1", "user-1", fmt.Sprintf("msg %d", i), nil)
		require.NoError(t, err)
	}

	msgs, err := s.RecentMessages(ctx, "conv-1", 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "msg 2", msgs[0].Content)
	assert.Equal(t, "msg 4", msgs[2].Content)
}

func TestRecentMessages_UnknownConversation(t *testing.T) {
	msgs, err := NewStore().RecentMessages(context.Background(), "nope", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestCredits(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	s.SetBalance("user-1", 1.0)

	ok, err := s.HasEnoughCredits(ctx, "user-1", 1.0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.HasEnoughCredits(ctx, "user-1", 1.5)
	require.NoError(t, err)
	assert.False(t, ok)

	debited, err := s.DeductCredits(ctx, "user-1", 0.4)
	require.NoError(t, err)
	assert.True(t, debited)
	assert.InDelta(t, 0.6, s.Balance("user-1"), 1e-9)

	// Refusal leaves the balance untouched.
	debited, err = s.DeductCredits(ctx, "user-1", 0.7)
	require.NoError(t, err)
	assert.False(t, debited)
	assert.InDelta(t, 0.6, s.Balance("user-1"), 1e-9)
}

func TestDeductCredits_UnknownUser(t *testing.T) {
	debited, err := NewStore().DeductCredits(context.Background(), "nobody", 0.1)
	require.NoError(t, err)
	assert.False(t, debited)
}

func TestDeductCredits_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	s.SetBalance("user-1", 1.0)

	// Two 0.75 debits race against a balance of 1: exactly one may win.
	var wg sync.WaitGroup
	results := make([]bool, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := s.DeductCredits(ctx, "user-1", 0.75)
			assert.NoError(t, err)
			results[i] = ok
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, ok := range results {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
	assert.InDelta(t, 0.25, s.Balance("user-1"), 1e-9)
}

func TestUsageLog(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	rec := core.UsageRecord{
		UserID:         "user-1",
		ConversationID: "conv-1",
		MessageID:      "m1",
		AgentID:        "a1",
		ModelName:      "mock",
		TokensUsed:     42,
		Cost:           0.01,
	}
	require.NoError(t, s.LogUsage(ctx, rec))

	records := s.UsageRecords()
	require.Len(t, records, 1)
	assert.Equal(t, "m1", records[0].MessageID)
	assert.Equal(t, 42, records[0].TokensUsed)
	assert.False(t, records[0].CreatedAt.IsZero(), "timestamp defaulted on write")
}
