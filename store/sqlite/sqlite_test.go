package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "parley.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMessagesRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	attachments := []core.Attachment{{Name: "diagram.png", MIMEType: "image/png", Data: []byte{0x89, 0x50}}}
	user, err := s.CreateUserMessage(ctx, "conv-1", "user-1", "hello", attachments)
	require.NoError(t, err)

	agent, err := s.CreateAgentMessage(ctx, "conv-1", "a1", "hi there", core.AgentMessageOptions{
		ID:          "msg-42",
		RelatedToID: user.ID,
		Cost:        0.01,
	})
	require.NoError(t, err)
	assert.Equal(t, "msg-42", agent.ID)

	msgs, err := s.RecentMessages(ctx, "conv-1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, user.ID, msgs[0].ID)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Content)
	require.Len(t, msgs[0].Attachments, 1)
	assert.Equal(t, "diagram.png", msgs[0].Attachments[0].Name)
	assert.Equal(t, []byte{0x89, 0x50}, msgs[0].Attachments[0].Data)

	assert.Equal(t, "msg-42", msgs[1].ID)
	assert.Equal(t, "agent", msgs[1].Role)
	assert.Equal(t, user.ID, msgs[1].RelatedToID)
	assert.InDelta(t, 0.01, msgs[1].Cost, 1e-9)
}

func TestRecentMessages_Window(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		_, err := s.CreateUserMessage(ctx, "conv-1", "user-1", fmt.Sprintf("msg %d", i), nil)
		require.NoError(t, err)
	}

	msgs, err := s.RecentMessages(ctx, "conv-1", 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "msg 2", msgs[0].Content)
	assert.Equal(t, "msg 4", msgs[2].Content)

	// Zero means no window.
	msgs, err = s.RecentMessages(ctx, "conv-1", 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 5)

	msgs, err = s.RecentMessages(ctx, "unknown", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestCredits(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// Unknown users have a zero balance.
	ok, err := s.HasEnoughCredits(ctx, "nobody", 0.5)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetBalance(ctx, "user-1", 1.0))

	ok, err = s.HasEnoughCredits(ctx, "user-1", 1.0)
	require.NoError(t, err)
	assert.True(t, ok)

	debited, err := s.DeductCredits(ctx, "user-1", 0.4)
	require.NoError(t, err)
	assert.True(t, debited)

	balance, err := s.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, balance, 1e-9)

	// The guard refuses without touching the balance.
	debited, err = s.DeductCredits(ctx, "user-1", 0.7)
	require.NoError(t, err)
	assert.False(t, debited)

	balance, err = s.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, balance, 1e-9)
}

func TestSetBalance_Replaces(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SetBalance(ctx, "user-1", 1.0))
	require.NoError(t, s.SetBalance(ctx, "user-1", 5.0))

	balance, err := s.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.InDelta(t, 5.0, balance, 1e-9)
}

func TestDeductCredits_SequentialDebitsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.SetBalance(ctx, "user-1", 1.0))

	wins := 0
	for i := 0; i < 3; i++ {
		ok, err := s.DeductCredits(ctx, "user-1", 0.75)
		require.NoError(t, err)
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins)

	balance, err := s.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.25, balance, 1e-9)
}

func TestUsageLog(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.LogUsage(ctx, core.UsageRecord{
		UserID:         "user-1",
		ConversationID: "conv-1",
		MessageID:      "m1",
		AgentID:        "a1",
		ModelName:      "mock",
		TokensUsed:     42,
		Cost:           0.01,
	}))

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM usage_log WHERE message_id = 'm1'`).Scan(&count))
	assert.Equal(t, 1, count)
}
