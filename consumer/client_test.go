package consumer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/engine"
	"github.com/parleyhq/parley/stream"
)

func testChatRequest() engine.ChatRequest {
	return engine.ChatRequest{
		ConversationID: "conv-1",
		UserID:         "user-1",
		Prompt:         "hello",
		Mode:           core.ModeCollaborative,
	}
}

// waitDone blocks until the client's stream goroutine has finished.
func waitDone(t *testing.T, c *Client) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not finish")
	}
}

func TestClient_StreamsAndFoldsEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "application/x-ndjson")

		enc := stream.NewEncoder(w)
		for _, ev := range []stream.Event{
			stream.UserMessage{MessageID: "u1"},
			stream.AgentStart{MessageID: "m1", AgentID: "a1"},
			stream.Text{MessageID: "m1", AgentID: "a1", Content: "Hello"},
			stream.AgentDone{MessageID: "m1", AgentID: "a1", Cost: 0.01, TotalTokens: 12},
			stream.TurnComplete{Turn: 1},
			stream.Done{},
		} {
			require.NoError(t, enc.Encode(ev))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	require.NoError(t, c.StartStream(context.Background(), testChatRequest()))
	waitDone(t, c)

	s := c.Snapshot()
	assert.False(t, s.IsStreaming)
	assert.Empty(t, s.Err)
	assert.Equal(t, "u1", s.UserMessageID)
	assert.Equal(t, 1, s.CurrentTurn)
	assert.InDelta(t, 0.01, s.TotalCost, 1e-9)
	assert.Equal(t, "Hello", s.Messages["m1"].Content)
}

func TestClient_StartStreamResetsStateSynchronously(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(srv.URL)
	require.NoError(t, c.StartStream(context.Background(), testChatRequest()))

	s := c.Snapshot()
	assert.True(t, s.IsStreaming)
	assert.Empty(t, s.Messages)
	assert.Empty(t, s.Err)

	c.Cancel()
	waitDone(t, c)
}

func TestClient_ServerErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":"Insufficient credits. Please add credits to continue."}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	require.NoError(t, c.StartStream(context.Background(), testChatRequest()))
	waitDone(t, c)

	s := c.Snapshot()
	assert.Equal(t, "Insufficient credits. Please add credits to continue.", s.Err)
	assert.False(t, s.IsStreaming)
}

func TestClient_ServerErrorWithoutParsableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "something broke", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	require.NoError(t, c.StartStream(context.Background(), testChatRequest()))
	waitDone(t, c)

	assert.Equal(t, "HTTP 500", c.Snapshot().Err)
}

func TestClient_EmptyResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 200 with nothing written: the client sees Content-Length 0.
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	require.NoError(t, c.StartStream(context.Background(), testChatRequest()))
	waitDone(t, c)

	assert.Equal(t, "No response body", c.Snapshot().Err)
}

func TestClient_CancellationIsSilent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		enc := stream.NewEncoder(w)
		_ = enc.Encode(stream.UserMessage{MessageID: "u1"})
		_ = enc.Encode(stream.AgentStart{MessageID: "m1", AgentID: "a1"})
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		// Hold the stream open until the client goes away.
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	require.NoError(t, c.StartStream(context.Background(), testChatRequest()))

	// Let the first events arrive, then cancel mid-stream.
	deadline := time.Now().Add(5 * time.Second)
	for c.Snapshot().UserMessageID == "" {
		if time.Now().After(deadline) {
			t.Fatal("never saw the user message event")
		}
		time.Sleep(5 * time.Millisecond)
	}
	c.Cancel()
	waitDone(t, c)

	s := c.Snapshot()
	assert.Empty(t, s.Err, "cancellation must not surface an error")
	assert.False(t, s.IsStreaming)
	assert.False(t, s.Messages["m1"].IsStreaming, "dangling message after cancel")
}
