package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/parleyhq/parley/engine"
	"github.com/parleyhq/parley/stream"
)

// ClientOptions configures a Client.
type ClientOptions struct {
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Path is the chat endpoint path on the server. Defaults to "/chat".
	Path string
}

// Client initiates invocations against a Parley server and folds the
// resulting event stream into local state. It is safe for concurrent reads
// via Snapshot; StartStream replaces any in-flight invocation.
type Client struct {
	baseURL    string
	path       string
	httpClient *http.Client

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

// NewClient creates a Client targeting baseURL.
func NewClient(baseURL string, optFns ...func(o *ClientOptions)) *Client {
	opts := ClientOptions{HTTPClient: http.DefaultClient, Path: "/chat"}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Client{
		baseURL:    baseURL,
		path:       opts.Path,
		httpClient: opts.HTTPClient,
		state:      NewState(),
	}
}

// StartStream begins a new invocation. All prior state is reset
// synchronously before this returns, so a caller reading Snapshot right
// after already sees IsStreaming=true and no stale messages. The stream is
// consumed on a background goroutine; Done() closes when it ends.
func (c *Client) StartStream(ctx context.Context, req engine.ChatRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode chat request: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.cancel = cancel
	c.done = done
	c.state = NewState()
	c.state.IsStreaming = true
	c.mu.Unlock()

	go func() {
		defer close(done)
		c.run(streamCtx, body)
	}()
	return nil
}

// run performs the HTTP exchange and folds incoming records into state.
func (c *Client) run(ctx context.Context, body []byte) {
	defer c.finish()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.path, bytes.NewReader(body))
	if err != nil {
		c.fail(ctx, err.Error())
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if isCanceled(ctx, err) {
			return
		}
		c.fail(ctx, err.Error())
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.fail(ctx, readErrorMessage(resp))
		return
	}
	if resp.Body == http.NoBody {
		c.fail(ctx, "No response body")
		return
	}

	dec := stream.NewDecoder(resp.Body)
	for {
		ev, err := dec.Decode()
		if err != nil {
			if errors.Is(err, io.EOF) || isCanceled(ctx, err) {
				return
			}
			c.fail(ctx, err.Error())
			return
		}
		c.mu.Lock()
		c.state = Reduce(c.state, ev)
		c.mu.Unlock()
	}
}

// fail records a transport-level failure unless it is a caller-initiated
// cancellation, which is not a user-visible error.
func (c *Client) fail(ctx context.Context, msg string) {
	if ctx.Err() != nil {
		return
	}
	c.mu.Lock()
	c.state.Err = msg
	c.mu.Unlock()
}

// finish clears the busy flag and freezes any dangling messages once the
// stream ends for any reason.
func (c *Client) finish() {
	c.mu.Lock()
	c.state.IsStreaming = false
	c.state.finalizeAll()
	c.mu.Unlock()
}

// Cancel aborts the in-flight invocation, if any. Cancellation clears the
// busy flag without surfacing an error.
func (c *Client) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Done returns a channel closed when the current stream has fully ended. It
// returns a closed channel when no stream was started.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return c.done
}

// Snapshot returns a copy of the current state safe for the caller to keep.
func (c *Client) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

func isCanceled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}

// readErrorMessage maps a non-2xx response to a best-effort message: the
// server-provided error field when the body parses, "HTTP <status>"
// otherwise.
func readErrorMessage(resp *http.Response) string {
	if resp.Body != nil {
		data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err == nil && len(data) > 0 {
			var payload struct {
				Error string `json:"error"`
			}
			if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
				return payload.Error
			}
		}
	}
	return fmt.Sprintf("HTTP %d", resp.StatusCode)
}
