// Package transport serves the orchestration engine over HTTP. Each
// invocation streams its events as newline-delimited JSON records on a
// chunked response, flushed per record so clients see fragments as they are
// produced. A client disconnect cancels the request context, which the
// engine observes to stop dispatching further agents.
package transport

import (
	"encoding/json"
	"net/http"

	"github.com/parleyhq/parley/engine"
	"github.com/parleyhq/parley/logging"
	"github.com/parleyhq/parley/metrics"
	"github.com/parleyhq/parley/stream"
)

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	// Logger defaults to NoOpLogger if nil.
	Logger logging.Logger
}

// Handler is the http.Handler for the chat endpoint.
type Handler struct {
	engine *engine.Engine
	logger logging.Logger
}

// NewHandler creates the chat endpoint handler around an engine.
func NewHandler(e *engine.Engine, optFns ...func(o *HandlerOptions)) *Handler {
	opts := HandlerOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Handler{engine: e, logger: opts.Logger}
}

// ServeHTTP decodes a chat request, invokes the engine, and streams the
// event sequence until it ends or the client goes away.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req engine.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	events, err := h.engine.Invoke(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	enc := stream.NewEncoder(w)
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			// Client gone; the engine stops via the request context.
			h.logger.Debug("transport.write_failed", "error", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// NewServeMux wires the chat handler together with the metrics and health
// endpoints.
func NewServeMux(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/chat", h)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
