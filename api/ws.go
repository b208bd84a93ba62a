package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/truenorth/truenorth/internal/log"
	"github.com/truenorth/truenorth/internal/rag"
)

// Retry policy for whole-pipeline re-invocation. Only classified
// retryable errors are retried; the pipeline itself never retries.
const (
	maxAttempts     = 3
	initialInterval = 500 * time.Millisecond
	maxInterval     = 10 * time.Second
)

// Frame is one WebSocket message of an answer stream. A response is a
// series of chunk frames followed by a terminal frame with an empty
// chunk and IsFinal set. Failed requests carry Error in the terminal
// frame; the connection stays open for the next question.
type Frame struct {
	ID      string `json:"id"`
	Chunk   string `json:"chunk"`
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error,omitempty"`
}

// WSHandler handles the question/answer WebSocket endpoint.
type WSHandler struct {
	pipeline  Pipeline
	logger    log.Logger
	upgrader  websocket.Upgrader
	rateLimit float64
	rateBurst int
}

// NewWSHandler creates a WebSocket handler. When limiting is enabled the
// burst is floored at 1 so the limiter can admit a request at all.
func NewWSHandler(pipeline Pipeline, logger log.Logger, rateLimit float64, rateBurst int) *WSHandler {
	if rateLimit > 0 && rateBurst < 1 {
		rateBurst = 1
	}
	return &WSHandler{
		pipeline: pipeline,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		rateLimit: rateLimit,
		rateBurst: rateBurst,
	}
}

// RegisterRoutes registers the WebSocket route on the given mux.
func (h *WSHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", h.handleWS)
}

// handleWS upgrades the connection and serves questions until the
// client disconnects. Each text message is one pipeline invocation;
// answers are streamed back as Frames.
func (h *WSHandler) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	h.logger.Info("client connected", "remote", conn.RemoteAddr())
	defer h.logger.Info("client disconnected", "remote", conn.RemoteAddr())

	var limiter *rate.Limiter
	if h.rateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(h.rateLimit), h.rateBurst)
	}

	// The request context ends when the client disconnects, which
	// cancels any in-flight pipeline call and releases its stream.
	ctx := r.Context()

	for {
		msgType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
		}

		h.answer(ctx, conn, string(message))
	}
}

// answer runs the pipeline for one question and streams the response.
// On a retryable error the whole invocation is re-attempted with
// exponential backoff; a non-retryable error or an exhausted budget
// surfaces as a terminal error frame.
func (h *WSHandler) answer(ctx context.Context, conn *websocket.Conn, question string) {
	responseID := uuid.NewString()
	h.logger.Info("request received", "response_id", responseID)

	delay := initialInterval
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		streamed, err := h.attempt(ctx, conn, responseID, question)
		if err == nil {
			return
		}
		lastErr = err

		// Once frames went out the response cannot be restarted;
		// partial output is best-effort by contract.
		if streamed || !rag.IsRetryable(err) {
			break
		}

		h.logger.Warn("retryable pipeline failure, retrying",
			"response_id", responseID, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, maxInterval)
	}

	h.logger.Error("request failed", "response_id", responseID, "error", lastErr)
	h.writeFrame(conn, Frame{ID: responseID, IsFinal: true, Error: publicMessage(lastErr)})
}

// attempt executes one full pipeline invocation. The streamed return
// value reports whether any answer frame reached the client.
func (h *WSHandler) attempt(ctx context.Context, conn *websocket.Conn, responseID, question string) (streamed bool, err error) {
	docs, language, err := h.pipeline.HandleRetrieval(ctx, question)
	if err != nil {
		return false, err
	}

	stream, err := h.pipeline.GenerateStream(ctx, question, docs, language)
	if err != nil {
		return false, err
	}

	for chunk, streamErr := range stream {
		if streamErr != nil {
			h.logger.Warn("stream terminated abnormally",
				"response_id", responseID, "error", streamErr)
			break
		}
		if chunk == "" {
			continue
		}
		if !h.writeFrame(conn, Frame{ID: responseID, Chunk: chunk}) {
			return true, nil
		}
		streamed = true
	}

	h.writeFrame(conn, Frame{ID: responseID, IsFinal: true})
	return streamed, nil
}

// writeFrame sends one frame; returns false when the connection is gone.
func (h *WSHandler) writeFrame(conn *websocket.Conn, f Frame) bool {
	if err := conn.WriteJSON(f); err != nil {
		h.logger.Warn("websocket write failed", "error", err)
		return false
	}
	return true
}

// publicMessage extracts the human-readable cause of a classified error
// for the client; wrapped backend details stay in the logs.
func publicMessage(err error) string {
	var e *rag.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "an unexpected error occurred"
}
