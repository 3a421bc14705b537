package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/wasmchat/edgechat/internal/chatengine"
)

// Server adapts a chatengine.Engine to net/http. It exists to give the
// module a runnable demonstration; the engine itself has no HTTP
// dependency and can be embedded behind any framing a caller prefers.
type Server struct {
	engine *chatengine.Engine
	logger *slog.Logger
}

// NewServer wraps an already-configured Engine (models must already be
// registered via Engine.RegisterModel).
func NewServer(engine *chatengine.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: engine, logger: logger}
}

// Routes returns the handler tree: POST /v1/chat/completions is the only
// route this demonstration serves.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	return mux
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 16<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	req, err := decodeRequest(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	req.Normalize()

	obj, stream, err := s.engine.Chat(r.Context(), req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	if stream == nil {
		w.Header().Set("Content-Type", "application/json")
		if encErr := json.NewEncoder(w).Encode(obj.ToSDK()); encErr != nil {
			s.logger.Error("failed to encode chat completion response", "error", encErr)
		}
		return
	}

	s.streamSSE(r.Context(), w, stream)
}

// streamSSE drives a chatengine.Stream to completion, writing each chunk as
// an SSE "data:" frame and the terminal "data: [DONE]\n\n" line, following
// the teacher's httpSSEWriter framing exactly (sse_types.go).
func (s *Server) streamSSE(ctx context.Context, w http.ResponseWriter, stream *chatengine.Stream) {
	defer stream.Close(ctx)

	sseWriter := newHTTPSSEWriter(w)

	for {
		chunk, done, err := stream.Next(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.logger.Error("stream error", "error", err)
			}
			return
		}
		if chunk != nil {
			sdk := chunk.ToSDK()
			if werr := sseWriter.WriteChunk(&sdk); werr != nil {
				s.logger.Error("failed to write SSE chunk", "error", werr)
				return
			}
		}
		if done {
			if werr := sseWriter.WriteDone(); werr != nil {
				s.logger.Error("failed to write SSE done marker", "error", werr)
			}
			return
		}
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]any{"error": map[string]any{"message": err.Error()}}
	if encErr := json.NewEncoder(w).Encode(body); encErr != nil {
		s.logger.Error("failed to encode error response", "error", encErr)
	}
}
