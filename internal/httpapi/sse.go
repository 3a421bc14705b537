package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/openai/openai-go/v2"
)

// httpSSEWriter writes chat.completion.chunk events to an http.ResponseWriter,
// adapted from the teacher library's httpSSEWriter (sse_types.go): set the
// SSE headers once up front, then write each "data: <json>\n\n" frame and
// flush immediately so the client sees it without buffering delay.
type httpSSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newHTTPSSEWriter sets the response headers for event-stream framing and
// returns a writer ready for WriteChunk/WriteDone.
func newHTTPSSEWriter(w http.ResponseWriter) *httpSSEWriter {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, _ := w.(http.Flusher)

	return &httpSSEWriter{w: w, flusher: flusher}
}

func (h *httpSSEWriter) WriteChunk(chunk *openai.ChatCompletionChunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	if _, err := h.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := h.w.Write(data); err != nil {
		return err
	}
	if _, err := h.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	h.flush()
	return nil
}

func (h *httpSSEWriter) WriteDone() error {
	_, err := h.w.Write([]byte("data: [DONE]\n\n"))
	h.flush()
	return err
}

func (h *httpSSEWriter) flush() {
	if h.flusher != nil {
		h.flusher.Flush()
	}
}
