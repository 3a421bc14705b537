package httpapi

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPSSEWriter_SetsEventStreamHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	newHTTPSSEWriter(rec)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
}

func TestHTTPSSEWriter_WriteChunk_FramesAsDataLine(t *testing.T) {
	rec := httptest.NewRecorder()
	w := newHTTPSSEWriter(rec)

	chunk := &openai.ChatCompletionChunk{ID: "chatcmpl-1"}
	require.NoError(t, w.WriteChunk(chunk))

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "data: "))
	assert.True(t, strings.HasSuffix(body, "\n\n"))
	assert.Contains(t, body, `"chatcmpl-1"`)
}

func TestHTTPSSEWriter_WriteDone_WritesLiteralDoneFrame(t *testing.T) {
	rec := httptest.NewRecorder()
	w := newHTTPSSEWriter(rec)

	require.NoError(t, w.WriteDone())
	assert.Equal(t, "data: [DONE]\n\n", rec.Body.String())
}
