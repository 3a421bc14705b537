package chatengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmchat/edgechat/internal/backend"
	"github.com/wasmchat/edgechat/internal/backend/backendtest"
	"github.com/wasmchat/edgechat/internal/message"
	"github.com/wasmchat/edgechat/internal/prompt"
)

func drainStream(t *testing.T, s *Stream) []message.Chunk {
	t.Helper()
	var chunks []message.Chunk
	for {
		c, done, err := s.Next(context.Background())
		require.NoError(t, err)
		if c != nil {
			chunks = append(chunks, *c)
		}
		if done {
			break
		}
	}
	return chunks
}

func TestStream_EndOfSequence_EmitsContentThenStops(t *testing.T) {
	h := backendtest.NewMock()
	h.Steps = []backendtest.Step{
		{Output: []byte("hel"), Result: backend.ComputeResult{Kind: backend.StepOK}},
		{Output: []byte("lo"), Result: backend.ComputeResult{Kind: backend.StepOK}},
	}

	e := newTestEngine("demo", h, prompt.ChatML)
	req := message.ChatRequest{
		Model:    "demo",
		Stream:   true,
		Messages: []message.Message{{Role: message.RoleUser, Content: "hi", HasContent: true}},
	}
	req.Normalize()

	_, stream, err := e.Chat(context.Background(), req)
	require.NoError(t, err)
	defer stream.Close(context.Background())

	chunks := drainStream(t, stream)
	require.Len(t, chunks, 2)
	require.NotNil(t, chunks[0].Delta.Content)
	assert.Equal(t, "hel", *chunks[0].Delta.Content)
	require.NotNil(t, chunks[1].Delta.Content)
	assert.Equal(t, "lo", *chunks[1].Delta.Content)
}

func TestStream_ContextFull_EmitsSentinelAndLengthFinish(t *testing.T) {
	h := backendtest.NewMock()
	h.Steps = []backendtest.Step{
		{Output: nil, Result: backend.ComputeResult{Kind: backend.ContextFull}},
	}

	e := newTestEngine("demo", h, prompt.ChatML)
	req := message.ChatRequest{
		Model:    "demo",
		Stream:   true,
		Messages: []message.Message{{Role: message.RoleUser, Content: "hi", HasContent: true}},
	}
	req.Normalize()

	_, stream, err := e.Chat(context.Background(), req)
	require.NoError(t, err)
	defer stream.Close(context.Background())

	chunks := drainStream(t, stream)
	require.Len(t, chunks, 1)
	require.NotNil(t, chunks[0].Delta.Content)
	assert.Equal(t, contextFullSentinel, *chunks[0].Delta.Content)
	assert.Equal(t, message.FinishLength, chunks[0].FinishReason)
}

func TestStream_PromptTooLong_EmitsNilContentAndLengthFinish(t *testing.T) {
	h := backendtest.NewMock()
	h.Steps = []backendtest.Step{
		{Output: nil, Result: backend.ComputeResult{Kind: backend.PromptTooLong}},
	}

	e := newTestEngine("demo", h, prompt.ChatML)
	req := message.ChatRequest{
		Model:    "demo",
		Stream:   true,
		Messages: []message.Message{{Role: message.RoleUser, Content: "hi", HasContent: true}},
	}
	req.Normalize()

	_, stream, err := e.Chat(context.Background(), req)
	require.NoError(t, err)
	defer stream.Close(context.Background())

	chunks := drainStream(t, stream)
	require.Len(t, chunks, 1)
	assert.Nil(t, chunks[0].Delta.Content)
	assert.Equal(t, message.FinishLength, chunks[0].FinishReason)
}

func TestStream_IncludeUsage_AppendsUsageChunk(t *testing.T) {
	h := backendtest.NewMock()
	h.TokensIn = 7
	h.TokensOut = 3
	h.Steps = []backendtest.Step{
		{Output: []byte("hi"), Result: backend.ComputeResult{Kind: backend.StepOK}},
	}

	e := newTestEngine("demo", h, prompt.ChatML)
	req := message.ChatRequest{
		Model:         "demo",
		Stream:        true,
		StreamOptions: message.StreamOptions{IncludeUsage: true},
		Messages:      []message.Message{{Role: message.RoleUser, Content: "hi", HasContent: true}},
	}
	req.Normalize()

	_, stream, err := e.Chat(context.Background(), req)
	require.NoError(t, err)
	defer stream.Close(context.Background())

	chunks := drainStream(t, stream)
	require.Len(t, chunks, 2)
	last := chunks[len(chunks)-1]
	assert.False(t, last.HasChoice)
	require.NotNil(t, last.Usage)
	assert.Equal(t, int64(7), last.Usage.PromptTokens)
	assert.Equal(t, int64(3), last.Usage.CompletionTokens)
}

func TestStream_ToolUsePlayback_BypassesComputeSingle(t *testing.T) {
	h := backendtest.NewMock()
	h.Output = []byte("<tool_call>\n{\"name\": \"get_weather\", \"arguments\": {\"location\": \"Rome\"}}\n</tool_call>")
	h.ComputeResult = backend.ComputeResult{Kind: backend.EndOfSequence}

	e := newTestEngine("demo", h, prompt.ChatMLTool)
	req := message.ChatRequest{
		Model:    "demo",
		Stream:   true,
		Messages: []message.Message{{Role: message.RoleUser, Content: "weather", HasContent: true}},
		Tools:    []message.Tool{{Name: "get_weather", Description: "looks up weather"}},
	}
	req.Normalize()

	_, stream, err := e.Chat(context.Background(), req)
	require.NoError(t, err)
	defer stream.Close(context.Background())

	chunks := drainStream(t, stream)
	require.Len(t, chunks, 1)
	require.Len(t, chunks[0].Delta.ToolCalls, 1)
	assert.Equal(t, "get_weather", chunks[0].Delta.ToolCalls[0].Name)
	assert.Equal(t, message.FinishToolCalls, chunks[0].FinishReason)
}

func TestStream_Close_CallsFinishSingleOnceAndRestores(t *testing.T) {
	h := backendtest.NewMock()
	h.Steps = []backendtest.Step{
		{Output: []byte("hi"), Result: backend.ComputeResult{Kind: backend.EndOfSequence}},
	}

	e := newTestEngine("demo", h, prompt.ChatML)
	req := message.ChatRequest{
		Model:    "demo",
		Stream:   true,
		Messages: []message.Message{{Role: message.RoleUser, Content: "hi", HasContent: true}},
	}
	req.Normalize()

	_, stream, err := e.Chat(context.Background(), req)
	require.NoError(t, err)

	stream.Close(context.Background())
	stream.Close(context.Background())
	assert.Equal(t, 1, h.FinishCalled)
	assert.Contains(t, string(h.LastMetadata), `"n_predict":-1`)
}
