package toolcall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmchat/edgechat/internal/ids"
	"github.com/wasmchat/edgechat/internal/prompt"
)

func legacyGen() *ids.Generator {
	return ids.NewGenerator(ids.ToolCallIDLegacyPlaceholder, nil)
}

func TestRegistry_Extract_UnknownKindReturnsRawAsContent(t *testing.T) {
	r := NewRegistry()
	res, err := r.Extract(prompt.Llama2Chat, "plain text, nothing to see here", legacyGen())
	require.NoError(t, err)
	require.NotNil(t, res.Content)
	assert.Equal(t, "plain text, nothing to see here", *res.Content)
	assert.Empty(t, res.ToolCalls)
}

func TestMistralToolExtractor_JSONArray(t *testing.T) {
	r := NewRegistry()
	raw := `[{"name": "get_weather", "arguments": {"location": "Paris"}}]`
	res, err := r.Extract(prompt.MistralTool, raw, legacyGen())
	require.NoError(t, err)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "get_weather", res.ToolCalls[0].Name)
	assert.JSONEq(t, `{"location":"Paris"}`, res.ToolCalls[0].Arguments)
	// MistralTool has no separate content accumulator: content echoes raw.
	require.NotNil(t, res.Content)
	assert.Equal(t, raw, *res.Content)
}

func TestMistralSmallToolExtractor(t *testing.T) {
	testCases := []struct {
		name         string
		raw          string
		wantContent  *string
		wantFuncName string
	}{
		{
			name:         "WrappedFunctionShape",
			raw:          `I'll check that. [TOOL_CALLS][{"function": {"name": "get_weather", "arguments": {"location": "Paris"}}}]`,
			wantContent:  strPtr("I'll check that."),
			wantFuncName: "get_weather",
		},
		{
			name:         "FlatShape",
			raw:          `[TOOL_CALLS][{"name": "get_weather", "arguments": {"location": "Paris"}}]`,
			wantContent:  nil,
			wantFuncName: "get_weather",
		},
	}
	r := NewRegistry()
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := r.Extract(prompt.MistralSmallTool, tc.raw, legacyGen())
			require.NoError(t, err)
			require.Len(t, res.ToolCalls, 1)
			assert.Equal(t, tc.wantFuncName, res.ToolCalls[0].Name)
			if tc.wantContent == nil {
				assert.Nil(t, res.Content)
			} else {
				require.NotNil(t, res.Content)
				assert.Equal(t, *tc.wantContent, *res.Content)
			}
		})
	}
}

func TestTagExtractor_ChatMLTool(t *testing.T) {
	r := NewRegistry()
	raw := "Let me look that up.\n<tool_call>\n{\"name\": \"get_weather\", \"arguments\": {\"location\": \"Tokyo\"}}\n</tool_call>"
	res, err := r.Extract(prompt.ChatMLTool, raw, legacyGen())
	require.NoError(t, err)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "get_weather", res.ToolCalls[0].Name)
	require.NotNil(t, res.Content)
	assert.Equal(t, "Let me look that up.", *res.Content)
}

func TestTagExtractor_NoMatchIsNotAnError(t *testing.T) {
	r := NewRegistry()
	res, err := r.Extract(prompt.NemotronTool, "just a regular reply with no tool call", legacyGen())
	require.NoError(t, err)
	assert.Empty(t, res.ToolCalls)
	require.NotNil(t, res.Content)
	assert.Equal(t, "just a regular reply with no tool call", *res.Content)
}

func TestTagExtractor_PureToolCallHasNilContent(t *testing.T) {
	r := NewRegistry()
	raw := "<tool_call>\n{\"name\": \"ping\", \"arguments\": {}}\n</tool_call>"
	res, err := r.Extract(prompt.GroqLlama3Tool, raw, legacyGen())
	require.NoError(t, err)
	require.Len(t, res.ToolCalls, 1)
	assert.Nil(t, res.Content)
}

func TestBareObjectExtractor_Llama3Tool(t *testing.T) {
	r := NewRegistry()
	raw := `{"name": "get_weather", "parameters": {"location": "Berlin"}}`
	res, err := r.Extract(prompt.Llama3Tool, raw, legacyGen())
	require.NoError(t, err)
	require.Len(t, res.ToolCalls, 1)
	assert.JSONEq(t, `{"location":"Berlin"}`, res.ToolCalls[0].Arguments)
}

func TestBareObjectExtractor_NonJSONFallsBackToContent(t *testing.T) {
	r := NewRegistry()
	raw := "{this is not json}"
	res, err := r.Extract(prompt.Llama3Tool, raw, legacyGen())
	require.NoError(t, err)
	assert.Empty(t, res.ToolCalls)
	require.NotNil(t, res.Content)
	assert.Equal(t, raw, *res.Content)
}

func TestInternLM2Extractor_InterleavedContentAndCall(t *testing.T) {
	r := NewRegistry()
	raw := "Sure, checking now.<|action_start|><|plugin|>\n{\"name\": \"search\", \"arguments\": {\"q\": \"go\"}}\n<|action_end|>"
	res, err := r.Extract(prompt.InternLM2Tool, raw, legacyGen())
	require.NoError(t, err)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "search", res.ToolCalls[0].Name)
	require.NotNil(t, res.Content)
	assert.Equal(t, "Sure, checking now.", *res.Content)
}

func TestFunctionaryV32Extractor(t *testing.T) {
	r := NewRegistry()
	raw := ">>>get_weather\n{\"location\": \"Rome\"}<|eot_id|>"
	res, err := r.Extract(prompt.FunctionaryV32, raw, legacyGen())
	require.NoError(t, err)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "get_weather", res.ToolCalls[0].Name)
}

func TestFunctionaryV31Extractor(t *testing.T) {
	r := NewRegistry()
	raw := `<function=get_weather>{"location": "Rome"}</function>`
	res, err := r.Extract(prompt.FunctionaryV31, raw, legacyGen())
	require.NoError(t, err)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "get_weather", res.ToolCalls[0].Name)
}

func TestLegacyPlaceholderIDMode(t *testing.T) {
	r := NewRegistry()
	raw := `{"name": "ping", "arguments": {}}`
	res, err := r.Extract(prompt.Llama3Tool, raw, legacyGen())
	require.NoError(t, err)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, ids.LegacyPlaceholderToolCallID, res.ToolCalls[0].ID)
}
