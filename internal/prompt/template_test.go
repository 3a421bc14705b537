package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmchat/edgechat/internal/chaterrors"
	"github.com/wasmchat/edgechat/internal/message"
)

// allKinds is spec.md §3's full PromptTemplateKind enumeration; every
// value must resolve through the registry.
var allKinds = []Kind{
	Llama2Chat, Llama3Chat, Llama3Tool, ChatML, ChatMLTool, MistralInstruct,
	MistralLite, MistralTool, MistralSmallChat, MistralSmallTool,
	GroqLlama3Tool, InternLM2Tool, NemotronChat, NemotronTool,
	FunctionaryV31, FunctionaryV32, DeepseekChat, DeepseekCoder, Phi2Chat,
	Phi3Chat, Phi4Chat, GemmaInstruct, Zephyr, StableLMZephyr, VicunaChat,
	Vicuna11Chat, VicunaLlava, Baichuan2, HumanAssistant, OpenChat,
	SolarInstruct, WizardCoder, MoxinChat, Falcon3, Megrez, Qwen2vl,
	MiniCPMV, ExaoneDeep, Exaone, BreezeInstruct, CodeLlama, CodeLlamaSuper,
	IntelNeural,
}

func TestRegistry_EveryKindResolves(t *testing.T) {
	r := NewRegistry()
	for _, k := range allKinds {
		t.Run(string(k), func(t *testing.T) {
			tmpl, err := r.Lookup(k)
			require.NoError(t, err)
			require.NotNil(t, tmpl)
		})
	}
}

func TestRegistry_Lookup_UnknownKind(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup(Kind("not-a-real-kind"))
	require.Error(t, err)
	var unknownErr *chaterrors.UnknownTemplateError
	assert.ErrorAs(t, err, &unknownErr)
}

func TestRegistry_Build_NoMessagesIsError(t *testing.T) {
	r := NewRegistry()
	_, err := r.Build(ChatML, nil, nil, message.ToolChoice{Kind: message.ToolChoiceNone})
	require.Error(t, err)
	var noMessages *chaterrors.NoMessagesError
	assert.ErrorAs(t, err, &noMessages)
}

func TestRegistry_Build_SimpleUserTurn(t *testing.T) {
	r := NewRegistry()
	messages := []message.Message{
		{Role: message.RoleUser, Content: "hello there", HasContent: true},
	}
	out, err := r.Build(Llama2Chat, messages, nil, message.ToolChoice{Kind: message.ToolChoiceNone})
	require.NoError(t, err)
	assert.Contains(t, out.Prompt, "hello there")
}

func TestRegistry_Build_ToolChoiceNoneForcesEmptyToolsOnToolVariant(t *testing.T) {
	r := NewRegistry()
	messages := []message.Message{
		{Role: message.RoleUser, Content: "what's the weather", HasContent: true},
	}
	tools := []message.Tool{{Name: "get_weather", Description: "looks up weather"}}
	out, err := r.Build(ChatMLTool, messages, tools, message.ToolChoice{Kind: message.ToolChoiceNone})
	require.NoError(t, err)
	assert.NotContains(t, out.Prompt, "get_weather")
}

func TestRegistry_Build_ToolsInjectedWhenChoiceAllows(t *testing.T) {
	r := NewRegistry()
	messages := []message.Message{
		{Role: message.RoleUser, Content: "what's the weather", HasContent: true},
	}
	tools := []message.Tool{{Name: "get_weather", Description: "looks up weather"}}
	out, err := r.Build(ChatMLTool, messages, tools, message.ToolChoice{Kind: message.ToolChoiceAuto})
	require.NoError(t, err)
	assert.Contains(t, out.Prompt, "get_weather")
}

func TestRegistry_Build_AssistantWithNoContentAndNoToolCallsIsError(t *testing.T) {
	r := NewRegistry()
	messages := []message.Message{
		{Role: message.RoleUser, Content: "hi", HasContent: true},
		{Role: message.RoleAssistant},
	}
	_, err := r.Build(ChatML, messages, nil, message.ToolChoice{Kind: message.ToolChoiceNone})
	require.Error(t, err)
	var noAssistant *chaterrors.NoAssistantMessageError
	assert.ErrorAs(t, err, &noAssistant)
}

func TestRegistry_Build_SystemMessagePromoted(t *testing.T) {
	r := NewRegistry()
	messages := []message.Message{
		{Role: message.RoleSystem, Content: "You are terse.", HasContent: true},
		{Role: message.RoleUser, Content: "hi", HasContent: true},
	}
	out, err := r.Build(Llama2Chat, messages, nil, message.ToolChoice{Kind: message.ToolChoiceNone})
	require.NoError(t, err)
	assert.Contains(t, out.Prompt, "You are terse.")
}

func TestLinearizeUser_RejectsBase64WhenURLOnly(t *testing.T) {
	m := message.Message{
		Role: message.RoleUser,
		Parts: []message.ContentPart{
			{Kind: message.ContentPartImage, ImageB64: "aGVsbG8="},
		},
	}
	_, _, err := linearizeUser(m, Capabilities{SupportsImages: true, ImageURLOnly: true}, "<image>")
	require.Error(t, err)
}

func TestLinearizeUser_RejectsImagesWhenUnsupported(t *testing.T) {
	m := message.Message{
		Role: message.RoleUser,
		Parts: []message.ContentPart{
			{Kind: message.ContentPartImage, ImageURL: "https://example.com/cat.png"},
		},
	}
	_, _, err := linearizeUser(m, Capabilities{SupportsImages: false}, "<image>")
	require.Error(t, err)
}

func TestToolsJSON_RendersNameAndDescription(t *testing.T) {
	out := toolsJSON([]message.Tool{{Name: "ping", Description: "pings something"}})
	assert.Contains(t, out, `"name":"ping"`)
	assert.Contains(t, out, `"description":"pings something"`)
}

func TestPostProcess_Qwen2vl(t *testing.T) {
	r := NewRegistry()
	tmpl, err := r.Lookup(Qwen2vl)
	require.NoError(t, err)

	assert.Equal(t, "Boston, MA", tmpl.PostProcess(": Boston, MA<|im_end|>"))
	assert.Equal(t, "Boston, MA", tmpl.PostProcess("Boston, MA<|im_end|>"))
	assert.Equal(t, "Boston, MA", tmpl.PostProcess("Boston, MA"))
}

func TestPostProcess_SolarInstruct(t *testing.T) {
	r := NewRegistry()
	tmpl, err := r.Lookup(SolarInstruct)
	require.NoError(t, err)

	assert.Equal(t, "Answer: it's sunny", tmpl.PostProcess("### Answer:\nit's sunny"))
	assert.Equal(t, "no marker here", tmpl.PostProcess("no marker here"))
}

func TestPostProcess_Baichuan2(t *testing.T) {
	r := NewRegistry()
	tmpl, err := r.Lookup(Baichuan2)
	require.NoError(t, err)

	assert.Equal(t, "hello", tmpl.PostProcess("hello:"))
	assert.Equal(t, "hello", tmpl.PostProcess("hello"))
}
