// Package prompt implements the Prompt Template Registry (spec.md §4.2):
// a closed set of named per-model prompt formatters, each a flat
// (messages, tools?) -> prompt string mapping with its own delimiter
// vocabulary, system-prompt defaulting, and end-of-turn markers. It is
// modeled as spec.md §9 prescribes: a small interface plus a registry of
// named implementations, rather than the reference's large per-variant sum
// type — "a trait with one method build(messages, tools) -> Result<String>
// plus associated data describing the template's capability flags".
package prompt

import (
	"encoding/json"
	"strings"

	"github.com/wasmchat/edgechat/internal/chaterrors"
	"github.com/wasmchat/edgechat/internal/message"
)

// Kind is the closed enumeration of named prompt dialects from spec.md §3.
type Kind string

const (
	Llama2Chat       Kind = "llama-2-chat"
	Llama3Chat       Kind = "llama-3-chat"
	Llama3Tool       Kind = "llama-3-tool"
	ChatML           Kind = "chatml"
	ChatMLTool       Kind = "chatml-tool"
	MistralInstruct  Kind = "mistral-instruct"
	MistralLite      Kind = "mistral-lite"
	MistralTool      Kind = "mistral-tool"
	MistralSmallChat Kind = "mistral-small-chat"
	MistralSmallTool Kind = "mistral-small-tool"
	GroqLlama3Tool   Kind = "groq-llama-3-tool"
	InternLM2Tool    Kind = "internlm-2-tool"
	NemotronChat     Kind = "nemotron-chat"
	NemotronTool     Kind = "nemotron-tool"
	FunctionaryV31   Kind = "functionary-31"
	FunctionaryV32   Kind = "functionary-32"
	DeepseekChat     Kind = "deepseek-chat"
	DeepseekCoder    Kind = "deepseek-coder"
	Phi2Chat         Kind = "phi-2-chat"
	Phi3Chat         Kind = "phi-3-chat"
	Phi4Chat         Kind = "phi-4-chat"
	GemmaInstruct    Kind = "gemma-instruct"
	Zephyr           Kind = "zephyr"
	StableLMZephyr   Kind = "stablelm-zephyr"
	VicunaChat       Kind = "vicuna-chat"
	Vicuna11Chat     Kind = "vicuna-1.1-chat"
	VicunaLlava      Kind = "vicuna-llava"
	Baichuan2        Kind = "baichuan-2"
	HumanAssistant   Kind = "human-assistant"
	OpenChat         Kind = "openchat"
	SolarInstruct    Kind = "solar-instruct"
	WizardCoder      Kind = "wizard-coder"
	MoxinChat        Kind = "moxin-chat"
	Falcon3          Kind = "falcon-3"
	Megrez           Kind = "megrez"
	Qwen2vl          Kind = "qwen-2-vl"
	MiniCPMV         Kind = "minicpm-v"
	ExaoneDeep       Kind = "exaone-deep"
	Exaone           Kind = "exaone"
	BreezeInstruct   Kind = "breeze-instruct"
	CodeLlama        Kind = "codellama-instruct"
	CodeLlamaSuper   Kind = "codellama-super-instruct"
	IntelNeural      Kind = "intel-neural"
)

// Capabilities describes what a template can and cannot do, per spec.md
// §3's "each kind carries three capabilities" (build is the interface
// method; the third, post-process, lives on Template too).
type Capabilities struct {
	SupportsImages bool
	// ImageURLOnly, when SupportsImages is true, means base64-inlined
	// images are rejected (spec.md §4.2: "rejected with
	// Operation(\"base64 image is not supported\") when only URL inputs
	// are allowed").
	ImageURLOnly bool
	// IsToolVariant marks the tool-capable templates (the kinds whose name
	// ends in "Tool", plus FunctionaryV31 and FunctionaryV32): when
	// tool_choice resolves to None, these must still be invoked with an
	// explicitly empty tools list to force the non-tool prompt shape
	// (spec.md §4.2).
	IsToolVariant bool
}

// BuildInput is everything a Template.Build needs.
type BuildInput struct {
	Messages []message.Message
	// Tools is the resolved tool list for this request (already filtered
	// by tool_choice via message.ResolvedTools); nil/empty means "build
	// the plain, non-tool prompt shape".
	Tools []message.Tool
}

// BuildOutput is a built prompt plus any side effects the builder reports
// back to the caller (the governor, which returns ImageURL in its result;
// no caller passes it on to the metadata reconciler).
type BuildOutput struct {
	Prompt string
	// ImageURL is set to the last image URL a vision template replaced
	// with an image sentinel. It is not written into session metadata.
	ImageURL string
}

// Template is the per-dialect prompt builder.
type Template interface {
	Capabilities() Capabilities
	Build(in BuildInput) (BuildOutput, error)
	// PostProcess implements spec.md §4.9: strip this template's
	// end-of-turn markers from a raw generation.
	PostProcess(raw string) string
}

// Registry maps Kind to Template.
type Registry struct {
	templates map[Kind]Template
}

// NewRegistry builds the full closed registry described in spec.md §3.
func NewRegistry() *Registry {
	r := &Registry{templates: make(map[Kind]Template)}
	registerGeneric(r)
	registerChatML(r)
	registerLlama3(r)
	registerMistral(r)
	registerGroqLlama3(r)
	registerInternLM2(r)
	registerNemotron(r)
	registerFunctionary(r)
	registerDeepseek(r)
	registerExaone(r)
	return r
}

func (r *Registry) register(k Kind, t Template) {
	r.templates[k] = t
}

// Lookup resolves a Kind to its Template, or UnknownTemplateError.
func (r *Registry) Lookup(k Kind) (Template, error) {
	t, ok := r.templates[k]
	if !ok {
		return nil, &chaterrors.UnknownTemplateError{Name: string(k)}
	}
	return t, nil
}

// Build resolves kind and builds the prompt, applying spec.md §4.2's
// tool_choice=None -> explicitly-empty-tools rule.
func (r *Registry) Build(k Kind, messages []message.Message, tools []message.Tool, choice message.ToolChoice) (BuildOutput, error) {
	t, err := r.Lookup(k)
	if err != nil {
		return BuildOutput{}, err
	}
	resolved := message.ResolvedTools(tools, choice)
	return t.Build(BuildInput{Messages: messages, Tools: resolved})
}

// --- shared helpers used by every bespoke builder ---

func firstSystemText(messages []message.Message) (text string, hasSystem bool) {
	if len(messages) == 0 {
		return "", false
	}
	if messages[0].Role != message.RoleSystem {
		return "", false
	}
	return messages[0].Content, true
}

func requireNonEmpty(messages []message.Message) error {
	if len(messages) == 0 {
		return &chaterrors.NoMessagesError{}
	}
	return nil
}

// assistantContentOrErr implements the "content is optional iff tool_calls
// is non-empty" invariant from spec.md §3.
func assistantContentOrErr(m message.Message) (string, error) {
	if m.HasContent {
		return m.Content, nil
	}
	if len(m.ToolCalls) > 0 {
		return "", nil
	}
	return "", &chaterrors.NoAssistantMessageError{}
}

// linearizeUser renders a user message's text, enforcing the template's
// image capability, and reports an image URL to bubble up to metadata.
func linearizeUser(m message.Message, caps Capabilities, imageSentinel string) (string, string, error) {
	if !m.HasImages() {
		return m.PlainText(imageSentinel), "", nil
	}
	if !caps.SupportsImages {
		return "", "", chaterrors.Operation("Base64 image is not supported yet.", nil)
	}
	var imageURL string
	var b strings.Builder
	first := true
	for _, p := range m.Parts {
		if p.Kind == message.ContentPartText {
			if !first {
				b.WriteString("\n")
			}
			b.WriteString(p.Text)
			first = false
			continue
		}
		// image part
		if p.ImageB64 != "" && caps.ImageURLOnly {
			return "", "", chaterrors.Operation("base64 image is not supported", nil)
		}
		if !first {
			b.WriteString("\n")
		}
		b.WriteString(imageSentinel)
		first = false
		if p.ImageURL != "" {
			imageURL = p.ImageURL
		}
	}
	return b.String(), imageURL, nil
}

// toolsJSON renders tools as a compact JSON array of {"type":"function",
// "function":{"name","description","parameters"}} objects, the shape ChatML/ChatMLTool dumps inside its
// <tools> block and Llama3Tool-family templates describe in their system
// preamble.
func toolsJSON(tools []message.Tool) string {
	type toolDoc struct {
		Type     string `json:"type"`
		Function struct {
			Name        string          `json:"name"`
			Description string          `json:"description,omitempty"`
			Parameters  json.RawMessage `json:"parameters,omitempty"`
		} `json:"function"`
	}
	docs := make([]toolDoc, len(tools))
	for i, t := range tools {
		docs[i].Type = "function"
		docs[i].Function.Name = t.Name
		docs[i].Function.Description = t.Description
		docs[i].Function.Parameters = t.Parameters
	}
	b, _ := json.Marshal(docs)
	return string(b)
}

func stripSuffixes(s string, suffixes ...string) string {
	s = strings.TrimSpace(s)
	for _, suf := range suffixes {
		s = strings.TrimSuffix(s, suf)
	}
	return strings.TrimSpace(s)
}
