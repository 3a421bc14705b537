// Package message defines the wire-facing data model for the chat
// completion engine: the message/request shapes a caller sends, and the
// response/chunk shapes the engine emits. Request and response bodies are
// OpenAI-shaped JSON, so where the official SDK's param/object types
// already match the wire format this package reuses them directly — the
// same choice the teacher (juburr-openai-tool-adapter) makes when it
// manipulates openai.ChatCompletionNewParams and openai.ChatCompletionChunk
// in place rather than hand-rolling parallel structs.
package message

import (
	"encoding/json"

	"github.com/openai/openai-go/v2"
)

// Role is a message's role tag.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentPartKind distinguishes the two kinds of user content part.
type ContentPartKind int

const (
	ContentPartText ContentPartKind = iota
	ContentPartImage
)

// ContentPart is one element of a multi-part user message. Exactly one of
// Text or ImageURL is meaningful, selected by Kind.
type ContentPart struct {
	Kind     ContentPartKind
	Text     string
	ImageURL string // URL form
	ImageB64 string // data-URI / base64 form, when the caller inlined image bytes
}

// Message is the tagged variant described in spec.md §3: System, User,
// Assistant, or Tool, with the fields each role actually carries.
type Message struct {
	Role Role
	Name string

	// System/Assistant plain-text content, or User content when it has no
	// parts. Empty + HasContent==false distinguishes "no content" (legal
	// only for Assistant with ToolCalls) from "empty string content".
	Content    string
	HasContent bool

	// Parts holds a User message's multi-part content (text + images).
	// When non-nil, Content/HasContent are ignored for User messages.
	Parts []ContentPart

	// Assistant-only.
	ToolCalls []ToolCall

	// Tool-only: the id of the call this message answers.
	ToolCallID string
}

// PlainText returns the message's content as a flat string: Content as-is
// for System/Assistant/Tool, or Parts linearized (text parts joined by
// newlines, images replaced by placeholder) for User messages with parts.
func (m Message) PlainText(imagePlaceholder string) string {
	if m.Parts == nil {
		return m.Content
	}
	var out []byte
	for i, p := range m.Parts {
		if i > 0 {
			out = append(out, '\n')
		}
		switch p.Kind {
		case ContentPartText:
			out = append(out, p.Text...)
		case ContentPartImage:
			out = append(out, imagePlaceholder...)
		}
	}
	return string(out)
}

// HasImages reports whether a User message's Parts contain at least one
// image part.
func (m Message) HasImages() bool {
	for _, p := range m.Parts {
		if p.Kind == ContentPartImage {
			return true
		}
	}
	return false
}

// ToolCall is a structured function invocation, either recovered from a
// model's generated text (internal/toolcall) or carried on a request
// (openai.ChatCompletionMessageToolCallUnion already covers the latter at
// the HTTP boundary).
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON-encoded arguments
}

// Tool describes one callable function the caller offered, mirroring
// openai.ChatCompletionFunctionToolParam's shape closely enough to build
// prompts from without importing the full param union at this layer.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage // JSON schema, or nil
	Strict      bool
}

// ToolChoiceKind is the closed tool_choice enumeration from spec.md §3.
type ToolChoiceKind int

const (
	ToolChoiceNone ToolChoiceKind = iota
	ToolChoiceAuto
	ToolChoiceRequired
	ToolChoiceSpecific
)

// ToolChoice resolves a request's tool_choice field.
type ToolChoice struct {
	Kind         ToolChoiceKind
	FunctionName string // meaningful only when Kind == ToolChoiceSpecific
}

// DefaultToolChoice returns the spec.md §3 default: None when no tools are
// offered, Auto otherwise.
func DefaultToolChoice(hasTools bool) ToolChoice {
	if hasTools {
		return ToolChoice{Kind: ToolChoiceAuto}
	}
	return ToolChoice{Kind: ToolChoiceNone}
}

// ResolvedTools returns the tool list that should actually be handed to the
// prompt template for this choice: an empty, non-nil slice when
// tool_choice resolves to None
// (including when the caller supplied tools but chose not to use them —
// spec.md §4.2's "explicitly empty tools list" rule), the single named tool
// when Specific, or the full list otherwise.
func ResolvedTools(tools []Tool, choice ToolChoice) []Tool {
	switch choice.Kind {
	case ToolChoiceNone:
		return []Tool{}
	case ToolChoiceSpecific:
		for _, t := range tools {
			if t.Name == choice.FunctionName {
				return []Tool{t}
			}
		}
		return []Tool{}
	default:
		return tools
	}
}

// StreamOptions mirrors spec.md §3's stream_options.
type StreamOptions struct {
	IncludeUsage bool
}

// Sampling mirrors spec.md §3's optional sampling knobs plus SPEC_FULL.md's
// ChatCompletionRequestSampling supplement: temperature and top_p are each
// independently optional, matching the original's "either, not always
// both" builder duality.
type Sampling struct {
	Temperature      *float64
	TopP             *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64
}

// ChatRequest is the engine-internal, decoded form of an incoming chat
// completion request.
type ChatRequest struct {
	Model                 string
	Messages              []Message
	Sampling              Sampling
	MaxCompletionTokens    *int64 // nil => backend default; spec.md default is -1
	N                      int
	Stream                 bool
	StreamOptions          StreamOptions
	Tools                  []Tool
	ToolChoice             ToolChoice
	ToolChoiceWasSpecified bool
	User                   string
}

// Normalize fills in the spec.md §6 defaults for fields the caller omitted.
func (r *ChatRequest) Normalize() {
	if r.N == 0 {
		r.N = 1
	}
	if !r.ToolChoiceWasSpecified {
		r.ToolChoice = DefaultToolChoice(len(r.Tools) > 0)
	}
}

// FinishReason is the closed set of completion finish reasons.
type FinishReason string

const (
	FinishStop         FinishReason = "stop"
	FinishLength       FinishReason = "length"
	FinishToolCalls    FinishReason = "tool_calls"
	FinishFunctionCall FinishReason = "function_call"
)

// Usage mirrors openai.CompletionUsage's three counters.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// Choice is one assembled non-streaming response choice.
type Choice struct {
	Index        int64
	Role         Role
	Content      *string
	ToolCalls    []ToolCall
	FinishReason FinishReason
}

// ChatCompletionObject is the non-streaming response shape from spec.md §6.
type ChatCompletionObject struct {
	ID      string
	Object  string // "chat.completion"
	Created int64
	Model   string
	Choices []Choice
	Usage   Usage
}

// ToSDK renders the engine-internal object into the official SDK's wire
// type, so HTTP handlers only ever json.Marshal an *openai.ChatCompletion.
func (c ChatCompletionObject) ToSDK() openai.ChatCompletion {
	out := openai.ChatCompletion{
		ID:      c.ID,
		Object:  "chat.completion",
		Created: c.Created,
		Model:   c.Model,
		Usage: openai.CompletionUsage{
			PromptTokens:     c.Usage.PromptTokens,
			CompletionTokens: c.Usage.CompletionTokens,
			TotalTokens:      c.Usage.TotalTokens,
		},
	}
	out.Choices = make([]openai.ChatCompletionChoice, len(c.Choices))
	for i, ch := range c.Choices {
		sdkChoice := openai.ChatCompletionChoice{
			Index:        ch.Index,
			FinishReason: string(ch.FinishReason),
		}
		sdkChoice.Message.Role = "assistant"
		if ch.Content != nil {
			sdkChoice.Message.Content = *ch.Content
		}
		if len(ch.ToolCalls) > 0 {
			sdkChoice.Message.ToolCalls = make([]openai.ChatCompletionMessageToolCallUnion, len(ch.ToolCalls))
			for j, tc := range ch.ToolCalls {
				sdkChoice.Message.ToolCalls[j] = openai.ChatCompletionMessageToolCallUnion{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageFunctionToolCallFunction{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				}
			}
		}
		out.Choices[i] = sdkChoice
	}
	return out
}
