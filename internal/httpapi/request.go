// Package httpapi is a minimal net/http demonstration of the chat
// completion engine (spec.md §1 places the HTTP framing layer itself out
// of scope). It decodes an OpenAI-shaped request body into
// message.ChatRequest, dispatches through chatengine.Engine, and encodes
// the result back out — either a single JSON body or an SSE stream using
// the same data: framing the teacher's httpSSEWriter writes.
package httpapi

import (
	"encoding/json"
	"fmt"

	"github.com/wasmchat/edgechat/internal/message"
)

// wireRequest mirrors the subset of the chat.completions request body the
// engine understands. Fields the wire format allows but the engine has no
// use for (logit_bias, seed, response_format, ...) are simply not decoded.
type wireRequest struct {
	Model               string          `json:"model"`
	Messages            []wireMessage   `json:"messages"`
	Tools               []wireTool      `json:"tools,omitempty"`
	ToolChoice          json.RawMessage `json:"tool_choice,omitempty"`
	Stream              bool            `json:"stream,omitempty"`
	StreamOptions       *wireStreamOpts `json:"stream_options,omitempty"`
	Temperature         *float64        `json:"temperature,omitempty"`
	TopP                *float64        `json:"top_p,omitempty"`
	FrequencyPenalty    *float64        `json:"frequency_penalty,omitempty"`
	PresencePenalty     *float64        `json:"presence_penalty,omitempty"`
	MaxCompletionTokens *int64          `json:"max_completion_tokens,omitempty"`
	N                   *int            `json:"n,omitempty"`
	User                string          `json:"user,omitempty"`
}

type wireStreamOpts struct {
	IncludeUsage bool `json:"include_usage"`
}

type wireMessage struct {
	Role       string          `json:"role"`
	Name       string          `json:"name,omitempty"`
	Content    json.RawMessage `json:"content,omitempty"`
	ToolCalls  []wireToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

type wireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description,omitempty"`
		Parameters  json.RawMessage `json:"parameters,omitempty"`
		Strict      bool            `json:"strict,omitempty"`
	} `json:"function"`
}

// decodeRequest converts the wire JSON body into the engine's internal
// request shape. It does not call Normalize; callers must do so.
func decodeRequest(body []byte) (message.ChatRequest, error) {
	var w wireRequest
	if err := json.Unmarshal(body, &w); err != nil {
		return message.ChatRequest{}, fmt.Errorf("decode request body: %w", err)
	}

	messages := make([]message.Message, len(w.Messages))
	for i, wm := range w.Messages {
		m, err := decodeMessage(wm)
		if err != nil {
			return message.ChatRequest{}, fmt.Errorf("message %d: %w", i, err)
		}
		messages[i] = m
	}

	tools := make([]message.Tool, len(w.Tools))
	for i, wt := range w.Tools {
		tools[i] = message.Tool{
			Name:        wt.Function.Name,
			Description: wt.Function.Description,
			Parameters:  wt.Function.Parameters,
			Strict:      wt.Function.Strict,
		}
	}

	choice, wasSpecified, err := decodeToolChoice(w.ToolChoice)
	if err != nil {
		return message.ChatRequest{}, err
	}

	n := 1
	if w.N != nil {
		n = *w.N
	}

	return message.ChatRequest{
		Model:    w.Model,
		Messages: messages,
		Sampling: message.Sampling{
			Temperature:      w.Temperature,
			TopP:             w.TopP,
			FrequencyPenalty: w.FrequencyPenalty,
			PresencePenalty:  w.PresencePenalty,
		},
		MaxCompletionTokens: w.MaxCompletionTokens,
		N:                   n,
		Stream:              w.Stream,
		StreamOptions:       message.StreamOptions{IncludeUsage: w.StreamOptions != nil && w.StreamOptions.IncludeUsage},
		Tools:               tools,
		ToolChoice:          choice,
		ToolChoiceWasSpecified: wasSpecified,
		User:                w.User,
	}, nil
}

func decodeMessage(wm wireMessage) (message.Message, error) {
	m := message.Message{
		Role:       message.Role(wm.Role),
		Name:       wm.Name,
		ToolCallID: wm.ToolCallID,
	}
	for _, wtc := range wm.ToolCalls {
		m.ToolCalls = append(m.ToolCalls, message.ToolCall{
			ID:        wtc.ID,
			Name:      wtc.Function.Name,
			Arguments: wtc.Function.Arguments,
		})
	}

	if len(wm.Content) == 0 {
		return m, nil
	}

	var asString string
	if err := json.Unmarshal(wm.Content, &asString); err == nil {
		m.Content = asString
		m.HasContent = true
		return m, nil
	}

	var parts []wireContentPart
	if err := json.Unmarshal(wm.Content, &parts); err != nil {
		return message.Message{}, fmt.Errorf("content must be a string or an array of parts: %w", err)
	}
	m.Parts = make([]message.ContentPart, len(parts))
	for i, p := range parts {
		switch p.Type {
		case "image_url":
			if p.ImageURL == nil {
				return message.Message{}, fmt.Errorf("content part %d: image_url type missing image_url object", i)
			}
			m.Parts[i] = message.ContentPart{Kind: message.ContentPartImage, ImageURL: p.ImageURL.URL}
		default:
			m.Parts[i] = message.ContentPart{Kind: message.ContentPartText, Text: p.Text}
		}
	}
	return m, nil
}

// decodeToolChoice accepts either the bare string form ("none"/"auto"/
// "required") or the object form naming a specific function. A nil/empty
// field reports wasSpecified == false so ChatRequest.Normalize applies the
// spec.md §3 default.
func decodeToolChoice(raw json.RawMessage) (message.ToolChoice, bool, error) {
	if len(raw) == 0 {
		return message.ToolChoice{}, false, nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		switch asString {
		case "none":
			return message.ToolChoice{Kind: message.ToolChoiceNone}, true, nil
		case "required":
			return message.ToolChoice{Kind: message.ToolChoiceRequired}, true, nil
		case "auto":
			return message.ToolChoice{Kind: message.ToolChoiceAuto}, true, nil
		default:
			return message.ToolChoice{}, false, fmt.Errorf("unrecognized tool_choice %q", asString)
		}
	}

	var asObject struct {
		Type     string `json:"type"`
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(raw, &asObject); err != nil {
		return message.ToolChoice{}, false, fmt.Errorf("decode tool_choice: %w", err)
	}
	return message.ToolChoice{Kind: message.ToolChoiceSpecific, FunctionName: asObject.Function.Name}, true, nil
}
