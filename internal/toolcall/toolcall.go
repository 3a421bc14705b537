// Package toolcall implements the Tool-Call Extractor (spec.md §4.3):
// per-template parsers that recover structured function calls from a
// model's free-form generation, mirroring the teacher's parser.go JSON
// state-machine extractor generalized across the tool-capable template
// family instead of one fixed syntax.
package toolcall

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/wasmchat/edgechat/internal/chaterrors"
	"github.com/wasmchat/edgechat/internal/ids"
	"github.com/wasmchat/edgechat/internal/message"
	"github.com/wasmchat/edgechat/internal/prompt"
)

// ParseResult is the outcome of extracting tool calls from one generation.
type ParseResult struct {
	Raw       string
	Content   *string
	ToolCalls []message.ToolCall
}

// Extractor recovers tool calls from one template family's raw output.
type Extractor interface {
	Extract(raw string, gen *ids.Generator) (ParseResult, error)
}

// Registry maps a prompt.Kind to its Extractor. Only tool-capable kinds are
// registered; callers that reach a kind not registered here should treat
// content as the whole raw string (no tool-call syntax to parse).
type Registry struct {
	extractors map[prompt.Kind]Extractor
}

// NewRegistry builds the full set of tool-call extractors from spec.md §4.3.
func NewRegistry() *Registry {
	r := &Registry{extractors: make(map[prompt.Kind]Extractor)}
	r.extractors[prompt.MistralTool] = jsonArrayExtractor{}
	r.extractors[prompt.MistralSmallTool] = mistralSmallExtractor{}
	r.extractors[prompt.ChatMLTool] = tagExtractor{open: "<tool_call>", close: "</tool_call>"}
	r.extractors[prompt.GroqLlama3Tool] = tagExtractor{open: "<tool_call>", close: "</tool_call>"}
	r.extractors[prompt.NemotronTool] = tagExtractor{open: "<toolcall>", close: "</toolcall>"}
	r.extractors[prompt.Llama3Tool] = bareObjectExtractor{}
	r.extractors[prompt.InternLM2Tool] = internLM2Extractor{}
	r.extractors[prompt.FunctionaryV32] = functionaryV32Extractor{}
	r.extractors[prompt.FunctionaryV31] = functionaryV31Extractor{}
	return r
}

// Extract dispatches to kind's Extractor, or treats raw as plain content
// when the kind has no tool-call syntax (every non-tool template).
func (r *Registry) Extract(kind prompt.Kind, raw string, gen *ids.Generator) (ParseResult, error) {
	ex, ok := r.extractors[kind]
	if !ok {
		return ParseResult{Raw: raw, Content: strPtr(raw)}, nil
	}
	return ex.Extract(raw, gen)
}

func strPtr(s string) *string { return &s }

// fallbackContent implements spec.md §4.3's "content falls back to raw
// output when no separate content accumulator exists for this template":
// non-tag text survives as Content; if none was found and no tool call
// matched either, Content echoes the whole raw generation; if calls
// matched and no prose surrounded them, Content is nil (pure tool-call
// turn).
func fallbackContent(accumulated string, raw string, anyMatched bool) *string {
	if accumulated != "" {
		return strPtr(accumulated)
	}
	if !anyMatched {
		return strPtr(raw)
	}
	return nil
}

// toolCallJSON is the shape every extractor decodes a tool-call body into.
type toolCallJSON struct {
	Name       string          `json:"name"`
	Arguments  json.RawMessage `json:"arguments"`
	Parameters json.RawMessage `json:"parameters"`
}

func (j toolCallJSON) argsString() (string, error) {
	args := j.Arguments
	if args == nil {
		args = j.Parameters
	}
	if args == nil {
		return "{}", nil
	}
	return string(args), nil
}

func buildToolCall(j toolCallJSON, gen *ids.Generator) (message.ToolCall, error) {
	argStr, err := j.argsString()
	if err != nil {
		return message.ToolCall{}, err
	}
	return message.ToolCall{
		ID:        gen.NewToolCallID(),
		Name:      j.Name,
		Arguments: argStr,
	}, nil
}

// --- MistralTool: scan for JSON-array literals [{...}] ---

type jsonArrayExtractor struct{}

var jsonArrayPattern = regexp.MustCompile(`\[\s*\{.*?\}\s*\]`)

func (jsonArrayExtractor) Extract(raw string, gen *ids.Generator) (ParseResult, error) {
	matches := jsonArrayPattern.FindAllString(raw, -1)
	var calls []message.ToolCall
	for _, m := range matches {
		var items []toolCallJSON
		if err := json.Unmarshal([]byte(m), &items); err != nil {
			return ParseResult{}, chaterrors.Operation("Failed to deserialize generated tool calls", err)
		}
		for _, it := range items {
			tc, err := buildToolCall(it, gen)
			if err != nil {
				return ParseResult{}, chaterrors.Operation("Failed to deserialize generated tool calls", err)
			}
			calls = append(calls, tc)
		}
	}
	return ParseResult{Raw: raw, Content: strPtr(raw), ToolCalls: calls}, nil
}

// --- MistralSmallTool: "[TOOL_CALLS]" prefix + JSON array, two shapes ---

type mistralSmallExtractor struct{}

const mistralSmallPrefix = "[TOOL_CALLS]"

type mistralSmallWrapped struct {
	Function toolCallJSON `json:"function"`
}

func (mistralSmallExtractor) Extract(raw string, gen *ids.Generator) (ParseResult, error) {
	idx := strings.Index(raw, mistralSmallPrefix)
	if idx < 0 {
		return ParseResult{Raw: raw, Content: strPtr(raw)}, nil
	}
	rest := strings.TrimSpace(raw[idx+len(mistralSmallPrefix):])
	m := jsonArrayPattern.FindString(rest)
	if m == "" {
		return ParseResult{Raw: raw, Content: strPtr(raw)}, nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal([]byte(m), &raws); err != nil {
		return ParseResult{}, chaterrors.Operation("Failed to deserialize generated tool calls", err)
	}
	var calls []message.ToolCall
	for _, r := range raws {
		var wrapped mistralSmallWrapped
		var flat toolCallJSON
		if err := json.Unmarshal(r, &wrapped); err == nil && wrapped.Function.Name != "" {
			tc, err := buildToolCall(wrapped.Function, gen)
			if err != nil {
				return ParseResult{}, chaterrors.Operation("Failed to deserialize generated tool calls", err)
			}
			calls = append(calls, tc)
			continue
		}
		if err := json.Unmarshal(r, &flat); err != nil {
			return ParseResult{}, chaterrors.Operation("Failed to deserialize generated tool calls", err)
		}
		tc, err := buildToolCall(flat, gen)
		if err != nil {
			return ParseResult{}, chaterrors.Operation("Failed to deserialize generated tool calls", err)
		}
		calls = append(calls, tc)
	}

	content := strings.TrimSpace(raw[:idx])
	var contentPtr *string
	if content != "" {
		contentPtr = strPtr(content)
	}
	return ParseResult{Raw: raw, Content: contentPtr, ToolCalls: calls}, nil
}

// --- ChatMLTool / GroqLlama3Tool / NemotronTool: tag-delimited JSON object ---

type tagExtractor struct {
	open, close string
}

func (t tagExtractor) Extract(raw string, gen *ids.Generator) (ParseResult, error) {
	var calls []message.ToolCall
	var content strings.Builder
	rest := raw
	anyMatched := false
	for {
		start := strings.Index(rest, t.open)
		if start < 0 {
			content.WriteString(rest)
			break
		}
		content.WriteString(rest[:start])
		rest = rest[start+len(t.open):]
		end := strings.Index(rest, t.close)
		if end < 0 {
			// Unterminated tag: treat the rest as content, per the
			// "absence of any match is not an error" rule.
			content.WriteString(t.open)
			content.WriteString(rest)
			break
		}
		body := strings.TrimSpace(rest[:end])
		rest = rest[end+len(t.close):]
		anyMatched = true

		var tc toolCallJSON
		if err := json.Unmarshal([]byte(body), &tc); err != nil {
			return ParseResult{}, chaterrors.Operation("Failed to deserialize generated tool calls", err)
		}
		call, err := buildToolCall(tc, gen)
		if err != nil {
			return ParseResult{}, chaterrors.Operation("Failed to deserialize generated tool calls", err)
		}
		calls = append(calls, call)
	}

	return ParseResult{Raw: raw, Content: fallbackContent(strings.TrimSpace(content.String()), raw, anyMatched), ToolCalls: calls}, nil
}

// --- Llama3Tool: bare top-level JSON object ---

type bareObjectExtractor struct{}

func (bareObjectExtractor) Extract(raw string, gen *ids.Generator) (ParseResult, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return ParseResult{Raw: raw, Content: strPtr(raw)}, nil
	}
	var tc toolCallJSON
	if err := json.Unmarshal([]byte(trimmed), &tc); err != nil {
		// Not a tool call after all; it just happens to be brace-wrapped
		// text. No match is not an error.
		return ParseResult{Raw: raw, Content: strPtr(raw)}, nil
	}
	if tc.Name == "" {
		return ParseResult{Raw: raw, Content: strPtr(raw)}, nil
	}
	call, err := buildToolCall(tc, gen)
	if err != nil {
		return ParseResult{}, chaterrors.Operation("Failed to deserialize generated tool calls", err)
	}
	return ParseResult{Raw: raw, ToolCalls: []message.ToolCall{call}}, nil
}

// --- InternLM2Tool: action-sentinel split, interleaved content/calls ---

type internLM2Extractor struct{}

const internLM2ActionStart = "<|action_start|><|plugin|>"
const internLM2ActionEnd = "<|action_end|>"

func (internLM2Extractor) Extract(raw string, gen *ids.Generator) (ParseResult, error) {
	var calls []message.ToolCall
	var contentParts []string
	rest := raw
	for {
		start := strings.Index(rest, internLM2ActionStart)
		if start < 0 {
			if rest != "" {
				contentParts = append(contentParts, rest)
			}
			break
		}
		if seg := strings.TrimSpace(rest[:start]); seg != "" {
			contentParts = append(contentParts, seg)
		}
		rest = rest[start+len(internLM2ActionStart):]
		end := strings.Index(rest, internLM2ActionEnd)
		if end < 0 {
			contentParts = append(contentParts, internLM2ActionStart+rest)
			break
		}
		body := strings.TrimSpace(rest[:end])
		rest = rest[end+len(internLM2ActionEnd):]

		var tc toolCallJSON
		if err := json.Unmarshal([]byte(body), &tc); err != nil {
			return ParseResult{}, chaterrors.Operation("Failed to deserialize generated tool calls", err)
		}
		call, err := buildToolCall(tc, gen)
		if err != nil {
			return ParseResult{}, chaterrors.Operation("Failed to deserialize generated tool calls", err)
		}
		calls = append(calls, call)
	}

	var contentPtr *string
	joined := strings.TrimSpace(strings.Join(contentParts, "\n"))
	if joined != "" {
		contentPtr = strPtr(joined)
	} else if len(calls) == 0 {
		contentPtr = strPtr(raw)
	}
	return ParseResult{Raw: raw, Content: contentPtr, ToolCalls: calls}, nil
}

// --- FunctionaryV32: ">>>name\n{json}" per call ---

type functionaryV32Extractor struct{}

var functionaryV32Pattern = regexp.MustCompile(`(?s)>>>(\S+)\n(\{.*?\})(?:<\|eot_id\|>|$)`)

func (functionaryV32Extractor) Extract(raw string, gen *ids.Generator) (ParseResult, error) {
	matches := functionaryV32Pattern.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return ParseResult{Raw: raw, Content: strPtr(raw)}, nil
	}
	var calls []message.ToolCall
	for _, m := range matches {
		var args json.RawMessage
		if err := json.Unmarshal([]byte(m[2]), &args); err != nil {
			return ParseResult{}, chaterrors.Operation("Failed to deserialize generated tool calls", err)
		}
		call, err := buildToolCall(toolCallJSON{Name: m[1], Arguments: args}, gen)
		if err != nil {
			return ParseResult{}, chaterrors.Operation("Failed to deserialize generated tool calls", err)
		}
		calls = append(calls, call)
	}
	return ParseResult{Raw: raw, ToolCalls: calls}, nil
}

// --- FunctionaryV31: "<function=name>{json}</function>" per call ---

type functionaryV31Extractor struct{}

var functionaryV31Pattern = regexp.MustCompile(`(?s)<function=(\S+)>(\{.*?\})</function>`)

func (functionaryV31Extractor) Extract(raw string, gen *ids.Generator) (ParseResult, error) {
	matches := functionaryV31Pattern.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return ParseResult{Raw: raw, Content: strPtr(raw)}, nil
	}
	var calls []message.ToolCall
	for _, m := range matches {
		var args json.RawMessage
		if err := json.Unmarshal([]byte(m[2]), &args); err != nil {
			return ParseResult{}, chaterrors.Operation("Failed to deserialize generated tool calls", err)
		}
		call, err := buildToolCall(toolCallJSON{Name: m[1], Arguments: args}, gen)
		if err != nil {
			return ParseResult{}, chaterrors.Operation("Failed to deserialize generated tool calls", err)
		}
		calls = append(calls, call)
	}
	return ParseResult{Raw: raw, ToolCalls: calls}, nil
}
