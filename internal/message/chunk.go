package message

import "github.com/openai/openai-go/v2"

// ChunkDelta is one streaming delta, matching spec.md §6's chunk shape.
type ChunkDelta struct {
	Role      Role
	Content   *string
	ToolCalls []ChunkToolCall
}

// ChunkToolCall is one tool-call delta within a streaming chunk.
type ChunkToolCall struct {
	Index     int64
	ID        string
	Name      string
	Arguments string
}

// Chunk is one chat.completion.chunk SSE event body.
type Chunk struct {
	ID               string
	Created          int64
	Model            string
	SystemFingerprint string
	Delta            ChunkDelta
	HasChoice        bool // false only for the usage-only terminal chunk (spec.md §6: "choices: []")
	FinishReason     FinishReason
	Usage            *Usage
}

// systemFingerprint is the literal value spec.md §6 specifies for every
// streaming chunk.
const systemFingerprint = "fp_44709d6fcb"

// NewChunk builds a content/tool-call delta chunk carrying the standard
// metadata and system fingerprint.
func NewChunk(id, model string, created int64) Chunk {
	return Chunk{ID: id, Created: created, Model: model, SystemFingerprint: systemFingerprint, HasChoice: true}
}

// ToSDK renders the chunk into the official SDK's wire type for
// json.Marshal at the SSE-framing boundary.
func (c Chunk) ToSDK() openai.ChatCompletionChunk {
	out := openai.ChatCompletionChunk{
		ID:                c.ID,
		Object:            "chat.completion.chunk",
		Created:           c.Created,
		Model:             c.Model,
		SystemFingerprint: c.SystemFingerprint,
	}
	if c.Usage != nil {
		out.Usage = openai.CompletionUsage{
			PromptTokens:     c.Usage.PromptTokens,
			CompletionTokens: c.Usage.CompletionTokens,
			TotalTokens:      c.Usage.TotalTokens,
		}
	}
	if !c.HasChoice {
		out.Choices = []openai.ChatCompletionChunkChoice{}
		return out
	}
	choice := openai.ChatCompletionChunkChoice{
		Index:        0,
		FinishReason: string(c.FinishReason),
	}
	if c.Delta.Role != "" {
		choice.Delta.Role = string(c.Delta.Role)
	}
	if c.Delta.Content != nil {
		choice.Delta.Content = *c.Delta.Content
	}
	if len(c.Delta.ToolCalls) > 0 {
		choice.Delta.ToolCalls = make([]openai.ChatCompletionChunkChoiceDeltaToolCall, len(c.Delta.ToolCalls))
		for i, tc := range c.Delta.ToolCalls {
			choice.Delta.ToolCalls[i] = openai.ChatCompletionChunkChoiceDeltaToolCall{
				Index: tc.Index,
				ID:    tc.ID,
				Type:  "function",
				Function: openai.ChatCompletionChunkChoiceDeltaToolCallFunction{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			}
		}
	}
	out.Choices = []openai.ChatCompletionChunkChoice{choice}
	return out
}
