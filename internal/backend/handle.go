// Package backend defines the abstract capability set the chat completion
// engine needs from the underlying inference runtime (spec.md §4.1): an
// opaque, single-threaded-per-handle tensor I/O ABI. The concrete tensor
// encoding is out of scope (spec.md §1); this package only fixes the Go
// interface every other component programs against, plus the shared
// termination-kind taxonomy and a MAX_BUFFER constant.
package backend

import (
	"context"
	"encoding/json"

	"github.com/wasmchat/edgechat/internal/chaterrors"
)

// MaxBuffer bounds every single read from the backend (spec.md §5: "a
// fixed MAX_BUFFER per read (default 2 MiB)").
const MaxBuffer = 2 * 1024 * 1024

// TensorIndex identifies which tensor a set_input/get_output call targets.
type TensorIndex int

const (
	// TensorPrompt is the prompt bytes tensor (u8).
	TensorPrompt TensorIndex = 0
	// TensorMetadata is the JSON-serialized session metadata tensor.
	TensorMetadata TensorIndex = 1
)

// TerminationKind is the backend's three-way distinguished outcome, plus
// StepOK for an in-progress streaming step and Other for anything that
// should abort the request.
type TerminationKind int

const (
	// StepOK means ComputeSingle advanced one step and produced more
	// output; the caller should keep polling. Compute (the non-stream,
	// run-to-completion call) never returns StepOK.
	StepOK TerminationKind = iota
	// EndOfSequence is the normal stop: the model produced a natural stop
	// token.
	EndOfSequence
	// ContextFull means the KV cache has no remaining room.
	ContextFull
	// PromptTooLong means the prompt alone exceeds the context window
	// before any generation happened.
	PromptTooLong
	// Other is any backend failure that is not one of the three
	// distinguished kinds; callers must abort the request on Other.
	Other
)

// ComputeResult is the outcome of a compute()/compute_single() call.
type ComputeResult struct {
	Kind TerminationKind
	// Err carries the underlying cause when Kind == Other.
	Err error
}

// TokenInfo is the backend's reported tokenization counts for the most
// recent set_input(0, ...) call, per spec.md §4.1's schema.
type TokenInfo struct {
	InputTokens  uint64 `json:"input_tokens"`
	OutputTokens uint64 `json:"output_tokens"`
}

// Handle is one inference session. Implementations must be single-threaded
// per handle; concurrency is mediated by the caller's lock (spec.md §5) —
// this package never locks internally.
type Handle interface {
	// SetInput deposits a tensor. index TensorPrompt takes prompt bytes;
	// index TensorMetadata takes a JSON-serialized metadata blob.
	SetInput(ctx context.Context, index TensorIndex, data []byte) error

	// Compute runs generation to natural completion.
	Compute(ctx context.Context) ComputeResult

	// ComputeSingle advances one generation step.
	ComputeSingle(ctx context.Context) ComputeResult

	// GetOutput reads the current full output bytes (tensor 0, non-stream)
	// or the current token-info JSON (tensor 1). buf bounds the read to
	// MaxBuffer; the returned length is authoritative and a short read is
	// permitted.
	GetOutput(ctx context.Context, tensorID TensorIndex, buf []byte) (int, error)

	// GetOutputSingle reads the bytes emitted by the most recent
	// ComputeSingle step.
	GetOutputSingle(ctx context.Context, buf []byte) (int, error)

	// FinishSingle releases streaming state. Best-effort: callers log and
	// swallow its error (spec.md §4.8 Cleanup).
	FinishSingle(ctx context.Context) error

	// ContextSize returns the backend's fixed context window, in tokens.
	ContextSize() int64
}

// ReadTokenInfo is a small helper every orchestrator uses after a
// SetInput(TensorPrompt, ...): read the token-info tensor and decode it,
// per spec.md §4.1 ("Failure to parse is fatal for that request").
func ReadTokenInfo(ctx context.Context, h Handle) (TokenInfo, error) {
	buf := make([]byte, MaxBuffer)
	n, err := h.GetOutput(ctx, TensorMetadata, buf)
	if err != nil {
		return TokenInfo{}, chaterrors.Backend(chaterrors.BackendGetOutput, err)
	}
	var info TokenInfo
	if err := json.Unmarshal(buf[:n], &info); err != nil {
		return TokenInfo{}, chaterrors.Operation("failed to parse token-info JSON", err)
	}
	return info, nil
}
