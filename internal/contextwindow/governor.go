// Package contextwindow implements the Context-Window Governor (spec.md
// §4.5): the prompt-build-and-prune loop that keeps a request's tokenized
// prompt within 80% of the backend's context size, preferring to preserve
// a leading system message and the most recent user message.
package contextwindow

import (
	"context"
	"io"
	"log/slog"

	"github.com/wasmchat/edgechat/internal/backend"
	"github.com/wasmchat/edgechat/internal/chaterrors"
	"github.com/wasmchat/edgechat/internal/message"
	"github.com/wasmchat/edgechat/internal/prompt"
)

// budgetNumerator/budgetDenominator implement spec.md's
// "floor(ctx_size * 4 / 5)" (80%) budget exactly in integer arithmetic.
const budgetNumerator = 4
const budgetDenominator = 5

// Result is what one governor run produces for the orchestrators to use.
type Result struct {
	Prompt                    string
	AvailableCompletionTokens int64
	ImageURL                  string
}

// Governor owns the prompt registry it builds with and an optional logger.
type Governor struct {
	registry *prompt.Registry
	logger   *slog.Logger
}

// Option configures a Governor.
type Option func(*Governor)

// WithLogger overrides the no-op default logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Governor) { g.logger = l }
}

// NewGovernor returns a Governor backed by registry.
func NewGovernor(registry *prompt.Registry, opts ...Option) *Governor {
	g := &Governor{
		registry: registry,
		logger:   slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1})),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Build runs the prompt-build-and-prune loop described in spec.md §4.5.
// messages is never mutated; the governor prunes its own working copy.
func (g *Governor) Build(ctx context.Context, h backend.Handle, kind prompt.Kind, messages []message.Message, tools []message.Tool, choice message.ToolChoice) (Result, error) {
	working := append([]message.Message(nil), messages...)
	ctxSize := h.ContextSize()
	maxPrompt := (ctxSize * budgetNumerator) / budgetDenominator

	for {
		out, err := g.registry.Build(kind, working, tools, choice)
		if err != nil {
			return Result{}, err
		}

		if err := h.SetInput(ctx, backend.TensorPrompt, []byte(out.Prompt)); err != nil {
			return Result{}, chaterrors.Backend(chaterrors.BackendSetInput, err)
		}
		info, err := backend.ReadTokenInfo(ctx, h)
		if err != nil {
			return Result{}, err
		}

		if int64(info.InputTokens) <= maxPrompt {
			return Result{
				Prompt:                    out.Prompt,
				AvailableCompletionTokens: ctxSize - maxPrompt,
				ImageURL:                  out.ImageURL,
			}, nil
		}

		g.logger.Debug("prompt over budget, pruning", "input_tokens", info.InputTokens, "max_prompt", maxPrompt, "messages", len(working))

		pruned, done, err := prune(working, int64(info.InputTokens), ctxSize)
		if err != nil {
			return Result{}, err
		}
		if done {
			return Result{
				Prompt:                    out.Prompt,
				AvailableCompletionTokens: ctxSize - int64(info.InputTokens),
				ImageURL:                  out.ImageURL,
			}, nil
		}
		working = pruned
	}
}

// prune removes one prunable unit of history per spec.md §4.5's pseudocode:
// a leading System message is preserved and the message(s) right after it
// are dropped up to (but not including) the next User message; otherwise
// the leading User message and everything up to the next User message are
// dropped. done==true means the loop should stop and accept the current
// (still over-budget) prompt as best-effort, per the "len==2 / tokinfo >
// ctx_size else return" branches.
func prune(messages []message.Message, inputTokens, ctxSize int64) (pruned []message.Message, done bool, err error) {
	if len(messages) == 0 {
		return nil, false, &chaterrors.NoMessagesError{}
	}

	if messages[0].Role == message.RoleSystem {
		if len(messages) > 2 {
			return prunePairAfter(messages, 1)
		}
		if inputTokens > ctxSize {
			return nil, false, chaterrors.Operation("prompt exceeds context size", nil)
		}
		return messages, true, nil
	}

	if len(messages) > 1 {
		return prunePairAfter(messages, 0)
	}
	if inputTokens > ctxSize {
		return nil, false, chaterrors.Operation("prompt exceeds context size", nil)
	}
	return messages, true, nil
}

// prunePairAfter removes messages[start] and everything after it up to (but
// excluding) the next User message, implementing the "remove messages[1];
// while messages[1].role != User: remove" loop and its tie-break rule that
// a dangling assistant reply is pruned together with its user turn.
func prunePairAfter(messages []message.Message, start int) ([]message.Message, bool, error) {
	out := append([]message.Message(nil), messages[:start]...)
	i := start + 1
	for i < len(messages) && messages[i].Role != message.RoleUser {
		i++
	}
	if i >= len(messages) {
		return nil, false, &chaterrors.NoUserMessageError{}
	}
	out = append(out, messages[i:]...)
	return out, false, nil
}
