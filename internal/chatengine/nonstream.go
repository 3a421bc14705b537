package chatengine

import (
	"context"
	"time"

	"github.com/wasmchat/edgechat/internal/backend"
	"github.com/wasmchat/edgechat/internal/chaterrors"
	"github.com/wasmchat/edgechat/internal/message"
	"github.com/wasmchat/edgechat/internal/sessionmeta"
)

// chatNonStream implements the C7 non-stream orchestrator (spec.md §4.7),
// looped once per requested choice (SPEC_FULL.md's multiple-choices
// supplement): build the prompt under the context-window budget, reconcile
// session metadata, run compute() to one of its three distinguished
// outcomes, post-process and optionally tool-parse the result, and
// assemble the final response object. The metadata reconciler is always
// restored before returning, success or failure.
func (e *Engine) chatNonStream(ctx context.Context, h backend.Handle, recon *sessionmeta.Reconciler, cfg modelConfig, req message.ChatRequest) (*message.ChatCompletionObject, error) {
	reqID := e.requestID(req)
	created := nowUnix()

	choices := make([]message.Choice, 0, req.N)
	var usage message.Usage

	for i := 0; i < req.N; i++ {
		buildStart := time.Now()
		built, err := e.governor.Build(ctx, h, cfg.kind, req.Messages, req.Tools, req.ToolChoice)
		if err != nil {
			return nil, err
		}
		e.emitToolTransformation(req.Tools, len(built.Prompt), time.Since(buildStart))

		restore, err := recon.Apply(ctx, h, req, built.AvailableCompletionTokens)
		if err != nil {
			return nil, err
		}

		result := h.Compute(ctx)

		var finish message.FinishReason
		switch result.Kind {
		case backend.EndOfSequence:
			finish = message.FinishStop
		case backend.ContextFull, backend.PromptTooLong:
			finish = message.FinishLength
		default:
			restore(ctx, h)
			return nil, chaterrors.Backend(chaterrors.BackendCompute, result.Err)
		}

		buf := make([]byte, backend.MaxBuffer)
		n, err := h.GetOutput(ctx, backend.TensorPrompt, buf)
		if err != nil {
			restore(ctx, h)
			return nil, chaterrors.Backend(chaterrors.BackendGetOutput, err)
		}
		raw := string(buf[:n])

		tmpl, err := e.prompts.Lookup(cfg.kind)
		if err != nil {
			restore(ctx, h)
			return nil, err
		}
		processed := tmpl.PostProcess(raw)

		// Tool-call extraction only ever runs on the normal-completion path:
		// per spec.md §4.7 and the reference compute_by_graph's ContextFull/
		// PromptTooLong arms, neither terminal ever calls parse_tool_calls,
		// so finish_reason stays length regardless of what the raw output
		// might otherwise have looked like.
		isToolUse := result.Kind == backend.EndOfSequence &&
			tmpl.Capabilities().IsToolVariant && req.ToolChoice.Kind != message.ToolChoiceNone
		var content *string
		var toolCalls []message.ToolCall
		if isToolUse {
			extractStart := time.Now()
			parsed, err := e.tools.Extract(cfg.kind, processed, e.ids)
			if err != nil {
				restore(ctx, h)
				return nil, err
			}
			content = parsed.Content
			toolCalls = parsed.ToolCalls
			e.emitFunctionCallDetection(toolCalls, len(processed), false, time.Since(extractStart))
			if len(toolCalls) > 0 {
				finish = message.FinishToolCalls
			}
		} else {
			content = &processed
		}

		info, err := backend.ReadTokenInfo(ctx, h)
		if err != nil {
			restore(ctx, h)
			return nil, err
		}
		restore(ctx, h)

		usage.PromptTokens = int64(info.InputTokens)
		usage.CompletionTokens += int64(info.OutputTokens)
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

		choices = append(choices, message.Choice{
			Index:        int64(i),
			Role:         message.RoleAssistant,
			Content:      content,
			ToolCalls:    toolCalls,
			FinishReason: finish,
		})
	}

	return &message.ChatCompletionObject{
		ID:      reqID,
		Object:  "chat.completion",
		Created: created,
		Model:   req.Model,
		Choices: choices,
		Usage:   usage,
	}, nil
}
