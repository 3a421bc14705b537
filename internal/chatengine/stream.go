package chatengine

import (
	"context"
	"time"

	"github.com/wasmchat/edgechat/internal/backend"
	"github.com/wasmchat/edgechat/internal/chaterrors"
	"github.com/wasmchat/edgechat/internal/message"
	"github.com/wasmchat/edgechat/internal/prompt"
	"github.com/wasmchat/edgechat/internal/sessionmeta"
	"github.com/wasmchat/edgechat/internal/utf8stream"
)

// contextFullSentinel is the literal body spec.md §7 requires on the
// terminal chunk emitted when the backend reports ContextFull mid-stream.
const contextFullSentinel = "<|WASMEDGE-GGML-CONTEXT-FULL|>"

// Stream is C8's stream orchestrator: a polling object whose Next method
// performs at most one compute_single call and returns the next SSE chunk,
// cooperatively yielding after each one rather than looping internally
// (spec.md §9's "coroutine control flow" design note).
type Stream struct {
	engine  *Engine
	h       backend.Handle
	release func()
	restore sessionmeta.Restore

	cfg modelConfig
	req message.ChatRequest

	id           string
	created      int64
	includeUsage bool

	reassembler *utf8stream.Reassembler

	// pending holds chunks already decided but not yet emitted: the
	// deterministic tail sequence after a terminal event, or the whole
	// synthetic tool-use playback when bypassing compute_single entirely.
	pending []message.Chunk

	terminalReached bool
	stopped         bool
	cached          bool
	closed          bool
}

// newStream builds the prompt, reconciles metadata, and either sets up a
// live compute_single polling loop or, for every tool-variant template whose
// tool_choice is not none, runs the non-stream path once and serves its
// result from a pre-built cache queue (spec.md §4.8).
func (e *Engine) newStream(ctx context.Context, h backend.Handle, release func(), recon *sessionmeta.Reconciler, cfg modelConfig, req message.ChatRequest) (*Stream, error) {
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

	s := &Stream{
		engine:       e,
		h:            h,
		release:      release,
		restore:      restore,
		cfg:          cfg,
		req:          req,
		id:           e.requestID(req),
		created:      nowUnix(),
		includeUsage: req.StreamOptions.IncludeUsage,
		reassembler:  utf8stream.New(),
	}

	tmpl, err := e.prompts.Lookup(cfg.kind)
	if err != nil {
		restore(ctx, h)
		return nil, err
	}

	toolUse := tmpl.Capabilities().IsToolVariant && req.ToolChoice.Kind != message.ToolChoiceNone
	if toolUse {
		s.cached = true
		if err := s.buildToolUsePlayback(ctx, tmpl); err != nil {
			restore(ctx, h)
			return nil, err
		}
	}

	return s, nil
}

func (s *Stream) contentChunk(content *string, finish message.FinishReason) message.Chunk {
	c := message.NewChunk(s.id, s.req.Model, s.created)
	c.Delta = message.ChunkDelta{Role: message.RoleAssistant, Content: content}
	c.FinishReason = finish
	return c
}

func (s *Stream) usageChunk(info backend.TokenInfo) message.Chunk {
	c := message.NewChunk(s.id, s.req.Model, s.created)
	c.HasChoice = false
	c.Usage = &message.Usage{
		PromptTokens:     int64(info.InputTokens),
		CompletionTokens: int64(info.OutputTokens),
		TotalTokens:      int64(info.InputTokens) + int64(info.OutputTokens),
	}
	return c
}

// buildToolUsePlayback runs the non-stream path once and queues a tool-call
// (or content) delta plus an optional usage chunk, served from s.pending
// without ever calling compute_single; the caller writes the terminal
// [DONE] frame once Next reports done.
func (s *Stream) buildToolUsePlayback(ctx context.Context, tmpl prompt.Template) error {
	result := s.h.Compute(ctx)
	if result.Kind == backend.Other {
		return chaterrors.Backend(chaterrors.BackendCompute, result.Err)
	}

	buf := make([]byte, backend.MaxBuffer)
	n, err := s.h.GetOutput(ctx, backend.TensorPrompt, buf)
	if err != nil {
		return chaterrors.Backend(chaterrors.BackendGetOutput, err)
	}
	processed := tmpl.PostProcess(string(buf[:n]))

	extractStart := time.Now()
	parsed, err := s.engine.tools.Extract(s.cfg.kind, processed, s.engine.ids)
	if err != nil {
		return err
	}
	s.engine.emitFunctionCallDetection(parsed.ToolCalls, len(processed), true, time.Since(extractStart))

	finish := message.FinishStop
	deltaChunk := message.NewChunk(s.id, s.req.Model, s.created)
	deltaChunk.Delta.Role = message.RoleAssistant
	if len(parsed.ToolCalls) > 0 {
		finish = message.FinishToolCalls
		deltaChunk.Delta.ToolCalls = make([]message.ChunkToolCall, len(parsed.ToolCalls))
		for i, tc := range parsed.ToolCalls {
			deltaChunk.Delta.ToolCalls[i] = message.ChunkToolCall{Index: int64(i), ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments}
		}
	} else {
		deltaChunk.Delta.Content = parsed.Content
	}
	deltaChunk.FinishReason = finish
	s.pending = append(s.pending, deltaChunk)

	if s.includeUsage {
		info, err := backend.ReadTokenInfo(ctx, s.h)
		if err != nil {
			return err
		}
		s.pending = append(s.pending, s.usageChunk(info))
	}

	s.terminalReached = true
	return nil
}

// Next returns the next chunk in the stream. done==true means this was the
// last chunk (or there is none); the caller should then emit the literal
// "data: [DONE]\n\n" frame and stop polling.
func (s *Stream) Next(ctx context.Context) (*message.Chunk, bool, error) {
	if len(s.pending) > 0 {
		c := s.pending[0]
		s.pending = s.pending[1:]
		if len(s.pending) == 0 && s.terminalReached {
			s.stopped = true
		}
		return &c, s.stopped, nil
	}
	if s.stopped {
		return nil, true, nil
	}

	result := s.h.ComputeSingle(ctx)
	switch result.Kind {
	case backend.StepOK:
		buf := make([]byte, backend.MaxBuffer)
		n, err := s.h.GetOutputSingle(ctx, buf)
		if err != nil {
			return nil, true, chaterrors.Backend(chaterrors.BackendGetOutputSingle, err)
		}
		decoded := s.reassembler.Feed(buf[:n])
		c := s.contentChunk(&decoded, "")
		return &c, false, nil

	case backend.EndOfSequence:
		s.terminalReached = true
		if tail := s.reassembler.Finish(); tail != "" {
			s.pending = append(s.pending, s.contentChunk(&tail, ""))
		}
		if err := s.queueUsageTail(ctx); err != nil {
			return nil, true, err
		}
		return s.popPending()

	case backend.ContextFull:
		s.terminalReached = true
		content := contextFullSentinel
		s.pending = append(s.pending, s.contentChunk(&content, message.FinishLength))
		if err := s.queueUsageTail(ctx); err != nil {
			return nil, true, err
		}
		return s.popPending()

	case backend.PromptTooLong:
		s.terminalReached = true
		s.pending = append(s.pending, s.contentChunk(nil, message.FinishLength))
		if err := s.queueUsageTail(ctx); err != nil {
			return nil, true, err
		}
		return s.popPending()

	default:
		return nil, true, chaterrors.Backend(chaterrors.BackendComputeSingle, result.Err)
	}
}

func (s *Stream) queueUsageTail(ctx context.Context) error {
	if s.includeUsage {
		info, err := backend.ReadTokenInfo(ctx, s.h)
		if err != nil {
			return err
		}
		s.pending = append(s.pending, s.usageChunk(info))
	}
	return nil
}

func (s *Stream) popPending() (*message.Chunk, bool, error) {
	if len(s.pending) == 0 {
		s.stopped = true
		return nil, true, nil
	}
	c := s.pending[0]
	s.pending = s.pending[1:]
	if len(s.pending) == 0 {
		s.stopped = true
	}
	return &c, s.stopped, nil
}

// Close calls finish_single (best-effort) unless the stream was served
// from a cached tool-use playback, restores session metadata, and
// releases the backend handle. Only the first call has any effect; later
// calls return immediately. Callers typically invoke Close via defer.
func (s *Stream) Close(ctx context.Context) {
	if s.closed {
		return
	}
	s.closed = true
	if !s.cached {
		if err := s.h.FinishSingle(ctx); err != nil {
			s.engine.logger.Error("finish_single failed during stream cleanup", "error", err)
		}
	}
	s.restore(ctx, s.h)
	s.release()
}
