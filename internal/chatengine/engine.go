// Package chatengine implements C7-C10 of the chat completion engine: the
// non-stream and stream orchestrators, the post-processing step, and the
// single public dispatch entry point every caller goes through.
package chatengine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/wasmchat/edgechat/internal/backend"
	"github.com/wasmchat/edgechat/internal/chaterrors"
	"github.com/wasmchat/edgechat/internal/contextwindow"
	"github.com/wasmchat/edgechat/internal/ids"
	"github.com/wasmchat/edgechat/internal/message"
	"github.com/wasmchat/edgechat/internal/metrics"
	"github.com/wasmchat/edgechat/internal/prompt"
	"github.com/wasmchat/edgechat/internal/sessionmeta"
	"github.com/wasmchat/edgechat/internal/toolcall"
)

// modelConfig pairs one registered model with its prompt dialect and live
// session metadata.
type modelConfig struct {
	kind prompt.Kind
	meta *sessionmeta.Metadata
}

// Engine ties the backend handle registry, prompt/tool-call registries, and
// context-window governor together behind one dispatch entry point
// (spec.md §4.10). It is safe for concurrent use by multiple callers; the
// backend registry's per-model lock is what actually serializes inference.
type Engine struct {
	backends *backend.Registry
	prompts  *prompt.Registry
	tools    *toolcall.Registry
	governor *contextwindow.Governor
	ids      *ids.Generator
	logger   *slog.Logger
	metrics  metrics.Callback

	mu     sync.Mutex
	models map[string]modelConfig
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger overrides the no-op default logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithIDGenerator overrides the default unique-id generator, e.g. to pin
// SPEC_FULL.md's legacy placeholder compatibility mode.
func WithIDGenerator(g *ids.Generator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithPromptRegistry overrides the default full template registry, useful
// for tests that only need a handful of templates.
func WithPromptRegistry(r *prompt.Registry) Option {
	return func(e *Engine) { e.prompts = r }
}

// WithToolRegistry overrides the default tool-call extractor registry.
func WithToolRegistry(r *toolcall.Registry) Option {
	return func(e *Engine) { e.tools = r }
}

// WithMetricsCallback registers a synchronous observer for tool-injection
// and tool-call-recovery events (spec.md places dashboards/exporters out of
// scope; this is the teacher's MetricEventData callback pattern, adapted).
func WithMetricsCallback(cb metrics.Callback) Option {
	return func(e *Engine) { e.metrics = cb }
}

// NewEngine builds an Engine over an already-populated backend.Registry.
func NewEngine(backends *backend.Registry, opts ...Option) *Engine {
	e := &Engine{
		backends: backends,
		prompts:  prompt.NewRegistry(),
		tools:    toolcall.NewRegistry(),
		ids:      ids.NewGenerator(ids.ToolCallIDUnique, nil),
		logger:   slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1})),
		models:   make(map[string]modelConfig),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.governor = contextwindow.NewGovernor(e.prompts, contextwindow.WithLogger(e.logger))
	return e
}

// RegisterModel associates a model name (already registered in the backend
// registry) with the prompt dialect it should be built with and its
// initial session metadata snapshot.
func (e *Engine) RegisterModel(model string, kind prompt.Kind, initial sessionmeta.Metadata) {
	e.mu.Lock()
	defer e.mu.Unlock()
	meta := initial
	e.models[model] = modelConfig{kind: kind, meta: &meta}
}

func (e *Engine) modelConfig(model string) (modelConfig, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cfg, ok := e.models[model]
	if !ok {
		return modelConfig{}, chaterrors.Operation("model "+model+" is not registered", nil)
	}
	return cfg, nil
}

// emitToolTransformation reports a prompt build for a request that carries
// tools. No-op when the request has no tools or the caller registered no
// callback.
func (e *Engine) emitToolTransformation(tools []message.Tool, promptLength int, elapsed time.Duration) {
	if e.metrics == nil || len(tools) == 0 {
		return
	}
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	e.metrics(metrics.ToolTransformationData{
		ToolCount:    len(tools),
		ToolNames:    names,
		PromptLength: promptLength,
		Performance:  metrics.Performance{ProcessingDuration: elapsed},
	})
}

// emitFunctionCallDetection reports a tool-call extraction pass. No-op when
// no calls were recovered or the caller registered no callback.
func (e *Engine) emitFunctionCallDetection(calls []message.ToolCall, contentLength int, streaming bool, elapsed time.Duration) {
	if e.metrics == nil || len(calls) == 0 {
		return
	}
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Name
	}
	e.metrics(metrics.FunctionCallDetectionData{
		FunctionCount: len(calls),
		FunctionNames: names,
		ContentLength: contentLength,
		Streaming:     streaming,
		Performance:   metrics.Performance{ProcessingDuration: elapsed},
	})
}

// requestID returns the request id to use as the ChatCompletionObject/chunk
// id: the caller's user field when present, else a fresh UUIDv4.
func (e *Engine) requestID(req message.ChatRequest) string {
	if req.User != "" {
		return req.User
	}
	return e.ids.NewRequestID()
}

// Chat is C10's single entry point: it dispatches to the stream or
// non-stream orchestrator by request.Stream. On the non-stream path and on
// every error path the session's metadata snapshot is restored and the
// backend handle released before Chat returns; a returned Stream does both
// in its Close method.
func (e *Engine) Chat(ctx context.Context, req message.ChatRequest) (*message.ChatCompletionObject, *Stream, error) {
	req.Normalize()

	cfg, err := e.modelConfig(req.Model)
	if err != nil {
		return nil, nil, err
	}

	h, release, err := e.backends.Acquire(req.Model)
	if err != nil {
		return nil, nil, err
	}

	recon := sessionmeta.NewReconciler(cfg.meta, sessionmeta.WithLogger(e.logger))

	if req.Stream {
		s, err := e.newStream(ctx, h, release, recon, cfg, req)
		if err != nil {
			release()
			return nil, nil, err
		}
		return nil, s, nil
	}
	defer release()

	obj, err := e.chatNonStream(ctx, h, recon, cfg, req)
	return obj, nil, err
}
