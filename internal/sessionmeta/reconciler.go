// Package sessionmeta implements the Metadata Reconciler (spec.md §4.6): a
// per-session mutable configuration blob reconciled against a request's
// sampling/size overrides on entry, and unconditionally restored to its
// pre-call snapshot on exit so session state stays neutral between
// requests.
package sessionmeta

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/wasmchat/edgechat/internal/backend"
	"github.com/wasmchat/edgechat/internal/chaterrors"
	"github.com/wasmchat/edgechat/internal/message"
)

// Metadata mirrors spec.md §3's BackendMetadata: the session-scoped
// configuration blob serialized to tensor index 1 on every write.
type Metadata struct {
	ContextSize      int64   `json:"context_size"`
	NPredict         int64   `json:"n_predict"`
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"top_p"`
	FrequencyPenalty float64 `json:"frequency_penalty"`
	PresencePenalty  float64 `json:"presence_penalty"`
	ReversePrompt    string  `json:"reverse_prompt,omitempty"`
	ImagePath        string  `json:"image,omitempty"`
	Embeddings       bool    `json:"embeddings"`
	IncludeUsage     bool    `json:"include_usage"`
}

// nPredictUnbounded and nPredictUntilContextFull are spec.md §3's signed
// sentinel values for n_predict.
const (
	nPredictUnbounded        = -1
	nPredictUntilContextFull = -2
)

// Reconciler owns one session's live Metadata and reconciles it against
// each request in turn.
type Reconciler struct {
	meta   *Metadata
	logger *slog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger overrides the no-op default logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// NewReconciler wraps a session's live metadata. meta is mutated in place by
// Apply/restore, so callers must keep exactly one Reconciler per session.
func NewReconciler(meta *Metadata, opts ...Option) *Reconciler {
	r := &Reconciler{
		meta:   meta,
		logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1})),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Restore writes the pre-Apply snapshot back to the backend, best-effort:
// a write failure is logged but never overwrites a request's own error,
// per spec.md §4.10 ("its own failure is logged but does not overwrite the
// original error").
type Restore func(ctx context.Context, h backend.Handle)

// Apply implements spec.md §4.6's on-entry reconciliation: sampling
// overrides present on the request overwrite the session defaults,
// max_completion_tokens rewrites n_predict unconditionally when present,
// n_predict is independently clamped to availableCompletionTokens for the
// -1 / -2 / underflow cases, and embeddings is always forced false. It
// returns a Restore closure that undoes all of this once the request
// completes, and the caller must invoke it exactly once regardless of
// outcome.
func (r *Reconciler) Apply(ctx context.Context, h backend.Handle, req message.ChatRequest, availableCompletionTokens int64) (Restore, error) {
	snapshot := *r.meta
	changed := false

	if req.Sampling.Temperature != nil {
		r.meta.Temperature = *req.Sampling.Temperature
		changed = true
	}
	if req.Sampling.TopP != nil {
		r.meta.TopP = *req.Sampling.TopP
		changed = true
	}
	if req.Sampling.FrequencyPenalty != nil {
		r.meta.FrequencyPenalty = *req.Sampling.FrequencyPenalty
		changed = true
	}
	if req.Sampling.PresencePenalty != nil {
		r.meta.PresencePenalty = *req.Sampling.PresencePenalty
		changed = true
	}
	if req.MaxCompletionTokens != nil {
		r.meta.NPredict = *req.MaxCompletionTokens
		changed = true
	}

	switch {
	case r.meta.NPredict == nPredictUnbounded,
		r.meta.NPredict == nPredictUntilContextFull,
		r.meta.NPredict > 0 && r.meta.NPredict < availableCompletionTokens:
		r.meta.NPredict = availableCompletionTokens
		changed = true
	}

	if r.meta.Embeddings {
		r.meta.Embeddings = false
		changed = true
	}
	if r.meta.IncludeUsage != req.StreamOptions.IncludeUsage {
		r.meta.IncludeUsage = req.StreamOptions.IncludeUsage
		changed = true
	}

	if changed {
		if err := r.write(ctx, h, r.meta); err != nil {
			return nil, err
		}
	}

	return func(ctx context.Context, h backend.Handle) {
		*r.meta = snapshot
		if err := r.write(ctx, h, r.meta); err != nil {
			r.logger.Error("failed to restore session metadata", "error", err)
		}
	}, nil
}

func (r *Reconciler) write(ctx context.Context, h backend.Handle, m *Metadata) error {
	b, err := json.Marshal(m)
	if err != nil {
		return chaterrors.Operation("failed to serialize session metadata", err)
	}
	if err := h.SetInput(ctx, backend.TensorMetadata, b); err != nil {
		return chaterrors.Backend(chaterrors.BackendSetInput, err)
	}
	return nil
}
