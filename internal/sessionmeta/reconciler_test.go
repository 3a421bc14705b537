package sessionmeta

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmchat/edgechat/internal/backend/backendtest"
	"github.com/wasmchat/edgechat/internal/message"
)

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int64) *int64       { return &i }

func TestReconciler_Apply_OverridesSamplingAndRestores(t *testing.T) {
	h := backendtest.NewMock()
	meta := &Metadata{Temperature: 0.7, TopP: 0.9, NPredict: nPredictUnbounded}
	r := NewReconciler(meta)

	req := message.ChatRequest{
		Sampling: message.Sampling{Temperature: floatPtr(0.2)},
	}
	restore, err := r.Apply(context.Background(), h, req, 50)
	require.NoError(t, err)
	assert.Equal(t, 0.2, meta.Temperature)
	assert.Equal(t, int64(50), meta.NPredict) // unbounded clamps to available

	var written Metadata
	require.NoError(t, json.Unmarshal(h.LastMetadata, &written))
	assert.Equal(t, 0.2, written.Temperature)

	restore(context.Background(), h)
	assert.Equal(t, 0.7, meta.Temperature)
	assert.Equal(t, nPredictUnbounded, int(meta.NPredict))
}

func TestReconciler_Apply_MaxCompletionTokensBelowAvailableIsClampedUp(t *testing.T) {
	h := backendtest.NewMock()
	meta := &Metadata{NPredict: nPredictUnbounded}
	r := NewReconciler(meta)

	req := message.ChatRequest{MaxCompletionTokens: intPtr(10)}
	_, err := r.Apply(context.Background(), h, req, 100)
	require.NoError(t, err)
	// 10 < availableCompletionTokens(100), so it's clamped up to 100.
	assert.Equal(t, int64(100), meta.NPredict)
}

func TestReconciler_Apply_NPredictAboveAvailableIsUntouched(t *testing.T) {
	h := backendtest.NewMock()
	meta := &Metadata{NPredict: nPredictUnbounded}
	r := NewReconciler(meta)

	req := message.ChatRequest{MaxCompletionTokens: intPtr(500)}
	_, err := r.Apply(context.Background(), h, req, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(500), meta.NPredict)
}

func TestReconciler_Apply_EmbeddingsAlwaysForcedFalse(t *testing.T) {
	h := backendtest.NewMock()
	meta := &Metadata{Embeddings: true}
	r := NewReconciler(meta)

	_, err := r.Apply(context.Background(), h, message.ChatRequest{}, 10)
	require.NoError(t, err)
	assert.False(t, meta.Embeddings)
}

func TestReconciler_Apply_IncludeUsagePropagatedAndWritten(t *testing.T) {
	h := backendtest.NewMock()
	meta := &Metadata{IncludeUsage: false}
	r := NewReconciler(meta)

	req := message.ChatRequest{StreamOptions: message.StreamOptions{IncludeUsage: true}}
	_, err := r.Apply(context.Background(), h, req, 10)
	require.NoError(t, err)
	assert.True(t, meta.IncludeUsage)
	require.NotEmpty(t, h.LastMetadata)

	var written Metadata
	require.NoError(t, json.Unmarshal(h.LastMetadata, &written))
	assert.True(t, written.IncludeUsage)
}

func TestReconciler_Apply_NoChangesSkipsWrite(t *testing.T) {
	h := backendtest.NewMock()
	meta := &Metadata{NPredict: 5, Embeddings: false, IncludeUsage: false}
	r := NewReconciler(meta)

	_, err := r.Apply(context.Background(), h, message.ChatRequest{}, 1)
	require.NoError(t, err)
	assert.Nil(t, h.LastMetadata)
}

func TestReconciler_Restore_PutsBackSnapshot(t *testing.T) {
	h := backendtest.NewMock()
	meta := &Metadata{Temperature: 1.0}
	r := NewReconciler(meta)

	req := message.ChatRequest{Sampling: message.Sampling{Temperature: floatPtr(0.1)}}
	restore, err := r.Apply(context.Background(), h, req, 10)
	require.NoError(t, err)

	restore(context.Background(), h)
	assert.Equal(t, 1.0, meta.Temperature)
}
