// Package backendtest provides a scriptable backend.Handle test double so
// every other package can exercise the chat engine without a real
// inference runtime, mirroring the teacher's mock_stream_test.go pattern
// of a hand-rolled fake satisfying a narrow interface.
package backendtest

import (
	"context"
	"encoding/json"

	"github.com/wasmchat/edgechat/internal/backend"
)

// Step describes one ComputeSingle invocation's output and result.
type Step struct {
	Output []byte
	Result backend.ComputeResult
}

// Mock is a scriptable backend.Handle. Tests set ComputeResult/Output/
// Steps/TokensIn/TokensOut and then drive it through the engine.
type Mock struct {
	CtxSize int64

	// Non-stream path.
	ComputeResult backend.ComputeResult
	Output        []byte

	// Stream path: Steps are consumed in order by ComputeSingle.
	Steps []Step
	step  int

	// Reported token counts for GetOutput(TensorMetadata, ...).
	TokensIn  uint64
	TokensOut uint64

	// Captured inputs, for assertions.
	LastPrompt   []byte
	LastMetadata []byte
	SetInputCall int
	FinishCalled int
	Resettable   bool
}

// NewMock returns a Mock with a default context size of 4096.
func NewMock() *Mock {
	return &Mock{CtxSize: 4096}
}

func (m *Mock) SetInput(_ context.Context, index backend.TensorIndex, data []byte) error {
	m.SetInputCall++
	switch index {
	case backend.TensorPrompt:
		m.LastPrompt = append([]byte(nil), data...)
	case backend.TensorMetadata:
		m.LastMetadata = append([]byte(nil), data...)
	}
	return nil
}

func (m *Mock) Compute(_ context.Context) backend.ComputeResult {
	return m.ComputeResult
}

func (m *Mock) ComputeSingle(_ context.Context) backend.ComputeResult {
	if m.step >= len(m.Steps) {
		return backend.ComputeResult{Kind: backend.EndOfSequence}
	}
	s := m.Steps[m.step]
	m.step++
	return s.Result
}

func (m *Mock) GetOutput(_ context.Context, tensorID backend.TensorIndex, buf []byte) (int, error) {
	if tensorID == backend.TensorMetadata {
		info := backend.TokenInfo{InputTokens: m.TokensIn, OutputTokens: m.TokensOut}
		b, _ := json.Marshal(info)
		n := copy(buf, b)
		return n, nil
	}
	n := copy(buf, m.Output)
	return n, nil
}

func (m *Mock) GetOutputSingle(_ context.Context, buf []byte) (int, error) {
	idx := m.step - 1
	if idx < 0 || idx >= len(m.Steps) {
		return 0, nil
	}
	n := copy(buf, m.Steps[idx].Output)
	return n, nil
}

func (m *Mock) FinishSingle(_ context.Context) error {
	m.FinishCalled++
	return nil
}

func (m *Mock) ContextSize() int64 { return m.CtxSize }

// Reset rewinds the step cursor, so a single Mock can be reused across
// requests within a test.
func (m *Mock) Reset() {
	m.step = 0
}
