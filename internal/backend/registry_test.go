package backend_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmchat/edgechat/internal/backend"
	"github.com/wasmchat/edgechat/internal/backend/backendtest"
)

func TestRegistry_AcquireUnregisteredModel(t *testing.T) {
	r := backend.NewRegistry()
	h, release, err := r.Acquire("ghost")
	require.Error(t, err)
	assert.Nil(t, h)
	assert.Nil(t, release)
}

func TestRegistry_AcquireReturnsRegisteredHandle(t *testing.T) {
	r := backend.NewRegistry()
	m := backendtest.NewMock()
	r.Register("llama3", m)

	h, release, err := r.Acquire("llama3")
	require.NoError(t, err)
	assert.Same(t, backend.Handle(m), h)
	release()
}

func TestRegistry_ReregisterReplacesHandle(t *testing.T) {
	r := backend.NewRegistry()
	first := backendtest.NewMock()
	second := backendtest.NewMock()
	r.Register("m", first)
	r.Register("m", second)

	h, release, err := r.Acquire("m")
	require.NoError(t, err)
	assert.Same(t, backend.Handle(second), h)
	release()
}

// TestRegistry_AcquireSerializesConcurrentAccess exercises spec.md §5's
// "a chat request acquires the lock for the entire prompt-build + inference
// window" guarantee: eight goroutines racing Acquire on the same model name
// must never hold the handle simultaneously.
func TestRegistry_AcquireSerializesConcurrentAccess(t *testing.T) {
	r := backend.NewRegistry()
	r.Register("m", backendtest.NewMock())

	var mu sync.Mutex
	holders := 0
	maxHolders := 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, release, err := r.Acquire("m")
			require.NoError(t, err)
			mu.Lock()
			holders++
			if holders > maxHolders {
				maxHolders = holders
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxHolders)
}

func TestReadTokenInfo(t *testing.T) {
	m := backendtest.NewMock()
	m.TokensIn = 12
	m.TokensOut = 34

	info, err := backend.ReadTokenInfo(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), info.InputTokens)
	assert.Equal(t, uint64(34), info.OutputTokens)
}
