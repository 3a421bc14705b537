package utf8stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeed_ValidASCIIPassesThroughImmediately(t *testing.T) {
	r := New()
	assert.Equal(t, "hello", r.Feed([]byte("hello")))
}

func TestFeed_SplitMultiByteRuneReassembles(t *testing.T) {
	r := New()
	emoji := []byte("\U0001F600") // F0 9F 98 80
	first := r.Feed(emoji[:1])
	assert.Equal(t, "", first)
	second := r.Feed(emoji[1:])
	assert.Equal(t, "\U0001F600", second)
}

func TestFeed_PersistentlyInvalidBytesLossyDecodeOverThreshold(t *testing.T) {
	r := New()
	for i := 0; i < 4; i++ {
		out := r.Feed([]byte{0xFF})
		assert.Equal(t, "", out, "should still be buffering at step %d", i)
	}
	out := r.Feed([]byte{0xFF})
	assert.NotEmpty(t, out)
	for _, rn := range out {
		assert.Equal(t, '�', rn)
	}
}

func TestFinish_FlushesIncompleteTrailingSequence(t *testing.T) {
	r := New()
	emoji := []byte("\U0001F600")
	out := r.Feed(emoji[:2])
	assert.Equal(t, "", out)

	tail := r.Finish()
	assert.NotEmpty(t, tail)
}

func TestFinish_NoBufferedBytesReturnsEmpty(t *testing.T) {
	r := New()
	assert.Equal(t, "", r.Finish())
}

func TestFeed_AfterFlushResetsCacheForNextSequence(t *testing.T) {
	r := New()
	emoji := []byte("\U0001F600")
	r.Feed(emoji[:1])
	r.Feed(emoji[1:])

	assert.Equal(t, "more", r.Feed([]byte("more")))
}
