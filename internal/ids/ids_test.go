package ids

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewToolCallID_UniqueModeProducesDistinctCallPrefixedIDs(t *testing.T) {
	g := NewGenerator(ToolCallIDUnique, nil)
	a := g.NewToolCallID()
	b := g.NewToolCallID()
	assert.True(t, strings.HasPrefix(a, "call_"))
	assert.True(t, strings.HasPrefix(b, "call_"))
	assert.NotEqual(t, a, b)
}

func TestNewToolCallID_LegacyModeIsDeterministic(t *testing.T) {
	g := NewGenerator(ToolCallIDLegacyPlaceholder, nil)
	assert.Equal(t, LegacyPlaceholderToolCallID, g.NewToolCallID())
	assert.Equal(t, LegacyPlaceholderToolCallID, g.NewToolCallID())
}

func TestNewRequestID_ProducesDistinctIDs(t *testing.T) {
	g := NewGenerator(ToolCallIDUnique, nil)
	a := g.NewRequestID()
	b := g.NewRequestID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestNewGenerator_NilLoggerIsSafe(t *testing.T) {
	g := NewGenerator(ToolCallIDUnique, nil)
	assert.NotPanics(t, func() { g.NewToolCallID() })
}
