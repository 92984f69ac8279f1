package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/recallkit/recallkit-go/pkg/graph"
)

func defaultPolicy() *graph.RelationPolicy {
	return &graph.RelationPolicy{
		MinSimilarity:           0.7,
		DedupCutoff:             0.95,
		CrossConversationMargin: 0.1,
		CrossConversationFloor:  0.8,
		MaxPathDepth:            10,
	}
}

func TestEffectiveThreshold(t *testing.T) {
	policy := defaultPolicy()

	assert.Equal(t, 0.7, policy.EffectiveThreshold(false))
	assert.InDelta(t, 0.8, policy.EffectiveThreshold(true), 1e-9)
}

func TestEffectiveThresholdFloor(t *testing.T) {
	// A low base threshold plus margin still cannot drop the
	// cross-conversation bar below the floor.
	policy := defaultPolicy()
	policy.MinSimilarity = 0.5

	assert.Equal(t, 0.5, policy.EffectiveThreshold(false))
	assert.Equal(t, 0.8, policy.EffectiveThreshold(true))
}

func TestIsDuplicate(t *testing.T) {
	policy := defaultPolicy()

	assert.True(t, policy.IsDuplicate(0.95))
	assert.True(t, policy.IsDuplicate(0.99))
	assert.False(t, policy.IsDuplicate(0.949))
}

func TestShouldLink(t *testing.T) {
	policy := defaultPolicy()

	// Same conversation: linked in [MinSimilarity, DedupCutoff).
	assert.False(t, policy.ShouldLink(0.69, false))
	assert.True(t, policy.ShouldLink(0.7, false))
	assert.True(t, policy.ShouldLink(0.94, false))
	assert.False(t, policy.ShouldLink(0.95, false), "duplicates are not relations")

	// Cross conversation: stricter lower bound.
	assert.False(t, policy.ShouldLink(0.75, true))
	assert.True(t, policy.ShouldLink(0.85, true))
	assert.False(t, policy.ShouldLink(0.96, true))
}

func TestPreview(t *testing.T) {
	short := "hello"
	assert.Equal(t, short, graph.Preview(short))

	long := make([]rune, graph.PreviewLength+50)
	for i := range long {
		long[i] = 'x'
	}
	preview := graph.Preview(string(long))
	assert.Len(t, []rune(preview), graph.PreviewLength)
}
