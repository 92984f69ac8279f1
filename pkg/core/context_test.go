package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatTurn(t *testing.T) {
	text := FormatTurn("hello", "hi there")
	assert.Equal(t, "User: hello\nAssistant: hi there", text)
}

func TestSplitTurnRoundTrip(t *testing.T) {
	user, ai := SplitTurn(FormatTurn("what time is it", "half past nine"))
	assert.Equal(t, "what time is it", user)
	assert.Equal(t, "half past nine", ai)
}

func TestSplitTurnMultilineResponse(t *testing.T) {
	user, ai := SplitTurn(FormatTurn("list two fruits", "apple\nbanana"))
	assert.Equal(t, "list two fruits", user)
	assert.Equal(t, "apple\nbanana", ai)
}

func TestSplitTurnUnstructuredText(t *testing.T) {
	user, ai := SplitTurn("free form note")
	assert.Equal(t, "free form note", user)
	assert.Empty(t, ai)
}

func TestMergeMemoriesDedupAndOrder(t *testing.T) {
	a := &ContextMemory{Timestamp: "2026-01-01 10:00:00.0000001", Source: SourceHistory}
	b := &ContextMemory{Timestamp: "2026-01-01 09:00:00.0000001", Source: SourceVector}
	dupA := &ContextMemory{Timestamp: "2026-01-01 10:00:00.0000001", Source: SourceGraph}

	merged := mergeMemories([]*ContextMemory{a}, []*ContextMemory{b, dupA})

	// Duplicate timestamps collapse to the first occurrence, output is
	// chronological.
	assert.Len(t, merged, 2)
	assert.Equal(t, b.Timestamp, merged[0].Timestamp)
	assert.Equal(t, SourceHistory, merged[1].Source)
}

func TestFormatContext(t *testing.T) {
	memories := []*ContextMemory{
		{UserMessage: "first", AIResponse: "one"},
		{UserMessage: "second", AIResponse: "two"},
	}

	text := formatContext(memories)
	assert.Equal(t, "User: first\nAssistant: one\n\nUser: second\nAssistant: two", text)
}

func TestWithNeutralScores(t *testing.T) {
	memories := []*ContextMemory{
		{Timestamp: "a"},
		{Timestamp: "b", Similarity: 0.8},
	}

	scored := withNeutralScores(memories)
	assert.Equal(t, 1.0, scored[0].Similarity)
	assert.Equal(t, 0.8, scored[1].Similarity, "existing scores are kept")
}
